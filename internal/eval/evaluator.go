// Package eval evaluates declarative success criteria against the raw JSON
// a browser-automation backend returned. Evaluation is pure and never fails:
// a criterion whose field is missing from the result simply does not pass.
package eval

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

// CriterionType enumerates the supported assertions.
type CriterionType string

const (
	TitleContains CriterionType = "title_contains"
	TextExists    CriterionType = "text_exists"
	URLContains   CriterionType = "url_contains"
)

// Valid reports whether t is one of the supported criterion types.
func (t CriterionType) Valid() bool {
	switch t {
	case TitleContains, TextExists, URLContains:
		return true
	}
	return false
}

// Criterion is one declarative assertion on the backend's raw result.
// Selector is only meaningful for text_exists and narrows the match to the
// matching elements when the result carries rendered HTML.
type Criterion struct {
	Type     CriterionType `json:"type"`
	Value    string        `json:"value"`
	Selector string        `json:"selector,omitempty"`
}

// Describe renders the criterion the way reports and composed task texts
// show it, e.g. `text_exists: [#main] Welcome`.
func (c Criterion) Describe() string {
	if c.Selector != "" {
		return fmt.Sprintf("%s: [%s] %s", c.Type, c.Selector, c.Value)
	}
	return fmt.Sprintf("%s: %s", c.Type, c.Value)
}

// Result is one criterion's outcome.
type Result struct {
	Criterion
	Passed bool `json:"passed"`
}

// Verdict is the aggregate outcome for one request. OK is the logical AND
// over all criteria; with no criteria it is trivially true.
type Verdict struct {
	OK      bool
	Message string
	Results []Result
}

// Candidate field names read from the untyped backend result. The first
// field present wins.
var (
	titleFields = []string{"title", "page_title"}
	urlFields   = []string{"url", "final_url", "current_url"}
	textFields  = []string{"text", "page_text", "content", "html"}
)

// Evaluate checks every criterion, in order, against the raw backend JSON.
func Evaluate(raw json.RawMessage, criteria []Criterion) Verdict {
	if len(criteria) == 0 {
		return Verdict{OK: true, Message: "no success criteria; backend execution succeeded"}
	}

	body := string(raw)
	verdict := Verdict{OK: true, Results: make([]Result, 0, len(criteria))}
	passed := 0
	parts := make([]string, 0, len(criteria))

	for _, c := range criteria {
		ok := evaluateOne(body, c)
		verdict.Results = append(verdict.Results, Result{Criterion: c, Passed: ok})
		verdict.OK = verdict.OK && ok
		outcome := "FAIL"
		if ok {
			outcome = "PASS"
			passed++
		}
		parts = append(parts, fmt.Sprintf("%s %s", outcome, c.Describe()))
	}

	verdict.Message = fmt.Sprintf("%d/%d criteria passed: %s", passed, len(criteria), strings.Join(parts, "; "))
	return verdict
}

func evaluateOne(body string, c Criterion) bool {
	switch c.Type {
	case TitleContains:
		return fieldContains(body, titleFields, c.Value)
	case URLContains:
		return fieldContains(body, urlFields, c.Value)
	case TextExists:
		if c.Selector != "" {
			if text, scoped := selectorText(body, c.Selector); scoped {
				return strings.Contains(text, c.Value)
			}
		}
		return fieldContains(body, textFields, c.Value)
	}
	return false
}

// fieldContains checks the first present candidate field for an exact
// substring match. No field present means the criterion fails.
func fieldContains(body string, keys []string, value string) bool {
	for _, key := range keys {
		if field := gjson.Get(body, key); field.Exists() {
			return strings.Contains(field.String(), value)
		}
	}
	return false
}

// selectorText returns the text under selector when the result carries
// rendered HTML. scoped=false tells the caller to fall back to
// whole-document search.
func selectorText(body, selector string) (text string, scoped bool) {
	html := gjson.Get(body, "html")
	if !html.Exists() || html.String() == "" {
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html.String()))
	if err != nil {
		return "", false
	}
	return doc.Find(selector).Text(), true
}
