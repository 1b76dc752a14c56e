package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration. It is loaded once in main and
// passed into the components that need it; nothing reads the environment
// after startup.
type Config struct {
	Host string
	Port int

	// Remote browser-use HTTP backend. An empty BrowserUseHTTPBase means
	// the local automation package handles execution instead.
	BrowserUseHTTPBase   string
	BrowserUseRunPath    string
	BrowserUseAuthHeader string
	BrowserUseTimeout    time.Duration

	// CDPURL lets the local backend attach to an already-running browser.
	CDPURL string

	DefaultModel string
	Headless     bool

	ReportsDir string
}

// Default returns the configuration used when neither the config file nor
// the environment overrides a value.
func Default() *Config {
	return &Config{
		Host:              "127.0.0.1",
		Port:              8000,
		BrowserUseRunPath: "/run",
		BrowserUseTimeout: 120 * time.Second,
		Headless:          true,
		ReportsDir:        "artifacts/reports",
	}
}

// fileConfig mirrors Config for the optional YAML file. The timeout is in
// seconds there, matching the BROWSER_USE_HTTP_TIMEOUT env key.
type fileConfig struct {
	Host                 string  `yaml:"host"`
	Port                 int     `yaml:"port"`
	BrowserUseHTTPBase   string  `yaml:"browser_use_http_base"`
	BrowserUseRunPath    string  `yaml:"browser_use_http_run_path"`
	BrowserUseAuthHeader string  `yaml:"browser_use_http_auth_header"`
	TimeoutSeconds       float64 `yaml:"browser_use_http_timeout"`
	CDPURL               string  `yaml:"browser_use_cdp_url"`
	Model                string  `yaml:"llm_model"`
	Headless             *bool   `yaml:"headless"`
	ReportsDir           string  `yaml:"reports_dir"`
}

// Load builds the configuration from defaults, then the YAML file named by
// RUN_CASE_CONFIG (or ./runcase.yaml when present), then the environment.
// Environment variables always win.
func Load() (*Config, error) {
	cfg := Default()

	path := os.Getenv("RUN_CASE_CONFIG")
	if path == "" {
		if _, err := os.Stat("runcase.yaml"); err == nil {
			path = "runcase.yaml"
		}
	}
	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}

	if fc.Host != "" {
		cfg.Host = fc.Host
	}
	if fc.Port != 0 {
		cfg.Port = fc.Port
	}
	if fc.BrowserUseHTTPBase != "" {
		cfg.BrowserUseHTTPBase = fc.BrowserUseHTTPBase
	}
	if fc.BrowserUseRunPath != "" {
		cfg.BrowserUseRunPath = fc.BrowserUseRunPath
	}
	if fc.BrowserUseAuthHeader != "" {
		cfg.BrowserUseAuthHeader = fc.BrowserUseAuthHeader
	}
	if fc.TimeoutSeconds > 0 {
		cfg.BrowserUseTimeout = time.Duration(fc.TimeoutSeconds * float64(time.Second))
	}
	if fc.CDPURL != "" {
		cfg.CDPURL = fc.CDPURL
	}
	if fc.Model != "" {
		cfg.DefaultModel = fc.Model
	}
	if fc.Headless != nil {
		cfg.Headless = *fc.Headless
	}
	if fc.ReportsDir != "" {
		cfg.ReportsDir = fc.ReportsDir
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("BROWSER_USE_HTTP_BASE"); v != "" {
		cfg.BrowserUseHTTPBase = v
	}
	if v := os.Getenv("BROWSER_USE_HTTP_RUN_PATH"); v != "" {
		cfg.BrowserUseRunPath = v
	}
	if v := os.Getenv("BROWSER_USE_HTTP_AUTH_HEADER"); v != "" {
		cfg.BrowserUseAuthHeader = v
	}
	if v := os.Getenv("BROWSER_USE_HTTP_TIMEOUT"); v != "" {
		// Seconds, fractional values allowed.
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			cfg.BrowserUseTimeout = time.Duration(secs * float64(time.Second))
		}
	}
	if v := os.Getenv("BROWSER_USE_CDP_URL"); v != "" {
		cfg.CDPURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.DefaultModel = v
	}
	if v := os.Getenv("HEADLESS"); v != "" {
		if headless, err := strconv.ParseBool(v); err == nil {
			cfg.Headless = headless
		}
	}
	if v := os.Getenv("REPORTS_DIR"); v != "" {
		cfg.ReportsDir = v
	}
}

// Addr is the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
