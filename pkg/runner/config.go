package runner

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/webprobe/pkg/browser"
	"github.com/entrhq/webprobe/pkg/detect"
	"github.com/entrhq/webprobe/pkg/executor"
	"github.com/entrhq/webprobe/pkg/plan"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "WEBPROBE"

// Config is the run configuration, usually loaded from a YAML file.
type Config struct {
	// URLs are the target pages, tested one after another.
	URLs []string `yaml:"urls" json:"urls"`

	// ScheduleInterval reruns all targets at this interval until
	// interrupted. Zero runs once.
	ScheduleInterval time.Duration `yaml:"schedule_interval" json:"schedule_interval"`

	// ExtractTimeout bounds the initial page load used for planning.
	ExtractTimeout time.Duration `yaml:"extract_timeout" json:"extract_timeout"`

	// IdleWait bounds the best-effort wait for network idle during extraction.
	IdleWait time.Duration `yaml:"idle_wait" json:"idle_wait"`

	Browser   browser.Options `yaml:"browser" json:"browser"`
	Executor  executor.Config `yaml:"executor" json:"executor"`
	Detection detect.Policy   `yaml:"detection" json:"detection"`
	Plan      PlanConfig      `yaml:"plan" json:"plan"`
	LLM       LLMConfig       `yaml:"llm" json:"llm"`
	Artifacts ArtifactConfig  `yaml:"artifacts" json:"artifacts"`
	Gates     GateConfig      `yaml:"gates" json:"gates"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// PlanConfig bounds the content sent to the plan synthesizer.
type PlanConfig struct {
	MaxHTMLChars int  `yaml:"max_html_chars" json:"max_html_chars"`
	MaxTextChars int  `yaml:"max_text_chars" json:"max_text_chars"`
	CleanHTML    bool `yaml:"clean_html" json:"clean_html"`
}

// LLMConfig selects the model behind both collaborators. The API key is
// never read from the file.
type LLMConfig struct {
	Model       string  `yaml:"model" json:"model"`
	ReportModel string  `yaml:"report_model" json:"report_model"`
	BaseURL     string  `yaml:"base_url" json:"base_url"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	APIKey      string  `yaml:"-" json:"-"`
}

// ArtifactConfig defines artifact generation configuration
type ArtifactConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`

	// Individual format flags
	JSON        bool `yaml:"json" json:"json"`
	Markdown    bool `yaml:"markdown" json:"markdown"`
	Metrics     bool `yaml:"metrics" json:"metrics"`
	Screenshots bool `yaml:"screenshots" json:"screenshots"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls console output: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`

	// Level is the file log level: debug, info, warn, error
	Level string `yaml:"level" json:"level"`
}

// DefaultConfig returns a configuration suitable for most sites.
func DefaultConfig() *Config {
	return &Config{
		ExtractTimeout: 30 * time.Second,
		IdleWait:       browser.DefaultIdleWait,
		Browser:        browser.DefaultOptions(),
		Executor:       executor.DefaultConfig(),
		Detection:      detect.DefaultPolicy(),
		Plan: PlanConfig{
			MaxHTMLChars: plan.MaxHTMLChars,
			MaxTextChars: plan.MaxTextChars,
		},
		Artifacts: ArtifactConfig{
			Enabled:     true,
			OutputDir:   ".webprobe/artifacts",
			JSON:        true,
			Markdown:    true,
			Metrics:     true,
			Screenshots: true,
		},
		Gates: DefaultGateConfig(),
		Logging: LoggingConfig{
			Verbosity: "normal",
			Level:     "info",
		},
	}
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// envOverrides lists the settings that can be changed per environment.
type envOverrides struct {
	URLs             []string      `envconfig:"URLS"`
	ScheduleInterval time.Duration `envconfig:"SCHEDULE_INTERVAL"`
	Model            string        `envconfig:"MODEL"`
	ReportModel      string        `envconfig:"REPORT_MODEL"`
	BaseURL          string        `envconfig:"BASE_URL"`
	APIKey           string        `envconfig:"API_KEY"`
	Headless         *bool         `envconfig:"HEADLESS"`
	ActionTimeout    time.Duration `envconfig:"ACTION_TIMEOUT"`
	OutputDir        string        `envconfig:"OUTPUT_DIR"`
	Verbosity        string        `envconfig:"VERBOSITY"`
	LogLevel         string        `envconfig:"LOG_LEVEL"`
}

// ApplyEnv overrides fields from WEBPROBE_* environment variables.
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := envconfig.Process(EnvPrefix, &o); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}

	if len(o.URLs) > 0 {
		c.URLs = o.URLs
	}
	if o.ScheduleInterval > 0 {
		c.ScheduleInterval = o.ScheduleInterval
	}
	if o.Model != "" {
		c.LLM.Model = o.Model
	}
	if o.ReportModel != "" {
		c.LLM.ReportModel = o.ReportModel
	}
	if o.BaseURL != "" {
		c.LLM.BaseURL = o.BaseURL
	}
	if o.APIKey != "" {
		c.LLM.APIKey = o.APIKey
	}
	if o.Headless != nil {
		c.Browser.Headless = *o.Headless
	}
	if o.ActionTimeout > 0 {
		c.Executor.ActionTimeout = o.ActionTimeout
	}
	if o.OutputDir != "" {
		c.Artifacts.OutputDir = o.OutputDir
	}
	if o.Verbosity != "" {
		c.Logging.Verbosity = o.Verbosity
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.URLs) == 0 {
		return fmt.Errorf("at least one target URL is required")
	}
	for _, raw := range c.URLs {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid target URL %q: %w", raw, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid target URL %q: must be an absolute http or https URL", raw)
		}
	}

	if c.ScheduleInterval < 0 {
		return fmt.Errorf("schedule_interval cannot be negative")
	}
	if c.ExtractTimeout < 0 || c.IdleWait < 0 {
		return fmt.Errorf("extract_timeout and idle_wait cannot be negative")
	}

	switch c.Browser.Engine {
	case "", browser.EngineChromium, browser.EngineFirefox, browser.EngineWebKit:
	default:
		return fmt.Errorf("invalid browser engine: %s (must be 'chromium', 'firefox', or 'webkit')", c.Browser.Engine)
	}

	if err := c.Executor.Validate(); err != nil {
		return fmt.Errorf("executor: %w", err)
	}
	if err := c.Detection.Validate(); err != nil {
		return fmt.Errorf("detection: %w", err)
	}

	if c.Plan.MaxHTMLChars < 0 || c.Plan.MaxTextChars < 0 {
		return fmt.Errorf("plan bounds cannot be negative")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature must be between 0 and 2")
	}

	if c.Artifacts.Enabled && c.Artifacts.OutputDir == "" {
		return fmt.Errorf("artifacts output_dir is required when artifacts are enabled")
	}
	if err := c.Gates.Validate(); err != nil {
		return fmt.Errorf("gates: %w", err)
	}

	// Set default verbosity if not specified
	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}

	validLevels := map[string]bool{
		"quiet":   true,
		"normal":  true,
		"verbose": true,
		"debug":   true,
	}
	if !validLevels[c.Logging.Verbosity] {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}

	return nil
}
