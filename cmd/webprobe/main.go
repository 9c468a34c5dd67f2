// Package main provides the webprobe command. It reads each target page,
// asks an LLM for a test plan, drives a real browser through the plan and
// writes an LLM-compiled bug report next to the raw results.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/entrhq/webprobe/pkg/browser"
	appconfig "github.com/entrhq/webprobe/pkg/config"
	"github.com/entrhq/webprobe/pkg/executor"
	"github.com/entrhq/webprobe/pkg/llm/openai"
	"github.com/entrhq/webprobe/pkg/llm/tokenizer"
	"github.com/entrhq/webprobe/pkg/logging"
	"github.com/entrhq/webprobe/pkg/runner"
)

const (
	version = "0.1.0"

	// Exit code when the pipeline ran but a required gate failed.
	exitGatesFailed = 2

	// One executor session, one extraction session and one being discarded.
	maxBrowserSessions = 3
)

var errGatesFailed = errors.New("one or more run gates failed")

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile  string
	URLs        string
	APIKey      string
	BaseURL     string
	Model       string
	ReportModel string
	Interval    time.Duration
	OutputDir   string
	Verbosity   string
	EnvFile     string
	ShowVersion bool
}

func main() {
	config := parseFlags()

	if config.ShowVersion {
		fmt.Printf("webprobe v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	err := run(ctx, config)
	cancel()
	if errors.Is(err, errGatesFailed) {
		os.Exit(exitGatesFailed)
	}
	if err != nil {
		log.Printf("Execution failed: %v", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags
func parseFlags() *CLIConfig {
	config := &CLIConfig{}

	flag.StringVar(&config.ConfigFile, "config", "", "Path to run configuration file (YAML)")
	flag.StringVar(&config.URLs, "url", "", "Comma-separated target URLs (overrides the config file)")
	flag.StringVar(&config.APIKey, "api-key", "", "API key for the OpenAI-compatible endpoint")
	flag.StringVar(&config.BaseURL, "base-url", "", "Base URL of the OpenAI-compatible endpoint")
	flag.StringVar(&config.Model, "model", "", "Model used to synthesize test plans")
	flag.StringVar(&config.ReportModel, "report-model", "", "Model used to compile bug reports (defaults to -model)")
	flag.DurationVar(&config.Interval, "interval", 0, "Rerun all targets at this interval until interrupted")
	flag.StringVar(&config.OutputDir, "output", "", "Artifact output directory")
	flag.StringVar(&config.Verbosity, "verbosity", "", "Console verbosity: quiet, normal, verbose or debug")
	flag.StringVar(&config.EnvFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
	flag.BoolVar(&config.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "webprobe - LLM-planned end-to-end smoke tests\n\n")
		fmt.Fprintf(os.Stderr, "Usage: webprobe [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Test one page\n")
		fmt.Fprintf(os.Stderr, "  webprobe -url https://shop.example.com\n\n")
		fmt.Fprintf(os.Stderr, "  # Run from a config file every hour\n")
		fmt.Fprintf(os.Stderr, "  webprobe -config webprobe.yaml -interval 1h\n\n")
		fmt.Fprintf(os.Stderr, "Exit status is 2 when a run gate fails (by default: any failed case or a critical report).\n")
	}

	flag.Parse()
	return config
}

// run executes every configured target
//
//nolint:gocyclo
func run(ctx context.Context, cliConfig *CLIConfig) error {
	if cliConfig.EnvFile != "" {
		if err := godotenv.Load(cliConfig.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", cliConfig.EnvFile, err)
		}
	}

	if initErr := appconfig.Initialize(""); initErr != nil {
		return fmt.Errorf("failed to initialize configuration: %w", initErr)
	}

	cfg, err := loadConfig(cliConfig)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if validationErr := cfg.Validate(); validationErr != nil {
		return fmt.Errorf("invalid configuration: %w", validationErr)
	}

	logging.SetLevel(logging.ParseLevel(cfg.Logging.Level))
	logger, err := logging.NewLogger("webprobe")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	provider, err := appconfig.BuildProvider(cfg.LLM.Model, cfg.LLM.BaseURL, cfg.LLM.APIKey, openai.DefaultModel,
		openai.WithJSONResponse(),
		openai.WithTemperature(cfg.LLM.Temperature),
	)
	if err != nil {
		return err
	}
	cfg.LLM.ReportModel = appconfig.ReportModel(cfg.LLM.ReportModel)

	opts := []runner.Option{
		runner.WithConsole(runner.NewConsole(runner.ParseLogLevel(cfg.Logging.Verbosity))),
		runner.WithLogger(logger),
		runner.WithRunID(logger.RunID()),
	}
	if tok, tokErr := tokenizer.New(); tokErr != nil {
		logger.Warnf("token counting falls back to estimates: %v", tokErr)
	} else {
		opts = append(opts, runner.WithTokenizer(tok))
	}

	launcher := browser.NewLauncher(cfg.Browser)
	launcher.SetMaxSessions(maxBrowserSessions)
	if initErr := launcher.Initialize(); initErr != nil {
		return fmt.Errorf("failed to start browser: %w", initErr)
	}
	defer func() {
		if shutdownErr := launcher.Shutdown(); shutdownErr != nil {
			logger.Warnf("browser shutdown: %v", shutdownErr)
		}
	}()

	sessions := executor.FactoryFunc(func() (executor.Session, error) {
		s, sessErr := launcher.NewSession()
		if sessErr != nil {
			return nil, sessErr
		}
		return s, nil
	})
	extractor := browser.NewExtractor(launcher, cfg.ExtractTimeout, cfg.IdleWait)

	r, err := runner.New(cfg, extractor, sessions, provider, opts...)
	if err != nil {
		return err
	}

	logger.Infof("webprobe v%s starting: %d target(s), model %s", version, len(cfg.URLs), provider.GetModel())
	log.Printf("Diagnostic log: %s", logger.LogPath())

	if cfg.ScheduleInterval > 0 {
		return r.RunScheduled(ctx)
	}

	summaries, err := r.RunAll(ctx)
	if err != nil {
		return err
	}
	for _, s := range summaries {
		if s != nil && !s.Passed() {
			return errGatesFailed
		}
	}
	return nil
}

// loadConfig builds the run configuration. Precedence, highest first:
// flags, WEBPROBE_* environment, the run file, the user config file.
func loadConfig(cliConfig *CLIConfig) (*runner.Config, error) {
	cfg := runner.DefaultConfig()
	if cliConfig.ConfigFile != "" {
		loaded, err := runner.LoadConfig(cliConfig.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		applyUserBrowser(&cfg.Browser)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if cliConfig.URLs != "" {
		cfg.URLs = splitList(cliConfig.URLs)
	}
	if cliConfig.APIKey != "" {
		cfg.LLM.APIKey = cliConfig.APIKey
	}
	if cliConfig.BaseURL != "" {
		cfg.LLM.BaseURL = cliConfig.BaseURL
	}
	if cliConfig.Model != "" {
		cfg.LLM.Model = cliConfig.Model
	}
	if cliConfig.ReportModel != "" {
		cfg.LLM.ReportModel = cliConfig.ReportModel
	}
	if cliConfig.Interval > 0 {
		cfg.ScheduleInterval = cliConfig.Interval
	}
	if cliConfig.OutputDir != "" {
		cfg.Artifacts.OutputDir = cliConfig.OutputDir
	}
	if cliConfig.Verbosity != "" {
		cfg.Logging.Verbosity = cliConfig.Verbosity
	}

	if cfg.LLM.Temperature == 0 {
		if section := appconfig.GetLLM(); section != nil {
			cfg.LLM.Temperature = section.GetTemperature()
		}
	}

	return cfg, nil
}

// applyUserBrowser copies browser preferences from ~/.webprobe/config.json.
func applyUserBrowser(opts *browser.Options) {
	section := appconfig.GetBrowser()
	if section == nil {
		return
	}
	if engine := section.GetEngine(); engine != "" {
		opts.Engine = browser.Engine(engine)
	}
	opts.Headless = section.IsHeadless()
	opts.SkipInstall = section.ShouldSkipInstall()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
