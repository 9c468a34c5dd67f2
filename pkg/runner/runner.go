// Package runner orchestrates a complete test run for one or more target
// URLs: extract the page, synthesize a plan, execute it against a single
// owned browser session, compile the report and write artifacts.
package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/entrhq/webprobe/pkg/detect"
	"github.com/entrhq/webprobe/pkg/executor"
	"github.com/entrhq/webprobe/pkg/llm"
	"github.com/entrhq/webprobe/pkg/llm/tokenizer"
	"github.com/entrhq/webprobe/pkg/logging"
	"github.com/entrhq/webprobe/pkg/plan"
	"github.com/entrhq/webprobe/pkg/planner"
	"github.com/entrhq/webprobe/pkg/types"
)

const (
	statusCompleted = "completed"
	statusFailed    = "failed"
)

// Extractor reads the target page for planning.
type Extractor interface {
	Extract(ctx context.Context, url string) (*plan.PageSnapshot, error)
}

// Logger is the diagnostic log the runner and executor write to.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

// Runner ties the pipeline together.
type Runner struct {
	config      *Config
	extractor   Extractor
	synthesizer planner.PlanSynthesizer
	reporter    planner.BugReporter
	sessions    executor.SessionFactory
	detector    *detect.Detector
	actor       executor.Actor
	console     *Console
	log         Logger
	artifacts   *ArtifactWriter
	tokenizer   *tokenizer.Tokenizer
	gates       []Gate
	runID       string

	mu      sync.Mutex
	current *collector
}

// Option configures a Runner.
type Option func(*Runner)

// WithConsole sets the progress console.
func WithConsole(c *Console) Option {
	return func(r *Runner) { r.console = c }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithActor replaces the executor's default actor.
func WithActor(a executor.Actor) Option {
	return func(r *Runner) { r.actor = a }
}

// WithTokenizer counts prompt tokens with tok.
func WithTokenizer(tok *tokenizer.Tokenizer) Option {
	return func(r *Runner) { r.tokenizer = tok }
}

// WithPlanSynthesizer replaces the LLM plan synthesizer.
func WithPlanSynthesizer(s planner.PlanSynthesizer) Option {
	return func(r *Runner) { r.synthesizer = s }
}

// WithBugReporter replaces the LLM bug reporter.
func WithBugReporter(b planner.BugReporter) Option {
	return func(r *Runner) { r.reporter = b }
}

// WithRunID tags summaries with id.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// New creates a runner. The plan synthesizer and bug reporter are built on
// provider unless replaced by options. The config is validated here so a
// bad detection policy or timeout fails before any browser starts.
func New(config *Config, extractor Extractor, sessions executor.SessionFactory, provider llm.Provider, opts ...Option) (*Runner, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	detector, err := detect.New(config.Detection)
	if err != nil {
		return nil, fmt.Errorf("invalid detection policy: %w", err)
	}

	r := &Runner{
		config:    config,
		extractor: extractor,
		sessions:  sessions,
		detector:  detector,
		console:   NewConsole(ParseLogLevel(config.Logging.Verbosity)),
		log:       logging.NewNopLogger(),
		runID:     logging.GetRunID(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.synthesizer == nil || r.reporter == nil {
		if provider == nil {
			return nil, fmt.Errorf("an LLM provider is required")
		}
		common := []planner.Option{
			planner.WithTokenizer(r.tokenizer),
			planner.WithLogger(r.log),
			planner.WithEventHandler(r.observe),
		}
		if r.synthesizer == nil {
			r.synthesizer = planner.NewSynthesizer(provider, append(common,
				planner.WithBounds(config.Plan.MaxHTMLChars, config.Plan.MaxTextChars),
				planner.WithHTMLCleaning(config.Plan.CleanHTML),
			)...)
		}
		if r.reporter == nil {
			r.reporter = planner.NewReporter(planner.ForModel(provider, config.LLM.ReportModel), common...)
		}
	}

	if config.Artifacts.Enabled {
		r.artifacts = NewArtifactWriter(config.Artifacts.OutputDir, config.Artifacts)
	}

	r.gates = CreateGates(config.Gates)
	for _, g := range r.gates {
		if cg, ok := g.(*CommandGate); ok && r.artifacts != nil {
			cg.dir = r.artifacts.Dir
		}
	}
	return r, nil
}

// observe routes collaborator events to the active run.
func (r *Runner) observe(ev *types.RunEvent) {
	r.mu.Lock()
	c := r.current
	r.mu.Unlock()
	if c != nil {
		c.handle(ev)
		return
	}
	r.console.HandleEvent(ev)
}

// collector accumulates metrics from events and forwards them to the console.
type collector struct {
	metrics *RunMetrics
	console *Console
}

func (c *collector) handle(ev *types.RunEvent) {
	switch ev.Type {
	case types.EventTypeTokenUsage:
		if ev.TokenUsage != nil {
			c.metrics.PromptTokens += ev.TokenUsage.PromptTokens
			c.metrics.CompletionTokens += ev.TokenUsage.CompletionTokens
		}
	case types.EventTypeSessionReplaced:
		c.metrics.SessionReplacements++
	case types.EventTypeSessionReset:
		c.metrics.SessionResets++
	}
	c.console.HandleEvent(ev)
}

// Run tests a single target. Extraction and collaborator failures abort
// the run and are returned; everything that happens inside a test case is
// recorded in the summary's results. The summary is returned on every path.
func (r *Runner) Run(ctx context.Context, target string) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:     r.runID,
		URL:       target,
		Status:    "running",
		StartTime: time.Now(),
	}
	col := &collector{metrics: &summary.Metrics, console: r.console}
	r.mu.Lock()
	r.current = col
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.current = nil
		r.mu.Unlock()
	}()

	col.handle(types.NewRunEvent(types.EventTypeRunStart, target))
	r.log.Infof("run started for %s", target)

	err := r.run(ctx, target, summary, col.handle)

	summary.EndTime = time.Now()
	summary.Duration = summary.EndTime.Sub(summary.StartTime)
	summary.Metrics.DurationMs = summary.Duration.Milliseconds()
	summary.Metrics.Totals = plan.Tally(summary.Results)
	summary.Status = statusCompleted
	if err != nil {
		summary.Status = statusFailed
		summary.Error = err.Error()
		r.log.Errorf("run for %s failed: %v", target, err)
		col.handle(types.NewErrorEvent(target, err))
	}

	if r.artifacts != nil {
		dir, writeErr := r.artifacts.WriteAll(summary)
		if writeErr != nil {
			r.console.Warningf("failed to write artifacts: %v", writeErr)
			r.log.Warnf("failed to write artifacts: %v", writeErr)
		} else {
			r.console.Verbosef("artifacts written to %s", dir)
		}
	}

	summary.Gates = RunGates(ctx, r.gates, summary)
	if !summary.Gates.AllPassed {
		r.log.Warnf("gates failed for %s: %s", target, summary.Gates.FormatErrorMessage())
	}
	if r.artifacts != nil {
		if writeErr := r.artifacts.WriteGates(summary); writeErr != nil {
			r.log.Warnf("failed to write gate results: %v", writeErr)
		}
	}

	col.handle(types.NewRunEvent(types.EventTypeRunEnd, target))
	r.console.Summary(summary)
	r.log.Infof("run finished for %s: %s (%s)", target, summary.Status, summary.Metrics.Totals)
	return summary, err
}

func (r *Runner) run(ctx context.Context, target string, summary *RunSummary, emit func(*types.RunEvent)) error {
	snap, err := r.extractor.Extract(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", target, err)
	}
	ev := types.NewRunEvent(types.EventTypeExtracted, target)
	ev.Content = fmt.Sprintf("%q: %d chars of HTML, %d chars of text (HTTP %d)", snap.Title, len(snap.HTML), len(snap.Text), snap.StatusCode)
	emit(ev)

	testPlan, err := r.synthesizer.SynthesizePlan(ctx, *snap)
	if err != nil {
		return fmt.Errorf("failed to synthesize test plan: %w", err)
	}
	summary.Plan = testPlan
	ev = types.NewRunEvent(types.EventTypePlanReady, target)
	ev.Content = fmt.Sprintf("Planned %d test cases for a %s site", len(testPlan.TestCases), testPlan.WebsiteType)
	emit(ev)

	results, err := r.execute(ctx, target, summary, testPlan.TestCases, emit)
	summary.Results = results
	if err != nil {
		return err
	}

	report, err := r.reporter.CompileReport(ctx, results, testPlan.PotentialIssues)
	if err != nil {
		return fmt.Errorf("failed to compile report: %w", err)
	}
	summary.Report = report
	ev = types.NewRunEvent(types.EventTypeReportReady, target)
	ev.Content = fmt.Sprintf("Report ready: %s", report.OverallHealth)
	emit(ev)
	return nil
}

// execute owns the executor session for the duration of the plan and
// releases it on every path.
func (r *Runner) execute(ctx context.Context, target string, summary *RunSummary, cases []plan.TestCase, emit func(*types.RunEvent)) ([]plan.TestResult, error) {
	handle, err := executor.NewSessionHandle(r.sessions, r.config.Executor.CloseTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to start executor session: %w", err)
	}
	defer func() {
		if closeErr := handle.Close(); closeErr != nil {
			r.log.Warnf("failed to close executor session: %v", closeErr)
		}
	}()

	cfg := r.config.Executor
	if r.artifacts != nil && r.config.Artifacts.Screenshots {
		cfg.ScreenshotDir = filepath.Join(r.artifacts.Dir(summary), "screenshots")
	}

	opts := []executor.Option{
		executor.WithConfig(cfg),
		executor.WithLogger(r.log),
		executor.WithEventHandler(emit),
	}
	if r.actor != nil {
		opts = append(opts, executor.WithActor(r.actor))
	}

	exec := executor.New(handle, r.detector, opts...)
	return exec.Run(ctx, target, cases), nil
}

// RunAll tests every configured target in order. A failed target does not
// stop the others; all failures are joined into the returned error.
func (r *Runner) RunAll(ctx context.Context) ([]*RunSummary, error) {
	summaries := make([]*RunSummary, 0, len(r.config.URLs))
	var errs []error

	for _, target := range r.config.URLs {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: %w", target, ctx.Err()))
			break
		}
		summary, err := r.Run(ctx, target)
		summaries = append(summaries, summary)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return summaries, errors.Join(errs...)
}

// RunScheduled calls RunAll every ScheduleInterval until ctx is done.
// Failed passes are logged and do not stop the schedule.
func (r *Runner) RunScheduled(ctx context.Context) error {
	interval := r.config.ScheduleInterval
	if interval <= 0 {
		_, err := r.RunAll(ctx)
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for pass := 1; ; pass++ {
		r.console.Header(fmt.Sprintf("Scheduled pass %d", pass))
		if _, err := r.RunAll(ctx); err != nil {
			r.log.Warnf("scheduled pass %d finished with errors: %v", pass, err)
		}

		r.console.Infof("Next pass in %s", interval)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
