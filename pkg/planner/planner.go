// Package planner holds the two language-model collaborators: the plan
// synthesizer that turns page content into a TestPlan, and the bug reporter
// that turns executed results into a TestReport. Both are pure with respect
// to the browser; they never touch a session.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/webprobe/pkg/llm"
	"github.com/entrhq/webprobe/pkg/llm/tokenizer"
	"github.com/entrhq/webprobe/pkg/logging"
	"github.com/entrhq/webprobe/pkg/plan"
	"github.com/entrhq/webprobe/pkg/types"
)

// Stage names used in SynthesisError and token usage events.
const (
	StagePlan   = "plan"
	StageReport = "report"
)

// PlanSynthesizer produces a test plan from page content.
type PlanSynthesizer interface {
	SynthesizePlan(ctx context.Context, snapshot plan.PageSnapshot) (*plan.TestPlan, error)
}

// BugReporter classifies executed results into a report.
type BugReporter interface {
	CompileReport(ctx context.Context, results []plan.TestResult, potentialIssues []string) (*plan.TestReport, error)
}

// Logger is the subset of logging.Logger the collaborators write to.
type Logger interface {
	Debugf(format string, v ...interface{})
	Warnf(format string, v ...interface{})
}

type options struct {
	tokenizer *tokenizer.Tokenizer
	onEvent   func(*types.RunEvent)
	log       Logger
	maxHTML   int
	maxText   int
	cleanHTML bool
}

// Option configures a synthesizer or reporter.
type Option func(*options)

// WithTokenizer counts prompt tokens with tok instead of the estimate.
func WithTokenizer(tok *tokenizer.Tokenizer) Option {
	return func(o *options) { o.tokenizer = tok }
}

// WithEventHandler receives a token usage event per call.
func WithEventHandler(fn func(*types.RunEvent)) Option {
	return func(o *options) { o.onEvent = fn }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l Logger) Option {
	return func(o *options) { o.log = l }
}

// WithBounds overrides the prompt bounds. Zero keeps the defaults.
func WithBounds(maxHTML, maxText int) Option {
	return func(o *options) {
		o.maxHTML = maxHTML
		o.maxText = maxText
	}
}

// WithHTMLCleaning strips scripts, styles and hidden markup before the HTML
// is truncated.
func WithHTMLCleaning(enabled bool) Option {
	return func(o *options) { o.cleanHTML = enabled }
}

func newOptions(opts []Option) options {
	o := options{
		log:     logging.NewNopLogger(),
		maxHTML: plan.MaxHTMLChars,
		maxText: plan.MaxTextChars,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxHTML <= 0 {
		o.maxHTML = plan.MaxHTMLChars
	}
	if o.maxText <= 0 {
		o.maxText = plan.MaxTextChars
	}
	return o
}

// ForModel returns a provider that targets model, when the provider
// supports switching. Otherwise p is returned unchanged.
func ForModel(p llm.Provider, model string) llm.Provider {
	if model == "" || model == p.GetModel() {
		return p
	}
	if cloner, ok := p.(llm.ModelCloner); ok {
		return cloner.CloneWithModel(model)
	}
	return p
}

// complete sends one request and accounts for its tokens.
func (o *options) complete(ctx context.Context, provider llm.Provider, stage string, messages []*types.Message) (string, error) {
	promptTokens := o.tokenizer.CountMessagesTokens(messages)
	o.log.Debugf("%s request to %s: %d prompt tokens", stage, provider.GetModel(), promptTokens)

	reply, err := provider.Complete(ctx, messages)
	if err != nil {
		return "", &plan.SynthesisError{Stage: stage, Err: err}
	}
	if reply == nil || strings.TrimSpace(reply.Content) == "" {
		return "", &plan.SynthesisError{Stage: stage, Err: fmt.Errorf("empty response")}
	}

	completionTokens := o.tokenizer.CountTokens(reply.Content)
	o.log.Debugf("%s response: %d completion tokens", stage, completionTokens)
	if o.onEvent != nil {
		o.onEvent(types.NewTokenUsageEvent(stage, promptTokens, completionTokens))
	}
	return reply.Content, nil
}

type validator interface {
	Validate() error
}

// decode parses a JSON reply strictly into v and validates it. A single
// surrounding markdown code fence is tolerated.
func decode(stage, content string, v validator) error {
	body := stripFence(content)
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return &plan.SynthesisError{Stage: stage, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if err := v.Validate(); err != nil {
		return &plan.SynthesisError{Stage: stage, Err: err}
	}
	return nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
