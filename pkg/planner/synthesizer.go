package planner

import (
	"context"

	"github.com/entrhq/webprobe/pkg/browser"
	"github.com/entrhq/webprobe/pkg/llm"
	"github.com/entrhq/webprobe/pkg/plan"
	"github.com/entrhq/webprobe/pkg/types"
)

// LLMSynthesizer asks a chat model for a test plan.
type LLMSynthesizer struct {
	provider llm.Provider
	opts     options
}

// NewSynthesizer creates a synthesizer backed by provider.
func NewSynthesizer(provider llm.Provider, opts ...Option) *LLMSynthesizer {
	return &LLMSynthesizer{provider: provider, opts: newOptions(opts)}
}

// SynthesizePlan implements PlanSynthesizer.
func (s *LLMSynthesizer) SynthesizePlan(ctx context.Context, snapshot plan.PageSnapshot) (*plan.TestPlan, error) {
	bounded := s.Prepare(snapshot)
	messages := []*types.Message{
		types.NewSystemMessage(PlanSystemPrompt),
		types.NewUserMessage(BuildPlanPrompt(bounded)),
	}

	content, err := s.opts.complete(ctx, s.provider, StagePlan, messages)
	if err != nil {
		return nil, err
	}

	var p plan.TestPlan
	if err := decode(StagePlan, content, &p); err != nil {
		s.opts.log.Warnf("rejected plan response: %v", err)
		return nil, err
	}
	return &p, nil
}

// Prepare applies the optional cleanup and the prompt bounds. The result
// is a function of snapshot and the options alone.
func (s *LLMSynthesizer) Prepare(snapshot plan.PageSnapshot) plan.PageSnapshot {
	if s.opts.cleanHTML && snapshot.HTML != "" {
		cleaned, err := browser.CleanHTML(snapshot.HTML, s.opts.maxHTML)
		if err != nil {
			s.opts.log.Warnf("html cleanup failed, using raw markup: %v", err)
		} else {
			snapshot.HTML = cleaned.HTML
			if snapshot.Title == "" {
				snapshot.Title = cleaned.Title
			}
		}
	}
	return snapshot.Bounded(s.opts.maxHTML, s.opts.maxText)
}
