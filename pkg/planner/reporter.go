package planner

import (
	"context"

	"github.com/entrhq/webprobe/pkg/llm"
	"github.com/entrhq/webprobe/pkg/plan"
	"github.com/entrhq/webprobe/pkg/types"
)

// LLMReporter asks a chat model to classify results.
type LLMReporter struct {
	provider llm.Provider
	opts     options
}

// NewReporter creates a reporter backed by provider.
func NewReporter(provider llm.Provider, opts ...Option) *LLMReporter {
	return &LLMReporter{provider: provider, opts: newOptions(opts)}
}

// CompileReport implements BugReporter. Totals are always computed from
// results, never taken from the model.
func (r *LLMReporter) CompileReport(ctx context.Context, results []plan.TestResult, potentialIssues []string) (*plan.TestReport, error) {
	prompt, err := BuildReportPrompt(results, potentialIssues)
	if err != nil {
		return nil, &plan.SynthesisError{Stage: StageReport, Err: err}
	}
	messages := []*types.Message{
		types.NewSystemMessage(ReportSystemPrompt),
		types.NewUserMessage(prompt),
	}

	content, err := r.opts.complete(ctx, r.provider, StageReport, messages)
	if err != nil {
		return nil, err
	}

	var report plan.TestReport
	if err := decode(StageReport, content, &report); err != nil {
		r.opts.log.Warnf("rejected report response: %v", err)
		return nil, err
	}
	report.Totals = plan.Tally(results)
	return &report, nil
}
