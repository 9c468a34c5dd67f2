package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/webprobe/pkg/llm"
	"github.com/entrhq/webprobe/pkg/plan"
	"github.com/entrhq/webprobe/pkg/types"
)

// fakeProvider returns a canned reply and records the request.
type fakeProvider struct {
	model    string
	reply    string
	err      error
	requests [][]*types.Message
}

func (f *fakeProvider) StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *llm.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	f.requests = append(f.requests, messages)
	if f.err != nil {
		return nil, f.err
	}
	return types.NewAssistantMessage(f.reply), nil
}

func (f *fakeProvider) GetModelInfo() *types.ModelInfo {
	return &types.ModelInfo{Name: f.model, Provider: "fake"}
}

func (f *fakeProvider) GetModel() string { return f.model }

type cloningProvider struct {
	fakeProvider
}

func (c *cloningProvider) CloneWithModel(model string) llm.Provider {
	clone := c.fakeProvider
	clone.model = model
	return &clone
}

const validPlan = `{
  "websiteType": "e-commerce",
  "criticalFunctionalities": ["search", "checkout"],
  "testCases": [
    {"name": "Search", "action": "Type \"shoes\" into search", "expectedBehavior": "results appear", "riskLevel": "high", "elementSelector": "input[name=q]"},
    {"name": "Footer", "action": "Scroll to footer", "expectedBehavior": "footer visible", "riskLevel": "low", "elementSelector": "footer"}
  ],
  "potentialIssues": ["slow search"]
}`

func TestSynthesizePlan(t *testing.T) {
	provider := &fakeProvider{model: "gpt-4o", reply: validPlan}
	var usage []*types.TokenUsage
	s := NewSynthesizer(provider, WithEventHandler(func(ev *types.RunEvent) {
		usage = append(usage, ev.TokenUsage)
	}))

	p, err := s.SynthesizePlan(context.Background(), plan.PageSnapshot{
		URL:  "https://shop.example.com",
		HTML: "<html><body><input name=q></body></html>",
		Text: "Shop",
	})

	require.NoError(t, err)
	assert.Equal(t, "e-commerce", p.WebsiteType)
	require.Len(t, p.TestCases, 2)
	assert.Equal(t, plan.RiskHigh, p.TestCases[0].RiskLevel)
	assert.Equal(t, []string{"slow search"}, p.PotentialIssues)

	require.Len(t, provider.requests, 1)
	msgs := provider.requests[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[1].Content, "URL: https://shop.example.com")
	assert.Contains(t, msgs[1].Content, "<input name=q>")

	require.Len(t, usage, 1)
	assert.Equal(t, StagePlan, usage[0].Stage)
	assert.Greater(t, usage[0].PromptTokens, 0)
}

func TestSynthesizePlanFenced(t *testing.T) {
	provider := &fakeProvider{reply: "```json\n" + validPlan + "\n```"}
	p, err := NewSynthesizer(provider).SynthesizePlan(context.Background(), plan.PageSnapshot{URL: "https://a.test"})
	require.NoError(t, err)
	assert.Len(t, p.TestCases, 2)
}

func TestSynthesizePlanRejects(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
		want  string
	}{
		{"not json", "Here is your plan: ...", nil, "invalid JSON"},
		{"truncated json", `{"websiteType": "blog", "testCases": [`, nil, "invalid JSON"},
		{"no cases", `{"websiteType": "blog", "testCases": []}`, nil, "at least one"},
		{"bad risk", `{"websiteType": "blog", "testCases": [{"name": "a", "action": "click a", "riskLevel": "urgent"}]}`, nil, "riskLevel"},
		{"missing website type", `{"testCases": [{"name": "a", "action": "click a", "riskLevel": "low"}]}`, nil, "websiteType"},
		{"empty reply", "  ", nil, "empty response"},
		{"transport error", "", errors.New("429 rate limited"), "rate limited"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{reply: tt.reply, err: tt.err}
			p, err := NewSynthesizer(provider).SynthesizePlan(context.Background(), plan.PageSnapshot{URL: "https://a.test"})

			assert.Nil(t, p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, plan.ErrSynthesis))
			var se *plan.SynthesisError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, StagePlan, se.Stage)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPrepareBoundsInput(t *testing.T) {
	snap := plan.PageSnapshot{
		URL:  "https://a.test",
		HTML: "<html><head><script>var x = 1;</script></head><body><p>" + strings.Repeat("a", 500) + "</p></body></html>",
		Text: strings.Repeat("b", 500),
	}

	raw := NewSynthesizer(&fakeProvider{}, WithBounds(100, 50)).Prepare(snap)
	assert.Len(t, []rune(raw.HTML), 100)
	assert.Len(t, []rune(raw.Text), 50)
	assert.Contains(t, raw.HTML, "<script>")

	cleaned := NewSynthesizer(&fakeProvider{}, WithBounds(100, 50), WithHTMLCleaning(true)).Prepare(snap)
	assert.NotContains(t, cleaned.HTML, "script")
	assert.LessOrEqual(t, len([]rune(cleaned.HTML)), 100)

	again := NewSynthesizer(&fakeProvider{}, WithBounds(100, 50), WithHTMLCleaning(true)).Prepare(snap)
	assert.Equal(t, cleaned, again)

	defaults := NewSynthesizer(&fakeProvider{}).Prepare(plan.PageSnapshot{Text: strings.Repeat("c", plan.MaxTextChars+1)})
	assert.Len(t, defaults.Text, plan.MaxTextChars)
}

const validReport = `{
  "overallHealth": "major-issues",
  "totals": {"total": 99, "passed": 99, "failed": 0, "skipped": 0},
  "criticalBugs": [{"title": "Checkout crashes", "description": "TypeError on submit", "severity": "high", "testName": "Checkout"}],
  "minorIssues": ["Footer link slow"],
  "workingFeatures": ["Search"],
  "recommendations": ["Guard against undefined cart items"],
  "riskAssessment": "Revenue path is broken."
}`

func TestCompileReport(t *testing.T) {
	provider := &fakeProvider{reply: validReport}
	results := []plan.TestResult{
		{TestName: "Search", Action: "type shoes", Status: plan.StatusPassed, RiskLevel: plan.RiskHigh},
		{TestName: "Checkout", Action: "click pay", Status: plan.StatusFailed, Error: "TypeError: cart is undefined", RiskLevel: plan.RiskHigh},
		{TestName: "Footer", Action: "scroll", Status: plan.StatusSkipped, Error: "page already broken", RiskLevel: plan.RiskLow},
	}

	report, err := NewReporter(provider).CompileReport(context.Background(), results, []string{"cart state"})

	require.NoError(t, err)
	assert.Equal(t, plan.HealthMajorIssues, report.OverallHealth)
	assert.Equal(t, plan.Totals{Total: 3, Passed: 1, Failed: 1, Skipped: 1}, report.Totals, "totals are computed locally")
	require.Len(t, report.CriticalBugs, 1)
	assert.Equal(t, "Checkout", report.CriticalBugs[0].TestName)
	assert.Equal(t, "Footer link slow", report.MinorIssues[0].Title)

	prompt := provider.requests[0][1].Content
	assert.Contains(t, prompt, "3 total, 1 passed, 1 failed, 1 skipped")
	assert.Contains(t, prompt, "TypeError: cart is undefined")
	assert.Contains(t, prompt, "- cart state")
	assert.NotContains(t, prompt, "durationNs")
}

func TestCompileReportRejects(t *testing.T) {
	for _, reply := range []string{
		`{"overallHealth": "fine"}`,
		`{"overallHealth": "critical", "criticalBugs": [{"title": "x", "severity": "catastrophic"}]}`,
		`not json`,
	} {
		_, err := NewReporter(&fakeProvider{reply: reply}).CompileReport(context.Background(), nil, nil)
		var se *plan.SynthesisError
		require.True(t, errors.As(err, &se), reply)
		assert.Equal(t, StageReport, se.Stage)
	}
}

func TestForModel(t *testing.T) {
	base := &cloningProvider{fakeProvider{model: "gpt-4o"}}
	assert.Same(t, llm.Provider(base), ForModel(base, ""))
	assert.Same(t, llm.Provider(base), ForModel(base, "gpt-4o"))
	assert.Equal(t, "gpt-4o-mini", ForModel(base, "gpt-4o-mini").GetModel())

	plain := &fakeProvider{model: "gpt-4o"}
	assert.Same(t, llm.Provider(plain), ForModel(plain, "gpt-4o-mini"))
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFence("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, stripFence("  {\"a\":1}  "))
}
