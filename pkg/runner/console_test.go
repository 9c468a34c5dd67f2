package runner

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/entrhq/webprobe/pkg/plan"
	"github.com/entrhq/webprobe/pkg/types"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelQuiet, ParseLogLevel("quiet"))
	assert.Equal(t, LogLevelNormal, ParseLogLevel("normal"))
	assert.Equal(t, LogLevelVerbose, ParseLogLevel("verbose"))
	assert.Equal(t, LogLevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, LogLevelNormal, ParseLogLevel("chatty"))
}

func TestCaseLine(t *testing.T) {
	tc := plan.TestCase{Name: "Search", Action: "Type \"shoes\"", ExpectedBehavior: "results", RiskLevel: plan.RiskHigh}

	line := CaseLine(0, 3, tc, plan.TestResult{Status: plan.StatusPassed})
	assert.Equal(t, `[1/3] PASSED Search | action: Type "shoes" | expected: results | risk: high`, line)

	line = CaseLine(2, 3, tc, plan.TestResult{Status: plan.StatusFailed, Error: "Navigation timeout after 10s"})
	assert.Equal(t, `[3/3] FAILED Search | action: Type "shoes" | expected: results | risk: high | error: Navigation timeout after 10s`, line)
}

func TestConsoleLevels(t *testing.T) {
	tc := plan.TestCase{Name: "Logo", Action: "click", RiskLevel: plan.RiskLow}
	passed := &plan.TestResult{TestName: "Logo", Status: plan.StatusPassed, ActualBehavior: "page at /"}
	failed := &plan.TestResult{TestName: "Logo", Status: plan.StatusFailed, Error: "boom"}

	emit := func(c *Console) {
		c.HandleEvent(&types.RunEvent{Type: types.EventTypeCaseEnd, CaseIndex: 0, CaseTotal: 2, Case: &tc, Result: passed})
		c.HandleEvent(&types.RunEvent{Type: types.EventTypeCaseEnd, CaseIndex: 1, CaseTotal: 2, Case: &tc, Result: failed})
		c.HandleEvent(types.NewSessionEvent(types.EventTypeSessionReplaced, "probe failed"))
		c.HandleEvent(types.NewErrorEvent("https://a.test", errors.New("extract failed")))
	}

	var quiet bytes.Buffer
	emit(NewConsoleWriter(LogLevelQuiet, &quiet))
	assert.NotContains(t, quiet.String(), "PASSED")
	assert.Contains(t, quiet.String(), "[2/2] FAILED Logo")
	assert.Contains(t, quiet.String(), "extract failed")
	assert.NotContains(t, quiet.String(), "probe failed")

	var normal bytes.Buffer
	emit(NewConsoleWriter(LogLevelNormal, &normal))
	assert.Contains(t, normal.String(), "[1/2] PASSED Logo")
	assert.NotContains(t, normal.String(), "page at /")

	var verbose bytes.Buffer
	emit(NewConsoleWriter(LogLevelVerbose, &verbose))
	assert.Contains(t, verbose.String(), "page at /")
	assert.Contains(t, verbose.String(), "browser session replaced: probe failed")
}

func TestConsoleSummary(t *testing.T) {
	var out bytes.Buffer
	c := NewConsoleWriter(LogLevelNormal, &out)

	c.Summary(&RunSummary{
		URL:      "https://shop.example.com",
		Duration: 3 * time.Second,
		Metrics:  RunMetrics{Totals: plan.Totals{Total: 3, Passed: 2, Failed: 1}, PromptTokens: 12345},
		Report: &plan.TestReport{
			OverallHealth: plan.HealthMajorIssues,
			CriticalBugs:  []plan.Finding{{Title: "Checkout crashes", TestName: "Checkout"}},
		},
	})

	s := out.String()
	assert.Contains(t, s, "RUN SUMMARY")
	assert.Contains(t, s, "3 total, 2 passed, 1 failed, 0 skipped")
	assert.Contains(t, s, "major-issues")
	assert.Contains(t, s, "Checkout crashes (Checkout)")
	assert.Contains(t, s, "12,345 prompt")
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "1,000", formatNumber(1000))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
}
