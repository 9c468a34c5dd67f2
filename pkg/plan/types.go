// Package plan defines the data contracts shared by the extractor, the plan
// synthesizer, the executor and the bug reporter.
package plan

import (
	"encoding/json"
	"fmt"
	"time"
)

// RiskLevel ranks how much damage a broken feature would cause.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether r is one of the known risk levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Status is the terminal classification of a test case.
type Status string

const (
	StatusPassed  Status = "PASSED"
	StatusFailed  Status = "FAILED"
	StatusSkipped Status = "SKIPPED"
)

// Health is the overall verdict in a TestReport.
type Health string

const (
	HealthHealthy     Health = "healthy"
	HealthMinorIssues Health = "minor-issues"
	HealthMajorIssues Health = "major-issues"
	HealthCritical    Health = "critical"
)

// Valid reports whether h is one of the known health values.
func (h Health) Valid() bool {
	switch h {
	case HealthHealthy, HealthMinorIssues, HealthMajorIssues, HealthCritical:
		return true
	}
	return false
}

// TestCase is a single planned interaction. Values are never mutated after
// the synthesizer returns them.
type TestCase struct {
	Name             string    `json:"name"`
	Action           string    `json:"action"`
	ExpectedBehavior string    `json:"expectedBehavior"`
	RiskLevel        RiskLevel `json:"riskLevel"`
	ElementSelector  string    `json:"elementSelector"`
}

// TestPlan is the synthesizer's output.
type TestPlan struct {
	WebsiteType             string     `json:"websiteType"`
	CriticalFunctionalities []string   `json:"criticalFunctionalities"`
	TestCases               []TestCase `json:"testCases"`
	PotentialIssues         []string   `json:"potentialIssues"`
}

// TestResult records the outcome of exactly one TestCase.
type TestResult struct {
	TestName       string        `json:"testName"`
	Action         string        `json:"action"`
	Status         Status        `json:"status"`
	Error          string        `json:"error,omitempty"`
	ActualBehavior string        `json:"actualBehavior"`
	RiskLevel      RiskLevel     `json:"riskLevel"`
	FinalURL       string        `json:"finalUrl,omitempty"`
	Screenshot     string        `json:"screenshot,omitempty"`
	Duration       time.Duration `json:"durationNs"`
}

// BaselineState is captured immediately before a case's action runs.
type BaselineState struct {
	Title         string `json:"title"`
	ContentLength int    `json:"contentLength"`
	HasRealErrors bool   `json:"hasRealErrors"`
	// Reason names the signal that set HasRealErrors.
	Reason string `json:"reason,omitempty"`
}

// Totals is the tally block of a TestReport.
type Totals struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Finding is one bug or issue listed in a report.
type Finding struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    RiskLevel `json:"severity,omitempty"`
	TestName    string    `json:"testName,omitempty"`
}

// TestReport is the bug reporter's output.
type TestReport struct {
	OverallHealth   Health    `json:"overallHealth"`
	Totals          Totals    `json:"totals"`
	CriticalBugs    []Finding `json:"criticalBugs"`
	MinorIssues     []Finding `json:"minorIssues"`
	WorkingFeatures []string  `json:"workingFeatures"`
	Recommendations []string  `json:"recommendations"`
	RiskAssessment  string    `json:"riskAssessment"`
}

// PageSnapshot is what the extractor reads back from a loaded page.
type PageSnapshot struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	HTML       string `json:"html"`
	Text       string `json:"text"`
	StatusCode int    `json:"statusCode,omitempty"`
}

// Tally counts results by status. Skipped cases are never counted as failed.
func Tally(results []TestResult) Totals {
	t := Totals{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusPassed:
			t.Passed++
		case StatusFailed:
			t.Failed++
		case StatusSkipped:
			t.Skipped++
		}
	}
	return t
}

// String renders the tally the way progress output prints it.
func (t Totals) String() string {
	return fmt.Sprintf("%d total, %d passed, %d failed, %d skipped", t.Total, t.Passed, t.Failed, t.Skipped)
}

// UnmarshalJSON accepts either a bare string or a full object. Reporters
// commonly list minor issues as plain sentences.
func (f *Finding) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = Finding{Title: s}
		return nil
	}
	type raw Finding
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("finding: %w", err)
	}
	*f = Finding(r)
	return nil
}
