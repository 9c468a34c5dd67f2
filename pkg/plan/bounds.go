package plan

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxHTMLChars is how much of the DOM serialization reaches the synthesizer.
	MaxHTMLChars = 30000

	// MaxTextChars is how much of the visible text reaches the synthesizer.
	MaxTextChars = 10000
)

// Truncate returns the first n runes of s. Counting runes instead of bytes
// keeps multi-byte text intact and makes the cut point reproducible.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// Bounded returns a copy of the snapshot with HTML and Text cut to the
// given limits. Zero limits fall back to MaxHTMLChars and MaxTextChars.
func (p PageSnapshot) Bounded(maxHTML, maxText int) PageSnapshot {
	if maxHTML <= 0 {
		maxHTML = MaxHTMLChars
	}
	if maxText <= 0 {
		maxText = MaxTextChars
	}
	p.HTML = Truncate(p.HTML, maxHTML)
	p.Text = Truncate(p.Text, maxText)
	return p
}

// Validate checks the fields the executor depends on.
func (p *TestPlan) Validate() error {
	if p == nil {
		return errors.New("plan is empty")
	}
	if strings.TrimSpace(p.WebsiteType) == "" {
		return errors.New("websiteType is required")
	}
	if len(p.TestCases) == 0 {
		return errors.New("testCases must contain at least one case")
	}
	for i, tc := range p.TestCases {
		if strings.TrimSpace(tc.Name) == "" {
			return fmt.Errorf("testCases[%d]: name is required", i)
		}
		if strings.TrimSpace(tc.Action) == "" {
			return fmt.Errorf("testCases[%d] %q: action is required", i, tc.Name)
		}
		if !tc.RiskLevel.Valid() {
			return fmt.Errorf("testCases[%d] %q: invalid riskLevel %q", i, tc.Name, tc.RiskLevel)
		}
	}
	return nil
}

// Validate checks enum fields only; classification content is taken as given.
func (r *TestReport) Validate() error {
	if r == nil {
		return errors.New("report is empty")
	}
	if !r.OverallHealth.Valid() {
		return fmt.Errorf("invalid overallHealth %q", r.OverallHealth)
	}
	for i, f := range r.CriticalBugs {
		if f.Severity != "" && !f.Severity.Valid() {
			return fmt.Errorf("criticalBugs[%d]: invalid severity %q", i, f.Severity)
		}
	}
	for i, f := range r.MinorIssues {
		if f.Severity != "" && !f.Severity.Valid() {
			return fmt.Errorf("minorIssues[%d]: invalid severity %q", i, f.Severity)
		}
	}
	return nil
}
