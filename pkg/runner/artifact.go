package runner

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/entrhq/webprobe/pkg/plan"
)

// RunSummary is the complete record of one target run.
type RunSummary struct {
	RunID     string            `json:"run_id"`
	URL       string            `json:"url"`
	Status    string            `json:"status"`
	Error     string            `json:"error,omitempty"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`
	Duration  time.Duration     `json:"duration"`
	Plan      *plan.TestPlan    `json:"plan,omitempty"`
	Results   []plan.TestResult `json:"results"`
	Report    *plan.TestReport  `json:"report,omitempty"`
	Gates     *GateResults      `json:"gates,omitempty"`
	Metrics   RunMetrics        `json:"metrics"`
}

// Passed reports whether the run completed and every required gate passed.
func (s *RunSummary) Passed() bool {
	if s.Status != statusCompleted {
		return false
	}
	return s.Gates == nil || s.Gates.AllPassed
}

// RunMetrics contains run metrics
type RunMetrics struct {
	Totals              plan.Totals `json:"totals"`
	DurationMs          int64       `json:"duration_ms"`
	PromptTokens        int         `json:"prompt_tokens"`
	CompletionTokens    int         `json:"completion_tokens"`
	SessionReplacements int         `json:"session_replacements"`
	SessionResets       int         `json:"session_resets"`
}

// ArtifactWriter handles writing run artifacts
type ArtifactWriter struct {
	outputDir string
	config    ArtifactConfig
}

// NewArtifactWriter creates a new artifact writer
func NewArtifactWriter(outputDir string, config ArtifactConfig) *ArtifactWriter {
	return &ArtifactWriter{
		outputDir: outputDir,
		config:    config,
	}
}

// Dir returns the directory artifacts for summary are written to.
func (w *ArtifactWriter) Dir(summary *RunSummary) string {
	return filepath.Join(w.outputDir, summary.StartTime.UTC().Format("20060102-150405")+"-"+slug(summary.URL))
}

// WriteAll writes all configured artifact formats and returns the directory.
func (w *ArtifactWriter) WriteAll(summary *RunSummary) (string, error) {
	dir := w.Dir(summary)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if w.config.JSON {
		if err := writeJSON(filepath.Join(dir, "results.json"), summary.Results); err != nil {
			return dir, fmt.Errorf("failed to write results JSON: %w", err)
		}
		if summary.Plan != nil {
			if err := writeJSON(filepath.Join(dir, "plan.json"), summary.Plan); err != nil {
				return dir, fmt.Errorf("failed to write plan JSON: %w", err)
			}
		}
		if summary.Report != nil {
			if err := writeJSON(filepath.Join(dir, "report.json"), summary.Report); err != nil {
				return dir, fmt.Errorf("failed to write report JSON: %w", err)
			}
		}
	}

	if w.config.Markdown {
		if err := w.WriteSummaryMarkdown(dir, summary); err != nil {
			return dir, fmt.Errorf("failed to write summary markdown: %w", err)
		}
	}

	if w.config.Metrics {
		if err := writeJSON(filepath.Join(dir, "metrics.json"), summary.Metrics); err != nil {
			return dir, fmt.Errorf("failed to write metrics JSON: %w", err)
		}
	}

	return dir, nil
}

// WriteGates writes gates.json next to the other artifacts.
func (w *ArtifactWriter) WriteGates(summary *RunSummary) error {
	if !w.config.JSON || summary.Gates == nil {
		return nil
	}
	dir := w.Dir(summary)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, "gates.json"), summary.Gates); err != nil {
		return fmt.Errorf("failed to write gates JSON: %w", err)
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if writeErr := os.WriteFile(path, data, 0600); writeErr != nil {
		return writeErr
	}
	return nil
}

// WriteSummaryMarkdown writes a human-readable markdown summary
func (w *ArtifactWriter) WriteSummaryMarkdown(dir string, summary *RunSummary) error {
	path := filepath.Join(dir, "summary.md")

	var md strings.Builder

	md.WriteString("# Webprobe Test Run\n\n")
	md.WriteString(fmt.Sprintf("**URL:** %s\n\n", summary.URL))
	md.WriteString(fmt.Sprintf("**Status:** %s\n\n", summary.Status))
	md.WriteString(fmt.Sprintf("**Started:** %s\n\n", summary.StartTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", summary.Duration.Round(time.Millisecond)))

	if summary.Error != "" {
		md.WriteString(fmt.Sprintf("❌ **Error:** %s\n\n", summary.Error))
	}

	if summary.Report != nil {
		r := summary.Report
		md.WriteString("## Report\n\n")
		md.WriteString(fmt.Sprintf("**Overall health:** %s\n\n", r.OverallHealth))
		if r.RiskAssessment != "" {
			md.WriteString(r.RiskAssessment + "\n\n")
		}
		writeFindings(&md, "Critical Bugs", r.CriticalBugs)
		writeFindings(&md, "Minor Issues", r.MinorIssues)
		writeList(&md, "Working Features", r.WorkingFeatures)
		writeList(&md, "Recommendations", r.Recommendations)
	}

	if len(summary.Results) > 0 {
		md.WriteString("## Results\n\n")
		md.WriteString("| # | Test | Risk | Status | Details |\n")
		md.WriteString("|---|------|------|--------|---------|\n")
		for i, res := range summary.Results {
			details := res.ActualBehavior
			if res.Error != "" {
				details = res.Error
			}
			md.WriteString(fmt.Sprintf("| %d | %s | %s | %s %s | %s |\n",
				i+1, cell(res.TestName), res.RiskLevel, statusIcon(res.Status), res.Status, cell(details)))
		}
		md.WriteString("\n")
	}

	t := summary.Metrics.Totals
	md.WriteString("## Metrics\n\n")
	md.WriteString(fmt.Sprintf("- **Total:** %d\n", t.Total))
	md.WriteString(fmt.Sprintf("- **Passed:** %d\n", t.Passed))
	md.WriteString(fmt.Sprintf("- **Failed:** %d\n", t.Failed))
	md.WriteString(fmt.Sprintf("- **Skipped:** %d\n", t.Skipped))
	md.WriteString(fmt.Sprintf("- **Session replacements:** %d\n", summary.Metrics.SessionReplacements))
	md.WriteString(fmt.Sprintf("- **Tokens:** %d prompt, %d completion\n", summary.Metrics.PromptTokens, summary.Metrics.CompletionTokens))

	if writeErr := os.WriteFile(path, []byte(md.String()), 0600); writeErr != nil {
		return fmt.Errorf("failed to write summary markdown: %w", writeErr)
	}

	return nil
}

func writeFindings(md *strings.Builder, title string, findings []plan.Finding) {
	if len(findings) == 0 {
		return
	}
	md.WriteString(fmt.Sprintf("### %s\n\n", title))
	for _, f := range findings {
		md.WriteString("- **" + f.Title + "**")
		if f.Severity != "" {
			md.WriteString(fmt.Sprintf(" (%s)", f.Severity))
		}
		if f.TestName != "" {
			md.WriteString(fmt.Sprintf(" in `%s`", f.TestName))
		}
		if f.Description != "" {
			md.WriteString(": " + f.Description)
		}
		md.WriteString("\n")
	}
	md.WriteString("\n")
}

func writeList(md *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	md.WriteString(fmt.Sprintf("### %s\n\n", title))
	for _, item := range items {
		md.WriteString("- " + item + "\n")
	}
	md.WriteString("\n")
}

func statusIcon(s plan.Status) string {
	switch s {
	case plan.StatusPassed:
		return "✅"
	case plan.StatusFailed:
		return "❌"
	default:
		return "⏭"
	}
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// slug turns a URL into a directory-safe name.
func slug(raw string) string {
	name := raw
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		name = u.Host + u.Path
	}
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if s == "" {
		return "target"
	}
	if len(s) > 60 {
		s = strings.TrimRight(s[:60], "-")
	}
	return s
}
