package runner

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/webprobe/pkg/plan"
	"github.com/entrhq/webprobe/pkg/types"
)

// LogLevel represents the console verbosity level
type LogLevel int

const (
	// LogLevelQuiet shows only errors, warnings and the final summary
	LogLevelQuiet LogLevel = iota
	// LogLevelNormal shows one line per test case (default)
	LogLevelNormal
	// LogLevelVerbose adds actual behavior and session events
	LogLevelVerbose
	// LogLevelDebug shows all internal details for debugging
	LogLevelDebug
)

// ParseLogLevel converts a verbosity name to LogLevel. Unknown names map to normal.
func ParseLogLevel(level string) LogLevel {
	switch level {
	case "quiet":
		return LogLevelQuiet
	case "verbose":
		return LogLevelVerbose
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelNormal
	}
}

// Color palette shared by every console style.
var (
	salmonPink   = lipgloss.Color("#FFB3BA")
	mintGreen    = lipgloss.Color("#A8E6CF")
	butterYellow = lipgloss.Color("#FFE5A3")
	mutedGray    = lipgloss.Color("#6B7280")
	brightWhite  = lipgloss.Color("#F9FAFB")
)

// Console prints run progress for people watching a terminal or CI log.
type Console struct {
	level  LogLevel
	writer io.Writer

	header  lipgloss.Style
	section lipgloss.Style
	info    lipgloss.Style
	muted   lipgloss.Style
	pass    lipgloss.Style
	fail    lipgloss.Style
	skip    lipgloss.Style
}

// NewConsole creates a console writing to stdout.
func NewConsole(level LogLevel) *Console {
	return NewConsoleWriter(level, os.Stdout)
}

// NewConsoleWriter creates a console writing to w. Colors are chosen for
// w's terminal capabilities and dropped when w is not a terminal.
func NewConsoleWriter(level LogLevel, w io.Writer) *Console {
	r := lipgloss.NewRenderer(w)
	return &Console{
		level:   level,
		writer:  w,
		header:  r.NewStyle().Foreground(brightWhite).Bold(true),
		section: r.NewStyle().Foreground(salmonPink).Bold(true),
		info:    r.NewStyle().Foreground(salmonPink),
		muted:   r.NewStyle().Foreground(mutedGray),
		pass:    r.NewStyle().Foreground(mintGreen).Bold(true),
		fail:    r.NewStyle().Foreground(salmonPink).Bold(true),
		skip:    r.NewStyle().Foreground(butterYellow).Bold(true),
	}
}

// Level returns the configured verbosity.
func (c *Console) Level() LogLevel {
	return c.level
}

// Header prints a prominent header message
func (c *Console) Header(message string) {
	if c.level >= LogLevelNormal {
		rule := strings.Repeat("=", 70)
		fmt.Fprintf(c.writer, "\n%s\n%s\n%s\n", c.header.Render(rule), c.header.Render("  "+message), c.header.Render(rule))
	}
}

// Section prints a section divider
func (c *Console) Section(title string) {
	if c.level >= LogLevelNormal {
		fmt.Fprintln(c.writer)
		fmt.Fprintln(c.writer, c.section.Render("▶ "+title))
		fmt.Fprintln(c.writer, c.muted.Render(strings.Repeat("─", 50)))
	}
}

// Successf prints a success message with checkmark
func (c *Console) Successf(format string, args ...interface{}) {
	if c.level >= LogLevelNormal {
		fmt.Fprintln(c.writer, c.pass.Render("✓ "+fmt.Sprintf(format, args...)))
	}
}

// Infof prints an informational message
func (c *Console) Infof(format string, args ...interface{}) {
	if c.level >= LogLevelNormal {
		fmt.Fprintln(c.writer, c.info.Render(fmt.Sprintf(format, args...)))
	}
}

// Warningf prints a warning message
func (c *Console) Warningf(format string, args ...interface{}) {
	fmt.Fprintln(c.writer, c.skip.Render("⚠ Warning: "+fmt.Sprintf(format, args...)))
}

// Errorf prints an error message
func (c *Console) Errorf(format string, args ...interface{}) {
	fmt.Fprintln(c.writer, c.fail.Render("✗ Error: "+fmt.Sprintf(format, args...)))
}

// Verbosef prints detailed information (only in verbose mode)
func (c *Console) Verbosef(format string, args ...interface{}) {
	if c.level >= LogLevelVerbose {
		fmt.Fprintln(c.writer, c.muted.Render("→ "+fmt.Sprintf(format, args...)))
	}
}

// Debugf prints debug information (only in debug mode)
func (c *Console) Debugf(format string, args ...interface{}) {
	if c.level >= LogLevelDebug {
		fmt.Fprintln(c.writer, c.muted.Render("[DEBUG] "+fmt.Sprintf(format, args...)))
	}
}

// CaseLine renders the telemetry line for one finished case.
func CaseLine(index, total int, tc plan.TestCase, r plan.TestResult) string {
	parts := []string{
		fmt.Sprintf("[%d/%d] %s %s", index+1, total, r.Status, tc.Name),
		"action: " + tc.Action,
		"expected: " + tc.ExpectedBehavior,
		"risk: " + string(tc.RiskLevel),
	}
	if r.Error != "" {
		parts = append(parts, "error: "+r.Error)
	}
	return strings.Join(parts, " | ")
}

// CaseResult prints the telemetry line for a finished case.
func (c *Console) CaseResult(index, total int, tc plan.TestCase, r plan.TestResult) {
	style := c.pass
	switch r.Status {
	case plan.StatusFailed:
		style = c.fail
	case plan.StatusSkipped:
		style = c.skip
	}

	// Failures are printed even when quiet.
	if c.level < LogLevelNormal && r.Status != plan.StatusFailed {
		return
	}
	fmt.Fprintln(c.writer, style.Render(CaseLine(index, total, tc, r)))
	if c.level >= LogLevelVerbose && r.ActualBehavior != "" {
		fmt.Fprintln(c.writer, c.muted.Render("    "+r.ActualBehavior))
	}
}

// HandleEvent prints progress for a run event.
func (c *Console) HandleEvent(ev *types.RunEvent) {
	switch ev.Type {
	case types.EventTypeRunStart:
		c.Section("Testing " + ev.URL)
	case types.EventTypeExtracted:
		c.Verbosef("extracted %s", ev.Content)
	case types.EventTypePlanReady:
		c.Infof("%s", ev.Content)
	case types.EventTypeCaseStart:
		if ev.Case != nil {
			c.Debugf("case %d/%d started: %s", ev.CaseIndex+1, ev.CaseTotal, ev.Case.Name)
		}
	case types.EventTypeCaseEnd:
		if ev.Case != nil && ev.Result != nil {
			c.CaseResult(ev.CaseIndex, ev.CaseTotal, *ev.Case, *ev.Result)
		}
	case types.EventTypeSessionReplaced:
		c.Verbosef("browser session replaced: %s", ev.Content)
	case types.EventTypeSessionReset:
		c.Verbosef("periodic reset: %s", ev.Content)
	case types.EventTypeTokenUsage:
		if ev.TokenUsage != nil {
			c.Debugf("%s tokens: %s prompt, %s completion", ev.TokenUsage.Stage,
				formatNumber(ev.TokenUsage.PromptTokens), formatNumber(ev.TokenUsage.CompletionTokens))
		}
	case types.EventTypeReportReady:
		c.Successf("%s", ev.Content)
	case types.EventTypeError:
		c.Errorf("%v", ev.Error)
	}
}

// Summary prints the final summary of one target run.
func (c *Console) Summary(s *RunSummary) {
	rule := strings.Repeat("=", 70)
	fmt.Fprintln(c.writer)
	fmt.Fprintln(c.writer, c.header.Render(rule))
	fmt.Fprintln(c.writer, c.header.Render("  RUN SUMMARY"))
	fmt.Fprintln(c.writer, c.header.Render(rule))

	fmt.Fprintf(c.writer, "  URL: %s\n", s.URL)
	fmt.Fprintf(c.writer, "  Duration: %s\n", s.Duration.Round(time.Second))
	fmt.Fprintf(c.writer, "  Cases: %s\n", s.Metrics.Totals)

	if s.Report != nil {
		fmt.Fprintf(c.writer, "  Health: %s\n", c.healthStyle(s.Report.OverallHealth).Render(string(s.Report.OverallHealth)))
		c.printFindings("Critical bugs", s.Report.CriticalBugs, c.fail)
		if c.level >= LogLevelNormal {
			c.printFindings("Minor issues", s.Report.MinorIssues, c.skip)
		}
		if c.level >= LogLevelVerbose && len(s.Report.Recommendations) > 0 {
			fmt.Fprintln(c.writer, "\n  Recommendations:")
			for _, rec := range s.Report.Recommendations {
				fmt.Fprintf(c.writer, "    • %s\n", rec)
			}
		}
	}

	if s.Metrics.PromptTokens > 0 {
		fmt.Fprintf(c.writer, "  Tokens: %s prompt, %s completion\n",
			formatNumber(s.Metrics.PromptTokens), formatNumber(s.Metrics.CompletionTokens))
	}

	if s.Gates != nil && len(s.Gates.Results) > 0 {
		if s.Gates.AllPassed {
			fmt.Fprintf(c.writer, "  Gates: %s\n", c.pass.Render("passed"))
		} else {
			fmt.Fprintf(c.writer, "  Gates: %s\n", c.fail.Render("failed"))
			for _, g := range s.Gates.Failed() {
				fmt.Fprintln(c.writer, c.fail.Render("    ✗ "+g.Name+": "+g.Error))
			}
		}
	}

	if s.Error != "" {
		fmt.Fprintln(c.writer)
		fmt.Fprintln(c.writer, c.fail.Render("  Error Details:"))
		fmt.Fprintf(c.writer, "    %s\n", s.Error)
	}

	fmt.Fprintln(c.writer, c.header.Render(rule))
	fmt.Fprintln(c.writer)
}

func (c *Console) printFindings(title string, findings []plan.Finding, style lipgloss.Style) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintf(c.writer, "\n  %s:\n", title)
	for _, f := range findings {
		line := "    • " + f.Title
		if f.TestName != "" {
			line += " (" + f.TestName + ")"
		}
		fmt.Fprintln(c.writer, style.Render(line))
		if c.level >= LogLevelVerbose && f.Description != "" {
			fmt.Fprintln(c.writer, c.muted.Render("      "+f.Description))
		}
	}
}

func (c *Console) healthStyle(h plan.Health) lipgloss.Style {
	switch h {
	case plan.HealthHealthy:
		return c.pass
	case plan.HealthMinorIssues:
		return c.skip
	default:
		return c.fail
	}
}

// formatNumber formats large numbers with commas for readability
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}
