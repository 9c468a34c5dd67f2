package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/entrhq/webprobe/pkg/plan"
)

// defaultGateTimeout bounds a command gate.
const defaultGateTimeout = 5 * time.Minute

// Gate is a pass/fail check over a finished run, used to decide the
// process exit status in CI.
type Gate interface {
	// Name returns the name of the gate
	Name() string

	// Required returns true if failure should fail the run
	Required() bool

	// Check returns an error if the run does not meet the gate
	Check(ctx context.Context, summary *RunSummary) error
}

// GateConfig configures the gates applied to every run.
type GateConfig struct {
	// MaxFailures is the number of FAILED cases tolerated. Negative disables the gate.
	MaxFailures int `yaml:"max_failures" json:"max_failures"`

	// MaxSkipped is the number of SKIPPED cases tolerated. Negative disables the gate.
	MaxSkipped int `yaml:"max_skipped" json:"max_skipped"`

	// FailOnHealth lists report verdicts that fail the run.
	FailOnHealth []plan.Health `yaml:"fail_on_health" json:"fail_on_health"`

	// Commands run after artifacts are written, in the artifact directory.
	Commands []CommandGateConfig `yaml:"commands" json:"commands"`
}

// CommandGateConfig defines an external check.
type CommandGateConfig struct {
	Name     string        `yaml:"name" json:"name"`
	Command  string        `yaml:"command" json:"command"`
	Required bool          `yaml:"required" json:"required"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultGateConfig fails a run on any failed case or a critical report.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MaxFailures:  0,
		MaxSkipped:   -1,
		FailOnHealth: []plan.Health{plan.HealthCritical},
	}
}

// Validate checks health names and command gates.
func (c GateConfig) Validate() error {
	for _, h := range c.FailOnHealth {
		if !h.Valid() {
			return fmt.Errorf("invalid fail_on_health value: %s", h)
		}
	}
	for i, cmd := range c.Commands {
		if strings.TrimSpace(cmd.Command) == "" {
			return fmt.Errorf("command gate %d has an empty command", i)
		}
		if cmd.Timeout < 0 {
			return fmt.Errorf("command gate %d timeout cannot be negative", i)
		}
	}
	return nil
}

// CreateGates builds the gates described by c.
func CreateGates(c GateConfig) []Gate {
	var gates []Gate
	if c.MaxFailures >= 0 {
		gates = append(gates, &CountGate{name: "max_failures", status: plan.StatusFailed, max: c.MaxFailures})
	}
	if c.MaxSkipped >= 0 {
		gates = append(gates, &CountGate{name: "max_skipped", status: plan.StatusSkipped, max: c.MaxSkipped})
	}
	if len(c.FailOnHealth) > 0 {
		gates = append(gates, &HealthGate{failOn: c.FailOnHealth})
	}
	for i, cmd := range c.Commands {
		name := cmd.Name
		if name == "" {
			name = fmt.Sprintf("command-%d", i+1)
		}
		gates = append(gates, NewCommandGate(name, cmd.Command, cmd.Required, cmd.Timeout))
	}
	return gates
}

// CountGate limits the number of cases with one status.
type CountGate struct {
	name   string
	status plan.Status
	max    int
}

// Name returns the name of the gate
func (g *CountGate) Name() string { return g.name }

// Required returns true
func (g *CountGate) Required() bool { return true }

// Check counts results with the gate's status.
func (g *CountGate) Check(ctx context.Context, summary *RunSummary) error {
	n := 0
	for _, r := range summary.Results {
		if r.Status == g.status {
			n++
		}
	}
	if n > g.max {
		return fmt.Errorf("%d %s cases, at most %d allowed", n, g.status, g.max)
	}
	return nil
}

// HealthGate fails when the report verdict is one of failOn. A run
// without a report passes; the run error already covers it.
type HealthGate struct {
	failOn []plan.Health
}

// Name returns the name of the gate
func (g *HealthGate) Name() string { return "report_health" }

// Required returns true
func (g *HealthGate) Required() bool { return true }

// Check compares the report verdict.
func (g *HealthGate) Check(ctx context.Context, summary *RunSummary) error {
	if summary.Report == nil {
		return nil
	}
	for _, h := range g.failOn {
		if summary.Report.OverallHealth == h {
			return fmt.Errorf("overall health is %s", h)
		}
	}
	return nil
}

// CommandGate executes a command with the artifact directory as its
// working directory and WEBPROBE_URL / WEBPROBE_STATUS in its environment.
type CommandGate struct {
	name     string
	command  string
	required bool
	timeout  time.Duration
	dir      func(*RunSummary) string
}

// NewCommandGate creates a new command-based gate
func NewCommandGate(name, command string, required bool, timeout time.Duration) *CommandGate {
	if timeout <= 0 {
		timeout = defaultGateTimeout
	}
	return &CommandGate{
		name:     name,
		command:  command,
		required: required,
		timeout:  timeout,
	}
}

// Name returns the name of the gate
func (g *CommandGate) Name() string { return g.name }

// Required returns true if failure should fail the run
func (g *CommandGate) Required() bool { return g.required }

// Check runs the command.
func (g *CommandGate) Check(ctx context.Context, summary *RunSummary) error {
	execCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	parts := strings.Fields(g.command)
	if len(parts) == 0 {
		return fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(execCtx, parts[0], parts[1:]...)
	if g.dir != nil {
		cmd.Dir = g.dir(summary)
	}
	cmd.Env = append(os.Environ(),
		"WEBPROBE_URL="+summary.URL,
		"WEBPROBE_STATUS="+summary.Status,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return &GateError{
			GateName: g.name,
			Command:  g.command,
			Output:   string(output),
			Err:      err,
		}
	}
	return nil
}

// GateError represents a command gate failure
type GateError struct {
	GateName string
	Command  string
	Output   string
	Err      error
}

func (e *GateError) Error() string {
	msg := fmt.Sprintf("gate '%s' failed: %v", e.GateName, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

// Unwrap returns the underlying error
func (e *GateError) Unwrap() error {
	return e.Err
}

// GateResults contains results from running gates
type GateResults struct {
	AllPassed bool         `json:"all_passed"`
	Results   []GateResult `json:"results"`
}

// GateResult represents the result of a single gate
type GateResult struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Passed   bool   `json:"passed"`
	Error    string `json:"error,omitempty"`
}

// RunGates checks every gate against summary. AllPassed is false only
// when a required gate fails.
func RunGates(ctx context.Context, gates []Gate, summary *RunSummary) *GateResults {
	results := &GateResults{
		AllPassed: true,
		Results:   make([]GateResult, 0, len(gates)),
	}

	for _, gate := range gates {
		result := GateResult{Name: gate.Name(), Required: gate.Required(), Passed: true}
		if err := gate.Check(ctx, summary); err != nil {
			result.Passed = false
			result.Error = err.Error()
			if gate.Required() {
				results.AllPassed = false
			}
		}
		results.Results = append(results.Results, result)
	}
	return results
}

// Failed returns the failed required gates
func (r *GateResults) Failed() []GateResult {
	failed := make([]GateResult, 0)
	for _, result := range r.Results {
		if result.Required && !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}

// FormatErrorMessage creates a formatted message for failed gates
func (r *GateResults) FormatErrorMessage() string {
	failed := r.Failed()
	if len(failed) == 0 {
		return ""
	}

	var msg strings.Builder
	msg.WriteString("Gate failures:\n")
	for _, result := range failed {
		msg.WriteString(fmt.Sprintf("  ✗ %s", result.Name))
		if result.Error != "" {
			msg.WriteString(": " + result.Error)
		}
		msg.WriteString("\n")
	}
	return msg.String()
}
