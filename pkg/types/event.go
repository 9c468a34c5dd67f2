package types

import (
	"time"

	"github.com/entrhq/webprobe/pkg/plan"
)

// RunEventType defines the kind of progress event emitted during a run.
type RunEventType string

const (
	EventTypeRunStart        RunEventType = "run_start"        // EventTypeRunStart indicates a target URL run has begun.
	EventTypeExtracted       RunEventType = "extracted"        // EventTypeExtracted indicates the page content was read.
	EventTypePlanReady       RunEventType = "plan_ready"       // EventTypePlanReady indicates the synthesizer returned a plan.
	EventTypeCaseStart       RunEventType = "case_start"       // EventTypeCaseStart indicates a test case is about to run.
	EventTypeCaseEnd         RunEventType = "case_end"         // EventTypeCaseEnd indicates a test case reached a terminal state.
	EventTypeSessionReplaced RunEventType = "session_replaced" // EventTypeSessionReplaced indicates the browser session was rebuilt.
	EventTypeSessionReset    RunEventType = "session_reset"    // EventTypeSessionReset indicates a periodic reset was performed.
	EventTypeTokenUsage      RunEventType = "token_usage"      // EventTypeTokenUsage indicates prompt token accounting for an LLM call.
	EventTypeReportReady     RunEventType = "report_ready"     // EventTypeReportReady indicates the reporter returned a report.
	EventTypeRunEnd          RunEventType = "run_end"          // EventTypeRunEnd indicates a target URL run has finished.
	EventTypeError           RunEventType = "error"            // EventTypeError indicates a run-level failure.
)

// RunEvent is a progress notification. Only the fields relevant to Type are set.
type RunEvent struct {
	// Type indicates the kind of event.
	Type RunEventType

	// Time is when the event was created.
	Time time.Time

	// URL is the target being tested.
	URL string

	// CaseIndex is the zero-based position of the case in the plan.
	CaseIndex int

	// CaseTotal is the number of cases in the plan.
	CaseTotal int

	// Content is a free-form message, such as a status or replacement reason.
	Content string

	// Error is set for error events.
	Error error

	// TokenUsage is set for token usage events.
	TokenUsage *TokenUsage

	// Case is set for case events.
	Case *plan.TestCase

	// Result is set for case end events.
	Result *plan.TestResult
}

// TokenUsage holds prompt size accounting for one LLM call.
type TokenUsage struct {
	// Stage names the collaborator call, "plan" or "report".
	Stage string

	// PromptTokens is the counted size of the request messages.
	PromptTokens int

	// CompletionTokens is the counted size of the reply.
	CompletionTokens int
}

// NewRunEvent creates an event of the given type stamped with the current time.
func NewRunEvent(eventType RunEventType, url string) *RunEvent {
	return &RunEvent{Type: eventType, URL: url, Time: time.Now()}
}

// NewCaseEvent creates a case start or end event.
func NewCaseEvent(eventType RunEventType, url string, index, total int, content string) *RunEvent {
	e := NewRunEvent(eventType, url)
	e.CaseIndex = index
	e.CaseTotal = total
	e.Content = content
	return e
}

// NewSessionEvent creates a session replacement or reset event.
func NewSessionEvent(eventType RunEventType, reason string) *RunEvent {
	e := NewRunEvent(eventType, "")
	e.Content = reason
	return e
}

// NewTokenUsageEvent creates a token usage event.
func NewTokenUsageEvent(stage string, prompt, completion int) *RunEvent {
	e := NewRunEvent(EventTypeTokenUsage, "")
	e.TokenUsage = &TokenUsage{Stage: stage, PromptTokens: prompt, CompletionTokens: completion}
	return e
}

// NewErrorEvent creates an error event.
func NewErrorEvent(url string, err error) *RunEvent {
	e := NewRunEvent(EventTypeError, url)
	e.Error = err
	return e
}

// IsCaseEvent reports whether the event concerns a single test case.
func (e *RunEvent) IsCaseEvent() bool {
	return e.Type == EventTypeCaseStart || e.Type == EventTypeCaseEnd
}
