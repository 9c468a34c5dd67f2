package plan

import (
	"errors"
	"fmt"
)

var (
	// ErrNavigation is returned when the extractor cannot bring the target
	// page to a loaded state. It aborts the run.
	ErrNavigation = errors.New("navigation failed")

	// ErrSynthesis is returned when a language-model collaborator fails or
	// answers with something that does not decode into a valid schema.
	ErrSynthesis = errors.New("synthesis failed")

	// ErrActionTimeout marks a case action that exceeded its bound.
	ErrActionTimeout = errors.New("action timed out")

	// ErrSessionCrashed marks a failed liveness probe.
	ErrSessionCrashed = errors.New("browser session crashed")

	// ErrRecoveryFailed marks a reload after timeout that did not succeed.
	ErrRecoveryFailed = errors.New("session recovery failed")
)

// NavigationError carries the URL the extractor failed to load.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

// Unwrap lets errors.Is match both ErrNavigation and the driver error.
func (e *NavigationError) Unwrap() []error {
	return []error{ErrNavigation, e.Err}
}

// SynthesisError names the collaborator call that failed.
type SynthesisError struct {
	Stage string // "plan" or "report"
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("%s synthesis failed: %v", e.Stage, e.Err)
}

func (e *SynthesisError) Unwrap() []error {
	return []error{ErrSynthesis, e.Err}
}
