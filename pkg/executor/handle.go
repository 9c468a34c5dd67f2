package executor

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoSession is returned by Current when the last rebuild failed.
var ErrNoSession = errors.New("no live browser session")

// SessionHandle owns the single live session. Replace is the only way to
// swap it; exactly one session is referenced at any instant.
type SessionHandle struct {
	mu           sync.Mutex
	factory      SessionFactory
	current      Session
	generation   int
	closeTimeout time.Duration
	onDiscard    func(err error)
}

// NewSessionHandle builds the first session.
func NewSessionHandle(factory SessionFactory, closeTimeout time.Duration) (*SessionHandle, error) {
	s, err := factory.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create browser session: %w", err)
	}
	return &SessionHandle{
		factory:      factory,
		current:      s,
		generation:   1,
		closeTimeout: closeTimeout,
	}, nil
}

// Current returns the live session.
func (h *SessionHandle) Current() (Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return nil, ErrNoSession
	}
	return h.current, nil
}

// Generation counts sessions built so far, starting at 1.
func (h *SessionHandle) Generation() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.generation
}

// Replace discards the current session and installs a new one. The old
// session is closed best-effort in the background with a bounded wait; its
// close error only reaches the discard hook. If the new session cannot be
// built the handle is left empty and the error is returned.
func (h *SessionHandle) Replace() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	old := h.current
	h.current = nil
	if old != nil {
		h.discard(old)
	}

	s, err := h.factory.NewSession()
	if err != nil {
		return fmt.Errorf("failed to rebuild browser session: %w", err)
	}
	h.current = s
	h.generation++
	return nil
}

func (h *SessionHandle) discard(s Session) {
	done := make(chan error, 1)
	go func() { done <- s.Close() }()

	if h.closeTimeout <= 0 {
		return
	}
	select {
	case err := <-done:
		if err != nil && h.onDiscard != nil {
			h.onDiscard(err)
		}
	case <-time.After(h.closeTimeout):
		if h.onDiscard != nil {
			h.onDiscard(fmt.Errorf("close did not finish within %s", h.closeTimeout))
		}
	}
}

// Close releases the live session. The handle is unusable afterwards.
func (h *SessionHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return nil
	}
	err := h.current.Close()
	h.current = nil
	return err
}

// OnDiscard registers a hook that receives close failures of discarded sessions.
func (h *SessionHandle) OnDiscard(fn func(err error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDiscard = fn
}
