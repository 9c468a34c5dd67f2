package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/webprobe/pkg/plan"
)

// SessionSource creates sessions for the extractor.
type SessionSource interface {
	NewSession() (*Session, error)
}

// Extractor loads a page in a disposable session and reads it back.
type Extractor struct {
	source      SessionSource
	loadTimeout time.Duration
	idleWait    time.Duration
}

// NewExtractor creates an extractor. loadTimeout bounds the wait for the
// load event; idleWait bounds the best-effort wait for network idle.
func NewExtractor(source SessionSource, loadTimeout, idleWait time.Duration) *Extractor {
	if loadTimeout <= 0 {
		loadTimeout = DefaultTimeout
	}
	if idleWait <= 0 {
		idleWait = DefaultIdleWait
	}
	return &Extractor{source: source, loadTimeout: loadTimeout, idleWait: idleWait}
}

// Extract returns the DOM serialization and visible text of url. The
// session is closed on every path. A page that does not load in time
// yields a *plan.NavigationError.
func (e *Extractor) Extract(ctx context.Context, url string) (*plan.PageSnapshot, error) {
	session, err := e.source.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start extraction session: %w", err)
	}
	defer session.Close()

	type result struct {
		snap *plan.PageSnapshot
		err  error
	}
	done := make(chan result, 1)

	go func() {
		snap, err := e.read(session, url)
		done <- result{snap: snap, err: err}
	}()

	select {
	case r := <-done:
		return r.snap, r.err
	case <-ctx.Done():
		return nil, &plan.NavigationError{URL: url, Err: ctx.Err()}
	}
}

func (e *Extractor) read(session *Session, url string) (*plan.PageSnapshot, error) {
	status, err := session.Navigate(url, e.loadTimeout)
	if err != nil {
		return nil, &plan.NavigationError{URL: url, Err: err}
	}

	// Late XHR-driven content is welcome but not required.
	_ = session.WaitForNetworkIdle(e.idleWait)

	html, err := session.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}
	text, err := session.VisibleText()
	if err != nil {
		return nil, fmt.Errorf("failed to read page text: %w", err)
	}
	title, err := session.Title()
	if err != nil {
		title = ""
	}

	return &plan.PageSnapshot{
		URL:        session.URL(),
		Title:      title,
		HTML:       html,
		Text:       text,
		StatusCode: status,
	}, nil
}

// IsNavigationError reports whether err came from a failed page load.
func IsNavigationError(err error) bool {
	return errors.Is(err, plan.ErrNavigation)
}
