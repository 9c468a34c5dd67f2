package browser

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
)

// Launcher owns the Playwright driver and tracks the sessions it created.
// The extractor and the executor each hold at most one session, so the
// registry is small; it exists so Shutdown can release anything left open.
type Launcher struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	playwright  *playwright.Playwright
	opts        Options
	maxSessions int
	initialized bool
}

// NewLauncher creates a launcher. Initialize must be called before use.
func NewLauncher(opts Options) *Launcher {
	return &Launcher{
		sessions:    make(map[string]*Session),
		opts:        opts.withDefaults(),
		maxSessions: DefaultMaxSessions,
	}
}

// Initialize installs (unless skipped) and starts the Playwright driver.
func (l *Launcher) Initialize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.initialized {
		return nil
	}

	runOpts := &playwright.RunOptions{
		Browsers: []string{string(l.opts.Engine)},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if !l.opts.SkipInstall {
		if err := playwright.Install(runOpts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	l.playwright = pw
	l.initialized = true
	return nil
}

func (l *Launcher) browserType() playwright.BrowserType {
	switch l.opts.Engine {
	case EngineFirefox:
		return l.playwright.Firefox
	case EngineWebKit:
		return l.playwright.WebKit
	default:
		return l.playwright.Chromium
	}
}

// NewSession launches a fresh browser, context and page.
func (l *Launcher) NewSession() (*Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized {
		return nil, fmt.Errorf("launcher not initialized")
	}

	if len(l.sessions) >= l.maxSessions {
		return nil, fmt.Errorf("maximum number of sessions (%d) reached", l.maxSessions)
	}

	headless := l.opts.Headless
	browser, err := l.browserType().Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &headless,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  l.opts.Viewport.Width,
			Height: l.opts.Viewport.Height,
		},
	}
	if l.opts.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(l.opts.UserAgent)
	}
	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultTimeout(millis(l.opts.Timeout))

	session := &Session{
		ID:        uuid.New().String(),
		browser:   browser,
		context:   bctx,
		page:      page,
		CreatedAt: time.Now(),
		release:   l.release,
	}

	l.sessions[session.ID] = session
	return session, nil
}

func (l *Launcher) release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sessions, id)
}

// ActiveSessions returns the number of sessions not yet closed.
func (l *Launcher) ActiveSessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

// SetMaxSessions sets the maximum number of concurrent sessions.
func (l *Launcher) SetMaxSessions(max int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxSessions = max
}

// Shutdown closes all sessions and stops Playwright.
func (l *Launcher) Shutdown() error {
	l.mu.Lock()
	open := make([]*Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		open = append(open, s)
	}
	l.mu.Unlock()

	for _, s := range open {
		_ = s.Close() // Ignore errors, continue cleanup
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.initialized && l.playwright != nil {
		if err := l.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		l.initialized = false
	}
	return nil
}
