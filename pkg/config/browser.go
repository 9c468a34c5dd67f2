package config

import (
	"fmt"
	"sync"
)

const (
	// SectionIDBrowser is the identifier for the browser settings section
	SectionIDBrowser = "browser"
)

// BrowserSection holds machine-level browser preferences, such as an engine
// that is already installed or a visible window for local debugging.
type BrowserSection struct {
	Engine      string
	Headless    bool
	SkipInstall bool
	mu          sync.RWMutex
}

// NewBrowserSection creates a browser section with default settings.
func NewBrowserSection() *BrowserSection {
	return &BrowserSection{
		Headless: true,
	}
}

// ID returns the section identifier.
func (s *BrowserSection) ID() string {
	return SectionIDBrowser
}

// Title returns the section title.
func (s *BrowserSection) Title() string {
	return "Browser Settings"
}

// Description returns the section description.
func (s *BrowserSection) Description() string {
	return "Choose the browser engine (chromium, firefox or webkit) and whether it runs headless."
}

// Data returns the current configuration data.
func (s *BrowserSection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{
		"engine":       s.Engine,
		"headless":     s.Headless,
		"skip_install": s.SkipInstall,
	}
}

// SetData updates the configuration from the provided data.
func (s *BrowserSection) SetData(data map[string]any) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if engine, ok := data["engine"].(string); ok {
		s.Engine = engine
	}
	if headless, ok := data["headless"].(bool); ok {
		s.Headless = headless
	}
	if skip, ok := data["skip_install"].(bool); ok {
		s.SkipInstall = skip
	}
	return nil
}

// Validate validates the current configuration.
func (s *BrowserSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch s.Engine {
	case "", "chromium", "firefox", "webkit":
		return nil
	default:
		return fmt.Errorf("invalid engine: %s", s.Engine)
	}
}

// Reset resets the section to default configuration.
func (s *BrowserSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Engine = ""
	s.Headless = true
	s.SkipInstall = false
}

// GetEngine returns the preferred engine; empty means the run default.
func (s *BrowserSection) GetEngine() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Engine
}

// IsHeadless reports whether the browser window stays hidden.
func (s *BrowserSection) IsHeadless() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Headless
}

// ShouldSkipInstall reports whether the driver download is skipped.
func (s *BrowserSection) ShouldSkipInstall() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.SkipInstall
}
