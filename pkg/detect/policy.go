// Package detect decides whether a page is genuinely broken. Matching is
// deliberately narrow: a missed bug is preferred over a false alarm caused by
// third-party console noise.
package detect

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/gobwas/glob"
)

// Policy is the configurable set of heuristics. None of the default strings
// are authoritative; deployments are expected to tune them.
type Policy struct {
	// ConsoleSignatures are substrings that make a console error or uncaught
	// page error count as a real failure. Everything else is ignored.
	ConsoleSignatures []string `yaml:"console_signatures" json:"console_signatures"`

	// CrashBanners are case-insensitive substrings of the visible text that
	// only appear when an application has crashed.
	CrashBanners []string `yaml:"crash_banners" json:"crash_banners"`

	// CrashSelectors are CSS selectors for error-boundary and dev overlay markup.
	CrashSelectors []string `yaml:"crash_selectors" json:"crash_selectors"`

	// ErrorTitlePatterns are glob patterns matched against the lowercased title.
	ErrorTitlePatterns []string `yaml:"error_title_patterns" json:"error_title_patterns"`

	// MinContentLength is the visible text length below which a page is blank.
	MinContentLength int `yaml:"min_content_length" json:"min_content_length"`

	// BlankPageIsFailure turns the blank-page observation into a failure signal.
	BlankPageIsFailure bool `yaml:"blank_page_is_failure" json:"blank_page_is_failure"`

	// HTTPErrorStatus is the lowest navigation status treated as an error page.
	// Zero disables the check.
	HTTPErrorStatus int `yaml:"http_error_status" json:"http_error_status"`
}

// DefaultPolicy returns the conservative default heuristics.
func DefaultPolicy() Policy {
	return Policy{
		ConsoleSignatures: []string{
			"TypeError:",
			"ReferenceError:",
			"Cannot read properties of undefined",
			"Cannot read properties of null",
		},
		CrashBanners: []string{
			"application error: a client-side exception has occurred",
			"unhandled runtime error",
			"internal server error",
			"404 not found",
			"page not found",
		},
		CrashSelectors: []string{
			"[data-error-boundary]",
			"#__next-error",
			"nextjs-portal",
			"vite-error-overlay",
			".error-boundary",
			"#webpack-dev-server-client-overlay",
		},
		ErrorTitlePatterns: []string{
			"404*",
			"*404 not found*",
			"500*",
			"502*",
			"503*",
			"*internal server error*",
			"*application error*",
			"error",
			"error:*",
			"error -*",
		},
		MinContentLength: 100,
		HTTPErrorStatus:  400,
	}
}

// Validate compiles every pattern and selector so a bad policy fails at
// startup rather than silently never matching.
func (p Policy) Validate() error {
	for _, sig := range p.ConsoleSignatures {
		if strings.TrimSpace(sig) == "" {
			return fmt.Errorf("console signature must not be empty")
		}
	}
	for _, sel := range p.CrashSelectors {
		if _, err := cascadia.Compile(sel); err != nil {
			return fmt.Errorf("invalid crash selector '%s': %w", sel, err)
		}
	}
	for _, pattern := range p.ErrorTitlePatterns {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("invalid title pattern '%s': %w", pattern, err)
		}
	}
	if p.MinContentLength < 0 {
		return fmt.Errorf("min_content_length must be >= 0")
	}
	if p.HTTPErrorStatus < 0 || p.HTTPErrorStatus > 599 {
		return fmt.Errorf("http_error_status must be between 0 and 599")
	}
	return nil
}
