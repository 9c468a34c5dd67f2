package browser

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Session is one browser, context and page. Its method set is what the
// executor drives; every call is synchronous and bounded by the given
// timeout or the page default.
type Session struct {
	ID        string
	CreatedAt time.Time

	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	release   func(id string)
	closeOnce sync.Once
}

// Navigate loads url and waits for the load event. It returns the HTTP
// status of the main document, or 0 when the navigation produced no response.
func (s *Session) Navigate(url string, timeout time.Duration) (int, error) {
	opts := playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	}
	if timeout > 0 {
		ms := millis(timeout)
		opts.Timeout = &ms
	}

	resp, err := s.page.Goto(url, opts)
	if err != nil {
		return 0, fmt.Errorf("navigation failed: %w", err)
	}
	if resp == nil {
		return 0, nil
	}
	return resp.Status(), nil
}

// WaitForNetworkIdle waits for the network to go quiet.
func (s *Session) WaitForNetworkIdle(timeout time.Duration) error {
	ms := millis(timeout)
	return s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: &ms,
	})
}

// Reload reloads the current page.
func (s *Session) Reload(timeout time.Duration) error {
	opts := playwright.PageReloadOptions{}
	if timeout > 0 {
		ms := millis(timeout)
		opts.Timeout = &ms
	}
	if _, err := s.page.Reload(opts); err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	return nil
}

// Evaluate runs a JavaScript expression in the page.
func (s *Session) Evaluate(expression string) (interface{}, error) {
	return s.page.Evaluate(expression)
}

// Title returns the document title.
func (s *Session) Title() (string, error) {
	return s.page.Title()
}

// URL returns the current page URL.
func (s *Session) URL() string {
	return s.page.URL()
}

// Content returns the serialized DOM.
func (s *Session) Content() (string, error) {
	return s.page.Content()
}

// VisibleText returns document.body.innerText.
func (s *Session) VisibleText() (string, error) {
	v, err := s.page.Evaluate(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", fmt.Errorf("text extraction failed: %w", err)
	}
	text, _ := v.(string)
	return text, nil
}

// Click clicks the element matching selector.
func (s *Session) Click(selector string, timeout time.Duration) error {
	opts := playwright.PageClickOptions{}
	if timeout > 0 {
		ms := millis(timeout)
		opts.Timeout = &ms
	}
	if err := s.page.Click(selector, opts); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

// Fill fills an input element with value.
func (s *Session) Fill(selector, value string, timeout time.Duration) error {
	opts := playwright.PageFillOptions{}
	if timeout > 0 {
		ms := millis(timeout)
		opts.Timeout = &ms
	}
	if err := s.page.Fill(selector, value, opts); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

// Hover moves the mouse over the element.
func (s *Session) Hover(selector string, timeout time.Duration) error {
	opts := playwright.PageHoverOptions{}
	if timeout > 0 {
		ms := millis(timeout)
		opts.Timeout = &ms
	}
	if err := s.page.Hover(selector, opts); err != nil {
		return fmt.Errorf("hover failed: %w", err)
	}
	return nil
}

// Check ticks a checkbox or radio button.
func (s *Session) Check(selector string, timeout time.Duration) error {
	opts := playwright.PageCheckOptions{}
	if timeout > 0 {
		ms := millis(timeout)
		opts.Timeout = &ms
	}
	if err := s.page.Check(selector, opts); err != nil {
		return fmt.Errorf("check failed: %w", err)
	}
	return nil
}

// SelectOption selects an option by value or label.
func (s *Session) SelectOption(selector, value string, timeout time.Duration) error {
	opts := playwright.PageSelectOptionOptions{}
	if timeout > 0 {
		ms := millis(timeout)
		opts.Timeout = &ms
	}
	values := []string{value}
	if _, err := s.page.SelectOption(selector, playwright.SelectOptionValues{Values: &values}, opts); err == nil {
		return nil
	}
	if _, err := s.page.SelectOption(selector, playwright.SelectOptionValues{Labels: &values}, opts); err != nil {
		return fmt.Errorf("select failed: %w", err)
	}
	return nil
}

// Press sends a key press to the element.
func (s *Session) Press(selector, key string, timeout time.Duration) error {
	opts := playwright.PagePressOptions{}
	if timeout > 0 {
		ms := millis(timeout)
		opts.Timeout = &ms
	}
	if err := s.page.Press(selector, key, opts); err != nil {
		return fmt.Errorf("press failed: %w", err)
	}
	return nil
}

// WaitForSelector waits until the element is visible.
func (s *Session) WaitForSelector(selector string, timeout time.Duration) error {
	opts := playwright.PageWaitForSelectorOptions{
		State: playwright.WaitForSelectorStateVisible,
	}
	if timeout > 0 {
		ms := millis(timeout)
		opts.Timeout = &ms
	}
	if _, err := s.page.WaitForSelector(selector, opts); err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}
	return nil
}

// ScrollIntoView scrolls the element into view, or the page to the bottom
// when selector is empty.
func (s *Session) ScrollIntoView(selector string) error {
	expr := `() => window.scrollTo(0, document.body.scrollHeight)`
	if selector != "" {
		quoted, _ := json.Marshal(selector)
		expr = fmt.Sprintf(`() => { const el = document.querySelector(%s); if (!el) throw new Error("no element matches " + %s); el.scrollIntoView(); }`, quoted, quoted)
	}
	if _, err := s.page.Evaluate(expr); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// OnConsole attaches a console listener and returns its detach function.
func (s *Session) OnConsole(handler func(kind, text string)) func() {
	listener := func(msg playwright.ConsoleMessage) {
		handler(msg.Type(), msg.Text())
	}
	s.page.On("console", listener)
	return func() { s.page.RemoveListener("console", listener) }
}

// OnPageError attaches an uncaught-exception listener and returns its
// detach function.
func (s *Session) OnPageError(handler func(message string)) func() {
	listener := func(err error) {
		handler(err.Error())
	}
	s.page.On("pageerror", listener)
	return func() { s.page.RemoveListener("pageerror", listener) }
}

// Screenshot writes a full-page PNG to path.
func (s *Session) Screenshot(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if _, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}
	return nil
}

// Close releases the page, context and browser. Errors are ignored after
// the first so every resource gets a close attempt.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		// Release first so a hung browser does not hold a launcher slot.
		if s.release != nil {
			s.release(s.ID)
		}
		if s.page != nil {
			err = s.page.Close()
		}
		if s.context != nil {
			_ = s.context.Close()
		}
		if s.browser != nil {
			_ = s.browser.Close()
		}
	})
	return err
}
