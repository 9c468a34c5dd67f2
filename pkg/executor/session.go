package executor

import "time"

// Driver is the set of page interactions an Actor may use.
type Driver interface {
	Navigate(url string, timeout time.Duration) (status int, err error)
	Evaluate(expression string) (interface{}, error)
	Click(selector string, timeout time.Duration) error
	Fill(selector, value string, timeout time.Duration) error
	Hover(selector string, timeout time.Duration) error
	Check(selector string, timeout time.Duration) error
	SelectOption(selector, value string, timeout time.Duration) error
	Press(selector, key string, timeout time.Duration) error
	WaitForSelector(selector string, timeout time.Duration) error
	ScrollIntoView(selector string) error
}

// Session is a live browser session as the executor sees it.
// *browser.Session satisfies it.
type Session interface {
	Driver

	Reload(timeout time.Duration) error
	Title() (string, error)
	URL() string
	Content() (string, error)
	VisibleText() (string, error)

	// OnConsole and OnPageError attach a listener and return its detach func.
	OnConsole(handler func(kind, text string)) func()
	OnPageError(handler func(message string)) func()

	Screenshot(path string) error
	Close() error
}

// SessionFactory builds new sessions for the handle.
type SessionFactory interface {
	NewSession() (Session, error)
}

// FactoryFunc adapts a function to SessionFactory.
type FactoryFunc func() (Session, error)

// NewSession calls f.
func (f FactoryFunc) NewSession() (Session, error) {
	return f()
}
