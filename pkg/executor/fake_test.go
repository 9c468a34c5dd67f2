package executor

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var healthyText = strings.Repeat("Welcome to the demo store. ", 10)

// fakeSession is an in-memory Session. Every method is safe for concurrent
// use because the executor calls them from racing goroutines.
type fakeSession struct {
	mu sync.Mutex
	id int

	title  string
	text   string
	html   string
	url    string
	status int

	probeErr  error
	navErr    error
	reloadErr error
	closeErr  error

	probeDelay  time.Duration
	reloadDelay time.Duration
	clickFn     func(selector string, timeout time.Duration) error

	calls    []string
	console  map[int]func(kind, text string)
	pageErrs map[int]func(message string)
	nextID   int
	closed   bool
	shots    []string
}

func newFakeSession(id int) *fakeSession {
	return &fakeSession{
		id:       id,
		title:    "Demo Store",
		text:     healthyText,
		html:     "<html><body><main>Demo Store</main></body></html>",
		status:   200,
		console:  make(map[int]func(kind, text string)),
		pageErrs: make(map[int]func(message string)),
	}
}

func (f *fakeSession) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSession) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSession) set(fn func(f *fakeSession)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeSession) Navigate(url string, timeout time.Duration) (int, error) {
	f.record("navigate " + url)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.navErr != nil {
		return 0, f.navErr
	}
	f.url = url
	return f.status, nil
}

func (f *fakeSession) Evaluate(expression string) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if expression == "1" {
		probeErr, delay := f.probeErr, f.probeDelay
		f.mu.Unlock()
		time.Sleep(delay)
		f.mu.Lock()
		if probeErr != nil {
			return nil, probeErr
		}
		return 1, nil
	}
	f.calls = append(f.calls, "evaluate")
	return nil, nil
}

func (f *fakeSession) Click(selector string, timeout time.Duration) error {
	f.record("click " + selector)
	f.mu.Lock()
	fn := f.clickFn
	f.mu.Unlock()
	if fn != nil {
		return fn(selector, timeout)
	}
	return nil
}

func (f *fakeSession) Fill(selector, value string, timeout time.Duration) error {
	f.record(fmt.Sprintf("fill %s=%s", selector, value))
	return nil
}

func (f *fakeSession) Hover(selector string, timeout time.Duration) error {
	f.record("hover " + selector)
	return nil
}

func (f *fakeSession) Check(selector string, timeout time.Duration) error {
	f.record("check " + selector)
	return nil
}

func (f *fakeSession) SelectOption(selector, value string, timeout time.Duration) error {
	f.record(fmt.Sprintf("select %s=%s", selector, value))
	return nil
}

func (f *fakeSession) Press(selector, key string, timeout time.Duration) error {
	f.record(fmt.Sprintf("press %s=%s", selector, key))
	return nil
}

func (f *fakeSession) WaitForSelector(selector string, timeout time.Duration) error {
	f.record("wait " + selector)
	return nil
}

func (f *fakeSession) ScrollIntoView(selector string) error {
	f.record("scroll " + selector)
	return nil
}

func (f *fakeSession) Reload(timeout time.Duration) error {
	f.record("reload")
	f.mu.Lock()
	err, delay := f.reloadErr, f.reloadDelay
	f.mu.Unlock()
	time.Sleep(delay)
	return err
}

func (f *fakeSession) Title() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title, nil
}

func (f *fakeSession) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

func (f *fakeSession) Content() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.html, nil
}

func (f *fakeSession) VisibleText() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text, nil
}

func (f *fakeSession) OnConsole(handler func(kind, text string)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.console[id] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.console, id)
	}
}

func (f *fakeSession) OnPageError(handler func(message string)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.pageErrs[id] = handler
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.pageErrs, id)
	}
}

// emitConsole delivers a console message to every attached listener.
func (f *fakeSession) emitConsole(kind, text string) {
	f.mu.Lock()
	handlers := make([]func(kind, text string), 0, len(f.console))
	for _, h := range f.console {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(kind, text)
	}
}

func (f *fakeSession) emitPageError(message string) {
	f.mu.Lock()
	handlers := make([]func(message string), 0, len(f.pageErrs))
	for _, h := range f.pageErrs {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(message)
	}
}

func (f *fakeSession) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.console) + len(f.pageErrs)
}

func (f *fakeSession) Screenshot(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shots = append(f.shots, path)
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.closeErr
}

func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeFactory hands out fakeSessions and remembers them.
type fakeFactory struct {
	mu       sync.Mutex
	sessions []*fakeSession
	failFrom int // builds numbered >= failFrom fail; zero never fails
	setup    func(s *fakeSession)
}

var errFactory = errors.New("browser launch failed")

func (f *fakeFactory) NewSession() (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.sessions) + 1
	if f.failFrom > 0 && n >= f.failFrom {
		return nil, errFactory
	}
	s := newFakeSession(n)
	if f.setup != nil {
		f.setup(s)
	}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeFactory) built() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeFactory) session(i int) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[i]
}
