package executor

import (
	"fmt"
	"sync"

	"github.com/entrhq/webprobe/pkg/detect"
)

// Subscription collects allow-listed console and page errors for one case.
// Close detaches both listeners and may be called any number of times.
type Subscription struct {
	mu       sync.Mutex
	errors   []string
	closed   bool
	detach   []func()
	once     sync.Once
	detector *detect.Detector
}

// Subscribe attaches fresh listeners to s.
func Subscribe(s Session, detector *detect.Detector) *Subscription {
	sub := &Subscription{detector: detector}
	sub.detach = append(sub.detach,
		s.OnConsole(sub.onConsole),
		s.OnPageError(sub.onPageError),
	)
	return sub
}

func (sub *Subscription) onConsole(kind, text string) {
	if _, ok := sub.detector.MatchConsole(text); ok {
		sub.record(fmt.Sprintf("console.%s: %s", kind, text))
	}
}

func (sub *Subscription) onPageError(message string) {
	if _, ok := sub.detector.MatchConsole(message); ok {
		sub.record(fmt.Sprintf("pageerror: %s", message))
	}
}

func (sub *Subscription) record(entry string) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	// Events racing with Close are dropped.
	if sub.closed {
		return
	}
	sub.errors = append(sub.errors, entry)
}

// Errors returns a copy of what has been collected so far.
func (sub *Subscription) Errors() []string {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return append([]string(nil), sub.errors...)
}

// Close detaches the listeners.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		sub.mu.Lock()
		sub.closed = true
		sub.mu.Unlock()
		for _, d := range sub.detach {
			if d != nil {
				d()
			}
		}
	})
}
