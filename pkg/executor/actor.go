package executor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/entrhq/webprobe/pkg/plan"
)

// ErrUnsupportedAction is returned when an action cannot be mapped to a
// driver operation.
var ErrUnsupportedAction = errors.New("unsupported action")

// Actor performs a test case's action on a driver. Implementations must
// not retain d after returning.
type Actor interface {
	Act(ctx context.Context, d Driver, baseURL string, tc plan.TestCase) error
}

// ActorFunc adapts a function to Actor.
type ActorFunc func(ctx context.Context, d Driver, baseURL string, tc plan.TestCase) error

// Act calls f.
func (f ActorFunc) Act(ctx context.Context, d Driver, baseURL string, tc plan.TestCase) error {
	return f(ctx, d, baseURL, tc)
}

// Verb is the operation an action maps to.
type Verb string

const (
	VerbClick    Verb = "click"
	VerbFill     Verb = "fill"
	VerbHover    Verb = "hover"
	VerbCheck    Verb = "check"
	VerbSelect   Verb = "select"
	VerbPress    Verb = "press"
	VerbNavigate Verb = "navigate"
	VerbScroll   Verb = "scroll"
	VerbObserve  Verb = "observe"
)

// verbKeywords lists the whole-word keywords of each verb. The keyword
// that starts earliest in the action decides the verb; at the same
// position the earlier group wins, so "check that" beats "check".
var verbKeywords = []struct {
	verb     Verb
	keywords []string
}{
	{VerbObserve, []string{"verify", "observe", "wait", "ensure", "confirm", "assert", "check that", "check if", "check whether", "look for"}},
	{VerbNavigate, []string{"navigate", "go to", "visit", "open url", "load"}},
	{VerbPress, []string{"press key", "press enter", "press tab", "press escape"}},
	{VerbFill, []string{"fill", "type", "enter", "input", "search for"}},
	{VerbSelect, []string{"select", "choose", "pick"}},
	{VerbCheck, []string{"check", "tick", "toggle"}},
	{VerbHover, []string{"hover", "mouse over"}},
	{VerbScroll, []string{"scroll"}},
	{VerbClick, []string{"click", "tap", "press", "submit", "open", "follow"}},
}

var (
	quotedRe = regexp.MustCompile(`["“']([^"”']+)["”']`)
	urlRe    = regexp.MustCompile(`(https?://\S+|(?:^|\s)/[^\s]*)`)
	keyNames = []string{"Enter", "Tab", "Escape", "ArrowDown", "ArrowUp", "Space"}
)

// ParseVerb maps a free-text action to a verb. Keywords match whole words
// only, so "Checkout" is not "check". Actions that match no keyword return
// VerbClick when a selector is available.
func ParseVerb(action string, hasSelector bool) (Verb, error) {
	words := strings.FieldsFunc(strings.ToLower(action), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var found Verb
	best := len(words)
	for _, vk := range verbKeywords {
		for _, kw := range vk.keywords {
			if pos := indexWords(words, strings.Fields(kw)); pos >= 0 && pos < best {
				best = pos
				found = vk.verb
			}
		}
	}
	if found != "" {
		return found, nil
	}
	if hasSelector {
		return VerbClick, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedAction, action)
}

// indexWords returns the position of the first occurrence of phrase in
// words, or -1.
func indexWords(words, phrase []string) int {
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j, w := range phrase {
			if words[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// SelectorActor maps free-text verbs to driver operations on the case's
// element selector.
type SelectorActor struct {
	// Timeout bounds individual driver operations. The executor's hard
	// action timeout still applies on top.
	Timeout time.Duration

	// DefaultFillValue is typed when the action quotes no value.
	DefaultFillValue string
}

// NewSelectorActor creates the default actor.
func NewSelectorActor(timeout time.Duration) *SelectorActor {
	return &SelectorActor{Timeout: timeout, DefaultFillValue: "test"}
}

// Act implements Actor.
func (a *SelectorActor) Act(ctx context.Context, d Driver, baseURL string, tc plan.TestCase) error {
	selector := strings.TrimSpace(tc.ElementSelector)
	verb, err := ParseVerb(tc.Action, selector != "")
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	needSelector := func() error {
		if selector == "" {
			return fmt.Errorf("%w: %s requires an element selector", ErrUnsupportedAction, verb)
		}
		return nil
	}

	switch verb {
	case VerbNavigate:
		target, err := resolveTarget(baseURL, tc.Action)
		if err != nil {
			if selector != "" {
				return d.Click(selector, a.Timeout)
			}
			return err
		}
		_, err = d.Navigate(target, a.Timeout)
		return err
	case VerbFill:
		if err := needSelector(); err != nil {
			return err
		}
		return d.Fill(selector, quotedValue(tc.Action, a.DefaultFillValue), a.Timeout)
	case VerbSelect:
		if err := needSelector(); err != nil {
			return err
		}
		value := quotedValue(tc.Action, "")
		if value == "" {
			return fmt.Errorf("%w: select needs a quoted option", ErrUnsupportedAction)
		}
		return d.SelectOption(selector, value, a.Timeout)
	case VerbCheck:
		if err := needSelector(); err != nil {
			return err
		}
		return d.Check(selector, a.Timeout)
	case VerbHover:
		if err := needSelector(); err != nil {
			return err
		}
		return d.Hover(selector, a.Timeout)
	case VerbScroll:
		return d.ScrollIntoView(selector)
	case VerbPress:
		if err := needSelector(); err != nil {
			return err
		}
		return d.Press(selector, keyName(tc.Action), a.Timeout)
	case VerbObserve:
		if selector == "" {
			return nil
		}
		return d.WaitForSelector(selector, a.Timeout)
	default:
		if err := needSelector(); err != nil {
			return err
		}
		return d.Click(selector, a.Timeout)
	}
}

func quotedValue(action, fallback string) string {
	if m := quotedRe.FindStringSubmatch(action); m != nil {
		return m[1]
	}
	return fallback
}

func keyName(action string) string {
	lower := strings.ToLower(action)
	for _, k := range keyNames {
		if strings.Contains(lower, strings.ToLower(k)) {
			return k
		}
	}
	return "Enter"
}

// resolveTarget finds a URL or absolute path in the action and resolves it
// against baseURL.
func resolveTarget(baseURL, action string) (string, error) {
	m := urlRe.FindString(action)
	if m == "" {
		return "", fmt.Errorf("%w: no URL in %q", ErrUnsupportedAction, action)
	}
	ref, err := url.Parse(strings.TrimRight(strings.TrimSpace(m), ".,;)\"'"))
	if err != nil {
		return "", fmt.Errorf("invalid URL in action: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}
