package detect

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gobwas/glob"
)

// SignalKind identifies which heuristic fired.
type SignalKind string

const (
	SignalConsole     SignalKind = "console_error"
	SignalPageError   SignalKind = "page_error"
	SignalCrashBanner SignalKind = "crash_banner"
	SignalErrorMarkup SignalKind = "error_markup"
	SignalErrorTitle  SignalKind = "error_title"
	SignalHTTPStatus  SignalKind = "http_status"
	SignalBlankPage   SignalKind = "blank_page"
)

// Signal is one concrete piece of evidence that a page is broken.
type Signal struct {
	Kind   SignalKind
	Detail string
}

func (s Signal) String() string {
	return fmt.Sprintf("%s: %s", s.Kind, s.Detail)
}

// PageState is the subset of a page the detector inspects.
type PageState struct {
	Title      string
	Text       string
	HTML       string
	StatusCode int
}

// Detector applies a compiled Policy.
type Detector struct {
	policy  Policy
	titles  []glob.Glob
	banners []string
}

// New validates and compiles the policy.
func New(policy Policy) (*Detector, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	d := &Detector{policy: policy}
	for _, pattern := range policy.ErrorTitlePatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid title pattern '%s': %w", pattern, err)
		}
		d.titles = append(d.titles, g)
	}
	for _, banner := range policy.CrashBanners {
		d.banners = append(d.banners, strings.ToLower(banner))
	}
	return d, nil
}

// Policy returns the policy the detector was built from.
func (d *Detector) Policy() Policy {
	return d.policy
}

// MatchConsole returns the allow-listed signature contained in text, if any.
func (d *Detector) MatchConsole(text string) (string, bool) {
	for _, sig := range d.policy.ConsoleSignatures {
		if strings.Contains(text, sig) {
			return sig, true
		}
	}
	return "", false
}

// Inspect returns every crash signal present on the page. The blank-page
// signal is included only when the policy marks it as a failure.
func (d *Detector) Inspect(st PageState) []Signal {
	var signals []Signal

	if d.policy.HTTPErrorStatus > 0 && st.StatusCode >= d.policy.HTTPErrorStatus {
		signals = append(signals, Signal{Kind: SignalHTTPStatus, Detail: fmt.Sprintf("HTTP %d", st.StatusCode)})
	}

	title := strings.ToLower(strings.TrimSpace(st.Title))
	if title != "" {
		for i, g := range d.titles {
			if g.Match(title) {
				signals = append(signals, Signal{Kind: SignalErrorTitle, Detail: fmt.Sprintf("title %q matches %q", st.Title, d.policy.ErrorTitlePatterns[i])})
				break
			}
		}
	}

	text := strings.ToLower(st.Text)
	for _, banner := range d.banners {
		if strings.Contains(text, banner) {
			signals = append(signals, Signal{Kind: SignalCrashBanner, Detail: banner})
			break
		}
	}

	if sel, ok := d.matchMarkup(st.HTML); ok {
		signals = append(signals, Signal{Kind: SignalErrorMarkup, Detail: sel})
	}

	if d.policy.BlankPageIsFailure && d.IsBlank(len([]rune(strings.TrimSpace(st.Text)))) {
		signals = append(signals, Signal{Kind: SignalBlankPage, Detail: "page has no meaningful content"})
	}

	return signals
}

// IsBlank reports whether a visible text length counts as an empty page.
func (d *Detector) IsBlank(textLen int) bool {
	return textLen < d.policy.MinContentLength
}

func (d *Detector) matchMarkup(html string) (string, bool) {
	if html == "" || len(d.policy.CrashSelectors) == 0 {
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}
	for _, sel := range d.policy.CrashSelectors {
		if doc.Find(sel).Length() > 0 {
			return sel, true
		}
	}
	return "", false
}
