package runner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/webprobe/pkg/executor"
	"github.com/entrhq/webprobe/pkg/llm"
	"github.com/entrhq/webprobe/pkg/plan"
	"github.com/entrhq/webprobe/pkg/planner"
	"github.com/entrhq/webprobe/pkg/types"
)

// stubSession is a healthy page whose clicks always succeed, except on
// selectors listed in broken, which log a TypeError.
type stubSession struct {
	mu      sync.Mutex
	url     string
	broken  map[string]bool
	console []func(kind, text string)
	closed  bool
}

func (s *stubSession) Navigate(url string, timeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
	return 200, nil
}

func (s *stubSession) Evaluate(expression string) (interface{}, error) { return nil, nil }

func (s *stubSession) Click(selector string, timeout time.Duration) error {
	s.mu.Lock()
	handlers := append(([]func(kind, text string))(nil), s.console...)
	broken := s.broken[selector]
	s.mu.Unlock()
	if broken {
		for _, h := range handlers {
			if h != nil {
				h("error", "Uncaught TypeError: cannot read 'id' of undefined")
			}
		}
	}
	return nil
}

func (s *stubSession) Fill(selector, value string, timeout time.Duration) error { return nil }
func (s *stubSession) Hover(selector string, timeout time.Duration) error       { return nil }
func (s *stubSession) Check(selector string, timeout time.Duration) error       { return nil }
func (s *stubSession) SelectOption(selector, value string, timeout time.Duration) error {
	return nil
}
func (s *stubSession) Press(selector, key string, timeout time.Duration) error      { return nil }
func (s *stubSession) WaitForSelector(selector string, timeout time.Duration) error { return nil }
func (s *stubSession) ScrollIntoView(selector string) error                         { return nil }
func (s *stubSession) Reload(timeout time.Duration) error                           { return nil }
func (s *stubSession) Title() (string, error)                                       { return "Demo", nil }

func (s *stubSession) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *stubSession) Content() (string, error) {
	return "<html><body><main>Demo</main></body></html>", nil
}

func (s *stubSession) VisibleText() (string, error) {
	return strings.Repeat("Demo content for a healthy page. ", 10), nil
}

func (s *stubSession) OnConsole(handler func(kind, text string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.console)
	s.console = append(s.console, handler)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.console[idx] = nil
	}
}

func (s *stubSession) OnPageError(handler func(message string)) func() { return func() {} }
func (s *stubSession) Screenshot(path string) error                     { return nil }

func (s *stubSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type stubFactory struct {
	mu       sync.Mutex
	broken   map[string]bool
	sessions []*stubSession
}

func (f *stubFactory) NewSession() (executor.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &stubSession{broken: f.broken}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *stubFactory) allClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			return false
		}
	}
	return true
}

type stubExtractor struct {
	err   error
	calls []string
}

func (e *stubExtractor) Extract(ctx context.Context, url string) (*plan.PageSnapshot, error) {
	e.calls = append(e.calls, url)
	if e.err != nil {
		return nil, e.err
	}
	return &plan.PageSnapshot{
		URL:        url,
		Title:      "Demo",
		HTML:       "<html><body><button id=buy>Buy</button></body></html>",
		Text:       "Demo Buy",
		StatusCode: 200,
	}, nil
}

// scriptedProvider answers plan requests with planJSON and report requests
// with reportJSON, telling them apart by the system prompt.
type scriptedProvider struct {
	mu         sync.Mutex
	planJSON   string
	reportJSON string
	models     []string
	model      string
}

func (p *scriptedProvider) StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *llm.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (p *scriptedProvider) Complete(ctx context.Context, messages []*types.Message) (*types.Message, error) {
	p.mu.Lock()
	p.models = append(p.models, p.model)
	p.mu.Unlock()
	if messages[0].Content == planner.PlanSystemPrompt {
		return types.NewAssistantMessage(p.planJSON), nil
	}
	return types.NewAssistantMessage(p.reportJSON), nil
}

func (p *scriptedProvider) GetModelInfo() *types.ModelInfo { return &types.ModelInfo{Name: p.model} }
func (p *scriptedProvider) GetModel() string               { return p.model }

const testPlanJSON = `{
  "websiteType": "e-commerce",
  "criticalFunctionalities": ["purchase"],
  "testCases": [
    {"name": "Buy", "action": "Click the Buy button", "expectedBehavior": "checkout opens", "riskLevel": "high", "elementSelector": "#buy"},
    {"name": "Logo", "action": "Click the logo", "expectedBehavior": "home reloads", "riskLevel": "low", "elementSelector": "#logo"}
  ],
  "potentialIssues": ["checkout script errors"]
}`

const testReportJSON = `{
  "overallHealth": "critical",
  "criticalBugs": [{"title": "Buy throws TypeError", "description": "checkout crashes", "severity": "high", "testName": "Buy"}],
  "minorIssues": [],
  "workingFeatures": ["Logo"],
  "recommendations": ["Fix checkout"],
  "riskAssessment": "Purchases are blocked."
}`
