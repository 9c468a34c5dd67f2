// Package executor runs planned test cases one at a time against a single
// owned browser session. Every case ends in exactly one TestResult; case
// failures, timeouts and session crashes are recorded as data and never
// abort the loop.
package executor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/entrhq/webprobe/pkg/detect"
	"github.com/entrhq/webprobe/pkg/logging"
	"github.com/entrhq/webprobe/pkg/plan"
	"github.com/entrhq/webprobe/pkg/types"
)

// ReasonPageBroken is the skip reason for a case whose baseline already failed.
const ReasonPageBroken = "page already broken"

const cleanupScript = `() => {
	try { console.clear(); } catch (e) {}
	if (typeof window.gc === "function") { window.gc(); }
}`

// CaseState is a step of the per-case state machine.
type CaseState string

const (
	StateInit          CaseState = "INIT"
	StateBaselineCheck CaseState = "BASELINE_CHECK"
	StateActing        CaseState = "ACTING"
	StateObserve       CaseState = "OBSERVE"
	StateRecovering    CaseState = "RECOVERING"
	StatePassed        CaseState = "PASSED"
	StateFailed        CaseState = "FAILED"
	StateSkipped       CaseState = "SKIPPED"
)

// Logger is the subset of logging.Logger the executor writes to.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

// Executor drives the state machine.
type Executor struct {
	handle   *SessionHandle
	detector *detect.Detector
	actor    Actor
	cfg      Config
	log      Logger
	onEvent  func(*types.RunEvent)
}

// Option configures an Executor.
type Option func(*Executor)

// WithConfig replaces the default bounds.
func WithConfig(cfg Config) Option {
	return func(e *Executor) { e.cfg = cfg }
}

// WithActor replaces the default SelectorActor.
func WithActor(a Actor) Option {
	return func(e *Executor) { e.actor = a }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l Logger) Option {
	return func(e *Executor) { e.log = l }
}

// WithEventHandler receives progress events. The handler runs on the
// executor goroutine and must not block.
func WithEventHandler(fn func(*types.RunEvent)) Option {
	return func(e *Executor) { e.onEvent = fn }
}

// New creates an executor that owns handle for the duration of Run.
func New(handle *SessionHandle, detector *detect.Detector, opts ...Option) *Executor {
	e := &Executor{
		handle:   handle,
		detector: detector,
		cfg:      DefaultConfig(),
		log:      logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.actor == nil {
		e.actor = NewSelectorActor(e.cfg.ActionDriverTimeout())
	}
	handle.OnDiscard(func(err error) {
		e.log.Debugf("discarded session did not close cleanly: %v", err)
	})
	return e
}

// Run executes cases in order against baseURL and returns one result per
// case. Cancelling ctx stops launching actions; the remaining cases are
// recorded as SKIPPED so the result list stays complete.
func (e *Executor) Run(ctx context.Context, baseURL string, cases []plan.TestCase) []plan.TestResult {
	results := make([]plan.TestResult, 0, len(cases))

	for i := range cases {
		tc := cases[i]
		start := types.NewCaseEvent(types.EventTypeCaseStart, baseURL, i, len(cases), tc.Name)
		start.Case = &tc
		e.emit(start)

		var r plan.TestResult
		if err := ctx.Err(); err != nil {
			r = newResult(tc)
			r.Status = plan.StatusSkipped
			r.Error = fmt.Sprintf("run cancelled: %v", err)
		} else {
			r = e.runCase(ctx, i, baseURL, tc)
		}

		results = append(results, r)
		e.log.Infof("case %d/%d %q: %s %s", i+1, len(cases), tc.Name, r.Status, r.Error)

		end := types.NewCaseEvent(types.EventTypeCaseEnd, baseURL, i, len(cases), string(r.Status))
		end.Case = &tc
		end.Result = &r
		e.emit(end)
	}

	return results
}

// caseRun carries one case through the state machine.
type caseRun struct {
	e      *Executor
	index  int
	tc     plan.TestCase
	state  CaseState
	result plan.TestResult
}

func (c *caseRun) enter(s CaseState) {
	c.e.log.Debugf("case %d %q: %s -> %s", c.index+1, c.tc.Name, c.state, s)
	c.state = s
}

func (c *caseRun) fail(msg string) plan.TestResult {
	c.enter(StateFailed)
	c.result.Status = plan.StatusFailed
	c.result.Error = msg
	return c.result
}

func (c *caseRun) skip(msg string) plan.TestResult {
	c.enter(StateSkipped)
	c.result.Status = plan.StatusSkipped
	c.result.Error = msg
	return c.result
}

func newResult(tc plan.TestCase) plan.TestResult {
	return plan.TestResult{
		TestName:  tc.Name,
		Action:    tc.Action,
		RiskLevel: tc.RiskLevel,
	}
}

func (e *Executor) runCase(ctx context.Context, index int, baseURL string, tc plan.TestCase) (result plan.TestResult) {
	start := time.Now()
	c := &caseRun{e: e, index: index, tc: tc, state: StateInit, result: newResult(tc)}
	defer func() { result.Duration = time.Since(start) }()

	// Liveness probe; a crash rebuilds the session and this case still runs.
	session, err := e.ensureLive(ctx, c)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return c.skip(fmt.Sprintf("run cancelled: %v", ctxErr))
		}
		return c.fail(fmt.Sprintf("browser session unavailable: %v", err))
	}

	reset := e.cfg.Reset.Due(index)
	if reset && e.cfg.Reset.Mode == ResetRebuild {
		e.log.Infof("periodic reset before case %d: rebuilding session", index+1)
		if session, err = e.replace(ctx, "periodic reset"); err != nil {
			return c.fail(fmt.Sprintf("browser session unavailable: %v", err))
		}
		e.emit(types.NewSessionEvent(types.EventTypeSessionReset, "rebuild"))
	}

	// Fresh navigation isolates this case from whatever the last one left.
	var status int
	late, err := e.race(ctx, e.cfg.NavigationTimeout, func() error {
		var navErr error
		status, navErr = session.Navigate(baseURL, innerBound(e.cfg.NavigationTimeout))
		return navErr
	})
	e.drain("navigation", late, 0)
	if err != nil {
		if errors.Is(err, plan.ErrActionTimeout) {
			c.enter(StateRecovering)
			_, _ = e.replace(ctx, "base navigation timed out")
		}
		return c.fail(fmt.Sprintf("navigation to %s failed: %v", baseURL, err))
	}

	e.cleanup(ctx, session)

	if reset && e.cfg.Reset.Mode != ResetRebuild {
		e.log.Infof("periodic reset before case %d: reloading page", index+1)
		late, rerr := e.race(ctx, e.cfg.NavigationTimeout, func() error {
			return session.Reload(innerBound(e.cfg.NavigationTimeout))
		})
		e.drain("periodic reload", late, 0)
		if rerr != nil {
			if errors.Is(rerr, plan.ErrActionTimeout) {
				c.enter(StateRecovering)
				_, _ = e.replace(ctx, "periodic reload timed out")
			}
			return c.fail(fmt.Sprintf("periodic reload failed: %v", rerr))
		}
		e.emit(types.NewSessionEvent(types.EventTypeSessionReset, "reload"))
	}

	sub := Subscribe(session, e.detector)
	defer sub.Close()

	c.enter(StateBaselineCheck)
	baseline, err := e.baseline(ctx, session, status)
	if err != nil {
		if errors.Is(err, plan.ErrActionTimeout) {
			c.enter(StateRecovering)
			_, _ = e.replace(ctx, "baseline read timed out")
		}
		return c.fail(fmt.Sprintf("baseline unavailable: %v", err))
	}
	if baseline.HasRealErrors {
		c.result.ActualBehavior = fmt.Sprintf("Action not executed; baseline shows %s", baseline.Reason)
		return c.skip(ReasonPageBroken)
	}

	c.enter(StateActing)
	late, err = e.race(ctx, e.cfg.ActionTimeout, func() error {
		return e.actor.Act(ctx, session, baseURL, tc)
	})
	if err != nil {
		if errors.Is(err, plan.ErrActionTimeout) {
			c.enter(StateRecovering)
			e.recoverAfterTimeout(ctx, session)
			e.drain("action", late, e.cfg.DrainTimeout)
			c.result.ActualBehavior = fmt.Sprintf("Action did not complete within %s", e.cfg.ActionTimeout)
			return c.fail(fmt.Sprintf("Navigation timeout after %s", e.cfg.ActionTimeout))
		}
		e.drain("action", late, 0)
		c.result.FinalURL = session.URL()
		c.result.ActualBehavior = fmt.Sprintf("Action raised an error at %s", c.result.FinalURL)
		r := c.fail(err.Error())
		return e.captureFailure(ctx, session, index, r)
	}

	c.enter(StateObserve)
	if !sleepCtx(ctx, e.cfg.SettleDelay) {
		return c.fail(fmt.Sprintf("run cancelled: %v", ctx.Err()))
	}

	obs, err := e.observe(ctx, session)
	if err != nil {
		if errors.Is(err, plan.ErrActionTimeout) {
			c.enter(StateRecovering)
			_, _ = e.replace(ctx, "observation timed out")
		}
		return c.fail(fmt.Sprintf("observation failed: %v", err))
	}

	c.result.FinalURL = obs.url
	var evidence []string
	evidence = append(evidence, sub.Errors()...)
	for _, s := range obs.signals {
		evidence = append(evidence, s.String())
	}

	behavior := fmt.Sprintf("Page at %s, text length %d -> %d", obs.url, baseline.ContentLength, obs.textLen)
	if e.detector.IsBlank(obs.textLen) {
		behavior += ", page appears blank"
	}

	if len(evidence) > 0 {
		c.result.ActualBehavior = behavior
		r := c.fail(strings.Join(evidence, "; "))
		return e.captureFailure(ctx, session, index, r)
	}

	c.enter(StatePassed)
	c.result.Status = plan.StatusPassed
	c.result.ActualBehavior = behavior
	return c.result
}

// ensureLive probes the current session and replaces it when the probe
// fails or no session is installed.
func (e *Executor) ensureLive(ctx context.Context, c *caseRun) (Session, error) {
	session, err := e.handle.Current()
	if err == nil {
		late, perr := e.race(ctx, e.cfg.ProbeTimeout, func() error {
			_, evalErr := session.Evaluate("1")
			return evalErr
		})
		e.drain("liveness probe", late, 0)
		if perr == nil {
			return session, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		err = fmt.Errorf("%w: %v", plan.ErrSessionCrashed, perr)
	}

	c.enter(StateRecovering)
	e.log.Warnf("case %d: %v; replacing session", c.index+1, err)
	return e.replace(ctx, err.Error())
}

// replace swaps in a new session and returns it.
func (e *Executor) replace(ctx context.Context, reason string) (Session, error) {
	if err := e.handle.Replace(); err != nil {
		e.log.Errorf("session replacement failed (%s): %v", reason, err)
		return nil, err
	}
	e.log.Infof("session replaced (generation %d): %s", e.handle.Generation(), reason)
	e.emit(types.NewSessionEvent(types.EventTypeSessionReplaced, reason))
	return e.handle.Current()
}

// recoverAfterTimeout stops pending navigation and reloads under a short
// bound. If that fails the session is rebuilt.
func (e *Executor) recoverAfterTimeout(ctx context.Context, session Session) {
	late, err := e.race(ctx, e.cfg.RecoveryTimeout, func() error {
		if _, err := session.Evaluate("() => window.stop()"); err != nil {
			return err
		}
		return session.Reload(e.cfg.RecoveryTimeout)
	})
	e.drain("recovery", late, 0)
	if err == nil {
		e.log.Infof("recovered session by reload after action timeout")
		return
	}
	e.log.Warnf("%v: %v", plan.ErrRecoveryFailed, err)
	_, _ = e.replace(ctx, fmt.Sprintf("%v: %v", plan.ErrRecoveryFailed, err))
}

func (e *Executor) cleanup(ctx context.Context, session Session) {
	late, err := e.race(ctx, e.cfg.ProbeTimeout, func() error {
		_, err := session.Evaluate(cleanupScript)
		return err
	})
	e.drain("cleanup", late, 0)
	if err != nil {
		e.log.Debugf("cleanup skipped: %v", err)
	}
}

func (e *Executor) baseline(ctx context.Context, session Session, status int) (plan.BaselineState, error) {
	var st detect.PageState
	late, err := e.race(ctx, e.cfg.ProbeTimeout, func() error {
		var readErr error
		st, readErr = readPage(session)
		return readErr
	})
	e.drain("baseline", late, 0)
	if err != nil {
		return plan.BaselineState{}, err
	}
	st.StatusCode = status

	b := plan.BaselineState{
		Title:         st.Title,
		ContentLength: textLength(st.Text),
	}
	if signals := e.detector.Inspect(st); len(signals) > 0 {
		b.HasRealErrors = true
		b.Reason = signals[0].String()
	}
	return b, nil
}

type observation struct {
	url     string
	textLen int
	signals []detect.Signal
}

func (e *Executor) observe(ctx context.Context, session Session) (observation, error) {
	var st detect.PageState
	var url string
	late, err := e.race(ctx, e.cfg.ProbeTimeout, func() error {
		var readErr error
		st, readErr = readPage(session)
		url = session.URL()
		return readErr
	})
	e.drain("observation", late, 0)
	if err != nil {
		return observation{}, err
	}
	return observation{
		url:     url,
		textLen: textLength(st.Text),
		signals: e.detector.Inspect(st),
	}, nil
}

// textLength is the visible text length used for the baseline, the
// observation and the blank-page check.
func textLength(text string) int {
	return len([]rune(strings.TrimSpace(text)))
}

func readPage(session Session) (detect.PageState, error) {
	title, err := session.Title()
	if err != nil {
		return detect.PageState{}, fmt.Errorf("failed to read title: %w", err)
	}
	text, err := session.VisibleText()
	if err != nil {
		return detect.PageState{}, err
	}
	html, err := session.Content()
	if err != nil {
		return detect.PageState{}, fmt.Errorf("failed to read content: %w", err)
	}
	return detect.PageState{Title: title, Text: text, HTML: html}, nil
}

var unsafeName = regexp.MustCompile(`[^a-z0-9]+`)

// captureFailure saves a screenshot for a failed case when configured.
func (e *Executor) captureFailure(ctx context.Context, session Session, index int, r plan.TestResult) plan.TestResult {
	if e.cfg.ScreenshotDir == "" {
		return r
	}
	slug := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(r.TestName), "-"), "-")
	path := filepath.Join(e.cfg.ScreenshotDir, fmt.Sprintf("%02d-%s.png", index+1, slug))

	late, err := e.race(ctx, e.cfg.ProbeTimeout, func() error {
		return session.Screenshot(path)
	})
	e.drain("screenshot", late, 0)
	if err != nil {
		e.log.Warnf("screenshot for %q failed: %v", r.TestName, err)
		return r
	}
	r.Screenshot = path
	return r
}

// race runs fn against a timer. When fn loses, the returned channel
// delivers its eventual outcome and must be passed to drain.
func (e *Executor) race(ctx context.Context, limit time.Duration, fn func() error) (<-chan error, error) {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("driver panic: %v", p)
			}
		}()
		done <- fn()
	}()

	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case err := <-done:
		return nil, err
	case <-timer.C:
		return done, fmt.Errorf("%w after %s", plan.ErrActionTimeout, limit)
	case <-ctx.Done():
		return done, ctx.Err()
	}
}

// drain observes the outcome of an operation that lost its race. It waits
// up to wait, then hands the channel to a goroutine that logs the outcome
// whenever it arrives.
func (e *Executor) drain(label string, late <-chan error, wait time.Duration) {
	if late == nil {
		return
	}
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case err := <-late:
			e.log.Debugf("late %s outcome: %v", label, err)
			return
		case <-timer.C:
		}
	}
	go func() {
		err := <-late
		e.log.Debugf("late %s outcome: %v", label, err)
	}()
}

func (e *Executor) emit(ev *types.RunEvent) {
	if e.onEvent != nil {
		e.onEvent(ev)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
