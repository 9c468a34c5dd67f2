package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/webprobe/pkg/detect"
	"github.com/entrhq/webprobe/pkg/plan"
	"github.com/entrhq/webprobe/pkg/types"
)

const baseURL = "https://shop.example.com"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ActionTimeout = 50 * time.Millisecond
	cfg.NavigationTimeout = 200 * time.Millisecond
	cfg.ProbeTimeout = 200 * time.Millisecond
	cfg.RecoveryTimeout = 200 * time.Millisecond
	cfg.SettleDelay = 0
	cfg.DrainTimeout = 10 * time.Millisecond
	cfg.CloseTimeout = 100 * time.Millisecond
	return cfg
}

func newTestExecutor(t *testing.T, factory *fakeFactory, actor Actor, cfg Config, opts ...Option) *Executor {
	t.Helper()
	handle, err := NewSessionHandle(factory, cfg.CloseTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { _ = handle.Close() })

	detector, err := detect.New(detect.DefaultPolicy())
	require.NoError(t, err)

	opts = append([]Option{WithConfig(cfg), WithActor(actor)}, opts...)
	return New(handle, detector, opts...)
}

func testCase(name string) plan.TestCase {
	return plan.TestCase{
		Name:             name,
		Action:           "click " + name,
		ExpectedBehavior: name + " works",
		RiskLevel:        plan.RiskMedium,
		ElementSelector:  "#" + name,
	}
}

func TestRunPassed(t *testing.T) {
	factory := &fakeFactory{}
	actor := ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error {
		_, err := d.Navigate(base+"/products", time.Second)
		return err
	})
	ex := newTestExecutor(t, factory, actor, testConfig())

	results := ex.Run(context.Background(), baseURL, []plan.TestCase{testCase("products")})

	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, plan.StatusPassed, r.Status)
	assert.Empty(t, r.Error)
	assert.Equal(t, "products", r.TestName)
	assert.Equal(t, "click products", r.Action)
	assert.Equal(t, plan.RiskMedium, r.RiskLevel)
	assert.Equal(t, baseURL+"/products", r.FinalURL)
	assert.Contains(t, r.ActualBehavior, baseURL+"/products")
	assert.Equal(t, 1, factory.built())
}

func TestRunConsoleErrorFails(t *testing.T) {
	factory := &fakeFactory{}
	actor := ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error {
		s := d.(*fakeSession)
		s.emitConsole("warning", "Failed to load resource: net::ERR_BLOCKED_BY_CLIENT")
		s.emitConsole("error", "Uncaught TypeError: Cannot read properties of undefined (reading 'price')")
		return nil
	})
	ex := newTestExecutor(t, factory, actor, testConfig())

	results := ex.Run(context.Background(), baseURL, []plan.TestCase{testCase("cart")})

	require.Len(t, results, 1)
	assert.Equal(t, plan.StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "TypeError")
	assert.NotContains(t, results[0].Error, "ERR_BLOCKED_BY_CLIENT")
}

func TestRunPageErrorFails(t *testing.T) {
	factory := &fakeFactory{}
	actor := ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error {
		d.(*fakeSession).emitPageError("ReferenceError: checkout is not defined")
		return nil
	})
	ex := newTestExecutor(t, factory, actor, testConfig())

	results := ex.Run(context.Background(), baseURL, []plan.TestCase{testCase("checkout")})

	assert.Equal(t, plan.StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "pageerror: ReferenceError")
}

func TestRunCrashBannerAfterActionFails(t *testing.T) {
	factory := &fakeFactory{}
	actor := ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error {
		d.(*fakeSession).set(func(f *fakeSession) {
			f.text = "Application error: a client-side exception has occurred"
		})
		return nil
	})
	ex := newTestExecutor(t, factory, actor, testConfig())

	results := ex.Run(context.Background(), baseURL, []plan.TestCase{testCase("search")})

	assert.Equal(t, plan.StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, string(detect.SignalCrashBanner))
	assert.Contains(t, results[0].ActualBehavior, "blank")
}

func TestRunActionErrorKeepsSession(t *testing.T) {
	factory := &fakeFactory{}
	actor := ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error {
		if c.Name == "missing" {
			return errors.New("element #missing not found")
		}
		return nil
	})
	ex := newTestExecutor(t, factory, actor, testConfig())

	results := ex.Run(context.Background(), baseURL, []plan.TestCase{testCase("missing"), testCase("ok")})

	require.Len(t, results, 2)
	assert.Equal(t, plan.StatusFailed, results[0].Status)
	assert.Equal(t, "element #missing not found", results[0].Error)
	assert.Equal(t, plan.StatusPassed, results[1].Status)
	assert.Equal(t, 1, factory.built())
}

func TestRunActionTimeoutRecoversByReload(t *testing.T) {
	factory := &fakeFactory{}
	release := make(chan struct{})
	defer close(release)

	actor := ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error {
		if c.Name == "hang" {
			<-release
		}
		return nil
	})
	cfg := testConfig()
	ex := newTestExecutor(t, factory, actor, cfg)

	start := time.Now()
	results := ex.Run(context.Background(), baseURL, []plan.TestCase{testCase("hang"), testCase("after")})

	require.Len(t, results, 2)
	assert.Equal(t, plan.StatusFailed, results[0].Status)
	assert.Equal(t, "Navigation timeout after 50ms", results[0].Error)
	assert.Equal(t, plan.StatusPassed, results[1].Status)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, 1, factory.built(), "reload recovery keeps the session")
	assert.Contains(t, factory.session(0).Calls(), "reload")
}

func TestRunActionTimeoutRebuildsWhenReloadFails(t *testing.T) {
	factory := &fakeFactory{setup: func(s *fakeSession) {
		if s.id == 1 {
			s.reloadErr = errors.New("target closed")
		}
	}}
	release := make(chan struct{})
	defer close(release)

	var replaced int32
	actor := ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error {
		if c.Name == "hang" {
			<-release
		}
		return nil
	})
	ex := newTestExecutor(t, factory, actor, testConfig(), WithEventHandler(func(ev *types.RunEvent) {
		if ev.Type == types.EventTypeSessionReplaced {
			atomic.AddInt32(&replaced, 1)
		}
	}))

	results := ex.Run(context.Background(), baseURL, []plan.TestCase{testCase("hang"), testCase("after")})

	assert.Equal(t, plan.StatusFailed, results[0].Status)
	assert.Equal(t, plan.StatusPassed, results[1].Status)
	assert.Equal(t, 2, factory.built())
	assert.True(t, factory.session(0).isClosed())
	assert.Equal(t, int32(1), atomic.LoadInt32(&replaced))
	assert.Equal(t, 2, ex.handle.Generation())
}

func TestRunBrokenBaselineSkips(t *testing.T) {
	factory := &fakeFactory{setup: func(s *fakeSession) {
		s.title = "404 Not Found"
	}}
	var calls int32
	actor := ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	ex := newTestExecutor(t, factory, actor, testConfig())

	results := ex.Run(context.Background(), baseURL, []plan.TestCase{testCase("a"), testCase("b")})

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, plan.StatusSkipped, r.Status)
		assert.Equal(t, ReasonPageBroken, r.Error)
		assert.Contains(t, r.ActualBehavior, string(detect.SignalErrorTitle))
	}
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestRunHTTPErrorBaselineSkips(t *testing.T) {
	factory := &fakeFactory{setup: func(s *fakeSession) { s.status = 500 }}
	ex := newTestExecutor(t, factory, ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error {
		t.Fatal("action must not run")
		return nil
	}), testConfig())

	results := ex.Run(context.Background(), baseURL, []plan.TestCase{testCase("a")})

	assert.Equal(t, plan.StatusSkipped, results[0].Status)
	assert.Contains(t, results[0].ActualBehavior, "HTTP 500")
}

func TestRunProbeFailureRebuildsAndRunsCase(t *testing.T) {
	factory := &fakeFactory{setup: func(s *fakeSession) {
		if s.id == 1 {
			s.probeErr = errors.New("Target page, context or browser has been closed")
		}
	}}
	var ran int32
	actor := ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})
	ex := newTestExecutor(t, factory, actor, testConfig())

	results := ex.Run(context.Background(), baseURL, []plan.TestCase{testCase("a")})

	assert.Equal(t, plan.StatusPassed, results[0].Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
	assert.Equal(t, 2, factory.built())
	assert.True(t, factory.session(0).isClosed())
}

func TestRunSessionUnavailable(t *testing.T) {
	factory := &fakeFactory{failFrom: 2, setup: func(s *fakeSession) {
		s.probeErr = errors.New("browser crashed")
	}}
	ex := newTestExecutor(t, factory, ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error {
		return nil
	}), testConfig())

	results := ex.Run(context.Background(), baseURL, []plan.TestCase{testCase("a"), testCase("b")})

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, plan.StatusFailed, r.Status)
		assert.Contains(t, r.Error, "browser session unavailable")
	}
}

func TestRunNavigationFailure(t *testing.T) {
	factory := &fakeFactory{setup: func(s *fakeSession) {
		s.navErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	}}
	ex := newTestExecutor(t, factory, ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error {
		return nil
	}), testConfig())

	results := ex.Run(context.Background(), baseURL, []plan.TestCase{testCase("a")})

	assert.Equal(t, plan.StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "ERR_NAME_NOT_RESOLVED")
}

func TestRunListenerIsolation(t *testing.T) {
	factory := &fakeFactory{}
	var first *fakeSession
	actor := ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error {
		s := d.(*fakeSession)
		if c.Name == "noisy" {
			first = s
			s.emitConsole("error", "TypeError: x is not a function")
		}
		return nil
	})
	ex := newTestExecutor(t, factory, actor, testConfig())

	results := ex.Run(context.Background(), baseURL, []plan.TestCase{testCase("noisy"), testCase("quiet")})

	assert.Equal(t, plan.StatusFailed, results[0].Status)
	assert.Equal(t, plan.StatusPassed, results[1].Status)
	require.NotNil(t, first)
	assert.Zero(t, first.listenerCount(), "listeners must be detached after each case")
}

func TestRunCancelledSkipsRemaining(t *testing.T) {
	factory := &fakeFactory{}
	ctx, cancel := context.WithCancel(context.Background())
	actor := ActorFunc(func(actx context.Context, d Driver, base string, c plan.TestCase) error {
		if c.Name == "first" {
			cancel()
		}
		return nil
	})
	ex := newTestExecutor(t, factory, actor, testConfig())

	cases := []plan.TestCase{testCase("first"), testCase("second"), testCase("third")}
	results := ex.Run(ctx, baseURL, cases)

	require.Len(t, results, len(cases))
	for i, r := range results[1:] {
		assert.Equal(t, cases[i+1].Name, r.TestName)
		assert.Equal(t, plan.StatusSkipped, r.Status)
		assert.Contains(t, r.Error, "run cancelled")
	}
}

func TestRunResultOrderAndLength(t *testing.T) {
	factory := &fakeFactory{}
	actor := ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error {
		if strings.HasPrefix(c.Name, "bad") {
			return errors.New("boom")
		}
		return nil
	})
	ex := newTestExecutor(t, factory, actor, testConfig())

	cases := []plan.TestCase{testCase("ok1"), testCase("bad1"), testCase("ok2"), testCase("bad2"), testCase("ok3")}
	results := ex.Run(context.Background(), baseURL, cases)

	require.Len(t, results, len(cases))
	for i := range cases {
		assert.Equal(t, cases[i].Name, results[i].TestName)
	}
	assert.Equal(t, plan.Totals{Total: 5, Passed: 3, Failed: 2}, plan.Tally(results))

	assert.Empty(t, ex.Run(context.Background(), baseURL, nil))
}

func TestRunIsRepeatable(t *testing.T) {
	factory := &fakeFactory{}
	ex := newTestExecutor(t, factory, ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error {
		return nil
	}), testConfig())

	cases := []plan.TestCase{testCase("a"), testCase("b")}
	first := ex.Run(context.Background(), baseURL, cases)
	second := ex.Run(context.Background(), baseURL, cases)

	for i := range cases {
		assert.Equal(t, first[i].Status, second[i].Status)
		assert.Equal(t, first[i].FinalURL, second[i].FinalURL)
	}
}

func TestRunPeriodicReset(t *testing.T) {
	noop := ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error { return nil })
	cases := []plan.TestCase{testCase("a"), testCase("b"), testCase("c"), testCase("d"), testCase("e")}

	t.Run("rebuild", func(t *testing.T) {
		factory := &fakeFactory{}
		cfg := testConfig()
		cfg.Reset = ResetPolicy{Every: 2, Mode: ResetRebuild}
		ex := newTestExecutor(t, factory, noop, cfg)

		results := ex.Run(context.Background(), baseURL, cases)

		assert.Equal(t, 5, plan.Tally(results).Passed)
		// resets before cases 3 and 5
		assert.Equal(t, 3, factory.built())
	})

	t.Run("reload", func(t *testing.T) {
		factory := &fakeFactory{}
		cfg := testConfig()
		cfg.Reset = ResetPolicy{Every: 2, Mode: ResetReload}

		var mu sync.Mutex
		var resets []string
		ex := newTestExecutor(t, factory, noop, cfg, WithEventHandler(func(ev *types.RunEvent) {
			if ev.Type == types.EventTypeSessionReset {
				mu.Lock()
				resets = append(resets, ev.Content)
				mu.Unlock()
			}
		}))

		ex.Run(context.Background(), baseURL, cases)

		assert.Equal(t, 1, factory.built())
		assert.Equal(t, []string{"reload", "reload"}, resets)
	})
}

func TestRunScreenshotOnFailure(t *testing.T) {
	factory := &fakeFactory{}
	cfg := testConfig()
	cfg.ScreenshotDir = t.TempDir()
	actor := ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error {
		if c.Name == "Add To Cart" {
			return errors.New("element detached")
		}
		return nil
	})
	ex := newTestExecutor(t, factory, actor, cfg)

	results := ex.Run(context.Background(), baseURL, []plan.TestCase{testCase("Add To Cart"), testCase("fine")})

	assert.Contains(t, results[0].Screenshot, "01-add-to-cart.png")
	assert.Empty(t, results[1].Screenshot)
	assert.Len(t, factory.session(0).shots, 1)
}

func TestRunEmitsCaseEvents(t *testing.T) {
	factory := &fakeFactory{}
	var mu sync.Mutex
	var events []*types.RunEvent
	ex := newTestExecutor(t, factory, ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error {
		return nil
	}), testConfig(), WithEventHandler(func(ev *types.RunEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))

	ex.Run(context.Background(), baseURL, []plan.TestCase{testCase("a"), testCase("b")})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 4)
	assert.Equal(t, types.EventTypeCaseStart, events[0].Type)
	assert.Equal(t, types.EventTypeCaseEnd, events[1].Type)
	require.NotNil(t, events[1].Result)
	assert.Equal(t, plan.StatusPassed, events[1].Result.Status)
	assert.Equal(t, 1, events[3].CaseIndex)
	assert.Equal(t, 2, events[3].CaseTotal)
}

func TestRunDriverTimeoutIsActionError(t *testing.T) {
	var mu sync.Mutex
	var seen []time.Duration
	factory := &fakeFactory{setup: func(s *fakeSession) {
		s.clickFn = func(selector string, timeout time.Duration) error {
			mu.Lock()
			seen = append(seen, timeout)
			mu.Unlock()
			time.Sleep(timeout)
			return fmt.Errorf("click failed: Timeout %dms exceeded", timeout.Milliseconds())
		}
	}}
	cfg := testConfig()
	cfg.ActionTimeout = 500 * time.Millisecond
	ex := newTestExecutor(t, factory, nil, cfg)

	cases := []plan.TestCase{testCase("missing"), testCase("missing")}
	results := ex.Run(context.Background(), baseURL, cases)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, plan.StatusFailed, r.Status)
		assert.Contains(t, r.Error, "Timeout 400ms exceeded")
		assert.NotContains(t, r.Error, "Navigation timeout")
	}
	assert.Equal(t, 1, factory.built())
	assert.NotContains(t, factory.session(0).Calls(), "reload")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Duration{cfg.ActionDriverTimeout(), cfg.ActionDriverTimeout()}, seen)
	assert.Less(t, cfg.ActionDriverTimeout(), cfg.ActionTimeout)
}

func TestRunPeriodicReloadTimeoutRebuilds(t *testing.T) {
	factory := &fakeFactory{setup: func(s *fakeSession) {
		if s.id == 1 {
			s.reloadDelay = time.Second
		}
	}}
	cfg := testConfig()
	cfg.Reset = ResetPolicy{Every: 1, Mode: ResetReload}
	noop := ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error { return nil })
	ex := newTestExecutor(t, factory, noop, cfg)

	results := ex.Run(context.Background(), baseURL, []plan.TestCase{testCase("a"), testCase("b"), testCase("c")})

	require.Len(t, results, 3)
	assert.Equal(t, plan.StatusPassed, results[0].Status)
	assert.Equal(t, plan.StatusFailed, results[1].Status)
	assert.Contains(t, results[1].Error, "periodic reload failed")
	assert.Equal(t, plan.StatusPassed, results[2].Status)
	assert.Equal(t, 2, factory.built())
	assert.True(t, factory.session(0).isClosed())
}

func TestRunCancelledDuringProbeSkips(t *testing.T) {
	factory := &fakeFactory{setup: func(s *fakeSession) {
		s.probeDelay = 500 * time.Millisecond
	}}
	ex := newTestExecutor(t, factory, ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error {
		t.Fatal("action must not run")
		return nil
	}), testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	results := ex.Run(ctx, baseURL, []plan.TestCase{testCase("a"), testCase("b")})

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, plan.StatusSkipped, r.Status)
		assert.Contains(t, r.Error, "run cancelled")
	}
	assert.Zero(t, plan.Tally(results).Failed)
	assert.Equal(t, 1, factory.built())
}

func TestRunTextLengthIgnoresWhitespace(t *testing.T) {
	factory := &fakeFactory{setup: func(s *fakeSession) {
		s.text = "\n\n   " + healthyText + "   \n"
	}}
	noop := ActorFunc(func(ctx context.Context, d Driver, base string, c plan.TestCase) error { return nil })
	ex := newTestExecutor(t, factory, noop, testConfig())

	results := ex.Run(context.Background(), baseURL, []plan.TestCase{testCase("a")})

	n := len([]rune(strings.TrimSpace(healthyText)))
	assert.Equal(t, plan.StatusPassed, results[0].Status)
	assert.Contains(t, results[0].ActualBehavior, fmt.Sprintf("text length %d -> %d", n, n))
}
