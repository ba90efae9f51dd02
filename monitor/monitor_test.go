package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type heartbeatFunc func(ctx context.Context, userID string) (bool, error)

func (f heartbeatFunc) Beat(ctx context.Context, userID string) (bool, error) {
	return f(ctx, userID)
}

func alwaysActive() Heartbeater {
	return heartbeatFunc(func(ctx context.Context, userID string) (bool, error) {
		return true, nil
	})
}

// fakeSubscription feeds scripted identity events to a Monitor.
type fakeSubscription struct {
	ch     chan IdentityEvent
	mu     sync.Mutex
	closed bool
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{ch: make(chan IdentityEvent, 16)}
}

func (s *fakeSubscription) Events() <-chan IdentityEvent { return s.ch }

func (s *fakeSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

func (s *fakeSubscription) push(ev IdentityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.ch <- ev
	}
}

// runMonitor starts Run on its own goroutine and returns a cancel func plus a
// channel that closes when Run exits.
func runMonitor(t *testing.T, m *Monitor) (context.CancelFunc, chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()
	return cancel, done
}

func waitReason(t *testing.T, reasons chan TerminateReason) TerminateReason {
	t.Helper()
	select {
	case reason := <-reasons:
		return reason
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for termination")
		return ""
	}
}

func waitDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Run to return")
	}
}

func TestRunTerminatesOnForcedLogout(t *testing.T) {
	sessionStart := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	sub := newFakeSubscription()
	reasons := make(chan TerminateReason, 1)

	m := New("u1", sessionStart, alwaysActive(), sub,
		func(r TerminateReason) { reasons <- r },
		WithInterval(time.Hour))
	cancel, done := runMonitor(t, m)
	defer cancel()

	sub.push(IdentityEvent{
		UserID:            "u1",
		IsActive:          true,
		LastForceLogoutAt: sessionStart.Add(time.Second),
	})

	if reason := waitReason(t, reasons); reason != ReasonForcedLogout {
		t.Errorf("reason = %q, want %q", reason, ReasonForcedLogout)
	}
	waitDone(t, done)
}

func TestRunIgnoresReclaimEcho(t *testing.T) {
	sessionStart := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	sub := newFakeSubscription()
	reasons := make(chan TerminateReason, 1)

	m := New("u1", sessionStart, alwaysActive(), sub,
		func(r TerminateReason) { reasons <- r },
		WithInterval(time.Hour))
	cancel, done := runMonitor(t, m)
	defer cancel()

	// The marker stamped by this session's own reclaim lands exactly at the
	// session start; an older replay lands before it. Neither may terminate.
	sub.push(IdentityEvent{UserID: "u1", IsActive: true, LastForceLogoutAt: sessionStart})
	sub.push(IdentityEvent{UserID: "u1", IsActive: true, LastForceLogoutAt: sessionStart.Add(-time.Minute)})
	// A deactivation event afterwards proves the echoes were consumed
	// without terminating as forced_logout.
	sub.push(IdentityEvent{UserID: "u1", IsActive: false})

	if reason := waitReason(t, reasons); reason != ReasonDeactivated {
		t.Errorf("reason = %q, want %q", reason, ReasonDeactivated)
	}
	waitDone(t, done)
}

func TestRunSkipsEventsForOtherUsers(t *testing.T) {
	sessionStart := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	sub := newFakeSubscription()
	reasons := make(chan TerminateReason, 1)

	m := New("u1", sessionStart, alwaysActive(), sub,
		func(r TerminateReason) { reasons <- r },
		WithInterval(time.Hour))
	cancel, done := runMonitor(t, m)
	defer cancel()

	sub.push(IdentityEvent{UserID: "someone-else", IsActive: false})
	sub.push(IdentityEvent{UserID: "u1", IsActive: false})

	if reason := waitReason(t, reasons); reason != ReasonDeactivated {
		t.Errorf("reason = %q, want %q", reason, ReasonDeactivated)
	}
	waitDone(t, done)
}

func TestRunTerminatesWhenHeartbeatReportsInactive(t *testing.T) {
	sub := newFakeSubscription()
	reasons := make(chan TerminateReason, 1)

	inactive := heartbeatFunc(func(ctx context.Context, userID string) (bool, error) {
		return false, nil
	})
	m := New("u1", time.Now(), inactive, sub,
		func(r TerminateReason) { reasons <- r },
		WithInterval(time.Hour))
	cancel, done := runMonitor(t, m)
	defer cancel()

	// The immediate first beat already learns the account is gone.
	if reason := waitReason(t, reasons); reason != ReasonDeactivated {
		t.Errorf("reason = %q, want %q", reason, ReasonDeactivated)
	}
	waitDone(t, done)
}

func TestRunSwallowsHeartbeatFailures(t *testing.T) {
	sub := newFakeSubscription()
	reasons := make(chan TerminateReason, 1)

	var beats atomic.Int32
	flaky := heartbeatFunc(func(ctx context.Context, userID string) (bool, error) {
		switch beats.Add(1) {
		case 1, 2:
			return false, errors.New("connection refused")
		default:
			return false, nil
		}
	})
	m := New("u1", time.Now(), flaky, sub,
		func(r TerminateReason) { reasons <- r },
		WithInterval(5*time.Millisecond))
	cancel, done := runMonitor(t, m)
	defer cancel()

	// Two network failures must not log the user out; the explicit inactive
	// answer on the third beat does.
	if reason := waitReason(t, reasons); reason != ReasonDeactivated {
		t.Errorf("reason = %q, want %q", reason, ReasonDeactivated)
	}
	if got := beats.Load(); got < 3 {
		t.Errorf("heartbeat called %d times, want at least 3", got)
	}
	waitDone(t, done)
}

func TestRunDegradesToHeartbeatWhenChannelCloses(t *testing.T) {
	sub := newFakeSubscription()
	reasons := make(chan TerminateReason, 1)

	var beats atomic.Int32
	hb := heartbeatFunc(func(ctx context.Context, userID string) (bool, error) {
		return beats.Add(1) < 3, nil
	})
	m := New("u1", time.Now(), hb, sub,
		func(r TerminateReason) { reasons <- r },
		WithInterval(5*time.Millisecond))
	cancel, done := runMonitor(t, m)
	defer cancel()

	// Kill the push channel mid-session: detection must still arrive via the
	// heartbeat instead of the monitor failing or spinning.
	sub.Close()

	if reason := waitReason(t, reasons); reason != ReasonDeactivated {
		t.Errorf("reason = %q, want %q", reason, ReasonDeactivated)
	}
	waitDone(t, done)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	sub := newFakeSubscription()
	reasons := make(chan TerminateReason, 1)

	m := New("u1", time.Now(), alwaysActive(), sub,
		func(r TerminateReason) { reasons <- r },
		WithInterval(time.Hour))
	cancel, done := runMonitor(t, m)

	cancel()
	waitDone(t, done)

	select {
	case reason := <-reasons:
		t.Errorf("local shutdown must not fire the termination callback, got %q", reason)
	default:
	}
}

func TestTerminateFiresCallbackOnce(t *testing.T) {
	sub := newFakeSubscription()
	var calls int

	m := New("u1", time.Now(), alwaysActive(), sub,
		func(TerminateReason) { calls++ },
		WithInterval(time.Hour))

	m.terminate(ReasonForcedLogout)
	m.terminate(ReasonDeactivated)
	m.terminate(ReasonForcedLogout)

	if calls != 1 {
		t.Errorf("callback fired %d times, want exactly once", calls)
	}
}
