// Package monitor implements the client-side session monitor: a heartbeat
// ticker plus a push subscription on the user's identity record, torn down
// together. A CRM client runs one Monitor for the lifetime of an
// authenticated session and reacts to remote termination (forced logout,
// account deactivation) through a single callback.
package monitor

import (
	"context"
	"log/slog"
	"time"
)

// DefaultHeartbeatInterval matches the server's stale-session threshold: a
// session that misses one beat becomes reclaimable.
const DefaultHeartbeatInterval = 2 * time.Minute

// IdentityEvent is one update of the monitored user's identity record as
// delivered by the push channel.
type IdentityEvent struct {
	UserID            string
	IsActive          bool
	LastForceLogoutAt time.Time
}

// Subscription is a cancellable stream of identity updates. Events must be
// closed when the subscription ends; Close must be safe to call more than
// once.
type Subscription interface {
	Events() <-chan IdentityEvent
	Close() error
}

// Heartbeater proves liveness for the session's user. active == false means
// the backend no longer considers this session's account live.
type Heartbeater interface {
	Beat(ctx context.Context, userID string) (active bool, err error)
}

// TerminateReason says why the session ended
type TerminateReason string

const (
	ReasonForcedLogout TerminateReason = "forced_logout"
	ReasonDeactivated  TerminateReason = "deactivated"
)

// Monitor watches one authenticated session. Run drives both duties on a
// single goroutine, so heartbeat handling and event handling never overlap.
type Monitor struct {
	userID       string
	sessionStart time.Time
	interval     time.Duration
	heartbeat    Heartbeater
	sub          Subscription
	onTerminate  func(TerminateReason)
	terminated   bool
}

// Option configures a Monitor
type Option func(*Monitor)

// WithInterval overrides the heartbeat interval
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// New creates a Monitor for the given user. sessionStart is the login
// timestamp of this browser session, captured once at sign-in; forced-logout
// markers at or before it are ignored so the session that triggered a reclaim
// does not terminate itself on the echo.
func New(userID string, sessionStart time.Time, heartbeat Heartbeater, sub Subscription, onTerminate func(TerminateReason), opts ...Option) *Monitor {
	m := &Monitor{
		userID:       userID,
		sessionStart: sessionStart,
		interval:     DefaultHeartbeatInterval,
		heartbeat:    heartbeat,
		sub:          sub,
		onTerminate:  onTerminate,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run blocks until the session terminates or ctx is cancelled. It beats
// immediately on start, then on every interval tick, and consumes push events
// between beats. When the push channel closes the monitor degrades to
// heartbeat-only detection instead of failing.
func (m *Monitor) Run(ctx context.Context) {
	defer m.sub.Close()

	if m.beat(ctx) {
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	events := m.sub.Events()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if m.beat(ctx) {
				return
			}

		case ev, ok := <-events:
			if !ok {
				// Push channel gone. Detection latency degrades to one
				// heartbeat interval, which is accepted.
				slog.Warn("Identity push channel closed, falling back to heartbeat-only detection",
					"userID", m.userID)
				events = nil
				continue
			}
			if m.handleEvent(ev) {
				return
			}
		}
	}
}

// beat sends one liveness ping. It reports true when the monitor terminated.
// Network failures are swallowed: a missed heartbeat must never log the user
// out, only an explicit inactive answer does.
func (m *Monitor) beat(ctx context.Context) bool {
	active, err := m.heartbeat.Beat(ctx, m.userID)
	if err != nil {
		slog.Warn("Heartbeat failed", "userID", m.userID, "error", err)
		return false
	}
	if !active {
		m.terminate(ReasonDeactivated)
		return true
	}
	return false
}

// handleEvent reacts to one identity update. It reports true when the monitor
// terminated. Events whose forced-logout marker is at or before this
// session's start are replays or echoes and are ignored.
func (m *Monitor) handleEvent(ev IdentityEvent) bool {
	if ev.UserID != "" && ev.UserID != m.userID {
		return false
	}
	if !ev.IsActive {
		m.terminate(ReasonDeactivated)
		return true
	}
	if ev.LastForceLogoutAt.After(m.sessionStart) {
		m.terminate(ReasonForcedLogout)
		return true
	}
	return false
}

// terminate fires the callback at most once and tears the subscription down
// so duplicate events cannot re-trigger it.
func (m *Monitor) terminate(reason TerminateReason) {
	if m.terminated {
		return
	}
	m.terminated = true
	m.sub.Close()

	slog.Info("Session terminated", "userID", m.userID, "reason", reason)
	if m.onTerminate != nil {
		m.onTerminate(reason)
	}
}
