package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"crm-backend/models"
)

// ErrAccountDisabled rejects logins for deactivated accounts before any
// session row is touched.
var ErrAccountDisabled = errors.New("account is deactivated")

// ErrReclaimConflict means the insert conflicted again right after a stale
// reclaim. Two reclaims racing can both land here; the caller surfaces a
// generic failure and the user retries. The single-retry bound is deliberate,
// it keeps two simultaneous logins from live-locking on each other.
var ErrReclaimConflict = errors.New("session conflict persisted after reclaim")

// SessionExistsError is the structured conflict returned when the account
// already holds a genuinely live session. It carries the competing session's
// metadata for display on the login screen.
type SessionExistsError struct {
	LastLoginAt time.Time
	DeviceInfo  string
}

func (e *SessionExistsError) Error() string {
	return "an active session already exists for this account"
}

// SessionIssuer establishes exclusive session ownership at login. Correctness
// rests on the store's unique user_id constraint; the issuer itself only
// reacts to insert conflicts.
type SessionIssuer struct {
	sessions   SessionStore
	identities IdentityStore
	staleAfter time.Duration
	now        func() time.Time
}

// NewSessionIssuer creates a SessionIssuer with the given stale threshold
func NewSessionIssuer(sessions SessionStore, identities IdentityStore, staleAfter time.Duration) *SessionIssuer {
	return &SessionIssuer{
		sessions:   sessions,
		identities: identities,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Issue attempts to create the user's single active session. It returns the
// new session and whether a stale predecessor was reclaimed along the way.
// Conflict with a live session returns *SessionExistsError; a deactivated
// account returns ErrAccountDisabled.
func (si *SessionIssuer) Issue(ctx context.Context, user *models.User, deviceInfo string) (*models.ActiveSession, bool, error) {
	if !user.IsActive {
		return nil, false, ErrAccountDisabled
	}

	if deviceInfo == "" {
		deviceInfo = DefaultDeviceInfo
	}

	token, err := GenerateSessionToken()
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := si.now()
	session := &models.ActiveSession{
		UserID:     user.ID.Hex(),
		Token:      token,
		CompanyID:  user.CompanyID,
		DeviceInfo: deviceInfo,
		LoginAt:    now,
	}

	err = si.sessions.Insert(ctx, session)
	if err == nil {
		return session, false, si.stampFresh(ctx, user, now)
	}
	if !errors.Is(err, ErrSessionConflict) {
		return nil, false, err
	}

	// Conflict: decide between stale reclaim and rejecting the login.
	identity, err := si.identities.GetByID(ctx, user.ID.Hex())
	if err != nil {
		return nil, false, err
	}
	if identity == nil {
		return nil, false, fmt.Errorf("user %s not found during conflict resolution", user.ID.Hex())
	}

	if now.Sub(identity.LastSeenAt) <= si.staleAfter {
		existing, err := si.sessions.GetByUserID(ctx, user.ID.Hex())
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return nil, false, &SessionExistsError{LastLoginAt: existing.LoginAt, DeviceInfo: existing.DeviceInfo}
		}
		// The competing session vanished between insert and read (logout
		// racing this login). Fall through and take the one retry.
	} else {
		// Stale: the previous session stopped heartbeating. Evict it and
		// stamp the forced-logout marker so a lingering tab self-terminates.
		if err := si.sessions.DeleteByUserID(ctx, user.ID.Hex()); err != nil {
			return nil, false, err
		}
		if err := si.identities.StampForceLogout(ctx, user.ID.Hex(), now); err != nil {
			return nil, false, err
		}
		slog.Info("Reclaimed stale session",
			"userID", user.ID.Hex(),
			"lastSeen", identity.LastSeenAt)
	}

	// Single retry. A second conflict is fatal for this attempt, never looped.
	if err := si.sessions.Insert(ctx, session); err != nil {
		if errors.Is(err, ErrSessionConflict) {
			return nil, false, ErrReclaimConflict
		}
		return nil, false, err
	}
	return session, true, si.stampFresh(ctx, user, now)
}

// stampFresh marks the brand-new session as alive so a concurrent login does
// not immediately judge it stale.
func (si *SessionIssuer) stampFresh(ctx context.Context, user *models.User, now time.Time) error {
	if err := si.identities.UpdateLastSeen(ctx, user.ID.Hex(), now); err != nil {
		return fmt.Errorf("session created but failed to stamp last seen: %w", err)
	}
	return nil
}

// Revoke implements the logout contract: delete the matching session row if
// present. Idempotent, absence is not an error.
func (si *SessionIssuer) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return si.sessions.DeleteByToken(ctx, token)
}

// ForceLogout terminates the user's session server-side and stamps the
// forced-logout marker, which the push channel relays to any open tab.
func (si *SessionIssuer) ForceLogout(ctx context.Context, userID string) error {
	if err := si.sessions.DeleteByUserID(ctx, userID); err != nil {
		return err
	}
	return si.identities.StampForceLogout(ctx, userID, si.now())
}
