package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"crm-backend/models"
)

// fakeSessionStore is an in-memory SessionStore keyed by user ID, mirroring
// the unique user_id index on the real collection.
type fakeSessionStore struct {
	mu     sync.Mutex
	byUser map[string]*models.ActiveSession

	insertCalls    int
	conflictOnce   bool
	alwaysConflict bool
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{byUser: make(map[string]*models.ActiveSession)}
}

func (s *fakeSessionStore) Insert(ctx context.Context, session *models.ActiveSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.insertCalls++
	if s.alwaysConflict {
		return ErrSessionConflict
	}
	if s.conflictOnce {
		s.conflictOnce = false
		return ErrSessionConflict
	}
	if _, exists := s.byUser[session.UserID]; exists {
		return ErrSessionConflict
	}
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	copied := *session
	s.byUser[session.UserID] = &copied
	return nil
}

func (s *fakeSessionStore) GetByToken(ctx context.Context, token string) (*models.ActiveSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, session := range s.byUser {
		if session.Token == token {
			copied := *session
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeSessionStore) GetByUserID(ctx context.Context, userID string) (*models.ActiveSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.byUser[userID]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (s *fakeSessionStore) DeleteByToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for userID, session := range s.byUser {
		if session.Token == token {
			delete(s.byUser, userID)
			return nil
		}
	}
	return nil
}

func (s *fakeSessionStore) DeleteByUserID(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.byUser, userID)
	return nil
}

func (s *fakeSessionStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for userID, session := range s.byUser {
		if session.LoginAt.Before(cutoff) {
			delete(s.byUser, userID)
			deleted++
		}
	}
	return deleted, nil
}

func (s *fakeSessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byUser)
}

// fakeIdentityStore is an in-memory IdentityStore.
type fakeIdentityStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeIdentityStore(users ...*models.User) *fakeIdentityStore {
	store := &fakeIdentityStore{users: make(map[string]*models.User)}
	for _, user := range users {
		store.users[user.ID.Hex()] = user
	}
	return store
}

func (s *fakeIdentityStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (s *fakeIdentityStore) GetByEmailAndCompany(ctx context.Context, email, companyID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if user.Email == email && user.CompanyID == companyID {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeIdentityStore) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.users[id]; ok {
		user.LastSeenAt = at
	}
	return nil
}

func (s *fakeIdentityStore) StampForceLogout(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.users[id]; ok {
		user.LastForceLogoutAt = at
	}
	return nil
}

func (s *fakeIdentityStore) get(id string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

func testUser(lastSeen time.Time) *models.User {
	return &models.User{
		ID:         primitive.NewObjectID(),
		Username:   "ana",
		Email:      "ana@example.com",
		CompanyID:  "acme",
		Role:       models.RoleSales,
		IsActive:   true,
		LastSeenAt: lastSeen,
	}
}

func newTestIssuer(sessions *fakeSessionStore, identities *fakeIdentityStore, now time.Time) *SessionIssuer {
	issuer := NewSessionIssuer(sessions, identities, 2*time.Minute)
	issuer.now = func() time.Time { return now }
	return issuer
}

func TestIssueFreshLogin(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	user := testUser(time.Time{})
	sessions := newFakeSessionStore()
	identities := newFakeIdentityStore(user)
	issuer := newTestIssuer(sessions, identities, now)

	session, reclaimed, err := issuer.Issue(context.Background(), user, "chrome/mac")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if reclaimed {
		t.Error("fresh login should not report a reclaim")
	}
	if session.Token == "" {
		t.Error("expected a non-empty session token")
	}
	if session.UserID != user.ID.Hex() {
		t.Errorf("session user = %s, want %s", session.UserID, user.ID.Hex())
	}
	if !session.LoginAt.Equal(now) {
		t.Errorf("session LoginAt = %v, want %v", session.LoginAt, now)
	}
	if session.DeviceInfo != "chrome/mac" {
		t.Errorf("session DeviceInfo = %q, want %q", session.DeviceInfo, "chrome/mac")
	}

	stored, _ := sessions.GetByUserID(context.Background(), user.ID.Hex())
	if stored == nil {
		t.Fatal("expected a session row in the store")
	}
	if !identities.get(user.ID.Hex()).LastSeenAt.Equal(now) {
		t.Error("fresh login should stamp last seen so a concurrent login does not judge it stale")
	}
}

func TestIssueDefaultsDeviceInfo(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	user := testUser(time.Time{})
	sessions := newFakeSessionStore()
	issuer := newTestIssuer(sessions, newFakeIdentityStore(user), now)

	session, _, err := issuer.Issue(context.Background(), user, "")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if session.DeviceInfo != DefaultDeviceInfo {
		t.Errorf("DeviceInfo = %q, want %q", session.DeviceInfo, DefaultDeviceInfo)
	}
}

func TestIssueRejectsDeactivatedAccount(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	user := testUser(now)
	user.IsActive = false
	sessions := newFakeSessionStore()
	issuer := newTestIssuer(sessions, newFakeIdentityStore(user), now)

	_, _, err := issuer.Issue(context.Background(), user, "chrome/mac")
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("err = %v, want ErrAccountDisabled", err)
	}
	if sessions.insertCalls != 0 {
		t.Error("deactivated account must be rejected before any session row is touched")
	}
}

func TestIssueConflictWithLiveSession(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	loginAt := now.Add(-30 * time.Minute)
	user := testUser(now.Add(-time.Minute)) // seen within the stale threshold
	sessions := newFakeSessionStore()
	identities := newFakeIdentityStore(user)
	issuer := newTestIssuer(sessions, identities, now)

	existing := &models.ActiveSession{
		UserID:     user.ID.Hex(),
		Token:      "existing-token",
		CompanyID:  user.CompanyID,
		DeviceInfo: "firefox/linux",
		LoginAt:    loginAt,
	}
	if err := sessions.Insert(context.Background(), existing); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}

	_, _, err := issuer.Issue(context.Background(), user, "chrome/mac")
	var conflict *SessionExistsError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want *SessionExistsError", err)
	}
	if !conflict.LastLoginAt.Equal(loginAt) {
		t.Errorf("conflict LastLoginAt = %v, want %v", conflict.LastLoginAt, loginAt)
	}
	if conflict.DeviceInfo != "firefox/linux" {
		t.Errorf("conflict DeviceInfo = %q, want %q", conflict.DeviceInfo, "firefox/linux")
	}

	stored, _ := sessions.GetByUserID(context.Background(), user.ID.Hex())
	if stored == nil || stored.Token != "existing-token" {
		t.Error("rejected login must leave the existing session untouched")
	}
	if !identities.get(user.ID.Hex()).LastForceLogoutAt.IsZero() {
		t.Error("rejected login must not stamp a forced-logout marker")
	}
}

func TestIssueTreatsThresholdAsLive(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	user := testUser(now.Add(-2 * time.Minute)) // exactly at the threshold
	sessions := newFakeSessionStore()
	issuer := newTestIssuer(sessions, newFakeIdentityStore(user), now)

	seed := &models.ActiveSession{UserID: user.ID.Hex(), Token: "t", LoginAt: now.Add(-time.Hour)}
	if err := sessions.Insert(context.Background(), seed); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}

	_, _, err := issuer.Issue(context.Background(), user, "chrome/mac")
	var conflict *SessionExistsError
	if !errors.As(err, &conflict) {
		t.Fatalf("last seen exactly at the threshold should still count as live, got %v", err)
	}
}

func TestIssueReclaimsStaleSession(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	user := testUser(now.Add(-10 * time.Minute)) // well past the stale threshold
	sessions := newFakeSessionStore()
	identities := newFakeIdentityStore(user)
	issuer := newTestIssuer(sessions, identities, now)

	stale := &models.ActiveSession{
		UserID:  user.ID.Hex(),
		Token:   "stale-token",
		LoginAt: now.Add(-time.Hour),
	}
	if err := sessions.Insert(context.Background(), stale); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}

	session, reclaimed, err := issuer.Issue(context.Background(), user, "chrome/mac")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if !reclaimed {
		t.Error("expected the stale session to be reclaimed")
	}
	if session.Token == "stale-token" {
		t.Error("reclaim must issue a new token")
	}

	if got, _ := sessions.GetByToken(context.Background(), "stale-token"); got != nil {
		t.Error("stale session row should be gone")
	}
	if sessions.count() != 1 {
		t.Errorf("store holds %d rows, want exactly 1", sessions.count())
	}

	identity := identities.get(user.ID.Hex())
	if !identity.LastForceLogoutAt.Equal(now) {
		t.Errorf("forced-logout marker = %v, want %v", identity.LastForceLogoutAt, now)
	}
	// The marker must not postdate the new session's start, otherwise the
	// reclaiming browser would terminate itself on the pushed echo.
	if identity.LastForceLogoutAt.After(session.LoginAt) {
		t.Error("forced-logout marker must not be after the new session's LoginAt")
	}
	if !identity.LastSeenAt.Equal(now) {
		t.Error("reclaimed login should stamp last seen")
	}
}

func TestIssueRetriesWhenSessionVanishes(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	user := testUser(now) // fresh, but the conflicting row is already gone
	sessions := newFakeSessionStore()
	sessions.conflictOnce = true // logout raced this login between insert and read
	issuer := newTestIssuer(sessions, newFakeIdentityStore(user), now)

	session, reclaimed, err := issuer.Issue(context.Background(), user, "chrome/mac")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if !reclaimed {
		t.Error("retry after a vanished session should report reclaimed")
	}
	if session == nil || sessions.count() != 1 {
		t.Error("expected exactly one session row after the retry")
	}
}

func TestIssueGivesUpAfterSecondConflict(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	user := testUser(now.Add(-10 * time.Minute))
	sessions := newFakeSessionStore()
	sessions.alwaysConflict = true // a competing reclaim keeps winning the insert
	issuer := newTestIssuer(sessions, newFakeIdentityStore(user), now)

	_, _, err := issuer.Issue(context.Background(), user, "chrome/mac")
	if !errors.Is(err, ErrReclaimConflict) {
		t.Fatalf("err = %v, want ErrReclaimConflict", err)
	}
	if sessions.insertCalls != 2 {
		t.Errorf("insert attempted %d times, want exactly 2 (one retry, never a loop)", sessions.insertCalls)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	user := testUser(time.Time{})
	sessions := newFakeSessionStore()
	issuer := newTestIssuer(sessions, newFakeIdentityStore(user), now)

	session, _, err := issuer.Issue(context.Background(), user, "chrome/mac")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if err := issuer.Revoke(context.Background(), session.Token); err != nil {
		t.Fatalf("first Revoke returned error: %v", err)
	}
	if sessions.count() != 0 {
		t.Fatal("session row should be gone after revoke")
	}
	if err := issuer.Revoke(context.Background(), session.Token); err != nil {
		t.Fatalf("second Revoke must be a no-op, got error: %v", err)
	}
	if err := issuer.Revoke(context.Background(), ""); err != nil {
		t.Fatalf("Revoke with empty token must be a no-op, got error: %v", err)
	}
}

func TestForceLogoutDeletesSessionAndStampsMarker(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	user := testUser(now)
	sessions := newFakeSessionStore()
	identities := newFakeIdentityStore(user)
	issuer := newTestIssuer(sessions, identities, now)

	if _, _, err := issuer.Issue(context.Background(), user, "chrome/mac"); err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if err := issuer.ForceLogout(context.Background(), user.ID.Hex()); err != nil {
		t.Fatalf("ForceLogout returned error: %v", err)
	}
	if sessions.count() != 0 {
		t.Error("session row should be gone after force logout")
	}
	if !identities.get(user.ID.Hex()).LastForceLogoutAt.Equal(now) {
		t.Error("force logout should stamp the forced-logout marker")
	}

	// Forcing logout for a user with no session is a no-op, not an error.
	if err := issuer.ForceLogout(context.Background(), user.ID.Hex()); err != nil {
		t.Fatalf("repeated ForceLogout returned error: %v", err)
	}
}
