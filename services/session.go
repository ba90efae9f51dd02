package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"crm-backend/models"
)

const (
	SessionCookieName = "crm_session"

	// DefaultDeviceInfo is the coarse device descriptor recorded when the
	// login request carries none.
	DefaultDeviceInfo = "browser"
)

// ErrSessionConflict signals that an ActiveSession row already exists for the
// user. It is the expected outcome of a competing-login insert, not a fault.
var ErrSessionConflict = errors.New("active session already exists for user")

// SessionStore is the Session Guard's view of the active_sessions collection.
type SessionStore interface {
	// Insert creates the row, returning ErrSessionConflict when the user
	// already holds a session.
	Insert(ctx context.Context, session *models.ActiveSession) error
	// GetByToken returns nil, nil when no session matches.
	GetByToken(ctx context.Context, token string) (*models.ActiveSession, error)
	// GetByUserID returns nil, nil when the user holds no session.
	GetByUserID(ctx context.Context, userID string) (*models.ActiveSession, error)
	// DeleteByToken removes the row; absence is not an error.
	DeleteByToken(ctx context.Context, token string) error
	// DeleteByUserID removes the user's row; absence is not an error.
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteOlderThan removes rows whose login predates the cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// IdentityStore is the Session Guard's view of the users collection.
type IdentityStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	// GetByEmailAndCompany returns nil, nil when no user matches.
	GetByEmailAndCompany(ctx context.Context, email, companyID string) (*models.User, error)
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
	StampForceLogout(ctx context.Context, id string, at time.Time) error
}

// Package-level wiring, bound to Mongo in InitSessionGuard. Tests substitute
// in-memory implementations.
var (
	Sessions   SessionStore
	Identities IdentityStore
	Issuer     *SessionIssuer
)

// InitSessionGuard wires the session guard against the Mongo-backed stores.
func InitSessionGuard(staleAfter time.Duration) {
	Sessions = &mongoSessionStore{}
	Identities = &mongoIdentityStore{}
	Issuer = NewSessionIssuer(Sessions, Identities, staleAfter)
}

// GenerateSessionToken generates a secure random opaque session token
func GenerateSessionToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

type mongoSessionStore struct{}

func (s *mongoSessionStore) collection() *mongo.Collection {
	return GetDatabase().Collection("active_sessions")
}

func (s *mongoSessionStore) Insert(ctx context.Context, session *models.ActiveSession) error {
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	_, err := s.collection().InsertOne(ctx, session)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrSessionConflict
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *mongoSessionStore) GetByToken(ctx context.Context, token string) (*models.ActiveSession, error) {
	var session models.ActiveSession
	err := s.collection().FindOne(ctx, bson.M{"token": token}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (s *mongoSessionStore) GetByUserID(ctx context.Context, userID string) (*models.ActiveSession, error) {
	var session models.ActiveSession
	err := s.collection().FindOne(ctx, bson.M{"user_id": userID}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (s *mongoSessionStore) DeleteByToken(ctx context.Context, token string) error {
	_, err := s.collection().DeleteOne(ctx, bson.M{"token": token})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *mongoSessionStore) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := s.collection().DeleteOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *mongoSessionStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.collection().DeleteMany(ctx, bson.M{"login_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup sessions: %w", err)
	}
	return result.DeletedCount, nil
}

type mongoIdentityStore struct{}

func (s *mongoIdentityStore) collection() *mongo.Collection {
	return GetDatabase().Collection("users")
}

func (s *mongoIdentityStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", err)
	}

	var user models.User
	err = s.collection().FindOne(ctx, bson.M{"_id": objectID}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *mongoIdentityStore) GetByEmailAndCompany(ctx context.Context, email, companyID string) (*models.User, error) {
	var user models.User
	err := s.collection().FindOne(ctx, bson.M{
		"email":      email,
		"company_id": companyID,
	}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *mongoIdentityStore) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid user ID: %w", err)
	}

	_, err = s.collection().UpdateOne(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"last_seen_at": at}},
	)
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}
	return nil
}

func (s *mongoIdentityStore) StampForceLogout(ctx context.Context, id string, at time.Time) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid user ID: %w", err)
	}

	_, err = s.collection().UpdateOne(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"last_force_logout_at": at, "updated_at": at}},
	)
	if err != nil {
		return fmt.Errorf("failed to stamp force logout: %w", err)
	}
	return nil
}
