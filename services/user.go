package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"crm-backend/models"
)

// CreateUser creates a new user in the database, hashing the password
func CreateUser(ctx context.Context, user *models.User, password string) error {
	collection := database.Collection("users")

	// Check if user already exists with the same email in the same company
	existingUser := collection.FindOne(ctx, bson.M{
		"email":      user.Email,
		"company_id": user.CompanyID,
	})
	if existingUser.Err() != mongo.ErrNoDocuments {
		return fmt.Errorf("user already exists with this email in your company")
	}

	if !models.IsValidRole(string(user.Role)) {
		return fmt.Errorf("invalid role: %s", user.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = string(hash)

	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.IsActive = true

	if _, err := collection.InsertOne(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("User created",
		"userID", user.ID.Hex(),
		"username", user.Username,
		"companyID", user.CompanyID,
		"role", user.Role)

	return nil
}

// GetUserByID retrieves a user by their ID
func GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", err)
	}

	collection := database.Collection("users")

	var user models.User
	err = collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetCompanyUsers retrieves all users belonging to a company
func GetCompanyUsers(ctx context.Context, companyID string) ([]*models.User, error) {
	collection := database.Collection("users")

	cursor, err := collection.Find(ctx, bson.M{"company_id": companyID},
		options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, fmt.Errorf("failed to get company users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []*models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	return users, nil
}

// UpdateUserRole changes a user's role
func UpdateUserRole(ctx context.Context, userID string, role models.UserRole) error {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("invalid user ID: %w", err)
	}

	if !models.IsValidRole(string(role)) {
		return fmt.Errorf("invalid role: %s", role)
	}

	collection := database.Collection("users")

	result, err := collection.UpdateOne(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"role": role, "updated_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("user not found")
	}

	return nil
}

// UpdateUserProfile updates the mutable profile fields of a user
func UpdateUserProfile(ctx context.Context, userID string, fullName, phone string) error {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("invalid user ID: %w", err)
	}

	collection := database.Collection("users")

	update := bson.M{"updated_at": time.Now()}
	if fullName != "" {
		update["full_name"] = fullName
	}
	if phone != "" {
		update["phone"] = phone
	}

	result, err := collection.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{"$set": update})
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("user not found")
	}

	return nil
}

// DeactivateUser archives a user account. The email is rewritten to the
// archived sentinel so the address can be reused by a fresh account, the
// active flag is cleared, and the row itself stays behind because quotes and
// projects reference it. The caller is responsible for force-logging-out the
// user's session afterwards.
func DeactivateUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return user, nil
	}

	objectID, _ := primitive.ObjectIDFromHex(userID)
	now := time.Now()
	archived := user.ArchivedEmail(now)

	collection := database.Collection("users")
	_, err = collection.UpdateOne(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{
			"email":      archived,
			"is_active":  false,
			"deleted_at": now,
			"updated_at": now,
		}},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate user: %w", err)
	}

	slog.Info("User deactivated",
		"userID", userID,
		"archivedEmail", archived)

	user.Email = archived
	user.IsActive = false
	user.DeletedAt = &now
	return user, nil
}

// IsUserOnline reports presence for the user-list online indicator. The
// window is wider than the issuer's stale threshold on purpose: evicting a
// session and showing a green dot answer different questions.
func IsUserOnline(user *models.User, window time.Duration) bool {
	if !user.IsActive {
		return false
	}
	return time.Since(user.LastSeenAt) <= window
}
