package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"crm-backend/models"
)

// CreateClient creates a new client for a company
func CreateClient(ctx context.Context, client *models.Client) error {
	collection := database.Collection("clients")

	if client.ID.IsZero() {
		client.ID = primitive.NewObjectID()
	}
	now := time.Now()
	client.CreatedAt = now
	client.UpdatedAt = now

	if _, err := collection.InsertOne(ctx, client); err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// GetClient retrieves a client by ID, scoped to a company
func GetClient(ctx context.Context, companyID, clientID string) (*models.Client, error) {
	objectID, err := primitive.ObjectIDFromHex(clientID)
	if err != nil {
		return nil, fmt.Errorf("invalid client ID: %w", err)
	}

	collection := database.Collection("clients")

	var client models.Client
	err = collection.FindOne(ctx, bson.M{"_id": objectID, "company_id": companyID}).Decode(&client)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &client, nil
}

// ListClients retrieves all clients for a company
func ListClients(ctx context.Context, companyID string) ([]*models.Client, error) {
	collection := database.Collection("clients")

	cursor, err := collection.Find(ctx, bson.M{"company_id": companyID},
		options.Find().SetSort(bson.M{"name": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer cursor.Close(ctx)

	var clients []*models.Client
	if err := cursor.All(ctx, &clients); err != nil {
		return nil, fmt.Errorf("failed to decode clients: %w", err)
	}
	return clients, nil
}

// UpdateClient updates a client's fields, scoped to a company
func UpdateClient(ctx context.Context, companyID, clientID string, update bson.M) error {
	objectID, err := primitive.ObjectIDFromHex(clientID)
	if err != nil {
		return fmt.Errorf("invalid client ID: %w", err)
	}

	update["updated_at"] = time.Now()

	collection := database.Collection("clients")
	result, err := collection.UpdateOne(
		ctx,
		bson.M{"_id": objectID, "company_id": companyID},
		bson.M{"$set": update},
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("client not found")
	}
	return nil
}

// DeleteClient removes a client, scoped to a company
func DeleteClient(ctx context.Context, companyID, clientID string) error {
	objectID, err := primitive.ObjectIDFromHex(clientID)
	if err != nil {
		return fmt.Errorf("invalid client ID: %w", err)
	}

	collection := database.Collection("clients")
	result, err := collection.DeleteOne(ctx, bson.M{"_id": objectID, "company_id": companyID})
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("client not found")
	}
	return nil
}
