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

// CreateProject creates a new project for a company
func CreateProject(ctx context.Context, project *models.Project) error {
	collection := database.Collection("projects")

	if project.ID.IsZero() {
		project.ID = primitive.NewObjectID()
	}
	if project.Status == "" {
		project.Status = models.ProjectPlanned
	}
	now := time.Now()
	project.CreatedAt = now
	project.UpdatedAt = now

	if _, err := collection.InsertOne(ctx, project); err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID, scoped to a company
func GetProject(ctx context.Context, companyID, projectID string) (*models.Project, error) {
	objectID, err := primitive.ObjectIDFromHex(projectID)
	if err != nil {
		return nil, fmt.Errorf("invalid project ID: %w", err)
	}

	collection := database.Collection("projects")

	var project models.Project
	err = collection.FindOne(ctx, bson.M{"_id": objectID, "company_id": companyID}).Decode(&project)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

// ListProjects retrieves projects for a company, optionally filtered by client
func ListProjects(ctx context.Context, companyID, clientID string) ([]*models.Project, error) {
	collection := database.Collection("projects")

	query := bson.M{"company_id": companyID}
	if clientID != "" {
		query["client_id"] = clientID
	}

	cursor, err := collection.Find(ctx, query,
		options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer cursor.Close(ctx)

	var projects []*models.Project
	if err := cursor.All(ctx, &projects); err != nil {
		return nil, fmt.Errorf("failed to decode projects: %w", err)
	}
	return projects, nil
}

// UpdateProject updates a project's fields, scoped to a company
func UpdateProject(ctx context.Context, companyID, projectID string, update bson.M) error {
	objectID, err := primitive.ObjectIDFromHex(projectID)
	if err != nil {
		return fmt.Errorf("invalid project ID: %w", err)
	}

	update["updated_at"] = time.Now()

	collection := database.Collection("projects")
	result, err := collection.UpdateOne(
		ctx,
		bson.M{"_id": objectID, "company_id": companyID},
		bson.M{"$set": update},
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("project not found")
	}
	return nil
}

// DeleteProject removes a project, scoped to a company
func DeleteProject(ctx context.Context, companyID, projectID string) error {
	objectID, err := primitive.ObjectIDFromHex(projectID)
	if err != nil {
		return fmt.Errorf("invalid project ID: %w", err)
	}

	collection := database.Collection("projects")
	result, err := collection.DeleteOne(ctx, bson.M{"_id": objectID, "company_id": companyID})
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("project not found")
	}
	return nil
}
