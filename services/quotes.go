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

// CreateQuote creates a new quote for a company. Line and quote totals are
// recomputed server-side before insert.
func CreateQuote(ctx context.Context, quote *models.Quote) error {
	collection := database.Collection("quotes")

	if quote.ID.IsZero() {
		quote.ID = primitive.NewObjectID()
	}
	if quote.Status == "" {
		quote.Status = models.QuoteDraft
	}
	if quote.Number == "" {
		quote.Number = nextQuoteNumber(ctx, quote.CompanyID)
	}
	quote.SumLines()
	now := time.Now()
	quote.CreatedAt = now
	quote.UpdatedAt = now

	if _, err := collection.InsertOne(ctx, quote); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("quote number %s already exists", quote.Number)
		}
		return fmt.Errorf("failed to create quote: %w", err)
	}
	return nil
}

// nextQuoteNumber derives a sequential-looking quote number from the count of
// existing quotes. Collisions fall back to the unique index on
// (company_id, number).
func nextQuoteNumber(ctx context.Context, companyID string) string {
	collection := database.Collection("quotes")
	count, err := collection.CountDocuments(ctx, bson.M{"company_id": companyID})
	if err != nil {
		count = 0
	}
	return fmt.Sprintf("Q-%s-%04d", time.Now().Format("2006"), count+1)
}

// GetQuote retrieves a quote by ID, scoped to a company
func GetQuote(ctx context.Context, companyID, quoteID string) (*models.Quote, error) {
	objectID, err := primitive.ObjectIDFromHex(quoteID)
	if err != nil {
		return nil, fmt.Errorf("invalid quote ID: %w", err)
	}

	collection := database.Collection("quotes")

	var quote models.Quote
	err = collection.FindOne(ctx, bson.M{"_id": objectID, "company_id": companyID}).Decode(&quote)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	return &quote, nil
}

// ListQuotes retrieves quotes for a company with optional client and status filters
func ListQuotes(ctx context.Context, companyID, clientID, status string) ([]*models.Quote, error) {
	collection := database.Collection("quotes")

	query := bson.M{"company_id": companyID}
	if clientID != "" {
		query["client_id"] = clientID
	}
	if status != "" {
		query["status"] = status
	}

	cursor, err := collection.Find(ctx, query,
		options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	defer cursor.Close(ctx)

	var quotes []*models.Quote
	if err := cursor.All(ctx, &quotes); err != nil {
		return nil, fmt.Errorf("failed to decode quotes: %w", err)
	}
	return quotes, nil
}

// UpdateQuote replaces the mutable fields of a quote, scoped to a company.
// Totals are recomputed from the lines.
func UpdateQuote(ctx context.Context, companyID, quoteID string, quote *models.Quote) error {
	objectID, err := primitive.ObjectIDFromHex(quoteID)
	if err != nil {
		return fmt.Errorf("invalid quote ID: %w", err)
	}

	quote.SumLines()

	collection := database.Collection("quotes")
	result, err := collection.UpdateOne(
		ctx,
		bson.M{"_id": objectID, "company_id": companyID},
		bson.M{"$set": bson.M{
			"title":      quote.Title,
			"status":     quote.Status,
			"currency":   quote.Currency,
			"lines":      quote.Lines,
			"total":      quote.Total,
			"project_id": quote.ProjectID,
			"updated_at": time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to update quote: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("quote not found")
	}
	return nil
}

// DeleteQuote removes a quote, scoped to a company
func DeleteQuote(ctx context.Context, companyID, quoteID string) error {
	objectID, err := primitive.ObjectIDFromHex(quoteID)
	if err != nil {
		return fmt.Errorf("invalid quote ID: %w", err)
	}

	collection := database.Collection("quotes")
	result, err := collection.DeleteOne(ctx, bson.M{"_id": objectID, "company_id": companyID})
	if err != nil {
		return fmt.Errorf("failed to delete quote: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("quote not found")
	}
	return nil
}
