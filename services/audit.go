package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"crm-backend/models"
)

// RecordAudit appends an entry to the audit trail. Audit failures are logged
// but never fail the mutation they describe.
func RecordAudit(ctx context.Context, entry *models.AuditEntry) {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	if database == nil {
		return
	}

	collection := database.Collection("audit_log")
	if _, err := collection.InsertOne(ctx, entry); err != nil {
		slog.Error("Failed to record audit entry",
			"error", err,
			"action", entry.Action,
			"entity", entry.Entity)
	}
}

// AuditFilter narrows an audit log query
type AuditFilter struct {
	Entity  string
	ActorID string
	Limit   int64
	Offset  int64
}

// ListAuditEntries returns audit entries for a company, newest first
func ListAuditEntries(ctx context.Context, companyID string, filter AuditFilter) ([]*models.AuditEntry, error) {
	collection := database.Collection("audit_log")

	query := bson.M{"company_id": companyID}
	if filter.Entity != "" {
		query["entity"] = filter.Entity
	}
	if filter.ActorID != "" {
		query["actor_id"] = filter.ActorID
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	cursor, err := collection.Find(ctx, query, options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetSkip(filter.Offset).
		SetLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*models.AuditEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode audit entries: %w", err)
	}

	return entries, nil
}
