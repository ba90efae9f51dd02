package services

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	mongoClient *mongo.Client
	database    *mongo.Database
)

// GetDatabase returns the MongoDB database instance
func GetDatabase() *mongo.Database {
	return database
}

// InitMongoDB initializes MongoDB connection
func InitMongoDB(ctx context.Context, uri string) (*mongo.Client, error) {
	clientOptions := options.Client().ApplyURI(uri)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	slog.Info("Connected to MongoDB")
	mongoClient = client

	return client, nil
}

// InitServices binds the database and creates indexes
func InitServices(client *mongo.Client, databaseName string) {
	database = client.Database(databaseName)

	createIndexes()
}

// createIndexes creates necessary database indexes
func createIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Active sessions: the unique user_id index is what enforces
	// one-session-per-user; an insert for a user that already holds a
	// session fails with a duplicate key error.
	sessionsCollection := database.Collection("active_sessions")
	if _, err := sessionsCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.M{"user_id": 1}, Options: options.Index().SetUnique(true)},
		{Keys: bson.M{"token": 1}, Options: options.Index().SetUnique(true)},
		{Keys: bson.M{"login_at": 1}},
	}); err != nil {
		slog.Error("Failed to create active_sessions indexes", "error", err)
	}

	usersCollection := database.Collection("users")
	usersCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}, {Key: "company_id", Value: 1}}},
		{Keys: bson.M{"company_id": 1}},
		{Keys: bson.M{"last_seen_at": -1}},
	})

	clientsCollection := database.Collection("clients")
	clientsCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.M{"company_id": 1}},
		{Keys: bson.D{{Key: "company_id", Value: 1}, {Key: "name", Value: 1}}},
	})

	projectsCollection := database.Collection("projects")
	projectsCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.M{"company_id": 1}},
		{Keys: bson.M{"client_id": 1}},
	})

	quotesCollection := database.Collection("quotes")
	quotesCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.M{"company_id": 1}},
		{Keys: bson.M{"client_id": 1}},
		{Keys: bson.D{{Key: "company_id", Value: 1}, {Key: "number", Value: 1}}, Options: options.Index().SetUnique(true)},
	})

	auditCollection := database.Collection("audit_log")
	auditCollection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "company_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.M{"entity": 1}},
		{Keys: bson.M{"actor_id": 1}},
	})
}
