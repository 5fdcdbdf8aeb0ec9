package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"talentscout/internal/models"
)

// Collection names
const (
	CollectionCandidates = "candidates"
	CollectionAuditLog   = "audit_log"
)

// MongoDB wraps the MongoDB client and database
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	dbName   string
}

// NewMongoDB creates a new MongoDB connection with connection pooling
func NewMongoDB(uri, dbName string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	if dbName == "" {
		dbName = "talentscout"
	}

	log.Printf("✅ Connected to MongoDB database: %s", dbName)

	return &MongoDB{
		client:   client,
		database: client.Database(dbName),
		dbName:   dbName,
	}, nil
}

// Initialize creates indexes. Encrypted fields are never indexed.
func (m *MongoDB) Initialize(ctx context.Context) error {
	log.Println("📦 Initializing MongoDB indexes...")

	if err := m.createIndexes(ctx, CollectionCandidates, []mongo.IndexModel{
		{Keys: bson.D{{Key: "candidate_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "retention_until", Value: 1}}},
		{Keys: bson.D{{Key: "email_lookup", Value: 1}}, Options: options.Index().SetSparse(true)},
	}); err != nil {
		return fmt.Errorf("failed to create candidates indexes: %w", err)
	}

	if err := m.createIndexes(ctx, CollectionAuditLog, []mongo.IndexModel{
		{Keys: bson.D{{Key: "candidate_id", Value: 1}, {Key: "timestamp", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create audit_log indexes: %w", err)
	}

	log.Println("✅ MongoDB indexes initialized successfully")
	return nil
}

// createIndexes creates indexes for a collection
func (m *MongoDB) createIndexes(ctx context.Context, collectionName string, indexes []mongo.IndexModel) error {
	_, err := m.database.Collection(collectionName).Indexes().CreateMany(ctx, indexes)
	return err
}

// Collection returns a collection handle
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// Close closes the MongoDB connection
func (m *MongoDB) Close(ctx context.Context) error {
	log.Println("🔌 Closing MongoDB connection...")
	return m.client.Disconnect(ctx)
}

// Ping checks if the database connection is alive
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *MongoDB) Upsert(ctx context.Context, doc *models.CandidateDocument) (bool, error) {
	res, err := m.Collection(CollectionCandidates).ReplaceOne(ctx,
		bson.M{"candidate_id": doc.CandidateID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert candidate: %w", err)
	}
	return res.UpsertedCount > 0, nil
}

func (m *MongoDB) FindByID(ctx context.Context, candidateID string) (*models.CandidateDocument, error) {
	var doc models.CandidateDocument
	err := m.Collection(CollectionCandidates).FindOne(ctx, bson.M{"candidate_id": candidateID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate: %w", err)
	}
	return &doc, nil
}

func (m *MongoDB) DeleteByID(ctx context.Context, candidateID string) (bool, error) {
	res, err := m.Collection(CollectionCandidates).DeleteOne(ctx, bson.M{"candidate_id": candidateID})
	if err != nil {
		return false, fmt.Errorf("failed to delete candidate: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (m *MongoDB) FindWhere(ctx context.Context, filter Filter) ([]string, error) {
	query := bson.M{}
	if filter.RetentionBefore != nil {
		query["retention_until"] = bson.M{"$lte": *filter.RetentionBefore}
	}
	if filter.EmailLookup != "" {
		query["email_lookup"] = filter.EmailLookup
	}

	opts := options.Find().
		SetProjection(bson.M{"candidate_id": 1, "_id": 0}).
		SetSort(bson.D{{Key: "candidate_id", Value: 1}})

	cursor, err := m.Collection(CollectionCandidates).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var row struct {
			CandidateID string `bson:"candidate_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode candidate id: %w", err)
		}
		ids = append(ids, row.CandidateID)
	}
	return ids, cursor.Err()
}

func (m *MongoDB) Append(ctx context.Context, entry models.AuditEntry) error {
	if _, err := m.Collection(CollectionAuditLog).InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (m *MongoDB) ListByCandidate(ctx context.Context, candidateID string) ([]models.AuditEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := m.Collection(CollectionAuditLog).Find(ctx, bson.M{"candidate_id": candidateID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []models.AuditEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode audit log: %w", err)
	}
	return entries, nil
}
