package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"campaignd/internal/constants"
	"campaignd/pkg/metrics"
	"campaignd/pkg/models"
)

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database, collection string) *MongoRepository {
	if collection == "" {
		collection = constants.DefaultCollectionName
	}
	return &MongoRepository{collection: db.Collection(collection)}
}

// Save inserts msg under a fresh ObjectID, so a redelivered message produces
// a second document rather than a duplicate-key error.
func (r *MongoRepository) Save(ctx context.Context, msg *models.Message) error {
	start := time.Now()
	_, err := r.collection.InsertOne(ctx, msg)
	observe("insert", start, err)
	if err != nil {
		return fmt.Errorf("failed to insert message %s: %w", msg.Identifier, err)
	}
	return nil
}

func (r *MongoRepository) ExpectedTotal(ctx context.Context, campaignID string) (int64, bool, error) {
	start := time.Now()

	opts := options.FindOne().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetProjection(bson.M{"total": 1})

	var doc struct {
		Total int64 `bson:"total"`
	}
	err := r.collection.FindOne(ctx, bson.M{"campaign_id": campaignID}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		observe("find_total", start, nil)
		return 0, false, nil
	}
	observe("find_total", start, err)
	if err != nil {
		return 0, false, fmt.Errorf("failed to find total for campaign %s: %w", campaignID, err)
	}
	return doc.Total, true, nil
}

func (r *MongoRepository) CountByCampaign(ctx context.Context, campaignID string) (int64, error) {
	start := time.Now()
	n, err := r.collection.CountDocuments(ctx, bson.M{"campaign_id": campaignID, "deleted": false})
	observe("count", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages for campaign %s: %w", campaignID, err)
	}
	return n, nil
}

func observe(operation string, start time.Time, err error) {
	observeQuery(constants.MessageStoreMongoDB, operation, start, err)
}

func observeQuery(database, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.IncDatabaseQuery(constants.ServiceName, database, operation, status)
	metrics.ObserveDatabaseQueryDuration(constants.ServiceName, database, operation, time.Since(start))
}
