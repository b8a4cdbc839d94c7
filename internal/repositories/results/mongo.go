package results

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

const resultsCollection = "battle_results"

// Config holds configuration for the Mongo results repository
type Config struct {
	// Database is the Mongo database holding durable quiz data
	Database *mongo.Database
}

// mongoRepository implements the Repository interface using MongoDB
type mongoRepository struct {
	collection *mongo.Collection
}

// NewMongo creates a new Mongo-backed results repository
func NewMongo(cfg *Config) (*mongoRepository, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Database == nil {
		return nil, errors.New("database cannot be nil")
	}

	return &mongoRepository{
		collection: cfg.Database.Collection(resultsCollection),
	}, nil
}

// SaveResult stores the final ranking for a completed battle
func (r *mongoRepository) SaveResult(ctx context.Context, input *SaveResultInput) error {
	if input == nil || input.Result == nil {
		return errors.New("input and result cannot be nil")
	}

	if _, err := r.collection.InsertOne(ctx, input.Result); err != nil {
		return fmt.Errorf("failed to save battle result: %w", err)
	}

	return nil
}
