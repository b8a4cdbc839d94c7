package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quizclash/internal/common/clock"
	"quizclash/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	battlesKeyPrefix = "battles/"

	// SnapshotTTL is the saved-state lifetime: expiresAt = savedAt + 5 minutes
	SnapshotTTL = 5 * time.Minute
)

// ErrSnapshotNotFound is returned when no usable snapshot exists, including
// when a stored snapshot has passed its expiry
var ErrSnapshotNotFound = errors.New("saved state not found")

// Config holds configuration for the Redis snapshot repository
type Config struct {
	// Redis client
	RedisClient *redis.Client

	// Clock for stamping savedAt/expiresAt and judging expiry
	Clock clock.Clock
}

// redisRepository implements the Repository interface using Redis
type redisRepository struct {
	client *redis.Client
	clock  clock.Clock
}

// NewRedis creates a new Redis-backed snapshot repository
func NewRedis(cfg *Config) (*redisRepository, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.RedisClient == nil {
		return nil, errors.New("redis client cannot be nil")
	}

	if cfg.Clock == nil {
		return nil, errors.New("clock cannot be nil")
	}

	if err := cfg.RedisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &redisRepository{
		client: cfg.RedisClient,
		clock:  cfg.Clock,
	}, nil
}

func stateKey(gamePin string, userID int64) string {
	return fmt.Sprintf("%s%s/savedStates/user_%d", battlesKeyPrefix, gamePin, userID)
}

// SaveState overwrites the player's snapshot. The record carries its own
// savedAt/expiresAt stamps and the key also gets a matching TTL, so stale
// snapshots vanish even if nobody ever reads them.
func (r *redisRepository) SaveState(ctx context.Context, input *SaveStateInput) error {
	if input == nil || input.Snapshot == nil {
		return errors.New("input and snapshot cannot be nil")
	}

	if input.GamePin == "" {
		return errors.New("game pin cannot be empty")
	}

	now := r.clock.Now()
	input.Snapshot.SavedAt = now.UnixMilli()
	input.Snapshot.ExpiresAt = now.Add(SnapshotTTL).UnixMilli()

	stateJSON, err := json.Marshal(input.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal saved state: %w", err)
	}

	err = r.client.Set(ctx, stateKey(input.GamePin, input.UserID), stateJSON, SnapshotTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	return nil
}

// GetState retrieves the snapshot. An absent key and a snapshot past its
// expiresAt stamp both report ErrSnapshotNotFound.
func (r *redisRepository) GetState(ctx context.Context, input *GetStateInput) (*models.PlayerSnapshot, error) {
	if input == nil || input.GamePin == "" {
		return nil, errors.New("input and game pin cannot be empty")
	}

	stateJSON, err := r.client.Get(ctx, stateKey(input.GamePin, input.UserID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get saved state: %w", err)
	}

	var snap models.PlayerSnapshot
	if err := json.Unmarshal([]byte(stateJSON), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal saved state: %w", err)
	}

	if r.clock.Now().UnixMilli() > snap.ExpiresAt {
		return nil, ErrSnapshotNotFound
	}

	return &snap, nil
}

// ClearState removes the snapshot so a restore can never be applied twice
func (r *redisRepository) ClearState(ctx context.Context, input *ClearStateInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	err := r.client.Del(ctx, stateKey(input.GamePin, input.UserID)).Err()
	if err != nil {
		return fmt.Errorf("failed to clear saved state: %w", err)
	}

	return nil
}
