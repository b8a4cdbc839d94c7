package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"quizclash/internal/models"

	"github.com/redis/go-redis/v9"
)

const battlesKeyPrefix = "battles/"

// ErrTokenNotFound is returned when no token is stored for the slot
var ErrTokenNotFound = errors.New("reconnection token not found")

// Config holds configuration for the Redis token repository
type Config struct {
	// Redis client
	RedisClient *redis.Client
}

// redisRepository implements the Repository interface using Redis
type redisRepository struct {
	client *redis.Client
}

// NewRedis creates a new Redis-backed token repository
func NewRedis(cfg *Config) (*redisRepository, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.RedisClient == nil {
		return nil, errors.New("redis client cannot be nil")
	}

	if err := cfg.RedisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &redisRepository{client: cfg.RedisClient}, nil
}

func tokenKey(gamePin string, userID int64) string {
	return fmt.Sprintf("%s%s/reconnectTokens/user_%d", battlesKeyPrefix, gamePin, userID)
}

// SaveToken stores the token for a (battle, player) slot. Tokens carry no
// TTL of their own; their useful life is bounded by the battle lifecycle and
// the grace-period check.
func (r *redisRepository) SaveToken(ctx context.Context, input *SaveTokenInput) error {
	if input == nil || input.Token == nil {
		return errors.New("input and token cannot be nil")
	}

	if input.GamePin == "" {
		return errors.New("game pin cannot be empty")
	}

	tokenJSON, err := json.Marshal(input.Token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	err = r.client.Set(ctx, tokenKey(input.GamePin, input.UserID), tokenJSON, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	return nil
}

// GetToken retrieves the stored token
func (r *redisRepository) GetToken(ctx context.Context, input *GetTokenInput) (*models.ReconnectionToken, error) {
	if input == nil || input.GamePin == "" {
		return nil, errors.New("input and game pin cannot be empty")
	}

	tokenJSON, err := r.client.Get(ctx, tokenKey(input.GamePin, input.UserID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var tok models.ReconnectionToken
	if err := json.Unmarshal([]byte(tokenJSON), &tok); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	return &tok, nil
}

// DeleteToken removes the stored token, preventing stale reconnection after
// a deliberate exit
func (r *redisRepository) DeleteToken(ctx context.Context, input *DeleteTokenInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	err := r.client.Del(ctx, tokenKey(input.GamePin, input.UserID)).Err()
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	return nil
}
