package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"quizclash/internal/common/clock"
	"quizclash/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	battlesKeyPrefix = "battles/"

	// disconnectIntentsKey is the hash of deferred offline writes, keyed by
	// "{gamePin}:{userId}"
	disconnectIntentsKey = "disconnect_intents"

	// gracePendingKey is the set of players whose grace window is running
	gracePendingKey = "grace_pending"
)

// ErrConnectionNotFound is returned when a connection record is not found
var ErrConnectionNotFound = errors.New("connection not found")

// Config holds configuration for the Redis connection repository
type Config struct {
	// Redis client
	RedisClient *redis.Client

	// Clock for timestamping records
	Clock clock.Clock
}

// redisRepository implements the Repository interface using Redis
type redisRepository struct {
	client *redis.Client
	clock  clock.Clock
}

// NewRedis creates a new Redis-backed connection repository
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

func connectionKey(gamePin string, userID int64) string {
	return fmt.Sprintf("%s%s/connections/user_%d", battlesKeyPrefix, gamePin, userID)
}

func sessionKey(gamePin string, userID int64) string {
	return fmt.Sprintf("%s%s/sessions/user_%d", battlesKeyPrefix, gamePin, userID)
}

func intentField(gamePin string, userID int64) string {
	return fmt.Sprintf("%s:%d", gamePin, userID)
}

// SaveConnection overwrites a player's connection record
func (r *redisRepository) SaveConnection(ctx context.Context, input *SaveConnectionInput) error {
	if input == nil || input.Connection == nil {
		return errors.New("input and connection cannot be nil")
	}

	if input.GamePin == "" {
		return errors.New("game pin cannot be empty")
	}

	connJSON, err := json.Marshal(input.Connection)
	if err != nil {
		return fmt.Errorf("failed to marshal connection: %w", err)
	}

	err = r.client.Set(ctx, connectionKey(input.GamePin, input.UserID), connJSON, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}

	return nil
}

// GetConnection retrieves a player's connection record
func (r *redisRepository) GetConnection(ctx context.Context, input *GetConnectionInput) (*models.Connection, error) {
	if input == nil || input.GamePin == "" {
		return nil, errors.New("input and game pin cannot be empty")
	}

	connJSON, err := r.client.Get(ctx, connectionKey(input.GamePin, input.UserID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrConnectionNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	var conn models.Connection
	if err := json.Unmarshal([]byte(connJSON), &conn); err != nil {
		return nil, fmt.Errorf("failed to unmarshal connection: %w", err)
	}

	return &conn, nil
}

// DeleteConnection removes a player's connection record
func (r *redisRepository) DeleteConnection(ctx context.Context, input *DeleteConnectionInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	err := r.client.Del(ctx, connectionKey(input.GamePin, input.UserID)).Err()
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}

	return nil
}

// TouchSession refreshes the session liveness key. The key's TTL is the
// transport-level "still connected" signal: while heartbeats keep landing,
// the key never expires.
func (r *redisRepository) TouchSession(ctx context.Context, input *TouchSessionInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	if input.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}

	err := r.client.Set(ctx, sessionKey(input.GamePin, input.UserID), "1", input.TTL).Err()
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	return nil
}

// EndSession drops the session liveness key immediately
func (r *redisRepository) EndSession(ctx context.Context, input *EndSessionInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	err := r.client.Del(ctx, sessionKey(input.GamePin, input.UserID)).Err()
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	return nil
}

// SessionAlive reports whether the session liveness key still exists
func (r *redisRepository) SessionAlive(ctx context.Context, input *SessionAliveInput) (bool, error) {
	if input == nil || input.GamePin == "" {
		return false, errors.New("input and game pin cannot be empty")
	}

	n, err := r.client.Exists(ctx, sessionKey(input.GamePin, input.UserID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}

	return n > 0, nil
}

// RegisterDisconnectIntent registers the deferred offline write for a live
// session. Overwriting an existing intent is harmless, so re-issuing after
// every reconnection needs no read-first check.
func (r *redisRepository) RegisterDisconnectIntent(ctx context.Context, input *RegisterDisconnectIntentInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	intent := &models.DisconnectIntent{
		GamePin:      input.GamePin,
		UserID:       input.UserID,
		RegisteredAt: r.clock.Now().UnixMilli(),
	}

	intentJSON, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to marshal disconnect intent: %w", err)
	}

	err = r.client.HSet(ctx, disconnectIntentsKey, intentField(input.GamePin, input.UserID), intentJSON).Err()
	if err != nil {
		return fmt.Errorf("failed to register disconnect intent: %w", err)
	}

	return nil
}

// ClearDisconnectIntent cancels the deferred write
func (r *redisRepository) ClearDisconnectIntent(ctx context.Context, input *ClearDisconnectIntentInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	err := r.client.HDel(ctx, disconnectIntentsKey, intentField(input.GamePin, input.UserID)).Err()
	if err != nil {
		return fmt.Errorf("failed to clear disconnect intent: %w", err)
	}

	return nil
}

// ListStaleIntents returns the registered intents whose session key has
// lapsed. These are the sessions whose deferred offline write is due.
func (r *redisRepository) ListStaleIntents(ctx context.Context, input *ListStaleIntentsInput) (*ListStaleIntentsOutput, error) {
	fields, err := r.client.HGetAll(ctx, disconnectIntentsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list disconnect intents: %w", err)
	}

	stale := make([]*models.DisconnectIntent, 0)
	for field, intentJSON := range fields {
		var intent models.DisconnectIntent
		if err := json.Unmarshal([]byte(intentJSON), &intent); err != nil {
			return nil, fmt.Errorf("failed to unmarshal disconnect intent %s: %w", field, err)
		}

		alive, err := r.SessionAlive(ctx, &SessionAliveInput{
			GamePin: intent.GamePin,
			UserID:  intent.UserID,
		})
		if err != nil {
			return nil, err
		}

		if !alive {
			stale = append(stale, &intent)
		}
	}

	return &ListStaleIntentsOutput{Intents: stale}, nil
}

// MarkGracePending records that a player's grace window is running
func (r *redisRepository) MarkGracePending(ctx context.Context, input *MarkGracePendingInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	err := r.client.SAdd(ctx, gracePendingKey, intentField(input.GamePin, input.UserID)).Err()
	if err != nil {
		return fmt.Errorf("failed to mark grace pending: %w", err)
	}

	return nil
}

// ClearGracePending removes a player from the grace-pending index
func (r *redisRepository) ClearGracePending(ctx context.Context, input *ClearGracePendingInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	err := r.client.SRem(ctx, gracePendingKey, intentField(input.GamePin, input.UserID)).Err()
	if err != nil {
		return fmt.Errorf("failed to clear grace pending: %w", err)
	}

	return nil
}

// ListGracePending returns every player with a running grace window
func (r *redisRepository) ListGracePending(ctx context.Context, input *ListGracePendingInput) (*ListGracePendingOutput, error) {
	members, err := r.client.SMembers(ctx, gracePendingKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list grace pending: %w", err)
	}

	entries := make([]*GracePendingEntry, 0, len(members))
	for _, member := range members {
		idx := strings.LastIndex(member, ":")
		if idx < 0 {
			continue
		}

		userID, err := strconv.ParseInt(member[idx+1:], 10, 64)
		if err != nil {
			continue
		}

		entries = append(entries, &GracePendingEntry{GamePin: member[:idx], UserID: userID})
	}

	return &ListGracePendingOutput{Entries: entries}, nil
}
