package reaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quizclash/internal/common/clock"
	"quizclash/internal/common/uuid"
	"quizclash/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	battlesKeyPrefix = "battles/"

	// ReactionTTL is how long a reaction stays visible
	ReactionTTL = 5 * time.Second
)

// Config holds configuration for the Redis reaction repository
type Config struct {
	RedisClient *redis.Client
	Clock       clock.Clock
	UUID        uuid.UUID
}

// redisRepository implements the Repository interface using Redis
type redisRepository struct {
	client *redis.Client
	clock  clock.Clock
	uuid   uuid.UUID
}

// NewRedis creates a new Redis-backed reaction repository
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

	if cfg.UUID == nil {
		return nil, errors.New("uuid generator cannot be nil")
	}

	if err := cfg.RedisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &redisRepository{
		client: cfg.RedisClient,
		clock:  cfg.Clock,
		uuid:   cfg.UUID,
	}, nil
}

func reactionKey(gamePin, reactionID string) string {
	return fmt.Sprintf("%s%s/reactions/%s", battlesKeyPrefix, gamePin, reactionID)
}

// reactionsPath doubles as the index set key and the pub/sub channel
func reactionsPath(gamePin string) string {
	return fmt.Sprintf("%s%s/reactions", battlesKeyPrefix, gamePin)
}

// AddReaction stores a reaction with its short TTL and publishes the full
// payload so watchers can render it without a second read
func (r *redisRepository) AddReaction(ctx context.Context, input *AddReactionInput) (*AddReactionOutput, error) {
	if input == nil || input.GamePin == "" {
		return nil, errors.New("input and game pin cannot be empty")
	}

	if input.Emoji == "" {
		return nil, errors.New("emoji cannot be empty")
	}

	now := r.clock.Now()
	reaction := &models.Reaction{
		ID:        r.uuid.NewUUID(),
		UserID:    input.UserID,
		UserName:  input.UserName,
		Emoji:     input.Emoji,
		Timestamp: now.UnixMilli(),
		ExpiresAt: now.Add(ReactionTTL).UnixMilli(),
	}

	reactionJSON, err := json.Marshal(reaction)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reaction: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, reactionKey(input.GamePin, reaction.ID), reactionJSON, ReactionTTL)
	pipe.SAdd(ctx, reactionsPath(input.GamePin), reaction.ID)
	pipe.Publish(ctx, reactionsPath(input.GamePin), reactionJSON)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to add reaction: %w", err)
	}

	return &AddReactionOutput{Reaction: reaction}, nil
}

// GetReactions returns the reactions still within their lifetime. Index
// entries whose value has already expired are pruned as they are seen.
func (r *redisRepository) GetReactions(ctx context.Context, input *GetReactionsInput) (*GetReactionsOutput, error) {
	if input == nil || input.GamePin == "" {
		return nil, errors.New("input and game pin cannot be empty")
	}

	ids, err := r.client.SMembers(ctx, reactionsPath(input.GamePin)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get reaction index: %w", err)
	}

	if len(ids) == 0 {
		return &GetReactionsOutput{Reactions: []*models.Reaction{}}, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, reactionKey(input.GamePin, id))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get reactions: %w", err)
	}

	nowMillis := r.clock.Now().UnixMilli()
	reactions := make([]*models.Reaction, 0, len(ids))
	for i, cmd := range cmds {
		reactionJSON, err := cmd.Result()
		if err != nil {
			if err == redis.Nil {
				r.client.SRem(ctx, reactionsPath(input.GamePin), ids[i])
				continue
			}
			return nil, fmt.Errorf("failed to get reaction %s: %w", ids[i], err)
		}

		var reaction models.Reaction
		if err := json.Unmarshal([]byte(reactionJSON), &reaction); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reaction %s: %w", ids[i], err)
		}

		if nowMillis > reaction.ExpiresAt {
			continue
		}

		reactions = append(reactions, &reaction)
	}

	return &GetReactionsOutput{Reactions: reactions}, nil
}

// SubscribeReactions watches the battle's reactions subtree
func (r *redisRepository) SubscribeReactions(ctx context.Context, input *SubscribeReactionsInput) (*ReactionsSubscription, error) {
	if input == nil || input.GamePin == "" {
		return nil, errors.New("input and game pin cannot be empty")
	}

	pubsub := r.client.Subscribe(ctx, reactionsPath(input.GamePin))

	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to reactions: %w", err)
	}

	events := make(chan string)
	done := make(chan struct{})
	go func() {
		defer close(events)
		for msg := range pubsub.Channel() {
			select {
			case events <- msg.Payload:
			case <-done:
				return
			}
		}
	}()

	return &ReactionsSubscription{pubsub: pubsub, events: events, done: done}, nil
}
