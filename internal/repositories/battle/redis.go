package battle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"

	"quizclash/internal/common/clock"
	"quizclash/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	battlesKeyPrefix = "battles/"

	// Game pins are 6-digit numeric codes, short enough to type on a phone
	pinDigits      = 6
	pinSpace       = 1000000
	maxPinAttempts = 10
)

var (
	// ErrBattleNotFound is returned when a battle is not found
	ErrBattleNotFound = errors.New("battle not found")

	// ErrPlayerNotFound is returned when a player record is not found
	ErrPlayerNotFound = errors.New("player not found")

	// ErrPlayerExists is returned when a player already joined the battle
	ErrPlayerExists = errors.New("player already in battle")

	// ErrInvalidStatusTransition is returned when a status write would move
	// the battle lifecycle backwards
	ErrInvalidStatusTransition = errors.New("invalid battle status transition")

	// ErrPinSpaceExhausted is returned when no free game pin could be found
	ErrPinSpaceExhausted = errors.New("could not allocate a free game pin")
)

var statusRank = map[models.BattleStatus]int{
	models.BattleStatusWaiting:    0,
	models.BattleStatusInProgress: 1,
	models.BattleStatusCompleted:  2,
}

// Config holds configuration for the Redis battle repository
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

// NewRedis creates a new Redis-backed battle repository
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

	// Test connection
	if err := cfg.RedisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &redisRepository{
		client: cfg.RedisClient,
		clock:  cfg.Clock,
	}, nil
}

func metadataKey(gamePin string) string {
	return fmt.Sprintf("%s%s/metadata", battlesKeyPrefix, gamePin)
}

func playerKey(gamePin string, userID int64) string {
	return fmt.Sprintf("%s%s/players/user_%d", battlesKeyPrefix, gamePin, userID)
}

// playersPath doubles as the index set key and the pub/sub channel for the
// players subtree
func playersPath(gamePin string) string {
	return fmt.Sprintf("%s%s/players", battlesKeyPrefix, gamePin)
}

// CreateBattle creates a battle with a freshly allocated game pin
func (r *redisRepository) CreateBattle(ctx context.Context, input *CreateBattleInput) (*CreateBattleOutput, error) {
	if input == nil {
		return nil, errors.New("input cannot be nil")
	}

	if len(input.Questions) == 0 {
		return nil, errors.New("questions cannot be empty")
	}

	now := r.clock.Now()

	// Allocate a pin with SETNX so two hosts can never claim the same code
	for attempt := 0; attempt < maxPinAttempts; attempt++ {
		pin := fmt.Sprintf("%0*d", pinDigits, rand.Intn(pinSpace))

		battle := &models.Battle{
			GamePin:    pin,
			QuizID:     input.QuizID,
			Questions:  input.Questions,
			Status:     models.BattleStatusWaiting,
			HostUserID: input.HostUserID,
			CreatedAt:  now.UnixMilli(),
		}

		battleJSON, err := json.Marshal(battle)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal battle: %w", err)
		}

		ok, err := r.client.SetNX(ctx, metadataKey(pin), battleJSON, 0).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to create battle: %w", err)
		}

		if ok {
			return &CreateBattleOutput{Battle: battle}, nil
		}
	}

	return nil, ErrPinSpaceExhausted
}

// GetBattle retrieves a battle's metadata by game pin
func (r *redisRepository) GetBattle(ctx context.Context, input *GetBattleInput) (*models.Battle, error) {
	if input == nil || input.GamePin == "" {
		return nil, errors.New("input and game pin cannot be empty")
	}

	battleJSON, err := r.client.Get(ctx, metadataKey(input.GamePin)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrBattleNotFound
		}
		return nil, fmt.Errorf("failed to get battle: %w", err)
	}

	var battle models.Battle
	if err := json.Unmarshal([]byte(battleJSON), &battle); err != nil {
		return nil, fmt.Errorf("failed to unmarshal battle: %w", err)
	}

	return &battle, nil
}

// SetStatus advances a battle's lifecycle status. The status order
// waiting → in_progress → completed is one-way; a write that would move it
// backwards is rejected.
func (r *redisRepository) SetStatus(ctx context.Context, input *SetStatusInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	battle, err := r.GetBattle(ctx, &GetBattleInput{GamePin: input.GamePin})
	if err != nil {
		return err
	}

	if statusRank[input.Status] < statusRank[battle.Status] {
		return ErrInvalidStatusTransition
	}

	if input.Status == battle.Status {
		return nil
	}

	battle.Status = input.Status
	if input.Status == models.BattleStatusInProgress && battle.StartedAt == 0 {
		battle.StartedAt = r.clock.Now().UnixMilli()
	}

	battleJSON, err := json.Marshal(battle)
	if err != nil {
		return fmt.Errorf("failed to marshal battle: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, metadataKey(input.GamePin), battleJSON, 0)
	pipe.Publish(ctx, metadataKey(input.GamePin), string(battle.Status))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set battle status: %w", err)
	}

	return nil
}

// JoinBattle adds a player record to a battle that is still waiting
func (r *redisRepository) JoinBattle(ctx context.Context, input *JoinBattleInput) (*JoinBattleOutput, error) {
	if input == nil || input.Player == nil {
		return nil, errors.New("input and player cannot be nil")
	}

	if input.GamePin == "" {
		return nil, errors.New("game pin cannot be empty")
	}

	battle, err := r.GetBattle(ctx, &GetBattleInput{GamePin: input.GamePin})
	if err != nil {
		return nil, err
	}

	if battle.Status != models.BattleStatusWaiting {
		return nil, ErrInvalidStatusTransition
	}

	_, err = r.GetPlayer(ctx, &GetPlayerInput{GamePin: input.GamePin, UserID: input.Player.UserID})
	if err == nil {
		return nil, ErrPlayerExists
	}
	if !errors.Is(err, ErrPlayerNotFound) {
		return nil, err
	}

	player := input.Player
	player.JoinedAt = r.clock.Now().UnixMilli()
	player.IsOnline = true

	if err := r.savePlayer(ctx, input.GamePin, player); err != nil {
		return nil, err
	}

	return &JoinBattleOutput{Player: player}, nil
}

// GetPlayer retrieves one player record
func (r *redisRepository) GetPlayer(ctx context.Context, input *GetPlayerInput) (*models.Player, error) {
	if input == nil || input.GamePin == "" {
		return nil, errors.New("input and game pin cannot be empty")
	}

	playerJSON, err := r.client.Get(ctx, playerKey(input.GamePin, input.UserID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrPlayerNotFound
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	var player models.Player
	if err := json.Unmarshal([]byte(playerJSON), &player); err != nil {
		return nil, fmt.Errorf("failed to unmarshal player: %w", err)
	}

	return &player, nil
}

// GetPlayers retrieves every player record under a battle. Records keep the
// index read order so callers get a stable ordering for equal scores.
func (r *redisRepository) GetPlayers(ctx context.Context, input *GetPlayersInput) (*GetPlayersOutput, error) {
	if input == nil || input.GamePin == "" {
		return nil, errors.New("input and game pin cannot be empty")
	}

	memberKeys, err := r.client.SMembers(ctx, playersPath(input.GamePin)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get player index: %w", err)
	}

	if len(memberKeys) == 0 {
		return &GetPlayersOutput{Players: []*models.Player{}}, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(memberKeys))
	for i, key := range memberKeys {
		cmds[i] = pipe.Get(ctx, key)
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get players: %w", err)
	}

	players := make([]*models.Player, 0, len(memberKeys))
	for i, cmd := range cmds {
		playerJSON, err := cmd.Result()
		if err != nil {
			if err == redis.Nil {
				// Record vanished between the index read and the fetch
				continue
			}
			return nil, fmt.Errorf("failed to get player %s: %w", memberKeys[i], err)
		}

		var player models.Player
		if err := json.Unmarshal([]byte(playerJSON), &player); err != nil {
			return nil, fmt.Errorf("failed to unmarshal player %s: %w", memberKeys[i], err)
		}

		players = append(players, &player)
	}

	return &GetPlayersOutput{Players: players}, nil
}

// SavePlayer overwrites a player record. Used by the join path and by the
// reconnection write-back, which reconverges the record to restored values.
func (r *redisRepository) SavePlayer(ctx context.Context, input *SavePlayerInput) error {
	if input == nil || input.Player == nil {
		return errors.New("input and player cannot be nil")
	}

	if input.GamePin == "" {
		return errors.New("game pin cannot be empty")
	}

	return r.savePlayer(ctx, input.GamePin, input.Player)
}

// UpdatePlayerProgress raises a player's score and question index. Writes
// against a terminal record are ignored, and values never decrease, so the
// update is safe under re-delivery and reordering.
func (r *redisRepository) UpdatePlayerProgress(ctx context.Context, input *UpdatePlayerProgressInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	player, err := r.GetPlayer(ctx, &GetPlayerInput{GamePin: input.GamePin, UserID: input.UserID})
	if err != nil {
		return err
	}

	if player.Terminal() {
		return nil
	}

	if input.Score > player.Score {
		player.Score = input.Score
	}
	if input.CurrentQuestion > player.CurrentQuestion {
		player.CurrentQuestion = input.CurrentQuestion
	}

	return r.savePlayer(ctx, input.GamePin, player)
}

// SetPlayerPresence updates the presence flags on a player record. Terminal
// records are left untouched.
func (r *redisRepository) SetPlayerPresence(ctx context.Context, input *SetPlayerPresenceInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	player, err := r.GetPlayer(ctx, &GetPlayerInput{GamePin: input.GamePin, UserID: input.UserID})
	if err != nil {
		return err
	}

	if player.Terminal() {
		return nil
	}

	player.IsOnline = input.IsOnline
	player.InGracePeriod = input.InGracePeriod
	player.DisconnectedAt = input.DisconnectedAt

	return r.savePlayer(ctx, input.GamePin, player)
}

// MarkFinished latches a player's own terminal finished state with their
// final score. Calling it on an already terminal record is a no-op.
func (r *redisRepository) MarkFinished(ctx context.Context, input *MarkFinishedInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	player, err := r.GetPlayer(ctx, &GetPlayerInput{GamePin: input.GamePin, UserID: input.UserID})
	if err != nil {
		return err
	}

	if player.Terminal() {
		return nil
	}

	player.Finished = true
	if input.FinalScore > player.Score {
		player.Score = input.FinalScore
	}

	return r.savePlayer(ctx, input.GamePin, player)
}

// MarkOpponentFinished latches finished on another player without touching
// their score. A finishing client uses this to unblock the battle when a
// peer went silent during the final stretch.
func (r *redisRepository) MarkOpponentFinished(ctx context.Context, input *MarkOpponentFinishedInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	player, err := r.GetPlayer(ctx, &GetPlayerInput{GamePin: input.GamePin, UserID: input.UserID})
	if err != nil {
		return err
	}

	if player.Terminal() {
		return nil
	}

	player.Finished = true

	return r.savePlayer(ctx, input.GamePin, player)
}

// MarkForfeited performs the one-time forfeiture transition: the player goes
// offline and terminal with a zeroed score. Idempotent; a second call leaves
// the record identical.
func (r *redisRepository) MarkForfeited(ctx context.Context, input *MarkForfeitedInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	player, err := r.GetPlayer(ctx, &GetPlayerInput{GamePin: input.GamePin, UserID: input.UserID})
	if err != nil {
		return err
	}

	if player.Terminal() {
		return nil
	}

	player.IsOnline = false
	player.InGracePeriod = false
	player.HasForfeited = true
	player.Finished = true
	player.Score = 0
	player.ForfeitedAt = r.clock.Now().UnixMilli()

	return r.savePlayer(ctx, input.GamePin, player)
}

// SubscribePlayers watches the battle's players subtree. Every player write
// publishes the changed path to the subtree channel; the subscription relays
// those paths until closed.
func (r *redisRepository) SubscribePlayers(ctx context.Context, input *SubscribePlayersInput) (*PlayersSubscription, error) {
	if input == nil || input.GamePin == "" {
		return nil, errors.New("input and game pin cannot be empty")
	}

	pubsub := r.client.Subscribe(ctx, playersPath(input.GamePin))

	// Confirm the subscription before returning so no write is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to players: %w", err)
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

	return &PlayersSubscription{pubsub: pubsub, events: events, done: done}, nil
}

// SubscribeStatus watches the battle's lifecycle status. Every SetStatus
// publishes the new status to the metadata channel.
func (r *redisRepository) SubscribeStatus(ctx context.Context, input *SubscribeStatusInput) (*StatusSubscription, error) {
	if input == nil || input.GamePin == "" {
		return nil, errors.New("input and game pin cannot be empty")
	}

	pubsub := r.client.Subscribe(ctx, metadataKey(input.GamePin))

	// Confirm the subscription before returning so no transition is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to status: %w", err)
	}

	events := make(chan models.BattleStatus)
	done := make(chan struct{})
	go func() {
		defer close(events)
		for msg := range pubsub.Channel() {
			select {
			case events <- models.BattleStatus(msg.Payload):
			case <-done:
				return
			}
		}
	}()

	return &StatusSubscription{pubsub: pubsub, events: events, done: done}, nil
}

// savePlayer writes a player record and notifies subtree subscribers
func (r *redisRepository) savePlayer(ctx context.Context, gamePin string, player *models.Player) error {
	playerJSON, err := json.Marshal(player)
	if err != nil {
		return fmt.Errorf("failed to marshal player: %w", err)
	}

	key := playerKey(gamePin, player.UserID)

	pipe := r.client.Pipeline()
	pipe.Set(ctx, key, playerJSON, 0)
	pipe.SAdd(ctx, playersPath(gamePin), key)
	pipe.Publish(ctx, playersPath(gamePin), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save player: %w", err)
	}

	return nil
}
