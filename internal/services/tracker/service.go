package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"quizclash/internal/common/clock"
	"quizclash/internal/models"
	battleRepo "quizclash/internal/repositories/battle"
	connectionRepo "quizclash/internal/repositories/connection"

	"github.com/rs/zerolog/log"
)

// Config holds configuration for the connection tracker service
type Config struct {
	BattleRepo     battleRepo.Repository
	ConnectionRepo connectionRepo.Repository
	Clock          clock.Clock

	// HeartbeatInterval between beats; defaults to 5s
	HeartbeatInterval time.Duration

	// HeartbeatTimeout after which a silent player counts as offline;
	// defaults to twice the heartbeat interval
	HeartbeatTimeout time.Duration

	// GracePeriod a disconnected player has to reconnect; defaults to 90s
	GracePeriod time.Duration

	// SweepInterval between sweeper passes; defaults to 5s
	SweepInterval time.Duration
}

// service implements the Service interface
type service struct {
	config         *Config
	battleRepo     battleRepo.Repository
	connectionRepo connectionRepo.Repository
	clock          clock.Clock

	// mu guards the task registry below
	mu         sync.Mutex
	heartbeats map[string]chan struct{}
	sweeperCh  chan struct{}
}

// New creates a new connection tracker service
func New(cfg *Config) (*service, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.BattleRepo == nil {
		return nil, errors.New("battle repository cannot be nil")
	}

	if cfg.ConnectionRepo == nil {
		return nil, errors.New("connection repository cannot be nil")
	}

	if cfg.Clock == nil {
		return nil, errors.New("clock cannot be nil")
	}

	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}

	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 2 * cfg.HeartbeatInterval
	}

	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}

	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	return &service{
		config:         cfg,
		battleRepo:     cfg.BattleRepo,
		connectionRepo: cfg.ConnectionRepo,
		clock:          cfg.Clock,
		heartbeats:     make(map[string]chan struct{}),
	}, nil
}

func taskKey(gamePin string, userID int64) string {
	return fmt.Sprintf("%s:%d", gamePin, userID)
}

// Initialize writes the initial online state for a fresh connection and
// registers the deferred offline write. The registration is consumed once
// per live connection, so reconnect paths call this again.
func (s *service) Initialize(ctx context.Context, input *InitializeInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	now := s.clock.Now()

	err := s.connectionRepo.SaveConnection(ctx, &connectionRepo.SaveConnectionInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
		Connection: &models.Connection{
			IsOnline:      true,
			LastHeartbeat: now.UnixMilli(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write connection record: %w", err)
	}

	err = s.connectionRepo.TouchSession(ctx, &connectionRepo.TouchSessionInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
		TTL:     s.config.HeartbeatTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	err = s.connectionRepo.RegisterDisconnectIntent(ctx, &connectionRepo.RegisterDisconnectIntentInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})
	if err != nil {
		return fmt.Errorf("failed to register disconnect intent: %w", err)
	}

	// A reconnecting player may still be listed as grace-pending
	err = s.connectionRepo.ClearGracePending(ctx, &connectionRepo.ClearGracePendingInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})
	if err != nil {
		return fmt.Errorf("failed to clear grace pending: %w", err)
	}

	err = s.battleRepo.SetPlayerPresence(ctx, &battleRepo.SetPlayerPresenceInput{
		GamePin:  input.GamePin,
		UserID:   input.UserID,
		IsOnline: true,
	})
	if err != nil && !errors.Is(err, battleRepo.ErrPlayerNotFound) {
		return fmt.Errorf("failed to set player presence: %w", err)
	}

	return nil
}

// SendHeartbeat records one liveness beat: a fresh connection record, a
// refreshed session key, and cleared grace flags on the player record.
func (s *service) SendHeartbeat(ctx context.Context, input *SendHeartbeatInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	now := s.clock.Now()

	err := s.connectionRepo.SaveConnection(ctx, &connectionRepo.SaveConnectionInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
		Connection: &models.Connection{
			IsOnline:      true,
			LastHeartbeat: now.UnixMilli(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write heartbeat: %w", err)
	}

	err = s.connectionRepo.TouchSession(ctx, &connectionRepo.TouchSessionInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
		TTL:     s.config.HeartbeatTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	err = s.battleRepo.SetPlayerPresence(ctx, &battleRepo.SetPlayerPresenceInput{
		GamePin:  input.GamePin,
		UserID:   input.UserID,
		IsOnline: true,
	})
	if err != nil && !errors.Is(err, battleRepo.ErrPlayerNotFound) {
		return fmt.Errorf("failed to clear grace flags: %w", err)
	}

	return nil
}

// StartHeartbeat runs the periodic heartbeat loop for a player. Starting an
// already running loop restarts it.
func (s *service) StartHeartbeat(ctx context.Context, input *StartHeartbeatInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	key := taskKey(input.GamePin, input.UserID)

	s.mu.Lock()
	if stop, ok := s.heartbeats[key]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	s.heartbeats[key] = stop
	s.mu.Unlock()

	go func() {
		ticker := s.clock.NewTicker(s.config.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if err := s.SendHeartbeat(ctx, &SendHeartbeatInput{
					GamePin: input.GamePin,
					UserID:  input.UserID,
				}); err != nil {
					// Fire-and-forget: the next beat self-heals
					log.Warn().
						Str("game_pin", input.GamePin).
						Int64("user_id", input.UserID).
						Err(err).
						Msg("heartbeat failed")
				}
			}
		}
	}()

	return nil
}

// StopHeartbeat cancels a player's heartbeat loop
func (s *service) StopHeartbeat(input *StopHeartbeatInput) {
	if input == nil || input.GamePin == "" {
		return
	}

	key := taskKey(input.GamePin, input.UserID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if stop, ok := s.heartbeats[key]; ok {
		close(stop)
		delete(s.heartbeats, key)
	}
}

// IsPlayerOnline evaluates the liveness predicate: the record says online
// and the last heartbeat is younger than the timeout.
func (s *service) IsPlayerOnline(ctx context.Context, input *IsPlayerOnlineInput) (*IsPlayerOnlineOutput, error) {
	if input == nil || input.GamePin == "" {
		return nil, errors.New("input and game pin cannot be empty")
	}

	conn, err := s.connectionRepo.GetConnection(ctx, &connectionRepo.GetConnectionInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})
	if err != nil {
		if errors.Is(err, connectionRepo.ErrConnectionNotFound) {
			return &IsPlayerOnlineOutput{Online: false}, nil
		}
		return nil, err
	}

	age := s.clock.Now().UnixMilli() - conn.LastHeartbeat
	online := conn.IsOnline && age < s.config.HeartbeatTimeout.Milliseconds()

	return &IsPlayerOnlineOutput{Online: online}, nil
}

// CheckGracePeriod reports a disconnected player's remaining window. Once
// the window has lapsed it performs the forfeiture transition exactly once;
// repeat calls see the hasForfeited latch and change nothing.
func (s *service) CheckGracePeriod(ctx context.Context, input *CheckGracePeriodInput) (*CheckGracePeriodOutput, error) {
	if input == nil || input.GamePin == "" {
		return nil, errors.New("input and game pin cannot be empty")
	}

	player, err := s.battleRepo.GetPlayer(ctx, &battleRepo.GetPlayerInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})
	if err != nil {
		return nil, err
	}

	if player.HasForfeited {
		return &CheckGracePeriodOutput{IsForfeited: true}, nil
	}

	// A player who finished before disconnecting has nothing to forfeit
	if player.Finished {
		return &CheckGracePeriodOutput{}, nil
	}

	conn, err := s.connectionRepo.GetConnection(ctx, &connectionRepo.GetConnectionInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})
	if err != nil {
		if errors.Is(err, connectionRepo.ErrConnectionNotFound) {
			return &CheckGracePeriodOutput{}, nil
		}
		return nil, err
	}

	if conn.DisconnectedAt == 0 {
		return &CheckGracePeriodOutput{}, nil
	}

	elapsed := time.Duration(s.clock.Now().UnixMilli()-conn.DisconnectedAt) * time.Millisecond
	if elapsed < s.config.GracePeriod {
		return &CheckGracePeriodOutput{
			InGracePeriod: true,
			TimeRemaining: s.config.GracePeriod - elapsed,
		}, nil
	}

	if err := s.forfeit(ctx, input.GamePin, input.UserID); err != nil {
		return nil, err
	}

	return &CheckGracePeriodOutput{IsForfeited: true}, nil
}

// CommitDisconnect applies the deferred offline write. Duplicated commits
// keep the earliest disconnectedAt so the grace window never restarts.
func (s *service) CommitDisconnect(ctx context.Context, input *CommitDisconnectInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	now := s.clock.Now()

	conn, err := s.connectionRepo.GetConnection(ctx, &connectionRepo.GetConnectionInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})
	if err != nil && !errors.Is(err, connectionRepo.ErrConnectionNotFound) {
		return err
	}

	disconnectedAt := now.UnixMilli()
	lastHeartbeat := int64(0)
	if conn != nil {
		lastHeartbeat = conn.LastHeartbeat
		if conn.DisconnectedAt != 0 {
			disconnectedAt = conn.DisconnectedAt
		}
	}

	err = s.connectionRepo.SaveConnection(ctx, &connectionRepo.SaveConnectionInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
		Connection: &models.Connection{
			IsOnline:       false,
			LastHeartbeat:  lastHeartbeat,
			DisconnectedAt: disconnectedAt,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to commit disconnect: %w", err)
	}

	err = s.battleRepo.SetPlayerPresence(ctx, &battleRepo.SetPlayerPresenceInput{
		GamePin:        input.GamePin,
		UserID:         input.UserID,
		IsOnline:       false,
		InGracePeriod:  true,
		DisconnectedAt: disconnectedAt,
	})
	if err != nil && !errors.Is(err, battleRepo.ErrPlayerNotFound) {
		return fmt.Errorf("failed to set player offline: %w", err)
	}

	err = s.connectionRepo.MarkGracePending(ctx, &connectionRepo.MarkGracePendingInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})
	if err != nil {
		return fmt.Errorf("failed to mark grace pending: %w", err)
	}

	return nil
}

// Disconnect performs an intentional leave. The deferred write is cancelled
// first so the two paths stay safe to run in either order; the terminal
// offline write keeps the player's score.
func (s *service) Disconnect(ctx context.Context, input *DisconnectInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	s.StopHeartbeat(&StopHeartbeatInput{GamePin: input.GamePin, UserID: input.UserID})

	err := s.connectionRepo.ClearDisconnectIntent(ctx, &connectionRepo.ClearDisconnectIntentInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})
	if err != nil {
		return err
	}

	err = s.connectionRepo.EndSession(ctx, &connectionRepo.EndSessionInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})
	if err != nil {
		return err
	}

	err = s.connectionRepo.DeleteConnection(ctx, &connectionRepo.DeleteConnectionInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})
	if err != nil {
		return err
	}

	err = s.battleRepo.SetPlayerPresence(ctx, &battleRepo.SetPlayerPresenceInput{
		GamePin:  input.GamePin,
		UserID:   input.UserID,
		IsOnline: false,
	})
	if err != nil && !errors.Is(err, battleRepo.ErrPlayerNotFound) {
		return err
	}

	return nil
}

// StartSweeper runs the background loop standing in for the store-native
// on-disconnect hook: it commits the deferred write for sessions whose
// liveness key lapsed, then finalizes grace windows that have run out.
func (s *service) StartSweeper(ctx context.Context) error {
	s.mu.Lock()
	if s.sweeperCh != nil {
		s.mu.Unlock()
		return errors.New("sweeper already running")
	}
	stop := make(chan struct{})
	s.sweeperCh = stop
	s.mu.Unlock()

	go func() {
		ticker := s.clock.NewTicker(s.config.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				s.sweep(ctx)
			}
		}
	}()

	return nil
}

// Sweep runs one sweeper pass. Exposed so tests and callers driving their
// own schedule can trigger it directly.
func (s *service) Sweep(ctx context.Context) {
	s.sweep(ctx)
}

func (s *service) sweep(ctx context.Context) {
	stale, err := s.connectionRepo.ListStaleIntents(ctx, &connectionRepo.ListStaleIntentsInput{})
	if err != nil {
		log.Warn().Err(err).Msg("sweeper failed to list stale sessions")
	} else {
		for _, intent := range stale.Intents {
			if err := s.CommitDisconnect(ctx, &CommitDisconnectInput{
				GamePin: intent.GamePin,
				UserID:  intent.UserID,
			}); err != nil {
				log.Warn().
					Str("game_pin", intent.GamePin).
					Int64("user_id", intent.UserID).
					Err(err).
					Msg("sweeper failed to commit disconnect")
				continue
			}

			// The deferred write is consumed once per live connection
			if err := s.connectionRepo.ClearDisconnectIntent(ctx, &connectionRepo.ClearDisconnectIntentInput{
				GamePin: intent.GamePin,
				UserID:  intent.UserID,
			}); err != nil {
				log.Warn().
					Str("game_pin", intent.GamePin).
					Int64("user_id", intent.UserID).
					Err(err).
					Msg("sweeper failed to clear disconnect intent")
			}
		}
	}

	pending, err := s.connectionRepo.ListGracePending(ctx, &connectionRepo.ListGracePendingInput{})
	if err != nil {
		log.Warn().Err(err).Msg("sweeper failed to list grace-pending players")
		return
	}

	for _, entry := range pending.Entries {
		out, err := s.CheckGracePeriod(ctx, &CheckGracePeriodInput{
			GamePin: entry.GamePin,
			UserID:  entry.UserID,
		})
		if err != nil {
			if errors.Is(err, battleRepo.ErrPlayerNotFound) || errors.Is(err, battleRepo.ErrBattleNotFound) {
				s.clearGracePending(ctx, entry)
			} else {
				log.Warn().
					Str("game_pin", entry.GamePin).
					Int64("user_id", entry.UserID).
					Err(err).
					Msg("sweeper failed to check grace period")
			}
			continue
		}

		// Reconnected or forfeited players no longer need checking
		if !out.InGracePeriod {
			s.clearGracePending(ctx, entry)
		}
	}
}

func (s *service) clearGracePending(ctx context.Context, entry *connectionRepo.GracePendingEntry) {
	if err := s.connectionRepo.ClearGracePending(ctx, &connectionRepo.ClearGracePendingInput{
		GamePin: entry.GamePin,
		UserID:  entry.UserID,
	}); err != nil {
		log.Warn().
			Str("game_pin", entry.GamePin).
			Int64("user_id", entry.UserID).
			Err(err).
			Msg("sweeper failed to clear grace pending")
	}
}

// Teardown cancels the sweeper and every heartbeat loop together so no
// leaked timer keeps writing to a store the process has abandoned.
func (s *service) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, stop := range s.heartbeats {
		close(stop)
		delete(s.heartbeats, key)
	}

	if s.sweeperCh != nil {
		close(s.sweeperCh)
		s.sweeperCh = nil
	}
}

// forfeit performs the one-time forfeiture transition and cleans the
// ephemeral liveness state up.
func (s *service) forfeit(ctx context.Context, gamePin string, userID int64) error {
	err := s.battleRepo.MarkForfeited(ctx, &battleRepo.MarkForfeitedInput{
		GamePin: gamePin,
		UserID:  userID,
	})
	if err != nil {
		return fmt.Errorf("failed to mark player forfeited: %w", err)
	}

	if err := s.connectionRepo.DeleteConnection(ctx, &connectionRepo.DeleteConnectionInput{
		GamePin: gamePin,
		UserID:  userID,
	}); err != nil {
		log.Warn().Str("game_pin", gamePin).Int64("user_id", userID).Err(err).
			Msg("failed to delete connection record after forfeit")
	}

	if err := s.connectionRepo.ClearDisconnectIntent(ctx, &connectionRepo.ClearDisconnectIntentInput{
		GamePin: gamePin,
		UserID:  userID,
	}); err != nil {
		log.Warn().Str("game_pin", gamePin).Int64("user_id", userID).Err(err).
			Msg("failed to clear disconnect intent after forfeit")
	}

	if err := s.connectionRepo.ClearGracePending(ctx, &connectionRepo.ClearGracePendingInput{
		GamePin: gamePin,
		UserID:  userID,
	}); err != nil {
		log.Warn().Str("game_pin", gamePin).Int64("user_id", userID).Err(err).
			Msg("failed to clear grace pending after forfeit")
	}

	log.Info().Str("game_pin", gamePin).Int64("user_id", userID).
		Msg("player forfeited after grace period")

	return nil
}
