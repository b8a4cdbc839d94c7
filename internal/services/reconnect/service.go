package reconnect

import (
	"context"
	"errors"
	"fmt"
	"sync"

	battleRepo "quizclash/internal/repositories/battle"
	"quizclash/internal/services/statesync"
	"quizclash/internal/services/token"
	"quizclash/internal/services/tracker"

	"github.com/rs/zerolog/log"
)

// Config holds the services the facade composes
type Config struct {
	TokenService token.Service
	Tracker      tracker.Service
	StateSync    statesync.Service
	BattleRepo   battleRepo.Repository
}

type service struct {
	config *Config

	mu           sync.Mutex
	reconnecting map[string]bool
}

// New creates a new reconnection facade
func New(cfg *Config) (*service, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.TokenService == nil {
		return nil, errors.New("token service cannot be nil")
	}

	if cfg.Tracker == nil {
		return nil, errors.New("tracker cannot be nil")
	}

	if cfg.StateSync == nil {
		return nil, errors.New("state sync cannot be nil")
	}

	if cfg.BattleRepo == nil {
		return nil, errors.New("battle repository cannot be nil")
	}

	return &service{
		config:       cfg,
		reconnecting: make(map[string]bool),
	}, nil
}

func (s *service) Reconnect(ctx context.Context, input *ReconnectInput) (*ReconnectOutput, error) {
	if input == nil {
		return nil, errors.New("input cannot be nil")
	}

	slot := slotKey(input.GamePin, input.UserID)

	s.mu.Lock()
	if s.reconnecting[slot] {
		s.mu.Unlock()
		return &ReconnectOutput{Reason: "reconnection already in progress"}, nil
	}
	s.reconnecting[slot] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.reconnecting, slot)
		s.mu.Unlock()
	}()

	verified, err := s.config.TokenService.Verify(ctx, &token.VerifyInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
		Token:   input.Token,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}

	if !verified.Valid {
		if verified.Refusal == token.RefusalBattleUnavailable {
			return &ReconnectOutput{Reason: "battle no longer available"}, nil
		}
		return &ReconnectOutput{Reason: "invalid reconnection token"}, nil
	}

	player, err := s.config.BattleRepo.GetPlayer(ctx, &battleRepo.GetPlayerInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	if player.HasForfeited {
		return &ReconnectOutput{Reason: "player has forfeited"}, nil
	}

	out := &ReconnectOutput{
		Reconnected: true,
		PlayerData:  verified.PlayerData,
	}

	// Restore under the in-flight flag so a concurrent autosave baseline
	// cannot clobber the saved progress mid-adopt.
	s.config.StateSync.BeginRestore(&statesync.BeginRestoreInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})
	defer s.config.StateSync.EndRestore(&statesync.EndRestoreInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})

	restored, err := s.config.StateSync.Restore(ctx, &statesync.RestoreInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})
	switch {
	case err == nil:
		out.Snapshot = restored.Snapshot

		if err := s.config.StateSync.Clear(ctx, &statesync.ClearInput{
			GamePin: input.GamePin,
			UserID:  input.UserID,
		}); err != nil {
			log.Warn().
				Str("game_pin", input.GamePin).
				Int64("user_id", input.UserID).
				Err(err).
				Msg("failed to clear saved state")
		}

		if err := s.config.StateSync.WriteBack(ctx, &statesync.WriteBackInput{
			GamePin:  input.GamePin,
			UserID:   input.UserID,
			Snapshot: restored.Snapshot,
		}); err != nil {
			log.Warn().
				Str("game_pin", input.GamePin).
				Int64("user_id", input.UserID).
				Err(err).
				Msg("failed to write back restored state")
		}
	case errors.Is(err, statesync.ErrStateNotFound):
		// Nothing saved or it expired; the caller resumes from the shared
		// player record
	default:
		return nil, fmt.Errorf("failed to restore saved state: %w", err)
	}

	if err := s.config.Tracker.Initialize(ctx, &tracker.InitializeInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize connection tracking: %w", err)
	}

	// The spent token is replaced so every live connection carries a fresh
	// binding
	created, err := s.config.TokenService.Create(ctx, &token.CreateInput{
		GamePin:    input.GamePin,
		UserID:     input.UserID,
		PlayerData: verified.PlayerData,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue replacement token: %w", err)
	}
	out.Token = created.Token

	log.Info().
		Str("game_pin", input.GamePin).
		Int64("user_id", input.UserID).
		Bool("restored", out.Snapshot != nil).
		Msg("player reconnected")

	return out, nil
}

func (s *service) Disconnect(ctx context.Context, input *DisconnectInput) error {
	if input == nil {
		return errors.New("input cannot be nil")
	}

	s.config.StateSync.StopAutosave(&statesync.StopAutosaveInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})

	if err := s.config.TokenService.Invalidate(ctx, &token.InvalidateInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	}); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	if err := s.config.Tracker.Disconnect(ctx, &tracker.DisconnectInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	}); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}

	return nil
}

func (s *service) ConnectionState(ctx context.Context, input *ConnectionStateInput) (*ConnectionStateOutput, error) {
	if input == nil {
		return nil, errors.New("input cannot be nil")
	}

	s.mu.Lock()
	reconnecting := s.reconnecting[slotKey(input.GamePin, input.UserID)]
	s.mu.Unlock()

	online, err := s.config.Tracker.IsPlayerOnline(ctx, &tracker.IsPlayerOnlineInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check liveness: %w", err)
	}

	out := &ConnectionStateOutput{
		IsOnline:       online.Online,
		IsReconnecting: reconnecting,
	}

	if out.IsOnline {
		return out, nil
	}

	grace, err := s.config.Tracker.CheckGracePeriod(ctx, &tracker.CheckGracePeriodInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check grace period: %w", err)
	}

	out.InGracePeriod = grace.InGracePeriod
	out.GracePeriodTimeRemaining = grace.TimeRemaining
	out.ReconnectionAvailable = !grace.IsForfeited

	return out, nil
}

func slotKey(gamePin string, userID int64) string {
	return fmt.Sprintf("%s:%d", gamePin, userID)
}
