package statesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"quizclash/internal/common/clock"
	battleRepo "quizclash/internal/repositories/battle"
	snapshotRepo "quizclash/internal/repositories/snapshot"

	"github.com/rs/zerolog/log"
)

// ErrStateNotFound is returned when no usable snapshot exists for the slot
var ErrStateNotFound = errors.New("saved state not found")

// Config holds configuration for the player state synchronizer
type Config struct {
	SnapshotRepo snapshotRepo.Repository
	BattleRepo   battleRepo.Repository
	Clock        clock.Clock

	// AutosaveInterval between periodic snapshots; defaults to 3s
	AutosaveInterval time.Duration
}

// service implements the Service interface
type service struct {
	config       *Config
	snapshotRepo snapshotRepo.Repository
	battleRepo   battleRepo.Repository
	clock        clock.Clock

	// mu guards the task registry and restore flags below
	mu        sync.Mutex
	autosaves map[string]chan struct{}
	restoring map[string]bool
}

// New creates a new player state synchronizer
func New(cfg *Config) (*service, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.SnapshotRepo == nil {
		return nil, errors.New("snapshot repository cannot be nil")
	}

	if cfg.BattleRepo == nil {
		return nil, errors.New("battle repository cannot be nil")
	}

	if cfg.Clock == nil {
		return nil, errors.New("clock cannot be nil")
	}

	if cfg.AutosaveInterval <= 0 {
		cfg.AutosaveInterval = DefaultAutosaveInterval
	}

	return &service{
		config:       cfg,
		snapshotRepo: cfg.SnapshotRepo,
		battleRepo:   cfg.BattleRepo,
		clock:        cfg.Clock,
		autosaves:    make(map[string]chan struct{}),
		restoring:    make(map[string]bool),
	}, nil
}

func slotKey(gamePin string, userID int64) string {
	return fmt.Sprintf("%s:%d", gamePin, userID)
}

// SaveBaseline writes the zero-state snapshot at battle start. When a
// reconnection is in flight for the slot the baseline is dropped, otherwise
// it would clobber the real progress about to be restored.
func (s *service) SaveBaseline(ctx context.Context, input *SaveBaselineInput) error {
	if input == nil || input.Snapshot == nil {
		return errors.New("input and snapshot cannot be nil")
	}

	s.mu.Lock()
	inFlight := s.restoring[slotKey(input.GamePin, input.UserID)]
	s.mu.Unlock()

	if inFlight {
		log.Debug().
			Str("game_pin", input.GamePin).
			Int64("user_id", input.UserID).
			Msg("skipping baseline save, restore in flight")
		return nil
	}

	return s.SaveNow(ctx, &SaveNowInput{
		GamePin:  input.GamePin,
		UserID:   input.UserID,
		Snapshot: input.Snapshot,
	})
}

// SaveNow persists the given snapshot immediately
func (s *service) SaveNow(ctx context.Context, input *SaveNowInput) error {
	if input == nil || input.Snapshot == nil {
		return errors.New("input and snapshot cannot be nil")
	}

	err := s.snapshotRepo.SaveState(ctx, &snapshotRepo.SaveStateInput{
		GamePin:  input.GamePin,
		UserID:   input.UserID,
		Snapshot: input.Snapshot,
	})
	if err != nil {
		return fmt.Errorf("failed to save player state: %w", err)
	}

	return nil
}

// SaveAsync persists without blocking the caller. Used on page-unload, where
// the transport must not block navigation; the write either lands or the
// periodic snapshot already covered most of the progress.
func (s *service) SaveAsync(input *SaveNowInput) {
	if input == nil || input.Snapshot == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.SaveNow(ctx, input); err != nil {
			log.Warn().
				Str("game_pin", input.GamePin).
				Int64("user_id", input.UserID).
				Err(err).
				Msg("async state save failed")
		}
	}()
}

// StartAutosave runs the periodic snapshot loop for a player. Starting an
// already running loop restarts it.
func (s *service) StartAutosave(ctx context.Context, input *StartAutosaveInput) error {
	if input == nil || input.Source == nil {
		return errors.New("input and state source cannot be nil")
	}

	key := slotKey(input.GamePin, input.UserID)

	s.mu.Lock()
	if stop, ok := s.autosaves[key]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	s.autosaves[key] = stop
	s.mu.Unlock()

	go func() {
		ticker := s.clock.NewTicker(s.config.AutosaveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				snap := input.Source.Snapshot()
				if snap == nil {
					continue
				}
				if err := s.SaveNow(ctx, &SaveNowInput{
					GamePin:  input.GamePin,
					UserID:   input.UserID,
					Snapshot: snap,
				}); err != nil {
					// The next tick self-heals
					log.Warn().
						Str("game_pin", input.GamePin).
						Int64("user_id", input.UserID).
						Err(err).
						Msg("autosave failed")
				}
			}
		}
	}()

	return nil
}

// StopAutosave cancels a player's autosave loop
func (s *service) StopAutosave(input *StopAutosaveInput) {
	if input == nil || input.GamePin == "" {
		return
	}

	key := slotKey(input.GamePin, input.UserID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if stop, ok := s.autosaves[key]; ok {
		close(stop)
		delete(s.autosaves, key)
	}
}

// BeginRestore flags a restore as in flight for the slot
func (s *service) BeginRestore(input *BeginRestoreInput) {
	if input == nil || input.GamePin == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.restoring[slotKey(input.GamePin, input.UserID)] = true
}

// EndRestore clears the in-flight flag
func (s *service) EndRestore(input *EndRestoreInput) {
	if input == nil || input.GamePin == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.restoring, slotKey(input.GamePin, input.UserID))
}

// Restore reads the saved snapshot. Absence and expiry both report
// ErrStateNotFound; the caller adopts a returned tuple verbatim and clears
// it afterwards to avoid double restoration.
func (s *service) Restore(ctx context.Context, input *RestoreInput) (*RestoreOutput, error) {
	if input == nil || input.GamePin == "" {
		return nil, errors.New("input and game pin cannot be empty")
	}

	snap, err := s.snapshotRepo.GetState(ctx, &snapshotRepo.GetStateInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})
	if err != nil {
		if errors.Is(err, snapshotRepo.ErrSnapshotNotFound) {
			return nil, ErrStateNotFound
		}
		return nil, err
	}

	return &RestoreOutput{Snapshot: snap}, nil
}

// Clear removes the snapshot after a successful adopt
func (s *service) Clear(ctx context.Context, input *ClearInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	return s.snapshotRepo.ClearState(ctx, &snapshotRepo.ClearStateInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})
}

// WriteBack reconverges the player record to the restored snapshot values.
// The snapshot wins during restore; once written back, the player record is
// authoritative again for every other client's leaderboard view.
func (s *service) WriteBack(ctx context.Context, input *WriteBackInput) error {
	if input == nil || input.Snapshot == nil {
		return errors.New("input and snapshot cannot be nil")
	}

	err := s.battleRepo.UpdatePlayerProgress(ctx, &battleRepo.UpdatePlayerProgressInput{
		GamePin:         input.GamePin,
		UserID:          input.UserID,
		Score:           input.Snapshot.Score,
		CurrentQuestion: input.Snapshot.CurrentQuestionIndex,
	})
	if err != nil {
		return fmt.Errorf("failed to write restored state back: %w", err)
	}

	return nil
}

// Teardown cancels every autosave loop together
func (s *service) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, stop := range s.autosaves {
		close(stop)
		delete(s.autosaves, key)
	}
}
