package token

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"quizclash/internal/common/clock"
	"quizclash/internal/common/uuid"
	"quizclash/internal/models"
	battleRepo "quizclash/internal/repositories/battle"
	tokenRepo "quizclash/internal/repositories/token"
)

// Config holds configuration for the reconnection token service
type Config struct {
	TokenRepo  tokenRepo.Repository
	BattleRepo battleRepo.Repository
	Clock      clock.Clock
	UUID       uuid.UUID
}

// service implements the Service interface
type service struct {
	tokenRepo  tokenRepo.Repository
	battleRepo battleRepo.Repository
	clock      clock.Clock
	uuid       uuid.UUID
}

// New creates a new reconnection token service
func New(cfg *Config) (*service, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.TokenRepo == nil {
		return nil, errors.New("token repository cannot be nil")
	}

	if cfg.BattleRepo == nil {
		return nil, errors.New("battle repository cannot be nil")
	}

	if cfg.Clock == nil {
		return nil, errors.New("clock cannot be nil")
	}

	if cfg.UUID == nil {
		return nil, errors.New("uuid generator cannot be nil")
	}

	return &service{
		tokenRepo:  cfg.TokenRepo,
		battleRepo: cfg.BattleRepo,
		clock:      cfg.Clock,
		uuid:       cfg.UUID,
	}, nil
}

// Create issues a fresh token for a (battle, player) slot, overwriting any
// previous one for that slot
func (s *service) Create(ctx context.Context, input *CreateInput) (*CreateOutput, error) {
	if input == nil || input.GamePin == "" {
		return nil, errors.New("input and game pin cannot be empty")
	}

	tok := &models.ReconnectionToken{
		Token:      s.uuid.NewUUID(),
		PlayerData: input.PlayerData,
		CreatedAt:  s.clock.Now().UnixMilli(),
	}

	err := s.tokenRepo.SaveToken(ctx, &tokenRepo.SaveTokenInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
		Token:   tok,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store reconnection token: %w", err)
	}

	return &CreateOutput{Token: tok}, nil
}

// Verify checks a presented token against the stored copy. The token itself
// carries no expiry; the grace-period check bounds its useful life.
func (s *service) Verify(ctx context.Context, input *VerifyInput) (*VerifyOutput, error) {
	if input == nil || input.GamePin == "" {
		return nil, errors.New("input and game pin cannot be empty")
	}

	if input.Token == "" {
		return &VerifyOutput{Refusal: RefusalTokenMismatch}, nil
	}

	stored, err := s.tokenRepo.GetToken(ctx, &tokenRepo.GetTokenInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})
	if err != nil {
		if errors.Is(err, tokenRepo.ErrTokenNotFound) {
			return &VerifyOutput{Refusal: RefusalTokenMismatch}, nil
		}
		return nil, err
	}

	if subtle.ConstantTimeCompare([]byte(stored.Token), []byte(input.Token)) != 1 {
		return &VerifyOutput{Refusal: RefusalTokenMismatch}, nil
	}

	battle, err := s.battleRepo.GetBattle(ctx, &battleRepo.GetBattleInput{GamePin: input.GamePin})
	if err != nil {
		if errors.Is(err, battleRepo.ErrBattleNotFound) {
			return &VerifyOutput{Refusal: RefusalBattleUnavailable}, nil
		}
		return nil, err
	}

	if battle.Status == models.BattleStatusCompleted {
		return &VerifyOutput{Refusal: RefusalBattleUnavailable}, nil
	}

	return &VerifyOutput{
		Valid:      true,
		PlayerData: stored.PlayerData,
	}, nil
}

// Invalidate removes the stored token, preventing stale reconnection after
// a deliberate exit
func (s *service) Invalidate(ctx context.Context, input *InvalidateInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	return s.tokenRepo.DeleteToken(ctx, &tokenRepo.DeleteTokenInput{
		GamePin: input.GamePin,
		UserID:  input.UserID,
	})
}
