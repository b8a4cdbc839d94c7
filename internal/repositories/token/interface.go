package token

//go:generate mockgen -package=mocks -destination=mocks/mock_repository.go quizclash/internal/repositories/token Repository

import (
	"context"

	"quizclash/internal/models"
)

// Repository persists the server-side copy of reconnection tokens
type Repository interface {
	// SaveToken stores the token for a (battle, player) slot
	SaveToken(ctx context.Context, input *SaveTokenInput) error

	// GetToken retrieves the stored token
	GetToken(ctx context.Context, input *GetTokenInput) (*models.ReconnectionToken, error)

	// DeleteToken removes the stored token
	DeleteToken(ctx context.Context, input *DeleteTokenInput) error
}
