package snapshot

//go:generate mockgen -package=mocks -destination=mocks/mock_repository.go quizclash/internal/repositories/snapshot Repository

import (
	"context"

	"quizclash/internal/models"
)

// Repository persists saved player state snapshots: write-many while a
// session runs, read once on reconnection, then cleared. A snapshot past its
// expiry is treated as absent, never as an error.
type Repository interface {
	// SaveState overwrites the player's snapshot with fresh timestamps
	SaveState(ctx context.Context, input *SaveStateInput) error

	// GetState retrieves the snapshot; expired counts as not found
	GetState(ctx context.Context, input *GetStateInput) (*models.PlayerSnapshot, error)

	// ClearState removes the snapshot after a successful restore
	ClearState(ctx context.Context, input *ClearStateInput) error
}
