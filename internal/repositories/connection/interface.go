package connection

//go:generate mockgen -package=mocks -destination=mocks/mock_repository.go quizclash/internal/repositories/connection Repository

import (
	"context"

	"quizclash/internal/models"
)

// Repository manages the ephemeral per-player liveness state: the connection
// record itself, a session key whose TTL is the live-connection signal, and
// the deferred disconnect intents the sweeper commits when a session lapses.
type Repository interface {
	// SaveConnection overwrites a player's connection record
	SaveConnection(ctx context.Context, input *SaveConnectionInput) error

	// GetConnection retrieves a player's connection record
	GetConnection(ctx context.Context, input *GetConnectionInput) (*models.Connection, error)

	// DeleteConnection removes a player's connection record
	DeleteConnection(ctx context.Context, input *DeleteConnectionInput) error

	// TouchSession refreshes the session liveness key
	TouchSession(ctx context.Context, input *TouchSessionInput) error

	// EndSession drops the session liveness key immediately
	EndSession(ctx context.Context, input *EndSessionInput) error

	// SessionAlive reports whether the session liveness key still exists
	SessionAlive(ctx context.Context, input *SessionAliveInput) (bool, error)

	// RegisterDisconnectIntent registers the deferred offline write for a
	// live session; idempotent, re-issued after every reconnection
	RegisterDisconnectIntent(ctx context.Context, input *RegisterDisconnectIntentInput) error

	// ClearDisconnectIntent cancels the deferred write (intentional leave)
	ClearDisconnectIntent(ctx context.Context, input *ClearDisconnectIntentInput) error

	// ListStaleIntents returns the intents whose session key has lapsed
	ListStaleIntents(ctx context.Context, input *ListStaleIntentsInput) (*ListStaleIntentsOutput, error)

	// MarkGracePending records that a player's grace window is running and
	// needs periodic checking
	MarkGracePending(ctx context.Context, input *MarkGracePendingInput) error

	// ClearGracePending removes a player from the grace-pending index
	ClearGracePending(ctx context.Context, input *ClearGracePendingInput) error

	// ListGracePending returns every player with a running grace window
	ListGracePending(ctx context.Context, input *ListGracePendingInput) (*ListGracePendingOutput, error)
}
