package statesync

//go:generate mockgen -package=mocks -destination=mocks/mock_service.go quizclash/internal/services/statesync Service

import (
	"context"

	"quizclash/internal/models"
)

// StateSource supplies the current in-progress quiz state for autosaves.
// The quiz session implements it.
type StateSource interface {
	Snapshot() *models.PlayerSnapshot
}

// Service makes a player's forward progress recoverable across a connection
// loss by snapshotting it to the shared store and restoring it on
// reconnection.
type Service interface {
	// SaveBaseline writes the zero-state snapshot at battle start. Skipped
	// while a restore is in flight so real progress is never clobbered.
	SaveBaseline(ctx context.Context, input *SaveBaselineInput) error

	// SaveNow persists the given snapshot immediately
	SaveNow(ctx context.Context, input *SaveNowInput) error

	// SaveAsync persists without blocking the caller; best-effort, used on
	// the page-unload path
	SaveAsync(input *SaveNowInput)

	// StartAutosave runs the periodic snapshot loop for a player
	StartAutosave(ctx context.Context, input *StartAutosaveInput) error

	// StopAutosave cancels a player's autosave loop
	StopAutosave(input *StopAutosaveInput)

	// BeginRestore flags a restore as in flight for the slot
	BeginRestore(input *BeginRestoreInput)

	// EndRestore clears the in-flight flag
	EndRestore(input *EndRestoreInput)

	// Restore reads the saved snapshot; absent or expired reports
	// ErrStateNotFound. The caller adopts the tuple verbatim and is
	// responsible for clearing it afterwards.
	Restore(ctx context.Context, input *RestoreInput) (*RestoreOutput, error)

	// Clear removes the snapshot after a successful adopt
	Clear(ctx context.Context, input *ClearInput) error

	// WriteBack reconverges the player record to restored values so it is
	// authoritative again for everyone else's leaderboard view
	WriteBack(ctx context.Context, input *WriteBackInput) error

	// Teardown cancels every autosave loop
	Teardown()
}
