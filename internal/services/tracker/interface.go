package tracker

//go:generate mockgen -package=mocks -destination=mocks/mock_service.go quizclash/internal/services/tracker Service

import "context"

// Service maintains a crash-tolerant liveness signal per player and drives
// the disconnect → grace period → forfeit pipeline.
type Service interface {
	// Initialize writes the initial online state for a fresh connection and
	// registers the deferred offline write. Idempotent; must be re-issued
	// after every successful reconnection.
	Initialize(ctx context.Context, input *InitializeInput) error

	// SendHeartbeat records one liveness beat. Best-effort; the next
	// scheduled beat self-heals a failure.
	SendHeartbeat(ctx context.Context, input *SendHeartbeatInput) error

	// StartHeartbeat runs the periodic heartbeat loop for a player
	StartHeartbeat(ctx context.Context, input *StartHeartbeatInput) error

	// StopHeartbeat cancels a player's heartbeat loop
	StopHeartbeat(input *StopHeartbeatInput)

	// IsPlayerOnline evaluates the liveness predicate for a player
	IsPlayerOnline(ctx context.Context, input *IsPlayerOnlineInput) (*IsPlayerOnlineOutput, error)

	// CheckGracePeriod reports a disconnected player's remaining window and
	// performs the one-time forfeiture transition once it has lapsed
	CheckGracePeriod(ctx context.Context, input *CheckGracePeriodInput) (*CheckGracePeriodOutput, error)

	// CommitDisconnect applies the deferred offline write for a session
	// whose live connection dropped
	CommitDisconnect(ctx context.Context, input *CommitDisconnectInput) error

	// Disconnect performs an intentional leave: session ended, deferred
	// write cancelled, player marked offline with score preserved
	Disconnect(ctx context.Context, input *DisconnectInput) error

	// StartSweeper runs the background loop that commits lapsed sessions
	// and finalizes expired grace windows
	StartSweeper(ctx context.Context) error

	// Sweep runs one sweeper pass, for callers driving their own schedule
	Sweep(ctx context.Context)

	// Teardown cancels the sweeper and every heartbeat loop together
	Teardown()
}
