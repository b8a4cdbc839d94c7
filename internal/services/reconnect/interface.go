package reconnect

//go:generate mockgen -package=mocks -destination=mocks/mock_service.go quizclash/internal/services/reconnect Service

import "context"

// Service is the facade over the token, tracker, and state-sync services
// that runs the full resume-after-drop flow and answers connection-state
// queries for the rendering layer.
type Service interface {
	// Reconnect verifies the presented token, restores the saved snapshot,
	// reconverges the player record, and re-arms liveness tracking. At most
	// one reconnect per player slot runs at a time; a concurrent call
	// reports not reconnected.
	Reconnect(ctx context.Context, input *ReconnectInput) (*ReconnectOutput, error)

	// Disconnect performs an intentional leave: autosave stopped, token
	// invalidated, player marked offline with score preserved
	Disconnect(ctx context.Context, input *DisconnectInput) error

	// ConnectionState reports the slot's liveness, grace-period, and
	// reconnectability view
	ConnectionState(ctx context.Context, input *ConnectionStateInput) (*ConnectionStateOutput, error)
}
