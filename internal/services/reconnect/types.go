package reconnect

import (
	"time"

	"quizclash/internal/models"
)

type ReconnectInput struct {
	GamePin string
	UserID  int64

	// Token is the secret the client kept from its previous connection
	Token string
}

type ReconnectOutput struct {
	// Reconnected is true when the slot was reclaimed
	Reconnected bool

	// Reason explains a refusal, for the client's messaging
	Reason string

	// PlayerData is the identity binding recovered from the token
	PlayerData models.PlayerDescriptor

	// Snapshot is the restored quiz state for the caller to adopt; nil when
	// no saved state survived, in which case the caller resumes from the
	// shared player record
	Snapshot *models.PlayerSnapshot

	// Token is the freshly issued secret replacing the spent one
	Token *models.ReconnectionToken
}

type DisconnectInput struct {
	GamePin string
	UserID  int64
}

type ConnectionStateInput struct {
	GamePin string
	UserID  int64
}

type ConnectionStateOutput struct {
	// IsOnline is the liveness predicate's verdict
	IsOnline bool

	// IsReconnecting is true while a Reconnect call for the slot is in
	// flight
	IsReconnecting bool

	// ReconnectionAvailable is true while the slot can still be reclaimed
	ReconnectionAvailable bool

	// InGracePeriod is true while the disconnect window is open
	InGracePeriod bool

	// GracePeriodTimeRemaining is how much of the window is left
	GracePeriodTimeRemaining time.Duration
}
