package connection

import (
	"time"

	"quizclash/internal/models"
)

type SaveConnectionInput struct {
	GamePin    string
	UserID     int64
	Connection *models.Connection
}

type GetConnectionInput struct {
	GamePin string
	UserID  int64
}

type DeleteConnectionInput struct {
	GamePin string
	UserID  int64
}

type TouchSessionInput struct {
	GamePin string
	UserID  int64
	TTL     time.Duration
}

type EndSessionInput struct {
	GamePin string
	UserID  int64
}

type SessionAliveInput struct {
	GamePin string
	UserID  int64
}

type RegisterDisconnectIntentInput struct {
	GamePin string
	UserID  int64
}

type ClearDisconnectIntentInput struct {
	GamePin string
	UserID  int64
}

type ListStaleIntentsInput struct {
}

type ListStaleIntentsOutput struct {
	Intents []*models.DisconnectIntent
}

type MarkGracePendingInput struct {
	GamePin string
	UserID  int64
}

type ClearGracePendingInput struct {
	GamePin string
	UserID  int64
}

type ListGracePendingInput struct {
}

// GracePendingEntry identifies one player whose grace window is running
type GracePendingEntry struct {
	GamePin string
	UserID  int64
}

type ListGracePendingOutput struct {
	Entries []*GracePendingEntry
}
