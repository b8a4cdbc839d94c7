package snapshot

import "quizclash/internal/models"

type SaveStateInput struct {
	GamePin  string
	UserID   int64
	Snapshot *models.PlayerSnapshot
}

type GetStateInput struct {
	GamePin string
	UserID  int64
}

type ClearStateInput struct {
	GamePin string
	UserID  int64
}
