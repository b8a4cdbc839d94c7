package statesync

import (
	"time"

	"quizclash/internal/models"
)

// DefaultAutosaveInterval is the periodic snapshot cadence
const DefaultAutosaveInterval = 3 * time.Second

type SaveBaselineInput struct {
	GamePin  string
	UserID   int64
	Snapshot *models.PlayerSnapshot
}

type SaveNowInput struct {
	GamePin  string
	UserID   int64
	Snapshot *models.PlayerSnapshot
}

type StartAutosaveInput struct {
	GamePin string
	UserID  int64
	Source  StateSource
}

type StopAutosaveInput struct {
	GamePin string
	UserID  int64
}

type BeginRestoreInput struct {
	GamePin string
	UserID  int64
}

type EndRestoreInput struct {
	GamePin string
	UserID  int64
}

type RestoreInput struct {
	GamePin string
	UserID  int64
}

type RestoreOutput struct {
	Snapshot *models.PlayerSnapshot
}

type ClearInput struct {
	GamePin string
	UserID  int64
}

type WriteBackInput struct {
	GamePin  string
	UserID   int64
	Snapshot *models.PlayerSnapshot
}
