package models

// BattleStatus represents the current state of a battle
type BattleStatus string

const (
	// BattleStatusWaiting indicates a battle is waiting for players to join
	BattleStatusWaiting BattleStatus = "waiting"

	// BattleStatusInProgress indicates a battle is being played
	BattleStatusInProgress BattleStatus = "in_progress"

	// BattleStatusCompleted indicates a battle has been completed
	BattleStatusCompleted BattleStatus = "completed"
)

// Battle represents one multiplayer quiz session, identified by a
// human-enterable game pin. The question list is fixed at battle start and
// identical for every player.
type Battle struct {
	// GamePin is the short code players enter to join
	GamePin string `json:"gamePin"`

	// QuizID references the quiz the questions were drawn from
	QuizID string `json:"quizId"`

	// Questions is the ordered question list, immutable once the battle starts
	Questions []*Question `json:"questions"`

	// Status is the current lifecycle state of the battle
	Status BattleStatus `json:"status"`

	// HostUserID is the user that created the battle
	HostUserID int64 `json:"hostUserId"`

	// CreatedAt is when the battle was created, epoch milliseconds
	CreatedAt int64 `json:"createdAt"`

	// StartedAt is when the battle moved to in_progress, epoch milliseconds
	StartedAt int64 `json:"startedAt,omitempty"`
}
