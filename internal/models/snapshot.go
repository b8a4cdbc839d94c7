package models

// PlayerSnapshot is the periodically persisted copy of a player's in-progress
// quiz state, used to resume after a reconnection. Write-many, read-once:
// the restoring client adopts the tuple verbatim and then clears it.
type PlayerSnapshot struct {
	// Score at the time of the save
	Score float64 `json:"score"`

	// CurrentQuestionIndex is the question the player was on
	CurrentQuestionIndex int `json:"currentQuestionIndex"`

	// UserAnswers maps question index (as a string key) to the submitted answer
	UserAnswers map[string]SubmittedAnswer `json:"userAnswers"`

	// AnsweredQuestions lists the indexes already scored
	AnsweredQuestions []int `json:"answeredQuestions"`

	// Questions is the battle's question list, carried so a resumed session
	// never depends on a re-fetch mid-battle
	Questions []*Question `json:"questions"`

	// SavedAt is when the snapshot was written, epoch milliseconds
	SavedAt int64 `json:"savedAt"`

	// ExpiresAt is SavedAt plus the snapshot lifetime; any restore attempt
	// past this instant treats the snapshot as absent
	ExpiresAt int64 `json:"expiresAt"`
}
