package session

import (
	"time"

	"quizclash/internal/models"
)

// Mode selects the pacing rules for a session
type Mode string

const (
	// ModeSolo is single-player; untimed questions are allowed
	ModeSolo Mode = "solo"

	// ModeBattle is multiplayer; a minimum timer keeps everyone's pace
	// comparable and progress is mirrored to the shared store
	ModeBattle Mode = "battle"
)

// Phase is the session's position in its state machine
type Phase string

const (
	// PhaseIdle is before Start
	PhaseIdle Phase = "idle"

	// PhaseAnswering means the current question is open
	PhaseAnswering Phase = "answering"

	// PhaseFinished is terminal: every question has been scored
	PhaseFinished Phase = "finished"
)

const (
	// MinBattleTimeLimit is the enforced minimum per-question timer in
	// battle mode
	MinBattleTimeLimit = 15 * time.Second

	// SubmissionLockRelease is the single-slot lock's auto-release window
	// arbitrating the timer-expiry and manual-submit race
	SubmissionLockRelease = 1 * time.Second
)

type SubmitAnswerInput struct {
	Answer models.SubmittedAnswer
}

type SubmitAnswerOutput struct {
	// Accepted is false when the submission lost the submission lock or
	// arrived outside an open question; nothing was scored
	Accepted bool

	// Credit earned for the question, in [0, 1]
	Credit float64

	// Correct is true for full credit
	Correct bool

	// Score is the running total after this question
	Score float64

	// Finished is true once the last question has been scored
	Finished bool
}

// GameState is the per-question view consumed by the rendering layer
type GameState struct {
	Phase          Phase
	QuestionIndex  int
	TotalQuestions int
	Question       *models.Question
	Score          float64
	Paused         bool
	TimeRemaining  time.Duration
	AnsweredCount  int
}
