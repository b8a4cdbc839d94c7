package models

// QuestionType identifies how a question is presented and scored
type QuestionType string

const (
	// QuestionTypeMultipleChoice is a single-select question with fixed options
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"

	// QuestionTypeTrueFalse is a two-option question
	QuestionTypeTrueFalse QuestionType = "true_false"

	// QuestionTypeFillInBlank is a free-text question
	QuestionTypeFillInBlank QuestionType = "fill_in_blank"

	// QuestionTypeMatching asks the player to pair items; scored with
	// partial credit by the fraction of correctly matched pairs
	QuestionTypeMatching QuestionType = "matching"
)

// Question is one entry in a battle's immutable question list, including the
// canonical answer data used for scoring.
type Question struct {
	// ID identifies the question within its quiz
	ID string `json:"id"`

	// Type determines presentation and scoring rules
	Type QuestionType `json:"type"`

	// Text is the question prompt
	Text string `json:"text"`

	// Options holds the selectable answers for multiple choice / true-false
	Options []string `json:"options,omitempty"`

	// CorrectAnswer is the canonical answer for non-matching types.
	// Compared case-insensitively after trimming.
	CorrectAnswer string `json:"correctAnswer,omitempty"`

	// Pairs holds the canonical left→right pairs for matching questions
	Pairs map[string]string `json:"pairs,omitempty"`

	// TimeLimit is the per-question timer in seconds. 0 means untimed,
	// which is only allowed in solo mode; battle mode enforces a minimum.
	TimeLimit int `json:"timeLimit"`
}

// SubmittedAnswer is a player's answer to one question. Value carries the
// text answer for non-matching types; Pairs carries the submitted matches.
type SubmittedAnswer struct {
	Value string            `json:"value,omitempty"`
	Pairs map[string]string `json:"pairs,omitempty"`
}
