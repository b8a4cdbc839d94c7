package session

import (
	"strings"

	"quizclash/internal/models"
)

// scoreAnswer returns the credit earned for an answer, in [0, 1].
// Non-matching types compare the canonical answer case-insensitively after
// trimming. Matching questions earn partial credit proportional to the
// fraction of correctly matched pairs.
func scoreAnswer(q *models.Question, answer models.SubmittedAnswer) float64 {
	switch q.Type {
	case models.QuestionTypeMatching:
		if len(q.Pairs) == 0 {
			return 0
		}

		matched := 0
		for left, right := range answer.Pairs {
			if canonical, ok := q.Pairs[left]; ok && equalFold(canonical, right) {
				matched++
			}
		}

		return float64(matched) / float64(len(q.Pairs))

	default:
		if equalFold(q.CorrectAnswer, answer.Value) {
			return 1
		}
		return 0
	}
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
