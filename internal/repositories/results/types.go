package results

import "quizclash/internal/models"

type SaveResultInput struct {
	Result *models.BattleResult
}
