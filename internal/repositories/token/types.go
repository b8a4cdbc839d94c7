package token

import "quizclash/internal/models"

type SaveTokenInput struct {
	GamePin string
	UserID  int64
	Token   *models.ReconnectionToken
}

type GetTokenInput struct {
	GamePin string
	UserID  int64
}

type DeleteTokenInput struct {
	GamePin string
	UserID  int64
}
