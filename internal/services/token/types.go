package token

import "quizclash/internal/models"

type CreateInput struct {
	GamePin    string
	UserID     int64
	PlayerData models.PlayerDescriptor
}

type CreateOutput struct {
	// Token is the opaque secret the client mirrors into its own durable
	// local storage
	Token *models.ReconnectionToken
}

type VerifyInput struct {
	GamePin string
	UserID  int64

	// Token is the secret presented by the reconnecting client
	Token string
}

// Refusal says why a presented token was rejected, so the refusal shown to
// the user can name the actual cause
type Refusal string

const (
	// RefusalTokenMismatch covers an absent, empty, or non-matching token
	RefusalTokenMismatch Refusal = "token_mismatch"

	// RefusalBattleUnavailable covers a battle that has completed or no
	// longer exists
	RefusalBattleUnavailable Refusal = "battle_unavailable"
)

type VerifyOutput struct {
	// Valid is true iff a stored token exists, matches byte-for-byte, and
	// the battle has not completed
	Valid bool

	// Refusal is set when Valid is false
	Refusal Refusal

	// PlayerData is the stored identity binding, set when Valid
	PlayerData models.PlayerDescriptor
}

type InvalidateInput struct {
	GamePin string
	UserID  int64
}
