package models

// Reaction is an ephemeral emoji broadcast, auto-expired after a few seconds
// and independent of the battle outcome.
type Reaction struct {
	ID        string `json:"id"`
	UserID    int64  `json:"userId"`
	UserName  string `json:"userName"`
	Emoji     string `json:"emoji"`
	Timestamp int64  `json:"timestamp"`
	ExpiresAt int64  `json:"expiresAt"`
}
