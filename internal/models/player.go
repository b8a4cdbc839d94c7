package models

// Player represents a user's participation in a specific battle. A player
// record is written only by that player's own client, with two narrow
// exceptions: the connection tracker's automatic forfeiture, and a finishing
// peer marking a visibly-offline opponent finished. Both of those writes are
// restricted to the terminal flags.
type Player struct {
	// UserID is the stable numeric identifier from the identity provider
	UserID int64 `json:"userId"`

	// Name is the display name shown to other players
	Name string `json:"name"`

	// Initial is the single-character avatar fallback
	Initial string `json:"initial,omitempty"`

	// Score is the player's current score. Monotonically non-decreasing
	// while the player is active; frozen once Finished or HasForfeited.
	Score float64 `json:"score"`

	// CurrentQuestion is the index of the last acknowledged question.
	// Monotonically non-decreasing, frozen on a terminal state.
	CurrentQuestion int `json:"currentQuestion"`

	// IsOnline reports whether the player currently holds a live connection
	IsOnline bool `json:"isOnline"`

	// InGracePeriod is set while a disconnected player may still reconnect
	InGracePeriod bool `json:"inGracePeriod"`

	// HasForfeited is a one-way latch set when the grace period runs out
	HasForfeited bool `json:"hasForfeited"`

	// Finished is a one-way latch set when the player completes the quiz
	// (forfeiture also sets it so the battle is never blocked on the player)
	Finished bool `json:"finished"`

	// DisconnectedAt is when the live connection dropped, epoch milliseconds
	DisconnectedAt int64 `json:"disconnectedAt,omitempty"`

	// ForfeitedAt is when forfeiture was finalized, epoch milliseconds
	ForfeitedAt int64 `json:"forfeitedAt,omitempty"`

	// JoinedAt is when the player joined the battle, epoch milliseconds
	JoinedAt int64 `json:"joinedAt"`
}

// Terminal reports whether the player record is frozen. No further score or
// progress writes are permitted once this is true.
func (p *Player) Terminal() bool {
	return p.Finished || p.HasForfeited
}
