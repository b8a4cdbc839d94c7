package models

// PlayerDescriptor is the identity binding carried inside a reconnection
// token, enough to restore the player's slot without a fresh join.
type PlayerDescriptor struct {
	UserID  int64  `json:"userId"`
	Name    string `json:"name"`
	Initial string `json:"initial,omitempty"`
}

// ReconnectionToken is the capability proving a reconnecting client owns a
// given player slot. The secret is mirrored in the client's local storage;
// a token is valid only if both copies match byte-for-byte and the battle
// has not completed.
type ReconnectionToken struct {
	// Token is the opaque secret
	Token string `json:"token"`

	// PlayerData is the last known-good identity binding
	PlayerData PlayerDescriptor `json:"playerData"`

	// CreatedAt is when the token was issued, epoch milliseconds
	CreatedAt int64 `json:"createdAt"`
}
