package models

// Connection is the ephemeral liveness record for one player in one battle.
// It exists only while the player is connected or within the grace window.
type Connection struct {
	// IsOnline is true while the client holds a live connection
	IsOnline bool `json:"isOnline"`

	// LastHeartbeat is when the client last checked in, epoch milliseconds
	LastHeartbeat int64 `json:"lastHeartbeat"`

	// DisconnectedAt is set by the store-side disconnect hook when the
	// live connection drops, epoch milliseconds
	DisconnectedAt int64 `json:"disconnectedAt,omitempty"`
}

// DisconnectIntent is a deferred write registered against a live session.
// The sweeper commits it when the session's liveness key lapses, giving the
// same guarantee as a store-native on-disconnect hook: an offline value
// always lands, even on a hard crash.
type DisconnectIntent struct {
	GamePin      string `json:"gamePin"`
	UserID       int64  `json:"userId"`
	RegisteredAt int64  `json:"registeredAt"`
}
