package tracker

import "time"

const (
	// DefaultHeartbeatInterval is how often a connected client checks in
	DefaultHeartbeatInterval = 5 * time.Second

	// DefaultHeartbeatTimeout is the liveness threshold: two missed
	// heartbeats absorb normal network jitter without a false disconnect
	DefaultHeartbeatTimeout = 10 * time.Second

	// DefaultGracePeriod is the window a disconnected player has to
	// reconnect before forfeiting
	DefaultGracePeriod = 90 * time.Second

	// DefaultSweepInterval is how often the sweeper looks for lapsed
	// sessions and expired grace windows
	DefaultSweepInterval = 5 * time.Second
)

type InitializeInput struct {
	GamePin string
	UserID  int64
}

type SendHeartbeatInput struct {
	GamePin string
	UserID  int64
}

type StartHeartbeatInput struct {
	GamePin string
	UserID  int64
}

type StopHeartbeatInput struct {
	GamePin string
	UserID  int64
}

type IsPlayerOnlineInput struct {
	GamePin string
	UserID  int64
}

type IsPlayerOnlineOutput struct {
	Online bool
}

type CheckGracePeriodInput struct {
	GamePin string
	UserID  int64
}

type CheckGracePeriodOutput struct {
	// InGracePeriod is true while the player may still reconnect
	InGracePeriod bool

	// TimeRemaining is how much of the window is left
	TimeRemaining time.Duration

	// IsForfeited is true once the window has lapsed (or had already
	// lapsed on an earlier check)
	IsForfeited bool
}

type CommitDisconnectInput struct {
	GamePin string
	UserID  int64
}

type DisconnectInput struct {
	GamePin string
	UserID  int64
}
