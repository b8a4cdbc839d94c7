package aggregator

import (
	"time"

	"quizclash/internal/models"
)

const (
	// DefaultSettleDelay lets a player's own finished write propagate
	// before the first completion poll
	DefaultSettleDelay = 1 * time.Second

	// DefaultWaitBound caps the waiting-for-others state so one
	// unresponsive peer can never block everyone indefinitely
	DefaultWaitBound = 60 * time.Second

	// DefaultRecheckInterval re-runs the offline-opponent check while
	// waiting, in case a change notification was missed
	DefaultRecheckInterval = 5 * time.Second
)

type MarkPlayerFinishedInput struct {
	GamePin    string
	UserID     int64
	FinalScore float64
}

type CheckAllPlayersFinishedInput struct {
	GamePin string
}

// Progress is one evaluation of the completion predicate
type Progress struct {
	// AllFinished is true when every player has finished or forfeited
	AllFinished bool

	// FinishedCount is how many players are terminal
	FinishedCount int

	// TotalPlayers is how many players the battle has
	TotalPlayers int

	// Players holds the records the predicate was computed from
	Players []*models.Player
}

type ListenInput struct {
	GamePin string

	// Callback receives every re-evaluation; it runs on the listener's
	// goroutine and must not block
	Callback func(*Progress)
}

// Listener is a running players-subtree watch
type Listener struct {
	stop chan struct{}
	done chan struct{}
}

// Close stops the listener and waits for its goroutine to exit
func (l *Listener) Close() {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
	<-l.done
}

type AwaitCompletionInput struct {
	GamePin    string
	UserID     int64
	FinalScore float64
}

type AwaitCompletionOutput struct {
	Result *models.BattleResult
}
