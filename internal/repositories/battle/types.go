package battle

import (
	"sync"

	"quizclash/internal/models"

	"github.com/redis/go-redis/v9"
)

type CreateBattleInput struct {
	QuizID     string
	HostUserID int64
	Questions  []*models.Question
}

type CreateBattleOutput struct {
	Battle *models.Battle
}

type GetBattleInput struct {
	GamePin string
}

type SetStatusInput struct {
	GamePin string
	Status  models.BattleStatus
}

type JoinBattleInput struct {
	GamePin string
	Player  *models.Player
}

type JoinBattleOutput struct {
	Player *models.Player
}

type GetPlayerInput struct {
	GamePin string
	UserID  int64
}

type GetPlayersInput struct {
	GamePin string
}

type GetPlayersOutput struct {
	Players []*models.Player
}

type SavePlayerInput struct {
	GamePin string
	Player  *models.Player
}

type UpdatePlayerProgressInput struct {
	GamePin         string
	UserID          int64
	Score           float64
	CurrentQuestion int
}

type SetPlayerPresenceInput struct {
	GamePin       string
	UserID        int64
	IsOnline      bool
	InGracePeriod bool

	// DisconnectedAt in epoch milliseconds; zero clears the field
	DisconnectedAt int64
}

type MarkFinishedInput struct {
	GamePin    string
	UserID     int64
	FinalScore float64
}

type MarkOpponentFinishedInput struct {
	GamePin string
	UserID  int64
}

type MarkForfeitedInput struct {
	GamePin string
	UserID  int64
}

type SubscribePlayersInput struct {
	GamePin string
}

type SubscribeStatusInput struct {
	GamePin string
}

// StatusSubscription delivers every battle lifecycle transition
type StatusSubscription struct {
	pubsub    *redis.PubSub
	events    <-chan models.BattleStatus
	done      chan struct{}
	closeOnce sync.Once
}

// Events returns the status transitions
func (s *StatusSubscription) Events() <-chan models.BattleStatus {
	return s.events
}

// Close tears the subscription down and releases the forwarding goroutine
// even if a transition is still in flight
func (s *StatusSubscription) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.pubsub.Close()
}

// PlayersSubscription delivers a notification for every write under a
// battle's players subtree. Consumers re-read the records on notification
// rather than trusting event payloads or their ordering.
type PlayersSubscription struct {
	pubsub    *redis.PubSub
	events    <-chan string
	done      chan struct{}
	closeOnce sync.Once
}

// Events returns the changed-path notifications
func (s *PlayersSubscription) Events() <-chan string {
	return s.events
}

// Close tears the subscription down and releases the forwarding goroutine
// even if a notification is still in flight
func (s *PlayersSubscription) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.pubsub.Close()
}
