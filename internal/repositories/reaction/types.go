package reaction

import (
	"sync"

	"quizclash/internal/models"

	"github.com/redis/go-redis/v9"
)

type AddReactionInput struct {
	GamePin  string
	UserID   int64
	UserName string
	Emoji    string
}

type AddReactionOutput struct {
	Reaction *models.Reaction
}

type GetReactionsInput struct {
	GamePin string
}

type GetReactionsOutput struct {
	Reactions []*models.Reaction
}

type SubscribeReactionsInput struct {
	GamePin string
}

// ReactionsSubscription delivers the JSON payload of every reaction sent to
// the battle while the subscription is open.
type ReactionsSubscription struct {
	pubsub    *redis.PubSub
	events    <-chan string
	done      chan struct{}
	closeOnce sync.Once
}

// Events returns the reaction payloads
func (s *ReactionsSubscription) Events() <-chan string {
	return s.events
}

// Close tears the subscription down and releases the forwarding goroutine
// even if a payload is still in flight
func (s *ReactionsSubscription) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.pubsub.Close()
}
