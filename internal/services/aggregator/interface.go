package aggregator

//go:generate mockgen -package=mocks -destination=mocks/mock_service.go quizclash/internal/services/aggregator Service

import "context"

// Service decides, from fully decentralized per-player writes, the single
// moment at which a battle is over, and produces the authoritative final
// ranking. It is a pure read-side aggregation: any number of clients can run
// it redundantly and converge to the same answer from the same records.
type Service interface {
	// MarkPlayerFinished latches a player's own finished flag with their
	// final score
	MarkPlayerFinished(ctx context.Context, input *MarkPlayerFinishedInput) error

	// CheckAllPlayersFinished evaluates the completion predicate once
	CheckAllPlayersFinished(ctx context.Context, input *CheckAllPlayersFinishedInput) (*Progress, error)

	// ListenForAllPlayersFinished re-evaluates the predicate on every
	// players-subtree change and invokes the callback with the result
	ListenForAllPlayersFinished(ctx context.Context, input *ListenInput) (*Listener, error)

	// AwaitCompletion runs the full finishing protocol for a player and
	// returns the final ranked result once the battle converges
	AwaitCompletion(ctx context.Context, input *AwaitCompletionInput) (*AwaitCompletionOutput, error)
}
