package reaction

import "context"

// Repository stores the ephemeral emoji reactions. Entries auto-expire a few
// seconds after they are sent, independent of the battle outcome.
type Repository interface {
	// AddReaction stores a reaction and notifies subscribers
	AddReaction(ctx context.Context, input *AddReactionInput) (*AddReactionOutput, error)

	// GetReactions returns the reactions still within their lifetime
	GetReactions(ctx context.Context, input *GetReactionsInput) (*GetReactionsOutput, error)

	// SubscribeReactions watches the battle's reactions subtree
	SubscribeReactions(ctx context.Context, input *SubscribeReactionsInput) (*ReactionsSubscription, error)
}
