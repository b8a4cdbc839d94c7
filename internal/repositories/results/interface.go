package results

//go:generate mockgen -package=mocks -destination=mocks/mock_repository.go quizclash/internal/repositories/results Repository

import (
	"context"
)

// Repository is the durable sink for final battle results. Delivery is
// fire-and-forget from the battle engine's perspective.
type Repository interface {
	// SaveResult stores the final ranking for a completed battle
	SaveResult(ctx context.Context, input *SaveResultInput) error
}
