package token

//go:generate mockgen -package=mocks -destination=mocks/mock_service.go quizclash/internal/services/token Service

import "context"

// Service lets a client that lost its live connection prove it owns a given
// player slot, without any server-side session continuity.
type Service interface {
	// Create issues a fresh token for a (battle, player) slot. Called once
	// per fresh connection so the binding always reflects the latest
	// known-good identity.
	Create(ctx context.Context, input *CreateInput) (*CreateOutput, error)

	// Verify checks a presented token against the stored copy
	Verify(ctx context.Context, input *VerifyInput) (*VerifyOutput, error)

	// Invalidate removes the stored token on an intentional leave
	Invalidate(ctx context.Context, input *InvalidateInput) error
}
