package battle

//go:generate mockgen -package=mocks -destination=mocks/mock_repository.go quizclash/internal/repositories/battle Repository

import (
	"context"

	"quizclash/internal/models"
)

// Repository defines the interface for battle and player record persistence
// in the shared realtime store. Player progress writes are monotonic: score
// and currentQuestion never decrease, and the terminal flags never unset.
type Repository interface {
	// CreateBattle creates a battle with a fresh game pin
	CreateBattle(ctx context.Context, input *CreateBattleInput) (*CreateBattleOutput, error)

	// GetBattle retrieves a battle's metadata by game pin
	GetBattle(ctx context.Context, input *GetBattleInput) (*models.Battle, error)

	// SetStatus advances a battle's lifecycle status (one-way)
	SetStatus(ctx context.Context, input *SetStatusInput) error

	// JoinBattle adds a player record to a battle
	JoinBattle(ctx context.Context, input *JoinBattleInput) (*JoinBattleOutput, error)

	// GetPlayer retrieves one player record
	GetPlayer(ctx context.Context, input *GetPlayerInput) (*models.Player, error)

	// GetPlayers retrieves every player record under a battle
	GetPlayers(ctx context.Context, input *GetPlayersInput) (*GetPlayersOutput, error)

	// SavePlayer overwrites a player record (join and restore write-back)
	SavePlayer(ctx context.Context, input *SavePlayerInput) error

	// UpdatePlayerProgress raises a player's score and question index
	UpdatePlayerProgress(ctx context.Context, input *UpdatePlayerProgressInput) error

	// SetPlayerPresence updates the presence flags on a player record
	SetPlayerPresence(ctx context.Context, input *SetPlayerPresenceInput) error

	// MarkFinished latches a player's own terminal finished state
	MarkFinished(ctx context.Context, input *MarkFinishedInput) error

	// MarkOpponentFinished latches finished on another player, keeping score
	MarkOpponentFinished(ctx context.Context, input *MarkOpponentFinishedInput) error

	// MarkForfeited performs the one-time forfeiture transition
	MarkForfeited(ctx context.Context, input *MarkForfeitedInput) error

	// SubscribePlayers watches the battle's players subtree for changes
	SubscribePlayers(ctx context.Context, input *SubscribePlayersInput) (*PlayersSubscription, error)

	// SubscribeStatus watches the battle's lifecycle status
	SubscribeStatus(ctx context.Context, input *SubscribeStatusInput) (*StatusSubscription, error)
}
