package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"quizclash/internal/common/clock"
	"quizclash/internal/models"
	battleRepo "quizclash/internal/repositories/battle"
	resultsRepo "quizclash/internal/repositories/results"
	"quizclash/internal/services/tracker"

	"github.com/rs/zerolog/log"
)

// Config holds configuration for the battle progress aggregator
type Config struct {
	BattleRepo  battleRepo.Repository
	ResultsRepo resultsRepo.Repository
	Tracker     tracker.Service
	Clock       clock.Clock

	// SettleDelay before the first completion poll; defaults to 1s
	SettleDelay time.Duration

	// WaitBound caps the waiting-for-others state; defaults to 60s
	WaitBound time.Duration

	// RecheckInterval between offline-opponent sweeps while waiting;
	// defaults to 5s
	RecheckInterval time.Duration
}

// service implements the Service interface
type service struct {
	config      *Config
	battleRepo  battleRepo.Repository
	resultsRepo resultsRepo.Repository
	tracker     tracker.Service
	clock       clock.Clock
}

// New creates a new battle progress aggregator
func New(cfg *Config) (*service, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.BattleRepo == nil {
		return nil, errors.New("battle repository cannot be nil")
	}

	if cfg.ResultsRepo == nil {
		return nil, errors.New("results repository cannot be nil")
	}

	if cfg.Tracker == nil {
		return nil, errors.New("tracker cannot be nil")
	}

	if cfg.Clock == nil {
		return nil, errors.New("clock cannot be nil")
	}

	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}

	if cfg.WaitBound <= 0 {
		cfg.WaitBound = DefaultWaitBound
	}

	if cfg.RecheckInterval <= 0 {
		cfg.RecheckInterval = DefaultRecheckInterval
	}

	return &service{
		config:      cfg,
		battleRepo:  cfg.BattleRepo,
		resultsRepo: cfg.ResultsRepo,
		tracker:     cfg.Tracker,
		clock:       cfg.Clock,
	}, nil
}

// MarkPlayerFinished latches a player's own finished flag. The underlying
// write ignores terminal records, so a duplicate call changes nothing.
func (s *service) MarkPlayerFinished(ctx context.Context, input *MarkPlayerFinishedInput) error {
	if input == nil || input.GamePin == "" {
		return errors.New("input and game pin cannot be empty")
	}

	err := s.battleRepo.MarkFinished(ctx, &battleRepo.MarkFinishedInput{
		GamePin:    input.GamePin,
		UserID:     input.UserID,
		FinalScore: input.FinalScore,
	})
	if err != nil {
		return fmt.Errorf("failed to mark player finished: %w", err)
	}

	return nil
}

// CheckAllPlayersFinished evaluates the completion predicate once: every
// player has finished or forfeited.
func (s *service) CheckAllPlayersFinished(ctx context.Context, input *CheckAllPlayersFinishedInput) (*Progress, error) {
	if input == nil || input.GamePin == "" {
		return nil, errors.New("input and game pin cannot be empty")
	}

	out, err := s.battleRepo.GetPlayers(ctx, &battleRepo.GetPlayersInput{GamePin: input.GamePin})
	if err != nil {
		return nil, err
	}

	progress := &Progress{
		TotalPlayers: len(out.Players),
		Players:      out.Players,
	}

	for _, p := range out.Players {
		if p.Terminal() {
			progress.FinishedCount++
		}
	}

	progress.AllFinished = progress.TotalPlayers > 0 && progress.FinishedCount == progress.TotalPlayers

	return progress, nil
}

// ListenForAllPlayersFinished watches the players subtree and re-evaluates
// the predicate on every change. The predicate is computed fresh from the
// records each time, so arrival order of the notifications never matters.
func (s *service) ListenForAllPlayersFinished(ctx context.Context, input *ListenInput) (*Listener, error) {
	if input == nil || input.GamePin == "" {
		return nil, errors.New("input and game pin cannot be empty")
	}

	if input.Callback == nil {
		return nil, errors.New("callback cannot be nil")
	}

	sub, err := s.battleRepo.SubscribePlayers(ctx, &battleRepo.SubscribePlayersInput{
		GamePin: input.GamePin,
	})
	if err != nil {
		return nil, err
	}

	listener := &Listener{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(listener.done)
		defer sub.Close()

		for {
			select {
			case <-listener.stop:
				return
			case <-ctx.Done():
				return
			case _, ok := <-sub.Events():
				if !ok {
					return
				}

				progress, err := s.CheckAllPlayersFinished(ctx, &CheckAllPlayersFinishedInput{
					GamePin: input.GamePin,
				})
				if err != nil {
					log.Warn().
						Str("game_pin", input.GamePin).
						Err(err).
						Msg("listener failed to evaluate completion predicate")
					continue
				}

				input.Callback(progress)
			}
		}
	}()

	return listener, nil
}

// AwaitCompletion runs the finishing protocol for one player: latch own
// finished state, let the write settle, poll once, then wait bounded on the
// listener while nudging silently-offline stragglers to finished. Returns
// the final ranked result once the battle converges or the bound expires.
func (s *service) AwaitCompletion(ctx context.Context, input *AwaitCompletionInput) (*AwaitCompletionOutput, error) {
	if input == nil || input.GamePin == "" {
		return nil, errors.New("input and game pin cannot be empty")
	}

	err := s.MarkPlayerFinished(ctx, &MarkPlayerFinishedInput{
		GamePin:    input.GamePin,
		UserID:     input.UserID,
		FinalScore: input.FinalScore,
	})
	if err != nil {
		return nil, err
	}

	// Let the write propagate before the first poll
	select {
	case <-s.clock.After(s.config.SettleDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	progress, err := s.CheckAllPlayersFinished(ctx, &CheckAllPlayersFinishedInput{GamePin: input.GamePin})
	if err != nil {
		return nil, err
	}

	if progress.AllFinished {
		return s.finalize(ctx, input.GamePin, progress)
	}

	// Waiting for others: subscribe first so no change is missed, then
	// treat silent disconnection during the final stretch as an implicit
	// forfeit so a single unresponsive peer cannot block everyone.
	finishedCh := make(chan *Progress, 1)
	listener, err := s.ListenForAllPlayersFinished(ctx, &ListenInput{
		GamePin: input.GamePin,
		Callback: func(p *Progress) {
			if p.AllFinished {
				select {
				case finishedCh <- p:
				default:
				}
			}
		},
	})
	if err != nil {
		return nil, err
	}
	defer listener.Close()

	s.markOfflineOpponentsFinished(ctx, input.GamePin, input.UserID, progress.Players)

	deadline := s.clock.NewTimer(s.config.WaitBound)
	defer deadline.Stop()
	recheck := s.clock.NewTicker(s.config.RecheckInterval)
	defer recheck.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case p := <-finishedCh:
			return s.finalize(ctx, input.GamePin, p)

		case <-recheck.Chan():
			progress, err = s.CheckAllPlayersFinished(ctx, &CheckAllPlayersFinishedInput{GamePin: input.GamePin})
			if err != nil {
				log.Warn().Str("game_pin", input.GamePin).Err(err).
					Msg("completion recheck failed")
				continue
			}
			if progress.AllFinished {
				return s.finalize(ctx, input.GamePin, progress)
			}
			s.markOfflineOpponentsFinished(ctx, input.GamePin, input.UserID, progress.Players)

		case <-deadline.Chan():
			// Bound expired: proceed with whatever the records say now
			progress, err = s.CheckAllPlayersFinished(ctx, &CheckAllPlayersFinishedInput{GamePin: input.GamePin})
			if err != nil {
				return nil, err
			}
			return s.finalize(ctx, input.GamePin, progress)
		}
	}
}

// markOfflineOpponentsFinished latches finished on every non-terminal
// opponent whose liveness predicate reports offline. The write is monotonic
// and idempotent, so concurrent finishing clients racing to do this for the
// same straggler are harmless.
func (s *service) markOfflineOpponentsFinished(ctx context.Context, gamePin string, selfID int64, players []*models.Player) {
	for _, p := range players {
		if p.UserID == selfID || p.Terminal() {
			continue
		}

		online, err := s.tracker.IsPlayerOnline(ctx, &tracker.IsPlayerOnlineInput{
			GamePin: gamePin,
			UserID:  p.UserID,
		})
		if err != nil {
			log.Warn().Str("game_pin", gamePin).Int64("user_id", p.UserID).Err(err).
				Msg("failed to check opponent liveness")
			continue
		}

		if online.Online {
			continue
		}

		if err := s.battleRepo.MarkOpponentFinished(ctx, &battleRepo.MarkOpponentFinishedInput{
			GamePin: gamePin,
			UserID:  p.UserID,
		}); err != nil {
			log.Warn().Str("game_pin", gamePin).Int64("user_id", p.UserID).Err(err).
				Msg("failed to mark offline opponent finished")
		}
	}
}

// finalize ranks the final records, flips the battle to completed, and hands
// the result to the persistence collaborator fire-and-forget.
func (s *service) finalize(ctx context.Context, gamePin string, progress *Progress) (*AwaitCompletionOutput, error) {
	battle, err := s.battleRepo.GetBattle(ctx, &battleRepo.GetBattleInput{GamePin: gamePin})
	if err != nil {
		return nil, err
	}

	ranked := make([]*models.Player, len(progress.Players))
	copy(ranked, progress.Players)

	// Score descending; equal scores keep their read order
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	result := &models.BattleResult{
		GamePin:     gamePin,
		QuizID:      battle.QuizID,
		Players:     ranked,
		CompletedAt: s.clock.Now().UnixMilli(),
	}
	if len(ranked) > 0 {
		result.Winner = ranked[0]
	}

	// Every finishing client converges on the same one-way transition;
	// duplicates are no-ops at the repository
	if err := s.battleRepo.SetStatus(ctx, &battleRepo.SetStatusInput{
		GamePin: gamePin,
		Status:  models.BattleStatusCompleted,
	}); err != nil {
		log.Warn().Str("game_pin", gamePin).Err(err).
			Msg("failed to mark battle completed")
	}

	if err := s.resultsRepo.SaveResult(ctx, &resultsRepo.SaveResultInput{Result: result}); err != nil {
		// Fire-and-forget: the shared store still holds the records
		log.Warn().Str("game_pin", gamePin).Err(err).
			Msg("failed to persist battle result")
	}

	return &AwaitCompletionOutput{Result: result}, nil
}
