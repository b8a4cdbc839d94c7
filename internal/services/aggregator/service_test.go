package aggregator

import (
	"context"
	"testing"
	"time"

	"quizclash/internal/common/clock"
	"quizclash/internal/models"
	battleRepo "quizclash/internal/repositories/battle"
	connectionRepo "quizclash/internal/repositories/connection"
	"quizclash/internal/repositories/results/mocks"
	"quizclash/internal/services/tracker"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type AggregatorTestSuite struct {
	suite.Suite
	mr          *miniredis.Miniredis
	client      *redis.Client
	ctrl        *gomock.Controller
	battles     battleRepo.Repository
	connections connectionRepo.Repository
	trackerSvc  tracker.Service
	mockResults *mocks.MockRepository
	service     Service
	gamePin     string
}

func (s *AggregatorTestSuite) SetupTest() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr

	s.client = redis.NewClient(&redis.Options{
		Addr: s.mr.Addr(),
	})

	s.ctrl = gomock.NewController(s.T())
	s.mockResults = mocks.NewMockRepository(s.ctrl)

	// The completion protocol's waits are real sleeps, shortened to keep
	// the suite fast
	clk := clock.New()

	s.battles, err = battleRepo.NewRedis(&battleRepo.Config{
		RedisClient: s.client,
		Clock:       clk,
	})
	s.Require().NoError(err)

	s.connections, err = connectionRepo.NewRedis(&connectionRepo.Config{
		RedisClient: s.client,
		Clock:       clk,
	})
	s.Require().NoError(err)

	s.trackerSvc, err = tracker.New(&tracker.Config{
		BattleRepo:     s.battles,
		ConnectionRepo: s.connections,
		Clock:          clk,
	})
	s.Require().NoError(err)

	svc, err := New(&Config{
		BattleRepo:      s.battles,
		ResultsRepo:     s.mockResults,
		Tracker:         s.trackerSvc,
		Clock:           clk,
		SettleDelay:     10 * time.Millisecond,
		WaitBound:       500 * time.Millisecond,
		RecheckInterval: 25 * time.Millisecond,
	})
	s.Require().NoError(err)
	s.service = svc

	battle, err := s.battles.CreateBattle(context.Background(), &battleRepo.CreateBattleInput{
		QuizID:     "quiz-1",
		HostUserID: 100,
		Questions: []*models.Question{
			{ID: "q1", Type: models.QuestionTypeTrueFalse, Text: "Battles converge.", CorrectAnswer: "true", TimeLimit: 15},
		},
	})
	s.Require().NoError(err)
	s.gamePin = battle.Battle.GamePin

	for userID, name := range map[int64]string{1: "Alice", 2: "Bob"} {
		_, err = s.battles.JoinBattle(context.Background(), &battleRepo.JoinBattleInput{
			GamePin: s.gamePin,
			Player:  &models.Player{UserID: userID, Name: name, Initial: name[:1]},
		})
		s.Require().NoError(err)
	}
}

func (s *AggregatorTestSuite) TearDownTest() {
	s.trackerSvc.Teardown()
	s.ctrl.Finish()
	s.client.Close()
	s.mr.Close()
}

func TestAggregatorTestSuite(t *testing.T) {
	suite.Run(t, new(AggregatorTestSuite))
}

func (s *AggregatorTestSuite) TestCheckAllPlayersFinished() {
	ctx := context.Background()

	progress, err := s.service.CheckAllPlayersFinished(ctx, &CheckAllPlayersFinishedInput{GamePin: s.gamePin})
	s.Require().NoError(err)
	s.False(progress.AllFinished)
	s.Equal(0, progress.FinishedCount)
	s.Equal(2, progress.TotalPlayers)

	err = s.service.MarkPlayerFinished(ctx, &MarkPlayerFinishedInput{GamePin: s.gamePin, UserID: 1, FinalScore: 3})
	s.Require().NoError(err)

	progress, err = s.service.CheckAllPlayersFinished(ctx, &CheckAllPlayersFinishedInput{GamePin: s.gamePin})
	s.Require().NoError(err)
	s.False(progress.AllFinished)
	s.Equal(1, progress.FinishedCount)

	// A forfeited player counts as terminal too
	err = s.battles.MarkForfeited(ctx, &battleRepo.MarkForfeitedInput{GamePin: s.gamePin, UserID: 2})
	s.Require().NoError(err)

	progress, err = s.service.CheckAllPlayersFinished(ctx, &CheckAllPlayersFinishedInput{GamePin: s.gamePin})
	s.Require().NoError(err)
	s.True(progress.AllFinished)
	s.Equal(2, progress.FinishedCount)
}

func (s *AggregatorTestSuite) TestListenerReportsConvergence() {
	ctx := context.Background()

	progressCh := make(chan *Progress, 4)
	listener, err := s.service.ListenForAllPlayersFinished(ctx, &ListenInput{
		GamePin: s.gamePin,
		Callback: func(p *Progress) {
			progressCh <- p
		},
	})
	s.Require().NoError(err)
	defer listener.Close()

	err = s.service.MarkPlayerFinished(ctx, &MarkPlayerFinishedInput{GamePin: s.gamePin, UserID: 1, FinalScore: 3})
	s.Require().NoError(err)
	err = s.service.MarkPlayerFinished(ctx, &MarkPlayerFinishedInput{GamePin: s.gamePin, UserID: 2, FinalScore: 5})
	s.Require().NoError(err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case p := <-progressCh:
			if p.AllFinished {
				s.Equal(2, p.FinishedCount)
				return
			}
		case <-deadline:
			s.Fail("listener never reported convergence")
			return
		}
	}
}

func (s *AggregatorTestSuite) TestAwaitCompletionWhenAllFinished() {
	ctx := context.Background()

	s.mockResults.EXPECT().SaveResult(gomock.Any(), gomock.Any()).Return(nil)

	err := s.service.MarkPlayerFinished(ctx, &MarkPlayerFinishedInput{GamePin: s.gamePin, UserID: 2, FinalScore: 5})
	s.Require().NoError(err)

	out, err := s.service.AwaitCompletion(ctx, &AwaitCompletionInput{GamePin: s.gamePin, UserID: 1, FinalScore: 3})
	s.Require().NoError(err)

	s.Require().NotNil(out.Result.Winner)
	s.Equal(int64(2), out.Result.Winner.UserID)
	s.Equal(float64(5), out.Result.Winner.Score)
	s.Len(out.Result.Players, 2)
	s.Equal("quiz-1", out.Result.QuizID)

	battle, err := s.battles.GetBattle(ctx, &battleRepo.GetBattleInput{GamePin: s.gamePin})
	s.Require().NoError(err)
	s.Equal(models.BattleStatusCompleted, battle.Status)
}

func (s *AggregatorTestSuite) TestAwaitCompletionMarksOfflineStraggler() {
	ctx := context.Background()

	s.mockResults.EXPECT().SaveResult(gomock.Any(), gomock.Any()).Return(nil)

	// Player 2 never finished and has no live connection: the finishing
	// player latches them to finished so the battle can converge
	err := s.battles.UpdatePlayerProgress(ctx, &battleRepo.UpdatePlayerProgressInput{
		GamePin: s.gamePin, UserID: 2, Score: 1, CurrentQuestion: 1,
	})
	s.Require().NoError(err)

	out, err := s.service.AwaitCompletion(ctx, &AwaitCompletionInput{GamePin: s.gamePin, UserID: 1, FinalScore: 3})
	s.Require().NoError(err)

	s.Equal(int64(1), out.Result.Winner.UserID)

	player, err := s.battles.GetPlayer(ctx, &battleRepo.GetPlayerInput{GamePin: s.gamePin, UserID: 2})
	s.Require().NoError(err)
	s.True(player.Finished)
	s.False(player.HasForfeited)
	s.Equal(float64(1), player.Score)
}

func (s *AggregatorTestSuite) TestAwaitCompletionBoundExpiry() {
	ctx := context.Background()

	s.mockResults.EXPECT().SaveResult(gomock.Any(), gomock.Any()).Return(nil)

	// Player 2 stays online and never finishes; the wait bound caps how
	// long player 1 can be held up
	err := s.trackerSvc.Initialize(ctx, &tracker.InitializeInput{GamePin: s.gamePin, UserID: 2})
	s.Require().NoError(err)

	start := time.Now()
	out, err := s.service.AwaitCompletion(ctx, &AwaitCompletionInput{GamePin: s.gamePin, UserID: 1, FinalScore: 3})
	s.Require().NoError(err)

	s.Less(time.Since(start), 2*time.Second)
	s.Len(out.Result.Players, 2)
	s.Equal(int64(1), out.Result.Winner.UserID)
}
