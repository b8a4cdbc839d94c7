package tracker

import (
	"context"
	"testing"
	"time"

	"quizclash/internal/common/clock"
	"quizclash/internal/models"
	battleRepo "quizclash/internal/repositories/battle"
	connectionRepo "quizclash/internal/repositories/connection"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type TrackerServiceTestSuite struct {
	suite.Suite
	mr          *miniredis.Miniredis
	client      *redis.Client
	fakeClock   *clockwork.FakeClock
	battles     battleRepo.Repository
	connections connectionRepo.Repository
	service     Service
	gamePin     string
}

func (s *TrackerServiceTestSuite) SetupTest() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr

	s.client = redis.NewClient(&redis.Options{
		Addr: s.mr.Addr(),
	})

	s.fakeClock = clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	clk := clock.NewFake(s.fakeClock)

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

	svc, err := New(&Config{
		BattleRepo:     s.battles,
		ConnectionRepo: s.connections,
		Clock:          clk,
	})
	s.Require().NoError(err)
	s.service = svc

	battle, err := s.battles.CreateBattle(context.Background(), &battleRepo.CreateBattleInput{
		QuizID:     "quiz-1",
		HostUserID: 100,
		Questions: []*models.Question{
			{ID: "q1", Type: models.QuestionTypeTrueFalse, Text: "Redis is a database.", CorrectAnswer: "true", TimeLimit: 15},
		},
	})
	s.Require().NoError(err)
	s.gamePin = battle.Battle.GamePin

	_, err = s.battles.JoinBattle(context.Background(), &battleRepo.JoinBattleInput{
		GamePin: s.gamePin,
		Player:  &models.Player{UserID: 1, Name: "Alice", Initial: "A"},
	})
	s.Require().NoError(err)
}

func (s *TrackerServiceTestSuite) TearDownTest() {
	s.service.Teardown()
	s.client.Close()
	s.mr.Close()
}

func TestTrackerServiceTestSuite(t *testing.T) {
	suite.Run(t, new(TrackerServiceTestSuite))
}

func (s *TrackerServiceTestSuite) initialize() {
	err := s.service.Initialize(context.Background(), &InitializeInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)
}

func (s *TrackerServiceTestSuite) isOnline() bool {
	out, err := s.service.IsPlayerOnline(context.Background(), &IsPlayerOnlineInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)
	return out.Online
}

func (s *TrackerServiceTestSuite) TestInitializeMarksPlayerOnline() {
	s.initialize()

	s.True(s.isOnline())

	player, err := s.battles.GetPlayer(context.Background(), &battleRepo.GetPlayerInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)
	s.True(player.IsOnline)
}

func (s *TrackerServiceTestSuite) TestLivenessLapsesWithoutHeartbeats() {
	s.initialize()

	// One missed heartbeat is still within the timeout
	s.fakeClock.Advance(6 * time.Second)
	s.True(s.isOnline())

	// Two missed heartbeats cross it
	s.fakeClock.Advance(5 * time.Second)
	s.False(s.isOnline())
}

func (s *TrackerServiceTestSuite) TestHeartbeatRefreshesLiveness() {
	s.initialize()

	s.fakeClock.Advance(8 * time.Second)
	err := s.service.SendHeartbeat(context.Background(), &SendHeartbeatInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)

	s.fakeClock.Advance(8 * time.Second)
	s.True(s.isOnline())
}

func (s *TrackerServiceTestSuite) TestIsPlayerOnlineWithoutConnection() {
	s.False(s.isOnline())
}

func (s *TrackerServiceTestSuite) TestGracePeriodCountdownAndForfeit() {
	ctx := context.Background()
	s.initialize()

	err := s.service.CommitDisconnect(ctx, &CommitDisconnectInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)

	player, err := s.battles.GetPlayer(ctx, &battleRepo.GetPlayerInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)
	s.False(player.IsOnline)
	s.True(player.InGracePeriod)

	// Deep into the window the player can still come back
	s.fakeClock.Advance(85 * time.Second)
	out, err := s.service.CheckGracePeriod(ctx, &CheckGracePeriodInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)
	s.True(out.InGracePeriod)
	s.False(out.IsForfeited)
	s.Equal(5*time.Second, out.TimeRemaining)

	// Past the window the one-time forfeiture fires
	s.fakeClock.Advance(6 * time.Second)
	out, err = s.service.CheckGracePeriod(ctx, &CheckGracePeriodInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)
	s.False(out.InGracePeriod)
	s.True(out.IsForfeited)

	player, err = s.battles.GetPlayer(ctx, &battleRepo.GetPlayerInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)
	s.True(player.HasForfeited)
	s.True(player.Finished)
	s.Equal(float64(0), player.Score)

	// Repeat checks see the latch and change nothing
	out, err = s.service.CheckGracePeriod(ctx, &CheckGracePeriodInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)
	s.True(out.IsForfeited)
}

func (s *TrackerServiceTestSuite) TestDuplicateCommitKeepsEarliestDisconnect() {
	ctx := context.Background()
	s.initialize()

	err := s.service.CommitDisconnect(ctx, &CommitDisconnectInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)
	first := s.fakeClock.Now().UnixMilli()

	s.fakeClock.Advance(30 * time.Second)
	err = s.service.CommitDisconnect(ctx, &CommitDisconnectInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)

	conn, err := s.connections.GetConnection(ctx, &connectionRepo.GetConnectionInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)
	s.Equal(first, conn.DisconnectedAt)
}

func (s *TrackerServiceTestSuite) TestFinishedPlayerNeverForfeits() {
	ctx := context.Background()
	s.initialize()

	err := s.battles.MarkFinished(ctx, &battleRepo.MarkFinishedInput{GamePin: s.gamePin, UserID: 1, FinalScore: 4})
	s.Require().NoError(err)

	err = s.service.CommitDisconnect(ctx, &CommitDisconnectInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)

	s.fakeClock.Advance(2 * time.Minute)
	out, err := s.service.CheckGracePeriod(ctx, &CheckGracePeriodInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)
	s.False(out.IsForfeited)
	s.False(out.InGracePeriod)

	player, err := s.battles.GetPlayer(ctx, &battleRepo.GetPlayerInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)
	s.False(player.HasForfeited)
	s.Equal(float64(4), player.Score)
}

func (s *TrackerServiceTestSuite) TestIntentionalDisconnectKeepsScore() {
	ctx := context.Background()
	s.initialize()

	err := s.battles.UpdatePlayerProgress(ctx, &battleRepo.UpdatePlayerProgressInput{
		GamePin: s.gamePin, UserID: 1, Score: 3, CurrentQuestion: 2,
	})
	s.Require().NoError(err)

	err = s.service.Disconnect(ctx, &DisconnectInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)

	player, err := s.battles.GetPlayer(ctx, &battleRepo.GetPlayerInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)
	s.False(player.IsOnline)
	s.False(player.HasForfeited)
	s.Equal(float64(3), player.Score)

	// The deferred write was cancelled, so nothing is left for the sweeper
	stale, err := s.connections.ListStaleIntents(ctx, &connectionRepo.ListStaleIntentsInput{})
	s.Require().NoError(err)
	s.Empty(stale.Intents)
}

func (s *TrackerServiceTestSuite) TestSweepCommitsLapsedSessionAndForfeits() {
	ctx := context.Background()
	s.initialize()

	// The session key expires once heartbeats stop; the sweeper then
	// applies the deferred offline write
	s.mr.FastForward(11 * time.Second)
	s.fakeClock.Advance(11 * time.Second)
	s.service.Sweep(ctx)

	player, err := s.battles.GetPlayer(ctx, &battleRepo.GetPlayerInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)
	s.False(player.IsOnline)
	s.True(player.InGracePeriod)

	// A later pass finalizes the expired grace window
	s.fakeClock.Advance(91 * time.Second)
	s.service.Sweep(ctx)

	player, err = s.battles.GetPlayer(ctx, &battleRepo.GetPlayerInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)
	s.True(player.HasForfeited)
	s.Equal(float64(0), player.Score)
}
