package statesync

import (
	"context"
	"testing"
	"time"

	"quizclash/internal/common/clock"
	"quizclash/internal/models"
	battleRepo "quizclash/internal/repositories/battle"
	snapshotRepo "quizclash/internal/repositories/snapshot"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type StateSyncTestSuite struct {
	suite.Suite
	mr        *miniredis.Miniredis
	client    *redis.Client
	fakeClock *clockwork.FakeClock
	battles   battleRepo.Repository
	service   Service
	gamePin   string
}

func (s *StateSyncTestSuite) SetupTest() {
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

	snapshots, err := snapshotRepo.NewRedis(&snapshotRepo.Config{
		RedisClient: s.client,
		Clock:       clk,
	})
	s.Require().NoError(err)

	svc, err := New(&Config{
		SnapshotRepo: snapshots,
		BattleRepo:   s.battles,
		Clock:        clk,
	})
	s.Require().NoError(err)
	s.service = svc

	battle, err := s.battles.CreateBattle(context.Background(), &battleRepo.CreateBattleInput{
		QuizID:     "quiz-1",
		HostUserID: 100,
		Questions: []*models.Question{
			{ID: "q1", Type: models.QuestionTypeTrueFalse, Text: "Snapshots expire.", CorrectAnswer: "true", TimeLimit: 15},
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

func (s *StateSyncTestSuite) TearDownTest() {
	s.service.Teardown()
	s.client.Close()
	s.mr.Close()
}

func TestStateSyncTestSuite(t *testing.T) {
	suite.Run(t, new(StateSyncTestSuite))
}

func (s *StateSyncTestSuite) snapshot(score float64, index int) *models.PlayerSnapshot {
	return &models.PlayerSnapshot{
		Score:                score,
		CurrentQuestionIndex: index,
		UserAnswers:          map[string]models.SubmittedAnswer{"0": {Value: "true"}},
		AnsweredQuestions:    []int{0},
	}
}

func (s *StateSyncTestSuite) TestSaveAndRestoreRoundTrip() {
	ctx := context.Background()

	err := s.service.SaveNow(ctx, &SaveNowInput{
		GamePin:  s.gamePin,
		UserID:   1,
		Snapshot: s.snapshot(2, 3),
	})
	s.Require().NoError(err)

	out, err := s.service.Restore(ctx, &RestoreInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)
	s.Equal(float64(2), out.Snapshot.Score)
	s.Equal(3, out.Snapshot.CurrentQuestionIndex)
}

func (s *StateSyncTestSuite) TestRestoreNothingSaved() {
	_, err := s.service.Restore(context.Background(), &RestoreInput{GamePin: s.gamePin, UserID: 1})
	s.ErrorIs(err, ErrStateNotFound)
}

func (s *StateSyncTestSuite) TestRestoreExpiredSnapshot() {
	ctx := context.Background()

	err := s.service.SaveNow(ctx, &SaveNowInput{
		GamePin:  s.gamePin,
		UserID:   1,
		Snapshot: s.snapshot(2, 3),
	})
	s.Require().NoError(err)

	// Within the lifetime the snapshot restores
	s.fakeClock.Advance(snapshotRepo.SnapshotTTL - time.Second)
	_, err = s.service.Restore(ctx, &RestoreInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)

	// Past it, the player starts fresh
	s.fakeClock.Advance(2 * time.Second)
	_, err = s.service.Restore(ctx, &RestoreInput{GamePin: s.gamePin, UserID: 1})
	s.ErrorIs(err, ErrStateNotFound)
}

func (s *StateSyncTestSuite) TestBaselineSkippedWhileRestoreInFlight() {
	ctx := context.Background()

	err := s.service.SaveNow(ctx, &SaveNowInput{
		GamePin:  s.gamePin,
		UserID:   1,
		Snapshot: s.snapshot(5, 4),
	})
	s.Require().NoError(err)

	s.service.BeginRestore(&BeginRestoreInput{GamePin: s.gamePin, UserID: 1})

	// The zero-state baseline must not clobber the progress being restored
	err = s.service.SaveBaseline(ctx, &SaveBaselineInput{
		GamePin:  s.gamePin,
		UserID:   1,
		Snapshot: s.snapshot(0, 0),
	})
	s.Require().NoError(err)

	out, err := s.service.Restore(ctx, &RestoreInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)
	s.Equal(float64(5), out.Snapshot.Score)

	s.service.EndRestore(&EndRestoreInput{GamePin: s.gamePin, UserID: 1})

	// With no restore in flight the baseline writes normally
	err = s.service.SaveBaseline(ctx, &SaveBaselineInput{
		GamePin:  s.gamePin,
		UserID:   1,
		Snapshot: s.snapshot(0, 0),
	})
	s.Require().NoError(err)

	out, err = s.service.Restore(ctx, &RestoreInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)
	s.Equal(float64(0), out.Snapshot.Score)
}

func (s *StateSyncTestSuite) TestClear() {
	ctx := context.Background()

	err := s.service.SaveNow(ctx, &SaveNowInput{
		GamePin:  s.gamePin,
		UserID:   1,
		Snapshot: s.snapshot(1, 1),
	})
	s.Require().NoError(err)

	err = s.service.Clear(ctx, &ClearInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)

	_, err = s.service.Restore(ctx, &RestoreInput{GamePin: s.gamePin, UserID: 1})
	s.ErrorIs(err, ErrStateNotFound)
}

func (s *StateSyncTestSuite) TestWriteBackReconvergesPlayerRecord() {
	ctx := context.Background()

	err := s.service.WriteBack(ctx, &WriteBackInput{
		GamePin:  s.gamePin,
		UserID:   1,
		Snapshot: s.snapshot(4, 6),
	})
	s.Require().NoError(err)

	player, err := s.battles.GetPlayer(ctx, &battleRepo.GetPlayerInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)
	s.Equal(float64(4), player.Score)
	s.Equal(6, player.CurrentQuestion)
}
