package snapshot

import (
	"context"
	"testing"
	"time"

	"quizclash/internal/common/clock"
	"quizclash/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type RedisRepositoryTestSuite struct {
	suite.Suite
	mr        *miniredis.Miniredis
	client    *redis.Client
	repo      Repository
	fakeClock *clockwork.FakeClock
	testNow   time.Time
}

func (s *RedisRepositoryTestSuite) SetupTest() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr

	s.client = redis.NewClient(&redis.Options{
		Addr: s.mr.Addr(),
	})

	s.testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	s.fakeClock = clockwork.NewFakeClockAt(s.testNow)

	repo, err := NewRedis(&Config{
		RedisClient: s.client,
		Clock:       clock.NewFake(s.fakeClock),
	})
	s.Require().NoError(err)
	s.repo = repo
}

func (s *RedisRepositoryTestSuite) TearDownTest() {
	s.client.Close()
	s.mr.Close()
}

func TestRedisRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RedisRepositoryTestSuite))
}

func (s *RedisRepositoryTestSuite) testSnapshot() *models.PlayerSnapshot {
	return &models.PlayerSnapshot{
		Score:                2.5,
		CurrentQuestionIndex: 3,
		UserAnswers: map[string]models.SubmittedAnswer{
			"0": {Value: "Paris"},
			"1": {Value: "false"},
		},
		AnsweredQuestions: []int{0, 1, 2},
	}
}

func (s *RedisRepositoryTestSuite) TestSaveAndGetState() {
	ctx := context.Background()

	err := s.repo.SaveState(ctx, &SaveStateInput{
		GamePin:  "123456",
		UserID:   1,
		Snapshot: s.testSnapshot(),
	})
	s.Require().NoError(err)

	snap, err := s.repo.GetState(ctx, &GetStateInput{GamePin: "123456", UserID: 1})
	s.Require().NoError(err)
	s.Equal(2.5, snap.Score)
	s.Equal(3, snap.CurrentQuestionIndex)
	s.Equal([]int{0, 1, 2}, snap.AnsweredQuestions)
	s.Equal(s.testNow.UnixMilli(), snap.SavedAt)
	s.Equal(s.testNow.Add(SnapshotTTL).UnixMilli(), snap.ExpiresAt)
}

func (s *RedisRepositoryTestSuite) TestGetStateNotFound() {
	_, err := s.repo.GetState(context.Background(), &GetStateInput{GamePin: "123456", UserID: 1})
	s.ErrorIs(err, ErrSnapshotNotFound)
}

func (s *RedisRepositoryTestSuite) TestGetStateExpired() {
	ctx := context.Background()

	err := s.repo.SaveState(ctx, &SaveStateInput{
		GamePin:  "123456",
		UserID:   1,
		Snapshot: s.testSnapshot(),
	})
	s.Require().NoError(err)

	// Just inside the lifetime the snapshot is still usable
	s.fakeClock.Advance(SnapshotTTL - time.Second)
	_, err = s.repo.GetState(ctx, &GetStateInput{GamePin: "123456", UserID: 1})
	s.Require().NoError(err)

	// Just past it, the snapshot counts as gone even if the key lingers
	s.fakeClock.Advance(2 * time.Second)
	_, err = s.repo.GetState(ctx, &GetStateInput{GamePin: "123456", UserID: 1})
	s.ErrorIs(err, ErrSnapshotNotFound)
}

func (s *RedisRepositoryTestSuite) TestClearState() {
	ctx := context.Background()

	err := s.repo.SaveState(ctx, &SaveStateInput{
		GamePin:  "123456",
		UserID:   1,
		Snapshot: s.testSnapshot(),
	})
	s.Require().NoError(err)

	err = s.repo.ClearState(ctx, &ClearStateInput{GamePin: "123456", UserID: 1})
	s.Require().NoError(err)

	_, err = s.repo.GetState(ctx, &GetStateInput{GamePin: "123456", UserID: 1})
	s.ErrorIs(err, ErrSnapshotNotFound)
}
