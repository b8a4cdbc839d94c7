package session

import (
	"context"
	"testing"
	"time"

	"quizclash/internal/common/clock"
	"quizclash/internal/models"
	battleRepo "quizclash/internal/repositories/battle"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type SessionTestSuite struct {
	suite.Suite
	mr        *miniredis.Miniredis
	client    *redis.Client
	fakeClock *clockwork.FakeClock
	clk       clock.Clock
	battles   battleRepo.Repository
	gamePin   string
}

func (s *SessionTestSuite) SetupTest() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr

	s.client = redis.NewClient(&redis.Options{
		Addr: s.mr.Addr(),
	})

	s.fakeClock = clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	s.clk = clock.NewFake(s.fakeClock)

	s.battles, err = battleRepo.NewRedis(&battleRepo.Config{
		RedisClient: s.client,
		Clock:       s.clk,
	})
	s.Require().NoError(err)

	battle, err := s.battles.CreateBattle(context.Background(), &battleRepo.CreateBattleInput{
		QuizID:     "quiz-1",
		HostUserID: 100,
		Questions:  s.questions(),
	})
	s.Require().NoError(err)
	s.gamePin = battle.Battle.GamePin

	_, err = s.battles.JoinBattle(context.Background(), &battleRepo.JoinBattleInput{
		GamePin: s.gamePin,
		Player:  &models.Player{UserID: 1, Name: "Alice", Initial: "A"},
	})
	s.Require().NoError(err)
}

func (s *SessionTestSuite) TearDownTest() {
	s.client.Close()
	s.mr.Close()
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}

func (s *SessionTestSuite) questions() []*models.Question {
	return []*models.Question{
		{
			ID:            "q1",
			Type:          models.QuestionTypeMultipleChoice,
			Text:          "What is the capital of France?",
			Options:       []string{"Paris", "Lyon", "Nice"},
			CorrectAnswer: "Paris",
			TimeLimit:     30,
		},
		{
			ID:            "q2",
			Type:          models.QuestionTypeTrueFalse,
			Text:          "Goroutines are OS threads.",
			CorrectAnswer: "false",
			TimeLimit:     15,
		},
		{
			ID:   "q3",
			Type: models.QuestionTypeMatching,
			Text: "Match the country to its capital.",
			Pairs: map[string]string{
				"France": "Paris",
				"Italy":  "Rome",
			},
			TimeLimit: 20,
		},
	}
}

// soloSession builds an untimed solo session so tests of pure state-machine
// flow run without any timer goroutines.
func (s *SessionTestSuite) soloSession() *Session {
	questions := s.questions()
	for _, q := range questions {
		q.TimeLimit = 0
	}

	sess, err := New(&Config{
		UserID:    1,
		Mode:      ModeSolo,
		Questions: questions,
		Clock:     s.clk,
	})
	s.Require().NoError(err)
	return sess
}

func (s *SessionTestSuite) battleSession() *Session {
	sess, err := New(&Config{
		GamePin:    s.gamePin,
		UserID:     1,
		Mode:       ModeBattle,
		Questions:  s.questions(),
		BattleRepo: s.battles,
		Clock:      s.clk,
	})
	s.Require().NoError(err)
	return sess
}

func (s *SessionTestSuite) TestNewValidation() {
	_, err := New(nil)
	s.Error(err)

	_, err = New(&Config{Mode: ModeSolo, Questions: nil, Clock: s.clk})
	s.Error(err)

	// Battle mode needs the shared store to mirror into
	_, err = New(&Config{Mode: ModeBattle, Questions: s.questions(), Clock: s.clk})
	s.Error(err)
}

func (s *SessionTestSuite) TestSoloFlow() {
	ctx := context.Background()
	sess := s.soloSession()

	s.Require().NoError(sess.Start(ctx))
	s.ErrorIs(sess.Start(ctx), ErrAlreadyStarted)

	state := sess.State()
	s.Equal(PhaseAnswering, state.Phase)
	s.Equal(0, state.QuestionIndex)
	s.Equal(3, state.TotalQuestions)
	s.Equal("q1", state.Question.ID)

	out, err := sess.SubmitAnswer(ctx, &SubmitAnswerInput{Answer: models.SubmittedAnswer{Value: "Paris"}})
	s.Require().NoError(err)
	s.True(out.Accepted)
	s.True(out.Correct)
	s.Equal(float64(1), out.Score)
	s.False(out.Finished)

	s.fakeClock.Advance(2 * time.Second)
	out, err = sess.SubmitAnswer(ctx, &SubmitAnswerInput{Answer: models.SubmittedAnswer{Value: "true"}})
	s.Require().NoError(err)
	s.True(out.Accepted)
	s.False(out.Correct)
	s.Equal(float64(1), out.Score)

	s.fakeClock.Advance(2 * time.Second)
	out, err = sess.SubmitAnswer(ctx, &SubmitAnswerInput{Answer: models.SubmittedAnswer{Pairs: map[string]string{
		"France": "Paris",
		"Italy":  "Rome",
	}}})
	s.Require().NoError(err)
	s.True(out.Accepted)
	s.Equal(float64(1), out.Credit)
	s.True(out.Finished)
	s.Equal(float64(2), out.Score)

	s.True(sess.Finished())
}

func (s *SessionTestSuite) TestBattleMinimumTimeLimit() {
	ctx := context.Background()

	questions := s.questions()
	questions[0].TimeLimit = 5

	sess, err := New(&Config{
		GamePin:    s.gamePin,
		UserID:     1,
		Mode:       ModeBattle,
		Questions:  questions,
		BattleRepo: s.battles,
		Clock:      s.clk,
	})
	s.Require().NoError(err)
	s.Require().NoError(sess.Start(ctx))
	defer sess.Stop()

	// The 5s author limit is raised to the battle-mode floor
	s.Equal(MinBattleTimeLimit, sess.State().TimeRemaining)
}

func (s *SessionTestSuite) TestBattleMirrorsProgress() {
	ctx := context.Background()
	sess := s.battleSession()

	s.Require().NoError(sess.Start(ctx))
	defer sess.Stop()

	out, err := sess.SubmitAnswer(ctx, &SubmitAnswerInput{Answer: models.SubmittedAnswer{Value: "Paris"}})
	s.Require().NoError(err)
	s.True(out.Accepted)

	player, err := s.battles.GetPlayer(ctx, &battleRepo.GetPlayerInput{GamePin: s.gamePin, UserID: 1})
	s.Require().NoError(err)
	s.Equal(float64(1), player.Score)
	s.Equal(1, player.CurrentQuestion)
}

func (s *SessionTestSuite) TestTimerExpiryScoresZeroAndAdvances() {
	ctx := context.Background()
	sess := s.battleSession()

	s.Require().NoError(sess.Start(ctx))
	defer sess.Stop()

	s.fakeClock.Advance(30 * time.Second)

	s.Require().Eventually(func() bool {
		return sess.State().QuestionIndex == 1
	}, 2*time.Second, 10*time.Millisecond)

	state := sess.State()
	s.Equal(float64(0), state.Score)
	s.Equal(1, state.AnsweredCount)
}

func (s *SessionTestSuite) TestSubmissionLockBlocksWithinReleaseWindow() {
	ctx := context.Background()
	sess := s.soloSession()

	s.Require().NoError(sess.Start(ctx))

	out, err := sess.SubmitAnswer(ctx, &SubmitAnswerInput{Answer: models.SubmittedAnswer{Value: "Paris"}})
	s.Require().NoError(err)
	s.True(out.Accepted)

	// Within the auto-release window the lock is still held
	out, err = sess.SubmitAnswer(ctx, &SubmitAnswerInput{Answer: models.SubmittedAnswer{Value: "false"}})
	s.Require().NoError(err)
	s.False(out.Accepted)
	s.Equal(1, sess.State().QuestionIndex)

	s.fakeClock.Advance(SubmissionLockRelease + time.Millisecond)
	out, err = sess.SubmitAnswer(ctx, &SubmitAnswerInput{Answer: models.SubmittedAnswer{Value: "false"}})
	s.Require().NoError(err)
	s.True(out.Accepted)
}

func (s *SessionTestSuite) TestPauseFreezesCountdownAndBlocksSubmission() {
	ctx := context.Background()
	sess := s.battleSession()

	s.Require().NoError(sess.Start(ctx))
	defer sess.Stop()

	s.fakeClock.Advance(10 * time.Second)
	sess.Pause()

	state := sess.State()
	s.True(state.Paused)
	s.Equal(20*time.Second, state.TimeRemaining)

	// Time passing while paused changes nothing
	s.fakeClock.Advance(time.Minute)
	s.Equal(20*time.Second, sess.State().TimeRemaining)

	_, err := sess.SubmitAnswer(ctx, &SubmitAnswerInput{Answer: models.SubmittedAnswer{Value: "Paris"}})
	s.ErrorIs(err, ErrSessionPaused)

	sess.Resume(ctx)
	state = sess.State()
	s.False(state.Paused)
	s.Equal(20*time.Second, state.TimeRemaining)

	out, err := sess.SubmitAnswer(ctx, &SubmitAnswerInput{Answer: models.SubmittedAnswer{Value: "Paris"}})
	s.Require().NoError(err)
	s.True(out.Accepted)
}

func (s *SessionTestSuite) TestSnapshotRoundTrip() {
	ctx := context.Background()
	sess := s.soloSession()

	s.Require().NoError(sess.Start(ctx))

	_, err := sess.SubmitAnswer(ctx, &SubmitAnswerInput{Answer: models.SubmittedAnswer{Value: "Paris"}})
	s.Require().NoError(err)

	snap := sess.Snapshot()
	s.Equal(float64(1), snap.Score)
	s.Equal(1, snap.CurrentQuestionIndex)
	s.Equal([]int{0}, snap.AnsweredQuestions)
	s.Equal("Paris", snap.UserAnswers["0"].Value)

	// A fresh session adopts the snapshot and resumes mid-quiz
	restored := s.soloSession()
	s.Require().NoError(restored.Adopt(ctx, snap))

	state := restored.State()
	s.Equal(PhaseAnswering, state.Phase)
	s.Equal(1, state.QuestionIndex)
	s.Equal(float64(1), state.Score)
	s.Equal(1, state.AnsweredCount)
}

func (s *SessionTestSuite) TestAdoptFinishedSnapshot() {
	ctx := context.Background()
	sess := s.soloSession()

	err := sess.Adopt(ctx, &models.PlayerSnapshot{
		Score:                2,
		CurrentQuestionIndex: 3,
		AnsweredQuestions:    []int{0, 1, 2},
	})
	s.Require().NoError(err)

	s.True(sess.Finished())
	s.Equal(float64(2), sess.Score())
}
