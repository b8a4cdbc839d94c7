package session

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"quizclash/internal/common/clock"
	"quizclash/internal/models"
	battleRepo "quizclash/internal/repositories/battle"

	"github.com/rs/zerolog/log"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice
	ErrAlreadyStarted = errors.New("session already started")

	// ErrSessionPaused is returned when submitting while the pause overlay
	// is active
	ErrSessionPaused = errors.New("session is paused")
)

// Config holds configuration for a quiz session
type Config struct {
	// GamePin of the battle; empty in solo mode
	GamePin string

	// UserID of the player driving the session
	UserID int64

	// Mode selects pacing and mirroring behavior
	Mode Mode

	// Questions is the immutable ordered question list
	Questions []*models.Question

	// BattleRepo receives the progress mirror after every scored question;
	// required in battle mode
	BattleRepo battleRepo.Repository

	// Clock drives question timers
	Clock clock.Clock
}

// Session is one player's quiz state machine: it drives question
// presentation, answer submission, scoring, and advancement. A pause overlay
// freezes the countdown and blocks submissions while the player is offline
// or in their grace period.
type Session struct {
	config *Config
	clock  clock.Clock

	mu       sync.Mutex
	phase    Phase
	index    int
	score    float64
	answers  map[string]models.SubmittedAnswer
	answered map[int]bool
	paused   bool

	// lockHeldUntil implements the single-slot submission lock with its
	// auto-release: whichever of timer expiry and manual submit acquires
	// it first scores the question, the other is a no-op
	lockHeldUntil time.Time

	// deadline of the open question; zero when untimed
	deadline time.Time

	// remaining countdown frozen at pause time
	remaining time.Duration

	timerStop chan struct{}
}

// New creates a quiz session over a fixed question list
func New(cfg *Config) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if len(cfg.Questions) == 0 {
		return nil, errors.New("questions cannot be empty")
	}

	if cfg.Clock == nil {
		return nil, errors.New("clock cannot be nil")
	}

	if cfg.Mode == "" {
		cfg.Mode = ModeSolo
	}

	if cfg.Mode == ModeBattle {
		if cfg.BattleRepo == nil {
			return nil, errors.New("battle repository is required in battle mode")
		}
		if cfg.GamePin == "" {
			return nil, errors.New("game pin is required in battle mode")
		}
	}

	return &Session{
		config:   cfg,
		clock:    cfg.Clock,
		phase:    PhaseIdle,
		answers:  make(map[string]models.SubmittedAnswer),
		answered: make(map[int]bool),
	}, nil
}

// Start opens the first question
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseIdle {
		return ErrAlreadyStarted
	}

	s.phase = PhaseAnswering
	s.index = 0
	s.armTimerLocked(ctx)

	return nil
}

// SubmitAnswer scores the open question with the player's answer and
// advances. A submission that loses the lock race, repeats an already
// scored question, or arrives after the session finished is reported as not
// accepted rather than as an error.
func (s *Session) SubmitAnswer(ctx context.Context, input *SubmitAnswerInput) (*SubmitAnswerOutput, error) {
	if input == nil {
		return nil, errors.New("input cannot be nil")
	}

	s.mu.Lock()

	if s.paused {
		s.mu.Unlock()
		return nil, ErrSessionPaused
	}

	if s.phase != PhaseAnswering || s.answered[s.index] {
		s.mu.Unlock()
		return &SubmitAnswerOutput{Score: s.score}, nil
	}

	if !s.tryAcquireLockLocked() {
		s.mu.Unlock()
		return &SubmitAnswerOutput{Score: s.score}, nil
	}

	question := s.config.Questions[s.index]
	credit := scoreAnswer(question, input.Answer)

	s.recordAnswerLocked(input.Answer, credit)
	s.advanceLocked(ctx)

	out := &SubmitAnswerOutput{
		Accepted: true,
		Credit:   credit,
		Correct:  credit == 1,
		Score:    s.score,
		Finished: s.phase == PhaseFinished,
	}

	score, index := s.score, s.index
	s.mu.Unlock()

	s.mirror(ctx, score, index)

	return out, nil
}

// Pause freezes the countdown and blocks submissions. Entered whenever the
// connection tracker reports the player offline or in their grace period.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return
	}

	s.paused = true

	if s.phase == PhaseAnswering && !s.deadline.IsZero() {
		s.remaining = s.deadline.Sub(s.clock.Now())
		if s.remaining < 0 {
			s.remaining = 0
		}
		s.stopTimerLocked()
	}
}

// Resume exits the pause overlay and restarts the frozen countdown
func (s *Session) Resume(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.paused {
		return
	}

	s.paused = false

	if s.phase == PhaseAnswering && s.remaining > 0 {
		s.armTimerForLocked(ctx, s.remaining)
	}
	s.remaining = 0
}

// Adopt installs a restored snapshot verbatim: score, position, and answer
// history. The open question's timer restarts fresh.
func (s *Session) Adopt(ctx context.Context, snap *models.PlayerSnapshot) error {
	if snap == nil {
		return errors.New("snapshot cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()

	s.score = snap.Score
	s.index = snap.CurrentQuestionIndex

	s.answers = make(map[string]models.SubmittedAnswer, len(snap.UserAnswers))
	for k, v := range snap.UserAnswers {
		s.answers[k] = v
	}

	s.answered = make(map[int]bool, len(snap.AnsweredQuestions))
	for _, idx := range snap.AnsweredQuestions {
		s.answered[idx] = true
	}

	if s.index >= len(s.config.Questions) {
		s.phase = PhaseFinished
		return nil
	}

	s.phase = PhaseAnswering
	s.armTimerLocked(ctx)

	return nil
}

// Snapshot builds the saved-state tuple for the synchronizer. Implements
// statesync.StateSource.
func (s *Session) Snapshot() *models.PlayerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	answers := make(map[string]models.SubmittedAnswer, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}

	answered := make([]int, 0, len(s.answered))
	for idx := range s.answered {
		answered = append(answered, idx)
	}
	sort.Ints(answered)

	return &models.PlayerSnapshot{
		Score:                s.score,
		CurrentQuestionIndex: s.index,
		UserAnswers:          answers,
		AnsweredQuestions:    answered,
		Questions:            s.config.Questions,
	}
}

// State returns the per-question view for the rendering layer
func (s *Session) State() *GameState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := &GameState{
		Phase:          s.phase,
		QuestionIndex:  s.index,
		TotalQuestions: len(s.config.Questions),
		Score:          s.score,
		Paused:         s.paused,
		AnsweredCount:  len(s.answered),
	}

	if s.phase == PhaseAnswering {
		state.Question = s.config.Questions[s.index]
		switch {
		case s.paused:
			state.TimeRemaining = s.remaining
		case !s.deadline.IsZero():
			remaining := s.deadline.Sub(s.clock.Now())
			if remaining > 0 {
				state.TimeRemaining = remaining
			}
		}
	}

	return state
}

// Score returns the running total
func (s *Session) Score() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// Finished reports whether every question has been scored
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == PhaseFinished
}

// Stop cancels the question timer. Part of component teardown; the session
// itself stays readable.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
}

// effectiveLimit applies the battle-mode minimum to a question's timer.
// Zero means untimed and survives only in solo mode.
func (s *Session) effectiveLimit(q *models.Question) time.Duration {
	d := time.Duration(q.TimeLimit) * time.Second
	if s.config.Mode == ModeBattle && d < MinBattleTimeLimit {
		d = MinBattleTimeLimit
	}
	return d
}

func (s *Session) armTimerLocked(ctx context.Context) {
	d := s.effectiveLimit(s.config.Questions[s.index])
	if d == 0 {
		s.deadline = time.Time{}
		return
	}
	s.armTimerForLocked(ctx, d)
}

func (s *Session) armTimerForLocked(ctx context.Context, d time.Duration) {
	s.stopTimerLocked()
	s.deadline = s.clock.Now().Add(d)

	stop := make(chan struct{})
	s.timerStop = stop
	index := s.index

	timer := s.clock.NewTimer(d)
	go func() {
		defer timer.Stop()
		select {
		case <-timer.Chan():
			s.expire(ctx, index)
		case <-stop:
		case <-ctx.Done():
		}
	}()
}

func (s *Session) stopTimerLocked() {
	if s.timerStop != nil {
		close(s.timerStop)
		s.timerStop = nil
	}
	s.deadline = time.Time{}
}

// expire is the timer path: the open question is scored incorrect and the
// session auto-advances, unless the manual-submit path won the lock first.
func (s *Session) expire(ctx context.Context, index int) {
	s.mu.Lock()

	if s.phase != PhaseAnswering || s.index != index || s.paused || s.answered[index] {
		s.mu.Unlock()
		return
	}

	if !s.tryAcquireLockLocked() {
		s.mu.Unlock()
		return
	}

	s.recordAnswerLocked(models.SubmittedAnswer{}, 0)
	s.advanceLocked(ctx)

	score, next := s.score, s.index
	s.mu.Unlock()

	s.mirror(ctx, score, next)
}

// tryAcquireLockLocked is the single-slot submission lock. A holder keeps
// it for the auto-release window; within that window the competing path
// must no-op.
func (s *Session) tryAcquireLockLocked() bool {
	now := s.clock.Now()
	if now.Before(s.lockHeldUntil) {
		return false
	}
	s.lockHeldUntil = now.Add(SubmissionLockRelease)
	return true
}

func (s *Session) recordAnswerLocked(answer models.SubmittedAnswer, credit float64) {
	s.answers[strconv.Itoa(s.index)] = answer
	s.answered[s.index] = true
	s.score += credit
}

func (s *Session) advanceLocked(ctx context.Context) {
	s.stopTimerLocked()
	s.index++

	if s.index >= len(s.config.Questions) {
		s.phase = PhaseFinished
		return
	}

	s.armTimerLocked(ctx)
}

// mirror pushes progress to the shared store after every scored question so
// the aggregator and other players' leaderboards stay current. Battle mode
// only; failures are logged, the periodic snapshot covers the gap.
func (s *Session) mirror(ctx context.Context, score float64, currentQuestion int) {
	if s.config.Mode != ModeBattle {
		return
	}

	err := s.config.BattleRepo.UpdatePlayerProgress(ctx, &battleRepo.UpdatePlayerProgressInput{
		GamePin:         s.config.GamePin,
		UserID:          s.config.UserID,
		Score:           score,
		CurrentQuestion: currentQuestion,
	})
	if err != nil {
		log.Warn().
			Str("game_pin", s.config.GamePin).
			Int64("user_id", s.config.UserID).
			Err(err).
			Msg("failed to mirror progress")
	}
}
