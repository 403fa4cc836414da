package app

import (
	"context"
	"errors"
	"time"

	"livequiz-service/internal/domain"
)

// SessionStore is the shared, authoritative store of session documents.
// It is the only synchronization point between engine instances: Update
// must apply fn atomically against the latest stored value (optimistic
// CAS or equivalent), and Create must be create-if-absent.
type SessionStore interface {
	Create(ctx context.Context, code string, state domain.SessionState, ttl time.Duration) error
	Get(ctx context.Context, code string) (domain.SessionState, error)
	Update(ctx context.Context, code string, apply func(*domain.SessionState) error) (domain.SessionState, error)
	MarkDisconnected(ctx context.Context, code, participantID string, grace time.Duration) error
	IsDisconnected(ctx context.Context, code, participantID string) (bool, error)
	Delete(ctx context.Context, code string) error
}

// QuizRepository loads quiz definitions (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.QuizDefinition, error)
}

// Config tunes session lifecycle behavior.
type Config struct {
	SessionTTL       time.Duration // how long an abandoned session survives in the store
	GracePeriod      time.Duration // disconnect marker TTL for participants
	DefaultTimeLimit int           // seconds, for questions without their own limit
	CodeAttempts     int           // bounded retries for join-code allocation
	OpTimeout        time.Duration // caller-side deadline for every store call
}

func (c Config) withDefaults() Config {
	if c.SessionTTL <= 0 {
		c.SessionTTL = 6 * time.Hour
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 10 * time.Second
	}
	if c.DefaultTimeLimit <= 0 {
		c.DefaultTimeLimit = 30
	}
	if c.CodeAttempts <= 0 {
		c.CodeAttempts = 10
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 5 * time.Second
	}
	return c
}

// SessionService contains the live quiz session use cases. All methods
// are safe for concurrent use from many connections; cross-instance
// consistency comes from the store, never from process memory.
type SessionService struct {
	store   SessionStore
	quizzes QuizRepository
	cfg     Config
	codes   *codeAllocator
	now     func() time.Time
}

func NewSessionService(store SessionStore, quizzes QuizRepository, cfg Config) *SessionService {
	return &SessionService{
		store:   store,
		quizzes: quizzes,
		cfg:     cfg.withDefaults(),
		codes:   newCodeAllocator(),
		now:     time.Now,
	}
}

// NewSessionServiceWithClock is test-only for deterministic timestamps.
func NewSessionServiceWithClock(store SessionStore, quizzes QuizRepository, cfg Config, now func() time.Time) *SessionService {
	s := NewSessionService(store, quizzes, cfg)
	s.now = now
	return s
}

func (s *SessionService) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.OpTimeout)
}

// CreateSession snapshots the quiz definition into a fresh lobby session
// and binds it to a newly allocated join code.
func (s *SessionService) CreateSession(ctx context.Context, quizID string) (string, time.Time, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return "", time.Time{}, err
	}
	if len(quiz.Questions) == 0 {
		return "", time.Time{}, domain.ErrInvalidQuizDefinition
	}

	now := s.now()
	state := domain.SessionState{
		QuizID:               quiz.ID,
		Title:                quiz.Title,
		CreatedAt:            now,
		IsActive:             false,
		CurrentQuestionIndex: -1,
		Questions:            append([]domain.Question(nil), quiz.Questions...),
		Participants:         make(map[string]*domain.ParticipantState),
	}

	for attempt := 0; attempt < s.cfg.CodeAttempts; attempt++ {
		code, err := s.codes.next(attempt >= s.cfg.CodeAttempts/2)
		if err != nil {
			return "", time.Time{}, err
		}
		state.Code = code
		err = s.store.Create(ctx, code, state, s.cfg.SessionTTL)
		if errors.Is(err, domain.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return "", time.Time{}, err
		}
		return code, now.Add(s.cfg.SessionTTL), nil
	}
	return "", time.Time{}, domain.ErrCodeExhausted
}

// Join upserts the participant into the session. A rejoin leaves score
// and answer history untouched, so duplicate joins and reconnects after
// a drop are idempotent. The returned snapshot lets the client render
// the in-progress question, including "already answered" state.
func (s *SessionService) Join(ctx context.Context, code, participantID, displayName string) (domain.SessionState, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	return s.store.Update(ctx, code, func(st *domain.SessionState) error {
		now := s.now()
		if p, ok := st.Participants[participantID]; ok {
			p.DisplayName = displayName
			p.LastActive = now
			return nil
		}
		st.Participants[participantID] = &domain.ParticipantState{
			ID:          participantID,
			DisplayName: displayName,
			Score:       0,
			LastActive:  now,
		}
		return nil
	})
}

// StartSession moves a lobby into its first question window.
func (s *SessionService) StartSession(ctx context.Context, code string) (domain.SessionState, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	return s.store.Update(ctx, code, func(st *domain.SessionState) error {
		if st.Ended() || st.IsActive {
			return domain.ErrSessionNotActive
		}
		st.IsActive = true
		st.CurrentQuestionIndex = 0
		st.CurrentQuestionStartedAt = s.now()
		return nil
	})
}

// AdvanceQuestion moves to the next question, or ends the session when
// the questions run out. The increment is computed from the value read
// inside the store's atomic update, so a host double-click advances one
// step per accepted call and never skips.
func (s *SessionService) AdvanceQuestion(ctx context.Context, code string) (domain.SessionState, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	return s.store.Update(ctx, code, func(st *domain.SessionState) error {
		if st.Ended() || !st.IsActive {
			return domain.ErrSessionNotActive
		}
		next := st.CurrentQuestionIndex + 1
		if next >= len(st.Questions) {
			now := s.now()
			st.IsActive = false
			st.EndedAt = &now
			return nil
		}
		st.CurrentQuestionIndex = next
		st.CurrentQuestionStartedAt = s.now()
		return nil
	})
}

// EndSession terminates the session from any state. Ending an already
// ended session is a no-op so the host-disconnect path can always call it.
func (s *SessionService) EndSession(ctx context.Context, code string) (domain.SessionState, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	return s.store.Update(ctx, code, func(st *domain.SessionState) error {
		if st.Ended() {
			return nil
		}
		now := s.now()
		st.IsActive = false
		st.EndedAt = &now
		return nil
	})
}

// SubmitAnswer records at most one scored answer per (participant,
// question). The duplicate check, the score computation, and the append
// happen inside one atomic store update; two racing submissions cannot
// both pass the check.
func (s *SessionService) SubmitAnswer(ctx context.Context, code, participantID, questionID, selectedOptionID string, timeTakenSeconds int) (domain.AnswerResult, domain.SessionState, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var result domain.AnswerResult
	state, err := s.store.Update(ctx, code, func(st *domain.SessionState) error {
		if st.Ended() || !st.IsActive {
			return domain.ErrSessionNotActive
		}
		question, ok := st.CurrentQuestion()
		if !ok || question.ID != questionID {
			return domain.ErrQuestionMismatch
		}
		p, ok := st.Participants[participantID]
		if !ok {
			return domain.ErrParticipantNotFound
		}
		if p.HasAnswered(questionID) {
			return domain.ErrDuplicateAnswer
		}

		correct := selectedOptionID == question.CorrectOptionID
		delta := scoreDelta(correct, s.timeLimit(question), timeTakenSeconds)
		p.Answers = append(p.Answers, domain.Answer{
			QuestionID:       questionID,
			SelectedOptionID: selectedOptionID,
			Correct:          correct,
			TimeTakenSeconds: timeTakenSeconds,
		})
		p.Score += delta
		p.LastActive = s.now()

		result = domain.AnswerResult{
			QuestionID: questionID,
			Correct:    correct,
			ScoreDelta: delta,
			TotalScore: p.Score,
		}
		return nil
	})
	if err != nil {
		return domain.AnswerResult{}, domain.SessionState{}, err
	}
	return result, state, nil
}

// Leaderboard is a pure read: load, sort, truncate. Sessions are small
// enough that recomputing beats caching a second source of truth.
func (s *SessionService) Leaderboard(ctx context.Context, code string, limit int) ([]domain.LeaderboardEntry, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	st, err := s.store.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	return st.Leaderboard(limit), nil
}

// Snapshot returns the current session document.
func (s *SessionService) Snapshot(ctx context.Context, code string) (domain.SessionState, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.store.Get(ctx, code)
}

// HandleDisconnect marks a transient participant drop. Nothing is
// deleted: the participant keeps their score and may rejoin; the marker
// only lets clients show who is offline during the grace window.
func (s *SessionService) HandleDisconnect(ctx context.Context, code, participantID string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.store.MarkDisconnected(ctx, code, participantID, s.cfg.GracePeriod)
}

// TimeLimit resolves a question's effective limit in seconds.
func (s *SessionService) TimeLimit(q domain.Question) int {
	return s.timeLimit(q)
}

func (s *SessionService) timeLimit(q domain.Question) int {
	if q.TimeLimitSeconds > 0 {
		return q.TimeLimitSeconds
	}
	return s.cfg.DefaultTimeLimit
}

// RemainingSeconds computes how much of the current question window is
// left, clamped to zero, so late joiners can render the countdown.
func (s *SessionService) RemainingSeconds(st *domain.SessionState) int {
	question, ok := st.CurrentQuestion()
	if !ok || !st.IsActive {
		return 0
	}
	elapsed := int(s.now().Sub(st.CurrentQuestionStartedAt) / time.Second)
	remaining := s.timeLimit(question) - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
