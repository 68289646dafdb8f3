package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"campus-quiz-service/internal/domain"
	"campus-quiz-service/internal/scoring"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ExpirePolicy decides what the overdue sweep does with attempts whose time ran out.
type ExpirePolicy string

const (
	ExpireSubmit  ExpirePolicy = "submit"
	ExpireAbandon ExpirePolicy = "abandon"
)

// AttemptOptions tunes the attempt tracker. Zero values select defaults.
type AttemptOptions struct {
	// Grace is added to an attempt's expiry before answers are refused and the sweep acts.
	Grace        time.Duration
	ExpirePolicy ExpirePolicy
	Now          func() time.Time
	Shuffle      func(ids []string)
}

// StartResult is returned by StartAttempt.
type StartResult struct {
	Attempt   domain.Attempt    `json:"attempt"`
	Questions []domain.Question `json:"questions"`
	Resumed   bool              `json:"resumed"`
}

// AttemptService runs the attempt lifecycle: start, answer, submit, abandon.
type AttemptService struct {
	store   AttemptStore
	quizzes QuizRepository
	boards  *ScoreboardService
	grace   time.Duration
	policy  ExpirePolicy
	now     func() time.Time
	shuffle func(ids []string)
}

func NewAttemptService(store AttemptStore, quizzes QuizRepository, boards *ScoreboardService, opts AttemptOptions) *AttemptService {
	s := &AttemptService{
		store:   store,
		quizzes: quizzes,
		boards:  boards,
		grace:   opts.Grace,
		policy:  opts.ExpirePolicy,
		now:     opts.Now,
		shuffle: opts.Shuffle,
	}
	if s.policy == "" {
		s.policy = ExpireSubmit
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.shuffle == nil {
		s.shuffle = func(ids []string) {
			rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		}
	}
	return s
}

// StartAttempt begins an attempt, or resumes the user's in-progress attempt for the quiz.
func (s *AttemptService) StartAttempt(ctx context.Context, quizID string, user domain.Identity) (StartResult, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return StartResult{}, err
	}
	if quiz.Status != domain.StatusPublished {
		return StartResult{}, domain.ErrQuizNotPublished
	}
	now := s.now().UTC()
	if !quiz.AvailableAt(now) {
		return StartResult{}, domain.ErrQuizNotAvailable
	}

	inProgress, err := s.store.ListAttempts(ctx, domain.AttemptFilter{QuizID: quizID, UserID: user.ID, Status: domain.AttemptInProgress})
	if err != nil {
		return StartResult{}, fmt.Errorf("list attempts: %w", err)
	}
	for _, existing := range inProgress {
		if s.overdue(existing, now) {
			// Time ran out while the user was away; close it before deciding on a new start.
			if err := s.expire(ctx, existing); err != nil {
				return StartResult{}, err
			}
			continue
		}
		return StartResult{Attempt: existing, Questions: QuestionsFor(existing, quiz), Resumed: true}, nil
	}

	if quiz.MaxAttempts > 0 {
		completed, err := s.store.CountCompleted(ctx, user.ID, quizID)
		if err != nil {
			return StartResult{}, fmt.Errorf("count attempts: %w", err)
		}
		if completed >= quiz.MaxAttempts {
			return StartResult{}, domain.ErrAttemptsExhausted
		}
	}

	order := make([]string, len(quiz.Questions))
	for i, q := range quiz.Questions {
		order[i] = q.ID
	}
	if quiz.RandomizeQuestions {
		s.shuffle(order)
	}

	attempt := domain.Attempt{
		ID:                 uuid.NewString(),
		QuizID:             quiz.ID,
		UserID:             user.ID,
		UserName:           user.Name,
		StartedAt:          now,
		QuestionOrder:      order,
		Answers:            []domain.AttemptAnswer{},
		TotalPossibleScore: quiz.TotalPoints,
		Status:             domain.AttemptInProgress,
	}
	if limit := quiz.TimeLimitDuration(); limit > 0 {
		expires := now.Add(limit)
		attempt.ExpiresAt = &expires
	}

	stored, started, err := s.store.StartAttempt(ctx, attempt)
	if err != nil {
		return StartResult{}, fmt.Errorf("start attempt: %w", err)
	}
	if started {
		log.Info().Str("quizId", quiz.ID).Str("attemptId", stored.ID).Str("userId", user.ID).Msg("attempt started")
	}
	return StartResult{Attempt: stored, Questions: QuestionsFor(stored, quiz), Resumed: !started}, nil
}

// RecordAnswer upserts an answer while the attempt is in progress. Correctness is only
// computed at submission, so the user may change answers until then.
func (s *AttemptService) RecordAnswer(ctx context.Context, attemptID string, user domain.Identity, questionID string, answer domain.AnswerValue) (domain.Attempt, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.UserID != user.ID {
		return domain.Attempt{}, domain.ErrNotAttemptOwner
	}
	if attempt.Status != domain.AttemptInProgress || s.overdue(attempt, s.now().UTC()) {
		return domain.Attempt{}, domain.ErrAttemptNotInProgress
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	question, ok := quiz.Question(questionID)
	if !ok {
		return domain.Attempt{}, domain.ErrQuestionNotFound
	}
	if err := domain.ValidateAnswer(question, answer); err != nil {
		return domain.Attempt{}, err
	}
	return s.store.SaveAnswer(ctx, attemptID, domain.AttemptAnswer{QuestionID: questionID, Answer: answer})
}

// SubmitAttempt scores and completes an attempt. It is idempotent: when the attempt was
// already completed (a timer and a user racing, or a retry) the stored result is returned
// and nothing is counted twice.
func (s *AttemptService) SubmitAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	switch attempt.Status {
	case domain.AttemptCompleted:
		return attempt, nil
	case domain.AttemptAbandoned:
		return domain.Attempt{}, domain.ErrAttemptNotInProgress
	}

	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.Attempt{}, err
	}

	now := s.now().UTC()
	scored := scoring.Score(attempt, quiz)
	scored.Status = domain.AttemptCompleted
	scored.CompletedAt = &now
	scored.TimeSpent = int(now.Sub(attempt.StartedAt) / time.Second)

	var perf domain.Performance
	stored, applied, err := s.store.CompleteAttempt(ctx, scored, func(prev *domain.Performance) domain.Performance {
		perf = FoldPerformance(prev, scored, quiz)
		return perf
	})
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("complete attempt: %w", err)
	}
	if !applied {
		if stored.Status == domain.AttemptCompleted {
			return stored, nil
		}
		return domain.Attempt{}, domain.ErrAttemptNotInProgress
	}

	log.Info().
		Str("quizId", stored.QuizID).
		Str("attemptId", stored.ID).
		Str("userId", stored.UserID).
		Int("score", stored.Score).
		Int("totalPossibleScore", stored.TotalPossibleScore).
		Msg("attempt submitted")
	s.boards.publish(perf)
	return stored, nil
}

// AbandonAttempt closes an in-progress attempt without scoring it.
func (s *AttemptService) AbandonAttempt(ctx context.Context, attemptID string, user domain.Identity) (domain.Attempt, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.UserID != user.ID {
		return domain.Attempt{}, domain.ErrNotAttemptOwner
	}
	stored, applied, err := s.store.AbandonAttempt(ctx, attemptID, s.now().UTC())
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("abandon attempt: %w", err)
	}
	if !applied {
		return domain.Attempt{}, domain.ErrAttemptNotInProgress
	}
	return stored, nil
}

// GetAttempt returns an attempt to its owner or to staff. Owners of completed attempts on
// quizzes without review only see their total.
func (s *AttemptService) GetAttempt(ctx context.Context, attemptID string, viewer domain.Identity) (domain.Attempt, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if viewer.IsStaff() {
		return attempt, nil
	}
	if attempt.UserID != viewer.ID {
		return domain.Attempt{}, domain.ErrNotAttemptOwner
	}
	if attempt.Status != domain.AttemptCompleted {
		return attempt, nil
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if !quiz.AllowReview {
		return attempt.Redacted(), nil
	}
	return attempt, nil
}

// ListAttempts lists attempts for staff views.
func (s *AttemptService) ListAttempts(ctx context.Context, filter domain.AttemptFilter) ([]domain.Attempt, error) {
	return s.store.ListAttempts(ctx, filter)
}

// ExpireOverdue closes in-progress attempts whose time limit (plus grace) has passed,
// either by submitting them or by abandoning them, and returns how many it closed.
func (s *AttemptService) ExpireOverdue(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.grace)
	overdue, err := s.store.ListOverdue(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list overdue attempts: %w", err)
	}
	closed := 0
	var errs []error
	for _, attempt := range overdue {
		if err := s.expire(ctx, attempt); err != nil {
			log.Warn().Err(err).Str("attemptId", attempt.ID).Msg("expire attempt failed")
			errs = append(errs, err)
			continue
		}
		closed++
	}
	return closed, errors.Join(errs...)
}

// RefreshUserName rewrites the user name snapshot on attempts and performance rows.
func (s *AttemptService) RefreshUserName(ctx context.Context, userID, userName string) (int, error) {
	if userName == "" {
		return 0, &domain.ValidationError{Field: "name", Reason: "is required"}
	}
	return s.store.RenameUser(ctx, userID, userName)
}

func (s *AttemptService) expire(ctx context.Context, attempt domain.Attempt) error {
	if s.policy == ExpireAbandon {
		_, _, err := s.store.AbandonAttempt(ctx, attempt.ID, s.now().UTC())
		return err
	}
	_, err := s.SubmitAttempt(ctx, attempt.ID)
	if errors.Is(err, domain.ErrAttemptNotInProgress) {
		return nil
	}
	return err
}

func (s *AttemptService) overdue(attempt domain.Attempt, now time.Time) bool {
	return attempt.ExpiresAt != nil && now.After(attempt.ExpiresAt.Add(s.grace))
}

// QuestionsFor returns the quiz's questions in the attempt's presentation order without
// answer keys.
func QuestionsFor(attempt domain.Attempt, quiz domain.Quiz) []domain.Question {
	questions := make([]domain.Question, 0, len(quiz.Questions))
	seen := make(map[string]struct{}, len(quiz.Questions))
	for _, id := range attempt.QuestionOrder {
		if q, ok := quiz.Question(id); ok {
			if _, dup := seen[id]; dup {
				continue
			}
			questions = append(questions, q.Public())
			seen[id] = struct{}{}
		}
	}
	for _, q := range quiz.Questions {
		if _, ok := seen[q.ID]; !ok {
			questions = append(questions, q.Public())
		}
	}
	return questions
}
