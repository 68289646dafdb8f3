package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"campus-quiz-service/internal/app"
	"campus-quiz-service/internal/domain"
)

// Store is an in-memory implementation of app.Store. One mutex serializes every write,
// which makes the completion compare-and-set and the performance fold atomic.
type Store struct {
	mu          sync.RWMutex
	quizzes     map[string]domain.Quiz
	attempts    map[string]domain.Attempt
	inProgress  map[string]string // userID|quizID -> attemptID
	performance map[string]domain.Performance
}

func NewStore() *Store {
	return &Store{
		quizzes:     make(map[string]domain.Quiz),
		attempts:    make(map[string]domain.Attempt),
		inProgress:  make(map[string]string),
		performance: make(map[string]domain.Performance),
	}
}

func pairKey(userID, quizID string) string {
	return userID + "|" + quizID
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = cloneQuiz(quiz)
	return nil
}

func (s *Store) UpdateQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[quiz.ID]; !ok {
		return domain.ErrQuizNotFound
	}
	s.quizzes[quiz.ID] = cloneQuiz(quiz)
	for key, perf := range s.performance {
		if perf.QuizID == quiz.ID {
			perf.QuizTitle = quiz.Title
			perf.CourseName = quiz.CourseName
			s.performance[key] = perf
		}
	}
	return nil
}

// LoadQuiz satisfies QuizLoader so the store can back the quiz caches.
func (s *Store) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return cloneQuiz(quiz), nil
}

func (s *Store) ListQuizzes(_ context.Context, filter domain.QuizFilter) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Quiz, 0, len(s.quizzes))
	for _, quiz := range s.quizzes {
		if filter.Match(quiz) {
			out = append(out, cloneQuiz(quiz))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) RenameCourse(_ context.Context, courseID, courseName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	renamed := make(map[string]struct{})
	for id, quiz := range s.quizzes {
		if quiz.CourseID != courseID {
			continue
		}
		quiz.CourseName = courseName
		s.quizzes[id] = quiz
		renamed[id] = struct{}{}
		n++
	}
	for key, perf := range s.performance {
		if _, ok := renamed[perf.QuizID]; ok {
			perf.CourseName = courseName
			s.performance[key] = perf
		}
	}
	return n, nil
}

func (s *Store) StartAttempt(_ context.Context, attempt domain.Attempt) (domain.Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(attempt.UserID, attempt.QuizID)
	if id, ok := s.inProgress[key]; ok {
		return cloneAttempt(s.attempts[id]), false, nil
	}
	s.attempts[attempt.ID] = cloneAttempt(attempt)
	s.inProgress[key] = attempt.ID
	return cloneAttempt(attempt), true, nil
}

func (s *Store) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return cloneAttempt(attempt), nil
}

func (s *Store) SaveAnswer(_ context.Context, attemptID string, answer domain.AttemptAnswer) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if attempt.Status != domain.AttemptInProgress {
		return domain.Attempt{}, domain.ErrAttemptNotInProgress
	}
	attempt = attempt.WithAnswer(answer)
	s.attempts[attemptID] = attempt
	return cloneAttempt(attempt), nil
}

func (s *Store) ListAttempts(_ context.Context, filter domain.AttemptFilter) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Attempt, 0)
	for _, attempt := range s.attempts {
		if filter.Match(attempt) {
			out = append(out, cloneAttempt(attempt))
		}
	}
	sortAttempts(out)
	return out, nil
}

func (s *Store) CountCompleted(_ context.Context, userID, quizID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, attempt := range s.attempts {
		if attempt.UserID == userID && attempt.QuizID == quizID && attempt.Status == domain.AttemptCompleted {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListOverdue(_ context.Context, cutoff time.Time) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Attempt, 0)
	for _, id := range s.inProgress {
		attempt := s.attempts[id]
		if attempt.ExpiresAt != nil && attempt.ExpiresAt.Before(cutoff) {
			out = append(out, cloneAttempt(attempt))
		}
	}
	sortAttempts(out)
	return out, nil
}

func (s *Store) CompleteAttempt(_ context.Context, scored domain.Attempt, fold app.PerformanceFold) (domain.Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.attempts[scored.ID]
	if !ok {
		return domain.Attempt{}, false, domain.ErrAttemptNotFound
	}
	if current.Status != domain.AttemptInProgress {
		return cloneAttempt(current), false, nil
	}

	s.attempts[scored.ID] = cloneAttempt(scored)
	delete(s.inProgress, pairKey(current.UserID, current.QuizID))

	key := pairKey(current.UserID, current.QuizID)
	var prev *domain.Performance
	if row, ok := s.performance[key]; ok {
		prev = &row
	}
	s.performance[key] = fold(prev)
	return cloneAttempt(scored), true, nil
}

func (s *Store) AbandonAttempt(_ context.Context, attemptID string, at time.Time) (domain.Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, false, domain.ErrAttemptNotFound
	}
	if attempt.Status != domain.AttemptInProgress {
		return cloneAttempt(attempt), false, nil
	}
	attempt.Status = domain.AttemptAbandoned
	attempt.CompletedAt = &at
	attempt.TimeSpent = int(at.Sub(attempt.StartedAt) / time.Second)
	s.attempts[attemptID] = attempt
	delete(s.inProgress, pairKey(attempt.UserID, attempt.QuizID))
	return cloneAttempt(attempt), true, nil
}

func (s *Store) RenameUser(_ context.Context, userID, userName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, attempt := range s.attempts {
		if attempt.UserID == userID {
			attempt.UserName = userName
			s.attempts[id] = attempt
			n++
		}
	}
	for key, perf := range s.performance {
		if perf.UserID == userID {
			perf.UserName = userName
			s.performance[key] = perf
		}
	}
	return n, nil
}

func (s *Store) GetPerformance(_ context.Context, userID, quizID string) (domain.Performance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	perf, ok := s.performance[pairKey(userID, quizID)]
	if !ok {
		return domain.Performance{}, domain.ErrPerformanceNotFound
	}
	return perf, nil
}

func (s *Store) ListPerformance(_ context.Context, filter domain.PerformanceFilter) ([]domain.Performance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Performance, 0)
	for _, perf := range s.performance {
		if filter.Match(perf) {
			out = append(out, perf)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QuizID != out[j].QuizID {
			return out[i].QuizID < out[j].QuizID
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s *Store) PutPerformance(_ context.Context, perf domain.Performance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.performance[pairKey(perf.UserID, perf.QuizID)] = perf
	return nil
}

func sortAttempts(attempts []domain.Attempt) {
	sort.Slice(attempts, func(i, j int) bool {
		if !attempts[i].StartedAt.Equal(attempts[j].StartedAt) {
			return attempts[i].StartedAt.Before(attempts[j].StartedAt)
		}
		return attempts[i].ID < attempts[j].ID
	})
}

// Stored values are copied on the way in and out so callers cannot alias internal slices.
func cloneQuiz(q domain.Quiz) domain.Quiz {
	questions := make([]domain.Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]string(nil), question.Options...)
		question.CorrectAnswer.Values = append([]string(nil), question.CorrectAnswer.Values...)
		questions[i] = question
	}
	q.Questions = questions
	return q
}

func cloneAttempt(a domain.Attempt) domain.Attempt {
	a.QuestionOrder = append([]string(nil), a.QuestionOrder...)
	answers := make([]domain.AttemptAnswer, len(a.Answers))
	copy(answers, a.Answers)
	a.Answers = answers
	return a
}
