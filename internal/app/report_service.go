package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"campus-quiz-service/internal/domain"
)

// FoldPerformance adds one completed attempt to a performance row. prev is nil for the
// first completion of (user, quiz).
func FoldPerformance(prev *domain.Performance, attempt domain.Attempt, quiz domain.Quiz) domain.Performance {
	completedAt := finishedAt(attempt)

	if prev == nil {
		return domain.Performance{
			UserID:             attempt.UserID,
			UserName:           attempt.UserName,
			QuizID:             attempt.QuizID,
			QuizTitle:          quiz.Title,
			CourseName:         quiz.CourseName,
			BestScore:          attempt.Score,
			TotalPossibleScore: attempt.TotalPossibleScore,
			Attempts:           1,
			AverageScore:       float64(attempt.Score),
			LastAttemptDate:    completedAt,
			BestScoreDate:      completedAt,
		}
	}

	next := *prev
	next.Attempts++
	next.AverageScore = (prev.AverageScore*float64(prev.Attempts) + float64(attempt.Score)) / float64(next.Attempts)
	if attempt.Score > next.BestScore {
		next.BestScore = attempt.Score
		next.BestScoreDate = completedAt
	}
	next.UserName = attempt.UserName
	next.QuizTitle = quiz.Title
	next.CourseName = quiz.CourseName
	next.TotalPossibleScore = attempt.TotalPossibleScore
	next.LastAttemptDate = completedAt
	return next
}

// BuildPerformance replays completed attempts in completion order. ok is false when there are none.
func BuildPerformance(attempts []domain.Attempt, quiz domain.Quiz) (perf domain.Performance, ok bool) {
	var row *domain.Performance
	for _, attempt := range sortByCompletion(attempts) {
		if attempt.Status != domain.AttemptCompleted {
			continue
		}
		next := FoldPerformance(row, attempt, quiz)
		row = &next
	}
	if row == nil {
		return domain.Performance{}, false
	}
	return *row, true
}

func sortByCompletion(attempts []domain.Attempt) []domain.Attempt {
	sorted := append([]domain.Attempt(nil), attempts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return finishedAt(sorted[i]).Before(finishedAt(sorted[j]))
	})
	return sorted
}

func finishedAt(a domain.Attempt) time.Time {
	if a.CompletedAt != nil {
		return *a.CompletedAt
	}
	return a.StartedAt
}

// ComputeAnalytics derives cohort statistics from attempt history only. Attempts that are
// not completed are ignored. Scores are raw points.
func ComputeAnalytics(quiz domain.Quiz, attempts []domain.Attempt, now time.Time) domain.QuizAnalytics {
	analytics := domain.QuizAnalytics{
		QuizID:             quiz.ID,
		TotalPossibleScore: quiz.TotalPoints,
		ScoreDistribution:  emptyBuckets(),
		GeneratedAt:        now,
	}

	perQuestion := make(map[string]*domain.QuestionPerformance, len(quiz.Questions))
	pointSums := make(map[string]int, len(quiz.Questions))
	order := make([]string, 0, len(quiz.Questions))
	for _, q := range quiz.Questions {
		perQuestion[q.ID] = &domain.QuestionPerformance{QuestionID: q.ID, Prompt: q.Prompt}
		order = append(order, q.ID)
	}

	var scoreSum, timeSum int
	for _, attempt := range attempts {
		if attempt.Status != domain.AttemptCompleted {
			continue
		}
		analytics.TotalAttempts++
		scoreSum += attempt.Score
		timeSum += attempt.TimeSpent
		if analytics.TotalAttempts == 1 || attempt.Score > analytics.HighestScore {
			analytics.HighestScore = attempt.Score
		}
		if analytics.TotalAttempts == 1 || attempt.Score < analytics.LowestScore {
			analytics.LowestScore = attempt.Score
		}
		possible := attempt.TotalPossibleScore
		if possible <= 0 {
			possible = quiz.TotalPoints
		}
		analytics.ScoreDistribution[bucketIndex(attempt.Score, possible)].Count++

		for _, qid := range order {
			stats := perQuestion[qid]
			answer, ok := attempt.Answer(qid)
			switch {
			case !ok || answer.Answer.IsZero():
				stats.Incorrect++
				stats.Unanswered++
			case answer.IsCorrect != nil && *answer.IsCorrect:
				stats.Correct++
			default:
				stats.Incorrect++
			}
			if ok && answer.PointsEarned != nil {
				pointSums[qid] += *answer.PointsEarned
			}
		}
	}

	if analytics.TotalAttempts > 0 {
		n := float64(analytics.TotalAttempts)
		analytics.AverageScore = float64(scoreSum) / n
		analytics.AverageTimeSpent = float64(timeSum) / n
	}
	analytics.QuestionPerformance = make([]domain.QuestionPerformance, 0, len(order))
	for _, qid := range order {
		stats := *perQuestion[qid]
		if analytics.TotalAttempts > 0 {
			stats.AveragePoints = float64(pointSums[qid]) / float64(analytics.TotalAttempts)
		}
		analytics.QuestionPerformance = append(analytics.QuestionPerformance, stats)
	}
	return analytics
}

func emptyBuckets() []domain.ScoreBucket {
	buckets := make([]domain.ScoreBucket, 10)
	for i := range buckets {
		low := i * 10
		high := low + 9
		if i == 9 {
			high = 100
		}
		buckets[i] = domain.ScoreBucket{Label: fmt.Sprintf("%d-%d%%", low, high), MinPercent: low, MaxPercent: high}
	}
	return buckets
}

func bucketIndex(score, possible int) int {
	if possible <= 0 {
		return 0
	}
	idx := score * 10 / possible
	if idx > 9 {
		idx = 9
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// ReportService answers performance and analytics queries.
type ReportService struct {
	quizzes  QuizRepository
	attempts AttemptStore
	perf     PerformanceStore
	now      func() time.Time
}

func NewReportService(quizzes QuizRepository, attempts AttemptStore, perf PerformanceStore) *ReportService {
	return &ReportService{quizzes: quizzes, attempts: attempts, perf: perf, now: time.Now}
}

// GetPerformance returns the row for (user, quiz) or ErrPerformanceNotFound.
func (s *ReportService) GetPerformance(ctx context.Context, userID, quizID string) (domain.Performance, error) {
	return s.perf.GetPerformance(ctx, userID, quizID)
}

// ListPerformance returns every row for a user.
func (s *ReportService) ListPerformance(ctx context.Context, userID string) ([]domain.Performance, error) {
	return s.perf.ListPerformance(ctx, domain.PerformanceFilter{UserID: userID})
}

// RebuildPerformance recomputes a row from the attempt history and overwrites the stored one.
func (s *ReportService) RebuildPerformance(ctx context.Context, userID, quizID string) (domain.Performance, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Performance{}, err
	}
	attempts, err := s.attempts.ListAttempts(ctx, domain.AttemptFilter{QuizID: quizID, UserID: userID, Status: domain.AttemptCompleted})
	if err != nil {
		return domain.Performance{}, fmt.Errorf("list attempts: %w", err)
	}
	perf, ok := BuildPerformance(attempts, quiz)
	if !ok {
		return domain.Performance{}, domain.ErrPerformanceNotFound
	}
	if err := s.perf.PutPerformance(ctx, perf); err != nil {
		return domain.Performance{}, fmt.Errorf("store performance: %w", err)
	}
	return perf, nil
}

// GetAnalytics computes cohort analytics for a quiz from its completed attempts.
func (s *ReportService) GetAnalytics(ctx context.Context, quizID string) (domain.QuizAnalytics, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizAnalytics{}, err
	}
	attempts, err := s.attempts.ListAttempts(ctx, domain.AttemptFilter{QuizID: quizID, Status: domain.AttemptCompleted})
	if err != nil {
		return domain.QuizAnalytics{}, fmt.Errorf("list attempts: %w", err)
	}
	return ComputeAnalytics(quiz, attempts, s.now().UTC()), nil
}
