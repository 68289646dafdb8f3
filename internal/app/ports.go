package app

import (
	"context"
	"time"

	"campus-quiz-service/internal/domain"
)

// QuizStore persists quiz definitions.
type QuizStore interface {
	CreateQuiz(ctx context.Context, quiz domain.Quiz) error
	// UpdateQuiz replaces a stored quiz and refreshes the quiz title snapshot on performance rows.
	UpdateQuiz(ctx context.Context, quiz domain.Quiz) error
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListQuizzes(ctx context.Context, filter domain.QuizFilter) ([]domain.Quiz, error)
	// RenameCourse rewrites the course name snapshot on quizzes and performance rows.
	RenameCourse(ctx context.Context, courseID, courseName string) (int, error)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	Invalidate(ctx context.Context, quizID string)
}

// PerformanceFold computes the next performance row from the previous one (nil on first completion).
type PerformanceFold func(prev *domain.Performance) domain.Performance

// AttemptStore persists attempts. Implementations own the single in-progress attempt per
// (user, quiz) invariant and the completion compare-and-set.
type AttemptStore interface {
	// StartAttempt inserts attempt unless an in-progress attempt already exists for the same
	// user and quiz, in which case that attempt is returned and started is false.
	StartAttempt(ctx context.Context, attempt domain.Attempt) (stored domain.Attempt, started bool, err error)
	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	// SaveAnswer upserts an answer on an in-progress attempt.
	SaveAnswer(ctx context.Context, attemptID string, answer domain.AttemptAnswer) (domain.Attempt, error)
	ListAttempts(ctx context.Context, filter domain.AttemptFilter) ([]domain.Attempt, error)
	CountCompleted(ctx context.Context, userID, quizID string) (int, error)
	// ListOverdue returns in-progress attempts whose expiry is before cutoff.
	ListOverdue(ctx context.Context, cutoff time.Time) ([]domain.Attempt, error)
	// CompleteAttempt atomically moves an in-progress attempt to completed, storing the scored
	// fields and applying fold to the (user, quiz) performance row. When the stored attempt is
	// no longer in progress it is returned unchanged with applied=false.
	CompleteAttempt(ctx context.Context, scored domain.Attempt, fold PerformanceFold) (stored domain.Attempt, applied bool, err error)
	// AbandonAttempt moves an in-progress attempt to abandoned.
	AbandonAttempt(ctx context.Context, attemptID string, at time.Time) (stored domain.Attempt, applied bool, err error)
	// RenameUser rewrites the user name snapshot on attempts and performance rows.
	RenameUser(ctx context.Context, userID, userName string) (int, error)
}

// PerformanceStore reads and overwrites derived performance rows.
type PerformanceStore interface {
	GetPerformance(ctx context.Context, userID, quizID string) (domain.Performance, error)
	ListPerformance(ctx context.Context, filter domain.PerformanceFilter) ([]domain.Performance, error)
	PutPerformance(ctx context.Context, perf domain.Performance) error
}

// Store is the full persistence surface of the quiz core.
type Store interface {
	QuizStore
	AttemptStore
	PerformanceStore
	Close() error
}

// CourseDirectory resolves course names for denormalization.
type CourseDirectory interface {
	CourseName(ctx context.Context, courseID string) (string, error)
}

// ScoreboardRepository abstracts where live scoreboards are kept (in-memory, Redis, etc).
type ScoreboardRepository interface {
	GetOrCreate(quizID string) (board *Scoreboard, created bool)
	Get(quizID string) (*Scoreboard, bool)
	DeleteIfIdle(quizID string)
}
