package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"campus-quiz-service/internal/domain"
	"github.com/google/uuid"
)

// DefaultQuizTitle replaces blank titles on create.
const DefaultQuizTitle = "Untitled Quiz"

// CatalogService owns quiz definitions.
type CatalogService struct {
	store   QuizStore
	quizzes QuizRepository
	courses CourseDirectory
	now     func() time.Time
	// matching is stamped on new quizzes that do not pick a policy.
	matching domain.MatchPolicy
}

func NewCatalogService(store QuizStore, quizzes QuizRepository, courses CourseDirectory) *CatalogService {
	return &CatalogService{store: store, quizzes: quizzes, courses: courses, now: time.Now}
}

// SetDefaultMatching sets the policy given to quizzes created without one.
func (s *CatalogService) SetDefaultMatching(policy domain.MatchPolicy) {
	s.matching = policy
}

// NewCatalogServiceWithClock is test-only for deterministic timestamps.
func NewCatalogServiceWithClock(store QuizStore, quizzes QuizRepository, courses CourseDirectory, now func() time.Time) *CatalogService {
	s := NewCatalogService(store, quizzes, courses)
	s.now = now
	return s
}

// CreateQuiz validates a definition, fills derived fields and stores it.
func (s *CatalogService) CreateQuiz(ctx context.Context, author domain.Identity, def domain.Quiz) (domain.Quiz, error) {
	quiz := def
	quiz.Title = strings.TrimSpace(quiz.Title)
	if quiz.Title == "" {
		quiz.Title = DefaultQuizTitle
	}
	if quiz.Status == "" {
		quiz.Status = domain.StatusDraft
	}
	if quiz.Matching == "" {
		quiz.Matching = s.matching
	}
	quiz.Questions = assignQuestionIDs(quiz.Questions)
	if err := domain.ValidateQuiz(quiz); err != nil {
		return domain.Quiz{}, err
	}

	courseName, err := s.resolveCourse(ctx, quiz.CourseID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if courseName != "" {
		quiz.CourseName = courseName
	}

	now := s.now().UTC()
	quiz.ID = uuid.NewString()
	quiz.CreatedBy = author.ID
	quiz.TotalPoints = quiz.SumPoints()
	quiz.CreatedAt = now
	quiz.UpdatedAt = now

	if err := s.store.CreateQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("create quiz: %w", err)
	}
	return quiz, nil
}

// UpdateQuiz replaces a stored definition. Identity and authorship never change.
func (s *CatalogService) UpdateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	stored, err := s.store.LoadQuiz(ctx, quiz.ID)
	if err != nil {
		return domain.Quiz{}, err
	}

	quiz.ID = stored.ID
	quiz.CreatedBy = stored.CreatedBy
	quiz.CreatedAt = stored.CreatedAt
	quiz.Title = strings.TrimSpace(quiz.Title)
	if quiz.Title == "" {
		quiz.Title = stored.Title
	}
	if quiz.Status == "" {
		quiz.Status = stored.Status
	}
	if stored.Status == domain.StatusArchived && quiz.Status != domain.StatusArchived {
		return domain.Quiz{}, domain.ErrInvalidTransition
	}
	if quiz.CourseID != stored.CourseID {
		name, err := s.resolveCourse(ctx, quiz.CourseID)
		if err != nil {
			return domain.Quiz{}, err
		}
		quiz.CourseName = name
	} else if quiz.CourseName == "" {
		quiz.CourseName = stored.CourseName
	}
	quiz.Questions = assignQuestionIDs(quiz.Questions)
	if err := domain.ValidateQuiz(quiz); err != nil {
		return domain.Quiz{}, err
	}
	quiz.TotalPoints = quiz.SumPoints()
	quiz.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("update quiz: %w", err)
	}
	s.quizzes.Invalidate(ctx, quiz.ID)
	return quiz, nil
}

// GetQuiz returns a definition or ErrQuizNotFound.
func (s *CatalogService) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if strings.TrimSpace(quizID) == "" {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return s.quizzes.GetQuiz(ctx, quizID)
}

// ListQuizzes filters the catalog by course, status and availability.
func (s *CatalogService) ListQuizzes(ctx context.Context, filter domain.QuizFilter) ([]domain.Quiz, error) {
	return s.store.ListQuizzes(ctx, filter)
}

// SetStatus moves a quiz between draft, published and archived.
func (s *CatalogService) SetStatus(ctx context.Context, quizID string, status domain.QuizStatus) (domain.Quiz, error) {
	if !status.Valid() {
		return domain.Quiz{}, &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}
	quiz, err := s.store.LoadQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if quiz.Status == status {
		return quiz, nil
	}
	if quiz.Status == domain.StatusArchived {
		return domain.Quiz{}, domain.ErrInvalidTransition
	}

	quiz.Status = status
	if err := domain.ValidateQuiz(quiz); err != nil {
		return domain.Quiz{}, err
	}
	quiz.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("update quiz status: %w", err)
	}
	s.quizzes.Invalidate(ctx, quiz.ID)
	return quiz, nil
}

// RefreshCourseName re-reads a course name and rewrites every snapshot of it.
func (s *CatalogService) RefreshCourseName(ctx context.Context, courseID string) (int, error) {
	name, err := s.resolveCourse(ctx, courseID)
	if err != nil {
		return 0, err
	}
	if name == "" {
		return 0, &domain.ValidationError{Field: "courseId", Reason: "no course directory configured"}
	}
	quizzes, err := s.store.ListQuizzes(ctx, domain.QuizFilter{CourseID: courseID})
	if err != nil {
		return 0, err
	}
	n, err := s.store.RenameCourse(ctx, courseID, name)
	if err != nil {
		return 0, fmt.Errorf("rename course: %w", err)
	}
	for _, quiz := range quizzes {
		s.quizzes.Invalidate(ctx, quiz.ID)
	}
	return n, nil
}

func (s *CatalogService) resolveCourse(ctx context.Context, courseID string) (string, error) {
	if courseID == "" || s.courses == nil {
		return "", nil
	}
	name, err := s.courses.CourseName(ctx, courseID)
	if errors.Is(err, ErrCourseNotFound) {
		return "", &domain.ValidationError{Field: "courseId", Reason: "unknown course"}
	}
	return name, err
}

// ErrCourseNotFound is returned by course directories for unknown ids.
var ErrCourseNotFound = errors.New("course not found")

func assignQuestionIDs(questions []domain.Question) []domain.Question {
	out := make([]domain.Question, len(questions))
	for i, q := range questions {
		if strings.TrimSpace(q.ID) == "" {
			q.ID = uuid.NewString()
		}
		out[i] = q
	}
	return out
}
