package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"campus-quiz-service/internal/app"
	"campus-quiz-service/internal/domain"
	"campus-quiz-service/internal/infra/memory"
)

var (
	author  = domain.Identity{ID: "prof-1", Name: "Prof. Oak", Role: domain.RoleFaculty}
	alice   = domain.Identity{ID: "u1", Name: "Alice", Role: domain.RoleStudent}
	bob     = domain.Identity{ID: "u2", Name: "Bob", Role: domain.RoleStudent}
	startAt = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store    *memory.Store
	catalog  *app.CatalogService
	attempts *app.AttemptService
	reports  *app.ReportService
	boards   *app.ScoreboardService
	clock    *testClock
}

func newFixture(t *testing.T, opts app.AttemptOptions) *fixture {
	t.Helper()
	clock := &testClock{now: startAt}
	store := memory.NewStore()
	// No TTL: every read goes to the store.
	quizzes := memory.NewQuizRepository(store, 0)
	courses := memory.NewStaticCourseDirectory(map[string]string{"math-101": "Algebra I"})
	boards := app.NewScoreboardService(memory.NewScoreboardStore(), quizzes, store)

	if opts.Now == nil {
		opts.Now = clock.Now
	}
	if opts.Shuffle == nil {
		opts.Shuffle = func([]string) {}
	}
	return &fixture{
		store:    store,
		catalog:  app.NewCatalogServiceWithClock(store, quizzes, courses, clock.Now),
		attempts: app.NewAttemptService(store, quizzes, boards, opts),
		reports:  app.NewReportService(quizzes, store, store),
		boards:   boards,
		clock:    clock,
	}
}

// sampleDefinition has three questions worth 2, 4 and 4 points.
func sampleDefinition() domain.Quiz {
	return domain.Quiz{
		Title:       "Capitals and arithmetic",
		CourseID:    "math-101",
		Status:      domain.StatusPublished,
		AllowReview: true,
		Questions: []domain.Question{
			{ID: "q1", Prompt: "2 + 2?", Kind: domain.KindMultipleChoice, Options: []string{"3", "4", "5"}, CorrectAnswer: domain.Single("4"), Points: 2},
			{ID: "q2", Prompt: "The earth is round.", Kind: domain.KindTrueFalse, CorrectAnswer: domain.Single("true"), Points: 4},
			{ID: "q3", Prompt: "Capital of France?", Kind: domain.KindShortAnswer, CorrectAnswer: domain.Single("Paris"), Points: 4, Explanation: "Paris has been the capital since 987."},
		},
	}
}

func (f *fixture) createQuiz(t *testing.T, mutate func(*domain.Quiz)) domain.Quiz {
	t.Helper()
	def := sampleDefinition()
	if mutate != nil {
		mutate(&def)
	}
	quiz, err := f.catalog.CreateQuiz(context.Background(), author, def)
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	return quiz
}

func (f *fixture) start(t *testing.T, quizID string, user domain.Identity) domain.Attempt {
	t.Helper()
	res, err := f.attempts.StartAttempt(context.Background(), quizID, user)
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	return res.Attempt
}

func (f *fixture) answer(t *testing.T, attemptID string, user domain.Identity, questionID, value string) {
	t.Helper()
	if _, err := f.attempts.RecordAnswer(context.Background(), attemptID, user, questionID, domain.Single(value)); err != nil {
		t.Fatalf("record answer %s: %v", questionID, err)
	}
}

// takeQuiz starts, answers and submits one attempt.
func (f *fixture) takeQuiz(t *testing.T, quizID string, user domain.Identity, answers map[string]string) domain.Attempt {
	t.Helper()
	attempt := f.start(t, quizID, user)
	for qid, value := range answers {
		f.answer(t, attempt.ID, user, qid, value)
	}
	f.clock.Advance(time.Minute)
	done, err := f.attempts.SubmitAttempt(context.Background(), attempt.ID)
	if err != nil {
		t.Fatalf("submit attempt: %v", err)
	}
	return done
}
