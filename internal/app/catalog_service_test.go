package app_test

import (
	"context"
	"errors"
	"testing"

	"campus-quiz-service/internal/app"
	"campus-quiz-service/internal/domain"
)

func TestCreateQuizFillsDerivedFields(t *testing.T) {
	f := newFixture(t, app.AttemptOptions{})
	quiz := f.createQuiz(t, func(q *domain.Quiz) {
		q.Title = "   "
		q.Status = ""
		q.Questions[0].ID = ""
	})

	if quiz.ID == "" {
		t.Fatalf("expected generated id")
	}
	if quiz.Title != app.DefaultQuizTitle {
		t.Fatalf("expected default title, got %q", quiz.Title)
	}
	if quiz.Status != domain.StatusDraft {
		t.Fatalf("expected draft status, got %q", quiz.Status)
	}
	if quiz.Questions[0].ID == "" {
		t.Fatalf("expected generated question id")
	}
	if quiz.CourseName != "Algebra I" {
		t.Fatalf("expected course name snapshot, got %q", quiz.CourseName)
	}
	if quiz.TotalPoints != 10 {
		t.Fatalf("expected total points 10, got %d", quiz.TotalPoints)
	}
	if quiz.CreatedBy != author.ID || !quiz.CreatedAt.Equal(startAt) {
		t.Fatalf("unexpected authorship: %s at %s", quiz.CreatedBy, quiz.CreatedAt)
	}

	stored, err := f.catalog.GetQuiz(context.Background(), quiz.ID)
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if stored.Title != quiz.Title {
		t.Fatalf("expected stored quiz, got %+v", stored)
	}
}

func TestCreateQuizRejectsInvalidDefinitions(t *testing.T) {
	f := newFixture(t, app.AttemptOptions{})
	ctx := context.Background()

	def := sampleDefinition()
	def.Questions[0].CorrectAnswer = domain.Single("7")
	_, err := f.catalog.CreateQuiz(ctx, author, def)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "questions[0].correctAnswer" {
		t.Fatalf("expected correctAnswer validation error, got %v", err)
	}

	def = sampleDefinition()
	def.CourseID = "history-9"
	_, err = f.catalog.CreateQuiz(ctx, author, def)
	if !errors.As(err, &verr) || verr.Field != "courseId" {
		t.Fatalf("expected courseId validation error, got %v", err)
	}
}

func TestUpdateQuizKeepsAuthorship(t *testing.T) {
	f := newFixture(t, app.AttemptOptions{})
	ctx := context.Background()
	quiz := f.createQuiz(t, nil)

	edit := quiz
	edit.CreatedBy = "intruder"
	edit.Title = "Renamed"
	edit.Questions = edit.Questions[:2]
	updated, err := f.catalog.UpdateQuiz(ctx, edit)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.CreatedBy != author.ID {
		t.Fatalf("expected author to be preserved, got %q", updated.CreatedBy)
	}
	if updated.TotalPoints != 6 {
		t.Fatalf("expected recomputed total 6, got %d", updated.TotalPoints)
	}

	got, _ := f.catalog.GetQuiz(ctx, quiz.ID)
	if got.Title != "Renamed" {
		t.Fatalf("expected read-through of updated quiz, got %q", got.Title)
	}
}

func TestSetStatusTransitions(t *testing.T) {
	f := newFixture(t, app.AttemptOptions{})
	ctx := context.Background()

	empty := f.createQuiz(t, func(q *domain.Quiz) {
		q.Status = domain.StatusDraft
		q.Questions = nil
	})
	_, err := f.catalog.SetStatus(ctx, empty.ID, domain.StatusPublished)
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error publishing an empty quiz, got %v", err)
	}

	quiz := f.createQuiz(t, func(q *domain.Quiz) { q.Status = domain.StatusDraft })
	if _, err := f.catalog.SetStatus(ctx, quiz.ID, domain.StatusArchived); err != nil {
		t.Fatalf("archive: %v", err)
	}
	_, err = f.catalog.SetStatus(ctx, quiz.ID, domain.StatusPublished)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected archived to be terminal, got %v", err)
	}

	_, err = f.catalog.SetStatus(ctx, quiz.ID, "closed")
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
}

func TestListQuizzesFilters(t *testing.T) {
	f := newFixture(t, app.AttemptOptions{})
	ctx := context.Background()
	published := f.createQuiz(t, nil)
	f.createQuiz(t, func(q *domain.Quiz) { q.Status = domain.StatusDraft })

	quizzes, err := f.catalog.ListQuizzes(ctx, domain.QuizFilter{Status: domain.StatusPublished})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(quizzes) != 1 || quizzes[0].ID != published.ID {
		t.Fatalf("expected only the published quiz, got %+v", quizzes)
	}

	all, _ := f.catalog.ListQuizzes(ctx, domain.QuizFilter{CourseID: "math-101"})
	if len(all) != 2 {
		t.Fatalf("expected 2 quizzes in course, got %d", len(all))
	}
}

func TestRefreshCourseNameRewritesSnapshots(t *testing.T) {
	f := newFixture(t, app.AttemptOptions{})
	ctx := context.Background()
	quiz := f.createQuiz(t, nil)

	stale := quiz
	stale.CourseName = "Old name"
	if err := f.store.UpdateQuiz(ctx, stale); err != nil {
		t.Fatalf("seed stale name: %v", err)
	}

	n, err := f.catalog.RefreshCourseName(ctx, "math-101")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 quiz renamed, got %d", n)
	}
	got, _ := f.catalog.GetQuiz(ctx, quiz.ID)
	if got.CourseName != "Algebra I" {
		t.Fatalf("expected refreshed course name, got %q", got.CourseName)
	}
}
