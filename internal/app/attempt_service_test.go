package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"campus-quiz-service/internal/app"
	"campus-quiz-service/internal/domain"
)

func TestStartAttemptRequiresPublishedAvailableQuiz(t *testing.T) {
	f := newFixture(t, app.AttemptOptions{})
	ctx := context.Background()

	draft := f.createQuiz(t, func(q *domain.Quiz) { q.Status = domain.StatusDraft })
	if _, err := f.attempts.StartAttempt(ctx, draft.ID, alice); !errors.Is(err, domain.ErrQuizNotPublished) {
		t.Fatalf("expected not published, got %v", err)
	}

	opens := startAt.Add(time.Hour)
	later := f.createQuiz(t, func(q *domain.Quiz) { q.AvailableFrom = &opens })
	if _, err := f.attempts.StartAttempt(ctx, later.ID, alice); !errors.Is(err, domain.ErrQuizNotAvailable) {
		t.Fatalf("expected not available, got %v", err)
	}

	// The window is inclusive on both ends.
	f.clock.Advance(time.Hour)
	if _, err := f.attempts.StartAttempt(ctx, later.ID, alice); err != nil {
		t.Fatalf("expected start at window open, got %v", err)
	}

	if _, err := f.attempts.StartAttempt(ctx, "missing", alice); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func TestStartAttemptResumesInProgress(t *testing.T) {
	f := newFixture(t, app.AttemptOptions{})
	ctx := context.Background()
	quiz := f.createQuiz(t, nil)

	first, err := f.attempts.StartAttempt(ctx, quiz.ID, alice)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if first.Resumed {
		t.Fatalf("first start must not be a resume")
	}
	for _, q := range first.Questions {
		if !q.CorrectAnswer.IsZero() || q.Explanation != "" {
			t.Fatalf("answer key leaked to taker: %+v", q)
		}
	}

	second, err := f.attempts.StartAttempt(ctx, quiz.ID, alice)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if !second.Resumed || second.Attempt.ID != first.Attempt.ID {
		t.Fatalf("expected resume of %s, got %s (resumed=%v)", first.Attempt.ID, second.Attempt.ID, second.Resumed)
	}

	other, _ := f.attempts.StartAttempt(ctx, quiz.ID, bob)
	if other.Attempt.ID == first.Attempt.ID {
		t.Fatalf("attempts must be per user")
	}
}

func TestStartAttemptRandomizesOrder(t *testing.T) {
	reverse := func(ids []string) {
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
	}
	f := newFixture(t, app.AttemptOptions{Shuffle: reverse})
	quiz := f.createQuiz(t, func(q *domain.Quiz) { q.RandomizeQuestions = true })

	res, err := f.attempts.StartAttempt(context.Background(), quiz.ID, alice)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	want := []string{"q3", "q2", "q1"}
	for i, id := range want {
		if res.Attempt.QuestionOrder[i] != id || res.Questions[i].ID != id {
			t.Fatalf("expected order %v, got %v", want, res.Attempt.QuestionOrder)
		}
	}
}

func TestMaxAttemptsCountsCompletedOnly(t *testing.T) {
	f := newFixture(t, app.AttemptOptions{})
	ctx := context.Background()
	quiz := f.createQuiz(t, func(q *domain.Quiz) { q.MaxAttempts = 1 })

	abandoned := f.start(t, quiz.ID, alice)
	if _, err := f.attempts.AbandonAttempt(ctx, abandoned.ID, alice); err != nil {
		t.Fatalf("abandon: %v", err)
	}

	f.takeQuiz(t, quiz.ID, alice, map[string]string{"q1": "4"})

	if _, err := f.attempts.StartAttempt(ctx, quiz.ID, alice); !errors.Is(err, domain.ErrAttemptsExhausted) {
		t.Fatalf("expected attempts exhausted, got %v", err)
	}
}

func TestRecordAnswerChecks(t *testing.T) {
	f := newFixture(t, app.AttemptOptions{})
	ctx := context.Background()
	quiz := f.createQuiz(t, nil)
	attempt := f.start(t, quiz.ID, alice)

	if _, err := f.attempts.RecordAnswer(ctx, attempt.ID, bob, "q1", domain.Single("4")); !errors.Is(err, domain.ErrNotAttemptOwner) {
		t.Fatalf("expected ownership error, got %v", err)
	}
	if _, err := f.attempts.RecordAnswer(ctx, attempt.ID, alice, "q9", domain.Single("4")); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected unknown question, got %v", err)
	}
	if _, err := f.attempts.RecordAnswer(ctx, attempt.ID, alice, "q1", domain.AnswerValue{}); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error for empty answer, got %v", err)
	}

	f.answer(t, attempt.ID, alice, "q1", "3")
	updated, err := f.attempts.RecordAnswer(ctx, attempt.ID, alice, "q1", domain.Single("4"))
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if len(updated.Answers) != 1 || updated.Answers[0].Answer.Values[0] != "4" {
		t.Fatalf("expected single overwritten answer, got %+v", updated.Answers)
	}
	if updated.Answers[0].IsCorrect != nil {
		t.Fatalf("correctness must not be computed before submission")
	}
}

func TestRecordAnswerRejectsMalformedShapes(t *testing.T) {
	f := newFixture(t, app.AttemptOptions{})
	ctx := context.Background()
	quiz := f.createQuiz(t, nil)
	attempt := f.start(t, quiz.ID, alice)

	tests := []struct {
		name       string
		questionID string
		answer     domain.AnswerValue
	}{
		{"choice set of every option", "q1", domain.Set("3", "4", "5")},
		{"choice outside options", "q1", domain.Single("7")},
		{"true-false set", "q2", domain.Set("true", "false")},
		{"true-false other word", "q2", domain.Single("yes")},
		{"short answer blank", "q3", domain.Single("   ")},
		{"short answer set", "q3", domain.Set("Paris", "Rome", "Berlin")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.attempts.RecordAnswer(ctx, attempt.ID, alice, tt.questionID, tt.answer)
			if domain.KindOf(err) != domain.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	f.clock.Advance(time.Minute)
	done, err := f.attempts.SubmitAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if done.Score != 0 || len(done.Answers) != 0 {
		t.Fatalf("rejected answers must not be stored or scored, got %d with %+v", done.Score, done.Answers)
	}
}

func TestSubmitAttemptScores(t *testing.T) {
	f := newFixture(t, app.AttemptOptions{})
	quiz := f.createQuiz(t, nil)

	done := f.takeQuiz(t, quiz.ID, alice, map[string]string{"q1": "4", "q2": "false", "q3": "Paris"})
	if done.Status != domain.AttemptCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}
	if done.Score != 6 || done.TotalPossibleScore != 10 {
		t.Fatalf("expected 6/10, got %d/%d", done.Score, done.TotalPossibleScore)
	}
	if done.CompletedAt == nil || done.TimeSpent != 60 {
		t.Fatalf("expected completion after 60s, got %v %d", done.CompletedAt, done.TimeSpent)
	}
	if len(done.Answers) != 3 {
		t.Fatalf("expected one entry per question, got %d", len(done.Answers))
	}
	if *done.Answers[1].IsCorrect || *done.Answers[1].PointsEarned != 0 {
		t.Fatalf("expected q2 incorrect, got %+v", done.Answers[1])
	}
}

func TestSubmitAttemptIsIdempotentUnderRace(t *testing.T) {
	f := newFixture(t, app.AttemptOptions{})
	ctx := context.Background()
	quiz := f.createQuiz(t, nil)
	attempt := f.start(t, quiz.ID, alice)
	f.answer(t, attempt.ID, alice, "q1", "4")

	var wg sync.WaitGroup
	results := make([]domain.Attempt, 10)
	errs := make([]error, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.attempts.SubmitAttempt(ctx, attempt.ID)
		}(i)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("submit %d: %v", i, errs[i])
		}
		if results[i].Score != 2 || results[i].Status != domain.AttemptCompleted {
			t.Fatalf("submit %d returned %+v", i, results[i])
		}
	}
	perf, err := f.reports.GetPerformance(ctx, alice.ID, quiz.ID)
	if err != nil {
		t.Fatalf("performance: %v", err)
	}
	if perf.Attempts != 1 {
		t.Fatalf("expected the attempt counted once, got %d", perf.Attempts)
	}
}

func TestTimeUpThenManualSubmit(t *testing.T) {
	f := newFixture(t, app.AttemptOptions{})
	ctx := context.Background()
	quiz := f.createQuiz(t, func(q *domain.Quiz) { q.TimeLimit = 1 })
	attempt := f.start(t, quiz.ID, alice)
	if attempt.ExpiresAt == nil || !attempt.ExpiresAt.Equal(startAt.Add(time.Minute)) {
		t.Fatalf("expected expiry one minute after start, got %v", attempt.ExpiresAt)
	}
	f.answer(t, attempt.ID, alice, "q3", "Paris")

	f.clock.Advance(61 * time.Second)
	if _, err := f.attempts.RecordAnswer(ctx, attempt.ID, alice, "q1", domain.Single("4")); !errors.Is(err, domain.ErrAttemptNotInProgress) {
		t.Fatalf("expected late answer to be refused, got %v", err)
	}

	timer, err := f.attempts.SubmitAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("timer submit: %v", err)
	}
	manual, err := f.attempts.SubmitAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("manual submit: %v", err)
	}
	if timer.Score != 4 || manual.Score != timer.Score || !manual.CompletedAt.Equal(*timer.CompletedAt) {
		t.Fatalf("expected one stored result, got %+v and %+v", timer, manual)
	}
	perf, _ := f.reports.GetPerformance(ctx, alice.ID, quiz.ID)
	if perf.Attempts != 1 {
		t.Fatalf("expected one counted attempt, got %d", perf.Attempts)
	}
}

func TestAbandonAttempt(t *testing.T) {
	f := newFixture(t, app.AttemptOptions{})
	ctx := context.Background()
	quiz := f.createQuiz(t, nil)
	attempt := f.start(t, quiz.ID, alice)

	if _, err := f.attempts.AbandonAttempt(ctx, attempt.ID, bob); !errors.Is(err, domain.ErrNotAttemptOwner) {
		t.Fatalf("expected ownership error, got %v", err)
	}
	abandoned, err := f.attempts.AbandonAttempt(ctx, attempt.ID, alice)
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if abandoned.Status != domain.AttemptAbandoned {
		t.Fatalf("expected abandoned, got %s", abandoned.Status)
	}
	if _, err := f.attempts.SubmitAttempt(ctx, attempt.ID); !errors.Is(err, domain.ErrAttemptNotInProgress) {
		t.Fatalf("expected submit of abandoned attempt to fail, got %v", err)
	}
	if _, err := f.attempts.AbandonAttempt(ctx, attempt.ID, alice); !errors.Is(err, domain.ErrAttemptNotInProgress) {
		t.Fatalf("expected second abandon to fail, got %v", err)
	}
	if _, err := f.reports.GetPerformance(ctx, alice.ID, quiz.ID); !errors.Is(err, domain.ErrPerformanceNotFound) {
		t.Fatalf("abandoned attempts must not create performance, got %v", err)
	}
}

func TestGetAttemptReviewGate(t *testing.T) {
	f := newFixture(t, app.AttemptOptions{})
	ctx := context.Background()
	quiz := f.createQuiz(t, func(q *domain.Quiz) { q.AllowReview = false })
	done := f.takeQuiz(t, quiz.ID, alice, map[string]string{"q1": "4"})

	own, err := f.attempts.GetAttempt(ctx, done.ID, alice)
	if err != nil {
		t.Fatalf("owner view: %v", err)
	}
	if own.Score != 2 {
		t.Fatalf("expected total to stay visible, got %d", own.Score)
	}
	for _, a := range own.Answers {
		if a.IsCorrect != nil || a.PointsEarned != nil || a.Explanation != "" {
			t.Fatalf("expected per-question results hidden, got %+v", a)
		}
	}

	staff, _ := f.attempts.GetAttempt(ctx, done.ID, author)
	if staff.Answers[0].IsCorrect == nil {
		t.Fatalf("staff must see per-question results")
	}

	if _, err := f.attempts.GetAttempt(ctx, done.ID, bob); !errors.Is(err, domain.ErrNotAttemptOwner) {
		t.Fatalf("expected other students refused, got %v", err)
	}
}

func TestExpireOverdue(t *testing.T) {
	for _, tc := range []struct {
		policy app.ExpirePolicy
		want   domain.AttemptStatus
	}{
		{app.ExpireSubmit, domain.AttemptCompleted},
		{app.ExpireAbandon, domain.AttemptAbandoned},
	} {
		t.Run(string(tc.policy), func(t *testing.T) {
			f := newFixture(t, app.AttemptOptions{ExpirePolicy: tc.policy, Grace: 10 * time.Second})
			ctx := context.Background()
			quiz := f.createQuiz(t, func(q *domain.Quiz) { q.TimeLimit = 1 })
			attempt := f.start(t, quiz.ID, alice)

			f.clock.Advance(65 * time.Second)
			if n, err := f.attempts.ExpireOverdue(ctx); err != nil || n != 0 {
				t.Fatalf("expected grace to hold, got n=%d err=%v", n, err)
			}

			f.clock.Advance(10 * time.Second)
			n, err := f.attempts.ExpireOverdue(ctx)
			if err != nil || n != 1 {
				t.Fatalf("expected one expired attempt, got n=%d err=%v", n, err)
			}
			got, _ := f.store.GetAttempt(ctx, attempt.ID)
			if got.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got.Status)
			}
		})
	}
}

func TestStartAfterExpiryOpensNewAttempt(t *testing.T) {
	f := newFixture(t, app.AttemptOptions{})
	ctx := context.Background()
	quiz := f.createQuiz(t, func(q *domain.Quiz) { q.TimeLimit = 1 })
	first := f.start(t, quiz.ID, alice)

	f.clock.Advance(2 * time.Minute)
	res, err := f.attempts.StartAttempt(ctx, quiz.ID, alice)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Resumed || res.Attempt.ID == first.ID {
		t.Fatalf("expected a fresh attempt after expiry")
	}
	old, _ := f.store.GetAttempt(ctx, first.ID)
	if old.Status != domain.AttemptCompleted {
		t.Fatalf("expected expired attempt submitted, got %s", old.Status)
	}
}

func TestRefreshUserName(t *testing.T) {
	f := newFixture(t, app.AttemptOptions{})
	ctx := context.Background()
	quiz := f.createQuiz(t, nil)
	f.takeQuiz(t, quiz.ID, alice, map[string]string{"q1": "4"})

	if _, err := f.attempts.RefreshUserName(ctx, alice.ID, ""); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	n, err := f.attempts.RefreshUserName(ctx, alice.ID, "Alice Liddell")
	if err != nil || n != 1 {
		t.Fatalf("expected 1 renamed attempt, got n=%d err=%v", n, err)
	}
	perf, _ := f.reports.GetPerformance(ctx, alice.ID, quiz.ID)
	if perf.UserName != "Alice Liddell" {
		t.Fatalf("expected renamed performance row, got %q", perf.UserName)
	}
}
