package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"campus-quiz-service/internal/app"
	"campus-quiz-service/internal/domain"
	"campus-quiz-service/internal/infra/memory"
	"github.com/gin-gonic/gin"
)

var (
	faculty = domain.Identity{ID: "prof-1", Name: "Prof. Oak", Role: domain.RoleFaculty}
	admin   = domain.Identity{ID: "root", Name: "Admin", Role: domain.RoleAdmin}
	alice   = domain.Identity{ID: "u1", Name: "Alice", Role: domain.RoleStudent}
	bob     = domain.Identity{ID: "u2", Name: "Bob", Role: domain.RoleStudent}
)

type testEnv struct {
	router *gin.Engine
	ws     *WSHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	quizzes := memory.NewQuizRepository(store, 0)
	courses := memory.NewStaticCourseDirectory(map[string]string{"math-101": "Algebra I"})
	boards := app.NewScoreboardService(memory.NewScoreboardStore(), quizzes, store)
	attempts := app.NewAttemptService(store, quizzes, boards, app.AttemptOptions{Shuffle: func([]string) {}})
	catalog := app.NewCatalogService(store, quizzes, courses)
	reports := app.NewReportService(quizzes, store, store)

	ws := NewWSHandler(attempts, boards)
	return &testEnv{
		router: NewRouter(NewHandler(catalog, attempts, reports), ws, RouterConfig{}),
		ws:     ws,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, user *domain.Identity, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set(headerUserID, user.ID)
		req.Header.Set(headerUserName, user.Name)
		req.Header.Set(headerUserRole, string(user.Role))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

// quizBody is a published quiz worth 5 points with normalized matching.
func quizBody(mutate func(map[string]any)) map[string]any {
	body := map[string]any{
		"title":       "Warm-up",
		"courseId":    "math-101",
		"status":      "published",
		"allowReview": true,
		"matching":    "normalized",
		"questions": []map[string]any{
			{"id": "q1", "prompt": "2 + 2?", "kind": "multiple-choice", "options": []string{"3", "4"}, "correctAnswer": "4", "points": 2},
			{"id": "q2", "prompt": "Capital of France?", "kind": "short-answer", "correctAnswer": "Paris", "points": 3},
		},
	}
	if mutate != nil {
		mutate(body)
	}
	return body
}

func (e *testEnv) createQuiz(t *testing.T, mutate func(map[string]any)) domain.Quiz {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/quizzes", &faculty, quizBody(mutate))
	expectStatus(t, rec, http.StatusCreated)
	return decode[domain.Quiz](t, rec)
}
