package http

import (
	"net/http"
	"time"

	"campus-quiz-service/internal/app"
	"campus-quiz-service/internal/domain"
	"github.com/gin-gonic/gin"
)

// Handler serves the REST API over the quiz services.
type Handler struct {
	catalog  *app.CatalogService
	attempts *app.AttemptService
	reports  *app.ReportService
	now      func() time.Time
}

func NewHandler(catalog *app.CatalogService, attempts *app.AttemptService, reports *app.ReportService) *Handler {
	return &Handler{catalog: catalog, attempts: attempts, reports: reports, now: time.Now}
}

func (h *Handler) createQuiz(c *gin.Context) {
	var req quizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	quiz, err := h.catalog.CreateQuiz(c.Request.Context(), currentUser(c), req.toQuiz())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, quiz)
}

func (h *Handler) listQuizzes(c *gin.Context) {
	user := currentUser(c)
	filter := domain.QuizFilter{
		CourseID: c.Query("courseId"),
		Status:   domain.QuizStatus(c.Query("status")),
	}
	if c.Query("available") == "true" {
		now := h.now().UTC()
		filter.AvailableAt = &now
	}
	if !user.IsStaff() {
		filter.Status = domain.StatusPublished
	}
	quizzes, err := h.catalog.ListQuizzes(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if !user.IsStaff() {
		for i := range quizzes {
			quizzes[i] = quizzes[i].Public()
		}
	}
	c.JSON(http.StatusOK, quizzes)
}

func (h *Handler) getQuiz(c *gin.Context) {
	quiz, err := h.catalog.GetQuiz(c.Request.Context(), c.Param("quizId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !currentUser(c).IsStaff() {
		if quiz.Status != domain.StatusPublished {
			respondError(c, domain.ErrQuizNotFound)
			return
		}
		quiz = quiz.Public()
	}
	c.JSON(http.StatusOK, quiz)
}

// ownedQuiz loads a quiz the caller may edit: its author or any admin.
func (h *Handler) ownedQuiz(c *gin.Context) (domain.Quiz, bool) {
	quiz, err := h.catalog.GetQuiz(c.Request.Context(), c.Param("quizId"))
	if err != nil {
		respondError(c, err)
		return domain.Quiz{}, false
	}
	user := currentUser(c)
	if user.Role != domain.RoleAdmin && quiz.CreatedBy != user.ID {
		respondError(c, domain.ErrForbidden)
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (h *Handler) updateQuiz(c *gin.Context) {
	var req quizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	stored, ok := h.ownedQuiz(c)
	if !ok {
		return
	}
	quiz := req.toQuiz()
	quiz.ID = stored.ID
	updated, err := h.catalog.UpdateQuiz(c.Request.Context(), quiz)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) setStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	stored, ok := h.ownedQuiz(c)
	if !ok {
		return
	}
	quiz, err := h.catalog.SetStatus(c.Request.Context(), stored.ID, domain.QuizStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, quiz)
}

func (h *Handler) startAttempt(c *gin.Context) {
	res, err := h.attempts.StartAttempt(c.Request.Context(), c.Param("quizId"), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusCreated
	if res.Resumed {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func (h *Handler) listAttempts(c *gin.Context) {
	attempts, err := h.attempts.ListAttempts(c.Request.Context(), domain.AttemptFilter{
		QuizID: c.Param("quizId"),
		UserID: c.Query("userId"),
		Status: domain.AttemptStatus(c.Query("status")),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, attempts)
}

func (h *Handler) getAttempt(c *gin.Context) {
	attempt, err := h.attempts.GetAttempt(c.Request.Context(), c.Param("attemptId"), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, attempt)
}

func (h *Handler) recordAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	attempt, err := h.attempts.RecordAnswer(c.Request.Context(), c.Param("attemptId"), currentUser(c), c.Param("questionId"), req.Answer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, attempt)
}

func (h *Handler) submitAttempt(c *gin.Context) {
	ctx := c.Request.Context()
	user := currentUser(c)
	id := c.Param("attemptId")
	// Ownership check; staff may submit on a taker's behalf.
	if _, err := h.attempts.GetAttempt(ctx, id, user); err != nil {
		respondError(c, err)
		return
	}
	if _, err := h.attempts.SubmitAttempt(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	attempt, err := h.attempts.GetAttempt(ctx, id, user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, attempt)
}

func (h *Handler) abandonAttempt(c *gin.Context) {
	attempt, err := h.attempts.AbandonAttempt(c.Request.Context(), c.Param("attemptId"), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, attempt)
}

func (h *Handler) quizAnalytics(c *gin.Context) {
	analytics, err := h.reports.GetAnalytics(c.Request.Context(), c.Param("quizId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, analytics)
}

func (h *Handler) quizPerformance(c *gin.Context) {
	user := currentUser(c)
	userID := user.ID
	if other := c.Query("userId"); other != "" && other != user.ID {
		if !user.IsStaff() {
			respondError(c, domain.ErrForbidden)
			return
		}
		userID = other
	}
	perf, err := h.reports.GetPerformance(c.Request.Context(), userID, c.Param("quizId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, perf)
}

func (h *Handler) rebuildPerformance(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		respondError(c, &domain.ValidationError{Field: "userId", Reason: "is required"})
		return
	}
	perf, err := h.reports.RebuildPerformance(c.Request.Context(), userID, c.Param("quizId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, perf)
}

func (h *Handler) myPerformance(c *gin.Context) {
	rows, err := h.reports.ListPerformance(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handler) renameUser(c *gin.Context) {
	var req userNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}
	n, err := h.attempts.RefreshUserName(c.Request.Context(), c.Param("userId"), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, refreshResponse{Updated: n})
}

func (h *Handler) refreshCourse(c *gin.Context) {
	n, err := h.catalog.RefreshCourseName(c.Request.Context(), c.Param("courseId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, refreshResponse{Updated: n})
}
