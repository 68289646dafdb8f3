package http

import (
	"net/http"
	"time"

	"campus-quiz-service/internal/domain"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RouterConfig carries the HTTP-facing settings.
type RouterConfig struct {
	CORSOrigins []string
}

// NewRouter wires the REST and WebSocket endpoints into a gin engine.
func NewRouter(h *Handler, ws *WSHandler, cfg RouterConfig) *gin.Engine {
	useJSONFieldNames()

	r := gin.New()
	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		log.Info().
			Str("client_ip", param.ClientIP).
			Str("method", param.Method).
			Str("path", param.Path).
			Int("status_code", param.StatusCode).
			Dur("latency", param.Latency).
			Str("user_agent", param.Request.UserAgent()).
			Str("error_message", param.ErrorMessage).
			Msg("gin_request")
		return ""
	}))
	r.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", headerUserID, headerUserName, headerUserRole},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
		corsConfig.AllowCredentials = true
	}
	r.Use(cors.New(corsConfig))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	staff := requireRoles(domain.RoleFaculty, domain.RoleAdmin)
	admin := requireRoles(domain.RoleAdmin)

	v1 := r.Group("/api/v1", authenticate())
	{
		quizzes := v1.Group("/quizzes")
		{
			quizzes.POST("", staff, h.createQuiz)
			quizzes.GET("", h.listQuizzes)
			quizzes.GET("/:quizId", h.getQuiz)
			quizzes.PUT("/:quizId", staff, h.updateQuiz)
			quizzes.POST("/:quizId/status", staff, h.setStatus)
			quizzes.POST("/:quizId/attempts", h.startAttempt)
			quizzes.GET("/:quizId/attempts", staff, h.listAttempts)
			quizzes.GET("/:quizId/analytics", staff, h.quizAnalytics)
			quizzes.GET("/:quizId/performance", h.quizPerformance)
			quizzes.POST("/:quizId/performance/rebuild", admin, h.rebuildPerformance)
		}

		attempts := v1.Group("/attempts")
		{
			attempts.GET("/:attemptId", h.getAttempt)
			attempts.PUT("/:attemptId/answers/:questionId", h.recordAnswer)
			attempts.POST("/:attemptId/submit", h.submitAttempt)
			attempts.POST("/:attemptId/abandon", h.abandonAttempt)
		}

		v1.GET("/users/me/performance", h.myPerformance)
		v1.PUT("/users/:userId/name", admin, h.renameUser)
		v1.POST("/courses/:courseId/refresh", admin, h.refreshCourse)
	}

	r.GET("/ws/attempt", gin.WrapF(ws.ServeAttempt))
	r.GET("/ws/scoreboard", gin.WrapF(ws.ServeScoreboard))
	return r
}
