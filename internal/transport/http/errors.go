package http

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"campus-quiz-service/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var registerFieldNames sync.Once

// useJSONFieldNames makes validator report json names so binding errors read
// like the field paths produced by domain validation.
func useJSONFieldNames() {
	registerFieldNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindPolicy:
		if errors.Is(err, domain.ErrNotAttemptOwner) || errors.Is(err, domain.ErrForbidden) {
			return http.StatusForbidden
		}
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.AbortWithStatusJSON(status, errorResponse{Error: "internal error"})
		return
	}
	resp := errorResponse{Error: err.Error()}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Error = verr.Reason
		resp.Field = verr.Field
	}
	if status == http.StatusForbidden || status == http.StatusConflict {
		log.Warn().Err(err).Str("path", c.FullPath()).Str("userId", c.GetHeader(headerUserID)).Msg("request refused")
	}
	c.AbortWithStatusJSON(status, resp)
}

// bindError turns a gin binding failure into a field error.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &domain.ValidationError{Field: fieldPath(fe.Namespace()), Reason: describe(fe)}
	}
	return &domain.ValidationError{Reason: "malformed request body: " + err.Error()}
}

// fieldPath drops the request struct name: "quizRequest.questions[0].kind" -> "questions[0].kind".
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	}
	return "failed " + fe.Tag() + " check"
}
