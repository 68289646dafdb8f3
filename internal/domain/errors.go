package domain

import (
	"errors"
	"fmt"
)

// Kind classifies errors returned by the quiz core so callers can decide how to surface them.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindPolicy
	KindNotFound
)

// Error is a classified sentinel error.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = newError(KindNotFound, "quiz not found")
	// ErrAttemptNotFound indicates an unknown attempt id.
	ErrAttemptNotFound = newError(KindNotFound, "attempt not found")
	// ErrPerformanceNotFound is returned before a user has completed the quiz once.
	ErrPerformanceNotFound = newError(KindNotFound, "performance record not found")
	// ErrQuestionNotFound indicates a submitted question ID is not part of the quiz.
	ErrQuestionNotFound = newError(KindValidation, "question not found")

	ErrQuizNotPublished     = newError(KindPolicy, "quiz is not published")
	ErrQuizNotAvailable     = newError(KindPolicy, "quiz is not available at this time")
	ErrAttemptsExhausted    = newError(KindPolicy, "maximum number of attempts reached")
	ErrAttemptNotInProgress = newError(KindPolicy, "attempt is not in progress")
	ErrNotAttemptOwner      = newError(KindPolicy, "attempt belongs to another user")
	ErrInvalidTransition    = newError(KindPolicy, "invalid quiz status transition")
	ErrLiveScoreDisabled    = newError(KindPolicy, "live score is disabled for this quiz")
	ErrForbidden            = newError(KindPolicy, "permission denied")
)

// ValidationError points at the offending field of a request or definition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// KindOf classifies err, looking through wrapping.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return KindValidation
	}
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind
	}
	return KindUnknown
}
