package domain

import (
	"fmt"
	"strings"
)

// ValidateQuiz checks a quiz definition and returns the first offending field.
func ValidateQuiz(q Quiz) error {
	if !q.Status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", q.Status)}
	}
	if q.Status == StatusPublished && len(q.Questions) == 0 {
		return &ValidationError{Field: "questions", Reason: "a published quiz needs at least one question"}
	}
	if q.TimeLimit < 0 {
		return &ValidationError{Field: "timeLimit", Reason: "must not be negative"}
	}
	if q.MaxAttempts < 0 {
		return &ValidationError{Field: "maxAttempts", Reason: "must not be negative"}
	}
	if q.AvailableFrom != nil && q.AvailableUntil != nil && q.AvailableUntil.Before(*q.AvailableFrom) {
		return &ValidationError{Field: "availableUntil", Reason: "must not be before availableFrom"}
	}
	if !q.Matching.Valid() {
		return &ValidationError{Field: "matching", Reason: fmt.Sprintf("unknown policy %q", q.Matching)}
	}

	seen := make(map[string]struct{}, len(q.Questions))
	for i, question := range q.Questions {
		field := fmt.Sprintf("questions[%d]", i)
		if question.ID != "" {
			if _, dup := seen[question.ID]; dup {
				return &ValidationError{Field: field + ".id", Reason: "duplicate question id"}
			}
			seen[question.ID] = struct{}{}
		}
		if err := ValidateQuestion(field, question); err != nil {
			return err
		}
	}
	return nil
}

// ValidateQuestion checks one question; field prefixes the reported field name.
func ValidateQuestion(field string, q Question) error {
	if strings.TrimSpace(q.Prompt) == "" {
		return &ValidationError{Field: field + ".prompt", Reason: "is required"}
	}
	if !q.Kind.Valid() {
		return &ValidationError{Field: field + ".kind", Reason: fmt.Sprintf("unknown kind %q", q.Kind)}
	}
	if q.Points <= 0 {
		return &ValidationError{Field: field + ".points", Reason: "must be positive"}
	}
	if !q.Matching.Valid() {
		return &ValidationError{Field: field + ".matching", Reason: fmt.Sprintf("unknown policy %q", q.Matching)}
	}
	if q.CorrectAnswer.IsZero() {
		return &ValidationError{Field: field + ".correctAnswer", Reason: "is required"}
	}

	switch q.Kind {
	case KindMultipleChoice:
		if len(q.Options) == 0 {
			return &ValidationError{Field: field + ".options", Reason: "multiple-choice questions need options"}
		}
		for j, option := range q.Options {
			if strings.TrimSpace(option) == "" {
				return &ValidationError{Field: fmt.Sprintf("%s.options[%d]", field, j), Reason: "must not be empty"}
			}
		}
		if !allIn(q.CorrectAnswer.Values, q.Options) {
			return &ValidationError{Field: field + ".correctAnswer", Reason: "must be one of the options"}
		}
	case KindTrueFalse:
		if !allIn(q.CorrectAnswer.Values, []string{"true", "false"}) {
			return &ValidationError{Field: field + ".correctAnswer", Reason: `must be "true" or "false"`}
		}
	case KindShortAnswer:
		for _, v := range q.CorrectAnswer.Values {
			if v == "" {
				return &ValidationError{Field: field + ".correctAnswer", Reason: "accepted answers must not be empty"}
			}
		}
	}
	return nil
}

// ValidateAnswer checks a taker's answer against the question it is recorded for.
// Every kind takes exactly one value; choice kinds must pick a listed value.
func ValidateAnswer(q Question, answer AnswerValue) error {
	if err := answer.CheckShape("answer"); err != nil {
		return err
	}
	if answer.Multi || len(answer.Values) != 1 {
		return &ValidationError{Field: "answer", Reason: "exactly one value is expected"}
	}
	value := answer.Values[0]
	switch q.Kind {
	case KindMultipleChoice:
		if !allIn(answer.Values, q.Options) {
			return &ValidationError{Field: "answer", Reason: "must be one of the options"}
		}
	case KindTrueFalse:
		if value != "true" && value != "false" {
			return &ValidationError{Field: "answer", Reason: `must be "true" or "false"`}
		}
	default:
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: "answer", Reason: "must not be empty"}
		}
	}
	return nil
}
