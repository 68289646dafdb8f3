package domain

import (
	"bytes"
	"encoding/json"
	"errors"
)

// AnswerValue is either a single string or a set of strings. It is used both for
// a question's accepted answers and for a taker's recorded answer.
type AnswerValue struct {
	Values []string
	Multi  bool
}

// Single wraps one string.
func Single(v string) AnswerValue {
	return AnswerValue{Values: []string{v}}
}

// Set wraps several strings as a set.
func Set(values ...string) AnswerValue {
	return AnswerValue{Values: append([]string(nil), values...), Multi: true}
}

// IsZero reports whether no value was provided (used for unanswered questions).
func (a AnswerValue) IsZero() bool {
	return len(a.Values) == 0
}

func (a AnswerValue) MarshalJSON() ([]byte, error) {
	if a.IsZero() {
		return []byte("null"), nil
	}
	if !a.Multi && len(a.Values) == 1 {
		return json.Marshal(a.Values[0])
	}
	return json.Marshal(a.Values)
}

var errMalformedAnswer = errors.New("answer must be a string or a non-empty array of strings")

func (a *AnswerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = AnswerValue{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errMalformedAnswer
		}
		*a = Single(s)
		return nil
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return errMalformedAnswer
	}
	*a = AnswerValue{Values: values, Multi: true}
	return nil
}

// CheckShape rejects empty answers so "no answer" is never confused with a submitted one.
func (a AnswerValue) CheckShape(field string) error {
	if a.IsZero() {
		return &ValidationError{Field: field, Reason: "answer is required"}
	}
	return nil
}
