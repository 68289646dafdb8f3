// Package scoring compares recorded answers with a quiz's answer key.
package scoring

import (
	"strings"

	"campus-quiz-service/internal/domain"
)

// EffectivePolicy resolves the matching policy for a question: the question's own
// policy wins, then the quiz's, then exact matching.
func EffectivePolicy(quiz domain.Quiz, question domain.Question) domain.MatchPolicy {
	if question.Matching != "" {
		return question.Matching
	}
	if quiz.Matching != "" {
		return quiz.Matching
	}
	return domain.MatchExact
}

// Matches reports whether answer shares at least one value with the accepted answers.
// A single accepted string behaves like a one-element set, so "answer equals it" and
// "answer set contains it" are the same test.
func Matches(answer, accepted domain.AnswerValue, policy domain.MatchPolicy) bool {
	for _, given := range answer.Values {
		for _, want := range accepted.Values {
			if equal(given, want, policy) {
				return true
			}
		}
	}
	return false
}

func equal(a, b string, policy domain.MatchPolicy) bool {
	if policy == domain.MatchNormalized {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return a == b
}

// Score fills IsCorrect and PointsEarned for every question of the quiz and sets the
// attempt's total. It does not touch status or timestamps and does not mutate its input.
//
// Answers are emitted in the attempt's presentation order, then any quiz question missing
// from that order, then recorded answers for questions no longer in the quiz.
func Score(attempt domain.Attempt, quiz domain.Quiz) domain.Attempt {
	recorded := make(map[string]domain.AttemptAnswer, len(attempt.Answers))
	for _, answer := range attempt.Answers {
		recorded[answer.QuestionID] = answer
	}

	order := presentationOrder(attempt, quiz)
	scored := make([]domain.AttemptAnswer, 0, len(order)+len(recorded))
	emitted := make(map[string]struct{}, len(order))
	total := 0

	for _, questionID := range order {
		question, _ := quiz.Question(questionID)
		entry := domain.AttemptAnswer{
			QuestionID:  questionID,
			Explanation: question.Explanation,
		}
		correct := false
		if answer, ok := recorded[questionID]; ok {
			entry.Answer = answer.Answer
			correct = Matches(answer.Answer, question.CorrectAnswer, EffectivePolicy(quiz, question))
		}
		points := 0
		if correct {
			points = question.Points
		}
		total += points
		entry.IsCorrect = &correct
		entry.PointsEarned = &points
		scored = append(scored, entry)
		emitted[questionID] = struct{}{}
	}

	// Answers to questions removed from the quiz after they were recorded.
	for _, answer := range attempt.Answers {
		if _, ok := emitted[answer.QuestionID]; ok {
			continue
		}
		correct := false
		points := 0
		scored = append(scored, domain.AttemptAnswer{
			QuestionID:   answer.QuestionID,
			Answer:       answer.Answer,
			IsCorrect:    &correct,
			PointsEarned: &points,
		})
	}

	if attempt.TotalPossibleScore > 0 && total > attempt.TotalPossibleScore {
		total = attempt.TotalPossibleScore
	}

	attempt.Answers = scored
	attempt.Score = total
	return attempt
}

func presentationOrder(attempt domain.Attempt, quiz domain.Quiz) []string {
	inQuiz := make(map[string]struct{}, len(quiz.Questions))
	for _, question := range quiz.Questions {
		inQuiz[question.ID] = struct{}{}
	}

	order := make([]string, 0, len(quiz.Questions))
	seen := make(map[string]struct{}, len(quiz.Questions))
	for _, id := range attempt.QuestionOrder {
		if _, ok := inQuiz[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		order = append(order, id)
		seen[id] = struct{}{}
	}
	for _, question := range quiz.Questions {
		if _, ok := seen[question.ID]; ok {
			continue
		}
		order = append(order, question.ID)
		seen[question.ID] = struct{}{}
	}
	return order
}
