package http

import (
	"time"

	"campus-quiz-service/internal/domain"
)

type questionRequest struct {
	ID            string             `json:"id"`
	Prompt        string             `json:"prompt" binding:"required"`
	Kind          string             `json:"kind" binding:"required,oneof=multiple-choice true-false short-answer"`
	Options       []string           `json:"options"`
	CorrectAnswer domain.AnswerValue `json:"correctAnswer"`
	Points        int                `json:"points" binding:"gt=0"`
	Explanation   string             `json:"explanation"`
	Matching      string             `json:"matching" binding:"omitempty,oneof=exact normalized"`
}

type quizRequest struct {
	Title              string            `json:"title"`
	Description        string            `json:"description"`
	CourseID           string            `json:"courseId"`
	Questions          []questionRequest `json:"questions" binding:"dive"`
	TimeLimit          int               `json:"timeLimit" binding:"min=0"`
	AvailableFrom      *time.Time        `json:"availableFrom"`
	AvailableUntil     *time.Time        `json:"availableUntil"`
	RandomizeQuestions bool              `json:"randomizeQuestions"`
	AllowReview        bool              `json:"allowReview"`
	ShowLiveScore      bool              `json:"showLiveScore"`
	MaxAttempts        int               `json:"maxAttempts" binding:"min=0"`
	Matching           string            `json:"matching" binding:"omitempty,oneof=exact normalized"`
	Status             string            `json:"status" binding:"omitempty,oneof=draft published archived"`
}

func (r quizRequest) toQuiz() domain.Quiz {
	questions := make([]domain.Question, len(r.Questions))
	for i, q := range r.Questions {
		questions[i] = domain.Question{
			ID:            q.ID,
			Prompt:        q.Prompt,
			Kind:          domain.QuestionKind(q.Kind),
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Points:        q.Points,
			Explanation:   q.Explanation,
			Matching:      domain.MatchPolicy(q.Matching),
		}
	}
	return domain.Quiz{
		Title:              r.Title,
		Description:        r.Description,
		CourseID:           r.CourseID,
		Questions:          questions,
		TimeLimit:          r.TimeLimit,
		AvailableFrom:      r.AvailableFrom,
		AvailableUntil:     r.AvailableUntil,
		RandomizeQuestions: r.RandomizeQuestions,
		AllowReview:        r.AllowReview,
		ShowLiveScore:      r.ShowLiveScore,
		MaxAttempts:        r.MaxAttempts,
		Matching:           domain.MatchPolicy(r.Matching),
		Status:             domain.QuizStatus(r.Status),
	}
}

type statusRequest struct {
	Status string `json:"status" binding:"required,oneof=draft published archived"`
}

type answerRequest struct {
	Answer domain.AnswerValue `json:"answer"`
}

type userNameRequest struct {
	Name string `json:"name" binding:"required"`
}

type refreshResponse struct {
	Updated int `json:"updated"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
