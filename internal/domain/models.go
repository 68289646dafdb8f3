package domain

import "time"

// QuestionKind is the closed set of supported question types.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple-choice"
	KindTrueFalse      QuestionKind = "true-false"
	KindShortAnswer    QuestionKind = "short-answer"
)

func (k QuestionKind) Valid() bool {
	switch k {
	case KindMultipleChoice, KindTrueFalse, KindShortAnswer:
		return true
	}
	return false
}

// MatchPolicy controls how a recorded answer is compared with the accepted ones.
// The empty policy inherits from the enclosing quiz.
type MatchPolicy string

const (
	MatchExact      MatchPolicy = "exact"
	MatchNormalized MatchPolicy = "normalized"
)

func (p MatchPolicy) Valid() bool {
	return p == "" || p == MatchExact || p == MatchNormalized
}

// QuizStatus is the publication state of a quiz.
type QuizStatus string

const (
	StatusDraft     QuizStatus = "draft"
	StatusPublished QuizStatus = "published"
	StatusArchived  QuizStatus = "archived"
)

func (s QuizStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// Question is a single quiz item. Prompt is the only text field.
type Question struct {
	ID            string       `json:"id"`
	Prompt        string       `json:"prompt"`
	Kind          QuestionKind `json:"kind"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer AnswerValue  `json:"correctAnswer"`
	Points        int          `json:"points"`
	Explanation   string       `json:"explanation,omitempty"`
	Matching      MatchPolicy  `json:"matching,omitempty"`
}

// WithKind changes the question kind and clears fields the new kind cannot use.
func (q Question) WithKind(kind QuestionKind) Question {
	if q.Kind == kind {
		return q
	}
	q.Kind = kind
	switch kind {
	case KindMultipleChoice:
		if !allIn(q.CorrectAnswer.Values, q.Options) {
			q.CorrectAnswer = AnswerValue{}
		}
	case KindTrueFalse:
		q.Options = nil
		if !allIn(q.CorrectAnswer.Values, []string{"true", "false"}) {
			q.CorrectAnswer = AnswerValue{}
		}
	default:
		q.Options = nil
	}
	return q
}

func allIn(values, allowed []string) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		found := false
		for _, a := range allowed {
			if v == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Public strips the answer key so the question can be shown to a taker.
func (q Question) Public() Question {
	q.CorrectAnswer = AnswerValue{}
	q.Explanation = ""
	return q
}

// Quiz is a quiz definition owned by its author.
type Quiz struct {
	ID                 string      `json:"id"`
	Title              string      `json:"title"`
	Description        string      `json:"description,omitempty"`
	CourseID           string      `json:"courseId,omitempty"`
	CourseName         string      `json:"courseName,omitempty"` // snapshot taken at creation
	CreatedBy          string      `json:"createdBy"`
	Questions          []Question  `json:"questions"`
	TimeLimit          int         `json:"timeLimit,omitempty"` // minutes
	AvailableFrom      *time.Time  `json:"availableFrom,omitempty"`
	AvailableUntil     *time.Time  `json:"availableUntil,omitempty"`
	TotalPoints        int         `json:"totalPoints"`
	RandomizeQuestions bool        `json:"randomizeQuestions"`
	AllowReview        bool        `json:"allowReview"`
	ShowLiveScore      bool        `json:"showLiveScore"`
	MaxAttempts        int         `json:"maxAttempts,omitempty"`
	Matching           MatchPolicy `json:"matching,omitempty"`
	Status             QuizStatus  `json:"status"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

// Question looks a question up by id.
func (q Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// AvailableAt reports whether t falls inside the availability window (inclusive).
func (q Quiz) AvailableAt(t time.Time) bool {
	if q.AvailableFrom != nil && t.Before(*q.AvailableFrom) {
		return false
	}
	if q.AvailableUntil != nil && t.After(*q.AvailableUntil) {
		return false
	}
	return true
}

// TimeLimitDuration is zero for untimed quizzes.
func (q Quiz) TimeLimitDuration() time.Duration {
	return time.Duration(q.TimeLimit) * time.Minute
}

// SumPoints adds up question weights.
func (q Quiz) SumPoints() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

// Public returns the quiz as shown to takers.
func (q Quiz) Public() Quiz {
	questions := make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		questions[i] = question.Public()
	}
	q.Questions = questions
	return q
}

// QuizFilter narrows catalog listings. Zero fields are ignored.
type QuizFilter struct {
	CourseID    string
	Status      QuizStatus
	AvailableAt *time.Time
}

func (f QuizFilter) Match(q Quiz) bool {
	if f.CourseID != "" && q.CourseID != f.CourseID {
		return false
	}
	if f.Status != "" && q.Status != f.Status {
		return false
	}
	if f.AvailableAt != nil && !q.AvailableAt(*f.AvailableAt) {
		return false
	}
	return true
}

// AttemptStatus is the lifecycle state of an attempt.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in-progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptAbandoned  AttemptStatus = "abandoned"
)

// AttemptAnswer is one recorded answer. IsCorrect and PointsEarned are set by scoring.
type AttemptAnswer struct {
	QuestionID   string      `json:"questionId"`
	Answer       AnswerValue `json:"answer"`
	IsCorrect    *bool       `json:"isCorrect,omitempty"`
	PointsEarned *int        `json:"pointsEarned,omitempty"`
	Explanation  string      `json:"explanation,omitempty"`
}

// Attempt is one user's run through a quiz.
type Attempt struct {
	ID                 string          `json:"id"`
	QuizID             string          `json:"quizId"`
	UserID             string          `json:"userId"`
	UserName           string          `json:"userName"` // snapshot
	StartedAt          time.Time       `json:"startedAt"`
	ExpiresAt          *time.Time      `json:"expiresAt,omitempty"`
	QuestionOrder      []string        `json:"questionOrder"`
	Answers            []AttemptAnswer `json:"answers"`
	CompletedAt        *time.Time      `json:"completedAt,omitempty"`
	TimeSpent          int             `json:"timeSpent"` // seconds
	Score              int             `json:"score"`
	TotalPossibleScore int             `json:"totalPossibleScore"`
	Status             AttemptStatus   `json:"status"`
}

// Answer returns the recorded answer for a question.
func (a Attempt) Answer(questionID string) (AttemptAnswer, bool) {
	for _, answer := range a.Answers {
		if answer.QuestionID == questionID {
			return answer, true
		}
	}
	return AttemptAnswer{}, false
}

// WithAnswer upserts an answer; the last write for a question wins.
func (a Attempt) WithAnswer(answer AttemptAnswer) Attempt {
	answers := make([]AttemptAnswer, 0, len(a.Answers)+1)
	replaced := false
	for _, existing := range a.Answers {
		if existing.QuestionID == answer.QuestionID {
			answers = append(answers, answer)
			replaced = true
			continue
		}
		answers = append(answers, existing)
	}
	if !replaced {
		answers = append(answers, answer)
	}
	a.Answers = answers
	return a
}

// Redacted hides per-question results while keeping the total.
func (a Attempt) Redacted() Attempt {
	answers := make([]AttemptAnswer, len(a.Answers))
	for i, answer := range a.Answers {
		answers[i] = AttemptAnswer{QuestionID: answer.QuestionID, Answer: answer.Answer}
	}
	a.Answers = answers
	return a
}

// AttemptFilter narrows attempt listings. Zero fields are ignored.
type AttemptFilter struct {
	QuizID string
	UserID string
	Status AttemptStatus
}

func (f AttemptFilter) Match(a Attempt) bool {
	if f.QuizID != "" && a.QuizID != f.QuizID {
		return false
	}
	if f.UserID != "" && a.UserID != f.UserID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return true
}

// Performance is the derived per-user-per-quiz rollup of completed attempts.
type Performance struct {
	UserID             string    `json:"userId"`
	UserName           string    `json:"userName"`
	QuizID             string    `json:"quizId"`
	QuizTitle          string    `json:"quizTitle"`
	CourseName         string    `json:"courseName,omitempty"`
	BestScore          int       `json:"bestScore"`
	TotalPossibleScore int       `json:"totalPossibleScore"`
	Attempts           int       `json:"attempts"`
	AverageScore       float64   `json:"averageScore"`
	LastAttemptDate    time.Time `json:"lastAttemptDate"`
	// BestScoreDate is when BestScore was first reached; it breaks scoreboard ties.
	BestScoreDate time.Time `json:"bestScoreDate"`
}

// PerformanceFilter narrows performance listings. Zero fields are ignored.
type PerformanceFilter struct {
	UserID string
	QuizID string
}

func (f PerformanceFilter) Match(p Performance) bool {
	if f.UserID != "" && p.UserID != f.UserID {
		return false
	}
	if f.QuizID != "" && p.QuizID != f.QuizID {
		return false
	}
	return true
}

// ScoreBucket counts completed attempts whose percentage falls in [MinPercent, MaxPercent].
type ScoreBucket struct {
	Label      string `json:"label"`
	MinPercent int    `json:"minPercent"`
	MaxPercent int    `json:"maxPercent"`
	Count      int    `json:"count"`
}

// QuestionPerformance is the cohort result for one question. Incorrect includes unanswered.
type QuestionPerformance struct {
	QuestionID    string  `json:"questionId"`
	Prompt        string  `json:"prompt"`
	Correct       int     `json:"correct"`
	Incorrect     int     `json:"incorrect"`
	Unanswered    int     `json:"unanswered"`
	AveragePoints float64 `json:"averagePoints"`
}

// QuizAnalytics is the cohort-wide rollup for a quiz. Scores are raw points.
type QuizAnalytics struct {
	QuizID              string                `json:"quizId"`
	TotalAttempts       int                   `json:"totalAttempts"`
	TotalPossibleScore  int                   `json:"totalPossibleScore"`
	AverageScore        float64               `json:"averageScore"`
	HighestScore        int                   `json:"highestScore"`
	LowestScore         int                   `json:"lowestScore"`
	AverageTimeSpent    float64               `json:"averageTimeSpent"` // seconds
	ScoreDistribution   []ScoreBucket         `json:"scoreDistribution"`
	QuestionPerformance []QuestionPerformance `json:"questionPerformance"`
	GeneratedAt         time.Time             `json:"generatedAt"`
}

// ScoreboardEntry is a snapshot-friendly view of a taker's best result.
type ScoreboardEntry struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	BestScore int    `json:"bestScore"`
	Attempts  int    `json:"attempts"`
}

// Scoreboard captures the ordered best scores for a quiz.
type Scoreboard struct {
	QuizID    string            `json:"quizId"`
	Entries   []ScoreboardEntry `json:"entries"`
	UpdatedAt time.Time         `json:"updatedAt"`
}
