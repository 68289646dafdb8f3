package memory

import (
	"sync"

	"campus-quiz-service/internal/app"
)

// ScoreboardStore is an in-memory implementation of app.ScoreboardRepository.
type ScoreboardStore struct {
	mu     sync.RWMutex
	boards map[string]*app.Scoreboard
}

func NewScoreboardStore() *ScoreboardStore {
	return &ScoreboardStore{
		boards: make(map[string]*app.Scoreboard),
	}
}

func (s *ScoreboardStore) GetOrCreate(quizID string) (*app.Scoreboard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if board, ok := s.boards[quizID]; ok {
		return board, false
	}
	board := app.NewScoreboard(quizID)
	s.boards[quizID] = board
	return board, true
}

func (s *ScoreboardStore) Get(quizID string) (*app.Scoreboard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	board, ok := s.boards[quizID]
	return board, ok
}

func (s *ScoreboardStore) DeleteIfIdle(quizID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	board, ok := s.boards[quizID]
	if !ok {
		return
	}
	if board.IsIdle() {
		delete(s.boards, quizID)
	}
}
