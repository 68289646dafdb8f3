package redis

import (
	"context"
	"sync"
	"time"

	"campus-quiz-service/internal/app"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ScoreboardStore is a Redis-aware implementation of app.ScoreboardRepository.
// Boards and their subscribers live in process; Redis carries a liveness marker per
// watched quiz so other instances and operators can see which boards are open.
// The marker is refreshed on every access and by a keepalive every ttl/2 while the board lives.
type ScoreboardStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	boards map[string]*app.Scoreboard
	stops  map[string]chan struct{}
}

func NewScoreboardStore(client *redis.Client, ttl time.Duration) *ScoreboardStore {
	return &ScoreboardStore{
		client: client,
		ttl:    ttl,
		boards: make(map[string]*app.Scoreboard),
		stops:  make(map[string]chan struct{}),
	}
}

func (s *ScoreboardStore) GetOrCreate(quizID string) (*app.Scoreboard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if board, ok := s.boards[quizID]; ok {
		s.touch(quizID)
		return board, false
	}
	board := app.NewScoreboard(quizID)
	s.boards[quizID] = board
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(quizID), "1", s.ttl).Err()
	if s.ttl > 0 {
		stop := make(chan struct{})
		s.stops[quizID] = stop
		go s.keepalive(quizID, stop)
	}
	return board, true
}

func (s *ScoreboardStore) Get(quizID string) (*app.Scoreboard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	board, ok := s.boards[quizID]
	if ok {
		s.touch(quizID)
	}
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
		if stop, ok := s.stops[quizID]; ok {
			close(stop)
			delete(s.stops, quizID)
		}
		_ = s.client.Del(context.Background(), s.key(quizID)).Err()
	}
}

func (s *ScoreboardStore) keepalive(quizID string, stop <-chan struct{}) {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.RLock()
			select {
			case <-stop:
			default:
				s.touch(quizID)
			}
			s.mu.RUnlock()
		}
	}
}

// touch extends the liveness marker. Callers hold s.mu.
func (s *ScoreboardStore) touch(quizID string) {
	if s.ttl <= 0 {
		return
	}
	if err := s.client.Set(context.Background(), s.key(quizID), "1", s.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("quizId", quizID).Msg("refresh scoreboard marker")
	}
}

func (s *ScoreboardStore) key(quizID string) string {
	return "quiz:scoreboard:" + quizID
}
