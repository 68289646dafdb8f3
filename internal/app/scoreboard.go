package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"campus-quiz-service/internal/domain"
)

// ScoreboardService streams live best-score boards for quizzes that show live scores.
type ScoreboardService struct {
	boards  ScoreboardRepository
	quizzes QuizRepository
	perf    PerformanceStore
}

func NewScoreboardService(boards ScoreboardRepository, quizzes QuizRepository, perf PerformanceStore) *ScoreboardService {
	return &ScoreboardService{boards: boards, quizzes: quizzes, perf: perf}
}

// Watch returns a channel that receives scoreboard updates for a quiz.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *ScoreboardService) Watch(ctx context.Context, quizID string) (<-chan domain.Scoreboard, func(), error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, nil, err
	}
	if !quiz.ShowLiveScore {
		return nil, nil, domain.ErrLiveScoreDisabled
	}

	board, created := s.boards.GetOrCreate(quizID)
	if created {
		rows, err := s.perf.ListPerformance(ctx, domain.PerformanceFilter{QuizID: quizID})
		if err != nil {
			s.boards.DeleteIfIdle(quizID)
			return nil, nil, err
		}
		board.Seed(rows)
	}
	ch, cancel := board.subscribe()
	return ch, cancel, nil
}

// Release drops the board for a quiz once nobody watches it.
func (s *ScoreboardService) Release(quizID string) {
	s.boards.DeleteIfIdle(quizID)
}

// publish pushes a fresh performance row to a live board, if one exists.
func (s *ScoreboardService) publish(perf domain.Performance) {
	if s == nil {
		return
	}
	if board, ok := s.boards.Get(perf.QuizID); ok {
		board.Apply(perf)
	}
}

// Scoreboard is the in-memory live board for one quiz.
type Scoreboard struct {
	quizID      string
	now         func() time.Time
	mu          sync.RWMutex
	standings   map[string]*standing
	subscribers map[chan domain.Scoreboard]struct{}
}

type standing struct {
	entry     domain.ScoreboardEntry
	reachedAt time.Time
}

// NewScoreboard is exported for infrastructure layers that keep boards.
func NewScoreboard(quizID string) *Scoreboard {
	return NewScoreboardWithClock(quizID, time.Now)
}

// NewScoreboardWithClock allows deterministic timestamps in tests.
func NewScoreboardWithClock(quizID string, now func() time.Time) *Scoreboard {
	return &Scoreboard{
		quizID:      quizID,
		now:         now,
		standings:   make(map[string]*standing),
		subscribers: make(map[chan domain.Scoreboard]struct{}),
	}
}

// Seed loads existing performance rows without broadcasting.
func (b *Scoreboard) Seed(rows []domain.Performance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, row := range rows {
		b.applyLocked(row)
	}
}

// Apply folds a performance row into the board and notifies subscribers.
func (b *Scoreboard) Apply(row domain.Performance) domain.Scoreboard {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applyLocked(row)
	return b.broadcastLocked()
}

func (b *Scoreboard) applyLocked(row domain.Performance) {
	current, ok := b.standings[row.UserID]
	if !ok {
		b.standings[row.UserID] = &standing{
			entry: domain.ScoreboardEntry{
				UserID:    row.UserID,
				UserName:  row.UserName,
				BestScore: row.BestScore,
				Attempts:  row.Attempts,
			},
			reachedAt: row.BestScoreDate,
		}
		return
	}
	// Rows can arrive out of order when seeding races a submission.
	if row.Attempts < current.entry.Attempts {
		return
	}
	if row.BestScore > current.entry.BestScore {
		current.reachedAt = row.BestScoreDate
	}
	current.entry.BestScore = row.BestScore
	current.entry.Attempts = row.Attempts
	current.entry.UserName = row.UserName
}

// Snapshot returns the ordered board.
func (b *Scoreboard) Snapshot() domain.Scoreboard {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

// IsIdle reports whether the board has no subscribers.
func (b *Scoreboard) IsIdle() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers) == 0
}

func (b *Scoreboard) subscribe() (<-chan domain.Scoreboard, func()) {
	ch := make(chan domain.Scoreboard, 8)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	initial := b.snapshotLocked()
	b.mu.Unlock()

	ch <- initial

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Scoreboard) broadcastLocked() domain.Scoreboard {
	board := b.snapshotLocked()
	for ch := range b.subscribers {
		select {
		case ch <- board:
		default:
			// Slow subscriber: drop its stale snapshot so the newest one fits.
			select {
			case <-ch:
			default:
			}
			ch <- board
		}
	}
	return board
}

func (b *Scoreboard) snapshotLocked() domain.Scoreboard {
	entries := make([]domain.ScoreboardEntry, 0, len(b.standings))
	for _, s := range b.standings {
		entries = append(entries, s.entry)
	}

	// Best score first, then whoever reached it earlier, then name.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].BestScore != entries[j].BestScore {
			return entries[i].BestScore > entries[j].BestScore
		}
		si := b.standings[entries[i].UserID]
		sj := b.standings[entries[j].UserID]
		if !si.reachedAt.Equal(sj.reachedAt) {
			return si.reachedAt.Before(sj.reachedAt)
		}
		if entries[i].UserName != entries[j].UserName {
			return entries[i].UserName < entries[j].UserName
		}
		return entries[i].UserID < entries[j].UserID
	})

	return domain.Scoreboard{
		QuizID:    b.quizID,
		Entries:   entries,
		UpdatedAt: b.now(),
	}
}
