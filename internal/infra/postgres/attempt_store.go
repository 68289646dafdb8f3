package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"campus-quiz-service/internal/app"
	"campus-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
)

const attemptColumns = `id, quiz_id, user_id, user_name, status, started_at, expires_at, completed_at,
	time_spent, score, total_possible_score, question_order, answers`

func scanAttempt(row scanner) (domain.Attempt, error) {
	var (
		a       domain.Attempt
		status  string
		order   []byte
		answers []byte
	)
	err := row.Scan(&a.ID, &a.QuizID, &a.UserID, &a.UserName, &status, &a.StartedAt, &a.ExpiresAt, &a.CompletedAt,
		&a.TimeSpent, &a.Score, &a.TotalPossibleScore, &order, &answers)
	if err != nil {
		return domain.Attempt{}, err
	}
	a.Status = domain.AttemptStatus(status)
	if err := json.Unmarshal(order, &a.QuestionOrder); err != nil {
		return domain.Attempt{}, fmt.Errorf("unmarshal question order: %w", err)
	}
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return domain.Attempt{}, fmt.Errorf("unmarshal answers: %w", err)
	}
	if a.Answers == nil {
		a.Answers = []domain.AttemptAnswer{}
	}
	return a, nil
}

func getAttempt(ctx context.Context, q querier, attemptID string, lock bool) (domain.Attempt, error) {
	sql := `SELECT ` + attemptColumns + ` FROM quiz_attempts WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	attempt, err := scanAttempt(q.QueryRow(ctx, sql, attemptID))
	if isNoRows(err) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("get attempt: %w", err)
	}
	return attempt, nil
}

// StartAttempt relies on the partial unique index over in-progress attempts.
func (s *Store) StartAttempt(ctx context.Context, attempt domain.Attempt) (domain.Attempt, bool, error) {
	order, err := marshalJSON(attempt.QuestionOrder)
	if err != nil {
		return domain.Attempt{}, false, err
	}
	answers, err := marshalJSON(attempt.Answers)
	if err != nil {
		return domain.Attempt{}, false, err
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO quiz_attempts (`+attemptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, quiz_id) WHERE status = 'in-progress' DO NOTHING`,
		attempt.ID, attempt.QuizID, attempt.UserID, attempt.UserName, string(attempt.Status), attempt.StartedAt,
		attempt.ExpiresAt, attempt.CompletedAt, attempt.TimeSpent, attempt.Score, attempt.TotalPossibleScore, order, answers,
	)
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("insert attempt: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return attempt, true, nil
	}

	existing, err := scanAttempt(s.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM quiz_attempts WHERE user_id = $1 AND quiz_id = $2 AND status = 'in-progress'`,
		attempt.UserID, attempt.QuizID))
	if err != nil {
		return domain.Attempt{}, false, fmt.Errorf("load in-progress attempt: %w", err)
	}
	return existing, false, nil
}

func (s *Store) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return getAttempt(ctx, s.pool, attemptID, false)
}

func (s *Store) SaveAnswer(ctx context.Context, attemptID string, answer domain.AttemptAnswer) (domain.Attempt, error) {
	var saved domain.Attempt
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		attempt, err := getAttempt(ctx, tx, attemptID, true)
		if err != nil {
			return err
		}
		if attempt.Status != domain.AttemptInProgress {
			return domain.ErrAttemptNotInProgress
		}
		attempt = attempt.WithAnswer(answer)
		answers, err := marshalJSON(attempt.Answers)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE quiz_attempts SET answers = $2 WHERE id = $1`, attemptID, answers); err != nil {
			return fmt.Errorf("save answer: %w", err)
		}
		saved = attempt
		return nil
	})
	return saved, err
}

func (s *Store) ListAttempts(ctx context.Context, filter domain.AttemptFilter) ([]domain.Attempt, error) {
	var where whereClause
	if filter.QuizID != "" {
		where.add("quiz_id = ?", filter.QuizID)
	}
	if filter.UserID != "" {
		where.add("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		where.add("status = ?", string(filter.Status))
	}
	return s.queryAttempts(ctx, `SELECT `+attemptColumns+` FROM quiz_attempts`+where.String()+` ORDER BY started_at, id`, where.args...)
}

func (s *Store) CountCompleted(ctx context.Context, userID, quizID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM quiz_attempts WHERE user_id = $1 AND quiz_id = $2 AND status = 'completed'`,
		userID, quizID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

func (s *Store) ListOverdue(ctx context.Context, cutoff time.Time) ([]domain.Attempt, error) {
	return s.queryAttempts(ctx, `SELECT `+attemptColumns+` FROM quiz_attempts
		WHERE status = 'in-progress' AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY started_at, id`, cutoff)
}

func (s *Store) queryAttempts(ctx context.Context, sql string, args ...interface{}) ([]domain.Attempt, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]domain.Attempt, 0)
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

// CompleteAttempt locks the attempt row, and only while it is still in progress stores the
// scored result and folds it into the performance row, all in one transaction.
func (s *Store) CompleteAttempt(ctx context.Context, scored domain.Attempt, fold app.PerformanceFold) (domain.Attempt, bool, error) {
	var (
		stored  domain.Attempt
		applied bool
	)
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		current, err := getAttempt(ctx, tx, scored.ID, true)
		if err != nil {
			return err
		}
		if current.Status != domain.AttemptInProgress {
			stored = current
			return nil
		}

		answers, err := marshalJSON(scored.Answers)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE quiz_attempts
			SET status = $2, completed_at = $3, time_spent = $4, score = $5, total_possible_score = $6, answers = $7
			WHERE id = $1`,
			scored.ID, string(scored.Status), scored.CompletedAt, scored.TimeSpent, scored.Score, scored.TotalPossibleScore, answers,
		)
		if err != nil {
			return fmt.Errorf("complete attempt: %w", err)
		}

		prev, err := getPerformance(ctx, tx, current.UserID, current.QuizID, true)
		if err != nil && !errors.Is(err, domain.ErrPerformanceNotFound) {
			return err
		}
		var prevRow *domain.Performance
		if err == nil {
			prevRow = &prev
		}
		if err := putPerformance(ctx, tx, fold(prevRow)); err != nil {
			return err
		}
		stored, applied = scored, true
		return nil
	})
	if err != nil {
		return domain.Attempt{}, false, err
	}
	return stored, applied, nil
}

func (s *Store) AbandonAttempt(ctx context.Context, attemptID string, at time.Time) (domain.Attempt, bool, error) {
	var (
		stored  domain.Attempt
		applied bool
	)
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		attempt, err := getAttempt(ctx, tx, attemptID, true)
		if err != nil {
			return err
		}
		stored = attempt
		if attempt.Status != domain.AttemptInProgress {
			return nil
		}
		attempt.Status = domain.AttemptAbandoned
		attempt.CompletedAt = &at
		attempt.TimeSpent = int(at.Sub(attempt.StartedAt) / time.Second)
		_, err = tx.Exec(ctx, `UPDATE quiz_attempts SET status = $2, completed_at = $3, time_spent = $4 WHERE id = $1`,
			attemptID, string(attempt.Status), attempt.CompletedAt, attempt.TimeSpent)
		if err != nil {
			return fmt.Errorf("abandon attempt: %w", err)
		}
		stored, applied = attempt, true
		return nil
	})
	if err != nil {
		return domain.Attempt{}, false, err
	}
	return stored, applied, nil
}

func (s *Store) RenameUser(ctx context.Context, userID, userName string) (int, error) {
	renamed := 0
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE quiz_attempts SET user_name = $2 WHERE user_id = $1`, userID, userName)
		if err != nil {
			return fmt.Errorf("rename user on attempts: %w", err)
		}
		renamed = int(tag.RowsAffected())
		if _, err := tx.Exec(ctx, `UPDATE quiz_performance SET user_name = $2 WHERE user_id = $1`, userID, userName); err != nil {
			return fmt.Errorf("rename user on performance: %w", err)
		}
		return nil
	})
	return renamed, err
}
