package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"campus-quiz-service/internal/app"
	"campus-quiz-service/internal/domain"
)

const attemptColumns = `id, quiz_id, user_id, user_name, status, started_at_unix, expires_at_unix, completed_at_unix,
	time_spent, score, total_possible_score, question_order, answers`

func scanAttempt(row scanner) (domain.Attempt, error) {
	var (
		a         domain.Attempt
		status    string
		startedAt int64
		expiresAt sql.NullInt64
		doneAt    sql.NullInt64
		order     string
		answers   string
	)
	err := row.Scan(&a.ID, &a.QuizID, &a.UserID, &a.UserName, &status, &startedAt, &expiresAt, &doneAt,
		&a.TimeSpent, &a.Score, &a.TotalPossibleScore, &order, &answers)
	if err != nil {
		return domain.Attempt{}, err
	}
	a.Status = domain.AttemptStatus(status)
	a.StartedAt = fromUnix(startedAt)
	a.ExpiresAt = fromNullUnix(expiresAt)
	a.CompletedAt = fromNullUnix(doneAt)
	if err := json.Unmarshal([]byte(order), &a.QuestionOrder); err != nil {
		return domain.Attempt{}, fmt.Errorf("unmarshal question order: %w", err)
	}
	if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
		return domain.Attempt{}, fmt.Errorf("unmarshal answers: %w", err)
	}
	if a.Answers == nil {
		a.Answers = []domain.AttemptAnswer{}
	}
	return a, nil
}

func getAttempt(ctx context.Context, q queryer, attemptID string) (domain.Attempt, error) {
	attempt, err := scanAttempt(q.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM quiz_attempts WHERE id = ?`, attemptID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("get attempt: %w", err)
	}
	return attempt, nil
}

// StartAttempt relies on the partial unique index over in-progress attempts; INSERT OR IGNORE
// leaves the existing attempt in place.
func (s *Store) StartAttempt(ctx context.Context, attempt domain.Attempt) (domain.Attempt, bool, error) {
	order, err := marshalJSON(attempt.QuestionOrder)
	if err != nil {
		return domain.Attempt{}, false, err
	}
	answers, err := marshalJSON(attempt.Answers)
	if err != nil {
		return domain.Attempt{}, false, err
	}

	var (
		stored  domain.Attempt
		started bool
	)
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO quiz_attempts (`+attemptColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			attempt.ID, attempt.QuizID, attempt.UserID, attempt.UserName, string(attempt.Status), toUnix(attempt.StartedAt),
			toNullUnix(attempt.ExpiresAt), toNullUnix(attempt.CompletedAt), attempt.TimeSpent, attempt.Score,
			attempt.TotalPossibleScore, order, answers,
		)
		if err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			stored, started = attempt, true
			return nil
		}
		stored, err = scanAttempt(tx.QueryRowContext(ctx,
			`SELECT `+attemptColumns+` FROM quiz_attempts WHERE user_id = ? AND quiz_id = ? AND status = 'in-progress'`,
			attempt.UserID, attempt.QuizID))
		if err != nil {
			return fmt.Errorf("load in-progress attempt: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Attempt{}, false, err
	}
	return stored, started, nil
}

func (s *Store) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return getAttempt(ctx, s.db, attemptID)
}

func (s *Store) SaveAnswer(ctx context.Context, attemptID string, answer domain.AttemptAnswer) (domain.Attempt, error) {
	var saved domain.Attempt
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		attempt, err := getAttempt(ctx, tx, attemptID)
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
		if _, err := tx.ExecContext(ctx, `UPDATE quiz_attempts SET answers = ? WHERE id = ?`, answers, attemptID); err != nil {
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
	return s.queryAttempts(ctx, `SELECT `+attemptColumns+` FROM quiz_attempts`+where.String()+` ORDER BY started_at_unix, id`, where.args...)
}

func (s *Store) CountCompleted(ctx context.Context, userID, quizID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM quiz_attempts WHERE user_id = ? AND quiz_id = ? AND status = 'completed'`,
		userID, quizID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

func (s *Store) ListOverdue(ctx context.Context, cutoff time.Time) ([]domain.Attempt, error) {
	return s.queryAttempts(ctx, `SELECT `+attemptColumns+` FROM quiz_attempts
		WHERE status = 'in-progress' AND expires_at_unix IS NOT NULL AND expires_at_unix < ?
		ORDER BY started_at_unix, id`, toUnix(cutoff))
}

func (s *Store) queryAttempts(ctx context.Context, query string, args ...interface{}) ([]domain.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *Store) CompleteAttempt(ctx context.Context, scored domain.Attempt, fold app.PerformanceFold) (domain.Attempt, bool, error) {
	var (
		stored  domain.Attempt
		applied bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getAttempt(ctx, tx, scored.ID)
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
		_, err = tx.ExecContext(ctx,
			`UPDATE quiz_attempts
			 SET status = ?, completed_at_unix = ?, time_spent = ?, score = ?, total_possible_score = ?, answers = ?
			 WHERE id = ?`,
			string(scored.Status), toNullUnix(scored.CompletedAt), scored.TimeSpent, scored.Score,
			scored.TotalPossibleScore, answers, scored.ID,
		)
		if err != nil {
			return fmt.Errorf("complete attempt: %w", err)
		}

		prev, err := getPerformance(ctx, tx, current.UserID, current.QuizID)
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
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		attempt, err := getAttempt(ctx, tx, attemptID)
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
		_, err = tx.ExecContext(ctx,
			`UPDATE quiz_attempts SET status = ?, completed_at_unix = ?, time_spent = ? WHERE id = ?`,
			string(attempt.Status), toUnix(at), attempt.TimeSpent, attemptID)
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
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE quiz_attempts SET user_name = ? WHERE user_id = ?`, userName, userID)
		if err != nil {
			return fmt.Errorf("rename user on attempts: %w", err)
		}
		n, _ := res.RowsAffected()
		renamed = int(n)
		if _, err := tx.ExecContext(ctx, `UPDATE quiz_performance SET user_name = ? WHERE user_id = ?`, userName, userID); err != nil {
			return fmt.Errorf("rename user on performance: %w", err)
		}
		return nil
	})
	return renamed, err
}
