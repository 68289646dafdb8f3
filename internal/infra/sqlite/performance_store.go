package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"campus-quiz-service/internal/domain"
)

const performanceColumns = `user_id, user_name, quiz_id, quiz_title, course_name, best_score,
	total_possible_score, attempts, average_score, last_attempt_unix, best_score_unix`

func scanPerformance(row scanner) (domain.Performance, error) {
	var (
		p          domain.Performance
		last, best int64
	)
	err := row.Scan(&p.UserID, &p.UserName, &p.QuizID, &p.QuizTitle, &p.CourseName, &p.BestScore,
		&p.TotalPossibleScore, &p.Attempts, &p.AverageScore, &last, &best)
	if err != nil {
		return domain.Performance{}, err
	}
	p.LastAttemptDate = fromUnix(last)
	p.BestScoreDate = fromUnix(best)
	return p, nil
}

func getPerformance(ctx context.Context, q queryer, userID, quizID string) (domain.Performance, error) {
	perf, err := scanPerformance(q.QueryRowContext(ctx,
		`SELECT `+performanceColumns+` FROM quiz_performance WHERE user_id = ? AND quiz_id = ?`, userID, quizID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Performance{}, domain.ErrPerformanceNotFound
	}
	if err != nil {
		return domain.Performance{}, fmt.Errorf("get performance: %w", err)
	}
	return perf, nil
}

func putPerformance(ctx context.Context, tx *sql.Tx, p domain.Performance) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO quiz_performance (`+performanceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, quiz_id) DO UPDATE SET
			user_name = excluded.user_name,
			quiz_title = excluded.quiz_title,
			course_name = excluded.course_name,
			best_score = excluded.best_score,
			total_possible_score = excluded.total_possible_score,
			attempts = excluded.attempts,
			average_score = excluded.average_score,
			last_attempt_unix = excluded.last_attempt_unix,
			best_score_unix = excluded.best_score_unix`,
		p.UserID, p.UserName, p.QuizID, p.QuizTitle, p.CourseName, p.BestScore,
		p.TotalPossibleScore, p.Attempts, p.AverageScore, toUnix(p.LastAttemptDate), toUnix(p.BestScoreDate),
	)
	if err != nil {
		return fmt.Errorf("upsert performance: %w", err)
	}
	return nil
}

func (s *Store) GetPerformance(ctx context.Context, userID, quizID string) (domain.Performance, error) {
	return getPerformance(ctx, s.db, userID, quizID)
}

func (s *Store) ListPerformance(ctx context.Context, filter domain.PerformanceFilter) ([]domain.Performance, error) {
	var where whereClause
	if filter.UserID != "" {
		where.add("user_id = ?", filter.UserID)
	}
	if filter.QuizID != "" {
		where.add("quiz_id = ?", filter.QuizID)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+performanceColumns+` FROM quiz_performance`+where.String()+` ORDER BY quiz_id, user_id`, where.args...)
	if err != nil {
		return nil, fmt.Errorf("list performance: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Performance, 0)
	for rows.Next() {
		perf, err := scanPerformance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan performance: %w", err)
		}
		out = append(out, perf)
	}
	return out, rows.Err()
}

func (s *Store) PutPerformance(ctx context.Context, perf domain.Performance) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return putPerformance(ctx, tx, perf)
	})
}
