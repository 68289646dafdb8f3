package postgres

import (
	"context"
	"fmt"

	"campus-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
)

const performanceColumns = `user_id, user_name, quiz_id, quiz_title, course_name, best_score,
	total_possible_score, attempts, average_score, last_attempt_date, best_score_date`

func scanPerformance(row scanner) (domain.Performance, error) {
	var p domain.Performance
	err := row.Scan(&p.UserID, &p.UserName, &p.QuizID, &p.QuizTitle, &p.CourseName, &p.BestScore,
		&p.TotalPossibleScore, &p.Attempts, &p.AverageScore, &p.LastAttemptDate, &p.BestScoreDate)
	return p, err
}

func getPerformance(ctx context.Context, q querier, userID, quizID string, lock bool) (domain.Performance, error) {
	sql := `SELECT ` + performanceColumns + ` FROM quiz_performance WHERE user_id = $1 AND quiz_id = $2`
	if lock {
		sql += ` FOR UPDATE`
	}
	perf, err := scanPerformance(q.QueryRow(ctx, sql, userID, quizID))
	if isNoRows(err) {
		return domain.Performance{}, domain.ErrPerformanceNotFound
	}
	if err != nil {
		return domain.Performance{}, fmt.Errorf("get performance: %w", err)
	}
	return perf, nil
}

func putPerformance(ctx context.Context, tx pgx.Tx, p domain.Performance) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO quiz_performance (`+performanceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, quiz_id) DO UPDATE SET
			user_name = EXCLUDED.user_name,
			quiz_title = EXCLUDED.quiz_title,
			course_name = EXCLUDED.course_name,
			best_score = EXCLUDED.best_score,
			total_possible_score = EXCLUDED.total_possible_score,
			attempts = EXCLUDED.attempts,
			average_score = EXCLUDED.average_score,
			last_attempt_date = EXCLUDED.last_attempt_date,
			best_score_date = EXCLUDED.best_score_date`,
		p.UserID, p.UserName, p.QuizID, p.QuizTitle, p.CourseName, p.BestScore,
		p.TotalPossibleScore, p.Attempts, p.AverageScore, p.LastAttemptDate, p.BestScoreDate,
	)
	if err != nil {
		return fmt.Errorf("upsert performance: %w", err)
	}
	return nil
}

func (s *Store) GetPerformance(ctx context.Context, userID, quizID string) (domain.Performance, error) {
	return getPerformance(ctx, s.pool, userID, quizID, false)
}

func (s *Store) ListPerformance(ctx context.Context, filter domain.PerformanceFilter) ([]domain.Performance, error) {
	var where whereClause
	if filter.UserID != "" {
		where.add("user_id = ?", filter.UserID)
	}
	if filter.QuizID != "" {
		where.add("quiz_id = ?", filter.QuizID)
	}
	rows, err := s.pool.Query(ctx, `SELECT `+performanceColumns+` FROM quiz_performance`+where.String()+` ORDER BY quiz_id, user_id`, where.args...)
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

// PutPerformance overwrites a row; used by rebuilds.
func (s *Store) PutPerformance(ctx context.Context, perf domain.Performance) error {
	return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		return putPerformance(ctx, tx, perf)
	})
}
