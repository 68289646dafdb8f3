package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"campus-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4"
)

func (s *Store) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	data, err := marshalJSON(quiz)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO quizzes (id, course_id, status, available_from, available_until, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		quiz.ID, quiz.CourseID, string(quiz.Status), quiz.AvailableFrom, quiz.AvailableUntil, data, quiz.CreatedAt, quiz.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	return nil
}

func (s *Store) UpdateQuiz(ctx context.Context, quiz domain.Quiz) error {
	data, err := marshalJSON(quiz)
	if err != nil {
		return err
	}
	return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE quizzes
			SET course_id = $2, status = $3, available_from = $4, available_until = $5, data = $6, updated_at = $7
			WHERE id = $1`,
			quiz.ID, quiz.CourseID, string(quiz.Status), quiz.AvailableFrom, quiz.AvailableUntil, data, quiz.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update quiz: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrQuizNotFound
		}
		_, err = tx.Exec(ctx, `UPDATE quiz_performance SET quiz_title = $2, course_name = $3 WHERE quiz_id = $1`,
			quiz.ID, quiz.Title, quiz.CourseName)
		if err != nil {
			return fmt.Errorf("refresh performance titles: %w", err)
		}
		return nil
	})
}

// LoadQuiz reads the quiz JSONB document.
func (s *Store) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if isNoRows(err) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return quiz, nil
}

func (s *Store) ListQuizzes(ctx context.Context, filter domain.QuizFilter) ([]domain.Quiz, error) {
	var where whereClause
	if filter.CourseID != "" {
		where.add("course_id = ?", filter.CourseID)
	}
	if filter.Status != "" {
		where.add("status = ?", string(filter.Status))
	}
	if filter.AvailableAt != nil {
		where.add("(available_from IS NULL OR available_from <= ?)", *filter.AvailableAt)
		where.add("(available_until IS NULL OR available_until >= ?)", *filter.AvailableAt)
	}
	return s.queryQuizzes(ctx, s.pool, `SELECT data FROM quizzes`+where.String()+` ORDER BY created_at, id`, where.args...)
}

func (s *Store) queryQuizzes(ctx context.Context, q querier, sql string, args ...interface{}) ([]domain.Quiz, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	quizzes := make([]domain.Quiz, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		var quiz domain.Quiz
		if err := json.Unmarshal(raw, &quiz); err != nil {
			return nil, fmt.Errorf("unmarshal quiz: %w", err)
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, rows.Err()
}

// RenameCourse rewrites the course name inside each quiz document and on performance rows.
func (s *Store) RenameCourse(ctx context.Context, courseID, courseName string) (int, error) {
	renamed := 0
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		quizzes, err := s.queryQuizzes(ctx, tx, `SELECT data FROM quizzes WHERE course_id = $1 FOR UPDATE`, courseID)
		if err != nil {
			return err
		}
		for _, quiz := range quizzes {
			quiz.CourseName = courseName
			data, err := marshalJSON(quiz)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `UPDATE quizzes SET data = $2 WHERE id = $1`, quiz.ID, data); err != nil {
				return fmt.Errorf("rename course on quiz: %w", err)
			}
		}
		_, err = tx.Exec(ctx, `
			UPDATE quiz_performance SET course_name = $2
			WHERE quiz_id IN (SELECT id FROM quizzes WHERE course_id = $1)`, courseID, courseName)
		if err != nil {
			return fmt.Errorf("rename course on performance: %w", err)
		}
		renamed = len(quizzes)
		return nil
	})
	return renamed, err
}
