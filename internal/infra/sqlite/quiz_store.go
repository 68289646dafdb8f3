package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"campus-quiz-service/internal/domain"
)

func (s *Store) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	data, err := marshalJSON(quiz)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quizzes (id, course_id, status, available_from_unix, available_until_unix, data, created_at_unix, updated_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		quiz.ID, quiz.CourseID, string(quiz.Status), toNullUnix(quiz.AvailableFrom), toNullUnix(quiz.AvailableUntil),
		data, toUnix(quiz.CreatedAt), toUnix(quiz.UpdatedAt),
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
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE quizzes
			 SET course_id = ?, status = ?, available_from_unix = ?, available_until_unix = ?, data = ?, updated_at_unix = ?
			 WHERE id = ?`,
			quiz.CourseID, string(quiz.Status), toNullUnix(quiz.AvailableFrom), toNullUnix(quiz.AvailableUntil),
			data, toUnix(quiz.UpdatedAt), quiz.ID,
		)
		if err != nil {
			return fmt.Errorf("update quiz: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrQuizNotFound
		}
		_, err = tx.ExecContext(ctx, `UPDATE quiz_performance SET quiz_title = ?, course_name = ? WHERE quiz_id = ?`,
			quiz.Title, quiz.CourseName, quiz.ID)
		if err != nil {
			return fmt.Errorf("refresh performance titles: %w", err)
		}
		return nil
	})
}

func (s *Store) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM quizzes WHERE id = ?`, quizID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal([]byte(raw), &quiz); err != nil {
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
		at := toUnix(*filter.AvailableAt)
		where.add("(available_from_unix IS NULL OR available_from_unix <= ?)", at)
		where.add("(available_until_unix IS NULL OR available_until_unix >= ?)", at)
	}
	return queryQuizzes(ctx, s.db, `SELECT data FROM quizzes`+where.String()+` ORDER BY created_at_unix, id`, where.args...)
}

func queryQuizzes(ctx context.Context, q queryer, query string, args ...interface{}) ([]domain.Quiz, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	quizzes := make([]domain.Quiz, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		var quiz domain.Quiz
		if err := json.Unmarshal([]byte(raw), &quiz); err != nil {
			return nil, fmt.Errorf("unmarshal quiz: %w", err)
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, rows.Err()
}

func (s *Store) RenameCourse(ctx context.Context, courseID, courseName string) (int, error) {
	renamed := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		quizzes, err := queryQuizzes(ctx, tx, `SELECT data FROM quizzes WHERE course_id = ?`, courseID)
		if err != nil {
			return err
		}
		for _, quiz := range quizzes {
			quiz.CourseName = courseName
			data, err := marshalJSON(quiz)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE quizzes SET data = ? WHERE id = ?`, data, quiz.ID); err != nil {
				return fmt.Errorf("rename course on quiz: %w", err)
			}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE quiz_performance SET course_name = ?
			 WHERE quiz_id IN (SELECT id FROM quizzes WHERE course_id = ?)`, courseName, courseID)
		if err != nil {
			return fmt.Errorf("rename course on performance: %w", err)
		}
		renamed = len(quizzes)
		return nil
	})
	return renamed, err
}
