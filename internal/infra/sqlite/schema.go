package sqlite

import "context"

func (s *Store) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS quizzes (
			id TEXT PRIMARY KEY,
			course_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			available_from_unix INTEGER,
			available_until_unix INTEGER,
			data TEXT NOT NULL,
			created_at_unix INTEGER NOT NULL,
			updated_at_unix INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS quiz_attempts (
			id TEXT PRIMARY KEY,
			quiz_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			user_name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			started_at_unix INTEGER NOT NULL,
			expires_at_unix INTEGER,
			completed_at_unix INTEGER,
			time_spent INTEGER NOT NULL DEFAULT 0,
			score INTEGER NOT NULL DEFAULT 0,
			total_possible_score INTEGER NOT NULL DEFAULT 0,
			question_order TEXT NOT NULL DEFAULT '[]',
			answers TEXT NOT NULL DEFAULT '[]'
		);`,
		`CREATE TABLE IF NOT EXISTS quiz_performance (
			user_id TEXT NOT NULL,
			quiz_id TEXT NOT NULL,
			user_name TEXT NOT NULL DEFAULT '',
			quiz_title TEXT NOT NULL DEFAULT '',
			course_name TEXT NOT NULL DEFAULT '',
			best_score INTEGER NOT NULL DEFAULT 0,
			total_possible_score INTEGER NOT NULL DEFAULT 0,
			attempts INTEGER NOT NULL DEFAULT 0,
			average_score REAL NOT NULL DEFAULT 0,
			last_attempt_unix INTEGER NOT NULL,
			best_score_unix INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, quiz_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_quizzes_course ON quizzes(course_id);`,
		`CREATE INDEX IF NOT EXISTS idx_quiz_attempts_user_quiz ON quiz_attempts(user_id, quiz_id);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_quiz_attempts_in_progress
			ON quiz_attempts(user_id, quiz_id) WHERE status = 'in-progress';`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
