package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS schedules (
		name TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		format INTEGER NOT NULL,
		config TEXT NOT NULL,
		saved_at TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS tasks (
		schedule TEXT NOT NULL,
		id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		episode INTEGER NOT NULL,
		stage TEXT NOT NULL,
		duration INTEGER NOT NULL,
		department TEXT NOT NULL,
		visible INTEGER NOT NULL,
		priority REAL NOT NULL,
		kind TEXT NOT NULL,
		state TEXT NOT NULL,
		start_date TEXT,
		end_date TEXT,
		floor_date TEXT,
		resources TEXT,
		conflict INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (schedule, id),
		FOREIGN KEY (schedule) REFERENCES schedules(name) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_schedule_seq ON tasks(schedule, seq);

	CREATE TABLE IF NOT EXISTS task_links (
		schedule TEXT NOT NULL,
		task_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		pred_id TEXT NOT NULL,
		delay INTEGER NOT NULL,
		original INTEGER NOT NULL,
		PRIMARY KEY (schedule, task_id, original, seq),
		FOREIGN KEY (schedule, task_id) REFERENCES tasks(schedule, id) ON DELETE CASCADE
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
