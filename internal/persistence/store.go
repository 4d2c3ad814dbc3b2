package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aristath/postsched/internal/config"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no snapshot exists under a name.
var ErrNotFound = errors.New("snapshot not found")

// SnapshotInfo summarizes a stored snapshot.
type SnapshotInfo struct {
	Name    string
	Version int
	Tasks   int
	SavedAt time.Time
}

// Store keeps the latest snapshot per schedule name.
type Store interface {
	SaveSnapshot(ctx context.Context, doc *Document) error
	LoadSnapshot(ctx context.Context, name string) (*Document, error)
	ListSnapshots(ctx context.Context) ([]SnapshotInfo, error)
	DeleteSnapshot(ctx context.Context, name string) error

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// modernc.org/sqlite ignores _foreign_keys in the DSN; it is set by PRAGMA in open.
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Every store gets its own shared-cache database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The pragma is per connection, so keep a single one.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot replaces the stored snapshot for doc.Name.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, doc *Document) error {
	if doc.Name == "" {
		return &config.ConfigurationError{Field: "name", Reason: "snapshot name is required"}
	}
	cfg, err := json.Marshal(doc.Config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Tasks and links go with the schedule row.
	if _, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE name = ?`, doc.Name); err != nil {
		return fmt.Errorf("failed to clear previous snapshot: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO schedules (name, version, format, config, saved_at, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, doc.Name, doc.Version, doc.Format, string(cfg), doc.SavedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}

	for i, r := range doc.Tasks {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (schedule, id, seq, episode, stage, duration, department, visible, priority,
				kind, state, start_date, end_date, floor_date, resources, conflict)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, doc.Name, r.ID, i, r.Episode, r.Stage, r.Duration, r.Department, r.Visible, r.Priority,
			r.Kind, r.State, r.Start, r.End, r.Floor, strings.Join(r.Resources, "\n"), r.Conflict)
		if err != nil {
			return fmt.Errorf("failed to insert task %s: %w", r.ID, err)
		}
		if err := insertLinks(ctx, tx, doc.Name, r.ID, r.Predecessors, false); err != nil {
			return err
		}
		if err := insertLinks(ctx, tx, doc.Name, r.ID, r.OriginalPredecessors, true); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertLinks(ctx context.Context, tx *sql.Tx, schedule, taskID string, links []LinkRecord, original bool) error {
	for i, l := range links {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO task_links (schedule, task_id, seq, pred_id, delay, original)
			VALUES (?, ?, ?, ?, ?, ?)
		`, schedule, taskID, i, l.TaskID, l.Delay, original)
		if err != nil {
			return fmt.Errorf("failed to insert link %s -> %s: %w", l.TaskID, taskID, err)
		}
	}
	return nil
}

// LoadSnapshot returns the stored snapshot for name, or ErrNotFound.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, name string) (*Document, error) {
	doc := &Document{Name: name}
	var cfg, savedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT version, format, config, saved_at FROM schedules WHERE name = ?
	`, name).Scan(&doc.Version, &doc.Format, &cfg, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}

	doc.Config = &config.Config{}
	if err := json.Unmarshal([]byte(cfg), doc.Config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if doc.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
		return nil, fmt.Errorf("failed to parse saved_at: %w", err)
	}

	if doc.Tasks, err = s.loadTasks(ctx, name); err != nil {
		return nil, err
	}
	if err := s.loadLinks(ctx, name, doc.Tasks); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *SQLiteStore) loadTasks(ctx context.Context, name string) ([]TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, episode, stage, duration, department, visible, priority, kind, state,
			start_date, end_date, floor_date, resources, conflict
		FROM tasks
		WHERE schedule = ?
		ORDER BY seq
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var r TaskRecord
		var resources string
		if err := rows.Scan(&r.ID, &r.Episode, &r.Stage, &r.Duration, &r.Department, &r.Visible, &r.Priority,
			&r.Kind, &r.State, &r.Start, &r.End, &r.Floor, &resources, &r.Conflict); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		if resources != "" {
			r.Resources = strings.Split(resources, "\n")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) loadLinks(ctx context.Context, name string, tasks []TaskRecord) error {
	index := make(map[string]int, len(tasks))
	for i, r := range tasks {
		index[r.ID] = i
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, pred_id, delay, original
		FROM task_links
		WHERE schedule = ?
		ORDER BY task_id, original, seq
	`, name)
	if err != nil {
		return fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID string
		var l LinkRecord
		var original bool
		if err := rows.Scan(&taskID, &l.TaskID, &l.Delay, &original); err != nil {
			return fmt.Errorf("failed to scan link: %w", err)
		}
		i, ok := index[taskID]
		if !ok {
			continue
		}
		if original {
			tasks[i].OriginalPredecessors = append(tasks[i].OriginalPredecessors, l)
		} else {
			tasks[i].Predecessors = append(tasks[i].Predecessors, l)
		}
	}
	return rows.Err()
}

// ListSnapshots returns every stored snapshot ordered by name.
func (s *SQLiteStore) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.name, s.version, s.saved_at, COUNT(t.id)
		FROM schedules s
		LEFT JOIN tasks t ON t.schedule = s.name
		GROUP BY s.name
		ORDER BY s.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var savedAt string
		if err := rows.Scan(&info.Name, &info.Version, &savedAt, &info.Tasks); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		if info.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
			return nil, fmt.Errorf("failed to parse saved_at: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteSnapshot removes the snapshot stored under name.
func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}
