package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/keystone-ai/research-agent/internal/model"
)

// timestampLayout is RFC 3339 with a fixed nine-digit fraction. RFC3339Nano
// trims trailing zeros, which breaks lexicographic ordering of the stored
// strings; the fixed width keeps MAX(created_at) and ORDER BY honest.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is a checkpoint store backed by SQLite. All public methods are
// safe for concurrent use; appends to one thread serialize on the write
// transaction while appends to different threads never corrupt each other.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a checkpoint store at the given database path. The
// parent directory and schema are created on first use.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create checkpoint directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection serializes transactions, so a deferred
	// read-then-write append can never hit a busy lock upgrade.
	db.SetMaxOpenConns(1)

	// WAL keeps readers unblocked during appends; the busy timeout covers
	// write contention between threads.
	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA synchronous = NORMAL`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure database: %w", err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the backing database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		thread_id  TEXT    NOT NULL,
		seq        INTEGER NOT NULL,
		created_at TEXT    NOT NULL,
		state      TEXT    NOT NULL,
		PRIMARY KEY (thread_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_created_at
		ON checkpoints (created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append persists a new immutable snapshot for the thread. The sequence
// number is assigned inside the transaction, so concurrent appends to the
// same thread serialize instead of colliding.
func (s *SQLiteStore) Append(ctx context.Context, threadID string, state model.State) (*model.Checkpoint, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread id cannot be empty")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM checkpoints WHERE thread_id = ?`,
		threadID,
	).Scan(&seq)
	if err != nil {
		return nil, fmt.Errorf("next sequence for %s: %w", threadID, err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, seq, created_at, state) VALUES (?, ?, ?, ?)`,
		threadID, seq, now.Format(timestampLayout), string(data),
	)
	if err != nil {
		return nil, fmt.Errorf("append checkpoint for %s: %w", threadID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit checkpoint for %s: %w", threadID, err)
	}

	return &model.Checkpoint{
		ThreadID:  threadID,
		Seq:       seq,
		CreatedAt: now,
		State:     state,
	}, nil
}

// Latest returns the most recently appended snapshot for the thread, or nil
// if the thread has no snapshots.
func (s *SQLiteStore) Latest(ctx context.Context, threadID string) (*model.Checkpoint, error) {
	var (
		seq       int64
		createdAt string
		data      string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT seq, created_at, state FROM checkpoints
		 WHERE thread_id = ? ORDER BY seq DESC LIMIT 1`,
		threadID,
	).Scan(&seq, &createdAt, &data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest checkpoint for %s: %w", threadID, err)
	}

	var state model.State
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("unmarshal state for %s: %w", threadID, err)
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp for %s: %w", threadID, err)
	}

	return &model.Checkpoint{
		ThreadID:  threadID,
		Seq:       seq,
		CreatedAt: ts,
		State:     state,
	}, nil
}

// ListThreads enumerates all threads with at least one snapshot, most
// recently active first. Timestamp ties break by thread_id for determinism.
func (s *SQLiteStore) ListThreads(ctx context.Context) ([]model.ThreadInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, COUNT(*) AS checkpoint_count, MAX(created_at) AS last_updated
		FROM checkpoints
		GROUP BY thread_id
		ORDER BY last_updated DESC, thread_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var threads []model.ThreadInfo
	for rows.Next() {
		var (
			info        model.ThreadInfo
			lastUpdated string
		)
		if err := rows.Scan(&info.ThreadID, &info.CheckpointCount, &lastUpdated); err != nil {
			return nil, fmt.Errorf("scan thread row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, lastUpdated)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp for %s: %w", info.ThreadID, err)
		}
		info.LastUpdated = ts
		threads = append(threads, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}

	return threads, nil
}

// DeleteThread removes every snapshot for the thread. Returns false when the
// thread did not exist; deleting twice is safe.
func (s *SQLiteStore) DeleteThread(ctx context.Context, threadID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE thread_id = ?`, threadID)
	if err != nil {
		return false, fmt.Errorf("delete thread %s: %w", threadID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete thread %s: %w", threadID, err)
	}
	return affected > 0, nil
}
