package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"

	_ "modernc.org/sqlite"
)

// Queue item lifecycle states.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Queue operations.
const (
	OpSync   = "sync"
	OpDelete = "delete"
)

// QueueItem is one pending remote submission. Payload carries the
// record JSON snapshot taken at enqueue time so delete operations can
// outlive the record itself.
type QueueItem struct {
	ID        int64
	TraceID   string
	Kind      core.Kind
	LocalID   string
	Operation string
	Payload   string
	Status    string
	Attempts  int64
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// QueueStats is a per-status count of queue items.
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// SQLiteStore is the durable device-local store: the KV the state
// containers persist to, plus the offline sync queue.
type SQLiteStore struct {
	db         *sql.DB
	queueLimit int
}

func NewSQLiteStore(dbPath string, queueLimit int) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, queueLimit: queueLimit}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get implements KV.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get key %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements KV with upsert semantics.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("set key %s: %w", key, err)
	}
	return nil
}

// Delete implements KV.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete key %s: %w", key, err)
	}
	return nil
}

// Enqueue adds a pending remote submission. Returns ErrQueueFull when
// the live queue (pending + processing) is at capacity and ErrDuplicate
// when the same operation for the same record is already pending.
func (s *SQLiteStore) Enqueue(ctx context.Context, kind core.Kind, localID, operation, payload string) (int64, error) {
	var live int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_queue WHERE status IN (?, ?)`,
		StatusPending, StatusProcessing).Scan(&live)
	if err != nil {
		return 0, fmt.Errorf("count live queue items: %w", err)
	}
	if s.queueLimit > 0 && live >= int64(s.queueLimit) {
		return 0, ErrQueueFull
	}

	traceID := uuid.NewString()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_queue (trace_id, kind, local_id, operation, payload)
		VALUES (?, ?, ?, ?, ?)`,
		traceID, string(kind), localID, operation, payload)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("enqueue sync item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue sync item id: %w", err)
	}

	slog.InfoContext(ctx, "Sync item enqueued",
		"queue_id", id,
		"trace_id", traceID,
		"kind", kind,
		"local_id", localID,
		"operation", operation)

	return id, nil
}

// DequeueBatch returns up to limit pending items, oldest first.
func (s *SQLiteStore) DequeueBatch(ctx context.Context, limit int) ([]QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trace_id, kind, local_id, operation, payload, status, attempts, last_error, created_at, updated_at
		FROM sync_queue WHERE status = ? ORDER BY id LIMIT ?`,
		StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue sync batch: %w", err)
	}
	defer rows.Close()

	var items []QueueItem
	for rows.Next() {
		var item QueueItem
		var kind string
		if err := rows.Scan(&item.ID, &item.TraceID, &kind, &item.LocalID, &item.Operation,
			&item.Payload, &item.Status, &item.Attempts, &item.LastError,
			&item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan sync item: %w", err)
		}
		item.Kind = core.Kind(kind)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) MarkProcessing(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, StatusProcessing, "")
}

func (s *SQLiteStore) MarkCompleted(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, StatusCompleted, "")
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, id int64, message string) error {
	return s.setStatus(ctx, id, StatusFailed, message)
}

// IncrementAttempt records a failed attempt and returns the item to
// pending for a later retry.
func (s *SQLiteStore) IncrementAttempt(ctx context.Context, id int64, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_queue
		SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		StatusPending, message, id)
	if err != nil {
		return fmt.Errorf("increment sync attempt %d: %w", id, err)
	}
	return nil
}

// CompletePending marks the pending queue row matching a record
// operation as completed. Used by the message-driven worker so the
// poll processor does not submit the same record twice.
func (s *SQLiteStore) CompletePending(ctx context.Context, kind core.Kind, localID, operation string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_queue SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE kind = ? AND local_id = ? AND operation = ? AND status = ?`,
		StatusCompleted, string(kind), localID, operation, StatusPending)
	if err != nil {
		return false, fmt.Errorf("complete pending %s %s: %w", kind, localID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete pending %s %s count: %w", kind, localID, err)
	}
	return n > 0, nil
}

// ResetStaleProcessing returns items left in processing by a previous
// crash to pending.
func (s *SQLiteStore) ResetStaleProcessing(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_queue SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE status = ?`,
		StatusPending, StatusProcessing)
	if err != nil {
		return fmt.Errorf("reset stale processing items: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		slog.InfoContext(ctx, "Reset stale processing items", "count", n)
	}
	return nil
}

// CleanupCompleted removes completed items older than the cutoff.
func (s *SQLiteStore) CleanupCompleted(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE status = ? AND updated_at < ?`,
		StatusCompleted, before)
	if err != nil {
		return fmt.Errorf("cleanup completed syncs: %w", err)
	}
	return nil
}

// RetryFailed re-arms every failed item for another round of attempts.
func (s *SQLiteStore) RetryFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_queue SET status = ?, attempts = 0, updated_at = CURRENT_TIMESTAMP WHERE status = ?`,
		StatusPending, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("retry failed syncs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("retry failed syncs count: %w", err)
	}
	return n, nil
}

// Stats returns per-status queue counts.
func (s *SQLiteStore) Stats(ctx context.Context) (QueueStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM sync_queue GROUP BY status`)
	if err != nil {
		return QueueStats{}, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var stats QueueStats
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return QueueStats{}, fmt.Errorf("scan queue stats: %w", err)
		}
		switch status {
		case StatusPending:
			stats.Pending = count
		case StatusProcessing:
			stats.Processing = count
		case StatusCompleted:
			stats.Completed = count
		case StatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) setStatus(ctx context.Context, id int64, status, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_queue SET status = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, message, id)
	if err != nil {
		return fmt.Errorf("mark sync item %d %s: %w", id, status, err)
	}
	return nil
}

// GetRecordJSON fetches one record's JSON from the persisted sequence
// for its kind. Used by the worker process, which has no in-memory
// store of its own.
func (s *SQLiteStore) GetRecordJSON(ctx context.Context, kind core.Kind, localID string) (json.RawMessage, error) {
	records, key, err := s.loadRecordArray(ctx, kind)
	if err != nil {
		return nil, err
	}

	for _, raw := range records {
		var probe struct {
			LocalID string `json:"local_id"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("decode record under %s: %w", key, err)
		}
		if probe.LocalID == localID {
			return raw, nil
		}
	}
	return nil, fmt.Errorf("record %s under %s: %w", localID, key, ErrNotFound)
}

// MarkRecordSynced flips a persisted record's synced flag and merges
// the server-assigned identifier, rewriting the stored sequence.
func (s *SQLiteStore) MarkRecordSynced(ctx context.Context, kind core.Kind, localID, serverID string) error {
	records, key, err := s.loadRecordArray(ctx, kind)
	if err != nil {
		return err
	}

	found := false
	for i, raw := range records {
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return fmt.Errorf("decode record under %s: %w", key, err)
		}
		if fields["local_id"] != localID {
			continue
		}
		fields["synced"] = true
		if serverID != "" {
			fields["server_id"] = serverID
		}
		updated, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("encode record under %s: %w", key, err)
		}
		records[i] = updated
		found = true
		break
	}
	if !found {
		return fmt.Errorf("record %s under %s: %w", localID, key, ErrNotFound)
	}

	serialized, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode record sequence for %s: %w", key, err)
	}
	return s.Set(ctx, key, string(serialized))
}

func (s *SQLiteStore) loadRecordArray(ctx context.Context, kind core.Kind) ([]json.RawMessage, string, error) {
	key, err := KeyForKind(kind)
	if err != nil {
		return nil, "", err
	}

	value, ok, err := s.Get(ctx, key)
	if err != nil {
		return nil, key, err
	}
	if !ok {
		return nil, key, nil
	}

	var records []json.RawMessage
	if err := json.Unmarshal([]byte(value), &records); err != nil {
		return nil, key, fmt.Errorf("decode record sequence for %s: %w", key, err)
	}
	return records, key, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
