// Package state implements the process-wide finance store: the auth,
// expense and income containers, composed by Store. Containers own
// their slice of state exclusively and persist to durable local
// storage; nothing is shared by reference across containers.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// Event describes a single container mutation for store subscribers.
type Event struct {
	Container string
	Op        string
	LocalID   string
}

// Mutation operation names carried on events.
const (
	OpSetAll        = "set_all"
	OpAdd           = "add"
	OpUpdate        = "update"
	OpRemove        = "remove"
	OpMarkSynced    = "mark_synced"
	OpMergeServerID = "merge_server_id"
	OpSetLastSynced = "set_last_synced"
	OpLoad          = "load"
	OpSaveLocally   = "save_locally"
	OpDeleteLocally = "delete_locally"
)

type notifyFunc func(Event)

// Record is the constraint shared by the two ledger record types.
// Methods return modified copies; records are values.
type Record[T any] interface {
	Key() string
	WithSynced(synced bool) T
	WithServerID(id string) T
}

// Ledger is the record container shared by the expense and income
// slices: an ordered sequence (most-recent-first), loading flag, error
// message and last-sync bookkeeping, persisted as one JSON array under
// a fixed storage key.
//
// All mutations are synchronous and complete before any persistence
// write is observable. Durable writes are serialized by persistMu and
// always marshal the latest in-memory sequence immediately before
// writing, so overlapping save/delete calls cannot overwrite each
// other's effect in storage with a stale snapshot.
type Ledger[T Record[T]] struct {
	name   string
	key    string
	kv     storage.KV
	notify notifyFunc

	mu           sync.RWMutex
	records      []T
	loading      bool
	errMsg       string
	lastSyncedAt time.Time

	persistMu sync.Mutex

	newLocalID func() string
}

func newLedger[T Record[T]](name, key string, kv storage.KV, notify notifyFunc) *Ledger[T] {
	return &Ledger[T]{
		name:       name,
		key:        key,
		kv:         kv,
		notify:     notify,
		newLocalID: core.NewLocalID,
	}
}

func (l *Ledger[T]) emit(op, localID string) {
	if l.notify != nil {
		l.notify(Event{Container: l.name, Op: op, LocalID: localID})
	}
}

// Records returns a copy of the current record sequence.
func (l *Ledger[T]) Records() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]T, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of records currently held.
func (l *Ledger[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Find returns the record with the given local identifier.
func (l *Ledger[T]) Find(localID string) (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, r := range l.records {
		if r.Key() == localID {
			return r, true
		}
	}
	var zero T
	return zero, false
}

// SetAll replaces the record sequence wholesale.
func (l *Ledger[T]) SetAll(records []T) {
	l.mu.Lock()
	l.records = make([]T, len(records))
	copy(l.records, records)
	l.mu.Unlock()

	l.emit(OpSetAll, "")
}

// Add prepends a record; the sequence stays most-recent-first.
func (l *Ledger[T]) Add(record T) {
	l.mu.Lock()
	l.records = append([]T{record}, l.records...)
	l.mu.Unlock()

	l.emit(OpAdd, record.Key())
}

// Update replaces the record with a matching local identifier. Returns
// false (no-op) when no record matches.
func (l *Ledger[T]) Update(record T) bool {
	l.mu.Lock()
	replaced := false
	for i, r := range l.records {
		if r.Key() == record.Key() {
			l.records[i] = record
			replaced = true
			break
		}
	}
	l.mu.Unlock()

	if replaced {
		l.emit(OpUpdate, record.Key())
	}
	return replaced
}

// Remove filters out the record with the given local identifier.
func (l *Ledger[T]) Remove(localID string) bool {
	l.mu.Lock()
	removed := false
	filtered := l.records[:0]
	for _, r := range l.records {
		if r.Key() == localID {
			removed = true
			continue
		}
		filtered = append(filtered, r)
	}
	l.records = filtered
	l.mu.Unlock()

	if removed {
		l.emit(OpRemove, localID)
	}
	return removed
}

// MarkSynced flips the synced flag on the matching record only.
// Idempotent; every other record and field is untouched.
func (l *Ledger[T]) MarkSynced(localID string) bool {
	l.mu.Lock()
	marked := false
	for i, r := range l.records {
		if r.Key() == localID {
			l.records[i] = r.WithSynced(true)
			marked = true
			break
		}
	}
	l.mu.Unlock()

	if marked {
		l.emit(OpMarkSynced, localID)
	}
	return marked
}

// MergeServerID records the server-assigned identifier on the matching
// record once the remote has accepted it.
func (l *Ledger[T]) MergeServerID(localID, serverID string) bool {
	l.mu.Lock()
	merged := false
	for i, r := range l.records {
		if r.Key() == localID {
			l.records[i] = r.WithServerID(serverID)
			merged = true
			break
		}
	}
	l.mu.Unlock()

	if merged {
		l.emit(OpMergeServerID, localID)
	}
	return merged
}

// SetLastSynced updates the last successful sync timestamp.
func (l *Ledger[T]) SetLastSynced(ts time.Time) {
	l.mu.Lock()
	l.lastSyncedAt = ts
	l.mu.Unlock()

	l.emit(OpSetLastSynced, "")
}

func (l *Ledger[T]) LastSyncedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastSyncedAt
}

func (l *Ledger[T]) Loading() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loading
}

func (l *Ledger[T]) Err() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.errMsg
}

func (l *Ledger[T]) SetError(msg string) {
	l.mu.Lock()
	l.errMsg = msg
	l.mu.Unlock()
}

func (l *Ledger[T]) ClearError() {
	l.SetError("")
}

// Load reads the durable key and replaces the record sequence with the
// parsed value, or an empty sequence when nothing is stored. On read
// failure the prior sequence is untouched and the failure message is
// recorded in the container's error field.
func (l *Ledger[T]) Load(ctx context.Context) ([]T, error) {
	l.mu.Lock()
	l.loading = true
	l.mu.Unlock()

	value, ok, err := l.kv.Get(ctx, l.key)
	if err != nil {
		l.mu.Lock()
		l.loading = false
		l.errMsg = err.Error()
		l.mu.Unlock()
		return nil, fmt.Errorf("load %s: %w", l.key, err)
	}

	records := []T{}
	if ok && value != "" {
		if err := json.Unmarshal([]byte(value), &records); err != nil {
			l.mu.Lock()
			l.loading = false
			l.errMsg = err.Error()
			l.mu.Unlock()
			return nil, fmt.Errorf("decode %s: %w", l.key, err)
		}
	}

	l.mu.Lock()
	l.records = records
	l.loading = false
	l.errMsg = ""
	l.mu.Unlock()

	l.emit(OpLoad, "")

	out := make([]T, len(records))
	copy(out, records)
	return out, nil
}

// SaveLocally synthesizes a new record: assigns a fresh local
// identifier, clears the synced flag, prepends it to the sequence and
// persists the full updated sequence. The new record is returned. On
// persistence failure the record stays in the in-memory sequence (it
// remains authoritative and a later write will include it) and the
// failure is recorded in the error field.
//
// The identifier is always freshly generated. Any caller-supplied
// local or server identifier is discarded, so one identifier can
// never address two records.
func (l *Ledger[T]) SaveLocally(ctx context.Context, record T) (T, error) {
	record = record.WithSynced(false).WithServerID("")
	record = withLocalID(record, l.newLocalID())

	l.mu.Lock()
	l.records = append([]T{record}, l.records...)
	l.mu.Unlock()

	l.emit(OpSaveLocally, record.Key())

	if err := l.persist(ctx); err != nil {
		l.SetError(err.Error())
		return record, err
	}
	return record, nil
}

// DeleteLocally removes the matching record and persists the resulting
// sequence, returning the removed identifier. Exactly one event is
// emitted for the mutation.
func (l *Ledger[T]) DeleteLocally(ctx context.Context, localID string) (string, error) {
	l.mu.Lock()
	removed := false
	filtered := l.records[:0]
	for _, r := range l.records {
		if r.Key() == localID {
			removed = true
			continue
		}
		filtered = append(filtered, r)
	}
	l.records = filtered
	l.mu.Unlock()

	if !removed {
		return "", fmt.Errorf("delete %s from %s: %w", localID, l.name, storage.ErrNotFound)
	}

	l.emit(OpDeleteLocally, localID)

	if err := l.persist(ctx); err != nil {
		l.SetError(err.Error())
		return localID, err
	}
	return localID, nil
}

// Persist writes the current record sequence to durable storage. Safe
// to call from any goroutine; writes are serialized and each marshals
// the sequence as of write time, never an earlier snapshot.
func (l *Ledger[T]) Persist(ctx context.Context) error {
	return l.persist(ctx)
}

func (l *Ledger[T]) persist(ctx context.Context) error {
	l.persistMu.Lock()
	defer l.persistMu.Unlock()

	l.mu.RLock()
	serialized, err := json.Marshal(l.records)
	l.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode %s: %w", l.key, err)
	}

	if err := l.kv.Set(ctx, l.key, string(serialized)); err != nil {
		return fmt.Errorf("persist %s: %w", l.key, err)
	}
	return nil
}

// withLocalID assigns the generated identifier. Records are concrete
// structs with a LocalID field; this narrows through the two known
// types rather than widening the Record constraint for one caller.
func withLocalID[T any](record T, id string) T {
	switch r := any(record).(type) {
	case core.Expense:
		r.LocalID = id
		return any(r).(T)
	case core.Income:
		r.LocalID = id
		return any(r).(T)
	default:
		return record
	}
}
