package storage

import (
	"context"
	"errors"

	"fintrack/internal/core"
)

// Keys used in the durable local store. These are part of the on-device
// data contract; renaming one orphans previously persisted data.
const (
	KeyAuthToken = "@auth_token"
	KeyUser      = "@user"
	KeyExpenses  = "@expenses"
	KeyIncome    = "@income"
)

var (
	ErrQueueFull = errors.New("sync queue is full")
	ErrDuplicate = errors.New("duplicate entry")
	ErrNotFound  = errors.New("record not found")
)

// KV is the asynchronous durable local key-value store the state
// containers persist to. Values are opaque strings; containers own
// their serialization.
type KV interface {
	// Get returns the stored value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// KeyForKind maps a record kind to its durable storage key.
func KeyForKind(kind core.Kind) (string, error) {
	switch kind {
	case core.KindExpense:
		return KeyExpenses, nil
	case core.KindIncome:
		return KeyIncome, nil
	default:
		return "", core.ErrUnknownKind
	}
}
