package state

import (
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// ExpenseState is a point-in-time snapshot of the expense container,
// including its view of the offline submission queue.
type ExpenseState struct {
	Records      []core.Expense `json:"records"`
	Loading      bool           `json:"loading"`
	Error        string         `json:"error,omitempty"`
	LastSyncedAt time.Time      `json:"last_synced_at"`
	Queue        []core.Expense `json:"queue"`
}

// ExpenseContainer is the expense ledger plus the in-memory view of
// records awaiting remote submission. The durable queue in storage is
// authoritative; this view exists for the UI layer.
type ExpenseContainer struct {
	*Ledger[core.Expense]

	qmu   sync.RWMutex
	queue []core.Expense
}

func newExpenseContainer(kv storage.KV, notify notifyFunc) *ExpenseContainer {
	return &ExpenseContainer{
		Ledger: newLedger[core.Expense](ContainerExpenses, storage.KeyExpenses, kv, notify),
	}
}

// QueueAdd appends a record to the offline queue view.
func (c *ExpenseContainer) QueueAdd(record core.Expense) {
	c.qmu.Lock()
	c.queue = append(c.queue, record)
	c.qmu.Unlock()
}

// QueueRemove drops the queued record with the given local identifier.
func (c *ExpenseContainer) QueueRemove(localID string) {
	c.qmu.Lock()
	filtered := c.queue[:0]
	for _, r := range c.queue {
		if r.LocalID != localID {
			filtered = append(filtered, r)
		}
	}
	c.queue = filtered
	c.qmu.Unlock()
}

// Queue returns a copy of the offline queue view.
func (c *ExpenseContainer) Queue() []core.Expense {
	c.qmu.RLock()
	defer c.qmu.RUnlock()

	out := make([]core.Expense, len(c.queue))
	copy(out, c.queue)
	return out
}

// State returns a snapshot of the full container state.
func (c *ExpenseContainer) State() ExpenseState {
	return ExpenseState{
		Records:      c.Records(),
		Loading:      c.Loading(),
		Error:        c.Err(),
		LastSyncedAt: c.LastSyncedAt(),
		Queue:        c.Queue(),
	}
}
