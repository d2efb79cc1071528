package state

import (
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// Income-specific operation names.
const (
	OpSetSources = "set_sources"
	OpSetSummary = "set_summary"
)

// IncomeState is a point-in-time snapshot of the income container.
type IncomeState struct {
	Records      []core.Income       `json:"records"`
	Loading      bool                `json:"loading"`
	Error        string              `json:"error,omitempty"`
	LastSyncedAt time.Time           `json:"last_synced_at"`
	Sources      []core.IncomeSource `json:"sources"`
	Summary      core.BalanceSummary `json:"summary"`
}

// IncomeContainer is the income ledger plus the source catalog and the
// cached balance summary. The catalog starts from the immutable seed;
// custom catalogs replace it wholesale and are never merged in.
type IncomeContainer struct {
	*Ledger[core.Income]

	smu     sync.RWMutex
	sources []core.IncomeSource
	summary core.BalanceSummary
}

func newIncomeContainer(kv storage.KV, notify notifyFunc) *IncomeContainer {
	return &IncomeContainer{
		Ledger:  newLedger[core.Income](ContainerIncome, storage.KeyIncome, kv, notify),
		sources: core.DefaultIncomeSources(),
	}
}

// Sources returns a copy of the active source catalog.
func (c *IncomeContainer) Sources() []core.IncomeSource {
	c.smu.RLock()
	defer c.smu.RUnlock()

	out := make([]core.IncomeSource, len(c.sources))
	copy(out, c.sources)
	return out
}

// SetSources replaces the catalog wholesale.
func (c *IncomeContainer) SetSources(sources []core.IncomeSource) {
	c.smu.Lock()
	c.sources = make([]core.IncomeSource, len(sources))
	copy(c.sources, sources)
	c.smu.Unlock()

	c.emit(OpSetSources, "")
}

// ResetSources restores the seed catalog.
func (c *IncomeContainer) ResetSources() {
	c.SetSources(core.DefaultIncomeSources())
}

// Summary returns the cached balance summary.
func (c *IncomeContainer) Summary() core.BalanceSummary {
	c.smu.RLock()
	defer c.smu.RUnlock()
	return c.summary
}

// SetSummary replaces the cached summary. The summary is derived and
// non-authoritative; it is only ever invalidated by replacement.
func (c *IncomeContainer) SetSummary(summary core.BalanceSummary) {
	c.smu.Lock()
	c.summary = summary
	c.smu.Unlock()

	c.emit(OpSetSummary, "")
}

// State returns a snapshot of the full container state.
func (c *IncomeContainer) State() IncomeState {
	return IncomeState{
		Records:      c.Records(),
		Loading:      c.Loading(),
		Error:        c.Err(),
		LastSyncedAt: c.LastSyncedAt(),
		Sources:      c.Sources(),
		Summary:      c.Summary(),
	}
}
