package services

import (
	"context"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/state"
)

const summaryCacheKey = "balance"

// SummaryService derives the balance summary from the two ledgers and
// caches it briefly. Any ledger mutation invalidates the cache, so a
// summary never outlives the records it was computed from.
type SummaryService struct {
	store       *state.Store
	cache       *cache.TTLCache[core.BalanceSummary]
	logger      *log.Logger
	unsubscribe func()
}

func NewSummaryService(store *state.Store, ttl time.Duration, logger *log.Logger) *SummaryService {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentSummary)
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	s := &SummaryService{
		store:  store,
		cache:  cache.New[core.BalanceSummary](4, ttl),
		logger: logger,
	}

	s.unsubscribe = store.Subscribe(func(e state.Event) {
		// SetSummary fires its own event; reacting to it would throw
		// away the entry we just cached.
		if e.Op == state.OpSetSummary {
			return
		}
		if e.Container == state.ContainerExpenses || e.Container == state.ContainerIncome {
			s.cache.InvalidateAll()
		}
	})

	return s
}

// Summary returns the cached balance summary, recomputing it from the
// current record sequences when the cache is cold. The fresh summary is
// also pushed into the income container snapshot.
func (s *SummaryService) Summary(ctx context.Context) core.BalanceSummary {
	if summary, ok := s.cache.Get(summaryCacheKey); ok {
		return summary
	}

	summary := core.ComputeBalanceSummary(s.store.Income.Records(), s.store.Expenses.Records())
	s.cache.Set(summaryCacheKey, summary)
	s.store.Income.SetSummary(summary)

	s.logger.DebugContext(ctx, "Balance summary recomputed",
		"total_income_cents", summary.TotalIncomeCents,
		"total_expense_cents", summary.TotalExpenseCents,
		"net_balance_cents", summary.NetBalanceCents)

	return summary
}

// Close detaches the store subscription.
func (s *SummaryService) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}
