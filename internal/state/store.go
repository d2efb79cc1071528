package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// Container keys in the composed state tree.
const (
	ContainerAuth     = "auth"
	ContainerExpenses = "expenses"
	ContainerIncome   = "income"
)

// AppState is the composed state shape exposed to consumers.
type AppState struct {
	Auth     AuthState    `json:"auth"`
	Expenses ExpenseState `json:"expenses"`
	Income   IncomeState  `json:"income"`
}

// Store composes the three containers into one explicitly constructed
// state tree. There are no ambient singletons: callers hold a *Store,
// hydrate it once at startup and pass it to consumers. Subscribers are
// notified after every container mutation.
type Store struct {
	kv     storage.KV
	tokens *auth.TokenService
	logger *log.Logger

	Auth     *AuthContainer
	Expenses *ExpenseContainer
	Income   *IncomeContainer

	subMu   sync.RWMutex
	subs    map[int]func(Event)
	nextSub int
}

// New builds a store over the given durable KV. The token service is
// optional; when present, persisted sessions are verified during
// hydration and stale ones are discarded instead of restored.
func New(kv storage.KV, tokens *auth.TokenService, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentState)
	}

	s := &Store{
		kv:     kv,
		tokens: tokens,
		logger: logger,
		subs:   make(map[int]func(Event)),
	}

	s.Auth = newAuthContainer(kv, s.publish)
	s.Expenses = newExpenseContainer(kv, s.publish)
	s.Income = newIncomeContainer(kv, s.publish)

	return s
}

// Subscribe registers a mutation listener and returns its unsubscribe
// function. Listeners run synchronously on the mutating goroutine and
// must not block.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) publish(e Event) {
	s.subMu.RLock()
	listeners := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range listeners {
		fn(e)
	}
}

// Snapshot returns the composed state tree.
func (s *Store) Snapshot() AppState {
	return AppState{
		Auth:     s.Auth.State(),
		Expenses: s.Expenses.State(),
		Income:   s.Income.State(),
	}
}

// Hydrate restores persisted state at cold start: the session (when
// both token and user survive verification) and both record sequences.
// The ledgers load concurrently; failures are collected, not fatal to
// each other.
func (s *Store) Hydrate(ctx context.Context) error {
	s.restoreSession(ctx)

	// Plain group: one ledger failing must not cancel the other load.
	var g errgroup.Group
	g.Go(func() error {
		if _, err := s.Expenses.Load(ctx); err != nil {
			return fmt.Errorf("hydrate expenses: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if _, err := s.Income.Load(ctx); err != nil {
			return fmt.Errorf("hydrate income: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func (s *Store) restoreSession(ctx context.Context) {
	token, hasToken, err := s.kv.Get(ctx, storage.KeyAuthToken)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read persisted auth token", log.FieldError, err)
		return
	}

	userJSON, hasUser, err := s.kv.Get(ctx, storage.KeyUser)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read persisted user", log.FieldError, err)
		return
	}

	// Restore requires both halves of the session; a partial session
	// is discarded so the authenticated flag can never be set without
	// both user and token.
	if !hasToken || !hasUser || token == "" {
		if hasToken || hasUser {
			s.clearSessionKeys(ctx)
		}
		return
	}

	var user core.User
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		s.logger.WarnContext(ctx, "Discarding undecodable persisted user", log.FieldError, err)
		s.clearSessionKeys(ctx)
		return
	}

	if s.tokens != nil {
		if _, err := s.tokens.Verify(token); err != nil {
			s.logger.InfoContext(ctx, "Discarding stale persisted session", log.FieldError, err)
			s.clearSessionKeys(ctx)
			return
		}
	}

	s.Auth.Restore(&user, token)
	s.logger.InfoContext(ctx, "Session restored", log.FieldUserID, user.ID)
}

func (s *Store) clearSessionKeys(ctx context.Context) {
	if err := s.kv.Delete(ctx, storage.KeyAuthToken); err != nil {
		s.logger.WarnContext(ctx, "Failed to clear persisted auth token", log.FieldError, err)
	}
	if err := s.kv.Delete(ctx, storage.KeyUser); err != nil {
		s.logger.WarnContext(ctx, "Failed to clear persisted user", log.FieldError, err)
	}
}
