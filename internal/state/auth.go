package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// Auth operation names carried on events.
const (
	OpSetCredentials = "set_credentials"
	OpUpdateUser     = "update_user"
	OpLogout         = "logout"
	OpRestore        = "restore"
)

// AuthState is a point-in-time snapshot of the auth container.
type AuthState struct {
	User            *core.User `json:"user"`
	Token           string     `json:"token,omitempty"`
	IsAuthenticated bool       `json:"is_authenticated"`
	Loading         bool       `json:"loading"`
	Error           string     `json:"error,omitempty"`
}

// UserPatch carries the fields of a partial user update; nil fields
// are left as they are.
type UserPatch struct {
	Name               *string
	Email              *string
	Currency           *string
	CurrencySymbol     *string
	MonthlyBudgetCents *int64
}

// AuthContainer holds the current user identity and session token.
// A session token exists if and only if a user is present and the
// container reports authenticated.
type AuthContainer struct {
	kv     storage.KV
	notify notifyFunc

	mu            sync.RWMutex
	user          *core.User
	token         string
	authenticated bool
	loading       bool
	errMsg        string
}

func newAuthContainer(kv storage.KV, notify notifyFunc) *AuthContainer {
	return &AuthContainer{kv: kv, notify: notify}
}

func (c *AuthContainer) emit(op string) {
	if c.notify != nil {
		c.notify(Event{Container: ContainerAuth, Op: op})
	}
}

// State returns a snapshot; the user record is copied so callers
// cannot reach into container-owned state.
func (c *AuthContainer) State() AuthState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state := AuthState{
		Token:           c.token,
		IsAuthenticated: c.authenticated,
		Loading:         c.loading,
		Error:           c.errMsg,
	}
	if c.user != nil {
		u := *c.user
		state.User = &u
	}
	return state
}

// SetCredentials installs a new session: all three identity fields are
// replaced synchronously and the error is cleared before the durable
// write is issued. The write failure, if any, is returned to the
// caller and never folded back into container state.
func (c *AuthContainer) SetCredentials(ctx context.Context, user core.User, token string) error {
	c.mu.Lock()
	u := user
	c.user = &u
	c.token = token
	c.authenticated = true
	c.errMsg = ""
	c.mu.Unlock()

	c.emit(OpSetCredentials)

	return c.persistSession(ctx, user, token)
}

// UpdateUser merges the patch into the current user. No-op when no
// user is set. The merged user is re-persisted.
func (c *AuthContainer) UpdateUser(ctx context.Context, patch UserPatch) error {
	c.mu.Lock()
	if c.user == nil {
		c.mu.Unlock()
		return nil
	}
	if patch.Name != nil {
		c.user.Name = *patch.Name
	}
	if patch.Email != nil {
		c.user.Email = *patch.Email
	}
	if patch.Currency != nil {
		c.user.Currency = *patch.Currency
	}
	if patch.CurrencySymbol != nil {
		c.user.CurrencySymbol = *patch.CurrencySymbol
	}
	if patch.MonthlyBudgetCents != nil {
		c.user.MonthlyBudgetCents = *patch.MonthlyBudgetCents
	}
	merged := *c.user
	c.mu.Unlock()

	c.emit(OpUpdateUser)

	serialized, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := c.kv.Set(ctx, storage.KeyUser, string(serialized)); err != nil {
		return fmt.Errorf("persist user: %w", err)
	}
	return nil
}

// Logout clears the session and deletes both persisted keys.
func (c *AuthContainer) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.user = nil
	c.token = ""
	c.authenticated = false
	c.mu.Unlock()

	c.emit(OpLogout)

	if err := c.kv.Delete(ctx, storage.KeyAuthToken); err != nil {
		return fmt.Errorf("delete auth token: %w", err)
	}
	if err := c.kv.Delete(ctx, storage.KeyUser); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// Restore rehydrates a session read from storage at cold start. It
// never persists (the data just came from storage) and never marks the
// container authenticated unless both user and token are present.
func (c *AuthContainer) Restore(user *core.User, token string) {
	if user == nil || token == "" {
		return
	}

	c.mu.Lock()
	u := *user
	c.user = &u
	c.token = token
	c.authenticated = true
	c.mu.Unlock()

	c.emit(OpRestore)
}

func (c *AuthContainer) SetLoading(loading bool) {
	c.mu.Lock()
	c.loading = loading
	c.mu.Unlock()
}

func (c *AuthContainer) SetError(msg string) {
	c.mu.Lock()
	c.errMsg = msg
	c.mu.Unlock()
}

func (c *AuthContainer) ClearError() {
	c.SetError("")
}

func (c *AuthContainer) persistSession(ctx context.Context, user core.User, token string) error {
	if err := c.kv.Set(ctx, storage.KeyAuthToken, token); err != nil {
		return fmt.Errorf("persist auth token: %w", err)
	}

	serialized, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := c.kv.Set(ctx, storage.KeyUser, string(serialized)); err != nil {
		return fmt.Errorf("persist user: %w", err)
	}
	return nil
}
