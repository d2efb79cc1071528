package core

import (
	"errors"
	"time"
)

// Kind identifies which ledger a financial record belongs to.
type Kind string

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrUnknownKind   = errors.New("unknown record kind")
)

// User is the identity record owned by the auth container while a
// session is active.
type User struct {
	ID                 string `json:"id"`
	Name               string `json:"name" validate:"required,notblank"`
	Email              string `json:"email" validate:"required,email"`
	Currency           string `json:"currency" validate:"required,len=3"`
	CurrencySymbol     string `json:"currency_symbol"`
	MonthlyBudgetCents int64  `json:"monthly_budget_cents" validate:"gte=0"`
}

// Expense is a financial debit record. LocalID is assigned on-device at
// creation time and stays stable for the record's local lifetime;
// ServerID is set only once the record has been accepted remotely.
type Expense struct {
	LocalID       string    `json:"local_id"`
	ServerID      string    `json:"server_id,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	AmountCents   int64     `json:"amount_cents" validate:"required,gt=0"`
	Category      string    `json:"category" validate:"required,notblank"`
	CategoryIcon  string    `json:"category_icon,omitempty"`
	PaymentMethod string    `json:"payment_method" validate:"required,notblank"`
	Description   string    `json:"description,omitempty" validate:"max=200"`
	Date          time.Time `json:"date" validate:"required"`
	Synced        bool      `json:"synced"`
}

func (e Expense) Key() string { return e.LocalID }

func (e Expense) WithSynced(synced bool) Expense {
	e.Synced = synced
	return e
}

func (e Expense) WithServerID(id string) Expense {
	e.ServerID = id
	return e
}

// Income is a financial credit record, shaped like Expense but drawn
// from the income source catalog instead of category/payment method.
type Income struct {
	LocalID     string    `json:"local_id"`
	ServerID    string    `json:"server_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	AmountCents int64     `json:"amount_cents" validate:"required,gt=0"`
	Source      string    `json:"source" validate:"required,notblank"`
	SourceIcon  string    `json:"source_icon,omitempty"`
	Description string    `json:"description,omitempty" validate:"max=200"`
	Date        time.Time `json:"date" validate:"required"`
	Recurring   bool      `json:"recurring,omitempty"`
	Synced      bool      `json:"synced"`
}

func (i Income) Key() string { return i.LocalID }

func (i Income) WithSynced(synced bool) Income {
	i.Synced = synced
	return i
}

func (i Income) WithServerID(id string) Income {
	i.ServerID = id
	return i
}

// IncomeSource is a catalog entry for income categorization.
type IncomeSource struct {
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

var defaultIncomeSources = [...]IncomeSource{
	{Name: "Salary", Icon: "briefcase", Color: "#4CAF50"},
	{Name: "Freelance", Icon: "laptop", Color: "#2196F3"},
	{Name: "Investment", Icon: "trending-up", Color: "#9C27B0"},
	{Name: "Gift", Icon: "gift", Color: "#E91E63"},
	{Name: "Refund", Icon: "rotate-ccw", Color: "#FF9800"},
	{Name: "Other", Icon: "more-horizontal", Color: "#607D8B"},
}

// DefaultIncomeSources returns a fresh copy of the seed catalog. The
// seed itself is never mutated; custom catalogs replace it wholesale.
func DefaultIncomeSources() []IncomeSource {
	sources := make([]IncomeSource, len(defaultIncomeSources))
	copy(sources, defaultIncomeSources[:])
	return sources
}
