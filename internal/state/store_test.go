package state

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/storage"
)

func TestStore_ComposedContainers(t *testing.T) {
	s := New(storage.NewMemoryKV(), nil, nil)

	if s.Auth == nil || s.Expenses == nil || s.Income == nil {
		t.Fatal("all three containers must be constructed")
	}

	snapshot := s.Snapshot()
	if len(snapshot.Expenses.Records) != 0 {
		t.Error("expense records should start empty")
	}
	if len(snapshot.Income.Sources) != 6 {
		t.Errorf("income sources should start from the seed catalog, got %d", len(snapshot.Income.Sources))
	}
}

func TestStore_SubscribeReceivesMutations(t *testing.T) {
	s := New(storage.NewMemoryKV(), nil, nil)

	var events []Event
	unsubscribe := s.Subscribe(func(e Event) { events = append(events, e) })

	s.Expenses.Add(testExpense("loc_1_aa", 100))
	_ = s.Auth.SetCredentials(context.Background(), testUser(), "token-abc")
	s.Income.SetSummary(core.BalanceSummary{NetBalanceCents: 5})

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Container != ContainerExpenses || events[0].Op != OpAdd {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Container != ContainerAuth || events[1].Op != OpSetCredentials {
		t.Errorf("unexpected second event: %+v", events[1])
	}
	if events[2].Container != ContainerIncome || events[2].Op != OpSetSummary {
		t.Errorf("unexpected third event: %+v", events[2])
	}

	unsubscribe()
	s.Expenses.Add(testExpense("loc_2_bb", 200))
	if len(events) != 3 {
		t.Error("unsubscribed listener must not receive events")
	}
}

func TestStore_HydrateRestoresEverything(t *testing.T) {
	kv := storage.NewMemoryKV()
	ctx := context.Background()

	// seed storage as a previous run would have left it
	user := testUser()
	userJSON, _ := json.Marshal(user)
	_ = kv.Set(ctx, storage.KeyUser, string(userJSON))
	_ = kv.Set(ctx, storage.KeyAuthToken, "token-abc")

	expenses := []core.Expense{testExpense("loc_1_aa", 100)}
	expensesJSON, _ := json.Marshal(expenses)
	_ = kv.Set(ctx, storage.KeyExpenses, string(expensesJSON))

	incomes := []core.Income{{LocalID: "loc_2_bb", AmountCents: 900, Source: "Salary", Date: time.Now(), Synced: true}}
	incomesJSON, _ := json.Marshal(incomes)
	_ = kv.Set(ctx, storage.KeyIncome, string(incomesJSON))

	s := New(kv, nil, nil)
	if err := s.Hydrate(ctx); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	snapshot := s.Snapshot()
	if !snapshot.Auth.IsAuthenticated || snapshot.Auth.User.ID != "user-1" {
		t.Errorf("session not restored: %+v", snapshot.Auth)
	}
	if len(snapshot.Expenses.Records) != 1 || snapshot.Expenses.Records[0].LocalID != "loc_1_aa" {
		t.Errorf("expenses not restored: %+v", snapshot.Expenses.Records)
	}
	if len(snapshot.Income.Records) != 1 || snapshot.Income.Records[0].Source != "Salary" {
		t.Errorf("income not restored: %+v", snapshot.Income.Records)
	}
}

func TestStore_HydrateEmptyStorage(t *testing.T) {
	s := New(storage.NewMemoryKV(), nil, nil)

	if err := s.Hydrate(context.Background()); err != nil {
		t.Fatalf("hydrate on empty storage must succeed: %v", err)
	}

	snapshot := s.Snapshot()
	if snapshot.Auth.IsAuthenticated {
		t.Error("no session should be restored")
	}
	if len(snapshot.Expenses.Records) != 0 || len(snapshot.Income.Records) != 0 {
		t.Error("ledgers should hydrate empty")
	}
}

func TestStore_HydrateDiscardsPartialSession(t *testing.T) {
	kv := storage.NewMemoryKV()
	ctx := context.Background()

	// token without user
	_ = kv.Set(ctx, storage.KeyAuthToken, "orphan-token")

	s := New(kv, nil, nil)
	if err := s.Hydrate(ctx); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	if s.Auth.State().IsAuthenticated {
		t.Error("partial session must never authenticate")
	}
	if _, ok, _ := kv.Get(ctx, storage.KeyAuthToken); ok {
		t.Error("orphaned token should be cleared from storage")
	}
}

func TestStore_HydrateDiscardsExpiredToken(t *testing.T) {
	kv := storage.NewMemoryKV()
	ctx := context.Background()

	expiredIssuer := auth.NewTokenService("secret", -time.Minute)
	token, err := expiredIssuer.Generate("user-1")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	userJSON, _ := json.Marshal(testUser())
	_ = kv.Set(ctx, storage.KeyUser, string(userJSON))
	_ = kv.Set(ctx, storage.KeyAuthToken, token)

	s := New(kv, auth.NewTokenService("secret", time.Hour), nil)
	if err := s.Hydrate(ctx); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	if s.Auth.State().IsAuthenticated {
		t.Error("expired session must not be restored")
	}
	if _, ok, _ := kv.Get(ctx, storage.KeyAuthToken); ok {
		t.Error("stale token should be cleared from storage")
	}
	if _, ok, _ := kv.Get(ctx, storage.KeyUser); ok {
		t.Error("stale user should be cleared from storage")
	}
}

func TestExpenseContainer_QueueView(t *testing.T) {
	c := newExpenseContainer(storage.NewMemoryKV(), nil)

	c.QueueAdd(testExpense("loc_1_aa", 100))
	c.QueueAdd(testExpense("loc_2_bb", 200))

	if len(c.Queue()) != 2 {
		t.Fatalf("expected 2 queued records, got %d", len(c.Queue()))
	}

	c.QueueRemove("loc_1_aa")
	queue := c.Queue()
	if len(queue) != 1 || queue[0].LocalID != "loc_2_bb" {
		t.Errorf("unexpected queue after remove: %+v", queue)
	}
}

func TestIncomeContainer_SourcesAndSummary(t *testing.T) {
	c := newIncomeContainer(storage.NewMemoryKV(), nil)

	if len(c.Sources()) != 6 {
		t.Fatalf("expected 6 seed sources, got %d", len(c.Sources()))
	}

	custom := []core.IncomeSource{{Name: "Royalties", Icon: "book", Color: "#000000"}}
	c.SetSources(custom)
	if got := c.Sources(); len(got) != 1 || got[0].Name != "Royalties" {
		t.Errorf("custom catalog must replace wholesale: %+v", got)
	}

	c.ResetSources()
	if got := c.Sources(); len(got) != 6 || got[0].Name != "Salary" {
		t.Errorf("reset must restore the seed: %+v", got)
	}

	summary := core.BalanceSummary{TotalIncomeCents: 100, ComputedAt: time.Now()}
	c.SetSummary(summary)
	if c.Summary().TotalIncomeCents != 100 {
		t.Error("summary must be cached")
	}
}
