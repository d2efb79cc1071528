package state

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// slowKV widens the write window so overlapping persistence calls
// actually overlap in tests.
type slowKV struct {
	*storage.MemoryKV
	delay time.Duration
}

func (s *slowKV) Set(ctx context.Context, key, value string) error {
	time.Sleep(s.delay)
	return s.MemoryKV.Set(ctx, key, value)
}

// failingKV rejects every operation.
type failingKV struct{}

var errStorageDown = errors.New("storage unavailable")

func (failingKV) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errStorageDown
}
func (failingKV) Set(ctx context.Context, key, value string) error { return errStorageDown }
func (failingKV) Delete(ctx context.Context, key string) error     { return errStorageDown }

func testExpense(localID string, amount int64) core.Expense {
	return core.Expense{
		LocalID:       localID,
		AmountCents:   amount,
		Category:      "Food",
		PaymentMethod: "Card",
		Date:          time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestLedger(kv storage.KV) *Ledger[core.Expense] {
	return newLedger[core.Expense](ContainerExpenses, storage.KeyExpenses, kv, nil)
}

func TestLedger_AddUpdateRemove(t *testing.T) {
	l := newTestLedger(storage.NewMemoryKV())

	l.Add(testExpense("loc_1_aa", 100))
	l.Add(testExpense("loc_2_bb", 200))

	records := l.Records()
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].LocalID != "loc_2_bb" {
		t.Errorf("sequence must be most-recent-first, got %s first", records[0].LocalID)
	}

	// update by local id
	updated := testExpense("loc_1_aa", 150)
	if !l.Update(updated) {
		t.Fatal("update of existing record should succeed")
	}
	if got, _ := l.Find("loc_1_aa"); got.AmountCents != 150 {
		t.Errorf("expected updated amount 150, got %d", got.AmountCents)
	}

	// update with non-matching id is a no-op
	before := l.Records()
	if l.Update(testExpense("loc_9_zz", 999)) {
		t.Error("update of missing record should report false")
	}
	after := l.Records()
	if len(before) != len(after) {
		t.Error("no-op update must leave the sequence unchanged")
	}

	if !l.Remove("loc_2_bb") {
		t.Fatal("remove of existing record should succeed")
	}
	if l.Len() != 1 {
		t.Errorf("expected 1 record after remove, got %d", l.Len())
	}
	if l.Remove("loc_2_bb") {
		t.Error("second remove should report false")
	}
}

func TestLedger_OneRecordPerIdentifier(t *testing.T) {
	l := newTestLedger(storage.NewMemoryKV())

	l.Add(testExpense("loc_1_aa", 100))
	l.Add(testExpense("loc_2_bb", 200))
	l.Add(testExpense("loc_3_cc", 300))
	l.Remove("loc_2_bb")
	l.Update(testExpense("loc_3_cc", 333))

	seen := make(map[string]int)
	for _, r := range l.Records() {
		seen[r.LocalID]++
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("identifier %s appears %d times", id, count)
		}
	}
	if _, ok := seen["loc_2_bb"]; ok {
		t.Error("removed identifier must not reappear")
	}
}

func TestLedger_MarkSynced(t *testing.T) {
	l := newTestLedger(storage.NewMemoryKV())

	l.Add(testExpense("loc_1_aa", 100))
	l.Add(testExpense("loc_2_bb", 200))

	if !l.MarkSynced("loc_1_aa") {
		t.Fatal("mark synced should succeed")
	}

	target, _ := l.Find("loc_1_aa")
	other, _ := l.Find("loc_2_bb")
	if !target.Synced {
		t.Error("targeted record should be synced")
	}
	if other.Synced {
		t.Error("other records must be unchanged")
	}
	if target.AmountCents != 100 {
		t.Error("only the synced flag may change")
	}

	// idempotent
	l.MarkSynced("loc_1_aa")
	again, _ := l.Find("loc_1_aa")
	if again != target.WithSynced(true) {
		t.Error("second mark synced must yield the same state")
	}

	if l.MarkSynced("loc_9_zz") {
		t.Error("mark synced on missing record should report false")
	}
}

func TestLedger_MergeServerID(t *testing.T) {
	l := newTestLedger(storage.NewMemoryKV())
	l.Add(testExpense("loc_1_aa", 100))

	if !l.MergeServerID("loc_1_aa", "srv-9") {
		t.Fatal("merge should succeed")
	}
	got, _ := l.Find("loc_1_aa")
	if got.ServerID != "srv-9" {
		t.Errorf("expected server id srv-9, got %s", got.ServerID)
	}
}

func TestLedger_SaveLocally(t *testing.T) {
	kv := storage.NewMemoryKV()
	l := newTestLedger(kv)
	ctx := context.Background()

	input := core.Expense{AmountCents: 1000, Category: "Food", PaymentMethod: "Cash", Date: time.Now(), Synced: true}
	record, err := l.SaveLocally(ctx, input)
	if err != nil {
		t.Fatalf("save locally: %v", err)
	}

	if record.LocalID == "" {
		t.Fatal("expected a generated local id")
	}
	if err := core.ValidateLocalID(record.LocalID); err != nil {
		t.Errorf("generated id should validate: %v", err)
	}
	if record.Synced {
		t.Error("new record must start unsynced regardless of input")
	}

	records := l.Records()
	if len(records) != 1 || records[0].LocalID != record.LocalID {
		t.Error("new record must appear at position 0")
	}

	// persisted sequence matches memory
	value, ok, _ := kv.Get(ctx, storage.KeyExpenses)
	if !ok {
		t.Fatal("sequence should be persisted")
	}
	var persisted []core.Expense
	if err := json.Unmarshal([]byte(value), &persisted); err != nil {
		t.Fatalf("decode persisted: %v", err)
	}
	if len(persisted) != 1 || persisted[0].LocalID != record.LocalID {
		t.Error("persisted sequence should contain the new record")
	}

	// a second save gets a distinct id and lands at position 0
	second, err := l.SaveLocally(ctx, input)
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if second.LocalID == record.LocalID {
		t.Error("local ids must be previously unseen")
	}
	if l.Records()[0].LocalID != second.LocalID {
		t.Error("latest record must be first")
	}
}

func TestLedger_SaveLocally_IgnoresSuppliedIdentifiers(t *testing.T) {
	l := newTestLedger(storage.NewMemoryKV())
	ctx := context.Background()

	first, err := l.SaveLocally(ctx, testExpense("", 100))
	if err != nil {
		t.Fatalf("save locally: %v", err)
	}

	// A caller replaying the first record's identifier (with server id
	// and synced flag set) must still get a brand-new local record.
	replay := testExpense(first.LocalID, 200)
	replay.ServerID = "srv-5"
	replay.Synced = true

	second, err := l.SaveLocally(ctx, replay)
	if err != nil {
		t.Fatalf("save locally: %v", err)
	}

	if second.LocalID == first.LocalID {
		t.Fatalf("supplied identifier %s was reused", first.LocalID)
	}
	if err := core.ValidateLocalID(second.LocalID); err != nil {
		t.Errorf("generated id should validate: %v", err)
	}
	if second.ServerID != "" {
		t.Error("supplied server id must be discarded")
	}
	if second.Synced {
		t.Error("supplied synced flag must be discarded")
	}

	seen := make(map[string]int)
	for _, r := range l.Records() {
		seen[r.LocalID]++
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("identifier %s appears %d times", id, count)
		}
	}
}

func TestLedger_SaveLocally_PersistFailure(t *testing.T) {
	l := newTestLedger(failingKV{})
	ctx := context.Background()

	record, err := l.SaveLocally(ctx, testExpense("", 100))
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if l.Err() == "" {
		t.Error("failure must be recorded in the error field")
	}
	// record stays in memory; it remains authoritative
	if _, ok := l.Find(record.LocalID); !ok {
		t.Error("record should remain in the in-memory sequence")
	}
}

func TestLedger_DeleteLocally(t *testing.T) {
	kv := storage.NewMemoryKV()
	l := newTestLedger(kv)
	ctx := context.Background()

	saved, _ := l.SaveLocally(ctx, testExpense("", 100))

	removed, err := l.DeleteLocally(ctx, saved.LocalID)
	if err != nil {
		t.Fatalf("delete locally: %v", err)
	}
	if removed != saved.LocalID {
		t.Errorf("expected removed id %s, got %s", saved.LocalID, removed)
	}
	if l.Len() != 0 {
		t.Error("record should be gone from memory")
	}

	value, _, _ := kv.Get(ctx, storage.KeyExpenses)
	var persisted []core.Expense
	_ = json.Unmarshal([]byte(value), &persisted)
	if len(persisted) != 0 {
		t.Error("record should be gone from storage")
	}

	if _, err := l.DeleteLocally(ctx, saved.LocalID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing record, got %v", err)
	}
}

func TestLedger_DeleteLocally_EmitsOneEvent(t *testing.T) {
	var events []Event
	l := newLedger[core.Expense](ContainerExpenses, storage.KeyExpenses, storage.NewMemoryKV(), func(e Event) {
		events = append(events, e)
	})
	ctx := context.Background()

	saved, _ := l.SaveLocally(ctx, testExpense("", 100))
	events = events[:0]

	if _, err := l.DeleteLocally(ctx, saved.LocalID); err != nil {
		t.Fatalf("delete locally: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("expected exactly 1 event for a delete, got %d: %+v", len(events), events)
	}
	if events[0].Op != OpDeleteLocally || events[0].LocalID != saved.LocalID {
		t.Errorf("event = %+v, want op %s for %s", events[0], OpDeleteLocally, saved.LocalID)
	}
}

func TestLedger_Load(t *testing.T) {
	kv := storage.NewMemoryKV()
	ctx := context.Background()

	t.Run("empty storage resolves to empty sequence", func(t *testing.T) {
		l := newTestLedger(kv)
		records, err := l.Load(ctx)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if len(records) != 0 {
			t.Errorf("expected empty sequence, got %d records", len(records))
		}
		if l.Loading() {
			t.Error("loading must be cleared")
		}
		if l.Err() != "" {
			t.Errorf("error must stay empty, got %q", l.Err())
		}
	})

	t.Run("stored sequence replaces memory wholesale", func(t *testing.T) {
		stored := []core.Expense{testExpense("loc_1_aa", 100), testExpense("loc_2_bb", 200)}
		serialized, _ := json.Marshal(stored)
		_ = kv.Set(ctx, storage.KeyExpenses, string(serialized))

		l := newTestLedger(kv)
		l.Add(testExpense("loc_9_zz", 999)) // pre-existing in-memory state

		records, err := l.Load(ctx)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(records))
		}
		if _, ok := l.Find("loc_9_zz"); ok {
			t.Error("load must replace, not merge")
		}
	})

	t.Run("read failure leaves prior records untouched", func(t *testing.T) {
		l := newTestLedger(failingKV{})
		l.Add(testExpense("loc_1_aa", 100))

		_, err := l.Load(ctx)
		if err == nil {
			t.Fatal("expected load error")
		}
		if l.Loading() {
			t.Error("loading must be cleared on failure")
		}
		if l.Err() == "" {
			t.Error("failure message must be recorded")
		}
		if l.Len() != 1 {
			t.Error("prior records must survive a failed load")
		}
	})
}

// Regression test for the stale-read-then-overwrite hazard: two saves
// issued without awaiting each other must both survive in durable
// storage once both settle.
func TestLedger_ConcurrentSavesLoseNothing(t *testing.T) {
	kv := &slowKV{MemoryKV: storage.NewMemoryKV(), delay: 20 * time.Millisecond}
	l := newTestLedger(kv)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]core.Expense, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			record, err := l.SaveLocally(ctx, testExpense("", int64(100*(i+1))))
			if err != nil {
				t.Errorf("save %d: %v", i, err)
			}
			results[i] = record
		}(i)
	}
	wg.Wait()

	value, ok, _ := kv.Get(ctx, storage.KeyExpenses)
	if !ok {
		t.Fatal("expected persisted sequence")
	}
	var persisted []core.Expense
	if err := json.Unmarshal([]byte(value), &persisted); err != nil {
		t.Fatalf("decode persisted: %v", err)
	}

	byID := make(map[string]bool, len(persisted))
	for _, r := range persisted {
		byID[r.LocalID] = true
	}
	for i, r := range results {
		if !byID[r.LocalID] {
			t.Errorf("record %d (%s) was lost in durable storage", i, r.LocalID)
		}
	}
	if len(persisted) != 2 {
		t.Errorf("expected 2 persisted records, got %d", len(persisted))
	}
}

func TestLedger_SetAllAndLastSynced(t *testing.T) {
	l := newTestLedger(storage.NewMemoryKV())

	l.Add(testExpense("loc_1_aa", 1))
	l.SetAll([]core.Expense{testExpense("loc_2_bb", 2)})

	if l.Len() != 1 {
		t.Fatalf("expected wholesale replacement, got %d records", l.Len())
	}
	if _, ok := l.Find("loc_1_aa"); ok {
		t.Error("previous records must be gone after SetAll")
	}

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.SetLastSynced(ts)
	if !l.LastSyncedAt().Equal(ts) {
		t.Errorf("expected last synced %v, got %v", ts, l.LastSyncedAt())
	}
}
