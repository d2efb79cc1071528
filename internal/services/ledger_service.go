// Package services holds the use-case layer between the state store
// and the outside world: saving and deleting records with offline
// queueing, deriving the balance summary and draining the sync queue.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/state"
	"fintrack/internal/storage"
	"fintrack/internal/validator"
)

// SyncQueue is the durable queue records are enqueued to when saved or
// deleted locally. Implemented by storage.SQLiteStore.
type SyncQueue interface {
	Enqueue(ctx context.Context, kind core.Kind, localID, operation, payload string) (int64, error)
}

// Publisher nudges the worker process that new queue items exist.
// Optional; the poll-based processor drains the queue without it.
type Publisher interface {
	PublishRecord(ctx context.Context, msg *amqp.RecordMessage) error
}

// LedgerService implements the save and delete flows: validate, apply
// to the in-memory container, persist locally, enqueue for remote
// submission. The local write is authoritative; a full or unreachable
// queue never undoes it.
type LedgerService struct {
	store     *state.Store
	queue     SyncQueue
	publisher Publisher
	logger    *log.Logger
}

func NewLedgerService(store *state.Store, queue SyncQueue, publisher Publisher, logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentApp)
	}
	return &LedgerService{
		store:     store,
		queue:     queue,
		publisher: publisher,
		logger:    logger,
	}
}

// SaveExpense validates and saves an expense locally, then queues it
// for remote submission. The saved record (with its assigned local
// identifier) is returned even when queueing fails.
func (s *LedgerService) SaveExpense(ctx context.Context, expense core.Expense) (core.Expense, error) {
	if err := validator.Struct(expense); err != nil {
		return core.Expense{}, err
	}

	saved, err := s.store.Expenses.SaveLocally(ctx, expense)
	if err != nil {
		return saved, fmt.Errorf("save expense locally: %w", err)
	}

	s.store.Expenses.QueueAdd(saved)

	if err := s.enqueueSync(ctx, core.KindExpense, saved.LocalID, saved); err != nil {
		return saved, err
	}
	return saved, nil
}

// SaveIncome validates and saves an income record locally, then queues
// it for remote submission.
func (s *LedgerService) SaveIncome(ctx context.Context, income core.Income) (core.Income, error) {
	if err := validator.Struct(income); err != nil {
		return core.Income{}, err
	}

	saved, err := s.store.Income.SaveLocally(ctx, income)
	if err != nil {
		return saved, fmt.Errorf("save income locally: %w", err)
	}

	if err := s.enqueueSync(ctx, core.KindIncome, saved.LocalID, saved); err != nil {
		return saved, err
	}
	return saved, nil
}

// Delete removes a record from its ledger and queues the remote
// deletion. The record snapshot is taken before removal so the delete
// can be replayed after the record is gone locally.
func (s *LedgerService) Delete(ctx context.Context, kind core.Kind, localID string) error {
	if err := core.ValidateLocalID(localID); err != nil {
		return err
	}

	var snapshot any
	switch kind {
	case core.KindExpense:
		record, ok := s.store.Expenses.Find(localID)
		if !ok {
			return fmt.Errorf("delete expense %s: %w", localID, storage.ErrNotFound)
		}
		snapshot = record
		if _, err := s.store.Expenses.DeleteLocally(ctx, localID); err != nil {
			return err
		}
		s.store.Expenses.QueueRemove(localID)
	case core.KindIncome:
		record, ok := s.store.Income.Find(localID)
		if !ok {
			return fmt.Errorf("delete income %s: %w", localID, storage.ErrNotFound)
		}
		snapshot = record
		if _, err := s.store.Income.DeleteLocally(ctx, localID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("delete %s: %w", kind, core.ErrUnknownKind)
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode %s snapshot: %w", kind, err)
	}

	if _, err := s.queue.Enqueue(ctx, kind, localID, storage.OpDelete, string(payload)); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil
		}
		return fmt.Errorf("enqueue %s delete: %w", kind, err)
	}

	s.publish(ctx, amqp.NewRecordDeleteMessage(uuid.NewString(), kind, localID, payload))
	return nil
}

func (s *LedgerService) enqueueSync(ctx context.Context, kind core.Kind, localID string, record any) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}

	if _, err := s.queue.Enqueue(ctx, kind, localID, storage.OpSync, string(payload)); err != nil {
		// An identical pending submission means the record is already
		// on its way; nothing to do.
		if errors.Is(err, storage.ErrDuplicate) {
			return nil
		}
		return fmt.Errorf("enqueue %s sync: %w", kind, err)
	}

	s.publish(ctx, amqp.NewRecordSyncMessage(uuid.NewString(), kind, localID))
	return nil
}

// publish is best-effort: the durable queue is authoritative and the
// poll processor will pick the item up if the broker is down.
func (s *LedgerService) publish(ctx context.Context, msg *amqp.RecordMessage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishRecord(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish record message, poll processor will pick it up",
			log.FieldError, err,
			log.FieldKind, msg.Kind,
			log.FieldLocalID, msg.LocalID,
			log.FieldOperation, msg.Operation)
	}
}
