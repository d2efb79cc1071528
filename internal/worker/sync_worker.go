// Package worker implements the message-driven sync worker: a separate
// process that consumes record messages from AMQP and submits records
// to the remote API, working off durable storage alone.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/remote"
	"fintrack/internal/storage"
)

// RemoteGateway is the remote API surface the worker submits records
// to. Implemented by remote.Client.
type RemoteGateway interface {
	PushRecord(ctx context.Context, kind core.Kind, record json.RawMessage) (string, error)
	DeleteRecord(ctx context.Context, kind core.Kind, localID string) error
}

// SyncWorker submits records to the remote API on AMQP nudges. It has
// no in-memory state store; records are read from and flagged in the
// durable KV, and matching queue rows are completed so the poll
// processor does not submit them again.
type SyncWorker struct {
	storage   *storage.SQLiteStore
	remote    RemoteGateway
	logger    *log.Logger
	batchSize int
}

func NewSyncWorker(sqlStore *storage.SQLiteStore, gateway RemoteGateway, batchSize int, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentWorker)
	}
	if batchSize < 1 {
		batchSize = 10
	}
	return &SyncWorker{
		storage:   sqlStore,
		remote:    gateway,
		logger:    logger,
		batchSize: batchSize,
	}
}

// HandleMessage processes a single record message from AMQP.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *amqp.RecordMessage) error {
	switch msg.Operation {
	case amqp.OperationSync:
		return w.handleSync(ctx, msg)
	case amqp.OperationDelete:
		return w.handleDelete(ctx, msg)
	default:
		// Drop unknown operations instead of requeueing them forever.
		w.logger.WarnContext(ctx, "Dropping message with unknown operation",
			log.FieldOperation, msg.Operation,
			log.FieldLocalID, msg.LocalID)
		return nil
	}
}

func (w *SyncWorker) handleSync(ctx context.Context, msg *amqp.RecordMessage) error {
	record, err := w.storage.GetRecordJSON(ctx, msg.Kind, msg.LocalID)
	if err != nil {
		// The record was deleted locally before the message arrived;
		// the delete message will follow.
		if errors.Is(err, storage.ErrNotFound) {
			w.logger.InfoContext(ctx, "Record gone before sync, dropping message",
				log.FieldKind, msg.Kind,
				log.FieldLocalID, msg.LocalID)
			return nil
		}
		return fmt.Errorf("load record %s: %w", msg.LocalID, err)
	}

	serverID, err := w.remote.PushRecord(ctx, msg.Kind, record)
	if err != nil {
		if errors.Is(err, remote.ErrConflict) || errors.Is(err, remote.ErrRejected) {
			// Permanent; requeueing would loop. The poll processor's
			// retry accounting reports these through the queue stats.
			w.logger.ErrorContext(ctx, "Remote refused record, dropping message",
				log.FieldKind, msg.Kind,
				log.FieldLocalID, msg.LocalID,
				log.FieldError, err)
			return nil
		}
		return fmt.Errorf("push record %s: %w", msg.LocalID, err)
	}

	if err := w.storage.MarkRecordSynced(ctx, msg.Kind, msg.LocalID, serverID); err != nil {
		w.logger.WarnContext(ctx, "Failed to flag record as synced",
			log.FieldKind, msg.Kind,
			log.FieldLocalID, msg.LocalID,
			log.FieldError, err)
		// The remote accepted the record; don't requeue.
	}

	w.completeQueueRow(ctx, msg.Kind, msg.LocalID, storage.OpSync)

	w.logger.InfoContext(ctx, "Record synced to remote",
		log.FieldKind, msg.Kind,
		log.FieldLocalID, msg.LocalID,
		log.FieldServerID, serverID)

	return nil
}

func (w *SyncWorker) handleDelete(ctx context.Context, msg *amqp.RecordMessage) error {
	if err := w.remote.DeleteRecord(ctx, msg.Kind, msg.LocalID); err != nil {
		if errors.Is(err, remote.ErrConflict) || errors.Is(err, remote.ErrRejected) {
			w.logger.ErrorContext(ctx, "Remote refused delete, dropping message",
				log.FieldKind, msg.Kind,
				log.FieldLocalID, msg.LocalID,
				log.FieldError, err)
			return nil
		}
		return fmt.Errorf("delete record %s: %w", msg.LocalID, err)
	}

	w.completeQueueRow(ctx, msg.Kind, msg.LocalID, storage.OpDelete)

	w.logger.InfoContext(ctx, "Record deleted from remote",
		log.FieldKind, msg.Kind,
		log.FieldLocalID, msg.LocalID)

	return nil
}

func (w *SyncWorker) completeQueueRow(ctx context.Context, kind core.Kind, localID, operation string) {
	if _, err := w.storage.CompletePending(ctx, kind, localID, operation); err != nil {
		w.logger.WarnContext(ctx, "Failed to complete matching queue row",
			log.FieldKind, kind,
			log.FieldLocalID, localID,
			log.FieldError, err)
	}
}

// StartupSyncCheck drains pending queue items at worker startup. This
// recovers from missed AMQP messages or worker downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	total, synced, failed, err := w.drainPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending items for startup check: %w", err)
	}

	if total == 0 {
		w.logger.InfoContext(ctx, "No pending sync items found on startup")
		return nil
	}

	w.logger.InfoContext(ctx, "Startup sync completed",
		"total", total,
		"synced", synced,
		"errors", failed)

	return nil
}

// ProcessPending drains a single batch of pending items. Called
// periodically as a backup for lost AMQP messages.
func (w *SyncWorker) ProcessPending(ctx context.Context) error {
	_, _, _, err := w.drainPending(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending items: %w", err)
	}
	return nil
}

func (w *SyncWorker) drainPending(ctx context.Context, limit int) (total, synced, failed int, err error) {
	items, err := w.storage.DequeueBatch(ctx, limit)
	if err != nil {
		return 0, 0, 0, err
	}

	for _, item := range items {
		msg := &amqp.RecordMessage{
			TraceID:   item.TraceID,
			Kind:      item.Kind,
			LocalID:   item.LocalID,
			Operation: item.Operation,
			Payload:   json.RawMessage(item.Payload),
		}
		if err := w.HandleMessage(ctx, msg); err != nil {
			w.logger.ErrorContext(ctx, "Failed to process pending item",
				log.FieldQueueID, item.ID,
				log.FieldLocalID, item.LocalID,
				log.FieldError, err)
			failed++
			continue
		}
		synced++
	}

	return len(items), synced, failed, nil
}
