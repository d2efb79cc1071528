package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/remote"
	"fintrack/internal/state"
	"fintrack/internal/storage"
)

// RemoteGateway is the remote API surface the processor drains the
// queue against. Implemented by remote.Client.
type RemoteGateway interface {
	PushRecord(ctx context.Context, kind core.Kind, record json.RawMessage) (string, error)
	DeleteRecord(ctx context.Context, kind core.Kind, localID string) error
}

// SyncProcessorConfig holds configuration for the sync processor.
type SyncProcessorConfig struct {
	// PollInterval is how often to check for pending items.
	PollInterval time.Duration

	// BatchSize is the max number of items to process per poll cycle.
	BatchSize int

	// MaxRetries is the maximum retry attempts before marking as failed.
	MaxRetries int

	// CleanupInterval is how often to clean up completed items.
	CleanupInterval time.Duration

	// CleanupAge is how old completed items must be before cleanup.
	CleanupAge time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults.
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:    30 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// SyncProcessor drains the durable sync queue against the remote API
// and reflects the outcome back into the state store: successful items
// are marked synced with their server identifier merged in, conflicts
// and rejections fail permanently, transient failures are retried.
type SyncProcessor struct {
	storage *storage.SQLiteStore
	remote  RemoteGateway
	store   *state.Store
	config  SyncProcessorConfig
	logger  *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncProcessor(
	store *state.Store,
	sqlStore *storage.SQLiteStore,
	gateway RemoteGateway,
	config SyncProcessorConfig,
	logger *log.Logger,
) *SyncProcessor {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentProcessor)
	}
	return &SyncProcessor{
		storage: sqlStore,
		remote:  gateway,
		store:   store,
		config:  config,
		logger:  logger,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	// Items left in processing by a previous crash go back to pending.
	if err := p.storage.ResetStaleProcessing(ctx); err != nil {
		p.logger.WarnContext(ctx, "Failed to reset stale processing items", log.FieldError, err)
	}

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running.
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// Process immediately on startup
	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.ProcessBatch(ctx)
		case <-cleanupTicker.C:
			p.cleanupCompleted(ctx)
		}
	}
}

// ProcessBatch processes a single batch of pending items.
func (p *SyncProcessor) ProcessBatch(ctx context.Context) {
	items, err := p.storage.DequeueBatch(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to dequeue sync batch", log.FieldError, err)
		return
	}

	if len(items) == 0 {
		return
	}

	p.logger.DebugContext(ctx, "Processing sync batch", "count", len(items))

	for _, item := range items {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := p.storage.MarkProcessing(ctx, item.ID); err != nil {
			p.logger.ErrorContext(ctx, "Failed to mark item as processing",
				log.FieldQueueID, item.ID, log.FieldError, err)
			continue
		}

		var processErr error
		switch item.Operation {
		case storage.OpSync:
			processErr = p.processSyncItem(ctx, item)
		case storage.OpDelete:
			processErr = p.processDeleteItem(ctx, item)
		default:
			processErr = fmt.Errorf("unknown operation: %s", item.Operation)
		}

		if processErr != nil {
			p.handleFailure(ctx, item, processErr)
		} else {
			p.handleSuccess(ctx, item)
		}
	}
}

// processSyncItem pushes one record to the remote and merges the
// server-assigned identifier back into the matching container.
func (p *SyncProcessor) processSyncItem(ctx context.Context, item storage.QueueItem) error {
	serverID, err := p.remote.PushRecord(ctx, item.Kind, json.RawMessage(item.Payload))
	if err != nil {
		return fmt.Errorf("push %s %s: %w", item.Kind, item.LocalID, err)
	}

	if err := p.markSynced(ctx, item.Kind, item.LocalID, serverID); err != nil {
		// The remote accepted the record; losing the local flag is
		// recoverable on the next sync pass, not a queue failure.
		p.logger.WarnContext(ctx, "Failed to mark record as synced",
			log.FieldKind, item.Kind,
			log.FieldLocalID, item.LocalID,
			log.FieldError, err)
	}

	p.logger.InfoContext(ctx, "Record synced to remote",
		log.FieldKind, item.Kind,
		log.FieldLocalID, item.LocalID,
		log.FieldServerID, serverID)

	return nil
}

// processDeleteItem removes one record from the remote.
func (p *SyncProcessor) processDeleteItem(ctx context.Context, item storage.QueueItem) error {
	if err := p.remote.DeleteRecord(ctx, item.Kind, item.LocalID); err != nil {
		return fmt.Errorf("delete %s %s: %w", item.Kind, item.LocalID, err)
	}

	p.logger.InfoContext(ctx, "Record deleted from remote",
		log.FieldKind, item.Kind,
		log.FieldLocalID, item.LocalID)

	return nil
}

// markSynced flips the record's synced flag in memory and persists the
// updated sequence.
func (p *SyncProcessor) markSynced(ctx context.Context, kind core.Kind, localID, serverID string) error {
	switch kind {
	case core.KindExpense:
		p.store.Expenses.MarkSynced(localID)
		if serverID != "" {
			p.store.Expenses.MergeServerID(localID, serverID)
		}
		p.store.Expenses.QueueRemove(localID)
		p.store.Expenses.SetLastSynced(time.Now())
		return p.store.Expenses.Persist(ctx)
	case core.KindIncome:
		p.store.Income.MarkSynced(localID)
		if serverID != "" {
			p.store.Income.MergeServerID(localID, serverID)
		}
		p.store.Income.SetLastSynced(time.Now())
		return p.store.Income.Persist(ctx)
	default:
		return fmt.Errorf("mark synced: %w", core.ErrUnknownKind)
	}
}

func (p *SyncProcessor) handleSuccess(ctx context.Context, item storage.QueueItem) {
	if err := p.storage.MarkCompleted(ctx, item.ID); err != nil {
		p.logger.ErrorContext(ctx, "Failed to mark sync complete",
			log.FieldQueueID, item.ID, log.FieldError, err)
	}
}

// handleFailure retries transient failures and fails conflicts and
// rejections permanently.
func (p *SyncProcessor) handleFailure(ctx context.Context, item storage.QueueItem, processErr error) {
	p.logger.WarnContext(ctx, "Sync processing failed",
		log.FieldQueueID, item.ID,
		log.FieldOperation, item.Operation,
		log.FieldAttempts, item.Attempts+1,
		log.FieldError, processErr)

	permanent := errors.Is(processErr, remote.ErrConflict) || errors.Is(processErr, remote.ErrRejected)

	if permanent || item.Attempts+1 >= int64(p.config.MaxRetries) {
		if err := p.storage.MarkFailed(ctx, item.ID, processErr.Error()); err != nil {
			p.logger.ErrorContext(ctx, "Failed to mark sync as failed",
				log.FieldQueueID, item.ID, log.FieldError, err)
		}

		p.logger.ErrorContext(ctx, "Sync item failed permanently",
			log.FieldQueueID, item.ID,
			log.FieldKind, item.Kind,
			log.FieldLocalID, item.LocalID,
			log.FieldAttempts, item.Attempts+1)
		return
	}

	if err := p.storage.IncrementAttempt(ctx, item.ID, processErr.Error()); err != nil {
		p.logger.ErrorContext(ctx, "Failed to increment sync attempt",
			log.FieldQueueID, item.ID, log.FieldError, err)
	}
}

func (p *SyncProcessor) cleanupCompleted(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupAge)
	if err := p.storage.CleanupCompleted(ctx, cutoff); err != nil {
		p.logger.ErrorContext(ctx, "Failed to cleanup completed syncs", log.FieldError, err)
	}
}

// Stats returns current queue statistics.
func (p *SyncProcessor) Stats(ctx context.Context) (storage.QueueStats, error) {
	return p.storage.Stats(ctx)
}

// RetryFailed re-arms every failed item for another round of attempts
// and returns how many were re-armed.
func (p *SyncProcessor) RetryFailed(ctx context.Context) (int64, error) {
	return p.storage.RetryFailed(ctx)
}
