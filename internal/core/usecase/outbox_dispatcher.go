package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/atvirokodosprendimai/eventsapi/internal/core/domain"
	"github.com/atvirokodosprendimai/eventsapi/internal/core/ports"
)

const (
	defaultOutboxInterval    = 2 * time.Second
	defaultOutboxBatchSize   = 50
	defaultOutboxMaxAttempts = 5
	maxOutboxBackoff         = 5 * time.Minute
)

// OutboxDispatcherConfig tunes the polling loop. Zero values fall back to
// defaults.
type OutboxDispatcherConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	Logger      *zap.Logger
}

// OutboxDispatcher delivers pending outbox rows written alongside event
// mutations. Rows that keep failing are dead-lettered after MaxAttempts.
type OutboxDispatcher struct {
	repo      ports.OutboxRepository
	publisher ports.EventPublisher
	cfg       OutboxDispatcherConfig
	log       *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	delivered atomic.Int64
	failed    atomic.Int64
	dead      atomic.Int64
}

type OutboxDispatcherMetrics struct {
	DispatchSuccessTotal int64
	DispatchFailureTotal int64
	DispatchDeadTotal    int64
}

// deliveryOutcome is what happened to one outbox row in a batch.
type deliveryOutcome int

const (
	outcomeDelivered deliveryOutcome = iota
	outcomeRetry
	outcomeDead
)

func NewOutboxDispatcher(repo ports.OutboxRepository, publisher ports.EventPublisher, cfg OutboxDispatcherConfig) *OutboxDispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultOutboxInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultOutboxBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultOutboxMaxAttempts
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &OutboxDispatcher{repo: repo, publisher: publisher, cfg: cfg, log: log}
}

// Start launches the polling loop once. Later calls are no-ops until Close.
func (d *OutboxDispatcher) Start(parent context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	d.wg.Add(1)
	go d.run(ctx)
}

// Close stops the loop and waits for the in-flight batch.
func (d *OutboxDispatcher) Close() error {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	return nil
}

func (d *OutboxDispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.log.Debug("outbox dispatcher started", zap.Duration("interval", d.cfg.Interval), zap.Int("batch_size", d.cfg.BatchSize))
	for {
		if err := d.dispatchBatch(ctx); err != nil && ctx.Err() == nil {
			d.log.Error("outbox dispatch batch", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			d.log.Debug("outbox dispatcher stopped")
			return
		case <-ticker.C:
		}
	}
}

func (d *OutboxDispatcher) dispatchBatch(ctx context.Context) error {
	rows, err := d.repo.FetchPending(ctx, d.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("fetch pending outbox rows: %w", err)
	}

	for _, row := range rows {
		outcome, err := d.deliver(ctx, row)
		if err != nil {
			return err
		}
		switch outcome {
		case outcomeDelivered:
			d.delivered.Add(1)
		case outcomeRetry:
			d.failed.Add(1)
		case outcomeDead:
			d.failed.Add(1)
			d.dead.Add(1)
		}
	}
	return nil
}

// deliver publishes one row and records the result. The returned error is
// only set when the outbox bookkeeping itself fails.
func (d *OutboxDispatcher) deliver(ctx context.Context, row domain.OutboxEvent) (deliveryOutcome, error) {
	var envelope domain.EventEnvelope
	if err := json.Unmarshal(row.PayloadJSON, &envelope); err != nil {
		return d.recordFailure(ctx, row, fmt.Sprintf("decode payload: %v", err))
	}

	if err := d.publisher.Publish(ctx, row.Topic, envelope); err != nil {
		d.log.Warn("outbox publish failed",
			zap.Int64("outbox_id", row.ID),
			zap.String("topic", row.Topic),
			zap.Int("attempt", row.Attempts+1),
			zap.Error(err))
		return d.recordFailure(ctx, row, err.Error())
	}

	if err := d.repo.MarkDispatched(ctx, row.ID); err != nil {
		return outcomeDelivered, fmt.Errorf("mark outbox %d dispatched: %w", row.ID, err)
	}
	return outcomeDelivered, nil
}

func (d *OutboxDispatcher) recordFailure(ctx context.Context, row domain.OutboxEvent, reason string) (deliveryOutcome, error) {
	attempts := row.Attempts + 1
	if attempts >= d.cfg.MaxAttempts {
		if err := d.repo.MarkDead(ctx, row.ID, attempts, reason); err != nil {
			return outcomeDead, fmt.Errorf("mark outbox %d dead: %w", row.ID, err)
		}
		d.log.Error("outbox event dead-lettered",
			zap.Int64("outbox_id", row.ID),
			zap.String("event_id", row.EventID),
			zap.Int("attempts", attempts),
			zap.String("last_error", reason))
		return outcomeDead, nil
	}

	next := time.Now().UTC().Add(retryDelay(attempts)).Format(time.RFC3339Nano)
	if err := d.repo.MarkFailed(ctx, row.ID, attempts, next, reason); err != nil {
		return outcomeRetry, fmt.Errorf("mark outbox %d failed: %w", row.ID, err)
	}
	return outcomeRetry, nil
}

func (d *OutboxDispatcher) Metrics() OutboxDispatcherMetrics {
	return OutboxDispatcherMetrics{
		DispatchSuccessTotal: d.delivered.Load(),
		DispatchFailureTotal: d.failed.Load(),
		DispatchDeadTotal:    d.dead.Load(),
	}
}

// retryDelay grows quadratically with the attempt number: 1s, 4s, 9s, ...
func retryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return time.Second
	}
	delay := time.Duration(attempt*attempt) * time.Second
	return min(delay, maxOutboxBackoff)
}
