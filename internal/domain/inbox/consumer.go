package inbox

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	inboxTracer     = otel.Tracer("lifedash/inbox")
	inboxMeter      = otel.Meter("lifedash/inbox")
	itemsHandled, _ = inboxMeter.Int64Counter("inbox.items.total", metric.WithDescription("Inbox items finalized by status"))
)

const (
	DefaultBatchSize    = 25
	DefaultPollInterval = 30 * time.Second
	finalizeTimeout     = 10 * time.Second
)

// Transform turns one claimed item into entity writes.
type Transform func(ctx context.Context, item *Item) error

type transformKey struct {
	provider   string
	entityType EntityType
}

// Consumer claims pending items and applies the matching transform.
type Consumer struct {
	repo         Repository
	batchSize    int
	pollInterval time.Duration
	now          func() time.Time

	mu       sync.RWMutex
	specific map[transformKey]Transform
	generic  map[EntityType]Transform
}

// NewConsumer creates a consumer. Non-positive sizes select the defaults.
func NewConsumer(repo Repository, batchSize int, pollInterval time.Duration) *Consumer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Consumer{
		repo:         repo,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		now:          time.Now,
		specific:     make(map[transformKey]Transform),
		generic:      make(map[EntityType]Transform),
	}
}

// Register sets the transform for items of entityType from provider.
func (c *Consumer) Register(provider string, entityType EntityType, fn Transform) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.specific[transformKey{provider, entityType}] = fn
}

// RegisterGeneric sets the fallback transform for entityType.
func (c *Consumer) RegisterGeneric(entityType EntityType, fn Transform) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generic[entityType] = fn
}

func (c *Consumer) transformFor(item *Item) (Transform, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if fn, ok := c.specific[transformKey{item.Provider, item.EntityType}]; ok {
		return fn, true
	}
	fn, ok := c.generic[item.EntityType]
	return fn, ok
}

// ProcessBatch claims one batch matching filter and finalizes every item.
func (c *Consumer) ProcessBatch(ctx context.Context, filter ClaimFilter) (BatchResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = c.batchSize
	}

	ctx, span := inboxTracer.Start(ctx, "inbox.process_batch",
		trace.WithAttributes(
			attribute.String("inbox.user_id", filter.UserID),
			attribute.String("inbox.provider", filter.Provider),
			attribute.Int("inbox.limit", filter.Limit),
		),
	)
	defer span.End()

	items, err := c.repo.Claim(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return BatchResult{}, fmt.Errorf("failed to claim inbox items: %w", err)
	}

	result := BatchResult{Claimed: len(items)}
	for _, item := range items {
		if c.processItem(ctx, item) {
			result.Processed++
		} else {
			result.Failed++
		}
	}

	span.SetAttributes(
		attribute.Int("inbox.processed", result.Processed),
		attribute.Int("inbox.failed", result.Failed),
	)
	return result, nil
}

func (c *Consumer) processItem(ctx context.Context, item *Item) (ok bool) {
	err := c.apply(ctx, item)

	status := StatusProcessed
	var errMsg *string
	if err != nil {
		status = StatusFailed
		msg := err.Error()
		errMsg = &msg
		log.Printf("User %s: inbox item %s (%s) failed: %v", item.UserID, item.ID, item.EntityType, err)
	}

	// Items must leave processing even when the caller's context is gone.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if cerr := c.repo.Complete(fctx, item.UserID, item.ID, status, errMsg, c.now().UTC()); cerr != nil {
		log.Printf("User %s: failed to finalize inbox item %s: %v", item.UserID, item.ID, cerr)
		return false
	}
	itemsHandled.Add(fctx, 1, metric.WithAttributes(
		attribute.String("status", string(status)),
		attribute.String("entity_type", string(item.EntityType)),
	))
	return err == nil
}

func (c *Consumer) apply(ctx context.Context, item *Item) (err error) {
	fn, ok := c.transformFor(item)
	if !ok {
		return fmt.Errorf("%w for %s/%s", ErrNoTransform, item.Provider, item.EntityType)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transform panicked: %v", r)
		}
	}()
	return fn(ctx, item)
}

// Drain processes batches matching filter until none are left.
func (c *Consumer) Drain(ctx context.Context, filter ClaimFilter) (BatchResult, error) {
	var total BatchResult
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res, err := c.ProcessBatch(ctx, filter)
		total.add(res)
		if err != nil {
			return total, err
		}
		if res.Claimed == 0 {
			return total, nil
		}
	}
}

// Run processes batches until ctx is done. Between empty batches it waits
// for the poll interval or a signal on wake, whichever comes first. wake
// may be nil.
func (c *Consumer) Run(ctx context.Context, wake <-chan struct{}) {
	log.Printf("Inbox consumer started (batch %d, poll %v)", c.batchSize, c.pollInterval)
	defer log.Println("Inbox consumer stopped")

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		res, err := c.ProcessBatch(ctx, ClaimFilter{Limit: c.batchSize})
		if err != nil && ctx.Err() == nil {
			log.Printf("Inbox consumer: %v", err)
		}
		if err == nil && res.Claimed == c.batchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case _, ok := <-wake:
			if !ok {
				wake = nil
			}
		}
	}
}
