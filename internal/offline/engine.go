package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config tunes the sync engine.
type Config struct {
	// MaxRetries is the number of delivery attempts before an item is
	// dropped and reported as permanently failed.
	MaxRetries int
	// AttemptTimeout bounds each individual delivery attempt so a hung
	// request cannot stall the drain.
	AttemptTimeout time.Duration
	// DrainInterval, when positive, enables a timer-based safety-net drain
	// in addition to connectivity-triggered ones.
	DrainInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 10 * time.Second
	}
}

// Engine owns the durable mutation queue: it captures mutations while the
// client is offline and drains them through the transport once connectivity
// returns. One engine instance exists per client session; the host
// application passes it where needed rather than going through globals.
type Engine struct {
	store     QueueStore
	transport Transport
	log       zerolog.Logger
	cfg       Config

	draining atomic.Bool
	online   atomic.Bool

	mu        sync.Mutex
	onFailure func(FailureEvent)
}

func NewEngine(store QueueStore, transport Transport, log zerolog.Logger, cfg Config) *Engine {
	cfg.applyDefaults()
	e := &Engine{store: store, transport: transport, log: log, cfg: cfg}
	e.online.Store(true)
	return e
}

// OnFailure registers the handler invoked for every retry-exhausted item.
// Terminal failures are never silent: if no handler is registered the engine
// still logs them.
func (e *Engine) OnFailure(fn func(FailureEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFailure = fn
}

// Enqueue durably captures one mutation. When Enqueue returns, the item has
// been persisted; a process crash immediately afterwards loses nothing.
func (e *Engine) Enqueue(ctx context.Context, op Op, endpoint string, payload json.RawMessage) (string, error) {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
	default:
		return "", fmt.Errorf("invalid operation %q", op)
	}
	if endpoint == "" {
		return "", fmt.Errorf("endpoint is required")
	}

	item := &QueueItem{
		ID:         uuid.NewString(),
		Op:         op,
		Endpoint:   endpoint,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := e.store.Append(ctx, item); err != nil {
		return "", fmt.Errorf("enqueue mutation: %w", err)
	}
	e.log.Debug().Str("item_id", item.ID).Str("op", string(op)).Str("endpoint", endpoint).
		Msg("mutation queued")
	return item.ID, nil
}

// SetOnline feeds the connectivity signal. A transition from offline to
// online triggers an immediate asynchronous drain; the engine never polls
// the network itself.
func (e *Engine) SetOnline(online bool) {
	was := e.online.Swap(online)
	if online && !was {
		e.log.Info().Msg("connectivity restored, draining offline queue")
		go func() {
			if err := e.Drain(context.Background()); err != nil {
				e.log.Error().Err(err).Msg("drain after reconnect failed")
			}
		}()
	}
}

// Online reports the last connectivity signal received.
func (e *Engine) Online() bool { return e.online.Load() }

// Draining reports whether a drain pass is currently running.
func (e *Engine) Draining() bool { return e.draining.Load() }

// Depth returns the number of pending items.
func (e *Engine) Depth(ctx context.Context) (int, error) {
	return e.store.Len(ctx)
}

// Clear discards all pending items without attempting delivery. Explicit,
// caller-invoked only.
func (e *Engine) Clear(ctx context.Context) error {
	return e.store.Clear(ctx)
}

// Drain attempts delivery of every currently queued item, in enqueue order,
// one at a time. Overlapping invocations are deduplicated: if a drain is
// already running the call is a no-op, so no item can be delivered twice by
// concurrent drains. Items that fail stay in place (keeping their position
// relative to later items) until they succeed or exhaust their retries.
func (e *Engine) Drain(ctx context.Context) error {
	if !e.draining.CompareAndSwap(false, true) {
		return nil
	}
	defer e.draining.Store(false)

	items, err := e.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot queue: %w", err)
	}
	if len(items) == 0 {
		return nil
	}
	e.log.Info().Int("pending", len(items)).Msg("draining offline queue")

	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !e.online.Load() {
			// Connectivity dropped mid-drain; leave the rest queued.
			e.log.Info().Msg("went offline mid-drain, stopping")
			return nil
		}
		e.deliverOne(ctx, item)
	}
	return nil
}

func (e *Engine) deliverOne(ctx context.Context, item *QueueItem) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	err := e.transport.Deliver(attemptCtx, item)
	cancel()

	if err == nil {
		if rmErr := e.store.Remove(ctx, item.ID); rmErr != nil {
			e.log.Error().Err(rmErr).Str("item_id", item.ID).
				Msg("delivered item could not be removed from queue")
		}
		return
	}

	if IsPermanent(err) {
		e.dropItem(ctx, item, err)
		return
	}

	retries, incErr := e.store.IncrementRetry(ctx, item.ID)
	if incErr != nil {
		e.log.Error().Err(incErr).Str("item_id", item.ID).Msg("failed to record retry")
		return
	}
	item.RetryCount = retries
	if retries >= e.cfg.MaxRetries {
		e.dropItem(ctx, item, err)
		return
	}
	e.log.Warn().Err(err).Str("item_id", item.ID).Int("retry", retries).
		Msg("delivery failed, will retry on next drain")
}

// dropItem removes a terminally failed item and reports it.
func (e *Engine) dropItem(ctx context.Context, item *QueueItem, cause error) {
	if err := e.store.Remove(ctx, item.ID); err != nil {
		e.log.Error().Err(err).Str("item_id", item.ID).Msg("failed to remove dropped item")
	}
	e.log.Error().Err(cause).
		Str("item_id", item.ID).
		Str("op", string(item.Op)).
		Str("endpoint", item.Endpoint).
		Int("attempts", item.RetryCount).
		Msg("mutation permanently failed")

	e.mu.Lock()
	fn := e.onFailure
	e.mu.Unlock()
	if fn != nil {
		fn(FailureEvent{Item: *item, Err: cause})
	}
}

// Run drives the optional timer-based safety-net drain until ctx is
// cancelled. Connectivity-triggered drains work whether or not Run is used.
func (e *Engine) Run(ctx context.Context) {
	if e.cfg.DrainInterval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(e.cfg.DrainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.online.Load() {
				continue
			}
			if err := e.Drain(ctx); err != nil && ctx.Err() == nil {
				e.log.Error().Err(err).Msg("scheduled drain failed")
			}
		}
	}
}
