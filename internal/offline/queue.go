// Package offline implements the durable mutation queue used while the
// network is unavailable. Mutations are captured into a persistent queue and
// replayed against the same REST endpoints the online path uses, with
// bounded retries and explicit reporting of items that exhaust their budget.
package offline

import (
	"context"
	"encoding/json"
	"time"
)

// Op is the kind of queued mutation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// QueueItem is one not-yet-confirmed mutation. The JSON field names are the
// persisted wire format and must stay backward compatible across client
// versions; unknown extra fields are ignored on read.
type QueueItem struct {
	ID         string          `json:"id"`
	Op         Op              `json:"type"`
	Endpoint   string          `json:"endpoint"`
	Payload    json.RawMessage `json:"data,omitempty"`
	EnqueuedAt time.Time       `json:"timestamp"`
	RetryCount int             `json:"retryCount"`
}

// QueueStore persists pending mutations. The store is owned exclusively by
// the sync engine; no other component reads or writes it.
type QueueStore interface {
	// Append adds an item to the tail of the queue. The item must be durable
	// before Append returns.
	Append(ctx context.Context, item *QueueItem) error
	// Snapshot returns all pending items in enqueue order. Malformed
	// persisted records are dropped (and logged by the implementation)
	// rather than poisoning the rest of the queue.
	Snapshot(ctx context.Context) ([]*QueueItem, error)
	Remove(ctx context.Context, id string) error
	// IncrementRetry bumps the persisted retry count and returns the new
	// value.
	IncrementRetry(ctx context.Context, id string) (int, error)
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}

// FailureEvent reports an item that was dropped after exhausting its retry
// budget. It carries enough context for the caller to decide user-visible
// handling.
type FailureEvent struct {
	Item QueueItem
	Err  error
}
