package sharelink

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence interface for share links. All mutations in
// the system funnel through the Service; no other caller writes these rows.
type Repository interface {
	Create(ctx context.Context, l *ShareLink) error
	GetByToken(ctx context.Context, token string) (*ShareLink, error)
	// Deactivate sets active=false. Idempotent; deactivating an already
	// inactive link is not an error.
	Deactivate(ctx context.Context, token string) error
	// RecordView atomically increments view_count and stamps last_viewed_at,
	// but only while the link is active, unexpired and under its view limit.
	// The guard and the increment must be one storage-level operation so
	// concurrent viewers cannot lose updates or overrun the limit. The
	// second return value is false when the condition did not hold.
	RecordView(ctx context.Context, token string, now time.Time) (*ShareLink, bool, error)
	ListByDocument(ctx context.Context, documentID uuid.UUID, limit, offset int) ([]*ShareLink, int, error)
	StatsByDocument(ctx context.Context, documentID uuid.UUID) (*Stats, error)
}
