package documents

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, d *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	// GetByFingerprint returns the newest document carrying the given
	// fingerprint. Superseded versions keep their old fingerprint rows only
	// in audit history, so at most one current row matches.
	GetByFingerprint(ctx context.Context, fingerprint string) (*Document, error)
	Update(ctx context.Context, d *Document) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Document, int, error)
}
