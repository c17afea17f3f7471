package documents

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const documentCols = `id, patient_id, template_id, title, fields, fingerprint,
	status, created_by, created_at, updated_at`

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.PatientID, &d.TemplateID, &d.Title, &d.Fields,
		&d.Fingerprint, &d.Status, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &d, err
}

func (r *repoPG) Create(ctx context.Context, d *Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO document (id, patient_id, template_id, title, fields, fingerprint, status, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		d.ID, d.PatientID, d.TemplateID, d.Title, d.Fields, d.Fingerprint, d.Status, d.CreatedBy,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	return scanDocument(r.pool.QueryRow(ctx,
		`SELECT `+documentCols+` FROM document WHERE id = $1`, id))
}

func (r *repoPG) GetByFingerprint(ctx context.Context, fingerprint string) (*Document, error) {
	return scanDocument(r.pool.QueryRow(ctx,
		`SELECT `+documentCols+` FROM document WHERE fingerprint = $1
		 ORDER BY updated_at DESC LIMIT 1`, fingerprint))
}

func (r *repoPG) Update(ctx context.Context, d *Document) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE document
		SET template_id=$2, title=$3, fields=$4, fingerprint=$5, status=$6, updated_at=NOW()
		WHERE id = $1`,
		d.ID, d.TemplateID, d.Title, d.Fields, d.Fingerprint, d.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM document WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Document, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM document WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+documentCols+` FROM document WHERE patient_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}
