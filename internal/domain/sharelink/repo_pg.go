package sharelink

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns the PostgreSQL-backed share-link repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const shareLinkCols = `id, document_id, token, password_hash, max_views,
	view_count, last_viewed_at, active, expires_at, created_at`

func scanShareLink(row pgx.Row) (*ShareLink, error) {
	var l ShareLink
	err := row.Scan(&l.ID, &l.DocumentID, &l.Token, &l.PasswordHash, &l.MaxViews,
		&l.ViewCount, &l.LastViewedAt, &l.Active, &l.ExpiresAt, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &l, err
}

func (r *repoPG) Create(ctx context.Context, l *ShareLink) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO share_link (id, document_id, token, password_hash, max_views, active, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		l.ID, l.DocumentID, l.Token, l.PasswordHash, l.MaxViews, l.Active, l.ExpiresAt,
	).Scan(&l.CreatedAt)
}

func (r *repoPG) GetByToken(ctx context.Context, token string) (*ShareLink, error) {
	return scanShareLink(r.pool.QueryRow(ctx,
		`SELECT `+shareLinkCols+` FROM share_link WHERE token = $1`, token))
}

func (r *repoPG) Deactivate(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE share_link SET active = false WHERE token = $1`, token)
	return err
}

// RecordView performs the guard and the increment in one statement. The WHERE
// clause re-checks active, expiry and the view limit inside the database so
// two concurrent viewers of a maxViews=1 link cannot both succeed.
func (r *repoPG) RecordView(ctx context.Context, token string, now time.Time) (*ShareLink, bool, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE share_link
		SET view_count = view_count + 1, last_viewed_at = $2
		WHERE token = $1
		  AND active = true
		  AND expires_at > $2
		  AND (max_views IS NULL OR view_count < max_views)
		RETURNING `+shareLinkCols,
		token, now)
	l, err := scanShareLink(row)
	if errors.Is(err, ErrNotFound) {
		// Either the token does not exist or the guard failed; the service
		// re-resolves to distinguish the two.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return l, true, nil
}

func (r *repoPG) ListByDocument(ctx context.Context, documentID uuid.UUID, limit, offset int) ([]*ShareLink, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM share_link WHERE document_id = $1`, documentID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+shareLinkCols+` FROM share_link WHERE document_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, documentID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ShareLink
	for rows.Next() {
		l, err := scanShareLink(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, l)
	}
	return items, total, rows.Err()
}

func (r *repoPG) StatsByDocument(ctx context.Context, documentID uuid.UUID) (*Stats, error) {
	s := &Stats{DocumentID: documentID}
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE active),
		       COALESCE(SUM(view_count), 0)
		FROM share_link WHERE document_id = $1`, documentID,
	).Scan(&s.TotalLinks, &s.ActiveLinks, &s.TotalViews)
	if err != nil {
		return nil, err
	}
	return s, nil
}
