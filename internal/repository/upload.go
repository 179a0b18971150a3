package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/waflens/waflens/internal/model"
)

const uploadColumns = `id, filename, checksum, size, uploaded_at, raw_key, total, inserted, deduped`

// UploadRepository persists and reads upload records.
type UploadRepository struct {
	pool *pgxpool.Pool
}

// NewUploadRepository returns an UploadRepository using the given pool.
func NewUploadRepository(pool *pgxpool.Pool) *UploadRepository {
	return &UploadRepository{pool: pool}
}

// Create inserts a new upload and returns it with ID and UploadedAt set.
func (r *UploadRepository) Create(ctx context.Context, up *model.Upload) error {
	query := `
		INSERT INTO uploads (id, filename, checksum, size, raw_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, uploaded_at`
	if up.ID == uuid.Nil {
		up.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, query,
		up.ID,
		up.Filename,
		up.Checksum,
		up.Size,
		up.RawKey,
	).Scan(&up.ID, &up.UploadedAt)
}

func scanUpload(row pgx.Row) (*model.Upload, error) {
	var up model.Upload
	err := row.Scan(
		&up.ID,
		&up.Filename,
		&up.Checksum,
		&up.Size,
		&up.UploadedAt,
		&up.RawKey,
		&up.Total,
		&up.Inserted,
		&up.Deduped,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &up, nil
}

// GetByChecksum returns the upload with the given content checksum, or nil.
func (r *UploadRepository) GetByChecksum(ctx context.Context, checksum string) (*model.Upload, error) {
	return scanUpload(r.pool.QueryRow(ctx, `
		SELECT `+uploadColumns+`
		FROM uploads WHERE checksum = $1`, checksum))
}

// GetByID returns one upload by id, or nil if not found.
func (r *UploadRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Upload, error) {
	return scanUpload(r.pool.QueryRow(ctx, `
		SELECT `+uploadColumns+`
		FROM uploads WHERE id = $1`, id))
}

// List returns all uploads ordered by uploaded_at descending.
func (r *UploadRepository) List(ctx context.Context) ([]model.Upload, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+uploadColumns+`
		FROM uploads
		ORDER BY uploaded_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Upload
	for rows.Next() {
		up, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *up)
	}
	return list, rows.Err()
}

// Delete removes an upload; owned events go with it via FK cascade.
func (r *UploadRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM uploads WHERE id = $1`, id)
	return err
}

// AddStats increments the running counters after one batch completes.
func (r *UploadRepository) AddStats(ctx context.Context, id uuid.UUID, total, inserted, deduped int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE uploads
		SET total = total + $2, inserted = inserted + $3, deduped = deduped + $4
		WHERE id = $1`, id, total, inserted, deduped)
	return err
}

// SetStats overwrites the counters; used by reindex, which replaces the
// previous run's numbers rather than accumulating onto them.
func (r *UploadRepository) SetStats(ctx context.Context, id uuid.UUID, total, inserted, deduped int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE uploads
		SET total = $2, inserted = $3, deduped = $4
		WHERE id = $1`, id, total, inserted, deduped)
	return err
}
