package document

import (
	"context"
	"database/sql"
)

type Repository interface {
	Create(ctx context.Context, d *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context, includeDeleted bool) ([]Document, error)
	FindByHash(ctx context.Context, hash string) (*Document, error)
	UpdateStatus(ctx context.Context, id, status string) error
	MarkIndexed(ctx context.Context, id string, chunkCount, indexedChunkCount, pageCount int) error
	MarkFailed(ctx context.Context, id, detail string) error
	SoftDelete(ctx context.Context, id string) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const documentColumns = `id, owner_id, file_name, file_path, content_type, size_bytes, content_hash, status, chunk_count, indexed_chunk_count, page_count, error_detail, created_at, updated_at, deleted_at`

func scanDocument(row interface{ Scan(...interface{}) error }) (*Document, error) {
	d := &Document{}
	var errorDetail sql.NullString
	err := row.Scan(&d.ID, &d.OwnerID, &d.FileName, &d.FilePath, &d.ContentType, &d.SizeBytes,
		&d.ContentHash, &d.Status, &d.ChunkCount, &d.IndexedChunkCount, &d.PageCount,
		&errorDetail, &d.CreatedAt, &d.UpdatedAt, &d.DeletedAt)
	if err != nil {
		return nil, err
	}
	d.ErrorDetail = errorDetail.String
	return d, nil
}

func (r *PostgresRepo) Create(ctx context.Context, d *Document) error {
	query := `
		INSERT INTO documents (owner_id, file_name, file_path, content_type, size_bytes, content_hash, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query,
		d.OwnerID, d.FileName, d.FilePath, d.ContentType, d.SizeBytes, d.ContentHash, d.Status).
		Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return scanDocument(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepo) List(ctx context.Context, includeDeleted bool) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) FindByHash(ctx context.Context, hash string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE content_hash = $1 AND deleted_at IS NULL LIMIT 1`
	return scanDocument(r.db.QueryRowContext(ctx, query, hash))
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, id)
	return err
}

func (r *PostgresRepo) MarkIndexed(ctx context.Context, id string, chunkCount, indexedChunkCount, pageCount int) error {
	query := `
		UPDATE documents
		SET status = $1, chunk_count = $2, indexed_chunk_count = $3, page_count = $4,
		    error_detail = NULL, updated_at = NOW()
		WHERE id = $5`
	_, err := r.db.ExecContext(ctx, query, StatusIndexed, chunkCount, indexedChunkCount, pageCount, id)
	return err
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, detail string) error {
	query := `UPDATE documents SET status = $1, error_detail = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, StatusFailed, detail, id)
	return err
}

func (r *PostgresRepo) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE documents SET status = $1, deleted_at = NOW(), updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, StatusArchived, id)
	return err
}
