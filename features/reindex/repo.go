package reindex

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

type Repository interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	LatestFinishedRun(ctx context.Context) (*Run, error)

	// FindActiveRun returns the run currently occupying the reindex
	// slot, or nil when none is in flight.
	FindActiveRun(ctx context.Context) (*Run, error)

	SetRunStatus(ctx context.Context, id, status string) error
	FinishRun(ctx context.Context, id, status, errorDetail string) error
	MarkApplied(ctx context.Context, id string) error
	UpdateRunCounts(ctx context.Context, run *Run) error

	CreateItems(ctx context.Context, items []Item) error
	ListItems(ctx context.Context, runID string) ([]Item, error)
	ListItemsByStatus(ctx context.Context, runID string, statuses []string) ([]Item, error)

	MarkItemSucceeded(ctx context.Context, id string, chunkCount int, needsCatchup bool) error
	MarkItemFailed(ctx context.Context, id, status, errorDetail string) error
	ResetItemSnapshot(ctx context.Context, id, contentHash string, updatedAt time.Time) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

var activeRunStatuses = []string{RunQueued, RunRunning, RunCatchupPending, RunCatchupRunning, RunApplyReady}

const runColumns = `id, profile_id, staging_collection, status, total_documents, succeeded_count, failed_count, locked_count, skipped_count, catchup_count, error_detail, created_at, started_at, finished_at, applied_at`

func scanRun(row interface{ Scan(...interface{}) error }) (*Run, error) {
	r := &Run{}
	var errorDetail sql.NullString
	err := row.Scan(&r.ID, &r.ProfileID, &r.StagingCollection, &r.Status, &r.TotalDocuments,
		&r.SucceededCount, &r.FailedCount, &r.LockedCount, &r.SkippedCount, &r.CatchupCount,
		&errorDetail, &r.CreatedAt, &r.StartedAt, &r.FinishedAt, &r.AppliedAt)
	if err != nil {
		return nil, err
	}
	r.ErrorDetail = errorDetail.String
	return r, nil
}

func (r *PostgresRepo) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO embedding_reindex_runs (profile_id, staging_collection, status, total_documents)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query,
		run.ProfileID, run.StagingCollection, run.Status, run.TotalDocuments).
		Scan(&run.ID, &run.CreatedAt)
}

func (r *PostgresRepo) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM embedding_reindex_runs WHERE id = $1`
	return scanRun(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepo) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM embedding_reindex_runs ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (r *PostgresRepo) LatestFinishedRun(ctx context.Context) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM embedding_reindex_runs WHERE finished_at IS NOT NULL ORDER BY finished_at DESC LIMIT 1`
	run, err := scanRun(r.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (r *PostgresRepo) FindActiveRun(ctx context.Context) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM embedding_reindex_runs WHERE status = ANY($1) ORDER BY created_at DESC LIMIT 1`
	run, err := scanRun(r.db.QueryRowContext(ctx, query, pq.Array(activeRunStatuses)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (r *PostgresRepo) SetRunStatus(ctx context.Context, id, status string) error {
	query := `
		UPDATE embedding_reindex_runs
		SET status = $1,
		    started_at = CASE WHEN started_at IS NULL AND $1 IN ($2, $3) THEN NOW() ELSE started_at END
		WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, status, RunRunning, RunCatchupRunning, id)
	return err
}

func (r *PostgresRepo) FinishRun(ctx context.Context, id, status, errorDetail string) error {
	query := `
		UPDATE embedding_reindex_runs
		SET status = $1, error_detail = NULLIF($2, ''), finished_at = NOW()
		WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, status, errorDetail, id)
	return err
}

func (r *PostgresRepo) MarkApplied(ctx context.Context, id string) error {
	query := `UPDATE embedding_reindex_runs SET status = $1, applied_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, RunApplied, id)
	return err
}

func (r *PostgresRepo) UpdateRunCounts(ctx context.Context, run *Run) error {
	query := `
		UPDATE embedding_reindex_runs
		SET succeeded_count = $1, failed_count = $2, locked_count = $3, skipped_count = $4, catchup_count = $5
		WHERE id = $6`
	_, err := r.db.ExecContext(ctx, query,
		run.SucceededCount, run.FailedCount, run.LockedCount, run.SkippedCount, run.CatchupCount, run.ID)
	return err
}

func (r *PostgresRepo) CreateItems(ctx context.Context, items []Item) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO embedding_reindex_run_items (run_id, document_id, content_hash, document_updated_at, status)
		VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.RunID, it.DocumentID, it.ContentHash, it.DocumentUpdatedAt, it.Status); err != nil {
			return fmt.Errorf("insert run item for document %s: %w", it.DocumentID, err)
		}
	}
	return tx.Commit()
}

const itemColumns = `id, run_id, document_id, content_hash, document_updated_at, status, chunk_count, needs_catchup, error_detail, processed_at`

func scanItem(row interface{ Scan(...interface{}) error }) (*Item, error) {
	it := &Item{}
	var errorDetail sql.NullString
	err := row.Scan(&it.ID, &it.RunID, &it.DocumentID, &it.ContentHash, &it.DocumentUpdatedAt,
		&it.Status, &it.ChunkCount, &it.NeedsCatchup, &errorDetail, &it.ProcessedAt)
	if err != nil {
		return nil, err
	}
	it.ErrorDetail = errorDetail.String
	return it, nil
}

func (r *PostgresRepo) ListItems(ctx context.Context, runID string) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM embedding_reindex_run_items WHERE run_id = $1 ORDER BY document_id`
	return r.queryItems(ctx, query, runID)
}

func (r *PostgresRepo) ListItemsByStatus(ctx context.Context, runID string, statuses []string) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM embedding_reindex_run_items WHERE run_id = $1 AND status = ANY($2) ORDER BY document_id`
	return r.queryItems(ctx, query, runID, pq.Array(statuses))
}

func (r *PostgresRepo) queryItems(ctx context.Context, query string, args ...interface{}) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (r *PostgresRepo) MarkItemSucceeded(ctx context.Context, id string, chunkCount int, needsCatchup bool) error {
	query := `
		UPDATE embedding_reindex_run_items
		SET status = $1, chunk_count = $2, needs_catchup = $3, error_detail = NULL, processed_at = NOW()
		WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, ItemSucceeded, chunkCount, needsCatchup, id)
	return err
}

func (r *PostgresRepo) MarkItemFailed(ctx context.Context, id, status, errorDetail string) error {
	query := `
		UPDATE embedding_reindex_run_items
		SET status = $1, error_detail = NULLIF($2, ''), processed_at = NOW()
		WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, status, errorDetail, id)
	return err
}

// ResetItemSnapshot refreshes the content snapshot before a catch-up
// attempt so the post-index drift compare measures against what was
// actually embedded.
func (r *PostgresRepo) ResetItemSnapshot(ctx context.Context, id, contentHash string, updatedAt time.Time) error {
	query := `
		UPDATE embedding_reindex_run_items
		SET status = $1, content_hash = $2, document_updated_at = $3,
		    needs_catchup = FALSE, error_detail = NULL
		WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, ItemPending, contentHash, updatedAt, id)
	return err
}
