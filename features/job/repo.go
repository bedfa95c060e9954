package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

type ListFilter struct {
	DocumentID string
	Status     string
	Limit      int
}

type Repository interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, filter ListFilter) ([]Job, error)
	ListQueued(ctx context.Context) ([]Job, error)
	ActiveDocumentIDs(ctx context.Context) (map[string]bool, error)
	FindActiveByDocument(ctx context.Context, documentID string) (*Job, error)
	CountQueued(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) (map[string]int, error)

	MarkDispatched(ctx context.Context, ids []string, trigger, dispatcher, batchID string) error
	MarkRunning(ctx context.Context, id string) error
	MarkSucceeded(ctx context.Context, id string, progress Progress) error
	MarkFailed(ctx context.Context, id, errorSummary string) error
	Requeue(ctx context.Context, id, reason string) error
	Cancel(ctx context.Context, id, reason string) error
	UpdateProgress(ctx context.Context, id string, progress Progress) error

	AppendEvent(ctx context.Context, e *Event) error
	ListEvents(ctx context.Context, jobID string) ([]Event, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const jobColumns = `id, document_id, job_type, status, trigger_source, batch_dispatch_id, dispatched_by, dispatched_at, attempts, error_summary, progress, created_at, updated_at, finished_at`

func scanJob(row interface{ Scan(...interface{}) error }) (*Job, error) {
	j := &Job{}
	var trigger, batchID, dispatchedBy, errorSummary sql.NullString
	var progress []byte
	err := row.Scan(&j.ID, &j.DocumentID, &j.JobType, &j.Status, &trigger, &batchID, &dispatchedBy, &j.DispatchedAt, &j.Attempts, &errorSummary, &progress, &j.CreatedAt, &j.UpdatedAt, &j.FinishedAt)
	if err != nil {
		return nil, err
	}
	j.Trigger = trigger.String
	j.BatchDispatchID = batchID.String
	j.DispatchedBy = dispatchedBy.String
	j.ErrorSummary = errorSummary.String
	if len(progress) > 0 {
		j.Progress = json.RawMessage(progress)
	}
	return j, nil
}

func (r *PostgresRepo) Create(ctx context.Context, j *Job) error {
	query := `
		INSERT INTO processing_jobs (document_id, job_type, status)
		VALUES ($1, $2, $3)
		RETURNING id, attempts, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, j.DocumentID, j.JobType, j.Status).
		Scan(&j.ID, &j.Attempts, &j.CreatedAt, &j.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM processing_jobs WHERE id = $1`
	return scanJob(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepo) List(ctx context.Context, filter ListFilter) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM processing_jobs WHERE 1=1`
	args := []interface{}{}

	if filter.DocumentID != "" {
		args = append(args, filter.DocumentID)
		query += fmt.Sprintf(" AND document_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) ListQueued(ctx context.Context) ([]Job, error) {
	return r.List(ctx, ListFilter{Status: StatusQueued})
}

func (r *PostgresRepo) ActiveDocumentIDs(ctx context.Context) (map[string]bool, error) {
	query := `SELECT DISTINCT document_id FROM processing_jobs WHERE status IN ($1, $2)`
	rows, err := r.db.QueryContext(ctx, query, StatusDispatched, StatusRunning)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	active := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		active[id] = true
	}
	return active, rows.Err()
}

func (r *PostgresRepo) FindActiveByDocument(ctx context.Context, documentID string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM processing_jobs
		WHERE document_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC LIMIT 1`
	return scanJob(r.db.QueryRowContext(ctx, query, documentID, pq.Array(ActiveStatuses)))
}

func (r *PostgresRepo) CountQueued(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM processing_jobs WHERE status = $1`
	err := r.db.QueryRowContext(ctx, query, StatusQueued).Scan(&count)
	return count, err
}

func (r *PostgresRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM processing_jobs GROUP BY status`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *PostgresRepo) MarkDispatched(ctx context.Context, ids []string, trigger, dispatcher, batchID string) error {
	query := `
		UPDATE processing_jobs
		SET status = $1, trigger_source = $2, dispatched_by = $3, batch_dispatch_id = $4,
		    dispatched_at = NOW(), updated_at = NOW()
		WHERE id = ANY($5) AND status = $6`
	_, err := r.db.ExecContext(ctx, query, StatusDispatched, trigger, dispatcher, batchID, pq.Array(ids), StatusQueued)
	return err
}

func (r *PostgresRepo) MarkRunning(ctx context.Context, id string) error {
	query := `
		UPDATE processing_jobs
		SET status = $1, attempts = attempts + 1, updated_at = NOW()
		WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, StatusRunning, id)
	return err
}

func (r *PostgresRepo) MarkSucceeded(ctx context.Context, id string, progress Progress) error {
	query := `
		UPDATE processing_jobs
		SET status = $1, progress = $2, error_summary = NULL, finished_at = NOW(), updated_at = NOW()
		WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, StatusSucceeded, []byte(progress.Raw()), id)
	return err
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, id, errorSummary string) error {
	query := `
		UPDATE processing_jobs
		SET status = $1, error_summary = $2, finished_at = NOW(), updated_at = NOW()
		WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, StatusFailed, errorSummary, id)
	return err
}

func (r *PostgresRepo) Requeue(ctx context.Context, id, reason string) error {
	query := `
		UPDATE processing_jobs
		SET status = $1, error_summary = $2, trigger_source = NULL, batch_dispatch_id = NULL,
		    dispatched_by = NULL, dispatched_at = NULL, updated_at = NOW()
		WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, StatusQueued, reason, id)
	return err
}

func (r *PostgresRepo) Cancel(ctx context.Context, id, reason string) error {
	query := `
		UPDATE processing_jobs
		SET status = $1, error_summary = $2, finished_at = NOW(), updated_at = NOW()
		WHERE id = $3 AND status = ANY($4)`
	_, err := r.db.ExecContext(ctx, query, StatusCancelled, reason, id, pq.Array(ActiveStatuses))
	return err
}

func (r *PostgresRepo) UpdateProgress(ctx context.Context, id string, progress Progress) error {
	query := `UPDATE processing_jobs SET progress = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, []byte(progress.Raw()), id)
	return err
}

func (r *PostgresRepo) AppendEvent(ctx context.Context, e *Event) error {
	query := `
		INSERT INTO processing_job_events (job_id, level, stage, message, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	details := []byte(e.Details)
	if details == nil {
		details = []byte(`{}`)
	}
	return r.db.QueryRowContext(ctx, query, e.JobID, e.Level, e.Stage, e.Message, details).
		Scan(&e.ID, &e.CreatedAt)
}

func (r *PostgresRepo) ListEvents(ctx context.Context, jobID string) ([]Event, error) {
	query := `
		SELECT id, job_id, level, stage, message, details, created_at
		FROM processing_job_events
		WHERE job_id = $1
		ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var details []byte
		if err := rows.Scan(&e.ID, &e.JobID, &e.Level, &e.Stage, &e.Message, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Details = json.RawMessage(details)
		events = append(events, e)
	}
	return events, rows.Err()
}
