package job

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*PostgresRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepo(db), mock
}

func jobRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "document_id", "job_type", "status", "trigger_source", "batch_dispatch_id",
		"dispatched_by", "dispatched_at", "attempts", "error_summary", "progress",
		"created_at", "updated_at", "finished_at",
	})
}

func TestPostgresRepo_Create(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("INSERT INTO processing_jobs").
		WithArgs("doc-1", TypeIngest, StatusQueued).
		WillReturnRows(sqlmock.NewRows([]string{"id", "attempts", "created_at", "updated_at"}).
			AddRow("job-1", 0, time.Now(), time.Now()))

	j := &Job{DocumentID: "doc-1", JobType: TypeIngest, Status: StatusQueued}
	err := repo.Create(context.Background(), j)

	require.NoError(t, err)
	assert.Equal(t, "job-1", j.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ListQueued(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now()
	mock.ExpectQuery("SELECT .+ FROM processing_jobs WHERE").
		WithArgs(StatusQueued).
		WillReturnRows(jobRows().
			AddRow("job-2", "doc-2", TypeReprocess, StatusQueued, nil, nil, nil, nil, 0, nil, []byte(`{}`), now, now, nil).
			AddRow("job-1", "doc-1", TypeIngest, StatusQueued, nil, nil, nil, nil, 0, nil, []byte(`{}`), now.Add(-time.Hour), now, nil))

	jobs, err := repo.ListQueued(context.Background())

	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-2", jobs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ActiveDocumentIDs(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT DISTINCT document_id FROM processing_jobs").
		WithArgs(StatusDispatched, StatusRunning).
		WillReturnRows(sqlmock.NewRows([]string{"document_id"}).AddRow("doc-1").AddRow("doc-3"))

	active, err := repo.ActiveDocumentIDs(context.Background())

	require.NoError(t, err)
	assert.True(t, active["doc-1"])
	assert.True(t, active["doc-3"])
	assert.False(t, active["doc-2"])
}

func TestPostgresRepo_MarkDispatched(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE processing_jobs").
		WithArgs(StatusDispatched, "manual", "dispatcher-1", "batch-abc", sqlmock.AnyArg(), StatusQueued).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.MarkDispatched(context.Background(), []string{"job-1", "job-2"}, "manual", "dispatcher-1", "batch-abc")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Requeue(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE processing_jobs").
		WithArgs(StatusQueued, "lock unavailable", "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Requeue(context.Background(), "job-1", "lock unavailable")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Cancel(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE processing_jobs").
		WithArgs(StatusCancelled, "superseded", "job-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Cancel(context.Background(), "job-1", "superseded")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_Events(t *testing.T) {
	t.Run("append returns generated id", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectQuery("INSERT INTO processing_job_events").
			WithArgs("job-1", "info", "embedding", "batch indexed", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("evt-1", time.Now()))

		e := &Event{JobID: "job-1", Level: "info", Stage: "embedding", Message: "batch indexed"}
		err := repo.AppendEvent(context.Background(), e)

		require.NoError(t, err)
		assert.Equal(t, "evt-1", e.ID)
	})

	t.Run("list preserves append order", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		now := time.Now()
		mock.ExpectQuery("SELECT id, job_id, level, stage, message, details, created_at").
			WithArgs("job-1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "job_id", "level", "stage", "message", "details", "created_at"}).
				AddRow("evt-1", "job-1", "info", "parsing", "parsed 3 pages", []byte(`{}`), now).
				AddRow("evt-2", "job-1", "info", "embedding", "batch indexed", []byte(`{}`), now.Add(time.Second)))

		events, err := repo.ListEvents(context.Background(), "job-1")

		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "parsing", events[0].Stage)
		assert.Equal(t, "embedding", events[1].Stage)
	})
}
