package reindex

import (
	"errors"
	"time"
)

// Run statuses. A run moves queued -> running -> apply_ready (or
// catchup_pending when documents changed underneath it), and only
// reaches applied through an explicit apply. The alias never moves for a
// run in any other state.
const (
	RunQueued         = "queued"
	RunRunning        = "running"
	RunApplyReady     = "apply_ready"
	RunCatchupPending = "catchup_pending"
	RunCatchupRunning = "catchup_running"
	RunApplied        = "applied"
	RunFailed         = "failed"
	RunCancelled      = "cancelled"
)

// Item statuses.
const (
	ItemPending   = "pending"
	ItemSucceeded = "succeeded"
	ItemFailed    = "failed"
	ItemLocked    = "locked"
	ItemSkipped   = "skipped"
)

var (
	ErrNoDraftProfile = errors.New("no draft profile to reindex into")
	ErrTargetIsActive = errors.New("target profile is already active")
	ErrRunInProgress  = errors.New("another reindex run is in progress")
	ErrNotRunnable    = errors.New("run is not in a runnable state")
	ErrNotApplyable   = errors.New("run is not in an applyable state")
	ErrNotCancellable = errors.New("run is not in a cancellable state")
	ErrApplyBlocked   = errors.New("apply refused: run has unresolved failures")
)

// Run is one blue-green rebuild of the index into a staging collection.
type Run struct {
	ID                string     `json:"id"`
	ProfileID         string     `json:"profile_id"`
	StagingCollection string     `json:"staging_collection"`
	Status            string     `json:"status"`
	TotalDocuments    int        `json:"total_documents"`
	SucceededCount    int        `json:"succeeded_count"`
	FailedCount       int        `json:"failed_count"`
	LockedCount       int        `json:"locked_count"`
	SkippedCount      int        `json:"skipped_count"`
	CatchupCount      int        `json:"catchup_count"`
	ErrorDetail       string     `json:"error_detail,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	AppliedAt         *time.Time `json:"applied_at,omitempty"`
}

// Item is one document's slot in a run, carrying the content snapshot
// taken at run creation. Divergence between the snapshot and the live
// row after indexing is how drift is detected.
type Item struct {
	ID                string     `json:"id"`
	RunID             string     `json:"run_id"`
	DocumentID        string     `json:"document_id"`
	ContentHash       string     `json:"content_hash"`
	DocumentUpdatedAt time.Time  `json:"document_updated_at"`
	Status            string     `json:"status"`
	ChunkCount        int        `json:"chunk_count"`
	NeedsCatchup      bool       `json:"needs_catchup"`
	ErrorDetail       string     `json:"error_detail,omitempty"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
}

// Stale reports whether the item must be redone before an apply is safe.
func (it *Item) Stale() bool {
	switch it.Status {
	case ItemFailed, ItemLocked, ItemSkipped:
		return true
	}
	return it.NeedsCatchup
}

// CatchupPreview summarizes what a catch-up pass would redo.
type CatchupPreview struct {
	RunID       string   `json:"run_id"`
	DocumentIDs []string `json:"document_ids"`
	Failed      int      `json:"failed"`
	Locked      int      `json:"locked"`
	Skipped     int      `json:"skipped"`
	Drifted     int      `json:"drifted"`
}
