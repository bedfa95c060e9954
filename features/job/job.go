package job

import (
	"encoding/json"
	"time"
)

// Job statuses. Terminal states are final, except that a lock-contention
// failure returns a job to queued for another dispatch pass.
const (
	StatusQueued     = "queued"
	StatusDispatched = "dispatched"
	StatusRunning    = "running"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
	StatusSkipped    = "skipped"
)

const (
	TypeIngest    = "ingest"
	TypeReprocess = "reprocess"
)

// ActiveStatuses are the states in which a document is considered to have
// work in flight. At most one job per document may be in any of them.
var ActiveStatuses = []string{StatusQueued, StatusDispatched, StatusRunning}

type Job struct {
	ID              string          `json:"id"`
	DocumentID      string          `json:"document_id"`
	JobType         string          `json:"job_type"`
	Status          string          `json:"status"`
	Trigger         string          `json:"trigger,omitempty"`
	BatchDispatchID string          `json:"batch_dispatch_id,omitempty"`
	DispatchedBy    string          `json:"dispatched_by,omitempty"`
	DispatchedAt    *time.Time      `json:"dispatched_at,omitempty"`
	Attempts        int             `json:"attempts"`
	ErrorSummary    string          `json:"error_summary,omitempty"`
	Progress        json.RawMessage `json:"progress,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
}

// Event is one append-only log entry attached to a job.
type Event struct {
	ID        string          `json:"id"`
	JobID     string          `json:"job_id"`
	Level     string          `json:"level"`
	Stage     string          `json:"stage"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Progress is the structured snapshot external observers poll. It is
// updated at every embedding batch boundary.
type Progress struct {
	Stage          string `json:"stage"`
	ChunksTotal    int    `json:"chunks_total"`
	EmbeddedChunks int    `json:"embedded_chunks"`
	IndexedChunks  int    `json:"indexed_chunks"`
	Pages          int    `json:"pages,omitempty"`
}

func (p Progress) Raw() json.RawMessage {
	raw, _ := json.Marshal(p)
	return raw
}
