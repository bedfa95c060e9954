package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"docloom/features/job"
	"docloom/internal/config"
)

const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
	TriggerCatchup   = "startup_catchup"
)

// Publisher hands a job to the worker queue. Satisfied by *nsq.Producer.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// Result summarizes one dispatch pass.
type Result struct {
	BatchDispatchID  string   `json:"batch_dispatch_id"`
	Dispatched       int      `json:"dispatched"`
	Superseded       int      `json:"superseded"`
	AlreadyRunning   int      `json:"already_running"`
	RemainingQueued  int      `json:"remaining_queued"`
	DispatchedJobIDs []string `json:"dispatched_job_ids,omitempty"`
}

// Service promotes queued jobs to dispatched work. Dedup and the
// active-conflict filter together uphold the at-most-one-active-job-per-
// document invariant without a DB uniqueness constraint.
type Service struct {
	jobs       job.Repository
	publisher  Publisher
	dispatcher string
}

func NewService(jobs job.Repository, publisher Publisher) *Service {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &Service{
		jobs:       jobs,
		publisher:  publisher,
		dispatcher: fmt.Sprintf("%s/%d", host, os.Getpid()),
	}
}

// DispatchQueued runs one pass: dedup queued jobs per document, skip
// documents with work already in flight, promote the rest and hand them
// to the queue. The dispatched state is committed before handoff so a
// worker never sees a job the database does not yet call dispatched;
// handoff failures roll the job back to queued.
func (s *Service) DispatchQueued(ctx context.Context, trigger string, limit int) (*Result, error) {
	queued, err := s.jobs.ListQueued(ctx)
	if err != nil {
		return nil, fmt.Errorf("list queued jobs: %w", err)
	}

	batchID := strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	result := &Result{BatchDispatchID: batchID}

	// Newest job per document wins; older queued duplicates are
	// cancelled as superseded.
	seen := make(map[string]bool)
	var candidates []job.Job
	for _, j := range queued {
		if seen[j.DocumentID] {
			if err := s.jobs.Cancel(ctx, j.ID, "superseded"); err != nil {
				return nil, fmt.Errorf("cancel superseded job %s: %w", j.ID, err)
			}
			result.Superseded++
			continue
		}
		seen[j.DocumentID] = true
		candidates = append(candidates, j)
	}

	active, err := s.jobs.ActiveDocumentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active documents: %w", err)
	}

	var toDispatch []job.Job
	for _, j := range candidates {
		if active[j.DocumentID] {
			result.AlreadyRunning++
			continue
		}
		toDispatch = append(toDispatch, j)
	}

	if limit > 0 && len(toDispatch) > limit {
		toDispatch = toDispatch[:limit]
	}

	if len(toDispatch) > 0 {
		ids := make([]string, len(toDispatch))
		for i, j := range toDispatch {
			ids[i] = j.ID
		}
		if err := s.jobs.MarkDispatched(ctx, ids, trigger, s.dispatcher, batchID); err != nil {
			return nil, fmt.Errorf("mark jobs dispatched: %w", err)
		}

		for _, j := range toDispatch {
			if err := s.publisher.Publish(config.TopicIngestJob, []byte(j.ID)); err != nil {
				slog.ErrorContext(ctx, "dispatch handoff failed, returning job to queue",
					"job_id", j.ID, "batch_dispatch_id", batchID, "error", err)
				if rqErr := s.jobs.Requeue(ctx, j.ID, "dispatch handoff failed"); rqErr != nil {
					return nil, fmt.Errorf("roll back job %s after handoff failure: %w", j.ID, rqErr)
				}
				continue
			}
			result.Dispatched++
			result.DispatchedJobIDs = append(result.DispatchedJobIDs, j.ID)
		}
	}

	remaining, err := s.jobs.CountQueued(ctx)
	if err != nil {
		return nil, fmt.Errorf("count remaining queued jobs: %w", err)
	}
	result.RemainingQueued = remaining

	slog.InfoContext(ctx, "dispatch pass completed",
		"trigger", trigger, "batch_dispatch_id", batchID,
		"dispatched", result.Dispatched, "superseded", result.Superseded,
		"already_running", result.AlreadyRunning, "remaining_queued", result.RemainingQueued)
	return result, nil
}
