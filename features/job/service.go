package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Job, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) ListEvents(ctx context.Context, jobID string) ([]Event, error) {
	if _, err := s.repo.Get(ctx, jobID); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, jobID)
}

// QueueOverview reports how many jobs sit in each state, for the
// operations dashboard.
func (s *Service) QueueOverview(ctx context.Context) (map[string]int, error) {
	return s.repo.CountByStatus(ctx)
}

// Recorder wraps the event log so pipeline code can emit events with one
// call. Event write failures are logged but never fail the job itself.
type Recorder struct {
	repo Repository
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

func (r *Recorder) Record(ctx context.Context, jobID, level, stage, message string, details map[string]interface{}) {
	var raw json.RawMessage
	if details != nil {
		raw, _ = json.Marshal(details)
	}

	e := &Event{JobID: jobID, Level: level, Stage: stage, Message: message, Details: raw}
	if err := r.repo.AppendEvent(ctx, e); err != nil {
		slog.WarnContext(ctx, "failed to append job event", "job_id", jobID, "stage", stage, "error", err)
	}
}

func (r *Recorder) Info(ctx context.Context, jobID, stage, message string) {
	r.Record(ctx, jobID, "info", stage, message, nil)
}

func (r *Recorder) Warn(ctx context.Context, jobID, stage, message string) {
	r.Record(ctx, jobID, "warning", stage, message, nil)
}

func (r *Recorder) Error(ctx context.Context, jobID, stage string, err error) {
	r.Record(ctx, jobID, "error", stage, fmt.Sprintf("%v", err), nil)
}
