package stats

import (
	"context"

	"docloom/features/profile"
	"docloom/features/reindex"
	"docloom/internal/scheduler"
)

// Payload is the one-call operations snapshot: embedding configuration,
// queue depth by state, scheduler health and the latest reindex outcome.
type Payload struct {
	Embedding   *profile.StatusPayload `json:"embedding"`
	Queue       map[string]int         `json:"queue"`
	Scheduler   *scheduler.Status      `json:"scheduler"`
	LastReindex *reindex.Run           `json:"last_reindex,omitempty"`
}

type EmbeddingStatus interface {
	Status(ctx context.Context) (*profile.StatusPayload, error)
}

type QueueStatus interface {
	QueueOverview(ctx context.Context) (map[string]int, error)
}

type SchedulerStatus interface {
	Status(ctx context.Context) (*scheduler.Status, error)
}

type ReindexStatus interface {
	LatestSummary(ctx context.Context) (*reindex.Run, error)
}

type Service struct {
	embedding  EmbeddingStatus
	queue      QueueStatus
	schedule   SchedulerStatus
	reindexing ReindexStatus
}

func NewService(embedding EmbeddingStatus, queue QueueStatus, schedule SchedulerStatus, reindexing ReindexStatus) *Service {
	return &Service{
		embedding:  embedding,
		queue:      queue,
		schedule:   schedule,
		reindexing: reindexing,
	}
}

func (s *Service) Snapshot(ctx context.Context) (*Payload, error) {
	embedding, err := s.embedding.Status(ctx)
	if err != nil {
		return nil, err
	}

	queue, err := s.queue.QueueOverview(ctx)
	if err != nil {
		return nil, err
	}

	schedule, err := s.schedule.Status(ctx)
	if err != nil {
		return nil, err
	}

	lastReindex, err := s.reindexing.LatestSummary(ctx)
	if err != nil {
		return nil, err
	}

	return &Payload{
		Embedding:   embedding,
		Queue:       queue,
		Scheduler:   schedule,
		LastReindex: lastReindex,
	}, nil
}
