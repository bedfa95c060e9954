package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nsqio/go-nsq"

	"docloom/internal/lock"
)

const handleTimeout = 30 * time.Minute

// IngestRunner executes one ingestion job end to end.
type IngestRunner interface {
	Run(ctx context.Context, jobID string) error
}

// ReindexRunner executes one reindex run against its staging collection.
type ReindexRunner interface {
	RunReindex(ctx context.Context, runID string) error
}

// IngestConsumer handles the ingest job topic. Message bodies are bare
// job ids.
type IngestConsumer struct {
	pipeline IngestRunner
}

func NewIngestConsumer(pipeline IngestRunner) *IngestConsumer {
	return &IngestConsumer{pipeline: pipeline}
}

func (c *IngestConsumer) HandleMessage(m *nsq.Message) error {
	jobID := strings.TrimSpace(string(m.Body))
	if jobID == "" {
		// Poison pill, don't retry.
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	err := c.pipeline.Run(ctx, jobID)
	if errors.Is(err, lock.ErrUnavailable) {
		// Lock contention is retryable: let NSQ redeliver, capped by
		// the consumer's max attempts.
		slog.WarnContext(ctx, "job deferred on lock contention", "job_id", jobID, "attempt", m.Attempts)
		return err
	}
	if err != nil {
		// The pipeline already recorded the failure on the job and the
		// document; redelivering would only repeat it.
		slog.ErrorContext(ctx, "ingestion job failed", "job_id", jobID, "error", err)
		return nil
	}
	return nil
}

// ReindexConsumer handles the reindex run topic. Message bodies are bare
// run ids.
type ReindexConsumer struct {
	runner ReindexRunner
}

func NewReindexConsumer(runner ReindexRunner) *ReindexConsumer {
	return &ReindexConsumer{runner: runner}
}

func (c *ReindexConsumer) HandleMessage(m *nsq.Message) error {
	runID := strings.TrimSpace(string(m.Body))
	if runID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	if err := c.runner.RunReindex(ctx, runID); err != nil {
		// Run state carries the outcome; a redelivery would hit the
		// not-runnable guard anyway.
		slog.ErrorContext(ctx, "reindex run failed", "run_id", runID, "error", err)
	}
	return nil
}

// StartConsumer wires a handler to a topic via nsqlookupd. The returned
// consumer must be stopped on shutdown.
func StartConsumer(topic, channel, lookupd string, maxAttempts uint16, concurrency int, handler nsq.Handler) (*nsq.Consumer, error) {
	cfg := nsq.NewConfig()
	cfg.MaxAttempts = maxAttempts

	consumer, err := nsq.NewConsumer(topic, channel, cfg)
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		concurrency = 1
	}
	consumer.AddConcurrentHandlers(handler, concurrency)

	if err := consumer.ConnectToNSQLookupd(lookupd); err != nil {
		return nil, err
	}
	slog.Info("nsq consumer connected", "topic", topic, "channel", channel)
	return consumer, nil
}
