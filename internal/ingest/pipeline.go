package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docloom/features/document"
	"docloom/features/job"
	"docloom/features/profile"
	"docloom/internal/embed"
	"docloom/internal/lock"
	"docloom/internal/parser"
	"docloom/internal/text"
	"docloom/internal/vector"
)

const (
	lockTTL      = 240 * time.Second
	lockBlockFor = 5 * time.Second
)

// Locker is the lease manager slice the pipeline needs.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl, blockFor time.Duration) (*lock.Lease, error)
}

// Resolver supplies the live collection, profile and embedder. It is the
// registry in production.
type Resolver interface {
	ActiveCollection(ctx context.Context) (string, *profile.Profile, error)
	EmbedderFor(ctx context.Context, p *profile.Profile) (embed.Embedder, error)
}

// Pipeline runs one document through parse, chunk, embed and index. It is
// the only writer of document lifecycle state during processing.
type Pipeline struct {
	docs     document.Repository
	jobs     job.Repository
	events   *job.Recorder
	resolver Resolver
	store    vector.Store
	locker   Locker

	chunkSize    int
	chunkOverlap int
	parseOpts    parser.Options
}

func NewPipeline(docs document.Repository, jobs job.Repository, events *job.Recorder, resolver Resolver, store vector.Store, locker Locker, chunkSize, chunkOverlap int, parseOpts parser.Options) *Pipeline {
	return &Pipeline{
		docs:         docs,
		jobs:         jobs,
		events:       events,
		resolver:     resolver,
		store:        store,
		locker:       locker,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		parseOpts:    parseOpts,
	}
}

// Run executes the job. A lock.ErrUnavailable return means the job was
// put back to queued and the attempt should be retried by redelivery,
// not treated as a failure.
func (p *Pipeline) Run(ctx context.Context, jobID string) error {
	j, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if j.Status == job.StatusCancelled || j.Status == job.StatusSucceeded {
		slog.InfoContext(ctx, "skipping job in terminal state", "job_id", jobID, "status", j.Status)
		return nil
	}

	doc, err := p.docs.Get(ctx, j.DocumentID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", j.DocumentID, err)
	}
	if doc.DeletedAt != nil {
		p.events.Warn(ctx, jobID, "start", "document was deleted, skipping")
		return p.jobs.Cancel(ctx, jobID, "document deleted")
	}

	if err := p.jobs.MarkRunning(ctx, jobID); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	p.events.Info(ctx, jobID, "start", "ingestion started")

	lease, err := p.locker.Acquire(ctx, lock.DocumentLockName(doc.ID), lockTTL, lockBlockFor)
	if errors.Is(err, lock.ErrUnavailable) {
		// Another processor holds the document. Requeue instead of
		// failing; the next dispatch pass retries.
		p.events.Warn(ctx, jobID, "lock", "document locked by another processor, returning job to queue")
		if rqErr := p.jobs.Requeue(ctx, jobID, "lock unavailable"); rqErr != nil {
			return fmt.Errorf("requeue after lock contention: %w", rqErr)
		}
		// An indexed document keeps its status: its index is intact and a
		// reprocess attempt that never got the lock changed nothing.
		if doc.Status != document.StatusIndexed {
			if stErr := p.docs.UpdateStatus(ctx, doc.ID, document.StatusUploaded); stErr != nil {
				slog.WarnContext(ctx, "failed to reset document status after lock contention", "document_id", doc.ID, "error", stErr)
			}
		}
		return err
	}
	if err != nil {
		p.fail(ctx, jobID, doc.ID, fmt.Errorf("acquire document lock: %w", err))
		return err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			slog.WarnContext(ctx, "failed to release document lock", "document_id", doc.ID, "error", err)
		}
	}()

	collection, prof, err := p.resolver.ActiveCollection(ctx)
	if err != nil {
		p.fail(ctx, jobID, doc.ID, fmt.Errorf("resolve active collection: %w", err))
		return err
	}
	embedder, err := p.resolver.EmbedderFor(ctx, prof)
	if err != nil {
		p.fail(ctx, jobID, doc.ID, fmt.Errorf("build embedder: %w", err))
		return err
	}

	// Stale vectors from a previous attempt must go before re-parsing.
	if err := p.store.DeleteByDocument(ctx, collection, doc.ID); err != nil {
		p.fail(ctx, jobID, doc.ID, fmt.Errorf("delete stale vectors: %w", err))
		return err
	}

	total, indexed, pages, err := p.EmbedDocument(ctx, doc, collection, prof, embedder, jobID, true)
	if err != nil {
		p.fail(ctx, jobID, doc.ID, err)
		return err
	}

	if err := p.docs.MarkIndexed(ctx, doc.ID, total, indexed, pages); err != nil {
		return fmt.Errorf("mark document indexed: %w", err)
	}
	final := job.Progress{Stage: "completed", ChunksTotal: total, EmbeddedChunks: indexed, IndexedChunks: indexed, Pages: pages}
	if err := p.jobs.MarkSucceeded(ctx, jobID, final); err != nil {
		return fmt.Errorf("mark job succeeded: %w", err)
	}
	p.events.Record(ctx, jobID, "info", "completed", "ingestion completed",
		map[string]interface{}{"chunks": total, "indexed": indexed, "pages": pages})
	return nil
}

// EmbedDocument parses, chunks, embeds and indexes one document into the
// given collection. Reindexing reuses it with updateStatus=false and an
// empty jobID so the live document state machine and the job log stay
// untouched.
func (p *Pipeline) EmbedDocument(ctx context.Context, doc *document.Document, collection string, prof *profile.Profile, embedder embed.Embedder, jobID string, updateStatus bool) (int, int, int, error) {
	setStatus := func(status string) {
		if !updateStatus {
			return
		}
		if err := p.docs.UpdateStatus(ctx, doc.ID, status); err != nil {
			slog.WarnContext(ctx, "failed to update document status", "document_id", doc.ID, "status", status, "error", err)
		}
	}
	progress := func(pr job.Progress) {
		if jobID == "" {
			return
		}
		if err := p.jobs.UpdateProgress(ctx, jobID, pr); err != nil {
			slog.WarnContext(ctx, "failed to update job progress", "job_id", jobID, "error", err)
		}
	}
	event := func(level, stage, message string, details map[string]interface{}) {
		if jobID == "" {
			return
		}
		p.events.Record(ctx, jobID, level, stage, message, details)
	}

	setStatus(document.StatusParsing)
	progress(job.Progress{Stage: "parsing"})

	parsed, err := parser.ParseFile(doc.FilePath, p.parseOpts)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("parse document: %w", err)
	}
	event("info", "parsing", fmt.Sprintf("parsed %d pages", parsed.PageCount), nil)

	setStatus(document.StatusChunking)
	var chunks []text.Chunk
	pageByChunk := make(map[string]int)
	for _, section := range parsed.Sections {
		sectionChunks := text.ChunkDocument(doc.ID, section.Text, p.chunkSize, p.chunkOverlap, len(chunks))
		for _, c := range sectionChunks {
			pageByChunk[c.ID] = section.Page
		}
		chunks = append(chunks, sectionChunks...)
	}

	if len(chunks) == 0 {
		return 0, 0, parsed.PageCount, parser.ErrScannedDocument
	}
	event("info", "chunking", fmt.Sprintf("produced %d chunks", len(chunks)), nil)

	setStatus(document.StatusEmbedding)
	batchSize := prof.BatchSize
	if max := embedder.MaxBatchSize(); batchSize <= 0 || batchSize > max {
		batchSize = max
	}

	indexed := 0
	// Embed and upsert batch by batch so memory stays bounded and
	// progress is observable mid-document.
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := embedder.EmbedTexts(ctx, texts, embed.InputPassage)
		if err != nil {
			return len(chunks), indexed, parsed.PageCount, fmt.Errorf("embed batch: %w", err)
		}

		points := make([]vector.Point, len(batch))
		for i, c := range batch {
			points[i] = vector.Point{
				ID:     vector.PointID(doc.ID, c.ID),
				Vector: vectors[i],
				Payload: vector.PointPayload{
					DocumentID:         doc.ID,
					ChunkID:            c.ID,
					ChunkIndex:         c.Index,
					Page:               pageByChunk[c.ID],
					Content:            c.Content,
					EmbeddingProfileID: prof.ID,
				},
			}
		}

		if err := p.store.UpsertPoints(ctx, collection, points); err != nil {
			return len(chunks), indexed, parsed.PageCount, fmt.Errorf("upsert batch: %w", err)
		}

		indexed += len(batch)
		progress(job.Progress{
			Stage:          "embedding",
			ChunksTotal:    len(chunks),
			EmbeddedChunks: indexed,
			IndexedChunks:  indexed,
			Pages:          parsed.PageCount,
		})
		event("info", "embedding", fmt.Sprintf("indexed %d/%d chunks", indexed, len(chunks)), nil)
	}

	return len(chunks), indexed, parsed.PageCount, nil
}

func (p *Pipeline) fail(ctx context.Context, jobID, documentID string, cause error) {
	detail := cause.Error()
	if errors.Is(cause, parser.ErrScannedDocument) && !p.parseOpts.OCREnabled {
		detail = "document appears to be scanned and OCR is disabled; no text could be extracted"
	}

	p.events.Error(ctx, jobID, "failed", cause)
	if err := p.jobs.MarkFailed(ctx, jobID, detail); err != nil {
		slog.ErrorContext(ctx, "failed to mark job failed", "job_id", jobID, "error", err)
	}
	if err := p.docs.MarkFailed(ctx, documentID, detail); err != nil {
		slog.ErrorContext(ctx, "failed to mark document failed", "document_id", documentID, "error", err)
	}
}

// DeleteDocumentVectors purges a document's points from the live
// collection. Used by document deletion.
func (p *Pipeline) DeleteDocumentVectors(ctx context.Context, documentID string) error {
	collection, _, err := p.resolver.ActiveCollection(ctx)
	if err != nil {
		return err
	}
	return p.store.DeleteByDocument(ctx, collection, documentID)
}
