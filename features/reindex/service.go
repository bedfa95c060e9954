package reindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docloom/features/document"
	"docloom/features/profile"
	"docloom/internal/config"
	"docloom/internal/embed"
	"docloom/internal/lock"
	"docloom/internal/parser"
	"docloom/internal/vector"
)

const (
	itemLockTTL      = 300 * time.Second
	itemLockBlockFor = 1 * time.Second
)

// Indexer embeds one document into an arbitrary collection. Satisfied by
// the ingestion pipeline.
type Indexer interface {
	EmbedDocument(ctx context.Context, doc *document.Document, collection string, prof *profile.Profile, embedder embed.Embedder, jobID string, updateStatus bool) (int, int, int, error)
}

// EmbedderSource builds embedders per profile. Satisfied by the registry.
type EmbedderSource interface {
	EmbedderFor(ctx context.Context, p *profile.Profile) (embed.Embedder, error)
}

// Aliases is the alias slice needed for the cutover.
type Aliases interface {
	Switch(ctx context.Context, alias, collection string) error
}

type Locker interface {
	Acquire(ctx context.Context, name string, ttl, blockFor time.Duration) (*lock.Lease, error)
}

// Publisher hands a run to the reindex worker queue.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// Service orchestrates blue-green reindex runs: rebuild the whole corpus
// into a staging collection against a target profile, detect documents
// that changed underneath the rebuild, and cut readers over with a
// single atomic alias switch only once the staging index is complete.
type Service struct {
	runs      Repository
	profiles  profile.Repository
	docs      document.Repository
	store     vector.Store
	aliases   Aliases
	embedders EmbedderSource
	indexer   Indexer
	locker    Locker
	publisher Publisher
	now       func() time.Time
}

func NewService(runs Repository, profiles profile.Repository, docs document.Repository, store vector.Store, aliases Aliases, embedders EmbedderSource, indexer Indexer, locker Locker, publisher Publisher) *Service {
	return &Service{
		runs:      runs,
		profiles:  profiles,
		docs:      docs,
		store:     store,
		aliases:   aliases,
		embedders: embedders,
		indexer:   indexer,
		locker:    locker,
		publisher: publisher,
		now:       time.Now,
	}
}

// CreateRun allocates a staging collection for the target profile,
// snapshots every live document into run items and queues the run. The
// target defaults to the latest draft profile and must not already be
// active.
func (s *Service) CreateRun(ctx context.Context, profileID string) (*Run, error) {
	if active, err := s.runs.FindActiveRun(ctx); err != nil {
		return nil, fmt.Errorf("check in-flight runs: %w", err)
	} else if active != nil {
		return nil, fmt.Errorf("%w: run %s is %s", ErrRunInProgress, active.ID, active.Status)
	}

	var target *profile.Profile
	var err error
	if profileID != "" {
		target, err = s.profiles.Get(ctx, profileID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s not found", profileID)
		}
	} else {
		target, err = s.profiles.LatestDraft(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoDraftProfile
		}
	}
	if err != nil {
		return nil, fmt.Errorf("resolve target profile: %w", err)
	}

	activeProfile, err := s.profiles.GetActive(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load active profile: %w", err)
	}
	if activeProfile != nil && activeProfile.ID == target.ID {
		return nil, ErrTargetIsActive
	}

	staging := profile.StagingCollectionName(target.ID, s.now())
	if err := s.store.EnsureCollection(ctx, staging, target.Dimension, target.DistanceMetric); err != nil {
		return nil, fmt.Errorf("create staging collection %s: %w", staging, err)
	}

	docs, err := s.docs.List(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("snapshot documents: %w", err)
	}

	run := &Run{
		ProfileID:         target.ID,
		StagingCollection: staging,
		Status:            RunQueued,
		TotalDocuments:    len(docs),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	items := make([]Item, len(docs))
	for i, d := range docs {
		items[i] = Item{
			RunID:             run.ID,
			DocumentID:        d.ID,
			ContentHash:       d.ContentHash,
			DocumentUpdatedAt: d.UpdatedAt,
			Status:            ItemPending,
		}
	}
	if err := s.runs.CreateItems(ctx, items); err != nil {
		return nil, fmt.Errorf("snapshot run items: %w", err)
	}

	if err := s.publisher.Publish(config.TopicReindexRun, []byte(run.ID)); err != nil {
		return nil, fmt.Errorf("queue run %s: %w", run.ID, err)
	}

	slog.InfoContext(ctx, "reindex run created", "run_id", run.ID,
		"profile_id", target.ID, "staging_collection", staging, "documents", len(docs))
	return run, nil
}

// RunReindex processes every pending item of the run into its staging
// collection. Cancellation is honored between items. The live index and
// document lifecycle state are never touched.
func (s *Service) RunReindex(ctx context.Context, runID string) error {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}

	switch run.Status {
	case RunQueued:
		err = s.runs.SetRunStatus(ctx, runID, RunRunning)
	case RunCatchupPending:
		err = s.runs.SetRunStatus(ctx, runID, RunCatchupRunning)
	case RunCancelled:
		slog.InfoContext(ctx, "skipping cancelled reindex run", "run_id", runID)
		return nil
	default:
		return fmt.Errorf("%w: run %s is %s", ErrNotRunnable, runID, run.Status)
	}
	if err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}

	prof, embedder, err := s.resolveTarget(ctx, run)
	if err != nil {
		if finErr := s.runs.FinishRun(ctx, runID, RunFailed, err.Error()); finErr != nil {
			slog.ErrorContext(ctx, "failed to finish run", "run_id", runID, "error", finErr)
		}
		return err
	}

	items, err := s.runs.ListItemsByStatus(ctx, runID, []string{ItemPending})
	if err != nil {
		return fmt.Errorf("list pending items: %w", err)
	}

	for i := range items {
		current, err := s.runs.GetRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("reload run %s: %w", runID, err)
		}
		if current.Status == RunCancelled {
			slog.InfoContext(ctx, "reindex run cancelled, stopping", "run_id", runID, "processed", i)
			return nil
		}

		s.processItem(ctx, run, &items[i], prof, embedder)
	}

	_, err = s.finalize(ctx, runID)
	return err
}

func (s *Service) resolveTarget(ctx context.Context, run *Run) (*profile.Profile, embed.Embedder, error) {
	prof, err := s.profiles.Get(ctx, run.ProfileID)
	if err != nil {
		return nil, nil, fmt.Errorf("load target profile: %w", err)
	}
	embedder, err := s.embedders.EmbedderFor(ctx, prof)
	if err != nil {
		return nil, nil, fmt.Errorf("build embedder: %w", err)
	}
	return prof, embedder, nil
}

// processItem rebuilds one document into the staging collection. Item
// state absorbs every per-document outcome; only the run-level loop
// decides what failures mean.
func (s *Service) processItem(ctx context.Context, run *Run, item *Item, prof *profile.Profile, embedder embed.Embedder) {
	markFailed := func(status, detail string) {
		if err := s.runs.MarkItemFailed(ctx, item.ID, status, detail); err != nil {
			slog.ErrorContext(ctx, "failed to record item outcome", "item_id", item.ID, "error", err)
		}
	}

	doc, err := s.docs.Get(ctx, item.DocumentID)
	if err != nil {
		markFailed(ItemFailed, fmt.Sprintf("load document: %v", err))
		return
	}
	if doc.DeletedAt != nil {
		// Deleted since the snapshot: make sure the staging index does
		// not resurrect it.
		if err := s.store.DeleteByDocument(ctx, run.StagingCollection, doc.ID); err != nil {
			slog.WarnContext(ctx, "failed to purge deleted document from staging", "document_id", doc.ID, "error", err)
		}
		markFailed(ItemSkipped, "document deleted")
		return
	}

	lease, err := s.locker.Acquire(ctx, lock.DocumentLockName(doc.ID), itemLockTTL, itemLockBlockFor)
	if errors.Is(err, lock.ErrUnavailable) {
		markFailed(ItemLocked, "document locked by another processor")
		return
	}
	if err != nil {
		markFailed(ItemFailed, fmt.Sprintf("acquire document lock: %v", err))
		return
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			slog.WarnContext(ctx, "failed to release document lock", "document_id", doc.ID, "error", err)
		}
	}()

	// Record what this attempt is about to embed so the drift compare
	// afterwards, and any later catch-up preview, measure against it.
	if err := s.runs.ResetItemSnapshot(ctx, item.ID, doc.ContentHash, doc.UpdatedAt); err != nil {
		markFailed(ItemFailed, fmt.Sprintf("refresh item snapshot: %v", err))
		return
	}
	item.ContentHash = doc.ContentHash
	item.DocumentUpdatedAt = doc.UpdatedAt

	if err := s.store.DeleteByDocument(ctx, run.StagingCollection, doc.ID); err != nil {
		markFailed(ItemFailed, fmt.Sprintf("delete stale staging vectors: %v", err))
		return
	}

	total, _, _, err := s.indexer.EmbedDocument(ctx, doc, run.StagingCollection, prof, embedder, "", false)
	if errors.Is(err, parser.ErrScannedDocument) {
		markFailed(ItemSkipped, "no extractable text")
		return
	}
	if err != nil {
		markFailed(ItemFailed, err.Error())
		return
	}

	// A failed re-read cannot prove the document is unchanged, so it
	// counts as drifted and a catch-up pass settles it.
	needsCatchup := true
	if fresh, err := s.docs.Get(ctx, doc.ID); err == nil {
		needsCatchup = fresh.DeletedAt != nil ||
			fresh.ContentHash != item.ContentHash ||
			!fresh.UpdatedAt.Equal(item.DocumentUpdatedAt)
	}

	if err := s.runs.MarkItemSucceeded(ctx, item.ID, total, needsCatchup); err != nil {
		slog.ErrorContext(ctx, "failed to record item success", "item_id", item.ID, "error", err)
	}
}

// finalize recounts the run and settles its status: failed documents
// fail the run, locked or drifted documents park it in catchup_pending,
// and a clean board makes it apply_ready.
func (s *Service) finalize(ctx context.Context, runID string) (*Run, error) {
	items, err := s.runs.ListItems(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list run items: %w", err)
	}

	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	run.SucceededCount, run.FailedCount, run.LockedCount, run.SkippedCount, run.CatchupCount = 0, 0, 0, 0, 0
	for _, it := range items {
		switch it.Status {
		case ItemSucceeded:
			run.SucceededCount++
		case ItemFailed:
			run.FailedCount++
		case ItemLocked:
			run.LockedCount++
		case ItemSkipped:
			run.SkippedCount++
		}
		if it.NeedsCatchup {
			run.CatchupCount++
		}
	}
	if err := s.runs.UpdateRunCounts(ctx, run); err != nil {
		return nil, fmt.Errorf("update run counts: %w", err)
	}

	status := RunApplyReady
	detail := ""
	switch {
	case run.FailedCount > 0:
		status = RunFailed
		detail = fmt.Sprintf("%d of %d documents failed", run.FailedCount, run.TotalDocuments)
	case run.LockedCount > 0 || run.CatchupCount > 0:
		status = RunCatchupPending
	}
	if err := s.runs.FinishRun(ctx, runID, status, detail); err != nil {
		return nil, fmt.Errorf("finish run: %w", err)
	}
	run.Status = status
	run.ErrorDetail = detail

	slog.InfoContext(ctx, "reindex pass finished", "run_id", runID, "status", status,
		"succeeded", run.SucceededCount, "failed", run.FailedCount,
		"locked", run.LockedCount, "skipped", run.SkippedCount, "needs_catchup", run.CatchupCount)
	return run, nil
}

// Preview reports which documents a catch-up pass would redo: items that
// failed, were locked or skipped, plus documents whose content diverged
// from the snapshot that was embedded.
func (s *Service) Preview(ctx context.Context, runID string) (*CatchupPreview, error) {
	if _, err := s.runs.GetRun(ctx, runID); err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	items, err := s.runs.ListItems(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list run items: %w", err)
	}

	preview := &CatchupPreview{RunID: runID}
	for _, it := range items {
		stale := false
		switch it.Status {
		case ItemFailed:
			preview.Failed++
			stale = true
		case ItemLocked:
			preview.Locked++
			stale = true
		case ItemSkipped:
			preview.Skipped++
			stale = true
		}

		if !stale {
			if it.NeedsCatchup {
				preview.Drifted++
				stale = true
			} else {
				doc, err := s.docs.Get(ctx, it.DocumentID)
				// An unreadable document cannot be proven unchanged, so
				// it is treated as drifted and the apply gate re-checks it.
				diverged := err != nil ||
					doc.DeletedAt != nil ||
					doc.ContentHash != it.ContentHash ||
					!doc.UpdatedAt.Equal(it.DocumentUpdatedAt)
				if diverged {
					preview.Drifted++
					stale = true
				}
			}
		}

		if stale {
			preview.DocumentIDs = append(preview.DocumentIDs, it.DocumentID)
		}
	}
	return preview, nil
}

// Apply cuts readers over to the run's staging collection. Stale
// documents are redone synchronously first; if failures remain after the
// catch-up the apply is refused and the run stays un-applied. On success
// the alias switch and profile activation make the target profile live.
func (s *Service) Apply(ctx context.Context, runID string) (*Run, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	switch run.Status {
	case RunApplyReady, RunFailed, RunCatchupPending:
	default:
		return nil, fmt.Errorf("%w: run %s is %s", ErrNotApplyable, runID, run.Status)
	}

	preview, err := s.Preview(ctx, runID)
	if err != nil {
		return nil, err
	}

	if len(preview.DocumentIDs) > 0 {
		if err := s.runs.SetRunStatus(ctx, runID, RunCatchupRunning); err != nil {
			return nil, fmt.Errorf("mark run catching up: %w", err)
		}

		prof, embedder, err := s.resolveTarget(ctx, run)
		if err != nil {
			return nil, err
		}

		stale := make(map[string]bool, len(preview.DocumentIDs))
		for _, id := range preview.DocumentIDs {
			stale[id] = true
		}

		items, err := s.runs.ListItems(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("list run items: %w", err)
		}
		for i := range items {
			if stale[items[i].DocumentID] {
				s.processItem(ctx, run, &items[i], prof, embedder)
			}
		}

		run, err = s.finalize(ctx, runID)
		if err != nil {
			return nil, err
		}
	}

	if run.FailedCount > 0 || run.LockedCount > 0 {
		return nil, fmt.Errorf("%w: %d failed, %d locked", ErrApplyBlocked, run.FailedCount, run.LockedCount)
	}

	if err := s.aliases.Switch(ctx, profile.ActiveAlias, run.StagingCollection); err != nil {
		return nil, fmt.Errorf("switch active alias: %w", err)
	}
	if err := s.profiles.ActivateExclusive(ctx, run.ProfileID, run.StagingCollection); err != nil {
		return nil, fmt.Errorf("activate profile %s: %w", run.ProfileID, err)
	}
	if err := s.runs.MarkApplied(ctx, runID); err != nil {
		return nil, fmt.Errorf("mark run applied: %w", err)
	}
	run.Status = RunApplied

	slog.InfoContext(ctx, "reindex run applied", "run_id", runID,
		"profile_id", run.ProfileID, "collection", run.StagingCollection)
	return run, nil
}

// Cancel aborts a run before it is applied. The worker stops at its next
// between-items check; the staging collection is dropped best-effort.
func (s *Service) Cancel(ctx context.Context, runID string) error {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}

	switch run.Status {
	case RunQueued, RunRunning, RunCatchupPending, RunCatchupRunning:
	default:
		return fmt.Errorf("%w: run %s is %s", ErrNotCancellable, runID, run.Status)
	}

	if err := s.runs.FinishRun(ctx, runID, RunCancelled, ""); err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	if err := s.store.DropCollection(ctx, run.StagingCollection); err != nil {
		slog.WarnContext(ctx, "failed to drop staging collection", "collection", run.StagingCollection, "error", err)
	}

	slog.InfoContext(ctx, "reindex run cancelled", "run_id", runID)
	return nil
}

func (s *Service) Get(ctx context.Context, runID string) (*Run, []Item, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.runs.ListItems(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	return run, items, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.runs.ListRuns(ctx, limit)
}

// LatestSummary feeds the operations status endpoint.
func (s *Service) LatestSummary(ctx context.Context) (*Run, error) {
	return s.runs.LatestFinishedRun(ctx)
}
