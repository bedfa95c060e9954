package reindex

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docloom/features/document"
	"docloom/features/profile"
	"docloom/internal/embed"
	"docloom/internal/lock"
	"docloom/internal/parser"
	"docloom/internal/vector"
)

type memRepo struct {
	seq   int
	runs  map[string]*Run
	items []*Item
}

func newMemRepo() *memRepo {
	return &memRepo{runs: map[string]*Run{}}
}

func (m *memRepo) CreateRun(ctx context.Context, run *Run) error {
	m.seq++
	run.ID = fmt.Sprintf("run-%d", m.seq)
	run.CreatedAt = time.Now()
	stored := *run
	m.runs[run.ID] = &stored
	return nil
}

func (m *memRepo) GetRun(ctx context.Context, id string) (*Run, error) {
	run, ok := m.runs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *run
	return &out, nil
}

func (m *memRepo) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var out []Run
	for _, r := range m.runs {
		out = append(out, *r)
	}
	return out, nil
}

func (m *memRepo) LatestFinishedRun(ctx context.Context) (*Run, error) {
	var latest *Run
	for _, r := range m.runs {
		if r.FinishedAt == nil {
			continue
		}
		if latest == nil || r.FinishedAt.After(*latest.FinishedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

func (m *memRepo) FindActiveRun(ctx context.Context) (*Run, error) {
	for _, r := range m.runs {
		for _, s := range activeRunStatuses {
			if r.Status == s {
				out := *r
				return &out, nil
			}
		}
	}
	return nil, nil
}

func (m *memRepo) SetRunStatus(ctx context.Context, id, status string) error {
	m.runs[id].Status = status
	return nil
}

func (m *memRepo) FinishRun(ctx context.Context, id, status, errorDetail string) error {
	now := time.Now()
	m.runs[id].Status = status
	m.runs[id].ErrorDetail = errorDetail
	m.runs[id].FinishedAt = &now
	return nil
}

func (m *memRepo) MarkApplied(ctx context.Context, id string) error {
	now := time.Now()
	m.runs[id].Status = RunApplied
	m.runs[id].AppliedAt = &now
	return nil
}

func (m *memRepo) UpdateRunCounts(ctx context.Context, run *Run) error {
	stored := m.runs[run.ID]
	stored.SucceededCount = run.SucceededCount
	stored.FailedCount = run.FailedCount
	stored.LockedCount = run.LockedCount
	stored.SkippedCount = run.SkippedCount
	stored.CatchupCount = run.CatchupCount
	return nil
}

func (m *memRepo) CreateItems(ctx context.Context, items []Item) error {
	for _, it := range items {
		m.seq++
		stored := it
		stored.ID = fmt.Sprintf("item-%d", m.seq)
		m.items = append(m.items, &stored)
	}
	return nil
}

func (m *memRepo) ListItems(ctx context.Context, runID string) ([]Item, error) {
	var out []Item
	for _, it := range m.items {
		if it.RunID == runID {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (m *memRepo) ListItemsByStatus(ctx context.Context, runID string, statuses []string) ([]Item, error) {
	var out []Item
	for _, it := range m.items {
		if it.RunID != runID {
			continue
		}
		for _, s := range statuses {
			if it.Status == s {
				out = append(out, *it)
				break
			}
		}
	}
	return out, nil
}

func (m *memRepo) item(id string) *Item {
	for _, it := range m.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

func (m *memRepo) itemByDoc(runID, documentID string) *Item {
	for _, it := range m.items {
		if it.RunID == runID && it.DocumentID == documentID {
			return it
		}
	}
	return nil
}

func (m *memRepo) MarkItemSucceeded(ctx context.Context, id string, chunkCount int, needsCatchup bool) error {
	it := m.item(id)
	now := time.Now()
	it.Status = ItemSucceeded
	it.ChunkCount = chunkCount
	it.NeedsCatchup = needsCatchup
	it.ErrorDetail = ""
	it.ProcessedAt = &now
	return nil
}

func (m *memRepo) MarkItemFailed(ctx context.Context, id, status, errorDetail string) error {
	it := m.item(id)
	now := time.Now()
	it.Status = status
	it.ErrorDetail = errorDetail
	it.ProcessedAt = &now
	return nil
}

func (m *memRepo) ResetItemSnapshot(ctx context.Context, id, contentHash string, updatedAt time.Time) error {
	it := m.item(id)
	it.Status = ItemPending
	it.ContentHash = contentHash
	it.DocumentUpdatedAt = updatedAt
	it.NeedsCatchup = false
	it.ErrorDetail = ""
	return nil
}

type fakeProfiles struct {
	profiles            map[string]*profile.Profile
	activatedID         string
	activatedCollection string
}

func (f *fakeProfiles) Create(ctx context.Context, p *profile.Profile) error { return nil }

func (f *fakeProfiles) Get(ctx context.Context, id string) (*profile.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *p
	return &out, nil
}

func (f *fakeProfiles) GetActive(ctx context.Context) (*profile.Profile, error) {
	for _, p := range f.profiles {
		if p.Status == profile.StatusActive {
			out := *p
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeProfiles) LatestDraft(ctx context.Context) (*profile.Profile, error) {
	for _, p := range f.profiles {
		if p.Status == profile.StatusDraft {
			out := *p
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeProfiles) List(ctx context.Context) ([]profile.Profile, error) { return nil, nil }
func (f *fakeProfiles) CountByModel(ctx context.Context, provider, modelID string) (int, error) {
	return 0, nil
}

func (f *fakeProfiles) ActivateExclusive(ctx context.Context, id, collectionName string) error {
	for _, p := range f.profiles {
		if p.Status == profile.StatusActive {
			p.Status = profile.StatusRetired
		}
	}
	f.profiles[id].Status = profile.StatusActive
	f.profiles[id].CollectionName = collectionName
	f.activatedID = id
	f.activatedCollection = collectionName
	return nil
}

type fakeDocs struct {
	docs   map[string]*document.Document
	getErr map[string]error
}

func (f *fakeDocs) Create(ctx context.Context, d *document.Document) error { return nil }

func (f *fakeDocs) Get(ctx context.Context, id string) (*document.Document, error) {
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	d, ok := f.docs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *d
	return &out, nil
}

func (f *fakeDocs) List(ctx context.Context, includeDeleted bool) ([]document.Document, error) {
	var ids []string
	for id := range f.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []document.Document
	for _, id := range ids {
		d := f.docs[id]
		if !includeDeleted && d.DeletedAt != nil {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeDocs) FindByHash(ctx context.Context, hash string) (*document.Document, error) {
	return nil, sql.ErrNoRows
}
func (f *fakeDocs) UpdateStatus(ctx context.Context, id, status string) error { return nil }
func (f *fakeDocs) MarkIndexed(ctx context.Context, id string, chunkCount, indexedChunkCount, pageCount int) error {
	return nil
}
func (f *fakeDocs) MarkFailed(ctx context.Context, id, detail string) error { return nil }
func (f *fakeDocs) SoftDelete(ctx context.Context, id string) error         { return nil }

type fakeStore struct {
	ensured map[string]int
	dropped []string
	deleted []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{ensured: map[string]int{}}
}

func (f *fakeStore) EnsureCollection(ctx context.Context, name string, dimension int, distance string) error {
	f.ensured[name] = dimension
	return nil
}
func (f *fakeStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, ok := f.ensured[name]
	return ok, nil
}
func (f *fakeStore) CollectionDimension(ctx context.Context, name string) (int, error) {
	return f.ensured[name], nil
}
func (f *fakeStore) DropCollection(ctx context.Context, name string) error {
	f.dropped = append(f.dropped, name)
	return nil
}
func (f *fakeStore) UpsertPoints(ctx context.Context, collection string, points []vector.Point) error {
	return nil
}
func (f *fakeStore) DeleteByDocument(ctx context.Context, collection, documentID string) error {
	f.deleted = append(f.deleted, collection+"/"+documentID)
	return nil
}
func (f *fakeStore) CountByDocument(ctx context.Context, collection, documentID string) (int, error) {
	return 0, nil
}

type fakeAliases struct {
	switched map[string]string
}

func (f *fakeAliases) Switch(ctx context.Context, alias, collection string) error {
	if f.switched == nil {
		f.switched = map[string]string{}
	}
	f.switched[alias] = collection
	return nil
}

type fakeEmbedders struct{}

func (fakeEmbedders) EmbedderFor(ctx context.Context, p *profile.Profile) (embed.Embedder, error) {
	return nil, nil
}

type indexCall struct {
	documentID   string
	collection   string
	jobID        string
	updateStatus bool
}

type fakeIndexer struct {
	calls   []indexCall
	failFor map[string]error
	onEmbed func(docID string)
}

func (f *fakeIndexer) EmbedDocument(ctx context.Context, doc *document.Document, collection string, prof *profile.Profile, embedder embed.Embedder, jobID string, updateStatus bool) (int, int, int, error) {
	f.calls = append(f.calls, indexCall{documentID: doc.ID, collection: collection, jobID: jobID, updateStatus: updateStatus})
	if f.onEmbed != nil {
		f.onEmbed(doc.ID)
	}
	if err := f.failFor[doc.ID]; err != nil {
		return 0, 0, 0, err
	}
	return 4, 4, 1, nil
}

type fakeLocker struct {
	unavailableFor map[string]bool
}

func (f *fakeLocker) Acquire(ctx context.Context, name string, ttl, blockFor time.Duration) (*lock.Lease, error) {
	if f.unavailableFor[name] {
		return nil, lock.ErrUnavailable
	}
	return &lock.Lease{Name: name}, nil
}

type fakePublisher struct {
	published map[string][]string
}

func (f *fakePublisher) Publish(topic string, body []byte) error {
	if f.published == nil {
		f.published = map[string][]string{}
	}
	f.published[topic] = append(f.published[topic], string(body))
	return nil
}

type harness struct {
	svc      *Service
	repo     *memRepo
	profiles *fakeProfiles
	docs     *fakeDocs
	store    *fakeStore
	aliases  *fakeAliases
	indexer  *fakeIndexer
	locker   *fakeLocker
	pub      *fakePublisher
}

func newHarness() *harness {
	h := &harness{
		repo: newMemRepo(),
		profiles: &fakeProfiles{profiles: map[string]*profile.Profile{
			"prof-active": {ID: "prof-active", Provider: "openai", ModelID: "old-model", Dimension: 768,
				DistanceMetric: "cosine", CollectionName: "DocumentChunks", Status: profile.StatusActive},
			"prof-draft": {ID: "prof-draft", Provider: "openai", ModelID: "new-model", Dimension: 1536,
				DistanceMetric: "cosine", Status: profile.StatusDraft},
		}},
		docs: &fakeDocs{docs: map[string]*document.Document{
			"doc-1": {ID: "doc-1", ContentHash: "hash-1", Status: document.StatusIndexed, UpdatedAt: time.Now().Add(-time.Hour)},
			"doc-2": {ID: "doc-2", ContentHash: "hash-2", Status: document.StatusIndexed, UpdatedAt: time.Now().Add(-time.Hour)},
		}},
		store:   newFakeStore(),
		aliases: &fakeAliases{},
		indexer: &fakeIndexer{failFor: map[string]error{}},
		locker:  &fakeLocker{unavailableFor: map[string]bool{}},
		pub:     &fakePublisher{},
	}
	h.svc = NewService(h.repo, h.profiles, h.docs, h.store, h.aliases, fakeEmbedders{}, h.indexer, h.locker, h.pub)
	return h
}

func TestCreateRun(t *testing.T) {
	t.Run("snapshots documents into a staging collection", func(t *testing.T) {
		h := newHarness()

		run, err := h.svc.CreateRun(context.Background(), "")
		require.NoError(t, err)

		assert.Equal(t, RunQueued, run.Status)
		assert.Equal(t, "prof-draft", run.ProfileID)
		assert.True(t, strings.HasPrefix(run.StagingCollection, "DocumentChunks_ep"), run.StagingCollection)
		assert.Equal(t, 2, run.TotalDocuments)
		assert.Equal(t, 1536, h.store.ensured[run.StagingCollection], "staging collection uses the target dimension")

		items, err := h.repo.ListItems(context.Background(), run.ID)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "hash-1", items[0].ContentHash)
		assert.Equal(t, ItemPending, items[0].Status)

		assert.Equal(t, []string{run.ID}, h.pub.published["reindex.run"])
	})

	t.Run("refuses when no draft exists", func(t *testing.T) {
		h := newHarness()
		h.profiles.profiles["prof-draft"].Status = profile.StatusRetired

		_, err := h.svc.CreateRun(context.Background(), "")
		assert.ErrorIs(t, err, ErrNoDraftProfile)
	})

	t.Run("refuses to reindex into the active profile", func(t *testing.T) {
		h := newHarness()

		_, err := h.svc.CreateRun(context.Background(), "prof-active")
		assert.ErrorIs(t, err, ErrTargetIsActive)
	})

	t.Run("allows only one run in flight", func(t *testing.T) {
		h := newHarness()

		_, err := h.svc.CreateRun(context.Background(), "")
		require.NoError(t, err)

		_, err = h.svc.CreateRun(context.Background(), "")
		assert.ErrorIs(t, err, ErrRunInProgress)
	})
}

func TestRunReindex(t *testing.T) {
	t.Run("rebuilds every document into staging and becomes apply_ready", func(t *testing.T) {
		h := newHarness()
		run, err := h.svc.CreateRun(context.Background(), "")
		require.NoError(t, err)

		require.NoError(t, h.svc.RunReindex(context.Background(), run.ID))

		require.Len(t, h.indexer.calls, 2)
		for _, call := range h.indexer.calls {
			assert.Equal(t, run.StagingCollection, call.collection)
			assert.Empty(t, call.jobID, "reindex must not write the job log")
			assert.False(t, call.updateStatus, "reindex must not touch document lifecycle state")
		}

		got, err := h.repo.GetRun(context.Background(), run.ID)
		require.NoError(t, err)
		assert.Equal(t, RunApplyReady, got.Status)
		assert.Equal(t, 2, got.SucceededCount)
	})

	t.Run("locked document parks the run in catchup_pending", func(t *testing.T) {
		h := newHarness()
		run, err := h.svc.CreateRun(context.Background(), "")
		require.NoError(t, err)
		h.locker.unavailableFor[lock.DocumentLockName("doc-2")] = true

		require.NoError(t, h.svc.RunReindex(context.Background(), run.ID))

		got, _ := h.repo.GetRun(context.Background(), run.ID)
		assert.Equal(t, RunCatchupPending, got.Status)
		assert.Equal(t, 1, got.LockedCount)
		assert.Equal(t, ItemLocked, h.repo.itemByDoc(run.ID, "doc-2").Status)
	})

	t.Run("embedding failure fails the run", func(t *testing.T) {
		h := newHarness()
		run, err := h.svc.CreateRun(context.Background(), "")
		require.NoError(t, err)
		h.indexer.failFor["doc-1"] = fmt.Errorf("provider returned 500")

		require.NoError(t, h.svc.RunReindex(context.Background(), run.ID))

		got, _ := h.repo.GetRun(context.Background(), run.ID)
		assert.Equal(t, RunFailed, got.Status)
		assert.Equal(t, 1, got.FailedCount)
		assert.Contains(t, h.repo.itemByDoc(run.ID, "doc-1").ErrorDetail, "provider returned 500")
	})

	t.Run("scanned document is skipped, not failed", func(t *testing.T) {
		h := newHarness()
		run, err := h.svc.CreateRun(context.Background(), "")
		require.NoError(t, err)
		h.indexer.failFor["doc-2"] = parser.ErrScannedDocument

		require.NoError(t, h.svc.RunReindex(context.Background(), run.ID))

		got, _ := h.repo.GetRun(context.Background(), run.ID)
		assert.Equal(t, RunApplyReady, got.Status, "skipped documents must not block the run")
		assert.Equal(t, 1, got.SkippedCount)
	})

	t.Run("document changed during the run is flagged for catch-up", func(t *testing.T) {
		h := newHarness()
		run, err := h.svc.CreateRun(context.Background(), "")
		require.NoError(t, err)
		h.indexer.onEmbed = func(docID string) {
			if docID == "doc-1" {
				h.docs.docs["doc-1"].ContentHash = "hash-1-v2"
				h.docs.docs["doc-1"].UpdatedAt = time.Now()
			}
		}

		require.NoError(t, h.svc.RunReindex(context.Background(), run.ID))

		got, _ := h.repo.GetRun(context.Background(), run.ID)
		assert.Equal(t, RunCatchupPending, got.Status)
		assert.Equal(t, 1, got.CatchupCount)
		assert.True(t, h.repo.itemByDoc(run.ID, "doc-1").NeedsCatchup)
	})

	t.Run("failed drift re-read flags the item for catch-up", func(t *testing.T) {
		h := newHarness()
		run, err := h.svc.CreateRun(context.Background(), "")
		require.NoError(t, err)
		h.indexer.onEmbed = func(docID string) {
			if docID == "doc-1" {
				h.docs.getErr = map[string]error{"doc-1": fmt.Errorf("transient db error")}
			}
		}

		require.NoError(t, h.svc.RunReindex(context.Background(), run.ID))

		got, _ := h.repo.GetRun(context.Background(), run.ID)
		assert.Equal(t, RunCatchupPending, got.Status)
		assert.True(t, h.repo.itemByDoc(run.ID, "doc-1").NeedsCatchup,
			"an unverifiable document must not pass the drift check")
	})

	t.Run("cancelled run is not processed", func(t *testing.T) {
		h := newHarness()
		run, err := h.svc.CreateRun(context.Background(), "")
		require.NoError(t, err)
		require.NoError(t, h.svc.Cancel(context.Background(), run.ID))

		require.NoError(t, h.svc.RunReindex(context.Background(), run.ID))
		assert.Empty(t, h.indexer.calls)
	})
}

func TestPreview(t *testing.T) {
	t.Run("reports divergence since the run", func(t *testing.T) {
		h := newHarness()
		run, err := h.svc.CreateRun(context.Background(), "")
		require.NoError(t, err)
		require.NoError(t, h.svc.RunReindex(context.Background(), run.ID))

		// doc-2 is re-uploaded after the run finished.
		h.docs.docs["doc-2"].ContentHash = "hash-2-v2"
		h.docs.docs["doc-2"].UpdatedAt = time.Now()

		preview, err := h.svc.Preview(context.Background(), run.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, preview.Drifted)
		assert.Equal(t, []string{"doc-2"}, preview.DocumentIDs)
	})

	t.Run("treats an unreadable document as drifted", func(t *testing.T) {
		h := newHarness()
		run, err := h.svc.CreateRun(context.Background(), "")
		require.NoError(t, err)
		require.NoError(t, h.svc.RunReindex(context.Background(), run.ID))

		// doc-1 changed after the run, but the drift read hits a
		// transient database error.
		h.docs.docs["doc-1"].ContentHash = "hash-1-v2"
		h.docs.getErr = map[string]error{"doc-1": fmt.Errorf("transient db error")}

		preview, err := h.svc.Preview(context.Background(), run.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, preview.Drifted)
		assert.Equal(t, []string{"doc-1"}, preview.DocumentIDs)
	})
}

func TestApply(t *testing.T) {
	t.Run("switches the alias and activates the profile", func(t *testing.T) {
		h := newHarness()
		run, err := h.svc.CreateRun(context.Background(), "")
		require.NoError(t, err)
		require.NoError(t, h.svc.RunReindex(context.Background(), run.ID))

		applied, err := h.svc.Apply(context.Background(), run.ID)
		require.NoError(t, err)

		assert.Equal(t, RunApplied, applied.Status)
		assert.Equal(t, run.StagingCollection, h.aliases.switched[profile.ActiveAlias])
		assert.Equal(t, "prof-draft", h.profiles.activatedID)
		assert.Equal(t, run.StagingCollection, h.profiles.activatedCollection)
		assert.Equal(t, profile.StatusRetired, h.profiles.profiles["prof-active"].Status)
	})

	t.Run("redoes stale documents synchronously before the switch", func(t *testing.T) {
		h := newHarness()
		run, err := h.svc.CreateRun(context.Background(), "")
		require.NoError(t, err)
		require.NoError(t, h.svc.RunReindex(context.Background(), run.ID))
		baseline := len(h.indexer.calls)

		h.docs.docs["doc-1"].ContentHash = "hash-1-v2"
		h.docs.docs["doc-1"].UpdatedAt = time.Now()

		applied, err := h.svc.Apply(context.Background(), run.ID)
		require.NoError(t, err)

		assert.Equal(t, RunApplied, applied.Status)
		require.Len(t, h.indexer.calls, baseline+1, "only the drifted document is redone")
		assert.Equal(t, "doc-1", h.indexer.calls[baseline].documentID)
		assert.Equal(t, "hash-1-v2", h.repo.itemByDoc(run.ID, "doc-1").ContentHash, "snapshot refreshed to what was embedded")
	})

	t.Run("refuses while failures remain", func(t *testing.T) {
		h := newHarness()
		run, err := h.svc.CreateRun(context.Background(), "")
		require.NoError(t, err)
		h.indexer.failFor["doc-1"] = fmt.Errorf("provider returned 500")
		require.NoError(t, h.svc.RunReindex(context.Background(), run.ID))

		_, err = h.svc.Apply(context.Background(), run.ID)
		assert.ErrorIs(t, err, ErrApplyBlocked)

		assert.Empty(t, h.aliases.switched, "alias must not move on a refused apply")
		assert.Empty(t, h.profiles.activatedID)
	})

	t.Run("refuses when a drift check cannot read the document", func(t *testing.T) {
		h := newHarness()
		run, err := h.svc.CreateRun(context.Background(), "")
		require.NoError(t, err)
		require.NoError(t, h.svc.RunReindex(context.Background(), run.ID))

		h.docs.docs["doc-1"].ContentHash = "hash-1-v2"
		h.docs.getErr = map[string]error{"doc-1": fmt.Errorf("transient db error")}

		_, err = h.svc.Apply(context.Background(), run.ID)
		assert.ErrorIs(t, err, ErrApplyBlocked)

		assert.Empty(t, h.aliases.switched, "alias must not move while a document is unverifiable")
		assert.Empty(t, h.profiles.activatedID)
	})

	t.Run("rejects runs that never ran", func(t *testing.T) {
		h := newHarness()
		run, err := h.svc.CreateRun(context.Background(), "")
		require.NoError(t, err)

		_, err = h.svc.Apply(context.Background(), run.ID)
		assert.ErrorIs(t, err, ErrNotApplyable)
	})
}

func TestCancel(t *testing.T) {
	t.Run("drops the staging collection", func(t *testing.T) {
		h := newHarness()
		run, err := h.svc.CreateRun(context.Background(), "")
		require.NoError(t, err)

		require.NoError(t, h.svc.Cancel(context.Background(), run.ID))

		got, _ := h.repo.GetRun(context.Background(), run.ID)
		assert.Equal(t, RunCancelled, got.Status)
		assert.Equal(t, []string{run.StagingCollection}, h.store.dropped)
	})

	t.Run("refuses after apply", func(t *testing.T) {
		h := newHarness()
		run, err := h.svc.CreateRun(context.Background(), "")
		require.NoError(t, err)
		require.NoError(t, h.svc.RunReindex(context.Background(), run.ID))
		_, err = h.svc.Apply(context.Background(), run.ID)
		require.NoError(t, err)

		err = h.svc.Cancel(context.Background(), run.ID)
		assert.ErrorIs(t, err, ErrNotCancellable)
	})
}
