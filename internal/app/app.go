package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nsqio/go-nsq"

	"docloom/features/dispatch"
	"docloom/features/document"
	"docloom/features/job"
	"docloom/features/profile"
	"docloom/features/reindex"
	"docloom/features/stats"
	"docloom/internal/config"
	"docloom/internal/ingest"
	"docloom/internal/lock"
	"docloom/internal/middleware"
	"docloom/internal/parser"
	"docloom/internal/scheduler"
	"docloom/internal/settings"
	"docloom/internal/worker"
)

// App wires repositories, services and handlers into one process. The
// API surface and the queue workers can be enabled independently.
type App struct {
	cfg  *config.Config
	deps *Dependencies

	Registry  *profile.Registry
	Pipeline  *ingest.Pipeline
	Reindex   *reindex.Service
	Scheduler *scheduler.Scheduler

	documentHandler *document.Handler
	jobHandler      *job.Handler
	dispatchHandler *dispatch.Handler
	profileHandler  *profile.Handler
	reindexHandler  *reindex.Handler
	statsHandler    *stats.Handler

	consumers []*nsq.Consumer
}

func New(cfg *config.Config, deps *Dependencies) (*App, error) {
	settingsStore := settings.NewPostgresStore(deps.DB)
	lockManager := lock.NewManager(deps.DB)

	documentRepo := document.NewPostgresRepo(deps.DB)
	jobRepo := job.NewPostgresRepo(deps.DB)
	profileRepo := profile.NewPostgresRepo(deps.DB)
	reindexRepo := reindex.NewPostgresRepo(deps.DB)

	recorder := job.NewRecorder(jobRepo)
	factory := profile.NewEmbedderFactory(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.GeminiAPIKey)
	registry := profile.NewRegistry(profileRepo, deps.Store, deps.Aliases, settingsStore, factory)

	parseOpts := parser.Options{MaxPages: cfg.MaxDocumentPages, OCREnabled: cfg.OCREnabled}
	pipeline := ingest.NewPipeline(documentRepo, jobRepo, recorder, registry, deps.Store, lockManager,
		cfg.ChunkSize, cfg.ChunkOverlap, parseOpts)

	documentService := document.NewService(documentRepo, jobRepo, lockManager, pipeline, cfg.UploadDir, cfg.MaxUploadSizeMB)
	jobService := job.NewService(jobRepo)
	dispatchService := dispatch.NewService(jobRepo, deps.Producer)
	reindexService := reindex.NewService(reindexRepo, profileRepo, documentRepo, deps.Store, deps.Aliases,
		registry, pipeline, lockManager, deps.Producer)

	sched, err := scheduler.New(dispatchService, jobRepo, lockManager, settingsStore,
		cfg.SchedulerTimezone, cfg.DispatchBatchLimit)
	if err != nil {
		return nil, err
	}

	statsService := stats.NewService(registry, jobService, sched, reindexService)

	return &App{
		cfg:             cfg,
		deps:            deps,
		Registry:        registry,
		Pipeline:        pipeline,
		Reindex:         reindexService,
		Scheduler:       sched,
		documentHandler: document.NewHandler(documentService),
		jobHandler:      job.NewHandler(jobService),
		dispatchHandler: dispatch.NewHandler(dispatchService),
		profileHandler:  profile.NewHandler(registry),
		reindexHandler:  reindex.NewHandler(reindexService),
		statsHandler:    stats.NewHandler(statsService),
	}, nil
}

// BootstrapRegistry guarantees the active profile, collection and alias
// exist before any work is accepted.
func (a *App) BootstrapRegistry(ctx context.Context) error {
	return a.Registry.Bootstrap(ctx, settings.EmbeddingSettings{
		Provider:       a.cfg.EmbeddingProvider,
		ModelID:        a.cfg.EmbeddingModelID,
		Dimension:      a.cfg.EmbeddingDimension,
		DistanceMetric: a.cfg.EmbeddingDistance,
		BatchSize:      a.cfg.EmbeddingBatchSize,
	})
}

func (a *App) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, middleware.CorrelationID(h))
	}

	handle("POST /documents", a.documentHandler.Upload)
	handle("GET /documents", a.documentHandler.List)
	handle("GET /documents/{id}", a.documentHandler.Get)
	handle("POST /documents/{id}/reprocess", a.documentHandler.Reprocess)
	handle("DELETE /documents/{id}", a.documentHandler.Delete)

	handle("GET /jobs", a.jobHandler.List)
	handle("GET /jobs/{id}", a.jobHandler.Get)
	handle("GET /jobs/{id}/events", a.jobHandler.ListEvents)
	handle("GET /queue", a.jobHandler.QueueOverview)
	handle("POST /queue/dispatch", a.dispatchHandler.Dispatch)

	handle("GET /settings/embedding", a.profileHandler.Status)
	handle("PUT /settings/embedding", a.profileHandler.SaveSettings)
	handle("GET /profiles", a.profileHandler.List)

	handle("POST /reindex-runs", a.reindexHandler.Create)
	handle("GET /reindex-runs", a.reindexHandler.List)
	handle("GET /reindex-runs/{id}", a.reindexHandler.Get)
	handle("GET /reindex-runs/{id}/catchup-preview", a.reindexHandler.CatchupPreview)
	handle("POST /reindex-runs/{id}/apply", a.reindexHandler.Apply)
	handle("POST /reindex-runs/{id}/cancel", a.reindexHandler.Cancel)

	handle("GET /scheduler/status", a.schedulerStatus)
	handle("GET /status", a.statsHandler.Status)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return mux
}

func (a *App) schedulerStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, err := a.Scheduler.Status(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build scheduler status", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		resp := map[string]interface{}{
			"error":         map[string]string{"code": "INTERNAL_ERROR", "message": err.Error()},
			"correlationId": middleware.GetCorrelationID(ctx),
		}
		json.NewEncoder(w).Encode(resp)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": status}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// StartWorkers connects the queue consumers.
func (a *App) StartWorkers() error {
	ingestConsumer, err := worker.StartConsumer(config.TopicIngestJob, "ingestor", a.cfg.NSQLookupd,
		a.cfg.WorkerMaxAttempts, a.cfg.WorkerConcurrency, worker.NewIngestConsumer(a.Pipeline))
	if err != nil {
		return err
	}
	a.consumers = append(a.consumers, ingestConsumer)

	// Reindex runs are serialized: one at a time per process.
	reindexConsumer, err := worker.StartConsumer(config.TopicReindexRun, "reindexer", a.cfg.NSQLookupd,
		a.cfg.WorkerMaxAttempts, 1, worker.NewReindexConsumer(a.Reindex))
	if err != nil {
		return err
	}
	a.consumers = append(a.consumers, reindexConsumer)

	return nil
}

func (a *App) StopWorkers() {
	for _, c := range a.consumers {
		c.Stop()
		<-c.StopChan
	}
}
