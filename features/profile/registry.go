package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gemini "docloom/internal/adapter/gemini"
	oai "docloom/internal/adapter/openai"
	"docloom/internal/embed"
	"docloom/internal/settings"
	"docloom/internal/vector"
)

var (
	ErrNoActiveProfile   = errors.New("no active embedding profile")
	ErrNoDraftProfile    = errors.New("no draft embedding profile")
	ErrInvalidSettings   = errors.New("invalid embedding settings")
	ErrDimensionMismatch = errors.New("declared dimension does not match provider output")
)

// AliasManager is the alias slice of the vector store API.
type AliasManager interface {
	Target(ctx context.Context, alias string) (string, error)
	Create(ctx context.Context, alias, collection string) error
	Switch(ctx context.Context, alias, collection string) error
}

// EmbedderFactory builds an embedder for a profile's provider settings.
type EmbedderFactory func(ctx context.Context, p *Profile) (embed.Embedder, error)

// NewEmbedderFactory wires provider API keys from configuration into
// per-profile embedder construction.
func NewEmbedderFactory(openAIKey, openAIBaseURL, geminiKey string) EmbedderFactory {
	return func(ctx context.Context, p *Profile) (embed.Embedder, error) {
		switch p.Provider {
		case ProviderOpenAI:
			baseURL := p.BaseURL
			if baseURL == "" {
				baseURL = openAIBaseURL
			}
			return oai.NewEmbedder(openAIKey, baseURL, p.ModelID,
				oai.WithDimension(p.Dimension),
				oai.WithE5Prefix(p.UseE5Prefix)), nil
		case ProviderGemini:
			return gemini.NewEmbedder(ctx, geminiKey, p.ModelID)
		default:
			return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidSettings, p.Provider)
		}
	}
}

// Registry owns the versioned embedding configuration: the single active
// profile, drafts awaiting a reindex, and the alias that readers resolve
// collections through.
type Registry struct {
	repo        Repository
	store       vector.Store
	aliases     AliasManager
	settings    settings.Store
	embedderFor EmbedderFactory
	now         func() time.Time
}

func NewRegistry(repo Repository, store vector.Store, aliases AliasManager, settingsStore settings.Store, factory EmbedderFactory) *Registry {
	return &Registry{
		repo:        repo,
		store:       store,
		aliases:     aliases,
		settings:    settingsStore,
		embedderFor: factory,
		now:         time.Now,
	}
}

// Bootstrap guarantees an active profile, its collection and the active
// alias exist, creating defaults on first start.
func (g *Registry) Bootstrap(ctx context.Context, defaults settings.EmbeddingSettings) error {
	active, err := g.repo.GetActive(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		p := &Profile{
			Name:           DraftName(defaults.Provider, defaults.ModelID, 1),
			Provider:       defaults.Provider,
			ModelID:        defaults.ModelID,
			Dimension:      defaults.Dimension,
			DistanceMetric: defaults.DistanceMetric,
			UseE5Prefix:    defaults.UseE5Prefix,
			BaseURL:        defaults.BaseURL,
			BatchSize:      defaults.BatchSize,
			CollectionName: BaseCollection,
			AliasName:      ActiveAlias,
			Status:         StatusDraft,
		}
		if err := g.normalize(p); err != nil {
			return err
		}
		if err := g.repo.Create(ctx, p); err != nil {
			return fmt.Errorf("create bootstrap profile: %w", err)
		}
		if err := g.repo.ActivateExclusive(ctx, p.ID, BaseCollection); err != nil {
			return fmt.Errorf("activate bootstrap profile: %w", err)
		}
		active = p
		active.CollectionName = BaseCollection
		slog.InfoContext(ctx, "bootstrapped embedding profile", "profile", p.Name, "dimension", p.Dimension)
	} else if err != nil {
		return err
	}

	collection := active.CollectionName
	if collection == "" {
		collection = BaseCollection
	}
	if err := g.store.EnsureCollection(ctx, collection, active.Dimension, active.DistanceMetric); err != nil {
		return fmt.Errorf("ensure collection %s: %w", collection, err)
	}

	target, err := g.aliases.Target(ctx, ActiveAlias)
	if err != nil {
		return err
	}
	if target == "" {
		if err := g.aliases.Create(ctx, ActiveAlias, collection); err != nil {
			return fmt.Errorf("create active alias: %w", err)
		}
		slog.InfoContext(ctx, "created active alias", "alias", ActiveAlias, "collection", collection)
	}
	return nil
}

func (g *Registry) Active(ctx context.Context) (*Profile, error) {
	p, err := g.repo.GetActive(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActiveProfile
	}
	return p, err
}

func (g *Registry) LatestDraft(ctx context.Context) (*Profile, error) {
	p, err := g.repo.LatestDraft(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoDraftProfile
	}
	return p, err
}

func (g *Registry) Get(ctx context.Context, id string) (*Profile, error) {
	return g.repo.Get(ctx, id)
}

func (g *Registry) List(ctx context.Context) ([]Profile, error) {
	return g.repo.List(ctx)
}

// SaveSettings validates the submitted configuration and materializes it
// as a draft profile. The active profile is never mutated here; drafts
// only go live through a reindex apply.
func (g *Registry) SaveSettings(ctx context.Context, s settings.EmbeddingSettings) (*Profile, error) {
	p := &Profile{
		Provider:       s.Provider,
		ModelID:        s.ModelID,
		Dimension:      s.Dimension,
		DistanceMetric: s.DistanceMetric,
		UseE5Prefix:    s.UseE5Prefix,
		BaseURL:        s.BaseURL,
		BatchSize:      s.BatchSize,
		AliasName:      ActiveAlias,
		Status:         StatusDraft,
	}
	if err := g.normalize(p); err != nil {
		return nil, err
	}

	// Best-effort dimension probe: a reachable provider that disagrees
	// with the declared dimension is a hard error, an unreachable one is
	// only a warning.
	if embedder, err := g.embedderFor(ctx, p); err == nil {
		if probed, err := embedder.ProbeDimension(ctx); err != nil {
			slog.WarnContext(ctx, "dimension probe failed, accepting declared dimension", "model", p.ModelID, "error", err)
		} else if probed != p.Dimension {
			return nil, fmt.Errorf("%w: declared %d, provider returned %d", ErrDimensionMismatch, p.Dimension, probed)
		}
	}

	version, err := g.repo.CountByModel(ctx, p.Provider, p.ModelID)
	if err != nil {
		return nil, err
	}
	p.Name = DraftName(p.Provider, p.ModelID, version+1)

	if err := g.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create draft profile: %w", err)
	}

	if err := g.settings.Put(ctx, settings.NamespaceEmbedding, settings.KeyEmbeddingSettings, &s); err != nil {
		return nil, fmt.Errorf("persist embedding settings: %w", err)
	}

	slog.InfoContext(ctx, "created draft embedding profile", "profile", p.Name, "dimension", p.Dimension)
	return p, nil
}

func (g *Registry) normalize(p *Profile) error {
	if p.Provider != ProviderOpenAI && p.Provider != ProviderGemini {
		return fmt.Errorf("%w: provider %q", ErrInvalidSettings, p.Provider)
	}
	if p.ModelID == "" {
		return fmt.Errorf("%w: model id required", ErrInvalidSettings)
	}
	if p.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidSettings)
	}
	if p.DistanceMetric == "" {
		p.DistanceMetric = "cosine"
	}
	if !DistanceMetrics[p.DistanceMetric] {
		return fmt.Errorf("%w: distance metric %q", ErrInvalidSettings, p.DistanceMetric)
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 32
	}
	return nil
}

// ActiveCollection resolves the alias to the concrete collection the
// pipeline must write to, self-healing two inconsistencies: a missing
// alias is recreated, and an alias pointing at a collection of the wrong
// dimension is repointed at a fresh, correctly sized one.
func (g *Registry) ActiveCollection(ctx context.Context) (string, *Profile, error) {
	p, err := g.Active(ctx)
	if err != nil {
		return "", nil, err
	}

	target, err := g.aliases.Target(ctx, ActiveAlias)
	if err != nil {
		return "", nil, err
	}
	if target == "" {
		target = p.CollectionName
		if target == "" {
			target = BaseCollection
		}
		if err := g.store.EnsureCollection(ctx, target, p.Dimension, p.DistanceMetric); err != nil {
			return "", nil, err
		}
		if err := g.aliases.Create(ctx, ActiveAlias, target); err != nil {
			return "", nil, fmt.Errorf("recreate active alias: %w", err)
		}
		slog.WarnContext(ctx, "active alias was missing, recreated", "alias", ActiveAlias, "collection", target)
	}

	dimension, err := g.store.CollectionDimension(ctx, target)
	if err != nil {
		return "", nil, fmt.Errorf("read dimension of %s: %w", target, err)
	}
	if dimension != p.Dimension {
		healed := HealedCollectionName(p.Dimension, g.now())
		if err := g.store.EnsureCollection(ctx, healed, p.Dimension, p.DistanceMetric); err != nil {
			return "", nil, err
		}
		if err := g.aliases.Switch(ctx, ActiveAlias, healed); err != nil {
			return "", nil, fmt.Errorf("heal alias dimension: %w", err)
		}
		slog.WarnContext(ctx, "alias target dimension mismatch, repointed alias",
			"alias", ActiveAlias, "old_collection", target, "new_collection", healed,
			"expected_dimension", p.Dimension, "found_dimension", dimension)
		target = healed
	}

	return target, p, nil
}

// EmbedderFor returns a ready embedder for the profile.
func (g *Registry) EmbedderFor(ctx context.Context, p *Profile) (embed.Embedder, error) {
	return g.embedderFor(ctx, p)
}

// StatusPayload is the settings-UI summary of the embedding subsystem.
type StatusPayload struct {
	ActiveAlias     string   `json:"active_alias"`
	AliasTarget     string   `json:"alias_target"`
	ActiveProfile   *Profile `json:"active_profile,omitempty"`
	LatestDraft     *Profile `json:"latest_draft,omitempty"`
	SettingsVersion int      `json:"settings_version"`
}

func (g *Registry) Status(ctx context.Context) (*StatusPayload, error) {
	payload := &StatusPayload{ActiveAlias: ActiveAlias}

	if p, err := g.Active(ctx); err == nil {
		payload.ActiveProfile = p
	} else if !errors.Is(err, ErrNoActiveProfile) {
		return nil, err
	}

	if d, err := g.LatestDraft(ctx); err == nil {
		payload.LatestDraft = d
	} else if !errors.Is(err, ErrNoDraftProfile) {
		return nil, err
	}

	target, err := g.aliases.Target(ctx, ActiveAlias)
	if err != nil {
		return nil, err
	}
	payload.AliasTarget = target

	version, _, err := g.settings.Get(ctx, settings.NamespaceEmbedding, settings.KeyEmbeddingSettings, nil)
	if err != nil {
		return nil, err
	}
	payload.SettingsVersion = version

	return payload, nil
}
