package settings

import "context"

// EmbeddingSettings is the user-editable embedding configuration. Saving
// it produces a draft profile; it never mutates the active profile
// directly.
type EmbeddingSettings struct {
	Provider       string `json:"provider"`
	ModelID        string `json:"model_id"`
	Dimension      int    `json:"dimension"`
	DistanceMetric string `json:"distance_metric"`
	BaseURL        string `json:"base_url,omitempty"`
	UseE5Prefix    bool   `json:"use_e5_prefix"`
	BatchSize      int    `json:"batch_size,omitempty"`
}

const (
	NamespaceEmbedding = "embedding"
	NamespaceScheduler = "scheduler"

	KeyEmbeddingSettings = "settings"
	KeySchedulerState    = "ingestion_scheduler"
)

// Store persists namespaced JSON documents with a version counter bumped
// on every write.
type Store interface {
	Get(ctx context.Context, namespace, key string, out interface{}) (version int, found bool, err error)
	Put(ctx context.Context, namespace, key string, value interface{}) error
}
