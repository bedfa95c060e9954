package profile

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Profile statuses. Exactly one profile is active at a time; activation
// happens only through a successful reindex apply.
const (
	StatusDraft   = "draft"
	StatusActive  = "active"
	StatusRetired = "retired"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Distance metrics accepted by the vector store.
var DistanceMetrics = map[string]bool{
	"cosine":     true,
	"dot":        true,
	"l2-squared": true,
}

// BaseCollection and ActiveAlias are the well-known vector store names.
// Reads and writes always go through the alias; concrete collections
// change identity across reindexes.
const (
	BaseCollection = "DocumentChunks"
	ActiveAlias    = "DocumentChunksActive"
)

type Profile struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Provider       string     `json:"provider"`
	ModelID        string     `json:"model_id"`
	Dimension      int        `json:"dimension"`
	DistanceMetric string     `json:"distance_metric"`
	UseE5Prefix    bool       `json:"use_e5_prefix"`
	BaseURL        string     `json:"base_url,omitempty"`
	BatchSize      int        `json:"batch_size"`
	CollectionName string     `json:"collection_name,omitempty"`
	AliasName      string     `json:"alias_name"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ActivatedAt    *time.Time `json:"activated_at,omitempty"`
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slug normalizes a model id into a name-safe fragment.
func Slug(s string) string {
	s = strings.ToLower(s)
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// DraftName builds the human-readable profile name, versioned per
// provider/model pair.
func DraftName(provider, modelID string, version int) string {
	return fmt.Sprintf("%s-%s-v%d", provider, Slug(modelID), version)
}

// StagingCollectionName allocates a unique collection name for a reindex
// run. Weaviate class names must start with an uppercase letter and allow
// only word characters, so the profile id is reduced to its first hex
// octets and the timestamp is compacted.
func StagingCollectionName(profileID string, at time.Time) string {
	id := strings.ReplaceAll(profileID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s_ep%s_run%s", BaseCollection, id, at.UTC().Format("20060102150405"))
}

// HealedCollectionName names a replacement collection created when the
// alias target's dimension no longer matches the active profile.
func HealedCollectionName(dimension int, at time.Time) string {
	return fmt.Sprintf("%s_d%d_%s", BaseCollection, dimension, at.UTC().Format("20060102150405"))
}
