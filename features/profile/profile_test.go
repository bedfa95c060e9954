package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	assert.Equal(t, "text-embedding-3-small", Slug("text-embedding-3-small"))
	assert.Equal(t, "intfloat-multilingual-e5-large", Slug("intfloat/multilingual-e5-large"))
	assert.Equal(t, "gemini-embedding-001", Slug("Gemini Embedding 001"))
}

func TestDraftName(t *testing.T) {
	assert.Equal(t, "openai-text-embedding-3-small-v1", DraftName("openai", "text-embedding-3-small", 1))
	assert.Equal(t, "gemini-gemini-embedding-001-v3", DraftName("gemini", "gemini-embedding-001", 3))
}

func TestStagingCollectionName(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	name := StagingCollectionName("1234abcd-5678-90ef-1234-567890abcdef", at)

	assert.Equal(t, "DocumentChunks_ep1234abcd_run20260102030405", name)
}

func TestHealedCollectionName(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	assert.Equal(t, "DocumentChunks_d768_20260102030405", HealedCollectionName(768, at))
}
