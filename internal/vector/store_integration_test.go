package vector_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docloom/internal/testutils"
	"docloom/internal/vector"
)

func TestWeaviateStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	store := vector.NewWeaviateStore(s.Weaviate)
	aliases := vector.NewAliasClientForURL("http://" + s.WeaviateAddr)
	ctx := context.Background()

	require.NoError(t, store.EnsureCollection(ctx, "ChunksBlue", 3, "cosine"))
	// Second call must be a no-op, not an error.
	require.NoError(t, store.EnsureCollection(ctx, "ChunksBlue", 3, "cosine"))

	exists, err := store.CollectionExists(ctx, "ChunksBlue")
	require.NoError(t, err)
	assert.True(t, exists)

	dim, err := store.CollectionDimension(ctx, "ChunksBlue")
	require.NoError(t, err)
	assert.Equal(t, 3, dim)

	points := []vector.Point{
		{
			ID:     vector.PointID("doc-1", "c0"),
			Vector: []float32{0.1, 0.2, 0.3},
			Payload: vector.PointPayload{
				DocumentID: "doc-1", ChunkID: "c0", ChunkIndex: 0,
				Page: 1, Content: "first chunk", EmbeddingProfileID: "prof-1",
			},
		},
		{
			ID:     vector.PointID("doc-1", "c1"),
			Vector: []float32{0.4, 0.5, 0.6},
			Payload: vector.PointPayload{
				DocumentID: "doc-1", ChunkID: "c1", ChunkIndex: 1,
				Page: 1, Content: "second chunk", EmbeddingProfileID: "prof-1",
			},
		},
	}
	require.NoError(t, store.UpsertPoints(ctx, "ChunksBlue", points))

	count, err := store.CountByDocument(ctx, "ChunksBlue", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Re-upserting the same chunk ids overwrites in place.
	require.NoError(t, store.UpsertPoints(ctx, "ChunksBlue", points))
	count, err = store.CountByDocument(ctx, "ChunksBlue", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, store.DeleteByDocument(ctx, "ChunksBlue", "doc-1"))
	count, err = store.CountByDocument(ctx, "ChunksBlue", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Alias lifecycle: create, read back, atomic switch, delete.
	require.NoError(t, store.EnsureCollection(ctx, "ChunksGreen", 3, "cosine"))
	require.NoError(t, aliases.Create(ctx, "ChunksActive", "ChunksBlue"))

	target, err := aliases.Target(ctx, "ChunksActive")
	require.NoError(t, err)
	assert.Equal(t, "ChunksBlue", target)

	require.NoError(t, aliases.Switch(ctx, "ChunksActive", "ChunksGreen"))
	target, err = aliases.Target(ctx, "ChunksActive")
	require.NoError(t, err)
	assert.Equal(t, "ChunksGreen", target)

	require.NoError(t, aliases.Delete(ctx, "ChunksActive"))
	target, err = aliases.Target(ctx, "ChunksActive")
	require.NoError(t, err)
	assert.Empty(t, target)
}
