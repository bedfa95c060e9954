package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointID(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		assert.Equal(t, PointID("doc-1", "chunk-a"), PointID("doc-1", "chunk-a"))
	})

	t.Run("differs across documents and chunks", func(t *testing.T) {
		assert.NotEqual(t, PointID("doc-1", "chunk-a"), PointID("doc-2", "chunk-a"))
		assert.NotEqual(t, PointID("doc-1", "chunk-a"), PointID("doc-1", "chunk-b"))
	})

	t.Run("is a valid uuid", func(t *testing.T) {
		id := PointID("doc-1", "chunk-a")
		assert.Len(t, id, 36)
	})
}

func TestCollectionDescription(t *testing.T) {
	t.Run("round trips dimension and distance", func(t *testing.T) {
		desc := collectionDescription(1536, "cosine")

		dim, dist, err := ParseCollectionDescription(desc)

		require.NoError(t, err)
		assert.Equal(t, 1536, dim)
		assert.Equal(t, "cosine", dist)
	})

	t.Run("rejects foreign descriptions", func(t *testing.T) {
		_, _, err := ParseCollectionDescription("A chunk of a document")
		assert.Error(t, err)
	})
}
