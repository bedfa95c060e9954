package text

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestChunkDocument(t *testing.T) {
	t.Run("empty and whitespace input yields no chunks", func(t *testing.T) {
		assert.Empty(t, ChunkDocument("doc-1", "", 800, 120, 0))
		assert.Empty(t, ChunkDocument("doc-1", "   \n\t  ", 800, 120, 0))
	})

	t.Run("short text yields a single chunk with index zero", func(t *testing.T) {
		chunks := ChunkDocument("doc-1", "hello world", 800, 120, 0)

		assert.Len(t, chunks, 1)
		assert.Equal(t, 0, chunks[0].Index)
		assert.Equal(t, "hello world", chunks[0].Content)
		assert.Len(t, chunks[0].ID, 20)
	})

	t.Run("is deterministic across invocations", func(t *testing.T) {
		content := strings.Repeat("Paragraph one.\n\nParagraph two with more text in it.\n\n", 40)

		a := ChunkDocument("doc-1", content, 200, 40, 0)
		b := ChunkDocument("doc-1", content, 200, 40, 0)

		assert.Equal(t, a, b)
	})

	t.Run("chunk ids differ per document", func(t *testing.T) {
		a := ChunkDocument("doc-1", "same content", 800, 120, 0)
		b := ChunkDocument("doc-2", "same content", 800, 120, 0)

		assert.NotEqual(t, a[0].ID, b[0].ID)
	})

	t.Run("splits at paragraph boundaries before line boundaries", func(t *testing.T) {
		content := strings.Repeat("alpha ", 30) + "\n\n" + strings.Repeat("beta ", 30)

		chunks := ChunkDocument("doc-1", content, 200, 0, 0)

		assert.Len(t, chunks, 2)
		assert.True(t, strings.HasPrefix(chunks[0].Content, "alpha"))
		assert.True(t, strings.HasPrefix(chunks[1].Content, "beta"))
	})

	t.Run("later chunks carry the tail of the previous chunk", func(t *testing.T) {
		content := strings.Repeat("alpha ", 30) + "\n\n" + strings.Repeat("beta ", 30)

		chunks := ChunkDocument("doc-1", content, 200, 20, 0)

		assert.Len(t, chunks, 2)
		tail := chunks[0].Content[len(chunks[0].Content)-20:]
		assert.True(t, strings.HasPrefix(chunks[1].Content, tail+"\n"))
	})

	t.Run("hard cuts a single word longer than the chunk size", func(t *testing.T) {
		content := strings.Repeat("x", 500)

		chunks := ChunkDocument("doc-1", content, 200, 0, 0)

		assert.Len(t, chunks, 3)
		for _, c := range chunks {
			assert.LessOrEqual(t, len(c.Content), 200)
		}
	})

	t.Run("overlap tail stays on rune boundaries for multibyte text", func(t *testing.T) {
		content := strings.Repeat("é", 10) + "\n\nsecond paragraph here"

		chunks := ChunkDocument("doc-1", content, 20, 5, 0)

		assert.GreaterOrEqual(t, len(chunks), 2)
		for _, c := range chunks {
			assert.True(t, utf8.ValidString(c.Content), "chunk %d content is not valid UTF-8: %q", c.Index, c.Content)
		}
		assert.True(t, strings.HasPrefix(chunks[1].Content, strings.Repeat("é", 5)+"\n"))
	})

	t.Run("hard cuts multibyte text on rune boundaries", func(t *testing.T) {
		content := strings.Repeat("é", 30)

		chunks := ChunkDocument("doc-1", content, 7, 0, 0)

		assert.Len(t, chunks, 5)
		for _, c := range chunks {
			assert.True(t, utf8.ValidString(c.Content), "chunk %d content is not valid UTF-8: %q", c.Index, c.Content)
			assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 7)
		}
	})

	t.Run("startIndex offsets logical positions for section continuation", func(t *testing.T) {
		chunks := ChunkDocument("doc-1", "second section text", 800, 0, 5)

		assert.Len(t, chunks, 1)
		assert.Equal(t, 5, chunks[0].Index)
	})

	t.Run("chunk indexes are sequential", func(t *testing.T) {
		content := strings.Repeat("Sentence about indexing. ", 60)

		chunks := ChunkDocument("doc-1", content, 150, 30, 0)

		for i, c := range chunks {
			assert.Equal(t, i, c.Index)
		}
	})
}

func TestChunkID(t *testing.T) {
	id := ChunkID("doc-1", 0, "content")

	assert.Len(t, id, 20)
	assert.Equal(t, id, ChunkID("doc-1", 0, "content"))
	assert.NotEqual(t, id, ChunkID("doc-1", 1, "content"))
}
