package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseFile(t *testing.T) {
	t.Run("parses plain text as a single page", func(t *testing.T) {
		path := writeTemp(t, "notes.txt", "hello world")

		doc, err := ParseFile(path, Options{})

		require.NoError(t, err)
		assert.Equal(t, 1, doc.PageCount)
		assert.Equal(t, "hello world", doc.Sections[0].Text)
		assert.Equal(t, 1, doc.Sections[0].Page)
	})

	t.Run("form feeds split pages with 1-based numbering", func(t *testing.T) {
		path := writeTemp(t, "report.md", "first section\fsecond section\fthird section")

		doc, err := ParseFile(path, Options{})

		require.NoError(t, err)
		assert.Equal(t, 3, doc.PageCount)
		assert.Equal(t, 2, doc.Sections[1].Page)
		assert.Equal(t, "second section", doc.Sections[1].Text)
		assert.Equal(t, "first section\n\nsecond section\n\nthird section", doc.Text())
	})

	t.Run("rejects unsupported extensions", func(t *testing.T) {
		path := writeTemp(t, "image.png", "binary")

		_, err := ParseFile(path, Options{})

		assert.ErrorIs(t, err, ErrUnsupportedType)
	})

	t.Run("enforces the page limit", func(t *testing.T) {
		path := writeTemp(t, "big.txt", "a\fb\fc\fd")

		_, err := ParseFile(path, Options{MaxPages: 2})

		assert.ErrorIs(t, err, ErrPageLimit)
	})

	t.Run("flags documents with no extractable text", func(t *testing.T) {
		path := writeTemp(t, "scan.txt", " \f \f ")

		_, err := ParseFile(path, Options{})

		assert.ErrorIs(t, err, ErrScannedDocument)
	})

	t.Run("decodes latin-1 fallback without replacement runes", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "legacy.txt")
		require.NoError(t, os.WriteFile(path, []byte{'c', 'a', 'f', 0xE9}, 0o644))

		doc, err := ParseFile(path, Options{})

		require.NoError(t, err)
		assert.Equal(t, "café", doc.Sections[0].Text)
	})
}

func TestSupportedExtension(t *testing.T) {
	assert.True(t, SupportedExtension(".txt"))
	assert.True(t, SupportedExtension(".MD"))
	assert.False(t, SupportedExtension(".pdf"))
}
