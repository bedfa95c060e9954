package text

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Chunk is one embeddable slice of a document. IDs are derived from the
// document id, chunk index and content, so re-chunking unchanged text
// yields identical ids and vector upserts stay idempotent.
type Chunk struct {
	ID      string
	Index   int
	Content string
}

// Separator ladder for recursive splitting: paragraphs first, then lines,
// then sentences, then words.
var separators = []string{"\n\n", "\n", ". ", " "}

// ChunkDocument splits text into chunks of at most size characters, each
// chunk after the first prefixed with the tail of its predecessor for
// context continuity. startIndex offsets the logical index so documents
// chunked section by section keep globally unique chunk positions.
// Whitespace-only input yields no chunks.
func ChunkDocument(docID, content string, size, overlap, startIndex int) []Chunk {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil
	}

	segments := splitRecursive(trimmed, size, separators)

	chunks := make([]Chunk, 0, len(segments))
	prev := ""
	idx := startIndex

	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}

		body := seg
		if overlap > 0 && prev != "" {
			tail := prev
			if runes := []rune(tail); len(runes) > overlap {
				tail = string(runes[len(runes)-overlap:])
			}
			body = tail + "\n" + seg
		}

		chunks = append(chunks, Chunk{
			ID:      ChunkID(docID, idx, body),
			Index:   idx,
			Content: body,
		})

		prev = seg
		idx++
	}

	return chunks
}

// ChunkID is a stable content-addressed id: sha1 over doc id, position and
// chunk text, truncated to 20 hex chars.
func ChunkID(docID string, index int, content string) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s:%d:%s", docID, index, content)))
	return hex.EncodeToString(sum[:])[:20]
}

// splitRecursive cuts text at the coarsest separator that keeps pieces
// within size, descending the ladder for oversized pieces. When no
// separator helps, it falls back to hard cuts at the size boundary.
// Sizes count characters, not bytes, so cuts never land inside a
// multibyte rune.
func splitRecursive(text string, size int, seps []string) []string {
	if utf8.RuneCountInString(text) <= size {
		return []string{text}
	}

	if len(seps) == 0 {
		var parts []string
		runes := []rune(text)
		for len(runes) > size {
			parts = append(parts, string(runes[:size]))
			runes = runes[size:]
		}
		if len(runes) > 0 {
			parts = append(parts, string(runes))
		}
		return parts
	}

	pieces := strings.SplitAfter(text, seps[0])

	var out []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if n > size {
			flush()
			out = append(out, splitRecursive(piece, size, seps[1:])...)
			continue
		}
		if curLen+n > size {
			flush()
		}
		cur.WriteString(piece)
		curLen += n
	}
	flush()

	return out
}
