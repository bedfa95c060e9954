package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnsupportedType marks file extensions no parser handles.
	ErrUnsupportedType = errors.New("unsupported document type")

	// ErrPageLimit marks documents exceeding the configured page cap.
	ErrPageLimit = errors.New("document exceeds page limit")

	// ErrScannedDocument marks documents whose pages carry no extractable
	// text, typically scans that would need OCR.
	ErrScannedDocument = errors.New("document appears to be scanned; no extractable text")
)

// Section is one page-like unit of parsed text. Page numbering starts at 1.
type Section struct {
	Page int
	Text string
}

// Document is the parse result handed to the chunker.
type Document struct {
	Sections  []Section
	PageCount int
}

// Text joins all sections into the single string the chunker consumes.
func (d *Document) Text() string {
	parts := make([]string, 0, len(d.Sections))
	for _, s := range d.Sections {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Options bounds parsing work.
type Options struct {
	MaxPages   int
	OCREnabled bool
}

// ParseFile dispatches on the file extension. Plain text and markdown are
// parsed natively; form feeds act as page breaks so multi-section exports
// keep their page numbers.
func ParseFile(path string, opts Options) (*Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		return parsePlainText(path, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(path))
	}
}

// SupportedExtension reports whether ParseFile can handle the extension.
func SupportedExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case ".txt", ".md", ".markdown":
		return true
	}
	return false
}

func parsePlainText(path string, opts Options) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	content := decodeText(raw)
	pages := strings.Split(content, "\f")

	if opts.MaxPages > 0 && len(pages) > opts.MaxPages {
		return nil, fmt.Errorf("%w: %d pages, limit %d", ErrPageLimit, len(pages), opts.MaxPages)
	}

	doc := &Document{PageCount: len(pages)}
	empty := 0
	for i, page := range pages {
		text := strings.TrimSpace(page)
		if text == "" {
			empty++
		}
		doc.Sections = append(doc.Sections, Section{Page: i + 1, Text: text})
	}

	// Mostly empty pages and no OCR to fall back on means we cannot
	// extract anything useful.
	if len(pages) > 0 && float64(empty)/float64(len(pages)) >= 0.8 && !opts.OCREnabled {
		if strings.TrimSpace(content) == "" {
			return nil, ErrScannedDocument
		}
	}

	return doc, nil
}

// decodeText returns raw as a UTF-8 string, reinterpreting invalid input
// as Latin-1 so legacy exports still parse instead of producing
// replacement runes.
func decodeText(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}

	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes)
}
