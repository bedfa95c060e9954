package document

import "time"

// Document lifecycle statuses. The ingestion pipeline is the only writer
// of the intermediate states.
const (
	StatusUploaded  = "uploaded"
	StatusParsing   = "parsing"
	StatusChunking  = "chunking"
	StatusEmbedding = "embedding"
	StatusIndexed   = "indexed"
	StatusFailed    = "failed"
	StatusArchived  = "archived"
)

type Document struct {
	ID                string     `json:"id"`
	OwnerID           string     `json:"owner_id"`
	FileName          string     `json:"file_name"`
	FilePath          string     `json:"-"`
	ContentType       string     `json:"content_type"`
	SizeBytes         int64      `json:"size_bytes"`
	ContentHash       string     `json:"content_hash"`
	Status            string     `json:"status"`
	ChunkCount        int        `json:"chunk_count"`
	IndexedChunkCount int        `json:"indexed_chunk_count"`
	PageCount         int        `json:"page_count"`
	ErrorDetail       string     `json:"error_detail,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
}
