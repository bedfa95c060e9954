package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"docloom"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"docloom"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`

	// Chunking
	ChunkSize    int `envconfig:"RAG_CHUNK_SIZE" default:"800"`
	ChunkOverlap int `envconfig:"RAG_CHUNK_OVERLAP" default:"120"`

	// Embedding defaults (used until a profile overrides them)
	EmbeddingProvider  string `envconfig:"EMBEDDING_PROVIDER" default:"openai"`
	EmbeddingModelID   string `envconfig:"EMBEDDING_MODEL_ID" default:"text-embedding-3-small"`
	EmbeddingDimension int    `envconfig:"EMBEDDING_DIMENSION" default:"1536"`
	EmbeddingDistance  string `envconfig:"EMBEDDING_DISTANCE" default:"cosine"`
	EmbeddingBatchSize int    `envconfig:"EMBEDDING_BATCH_SIZE" default:"32"`

	// Parsing limits
	MaxDocumentPages int  `envconfig:"MAX_DOCUMENT_PAGES" default:"1000"`
	OCREnabled       bool `envconfig:"OCR_ENABLED" default:"false"`

	// Server & storage
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	UploadDir       string `envconfig:"UPLOAD_DIR" default:"./uploads"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	MigrationPath   string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Worker & scheduler
	EnableAPI          bool   `envconfig:"ENABLE_API" default:"true"`
	EnableWorker       bool   `envconfig:"ENABLE_WORKER" default:"true"`
	WorkerConcurrency  int    `envconfig:"WORKER_CONCURRENCY" default:"4"`
	WorkerMaxAttempts  uint16 `envconfig:"WORKER_MAX_ATTEMPTS" default:"3"`
	SchedulerTimezone  string `envconfig:"SCHEDULER_TIMEZONE" default:"Europe/Prague"`
	DispatchBatchLimit int    `envconfig:"DISPATCH_BATCH_LIMIT" default:"0"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may come from the shell; .env files are optional.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: RAG_CHUNK_SIZE must be positive", ErrMissingRequired)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: RAG_CHUNK_OVERLAP must be in [0, chunk size)", ErrMissingRequired)
	}
	return nil
}
