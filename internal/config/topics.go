package config

const (
	// TopicIngestJob carries dispatched processing job IDs to ingestion workers.
	TopicIngestJob = "ingest.job"

	// TopicReindexRun carries embedding reindex run IDs to reindex workers.
	TopicReindexRun = "reindex.run"
)
