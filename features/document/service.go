package document

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"docloom/features/job"
	"docloom/internal/lock"
	"docloom/internal/parser"
)

var (
	ErrDuplicate     = errors.New("document with identical content already exists")
	ErrTooLarge      = errors.New("document exceeds upload size limit")
	ErrNotFound      = errors.New("document not found")
	ErrDeleted       = errors.New("document has been deleted")
	ErrUnsupported   = errors.New("unsupported document type")
)

const (
	deleteLockTTL   = 240 * time.Second
	deleteLockBlock = 5 * time.Second
)

// Locker is the slice of the lease manager the service needs.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl, blockFor time.Duration) (*lock.Lease, error)
}

// VectorPurger removes a document's points from the live collection.
type VectorPurger interface {
	DeleteDocumentVectors(ctx context.Context, documentID string) error
}

type Service struct {
	repo      Repository
	jobs      job.Repository
	locker    Locker
	purger    VectorPurger
	uploadDir string
	maxBytes  int64
}

func NewService(repo Repository, jobs job.Repository, locker Locker, purger VectorPurger, uploadDir string, maxUploadMB int64) *Service {
	return &Service{
		repo:      repo,
		jobs:      jobs,
		locker:    locker,
		purger:    purger,
		uploadDir: uploadDir,
		maxBytes:  maxUploadMB * 1024 * 1024,
	}
}

// Upload stores the file, registers the document and queues its first
// ingestion job. Identical content (by sha256) is rejected as a duplicate.
func (s *Service) Upload(ctx context.Context, ownerID, fileName, contentType string, r io.Reader) (*Document, *job.Job, error) {
	ext := filepath.Ext(fileName)
	if !parser.SupportedExtension(ext) {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create upload dir: %w", err)
	}

	path := filepath.Join(s.uploadDir, uuid.New().String()+ext)
	hash, size, err := s.saveFile(path, r)
	if err != nil {
		return nil, nil, err
	}

	if existing, err := s.repo.FindByHash(ctx, hash); err == nil {
		os.Remove(path)
		return existing, nil, ErrDuplicate
	} else if !errors.Is(err, sql.ErrNoRows) {
		os.Remove(path)
		return nil, nil, err
	}

	doc := &Document{
		OwnerID:     ownerID,
		FileName:    fileName,
		FilePath:    path,
		ContentType: contentType,
		SizeBytes:   size,
		ContentHash: hash,
		Status:      StatusUploaded,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		os.Remove(path)
		return nil, nil, fmt.Errorf("create document: %w", err)
	}

	j := &job.Job{DocumentID: doc.ID, JobType: job.TypeIngest, Status: job.StatusQueued}
	if err := s.jobs.Create(ctx, j); err != nil {
		return nil, nil, fmt.Errorf("queue ingestion job: %w", err)
	}

	slog.InfoContext(ctx, "document uploaded", "document_id", doc.ID, "job_id", j.ID, "size_bytes", size)
	return doc, j, nil
}

func (s *Service) saveFile(path string, r io.Reader) (string, int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	limited := io.LimitReader(r, s.maxBytes+1)

	size, err := io.Copy(io.MultiWriter(f, hasher), limited)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("write upload file: %w", err)
	}
	if size > s.maxBytes {
		os.Remove(path)
		return "", 0, ErrTooLarge
	}

	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

func (s *Service) List(ctx context.Context) ([]Document, error) {
	return s.repo.List(ctx, false)
}

// Reprocess queues a fresh ingestion pass. An existing active job is
// reused instead of stacking another one behind it.
func (s *Service) Reprocess(ctx context.Context, id string) (*job.Job, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.DeletedAt != nil {
		return nil, ErrDeleted
	}

	if active, err := s.jobs.FindActiveByDocument(ctx, id); err == nil {
		slog.InfoContext(ctx, "reusing active job for reprocess", "document_id", id, "job_id", active.ID, "status", active.Status)
		return active, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	j := &job.Job{DocumentID: id, JobType: job.TypeReprocess, Status: job.StatusQueued}
	if err := s.jobs.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("queue reprocess job: %w", err)
	}
	return j, nil
}

// Delete tombstones the document and purges its vectors. It takes the
// same per-document lock as ingestion so a running pipeline never races
// a delete.
func (s *Service) Delete(ctx context.Context, id string) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.DeletedAt != nil {
		return nil
	}

	lease, err := s.locker.Acquire(ctx, lock.DocumentLockName(id), deleteLockTTL, deleteLockBlock)
	if err != nil {
		return fmt.Errorf("lock document for delete: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			slog.WarnContext(ctx, "failed to release document lock", "document_id", id, "error", err)
		}
	}()

	if active, err := s.jobs.FindActiveByDocument(ctx, id); err == nil {
		if err := s.jobs.Cancel(ctx, active.ID, "document deleted"); err != nil {
			return fmt.Errorf("cancel active job: %w", err)
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if err := s.purger.DeleteDocumentVectors(ctx, id); err != nil {
		return fmt.Errorf("purge vectors: %w", err)
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return fmt.Errorf("soft delete document: %w", err)
	}

	if doc.FilePath != "" {
		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
			slog.WarnContext(ctx, "failed to remove stored file", "document_id", id, "path", doc.FilePath, "error", err)
		}
	}

	slog.InfoContext(ctx, "document deleted", "document_id", id)
	return nil
}
