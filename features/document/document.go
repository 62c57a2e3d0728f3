package document

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"docuchat/internal/config"
	"docuchat/internal/middleware"
)

const (
	StatusPending    = "pending"
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("duplicate document")
	ErrEmptyFile = errors.New("uploaded file is empty")
)

type Document struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	FilePath    string    `json:"-"`
	ContentHash string    `json:"-"`
	SizeBytes   int64     `json:"size_bytes"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Repository interface {
	Save(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context) ([]Document, error)
	UpdateStatus(ctx context.Context, id, status string) error
	MarkFailed(ctx context.Context, id, message string) error
	Delete(ctx context.Context, id string) error
	ExistsByHash(ctx context.Context, hash string) (bool, error)
}

type ChunkStore interface {
	DeleteByDocument(ctx context.Context, documentID string) error
	CountByDocument(ctx context.Context, documentID string) (int, error)
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

const defaultMaxFetchBytes = 25 << 20

type Service struct {
	repo      Repository
	pub       TaskPublisher
	chunks    ChunkStore
	uploadDir string

	httpClient    *http.Client
	maxFetchBytes int64
}

func NewService(repo Repository, pub TaskPublisher, chunks ChunkStore, uploadDir string) *Service {
	return &Service{
		repo:          repo,
		pub:           pub,
		chunks:        chunks,
		uploadDir:     uploadDir,
		httpClient:    &http.Client{Timeout: 60 * time.Second},
		maxFetchBytes: defaultMaxFetchBytes,
	}
}

// WithFetcher overrides the HTTP client and size cap used for URL ingestion.
func (s *Service) WithFetcher(client *http.Client, maxBytes int64) *Service {
	if client != nil {
		s.httpClient = client
	}
	if maxBytes > 0 {
		s.maxFetchBytes = maxBytes
	}
	return s
}

// CreateFromUpload stores the uploaded PDF on disk, records the document as
// pending, and enqueues a processing task. Duplicate uploads are detected by
// content hash and rejected before anything is written.
func (s *Service) CreateFromUpload(ctx context.Context, filename string, content []byte) (*Document, error) {
	return s.create(ctx, filename, content)
}

func (s *Service) create(ctx context.Context, filename string, content []byte) (*Document, error) {
	if len(content) == 0 {
		return nil, ErrEmptyFile
	}

	hash := fmt.Sprintf("%x", sha256.Sum256(content))
	exists, err := s.repo.ExistsByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicate
	}

	id := uuid.New().String()
	if err := os.MkdirAll(s.uploadDir, 0o750); err != nil {
		return nil, err
	}
	path := filepath.Join(s.uploadDir, id+".pdf")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return nil, err
	}

	doc := &Document{
		ID:          id,
		Filename:    filename,
		FilePath:    path,
		ContentHash: hash,
		SizeBytes:   int64(len(content)),
		Status:      StatusPending,
	}
	if err := s.repo.Save(ctx, doc); err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	s.enqueue(ctx, doc, false)
	return doc, nil
}

func (s *Service) enqueue(ctx context.Context, doc *Document, reprocess bool) {
	payload, _ := json.Marshal(map[string]interface{}{
		"document_id":    doc.ID,
		"reprocess":      reprocess,
		"correlation_id": middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(config.TopicDocumentProcess, payload); err != nil {
		// The document stays in its current status; an operator can
		// resubmit via reprocess once the queue is back.
		slog.ErrorContext(ctx, "failed to publish process task", "error", err, "document_id", doc.ID)
		return
	}
	if err := s.repo.UpdateStatus(ctx, doc.ID, StatusQueued); err != nil {
		slog.WarnContext(ctx, "failed to mark document queued", "error", err, "document_id", doc.ID)
	} else {
		doc.Status = StatusQueued
	}
	slog.InfoContext(ctx, "published process task", "document_id", doc.ID, "reprocess", reprocess)
}

type Detail struct {
	Document
	ChunkCount int `json:"chunk_count"`
}

func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	count, err := s.chunks.CountByDocument(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "failed to count chunks", "error", err, "document_id", id)
		count = 0
	}

	return &Detail{Document: *doc, ChunkCount: count}, nil
}

func (s *Service) List(ctx context.Context) ([]Document, error) {
	return s.repo.List(ctx)
}

// Delete removes the chunk set first so a failed delete never leaves
// orphaned chunks behind a missing document record.
func (s *Service) Delete(ctx context.Context, id string) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.chunks.DeleteByDocument(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if doc.FilePath != "" {
		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
			slog.WarnContext(ctx, "failed to remove stored file", "error", err, "document_id", id)
		}
	}
	return nil
}

func (s *Service) Reprocess(ctx context.Context, id string) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	s.enqueue(ctx, doc, true)
	return nil
}
