package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"docuchat/features/document"
	"docuchat/internal/chunk"
	"docuchat/internal/text"
)

var (
	// ErrInProgress signals that another worker is already processing this
	// document. The caller should requeue rather than give up.
	ErrInProgress = errors.New("document is already being processed")

	// ErrRetry marks transient bookkeeping failures around an otherwise
	// healthy document, like a status write the database rejected. The
	// caller should redeliver; the pipeline is idempotent.
	ErrRetry = errors.New("retryable ingestion failure")
)

const maxErrorLen = 500

// ExtractFunc turns a raw file into per-page plain text.
type ExtractFunc func(r io.Reader) ([]string, error)

type DocumentRepo interface {
	Get(ctx context.Context, id string) (*document.Document, error)
	UpdateStatus(ctx context.Context, id, status string) error
	MarkFailed(ctx context.Context, id, message string) error
}

type ChunkRepo interface {
	BulkInsert(ctx context.Context, chunks []chunk.Chunk) error
	DeleteByDocument(ctx context.Context, documentID string) error
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Service runs the full ingestion pipeline for a document: extract text,
// chunk it, embed every chunk, and persist the result. Any failure marks
// the document failed so the status is never left dangling in processing.
type Service struct {
	docs     DocumentRepo
	chunks   ChunkRepo
	embedder Embedder
	extract  ExtractFunc

	maxTokens int
	overlap   int

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewService(docs DocumentRepo, chunks ChunkRepo, embedder Embedder, extract ExtractFunc, maxTokens, overlap int) *Service {
	return &Service{
		docs:      docs,
		chunks:    chunks,
		embedder:  embedder,
		extract:   extract,
		maxTokens: maxTokens,
		overlap:   overlap,
		inflight:  make(map[string]struct{}),
	}
}

func (s *Service) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Service) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}

// Process ingests one document end to end. Safe to call concurrently; a
// second call for the same id returns ErrInProgress while the first runs.
func (s *Service) Process(ctx context.Context, documentID string) error {
	if !s.acquire(documentID) {
		return ErrInProgress
	}
	defer s.release(documentID)

	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: load document: %v", ErrRetry, err)
	}

	if err := s.docs.UpdateStatus(ctx, documentID, document.StatusProcessing); err != nil {
		return fmt.Errorf("%w: mark processing: %v", ErrRetry, err)
	}

	start := time.Now()
	if err := s.run(ctx, doc); err != nil {
		s.fail(ctx, documentID, err)
		return err
	}

	if err := s.docs.UpdateStatus(ctx, documentID, document.StatusCompleted); err != nil {
		// The chunks are persisted and only the status write failed.
		// Redelivery re-runs the pipeline, which replaces the chunk set,
		// so the document cannot be left in processing forever.
		return fmt.Errorf("%w: mark completed: %v", ErrRetry, err)
	}
	slog.InfoContext(ctx, "document processed", "document_id", documentID, "duration", time.Since(start))
	return nil
}

func (s *Service) run(ctx context.Context, doc *document.Document) error {
	f, err := os.Open(doc.FilePath)
	if err != nil {
		return fmt.Errorf("open stored file: %w", err)
	}
	defer f.Close()

	pages, err := s.extract(f)
	if err != nil {
		return fmt.Errorf("extract text: %w", err)
	}

	chunks := text.SplitPages(pages, s.maxTokens, s.overlap)
	if len(chunks) == 0 {
		return errors.New("document contains no extractable text")
	}
	slog.InfoContext(ctx, "document chunked", "document_id", doc.ID, "pages", len(pages), "chunks", len(chunks))

	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	embeddings, err := s.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: got %d for %d chunks", len(embeddings), len(chunks))
	}

	// Reprocessing replaces the old chunk set wholesale. Deleting just
	// before insert keeps the window where the document has no chunks as
	// small as possible.
	if err := s.chunks.DeleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("clear previous chunks: %w", err)
	}

	records := make([]chunk.Chunk, len(chunks))
	for i, c := range chunks {
		records[i] = chunk.Chunk{
			DocumentID: doc.ID,
			Index:      c.Index,
			Content:    c.Content,
			PageNumber: c.PageNumber,
			CharStart:  c.CharStart,
			CharEnd:    c.CharEnd,
			Embedding:  embeddings[i],
			TokenCount: c.TokenCount,
		}
	}
	if err := s.chunks.BulkInsert(ctx, records); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}
	return nil
}

func (s *Service) fail(ctx context.Context, documentID string, cause error) {
	msg := cause.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	if err := s.docs.MarkFailed(ctx, documentID, msg); err != nil {
		slog.ErrorContext(ctx, "failed to mark document failed", "error", err, "document_id", documentID)
	}
	slog.ErrorContext(ctx, "document processing failed", "error", cause, "document_id", documentID)
}
