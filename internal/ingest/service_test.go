package ingest

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docuchat/features/document"
	"docuchat/internal/chunk"
)

// --- Mocks ---

type MockDocumentRepo struct {
	mock.Mock
}

func (m *MockDocumentRepo) Get(ctx context.Context, id string) (*document.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*document.Document), args.Error(1)
}

func (m *MockDocumentRepo) UpdateStatus(ctx context.Context, id, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockDocumentRepo) MarkFailed(ctx context.Context, id, message string) error {
	args := m.Called(ctx, id, message)
	return args.Error(0)
}

type MockChunkRepo struct {
	mock.Mock
}

func (m *MockChunkRepo) BulkInsert(ctx context.Context, chunks []chunk.Chunk) error {
	args := m.Called(ctx, chunks)
	return args.Error(0)
}

func (m *MockChunkRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func fixedExtract(pages []string) ExtractFunc {
	return func(r io.Reader) ([]string, error) {
		return pages, nil
	}
}

// --- Tests ---

func TestProcess_Success(t *testing.T) {
	docs := new(MockDocumentRepo)
	chunks := new(MockChunkRepo)
	embedder := new(MockEmbedder)

	path := writeTempFile(t, "raw pdf bytes")
	svc := NewService(docs, chunks, embedder, fixedExtract([]string{"First paragraph.\n\nSecond paragraph."}), 800, 100)

	docs.On("Get", mock.Anything, "doc-1").Return(&document.Document{ID: "doc-1", FilePath: path, Status: document.StatusQueued}, nil)
	docs.On("UpdateStatus", mock.Anything, "doc-1", document.StatusProcessing).Return(nil)
	docs.On("UpdateStatus", mock.Anything, "doc-1", document.StatusCompleted).Return(nil)
	chunks.On("DeleteByDocument", mock.Anything, "doc-1").Return(nil)
	embedder.On("EmbedBatch", mock.Anything, mock.Anything).Return([][]float32{{0.1, 0.2}}, nil)
	chunks.On("BulkInsert", mock.Anything, mock.Anything).Return(nil)

	err := svc.Process(context.Background(), "doc-1")

	assert.NoError(t, err)
	docs.AssertExpectations(t)

	// The persisted record must carry the embedding and chunk metadata.
	records := chunks.Calls[1].Arguments.Get(1).([]chunk.Chunk)
	require.Len(t, records, 1)
	assert.Equal(t, "doc-1", records[0].DocumentID)
	assert.Equal(t, 0, records[0].Index)
	assert.Equal(t, 1, records[0].PageNumber)
	assert.Equal(t, []float32{0.1, 0.2}, records[0].Embedding)
}

func TestProcess_DocumentNotFound(t *testing.T) {
	docs := new(MockDocumentRepo)
	svc := NewService(docs, new(MockChunkRepo), new(MockEmbedder), fixedExtract(nil), 800, 100)

	docs.On("Get", mock.Anything, "missing").Return(nil, document.ErrNotFound)

	err := svc.Process(context.Background(), "missing")

	assert.ErrorIs(t, err, document.ErrNotFound)
	docs.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_ExtractionFailureMarksFailed(t *testing.T) {
	docs := new(MockDocumentRepo)
	chunks := new(MockChunkRepo)
	path := writeTempFile(t, "broken")
	extract := func(r io.Reader) ([]string, error) {
		return nil, errors.New("malformed xref table")
	}
	svc := NewService(docs, chunks, new(MockEmbedder), extract, 800, 100)

	docs.On("Get", mock.Anything, "doc-1").Return(&document.Document{ID: "doc-1", FilePath: path}, nil)
	docs.On("UpdateStatus", mock.Anything, "doc-1", document.StatusProcessing).Return(nil)
	docs.On("MarkFailed", mock.Anything, "doc-1", mock.MatchedBy(func(msg string) bool {
		return len(msg) > 0 && len(msg) <= 500
	})).Return(nil)

	err := svc.Process(context.Background(), "doc-1")

	assert.Error(t, err)
	docs.AssertExpectations(t)
	chunks.AssertNotCalled(t, "BulkInsert", mock.Anything, mock.Anything)
}

func TestProcess_EmptyDocumentMarksFailed(t *testing.T) {
	docs := new(MockDocumentRepo)
	path := writeTempFile(t, "scanned images only")
	svc := NewService(docs, new(MockChunkRepo), new(MockEmbedder), fixedExtract([]string{"", "  "}), 800, 100)

	docs.On("Get", mock.Anything, "doc-1").Return(&document.Document{ID: "doc-1", FilePath: path}, nil)
	docs.On("UpdateStatus", mock.Anything, "doc-1", document.StatusProcessing).Return(nil)
	docs.On("MarkFailed", mock.Anything, "doc-1", "document contains no extractable text").Return(nil)

	err := svc.Process(context.Background(), "doc-1")

	assert.Error(t, err)
	docs.AssertExpectations(t)
}

func TestProcess_EmbeddingFailureMarksFailed(t *testing.T) {
	docs := new(MockDocumentRepo)
	chunks := new(MockChunkRepo)
	embedder := new(MockEmbedder)
	path := writeTempFile(t, "content")
	svc := NewService(docs, chunks, embedder, fixedExtract([]string{"Some text."}), 800, 100)

	docs.On("Get", mock.Anything, "doc-1").Return(&document.Document{ID: "doc-1", FilePath: path}, nil)
	docs.On("UpdateStatus", mock.Anything, "doc-1", document.StatusProcessing).Return(nil)
	docs.On("MarkFailed", mock.Anything, "doc-1", mock.Anything).Return(nil)
	embedder.On("EmbedBatch", mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded"))

	err := svc.Process(context.Background(), "doc-1")

	assert.Error(t, err)
	// Existing chunks must survive when embedding never succeeded.
	chunks.AssertNotCalled(t, "DeleteByDocument", mock.Anything, mock.Anything)
	chunks.AssertNotCalled(t, "BulkInsert", mock.Anything, mock.Anything)
}

func TestProcess_MissingFileMarksFailed(t *testing.T) {
	docs := new(MockDocumentRepo)
	svc := NewService(docs, new(MockChunkRepo), new(MockEmbedder), fixedExtract(nil), 800, 100)

	docs.On("Get", mock.Anything, "doc-1").Return(&document.Document{ID: "doc-1", FilePath: "/nonexistent/doc.pdf"}, nil)
	docs.On("UpdateStatus", mock.Anything, "doc-1", document.StatusProcessing).Return(nil)
	docs.On("MarkFailed", mock.Anything, "doc-1", mock.Anything).Return(nil)

	err := svc.Process(context.Background(), "doc-1")

	assert.Error(t, err)
	docs.AssertExpectations(t)
}

func TestProcess_CompletionWriteFailureIsRetryable(t *testing.T) {
	docs := new(MockDocumentRepo)
	chunks := new(MockChunkRepo)
	embedder := new(MockEmbedder)
	path := writeTempFile(t, "content")
	svc := NewService(docs, chunks, embedder, fixedExtract([]string{"Some text."}), 800, 100)

	docs.On("Get", mock.Anything, "doc-1").Return(&document.Document{ID: "doc-1", FilePath: path}, nil)
	docs.On("UpdateStatus", mock.Anything, "doc-1", document.StatusProcessing).Return(nil)
	chunks.On("DeleteByDocument", mock.Anything, "doc-1").Return(nil)
	embedder.On("EmbedBatch", mock.Anything, mock.Anything).Return([][]float32{{0.1}}, nil)
	chunks.On("BulkInsert", mock.Anything, mock.Anything).Return(nil)
	docs.On("UpdateStatus", mock.Anything, "doc-1", document.StatusCompleted).Return(errors.New("connection reset"))

	err := svc.Process(context.Background(), "doc-1")

	// The document must not end up failed; a redelivery settles the status.
	assert.ErrorIs(t, err, ErrRetry)
	docs.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_ProcessingWriteFailureIsRetryable(t *testing.T) {
	docs := new(MockDocumentRepo)
	chunks := new(MockChunkRepo)
	svc := NewService(docs, chunks, new(MockEmbedder), fixedExtract(nil), 800, 100)

	docs.On("Get", mock.Anything, "doc-1").Return(&document.Document{ID: "doc-1"}, nil)
	docs.On("UpdateStatus", mock.Anything, "doc-1", document.StatusProcessing).Return(errors.New("db down"))

	err := svc.Process(context.Background(), "doc-1")

	assert.ErrorIs(t, err, ErrRetry)
	chunks.AssertNotCalled(t, "BulkInsert", mock.Anything, mock.Anything)
}

func TestProcess_TransientLookupFailureIsRetryable(t *testing.T) {
	docs := new(MockDocumentRepo)
	svc := NewService(docs, new(MockChunkRepo), new(MockEmbedder), fixedExtract(nil), 800, 100)

	docs.On("Get", mock.Anything, "doc-1").Return(nil, errors.New("db down"))

	err := svc.Process(context.Background(), "doc-1")

	assert.ErrorIs(t, err, ErrRetry)
	docs.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_ConcurrentSameDocument(t *testing.T) {
	docs := new(MockDocumentRepo)
	chunks := new(MockChunkRepo)
	embedder := new(MockEmbedder)
	path := writeTempFile(t, "content")

	release := make(chan struct{})
	extract := func(r io.Reader) ([]string, error) {
		<-release
		return []string{"Some text."}, nil
	}
	svc := NewService(docs, chunks, embedder, extract, 800, 100)

	docs.On("Get", mock.Anything, "doc-1").Return(&document.Document{ID: "doc-1", FilePath: path}, nil)
	docs.On("UpdateStatus", mock.Anything, "doc-1", mock.Anything).Return(nil)
	chunks.On("DeleteByDocument", mock.Anything, "doc-1").Return(nil)
	embedder.On("EmbedBatch", mock.Anything, mock.Anything).Return([][]float32{{0.1}}, nil)
	chunks.On("BulkInsert", mock.Anything, mock.Anything).Return(nil)

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		firstErr = svc.Process(context.Background(), "doc-1")
	}()

	// Wait until the first call holds the inflight slot.
	for !func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		_, busy := svc.inflight["doc-1"]
		return busy
	}() {
	}

	err := svc.Process(context.Background(), "doc-1")
	assert.ErrorIs(t, err, ErrInProgress)

	close(release)
	wg.Wait()
	assert.NoError(t, firstErr)
}
