package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"docuchat/internal/ingest"
	"docuchat/internal/middleware"
)

// Processor runs the ingestion pipeline for one document.
type Processor interface {
	Process(ctx context.Context, documentID string) error
}

type ProcessConsumer struct {
	processor Processor
	timeout   time.Duration
}

func NewProcessConsumer(p Processor, timeout time.Duration) *ProcessConsumer {
	return &ProcessConsumer{processor: p, timeout: timeout}
}

func (h *ProcessConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task ProcessTask
	if err := json.Unmarshal(m.Body, &task); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if task.DocumentID == "" {
		slog.Error("poison pill: task without document id")
		return nil
	}

	ctx := context.Background()
	if task.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, task.CorrelationID)
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	err := h.processor.Process(ctx, task.DocumentID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ingest.ErrInProgress):
		// Another worker holds this document. Requeue and try later.
		slog.WarnContext(ctx, "document busy, requeueing", "document_id", task.DocumentID)
		return err
	case errors.Is(err, ingest.ErrRetry):
		// Transient bookkeeping failure; the status row does not reflect
		// reality yet. Redeliver so the pipeline can settle it.
		slog.WarnContext(ctx, "transient processing failure, requeueing", "error", err, "document_id", task.DocumentID)
		return err
	default:
		// The pipeline already marked the document failed. Requeueing
		// would burn provider quota on the same broken input.
		slog.ErrorContext(ctx, "processing failed, not requeueing", "error", err, "document_id", task.DocumentID)
		return nil
	}
}
