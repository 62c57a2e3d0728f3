package worker

// ProcessTask is the queue payload that asks a worker to ingest one document.
type ProcessTask struct {
	DocumentID    string `json:"document_id"`
	Reprocess     bool   `json:"reprocess"`
	CorrelationID string `json:"correlation_id,omitempty"`
}
