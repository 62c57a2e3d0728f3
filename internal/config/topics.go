package config

const (
	// TopicDocumentProcess is the NSQ topic for document processing tasks
	// (extract, chunk, embed, store).
	TopicDocumentProcess = "document.process"

	// ChannelWorker is the NSQ channel the ingestion worker consumes on.
	ChannelWorker = "worker"
)
