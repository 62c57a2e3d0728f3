package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"docuchat/features/chat"
	"docuchat/features/document"
	"docuchat/internal/adapter/gemini"
	"docuchat/internal/chunk"
	"docuchat/internal/config"
	"docuchat/internal/ingest"
	"docuchat/internal/middleware"
	"docuchat/internal/pdfextract"
	"docuchat/internal/retrieval"
	"docuchat/internal/settings"
	"docuchat/internal/vector"
	"docuchat/internal/worker"
)

// TaskPublisher abstracts the NSQ producer for wiring and tests.
type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type App struct {
	Handler         http.Handler
	DocumentService *document.Service
	ProcessConsumer *worker.ProcessConsumer

	port int
}

func New(
	cfg *config.Config,
	db *sql.DB,
	ai *gemini.Client,
	taskPub TaskPublisher,
) (*App, error) {

	// Feature: Settings
	settingsRepo := settings.NewPostgresRepo(db)
	settingsService := settings.NewService(settingsRepo)
	settingsHandler := settings.NewHandler(settingsService)

	// Feature: Document
	documentRepo := document.NewPostgresRepo(db)
	chunkRepo := chunk.NewPostgresRepo(db)
	documentService := document.NewService(documentRepo, taskPub, chunkRepo, cfg.UploadDir).
		WithFetcher(nil, cfg.MaxUploadSizeMB<<20)
	documentHandler := document.NewHandler(documentService, cfg.MaxUploadSizeMB)

	// Feature: Chat (retrieval pipeline)
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}

	searcher := vector.NewSearcher(chunkRepo, cfg.SearchTopK, cfg.SimilarityThreshold).
		WithTuner(settingsService)
	retrievalService := retrieval.NewService(documentRepo, ai, searcher, ai, queryLogger).
		WithTimeouts(
			time.Duration(cfg.EmbedTimeoutSeconds)*time.Second,
			time.Duration(cfg.GenerateTimeoutSeconds)*time.Second,
		)
	chatHandler := chat.NewHandler(retrievalService)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /documents", middleware.CorrelationID(enableCORS(documentHandler.Upload)))
	mux.Handle("POST /documents/url", middleware.CorrelationID(enableCORS(documentHandler.UploadFromURL)))
	mux.Handle("GET /documents", middleware.CorrelationID(enableCORS(documentHandler.List)))
	mux.Handle("GET /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Get)))
	mux.Handle("DELETE /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Delete)))
	mux.Handle("POST /documents/{id}/reprocess", middleware.CorrelationID(enableCORS(documentHandler.Reprocess)))

	mux.Handle("POST /documents/{id}/chat", middleware.CorrelationID(enableCORS(chatHandler.Ask)))

	mux.Handle("GET /settings", middleware.CorrelationID(enableCORS(settingsHandler.GetSettings)))
	mux.Handle("PUT /settings", middleware.CorrelationID(enableCORS(settingsHandler.UpdateSettings)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Worker (Process Consumer) Setup
	ingestService := ingest.NewService(documentRepo, chunkRepo, ai, pdfextract.Pages,
		cfg.ChunkMaxTokens, cfg.ChunkOverlapTokens)
	processConsumer := worker.NewProcessConsumer(ingestService,
		time.Duration(cfg.IngestTimeoutSeconds)*time.Second)

	return &App{
		Handler:         mux,
		DocumentService: documentService,
		ProcessConsumer: processConsumer,
		port:            cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
