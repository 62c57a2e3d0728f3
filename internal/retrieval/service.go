package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"docuchat/features/document"
	"docuchat/internal/vector"
)

// Outcome classifies what happened to a question. Every outcome is carried
// inside a normal-shaped Answer; this service never lets an error escape its
// boundary, so the conversational caller always has something to show.
type Outcome string

const (
	OutcomeAnswered          Outcome = "answered"
	OutcomeNotFound          Outcome = "not_found"
	OutcomeNotReady          Outcome = "not_ready"
	OutcomeNoMatches         Outcome = "no_matches"
	OutcomeSearchUnavailable Outcome = "search_unavailable"
	OutcomeGenerationFailed  Outcome = "generation_failed"
)

const (
	contextSeparator   = "\n\n---\n\n"
	sourcePreviewRunes = 200
)

const (
	msgNotFound          = "I couldn't find that document. It may have been deleted."
	msgNotReady          = "This document is still being processed. Please try again once processing has finished."
	msgSearchUnavailable = "Search is temporarily unavailable. Please try again in a moment."
	msgNoMatches         = "I couldn't find any relevant information in the document to answer your question."
	msgGenerationFailed  = "I'm having trouble generating a response right now. Please try again later."
)

type Answer struct {
	Outcome Outcome  `json:"outcome"`
	Message string   `json:"message"`
	Sources []string `json:"sources"`
}

type DocumentStore interface {
	Get(ctx context.Context, id string) (*document.Document, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Searcher interface {
	Search(ctx context.Context, documentID string, query []float32) ([]vector.Result, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Service struct {
	docs            DocumentStore
	embedder        Embedder
	searcher        Searcher
	generator       Generator
	logger          *QueryLogger
	embedTimeout    time.Duration
	generateTimeout time.Duration
}

func NewService(docs DocumentStore, embedder Embedder, searcher Searcher, generator Generator, logger *QueryLogger) *Service {
	return &Service{
		docs:            docs,
		embedder:        embedder,
		searcher:        searcher,
		generator:       generator,
		logger:          logger,
		embedTimeout:    30 * time.Second,
		generateTimeout: 60 * time.Second,
	}
}

// WithTimeouts overrides the per-call provider timeouts.
func (s *Service) WithTimeouts(embed, generate time.Duration) *Service {
	s.embedTimeout = embed
	s.generateTimeout = generate
	return s
}

// Answer runs the full retrieval pipeline for one question: verify the
// document is ready, embed the question, rank the document's chunks, and
// condition a generation call on the top matches.
func (s *Service) Answer(ctx context.Context, documentID, question string) *Answer {
	start := time.Now()
	ans := s.answer(ctx, documentID, question)
	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			DocumentID: documentID,
			Query:      question,
			Outcome:    string(ans.Outcome),
			NumSources: len(ans.Sources),
			Duration:   time.Since(start),
		})
	}
	return ans
}

func (s *Service) answer(ctx context.Context, documentID, question string) *Answer {
	// 1. Fast-fail before any provider call.
	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return &Answer{Outcome: OutcomeNotFound, Message: msgNotFound, Sources: []string{}}
		}
		slog.ErrorContext(ctx, "document lookup failed", "error", err, "document_id", documentID)
		return &Answer{Outcome: OutcomeSearchUnavailable, Message: msgSearchUnavailable, Sources: []string{}}
	}
	if doc.Status != document.StatusCompleted {
		return &Answer{Outcome: OutcomeNotReady, Message: msgNotReady, Sources: []string{}}
	}

	// 2. Embed the question.
	embedCtx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()
	queryVec, err := s.embedder.Embed(embedCtx, question)
	if err != nil {
		slog.ErrorContext(ctx, "question embedding failed", "error", err, "document_id", documentID)
		return &Answer{Outcome: OutcomeSearchUnavailable, Message: msgSearchUnavailable, Sources: []string{}}
	}

	// 3. Similarity search over the document's chunks.
	results, err := s.searcher.Search(ctx, documentID, queryVec)
	if err != nil {
		slog.ErrorContext(ctx, "chunk search failed", "error", err, "document_id", documentID)
		return &Answer{Outcome: OutcomeSearchUnavailable, Message: msgSearchUnavailable, Sources: []string{}}
	}
	if len(results) == 0 {
		return &Answer{Outcome: OutcomeNoMatches, Message: msgNoMatches, Sources: []string{}}
	}

	// 4. Assemble the bounded context block and generate.
	contents := make([]string, len(results))
	for i, r := range results {
		contents[i] = r.Chunk.Content
	}
	prompt := buildPrompt(strings.Join(contents, contextSeparator), question)

	genCtx, cancel := context.WithTimeout(ctx, s.generateTimeout)
	defer cancel()
	answerText, err := s.generator.Generate(genCtx, prompt)
	if err != nil {
		slog.ErrorContext(ctx, "answer generation failed", "error", err, "document_id", documentID)
		return &Answer{Outcome: OutcomeGenerationFailed, Message: msgGenerationFailed, Sources: []string{}}
	}

	// 5. Sources keep the rank order produced by search.
	sources := make([]string, len(results))
	for i, r := range results {
		sources[i] = preview(r.Chunk.Content, sourcePreviewRunes)
	}

	return &Answer{Outcome: OutcomeAnswered, Message: answerText, Sources: sources}
}

func buildPrompt(contextBlock, question string) string {
	return fmt.Sprintf(`Context from the document:
%s

Question: %s

Answer the question based only on the context above. If the context doesn't contain the answer, say "I don't have enough information to answer that."`, contextBlock, question)
}

func preview(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes]) + "…"
}
