package vector

import (
	"context"
	"math"
	"sort"

	"docuchat/internal/chunk"
)

// Result is an ephemeral (chunk, similarity score) pair produced by a query.
type Result struct {
	Chunk chunk.Chunk
	Score float64
}

// Cosine returns the cosine similarity of two vectors in [-1, 1]. The second
// return value is false when the vectors differ in dimensionality or either
// has zero norm, in which case similarity is undefined.
func Cosine(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}

// Rank scores every chunk against the query vector and returns the topK
// results with score >= threshold, sorted descending by score. Ties are
// broken by ascending chunk sequence index so ordering is deterministic.
// Chunks without an embedding, with mismatched dimensionality, or with a
// zero-norm vector are skipped rather than treated as errors.
//
// This is a linear scan, O(len(chunks)) per query. That is a known scaling
// limit, acceptable for the low thousands of chunks a single document
// produces; an ANN index could replace it behind the same contract.
func Rank(chunks []chunk.Chunk, query []float32, topK int, threshold float64) []Result {
	var results []Result
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		score, ok := Cosine(query, c.Embedding)
		if !ok || score < threshold {
			continue
		}
		results = append(results, Result{Chunk: c, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.Index < results[j].Chunk.Index
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

type ChunkLister interface {
	ListByDocument(ctx context.Context, documentID string) ([]chunk.Chunk, error)
}

// Tuner supplies runtime overrides for topK and threshold.
type Tuner interface {
	Tuning(ctx context.Context) (topK int, threshold float64, err error)
}

// Searcher answers similarity queries for one document by loading its chunk
// set and ranking it in memory.
type Searcher struct {
	chunks    ChunkLister
	topK      int
	threshold float64
	tuner     Tuner
}

func NewSearcher(chunks ChunkLister, topK int, threshold float64) *Searcher {
	return &Searcher{chunks: chunks, topK: topK, threshold: threshold}
}

// WithTuner makes per-query topK and threshold come from the tuner. The
// constructor values stay as the fallback when the tuner fails.
func (s *Searcher) WithTuner(t Tuner) *Searcher {
	s.tuner = t
	return s
}

// Search returns the ranked matches for a query vector. An empty result is a
// valid outcome (no chunks, no embeddings, or nothing above the threshold),
// not an error.
func (s *Searcher) Search(ctx context.Context, documentID string, query []float32) ([]Result, error) {
	topK, threshold := s.topK, s.threshold
	if s.tuner != nil {
		if k, th, err := s.tuner.Tuning(ctx); err == nil {
			topK, threshold = k, th
		}
	}

	chunks, err := s.chunks.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return Rank(chunks, query, topK, threshold), nil
}
