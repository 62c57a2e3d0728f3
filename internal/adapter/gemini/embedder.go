package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/generative-ai-go/genai"
)

// Embed returns the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in provider-sized batches and returns one vector
// per input text, in input order. Transient failures are retried with
// exponential backoff; a response whose vector count does not match the
// request is a provider-contract violation and fails without retry, since
// pairing chunks with the wrong vectors would corrupt retrieval silently.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := c.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		all = append(all, vectors...)
	}
	return all, nil
}

func (c *Client) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var vectors [][]float32

	op := func() error {
		em := c.genai.EmbeddingModel(c.embedModel)
		b := em.NewBatch()
		for _, t := range batch {
			b.AddContent(genai.Text(t))
		}

		res, err := em.BatchEmbedContents(ctx, b)
		if err != nil {
			slog.WarnContext(ctx, "embedding call failed", "error", err, "batch_size", len(batch))
			return err
		}
		if len(res.Embeddings) != len(batch) {
			return backoff.Permanent(fmt.Errorf("expected %d embeddings, got %d", len(batch), len(res.Embeddings)))
		}

		vectors = vectors[:0]
		for i, e := range res.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return backoff.Permanent(fmt.Errorf("empty embedding at index %d", i))
			}
			vectors = append(vectors, e.Values)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 10 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, embedMaxRetries), ctx)); err != nil {
		return nil, &ProviderError{Op: "embed", Err: err}
	}
	return vectors, nil
}
