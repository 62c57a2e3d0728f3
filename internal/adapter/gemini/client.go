package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	defaultEmbedModel = "embedding-001"
	defaultGenModel   = "gemini-1.5-pro"
	defaultBatchSize  = 10

	// embedMaxRetries is the retry count after the first attempt.
	embedMaxRetries = 2
)

// ProviderError reports a failed, misconfigured, or malformed provider call.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("gemini %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Client wraps the Gemini API for both embedding and generation. It is safe
// for concurrent use.
type Client struct {
	genai      *genai.Client
	embedModel string
	genModel   string
	batchSize  int
}

func NewClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, &ProviderError{Op: "init", Err: errors.New("api key not configured")}
	}

	clientOpts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, &ProviderError{Op: "init", Err: err}
	}

	return &Client{
		genai:      client,
		embedModel: defaultEmbedModel,
		genModel:   defaultGenModel,
		batchSize:  defaultBatchSize,
	}, nil
}

// WithBatchSize overrides how many texts go into one embedding request.
// Values below 1 keep the default.
func (c *Client) WithBatchSize(n int) *Client {
	if n > 0 {
		c.batchSize = n
	}
	return c
}

func (c *Client) Close() error {
	return c.genai.Close()
}

