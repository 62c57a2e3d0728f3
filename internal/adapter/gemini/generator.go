package gemini

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

// Generate produces text for a prompt. There are no retries here: the
// caller's boundary decides how a generation failure surfaces to the user.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	model := c.genai.GenerativeModel(c.genModel)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", &ProviderError{Op: "generate", Err: err}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", &ProviderError{Op: "generate", Err: errors.New("no candidates returned")}
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return "", &ProviderError{Op: "generate", Err: errors.New("candidate contained no text")}
	}
	return sb.String(), nil
}
