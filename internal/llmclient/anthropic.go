package llmclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultModel = anthropic.ModelClaude3_7SonnetLatest

// anthropicClient wraps the SDK's own client value, matching the way the
// rest of the ecosystem embeds it (a value field, not a pointer).
type anthropicClient struct {
	sdk       anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

func newAnthropicClient(apiKey string, httpClient *http.Client) *anthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &anthropicClient{
		sdk:       anthropic.NewClient(opts...),
		model:     defaultModel,
		maxTokens: 1024,
	}
}

func (c *anthropicClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llmclient: anthropic call failed: %w", err)
	}

	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			return tb.Text, nil
		}
	}
	return "", fmt.Errorf("llmclient: anthropic response had no text block")
}
