package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ai-memoryd/memoryd/internal/store"
)

// HTTPEmbedder calls an external text-embedding HTTP endpoint (the model
// itself is a black box per SPEC_FULL.md §1; this is just the wire
// adapter). Grounded on the teacher's LM-Studio-style /embeddings client.
type HTTPEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewHTTPEmbedder builds an HTTP-backed Embedder pointed at baseURL
// (expected to expose an OpenAI-style POST /embeddings endpoint).
func NewHTTPEmbedder(baseURL, model string) *HTTPEmbedder {
	return &HTTPEmbedder{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed implements Embedder by calling the configured HTTP endpoint. The
// returned vector is normalized to unit length; callers that want the
// fallback on failure should wrap this in a FallbackEmbedder.
func (h *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = normalizeText(text)
	body, err := json.Marshal(embeddingRequest{Input: text, Model: h.model})
	if err != nil {
		return nil, fmt.Errorf("embed: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embed: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: calling embedding API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embed: API error %s: %s", resp.Status, string(respBody))
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("embed: decoding response: %w", err)
	}
	if len(decoded.Data) == 0 {
		return nil, fmt.Errorf("embed: empty embedding response")
	}
	return store.Normalize(decoded.Data[0].Embedding), nil
}
