package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is an Embedder backed by an Ollama-compatible HTTP embedding
// provider. Results are cached by text when a cache is configured.
type Client struct {
	baseURL    string
	model      string
	dimensions int
	cache      *Cache
	httpClient *http.Client
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewClient creates an embedding client for the provider at baseURL.
// cacheSize <= 0 disables caching. The first Embed call may be slow while the
// provider loads the model, so the request timeout is generous.
func NewClient(baseURL, model string, dimensions, cacheSize int) *Client {
	return &Client{
		baseURL:    baseURL,
		model:      model,
		dimensions: dimensions,
		cache:      NewCache(cacheSize),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := c.cache.Get(text); ok {
		return cached, nil
	}

	body, err := json.Marshal(embedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding provider: status %d", resp.StatusCode)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embedding provider returned empty embeddings")
	}
	vec := result.Embeddings[0]
	if c.dimensions > 0 && len(vec) != c.dimensions {
		return nil, fmt.Errorf("embedding provider returned %d dimensions, expected %d", len(vec), c.dimensions)
	}

	c.cache.Set(text, vec)
	return vec, nil
}

// EmbedBatch calls Embed for each text.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the configured embedding dimension.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close is a no-op for the HTTP client.
func (c *Client) Close() error {
	return nil
}
