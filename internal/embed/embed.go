// Package embed provides text-to-vector embedding for recall.
//
// Remote providers speak the OpenAI-compatible /v1/embeddings format:
// - openrouter: https://openrouter.ai/api/v1/embeddings
// - openai: https://api.openai.com/v1/embeddings
// - ollama: http://localhost:11434/v1/embeddings
// - custom: user-specified endpoint
//
// The "local" provider runs a sentence-transformer ONNX model in-process,
// see local.go.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// maxBatch caps the number of inputs per embeddings request.
const maxBatch = 100

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Config holds embedding provider configuration.
type Config struct {
	Provider    string // "openrouter", "openai", "ollama", "custom", "local"
	Model       string
	Endpoint    string // full API URL, or model directory for "local"
	APIKey      string
	MaxRetries  int // default: 3
	TimeoutSecs int // per-request timeout (default: 60)

	dimensions int // auto-detected on first call
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// HTTPError represents an HTTP error with retry context.
type HTTPError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Client implements Embedder over an OpenAI-compatible HTTP API.
type Client struct {
	config Config
	http   *http.Client
}

// New creates an Embedder from the given config, selecting the backend by
// provider. The "local" provider loads an ONNX model; the rest are HTTP.
func New(cfg Config) (Embedder, error) {
	if strings.ToLower(cfg.Provider) == "local" {
		return newLocalEmbedder(cfg)
	}
	return NewClient(cfg)
}

// ParseEmbedFlag parses "--embed provider/model" format. Model names may
// themselves contain slashes ("openrouter/openai/text-embedding-3-small").
func ParseEmbedFlag(flag string) (Config, error) {
	if flag == "" {
		return Config{}, fmt.Errorf("empty embedding flag")
	}

	slashIdx := strings.Index(flag, "/")
	if slashIdx == -1 {
		return Config{}, fmt.Errorf("invalid --embed format: expected 'provider/model', got %q", flag)
	}

	provider := flag[:slashIdx]
	model := flag[slashIdx+1:]
	if provider == "" || model == "" {
		return Config{}, fmt.Errorf("invalid --embed flag %q: empty provider or model", flag)
	}

	cfg := Config{
		Provider:    provider,
		Model:       model,
		MaxRetries:  3,
		TimeoutSecs: 60,
	}

	switch provider {
	case "openrouter":
		cfg.Endpoint = "https://openrouter.ai/api/v1/embeddings"
		cfg.APIKey = os.Getenv("OPENROUTER_API_KEY")
	case "openai":
		cfg.Endpoint = "https://api.openai.com/v1/embeddings"
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	case "ollama":
		cfg.Endpoint = "http://localhost:11434/v1/embeddings"
	case "custom":
		cfg.Endpoint = os.Getenv("RECALL_EMBED_ENDPOINT")
		cfg.APIKey = os.Getenv("RECALL_EMBED_API_KEY")
	case "local":
		cfg.Endpoint = os.Getenv("RECALL_MODEL_DIR")
	default:
		return Config{}, fmt.Errorf("unknown provider %q. Supported: openrouter, openai, ollama, custom, local", provider)
	}

	if endpoint := os.Getenv("RECALL_EMBED_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if apiKey := os.Getenv("RECALL_EMBED_API_KEY"); apiKey != "" {
		cfg.APIKey = apiKey
	}

	return cfg, nil
}

// Validate checks the configuration for an HTTP-backed client.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.Provider != "ollama" && c.Provider != "test" && c.APIKey == "" {
		return fmt.Errorf("API key is required for provider %q (set via environment variable)", c.Provider)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.TimeoutSecs <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// NewClient creates an HTTP embedding client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.TimeoutSecs == 0 {
		cfg.TimeoutSecs = 60
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		config: cfg,
		http: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSecs) * time.Second,
		},
	}, nil
}

// Embed generates an embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(embeddings))
	}
	return embeddings[0], nil
}

// EmbedBatch generates embedding vectors for all texts, order-preserving.
// Inputs are sent in batches of at most maxBatch; empty texts are filtered
// before transport and come back as nil vectors in their original positions.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	nonEmpty := make([]string, 0, len(texts))
	indexMap := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) != "" {
			nonEmpty = append(nonEmpty, text)
			indexMap = append(indexMap, i)
		}
	}

	result := make([][]float32, len(texts))
	if len(nonEmpty) == 0 {
		return result, nil
	}

	for start := 0; start < len(nonEmpty); start += maxBatch {
		end := start + maxBatch
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}

		embeddings, err := c.embedWithRetry(ctx, nonEmpty[start:end])
		if err != nil {
			return nil, err
		}
		for i, emb := range embeddings {
			result[indexMap[start+i]] = emb
			if c.config.dimensions == 0 && len(emb) > 0 {
				c.config.dimensions = len(emb)
			}
		}
	}

	return result, nil
}

// Dimensions returns the dimensionality of embeddings from this client.
// Returns 0 if no embeddings have been generated yet.
func (c *Client) Dimensions() int {
	return c.config.dimensions
}

// embedWithRetry runs one batch with exponential backoff: 1s, 2s, 4s.
// 429 responses honor Retry-After when present.
func (c *Client) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		embeddings, err := c.attemptEmbedBatch(ctx, texts)
		if err == nil {
			return embeddings, nil
		}
		lastErr = err

		if attempt == c.config.MaxRetries {
			break
		}

		backoff := time.Duration(1<<attempt) * time.Second
		if httpErr, ok := err.(*HTTPError); ok && httpErr.StatusCode == 429 && httpErr.RetryAfter > 0 {
			backoff = httpErr.RetryAfter
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("embedding failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *Client) attemptEmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	requestBody, err := json.Marshal(embedRequest{Model: c.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.Endpoint, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	if c.config.Provider == "openrouter" {
		httpReq.Header.Set("HTTP-Referer", "https://github.com/hurttlocker/recall")
		httpReq.Header.Set("X-Title", "Recall")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != 200 {
		var retryAfter time.Duration
		if header := resp.Header.Get("Retry-After"); header != "" {
			if seconds, err := strconv.Atoi(header); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			RetryAfter: retryAfter,
		}
	}

	var embedResp embedResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("parsing response JSON: %w", err)
	}

	if len(embedResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embedResp.Data))
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range embedResp.Data {
		if data.Index < 0 || data.Index >= len(embeddings) {
			return nil, fmt.Errorf("invalid embedding index: %d", data.Index)
		}
		embeddings[data.Index] = data.Embedding
	}

	return embeddings, nil
}
