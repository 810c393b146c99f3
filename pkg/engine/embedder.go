package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cogniguard/cogniguard/pkg/httputil"
)

// HTTPEmbedder implements EmbeddingProvider against any OpenAI-compatible
// /embeddings endpoint (OpenRouter, OpenAI, vLLM, Ollama's OpenAI shim).
type HTTPEmbedder struct {
	apiKey     string
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
	inflight   *httputil.Semaphore
	mu         sync.RWMutex

	// Rate limiting
	lastRequest time.Time
	minInterval time.Duration

	// Stats
	totalCalls   int64
	totalTokens  int64
	totalLatency time.Duration
}

// HTTPEmbedderConfig configures the HTTP embedder.
type HTTPEmbedderConfig struct {
	APIKey    string // API key (defaults to COGNIGUARD_EMBED_API_KEY env)
	BaseURL   string // API base URL (defaults to https://openrouter.ai/api/v1)
	Model     string // Model name (defaults to qwen/qwen3-embedding-4b)
	Dimension int    // Embedding dimension (defaults to 1024)
	Timeout   time.Duration
}

// NewHTTPEmbedder creates an embedder backed by a remote embeddings API.
func NewHTTPEmbedder(cfg HTTPEmbedderConfig) (*HTTPEmbedder, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("COGNIGUARD_EMBED_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding API key not configured (set COGNIGUARD_EMBED_API_KEY)")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "qwen/qwen3-embedding-4b"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 1024
	}
	if cfg.Dimension > 2048 {
		cfg.Dimension = 2048
	}

	e := &HTTPEmbedder{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		dimension:   cfg.Dimension,
		httpClient:  httputil.MediumClient(), // Shared client with connection pooling (30s timeout)
		inflight:    httputil.NewSemaphore(8),
		minInterval: 50 * time.Millisecond, // Rate limit: max 20 req/sec
	}

	log.Printf("[embedder] HTTP embedder initialized: model=%s, dim=%d", cfg.Model, cfg.Dimension)
	return e, nil
}

// embeddingRequest is the OpenAI-compatible embedding request format.
type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"` // For models that support matryoshka
}

// embeddingResponse is the OpenAI-compatible embedding response format.
type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed generates an embedding for a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 || embeddings[0] == nil {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	// Bound concurrent upstream calls
	if err := e.inflight.Acquire(ctx); err != nil {
		return nil, err
	}
	defer e.inflight.Release()

	// Rate limiting
	e.mu.Lock()
	elapsed := time.Since(e.lastRequest)
	if elapsed < e.minInterval {
		time.Sleep(e.minInterval - elapsed)
	}
	e.lastRequest = time.Now()
	e.mu.Unlock()

	start := time.Now()

	reqBody := embeddingRequest{
		Model:      e.model,
		Input:      texts,
		Dimensions: e.dimension,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/embeddings", bytes.NewBuffer(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	// Corpus-sized batches can exceed the standard timeout
	client := e.httpClient
	if len(texts) > 16 {
		client = httputil.SlowClient()
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer httputil.DrainAndClose(resp.Body)

	// Read response with bounded size to prevent OOM
	body, err := httputil.ReadResponseBody(resp.Body, httputil.MaxResponseSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding API error (status %d): %s", resp.StatusCode, string(body))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	result := make([][]float32, len(texts))
	for _, data := range embResp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			continue
		}
		embedding := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			embedding[i] = float32(v)
		}
		result[data.Index] = embedding
	}

	e.mu.Lock()
	e.totalCalls++
	e.totalTokens += int64(embResp.Usage.TotalTokens)
	e.totalLatency += time.Since(start)
	e.mu.Unlock()

	return result, nil
}

// Dimension returns the embedding dimension.
func (e *HTTPEmbedder) Dimension() int {
	return e.dimension
}

// Stats returns embedder statistics.
func (e *HTTPEmbedder) Stats() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	avgLatency := time.Duration(0)
	if e.totalCalls > 0 {
		avgLatency = e.totalLatency / time.Duration(e.totalCalls)
	}

	return map[string]any{
		"model":          e.model,
		"dimension":      e.dimension,
		"total_calls":    e.totalCalls,
		"total_tokens":   e.totalTokens,
		"avg_latency_ms": avgLatency.Milliseconds(),
	}
}

// =============================================================================
// NoOpEmbedder: For testing or when embeddings are disabled
// =============================================================================

// NoOpEmbedder is a placeholder that returns zero vectors.
// Used when no embedding source is configured.
type NoOpEmbedder struct {
	dimension int
}

// NewNoOpEmbedder creates a no-op embedder.
func NewNoOpEmbedder(dimension int) *NoOpEmbedder {
	if dimension <= 0 {
		dimension = 1024
	}
	return &NoOpEmbedder{dimension: dimension}
}

// Embed returns a zero vector.
func (e *NoOpEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, e.dimension), nil
}

// EmbedBatch returns zero vectors.
func (e *NoOpEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = make([]float32, e.dimension)
	}
	return result, nil
}

// Dimension returns the embedding dimension.
func (e *NoOpEmbedder) Dimension() int {
	return e.dimension
}

// =============================================================================
// Factory function for creating embedders
// =============================================================================

// EmbedderConfig holds configuration for creating an embedder.
type EmbedderConfig struct {
	Provider  string // "http", "local", "none"
	APIKey    string
	Model     string
	Dimension int
	BaseURL   string
}

// NewEmbedder creates an EmbeddingProvider based on configuration.
// "http" falls back to NoOp when no API key is available; "local" falls back
// to NoOp when no ONNX model can be loaded. Semantic matching degrades to
// disabled in both cases rather than failing startup.
func NewEmbedder(cfg EmbedderConfig) (EmbeddingProvider, error) {
	switch cfg.Provider {
	case "http", "":
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("COGNIGUARD_EMBED_API_KEY")
		}
		if cfg.APIKey != "" {
			return NewHTTPEmbedder(HTTPEmbedderConfig{
				APIKey:    cfg.APIKey,
				Model:     cfg.Model,
				Dimension: cfg.Dimension,
				BaseURL:   cfg.BaseURL,
			})
		}
		log.Printf("[embedder] No API key configured, using NoOp embedder (semantic matching disabled)")
		return NewNoOpEmbedder(cfg.Dimension), nil

	case "local":
		local := NewAutoDetectedLocalEmbedder()
		if local != nil {
			return local, nil
		}
		log.Printf("[embedder] No local ONNX model available, using NoOp embedder (semantic matching disabled)")
		return NewNoOpEmbedder(cfg.Dimension), nil

	case "none":
		return NewNoOpEmbedder(cfg.Dimension), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
