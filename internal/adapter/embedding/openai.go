package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"sentry/internal/domain"
	"sentry/internal/metrics"
)

// OpenAIEmbedder talks to any server exposing the OpenAI /embeddings endpoint
// (OpenAI, Ollama, vLLM, text-embeddings-inference).
type OpenAIEmbedder struct {
	provider  string
	apiKey    string
	model     string
	baseURL   string
	batchSize int
	client    *http.Client

	mu        sync.Mutex
	dimension int
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Error *apiError       `json:"error,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func NewOpenAIEmbedder(apiKeyEnv, model string, timeout time.Duration) (*OpenAIEmbedder, error) {
	if apiKeyEnv == "" {
		apiKeyEnv = "OPENAI_API_KEY"
	}
	e, err := NewOpenAICompatibleEmbedder(apiKeyEnv, model, "https://api.openai.com/v1", timeout)
	if err != nil {
		return nil, err
	}
	e.provider = "openai"
	return e, nil
}

func NewOllamaEmbedder(model, baseURL string, timeout time.Duration) (*OpenAIEmbedder, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &OpenAIEmbedder{
		provider:  "ollama",
		apiKey:    "ollama",
		model:     model,
		baseURL:   baseURL,
		dimension: knownDimension(model),
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// NewOpenAICompatibleEmbedder creates an embedder for baseURL. An empty apiKeyEnv
// sends no Authorization header, which local inference servers accept.
func NewOpenAICompatibleEmbedder(apiKeyEnv, model, baseURL string, timeout time.Duration) (*OpenAIEmbedder, error) {
	var apiKey string
	if apiKeyEnv != "" {
		apiKey = os.Getenv(apiKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
		}
	}
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required for model %s", model)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &OpenAIEmbedder{
		provider:  "custom",
		apiKey:    apiKey,
		model:     model,
		baseURL:   baseURL,
		dimension: knownDimension(model),
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetBatchSize caps the number of texts per request. Zero uses the default of 100.
func (e *OpenAIEmbedder) SetBatchSize(n int) {
	e.batchSize = n
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	maxBatch := e.batchSize
	if maxBatch <= 0 {
		maxBatch = 100
	}
	allEmbeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += maxBatch {
		end := i + maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		embeddings, err := e.embedBatch(ctx, batch)
		if err != nil {
			metrics.EmbeddingRequests.WithLabelValues(e.provider, "error").Inc()
			return nil, err
		}
		metrics.EmbeddingRequests.WithLabelValues(e.provider, "ok").Inc()
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(embeddingRequest{Input: texts, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("encode embeddings request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s embeddings: %w", e.provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s embeddings: read body: %w", e.provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s embeddings: status %d: %s", e.provider, resp.StatusCode, preview(raw))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%s embeddings: decode %q: %w", e.provider, preview(raw), err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("%s embeddings: %s", e.provider, parsed.Error.Message)
	}

	return e.collect(parsed.Data, len(texts))
}

// collect orders vectors by their response index and pins the dimension on
// first use. Servers may return data out of order.
func (e *OpenAIEmbedder) collect(data []embeddingData, n int) ([][]float32, error) {
	vectors := make([][]float32, n)
	for _, d := range data {
		if d.Index < 0 || d.Index >= n {
			return nil, fmt.Errorf("embedding index %d out of range for %d inputs", d.Index, n)
		}
		vectors[d.Index] = d.Embedding
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i, vec := range vectors {
		if vec == nil {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
		if e.dimension == 0 {
			e.dimension = len(vec)
		}
		if len(vec) != e.dimension {
			return nil, fmt.Errorf("%w: model %s returned %d, expected %d", domain.ErrDimensionMismatch, e.model, len(vec), e.dimension)
		}
	}
	return vectors, nil
}

const maxResponseBytes = 64 << 20

func preview(body []byte) string {
	if len(body) > 200 {
		return string(body[:200])
	}
	return string(body)
}

func (e *OpenAIEmbedder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// MockEmbedder encodes characters by position. Only useful in tests.
type MockEmbedder struct {
	dimension int
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{dimension: dimension}
}

func (e *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = make([]float32, e.dimension)

		for j, r := range texts[i] {
			if j < e.dimension {
				embeddings[i][j] = float32(r) / 1000.0
			}
		}
	}
	return embeddings, nil
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}
