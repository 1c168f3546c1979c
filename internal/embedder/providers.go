package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Provider configuration
const (
	ProviderHash   = "hash"
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"

	// Default models
	DefaultHashModel   = "sha256-expand"
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "multilingual-e5-large"

	DefaultJinaBaseURL = "https://api.jina.ai/v1"

	// DefaultDimension matches the vector index
	DefaultDimension = 1024

	DefaultCacheSize = 1000

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// HashProvider derives deterministic unit vectors from text. It needs no
// model and is used offline and in tests; distances carry no meaning.
type HashProvider struct {
	dimension int
}

// NewHashProvider creates a hash embedder of the given dimension
func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashProvider{dimension: dimension}
}

func (h *HashProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Expand SHA-256(counter || text) blocks into values in [-1, 1)
	vector := make([]float32, h.dimension)
	var counter [4]byte
	for i := 0; i < h.dimension; i += 8 {
		binary.LittleEndian.PutUint32(counter[:], uint32(i))
		block := sha256.Sum256(append(counter[:], req.Text...))
		for j := 0; j < 8 && i+j < h.dimension; j++ {
			u := binary.LittleEndian.Uint32(block[j*4:])
			vector[i+j] = float32(u)/float32(1<<31) - 1
		}
	}

	return &Embedding{
		Vector:    NormalizeVector(vector),
		Dimension: h.dimension,
		Provider:  ProviderHash,
		Model:     DefaultHashModel,
	}, nil
}

func (h *HashProvider) Dimension() int {
	return h.dimension
}

func (h *HashProvider) Provider() string {
	return ProviderHash
}

func (h *HashProvider) Model() string {
	return DefaultHashModel
}

func (h *HashProvider) Close() error {
	return nil
}

// JinaProvider implements Embedder using the Jina AI embeddings API
type JinaProvider struct {
	apiKey     string
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
	retry      RetryConfig
	logger     *slog.Logger
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(cfg Config, opts ...Option) (*JinaProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: jina api key not set", ErrNoProviderEnabled)
	}
	o := applyOptions(opts)

	p := &JinaProvider{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.Host, "/"),
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		httpClient: o.httpClient,
		retry:      o.retry,
		logger:     o.logger.With("provider", ProviderJina),
	}
	if p.baseURL == "" {
		p.baseURL = DefaultJinaBaseURL
	}
	if p.model == "" {
		p.model = DefaultJinaModel
	}
	if p.dimension <= 0 {
		p.dimension = DefaultDimension
	}
	return p, nil
}

func (j *JinaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	vector, err := retryWithBackoff(ctx, j.retry, func() ([]float32, error) {
		return j.callAPI(ctx, req.Text)
	})
	if err != nil {
		j.logger.Error("embedding request failed", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}
	if len(vector) != j.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), j.dimension)
	}

	return &Embedding{
		Vector:    NormalizeVector(vector),
		Dimension: len(vector),
		Provider:  ProviderJina,
		Model:     j.model,
	}, nil
}

func (j *JinaProvider) callAPI(ctx context.Context, text string) ([]float32, error) {
	reqBody := map[string]interface{}{
		"input":      []string{text},
		"model":      j.model,
		"task":       "retrieval.query",
		"dimensions": j.dimension,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+j.apiKey)

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode, body: string(bodyBytes)}
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return apiResp.Data[0].Embedding, nil
}

func (j *JinaProvider) Dimension() int {
	return j.dimension
}

func (j *JinaProvider) Provider() string {
	return ProviderJina
}

func (j *JinaProvider) Model() string {
	return j.model
}

func (j *JinaProvider) Close() error {
	j.httpClient.CloseIdleConnections()
	return nil
}

// defaultHTTPClient is shared by HTTP providers unless overridden
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
