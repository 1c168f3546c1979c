package embedder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIProvider embeds through any OpenAI-compatible embeddings endpoint,
// such as a local server hosting the multilingual query model.
type OpenAIProvider struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
	retry     RetryConfig
	logger    *slog.Logger
}

// NewOpenAIProvider creates an OpenAI-compatible embedder
func NewOpenAIProvider(cfg Config, opts ...Option) (*OpenAIProvider, error) {
	o := applyOptions(opts)

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	// Local OpenAI-compatible services accept any token
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}

	clientOpts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(model),
		openai.WithHTTPClient(o.httpClient),
	}
	if cfg.Host != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(cfg.Host))
	}

	client, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoProviderEnabled, err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoProviderEnabled, err)
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = DefaultDimension
	}

	return &OpenAIProvider{
		embedder:  embedder,
		model:     model,
		dimension: dimension,
		retry:     o.retry,
		logger:    o.logger.With("provider", ProviderOpenAI),
	}, nil
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	o.logger.Debug("generating embedding", "length", len(req.Text))
	vector, err := retryWithBackoff(ctx, o.retry, func() ([]float32, error) {
		return o.embedder.EmbedQuery(ctx, req.Text)
	})
	if err != nil {
		o.logger.Error("failed to generate embedding", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}
	if len(vector) != o.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), o.dimension)
	}

	return &Embedding{
		Vector:    NormalizeVector(vector),
		Dimension: len(vector),
		Provider:  ProviderOpenAI,
		Model:     o.model,
	}, nil
}

func (o *OpenAIProvider) Dimension() int {
	return o.dimension
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	return nil
}
