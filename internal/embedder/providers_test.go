package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() Option {
	return WithRetry(RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2})
}

func embeddingsServer(t *testing.T, status *int32, calls *int32, vector []float32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/embeddings", r.URL.Path)

		if code := atomic.LoadInt32(status); code != http.StatusOK && n == 1 {
			w.WriteHeader(int(code))
			_, _ = w.Write([]byte(`{"error":"try again"}`))
			return
		}

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		resp := map[string]interface{}{
			"object": "list",
			"model":  "test-model",
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 0, "embedding": vector},
			},
			"usage": map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestJinaProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("successful embedding", func(t *testing.T) {
		var status, calls int32 = http.StatusOK, 0
		server := embeddingsServer(t, &status, &calls, []float32{3, 4, 0, 0})
		defer server.Close()

		p, err := NewJinaProvider(Config{APIKey: "test-key", Host: server.URL + "/", Dimension: 4}, fastRetry())
		require.NoError(t, err)
		defer p.Close()

		emb, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "query: Hitze"})
		require.NoError(t, err)
		assert.Equal(t, []float32{0.6, 0.8, 0, 0}, emb.Vector)
		assert.Equal(t, ProviderJina, emb.Provider)
		assert.Equal(t, DefaultJinaModel, emb.Model)
		assert.Equal(t, int32(1), calls)
	})

	t.Run("retries server errors", func(t *testing.T) {
		var status, calls int32 = http.StatusServiceUnavailable, 0
		server := embeddingsServer(t, &status, &calls, []float32{1, 0})
		defer server.Close()

		p, err := NewJinaProvider(Config{APIKey: "k", Host: server.URL, Dimension: 2}, fastRetry())
		require.NoError(t, err)

		_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls)
	})

	t.Run("client errors are final", func(t *testing.T) {
		var status, calls int32 = http.StatusUnauthorized, 0
		server := embeddingsServer(t, &status, &calls, []float32{1, 0})
		defer server.Close()

		p, err := NewJinaProvider(Config{APIKey: "k", Host: server.URL, Dimension: 2}, fastRetry())
		require.NoError(t, err)

		_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(1), calls)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		var status, calls int32 = http.StatusOK, 0
		server := embeddingsServer(t, &status, &calls, []float32{1, 0, 0})
		defer server.Close()

		p, err := NewJinaProvider(Config{APIKey: "k", Host: server.URL, Dimension: 2}, fastRetry())
		require.NoError(t, err)

		_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("metadata and validation", func(t *testing.T) {
		_, err := NewJinaProvider(Config{})
		assert.ErrorIs(t, err, ErrNoProviderEnabled)

		p, err := NewJinaProvider(Config{APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, DefaultDimension, p.Dimension())
		assert.Equal(t, ProviderJina, p.Provider())
		assert.Equal(t, DefaultJinaBaseURL, p.baseURL)

		_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{})
		assert.ErrorIs(t, err, ErrEmptyText)
	})
}

func TestOpenAIProvider(t *testing.T) {
	var status, calls int32 = http.StatusOK, 0
	server := embeddingsServer(t, &status, &calls, []float32{0, 2})
	defer server.Close()

	p, err := NewOpenAIProvider(Config{Host: server.URL, Model: "e5", Dimension: 2}, fastRetry())
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, ProviderOpenAI, p.Provider())
	assert.Equal(t, "e5", p.Model())
	assert.Equal(t, 2, p.Dimension())

	emb, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "query: Waldbrand"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, emb.Vector)
	assert.Equal(t, "e5", emb.Model)

	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		provider string
		wantErr  error
	}{
		{"default is hash", Config{}, ProviderHash, nil},
		{"hash cached", Config{Provider: "HASH", Dimension: 8, CacheSize: 4}, ProviderHash, nil},
		{"jina", Config{Provider: "jina", APIKey: "k"}, ProviderJina, nil},
		{"jina without key", Config{Provider: "jina"}, "", ErrNoProviderEnabled},
		{"openai", Config{Provider: "openai", Host: "http://localhost:1"}, ProviderOpenAI, nil},
		{"unknown", Config{Provider: "onnx"}, "", ErrUnsupportedModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.provider, e.Provider())
			assert.NoError(t, e.Close())
		})
	}

	e, err := New(Config{Dimension: 8, CacheSize: 4})
	require.NoError(t, err)
	_, cached := e.(*cachedEmbedder)
	assert.True(t, cached)
	assert.Equal(t, 8, e.Dimension())
}

func TestRetryWithBackoff(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}

	t.Run("gives up after max retries", func(t *testing.T) {
		attempts := 0
		_, err := retryWithBackoff(context.Background(), cfg, func() (int, error) {
			attempts++
			return 0, assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, 3, attempts)
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		attempts := 0
		_, err := retryWithBackoff(ctx, cfg, func() (int, error) {
			attempts++
			cancel()
			return 0, assert.AnError
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	})

	t.Run("returns first success", func(t *testing.T) {
		attempts := 0
		v, err := retryWithBackoff(context.Background(), cfg, func() (int, error) {
			attempts++
			if attempts < 2 {
				return 0, &statusError{code: http.StatusTooManyRequests}
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})
}
