// Package embedder turns query text into vectors for the similarity search.
//
// Three providers are available:
//
//   - hash: deterministic unit vectors derived from SHA-256, for offline runs and tests
//   - jina: the Jina AI embeddings API (or any server speaking its format)
//   - openai: any OpenAI-compatible embeddings endpoint, via langchaingo
//
// Every provider returns unit-length vectors. HTTP providers retry 5xx and 429
// responses with exponential backoff; other client errors fail immediately.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:  "openai",
//	    Host:      "http://localhost:8080/v1",
//	    Model:     "multilingual-e5-large",
//	    Dimension: 1024,
//	    CacheSize: 100,
//	}, embedder.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "query: Hochwasser an der Ahr",
//	})
//
// The query prefix expected by the model is added by the caller.
//
// # Caching
//
// With CacheSize > 0 the embedder is wrapped by WithCache, an LRU keyed by
// SHA-256 of model and text. Cached vectors are returned as copies.
package embedder
