package storage

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/dshills/newsfuse/pkg/types"
)

// Search returns the k vector keys closest to queryVector by cosine distance,
// ascending by distance with ties ordered by key. Exact search scans the whole
// index in Go. Approximate search is computed by sqlite-vec when the build
// includes it and falls back to the exact scan otherwise.
func (s *Store) Search(ctx context.Context, queryVector []float32, k int, exact bool) ([]types.Match, error) {
	if k <= 0 {
		return []types.Match{}, nil
	}
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", types.ErrOracleFailure)
	}

	var (
		matches []types.Match
		err     error
	)
	if !exact && VectorExtensionAvailable && s.dialect.name == DriverSQLite {
		matches, err = s.searchVectorOptimized(ctx, queryVector, k)
	} else {
		matches, err = s.searchVectorFallback(ctx, queryVector, k)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrOracleFailure, err)
	}
	return matches, nil
}

// searchVectorOptimized computes distances in SQL with sqlite-vec
func (s *Store) searchVectorOptimized(ctx context.Context, queryVector []float32, k int) ([]types.Match, error) {
	query := `
		SELECT hashed_id, vec_distance_cosine(vector, ?) AS distance
		FROM Vector_Index
		WHERE length(vector) = ?
		ORDER BY distance, hashed_id
		LIMIT ?
	`
	rows, err := s.querier().QueryContext(ctx, query, serializeVector(queryVector), len(queryVector)*4, k)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	matches := make([]types.Match, 0, k)
	for rows.Next() {
		var (
			m        types.Match
			distance float64
		)
		if err := rows.Scan(&m.Key, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		m.Distance = float32(distance)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// searchVectorFallback scans every stored vector and keeps the k closest in a bounded heap
func (s *Store) searchVectorFallback(ctx context.Context, queryVector []float32, k int) ([]types.Match, error) {
	rows, err := s.querier().QueryContext(ctx, `SELECT hashed_id, vector FROM Vector_Index`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	h := make(matchHeap, 0, k)
	for rows.Next() {
		var (
			key  string
			blob []byte
		)
		if err := rows.Scan(&key, &blob); err != nil {
			return nil, err
		}

		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		m := types.Match{Key: key, Distance: float32(1 - cosineSimilarity(queryVector, vector))}
		if h.Len() < k {
			heap.Push(&h, m)
		} else if matchLess(m, h[0]) {
			h[0] = m
			heap.Fix(&h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	matches := []types.Match(h)
	sort.Slice(matches, func(i, j int) bool { return matchLess(matches[i], matches[j]) })
	return matches, nil
}

// UpsertVector stores the vector for a key, replacing any previous one
func (s *Store) UpsertVector(ctx context.Context, hashedID string, vector []float32) error {
	query := s.dialect.rebind(`
		INSERT INTO Vector_Index (hashed_id, vector) VALUES (?, ?)
		ON CONFLICT(hashed_id) DO UPDATE SET vector = excluded.vector
	`)
	if _, err := s.querier().ExecContext(ctx, query, hashedID, serializeVector(vector)); err != nil {
		return fmt.Errorf("failed to upsert vector %s: %w", hashedID, err)
	}
	return nil
}

// VectorCount returns the number of indexed vectors
func (s *Store) VectorCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.querier().QueryRowContext(ctx, `SELECT COUNT(*) FROM Vector_Index`).Scan(&n)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %w", types.ErrOracleFailure, err)
	}
	return n, nil
}

// matchLess orders by distance, then key
func matchLess(a, b types.Match) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Key < b.Key
}

// matchHeap is a max-heap on (distance, key); its root is the worst kept match
type matchHeap []types.Match

func (h matchHeap) Len() int            { return len(h) }
func (h matchHeap) Less(i, j int) bool  { return matchLess(h[j], h[i]) }
func (h matchHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *matchHeap) Push(x interface{}) { *h = append(*h, x.(types.Match)) }
func (h *matchHeap) Pop() interface{} {
	old := *h
	n := len(old)
	m := old[n-1]
	*h = old[:n-1]
	return m
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SerializeVector is an exported helper for fixtures and tests
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for fixtures and tests
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineDistance returns 1 - cosine similarity
func CosineDistance(a, b []float32) float64 {
	return 1 - cosineSimilarity(a, b)
}
