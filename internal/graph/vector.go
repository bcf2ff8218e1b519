package graph

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/mhanii/corolaria/internal/logging"
)

// quoteIdent quotes an identifier for embedding in DDL/DML text.
func quoteIdent(name string) string {
	return `"` + name + `"`
}

// SearchHit is one vector search result, ordered by descending similarity.
type SearchHit struct {
	NodeID     string
	Similarity float64
}

// encodeVector serializes a float32 vector as a little-endian blob.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector deserializes a little-endian blob into a float32 vector.
func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// cosineSimilarity computes cosine similarity between two vectors.
// Returns 0 for zero-magnitude vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, ma, mb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		ma += float64(a[i]) * float64(a[i])
		mb += float64(b[i]) * float64(b[i])
	}
	if ma == 0 || mb == 0 {
		return 0
	}
	return dot / (math.Sqrt(ma) * math.Sqrt(mb))
}

// detectVecExtension probes for sqlite-vec by creating a throwaway vec0
// virtual table.
func (s *Store) detectVecExtension() {
	if _, err := s.db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[4])"); err == nil {
		s.vectorExt = true
		_, _ = s.db.Exec("DROP TABLE IF EXISTS vec_probe")
	}
}

// CreateVectorIndex creates the ANN index over a label's embedding column.
// Idempotent. Without the sqlite-vec extension the index is a no-op marker
// and searches fall back to a linear scan.
func (s *Store) CreateVectorIndex(name, label, property string, dims int, metric string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dims <= 0 {
		return fmt.Errorf("%w: vector index %s requires positive dimensions", ErrConstraintViolation, name)
	}
	if metric != "" && metric != "cosine" {
		return fmt.Errorf("%w: unsupported vector metric %q", ErrConstraintViolation, metric)
	}
	s.indexes[name] = dims
	if !s.vectorExt {
		logging.StoreDebug("Vector index %s registered without ANN backing (linear scan)", name)
		return nil
	}
	ddl := fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS %q USING vec0(node_id TEXT, embedding float[%d] distance_metric=cosine)",
		name, dims)
	if _, err := s.db.Exec(ddl); err != nil {
		return mapSQLiteError(err)
	}
	logging.Store("Vector index %s ready (label=%s property=%s dims=%d)", name, label, property, dims)
	return nil
}

// DropVectorIndex drops the ANN index. Idempotent.
func (s *Store) DropVectorIndex(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.indexes, name)
	if !s.vectorExt {
		return nil
	}
	if _, err := s.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %q", name)); err != nil {
		return mapSQLiteError(err)
	}
	return nil
}

// IndexEmbedding adds a node's vector to the ANN index, replacing any row
// the node already has so re-ingestion never duplicates it. Zero vectors
// are excluded so placeholder embeddings never pollute search results.
func (s *Store) IndexEmbedding(indexName, nodeID string, vec []float32) error {
	if isZeroVector(vec) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.vectorExt {
		return nil // linear scan reads nodes.embedding directly
	}
	if _, ok := s.indexes[indexName]; !ok {
		return fmt.Errorf("%w: unknown vector index %q", ErrConstraintViolation, indexName)
	}
	// vec0 virtual tables have no conflict targets, so upsert is
	// delete-then-insert.
	if _, err := s.db.Exec(
		fmt.Sprintf("DELETE FROM %q WHERE node_id = ?", indexName), nodeID); err != nil {
		return mapSQLiteError(err)
	}
	_, err := s.db.Exec(
		fmt.Sprintf("INSERT INTO %q (node_id, embedding) VALUES (?, ?)", indexName),
		nodeID, encodeVector(vec))
	return mapSQLiteError(err)
}

func isZeroVector(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

// VectorSearch returns the topK most similar article nodes to the query
// vector, ordered by descending cosine similarity.
func (s *Store) VectorSearch(vec []float32, topK int, indexName string) ([]SearchHit, error) {
	timer := logging.StartTimer(logging.CategoryStore, "VectorSearch")
	defer timer.Stop()

	if topK <= 0 {
		topK = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.vectorExt {
		if _, ok := s.indexes[indexName]; ok {
			return s.vectorSearchANN(vec, topK, indexName)
		}
	}
	return s.vectorSearchLinear(vec, topK)
}

func (s *Store) vectorSearchANN(vec []float32, topK int, indexName string) ([]SearchHit, error) {
	rows, err := s.db.Query(
		fmt.Sprintf("SELECT node_id, distance FROM %q WHERE embedding MATCH ? ORDER BY distance LIMIT ?", indexName),
		encodeVector(vec), topK)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			continue
		}
		// vec0 cosine distance = 1 - similarity.
		hits = append(hits, SearchHit{NodeID: id, Similarity: 1 - distance})
	}
	return hits, rows.Err()
}

// vectorSearchLinear is the brute-force fallback over nodes.embedding.
func (s *Store) vectorSearchLinear(vec []float32, topK int) ([]SearchHit, error) {
	rows, err := s.db.Query("SELECT id, embedding FROM nodes WHERE embedding IS NOT NULL")
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			continue
		}
		candidate := decodeVector(blob)
		if isZeroVector(candidate) {
			continue
		}
		hits = append(hits, SearchHit{NodeID: id, Similarity: cosineSimilarity(vec, candidate)})
	}
	if err := rows.Err(); err != nil {
		return nil, mapSQLiteError(err)
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}
