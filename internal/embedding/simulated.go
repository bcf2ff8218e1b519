package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
)

// SimulatedEngine produces deterministic pseudo-random unit vectors seeded
// by the text content. The same text always maps to the same vector, so
// cache behavior and similarity ordering are reproducible in tests and in
// --simulate runs without touching the network.
type SimulatedEngine struct {
	dims int
}

// NewSimulatedEngine creates a simulated engine with the given dimension.
func NewSimulatedEngine(dims int) *SimulatedEngine {
	if dims <= 0 {
		dims = 768
	}
	return &SimulatedEngine{dims: dims}
}

// Embed generates a deterministic unit vector for the text.
func (e *SimulatedEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)

	// Expand the text hash into as many bytes as the vector needs by
	// chaining sha256 over (seed, counter).
	seed := sha256.Sum256([]byte(text))
	var norm float64
	for i := 0; i < e.dims; i++ {
		block := i / 8
		slot := i % 8
		if slot == 0 && block > 0 {
			var next [36]byte
			copy(next[:32], seed[:])
			binary.LittleEndian.PutUint32(next[32:], uint32(block))
			seed = sha256.Sum256(next[:])
		}
		bits := binary.LittleEndian.Uint32(seed[slot*4:])
		// Map to [-1, 1).
		v := float64(int32(bits)) / float64(math.MaxInt32)
		vec[i] = float32(v)
		norm += v * v
	}

	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// EmbedBatch generates deterministic vectors for each text.
func (e *SimulatedEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}

// Dimensions returns the configured dimensionality.
func (e *SimulatedEngine) Dimensions() int {
	return e.dims
}

// Name returns the engine name.
func (e *SimulatedEngine) Name() string {
	return fmt.Sprintf("simulated:%d", e.dims)
}
