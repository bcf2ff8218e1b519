package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhanii/corolaria/internal/embedcache"
	"github.com/mhanii/corolaria/internal/norma"
	"github.com/mhanii/corolaria/internal/ratelimit"
)

// countingEngine records every batch it serves and can fail the first N
// calls with a configurable error.
type countingEngine struct {
	mu        sync.Mutex
	calls     int
	texts     []string
	failFirst int
	failWith  error
	dims      int
}

func (e *countingEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *countingEngine) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.calls <= e.failFirst {
		return nil, e.failWith
	}
	e.texts = append(e.texts, texts...)
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, e.dims)
		vec[0] = float32(len(text))
		vecs[i] = vec
	}
	return vecs, nil
}

func (e *countingEngine) Dimensions() int { return e.dims }
func (e *countingEngine) Name() string    { return "counting" }

func newTestProvider(t *testing.T, engine Engine, withCache bool) *Provider {
	t.Helper()
	var cache *embedcache.Cache
	if withCache {
		var err error
		cache, err = embedcache.Open(":memory:", engine.Dimensions())
		require.NoError(t, err)
		t.Cleanup(func() { cache.Close() })
	}
	return NewProvider(engine, cache, nil, ProviderConfig{
		TaskType:  "RETRIEVAL_DOCUMENT",
		BatchSize: 2,
	})
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	engine := &countingEngine{dims: 3}
	p := newTestProvider(t, engine, false)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := p.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vecs[i][0], "vector %d out of order", i)
	}
}

func TestEmbedBatchUsesCache(t *testing.T) {
	engine := &countingEngine{dims: 3}
	p := newTestProvider(t, engine, true)

	_, err := p.EmbedBatch(context.Background(), []string{"uno", "dos"})
	require.NoError(t, err)
	firstCalls := engine.calls

	// Second run over the same texts must not touch the engine.
	_, err = p.EmbedBatch(context.Background(), []string{"uno", "dos"})
	require.NoError(t, err)
	assert.Equal(t, firstCalls, engine.calls)

	// A new text triggers exactly one more batch.
	_, err = p.EmbedBatch(context.Background(), []string{"uno", "tres"})
	require.NoError(t, err)
	assert.Equal(t, firstCalls+1, engine.calls)
	assert.Equal(t, []string{"uno", "dos", "tres"}, engine.texts)
}

func TestEmbedBatchRetriesTransient(t *testing.T) {
	engine := &countingEngine{dims: 3, failFirst: 2, failWith: errors.New("got 503 from upstream")}
	p := NewProvider(engine, nil, nil, ProviderConfig{MaxRetries: 3})

	vecs, err := p.EmbedBatch(context.Background(), []string{"texto"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, 3, engine.calls)
}

func TestEmbedBatchFailsFastOnPermanentError(t *testing.T) {
	engine := &countingEngine{dims: 3, failFirst: 10, failWith: errors.New("invalid api key")}
	p := NewProvider(engine, nil, nil, ProviderConfig{MaxRetries: 5})

	_, err := p.EmbedBatch(context.Background(), []string{"texto"})
	require.Error(t, err)
	assert.Equal(t, 1, engine.calls, "permanent errors must not be retried")
}

func TestEmbedBatchAcquiresOneSlotPerText(t *testing.T) {
	engine := &countingEngine{dims: 3}
	limiter := ratelimit.New(100, time.Minute)
	p := NewProvider(engine, nil, limiter, ProviderConfig{BatchSize: 2})

	// Five texts across three API batches still consume five slots.
	_, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Equal(t, 95, limiter.AvailableCapacity())
}

func buildArticleTree(t *testing.T, docID string, n int) *norma.Tree {
	t.Helper()
	tree := norma.NewTree(docID)
	for i := 1; i <= n; i++ {
		art := tree.NewNode(tree.Root(), norma.TypeArticulo, fmt.Sprintf("Artículo %d", i), 5)
		tree.AppendText(art, fmt.Sprintf("Contenido del artículo %d.", i))
	}
	return tree
}

func TestEmbedTreeAssignsVectors(t *testing.T) {
	engine := &countingEngine{dims: 3}
	p := newTestProvider(t, engine, false)

	tree := buildArticleTree(t, "BOE-A-2000-1", 5)
	n, err := p.EmbedTree(context.Background(), tree, false)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	for _, idx := range tree.ArticleIndexes() {
		vec := tree.Nodes[idx].Article.Embedding
		require.Len(t, vec, 3)
		assert.NotZero(t, vec[0])
	}
}

func TestEmbedTreeSkipProducesZeroVectors(t *testing.T) {
	engine := &countingEngine{dims: 4}
	p := newTestProvider(t, engine, false)

	tree := buildArticleTree(t, "BOE-A-2000-2", 3)
	n, err := p.EmbedTree(context.Background(), tree, true)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Zero(t, engine.calls, "skip mode must not call the engine")

	for _, idx := range tree.ArticleIndexes() {
		vec := tree.Nodes[idx].Article.Embedding
		require.Len(t, vec, 4)
		for _, v := range vec {
			assert.Zero(t, v)
		}
	}
}

func TestSimulatedEngineDeterministic(t *testing.T) {
	e := NewSimulatedEngine(16)

	a1, err := e.Embed(context.Background(), "artículo 51")
	require.NoError(t, err)
	a2, err := e.Embed(context.Background(), "artículo 51")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "artículo 52")
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)

	// Unit norm.
	var norm float64
	for _, v := range a1 {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-4)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(errors.New("429 too many requests")))
	assert.True(t, isTransient(errors.New("rpc error: code = Unavailable")))
	assert.True(t, isTransient(context.DeadlineExceeded))
	assert.False(t, isTransient(errors.New("invalid argument")))
}

func TestProviderConfigDefaults(t *testing.T) {
	p := NewProvider(&countingEngine{dims: 3}, nil, nil, ProviderConfig{})
	assert.Equal(t, 32, p.cfg.BatchSize)
	assert.Equal(t, 5, p.cfg.MaxRetries)
	assert.Equal(t, 200, p.cfg.ScatterChunkSize)
	assert.Equal(t, 5*time.Minute, p.cfg.AcquireTimeout)
}
