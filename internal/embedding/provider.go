package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mhanii/corolaria/internal/embedcache"
	"github.com/mhanii/corolaria/internal/logging"
	"github.com/mhanii/corolaria/internal/norma"
	"github.com/mhanii/corolaria/internal/ratelimit"
)

// ProviderConfig parameterizes the cached, rate-limited provider.
type ProviderConfig struct {
	TaskType   string
	BatchSize  int
	MaxRetries int
	// Scatter-gather chunk size for very large documents.
	ScatterChunkSize int
	// Timeout for one rate-limit acquisition.
	AcquireTimeout time.Duration
}

// Provider wraps an Engine with the persistent cache, the sliding-window
// rate limiter, and exponential-backoff retry on transient API failures.
// Results always preserve input order. Safe for concurrent use.
type Provider struct {
	engine  Engine
	cache   *embedcache.Cache       // nil disables caching
	limiter *ratelimit.SlidingWindow // nil disables rate limiting
	cfg     ProviderConfig
}

// NewProvider assembles a provider. cache and limiter may be nil.
func NewProvider(engine Engine, cache *embedcache.Cache, limiter *ratelimit.SlidingWindow, cfg ProviderConfig) *Provider {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.ScatterChunkSize <= 0 {
		cfg.ScatterChunkSize = 200
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 5 * time.Minute
	}
	return &Provider{engine: engine, cache: cache, limiter: limiter, cfg: cfg}
}

// Dimensions returns the engine's dimensionality.
func (p *Provider) Dimensions() int {
	return p.engine.Dimensions()
}

func (p *Provider) cacheKey(text string) embedcache.Key {
	return embedcache.Key{
		Provider: p.engine.Name(),
		Model:    p.engine.Name(),
		Dims:     p.engine.Dimensions(),
		TaskType: p.cfg.TaskType,
		Text:     text,
	}
}

// Embed returns the embedding for one text, going through the cache.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per input text, in input order. Cached
// texts never hit the API; misses are batched, rate limited, retried on
// transient failures, and written back to the cache.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	timer := logging.StartTimer(logging.CategoryEmbedding, "Provider.EmbedBatch")
	defer timer.StopWithThreshold(500 * time.Millisecond)

	out := make([][]float32, len(texts))

	// Cache probe.
	var missIdx []int
	if p.cache != nil {
		for i, text := range texts {
			if vec, ok := p.cache.Get(p.cacheKey(text)); ok {
				out[i] = vec
			} else {
				missIdx = append(missIdx, i)
			}
		}
		logging.EmbeddingDebug("Cache probe: %d hits, %d misses of %d texts",
			len(texts)-len(missIdx), len(missIdx), len(texts))
	} else {
		missIdx = make([]int, len(texts))
		for i := range texts {
			missIdx[i] = i
		}
	}

	// Batched API calls for the misses.
	for start := 0; start < len(missIdx); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(missIdx) {
			end = len(missIdx)
		}
		chunk := missIdx[start:end]

		batch := make([]string, len(chunk))
		for j, idx := range chunk {
			batch[j] = texts[idx]
		}

		// One window slot per text, not per API call.
		if p.limiter != nil {
			if err := p.limiter.Acquire(ctx, len(chunk), p.cfg.AcquireTimeout); err != nil {
				return nil, fmt.Errorf("embedding rate limit: %w", err)
			}
		}

		vecs, err := p.embedWithRetry(ctx, batch)
		if err != nil {
			return nil, err
		}

		for j, idx := range chunk {
			out[idx] = vecs[j]
			if p.cache != nil {
				if err := p.cache.Put(p.cacheKey(texts[idx]), vecs[j]); err != nil {
					logging.Get(logging.CategoryEmbedding).Warn("Cache write-back failed: %v", err)
				}
			}
		}
	}

	return out, nil
}

// embedWithRetry calls the engine with exponential backoff on transient
// failures. Non-transient errors fail immediately.
func (p *Provider) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	backoff := time.Second
	var lastErr error

	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			logging.Get(logging.CategoryEmbedding).Warn("Retrying embed batch (attempt %d/%d) after %v: %v",
				attempt+1, p.cfg.MaxRetries, backoff, lastErr)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
		}

		vecs, err := p.engine.EmbedBatch(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		if !isTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("embed batch failed after %d attempts: %w", p.cfg.MaxRetries, lastErr)
}

// isTransient reports whether an API error is worth retrying: rate limit
// responses, server errors, and timeouts.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "500", "502", "503", "504",
		"rate limit", "resource exhausted", "unavailable",
		"timeout", "deadline exceeded", "connection reset",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// embedKey builds the text actually embedded for an article: its structural
// path gives the model context the bare text lacks.
func embedKey(tree *norma.Tree, idx int) string {
	return tree.Path(idx) + "\n\n" + tree.FullText(idx)
}

// EmbedTree computes embeddings for every article in the tree and assigns
// them onto the article nodes. Large documents are scatter-gathered in
// chunks so one slow chunk does not serialize the rest. When skip is set,
// articles get zero vectors and the API is never called.
func (p *Provider) EmbedTree(ctx context.Context, tree *norma.Tree, skip bool) (int, error) {
	articles := tree.ArticleIndexes()
	if len(articles) == 0 {
		return 0, nil
	}

	if skip {
		dims := p.engine.Dimensions()
		for _, idx := range articles {
			tree.Nodes[idx].Article.Embedding = make([]float32, dims)
		}
		logging.Embedding("Skipped embeddings for %d articles in %s", len(articles), tree.DocID)
		return len(articles), nil
	}

	timer := logging.StartTimer(logging.CategoryEmbedding, "Provider.EmbedTree")
	defer timer.Stop()

	chunk := p.cfg.ScatterChunkSize
	g, gctx := errgroup.WithContext(ctx)

	for start := 0; start < len(articles); start += chunk {
		end := start + chunk
		if end > len(articles) {
			end = len(articles)
		}
		part := articles[start:end]

		g.Go(func() error {
			texts := make([]string, len(part))
			for j, idx := range part {
				texts[j] = embedKey(tree, idx)
			}
			vecs, err := p.EmbedBatch(gctx, texts)
			if err != nil {
				return err
			}
			for j, idx := range part {
				tree.Nodes[idx].Article.Embedding = vecs[j]
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	logging.Embedding("Embedded %d articles in %s", len(articles), tree.DocID)
	return len(articles), nil
}
