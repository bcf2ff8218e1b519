package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mhanii/corolaria/internal/embedcache"
	"github.com/mhanii/corolaria/internal/embedding"
	"github.com/mhanii/corolaria/internal/graph"
	"github.com/mhanii/corolaria/internal/linker"
	"github.com/mhanii/corolaria/internal/logging"
	"github.com/mhanii/corolaria/internal/orchestrator"
	"github.com/mhanii/corolaria/internal/pipeline"
	"github.com/mhanii/corolaria/internal/ratelimit"
	"github.com/mhanii/corolaria/internal/retriever"
)

// services holds the wired singletons for one invocation. Anything a mode
// does not need stays nil.
type services struct {
	store    *graph.Store
	cache    *embedcache.Cache
	engine   embedding.Engine
	provider *embedding.Provider
	runner   *pipeline.Runner
	linker   *linker.BulkLinker
	orch     *orchestrator.Orchestrator
}

type buildOpts struct {
	// dryRun skips the store entirely.
	dryRun bool
	// storeOnly wires just the graph store (rollback, stats).
	storeOnly bool
	// queryTask switches the engine to retrieval-query embeddings (search).
	queryTask bool
}

// buildServices validates fatal preconditions before any document is
// attempted: a missing store or a missing API key fails here, not halfway
// through a batch.
func buildServices(opts buildOpts) (*services, error) {
	timer := logging.StartTimer(logging.CategoryBoot, "buildServices")
	defer timer.Stop()

	svc := &services{}

	if !opts.dryRun {
		store, err := graph.Open(cfg.Graph.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("graph store unavailable at %s: %w", cfg.Graph.DatabasePath, err)
		}
		svc.store = store
		if err := store.CreateVectorIndex(
			cfg.Graph.VectorIndexName, "articulo", "embedding",
			cfg.Graph.VectorDimensions, cfg.Graph.VectorMetric); err != nil {
			svc.Close()
			return nil, fmt.Errorf("failed to create vector index: %w", err)
		}
	}
	if opts.storeOnly {
		return svc, nil
	}

	engineCfg := embedding.EngineConfig{
		Provider:   cfg.Embedding.Provider,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		TaskType:   cfg.Embedding.TaskType,
		Dimensions: cfg.Embedding.Dimensions,
	}
	if opts.queryTask {
		engineCfg.TaskType = "RETRIEVAL_QUERY"
	}
	// Zero-vector runs never call the API, so they do not need a key.
	if skipEmbeddings && engineCfg.Provider == "genai" && engineCfg.APIKey == "" {
		engineCfg.Provider = "simulated"
	}
	if engineCfg.Provider == "genai" && engineCfg.APIKey == "" {
		svc.Close()
		return nil, fmt.Errorf("GEMINI_API_KEY is required unless --simulate or --skip-embeddings is set")
	}

	engine, err := embedding.NewEngine(engineCfg)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.engine = engine

	if cfg.Cache.Enabled {
		cache, err := embedcache.Open(cfg.Cache.Path, cfg.Embedding.Dimensions)
		if err != nil {
			logger.Warn("Embedding cache unavailable, continuing without it", zap.Error(err))
		} else {
			svc.cache = cache
		}
	}

	var limiter *ratelimit.SlidingWindow
	if engineCfg.Provider == "genai" {
		limiter = ratelimit.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	}

	svc.provider = embedding.NewProvider(engine, svc.cache, limiter, embedding.ProviderConfig{
		TaskType:         engineCfg.TaskType,
		BatchSize:        cfg.Embedding.BatchSize,
		MaxRetries:       cfg.Embedding.MaxRetries,
		ScatterChunkSize: cfg.Embedding.ScatterChunkSize,
		AcquireTimeout:   cfg.RateLimit.AcquireTimeout,
	})

	var persister *graph.Persister
	if svc.store != nil {
		persister = graph.NewPersister(svc.store, cfg.Graph.NonPersistedTypes, cfg.Graph.VectorIndexName)
		svc.linker = linker.New(svc.store, cfg.Linker.ChunkSize, cfg.Linker.Workers)
	}

	svc.runner = pipeline.NewRunner(pipeline.RunnerConfig{
		Retriever:      newRetriever(),
		Provider:       svc.provider,
		Persister:      persister,
		Store:          svc.store,
		SkipEmbeddings: skipEmbeddings,
		AutoRollback:   true,
	})

	svc.orch = orchestrator.New(svc.runner, svc.linker, svc.store, orchestrator.Config{
		CPUWorkers:     cfg.Workers.CPU,
		NetworkWorkers: cfg.Workers.Network,
		DiskWorkers:    cfg.Workers.Disk,
		QueueCapacity:  cfg.Workers.QueueCapacity,
		GracePeriod:    cfg.Workers.GracePeriod,
		SkipEmbeddings: skipEmbeddings,
	})
	return svc, nil
}

// newRetriever routes by id shape, or reads from the offline archive when
// one is configured.
func newRetriever() retriever.Retriever {
	if archiveDir != "" {
		return retriever.NewArchiveRetriever(archiveDir)
	}
	return retriever.NewRouter(retriever.NewBOEClient(""), retriever.NewEURLexClient(""))
}

// Close releases everything in reverse wiring order.
func (s *services) Close() {
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			logging.Get(logging.CategoryBoot).Warn("Closing embedding cache: %v", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			logging.Get(logging.CategoryBoot).Warn("Closing graph store: %v", err)
		}
	}
}
