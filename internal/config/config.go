// Package config holds the typed configuration for the ingestion engine.
// A single Config is assembled at startup from an optional YAML file,
// environment variables (overriding the file), and CLI flags (overriding
// both). There is no dynamic reconfiguration at runtime.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all engine configuration.
type Config struct {
	Workspace string `yaml:"workspace"`

	Graph     GraphConfig     `yaml:"graph"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Workers   WorkersConfig   `yaml:"workers"`
	Linker    LinkerConfig    `yaml:"linker"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// GraphConfig configures the property graph store.
type GraphConfig struct {
	DatabasePath string `yaml:"database_path"`
	// Structural node types skipped during persistence; their children get
	// PART_OF edges pointing straight to the document.
	NonPersistedTypes []string `yaml:"non_persisted_types"`
	VectorIndexName   string   `yaml:"vector_index_name"`
	VectorDimensions  int      `yaml:"vector_dimensions"`
	VectorMetric      string   `yaml:"vector_metric"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "genai" or "simulated"
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	TaskType   string `yaml:"task_type"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	MaxRetries int    `yaml:"max_retries"`
	// Scatter-gather chunk size for very large documents.
	ScatterChunkSize int `yaml:"scatter_chunk_size"`
}

// CacheConfig configures the persistent embedding cache.
type CacheConfig struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

// RateLimitConfig configures the sliding-window gate for the embedding API.
type RateLimitConfig struct {
	MaxRequests    int           `yaml:"max_requests"`
	Window         time.Duration `yaml:"window"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// WorkersConfig sizes the three orchestrator pools and their queues.
type WorkersConfig struct {
	CPU           int           `yaml:"cpu"`
	Network       int           `yaml:"network"`
	Disk          int           `yaml:"disk"`
	QueueCapacity int           `yaml:"queue_capacity"`
	GracePeriod   time.Duration `yaml:"grace_period"`
}

// LinkerConfig configures the bulk reference linker.
type LinkerConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	Workers   int `yaml:"workers"`
}

// LoggingConfig controls the categorized debug logs.
type LoggingConfig struct {
	Debug bool   `yaml:"debug"`
	Level string `yaml:"level"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Workspace: ".",
		Graph: GraphConfig{
			DatabasePath:      filepath.Join(".", "corolaria.db"),
			NonPersistedTypes: []string{"capitulo", "seccion", "subseccion"},
			VectorIndexName:   "article_embeddings",
			VectorDimensions:  768,
			VectorMetric:      "cosine",
		},
		Embedding: EmbeddingConfig{
			Provider:         "genai",
			Model:            "gemini-embedding-001",
			TaskType:         "RETRIEVAL_DOCUMENT",
			Dimensions:       768,
			BatchSize:        32,
			MaxRetries:       5,
			ScatterChunkSize: 200,
		},
		Cache: CacheConfig{
			Path:    filepath.Join(".", "embed_cache.db"),
			Enabled: true,
		},
		RateLimit: RateLimitConfig{
			MaxRequests:    150,
			Window:         time.Minute,
			AcquireTimeout: 5 * time.Minute,
		},
		Workers: WorkersConfig{
			CPU:           5,
			Network:       20,
			Disk:          2,
			QueueCapacity: 10,
			GracePeriod:   30 * time.Second,
		},
		Linker: LinkerConfig{
			ChunkSize: 5000,
			Workers:   6,
		},
		Logging: LoggingConfig{
			Debug: false,
			Level: "info",
		},
	}
}

// Load reads the config file (if present), applies environment overrides,
// and validates the result. An empty path means defaults + env only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps environment variables onto the config. Env wins
// over the file; CLI flags are applied later by the command layer and win
// over both.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("COROLARIA_WORKSPACE"); v != "" {
		c.Workspace = v
	}
	if v := os.Getenv("GRAPH_DB_PATH"); v != "" {
		c.Graph.DatabasePath = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("EMBED_CACHE_PATH"); v != "" {
		c.Cache.Path = v
	}
	if v := os.Getenv("EMBED_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embedding.Dimensions = n
			c.Graph.VectorDimensions = n
		}
	}
	if v := os.Getenv("COROLARIA_DEBUG"); v == "1" || v == "true" {
		c.Logging.Debug = true
	}
	if v := os.Getenv("COROLARIA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks invariants that would otherwise fail deep inside a worker.
func (c *Config) Validate() error {
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.Dimensions != c.Graph.VectorDimensions {
		return fmt.Errorf("embedding dimensions (%d) and vector index dimensions (%d) disagree",
			c.Embedding.Dimensions, c.Graph.VectorDimensions)
	}
	if c.Workers.CPU <= 0 || c.Workers.Network <= 0 || c.Workers.Disk <= 0 {
		return fmt.Errorf("worker pool sizes must be positive: cpu=%d network=%d disk=%d",
			c.Workers.CPU, c.Workers.Network, c.Workers.Disk)
	}
	if c.Workers.QueueCapacity <= 0 {
		return fmt.Errorf("queue capacity must be positive, got %d", c.Workers.QueueCapacity)
	}
	if c.RateLimit.MaxRequests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit requires positive max_requests and window")
	}
	if c.Linker.ChunkSize <= 0 || c.Linker.Workers <= 0 {
		return fmt.Errorf("linker requires positive chunk_size and workers")
	}
	return nil
}
