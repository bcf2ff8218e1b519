package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.Workers.CPU)
	assert.Equal(t, 20, cfg.Workers.Network)
	assert.Equal(t, 2, cfg.Workers.Disk)
	assert.Equal(t, 5000, cfg.Linker.ChunkSize)
	assert.Equal(t, 6, cfg.Linker.Workers)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
	assert.Equal(t, "article_embeddings", cfg.Graph.VectorIndexName)
	assert.Equal(t, "cosine", cfg.Graph.VectorMetric)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("GRAPH_DB_PATH overrides default", func(t *testing.T) {
		t.Setenv("GRAPH_DB_PATH", "/tmp/other.db")
		cfg := Default()
		cfg.applyEnvOverrides()
		assert.Equal(t, "/tmp/other.db", cfg.Graph.DatabasePath)
	})

	t.Run("GEMINI_API_KEY sets embedding key", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "key-123")
		cfg := Default()
		cfg.applyEnvOverrides()
		assert.Equal(t, "key-123", cfg.Embedding.APIKey)
	})

	t.Run("EMBED_DIMENSIONS keeps index in sync", func(t *testing.T) {
		t.Setenv("EMBED_DIMENSIONS", "1536")
		cfg := Default()
		cfg.applyEnvOverrides()
		assert.Equal(t, 1536, cfg.Embedding.Dimensions)
		assert.Equal(t, 1536, cfg.Graph.VectorDimensions)
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
workers:
  cpu: 3
  network: 8
  disk: 1
  queue_capacity: 4
linker:
  chunk_size: 100
  workers: 2
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers.CPU)
	assert.Equal(t, 8, cfg.Workers.Network)
	assert.Equal(t, 100, cfg.Linker.ChunkSize)
	// Untouched sections keep their defaults.
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
}

func TestValidateRejectsMismatchedDimensions(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Dimensions = 512
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Workers, cfg.Workers)
}
