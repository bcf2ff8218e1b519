// Package embedding generates vector embeddings for legal article text.
// Engines are the raw backends (Google GenAI or a deterministic simulator);
// Provider layers the persistent cache, the rate-limit gate, and retry on
// top of an engine.
package embedding

import (
	"context"
	"fmt"

	"github.com/mhanii/corolaria/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of produced embeddings.
	Dimensions() int

	// Name returns the engine name.
	Name() string
}

// EngineConfig selects and parameterizes an embedding backend.
type EngineConfig struct {
	// Provider: "genai" or "simulated".
	Provider string

	APIKey   string
	Model    string // default: "gemini-embedding-001"
	TaskType string // e.g. "RETRIEVAL_DOCUMENT", "RETRIEVAL_QUERY"

	Dimensions int
}

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg EngineConfig) (Engine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	logging.Embedding("Creating embedding engine with provider=%s", cfg.Provider)

	var engine Engine
	var err error

	switch cfg.Provider {
	case "genai":
		engine, err = NewGenAIEngine(cfg.APIKey, cfg.Model, cfg.TaskType)
	case "simulated":
		engine = NewSimulatedEngine(cfg.Dimensions)
	default:
		err = fmt.Errorf("unsupported embedding provider: %s (use 'genai' or 'simulated')", cfg.Provider)
	}

	if err != nil {
		logging.Get(logging.CategoryEmbedding).Error("Failed to create embedding engine: %v", err)
		return nil, err
	}

	logging.Embedding("Embedding engine ready: name=%s, dimensions=%d", engine.Name(), engine.Dimensions())
	return engine, nil
}
