// Package pipeline runs the ordered single-document ingestion steps and
// owns the per-document ingestion context that commits or rolls back the
// document's writes.
package pipeline

import (
	"context"
	"fmt"

	"github.com/mhanii/corolaria/internal/embedding"
	"github.com/mhanii/corolaria/internal/graph"
	"github.com/mhanii/corolaria/internal/logging"
	"github.com/mhanii/corolaria/internal/norma"
	"github.com/mhanii/corolaria/internal/parser"
	"github.com/mhanii/corolaria/internal/retriever"
)

// Observable step names, in execution order.
const (
	StepRetriever = "data_retriever"
	StepProcessor = "data_processor"
	StepEmbedding = "embedding_generator"
	StepGraph     = "graph_construction"
)

// StepResult is one step's outcome in the document result.
type StepResult struct {
	StepName        string  `json:"step_name"`
	Status          string  `json:"status"`
	DurationSeconds float64 `json:"duration_seconds"`
	ErrorMessage    string  `json:"error_message,omitempty"`
}

// DocumentResult is the stable JSON shape for one ingested document.
type DocumentResult struct {
	LawID                string       `json:"law_id"`
	Status               string       `json:"status"`
	DurationSeconds      float64      `json:"duration_seconds"`
	StepResults          []StepResult `json:"step_results"`
	NodesCreated         int          `json:"nodes_created"`
	RelationshipsCreated int          `json:"relationships_created"`
	WasRolledBack        bool         `json:"was_rolled_back"`
}

// Runner executes the four ingestion steps in order for one document.
// persister may be nil (dry run): the graph step is skipped and nothing
// touches the store.
type Runner struct {
	retriever      retriever.Retriever
	provider       *embedding.Provider
	persister      *graph.Persister
	store          *graph.Store
	skipEmbeddings bool
	autoRollback   bool
}

// RunnerConfig wires the runner's collaborators.
type RunnerConfig struct {
	Retriever      retriever.Retriever
	Provider       *embedding.Provider
	Persister      *graph.Persister
	Store          *graph.Store
	SkipEmbeddings bool
	AutoRollback   bool
}

// NewRunner builds a runner from its collaborators.
func NewRunner(cfg RunnerConfig) *Runner {
	return &Runner{
		retriever:      cfg.Retriever,
		provider:       cfg.Provider,
		persister:      cfg.Persister,
		store:          cfg.Store,
		skipEmbeddings: cfg.SkipEmbeddings,
		autoRollback:   cfg.AutoRollback,
	}
}

// Run ingests one document end to end and returns its result. The context
// auto-rolls back on failure when configured; Run never panics across a
// step boundary.
func (r *Runner) Run(ctx context.Context, docID string) DocumentResult {
	ictx := NewIngestionContext(docID, r.store, r.autoRollback)
	r.RunWithContext(ctx, ictx)
	ictx.Release()
	return ictx.Result()
}

// RunWithContext executes the steps against a caller-owned ingestion
// context. The orchestrator uses this form to split the steps across its
// pools; callers are responsible for Release.
func (r *Runner) RunWithContext(ctx context.Context, ictx *IngestionContext) {
	raw, ok := r.Retrieve(ctx, ictx)
	if !ok {
		return
	}
	doc, ok := r.Process(ictx, raw)
	if !ok {
		return
	}
	if !r.Embed(ctx, ictx, doc) {
		return
	}
	r.Persist(ictx, doc)
}

// Retrieve runs the data_retriever step.
func (r *Runner) Retrieve(ctx context.Context, ictx *IngestionContext) (*retriever.RawDocument, bool) {
	docID := ictx.DocID()
	ictx.MarkStepStarted(StepRetriever)
	timer := logging.StartTimer(logging.CategoryPipeline, StepRetriever+" "+docID)

	raw, err := r.retriever.Fetch(ctx, docID)
	timer.Stop()
	if err != nil {
		ictx.MarkFailed(StepRetriever, err)
		return nil, false
	}
	ictx.RecordStep(StepRetriever, 0, 0)
	return raw, true
}

// Process runs the data_processor step: parser plus change detector.
func (r *Runner) Process(ictx *IngestionContext, raw *retriever.RawDocument) (*norma.Normativa, bool) {
	docID := ictx.DocID()
	ictx.MarkStepStarted(StepProcessor)
	timer := logging.StartTimer(logging.CategoryPipeline, StepProcessor+" "+docID)

	doc, changes, err := parser.ParseDocument(raw)
	timer.Stop()
	if err != nil {
		ictx.MarkFailed(StepProcessor, err)
		return nil, false
	}
	if len(changes) > 0 {
		logging.Changes("%s: %d change events across versions", docID, len(changes))
	}
	ictx.RecordStep(StepProcessor, 0, 0)
	return doc, true
}

// Embed runs the embedding_generator step.
func (r *Runner) Embed(ctx context.Context, ictx *IngestionContext, doc *norma.Normativa) bool {
	docID := ictx.DocID()
	ictx.MarkStepStarted(StepEmbedding)
	timer := logging.StartTimer(logging.CategoryPipeline, StepEmbedding+" "+docID)

	n, err := r.provider.EmbedTree(ctx, doc.Tree, r.skipEmbeddings)
	timer.Stop()
	if err != nil {
		ictx.MarkFailed(StepEmbedding, err)
		return false
	}
	logging.PipelineDebug("%s: embedded %d articles", docID, n)
	ictx.RecordStep(StepEmbedding, 0, 0)
	return true
}

// Persist runs the graph_construction step. With no persister (dry run)
// the step is skipped and the document still commits.
func (r *Runner) Persist(ictx *IngestionContext, doc *norma.Normativa) bool {
	docID := ictx.DocID()
	if r.persister == nil {
		logging.Pipeline("%s: dry run, skipping graph construction", docID)
		ictx.Commit()
		return true
	}

	ictx.MarkStepStarted(StepGraph)
	timer := logging.StartTimer(logging.CategoryPipeline, StepGraph+" "+docID)

	nodes, edges, err := r.persister.Persist(doc)
	timer.Stop()
	if err != nil {
		ictx.MarkFailed(StepGraph, fmt.Errorf("graph construction for %s: %w", docID, err))
		return false
	}
	ictx.RecordStep(StepGraph, nodes, edges)
	ictx.Commit()
	return true
}
