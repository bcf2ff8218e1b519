// Package orchestrator fans a batch of document ids through three bounded
// worker pools (parse, embed, persist) and finishes with one bulk
// reference-linking pass over the whole corpus.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mhanii/corolaria/internal/graph"
	"github.com/mhanii/corolaria/internal/linker"
	"github.com/mhanii/corolaria/internal/logging"
	"github.com/mhanii/corolaria/internal/norma"
	"github.com/mhanii/corolaria/internal/pipeline"
	"github.com/mhanii/corolaria/internal/retriever"
)

// Config sizes the pools and queues.
type Config struct {
	CPUWorkers     int
	NetworkWorkers int
	DiskWorkers    int
	QueueCapacity  int
	// How long in-flight documents may drain after cancellation.
	GracePeriod time.Duration
	// Surfaced in the batch result when zero-vector placeholders were used.
	SkipEmbeddings bool
}

// DefaultConfig mirrors the production pool sizing: parsing is CPU bound,
// embedding waits on the API, persistence serializes on the store.
func DefaultConfig() Config {
	return Config{
		CPUWorkers:     5,
		NetworkWorkers: 20,
		DiskWorkers:    2,
		QueueCapacity:  10,
		GracePeriod:    30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CPUWorkers <= 0 {
		c.CPUWorkers = d.CPUWorkers
	}
	if c.NetworkWorkers <= 0 {
		c.NetworkWorkers = d.NetworkWorkers
	}
	if c.DiskWorkers <= 0 {
		c.DiskWorkers = d.DiskWorkers
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = d.QueueCapacity
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = d.GracePeriod
	}
	return c
}

// BatchDocumentResult is one document's line in the batch result.
type BatchDocumentResult struct {
	LawID                string `json:"law_id"`
	Success              bool   `json:"success"`
	ErrorMessage         string `json:"error_message,omitempty"`
	FailedStep           string `json:"failed_step,omitempty"`
	NodesCreated         int    `json:"nodes_created"`
	RelationshipsCreated int    `json:"relationships_created"`
}

// BatchResult is the stable JSON shape for one batch run.
type BatchResult struct {
	RunID               string                `json:"run_id"`
	Total               int                   `json:"total"`
	Successful          int                   `json:"successful"`
	Failed              int                   `json:"failed"`
	DurationSeconds     float64               `json:"duration_seconds"`
	TotalNodes          int                   `json:"total_nodes"`
	TotalReferenceLinks int                   `json:"total_reference_links"`
	EmbeddingsSkipped   bool                  `json:"embeddings_skipped,omitempty"`
	DocumentResults     []BatchDocumentResult `json:"document_results"`
}

// Orchestrator owns the three pools. A failing document rolls back and is
// recorded; the batch itself never aborts on one document.
type Orchestrator struct {
	runner *pipeline.Runner
	linker *linker.BulkLinker
	store  *graph.Store
	cfg    Config
}

// New builds an orchestrator. linker and store may be nil for dry runs.
func New(runner *pipeline.Runner, lk *linker.BulkLinker, store *graph.Store, cfg Config) *Orchestrator {
	return &Orchestrator{runner: runner, linker: lk, store: store, cfg: cfg.withDefaults()}
}

// job is one document travelling between pools with its ingestion context.
type job struct {
	ictx *pipeline.IngestionContext
	doc  *norma.Normativa
}

// RunBatch ingests the ids across the pools, then runs the bulk linker
// once, and returns the aggregate result. Document order in the result is
// not preserved.
func (o *Orchestrator) RunBatch(ctx context.Context, ids []string) BatchResult {
	started := time.Now()
	runID := uuid.NewString()
	logging.Orchestrator("Batch %s: %d documents, pools cpu=%d net=%d disk=%d",
		runID, len(ids), o.cfg.CPUWorkers, o.cfg.NetworkWorkers, o.cfg.DiskWorkers)

	// workCtx outlives the caller's context by the grace period so
	// in-flight documents can drain after cancellation.
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	go func() {
		select {
		case <-ctx.Done():
			logging.Orchestrator("Batch %s: cancellation received, draining for %v", runID, o.cfg.GracePeriod)
			timer := time.NewTimer(o.cfg.GracePeriod)
			defer timer.Stop()
			select {
			case <-timer.C:
				cancelWork()
			case <-workCtx.Done():
			}
		case <-workCtx.Done():
		}
	}()

	input := make(chan string)
	qEmbed := make(chan *job, o.cfg.QueueCapacity)
	qPersist := make(chan *job, o.cfg.QueueCapacity)
	results := make(chan pipeline.DocumentResult, len(ids))

	// Feeder: stops admitting new documents the moment the caller cancels.
	go func() {
		defer close(input)
		for _, id := range ids {
			if ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case input <- id:
			}
		}
	}()

	var cpuWG, netWG, diskWG sync.WaitGroup

	for i := 0; i < o.cfg.CPUWorkers; i++ {
		cpuWG.Add(1)
		go func() {
			defer cpuWG.Done()
			for id := range input {
				if j, ok := o.parseStage(workCtx, id, results); ok {
					qEmbed <- j
				}
			}
		}()
	}

	for i := 0; i < o.cfg.NetworkWorkers; i++ {
		netWG.Add(1)
		go func() {
			defer netWG.Done()
			for j := range qEmbed {
				if o.runner.Embed(workCtx, j.ictx, j.doc) {
					qPersist <- j
				} else {
					o.finish(j.ictx, results)
				}
			}
		}()
	}

	for i := 0; i < o.cfg.DiskWorkers; i++ {
		diskWG.Add(1)
		go func() {
			defer diskWG.Done()
			for j := range qPersist {
				o.runner.Persist(j.ictx, j.doc)
				o.finish(j.ictx, results)
			}
		}()
	}

	cpuWG.Wait()
	close(qEmbed)
	netWG.Wait()
	close(qPersist)
	diskWG.Wait()
	close(results)

	batch := o.collect(runID, results)
	batch.EmbeddingsSkipped = o.cfg.SkipEmbeddings

	// One linking pass over the whole corpus, after every document has
	// committed or rolled back.
	if o.linker != nil && ctx.Err() == nil {
		links, err := o.linker.Run(workCtx)
		batch.TotalReferenceLinks = links
		if err != nil {
			logging.Get(logging.CategoryOrchestrator).Warn("Batch %s: bulk linking failed: %v", runID, err)
		}
	}

	batch.DurationSeconds = time.Since(started).Seconds()
	logging.Orchestrator("Batch %s done: %d/%d succeeded, %d reference links, %.1fs",
		runID, batch.Successful, batch.Total, batch.TotalReferenceLinks, batch.DurationSeconds)
	return batch
}

// parseStage retrieves and parses one document. A transient source failure
// is retried once on a fresh context before the document is written off.
func (o *Orchestrator) parseStage(ctx context.Context, id string, results chan<- pipeline.DocumentResult) (*job, bool) {
	for attempt := 0; ; attempt++ {
		ictx := pipeline.NewIngestionContext(id, o.store, true)

		raw, ok := o.runner.Retrieve(ctx, ictx)
		if !ok {
			_, err := ictx.Failed()
			if attempt == 0 && errors.Is(err, retriever.ErrSourceUnavailable) && ctx.Err() == nil {
				logging.Orchestrator("Retrying %s after transient source failure: %v", id, err)
				continue
			}
			o.finish(ictx, results)
			return nil, false
		}

		doc, ok := o.runner.Process(ictx, raw)
		if !ok {
			o.finish(ictx, results)
			return nil, false
		}
		return &job{ictx: ictx, doc: doc}, true
	}
}

// finish releases a document's context and reports its result.
func (o *Orchestrator) finish(ictx *pipeline.IngestionContext, results chan<- pipeline.DocumentResult) {
	ictx.Release()
	results <- ictx.Result()
}

// collect folds the per-document results into the batch shape.
func (o *Orchestrator) collect(runID string, results <-chan pipeline.DocumentResult) BatchResult {
	batch := BatchResult{RunID: runID}
	for res := range results {
		doc := BatchDocumentResult{
			LawID:                res.LawID,
			Success:              res.Status == "success",
			NodesCreated:         res.NodesCreated,
			RelationshipsCreated: res.RelationshipsCreated,
		}
		for _, step := range res.StepResults {
			if step.Status == "failed" {
				doc.FailedStep = step.StepName
				doc.ErrorMessage = step.ErrorMessage
				break
			}
		}
		if doc.Success {
			batch.Successful++
		} else {
			batch.Failed++
		}
		batch.Total++
		batch.TotalNodes += res.NodesCreated
		batch.DocumentResults = append(batch.DocumentResults, doc)
	}
	return batch
}
