package pipeline

import (
	"sync"
	"time"

	"github.com/mhanii/corolaria/internal/graph"
	"github.com/mhanii/corolaria/internal/logging"
)

// IngestionContext is the per-document scope: it accumulates step records
// and decides, on release, whether the document's writes stay (Commit) or
// are cascade-deleted (Rollback). One context travels with its document
// through every pipeline stage; a single goroutine owns it at a time, but
// the mutex keeps the release path safe when the orchestrator observes it.
type IngestionContext struct {
	docID        string
	store        *graph.Store
	autoRollback bool
	started      time.Time

	mu         sync.Mutex
	steps      []StepResult
	stepStart  map[string]time.Time
	nodes      int
	edges      int
	failedStep string
	failedErr  error
	committed  bool
	rolledBack bool
}

// NewIngestionContext opens a context for one document. store may be nil
// for dry runs; rollback is then a no-op.
func NewIngestionContext(docID string, store *graph.Store, autoRollback bool) *IngestionContext {
	return &IngestionContext{
		docID:        docID,
		store:        store,
		autoRollback: autoRollback,
		started:      time.Now(),
		stepStart:    make(map[string]time.Time),
	}
}

// DocID returns the document this context is scoped to.
func (c *IngestionContext) DocID() string { return c.docID }

// MarkStepStarted stamps the wall-clock start of a step.
func (c *IngestionContext) MarkStepStarted(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepStart[name] = time.Now()
}

// RecordStep closes a step as successful and accumulates its counters.
func (c *IngestionContext) RecordStep(name string, nodes, edges int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, StepResult{
		StepName:        name,
		Status:          "success",
		DurationSeconds: c.stepDurationLocked(name),
	})
	c.nodes += nodes
	c.edges += edges
}

// MarkFailed closes a step as failed and latches the document failure.
// Only the first failure is kept.
func (c *IngestionContext) MarkFailed(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, StepResult{
		StepName:        name,
		Status:          "failed",
		DurationSeconds: c.stepDurationLocked(name),
		ErrorMessage:    err.Error(),
	})
	if c.failedErr == nil {
		c.failedStep = name
		c.failedErr = err
	}
}

func (c *IngestionContext) stepDurationLocked(name string) float64 {
	start, ok := c.stepStart[name]
	if !ok {
		return 0
	}
	return time.Since(start).Seconds()
}

// Commit marks the document's writes as final.
func (c *IngestionContext) Commit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.committed = true
}

// Rollback cascade-deletes everything this document wrote. Repeat calls
// are no-ops, as is rolling back a document that never reached the store.
func (c *IngestionContext) Rollback() error {
	c.mu.Lock()
	if c.rolledBack {
		c.mu.Unlock()
		return nil
	}
	c.rolledBack = true
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	deleted, err := c.store.DeleteDocumentCascade(c.docID)
	if err != nil {
		return err
	}
	logging.Pipeline("Rolled back %s: %d nodes removed", c.docID, deleted)
	return nil
}

// Release closes the scope: an outstanding failure with autoRollback set
// triggers a single rollback, and rollback errors are swallowed into the
// log so they never mask the step error.
func (c *IngestionContext) Release() {
	c.mu.Lock()
	failed := c.failedErr != nil && !c.committed
	c.mu.Unlock()

	if failed && c.autoRollback {
		if err := c.Rollback(); err != nil {
			logging.Get(logging.CategoryPipeline).Warn("Rollback of %s failed: %v", c.docID, err)
		}
	}
}

// Failed returns the latched failure, if any.
func (c *IngestionContext) Failed() (step string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failedStep, c.failedErr
}

// Result snapshots the context into the stable JSON shape.
func (c *IngestionContext) Result() DocumentResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := "failed"
	switch {
	case c.committed && c.failedErr == nil:
		status = "success"
	case c.rolledBack:
		status = "rolled_back"
	}

	steps := make([]StepResult, len(c.steps))
	copy(steps, c.steps)

	return DocumentResult{
		LawID:                c.docID,
		Status:               status,
		DurationSeconds:      time.Since(c.started).Seconds(),
		StepResults:          steps,
		NodesCreated:         c.nodes,
		RelationshipsCreated: c.edges,
		WasRolledBack:        c.rolledBack,
	}
}
