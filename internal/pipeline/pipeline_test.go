package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhanii/corolaria/internal/embedding"
	"github.com/mhanii/corolaria/internal/graph"
	"github.com/mhanii/corolaria/internal/norma"
	"github.com/mhanii/corolaria/internal/retriever"
)

type stubRetriever struct {
	doc *retriever.RawDocument
	err error
}

func (s *stubRetriever) Fetch(ctx context.Context, documentID string) (*retriever.RawDocument, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.doc, nil
}

func fixtureRaw(id string) *retriever.RawDocument {
	vig := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	return &retriever.RawDocument{
		ID: id,
		Metadata: norma.Metadata{
			Titulo: "Ley de prueba",
			Tipo:   "Ley",
			Source: norma.SourceBOE,
		},
		Blocks: []norma.Block{
			{ID: "a1", Type: "precepto", Title: "Artículo 1", Versions: []norma.Version{{
				ID:            id,
				FechaVigencia: vig,
				Text:          "Artículo 1. Objeto.\nEsta ley regula el procedimiento.",
			}}},
			{ID: "a2", Type: "precepto", Title: "Artículo 2", Versions: []norma.Version{{
				ID:            id,
				FechaVigencia: vig,
				Text:          "Artículo 2. Ámbito.\nSegún el artículo 1 de esta Ley.",
			}}},
		},
	}
}

func testProvider() *embedding.Provider {
	return embedding.NewProvider(embedding.NewSimulatedEngine(8), nil, nil, embedding.ProviderConfig{})
}

func testRunner(t *testing.T, ret retriever.Retriever) (*Runner, *graph.Store) {
	t.Helper()
	store, err := graph.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	r := NewRunner(RunnerConfig{
		Retriever:    ret,
		Provider:     testProvider(),
		Persister:    graph.NewPersister(store, nil, ""),
		Store:        store,
		AutoRollback: true,
	})
	return r, store
}

func TestRunSuccess(t *testing.T) {
	r, store := testRunner(t, &stubRetriever{doc: fixtureRaw("BOE-A-2020-1")})

	res := r.Run(context.Background(), "BOE-A-2020-1")

	assert.Equal(t, "success", res.Status)
	assert.False(t, res.WasRolledBack)
	// 1 Normativa + 2 articulo + 2 parrafo + 1 tipo node; 4 PART_OF + 1 HAS_TYPE.
	assert.Equal(t, 6, res.NodesCreated)
	assert.Equal(t, 5, res.RelationshipsCreated)

	require.Len(t, res.StepResults, 4)
	for i, name := range []string{StepRetriever, StepProcessor, StepEmbedding, StepGraph} {
		assert.Equal(t, name, res.StepResults[i].StepName)
		assert.Equal(t, "success", res.StepResults[i].Status)
	}

	exists, err := store.NodeExists("BOE-A-2020-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRunRetrieverFailure(t *testing.T) {
	r, store := testRunner(t, &stubRetriever{err: retriever.ErrDocumentNotFound})

	res := r.Run(context.Background(), "BOE-A-2020-404")

	assert.NotEqual(t, "success", res.Status)
	require.Len(t, res.StepResults, 1)
	assert.Equal(t, StepRetriever, res.StepResults[0].StepName)
	assert.Equal(t, "failed", res.StepResults[0].Status)
	assert.NotEmpty(t, res.StepResults[0].ErrorMessage)

	exists, err := store.NodeExists("BOE-A-2020-404")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunDryRun(t *testing.T) {
	r := NewRunner(RunnerConfig{
		Retriever:    &stubRetriever{doc: fixtureRaw("BOE-A-2020-2")},
		Provider:     testProvider(),
		AutoRollback: true,
	})

	res := r.Run(context.Background(), "BOE-A-2020-2")

	assert.Equal(t, "success", res.Status)
	// Dry runs never reach graph construction.
	require.Len(t, res.StepResults, 3)
	assert.Zero(t, res.NodesCreated)
}

func TestContextRollbackRemovesDocument(t *testing.T) {
	store, err := graph.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.MergeNode(graph.NodeRecord{
		ID: "BOE-A-2020-9", Label: graph.LabelNormativa,
		Props: map[string]interface{}{"document_id": "BOE-A-2020-9"},
	}))
	require.NoError(t, store.MergeNode(graph.NodeRecord{
		ID: "d9-n1", Label: "articulo",
		Props: map[string]interface{}{"document_id": "BOE-A-2020-9"},
	}))

	ictx := NewIngestionContext("BOE-A-2020-9", store, true)
	ictx.MarkStepStarted(StepGraph)
	ictx.MarkFailed(StepGraph, errors.New("disk full"))
	ictx.Release()

	res := ictx.Result()
	assert.Equal(t, "rolled_back", res.Status)
	assert.True(t, res.WasRolledBack)

	for _, id := range []string{"BOE-A-2020-9", "d9-n1"} {
		exists, err := store.NodeExists(id)
		require.NoError(t, err)
		assert.False(t, exists, "node %s should be gone", id)
	}

	// Repeat rollbacks are no-ops.
	require.NoError(t, ictx.Rollback())
}

func TestContextKeepsFirstFailure(t *testing.T) {
	ictx := NewIngestionContext("BOE-A-2020-3", nil, false)
	ictx.MarkFailed(StepEmbedding, errors.New("quota exceeded"))
	ictx.MarkFailed(StepGraph, errors.New("later"))

	step, err := ictx.Failed()
	assert.Equal(t, StepEmbedding, step)
	assert.EqualError(t, err, "quota exceeded")

	res := ictx.Result()
	assert.Equal(t, "failed", res.Status)
	assert.False(t, res.WasRolledBack)
}

func TestDocumentResultJSONShape(t *testing.T) {
	res := DocumentResult{
		LawID:           "BOE-A-2020-1",
		Status:          "success",
		DurationSeconds: 1.5,
		StepResults:     []StepResult{{StepName: StepRetriever, Status: "success"}},
		NodesCreated:    12,
	}
	data, err := json.Marshal(res)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	for _, key := range []string{
		"law_id", "status", "duration_seconds", "step_results",
		"nodes_created", "relationships_created", "was_rolled_back",
	} {
		assert.Contains(t, m, key)
	}
	steps := m["step_results"].([]interface{})
	step := steps[0].(map[string]interface{})
	assert.Contains(t, step, "step_name")
	assert.NotContains(t, step, "error_message")
}
