package linker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhanii/corolaria/internal/graph"
	"github.com/mhanii/corolaria/internal/references"
)

func openStore(t *testing.T) *graph.Store {
	t.Helper()
	store, err := graph.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedArticle(t *testing.T, store *graph.Store, id, docID, clean, vigencia, caducidad, fullText string) {
	t.Helper()
	props := map[string]interface{}{
		"document_id":  docID,
		"clean_number": clean,
		"full_text":    fullText,
	}
	if vigencia != "" {
		props["fecha_vigencia"] = vigencia
	}
	if caducidad != "" {
		props["fecha_caducidad"] = caducidad
	}
	require.NoError(t, store.MergeNode(graph.NodeRecord{ID: id, Label: "articulo", Props: props}))
}

func edgesFrom(t *testing.T, store *graph.Store, fromID string) []map[string]interface{} {
	t.Helper()
	rows, err := store.RunQuery(
		"SELECT from_id, to_id, type FROM edges WHERE from_id = ? ORDER BY to_id", fromID)
	require.NoError(t, err)
	return rows
}

func TestRunLinksInternalReference(t *testing.T) {
	store := openStore(t)
	seedArticle(t, store, "d1-n1", "BOE-A-2020-1", "1", "2020-01-01", "",
		"Artículo 1.\nSegún el artículo 2 de esta Ley se aplicará el procedimiento común.")
	seedArticle(t, store, "d1-n2", "BOE-A-2020-1", "2", "2020-01-01", "",
		"Artículo 2.\nTexto sin citas.")

	n, err := New(store, 100, 2).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	edges := edgesFrom(t, store, "d1-n1")
	require.Len(t, edges, 1)
	assert.Equal(t, "d1-n2", edges[0]["to_id"])
	assert.Equal(t, graph.EdgeRefersTo, edges[0]["type"])
}

func TestRunResolvesTemporalVersion(t *testing.T) {
	store := openStore(t)
	seedArticle(t, store, "d1-n1", "BOE-A-2020-1", "1", "2010-06-01", "",
		"Artículo 1.\nConforme al artículo 2 de esta Ley.")
	// Two versions of article 2: only the first is in force in 2010.
	seedArticle(t, store, "d1-n2", "BOE-A-2020-1", "2", "2000-01-01", "2015-01-01",
		"Artículo 2.\nRedacción original.")
	seedArticle(t, store, "d1-n9", "BOE-A-2020-1", "2", "2015-01-01", "",
		"Artículo 2.\nRedacción reformada.")

	_, err := New(store, 100, 2).Run(context.Background())
	require.NoError(t, err)

	edges := edgesFrom(t, store, "d1-n1")
	require.Len(t, edges, 1)
	assert.Equal(t, "d1-n2", edges[0]["to_id"])
}

func TestRunSkipsTargetNotYetInForce(t *testing.T) {
	store := openStore(t)
	seedArticle(t, store, "d1-n1", "BOE-A-2020-1", "1", "2010-01-01", "",
		"Artículo 1.\nSegún el artículo 5 de esta Ley.")
	// The only version of article 5 enters into force after the
	// referrer's date, so there is nothing valid to link to.
	seedArticle(t, store, "d1-n5", "BOE-A-2020-1", "5", "2020-01-01", "",
		"Artículo 5.\nRedacción posterior.")

	n, err := New(store, 100, 2).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, edgesFrom(t, store, "d1-n1"))
}

func TestRunLinksExternalArticle(t *testing.T) {
	store := openStore(t)
	require.NoError(t, store.MergeNode(graph.NodeRecord{
		ID: "BOE-A-1978-31229", Label: "normativa",
		Props: map[string]interface{}{"titulo": "Constitución Española"},
	}))
	seedArticle(t, store, "ce-n14", "BOE-A-1978-31229", "14", "1978-12-29", "",
		"Artículo 14.\nLos españoles son iguales ante la ley.")
	seedArticle(t, store, "d1-n1", "BOE-A-2020-1", "1", "2020-01-01", "",
		"Artículo 1.\nEn desarrollo del artículo 14 de la Constitución Española.")

	_, err := New(store, 100, 2).Run(context.Background())
	require.NoError(t, err)

	edges := edgesFrom(t, store, "d1-n1")
	require.Len(t, edges, 1)
	assert.Equal(t, "ce-n14", edges[0]["to_id"])
}

func TestRunFallsBackToDocumentNode(t *testing.T) {
	store := openStore(t)
	// The cited law exists as a document node but has no ingested articles.
	require.NoError(t, store.MergeNode(graph.NodeRecord{
		ID: "BOE-A-2015-10565", Label: "normativa",
		Props: map[string]interface{}{"titulo": "Ley 39/2015"},
	}))
	seedArticle(t, store, "d1-n1", "BOE-A-2020-1", "1", "2020-01-01", "",
		"Artículo 1.\nSe estará a lo dispuesto en la Ley 39/2015, de 1 de octubre.")

	_, err := New(store, 100, 2).Run(context.Background())
	require.NoError(t, err)

	edges := edgesFrom(t, store, "d1-n1")
	require.Len(t, edges, 1)
	assert.Equal(t, "BOE-A-2015-10565", edges[0]["to_id"])
}

func TestRunSkipsMissingTargets(t *testing.T) {
	store := openStore(t)
	// Neither the Código Penal nor any of its articles is in the graph.
	seedArticle(t, store, "d1-n1", "BOE-A-2020-1", "1", "2020-01-01", "",
		"Artículo 1.\nQueda derogada la Ley Orgánica 10/1995, de 23 de noviembre.")

	n, err := New(store, 100, 2).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, edgesFrom(t, store, "d1-n1"))
}

func TestRunClassifiesDerogation(t *testing.T) {
	store := openStore(t)
	seedArticle(t, store, "d1-n1", "BOE-A-2020-1", "1", "2020-01-01", "",
		"Disposición derogatoria.\nQueda derogado el artículo 3 de esta Ley.")
	seedArticle(t, store, "d1-n3", "BOE-A-2020-1", "3", "2020-01-01", "",
		"Artículo 3.\nTexto.")

	_, err := New(store, 100, 2).Run(context.Background())
	require.NoError(t, err)

	edges := edgesFrom(t, store, "d1-n1")
	require.Len(t, edges, 1)
	assert.Equal(t, graph.EdgeDerogates, edges[0]["type"])
}

func TestRunExpandsRanges(t *testing.T) {
	store := openStore(t)
	seedArticle(t, store, "d1-n1", "BOE-A-2020-1", "1", "2020-01-01", "",
		"Artículo 1.\nSe aplican los artículos 2 a 3 de esta Ley.")
	seedArticle(t, store, "d1-n2", "BOE-A-2020-1", "2", "2020-01-01", "", "Artículo 2.\nTexto.")
	seedArticle(t, store, "d1-n3", "BOE-A-2020-1", "3", "2020-01-01", "", "Artículo 3.\nTexto.")

	n, err := New(store, 100, 2).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	edges := edgesFrom(t, store, "d1-n1")
	require.Len(t, edges, 2)
	assert.Equal(t, "d1-n2", edges[0]["to_id"])
	assert.Equal(t, "d1-n3", edges[1]["to_id"])
}

func TestRunIsIdempotent(t *testing.T) {
	store := openStore(t)
	seedArticle(t, store, "d1-n1", "BOE-A-2020-1", "1", "2020-01-01", "",
		"Artículo 1.\nSegún el artículo 2 de esta Ley.")
	seedArticle(t, store, "d1-n2", "BOE-A-2020-1", "2", "2020-01-01", "", "Artículo 2.\nTexto.")

	_, err := New(store, 100, 2).Run(context.Background())
	require.NoError(t, err)
	_, err = New(store, 100, 2).Run(context.Background())
	require.NoError(t, err)

	row, err := store.RunQuerySingle("SELECT COUNT(*) AS n FROM edges")
	require.NoError(t, err)
	assert.EqualValues(t, 1, row["n"])
}

func TestRunEmptyGraph(t *testing.T) {
	store := openStore(t)
	n, err := New(store, 100, 2).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInternalTargetsExpansion(t *testing.T) {
	assert.Equal(t, []string{"10", "11", "12"},
		internalTargets(references.ExtractedReference{ArticleRange: "10-12"}))
	assert.Equal(t, []string{"3", "5", "9"},
		internalTargets(references.ExtractedReference{ArticleRange: "3,5,9"}))
	assert.Nil(t, internalTargets(references.ExtractedReference{ArticleRange: "14-10"}))
	assert.Nil(t, internalTargets(references.ExtractedReference{ArticleRange: "1-900"}))
	assert.Equal(t, []string{"7"},
		internalTargets(references.ExtractedReference{ArticleNumber: "7"}))
}
