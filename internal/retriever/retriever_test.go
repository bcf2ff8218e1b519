package retriever

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhanii/corolaria/internal/norma"
)

const boeFixture = `<?xml version="1.0" encoding="utf-8"?>
<response>
  <data>
    <metadatos>
      <identificador>BOE-A-2000-100</identificador>
      <titulo>Ley 1/2000, de 7 de enero, de Enjuiciamiento Civil</titulo>
      <rango>Ley</rango>
      <fecha_disposicion>20000107</fecha_disposicion>
      <fecha_publicacion>20000108</fecha_publicacion>
      <departamento codigo="7723">Jefatura del Estado</departamento>
      <diario>BOE</diario>
      <numero_oficial>1/2000</numero_oficial>
      <url_eli>https://www.boe.es/eli/es/l/2000/01/07/1/con</url_eli>
    </metadatos>
    <analisis>
      <materias>
        <materia codigo="5555">Procedimiento civil</materia>
        <materia codigo="6004">Tribunales de Justicia</materia>
      </materias>
    </analisis>
    <texto>
      <bloque id="a1" tipo="precepto" titulo="Art&#237;culo 1">
        <version id_norma="BOE-A-2000-100" fecha_vigencia="20010108">
          <p>Art&#237;culo 1. Principio de legalidad procesal.</p>
          <p>Los procesos civiles se rigen por esta Ley.</p>
        </version>
      </bloque>
      <bloque id="a2" tipo="precepto" titulo="Art&#237;culo 2">
        <version id_norma="BOE-A-2000-100" fecha_vigencia="20010108">
          <p>Art&#237;culo 2. &#193;mbito temporal.</p>
        </version>
        <version id_norma="BOE-A-2015-200" fecha_vigencia="20150702">
          <p>Art&#237;culo 2. &#193;mbito temporal reformado.</p>
        </version>
      </bloque>
    </texto>
  </data>
</response>`

func TestBOEClientFetchDecodesDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/BOE-A-2000-100", r.URL.Path)
		w.Write([]byte(boeFixture))
	}))
	defer srv.Close()

	c := NewBOEClient(srv.URL)
	doc, err := c.Fetch(context.Background(), "BOE-A-2000-100")
	require.NoError(t, err)

	assert.Equal(t, "BOE-A-2000-100", doc.ID)
	assert.Equal(t, "Ley", doc.Metadata.Tipo)
	assert.Equal(t, norma.SourceBOE, doc.Metadata.Source)
	assert.Equal(t, "7723", doc.Metadata.Departamento.Codigo)
	assert.Equal(t, time.Date(2000, 1, 7, 0, 0, 0, 0, time.UTC), doc.Metadata.FechaDisposicion)
	require.Len(t, doc.Analysis.Materias, 2)
	assert.Equal(t, "Procedimiento civil", doc.Analysis.Materias[0].Texto)

	require.Len(t, doc.Blocks, 2)
	assert.Equal(t, "Artículo 1", doc.Blocks[0].Title)
	require.Len(t, doc.Blocks[0].Versions, 1)
	assert.Contains(t, doc.Blocks[0].Versions[0].Text, "Artículo 1. Principio de legalidad procesal.")
	assert.Contains(t, doc.Blocks[0].Versions[0].Text, "Los procesos civiles se rigen por esta Ley.")

	require.Len(t, doc.Blocks[1].Versions, 2)
	assert.Equal(t, time.Date(2015, 7, 2, 0, 0, 0, 0, time.UTC), doc.Blocks[1].Versions[1].FechaVigencia)
}

func TestBOEClientStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, ErrDocumentNotFound},
		{http.StatusInternalServerError, ErrSourceUnavailable},
		{http.StatusTooManyRequests, ErrSourceUnavailable},
		{http.StatusForbidden, ErrDocumentNotFound},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		c := NewBOEClient(srv.URL)
		_, err := c.Fetch(context.Background(), "BOE-A-2000-1")
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
		srv.Close()
	}
}

func TestEURLexClientFetch(t *testing.T) {
	page := `<html><head><title>Reglamento (UE) 2024/1689</title></head>
	<body><div id="document1"><p>Art&#237;culo 1</p><p>El presente Reglamento establece normas.</p></div></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "CELEX:32024R1689", r.URL.Query().Get("uri"))
		w.Write([]byte(page))
	}))
	defer srv.Close()

	c := NewEURLexClient(srv.URL)
	doc, err := c.Fetch(context.Background(), "32024R1689")
	require.NoError(t, err)

	assert.Equal(t, norma.SourceEURLex, doc.Metadata.Source)
	assert.Equal(t, "Reglamento", doc.Metadata.Tipo)
	require.Len(t, doc.Blocks, 1)
	assert.Contains(t, doc.Blocks[0].Versions[0].Text, "El presente Reglamento establece normas.")
}

func TestRouterDispatchesByIDShape(t *testing.T) {
	boe := &ArchiveRetriever{dir: t.TempDir()}
	eurlex := &ArchiveRetriever{dir: t.TempDir()}
	r := NewRouter(boe, eurlex)

	writeArchiveDoc(t, boe.dir, "BOE-A-1995-25444")
	writeArchiveDoc(t, eurlex.dir, "32024R1689")

	doc, err := r.Fetch(context.Background(), "BOE-A-1995-25444")
	require.NoError(t, err)
	assert.Equal(t, "BOE-A-1995-25444", doc.ID)

	doc, err = r.Fetch(context.Background(), "32024R1689")
	require.NoError(t, err)
	assert.Equal(t, "32024R1689", doc.ID)

	_, err = r.Fetch(context.Background(), "not-a-document")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func writeArchiveDoc(t *testing.T, dir, id string) {
	t.Helper()
	doc := RawDocument{ID: id, Blocks: []norma.Block{{ID: id + "-b1", Title: "Artículo 1"}}}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".json"), data, 0o644))
}

func TestArchiveRetrieverMiss(t *testing.T) {
	a := NewArchiveRetriever(t.TempDir())
	_, err := a.Fetch(context.Background(), "BOE-A-1900-1")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestArchiveRetrieverReadsXMLCapture(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BOE-A-2000-100.xml"), []byte(boeFixture), 0o644))

	a := NewArchiveRetriever(dir)
	doc, err := a.Fetch(context.Background(), "BOE-A-2000-100")
	require.NoError(t, err)
	assert.Len(t, doc.Blocks, 2)
}

func TestStripMarkup(t *testing.T) {
	in := `<p>Primera l&#237;nea.</p><p>Segunda<br/>tercera.</p><table><tr><td>celda</td></tr></table>`
	out := StripMarkup(in)
	assert.Equal(t, "Primera línea.\nSegunda\ntercera.\n\ncelda", out)
}

func TestStripMarkupFlattensTables(t *testing.T) {
	in := `<p>Cuant&#237;as aplicables:</p>
<table>
  <tr><th>Tramo</th><th>Importe</th></tr>
  <tr><td>Primero</td><td>1.000 &#8364;</td></tr>
  <tr><td>Segundo</td><td>2.500 &#8364;</td></tr>
</table>`
	out := StripMarkup(in)

	assert.Contains(t, out, "| Tramo | Importe |")
	assert.Contains(t, out, "| Primero | 1.000 € |")
	assert.Contains(t, out, "| Segundo | 2.500 € |")
	// Cell boundaries must survive: adjacent cells never concatenate.
	assert.NotContains(t, out, "Primero1.000")
	assert.NotContains(t, out, "TramoImporte")
}

func TestStripMarkupRaggedTableFallsBackToLines(t *testing.T) {
	in := `<table>
  <tr><th>Concepto</th><th>Valor</th></tr>
  <tr><td>Total</td></tr>
</table>`
	out := StripMarkup(in)
	assert.Contains(t, out, "Concepto: Valor")
	assert.Contains(t, out, "Total")
	assert.NotContains(t, out, "ConceptoValor")
}
