package graph

import (
	"fmt"
	"time"

	"github.com/mhanii/corolaria/internal/logging"
	"github.com/mhanii/corolaria/internal/norma"
)

// LabelNormativa is the single document label shared by both sources.
const LabelNormativa = "Normativa"

// Shared classification labels.
const (
	LabelMateria       = "Materia"
	LabelDocumentoTipo = "TipoDocumento"
	LabelInstitucion   = "Institucion"
)

// Persister walks a document tree and emits one node batch and one edge
// batch against the store. Structural node types listed in nonPersisted are
// skipped for size; their children get PART_OF edges straight to the
// document, like every other content node.
type Persister struct {
	store        *Store
	nonPersisted map[norma.NodeType]bool
	indexName    string
}

// NewPersister creates a persister. nonPersistedTypes defaults to the inner
// chapter/section layers when nil.
func NewPersister(store *Store, nonPersistedTypes []string, indexName string) *Persister {
	skip := make(map[norma.NodeType]bool, len(nonPersistedTypes))
	for _, t := range nonPersistedTypes {
		skip[norma.NodeType(t)] = true
	}
	return &Persister{store: store, nonPersisted: skip, indexName: indexName}
}

const dateLayout = "2006-01-02"

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// Persist upserts one document: the Normativa node, every persisted content
// node with its PART_OF edge, and the shared classification nodes/edges.
// Exactly one BatchMergeNodes and one BatchMergeEdges round-trip.
func (p *Persister) Persist(doc *norma.Normativa) (nodesCreated, edgesCreated int, err error) {
	timer := logging.StartTimer(logging.CategoryStore, "Persist "+doc.ID)
	defer timer.Stop()

	if doc.Tree == nil {
		return 0, 0, fmt.Errorf("document %s has no content tree", doc.ID)
	}

	var nodes []NodeRecord
	var edges []EdgeRecord

	nodes = append(nodes, NodeRecord{
		ID:    doc.ID,
		Label: LabelNormativa,
		Props: map[string]interface{}{
			"document_id":       doc.ID,
			"titulo":            doc.Metadata.Titulo,
			"titulo_corto":      doc.Metadata.TituloCorto,
			"tipo":              doc.Metadata.Tipo,
			"fecha_disposicion": formatDate(doc.Metadata.FechaDisposicion),
			"fecha_publicacion": formatDate(doc.Metadata.FechaPublicacion),
			"diario":            doc.Metadata.Diario,
			"numero_oficial":    doc.Metadata.NumeroOficial,
			"url_html":          doc.Metadata.URLHTML,
			"url_eli":           doc.Metadata.URLELI,
			"source":            string(doc.Metadata.Source),
		},
	})

	tree := doc.Tree
	var pendingVectors []struct {
		id  string
		vec []float32
	}

	tree.Walk(func(idx int, n *norma.Node) {
		if n.Type == norma.TypeRoot || p.nonPersisted[n.Type] {
			return
		}
		props := map[string]interface{}{
			"document_id": doc.ID,
			"name":        n.Name,
			"level":       n.Level,
		}
		rec := NodeRecord{ID: n.ID, Label: string(n.Type), Props: props}
		if n.Article != nil {
			props["full_text"] = tree.FullText(idx)
			props["path"] = tree.Path(idx)
			props["clean_number"] = n.Article.CleanNumber
			props["fecha_vigencia"] = formatDate(n.Article.FechaVigencia)
			if n.Article.FechaCaducidad != nil {
				props["fecha_caducidad"] = formatDate(*n.Article.FechaCaducidad)
			}
			props["introduced_by"] = n.Article.IntroducedBy
			rec.Embedding = n.Article.Embedding
			if len(n.Article.Embedding) > 0 {
				pendingVectors = append(pendingVectors, struct {
					id  string
					vec []float32
				}{n.ID, n.Article.Embedding})
			}
		}
		nodes = append(nodes, rec)
		edges = append(edges, EdgeRecord{FromID: n.ID, ToID: doc.ID, Type: EdgePartOf})
	})

	// Shared classification nodes. Their ids are derived from the code so
	// documents converge on the same node.
	for _, m := range doc.Analysis.Materias {
		id := "materia-" + m.Codigo
		nodes = append(nodes, NodeRecord{
			ID:    id,
			Label: LabelMateria,
			Props: map[string]interface{}{"codigo": m.Codigo, "texto": m.Texto},
		})
		edges = append(edges, EdgeRecord{FromID: doc.ID, ToID: id, Type: EdgeAbout})
	}
	if doc.Metadata.Tipo != "" {
		id := "tipo-" + slug(doc.Metadata.Tipo)
		nodes = append(nodes, NodeRecord{
			ID:    id,
			Label: LabelDocumentoTipo,
			Props: map[string]interface{}{"texto": doc.Metadata.Tipo},
		})
		edges = append(edges, EdgeRecord{FromID: doc.ID, ToID: id, Type: EdgeHasType})
	}
	if doc.Metadata.Departamento.Texto != "" {
		id := "institucion-" + doc.Metadata.Departamento.Codigo
		if doc.Metadata.Departamento.Codigo == "" {
			id = "institucion-" + slug(doc.Metadata.Departamento.Texto)
		}
		nodes = append(nodes, NodeRecord{
			ID:    id,
			Label: LabelInstitucion,
			Props: map[string]interface{}{
				"codigo": doc.Metadata.Departamento.Codigo,
				"texto":  doc.Metadata.Departamento.Texto,
			},
		})
		edges = append(edges, EdgeRecord{FromID: doc.ID, ToID: id, Type: EdgeIssuedBy})
	}

	if err := p.store.BatchMergeNodes(nodes); err != nil {
		return 0, 0, fmt.Errorf("failed to persist nodes for %s: %w", doc.ID, err)
	}
	if err := p.store.BatchMergeEdges(edges); err != nil {
		return 0, 0, fmt.Errorf("failed to persist edges for %s: %w", doc.ID, err)
	}

	if p.indexName != "" {
		for _, pv := range pendingVectors {
			if err := p.store.IndexEmbedding(p.indexName, pv.id, pv.vec); err != nil {
				return 0, 0, fmt.Errorf("failed to index embedding for %s: %w", pv.id, err)
			}
		}
	}

	logging.Store("Persisted %s: %d nodes, %d edges", doc.ID, len(nodes), len(edges))
	return len(nodes), len(edges), nil
}

// slug lowercases and dash-joins a free-text label into an id fragment.
func slug(s string) string {
	out := make([]rune, 0, len(s))
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			out = append(out, r)
			lastDash = false
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
			lastDash = false
		default:
			if !lastDash && len(out) > 0 {
				out = append(out, '-')
				lastDash = true
			}
		}
	}
	for len(out) > 0 && out[len(out)-1] == '-' {
		out = out[:len(out)-1]
	}
	return string(out)
}
