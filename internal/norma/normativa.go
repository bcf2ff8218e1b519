package norma

import "time"

// Source identifies the publication origin of a document. Both origins share
// the single Normativa label in the graph; the source tag differentiates them.
type Source string

const (
	SourceBOE    Source = "BOE"
	SourceEURLex Source = "EUR-Lex"
)

// Classification is one shared subject/type/institution code attached to a
// document. Classification nodes are shared between documents and never
// cascade-deleted.
type Classification struct {
	Codigo string
	Texto  string
}

// Metadata is the flat record of document-level facts from the source API.
type Metadata struct {
	Titulo           string
	TituloCorto      string
	Tipo             string // rango: Ley, Ley Orgánica, Real Decreto, Reglamento...
	FechaDisposicion time.Time
	FechaPublicacion time.Time
	Departamento     Classification // issuing institution
	Diario           string
	NumeroOficial    string
	URLHTML          string
	URLELI           string
	Source           Source
}

// Analysis carries the classification codes attached to a document.
type Analysis struct {
	Materias []Classification // subject terms (ABOUT)
}

// Normativa is one legal instrument: metadata, analysis, and its content tree.
type Normativa struct {
	ID       string
	Metadata Metadata
	Analysis Analysis
	Tree     *Tree
}

// Version is a dated snapshot of one block's text as delivered by the source.
// Versions are input only; the tree builder folds them into a temporal chain
// of article nodes.
type Version struct {
	ID            string
	FechaVigencia time.Time
	Text          string
}

// Block is one raw content block of a retrieved document, carrying one or
// more versions of its markup.
type Block struct {
	ID       string
	Type     string // source-declared block type; may be empty
	Title    string
	Versions []Version
}

// ChangeKind classifies a detected per-article change.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// ChangeEvent records one structural or textual transition between two
// consecutive versions of an article. Events are advisory: they go to the
// per-document change log, not to the graph.
type ChangeEvent struct {
	ArticleID   string
	Kind        ChangeKind
	FromVersion string
	ToVersion   string
	Timestamp   time.Time
}
