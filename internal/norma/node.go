// Package norma defines the document model for ingested legislation: the
// typed content tree, article version records, document metadata, and the
// normalization helpers shared by the parser, persistence, and linker layers.
package norma

import (
	"fmt"
	"strings"
	"time"
)

// NodeType discriminates the tagged node variants of the content tree.
type NodeType string

const (
	TypeRoot               NodeType = "root"
	TypeLibro              NodeType = "libro"
	TypeTitulo             NodeType = "titulo"
	TypeCapitulo           NodeType = "capitulo"
	TypeSeccion            NodeType = "seccion"
	TypeSubseccion         NodeType = "subseccion"
	TypeArticulo           NodeType = "articulo"
	TypeArticuloUnico      NodeType = "articulo_unico"
	TypeApartadoNumerico   NodeType = "apartado_numerico"
	TypeApartadoAlfabetico NodeType = "apartado_alfabetico"
	TypeOrdinalNumerico    NodeType = "ordinal_numerico"
	TypeOrdinalAlfabetico  NodeType = "ordinal_alfabetico"
	TypeParrafo            NodeType = "parrafo"
	TypeAnexo              NodeType = "anexo"
	TypeDisposicion        NodeType = "disposicion"
)

// IsArticle reports whether the type is an article variant.
func (t NodeType) IsArticle() bool {
	return t == TypeArticulo || t == TypeArticuloUnico
}

// IsStructural reports whether the type is a non-article content division.
func (t NodeType) IsStructural() bool {
	switch t {
	case TypeLibro, TypeTitulo, TypeCapitulo, TypeSeccion, TypeSubseccion, TypeAnexo, TypeDisposicion:
		return true
	}
	return false
}

// Fragment is one ordered content entry of a node: either a child node
// (arena index) or a raw text run. Child < 0 means text.
type Fragment struct {
	Child int
	Text  string
}

// Article holds the article-specific fields referenced when the node variant
// is an article. Kept as a side record so structural nodes stay small.
type Article struct {
	FullText       string
	CleanNumber    string // "" means null
	FechaVigencia  time.Time
	FechaCaducidad *time.Time // nil means current version
	IntroducedBy   string     // version id that first created this version
	Embedding      []float32
}

// Node is one element of the content tree. Nodes live in the Tree arena and
// reference their parent by index; the parent link is a lookup relation, not
// an ownership handle.
type Node struct {
	ID      string
	Name    string
	Type    NodeType
	Level   int
	Parent  int // arena index; -1 for the root
	Content []Fragment
	Article *Article // non-nil only when Type.IsArticle()
}

// Tree is the arena-backed content tree of one document. Index 0 is always
// the root node (level -1).
type Tree struct {
	DocID   string
	Nodes   []Node
	counter int
}

// NewTree creates a tree with its root node.
func NewTree(docID string) *Tree {
	t := &Tree{DocID: docID}
	t.Nodes = append(t.Nodes, Node{
		ID:     docID + "-root",
		Name:   docID,
		Type:   TypeRoot,
		Level:  -1,
		Parent: -1,
	})
	return t
}

// Root returns the arena index of the root node.
func (t *Tree) Root() int { return 0 }

// NewNode appends a child node and returns its arena index.
// IDs are stable within a document: document prefix plus a monotonic counter.
func (t *Tree) NewNode(parent int, typ NodeType, name string, level int) int {
	t.counter++
	idx := len(t.Nodes)
	node := Node{
		ID:     fmt.Sprintf("%s-n%d", t.DocID, t.counter),
		Name:   name,
		Type:   typ,
		Level:  level,
		Parent: parent,
	}
	if typ.IsArticle() {
		node.Article = &Article{}
	}
	t.Nodes = append(t.Nodes, node)
	t.Nodes[parent].Content = append(t.Nodes[parent].Content, Fragment{Child: idx})
	return idx
}

// AppendText adds a raw text fragment to a node's ordered content.
func (t *Tree) AppendText(idx int, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	t.Nodes[idx].Content = append(t.Nodes[idx].Content, Fragment{Child: -1, Text: text})
}

// Children returns the arena indexes of a node's child nodes in order.
func (t *Tree) Children(idx int) []int {
	var out []int
	for _, f := range t.Nodes[idx].Content {
		if f.Child >= 0 {
			out = append(out, f.Child)
		}
	}
	return out
}

// FullText returns the concatenated text of a node and its descendants,
// in document order, separated by newlines.
func (t *Tree) FullText(idx int) string {
	var sb strings.Builder
	t.appendText(&sb, idx)
	return strings.TrimSpace(sb.String())
}

func (t *Tree) appendText(sb *strings.Builder, idx int) {
	n := &t.Nodes[idx]
	if idx != 0 && n.Type != TypeParrafo && n.Name != "" {
		sb.WriteString(n.Name)
		sb.WriteString("\n")
	}
	for _, f := range n.Content {
		if f.Child >= 0 {
			t.appendText(sb, f.Child)
		} else {
			sb.WriteString(f.Text)
			sb.WriteString("\n")
		}
	}
}

// Path returns the slash-joined ancestor names from the top of the tree down
// to (and including) the node, excluding the root.
func (t *Tree) Path(idx int) string {
	var parts []string
	for i := idx; i > 0; i = t.Nodes[i].Parent {
		if name := t.Nodes[i].Name; name != "" {
			parts = append(parts, name)
		}
	}
	// Reverse into root-first order.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// Walk visits every node in document order, root first.
func (t *Tree) Walk(fn func(idx int, n *Node)) {
	t.walk(0, fn)
}

func (t *Tree) walk(idx int, fn func(idx int, n *Node)) {
	fn(idx, &t.Nodes[idx])
	for _, f := range t.Nodes[idx].Content {
		if f.Child >= 0 {
			t.walk(f.Child, fn)
		}
	}
}

// ArticleIndexes returns the arena indexes of all article nodes in document
// order.
func (t *Tree) ArticleIndexes() []int {
	var out []int
	t.Walk(func(idx int, n *Node) {
		if n.Type.IsArticle() {
			out = append(out, idx)
		}
	})
	return out
}

// Validate checks the tree invariants: a single root at index 0 and levels
// strictly increasing along every path from the root.
func (t *Tree) Validate() error {
	if len(t.Nodes) == 0 || t.Nodes[0].Type != TypeRoot {
		return fmt.Errorf("tree %s: missing root node", t.DocID)
	}
	for i := 1; i < len(t.Nodes); i++ {
		n := &t.Nodes[i]
		if n.Type == TypeRoot {
			return fmt.Errorf("tree %s: duplicate root at index %d", t.DocID, i)
		}
		if n.Parent < 0 || n.Parent >= len(t.Nodes) {
			return fmt.Errorf("tree %s: node %s has invalid parent %d", t.DocID, n.ID, n.Parent)
		}
		if n.Level <= t.Nodes[n.Parent].Level {
			return fmt.Errorf("tree %s: node %s level %d not greater than parent level %d",
				t.DocID, n.ID, n.Level, t.Nodes[n.Parent].Level)
		}
	}
	return nil
}
