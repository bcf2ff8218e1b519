package norma

import (
	"strings"
	"testing"
)

func buildSampleTree(t *testing.T) *Tree {
	t.Helper()
	tr := NewTree("BOE-A-2000-1")
	titulo := tr.NewNode(tr.Root(), TypeTitulo, "Título I", 1)
	art := tr.NewNode(titulo, TypeArticulo, "Artículo 1", 5)
	tr.AppendText(art, "Texto del artículo primero.")
	par := tr.NewNode(art, TypeParrafo, "", 9)
	tr.AppendText(par, "Un párrafo adicional.")
	return tr
}

func TestTreeStructure(t *testing.T) {
	tr := buildSampleTree(t)

	if err := tr.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := len(tr.ArticleIndexes()); got != 1 {
		t.Fatalf("ArticleIndexes = %d, want 1", got)
	}

	art := tr.ArticleIndexes()[0]
	if tr.Nodes[art].Article == nil {
		t.Fatal("article node missing side record")
	}
	if got := tr.Path(art); got != "Título I/Artículo 1" {
		t.Errorf("Path = %q", got)
	}

	full := tr.FullText(art)
	if !strings.Contains(full, "Texto del artículo primero.") || !strings.Contains(full, "Un párrafo adicional.") {
		t.Errorf("FullText missing content: %q", full)
	}
}

func TestTreeValidateRejectsBadLevels(t *testing.T) {
	tr := NewTree("BOE-A-2000-2")
	idx := tr.NewNode(tr.Root(), TypeTitulo, "Título I", 1)
	tr.Nodes[idx].Level = -1 // same as root
	if err := tr.Validate(); err == nil {
		t.Fatal("expected level invariant violation")
	}
}

func TestNodeIDsAreUniqueAndPrefixed(t *testing.T) {
	tr := buildSampleTree(t)
	seen := make(map[string]bool)
	tr.Walk(func(_ int, n *Node) {
		if seen[n.ID] {
			t.Errorf("duplicate node id %s", n.ID)
		}
		seen[n.ID] = true
		if !strings.HasPrefix(n.ID, "BOE-A-2000-1") {
			t.Errorf("node id %s missing document prefix", n.ID)
		}
	})
}
