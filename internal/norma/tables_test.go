package norma

import (
	"strings"
	"testing"
)

func TestFlattenTableMarkdown(t *testing.T) {
	table := &Table{
		Headers: []string{"Concepto", "Importe"},
		Rows:    [][]string{{"Base", "100"}, {"IVA", "21"}},
	}
	out := FlattenTable(table, TableMarkdown)
	if !strings.HasPrefix(out, "| Concepto | Importe |") {
		t.Errorf("unexpected header row: %q", out)
	}
	if !strings.Contains(out, "| Base | 100 |") {
		t.Errorf("missing data row: %q", out)
	}
}

func TestFlattenTableRaggedFallsBackToLines(t *testing.T) {
	table := &Table{
		Headers: []string{"A", "B"},
		Rows:    [][]string{{"solo"}},
	}
	out := FlattenTable(table, TableMarkdown)
	if strings.Contains(out, "|") {
		t.Errorf("ragged table should not render as markdown: %q", out)
	}
	if !strings.Contains(out, "solo") {
		t.Errorf("cell content lost: %q", out)
	}
}

func TestFlattenTableEmpty(t *testing.T) {
	if out := FlattenTable(nil, TableMarkdown); out != "" {
		t.Errorf("nil table produced %q", out)
	}
	if out := FlattenTable(&Table{}, TableLines); out != "" {
		t.Errorf("empty table produced %q", out)
	}
}
