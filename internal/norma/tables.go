package norma

import "strings"

// Table is a parsed tabular structure from the source markup.
type Table struct {
	Headers []string
	Rows    [][]string
}

// TableStyle selects the text rendering used when a table is flattened into
// a node's content stream.
type TableStyle int

const (
	TableMarkdown TableStyle = iota
	TableLines
)

// FlattenTable renders a table as plain text so downstream embedding sees
// something meaningful. Markdown is the default; the lines style is the
// fallback for ragged tables.
func FlattenTable(t *Table, style TableStyle) string {
	if t == nil || (len(t.Headers) == 0 && len(t.Rows) == 0) {
		return ""
	}
	if style == TableMarkdown && uniform(t) {
		return flattenMarkdown(t)
	}
	return flattenLines(t)
}

// uniform reports whether every row has the header width.
func uniform(t *Table) bool {
	if len(t.Headers) == 0 {
		return false
	}
	for _, row := range t.Rows {
		if len(row) != len(t.Headers) {
			return false
		}
	}
	return true
}

func flattenMarkdown(t *Table) string {
	var sb strings.Builder
	sb.WriteString("| " + strings.Join(t.Headers, " | ") + " |\n")
	seps := make([]string, len(t.Headers))
	for i := range seps {
		seps[i] = "---"
	}
	sb.WriteString("| " + strings.Join(seps, " | ") + " |\n")
	for _, row := range t.Rows {
		sb.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func flattenLines(t *Table) string {
	var sb strings.Builder
	if len(t.Headers) > 0 {
		sb.WriteString(strings.Join(t.Headers, ": "))
		sb.WriteString("\n")
	}
	for _, row := range t.Rows {
		if len(t.Headers) == len(row) {
			pairs := make([]string, len(row))
			for i, cell := range row {
				pairs[i] = t.Headers[i] + ": " + cell
			}
			sb.WriteString(strings.Join(pairs, "; "))
		} else {
			sb.WriteString(strings.Join(row, "; "))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
