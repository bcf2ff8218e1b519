package parser

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mhanii/corolaria/internal/logging"
	"github.com/mhanii/corolaria/internal/norma"
	"github.com/mhanii/corolaria/internal/retriever"
)

// Block types and titles that are known boilerplate: skipped silently.
var skipBlockTypes = map[string]bool{
	"firma":      true,
	"indice":     true,
	"portada":    true,
	"nota":       true,
	"encabezado": true,
}

// ParseDocument builds the Normativa for one retrieved document: preprocess
// compound blocks, build the typed tree block by block, fold multi-version
// articles into temporal chains, and collect change events between
// consecutive versions. Per-block errors are non-fatal: the block is
// skipped with a warning.
func ParseDocument(raw *retriever.RawDocument) (*norma.Normativa, []norma.ChangeEvent, error) {
	timer := logging.StartTimer(logging.CategoryParser, "ParseDocument")
	defer timer.Stop()

	b := newBuilder(raw.ID)
	blocks := Preprocess(raw.Blocks)

	for _, block := range blocks {
		if skipBlockTypes[strings.ToLower(block.Type)] {
			continue
		}
		if err := b.addBlock(block); err != nil {
			logging.ParserWarn("Skipping block %q of %s: %v", block.Title, raw.ID, err)
		}
	}
	b.finish()

	if err := b.tree.Validate(); err != nil {
		return nil, nil, fmt.Errorf("parsed tree is invalid: %w", err)
	}

	doc := &norma.Normativa{
		ID:       raw.ID,
		Metadata: raw.Metadata,
		Analysis: raw.Analysis,
		Tree:     b.tree,
	}
	logging.Parser("Parsed %s: %d nodes, %d articles, %d change events",
		raw.ID, len(b.tree.Nodes), len(b.tree.ArticleIndexes()), len(b.changes))
	return doc, b.changes, nil
}

// builder holds the stack-based build state for one document.
type builder struct {
	tree    *norma.Tree
	stack   []int
	changes []norma.ChangeEvent

	paraCounter int

	// Version id applied to article nodes created while parsing the
	// current version's text.
	currentVersionID string

	// Articles created while parsing the current version text, in order.
	created []int
}

func newBuilder(docID string) *builder {
	t := norma.NewTree(docID)
	return &builder{tree: t, stack: []int{t.Root()}}
}

func (b *builder) top() int { return b.stack[len(b.stack)-1] }

// popTo pops open nodes until the top's level is below the given level.
func (b *builder) popTo(level int) {
	for len(b.stack) > 1 && b.tree.Nodes[b.top()].Level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
}

// addBlock parses one block's versions into the tree. The first version is
// parsed in place; subsequent versions become sibling article nodes chained
// by fecha_caducidad, with change events recorded per adjacent pair.
func (b *builder) addBlock(block norma.Block) error {
	versions := append([]norma.Version(nil), block.Versions...)
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].FechaVigencia.Before(versions[j].FechaVigencia)
	})

	if len(versions) == 0 {
		// Structural blocks often carry their whole content in the title.
		if block.Title != "" {
			b.parseText(block.Title, norma.Version{})
		}
		return nil
	}

	prev := b.parseVersion(block, versions[0])

	for k := 1; k < len(versions); k++ {
		// Close the previous version's article before opening the next.
		b.popTo(levelArticulo)
		cur := b.parseVersion(block, versions[k])

		if prev >= 0 && cur >= 0 {
			vig := b.tree.Nodes[cur].Article.FechaVigencia
			b.tree.Nodes[prev].Article.FechaCaducidad = &vig
			b.changes = append(b.changes, DiffArticles(b.tree, prev, cur, versions[k-1].ID, versions[k].ID)...)
			prev = cur
		} else if cur >= 0 {
			prev = cur
		}
	}

	b.popTo(levelArticulo)
	return nil
}

// parseVersion parses one version's text and returns the arena index of the
// first article node it created, or -1.
func (b *builder) parseVersion(block norma.Block, v norma.Version) int {
	b.currentVersionID = v.ID
	b.created = b.created[:0]

	text := v.Text
	if block.Title != "" && !strings.HasPrefix(strings.TrimSpace(text), block.Title) {
		text = block.Title + ".\n" + text
	}
	b.parseText(text, v)

	if len(b.created) == 0 {
		return -1
	}
	return b.created[0]
}

// parseText runs the line loop over one version's text.
func (b *builder) parseText(text string, v norma.Version) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		det := DetectLevel(line)

		switch {
		case det.Type != norma.TypeParrafo:
			b.popTo(det.Level)
			name := det.Name
			if det.Level > levelArticulo {
				// Sub-article names are stored with underscores.
				name = strings.ReplaceAll(name, " ", "_")
			}
			idx := b.tree.NewNode(b.top(), det.Type, name, det.Level)
			if art := b.tree.Nodes[idx].Article; art != nil {
				art.CleanNumber = norma.NormalizeArticleNumber(det.Name)
				art.FechaVigencia = v.FechaVigencia
				art.IntroducedBy = b.currentVersionID
				b.created = append(b.created, idx)
			}
			b.stack = append(b.stack, idx)
			if det.Residual != "" {
				b.tree.AppendText(idx, det.Residual)
			}

		case b.tree.Nodes[b.top()].Type.IsArticle() || b.tree.Nodes[b.top()].Type == norma.TypeParrafo:
			b.paraCounter++
			idx := b.tree.NewNode(b.top(), norma.TypeParrafo,
				fmt.Sprintf("parrafo_%d", b.paraCounter), levelParrafo)
			b.tree.AppendText(idx, line)

		default:
			b.tree.AppendText(b.top(), line)
		}
	}
}

// finish closes all open nodes and materializes each article's full text.
func (b *builder) finish() {
	b.stack = b.stack[:1]
	for _, idx := range b.tree.ArticleIndexes() {
		b.tree.Nodes[idx].Article.FullText = b.tree.FullText(idx)
	}
}
