package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/mhanii/corolaria/internal/logging"
	"github.com/mhanii/corolaria/internal/norma"
)

var wsRe = regexp.MustCompile(`\s+`)

// normalizeText collapses whitespace so formatting-only differences do not
// count as modifications.
func normalizeText(s string) string {
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

// textDiffers reports whether two normalized texts differ, using the diff
// engine so the changes log can carry a character-level count.
func textDiffers(oldText, newText string) bool {
	a, b := normalizeText(oldText), normalizeText(newText)
	if a == b {
		return false
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	changed := 0
	for _, d := range diffs {
		if d.Type != diffmatchpatch.DiffEqual {
			changed += len(d.Text)
		}
	}
	logging.Changes("Text changed: %d characters differ", changed)
	return changed > 0
}

// ownText returns a node's direct text fragments, excluding child nodes.
func ownText(tree *norma.Tree, idx int) string {
	var sb strings.Builder
	for _, f := range tree.Nodes[idx].Content {
		if f.Child < 0 {
			sb.WriteString(f.Text)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// DiffArticles compares two versions of one article by structural recursion
// and returns the ordered change events between them. Children are matched
// by (node type, name); unmatched new children are additions, unmatched old
// children removals, and matched pairs with differing normalized text
// modifications. Deterministic: the same input pair always produces the
// same ordered event list, and diffing a node against itself produces none.
func DiffArticles(tree *norma.Tree, oldIdx, newIdx int, fromVersion, toVersion string) []norma.ChangeEvent {
	d := &differ{
		tree:        tree,
		fromVersion: fromVersion,
		toVersion:   toVersion,
		timestamp:   time.Now().UTC(),
	}
	d.compare(oldIdx, newIdx)
	return d.events
}

type differ struct {
	tree        *norma.Tree
	fromVersion string
	toVersion   string
	timestamp   time.Time
	events      []norma.ChangeEvent
}

func (d *differ) emit(nodeID string, kind norma.ChangeKind) {
	d.events = append(d.events, norma.ChangeEvent{
		ArticleID:   nodeID,
		Kind:        kind,
		FromVersion: d.fromVersion,
		ToVersion:   d.toVersion,
		Timestamp:   d.timestamp,
	})
}

// childKeys assigns each child a matching key: (type, name) for named
// nodes, (type, ordinal) for párrafos, whose generated names carry a
// document-wide counter and never line up across versions.
func childKeys(tree *norma.Tree, children []int) []string {
	keys := make([]string, len(children))
	parrafos := 0
	for i, c := range children {
		n := &tree.Nodes[c]
		if n.Type == norma.TypeParrafo {
			parrafos++
			keys[i] = fmt.Sprintf("%s|%d", n.Type, parrafos)
		} else {
			keys[i] = string(n.Type) + "|" + n.Name
		}
	}
	return keys
}

// compare recurses down the two subtrees in parallel.
func (d *differ) compare(oldIdx, newIdx int) {
	if oldIdx == newIdx {
		return
	}

	if textDiffers(ownText(d.tree, oldIdx), ownText(d.tree, newIdx)) {
		d.emit(d.tree.Nodes[newIdx].ID, norma.ChangeModified)
	}

	oldChildren := d.tree.Children(oldIdx)
	newChildren := d.tree.Children(newIdx)
	oldKeys := childKeys(d.tree, oldChildren)
	newKeys := childKeys(d.tree, newChildren)

	// Match old children by key; first unconsumed match wins.
	oldByKey := make(map[string][]int)
	for i, c := range oldChildren {
		oldByKey[oldKeys[i]] = append(oldByKey[oldKeys[i]], c)
	}

	matchedOld := make(map[int]bool)
	for i, c := range newChildren {
		key := newKeys[i]
		if candidates := oldByKey[key]; len(candidates) > 0 {
			match := candidates[0]
			oldByKey[key] = candidates[1:]
			matchedOld[match] = true
			d.compare(match, c)
		} else {
			d.emit(d.tree.Nodes[c].ID, norma.ChangeAdded)
		}
	}

	for _, c := range oldChildren {
		if !matchedOld[c] {
			d.emit(d.tree.Nodes[c].ID, norma.ChangeRemoved)
		}
	}
}
