// Package linker runs the bulk reference-linking stage: after a batch has
// been persisted, it pages every article in the graph, extracts legal
// citations, resolves them to existing nodes, and merges the resulting
// REFERS_TO / DEROGATES / MODIFIES edges chunk by chunk.
package linker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mhanii/corolaria/internal/graph"
	"github.com/mhanii/corolaria/internal/logging"
	"github.com/mhanii/corolaria/internal/norma"
	"github.com/mhanii/corolaria/internal/references"
)

const dateLayout = "2006-01-02"

// BulkLinker pages articles in chunks across a small worker group. Edge
// merges are idempotent, so re-running over the same corpus produces the
// same edge set.
type BulkLinker struct {
	store     *graph.Store
	extractor *references.Extractor
	chunkSize int
	workers   int

	mu       sync.Mutex
	docCache map[string]bool // document-existence lookups
}

// New creates a bulk linker over the store.
func New(store *graph.Store, chunkSize, workers int) *BulkLinker {
	if chunkSize <= 0 {
		chunkSize = 5000
	}
	if workers <= 0 {
		workers = 6
	}
	return &BulkLinker{
		store:     store,
		extractor: references.NewExtractor(),
		chunkSize: chunkSize,
		workers:   workers,
		docCache:  make(map[string]bool),
	}
}

// Run links the whole corpus and returns the number of edges merged.
func (l *BulkLinker) Run(ctx context.Context) (int, error) {
	timer := logging.StartTimer(logging.CategoryLinker, "BulkLinker.Run")
	defer timer.Stop()

	row, err := l.store.RunQuerySingle(
		"SELECT COUNT(*) AS n FROM nodes WHERE label IN ('articulo', 'articulo_unico')")
	if err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	total := asInt(row["n"])
	if total == 0 {
		logging.Linker("No articles to link")
		return 0, nil
	}

	chunks := (total + l.chunkSize - 1) / l.chunkSize
	logging.Linker("Linking %d articles in %d chunks of %d across %d workers",
		total, chunks, l.chunkSize, l.workers)

	var edges atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)

	for c := 0; c < chunks; c++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := l.linkChunk(c)
			if err != nil {
				return err
			}
			edges.Add(int64(n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(edges.Load()), err
	}

	logging.Linker("Bulk linking done: %d edges", edges.Load())
	return int(edges.Load()), nil
}

// articleRow is the slice of article state the linker needs.
type articleRow struct {
	id       string
	docID    string
	clean    string
	fullText string
	vigencia time.Time
}

// linkChunk processes one page of articles and flushes its edges in a
// single batch merge.
func (l *BulkLinker) linkChunk(chunk int) (int, error) {
	rows, err := l.store.RunQuery(`
		SELECT id, document_id, clean_number, fecha_vigencia,
		       json_extract(props, '$.full_text') AS full_text
		FROM nodes
		WHERE label IN ('articulo', 'articulo_unico')
		ORDER BY id
		LIMIT ? OFFSET ?`, l.chunkSize, chunk*l.chunkSize)
	if err != nil {
		return 0, fmt.Errorf("failed to page articles for chunk %d: %w", chunk, err)
	}

	var batch []graph.EdgeRecord
	for _, r := range rows {
		art := articleRow{
			id:       asString(r["id"]),
			docID:    asString(r["document_id"]),
			clean:    asString(r["clean_number"]),
			fullText: asString(r["full_text"]),
			vigencia: parseDate(asString(r["fecha_vigencia"])),
		}
		if art.fullText == "" {
			continue
		}
		batch = append(batch, l.linkArticle(art)...)
	}

	if len(batch) == 0 {
		return 0, nil
	}
	if err := l.store.BatchMergeEdges(batch); err != nil {
		return 0, fmt.Errorf("failed to merge edges for chunk %d: %w", chunk, err)
	}
	logging.LinkerDebug("Chunk %d: %d edges from %d articles", chunk, len(batch), len(rows))
	return len(batch), nil
}

// linkArticle extracts references from one article and resolves them to
// edge records against existing nodes.
func (l *BulkLinker) linkArticle(art articleRow) []graph.EdgeRecord {
	refs := l.extractor.Extract(art.fullText, art.clean)

	var out []graph.EdgeRecord
	for _, ref := range refs {
		var targets []string

		switch {
		case !ref.IsExternal:
			for _, num := range internalTargets(ref) {
				if id := l.resolveArticle(art.docID, num, art.vigencia); id != "" {
					targets = append(targets, id)
				}
			}

		case ref.ResolvedTargetDocID != "":
			if !l.documentExists(ref.ResolvedTargetDocID) {
				continue
			}
			if ref.ArticleNumber != "" {
				if id := l.resolveArticle(ref.ResolvedTargetDocID, norma.NormalizeArticleNumber(ref.ArticleNumber), art.vigencia); id != "" {
					targets = append(targets, id)
					break
				}
			}
			// Article not found (or none cited): link to the document.
			targets = append(targets, ref.ResolvedTargetDocID)

		default:
			// Unresolved external: no edge. Already in the debug log.
			continue
		}

		edgeType := edgeTypeFor(art.fullText, ref)
		for _, target := range targets {
			if target == art.id {
				continue
			}
			out = append(out, graph.EdgeRecord{
				FromID: art.id,
				ToID:   target,
				Type:   edgeType,
				Props: map[string]interface{}{
					"raw_text": ref.RawText,
					"ref_type": string(ref.Type),
				},
			})
		}
	}
	return out
}

// internalTargets expands an internal reference into clean numbers: a
// single number, a closed range, or an enumerated list.
func internalTargets(ref references.ExtractedReference) []string {
	if ref.ArticleNumber != "" {
		return []string{norma.NormalizeArticleNumber(ref.ArticleNumber)}
	}
	if ref.ArticleRange == "" {
		return nil
	}

	if from, to, ok := strings.Cut(ref.ArticleRange, "-"); ok {
		lo, err1 := strconv.Atoi(from)
		hi, err2 := strconv.Atoi(to)
		if err1 != nil || err2 != nil || lo > hi || hi-lo > 500 {
			return nil
		}
		var nums []string
		for n := lo; n <= hi; n++ {
			nums = append(nums, strconv.Itoa(n))
		}
		return nums
	}

	var nums []string
	for _, part := range strings.Split(ref.ArticleRange, ",") {
		if part = strings.TrimSpace(part); part != "" {
			nums = append(nums, part)
		}
	}
	return nums
}

// resolveArticle finds the version of (doc, cleanNumber) that is valid at
// the referrer's fecha_vigencia: vigencia <= at < caducidad, a missing
// caducidad meaning the current version. Without a referrer date it falls
// back to the first match; with one, a target that is never valid at that
// date yields no edge.
func (l *BulkLinker) resolveArticle(docID, cleanNumber string, at time.Time) string {
	if cleanNumber == "" {
		return ""
	}
	rows, err := l.store.RunQuery(`
		SELECT id, fecha_vigencia, fecha_caducidad
		FROM nodes
		WHERE document_id = ? AND clean_number = ? AND label IN ('articulo', 'articulo_unico')
		ORDER BY fecha_vigencia`, docID, cleanNumber)
	if err != nil {
		logging.Get(logging.CategoryLinker).Warn("Article lookup failed for %s/%s: %v", docID, cleanNumber, err)
		return ""
	}
	if len(rows) == 0 {
		return ""
	}

	for _, r := range rows {
		vig := parseDate(asString(r["fecha_vigencia"]))
		cad := parseDate(asString(r["fecha_caducidad"]))
		if at.IsZero() || vig.IsZero() {
			if cad.IsZero() {
				return asString(r["id"])
			}
			continue
		}
		if !vig.After(at) && (cad.IsZero() || at.Before(cad)) {
			return asString(r["id"])
		}
	}
	if at.IsZero() {
		return asString(rows[0]["id"])
	}
	// Every version carries dates and none covers the referrer's date.
	return ""
}

// documentExists answers from the cache, falling back to the store.
func (l *BulkLinker) documentExists(docID string) bool {
	l.mu.Lock()
	exists, ok := l.docCache[docID]
	l.mu.Unlock()
	if ok {
		return exists
	}

	exists, err := l.store.NodeExists(docID)
	if err != nil {
		logging.Get(logging.CategoryLinker).Warn("Existence check failed for %s: %v", docID, err)
		return false
	}

	l.mu.Lock()
	l.docCache[docID] = exists
	l.mu.Unlock()
	return exists
}

// edgeTypeFor picks the edge type from the wording around the citation.
func edgeTypeFor(fullText string, ref references.ExtractedReference) string {
	start := ref.StartPos - 80
	if start < 0 {
		start = 0
	}
	window := strings.ToLower(fullText[start:ref.EndPos])
	switch {
	case strings.Contains(window, "derog"):
		return graph.EdgeDerogates
	case strings.Contains(window, "modific"):
		return graph.EdgeModifies
	default:
		return graph.EdgeRefersTo
	}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
