package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mhanii/corolaria/internal/logging"
	"github.com/mhanii/corolaria/internal/norma"
)

// Compound block titles: "Artículos 4 a 6" (range), "Artículos 4, 5 y 7"
// (list), "Artículos 4 y 5" (pair).
var (
	compoundTitleRe = regexp.MustCompile(`^(?i)Art[íi]culos\s+(.+?)\.?$`)
	compoundRangeRe = regexp.MustCompile(`^(\d+)\s+a(?:l)?\s+(\d+)$`)
	compoundLeadRe  = regexp.MustCompile(`^(?i)Art[íi]culos\s+[^.\n]+\.?`)
)

// Preprocess expands compound article blocks onto their individual target
// articles and removes them from the block list. Single-article blocks pass
// through unchanged, in their original order.
func Preprocess(blocks []norma.Block) []norma.Block {
	// Index single-article blocks by clean number.
	byNumber := make(map[string]int)
	for i, b := range blocks {
		if compoundTitleRe.MatchString(b.Title) {
			continue
		}
		if n := norma.NormalizeArticleNumber(b.Title); n != "" {
			byNumber[n] = i
		}
	}

	// Expand compounds onto their targets first, then filter them out, so a
	// compound appearing before or after its targets behaves the same.
	for _, b := range blocks {
		m := compoundTitleRe.FindStringSubmatch(b.Title)
		if m == nil {
			continue
		}

		targets := expandCompoundTargets(m[1])
		if len(targets) == 0 {
			logging.ParserWarn("Compound block %q: no recognizable targets", b.Title)
			continue
		}

		for _, target := range targets {
			idx, ok := byNumber[target]
			if !ok {
				logging.ParserWarn("Compound block %q references missing artículo %s", b.Title, target)
				continue
			}
			for _, v := range b.Versions {
				clone := v
				clone.Text = retargetCompoundText(v.Text, target)
				blocks[idx].Versions = append(blocks[idx].Versions, clone)
			}
		}
		logging.ParserDebug("Expanded compound block %q onto %d articles", b.Title, len(targets))
	}

	out := make([]norma.Block, 0, len(blocks))
	for _, b := range blocks {
		if !compoundTitleRe.MatchString(b.Title) {
			out = append(out, b)
		}
	}
	return out
}

// expandCompoundTargets parses the number spec of a compound title into the
// list of referenced clean numbers.
func expandCompoundTargets(spec string) []string {
	spec = strings.TrimSpace(strings.TrimSuffix(spec, "."))

	if m := compoundRangeRe.FindStringSubmatch(spec); m != nil {
		from, _ := strconv.Atoi(m[1])
		to, _ := strconv.Atoi(m[2])
		if from > to || to-from > 500 {
			return nil
		}
		var targets []string
		for n := from; n <= to; n++ {
			targets = append(targets, strconv.Itoa(n))
		}
		return targets
	}

	// List and pair forms: split on commas and the final "y".
	spec = strings.ReplaceAll(spec, " y ", ", ")
	var targets []string
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n := norma.NormalizeArticleNumber("Artículo " + part); n != "" {
			targets = append(targets, n)
		}
	}
	return targets
}

// retargetCompoundText rewrites the leading compound header line of a cloned
// version so it names the single target article.
func retargetCompoundText(text, target string) string {
	replacement := fmt.Sprintf("Artículo %s.", target)
	if loc := compoundLeadRe.FindStringIndex(text); loc != nil && loc[0] == 0 {
		return replacement + text[loc[1]:]
	}
	return replacement + "\n" + text
}
