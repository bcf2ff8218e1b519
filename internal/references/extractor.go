package references

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mhanii/corolaria/internal/logging"
)

// patternClass couples one compiled pattern with its reference builder.
// Classes run in priority order; a span accepted by an earlier class
// suppresses any overlapping match from a later one.
type patternClass struct {
	re    *regexp.Regexp
	build func(current, text string, m []int) *ExtractedReference
}

var patternClasses = []patternClass{
	// 1. Article of an explicitly named external law.
	{
		re: regexp.MustCompile(`(?i)art[íi]culos?\s+(\d+(?:\.\d+)?)\s+(?:de\s+la\s+|del\s+|de\s+)` +
			`(Constituci[óo]n(?:\s+Espa[ñn]ola)?|C[óo]digo\s+(?:Civil|Penal|de\s+Comercio)|` +
			`Ley\s+Org[áa]nica\s+\d+/\d{4}|Ley\s+\d+/\d{4}|Estatuto\s+de\s+Autonom[íi]a(?:\s+de\s+\w+(?:\s+\w+)?)?)`),
		build: buildArticleOfLaw,
	},
	// 2. EU secondary legislation.
	{
		re: regexp.MustCompile(`(?i)\b(Directiva|Reglamento|Decisi[óo]n)\s+(?:\((?:UE|CE|CEE|Euratom)\)\s+)?` +
			`(?:n\.?[ºo]\s+)?(\d{1,4}/\d{1,4})`),
		build: buildEULegislation,
	},
	// 3. EU treaties.
	{
		re:    regexp.MustCompile(`\b(TFUE|TUE|Tratado de Funcionamiento de la Uni[óo]n Europea|Tratado de la Uni[óo]n Europea)\b`),
		build: buildEUTreaty,
	},
	// 4. Judicial decisions.
	{
		re:    regexp.MustCompile(`\b(STC|STSJ|STS|SAN|SAP|ATC|ATS)\s+(\d+/\d{4})(?:,\s+de\s+\d+\s+de\s+[a-záéíóú]+)?`),
		build: buildJudicial,
	},
	// 5. Full law citation.
	{
		re: regexp.MustCompile(`(?i)\b(Ley\s+Org[áa]nica|Real\s+Decreto-ley|Real\s+Decreto\s+Legislativo|` +
			`Real\s+Decreto|Decreto\s+Legislativo|Ley|Orden)\s+(?:[A-Z]{2,4}/)?(\d+/\d{4})` +
			`(?:,\s+de\s+\d+\s+de\s+[a-záéíóú]+(?:\s+de\s+\d{4})?)?`),
		build: buildFullLaw,
	},
	// 6. Abbreviated citation, optionally with its article. The leading
	// character class stands in for a lookbehind: it keeps parenthesized
	// tokens like (CE) from matching.
	{
		re: regexp.MustCompile(`(?:^|[\s,;:])(?:(?i:art[íi]culo)\s+(\d+(?:\.\d+)?)\s+(?:de\s+la\s+|del\s+|de\s+)?)?` +
			`(CE|CC|CP|LECrim|LEC|LOPJ|LJCA|LGT|LPAC|LRJSP|ET|TRLGSS)\b`),
		build: buildAbbreviated,
	},
	// 7. Cited back-reference without its own number.
	{
		re: regexp.MustCompile(`(?i)la\s+(?:citada|mencionada|referida)\s+` +
			`(Ley\s+Org[áa]nica|Ley|Real\s+Decreto|Orden)(?:\s+(\d+/\d{4}))?`),
		build: buildCitedBack,
	},
	// 8. Internal references: ranges, lists, relative forms, singles.
	{
		re:    regexp.MustCompile(`(?i)art[íi]culos\s+(\d+)\s+a(?:l)?\s+(\d+)(?:\s+de\s+(?:esta|la\s+presente)\s+Ley)?`),
		build: buildInternalRange,
	},
	{
		re:    regexp.MustCompile(`(?i)art[íi]culos\s+(\d+(?:\s*,\s*\d+)*\s+y\s+\d+)(?:\s+de\s+(?:esta|la\s+presente)\s+Ley)?`),
		build: buildInternalList,
	},
	{
		re:    regexp.MustCompile(`(?i)art[íi]culo\s+(anterior|siguiente)\b`),
		build: buildInternalRelative,
	},
	{
		re: regexp.MustCompile(`(?i)art[íi]culo\s+(\d+)(?:\.(\d+))?` +
			`(?:\s+(bis|ter|qu[áa]ter|quinquies|sexies|septies|octies|nonies|decies))?` +
			`(?:\s+de\s+(?:esta|la\s+presente)\s+Ley)?`),
		build: buildInternalSingle,
	},
}

// Extractor extracts and classifies citations. It carries no per-call
// state; one instance can serve all workers.
type Extractor struct{}

// NewExtractor creates an extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

type span struct{ start, end int }

func overlaps(accepted []span, s, e int) bool {
	for _, a := range accepted {
		if s < a.end && e > a.start {
			return true
		}
	}
	return false
}

// Extract returns the references found in text, ordered by position.
// currentArticleNumber is the clean number of the article being scanned;
// relative forms ("artículo anterior") resolve against it.
func (x *Extractor) Extract(text, currentArticleNumber string) []ExtractedReference {
	var refs []ExtractedReference
	var accepted []span

	for _, class := range patternClasses {
		for _, m := range class.re.FindAllStringSubmatchIndex(text, -1) {
			ref := class.build(currentArticleNumber, text, m)
			if ref == nil {
				continue
			}
			if overlaps(accepted, ref.StartPos, ref.EndPos) {
				continue
			}
			accepted = append(accepted, span{ref.StartPos, ref.EndPos})
			if ref.IsExternal && ref.ResolvedTargetDocID == "" {
				logging.ReferencesDebug("Unresolved external reference %q (%s)", ref.RawText, ref.Type)
			}
			refs = append(refs, *ref)
		}
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].StartPos < refs[j].StartPos })
	return refs
}

// group returns one submatch of an index-form match, or "".
func group(text string, m []int, i int) string {
	if 2*i+1 >= len(m) || m[2*i] < 0 {
		return ""
	}
	return text[m[2*i]:m[2*i+1]]
}

func newRef(text string, m []int, typ RefType) *ExtractedReference {
	return &ExtractedReference{
		RawText:  text[m[0]:m[1]],
		Type:     typ,
		StartPos: m[0],
		EndPos:   m[1],
	}
}

func buildArticleOfLaw(_, text string, m []int) *ExtractedReference {
	law := group(text, m, 2)
	lower := strings.ToLower(law)

	var ref *ExtractedReference
	switch {
	case strings.HasPrefix(lower, "constitución") || strings.HasPrefix(lower, "constitucion"):
		ref = newRef(text, m, RefConstitution)
		ref.ResolvedTargetDocID = docConstitucion
	case strings.HasPrefix(lower, "código") || strings.HasPrefix(lower, "codigo"):
		ref = newRef(text, m, RefCode)
		ref.ResolvedTargetDocID = ResolveCode(law)
	case strings.HasPrefix(lower, "ley orgánica") || strings.HasPrefix(lower, "ley organica"):
		ref = newRef(text, m, RefOrganicLaw)
		ref.LawType = "Ley Orgánica"
		ref.LawNumber = lawNumberIn(law)
		ref.ResolvedTargetDocID = ResolveLaw(RefOrganicLaw, ref.LawNumber)
	case strings.HasPrefix(lower, "ley"):
		ref = newRef(text, m, RefLaw)
		ref.LawType = "Ley"
		ref.LawNumber = lawNumberIn(law)
		ref.ResolvedTargetDocID = ResolveLaw(RefLaw, ref.LawNumber)
	default:
		ref = newRef(text, m, RefStatuteOfAutonomy)
	}
	ref.ArticleNumber = group(text, m, 1)
	ref.IsExternal = true
	return ref
}

var lawNumberRe = regexp.MustCompile(`\d+/\d{4}`)

func lawNumberIn(s string) string {
	return lawNumberRe.FindString(s)
}

func buildEULegislation(_, text string, m []int) *ExtractedReference {
	ref := newRef(text, m, RefEULegislation)
	ref.LawType = group(text, m, 1)
	ref.LawNumber = group(text, m, 2)
	ref.IsExternal = true
	ref.ResolvedTargetDocID = ResolveCELEX(ref.LawType, ref.LawNumber)
	return ref
}

func buildEUTreaty(_, text string, m []int) *ExtractedReference {
	ref := newRef(text, m, RefEUTreaty)
	ref.Abbreviation = group(text, m, 1)
	ref.IsExternal = true
	return ref
}

func buildJudicial(_, text string, m []int) *ExtractedReference {
	ref := newRef(text, m, RefJudicial)
	ref.JudicialCourt = group(text, m, 1)
	ref.LawNumber = group(text, m, 2)
	ref.IsExternal = true
	return ref
}

func lawTypeFor(keyword string) (RefType, string) {
	switch strings.ToLower(strings.Join(strings.Fields(keyword), " ")) {
	case "ley orgánica", "ley organica":
		return RefOrganicLaw, "Ley Orgánica"
	case "real decreto-ley":
		return RefRoyalDecreeLaw, "Real Decreto-ley"
	case "real decreto legislativo":
		return RefLegislativeDecree, "Real Decreto Legislativo"
	case "decreto legislativo":
		return RefLegislativeDecree, "Decreto Legislativo"
	case "real decreto":
		return RefRoyalDecree, "Real Decreto"
	case "orden":
		return RefOrder, "Orden"
	default:
		return RefLaw, "Ley"
	}
}

func buildFullLaw(_, text string, m []int) *ExtractedReference {
	typ, canonical := lawTypeFor(group(text, m, 1))
	ref := newRef(text, m, typ)
	ref.LawType = canonical
	ref.LawNumber = group(text, m, 2)
	ref.IsExternal = true
	ref.ResolvedTargetDocID = ResolveLaw(typ, ref.LawNumber)
	if ref.ResolvedTargetDocID == "" && typ == RefRoyalDecreeLaw {
		// Decreto-ley numbers are often cited under the refundido's key.
		ref.ResolvedTargetDocID = ResolveLaw(RefLegislativeDecree, ref.LawNumber)
	}
	return ref
}

func buildAbbreviated(_, text string, m []int) *ExtractedReference {
	// The span starts at the article keyword when present, else at the
	// abbreviation itself; the leading boundary character is not part of it.
	start := m[0]
	if start < m[1] {
		switch text[start] {
		case ' ', ',', ';', ':', '\t', '\n':
			start++
		}
	}
	if m[2] < 0 {
		start = m[4]
	}

	ref := &ExtractedReference{
		RawText:       text[start:m[1]],
		Type:          RefAbbreviated,
		ArticleNumber: group(text, m, 1),
		Abbreviation:  group(text, m, 2),
		IsExternal:    true,
		StartPos:      start,
		EndPos:        m[1],
	}
	ref.ResolvedTargetDocID = ResolveAbbreviation(ref.Abbreviation)
	return ref
}

func buildCitedBack(_, text string, m []int) *ExtractedReference {
	typ, canonical := lawTypeFor(group(text, m, 1))
	ref := newRef(text, m, typ)
	ref.LawType = canonical
	ref.LawNumber = group(text, m, 2)
	ref.IsExternal = true
	if ref.LawNumber != "" {
		ref.ResolvedTargetDocID = ResolveLaw(typ, ref.LawNumber)
	}
	return ref
}

func buildInternalRange(_, text string, m []int) *ExtractedReference {
	ref := newRef(text, m, RefInternal)
	ref.ArticleRange = group(text, m, 1) + "-" + group(text, m, 2)
	return ref
}

func buildInternalList(_, text string, m []int) *ExtractedReference {
	ref := newRef(text, m, RefInternal)
	list := group(text, m, 1)
	list = strings.ReplaceAll(list, " y ", ",")
	var nums []string
	for _, part := range strings.Split(list, ",") {
		if part = strings.TrimSpace(part); part != "" {
			nums = append(nums, part)
		}
	}
	ref.ArticleRange = strings.Join(nums, ",")
	return ref
}

func buildInternalRelative(current, text string, m []int) *ExtractedReference {
	fields := strings.Fields(current)
	if len(fields) == 0 {
		logging.ReferencesDebug("Relative reference %q with no numeric context", text[m[0]:m[1]])
		return nil
	}
	base, err := strconv.Atoi(fields[0])
	if err != nil {
		logging.ReferencesDebug("Relative reference %q against non-numeric artículo %q", text[m[0]:m[1]], current)
		return nil
	}

	ref := newRef(text, m, RefInternal)
	if strings.EqualFold(group(text, m, 1), "anterior") {
		ref.ArticleNumber = strconv.Itoa(base - 1)
	} else {
		ref.ArticleNumber = strconv.Itoa(base + 1)
	}
	return ref
}

func buildInternalSingle(_, text string, m []int) *ExtractedReference {
	ref := newRef(text, m, RefInternal)
	ref.ArticleNumber = group(text, m, 1)
	if suffix := group(text, m, 3); suffix != "" {
		ref.ArticleNumber += " " + strings.ToLower(suffix)
	}
	ref.Apartado = group(text, m, 2)
	return ref
}
