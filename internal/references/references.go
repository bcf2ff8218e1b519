// Package references extracts legal citations from article text. A fixed
// set of priority-ordered patterns classifies each citation; spans accepted
// by a higher-priority pattern suppress overlapping matches from later
// ones. The extractor is pure and safe for concurrent use.
package references

// RefType classifies an extracted reference. The set is closed.
type RefType string

const (
	RefInternal          RefType = "internal"
	RefConstitution      RefType = "constitution"
	RefOrganicLaw        RefType = "organic_law"
	RefLaw               RefType = "law"
	RefRoyalDecreeLaw    RefType = "royal_decree_law"
	RefLegislativeDecree RefType = "legislative_decree"
	RefRoyalDecree       RefType = "royal_decree"
	RefOrder             RefType = "order"
	RefStatuteOfAutonomy RefType = "statute_of_autonomy"
	RefCode              RefType = "code"
	RefJudicial          RefType = "judicial"
	RefAbbreviated       RefType = "abbreviated"
	RefEULegislation     RefType = "eu_legislation"
	RefEUTreaty          RefType = "eu_treaty"
	RefUnknown           RefType = "unknown"
)

// ExtractedReference is one classified citation found in article text.
// StartPos and EndPos are byte offsets into the input.
type ExtractedReference struct {
	RawText             string
	Type                RefType
	ArticleNumber       string
	Apartado            string
	ArticleRange        string
	LawType             string
	LawNumber           string
	Abbreviation        string
	JudicialCourt       string
	IsExternal          bool
	ResolvedTargetDocID string
	StartPos            int
	EndPos              int
}
