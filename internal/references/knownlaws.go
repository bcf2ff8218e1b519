package references

import (
	"fmt"
	"strconv"
	"strings"
)

// Static resolution tables for frequently cited instruments. Abbreviations
// and (law type, law number) pairs map to BOE identifiers; EU citations
// resolve to CELEX numbers.

const (
	docConstitucion   = "BOE-A-1978-31229"
	docCodigoCivil    = "BOE-A-1889-4763"
	docCodigoPenal    = "BOE-A-1995-25444"
	docCodigoComercio = "BOE-A-1885-6627"
)

// knownAbbreviations maps citation shorthands to document ids.
var knownAbbreviations = map[string]string{
	"CE":     docConstitucion,
	"CC":     docCodigoCivil,
	"CP":     docCodigoPenal,
	"LEC":    "BOE-A-2000-323",   // Ley 1/2000, de Enjuiciamiento Civil
	"LECrim": "BOE-A-1882-6036",  // Ley de Enjuiciamiento Criminal
	"LOPJ":   "BOE-A-1985-12666", // LO 6/1985, del Poder Judicial
	"LJCA":   "BOE-A-1998-16718", // Ley 29/1998, jurisdicción contencioso-administrativa
	"LGT":    "BOE-A-2003-23186", // Ley 58/2003, General Tributaria
	"LPAC":   "BOE-A-2015-10565", // Ley 39/2015, procedimiento administrativo común
	"LRJSP":  "BOE-A-2015-10566", // Ley 40/2015, régimen jurídico del sector público
	"ET":     "BOE-A-2015-11430", // Estatuto de los Trabajadores (RDLeg 2/2015)
	"TRLGSS": "BOE-A-2015-11724", // texto refundido LGSS (RDLeg 8/2015)
}

// knownCodes maps named codes to document ids.
var knownCodes = map[string]string{
	"código civil":       docCodigoCivil,
	"código penal":       docCodigoPenal,
	"código de comercio": docCodigoComercio,
}

type lawKey struct {
	lawType RefType
	number  string
}

// knownLaws maps (type, number) pairs to document ids.
var knownLaws = map[lawKey]string{
	{RefLaw, "1/2000"}:                 "BOE-A-2000-323",
	{RefLaw, "29/1998"}:                "BOE-A-1998-16718",
	{RefLaw, "58/2003"}:                "BOE-A-2003-23186",
	{RefLaw, "39/2015"}:                "BOE-A-2015-10565",
	{RefLaw, "40/2015"}:                "BOE-A-2015-10566",
	{RefOrganicLaw, "10/1995"}:         docCodigoPenal,
	{RefOrganicLaw, "6/1985"}:          "BOE-A-1985-12666",
	{RefOrganicLaw, "3/2018"}:          "BOE-A-2018-16673",
	{RefOrganicLaw, "2/1979"}:          "BOE-A-1979-23709",
	{RefLegislativeDecree, "2/2015"}:   "BOE-A-2015-11430",
	{RefLegislativeDecree, "8/2015"}:   "BOE-A-2015-11724",
}

// ResolveLaw returns the document id for a (type, number) citation, or "".
func ResolveLaw(lawType RefType, number string) string {
	return knownLaws[lawKey{lawType, number}]
}

// ResolveAbbreviation returns the document id for a shorthand, or "".
func ResolveAbbreviation(abbr string) string {
	return knownAbbreviations[abbr]
}

// ResolveCode returns the document id for a named code, or "".
func ResolveCode(name string) string {
	return knownCodes[strings.ToLower(strings.TrimSpace(name))]
}

// ResolveCELEX builds the CELEX number for an EU citation:
// sector 3 (legislation) + 4-digit year + type letter + number padded to 4.
// Example: Reglamento (UE) 2016/679 -> 32016R0679.
func ResolveCELEX(instrument, number string) string {
	var letter string
	switch strings.ToLower(instrument) {
	case "reglamento":
		letter = "R"
	case "directiva":
		letter = "L"
	case "decisión", "decision":
		letter = "D"
	default:
		return ""
	}

	parts := strings.Split(number, "/")
	if len(parts) != 2 {
		return ""
	}

	// Either year/number (2016/679) or number/year (95/46). The four-digit
	// part is the year; two-digit years pivot at 1958.
	year, num := parts[0], parts[1]
	if len(year) != 4 {
		if len(num) == 4 {
			year, num = num, year
		} else {
			y, err := strconv.Atoi(year)
			if err != nil {
				return ""
			}
			if y >= 58 {
				year = "19" + parts[0]
			} else {
				year = "20" + parts[0]
			}
			num = parts[1]
		}
	}

	n, err := strconv.Atoi(num)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("3%s%s%04d", year, letter, n)
}
