package norma

import (
	"regexp"
	"strconv"
	"strings"
)

// Latin repetition suffixes used for inserted articles ("Artículo 1 bis").
var latinSuffixes = map[string]bool{
	"bis": true, "ter": true, "quater": true, "quinquies": true,
	"sexies": true, "septies": true, "octies": true, "novies": true,
	"decies": true, "undecies": true, "duodecies": true,
}

var (
	articlePrefixRe = regexp.MustCompile(`(?i)^art(?:[íi]culos?|\.)\s*`)
	numericRe       = regexp.MustCompile(`^(\d+)(?:\.\d+)*(?:\s+([a-z]+))?`)
)

// Spanish cardinal words. Compound tens ("cincuenta y uno") and hundreds
// ("ciento veintisiete") are summed token by token.
var cardinalWords = map[string]int{
	"cero": 0, "un": 1, "uno": 1, "una": 1, "dos": 2, "tres": 3,
	"cuatro": 4, "cinco": 5, "seis": 6, "siete": 7, "ocho": 8, "nueve": 9,
	"diez": 10, "once": 11, "doce": 12, "trece": 13, "catorce": 14,
	"quince": 15, "dieciseis": 16, "diecisiete": 17, "dieciocho": 18,
	"diecinueve": 19, "veinte": 20, "veintiun": 21, "veintiuno": 21,
	"veintidos": 22, "veintitres": 23, "veinticuatro": 24, "veinticinco": 25,
	"veintiseis": 26, "veintisiete": 27, "veintiocho": 28, "veintinueve": 29,
	"treinta": 30, "cuarenta": 40, "cincuenta": 50, "sesenta": 60,
	"setenta": 70, "ochenta": 80, "noventa": 90,
	"cien": 100, "ciento": 100, "doscientos": 200, "trescientos": 300,
	"cuatrocientos": 400, "quinientos": 500, "seiscientos": 600,
	"setecientos": 700, "ochocientos": 800, "novecientos": 900,
	"mil": 1000,
}

// Spanish ordinal words, as used in disposiciones ("primera", "segunda"...).
var ordinalWords = map[string]int{
	"primero": 1, "primera": 1, "primer": 1,
	"segundo": 2, "segunda": 2,
	"tercero": 3, "tercera": 3, "tercer": 3,
	"cuarto": 4, "cuarta": 4,
	"quinto": 5, "quinta": 5,
	"sexto": 6, "sexta": 6,
	"septimo": 7, "septima": 7,
	"octavo": 8, "octava": 8,
	"noveno": 9, "novena": 9,
	"decimo": 10, "decima": 10,
	"undecimo": 11, "undecima": 11,
	"duodecimo": 12, "duodecima": 12,
	"vigesimo": 20, "vigesima": 20,
	"trigesimo": 30, "trigesima": 30,
}

var accentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u",
)

// NormalizeArticleNumber extracts the normalized article identifier from an
// article name. Accepted inputs include "Artículo 14", "Art. 1 bis",
// "Artículo 154.1" (apartado suffix dropped), written cardinals ("Artículo
// cincuenta y uno") and ordinals ("primera"). Underscore and space name forms
// are both accepted. Returns "" when no number can be derived.
//
// The function is idempotent: feeding its own output back returns the same
// value.
func NormalizeArticleNumber(name string) string {
	s := strings.TrimSpace(strings.ReplaceAll(name, "_", " "))
	s = articlePrefixRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// Leading integer, ignoring dot-separated apartado suffixes.
	if m := numericRe.FindStringSubmatch(s); m != nil {
		if m[2] != "" && latinSuffixes[strings.ToLower(m[2])] {
			return m[1] + " " + strings.ToLower(m[2])
		}
		return m[1]
	}

	lowered := accentReplacer.Replace(strings.ToLower(s))
	lowered = strings.TrimRight(lowered, ".")

	if n, ok := parseSpanishOrdinal(lowered); ok {
		return strconv.Itoa(n)
	}
	if n, ok := parseSpanishCardinal(lowered); ok {
		return strconv.Itoa(n)
	}
	return ""
}

// parseSpanishCardinal parses a written cardinal ("ciento veintisiete").
// Unknown tokens abort the parse; "y" joins tens and units.
func parseSpanishCardinal(s string) (int, bool) {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return 0, false
	}
	total := 0
	seen := false
	for _, tok := range tokens {
		if tok == "y" {
			continue
		}
		v, ok := cardinalWords[tok]
		if !ok {
			return 0, false
		}
		if v == 1000 && seen {
			// "dos mil" style multiplier.
			total *= 1000
		} else {
			total += v
		}
		seen = true
	}
	return total, seen
}

// parseSpanishOrdinal parses a written ordinal ("primera", "vigesimo
// segunda"). Compound ordinals sum their parts.
func parseSpanishOrdinal(s string) (int, bool) {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return 0, false
	}
	total := 0
	for _, tok := range tokens {
		v, ok := ordinalWords[tok]
		if !ok {
			// Fused forms like "decimotercera".
			if strings.HasPrefix(tok, "decimo") && len(tok) > len("decimo") {
				if rest, restOK := ordinalWords[tok[len("decimo"):]]; restOK {
					total += 10 + rest
					continue
				}
			}
			return 0, false
		}
		total += v
	}
	return total, total > 0
}

// ValidCleanNumber reports whether a clean number matches the canonical
// pattern: digits optionally followed by a latin repetition suffix.
func ValidCleanNumber(s string) bool {
	if s == "" {
		return true // null is allowed
	}
	parts := strings.SplitN(s, " ", 2)
	if _, err := strconv.Atoi(parts[0]); err != nil {
		return false
	}
	if len(parts) == 2 && !latinSuffixes[parts[1]] {
		return false
	}
	return true
}
