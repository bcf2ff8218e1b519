// Package parser turns a retrieved document's raw content blocks into one
// typed content tree whose leaves are article nodes, folding multi-version
// articles into temporal chains and emitting change events between
// consecutive versions.
package parser

import (
	"regexp"

	"github.com/mhanii/corolaria/internal/norma"
)

// Structural depth of each recognized header kind. Levels must strictly
// increase along any root-to-leaf path.
const (
	levelLibro      = 0
	levelTitulo     = 1
	levelCapitulo   = 2
	levelSeccion    = 3
	levelSubseccion = 4
	levelArticulo   = 5
	levelApartado   = 6
	levelLetra      = 7
	levelOrdinalNum = 8
	levelOrdinalAlf = 9
	levelParrafo    = 10
)

// levelRule maps one header pattern to its depth and node type. The first
// capture group is the node name, the second the residual text on the line.
type levelRule struct {
	re    *regexp.Regexp
	level int
	typ   norma.NodeType
}

// levelRules is evaluated in order per line; the párrafo catch-all is last.
var levelRules = []levelRule{
	{regexp.MustCompile(`^(?i)(LIBRO\s+(?:PRELIMINAR|[ÚU]NICO|[IVXLCDM]+|[A-ZÁÉÍÓÚ]+))\.?\s*(.*)$`), levelLibro, norma.TypeLibro},
	{regexp.MustCompile(`^(?i)(T[ÍI]TULO\s+(?:PRELIMINAR|[ÚU]NICO|[IVXLCDM]+))\.?\s*(.*)$`), levelTitulo, norma.TypeTitulo},
	{regexp.MustCompile(`^(?i)(CAP[ÍI]TULO\s+(?:PRELIMINAR|[ÚU]NICO|[IVXLCDM]+))\.?\s*(.*)$`), levelCapitulo, norma.TypeCapitulo},
	{regexp.MustCompile(`^(?i)(SECCI[ÓO]N\s+\d+(?:\.?[ªº])?)\.?\s*(.*)$`), levelSeccion, norma.TypeSeccion},
	{regexp.MustCompile(`^(?i)(SUBSECCI[ÓO]N\s+\d+(?:\.?[ªº])?)\.?\s*(.*)$`), levelSubseccion, norma.TypeSubseccion},
	{regexp.MustCompile(`^(?i)(Art[íi]culo\s+[úu]nico)\.?\s*(.*)$`), levelArticulo, norma.TypeArticuloUnico},
	// Numeric article names first (with optional latin suffix and apartado
	// suffix), then written-out Spanish numbers up to the closing period.
	{regexp.MustCompile(`^(?i)(Art[íi]culo\s+\d+(?:\.\d+)*(?:\s+(?:bis|ter|qu[aá]ter|quinquies|sexies|septies|octies|nonies|decies|undecies|duodecies))?)\.?\s*(.*)$`), levelArticulo, norma.TypeArticulo},
	{regexp.MustCompile(`^(?i)(Art[íi]culo\s+[^.\n]+?)\.\s*(.*)$`), levelArticulo, norma.TypeArticulo},
	{regexp.MustCompile(`^(?i)(Disposici[óo]n\s+(?:adicional|transitoria|derogatoria|final)(?:\s+[a-záéíóúñ]+)*)\.?\s*(.*)$`), levelArticulo, norma.TypeDisposicion},
	{regexp.MustCompile(`^(?i)(ANEXO(?:\s+(?:[ÚU]NICO|[IVXLCDM]+|\d+))?)\.?\s*(.*)$`), levelArticulo, norma.TypeAnexo},
	{regexp.MustCompile(`^(\d+\.[ªº]|\d+[ªº])\s+(.*)$`), levelOrdinalNum, norma.TypeOrdinalNumerico},
	{regexp.MustCompile(`^(\d+(?:\.\d+)*)\.\s+(.*)$`), levelApartado, norma.TypeApartadoNumerico},
	{regexp.MustCompile(`^([a-zñ])\)\s+(.*)$`), levelLetra, norma.TypeApartadoAlfabetico},
	{regexp.MustCompile(`^([a-zñ]\.[ªº])\s+(.*)$`), levelOrdinalAlf, norma.TypeOrdinalAlfabetico},
}

// Detection is the classification of one input line.
type Detection struct {
	Level    int
	Type     norma.NodeType
	Name     string
	Residual string
}

// DetectLevel classifies a line against the ordered rule table. Lines that
// match no header rule come back as the párrafo catch-all.
func DetectLevel(line string) Detection {
	for _, rule := range levelRules {
		if m := rule.re.FindStringSubmatch(line); m != nil {
			return Detection{
				Level:    rule.level,
				Type:     rule.typ,
				Name:     m[1],
				Residual: m[2],
			}
		}
	}
	return Detection{Level: levelParrafo, Type: norma.TypeParrafo, Residual: line}
}
