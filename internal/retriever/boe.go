package retriever

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mhanii/corolaria/internal/logging"
	"github.com/mhanii/corolaria/internal/norma"
)

const boeAPIBase = "https://boe.es/datosabiertos/api/legislacion-consolidada/id"

// BOEClient fetches consolidated national legislation from the BOE open
// data API, which answers one XML document per identifier with metadata,
// analysis codes, and the versioned text blocks.
type BOEClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// NewBOEClient creates a BOE API client. An empty baseURL uses the public
// endpoint.
func NewBOEClient(baseURL string) *BOEClient {
	if baseURL == "" {
		baseURL = boeAPIBase
	}
	return &BOEClient{
		httpClient: newHTTPClient(),
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  defaultUserAgent,
	}
}

// XML shapes of the consolidated-legislation API response.

type boeResponse struct {
	XMLName xml.Name `xml:"response"`
	Data    boeData  `xml:"data"`
}

type boeData struct {
	Metadatos boeMetadatos `xml:"metadatos"`
	Analisis  boeAnalisis  `xml:"analisis"`
	Texto     boeTexto     `xml:"texto"`
}

type boeMetadatos struct {
	Identificador    string   `xml:"identificador"`
	Titulo           string   `xml:"titulo"`
	Rango            string   `xml:"rango"`
	FechaDisposicion string   `xml:"fecha_disposicion"`
	FechaPublicacion string   `xml:"fecha_publicacion"`
	Departamento     boeCoded `xml:"departamento"`
	Diario           string   `xml:"diario"`
	NumeroOficial    string   `xml:"numero_oficial"`
	URLHTML          string   `xml:"url_html_consolidada"`
	URLELI           string   `xml:"url_eli"`
}

type boeCoded struct {
	Codigo string `xml:"codigo,attr"`
	Texto  string `xml:",chardata"`
}

type boeAnalisis struct {
	Materias []boeCoded `xml:"materias>materia"`
}

type boeTexto struct {
	Bloques []boeBloque `xml:"bloque"`
}

type boeBloque struct {
	ID        string       `xml:"id,attr"`
	Tipo      string       `xml:"tipo,attr"`
	Titulo    string       `xml:"titulo,attr"`
	Versiones []boeVersion `xml:"version"`
}

type boeVersion struct {
	IDNorma       string `xml:"id_norma,attr"`
	FechaVigencia string `xml:"fecha_vigencia,attr"`
	Contenido     string `xml:",innerxml"`
}

// Fetch retrieves and decodes one consolidated document.
func (c *BOEClient) Fetch(ctx context.Context, documentID string) (*RawDocument, error) {
	timer := logging.StartTimer(logging.CategoryRetriever, "BOEClient.Fetch")
	defer timer.Stop()

	url := fmt.Sprintf("%s/%s", c.baseURL, documentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build BOE request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, documentID)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading BOE response: %v", ErrSourceUnavailable, err)
	}

	doc, err := decodeBOE(documentID, body)
	if err != nil {
		return nil, err
	}
	logging.Retriever("Fetched %s: %d blocks", documentID, len(doc.Blocks))
	return doc, nil
}

// decodeBOE maps the API response onto the source-shaped document.
func decodeBOE(documentID string, payload []byte) (*RawDocument, error) {
	var resp boeResponse
	if err := xml.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed BOE payload for %s: %v", ErrDocumentNotFound, documentID, err)
	}

	m := resp.Data.Metadatos
	meta := norma.Metadata{
		Titulo:           strings.TrimSpace(m.Titulo),
		Tipo:             strings.TrimSpace(m.Rango),
		FechaDisposicion: parseBOEDate(m.FechaDisposicion),
		FechaPublicacion: parseBOEDate(m.FechaPublicacion),
		Departamento: norma.Classification{
			Codigo: m.Departamento.Codigo,
			Texto:  strings.TrimSpace(m.Departamento.Texto),
		},
		Diario:        strings.TrimSpace(m.Diario),
		NumeroOficial: strings.TrimSpace(m.NumeroOficial),
		URLHTML:       strings.TrimSpace(m.URLHTML),
		URLELI:        strings.TrimSpace(m.URLELI),
		Source:        norma.SourceBOE,
	}

	var materias []norma.Classification
	for _, mat := range resp.Data.Analisis.Materias {
		materias = append(materias, norma.Classification{
			Codigo: mat.Codigo,
			Texto:  strings.TrimSpace(mat.Texto),
		})
	}

	blocks := make([]norma.Block, 0, len(resp.Data.Texto.Bloques))
	for _, b := range resp.Data.Texto.Bloques {
		block := norma.Block{
			ID:    b.ID,
			Type:  b.Tipo,
			Title: strings.TrimSpace(b.Titulo),
		}
		for _, v := range b.Versiones {
			block.Versions = append(block.Versions, norma.Version{
				ID:            v.IDNorma,
				FechaVigencia: parseBOEDate(v.FechaVigencia),
				Text:          StripMarkup(v.Contenido),
			})
		}
		blocks = append(blocks, block)
	}

	return &RawDocument{
		ID:       documentID,
		Metadata: meta,
		Analysis: norma.Analysis{Materias: materias},
		Blocks:   blocks,
	}, nil
}

// parseBOEDate accepts the two date formats the API emits: compact
// (20150702) and dashed (2015-07-02). Unparseable values become zero times.
func parseBOEDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"20060102", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	logging.ParserWarn("Unparseable BOE date %q", s)
	return time.Time{}
}

var (
	blockTagRe = regexp.MustCompile(`(?i)</(p|div|tr|li|h[1-6]|blockquote)>`)
	brTagRe    = regexp.MustCompile(`(?i)<br\s*/?>`)
	anyTagRe   = regexp.MustCompile(`<[^>]*>`)
	multiNLRe  = regexp.MustCompile(`\n{3,}`)
	spaceRe    = regexp.MustCompile(`\s+`)

	tableRe = regexp.MustCompile(`(?is)<table[^>]*>.*?</table>`)
	rowRe   = regexp.MustCompile(`(?is)<tr[^>]*>(.*?)</tr>`)
	cellRe  = regexp.MustCompile(`(?is)<t([dh])[^>]*>(.*?)</t[dh]>`)
)

// StripMarkup flattens the API's HTML-ish block content to plain text.
// Block-closing tags become newlines so that line-based level detection
// still sees one header or paragraph per line. Tables are parsed first and
// flattened whole, so cell texts keep their boundaries.
func StripMarkup(s string) string {
	s = flattenTables(s)
	s = brTagRe.ReplaceAllString(s, "\n")
	s = blockTagRe.ReplaceAllString(s, "\n")
	s = anyTagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = multiNLRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// flattenTables replaces every <table> block with its plain-text rendering.
// A first row of <th> cells becomes the header row; the rest are data rows.
func flattenTables(s string) string {
	return tableRe.ReplaceAllStringFunc(s, func(block string) string {
		var table norma.Table
		for _, row := range rowRe.FindAllStringSubmatch(block, -1) {
			cells := cellRe.FindAllStringSubmatch(row[1], -1)
			if len(cells) == 0 {
				continue
			}
			texts := make([]string, len(cells))
			header := len(table.Headers) == 0 && len(table.Rows) == 0
			for i, cell := range cells {
				texts[i] = cellText(cell[2])
				if cell[1] != "h" && cell[1] != "H" {
					header = false
				}
			}
			if header {
				table.Headers = texts
			} else {
				table.Rows = append(table.Rows, texts)
			}
		}
		flat := norma.FlattenTable(&table, norma.TableMarkdown)
		if flat == "" {
			return "\n"
		}
		return "\n" + flat + "\n"
	})
}

// cellText strips any nested markup inside one table cell.
func cellText(s string) string {
	s = anyTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
