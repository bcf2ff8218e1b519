package retriever

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mhanii/corolaria/internal/logging"
	"github.com/mhanii/corolaria/internal/norma"
)

const eurlexTextBase = "https://eur-lex.europa.eu/legal-content/ES/TXT"

// EURLexClient fetches EU legislation by CELEX number from the EUR-Lex text
// endpoint. The endpoint answers HTML; the client reduces it to a text
// surrogate delivered as a single versionless block.
type EURLexClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// NewEURLexClient creates a EUR-Lex client. An empty baseURL uses the
// public endpoint.
func NewEURLexClient(baseURL string) *EURLexClient {
	if baseURL == "" {
		baseURL = eurlexTextBase
	}
	return &EURLexClient{
		httpClient: newHTTPClient(),
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  defaultUserAgent,
	}
}

var (
	titleTagRe   = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	docBodyRe    = regexp.MustCompile(`(?is)<div[^>]+id="document1"[^>]*>(.*)`)
	scriptTagRe  = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	celexSectorR = regexp.MustCompile(`^3\d{4}(R|L|D)`)
)

// Fetch retrieves the consolidated text view for one CELEX number.
func (c *EURLexClient) Fetch(ctx context.Context, documentID string) (*RawDocument, error) {
	timer := logging.StartTimer(logging.CategoryRetriever, "EURLexClient.Fetch")
	defer timer.Stop()

	url := fmt.Sprintf("%s/?uri=CELEX:%s", c.baseURL, documentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build EUR-Lex request: %w", err)
	}
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
		return nil, fmt.Errorf("%w: reading EUR-Lex response: %v", ErrSourceUnavailable, err)
	}

	doc := decodeEURLex(documentID, string(body))
	if len(doc.Blocks) == 0 {
		return nil, fmt.Errorf("%w: EUR-Lex returned no text for %s", ErrDocumentNotFound, documentID)
	}
	logging.Retriever("Fetched CELEX %s: %d characters of text", documentID, len(doc.Blocks[0].Versions[0].Text))
	return doc, nil
}

// decodeEURLex reduces the HTML view to a single-block text surrogate.
func decodeEURLex(documentID, page string) *RawDocument {
	title := ""
	if m := titleTagRe.FindStringSubmatch(page); m != nil {
		title = strings.TrimSpace(StripMarkup(m[1]))
	}

	body := page
	if m := docBodyRe.FindStringSubmatch(page); m != nil {
		body = m[1]
	}
	body = scriptTagRe.ReplaceAllString(body, "")
	text := StripMarkup(body)

	meta := norma.Metadata{
		Titulo:  title,
		Tipo:    celexTipo(documentID),
		URLHTML: fmt.Sprintf("%s/?uri=CELEX:%s", eurlexTextBase, documentID),
		Source:  norma.SourceEURLex,
	}

	var blocks []norma.Block
	if text != "" {
		blocks = []norma.Block{{
			ID:    documentID + "-texto",
			Type:  "texto",
			Title: title,
			Versions: []norma.Version{{
				ID:            documentID,
				FechaVigencia: time.Time{},
				Text:          text,
			}},
		}}
	}

	return &RawDocument{
		ID:       documentID,
		Metadata: meta,
		Analysis: norma.Analysis{},
		Blocks:   blocks,
	}
}

// celexTipo derives the instrument type from the CELEX type letter.
func celexTipo(celex string) string {
	m := celexSectorR.FindStringSubmatch(celex)
	if m == nil {
		return ""
	}
	switch m[1] {
	case "R":
		return "Reglamento"
	case "L":
		return "Directiva"
	case "D":
		return "Decisión"
	}
	return ""
}
