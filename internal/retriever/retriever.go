// Package retriever fetches raw legal documents from their sources: the BOE
// consolidated-legislation XML API for national documents, the EUR-Lex text
// endpoint for EU documents, and a local archive directory for offline runs.
// Retrieval is read-only; there is no caching at this layer.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/mhanii/corolaria/internal/norma"
)

// ErrDocumentNotFound is terminal: the source answered but has no such
// document. The orchestrator does not retry it.
var ErrDocumentNotFound = errors.New("document not found")

// ErrSourceUnavailable is transient: the source is unreachable or answered
// with a server error. The orchestrator retries the document once.
var ErrSourceUnavailable = errors.New("source unavailable")

// RawDocument is the source-shaped payload handed to the parser: flat
// metadata, classification analysis, and the raw content blocks with their
// versions.
type RawDocument struct {
	ID       string          `json:"id"`
	Metadata norma.Metadata  `json:"metadata"`
	Analysis norma.Analysis  `json:"analysis"`
	Blocks   []norma.Block   `json:"blocks"`
}

// Retriever fetches one document by its identifier.
type Retriever interface {
	Fetch(ctx context.Context, documentID string) (*RawDocument, error)
}

const defaultUserAgent = "corolaria-ingest/1.0"

// boeIDRe matches national identifiers like BOE-A-1995-25444.
var boeIDRe = regexp.MustCompile(`^BOE-[A-Z]-\d{4}-\d+$`)

// celexIDRe matches CELEX numbers like 32024R1689.
var celexIDRe = regexp.MustCompile(`^[0-9]\d{4}[A-Z]{1,2}\d{4}(\(\d{2}\))?$`)

// Router dispatches Fetch calls to the retriever matching the ID shape.
type Router struct {
	boe    Retriever
	eurlex Retriever
}

// NewRouter builds a router over the two source families.
func NewRouter(boe, eurlex Retriever) *Router {
	return &Router{boe: boe, eurlex: eurlex}
}

// Fetch routes by document ID shape: BOE-X-YYYY-N goes to the national
// client, CELEX digits go to EUR-Lex. Unrecognized shapes are terminal.
func (r *Router) Fetch(ctx context.Context, documentID string) (*RawDocument, error) {
	switch {
	case boeIDRe.MatchString(documentID):
		return r.boe.Fetch(ctx, documentID)
	case celexIDRe.MatchString(documentID):
		return r.eurlex.Fetch(ctx, documentID)
	default:
		return nil, fmt.Errorf("%w: unrecognized document id %q", ErrDocumentNotFound, documentID)
	}
}

// classifyStatus maps an HTTP status to the retriever error taxonomy.
// 404 is terminal; 5xx and 429 are transient; other 4xx are terminal.
func classifyStatus(status int, documentID string) error {
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: %s returned status %d", ErrSourceUnavailable, documentID, status)
	default:
		return fmt.Errorf("%w: %s returned status %d", ErrDocumentNotFound, documentID, status)
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}
