package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mhanii/corolaria/internal/logging"
)

// ArchiveRetriever serves documents from a local directory of saved
// payloads, one JSON file per document id. Used for offline runs and test
// fixtures; raw BOE XML captures (<id>.xml) are also accepted.
type ArchiveRetriever struct {
	dir string
}

// NewArchiveRetriever creates a retriever over a fixture directory.
func NewArchiveRetriever(dir string) *ArchiveRetriever {
	return &ArchiveRetriever{dir: dir}
}

// Fetch loads <dir>/<id>.json, falling back to <dir>/<id>.xml.
func (a *ArchiveRetriever) Fetch(_ context.Context, documentID string) (*RawDocument, error) {
	jsonPath := filepath.Join(a.dir, documentID+".json")
	if data, err := os.ReadFile(jsonPath); err == nil {
		var doc RawDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: malformed archive payload %s: %v", ErrDocumentNotFound, jsonPath, err)
		}
		if doc.ID == "" {
			doc.ID = documentID
		}
		logging.Retriever("Loaded %s from archive", documentID)
		return &doc, nil
	}

	xmlPath := filepath.Join(a.dir, documentID+".xml")
	if data, err := os.ReadFile(xmlPath); err == nil {
		doc, err := decodeBOE(documentID, data)
		if err != nil {
			return nil, err
		}
		logging.Retriever("Loaded %s from archived XML", documentID)
		return doc, nil
	}

	return nil, fmt.Errorf("%w: %s not in archive %s", ErrDocumentNotFound, documentID, a.dir)
}
