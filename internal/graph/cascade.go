package graph

import (
	"github.com/mhanii/corolaria/internal/logging"
)

// EdgePartOf links every content node to its owning document.
const EdgePartOf = "PART_OF"

// Classification edge types from document to shared nodes.
const (
	EdgeAbout    = "ABOUT"
	EdgeHasType  = "HAS_TYPE"
	EdgeIssuedBy = "ISSUED_BY"
)

// Reference edge types inserted by the bulk linker.
const (
	EdgeRefersTo  = "REFERS_TO"
	EdgeDerogates = "DEROGATES"
	EdgeModifies  = "MODIFIES"
)

// DeleteDocumentCascade removes every node owned by a document (reachable
// via PART_OF), the document node itself, and all edges touching any of
// them. Classification nodes shared with other documents are left intact
// because they are never owned via PART_OF. Idempotent: deleting an absent
// document is a no-op.
func (s *Store) DeleteDocumentCascade(docID string) (int64, error) {
	timer := logging.StartTimer(logging.CategoryStore, "DeleteDocumentCascade")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, mapSQLiteError(err)
	}
	defer tx.Rollback()

	// Content trees are persisted flat (every owned node carries the
	// document id and a PART_OF edge to it), so ownership is one lookup.
	const owned = `SELECT id FROM nodes WHERE document_id = ?`

	res, err := tx.Exec(`
		DELETE FROM edges
		WHERE from_id IN (`+owned+`) OR to_id IN (`+owned+`)
		   OR from_id = ? OR to_id = ?`,
		docID, docID, docID, docID)
	if err != nil {
		return 0, mapSQLiteError(err)
	}
	edgesDeleted, _ := res.RowsAffected()

	res, err = tx.Exec(`DELETE FROM nodes WHERE document_id = ? AND id != ?`, docID, docID)
	if err != nil {
		return 0, mapSQLiteError(err)
	}
	nodesDeleted, _ := res.RowsAffected()

	res, err = tx.Exec(`DELETE FROM nodes WHERE id = ?`, docID)
	if err != nil {
		return 0, mapSQLiteError(err)
	}
	docDeleted, _ := res.RowsAffected()

	if s.vectorExt {
		for name := range s.indexes {
			if _, err := tx.Exec(
				`DELETE FROM `+quoteIdent(name)+` WHERE node_id NOT IN (SELECT id FROM nodes)`); err != nil {
				return 0, mapSQLiteError(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, mapSQLiteError(err)
	}

	total := nodesDeleted + docDeleted
	logging.Store("Cascade delete %s: %d nodes, %d edges removed", docID, total, edgesDeleted)
	return total, nil
}
