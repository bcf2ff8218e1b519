// Package graph implements the property graph store for ingested legislation
// on SQLite: batched node/edge merges, parameterized reads, the vector index
// over article embeddings, and the per-document cascade delete used by
// rollback.
package graph

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/mhanii/corolaria/internal/logging"
)

// Sentinel errors per the store failure taxonomy. Transient failures are
// retried by the caller with backoff; constraint violations are terminal for
// the offending document.
var (
	ErrStoreUnavailable    = errors.New("graph store unavailable")
	ErrConstraintViolation = errors.New("graph store constraint violation")
)

// NodeRecord is one node upsert bundle. Well-known props (document_id,
// clean_number, fecha_vigencia, fecha_caducidad) are lifted into indexed
// columns so the reference linker can resolve targets without JSON scans.
type NodeRecord struct {
	ID        string
	Label     string
	Props     map[string]interface{}
	Embedding []float32
}

// EdgeRecord is one edge upsert bundle.
type EdgeRecord struct {
	FromID string
	ToID   string
	Type   string
	Props  map[string]interface{}
}

// Store is the typed surface over the property graph. Safe for concurrent
// use; writes serialize on an internal mutex, reads share an RLock.
type Store struct {
	db        *sql.DB
	mu        sync.RWMutex
	dbPath    string
	vectorExt bool
	indexes   map[string]int // vector index name -> dimensions
}

// Open initializes the SQLite database at the given path. ":memory:" is
// supported for tests.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "graph.Open")
	defer timer.Stop()

	logging.Store("Opening graph store at %s", path)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create graph store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable foreign_keys: %v", err)
	}

	s := &Store{db: db, dbPath: path, indexes: make(map[string]int)}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	s.detectVecExtension()
	if s.vectorExt {
		logging.Store("sqlite-vec extension detected, ANN search enabled")
	} else {
		logging.Get(logging.CategoryStore).Warn("sqlite-vec extension not available; falling back to linear vector scan")
	}
	return s, nil
}

// initialize creates the node and edge tables.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		props TEXT NOT NULL DEFAULT '{}',
		document_id TEXT,
		clean_number TEXT,
		fecha_vigencia TEXT,
		fecha_caducidad TEXT,
		embedding BLOB,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_nodes_label ON nodes(label);
	CREATE INDEX IF NOT EXISTS idx_nodes_document ON nodes(document_id);
	CREATE INDEX IF NOT EXISTS idx_nodes_clean_number ON nodes(document_id, clean_number);

	CREATE TABLE IF NOT EXISTS edges (
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		type TEXT NOT NULL,
		props TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (from_id, to_id, type)
	);
	CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_id);
	CREATE INDEX IF NOT EXISTS idx_edges_type ON edges(type);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize graph schema: %w", mapSQLiteError(err))
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// DB exposes the raw handle for maintenance tooling and tests.
func (s *Store) DB() *sql.DB { return s.db }

// mapSQLiteError converts driver errors into the store taxonomy.
func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch serr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen, sqlite3.ErrIoErr:
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		case sqlite3.ErrConstraint:
			return fmt.Errorf("%w: %v", ErrConstraintViolation, err)
		}
	}
	return err
}

func stripLiftedProps(props map[string]interface{}) (docID, cleanNumber, vigencia, caducidad sql.NullString) {
	str := func(key string) sql.NullString {
		if v, ok := props[key]; ok {
			if sv, ok := v.(string); ok && sv != "" {
				return sql.NullString{String: sv, Valid: true}
			}
		}
		return sql.NullString{}
	}
	return str("document_id"), str("clean_number"), str("fecha_vigencia"), str("fecha_caducidad")
}

// MergeNode upserts a single node by id.
func (s *Store) MergeNode(rec NodeRecord) error {
	return s.BatchMergeNodes([]NodeRecord{rec})
}

// MergeEdge upserts a single edge.
func (s *Store) MergeEdge(rec EdgeRecord) error {
	return s.BatchMergeEdges([]EdgeRecord{rec})
}

// BatchMergeNodes upserts all records in a single transaction: either the
// whole batch commits or none of it is visible.
func (s *Store) BatchMergeNodes(recs []NodeRecord) error {
	if len(recs) == 0 {
		return nil
	}
	timer := logging.StartTimer(logging.CategoryStore, "BatchMergeNodes")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return mapSQLiteError(err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO nodes (id, label, props, document_id, clean_number, fecha_vigencia, fecha_caducidad, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			props = excluded.props,
			document_id = excluded.document_id,
			clean_number = excluded.clean_number,
			fecha_vigencia = excluded.fecha_vigencia,
			fecha_caducidad = excluded.fecha_caducidad,
			embedding = COALESCE(excluded.embedding, nodes.embedding)`)
	if err != nil {
		return mapSQLiteError(err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if rec.ID == "" || rec.Label == "" {
			return fmt.Errorf("%w: node record requires id and label", ErrConstraintViolation)
		}
		props := rec.Props
		if props == nil {
			props = map[string]interface{}{}
		}
		propsJSON, err := json.Marshal(props)
		if err != nil {
			return fmt.Errorf("failed to marshal node props for %s: %w", rec.ID, err)
		}
		docID, cleanNumber, vigencia, caducidad := stripLiftedProps(props)
		var emb interface{}
		if len(rec.Embedding) > 0 {
			emb = encodeVector(rec.Embedding)
		}
		if _, err := stmt.Exec(rec.ID, rec.Label, string(propsJSON), docID, cleanNumber, vigencia, caducidad, emb); err != nil {
			return mapSQLiteError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return mapSQLiteError(err)
	}
	logging.StoreDebug("Merged %d nodes", len(recs))
	return nil
}

// BatchMergeEdges upserts all edges in a single transaction.
func (s *Store) BatchMergeEdges(recs []EdgeRecord) error {
	if len(recs) == 0 {
		return nil
	}
	timer := logging.StartTimer(logging.CategoryStore, "BatchMergeEdges")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return mapSQLiteError(err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO edges (from_id, to_id, type, props)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(from_id, to_id, type) DO UPDATE SET props = excluded.props`)
	if err != nil {
		return mapSQLiteError(err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if rec.FromID == "" || rec.ToID == "" || rec.Type == "" {
			return fmt.Errorf("%w: edge record requires from, to, and type", ErrConstraintViolation)
		}
		props := rec.Props
		if props == nil {
			props = map[string]interface{}{}
		}
		propsJSON, err := json.Marshal(props)
		if err != nil {
			return fmt.Errorf("failed to marshal edge props: %w", err)
		}
		if _, err := stmt.Exec(rec.FromID, rec.ToID, rec.Type, string(propsJSON)); err != nil {
			return mapSQLiteError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return mapSQLiteError(err)
	}
	logging.StoreDebug("Merged %d edges", len(recs))
	return nil
}

// RunQuery executes a parameterized read and returns rows as column maps.
func (s *Store) RunQuery(query string, args ...interface{}) ([]map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runQueryLocked(query, args...)
}

// runQueryLocked assumes the caller holds at least s.mu.RLock.
func (s *Store) runQueryLocked(query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, mapSQLiteError(err)
	}

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, mapSQLiteError(err)
		}
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// RunQuerySingle executes a parameterized read and returns the first row,
// or nil when there is no match.
func (s *Store) RunQuerySingle(query string, args ...interface{}) (map[string]interface{}, error) {
	rows, err := s.RunQuery(query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// NodeExists reports whether a node id is present.
func (s *Store) NodeExists(id string) (bool, error) {
	row, err := s.RunQuerySingle("SELECT 1 AS one FROM nodes WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// Stats returns node/edge counters by label and type.
func (s *Store) Stats() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	rows, err := s.runQueryLocked("SELECT label, COUNT(*) AS n FROM nodes GROUP BY label")
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if n, ok := r["n"].(int64); ok {
			stats["nodes:"+fmt.Sprint(r["label"])] = n
		}
	}
	rows, err = s.runQueryLocked("SELECT type, COUNT(*) AS n FROM edges GROUP BY type")
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if n, ok := r["n"].(int64); ok {
			stats["edges:"+fmt.Sprint(r["type"])] = n
		}
	}
	return stats, nil
}
