// Package embedcache implements the content-addressed persistent cache for
// article embeddings. Keys are fingerprints over {provider, model, dims,
// task_type, text}; values are float32 vectors stored in a single SQLite
// file shared by all worker pools.
package embedcache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mhanii/corolaria/internal/logging"
)

// Key identifies one embedding request for fingerprinting.
type Key struct {
	Provider string
	Model    string
	Dims     int
	TaskType string
	Text     string
}

// Fingerprint returns the content-addressed cache key.
func (k Key) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%s\x00%s", k.Provider, k.Model, k.Dims, k.TaskType, k.Text)
	return hex.EncodeToString(h.Sum(nil))
}

// textHash is stored alongside the fingerprint for debugging cache contents
// without retaining full article text.
func (k Key) textHash() string {
	sum := sha256.Sum256([]byte(k.Text))
	return hex.EncodeToString(sum[:8])
}

// Cache is the persistent key→vector store. Safe for concurrent use.
type Cache struct {
	db   *sql.DB
	mu   sync.RWMutex
	dims int
}

// Open initializes the cache database at path with the configured dimension.
// Vectors cached under a different dimension are never returned.
func Open(path string, dims int) (*Cache, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "embedcache.Open")
	defer timer.Stop()

	if dims <= 0 {
		return nil, fmt.Errorf("embedding cache requires positive dimensions, got %d", dims)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.EmbeddingDebug("Failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.EmbeddingDebug("Failed to set journal_mode=WAL: %v", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		fingerprint TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		dims INTEGER NOT NULL,
		task_type TEXT NOT NULL,
		text_hash TEXT NOT NULL,
		vector BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_created ON embeddings(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	logging.Embedding("Embedding cache ready at %s (dims=%d)", path, dims)
	return &Cache{db: db, dims: dims}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}

// Get returns the cached vector for a key, or ok=false on a miss. A hit
// whose stored dimension differs from the configured dimension is a miss.
func (c *Cache) Get(key Key) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var blob []byte
	var dims int
	err := c.db.QueryRow(
		"SELECT vector, dims FROM embeddings WHERE fingerprint = ?", key.Fingerprint(),
	).Scan(&blob, &dims)
	if err != nil {
		if err != sql.ErrNoRows {
			logging.Get(logging.CategoryEmbedding).Warn("Cache read failed: %v", err)
		}
		return nil, false
	}
	if dims != c.dims || len(blob) != dims*4 {
		return nil, false
	}
	return decodeVector(blob), true
}

// Put stores a vector under the key's fingerprint. Once Put returns, a Get
// from any goroutine sees the value.
func (c *Cache) Put(key Key, vec []float32) error {
	if len(vec) != c.dims {
		return fmt.Errorf("vector dimension %d does not match cache dimension %d", len(vec), c.dims)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(`
		INSERT INTO embeddings (fingerprint, provider, model, dims, task_type, text_hash, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET vector = excluded.vector`,
		key.Fingerprint(), key.Provider, key.Model, key.Dims, key.TaskType, key.textHash(), encodeVector(vec))
	if err != nil {
		return fmt.Errorf("cache write failed: %w", err)
	}
	return nil
}

// Size returns the number of cached vectors.
func (c *Cache) Size() (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var n int64
	if err := c.db.QueryRow("SELECT COUNT(*) FROM embeddings").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// PruneOlderThan deletes entries created before the cutoff and reclaims
// space. Returns the number of pruned entries.
func (c *Cache) PruneOlderThan(age time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-age).UTC().Format("2006-01-02 15:04:05")
	res, err := c.db.Exec("DELETE FROM embeddings WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cache prune failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		if _, err := c.db.Exec("VACUUM"); err != nil {
			logging.EmbeddingDebug("Cache vacuum failed: %v", err)
		}
	}
	logging.Embedding("Pruned %d cache entries older than %v", n, age)
	return n, nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
