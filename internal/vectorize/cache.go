package vectorize

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Cache stores embeddings by content hash so re-embedding identical
// content is a no-op across runs.
type Cache interface {
	Get(ctx context.Context, contentHash, model string) ([]float32, bool, error)
	Put(ctx context.Context, contentHash, model string, vec []float32) error
	Close() error
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS embeddings (
	content_hash TEXT NOT NULL,
	model        TEXT NOT NULL,
	dims         INTEGER NOT NULL,
	vector       BLOB NOT NULL,
	created_at   TEXT NOT NULL,
	PRIMARY KEY (content_hash, model)
);
`

// SQLiteCache persists embeddings in a local sqlite database.
type SQLiteCache struct {
	db *sql.DB
}

var _ Cache = (*SQLiteCache)(nil)

// NewSQLiteCache opens (creating if needed) the embedding cache at path.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping embedding cache: %w", err)
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize embedding cache schema: %w", err)
	}

	return &SQLiteCache{db: db}, nil
}

// Get looks up a cached vector.
func (c *SQLiteCache) Get(ctx context.Context, contentHash, model string) ([]float32, bool, error) {
	var (
		dims int
		blob []byte
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT dims, vector FROM embeddings WHERE content_hash = ? AND model = ?`,
		contentHash, model,
	).Scan(&dims, &blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}

	vec, err := decodeVector(blob, dims)
	if err != nil {
		return nil, false, fmt.Errorf("cache entry for %s corrupt: %w", contentHash, err)
	}
	return vec, true, nil
}

// Put stores a vector, replacing any prior entry for the same key.
func (c *SQLiteCache) Put(ctx context.Context, contentHash, model string, vec []float32) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO embeddings (content_hash, model, dims, vector, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		contentHash, model, len(vec), encodeVector(vec), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}

// Clear drops every cached embedding.
func (c *SQLiteCache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM embeddings`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (c *SQLiteCache) Close() error { return c.db.Close() }

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte, dims int) ([]float32, error) {
	if len(blob) != dims*4 {
		return nil, fmt.Errorf("expected %d bytes, got %d", dims*4, len(blob))
	}
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}

// MemoryCache is a map-backed Cache for tests and cache-less runs.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string][]float32
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]float32)}
}

func (m *MemoryCache) Get(_ context.Context, contentHash, model string) ([]float32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vec, ok := m.entries[contentHash+"/"+model]
	return vec, ok, nil
}

func (m *MemoryCache) Put(_ context.Context, contentHash, model string, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[contentHash+"/"+model] = vec
	return nil
}

func (m *MemoryCache) Close() error { return nil }
