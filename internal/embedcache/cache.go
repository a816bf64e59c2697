// Package embedcache implements the persistent, content-addressed
// embedding cache: a key/value store mapping (model, text) to a dense
// float32 vector, backed by SQLite in WAL mode. Reads run concurrently
// with each other; a write holds an exclusive lock while it commits.
package embedcache

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	"github.com/docrag/docrag/internal/xerrors"
)

// Cache is the persistent embedding cache described by the embedding
// cache store contract: one row per (model, text) key, compressed
// float32 payload, safe for concurrent readers with writes serialized
// under an internal mutex.
type Cache struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	hot    *lru.Cache[string, []float32]
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	closed bool

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats reports cache hit/miss bookkeeping. It is observability only
// and never changes search semantics.
type Stats struct {
	Hits   int64
	Misses int64
}

// Option configures a Cache at construction time.
type Option func(*cacheOptions)

type cacheOptions struct {
	hotSize int
}

// WithHotCacheSize sets the size of the in-process LRU layer placed in
// front of the SQLite store. Zero disables the hot layer.
func WithHotCacheSize(n int) Option {
	return func(o *cacheOptions) { o.hotSize = n }
}

func defaultOptions() *cacheOptions {
	return &cacheOptions{hotSize: 4096}
}

// Open creates or opens a cache store at path. An empty path opens an
// in-memory store, useful for tests.
func Open(path string, opts ...Option) (*Cache, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(cfg)
	}

	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, xerrors.New(xerrors.ErrCodeCacheIO, fmt.Sprintf("create cache dir %s", dir), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, xerrors.New(xerrors.ErrCodeCacheIO, "open cache store", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, xerrors.New(xerrors.ErrCodeCacheIO, "set cache pragma", err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS emb_cache (
		key   TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		dims  INTEGER NOT NULL,
		vec   BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_emb_cache_model ON emb_cache(model);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, xerrors.New(xerrors.ErrCodeCacheIO, "init cache schema", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		_ = db.Close()
		return nil, xerrors.New(xerrors.ErrCodeInternal, "init zstd encoder", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		return nil, xerrors.New(xerrors.ErrCodeInternal, "init zstd decoder", err)
	}

	c := &Cache{db: db, path: path, enc: enc, dec: dec}
	if cfg.hotSize > 0 {
		hot, err := lru.New[string, []float32](cfg.hotSize)
		if err != nil {
			_ = db.Close()
			return nil, xerrors.New(xerrors.ErrCodeInternal, "init hot cache", err)
		}
		c.hot = hot
	}
	return c, nil
}

// GetMany looks up one vector per input text under modelID. The result
// slice has one entry per input, nil where the key is absent or the
// stored entry is corrupt — a corrupt entry behaves as a miss, never
// an error.
func (c *Cache) GetMany(ctx context.Context, modelID string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return out, nil
	}

	for i, text := range texts {
		key := Key(modelID, text)

		if c.hot != nil {
			if v, ok := c.hot.Get(key); ok {
				out[i] = v
				c.hits.Add(1)
				continue
			}
		}

		var dims int
		var blob []byte
		err := c.db.QueryRowContext(ctx, `SELECT dims, vec FROM emb_cache WHERE key = ?`, key).Scan(&dims, &blob)
		switch {
		case err == sql.ErrNoRows:
			c.misses.Add(1)
			continue
		case err != nil:
			slog.Warn("embedcache_read_failed", slog.String("key", key), slog.String("error", err.Error()))
			c.misses.Add(1)
			continue
		}

		vec, decodeErr := c.decode(blob, dims)
		if decodeErr != nil {
			slog.Warn("embedcache_corrupt_entry", slog.String("key", key), slog.String("error", decodeErr.Error()))
			c.misses.Add(1)
			continue
		}

		out[i] = vec
		c.hits.Add(1)
		if c.hot != nil {
			c.hot.Add(key, vec)
		}
	}

	return out, nil
}

// PutMany idempotently upserts one row per (text, vector) pair under
// modelID, in a single committed batch. A failure of the backing
// store degrades to a no-op — callers must not treat cache writes as
// load-bearing for correctness.
func (c *Cache) PutMany(ctx context.Context, modelID string, texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return xerrors.New(xerrors.ErrCodeInternal, "texts/vectors length mismatch", nil)
	}
	if len(texts) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Warn("embedcache_write_failed", slog.String("error", err.Error()))
		return nil
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO emb_cache(key, model, dims, vec) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET dims = excluded.dims, vec = excluded.vec`)
	if err != nil {
		slog.Warn("embedcache_write_failed", slog.String("error", err.Error()))
		return nil
	}
	defer stmt.Close()

	for i, text := range texts {
		key := Key(modelID, text)
		blob := c.encode(vectors[i])
		if _, err := stmt.ExecContext(ctx, key, modelID, len(vectors[i]), blob); err != nil {
			slog.Warn("embedcache_write_failed", slog.String("key", key), slog.String("error", err.Error()))
			return nil
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Warn("embedcache_commit_failed", slog.String("error", err.Error()))
		return nil
	}

	if c.hot != nil {
		for i, text := range texts {
			c.hot.Add(Key(modelID, text), vectors[i])
		}
	}
	return nil
}

// Stats returns current hit/miss counters.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Close checkpoints the WAL and closes the underlying store.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_, _ = c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	_ = c.dec
	return c.db.Close()
}

// encode serializes a float32 vector to its on-disk compressed form.
func (c *Cache) encode(v []float32) []byte {
	raw := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(f))
	}
	return c.enc.EncodeAll(raw, nil)
}

// decode reverses encode, validating the decompressed length matches
// the declared dimension.
func (c *Cache) decode(blob []byte, dims int) ([]float32, error) {
	raw, err := c.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, err
	}
	if len(raw) != dims*4 {
		return nil, fmt.Errorf("decoded length %d does not match dims %d", len(raw), dims)
	}
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec, nil
}
