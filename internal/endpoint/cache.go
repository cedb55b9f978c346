package endpoint

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"
	_ "modernc.org/sqlite"

	"github.com/modelbench-ai/modelbench/engine/pkg/types"
)

// CachedClient is an LRU-evicting SQLite-backed cache decorator over a
// Generator. It is opt-in wiring for repeated runs against the same
// endpoint; the evaluation engine itself never caches.
type CachedClient struct {
	inner Generator
	db    *sql.DB
	maxMB int
}

// NewCachedClient opens (or creates) a response cache at dbPath and wraps
// inner. maxMB sets the maximum size in megabytes before LRU eviction
// triggers.
func NewCachedClient(inner Generator, dbPath string, maxMB int) (*CachedClient, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS generate_cache (
			call_hash   TEXT PRIMARY KEY,
			response    TEXT NOT NULL,
			created_at  INTEGER NOT NULL,
			accessed_at INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_generate_accessed ON generate_cache(accessed_at)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &CachedClient{inner: inner, db: db, maxMB: maxMB}, nil
}

// callHash returns the SHA-256 hex digest identifying one generate call.
func callHash(prompt string, stop []string, maxNewTokens int) string {
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(stop, "\x00")))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(maxNewTokens)))
	return hex.EncodeToString(h.Sum(nil))
}

// Generate returns a cached response when the identical call was seen
// before, otherwise calls the inner client and stores the result.
func (c *CachedClient) Generate(ctx context.Context, prompt string, stop []string, maxNewTokens int) (*types.RawResponse, error) {
	hash := callHash(prompt, stop, maxNewTokens)

	if cached, err := c.get(hash); err == nil && cached != nil {
		return cached, nil
	}

	resp, err := c.inner.Generate(ctx, prompt, stop, maxNewTokens)
	if err != nil {
		return nil, err
	}

	// Store is best-effort; a cache write failure never fails the call.
	_ = c.put(hash, resp)
	return resp, nil
}

// get retrieves a cached response. Returns (nil, nil) on cache miss.
func (c *CachedClient) get(hash string) (*types.RawResponse, error) {
	row := c.db.QueryRow(`SELECT response FROM generate_cache WHERE call_hash = ?`, hash)

	var encoded string
	if err := row.Scan(&encoded); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached response: %w", err)
	}

	var resp types.RawResponse
	if err := json.Unmarshal([]byte(encoded), &resp); err != nil {
		return nil, fmt.Errorf("decode cached response: %w", err)
	}

	// Update LRU timestamp
	_, _ = c.db.Exec(`UPDATE generate_cache SET accessed_at = ? WHERE call_hash = ?`, time.Now().UnixNano(), hash)

	return &resp, nil
}

// put stores a response, then evicts if over size limit.
func (c *CachedClient) put(hash string, resp *types.RawResponse) error {
	encoded, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	now := time.Now().UnixNano()
	if _, err := c.db.Exec(
		`INSERT INTO generate_cache(call_hash, response, created_at, accessed_at)
		 VALUES(?, ?, ?, ?)
		 ON CONFLICT(call_hash) DO UPDATE SET response=excluded.response, accessed_at=excluded.accessed_at`,
		hash, string(encoded), now, now,
	); err != nil {
		return fmt.Errorf("put response: %w", err)
	}

	return c.evictIfNeeded()
}

// Close releases the database connection.
func (c *CachedClient) Close() error {
	return c.db.Close()
}

func (c *CachedClient) evictIfNeeded() error {
	maxBytes := int64(c.maxMB) * 1024 * 1024

	row := c.db.QueryRow(`SELECT COALESCE(SUM(LENGTH(response) + 100), 0) FROM generate_cache`)
	var totalBytes int64
	if err := row.Scan(&totalBytes); err != nil {
		return fmt.Errorf("evict size check: %w", err)
	}

	if totalBytes <= maxBytes {
		return nil
	}

	rows, err := c.db.Query(`SELECT call_hash, LENGTH(response) + 100 FROM generate_cache ORDER BY accessed_at ASC`)
	if err != nil {
		return fmt.Errorf("evict query: %w", err)
	}
	defer rows.Close()

	type entry struct {
		hash string
		size int64
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.hash, &e.size); err != nil {
			return fmt.Errorf("evict scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("evict rows: %w", err)
	}

	for _, e := range entries {
		if totalBytes <= maxBytes {
			break
		}
		if _, err := c.db.Exec(`DELETE FROM generate_cache WHERE call_hash = ?`, e.hash); err != nil {
			return fmt.Errorf("evict delete: %w", err)
		}
		totalBytes -= e.size
	}

	return nil
}
