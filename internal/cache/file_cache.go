// Package cache provides a read-through file cache for read-only query
// results, keyed by normalized query text.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Entry is one cached query result.
type Entry struct {
	Key       string    `json:"key"`
	Query     string    `json:"query"`
	Result    string    `json:"result"`
	CreatedAt time.Time `json:"created_at"`
}

// FileCache stores query results as JSON blobs addressed by hashed key.
type FileCache struct {
	dir string
	ttl time.Duration
	mu  sync.Mutex
	now func() time.Time
}

// Option customizes a FileCache.
type Option func(*FileCache)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(c *FileCache) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns a cache rooted at dir with the given freshness window.
func New(dir string, ttl time.Duration, opts ...Option) *FileCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	c := &FileCache{
		dir: dir,
		ttl: ttl,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NormalizeQuery collapses whitespace and case so equivalent queries share
// a cache slot.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Get retrieves a fresh entry for the query, if present.
func (c *FileCache) Get(query string) (Entry, bool, error) {
	key := NormalizeQuery(query)
	if key == "" {
		return Entry{}, false, nil
	}
	path := c.pathFor(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, false, err
	}
	if c.now().Sub(entry.CreatedAt) > c.ttl {
		_ = os.Remove(path)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Set stores a query result.
func (c *FileCache) Set(query, result string) error {
	key := NormalizeQuery(query)
	if key == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	entry := Entry{
		Key:       key,
		Query:     query,
		Result:    result,
		CreatedAt: c.now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return os.WriteFile(c.pathFor(key), data, 0o644)
}

// Clear removes all cached entries.
func (c *FileCache) Clear() error {
	return os.RemoveAll(c.dir)
}

func (c *FileCache) pathFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".json")
}
