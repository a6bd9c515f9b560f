package generator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/dmarin/chatrelay/internal/session"
)

const fingerprintHistoryDepth = 3

// fingerprint derives a deterministic cache key from the message text and the
// content of the last few history turns.
func fingerprint(message string, history []session.Turn) string {
	parts := []string{message}
	start := len(history) - fingerprintHistoryDepth
	if start < 0 {
		start = 0
	}
	for _, turn := range history[start:] {
		parts = append(parts, turn.Content)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

type cacheEntry struct {
	response string
	storedAt time.Time
}

// responseCache is a TTL-only cache for generated responses. Entries expire
// lazily on read; Sweep removes them proactively on a timer.
type responseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

func newResponseCache(ttl time.Duration) *responseCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &responseCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// Get returns the cached response when present and unexpired.
func (c *responseCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if time.Since(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		return "", false
	}
	return entry.response, true
}

// Put stores a generated response.
func (c *responseCache) Put(key, response string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{response: response, storedAt: time.Now()}
}

// Len reports the number of entries, expired ones included.
func (c *responseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes every expired entry and returns the count removed.
func (c *responseCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if time.Since(entry.storedAt) > c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps expired entries on a fixed interval until ctx is done.
func (c *responseCache) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}
