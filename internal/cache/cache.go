// Package cache provides the optional response cache consulted before a
// provider invoke and written after a successful gate pass.
//
// Keys are deterministic hashes of (task type, rendered prompt, tier) so
// concurrent identical requests converge on one provider call instead of
// duplicating spend. Both implementations are best-effort: any failure
// degrades to a cache miss.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/medquill/medquill/pipeline/pkg/models"
)

// Key derives the deterministic cache key for a request at a tier.
func Key(taskType, prompt string, tier models.ModelTier) string {
	h := sha256.New()
	h.Write([]byte(taskType))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write([]byte(tier))
	return "medquill:resp:" + hex.EncodeToString(h.Sum(nil))
}

// ── In-Memory Cache ─────────────────────────────────────────

type entry struct {
	resp      *models.AIInvocationResponse
	expiresAt time.Time
}

// MemoryCache is a TTL map for single-process deployments and tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]entry)}
}

// Get returns the cached response if present and unexpired.
func (c *MemoryCache) Get(ctx context.Context, key string) (*models.AIInvocationResponse, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.resp, true
}

// Set stores the response. Writing the same key twice is harmless: both
// writers hold equivalent responses by construction of the key.
func (c *MemoryCache) Set(ctx context.Context, key string, resp *models.AIInvocationResponse, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{resp: resp, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}
