// Package auth guards the MedQuill API with static API keys.
//
// Keys arrive via configuration (comma-separated env var). With no keys
// configured the guard is disabled and the API is open — the expected
// posture for local development and single-tenant deployments behind a
// gateway. Key validation is constant-time; logs carry only a hash
// prefix of the presented key, never the key itself.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// APIKeys validates requests against a set of static keys. Keys can be
// rotated at runtime.
type APIKeys struct {
	mu   sync.RWMutex
	keys []string
}

// NewAPIKeys creates a guard over the given keys. Blank entries are
// dropped; an empty set disables the guard.
func NewAPIKeys(keys []string) *APIKeys {
	g := &APIKeys{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			g.keys = append(g.keys, k)
		}
	}
	return g
}

// Enabled reports whether any key is configured.
func (g *APIKeys) Enabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.keys) > 0
}

// Add registers a key at runtime.
func (g *APIKeys) Add(key string) {
	if key = strings.TrimSpace(key); key == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys = append(g.keys, key)
}

// Remove drops a key at runtime. Removing the last key opens the API.
func (g *APIKeys) Remove(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	kept := g.keys[:0]
	for _, k := range g.keys {
		if k != key {
			kept = append(kept, k)
		}
	}
	g.keys = kept
}

func (g *APIKeys) validate(candidate string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, k := range g.keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(k)) == 1 {
			return true
		}
	}
	return false
}

// Middleware rejects requests without a valid key when the guard is
// enabled. Accepted locations: Authorization: Bearer <key> or X-API-Key.
func (g *APIKeys) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		key := keyFromRequest(r)
		if key == "" {
			unauthorized(w, "API key required")
			return
		}
		if !g.validate(key) {
			hash := fmt.Sprintf("%x", sha256.Sum256([]byte(key)))
			log.Warn().Str("key_hash", hash[:12]).Str("path", r.URL.Path).Msg("Rejected invalid API key")
			unauthorized(w, "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func keyFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
