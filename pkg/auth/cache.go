package auth

import (
	"sync"

	"golang.org/x/oauth2"
)

type cacheEntry struct {
	refreshToken string
	source       oauth2.TokenSource
}

// TokenCache keeps one reusable token source per user so projects sharing an
// owner reuse the same access credential within its lifetime. An entry is only
// served for the refresh credential it was built from.
type TokenCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func NewTokenCache() *TokenCache {
	return &TokenCache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached source for userID, or nil when absent or built from a
// different refresh credential.
func (c *TokenCache) Get(userID, refreshToken string) oauth2.TokenSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[userID]
	if !ok || e.refreshToken != refreshToken {
		return nil
	}
	return e.source
}

func (c *TokenCache) Set(userID, refreshToken string, source oauth2.TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = cacheEntry{refreshToken: refreshToken, source: source}
}

func (c *TokenCache) Remove(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

func (c *TokenCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
