package openmeteo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// ResponseCache keeps decoded responses for a fixed TTL. Expired entries are
// dropped on access; there is no background sweeper.
type ResponseCache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
	now   func() time.Time
}

func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{store: map[string]cacheEntry{}, ttl: ttl, now: time.Now}
}

func (c *ResponseCache) Get(key string) (*Response, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.store, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry.response, true
}

func (c *ResponseCache) Set(key string, r *Response) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = cacheEntry{response: r, expiresAt: c.now().Add(c.ttl)}
}

func (c *ResponseCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// GenerateCacheKey hashes every query parameter into a fixed-size key.
func GenerateCacheKey(p QueryParams) string {
	keyStr := fmt.Sprintf("%.4f:%.4f:%s:%s:%s:%s:%s",
		p.City.Latitude, p.City.Longitude,
		p.Start.Format(dateLayout), p.End.Format(dateLayout),
		p.Model, p.Timezone, strings.Join(p.Variables, ","),
	)
	hash := sha256.Sum256([]byte(keyStr))
	return hex.EncodeToString(hash[:])
}
