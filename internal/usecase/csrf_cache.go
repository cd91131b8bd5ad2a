package usecase

import (
	"sync"
	"time"
)

// CSRFTokenCache is the client-side companion to CSRFService for Go API
// consumers: it caches one issued token with a soft expiry shorter than the
// token's real lifetime, so callers re-fetch before the server would reject.
// It is an explicit injectable object with a testable clock rather than
// package-level mutable state.
type CSRFTokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	softTTL   time.Duration
	now       func() time.Time
}

// NewCSRFTokenCache builds a cache with the supplied soft TTL. A
// non-positive TTL defaults to half the server-side token lifetime.
func NewCSRFTokenCache(softTTL time.Duration) *CSRFTokenCache {
	if softTTL <= 0 {
		softTTL = DefaultCSRFTTL / 2
	}
	return &CSRFTokenCache{
		softTTL: softTTL,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (c *CSRFTokenCache) WithClock(clock func() time.Time) *CSRFTokenCache {
	if clock != nil {
		c.mu.Lock()
		c.now = clock
		c.mu.Unlock()
	}
	return c
}

// Get returns the cached token when it is still inside its soft expiry.
func (c *CSRFTokenCache) Get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" || !c.expiresAt.After(c.now()) {
		return "", false
	}
	return c.token, true
}

// Set stores a freshly issued token and stamps its soft expiry.
func (c *CSRFTokenCache) Set(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = token
	c.expiresAt = c.now().Add(c.softTTL)
}

// Clear drops the cached token; used after a verification failure before the
// one automatic retry with a freshly fetched token.
func (c *CSRFTokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = ""
	c.expiresAt = time.Time{}
}
