package cache

import (
	"time"
)

// PageEntry represents a cached listing page.
type PageEntry struct {
	// Body is the page markup, already decoded to UTF-8
	Body []byte `json:"body"`

	// ETag for conditional requests (If-None-Match)
	ETag string `json:"etag,omitempty"`

	// LastModified from the portal's Last-Modified header
	LastModified time.Time `json:"last_modified"`

	// ContentType of the original response
	ContentType string `json:"content_type,omitempty"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// CachedAt is when the page was stored
	CachedAt time.Time `json:"cached_at"`

	// Expires is when the entry is evicted
	Expires time.Time `json:"expires"`
}

// IsExpired returns true if the entry has expired.
func (e *PageEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *PageEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
