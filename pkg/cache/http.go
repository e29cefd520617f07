package cache

import (
	"fmt"
	"net/http"
	"time"
)

const (
	// DefaultTTL is how long a page is kept when the portal sends no
	// usable Expires header
	DefaultTTL = 6 * time.Hour
)

// ResponseToEntry builds a PageEntry from a response and its decoded body.
// The entry lives until the response's Expires header, or for ttl when
// that header is missing or already past.
func ResponseToEntry(resp *http.Response, body []byte, ttl time.Duration) (*PageEntry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := time.Now()
	entry := &PageEntry{
		Body:        body,
		ETag:        resp.Header.Get("ETag"),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
		CachedAt:    now,
		Expires:     parseExpires(resp.Header, now, ttl),
	}

	if lastModStr := resp.Header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry, nil
}

// parseExpires returns the Expires header time, or now+ttl when it is
// missing, malformed or in the past.
func parseExpires(headers http.Header, now time.Time, ttl time.Duration) time.Time {
	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return now.Add(ttl)
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil || !expires.After(now) {
		return now.Add(ttl)
	}

	return expires
}

// ShouldRevalidate reports whether the entry carries a validator that lets
// the fetcher send a conditional request.
func ShouldRevalidate(entry *PageEntry) bool {
	if entry == nil {
		return false
	}
	return entry.ETag != "" || !entry.LastModified.IsZero()
}

// AddConditionalHeaders adds If-None-Match (ETag) or If-Modified-Since
// headers to the request.
func AddConditionalHeaders(req *http.Request, entry *PageEntry) {
	if entry == nil || req == nil {
		return
	}

	// ETag wins over Last-Modified
	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	} else if !entry.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", entry.LastModified.UTC().Format(http.TimeFormat))
	}
}
