// Package fetch provides the page fetcher: an HTTP client that sends a
// browser-like header set, classifies failures, decodes bodies to UTF-8 and
// optionally revalidates pages against a Redis cache.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/listing-crawler/pkg/cache"
	"github.com/Sternrassler/listing-crawler/pkg/logging"
)

const (
	// DefaultUserAgent is the desktop browser identity the portals expect.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome"

	// DefaultAccept is the Accept list sent with every page request.
	DefaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"

	// DefaultMaxBodyBytes caps a single page body.
	DefaultMaxBodyBytes = 8 << 20
)

// Config holds the client configuration.
type Config struct {
	// UserAgent header (REQUIRED)
	UserAgent string

	// Accept header
	Accept string

	// Headers are extra request headers, e.g. Referer or Accept-Language
	Headers map[string]string

	// Timeout bounds a single request
	Timeout time.Duration

	// Retry
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RequestsPerSecond paces requests statically (0 = unpaced)
	RequestsPerSecond float64

	// MaxBodyBytes caps the decoded page size (0 = DefaultMaxBodyBytes)
	MaxBodyBytes int64

	// Cache enables conditional revalidation (optional)
	Cache *cache.Manager
}

// DefaultConfig returns the default configuration for the given user agent.
func DefaultConfig(userAgent string) Config {
	retry := DefaultRetryConfig()
	return Config{
		UserAgent:      userAgent,
		Accept:         DefaultAccept,
		Timeout:        30 * time.Second,
		MaxAttempts:    retry.MaxAttempts,
		InitialBackoff: retry.InitialBackoff,
		MaxBackoff:     retry.MaxBackoff,
		MaxBodyBytes:   DefaultMaxBodyBytes,
	}
}

// Client fetches listing pages.
type Client struct {
	httpClient *http.Client
	config     Config
	retry      RetryConfig
	pacer      *rate.Limiter
	cache      *cache.Manager
	logger     zerolog.Logger
}

// New creates a new page client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests_per_second must be >= 0 (got %v)", cfg.RequestsPerSecond)
	}
	if cfg.Accept == "" {
		cfg.Accept = DefaultAccept
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	retry := DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoff > 0 {
		retry.InitialBackoff = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		retry.MaxBackoff = cfg.MaxBackoff
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		retry:  retry,
		cache:  cfg.Cache,
		logger: logging.NewLogger("fetch"),
	}
	if cfg.RequestsPerSecond > 0 {
		c.pacer = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c, nil
}

// Fetch retrieves a page and returns its body decoded to UTF-8.
// Any non-2xx answer is an error of type *FetchError.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var (
		key    cache.PageKey
		cached *cache.PageEntry
		useKey bool
	)
	if c.cache != nil {
		k, err := cache.KeyForURL(rawURL)
		if err == nil {
			key, useKey = k, true
			cached, err = c.cache.Get(ctx, key)
			if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
				c.logger.Warn().Err(err).Str("url", rawURL).Msg("Cache get error")
			}
		}
	}

	var got *page
	err := retryWithBackoff(ctx, c.retry, c.logger, func() error {
		p, err := c.fetchOnce(ctx, rawURL, cached)
		if err != nil {
			return err
		}
		got = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if useKey {
		c.store(ctx, key, rawURL, got)
	}
	return got.body, nil
}

// page is one successful answer.
type page struct {
	body        []byte
	status      int
	header      http.Header
	notModified bool
}

// fetchOnce performs a single request.
func (c *Client) fetchOnce(ctx context.Context, rawURL string, cached *cache.PageEntry) (*page, error) {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, &FetchError{URL: rawURL, Class: ErrorClassNetwork, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Class: ErrorClassClient, Err: fmt.Errorf("create request: %w", err)}
	}
	host := req.URL.Host

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", c.config.Accept)
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	if cache.ShouldRevalidate(cached) {
		cache.AddConditionalHeaders(req, cached)
		cache.ConditionalRequestsSent.Inc()
		c.logger.Debug().
			Str("url", rawURL).
			Str("etag", cached.ETag).
			Msg("Making conditional request")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	fetchRequestDuration.WithLabelValues(host).Observe(time.Since(start).Seconds())
	if err != nil {
		fetchErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		fetchRequestsTotal.WithLabelValues(host, "network_error").Inc()
		c.logger.Debug().Err(err).Str("url", rawURL).Msg("HTTP request failed")
		return nil, &FetchError{URL: rawURL, Class: ErrorClassNetwork, Err: err}
	}
	defer resp.Body.Close()

	fetchRequestsTotal.WithLabelValues(host, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusNotModified && cached != nil {
		cache.NotModifiedResponses.Inc()
		c.logger.Debug().Str("url", rawURL).Msg("304 Not Modified - using cache")
		return &page{body: cached.Body, status: resp.StatusCode, header: resp.Header, notModified: true}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		class := classifyStatus(resp.StatusCode)
		fetchErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Debug().
			Str("url", rawURL).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Page request error")
		return nil, &FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Class:      class,
			Err:        errors.New(resp.Status),
		}
	}

	body, err := c.readBody(resp)
	if err != nil {
		class := ErrorClassNetwork
		if errors.Is(err, ErrBodyTooLarge) {
			class = ErrorClassClient
		}
		fetchErrorsTotal.WithLabelValues(string(class)).Inc()
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Class: class, Err: err}
	}

	return &page{body: body, status: resp.StatusCode, header: resp.Header}, nil
}

// store records a fetched page in the cache. Cache errors are logged and
// never fail the fetch.
func (c *Client) store(ctx context.Context, key cache.PageKey, rawURL string, p *page) {
	if p.notModified {
		if err := c.cache.Touch(ctx, key, time.Now().Add(c.cache.TTL())); err != nil {
			c.logger.Warn().Err(err).Str("url", rawURL).Msg("Failed to extend cache entry")
		}
		return
	}

	entry, err := cache.ResponseToEntry(&http.Response{StatusCode: p.status, Header: p.header}, p.body, c.cache.TTL())
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		return
	}
	if err := c.cache.Set(ctx, key, entry); err != nil {
		c.logger.Warn().Err(err).Str("url", rawURL).Msg("Failed to cache page")
		return
	}
	c.logger.Debug().
		Str("url", rawURL).
		Dur("ttl", entry.TTL()).
		Msg("Cached page")
}

// readBody reads at most MaxBodyBytes and decodes the charset declared by
// the response (or sniffed from the markup) to UTF-8.
func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(raw)) > c.config.MaxBodyBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, c.config.MaxBodyBytes)
	}

	reader, err := charset.NewReader(bytes.NewReader(raw), resp.Header.Get("Content-Type"))
	if err != nil {
		// Unknown charset: keep the raw bytes
		return raw, nil
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return decoded, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
