// Package metrics serves the Prometheus metrics of a crawl.
// All metrics are defined in their respective packages (crawl, fetch, cache)
// to maintain modularity and avoid circular dependencies.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sternrassler/listing-crawler/pkg/logging"
)

// Registry is the default Prometheus registry.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// NewMux returns a handler exposing /metrics and /health.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", HealthHandler)
	return mux
}

// HealthHandler answers liveness probes.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// Server is a running metrics endpoint.
type Server struct {
	srv      *http.Server
	listener net.Listener
	done     chan error
}

// Start listens on addr and serves NewMux in the background.
func Start(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           NewMux(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		done:     make(chan error, 1),
	}

	logger := logging.NewLogger("metrics")
	logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")

	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-s.done
}

// Metrics Documentation
//
// Crawl Metrics (pkg/crawl):
//   - crawl_pages_total{source,outcome} (Counter): Pages by terminal outcome (merged, failed)
//   - crawl_rows_total{source} (Counter): Rows merged into record collections
//   - crawl_inflight_fetches{source} (Gauge): Page fetches holding a limiter permit
//   - crawl_duration_seconds{source} (Histogram): Wall time of complete crawls
//   - crawl_row_defects_total{source} (Counter): Malformed rows dropped
//
// Request Metrics (pkg/fetch):
//   - fetch_requests_total{host,status} (Counter): Requests by host and HTTP status
//   - fetch_request_duration_seconds{host} (Histogram): Request duration by host
//   - fetch_errors_total{class} (Counter): Errors by class (client, server, network)
//   - fetch_retries_total{error_class} (Counter): Retry attempts
//   - fetch_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - fetch_retry_exhausted_total{error_class} (Counter): Requests that exhausted retries
//
// Cache Metrics (pkg/cache):
//   - page_cache_hits_total (Counter)
//   - page_cache_misses_total (Counter)
//   - page_cache_not_modified_total (Counter): 304 answers served from cache
//   - page_cache_conditional_requests_total (Counter)
//   - page_cache_errors_total{operation} (Counter)
//
// Example Prometheus Queries:
//
//   # Page failure ratio per source
//   sum by (source) (crawl_pages_total{outcome="failed"}) /
//   sum by (source) (crawl_pages_total)
//
//   # Revalidation success
//   rate(page_cache_not_modified_total[5m]) / rate(page_cache_conditional_requests_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(fetch_request_duration_seconds_bucket[5m]))
