package crawl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// crawlPages counts pages by terminal outcome ("merged", "failed")
	crawlPages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_pages_total",
			Help: "Total number of crawled pages by outcome",
		},
		[]string{"source", "outcome"},
	)

	// crawlRows counts rows merged into record collections
	crawlRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_rows_total",
			Help: "Total number of rows collected",
		},
		[]string{"source"},
	)

	// crawlInFlight tracks fetches currently holding a limiter permit
	crawlInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crawl_inflight_fetches",
			Help: "Number of page fetches in flight",
		},
		[]string{"source"},
	)

	// crawlDuration tracks wall time of complete crawls
	crawlDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawl_duration_seconds",
			Help:    "Duration of complete crawls in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"source"},
	)

	// crawlRowDefects counts malformed rows skipped by the aggregator
	crawlRowDefects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawl_row_defects_total",
			Help: "Total number of malformed rows dropped",
		},
		[]string{"source"},
	)
)
