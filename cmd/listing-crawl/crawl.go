package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/listing-crawler/pkg/cache"
	"github.com/Sternrassler/listing-crawler/pkg/crawl"
	"github.com/Sternrassler/listing-crawler/pkg/export"
	"github.com/Sternrassler/listing-crawler/pkg/fetch"
	"github.com/Sternrassler/listing-crawler/pkg/logging"
	"github.com/Sternrassler/listing-crawler/pkg/metrics"
	"github.com/Sternrassler/listing-crawler/pkg/normalize"
	"github.com/Sternrassler/listing-crawler/pkg/progress"
)

// listingSource is a crawl source that also knows how to normalize and
// label its output.
type listingSource interface {
	crawl.Source
	Label() string
	Normalize(records []crawl.RowRecord, schema crawl.ColumnSchema) (*normalize.Table, *normalize.Report, error)
}

// session carries what every command needs besides its own flags.
type session struct {
	ctx     context.Context
	globals *Globals
	stdout  io.Writer
	stderr  io.Writer
	logger  zerolog.Logger
	now     func() time.Time
}

func newSession(ctx context.Context, g *Globals, stdout, stderr io.Writer) *session {
	level, err := logging.ParseLevel(g.LogLevel)
	if err != nil {
		level = logging.LevelInfo
	}
	logging.Setup(logging.Config{Level: level, Pretty: g.LogPretty, Output: stderr})

	return &session{
		ctx:     ctx,
		globals: g,
		stdout:  stdout,
		stderr:  stderr,
		logger:  logging.NewLogger("cli"),
		now:     time.Now,
	}
}

// crawl runs the full pipeline for one source: fetch and aggregate every
// page, normalize the rows and write the spreadsheet.
func (rt *session) crawl(src listingSource, defaultConcurrency int) error {
	g := rt.globals

	if g.MetricsAddr != "" {
		srv, err := metrics.Start(g.MetricsAddr)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				rt.logger.Warn().Err(err).Msg("Metrics server shutdown failed")
			}
		}()
	}

	fetcher, closeFetcher, err := rt.newFetcher()
	if err != nil {
		return err
	}
	defer closeFetcher()

	policy, err := crawl.ParseDefectPolicy(g.DefectPolicy)
	if err != nil {
		return err
	}
	cfg := crawl.DefaultConfig()
	cfg.Concurrency = defaultConcurrency
	if g.Concurrency > 0 {
		cfg.Concurrency = g.Concurrency
	}
	cfg.DefectPolicy = policy

	reporter := newReporter(g.Progress, rt.stderr)
	if bar, ok := reporter.(*progress.BarReporter); ok {
		defer bar.Stop()
	}

	rt.logger.Info().
		Str("source", src.Name()).
		Str("url", src.PageURL(1)).
		Int("concurrency", cfg.Concurrency).
		Str("defect_policy", string(cfg.DefectPolicy)).
		Msg("Starting listing crawl")

	result, err := crawl.New(src, fetcher, cfg, crawl.WithReporter(reporter)).Run(rt.ctx)
	if err != nil {
		return err
	}

	table, report, err := src.Normalize(result.Records.Rows(), result.Schema)
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}

	path, err := export.New(export.Config{Dir: g.OutputDir}).Write(table, src.Label(), rt.now())
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	printSummary(rt.stdout, result, report, path)
	return nil
}

// newFetcher builds the page client, with a Redis page cache when a Redis
// URL is configured. The returned func releases the Redis connection.
func (rt *session) newFetcher() (*fetch.Client, func(), error) {
	g := rt.globals
	cfg := fetch.DefaultConfig(g.UserAgent)
	cfg.Timeout = g.Timeout
	cfg.MaxAttempts = g.MaxAttempts
	cfg.RequestsPerSecond = g.RPS

	closeFn := func() {}
	if g.RedisURL != "" {
		opts, err := redis.ParseURL(g.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(rt.ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		rt.logger.Info().Str("addr", opts.Addr).Dur("ttl", g.CacheTTL).Msg("Page cache enabled")

		cfg.Cache = cache.NewManager(rdb, g.CacheTTL)
		closeFn = func() { rdb.Close() }
	}

	client, err := fetch.New(cfg)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return client, closeFn, nil
}

// newReporter selects the progress display.
func newReporter(kind string, stderr io.Writer) crawl.Reporter {
	switch kind {
	case "bar":
		return progress.NewBarReporter(stderr)
	case "none":
		return crawl.NopReporter{}
	default:
		return progress.NewLogReporter(progress.DefaultLogEvery)
	}
}

func printSummary(w io.Writer, result *crawl.Result, report *normalize.Report, path string) {
	fmt.Fprintf(w, "pages:   %d of %d succeeded\n", result.SucceededPages(), result.TotalPages)
	fmt.Fprintf(w, "rows:    %d crawled, %d kept, %d dropped\n", report.Input, report.Kept, report.TotalDropped())
	for _, reason := range report.Reasons() {
		fmt.Fprintf(w, "         %s: %d\n", reason, report.Dropped[reason])
	}
	if result.RowDefects > 0 {
		fmt.Fprintf(w, "defects: %d malformed rows skipped\n", result.RowDefects)
	}
	for _, f := range result.Failures {
		fmt.Fprintf(w, "failed:  page %d (%s): %v\n", f.Page, f.Stage, f.Err)
	}
	fmt.Fprintf(w, "output:  %s\n", path)
}
