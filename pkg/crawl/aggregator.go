package crawl

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/listing-crawler/pkg/logging"
)

// Source knows the page template of one portal: how to address a page and
// how to read rows out of it.
type Source interface {
	// Name identifies the source in logs and metrics.
	Name() string

	// PageURL builds the request URL of a page.
	PageURL(page PageIndex) string

	// ParseSeed reads page 1: the total page count, the column schema and
	// page 1's rows.
	ParseSeed(page RawPage) (*SeedPage, error)

	// ParsePage reads the rows of any later page against the seed schema.
	ParsePage(page RawPage, schema ColumnSchema) (*PageParse, error)
}

// Fetcher retrieves the body of one page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// DefectPolicy decides what a malformed row does to its page.
type DefectPolicy string

const (
	// DefectSkipRow drops only the malformed row.
	DefectSkipRow DefectPolicy = "skip-row"

	// DefectRejectPage drops the whole page and records it as failed.
	DefectRejectPage DefectPolicy = "reject-page"
)

// ParseDefectPolicy converts a flag value to a DefectPolicy.
func ParseDefectPolicy(s string) (DefectPolicy, error) {
	switch DefectPolicy(s) {
	case DefectSkipRow, "":
		return DefectSkipRow, nil
	case DefectRejectPage:
		return DefectRejectPage, nil
	default:
		return "", fmt.Errorf("unknown defect policy %q", s)
	}
}

// Config holds aggregator configuration.
type Config struct {
	// Concurrency is the maximum number of page fetches in flight.
	Concurrency int

	// DefectPolicy decides how malformed rows are handled (default: skip-row).
	DefectPolicy DefectPolicy
}

// DefaultConfig returns the default aggregator configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:  5,
		DefectPolicy: DefectSkipRow,
	}
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithReporter sets the progress reporter.
func WithReporter(r Reporter) Option {
	return func(a *Aggregator) {
		if r != nil {
			a.reporter = r
		}
	}
}

// WithLogger replaces the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// Result is the outcome of one crawl.
type Result struct {
	Schema     ColumnSchema
	Records    *RecordCollection
	TotalPages int

	// Failures lists every page that contributed no rows, ordered by page.
	Failures []PageFailure

	// RowDefects counts rows dropped as malformed.
	RowDefects int

	// States is the final state of every page.
	States map[PageIndex]TaskState

	Duration time.Duration
}

// FailedPages returns the indices of failed pages in ascending order.
func (r *Result) FailedPages() []PageIndex {
	pages := make([]PageIndex, 0, len(r.Failures))
	for _, f := range r.Failures {
		pages = append(pages, f.Page)
	}
	return pages
}

// SucceededPages returns the number of pages that contributed their rows.
func (r *Result) SucceededPages() int {
	return r.TotalPages - len(r.Failures)
}

// Aggregator crawls every page of one source and collects its rows.
// An Aggregator is single-use; construct a new one per crawl.
type Aggregator struct {
	source   Source
	fetcher  Fetcher
	config   Config
	limiter  *Limiter
	reporter Reporter
	logger   zerolog.Logger

	total     atomic.Int64
	completed atomic.Int64
	started   atomic.Bool

	mu     sync.Mutex
	states map[PageIndex]TaskState
}

// New creates an Aggregator for a single crawl of source.
func New(source Source, fetcher Fetcher, config Config, opts ...Option) *Aggregator {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConfig().Concurrency
	}
	if config.DefectPolicy == "" {
		config.DefectPolicy = DefectSkipRow
	}

	a := &Aggregator{
		source:   source,
		fetcher:  fetcher,
		config:   config,
		limiter:  NewLimiter(config.Concurrency),
		reporter: NopReporter{},
		logger:   logging.NewLogger("crawl"),
		states:   make(map[PageIndex]TaskState),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With().Str("source", source.Name()).Logger()
	return a
}

// Total returns the number of pages to crawl, known once the seed page has
// been parsed. Safe for concurrent use.
func (a *Aggregator) Total() int {
	return int(a.total.Load())
}

// Completed returns the number of pages that reached a terminal state.
// Safe for concurrent use.
func (a *Aggregator) Completed() int {
	return int(a.completed.Load())
}

// Limiter exposes the fetch limiter for instrumentation.
func (a *Aggregator) Limiter() *Limiter {
	return a.limiter
}

// pageResult travels from a page task to the collector.
type pageResult struct {
	page    PageIndex
	parse   *PageParse
	failure *PageFailure
}

// Run fetches page 1, then every remaining page concurrently, and returns
// the collected rows ordered by page and on-page position.
//
// Run fails only when page 1 cannot be fetched or parsed. Later pages that
// fail are listed in Result.Failures. When ctx is cancelled, pages that
// have not started are marked failed; Run still waits for every task.
func (a *Aggregator) Run(ctx context.Context) (*Result, error) {
	if !a.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}
	start := time.Now()
	name := a.source.Name()

	seed, err := a.runSeed(ctx)
	if err != nil {
		crawlPages.WithLabelValues(name, "failed").Inc()
		a.logger.Error().Err(err).Msg("Seed page failed")
		return nil, err
	}

	totalPages := seed.TotalPages
	if totalPages < 1 {
		totalPages = 1
	}
	a.total.Store(int64(totalPages))
	for p := 2; p <= totalPages; p++ {
		a.setState(PageIndex(p), TaskPending)
	}

	result := &Result{
		Schema:     seed.Schema,
		Records:    &RecordCollection{},
		TotalPages: totalPages,
	}

	a.logger.Info().
		Int("total_pages", totalPages).
		Int("columns", seed.Schema.Len()).
		Int("concurrency", a.config.Concurrency).
		Msg("Starting crawl")
	a.reporter.Start(totalPages)

	a.collect(result, pageResult{page: 1, parse: &seed.Page})

	outcomes := make(chan pageResult, totalPages)
	var wg sync.WaitGroup
	for p := 2; p <= totalPages; p++ {
		wg.Add(1)
		go func(page PageIndex) {
			defer wg.Done()
			outcomes <- a.runPage(ctx, seed.Schema, page)
		}(PageIndex(p))
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// The collector is the only writer of result.
	for r := range outcomes {
		a.collect(result, r)
	}

	result.Records.SortByPage()
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].Page < result.Failures[j].Page
	})
	result.States = a.snapshotStates()
	result.Duration = time.Since(start)

	crawlDuration.WithLabelValues(name).Observe(result.Duration.Seconds())

	if len(result.Failures) > 0 {
		a.logger.Warn().
			Ints("failed_pages", pageInts(result.FailedPages())).
			Int("total_pages", totalPages).
			Msg("Crawl finished with failed pages")
	}
	a.logger.Info().
		Int("rows", result.Records.Len()).
		Int("total_pages", totalPages).
		Int("failed", len(result.Failures)).
		Int("row_defects", result.RowDefects).
		Dur("duration", result.Duration).
		Msg("Crawl complete")

	a.reporter.Finish(result)
	return result, nil
}

// runSeed fetches and parses page 1.
func (a *Aggregator) runSeed(ctx context.Context) (*SeedPage, error) {
	url := a.source.PageURL(1)
	a.reporter.SeedStarted(url)

	a.setState(1, TaskFetching)
	body, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		a.setState(1, TaskFailed)
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrSeedFailed, url, err)
	}
	a.setState(1, TaskFetched)

	a.setState(1, TaskParsing)
	seed, err := a.source.ParseSeed(RawPage{Index: 1, URL: url, Body: body})
	if err != nil {
		a.setState(1, TaskFailed)
		return nil, fmt.Errorf("%w: parse %s: %w", ErrSeedFailed, url, err)
	}
	if seed.Schema.Len() == 0 {
		a.setState(1, TaskFailed)
		return nil, fmt.Errorf("%w: %w", ErrSeedFailed, PageDefect(1, "", "empty column schema"))
	}
	return seed, nil
}

// runPage fetches one page under the limiter and parses it outside of it.
func (a *Aggregator) runPage(ctx context.Context, schema ColumnSchema, page PageIndex) pageResult {
	url := a.source.PageURL(page)
	name := a.source.Name()

	var outcome FetchOutcome
	err := a.limiter.Do(ctx, func() {
		a.setState(page, TaskFetching)
		crawlInFlight.WithLabelValues(name).Inc()
		defer crawlInFlight.WithLabelValues(name).Dec()

		body, err := a.fetcher.Fetch(ctx, url)
		if err != nil {
			outcome = Failure(page, url, err)
			return
		}
		outcome = Success(RawPage{Index: page, URL: url, Body: body})
	})
	if err != nil {
		outcome = Failure(page, url, err)
	}

	if !outcome.OK() {
		return pageResult{
			page:    page,
			failure: &PageFailure{Page: page, URL: url, Stage: StageFetch, Err: outcome.Err},
		}
	}
	a.setState(page, TaskFetched)

	a.setState(page, TaskParsing)
	parse, err := a.source.ParsePage(outcome.Page, schema)
	if err != nil {
		return pageResult{
			page:    page,
			failure: &PageFailure{Page: page, URL: url, Stage: StageParse, Err: err},
		}
	}
	return pageResult{page: page, parse: parse}
}

// collect merges one page result into the collection and advances progress.
func (a *Aggregator) collect(result *Result, r pageResult) {
	name := a.source.Name()

	failure := r.failure
	rows := 0
	if failure == nil {
		rows, failure = a.merge(result, r.page, r.parse)
	}

	if failure != nil {
		if failure.URL == "" {
			failure.URL = a.source.PageURL(r.page)
		}
		a.setState(r.page, TaskFailed)
		result.Failures = append(result.Failures, *failure)
		crawlPages.WithLabelValues(name, "failed").Inc()
		a.logger.Warn().
			Err(failure.Err).
			Int("page", int(r.page)).
			Str("stage", string(failure.Stage)).
			Str("url", failure.URL).
			Msg("Page failed")
	} else {
		a.setState(r.page, TaskMerged)
		crawlPages.WithLabelValues(name, "merged").Inc()
		crawlRows.WithLabelValues(name).Add(float64(rows))
	}

	done := a.completed.Add(1)
	a.logger.Debug().
		Int("page", int(r.page)).
		Int("rows", rows).
		Int64("completed", done).
		Int64("total", a.total.Load()).
		Msg("Page done")
	a.reporter.PageDone(r.page, failure == nil, rows)
}

// merge checks every row of a parsed page against the schema and applies
// the defect policy.
func (a *Aggregator) merge(result *Result, page PageIndex, parse *PageParse) (int, *PageFailure) {
	if parse == nil {
		return 0, &PageFailure{Page: page, Stage: StageParse, Err: PageDefect(page, "", "parser returned no result")}
	}

	defects := append([]*ParseDefect(nil), parse.Defects...)
	rows := make([][]string, 0, len(parse.Rows))
	for i, fields := range parse.Rows {
		if !result.Schema.Conforms(fields) {
			defects = append(defects, RowDefect(page, i, "",
				fmt.Sprintf("row has %d fields, schema has %d", len(fields), result.Schema.Len())))
			continue
		}
		rows = append(rows, fields)
	}

	if len(defects) > 0 && a.config.DefectPolicy == DefectRejectPage {
		return 0, &PageFailure{
			Page:  page,
			Stage: StageParse,
			Err:   fmt.Errorf("%d malformed rows: %w", len(defects), defects[0]),
		}
	}

	for _, d := range defects {
		a.logger.Warn().
			Int("page", int(d.Page)).
			Int("row", d.Row).
			Str("field", d.Field).
			Str("reason", d.Reason).
			Msg("Skipping malformed row")
	}
	result.RowDefects += len(defects)
	crawlRowDefects.WithLabelValues(a.source.Name()).Add(float64(len(defects)))

	result.Records.Append(page, rows)
	return len(rows), nil
}

func (a *Aggregator) setState(page PageIndex, state TaskState) {
	a.mu.Lock()
	a.states[page] = state
	a.mu.Unlock()
}

func (a *Aggregator) snapshotStates() map[PageIndex]TaskState {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[PageIndex]TaskState, len(a.states))
	for p, s := range a.states {
		out[p] = s
	}
	return out
}

func pageInts(pages []PageIndex) []int {
	out := make([]int, len(pages))
	for i, p := range pages {
		out[i] = int(p)
	}
	return out
}
