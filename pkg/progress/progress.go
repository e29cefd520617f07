// Package progress renders crawl progress, either as periodic log lines or
// as a terminal progress bar.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/listing-crawler/pkg/crawl"
	"github.com/Sternrassler/listing-crawler/pkg/logging"
)

// DefaultLogEvery is how many pages pass between two progress log lines.
const DefaultLogEvery = 50

// LogReporter logs crawl progress through zerolog.
type LogReporter struct {
	logger zerolog.Logger
	every  int

	mu        sync.Mutex
	total     int
	completed int
	failed    int
	rows      int
	started   time.Time
}

// NewLogReporter creates a reporter that logs every n completed pages
// (n <= 0 uses DefaultLogEvery).
func NewLogReporter(n int) *LogReporter {
	if n <= 0 {
		n = DefaultLogEvery
	}
	return &LogReporter{
		logger: logging.NewLogger("progress"),
		every:  n,
	}
}

// WithLogger replaces the reporter's logger.
func (r *LogReporter) WithLogger(logger zerolog.Logger) *LogReporter {
	r.logger = logger
	return r
}

// SeedStarted implements crawl.Reporter.
func (r *LogReporter) SeedStarted(url string) {
	r.mu.Lock()
	r.started = time.Now()
	r.mu.Unlock()
	r.logger.Info().Str("url", url).Msg("Fetching seed page")
}

// Start implements crawl.Reporter.
func (r *LogReporter) Start(total int) {
	r.mu.Lock()
	r.total = total
	r.mu.Unlock()
}

// PageDone implements crawl.Reporter.
func (r *LogReporter) PageDone(page crawl.PageIndex, ok bool, rows int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.completed++
	r.rows += rows
	if !ok {
		r.failed++
	}
	if r.completed%r.every != 0 && r.completed != r.total {
		return
	}
	r.logger.Info().
		Int("completed", r.completed).
		Int("total_pages", r.total).
		Int("failed_pages", r.failed).
		Int("rows", r.rows).
		Dur("elapsed", time.Since(r.started)).
		Msg("Crawl progress")
}

// Finish implements crawl.Reporter.
func (r *LogReporter) Finish(result *crawl.Result) {
	r.logger.Info().
		Int("total_pages", result.TotalPages).
		Int("failed_pages", len(result.Failures)).
		Int("rows", result.Records.Len()).
		Dur("duration", result.Duration).
		Msg("Crawl finished")
}

// BarReporter draws a progress bar to a terminal writer. A spinner runs
// while the seed page loads.
type BarReporter struct {
	out     io.Writer
	bar     progress.Model
	spinner *spinner.Spinner

	mu        sync.Mutex
	total     int
	completed int
	failed    int
	rows      int
}

// NewBarReporter creates a bar reporter writing to out (usually stderr).
func NewBarReporter(out io.Writer) *BarReporter {
	return &BarReporter{
		out:     out,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner: spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(out)),
	}
}

// SeedStarted implements crawl.Reporter.
func (r *BarReporter) SeedStarted(url string) {
	r.spinner.Suffix = " fetching " + url
	r.spinner.Start()
}

// Start implements crawl.Reporter.
func (r *BarReporter) Start(total int) {
	r.spinner.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.total = total
	r.render()
}

// PageDone implements crawl.Reporter.
func (r *BarReporter) PageDone(page crawl.PageIndex, ok bool, rows int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.completed++
	r.rows += rows
	if !ok {
		r.failed++
	}
	r.render()
}

// Finish implements crawl.Reporter.
func (r *BarReporter) Finish(result *crawl.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "\n%d rows from %d pages (%d failed) in %s\n",
		result.Records.Len(), result.TotalPages, len(result.Failures), result.Duration.Round(time.Millisecond))
}

// Stop halts the spinner when the crawl ends before the seed page resolves.
func (r *BarReporter) Stop() {
	r.spinner.Stop()
}

func (r *BarReporter) render() {
	var pct float64
	if r.total > 0 {
		pct = float64(r.completed) / float64(r.total)
	}
	fmt.Fprintf(r.out, "\r%s %d/%d pages, %d rows, %d failed",
		r.bar.ViewAs(pct), r.completed, r.total, r.rows, r.failed)
}

var (
	_ crawl.Reporter = (*LogReporter)(nil)
	_ crawl.Reporter = (*BarReporter)(nil)
)
