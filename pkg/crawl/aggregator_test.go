package crawl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves "rows=<n>" bodies and turns them into n two-column rows.
type fakeSource struct {
	totalPages int
	// malformed marks pages whose second row has a missing field.
	malformed map[PageIndex]bool
	// badPages makes ParsePage return a page-level defect.
	badPages map[PageIndex]bool
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) PageURL(page PageIndex) string {
	return fmt.Sprintf("http://portal.test/list?page=%d", page)
}

func (s *fakeSource) ParseSeed(page RawPage) (*SeedPage, error) {
	parse, err := s.ParsePage(page, NewSchema("page", "row"))
	if err != nil {
		return nil, err
	}
	return &SeedPage{
		TotalPages: s.totalPages,
		Schema:     NewSchema("page", "row"),
		Page:       *parse,
	}, nil
}

func (s *fakeSource) ParsePage(page RawPage, _ ColumnSchema) (*PageParse, error) {
	if s.badPages[page.Index] {
		return nil, PageDefect(page.Index, "", "listing container missing")
	}
	n, err := strconv.Atoi(strings.TrimPrefix(string(page.Body), "rows="))
	if err != nil {
		return nil, PageDefect(page.Index, "", "unreadable body")
	}

	parse := &PageParse{}
	for i := 0; i < n; i++ {
		row := []string{strconv.Itoa(int(page.Index)), strconv.Itoa(i)}
		if s.malformed[page.Index] && i == 1 {
			row = row[:1]
		}
		parse.Rows = append(parse.Rows, row)
	}
	return parse, nil
}

// fakeFetcher serves row counts per page and tracks concurrency.
type fakeFetcher struct {
	rows  map[string]int
	fail  map[string]error
	delay time.Duration

	inFlight atomic.Int64
	peak     atomic.Int64
	calls    atomic.Int64
}

func newFakeFetcher(src *fakeSource, rowsPerPage func(PageIndex) int) *fakeFetcher {
	f := &fakeFetcher{rows: map[string]int{}, fail: map[string]error{}}
	for p := 1; p <= src.totalPages; p++ {
		f.rows[src.PageURL(PageIndex(p))] = rowsPerPage(PageIndex(p))
	}
	return f
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.fail[url]; err != nil {
		return nil, err
	}
	return []byte("rows=" + strconv.Itoa(f.rows[url])), nil
}

// recordingReporter records progress events.
type recordingReporter struct {
	mu       sync.Mutex
	seedURL  string
	total    int
	done     []PageIndex
	finished bool
}

func (r *recordingReporter) SeedStarted(url string) { r.seedURL = url }
func (r *recordingReporter) Start(total int)        { r.total = total }
func (r *recordingReporter) PageDone(page PageIndex, _ bool, _ int) {
	r.mu.Lock()
	r.done = append(r.done, page)
	r.mu.Unlock()
}
func (r *recordingReporter) Finish(*Result) { r.finished = true }

func TestAggregator_AllPagesSucceed(t *testing.T) {
	src := &fakeSource{totalPages: 3}
	fetcher := newFakeFetcher(src, func(p PageIndex) int {
		if p == 1 {
			return 0
		}
		return 20
	})
	reporter := &recordingReporter{}

	agg := New(src, fetcher, Config{Concurrency: 5}, WithReporter(reporter))
	result, err := agg.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 40, result.Records.Len())
	assert.Empty(t, result.Failures)
	assert.Equal(t, 3, result.TotalPages)
	assert.Equal(t, 3, agg.Total())
	assert.Equal(t, 3, agg.Completed())

	assert.Equal(t, src.PageURL(1), reporter.seedURL)
	assert.Equal(t, 3, reporter.total)
	assert.Len(t, reporter.done, 3)
	assert.True(t, reporter.finished)

	for p := PageIndex(1); p <= 3; p++ {
		assert.Equal(t, TaskMerged, result.States[p], "page %d", p)
	}
}

func TestAggregator_FailedFetchIsContained(t *testing.T) {
	src := &fakeSource{totalPages: 3}
	fetcher := newFakeFetcher(src, func(p PageIndex) int {
		if p == 1 {
			return 0
		}
		return 20
	})
	fetchErr := errors.New("connection reset")
	fetcher.fail[src.PageURL(2)] = fetchErr

	result, err := New(src, fetcher, Config{Concurrency: 5}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 20, result.Records.Len())
	require.Len(t, result.Failures, 1)
	assert.Equal(t, PageIndex(2), result.Failures[0].Page)
	assert.Equal(t, StageFetch, result.Failures[0].Stage)
	assert.ErrorIs(t, result.Failures[0], fetchErr)
	assert.Equal(t, []PageIndex{2}, result.FailedPages())
	assert.Equal(t, TaskFailed, result.States[2])
	assert.Equal(t, TaskMerged, result.States[3])

	for _, row := range result.Records.Rows() {
		assert.Equal(t, PageIndex(3), row.Page)
	}
}

func TestAggregator_PeakInFlightBounded(t *testing.T) {
	tests := []struct {
		name        string
		concurrency int
		pages       int
	}{
		{"single permit", 1, 8},
		{"three permits", 3, 30},
		{"cap above page count", 10, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{totalPages: tt.pages}
			fetcher := newFakeFetcher(src, func(PageIndex) int { return 2 })
			fetcher.delay = 5 * time.Millisecond

			agg := New(src, fetcher, Config{Concurrency: tt.concurrency})
			result, err := agg.Run(context.Background())
			require.NoError(t, err)

			assert.LessOrEqual(t, int(fetcher.peak.Load()), tt.concurrency)
			assert.LessOrEqual(t, agg.Limiter().Peak(), tt.concurrency)
			assert.Equal(t, 0, agg.Limiter().InFlight())
			assert.Equal(t, tt.pages*2, result.Records.Len())
		})
	}
}

func TestAggregator_RowsConformToSchema(t *testing.T) {
	src := &fakeSource{totalPages: 4, malformed: map[PageIndex]bool{3: true}}
	fetcher := newFakeFetcher(src, func(PageIndex) int { return 5 })

	result, err := New(src, fetcher, Config{Concurrency: 2}).Run(context.Background())
	require.NoError(t, err)

	for _, row := range result.Records.Rows() {
		assert.Len(t, row.Fields, result.Schema.Len())
	}
}

func TestAggregator_DefectPolicy(t *testing.T) {
	tests := []struct {
		name        string
		policy      DefectPolicy
		wantRows    int
		wantFailed  []PageIndex
		wantDefects int
	}{
		{"skip row drops only the malformed row", DefectSkipRow, 3*10 - 1, []PageIndex{}, 1},
		{"reject page drops the page", DefectRejectPage, 2 * 10, []PageIndex{2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{totalPages: 3, malformed: map[PageIndex]bool{2: true}}
			fetcher := newFakeFetcher(src, func(PageIndex) int { return 10 })

			result, err := New(src, fetcher, Config{Concurrency: 2, DefectPolicy: tt.policy}).Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.wantRows, result.Records.Len())
			assert.Equal(t, tt.wantFailed, result.FailedPages())
			assert.Equal(t, tt.wantDefects, result.RowDefects)
			if len(tt.wantFailed) > 0 {
				assert.Equal(t, StageParse, result.Failures[0].Stage)
				var defect *ParseDefect
				assert.ErrorAs(t, result.Failures[0], &defect)
				assert.Equal(t, 1, defect.Row)
			}
		})
	}
}

func TestAggregator_PageLevelParseDefect(t *testing.T) {
	src := &fakeSource{totalPages: 3, badPages: map[PageIndex]bool{3: true}}
	fetcher := newFakeFetcher(src, func(PageIndex) int { return 4 })

	result, err := New(src, fetcher, DefaultConfig()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, result.Records.Len())
	require.Len(t, result.Failures, 1)
	assert.Equal(t, StageParse, result.Failures[0].Stage)
	assert.Equal(t, TaskFailed, result.States[3])
}

func TestAggregator_Deterministic(t *testing.T) {
	run := func() [][]string {
		src := &fakeSource{totalPages: 12}
		fetcher := newFakeFetcher(src, func(p PageIndex) int { return int(p) % 4 })
		result, err := New(src, fetcher, Config{Concurrency: 4}).Run(context.Background())
		require.NoError(t, err)

		var rows [][]string
		for _, r := range result.Records.Rows() {
			rows = append(rows, r.Fields)
		}
		return rows
	}

	first := run()
	assert.Equal(t, first, run())
	assert.NotEmpty(t, first)
}

func TestAggregator_RowsOrderedByPage(t *testing.T) {
	src := &fakeSource{totalPages: 6}
	fetcher := newFakeFetcher(src, func(PageIndex) int { return 3 })
	fetcher.delay = time.Millisecond

	result, err := New(src, fetcher, Config{Concurrency: 6}).Run(context.Background())
	require.NoError(t, err)

	rows := result.Records.Rows()
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		ordered := prev.Page < cur.Page || (prev.Page == cur.Page && prev.Position < cur.Position)
		assert.True(t, ordered, "row %d out of order", i)
	}
}

func TestAggregator_SeedFailure(t *testing.T) {
	src := &fakeSource{totalPages: 5}
	fetcher := newFakeFetcher(src, func(PageIndex) int { return 1 })
	fetchErr := errors.New("status 503")
	fetcher.fail[src.PageURL(1)] = fetchErr

	agg := New(src, fetcher, DefaultConfig())
	result, err := agg.Run(context.Background())

	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrSeedFailed)
	assert.ErrorIs(t, err, fetchErr)
	assert.Equal(t, int64(1), fetcher.calls.Load())
	assert.Equal(t, 0, agg.Total())
}

func TestAggregator_SeedParseFailure(t *testing.T) {
	src := &fakeSource{totalPages: 5, badPages: map[PageIndex]bool{1: true}}
	fetcher := newFakeFetcher(src, func(PageIndex) int { return 1 })

	_, err := New(src, fetcher, DefaultConfig()).Run(context.Background())

	assert.ErrorIs(t, err, ErrSeedFailed)
	var defect *ParseDefect
	assert.ErrorAs(t, err, &defect)
}

func TestAggregator_SinglePage(t *testing.T) {
	src := &fakeSource{totalPages: 1}
	fetcher := newFakeFetcher(src, func(PageIndex) int { return 7 })

	result, err := New(src, fetcher, DefaultConfig()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 7, result.Records.Len())
	assert.Equal(t, int64(1), fetcher.calls.Load())
}

func TestAggregator_RunTwice(t *testing.T) {
	src := &fakeSource{totalPages: 1}
	fetcher := newFakeFetcher(src, func(PageIndex) int { return 1 })
	agg := New(src, fetcher, DefaultConfig())

	_, err := agg.Run(context.Background())
	require.NoError(t, err)

	_, err = agg.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestAggregator_Cancellation(t *testing.T) {
	src := &fakeSource{totalPages: 20}
	fetcher := newFakeFetcher(src, func(PageIndex) int { return 1 })
	fetcher.delay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	reporter := &cancelAfterSeed{cancel: cancel}

	agg := New(src, fetcher, Config{Concurrency: 2}, WithReporter(reporter))
	result, err := agg.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 20, agg.Completed())
	assert.Len(t, result.Failures, 19)
	for _, f := range result.Failures {
		assert.ErrorIs(t, f, context.Canceled)
	}
	for p, s := range result.States {
		assert.True(t, s.Terminal(), "page %d in state %s", p, s)
	}
}

// cancelAfterSeed cancels the crawl as soon as the page count is known.
type cancelAfterSeed struct {
	NopReporter
	cancel context.CancelFunc
}

func (c *cancelAfterSeed) Start(int) { c.cancel() }
