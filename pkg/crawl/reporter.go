package crawl

// Reporter receives progress events of a crawl. SeedStarted and Start are
// called from the goroutine running Run; PageDone and Finish are called from
// the collector, never concurrently.
type Reporter interface {
	// SeedStarted is called before page 1 is requested.
	SeedStarted(url string)

	// Start is called once the total page count is known.
	Start(totalPages int)

	// PageDone is called once per page when it reaches a terminal state.
	PageDone(page PageIndex, ok bool, rows int)

	// Finish is called after the last page.
	Finish(result *Result)
}

// NopReporter discards all progress events.
type NopReporter struct{}

func (NopReporter) SeedStarted(string)            {}
func (NopReporter) Start(int)                     {}
func (NopReporter) PageDone(PageIndex, bool, int) {}
func (NopReporter) Finish(*Result)                {}
