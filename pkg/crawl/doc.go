// Package crawl implements the bounded-concurrency pagination pipeline.
//
// A crawl fetches page 1 synchronously to learn the total page count and
// the column schema, then fetches pages 2..N concurrently through a Limiter
// and merges the rows of every successfully parsed page into a
// RecordCollection.
//
// # Basic Usage
//
//	agg := crawl.New(source, fetcher, crawl.Config{Concurrency: 5},
//		crawl.WithReporter(reporter))
//
//	result, err := agg.Run(ctx)
//	if errors.Is(err, crawl.ErrSeedFailed) {
//		// Nothing could be crawled
//	}
//
//	for _, row := range result.Records.Rows() {
//		fmt.Println(row.Get(result.Schema, "面积"))
//	}
//
// # Failure Containment
//
// A page that fails to fetch or parse contributes no rows and is listed in
// Result.Failures; its siblings are unaffected. Malformed rows are either
// dropped individually (DefectSkipRow) or reject their page
// (DefectRejectPage).
//
// # Metrics
//
//   - crawl_pages_total{source,outcome}
//   - crawl_rows_total{source}
//   - crawl_inflight_fetches{source}
//   - crawl_duration_seconds{source}
//   - crawl_row_defects_total{source}
package crawl
