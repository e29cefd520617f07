// Package cache provides a Redis-backed page cache for listing crawls.
//
// Cached pages are never served blindly. The fetcher always contacts the
// portal; when an entry carries a validator (ETag or Last-Modified) the
// request becomes conditional, and a 304 Not Modified answer is satisfied
// from the cached body.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, 6*time.Hour)
//
//	key, err := cache.KeyForURL("http://bj.lianjia.com/ershoufang/haidian/pg2")
//	if err != nil {
//		return err
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// Unconditional request
//	}
//
// # Conditional Requests
//
//	if cache.ShouldRevalidate(entry) {
//		cache.AddConditionalHeaders(req, entry)
//	}
//
// # Metrics
//
//   - page_cache_hits_total
//   - page_cache_misses_total
//   - page_cache_not_modified_total
//   - page_cache_conditional_requests_total
//   - page_cache_errors_total{operation}
package cache
