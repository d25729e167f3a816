// Package cache stores upstream KatAPI responses in Redis.
//
// Entries live until the expiry the upstream announces (Cache-Control
// max-age, then Expires, then DefaultTTL). ETag and Last-Modified are kept so
// a stale entry can be revalidated with a conditional request.
//
// # Basic Usage
//
//	manager := cache.NewManager(redis.NewClient(&redis.Options{Addr: "localhost:6379"}))
//
//	key := cache.CacheKey{
//		Endpoint:    "/nfts/entries",
//		QueryParams: url.Values{"tick": {"KASPUNKS"}, "offset": {"0"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch upstream, then:
//		entry, _ = cache.ResponseToEntry(resp)
//		_ = manager.Set(ctx, key, entry)
//	}
//	resp := cache.EntryToResponse(entry)
//
// # Metrics
//
//   - katscan_cache_hits_total{layer}
//   - katscan_cache_misses_total
//   - katscan_cache_written_bytes_total{layer}
//   - katscan_304_responses_total
//   - katscan_cache_errors_total{operation}
package cache
