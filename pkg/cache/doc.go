// Package cache stores the results of finished searches.
//
// A search job is expensive for the API: it is created, polled until done,
// paged and deleted. Identical searches over a fixed time window return the
// same results, so the manager keeps them for a configurable TTL in two layers:
//
//   - an in-process expiring LRU (github.com/hashicorp/golang-lru/v2/expirable)
//   - an optional Redis layer shared between processes
//
// # Basic Usage
//
//	manager := cache.NewManager(cache.Config{
//		TTL:   10 * time.Minute,
//		Redis: redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	})
//
//	key := cache.Key{Query: "_sourceCategory=prod error", From: from, To: to}
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// run the search, then
//		_ = manager.Set(ctx, key, records)
//	}
//
// # Metrics
//
//   - sumo_cache_hits_total{layer="memory|redis"} - Cache hits
//   - sumo_cache_misses_total - Cache misses
//   - sumo_cache_entries - In-memory entries
//   - sumo_cache_errors_total{operation} - Cache operation errors
package cache
