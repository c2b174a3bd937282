// Package cachestore implements a key/value materialized-query cache with
// TTL + stale-while-revalidate semantics and prefix-based bulk
// invalidation.
//
// All operations degrade open: a cache failure is logged and treated as a
// miss or no-op, never surfaced as a query failure.
package cachestore
