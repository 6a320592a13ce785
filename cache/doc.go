// Package cache provides a bounded, TTL-aware key/value cache with O(1)
// get/set/evict and least-recently-used eviction.
//
// The cache pairs a hash map with a doubly-linked recency list: the map gives
// O(1) lookup, the list gives O(1) promotion and tail eviction. Entries expire
// lazily on access and eagerly via an optional background sweep. Statistics
// collection is off by default and enabled with WithStats to keep the hot path
// free of bookkeeping when unused.
package cache
