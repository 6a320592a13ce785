// Package pubsub provides a priority-ordered publish/subscribe bus.
//
// Subscribers are indexed twice: once by event name for membership, once by
// priority for delivery order. Notify sorts the distinct priority values at
// call time (descending, higher priority delivered first) and walks each
// bucket in insertion order, so the full subscriber list is never re-sorted
// per subscription and priorities can be assigned freely per subscription.
package pubsub
