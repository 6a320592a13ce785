// Package batch coalesces rapid state-dirty signals into single flushes.
//
// A Coordinator has two states, idle and batching. While batching, MarkDirty
// only records the store id; End flushes every recorded id exactly once. While
// idle, MarkDirty flushes immediately. Stores register a per-id flush handler;
// an optional OnFlush callback observes the full dirty set of each flush.
//
// Batch calls do not nest: there is no depth counter, so a reentrant Batch
// flushes at the inner End and the remainder of the outer batch flushes
// separately. This mirrors the source design and is covered by tests rather
// than silently changed.
package batch
