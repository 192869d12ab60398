// Package pullpool manages the collection of pulled repositories and
// the machinery that keeps them converged: one scheduling goroutine
// per repository with a configured interval, a bounded dispatch queue
// between the schedulers and a pool of update workers.
//
// The dispatch queue enforces at most one in-flight update per
// repository. A repository that is already queued or being updated is
// skipped when it comes due again, once the in-flight update finishes
// the next tick picks it up as normal.
//
// Schedulers apply backpressure rather than dropping work, an enqueue
// on a full queue blocks the scheduling goroutine until a worker makes
// room. Since updates are idempotent a delayed enqueue converges the
// working copy just the same.
package pullpool
