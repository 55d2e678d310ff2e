// Package pool implements the connection pool that admits, queues, and
// routes content-processing requests under a concurrency bound.
//
// A submitted request is appended to its priority class queue (HIGH drains
// before NORMAL before LOW, FIFO within a class) and dispatched once a
// concurrency slot frees up. Requests carrying a session id whose operation
// is CPU-intensive go to an isolated worker unit with a data snapshot;
// everything else, and any request whose worker dispatch fails, runs on
// the submitting goroutine itself.
//
// Request lifecycle: queued → active → {completed | timed-out | dropped}.
// Each request owns a one-shot pending slot resolved exactly once; a late
// worker result for a request that already timed out or fell back to the
// caller is discarded.
//
// Error taxonomy:
//   - ErrQueueFull / ErrShuttingDown: admission failures, surfaced
//     immediately, never retried.
//   - ErrRequestTimeout: no resolution within the request timeout; the
//     request's bookkeeping is cleaned up even if the worker later finishes.
//   - ExecutionError: a failure inside the execution contract, surfaced as
//     a normal failed result. Dispatch plumbing failures instead fall back
//     silently to the caller's goroutine.
package pool
