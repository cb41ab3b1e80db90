// Package store provides a fault-tolerant accessor for a remote
// document database.
//
// Store wraps a Backend's get/put/delete/query operations with retry,
// exponential backoff with jitter, and a single error classification
// function, so that transient failures (timeouts, resets, rate
// limiting) are invisible to callers while permanent failures and
// concurrency conflicts are reported immediately and distinctly.
//
// Failure taxonomy:
//
//   - TransientError: retryable, never surfaces unless the attempt
//     budget runs out
//   - PermanentError: the request was invalid or the target missing;
//     zero retries
//   - ConflictError: optimistic-concurrency clash on a versioned put;
//     zero retries
//   - UnavailableError: attempt budget exhausted on transient failures
//   - UnknownOutcomeError: ambiguous unversioned write; the caller must
//     verify current state before reapplying
//
// The store keeps no cache of document payloads: every read reflects
// the backend's current state. Callers needing caching build it above
// this layer.
package store
