// Package retry provides exponential backoff retry functionality.
//
// The retry loop is context-aware: cancellation is observed before each
// attempt and during backoff sleeps. The sleep and the jitter randomness
// are injectable so tests run without real waiting.
//
// Execute an operation with retry:
//
//	cfg := retry.DefaultConfig()
//	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
//	    return callBackend(ctx)
//	}, &retry.Options{ShouldRetry: isTransient})
package retry
