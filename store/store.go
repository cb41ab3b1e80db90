package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/corefabric/gatekit/observability"
	"github.com/corefabric/gatekit/retry"
)

// storeTracerName is the OpenTelemetry tracer name for store operations.
const storeTracerName = "gatekit/store"

// Store wraps a Backend with retry, backoff and failure classification
// so transient backend failures are invisible to callers and permanent
// ones are reported distinctly. A Store is stateless per call apart
// from the retry bookkeeping local to each operation, and is safe for
// concurrent use.
type Store struct {
	backend  Backend
	config   *Config
	retryCfg *retry.Config
	backoff  retry.Backoff
	sleep    retry.SleepFunc
	limiter  *rate.Limiter
	logger   observability.Logger
	classify func(error) Class
}

// Option is a functional option for the Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithBackoff overrides the backoff strategy.
func WithBackoff(b retry.Backoff) Option {
	return func(s *Store) {
		s.backoff = b
	}
}

// WithSleep overrides the inter-attempt sleep. Tests use this to run
// without real waiting.
func WithSleep(sleep retry.SleepFunc) Option {
	return func(s *Store) {
		s.sleep = sleep
	}
}

// WithClassifier overrides the error classification function.
func WithClassifier(classify func(error) Class) Option {
	return func(s *Store) {
		s.classify = classify
	}
}

// New creates a resilient store over the given backend.
func New(backend Backend, cfg *Config, opts ...Option) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Store{
		backend:  backend,
		config:   cfg,
		retryCfg: cfg.retryConfig(),
		logger:   observability.NopLogger(),
		classify: Classify,
	}

	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.GetRateBurst())
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Get fetches one record. A missing record is a PermanentError wrapping
// ErrNotFound, returned without retrying.
func (s *Store) Get(ctx context.Context, resourceType, key string) (*Record, error) {
	ctx, span := s.startSpan(ctx, "store.Get", resourceType, key)
	defer span.End()

	var rec *Record
	err := s.do(ctx, "get", resourceType, s.transientOnly, false, func(ctx context.Context) error {
		r, err := s.backend.Get(ctx, resourceType, key)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, s.finish(span, err)
	}
	return rec, nil
}

// Put writes a record and returns its new version.
//
// A versioned put (expectedVersion >= 0) is retry-safe: the backend
// dedups on version, so a duplicate delivery surfaces as a
// ConflictError. An unversioned put that fails ambiguously (the request
// may have been delivered before the response was lost) returns
// UnknownOutcomeError instead of being retried, so a side effect is
// never silently applied twice.
func (s *Store) Put(ctx context.Context, resourceType, key string, payload []byte, expectedVersion int64) (int64, error) {
	ctx, span := s.startSpan(ctx, "store.Put", resourceType, key)
	defer span.End()

	unversioned := expectedVersion == NoVersion
	shouldRetry := s.transientOnly
	if unversioned {
		shouldRetry = func(err error) bool {
			return s.classify(err) == ClassTransient && !IsAmbiguous(err)
		}
	}

	var version int64
	err := s.do(ctx, "put", resourceType, shouldRetry, unversioned, func(ctx context.Context) error {
		v, err := s.backend.Put(ctx, resourceType, key, payload, expectedVersion)
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	if err != nil {
		return 0, s.finish(span, err)
	}
	return version, nil
}

// Delete removes a record. Deleting a missing record is a
// PermanentError wrapping ErrNotFound, returned without retrying.
func (s *Store) Delete(ctx context.Context, resourceType, key string) error {
	ctx, span := s.startSpan(ctx, "store.Delete", resourceType, key)
	defer span.End()

	err := s.do(ctx, "delete", resourceType, s.transientOnly, false, func(ctx context.Context) error {
		return s.backend.Delete(ctx, resourceType, key)
	})
	if err != nil {
		return s.finish(span, err)
	}
	return nil
}

// Query returns all records matching the filter. The backend iterator
// is drained inside the retried attempt, so a transient failure partway
// through a result stream restarts the query from scratch rather than
// resuming a broken iterator.
func (s *Store) Query(ctx context.Context, resourceType string, filter Filter) ([]*Record, error) {
	ctx, span := s.startSpan(ctx, "store.Query", resourceType, "")
	defer span.End()

	var records []*Record
	err := s.do(ctx, "query", resourceType, s.transientOnly, false, func(ctx context.Context) error {
		it, err := s.backend.Query(ctx, resourceType, filter)
		if err != nil {
			return err
		}
		defer it.Close()

		results := make([]*Record, 0)
		for {
			rec, err := it.Next(ctx)
			if err != nil {
				if err == ErrIteratorDone {
					break
				}
				return err
			}
			results = append(results, rec)
		}
		records = results
		return nil
	})
	if err != nil {
		return nil, s.finish(span, err)
	}
	span.SetAttributes(attribute.Int("store.results", len(records)))
	return records, nil
}

// QueryIn fetches all records whose field value is in values. The value
// list is split into chunks (backends cap "in" filters; Firestore-style
// stores allow 10) fetched concurrently, each chunk retried
// independently. Result order across chunks is unspecified.
func (s *Store) QueryIn(ctx context.Context, resourceType, field string, values []string) ([]*Record, error) {
	if len(values) == 0 {
		return nil, nil
	}

	ctx, span := s.startSpan(ctx, "store.QueryIn", resourceType, "")
	defer span.End()
	span.SetAttributes(attribute.Int("store.in_values", len(values)))

	chunkSize := s.config.GetQueryInChunkSize()
	var chunks [][]string
	for i := 0; i < len(values); i += chunkSize {
		end := i + chunkSize
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[i:end])
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		records  []*Record
	)
	sem := make(chan struct{}, s.config.GetQueryInConcurrency())

	for _, chunk := range chunks {
		wg.Add(1)
		go func(chunk []string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			filter := Filter{}.Where(field, OpIn, chunk)
			recs, err := s.Query(ctx, resourceType, filter)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				return
			}
			records = append(records, recs...)
		}(chunk)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, s.finish(span, firstErr)
	}
	return records, nil
}

// transientOnly is the default retry predicate.
func (s *Store) transientOnly(err error) bool {
	return s.classify(err) == ClassTransient
}

// do runs one logical operation through the retry loop and normalizes
// the terminal error onto the failure taxonomy. With unknownOnAmbiguous
// set, a terminal transient failure whose outcome is ambiguous becomes
// an UnknownOutcomeError rather than an UnavailableError.
func (s *Store) do(ctx context.Context, op, resourceType string, shouldRetry retry.ShouldRetryFunc, unknownOnAmbiguous bool, fn retry.Func) error {
	start := time.Now()
	attempts := 0

	err := retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
		attempts++
		retry.RecordAttempt(op, attempts)

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		return fn(ctx)
	}, &retry.Options{
		ShouldRetry: shouldRetry,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			retry.RecordBackoff(op, backoff.Seconds())
			s.logger.Warn("retrying store operation",
				observability.String("op", op),
				observability.String("resource_type", resourceType),
				observability.Int("attempt", attempt),
				observability.Duration("backoff", backoff),
				observability.Err(err),
			)
		},
		Backoff: s.backoff,
		Sleep:   s.sleep,
	})

	elapsed := time.Since(start)

	if err == nil {
		recordOperation(op, resourceType, nil, elapsed)
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && err == ctxErr {
		// Caller abandoned the operation; report that, not a class.
		recordOperation(op, resourceType, err, elapsed)
		return err
	}
	normalized := s.normalize(op, err, attempts, elapsed, unknownOnAmbiguous)
	recordOperation(op, resourceType, normalized, elapsed)
	return normalized
}

// normalize wraps a terminal error in its taxonomy type.
func (s *Store) normalize(op string, err error, attempts int, elapsed time.Duration, unknownOnAmbiguous bool) error {
	switch s.classify(err) {
	case ClassConflict:
		var ce *ConflictError
		if errors.As(err, &ce) {
			return err
		}
		return &ConflictError{Err: err}
	case ClassPermanent:
		var pe *PermanentError
		if errors.As(err, &pe) {
			return err
		}
		return &PermanentError{Err: err}
	default:
		if unknownOnAmbiguous && IsAmbiguous(err) {
			s.logger.Warn("write outcome unknown",
				observability.String("op", op),
				observability.Err(err),
			)
			return &UnknownOutcomeError{Op: op, Err: err}
		}
		retry.RecordExhausted(op)
		s.logger.Error("store operation unavailable",
			observability.String("op", op),
			observability.Int("attempts", attempts),
			observability.Duration("elapsed", elapsed),
			observability.Err(err),
		)
		return &UnavailableError{Op: op, Attempts: attempts, Elapsed: elapsed, Err: err}
	}
}

func (s *Store) startSpan(ctx context.Context, name, resourceType, key string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("store.resource_type", resourceType),
	}
	if key != "" {
		attrs = append(attrs, attribute.String("store.key", key))
	}
	return otel.Tracer(storeTracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func (s *Store) finish(span trace.Span, err error) error {
	span.SetAttributes(attribute.String("store.error_class", errClassLabel(err)))
	return err
}

func errClassLabel(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsUnknownOutcome(err):
		return "unknown_outcome"
	case IsUnavailable(err):
		return "unavailable"
	case IsConflict(err):
		return "conflict"
	case IsPermanent(err):
		return "permanent"
	default:
		return "other"
	}
}
