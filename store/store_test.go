package store_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corefabric/gatekit/store"
	"github.com/corefabric/gatekit/store/memstore"
)

// fastSleep skips real waiting between attempts.
func fastSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func newStore(t *testing.T, backend store.Backend, cfg *store.Config) *store.Store {
	t.Helper()
	return store.New(backend, cfg, store.WithSleep(fastSleep))
}

func seed(t *testing.T, backend *memstore.Backend, resourceType, key, payload string) {
	t.Helper()
	_, err := backend.Put(context.Background(), resourceType, key, []byte(payload), store.NoVersion)
	require.NoError(t, err)
}

func TestStore_Get(t *testing.T) {
	t.Parallel()

	backend := memstore.New()
	seed(t, backend, "series", "s1", `{"title":"first"}`)
	s := newStore(t, backend, nil)

	rec, err := s.Get(context.Background(), "series", "s1")

	require.NoError(t, err)
	assert.Equal(t, "series", rec.Type)
	assert.Equal(t, "s1", rec.Key)
	assert.JSONEq(t, `{"title":"first"}`, string(rec.Payload))
	assert.EqualValues(t, 1, rec.Version)
}

func TestStore_Get_NotFoundIsPermanentWithZeroRetries(t *testing.T) {
	t.Parallel()

	backend := memstore.New()
	s := newStore(t, backend, &store.Config{MaxAttempts: 5})

	_, err := s.Get(context.Background(), "series", "s1")

	require.Error(t, err)
	assert.True(t, store.IsPermanent(err))
	assert.True(t, store.IsNotFound(err))
	// A scripted failure for a second attempt must still be queued:
	// a permanent failure takes exactly one attempt.
	backend.FailNext("get", errors.New("never reached"))
	rec, err := backend.Get(context.Background(), "x", "y")
	assert.Nil(t, rec)
	assert.EqualError(t, err, "never reached")
}

func TestStore_Get_RetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	backend := memstore.New()
	seed(t, backend, "series", "s1", `{"title":"first"}`)
	backend.FailNext("get", context.DeadlineExceeded, store.Transient(errors.New("reset")))
	s := newStore(t, backend, &store.Config{MaxAttempts: 3})

	rec, err := s.Get(context.Background(), "series", "s1")

	require.NoError(t, err)
	assert.Equal(t, "s1", rec.Key)
}

func TestStore_Get_ExhaustsBudgetToUnavailable(t *testing.T) {
	t.Parallel()

	backend := memstore.New()
	seed(t, backend, "series", "s1", `{"title":"first"}`)
	backend.FailNext("get",
		context.DeadlineExceeded,
		context.DeadlineExceeded,
		context.DeadlineExceeded,
		errors.New("fourth attempt must not happen"),
	)
	s := newStore(t, backend, &store.Config{MaxAttempts: 3})

	_, err := s.Get(context.Background(), "series", "s1")

	require.Error(t, err)
	var unavailable *store.UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 3, unavailable.Attempts)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStore_Put_Unversioned(t *testing.T) {
	t.Parallel()

	backend := memstore.New()
	s := newStore(t, backend, nil)

	version, err := s.Put(context.Background(), "series", "s1", []byte(`{"title":"first"}`), store.NoVersion)

	require.NoError(t, err)
	assert.EqualValues(t, 1, version)
}

func TestStore_Put_VersionConflictNotRetried(t *testing.T) {
	t.Parallel()

	backend := memstore.New()
	seed(t, backend, "series", "s1", `{"title":"first"}`)
	s := newStore(t, backend, &store.Config{MaxAttempts: 5})

	_, err := s.Put(context.Background(), "series", "s1", []byte(`{"title":"second"}`), 7)

	require.Error(t, err)
	assert.True(t, store.IsConflict(err))
	assert.ErrorIs(t, err, memstore.ErrVersionMismatch)
}

func TestStore_Put_AmbiguousUnversionedReportsUnknownOutcome(t *testing.T) {
	t.Parallel()

	backend := memstore.New()
	backend.FailNext("put", context.DeadlineExceeded)
	s := newStore(t, backend, &store.Config{MaxAttempts: 5})

	_, err := s.Put(context.Background(), "series", "s1", []byte(`{}`), store.NoVersion)

	require.Error(t, err)
	assert.True(t, store.IsUnknownOutcome(err))

	// The write was never retried: the scripted failure consumed the
	// only attempt, so the record must not exist.
	_, err = s.Get(context.Background(), "series", "s1")
	assert.True(t, store.IsNotFound(err))
}

func TestStore_Put_NonAmbiguousUnversionedIsRetried(t *testing.T) {
	t.Parallel()

	backend := memstore.New()
	// A refused connection means the request never reached the backend,
	// so an unversioned put is safe to retry.
	backend.FailNext("put", store.Transient(errors.New("connection refused")))
	s := newStore(t, backend, &store.Config{MaxAttempts: 3})

	version, err := s.Put(context.Background(), "series", "s1", []byte(`{}`), store.NoVersion)

	require.NoError(t, err)
	assert.EqualValues(t, 1, version)
}

func TestStore_Put_VersionedRetriesAmbiguousFailures(t *testing.T) {
	t.Parallel()

	backend := memstore.New()
	seed(t, backend, "series", "s1", `{"title":"first"}`)
	backend.FailNext("put", context.DeadlineExceeded)
	s := newStore(t, backend, &store.Config{MaxAttempts: 3})

	version, err := s.Put(context.Background(), "series", "s1", []byte(`{"title":"second"}`), 1)

	require.NoError(t, err)
	assert.EqualValues(t, 2, version)
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()

	backend := memstore.New()
	seed(t, backend, "series", "s1", `{}`)
	s := newStore(t, backend, nil)

	require.NoError(t, s.Delete(context.Background(), "series", "s1"))

	err := s.Delete(context.Background(), "series", "s1")
	assert.True(t, store.IsPermanent(err))
	assert.True(t, store.IsNotFound(err))
}

func TestStore_Query(t *testing.T) {
	t.Parallel()

	backend := memstore.New()
	seed(t, backend, "series", "s1", `{"genre":"drama","order":2}`)
	seed(t, backend, "series", "s2", `{"genre":"drama","order":1}`)
	seed(t, backend, "series", "s3", `{"genre":"news","order":3}`)
	s := newStore(t, backend, nil)

	records, err := s.Query(context.Background(), "series",
		store.Filter{OrderBy: "order"}.Where("genre", store.OpEqual, "drama"))

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "s2", records[0].Key)
	assert.Equal(t, "s1", records[1].Key)
}

func TestStore_Query_RetriedOnTransient(t *testing.T) {
	t.Parallel()

	backend := memstore.New()
	seed(t, backend, "series", "s1", `{"genre":"drama"}`)
	backend.FailNext("query", store.Transient(errors.New("throttled")))
	s := newStore(t, backend, &store.Config{MaxAttempts: 2})

	records, err := s.Query(context.Background(), "series", store.Filter{})

	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestStore_QueryIn_ChunksAndMerges(t *testing.T) {
	t.Parallel()

	backend := memstore.New()
	var wanted []string
	for i := 0; i < 25; i++ {
		key := fmt.Sprintf("s%02d", i)
		seed(t, backend, "series", key, fmt.Sprintf(`{"serie_uuid":"%s"}`, key))
		if i%2 == 0 {
			wanted = append(wanted, key)
		}
	}
	s := newStore(t, backend, nil)

	records, err := s.QueryIn(context.Background(), "series", "serie_uuid", wanted)

	require.NoError(t, err)
	var got []string
	for _, rec := range records {
		got = append(got, rec.Key)
	}
	sort.Strings(got)
	assert.Equal(t, wanted, got)
}

func TestStore_QueryIn_EmptyValues(t *testing.T) {
	t.Parallel()

	s := newStore(t, memstore.New(), nil)

	records, err := s.QueryIn(context.Background(), "series", "serie_uuid", nil)

	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestStore_QueryIn_PropagatesFailure(t *testing.T) {
	t.Parallel()

	backend := memstore.New()
	seed(t, backend, "series", "s1", `{"serie_uuid":"s1"}`)
	backend.FailNext("query", store.Permanent(errors.New("bad filter")))
	s := newStore(t, backend, &store.Config{QueryInConcurrency: 1})

	_, err := s.QueryIn(context.Background(), "series", "serie_uuid", []string{"s1"})

	require.Error(t, err)
	assert.True(t, store.IsPermanent(err))
}

func TestStore_CancellationAbortsRetryLoop(t *testing.T) {
	t.Parallel()

	backend := memstore.New()
	for i := 0; i < 10; i++ {
		backend.FailNext("get", store.Transient(errors.New("down")))
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := store.New(backend, &store.Config{MaxAttempts: 10},
		store.WithSleep(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}))

	_, err := s.Get(ctx, "series", "s1")

	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_CustomClassifier(t *testing.T) {
	t.Parallel()

	backend := memstore.New()
	backend.FailNext("get", errors.New("weird backend error"))
	s := store.New(backend, &store.Config{MaxAttempts: 5},
		store.WithSleep(fastSleep),
		store.WithClassifier(func(error) store.Class { return store.ClassPermanent }))

	_, err := s.Get(context.Background(), "series", "s1")

	assert.True(t, store.IsPermanent(err))
}
