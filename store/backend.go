package store

import (
	"context"
	"time"
)

// NoVersion disables optimistic concurrency on a Put. Unversioned puts
// are not retry-safe; see Store.Put.
const NoVersion int64 = -1

// Record is one document unit in the remote store. The payload is
// opaque to this layer; entity shape validation happens upstream.
type Record struct {
	// Type is the resource type (collection) the record belongs to.
	Type string

	// Key uniquely identifies the record within its type.
	Key string

	// Payload is the serialized domain entity.
	Payload []byte

	// Version is the record's optimistic-concurrency version. Zero for
	// backends without versioning.
	Version int64

	// UpdatedAt is the backend's last-modified timestamp, if it has one.
	UpdatedAt time.Time
}

// Op is a filter comparison operator.
type Op string

// Filter comparison operators.
const (
	OpEqual          Op = "=="
	OpNotEqual       Op = "!="
	OpLessThan       Op = "<"
	OpLessOrEqual    Op = "<="
	OpGreaterThan    Op = ">"
	OpGreaterOrEqual Op = ">="
	OpIn             Op = "in"
)

// Condition is a single field predicate.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Filter selects records within a resource type. A zero Filter matches
// everything.
type Filter struct {
	// Conditions are ANDed together.
	Conditions []Condition

	// OrderBy sorts results by the named field, if non-empty.
	OrderBy string

	// Descending reverses the sort order.
	Descending bool

	// Limit caps the number of records returned. Zero means no limit.
	Limit int
}

// Where appends an equality or comparison condition and returns the
// filter for chaining.
func (f Filter) Where(field string, op Op, value any) Filter {
	f.Conditions = append(f.Conditions, Condition{Field: field, Op: op, Value: value})
	return f
}

// Iterator is a finite, per-call sequence of records. It is not safe
// for concurrent use and is not shared across calls.
type Iterator interface {
	// Next returns the next record, or ErrIteratorDone when the
	// sequence is exhausted.
	Next(ctx context.Context) (*Record, error)

	// Close releases resources held by the iterator.
	Close() error
}

// Backend is the narrow boundary to the remote document store. Each
// call may fail with a transport-level error; adapters may pre-classify
// failures with Transient, Permanent and Conflict, and must return
// ErrNotFound (possibly wrapped) for missing records.
type Backend interface {
	// Get fetches one record. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, resourceType, key string) (*Record, error)

	// Put writes a record and returns the new version. If
	// expectedVersion is NoVersion the write is unconditional; otherwise
	// the backend must reject a version mismatch with a conflict error.
	Put(ctx context.Context, resourceType, key string, payload []byte, expectedVersion int64) (int64, error)

	// Delete removes a record. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, resourceType, key string) error

	// Query returns an iterator over records matching the filter.
	Query(ctx context.Context, resourceType string, filter Filter) (Iterator, error)
}

// sliceIterator adapts an in-memory slice to the Iterator interface.
// Backend adapters that materialize results can reuse it.
type sliceIterator struct {
	records []*Record
	pos     int
}

// NewSliceIterator returns an Iterator over the given records.
func NewSliceIterator(records []*Record) Iterator {
	return &sliceIterator{records: records}
}

// Next implements Iterator.
func (it *sliceIterator) Next(ctx context.Context) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.records) {
		return nil, ErrIteratorDone
	}
	rec := it.records[it.pos]
	it.pos++
	return rec, nil
}

// Close implements Iterator.
func (it *sliceIterator) Close() error { return nil }
