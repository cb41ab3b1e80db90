// Package memstore provides an in-memory store.Backend for tests and
// local development. Records are versioned, so optimistic-concurrency
// behavior matches a real backend. Filters are evaluated against the
// record payload, which must be a JSON object for filtered queries.
package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/corefabric/gatekit/store"
)

// ErrVersionMismatch is the cause wrapped in conflict errors returned
// by versioned puts.
var ErrVersionMismatch = errors.New("memstore: version mismatch")

type record struct {
	payload   []byte
	version   int64
	updatedAt time.Time
}

// Backend is an in-memory implementation of store.Backend.
type Backend struct {
	mu     sync.RWMutex
	types  map[string]map[string]*record
	faults map[string][]error
}

// New creates an empty in-memory backend.
func New() *Backend {
	return &Backend{
		types:  make(map[string]map[string]*record),
		faults: make(map[string][]error),
	}
}

// FailNext queues errors to be returned by the next calls of the given
// operation ("get", "put", "delete", "query"), in order, before the
// real operation runs. Tests use this to script transient failures.
func (b *Backend) FailNext(op string, errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[op] = append(b.faults[op], errs...)
}

// popFault returns the next scripted error for op, if any.
func (b *Backend) popFault(op string) error {
	queue := b.faults[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	b.faults[op] = queue[1:]
	return err
}

// Get implements store.Backend.
func (b *Backend) Get(_ context.Context, resourceType, key string) (*store.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.popFault("get"); err != nil {
		return nil, err
	}

	rec, ok := b.types[resourceType][key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", resourceType, key, store.ErrNotFound)
	}

	return b.toRecord(resourceType, key, rec), nil
}

// Put implements store.Backend.
func (b *Backend) Put(_ context.Context, resourceType, key string, payload []byte, expectedVersion int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.popFault("put"); err != nil {
		return 0, err
	}

	byKey := b.types[resourceType]
	if byKey == nil {
		byKey = make(map[string]*record)
		b.types[resourceType] = byKey
	}

	var current int64
	if rec, ok := byKey[key]; ok {
		current = rec.version
	}

	if expectedVersion != store.NoVersion && expectedVersion != current {
		return 0, store.Conflict(fmt.Errorf("%s/%s: expected version %d, have %d: %w",
			resourceType, key, expectedVersion, current, ErrVersionMismatch))
	}

	next := current + 1
	byKey[key] = &record{
		payload:   append([]byte(nil), payload...),
		version:   next,
		updatedAt: time.Now(),
	}
	return next, nil
}

// Delete implements store.Backend.
func (b *Backend) Delete(_ context.Context, resourceType, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.popFault("delete"); err != nil {
		return err
	}

	if _, ok := b.types[resourceType][key]; !ok {
		return fmt.Errorf("%s/%s: %w", resourceType, key, store.ErrNotFound)
	}
	delete(b.types[resourceType], key)
	return nil
}

// Query implements store.Backend.
func (b *Backend) Query(_ context.Context, resourceType string, filter store.Filter) (store.Iterator, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.popFault("query"); err != nil {
		return nil, err
	}

	var results []*store.Record
	for key, rec := range b.types[resourceType] {
		ok, err := matches(rec.payload, filter.Conditions)
		if err != nil {
			return nil, store.Permanent(err)
		}
		if ok {
			results = append(results, b.toRecord(resourceType, key, rec))
		}
	}

	if filter.OrderBy != "" {
		sortRecords(results, filter.OrderBy, filter.Descending)
	} else {
		sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	}

	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}

	return store.NewSliceIterator(results), nil
}

func (b *Backend) toRecord(resourceType, key string, rec *record) *store.Record {
	return &store.Record{
		Type:      resourceType,
		Key:       key,
		Payload:   append([]byte(nil), rec.payload...),
		Version:   rec.version,
		UpdatedAt: rec.updatedAt,
	}
}

// matches evaluates ANDed conditions against a JSON object payload.
func matches(payload []byte, conditions []store.Condition) (bool, error) {
	if len(conditions) == 0 {
		return true, nil
	}

	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return false, fmt.Errorf("memstore: payload is not a JSON object: %w", err)
	}

	for _, cond := range conditions {
		value, ok := doc[cond.Field]
		if !ok {
			return false, nil
		}
		match, err := compare(value, cond.Op, cond.Value)
		if err != nil {
			return false, err
		}
		if !match {
			return false, nil
		}
	}
	return true, nil
}

func compare(value any, op store.Op, want any) (bool, error) {
	switch op {
	case store.OpEqual:
		return equal(value, want), nil
	case store.OpNotEqual:
		return !equal(value, want), nil
	case store.OpIn:
		switch list := want.(type) {
		case []string:
			for _, item := range list {
				if equal(value, item) {
					return true, nil
				}
			}
			return false, nil
		case []any:
			for _, item := range list {
				if equal(value, item) {
					return true, nil
				}
			}
			return false, nil
		default:
			return false, fmt.Errorf("memstore: %q filter needs a list, got %T", op, want)
		}
	case store.OpLessThan, store.OpLessOrEqual, store.OpGreaterThan, store.OpGreaterOrEqual:
		a, aok := toFloat(value)
		b, bok := toFloat(want)
		if !aok || !bok {
			return false, fmt.Errorf("memstore: %q filter needs numeric operands", op)
		}
		switch op {
		case store.OpLessThan:
			return a < b, nil
		case store.OpLessOrEqual:
			return a <= b, nil
		case store.OpGreaterThan:
			return a > b, nil
		default:
			return a >= b, nil
		}
	default:
		return false, fmt.Errorf("memstore: unsupported filter operator %q", op)
	}
}

func equal(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func sortRecords(records []*store.Record, field string, descending bool) {
	key := func(rec *store.Record) any {
		var doc map[string]any
		if err := json.Unmarshal(rec.Payload, &doc); err != nil {
			return nil
		}
		return doc[field]
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := key(records[i]), key(records[j])
		var less bool
		if af, ok := toFloat(a); ok {
			bf, _ := toFloat(b)
			less = af < bf
		} else {
			less = fmt.Sprint(a) < fmt.Sprint(b)
		}
		if descending {
			return !less
		}
		return less
	})
}
