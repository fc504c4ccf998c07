// Package docstore defines the contract with the remote document store:
// schemaless per-collection documents keyed by store-assigned IDs, with
// merge-writes and live change subscriptions redelivering full result sets.
package docstore

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("document not found")

type (
	// Document is a flat string-keyed payload. Supported values:
	// string, bool, int64, float64, time.Time and ServerTimestamp.
	Document map[string]interface{}

	Snapshot struct {
		ID   string
		Data Document
	}

	Filter struct {
		Field  string
		Equals interface{}
	}

	// Query filters a collection on field equality (ANDed) and orders it
	// by a single key.
	Query struct {
		Filters []Filter
		OrderBy string
		Desc    bool
	}

	// Store is the remote document store client.
	// Collections (and sub-collections) are addressed by slash-separated
	// paths, eg. "courses" or "courses/<id>/sessions".
	Store interface {
		// Add creates a document with a store-assigned ID and returns it.
		Add(ctx context.Context, path string, data Document) (string, error)
		// Get returns ErrNotFound when the document does not exist.
		Get(ctx context.Context, path, id string) (Snapshot, error)
		// Set writes a document. With merge=true only the fields present in
		// data overwrite; absent fields are left untouched.
		Set(ctx context.Context, path, id string, data Document, merge bool) error
		// Delete removes a document. Deleting a missing document is not an error.
		Delete(ctx context.Context, path, id string) error
		GetAll(ctx context.Context, path string, q Query) ([]Snapshot, error)
		// Listen opens a standing subscription on a query. Every change to the
		// collection redelivers the full re-ordered result set, in the order
		// the store's write log reflects them; fn may be invoked on arbitrary
		// goroutines.
		Listen(path string, q Query, fn func([]Snapshot)) (*Subscription, error)
	}
)

// ServerTimestamp is a sentinel value replaced by the store with its own
// clock at write time.
var ServerTimestamp = serverTimestamp{}

type serverTimestamp struct{}

// Subscription is the handle to a standing listener. Stop is idempotent.
type Subscription struct {
	stop func()
	once sync.Once
}

func NewSubscription(stop func()) *Subscription {
	return &Subscription{stop: stop}
}

func (s *Subscription) Stop() {
	if s == nil {
		return
	}
	s.once.Do(s.stop)
}

// Matches reports whether doc satisfies all the query filters.
func (q Query) Matches(doc Document) bool {
	for _, f := range q.Filters {
		if !valuesEqual(doc[f.Field], f.Equals) {
			return false
		}
	}
	return true
}

// Less orders two documents by the query's order key.
func (q Query) Less(a, b Document) bool {
	if q.OrderBy == "" {
		return false
	}
	less := valueLess(a[q.OrderBy], b[q.OrderBy])
	if q.Desc {
		return valueLess(b[q.OrderBy], a[q.OrderBy])
	}
	return less
}

func valuesEqual(a, b interface{}) bool {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return a == b
}

func valueLess(a, b interface{}) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av < bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Before(bv)
	case bool:
		bv, ok := b.(bool)
		return ok && !av && bv
	default:
		an, aok := numeric(a)
		bn, bok := numeric(b)
		return aok && bok && an < bn
	}
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Decode helpers for entity codecs; each reports whether the field is
// present with the expected type.

func String(d Document, key string) (string, bool) {
	s, ok := d[key].(string)
	return s, ok
}

func Bool(d Document, key string) (bool, bool) {
	b, ok := d[key].(bool)
	return b, ok
}

func Time(d Document, key string) (time.Time, bool) {
	t, ok := d[key].(time.Time)
	return t, ok
}

// Clone deep-copies a document so stored state is never aliased by callers.
func Clone(d Document) Document {
	cp := make(Document, len(d))
	for k, v := range d {
		cp[k] = v
	}
	return cp
}

// Merge overlays src onto dst, field by field.
func Merge(dst, src Document) {
	for k, v := range src {
		dst[k] = v
	}
}
