// Package memorystore is an in-process docstore.Store used by tests and
// local runs.
package memorystore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unitrack/unitrack/storage/docstore"
)

type Store struct {
	mu        sync.RWMutex
	tables    map[string]map[string]docstore.Document
	listeners map[int]*listener
	nextLID   int

	// NowFunc is the store clock; mockable.
	NowFunc func() time.Time
}

var _ docstore.Store = (*Store)(nil)

func Open() *Store {
	return &Store{
		tables:    make(map[string]map[string]docstore.Document),
		listeners: make(map[int]*listener),
		NowFunc:   time.Now,
	}
}

// table lazily creates the collection; callers must hold the write lock.
// Read paths index s.tables directly so a fresh path stays read-only.
func (s *Store) table(path string) map[string]docstore.Document {
	tbl, ok := s.tables[path]
	if !ok {
		tbl = make(map[string]docstore.Document)
		s.tables[path] = tbl
	}
	return tbl
}

func (s *Store) Add(_ context.Context, path string, data docstore.Document) (string, error) {
	s.mu.Lock()
	id := uuid.New().String()
	s.table(path)[id] = s.resolve(data)
	s.notifyLocked(path)
	s.mu.Unlock()
	return id, nil
}

func (s *Store) Get(_ context.Context, path, id string) (docstore.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.tables[path][id]
	if !ok {
		return docstore.Snapshot{}, docstore.ErrNotFound
	}
	return docstore.Snapshot{ID: id, Data: docstore.Clone(doc)}, nil
}

func (s *Store) Set(_ context.Context, path, id string, data docstore.Document, merge bool) error {
	s.mu.Lock()
	tbl := s.table(path)
	doc := s.resolve(data)
	if prev, ok := tbl[id]; ok && merge {
		merged := docstore.Clone(prev)
		docstore.Merge(merged, doc)
		doc = merged
	}
	tbl[id] = doc
	s.notifyLocked(path)
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(_ context.Context, path, id string) error {
	s.mu.Lock()
	delete(s.tables[path], id)
	s.notifyLocked(path)
	s.mu.Unlock()
	return nil
}

func (s *Store) GetAll(_ context.Context, path string, q docstore.Query) ([]docstore.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resultSetLocked(path, q), nil
}

func (s *Store) Listen(path string, q docstore.Query, fn func([]docstore.Snapshot)) (*docstore.Subscription, error) {
	l := &listener{
		path: path,
		q:    q,
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()

	s.mu.Lock()
	s.nextLID++
	lid := s.nextLID
	s.listeners[lid] = l
	// initial snapshot
	l.deliver(s.resultSetLocked(path, q))
	s.mu.Unlock()

	return docstore.NewSubscription(func() {
		s.mu.Lock()
		delete(s.listeners, lid)
		s.mu.Unlock()
		close(l.done)
	}), nil
}

// resolve deep-copies the payload and replaces ServerTimestamp sentinels
// with the store clock.
func (s *Store) resolve(data docstore.Document) docstore.Document {
	doc := docstore.Clone(data)
	for k, v := range doc {
		if v == docstore.ServerTimestamp {
			doc[k] = s.NowFunc().UTC()
		}
	}
	return doc
}

func (s *Store) resultSetLocked(path string, q docstore.Query) []docstore.Snapshot {
	snaps := make([]docstore.Snapshot, 0)
	for id, doc := range s.tables[path] {
		if q.Matches(doc) {
			snaps = append(snaps, docstore.Snapshot{ID: id, Data: docstore.Clone(doc)})
		}
	}
	// tie-break on ID so equal order keys still sort deterministically
	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	sort.SliceStable(snaps, func(i, j int) bool { return q.Less(snaps[i].Data, snaps[j].Data) })
	return snaps
}

func (s *Store) notifyLocked(path string) {
	for _, l := range s.listeners {
		if l.path == path {
			l.deliver(s.resultSetLocked(l.path, l.q))
		}
	}
}

// listener redelivers result sets on its own goroutine, preserving the
// order in which changes were applied.
type listener struct {
	path string
	q    docstore.Query
	fn   func([]docstore.Snapshot)

	mu      sync.Mutex
	pending [][]docstore.Snapshot
	wake    chan struct{}
	done    chan struct{}
}

func (l *listener) deliver(snaps []docstore.Snapshot) {
	l.mu.Lock()
	l.pending = append(l.pending, snaps)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *listener) run() {
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
			for {
				l.mu.Lock()
				if len(l.pending) == 0 {
					l.mu.Unlock()
					break
				}
				snaps := l.pending[0]
				l.pending = l.pending[1:]
				l.mu.Unlock()

				select {
				case <-l.done:
					return
				default:
				}
				l.fn(snaps)
			}
		}
	}
}
