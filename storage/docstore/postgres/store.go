// Package pgstore implements docstore.Store on Postgres: one documents
// table with JSONB payloads, live subscriptions driven by LISTEN/NOTIFY.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/unitrack/unitrack/core"
	"github.com/unitrack/unitrack/storage/docstore"
)

const notifyChannel = "document_changes"

// timeLayout is fixed-width so JSONB text ordering on date keys stays
// lexicographically correct.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var fieldRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type Store struct {
	db     *sqlx.DB
	logger core.Logger

	mu        sync.Mutex
	pqListen  *pq.Listener
	listeners map[int]*liveQuery
	nextLID   int
}

type liveQuery struct {
	path string
	q    docstore.Query
	fn   func([]docstore.Snapshot)
}

var _ docstore.Store = (*Store)(nil)

func New(db *sqlx.DB, connInfo string, logger core.Logger) *Store {
	s := &Store{
		db:        db,
		logger:    logger,
		listeners: make(map[int]*liveQuery),
	}
	s.pqListen = pq.NewListener(connInfo, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Error(fmt.Sprintf("docstore: change listener event %d: %v", ev, err), err)
		}
	})
	go s.notificationLoop()
	return s
}

func (s *Store) Close() error {
	return s.pqListen.Close()
}

func (s *Store) Add(ctx context.Context, path string, data docstore.Document) (string, error) {
	id := uuid.New().String()
	if err := s.Set(ctx, path, id, data, false); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, path, id string) (docstore.Snapshot, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = $1 AND id = $2`, path, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return docstore.Snapshot{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Snapshot{}, errors.Wrap(err, "getting document")
	}
	doc, err := decodeDoc(raw)
	if err != nil {
		return docstore.Snapshot{}, errors.Wrap(err, "decoding document")
	}
	return docstore.Snapshot{ID: id, Data: doc}, nil
}

func (s *Store) Set(ctx context.Context, path, id string, data docstore.Document, merge bool) error {
	raw, stamps, err := encodeDoc(data)
	if err != nil {
		return errors.Wrap(err, "encoding document")
	}

	// ServerTimestamp fields resolve against the database clock
	dataExpr := "$3::jsonb"
	if len(stamps) > 0 {
		expr, err := stampExpr(stamps)
		if err != nil {
			return err
		}
		dataExpr += " || " + expr
	}

	var q string
	if merge {
		// jsonb || only overwrites the fields present in the payload
		q = fmt.Sprintf(`INSERT INTO documents (path, id, data) VALUES ($1, $2, %s)
		     ON CONFLICT (path, id) DO UPDATE SET data = documents.data || EXCLUDED.data, updated_at = now()`, dataExpr)
	} else {
		q = fmt.Sprintf(`INSERT INTO documents (path, id, data) VALUES ($1, $2, %s)
		     ON CONFLICT (path, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`, dataExpr)
	}
	if _, err = s.db.ExecContext(ctx, q, path, id, raw); err != nil {
		return errors.Wrap(err, "writing document")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, path, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE path = $1 AND id = $2`, path, id); err != nil {
		return errors.Wrap(err, "deleting document")
	}
	return nil
}

func (s *Store) GetAll(ctx context.Context, path string, q docstore.Query) ([]docstore.Snapshot, error) {
	query, args, err := buildQuery(path, q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying documents")
	}
	defer func() { _ = rows.Close() }()

	snaps := make([]docstore.Snapshot, 0)
	for rows.Next() {
		var id string
		var raw []byte
		if err = rows.Scan(&id, &raw); err != nil {
			return nil, errors.Wrap(err, "scanning document")
		}
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, errors.Wrap(err, "decoding document")
		}
		snaps = append(snaps, docstore.Snapshot{ID: id, Data: doc})
	}
	return snaps, errors.Wrap(rows.Err(), "querying documents")
}

func (s *Store) Listen(path string, q docstore.Query, fn func([]docstore.Snapshot)) (*docstore.Subscription, error) {
	if err := s.pqListen.Listen(notifyChannel); err != nil && err != pq.ErrChannelAlreadyOpen {
		return nil, errors.Wrap(err, "listening for document changes")
	}

	lq := &liveQuery{path: path, q: q, fn: fn}

	s.mu.Lock()
	s.nextLID++
	lid := s.nextLID
	s.listeners[lid] = lq
	s.redeliverLocked(lq)
	s.mu.Unlock()

	return docstore.NewSubscription(func() {
		s.mu.Lock()
		delete(s.listeners, lid)
		s.mu.Unlock()
	}), nil
}

// notificationLoop delivers on a single goroutine; per-listener snapshot
// order follows the change order the database reported.
func (s *Store) notificationLoop() {
	for n := range s.pqListen.Notify {
		if n == nil { // reconnect; state unknown, redeliver everything
			s.redeliverAll("")
			continue
		}
		s.redeliverAll(n.Extra)
	}
}

func (s *Store) redeliverAll(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lq := range s.listeners {
		if path == "" || lq.path == path {
			s.redeliverLocked(lq)
		}
	}
}

func (s *Store) redeliverLocked(lq *liveQuery) {
	snaps, err := s.GetAll(context.Background(), lq.path, lq.q)
	if err != nil {
		s.logger.Error(fmt.Sprintf("docstore: re-running live query %q: %v", lq.path, err), err)
		return
	}
	lq.fn(snaps)
}

func buildQuery(path string, q docstore.Query) (string, []interface{}, error) {
	query := `SELECT id, data FROM documents WHERE path = $1`
	args := []interface{}{path}

	for _, f := range q.Filters {
		if !fieldRegex.MatchString(f.Field) {
			return "", nil, errors.Errorf("invalid filter field %q", f.Field)
		}
		args = append(args, encodeFilterValue(f.Equals))
		query += fmt.Sprintf(" AND data->>'%s' = $%d", f.Field, len(args))
	}
	if q.OrderBy != "" {
		if !fieldRegex.MatchString(q.OrderBy) {
			return "", nil, errors.Errorf("invalid order field %q", q.OrderBy)
		}
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY data->>'%s' %s, id ASC", q.OrderBy, dir)
	} else {
		query += " ORDER BY id ASC"
	}
	return query, args, nil
}

func encodeFilterValue(v interface{}) string {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(timeLayout)
	}
	return fmt.Sprintf("%v", v)
}

// nowExpr renders now() in timeLayout; to_char caps at microseconds, so
// the nanosecond digits are zero-padded.
const nowExpr = `to_char(now() AT TIME ZONE 'utc', 'YYYY-MM-DD"T"HH24:MI:SS.US') || '000Z'`

// stampExpr builds the jsonb overlay resolving ServerTimestamp fields
// with the database clock at write time.
func stampExpr(keys []string) (string, error) {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if !fieldRegex.MatchString(k) {
			return "", errors.Errorf("invalid document field %q", k)
		}
		parts = append(parts, fmt.Sprintf("'%s', %s", k, nowExpr))
	}
	return "jsonb_build_object(" + strings.Join(parts, ", ") + ")", nil
}

// encodeDoc marshals the payload; ServerTimestamp sentinels are left out
// and returned as field names for stampExpr to resolve server-side.
func encodeDoc(data docstore.Document) ([]byte, []string, error) {
	enc := make(map[string]interface{}, len(data))
	var stamps []string
	for k, v := range data {
		switch tv := v.(type) {
		case time.Time:
			enc[k] = tv.UTC().Format(timeLayout)
		default:
			if v == docstore.ServerTimestamp {
				stamps = append(stamps, k)
				continue
			}
			enc[k] = v
		}
	}
	raw, err := json.Marshal(enc)
	return raw, stamps, err
}

func decodeDoc(raw []byte) (docstore.Document, error) {
	var dec map[string]interface{}
	if err := json.Unmarshal(raw, &dec); err != nil {
		return nil, err
	}
	doc := make(docstore.Document, len(dec))
	for k, v := range dec {
		if s, ok := v.(string); ok && len(s) == len(timeLayout) {
			if t, err := time.Parse(timeLayout, s); err == nil {
				doc[k] = t
				continue
			}
		}
		doc[k] = v
	}
	return doc, nil
}
