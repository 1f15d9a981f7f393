// Package postgres stores documents as JSONB rows and fans out change
// notifications through LISTEN/NOTIFY.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"video-subscription-storefront/internal/domain"
	"video-subscription-storefront/internal/domain/ports/repository"
	"video-subscription-storefront/internal/infra/db/docpath"
	"video-subscription-storefront/internal/infra/logging"
	"video-subscription-storefront/internal/infra/metrics"
)

// NotifyChannel is the LISTEN/NOTIFY channel carrying changed document paths.
const NotifyChannel = "documents"

// Ensure interface compliance
var _ repository.DocumentStore = (*DocumentStore)(nil)

type DocumentStore struct {
	pool *pgxpool.Pool
	tm   *TxManager
	log  *zerolog.Logger

	mu     sync.Mutex
	subs   map[string]map[int]func(repository.Document)
	nextID int
}

func NewDocumentStore(pool *pgxpool.Pool, logger *zerolog.Logger) *DocumentStore {
	l := logger.With().Str("component", "DocumentStore").Logger()
	return &DocumentStore{
		pool: pool,
		tm:   NewTxManager(pool),
		log:  &l,
		subs: make(map[string]map[int]func(repository.Document)),
	}
}

func (s *DocumentStore) Get(ctx context.Context, path string) (repository.Document, error) {
	const sql = `SELECT data FROM documents WHERE path = $1;`
	var raw []byte
	if err := s.pool.QueryRow(ctx, sql, path).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get document %s: %w", path, err)
	}
	return decode(raw)
}

func (s *DocumentStore) Set(ctx context.Context, path string, doc repository.Document) error {
	if !docpath.Valid(path) {
		return fmt.Errorf("%w: path %q", domain.ErrInvalidArgument, path)
	}
	norm, err := docpath.Normalize(doc)
	if err != nil {
		return err
	}
	return s.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		return upsert(ctx, tx, path, norm)
	})
}

func (s *DocumentStore) Create(ctx context.Context, path string, doc repository.Document) (bool, error) {
	if !docpath.Valid(path) {
		return false, fmt.Errorf("%w: path %q", domain.ErrInvalidArgument, path)
	}
	raw, err := encode(doc)
	if err != nil {
		return false, err
	}
	const sql = `
INSERT INTO documents (path, collection, data)
VALUES ($1, $2, $3::jsonb)
ON CONFLICT (path) DO NOTHING;
`
	var created bool
	err = s.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, sql, path, docpath.Collection(path), raw)
		if err != nil {
			return fmt.Errorf("create document %s: %w", path, err)
		}
		created = tag.RowsAffected() == 1
		if !created {
			return nil
		}
		return notify(ctx, tx, path)
	})
	return created, err
}

func (s *DocumentStore) MergeUpdate(ctx context.Context, path string, partial repository.Document) error {
	if !docpath.Valid(path) {
		return fmt.Errorf("%w: path %q", domain.ErrInvalidArgument, path)
	}
	norm, err := docpath.Normalize(partial)
	if err != nil {
		return err
	}
	// The empty insert makes the row lockable when it did not exist yet.
	const ensure = `
INSERT INTO documents (path, collection, data)
VALUES ($1, $2, '{}'::jsonb)
ON CONFLICT (path) DO NOTHING;
`
	return s.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, ensure, path, docpath.Collection(path)); err != nil {
			return fmt.Errorf("merge document %s: %w", path, err)
		}
		doc, err := lockRow(ctx, tx, path)
		if err != nil {
			return err
		}
		docpath.Apply(doc, norm)
		return upsert(ctx, tx, path, doc)
	})
}

func (s *DocumentStore) CompareAndMerge(ctx context.Context, path, field string, expected any, partial repository.Document) (bool, error) {
	norm, err := docpath.Normalize(partial)
	if err != nil {
		return false, err
	}
	var applied bool
	err = s.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		applied = false
		doc, err := lockRow(ctx, tx, path)
		if err != nil {
			return err
		}
		cur, _ := docpath.Lookup(doc, field)
		if !docpath.Equal(cur, expected) {
			return nil
		}
		docpath.Apply(doc, norm)
		if err := upsert(ctx, tx, path, doc); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (s *DocumentStore) Query(ctx context.Context, collection, field string, value any) (map[string]repository.Document, error) {
	want, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode query value: %w", err)
	}
	const sql = `
SELECT path, data
  FROM documents
 WHERE collection = $1
   AND data -> $2 = $3::jsonb;
`
	rows, err := s.pool.Query(ctx, sql, collection, field, string(want))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return collect(rows)
}

func (s *DocumentStore) List(ctx context.Context, collection string) (map[string]repository.Document, error) {
	const sql = `SELECT path, data FROM documents WHERE collection = $1;`
	rows, err := s.pool.Query(ctx, sql, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return collect(rows)
}

// Subscribe registers onChange and delivers the current snapshot. Later
// changes arrive through Listen, which must be running.
func (s *DocumentStore) Subscribe(ctx context.Context, path string, onChange func(repository.Document)) (func(), error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.subs[path] == nil {
		s.subs[path] = make(map[int]func(repository.Document))
	}
	s.subs[path][id] = onChange
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[path], id)
			if len(s.subs[path]) == 0 {
				delete(s.subs, path)
			}
			s.mu.Unlock()
		})
	}

	doc, err := s.Get(ctx, path)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		onChange(nil)
	case err != nil:
		cancel()
		return nil, err
	default:
		onChange(doc)
	}
	return cancel, nil
}

// Listen holds a dedicated connection on NotifyChannel and dispatches every
// change to the subscribers of its path. It reconnects until ctx is done.
func (s *DocumentStore) Listen(ctx context.Context) error {
	for {
		err := s.listenOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		metrics.IncDocumentListenerReconnect()
		s.log.Warn().Err(err).Msg("document listener dropped; reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func (s *DocumentStore) listenOnce(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return err
	}
	s.log.Info().Str("channel", NotifyChannel).Msg("listening for document changes")
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		s.dispatch(ctx, n.Payload)
	}
}

func (s *DocumentStore) dispatch(ctx context.Context, path string) {
	s.mu.Lock()
	fns := make([]func(repository.Document), 0, len(s.subs[path]))
	for _, fn := range s.subs[path] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	if len(fns) == 0 {
		return
	}

	doc, err := s.Get(ctx, path)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		logging.With(ctx, s.log).Error().Err(err).Str("path", path).Msg("reload changed document")
		return
	}
	for _, fn := range fns {
		if doc == nil {
			fn(nil)
			continue
		}
		cp, _ := docpath.Normalize(doc)
		fn(cp)
	}
}

// ObservePool exports connection pool gauges.
func (s *DocumentStore) ObservePool() {
	st := s.pool.Stat()
	metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
}

func lockRow(ctx context.Context, tx pgx.Tx, path string) (map[string]any, error) {
	const sql = `SELECT data FROM documents WHERE path = $1 FOR UPDATE;`
	var raw []byte
	if err := tx.QueryRow(ctx, sql, path).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lock document %s: %w", path, err)
	}
	return decode(raw)
}

func upsert(ctx context.Context, tx Querier, path string, doc map[string]any) error {
	raw, err := encode(doc)
	if err != nil {
		return err
	}
	const sql = `
INSERT INTO documents (path, collection, data)
VALUES ($1, $2, $3::jsonb)
ON CONFLICT (path) DO UPDATE
  SET data       = EXCLUDED.data,
      updated_at = now();
`
	if _, err := tx.Exec(ctx, sql, path, docpath.Collection(path), raw); err != nil {
		return fmt.Errorf("write document %s: %w", path, err)
	}
	return notify(ctx, tx, path)
}

// notify is delivered by Postgres only when tx commits.
func notify(ctx context.Context, tx Querier, path string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2);`, NotifyChannel, path); err != nil {
		return fmt.Errorf("notify %s: %w", path, err)
	}
	return nil
}

func collect(rows pgx.Rows) (map[string]repository.Document, error) {
	defer rows.Close()
	out := make(map[string]repository.Document)
	for rows.Next() {
		var (
			path string
			raw  []byte
		)
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, err
		}
		doc, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out[path] = doc
	}
	return out, rows.Err()
}

func encode(doc map[string]any) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(b), nil
}

func decode(raw []byte) (repository.Document, error) {
	doc := repository.Document{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
