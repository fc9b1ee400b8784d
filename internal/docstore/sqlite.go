package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	jerrors "trade-journal/internal/errors"
)

// SQLiteStore implements DocumentStore using SQLite.
// Change notifications are delivered in-process, so every writer of a
// collection must go through the same SQLiteStore.
type SQLiteStore struct {
	db     *sql.DB
	log    zerolog.Logger
	mu     sync.Mutex
	subs   map[string]map[uint64]*listener
	nextID uint64
	closed bool
	wg     sync.WaitGroup
}

type listener struct {
	id         uint64
	collection string
	notify     chan struct{}
	stop       chan struct{}
	once       sync.Once
	onSnapshot func(Snapshot)
	onError    func(error)
}

// NewSQLiteStore creates a new SQLite-backed document store.
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:   db,
		log:  logger.With().Str("component", "docstore").Logger(),
		subs: make(map[string]map[uint64]*listener),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		body BLOB NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close cancels all subscriptions and closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var all []*listener
	for _, ls := range s.subs {
		for _, l := range ls {
			all = append(all, l)
		}
	}
	s.subs = make(map[string]map[uint64]*listener)
	s.mu.Unlock()

	for _, l := range all {
		l.once.Do(func() { close(l.stop) })
	}
	s.wg.Wait()

	return s.db.Close()
}

// ============================================================================
// Writes
// ============================================================================

// BatchSet creates or overwrites documents in a single transaction.
func (s *SQLiteStore) BatchSet(ctx context.Context, collection string, docs []Document) error {
	if !ValidCollection(collection) {
		return fmt.Errorf("invalid collection path: %q", collection)
	}
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO documents (collection, id, body, updated_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("document id is required")
		}
		if _, err := stmt.ExecContext(ctx, collection, d.ID, d.Body, now); err != nil {
			return fmt.Errorf("failed to write document %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notify(collection)
	return nil
}

// Update replaces the body of an existing document.
func (s *SQLiteStore) Update(ctx context.Context, collection, id string, body []byte) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET body = ?, updated_at = ? WHERE collection = ? AND id = ?
	`, body, time.Now().UTC(), collection, id)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %s/%s", jerrors.ErrDocumentNotFound, collection, id)
	}

	s.notify(collection)
	return nil
}

// Delete removes a document.
func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM documents WHERE collection = ? AND id = ?
	`, collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		s.notify(collection)
	}
	return nil
}

// ============================================================================
// Reads
// ============================================================================

// Get reads a single document.
func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (Document, error) {
	d := Document{ID: id}
	err := s.db.QueryRowContext(ctx, `
		SELECT body, updated_at FROM documents WHERE collection = ? AND id = ?
	`, collection, id).Scan(&d.Body, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return Document{}, fmt.Errorf("%w: %s/%s", jerrors.ErrDocumentNotFound, collection, id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to get document: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) query(ctx context.Context, collection string) (Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, body, updated_at FROM documents WHERE collection = ? ORDER BY id ASC
	`, collection)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to query collection: %w", err)
	}
	defer rows.Close()

	snap := Snapshot{Collection: collection, Documents: []Document{}}
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Body, &d.UpdatedAt); err != nil {
			return Snapshot{}, fmt.Errorf("failed to scan document: %w", err)
		}
		snap.Documents = append(snap.Documents, d)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("error iterating documents: %w", err)
	}

	snap.ReadAt = time.Now()
	return snap, nil
}

// ============================================================================
// Subscriptions
// ============================================================================

// Subscribe starts a live query on a collection.
func (s *SQLiteStore) Subscribe(ctx context.Context, collection string, onSnapshot func(Snapshot), onError func(error)) (Unsubscribe, error) {
	if !ValidCollection(collection) {
		return nil, fmt.Errorf("invalid collection path: %q", collection)
	}
	if onSnapshot == nil {
		return nil, fmt.Errorf("snapshot handler is required")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("document store is closed")
	}
	s.nextID++
	l := &listener{
		id:         s.nextID,
		collection: collection,
		notify:     make(chan struct{}, 1),
		stop:       make(chan struct{}),
		onSnapshot: onSnapshot,
		onError:    onError,
	}
	if s.subs[collection] == nil {
		s.subs[collection] = make(map[uint64]*listener)
	}
	s.subs[collection][l.id] = l
	s.wg.Add(1)
	s.mu.Unlock()

	// Initial snapshot
	l.notify <- struct{}{}
	go s.listen(ctx, l)

	s.log.Debug().Str("collection", collection).Uint64("listener", l.id).Msg("Subscription opened")

	return func() {
		l.once.Do(func() { close(l.stop) })
		s.remove(l)
	}, nil
}

func (s *SQLiteStore) remove(l *listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ls, ok := s.subs[l.collection]; ok {
		delete(ls, l.id)
		if len(ls) == 0 {
			delete(s.subs, l.collection)
		}
	}
}

// notify wakes every listener on a collection. Pending wake-ups coalesce:
// a listener re-reads the whole collection, so one read covers many writes.
func (s *SQLiteStore) notify(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.subs[collection] {
		select {
		case l.notify <- struct{}{}:
		default:
		}
	}
}

func (s *SQLiteStore) listen(ctx context.Context, l *listener) {
	defer s.wg.Done()
	defer s.remove(l)

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		case <-l.notify:
		}

		snap, err := s.query(ctx, l.collection)

		select {
		case <-l.stop:
			return
		default:
		}

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Error().Err(err).Str("collection", l.collection).Msg("Subscription failed")
			if l.onError != nil {
				l.onError(err)
			}
			return
		}
		l.onSnapshot(snap)
	}
}

// ListenerCount returns the number of live subscriptions on a collection.
func (s *SQLiteStore) ListenerCount(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[collection])
}
