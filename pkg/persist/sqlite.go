package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// SQLiteFileName is the default database name inside a data directory.
const SQLiteFileName = "sitepass.db"

// DefaultPollInterval is how often SQLiteWatcher checks for commits.
const DefaultPollInterval = time.Second

// SQLite stores slots as rows of a single table. Several processes may open
// the same database file; SQLiteWatcher detects their commits.
type SQLite struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
	log    writeLog
}

// SQLiteOption configures a SQLite backend.
type SQLiteOption func(*SQLite)

// WithSQLiteLogger sets the logger used by the backend and its watchers.
func WithSQLiteLogger(logger *zap.Logger) SQLiteOption {
	return func(s *SQLite) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLite, error) {
	s := &SQLite{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
		return nil, fmt.Errorf("persist: failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("persist: failed to open database: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS slots (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: failed to create tables: %w", err)
	}
	if err := os.Chmod(path, FileMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: failed to set database permissions: %w", err)
	}

	s.db = db
	return s, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get returns the slot value.
func (s *SQLite) Get(key string) (string, bool, error) {
	value, ok, err := s.read(context.Background(), s.db, key)
	if err != nil {
		return "", false, err
	}
	s.log.recordWrite(key, value)
	return value, ok, nil
}

// queryer is satisfied by *sql.DB and *sql.Conn.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLite) read(ctx context.Context, q queryer, key string) (string, bool, error) {
	if err := ValidateKey(key); err != nil {
		return "", false, err
	}
	var value string
	err := q.QueryRowContext(ctx, "SELECT value FROM slots WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("persist: failed to read slot: %w", err)
	}
	return value, true, nil
}

// Set replaces the slot value.
func (s *SQLite) Set(key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	s.log.recordWrite(key, value)
	_, err := s.db.Exec(`
		INSERT INTO slots (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("persist: failed to save slot: %w", err)
	}
	return nil
}

// SQLiteWatcher polls PRAGMA data_version on a dedicated connection. The
// version changes whenever another connection commits, after which the slot
// is re-read and subscribers are notified if its content is new.
// It implements Notifier.
type SQLiteWatcher struct {
	mu       sync.Mutex
	store    *SQLite
	key      string
	interval time.Duration
	subs     subscribers
	conn     *sql.Conn
	version  int64
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// Watch creates a watcher for key polling at interval (DefaultPollInterval
// when zero or negative).
func (s *SQLite) Watch(key string, interval time.Duration) (*SQLiteWatcher, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &SQLiteWatcher{
		store:    s,
		key:      key,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Subscribe registers fn for external changes.
func (w *SQLiteWatcher) Subscribe(fn func()) func() {
	return w.subs.add(fn)
}

// Start pins a connection and begins polling. It does not block.
func (w *SQLiteWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	conn, err := w.store.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("persist: failed to open watcher connection: %w", err)
	}
	version, err := dataVersion(ctx, conn)
	if err != nil {
		conn.Close()
		return err
	}
	w.conn = conn
	w.version = version
	w.running = true

	go w.run(ctx)
	return nil
}

// Close stops polling and releases the pinned connection.
func (w *SQLiteWatcher) Close() error {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if !running {
		return nil
	}
	close(w.stopCh)
	<-w.doneCh
	return w.conn.Close()
}

func (w *SQLiteWatcher) run(ctx context.Context) {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *SQLiteWatcher) poll(ctx context.Context) {
	version, err := dataVersion(ctx, w.conn)
	if err != nil {
		w.store.logger.Warn("failed to poll data_version", zap.Error(err))
		return
	}
	if version == w.version {
		return
	}
	w.version = version

	value, _, err := w.store.read(ctx, w.conn, w.key)
	if err != nil {
		w.store.logger.Warn("failed to read slot after change", zap.String("key", w.key), zap.Error(err))
		return
	}
	if !w.store.log.external(w.key, value) {
		return
	}
	w.store.logger.Debug("external slot change", zap.String("key", w.key))
	w.subs.notify()
}

func dataVersion(ctx context.Context, conn *sql.Conn) (int64, error) {
	var version int64
	if err := conn.QueryRowContext(ctx, "PRAGMA data_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("persist: failed to read data_version: %w", err)
	}
	return version, nil
}
