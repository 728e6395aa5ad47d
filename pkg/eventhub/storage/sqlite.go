package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// openSQLite opens path and applies the given schema statements.
// The path should be a file path or ":memory:" for testing.
func openSQLite(path string, schema ...string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A ":memory:" database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return db, nil
}

// SQLiteQueue is a DataQueue persisted to SQLite. Several named queues can
// share one database file.
type SQLiteQueue struct {
	db     *sql.DB
	name   string
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteQueue opens the queue called name in the database at path.
func NewSQLiteQueue(path, name string) (*SQLiteQueue, error) {
	db, err := openSQLite(path, `
		CREATE TABLE IF NOT EXISTS data_queue (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			queue TEXT NOT NULL,
			id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			data BLOB,
			UNIQUE (queue, id)
		)
	`, `
		CREATE INDEX IF NOT EXISTS idx_data_queue_queue
		ON data_queue(queue, seq)
	`)
	if err != nil {
		return nil, err
	}
	return &SQLiteQueue{db: db, name: name}, nil
}

// Add implements DataQueue.
func (q *SQLiteQueue) Add(rec Record) error {
	if rec.ID == "" {
		return ErrInvalidRecord
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := q.db.Exec(`
		INSERT INTO data_queue (queue, id, timestamp, data)
		VALUES (?, ?, ?, ?)
	`, q.name, rec.ID, ts.UTC().Format(time.RFC3339Nano), rec.Data)
	if err != nil {
		return fmt.Errorf("add record: %w", err)
	}
	return nil
}

// Peek implements DataQueue.
func (q *SQLiteQueue) Peek(n int) ([]Record, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, ErrClosed
	}
	if n <= 0 {
		return []Record{}, nil
	}

	rows, err := q.db.Query(`
		SELECT id, timestamp, data
		FROM data_queue
		WHERE queue = ?
		ORDER BY seq
		LIMIT ?
	`, q.name, n)
	if err != nil {
		return nil, fmt.Errorf("peek records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var timestamp string
		if err := rows.Scan(&rec.ID, &timestamp, &rec.Data); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Remove implements DataQueue.
func (q *SQLiteQueue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if _, err := q.db.Exec(`DELETE FROM data_queue WHERE queue = ? AND id = ?`, q.name, id); err != nil {
		return fmt.Errorf("remove record: %w", err)
	}
	return nil
}

// Clear implements DataQueue.
func (q *SQLiteQueue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if _, err := q.db.Exec(`DELETE FROM data_queue WHERE queue = ?`, q.name); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	return nil
}

// Count implements DataQueue.
func (q *SQLiteQueue) Count() (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return 0, ErrClosed
	}
	var n int
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM data_queue WHERE queue = ?`, q.name).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Close implements DataQueue.
func (q *SQLiteQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	return q.db.Close()
}

// SQLiteKV is a KVStore persisted to SQLite, scoped to a namespace.
type SQLiteKV struct {
	db        *sql.DB
	namespace string
	mu        sync.RWMutex
	closed    bool
}

// NewSQLiteKV opens the key-value namespace in the database at path.
func NewSQLiteKV(path, namespace string) (*SQLiteKV, error) {
	db, err := openSQLite(path, `
		CREATE TABLE IF NOT EXISTS kv (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value BLOB,
			updated TEXT NOT NULL,
			PRIMARY KEY (namespace, key)
		)
	`)
	if err != nil {
		return nil, err
	}
	return &SQLiteKV{db: db, namespace: namespace}, nil
}

// Get implements KVStore.
func (s *SQLiteKV) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	var value []byte
	err := s.db.QueryRow(`
		SELECT value FROM kv WHERE namespace = ? AND key = ?
	`, s.namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

// Set implements KVStore.
func (s *SQLiteKV) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	_, err := s.db.Exec(`
		INSERT INTO kv (namespace, key, value, updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			updated = excluded.updated
	`, s.namespace, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Delete implements KVStore.
func (s *SQLiteKV) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, err := s.db.Exec(`DELETE FROM kv WHERE namespace = ? AND key = ?`, s.namespace, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Close implements KVStore.
func (s *SQLiteKV) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
