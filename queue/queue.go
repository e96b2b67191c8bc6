// Package queue persists lead submissions that could not be delivered,
// so they can be replayed when connectivity returns.
package queue

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"
)

// Submission is one pending lead-submission payload.
type Submission struct {
	ID       string
	Kind     string
	Payload  []byte
	QueuedAt time.Time
}

// NewSubmission creates a submission of the given kind with a fresh id.
func NewSubmission(kind string, payload []byte) Submission {
	return Submission{
		ID:       uuid.NewString(),
		Kind:     kind,
		Payload:  payload,
		QueuedAt: time.Now(),
	}
}

// Store is an ordered, append-only store of pending submissions.
// The queue only ever shrinks by being cleared in full after a
// replay pass; individual entries are never removed.
//
// Implementations must be thread-safe.
type Store interface {
	// Append adds a submission to the end of the queue.
	Append(Submission) error
	// All returns every queued submission in insertion order.
	All() ([]Submission, error)
	// Clear removes every queued submission.
	Clear() error
}

// SQLiteStore is a Store backed by a SQLite database.
type SQLiteStore struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteStore creates a new store with the given filename as the db.
// If the file name is empty, a new in-memory db is opened.
func NewSQLiteStore(filename string) SQLiteStore {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS submissions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT,
		kind TEXT,
		payload BLOB,
		queued_at INTEGER
	)`)
	if err != nil {
		panic(err)
	}
	return SQLiteStore{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (s SQLiteStore) Append(sub Submission) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec(
		"INSERT INTO submissions (id, kind, payload, queued_at) VALUES (?, ?, ?, ?)",
		sub.ID, sub.Kind, sub.Payload, sub.QueuedAt.Unix())
	return err
}

func (s SQLiteStore) All() ([]Submission, error) {
	subs := make([]Submission, 0)
	rows, err := s.db.Query(
		"SELECT id, kind, payload, queued_at FROM submissions ORDER BY seq")
	if err != nil {
		return subs, err
	}
	defer rows.Close()
	for rows.Next() {
		var sub Submission
		var queuedAt int64
		if err := rows.Scan(&sub.ID, &sub.Kind, &sub.Payload, &queuedAt); err != nil {
			return subs, err
		}
		sub.QueuedAt = time.Unix(queuedAt, 0)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s SQLiteStore) Clear() error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM submissions")
	return err
}

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu   sync.Mutex
	subs []Submission
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(sub Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, sub)
	return nil
}

func (m *MemoryStore) All() ([]Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := make([]Submission, len(m.subs))
	copy(subs, m.subs)
	return subs, nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = nil
	return nil
}
