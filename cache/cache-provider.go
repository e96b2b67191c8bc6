package cache

import (
	"database/sql"
	"net/http"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// Provider is an interface for a partitioned cache provider.
// It stores and retrieves []byte values, which represent HTTP response
// snapshots, keyed by request URL within a named partition.
// Partitions are the unit of eviction: entries are never expired by age,
// a whole partition is deleted when its generation goes stale.
//
// Implementations must be thread-safe. Writes are unconditional
// overwrites; the provider performs no read-modify-write transactions.
type Provider interface {
	// Put stores the given entry in the named partition,
	// overwriting any previous entry with the same key.
	// The partition is created implicitly on first write.
	Put(partition string, entry Entry) error
	// Match returns the entry stored under the given key in the named
	// partition, if it exists. The boolean indicates whether a match
	// was found.
	Match(partition, key string) (Entry, bool, error)
	// Delete removes the named partition and all of its entries.
	// Deleting a partition that does not exist is not an error.
	Delete(partition string) error
	// Names returns the names of all partitions that hold at least one entry.
	Names() ([]string, error)
	// Count returns the number of entries in the named partition.
	Count(partition string) (int, error)
}

// Entry is a single cached response snapshot.
type Entry struct {
	Key      string
	StoredAt time.Time
	// Bytes is the HTTP/1.1 wire-format snapshot of the response.
	Bytes []byte
}

// Key returns the cache key for a request: the full request URL
// with any fragment stripped. Only safe read requests are ever keyed,
// so the method is not part of the key.
func Key(r *http.Request) string {
	u := *r.URL
	u.Fragment = ""
	return u.String()
}

// SQLiteProvider is a Provider backed by a SQLite database.
type SQLiteProvider struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteProvider creates a new provider with the given filename as the db.
// If the file name is empty, a new in-memory db is opened.
func NewSQLiteProvider(filename string) SQLiteProvider {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		partition TEXT,
		key TEXT,
		stored_at INTEGER,
		bytes BLOB,
		PRIMARY KEY (partition, key)
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS partition_idx ON cache (partition)")
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return SQLiteProvider{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (s SQLiteProvider) Put(partition string, entry Entry) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec(`INSERT OR REPLACE INTO cache
		(partition, key, stored_at, bytes) VALUES (?, ?, ?, ?)`,
		partition, entry.Key, entry.StoredAt.Unix(), entry.Bytes)
	return err
}

func (s SQLiteProvider) Match(partition, key string) (Entry, bool, error) {
	var entry Entry
	var storedAt int64
	err := s.db.QueryRow(
		"SELECT key, stored_at, bytes FROM cache WHERE partition = ? AND key = ?",
		partition, key).Scan(&entry.Key, &storedAt, &entry.Bytes)
	if err == sql.ErrNoRows {
		return entry, false, nil
	}
	if err != nil {
		return entry, false, err
	}
	entry.StoredAt = time.Unix(storedAt, 0)
	return entry, true, nil
}

func (s SQLiteProvider) Delete(partition string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM cache WHERE partition = ?", partition)
	return err
}

func (s SQLiteProvider) Names() ([]string, error) {
	names := make([]string, 0)
	rows, err := s.db.Query("SELECT DISTINCT partition FROM cache ORDER BY partition")
	if err != nil {
		return names, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s SQLiteProvider) Count(partition string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM cache WHERE partition = ?", partition).Scan(&count)
	return count, err
}
