package cache

import (
	"database/sql"
	"errors"
	"strings"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

// ETagProvider stores entity tags computed from file contents, so that a
// file is hashed once per version instead of once per request.
// Keys identify a version of a variant (see package cachekey) and share the
// variant path as prefix.
//
// Implementations must be thread-safe!
type ETagProvider interface {
	// Get returns the stored entity tag for the given key, if it exists.
	// It also returns a boolean indicating whether retrieval was successful.
	Get(key string) (string, bool, error)
	// Put stores the entity tag under the given key.
	Put(key string, etag string) error
	// PurgePrefix removes all entries whose key starts with prefix,
	// i.e. all stored versions of one variant.
	PurgePrefix(prefix string) error
}

type MemCache struct {
	mutex *sync.RWMutex
	db    map[string]string
}

func NewMemCache() MemCache {
	return MemCache{
		mutex: &sync.RWMutex{},
		db:    make(map[string]string),
	}
}

func (m MemCache) Get(key string) (string, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	etag, ok := m.db[key]
	return etag, ok, nil
}

func (m MemCache) Put(key string, etag string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.db[key] = etag
	return nil
}

func (m MemCache) PurgePrefix(prefix string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for key := range m.db {
		if strings.HasPrefix(key, prefix) {
			delete(m.db, key)
		}
	}
	return nil
}

type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteCache creates a new store with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteCache(filename string) SQLiteCache {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS etags (
		key TEXT PRIMARY KEY,
		etag TEXT NOT NULL
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (s SQLiteCache) Get(key string) (string, bool, error) {
	var etag string
	err := s.db.QueryRow("SELECT etag FROM etags WHERE key = ?", key).Scan(&etag)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return etag, true, nil
}

func (s SQLiteCache) Put(key string, etag string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("INSERT OR REPLACE INTO etags (key, etag) VALUES (?, ?)", key, etag)
	return err
}

// PurgePrefix uses a range scan rather than LIKE, since paths may contain % and _.
func (s SQLiteCache) PurgePrefix(prefix string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM etags WHERE key >= ? AND key < ?", prefix, prefix+"\U0010FFFF")
	return err
}

func (s SQLiteCache) Close() error {
	return s.db.Close()
}
