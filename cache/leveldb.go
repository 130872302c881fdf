package cache

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type LevelDBCache struct {
	db *leveldb.DB
}

// NewLevelDBCache opens (or creates) the LevelDB database at path.
// If path is empty, the database is kept in memory.
func NewLevelDBCache(path string) (LevelDBCache, error) {
	var db *leveldb.DB
	var err error
	if path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return LevelDBCache{}, err
	}
	return LevelDBCache{db: db}, nil
}

func (l LevelDBCache) Get(key string) (string, bool, error) {
	b, err := l.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

func (l LevelDBCache) Put(key string, etag string) error {
	return l.db.Put([]byte(key), []byte(etag), nil)
}

func (l LevelDBCache) PurgePrefix(prefix string) error {
	it := l.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()

	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	if err := it.Error(); err != nil {
		return err
	}
	return l.db.Write(batch, nil)
}

func (l LevelDBCache) Close() error {
	return l.db.Close()
}
