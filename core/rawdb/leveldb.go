// leveldb.go provides a disk-backed Database implementation on top of
// github.com/syndtr/goleveldb, so state and chain data can survive a process
// restart. MemoryDB remains the default for tests; LevelDB is what
// cmd/guillotine opens at --db-dir for a persistent node.
package rawdb

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB is a Database backed by a single goleveldb handle. All column
// families share the one handle and one leveldb.Batch per write, so a batch
// can span families atomically (the cross-family write batch decision
// recorded in DESIGN.md).
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (creating if absent) a goleveldb database at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Has(key []byte) (bool, error) {
	return l.db.Has(key, nil)
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	v, err := l.db.Get(key, nil)
	if err == errors.ErrNotFound {
		return nil, ErrNotFound
	}
	return v, err
}

func (l *LevelDB) Put(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelDB) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}

// NewBatch returns a batch that applies atomically via a native leveldb.Batch.
func (l *LevelDB) NewBatch() Batch {
	return &levelBatch{db: l.db}
}

// NewIterator returns an iterator over all keys with the given prefix.
func (l *LevelDB) NewIterator(prefix []byte) Iterator {
	var rng *util.Range
	if len(prefix) > 0 {
		rng = util.BytesPrefix(prefix)
	}
	return &levelIterator{it: l.db.NewIterator(rng, nil)}
}

// --- Batch ---

type levelBatch struct {
	db    *leveldb.DB
	batch leveldb.Batch
	size  int
}

func (b *levelBatch) Put(key, value []byte) error {
	b.batch.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}

func (b *levelBatch) Delete(key []byte) error {
	b.batch.Delete(key)
	b.size += len(key)
	return nil
}

func (b *levelBatch) ValueSize() int { return b.size }

func (b *levelBatch) Write() error {
	return b.db.Write(&b.batch, nil)
}

func (b *levelBatch) Reset() {
	b.batch.Reset()
	b.size = 0
}

// --- Iterator ---

// levelIterator adapts goleveldb's iterator to the Iterator interface.
type levelIterator struct {
	it iterator.Iterator
}

func (it *levelIterator) Next() bool { return it.it.Next() }

func (it *levelIterator) Key() []byte {
	k := it.it.Key()
	cp := make([]byte, len(k))
	copy(cp, k)
	return cp
}

func (it *levelIterator) Value() []byte {
	v := it.it.Value()
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp
}

func (it *levelIterator) Release() { it.it.Release() }
