package cachestore

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"wellsite/internal/logging"
)

// ErrCacheDeleted is returned when writing through a handle whose cache was
// deleted after it was opened.
var ErrCacheDeleted = errors.New("cache deleted")

const (
	namePrefix  = "n:"
	entryPrefix = "e:"
	sep         = "\x00"
)

// Store is a set of named durable caches in one leveldb database.
//
// Layout:
//
//	n:<cache>            -> creation time (unix nanos, gob)
//	e:<cache>\x00<key>   -> Entry (gob)
type Store struct {
	db  *leveldb.DB
	ram *ramCache

	// writers hold it shared; Delete holds it exclusively so no entry can
	// land in a cache while it is being dropped.
	mu sync.RWMutex

	overflowLog *logging.RateLimited
}

type Options struct {
	// RAMMax bounds the in-memory LRU in bytes. Zero disables it.
	RAMMax int64
	Log    *zap.Logger
}

func Open(path string, opts Options) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open cache store %s: %w", path, err)
	}
	return newStore(db, opts), nil
}

// OpenMem returns a store backed by leveldb's in-memory storage.
func OpenMem(opts Options) (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return newStore(db, opts), nil
}

func newStore(db *leveldb.DB, opts Options) *Store {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		db:          db,
		ram:         newRAMCache(opts.RAMMax),
		overflowLog: logging.NewRateLimited(log, zapcore.WarnLevel, time.Minute),
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func validName(name string) error {
	if name == "" || strings.Contains(name, sep) {
		return fmt.Errorf("invalid cache name %q", name)
	}
	return nil
}

func nameKey(name string) []byte { return []byte(namePrefix + name) }

func entryKey(name, key string) []byte { return []byte(entryPrefix + name + sep + key) }

func cachePrefix(name string) []byte { return []byte(entryPrefix + name + sep) }

// Open returns the named cache, creating it if needed.
func (s *Store) Open(name string) (*Cache, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.db.Has(nameKey(name), nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		b, err := encodeGob(time.Now().UnixNano())
		if err != nil {
			return nil, err
		}
		if err := s.db.Put(nameKey(name), b, nil); err != nil {
			return nil, err
		}
	}
	return &Cache{store: s, name: name}, nil
}

func (s *Store) Has(name string) (bool, error) {
	return s.db.Has(nameKey(name), nil)
}

// Keys lists cache names in creation order.
func (s *Store) Keys() ([]string, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte(namePrefix)), nil)
	defer it.Release()

	type named struct {
		name    string
		created int64
	}
	var all []named
	for it.Next() {
		var created int64
		if err := decodeGob(it.Value(), &created); err != nil {
			continue
		}
		all = append(all, named{string(bytes.TrimPrefix(it.Key(), []byte(namePrefix))), created})
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].created < all[j].created })

	out := make([]string, len(all))
	for i, n := range all {
		out[i] = n.name
	}
	return out, nil
}

// Delete drops a cache and every entry in it. It reports whether the cache
// existed.
func (s *Store) Delete(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.db.Has(nameKey(name), nil)
	if err != nil || !ok {
		return false, err
	}

	batch := new(leveldb.Batch)
	it := s.db.NewIterator(util.BytesPrefix(cachePrefix(name)), nil)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return false, err
	}
	batch.Delete(nameKey(name))
	if err := s.db.Write(batch, nil); err != nil {
		return false, err
	}
	s.ram.DeletePrefix(string(cachePrefix(name)))
	return true, nil
}

// Match looks key up in every cache, oldest cache first.
func (s *Store) Match(key string) (Entry, bool) {
	names, err := s.Keys()
	if err != nil {
		return Entry{}, false
	}
	for _, name := range names {
		if ent, ok := s.get(name, key); ok {
			return ent, true
		}
	}
	return Entry{}, false
}

// EntryCount counts entries across all caches.
func (s *Store) EntryCount() int {
	it := s.db.NewIterator(util.BytesPrefix([]byte(entryPrefix)), nil)
	defer it.Release()
	n := 0
	for it.Next() {
		n++
	}
	return n
}

func (s *Store) RAMBytes() int64 { return s.ram.TotalSize() }

func (s *Store) get(name, key string) (Entry, bool) {
	k := entryKey(name, key)
	if ent, ok := s.ram.Get(string(k)); ok {
		return ent, true
	}
	b, err := s.db.Get(k, nil)
	if err != nil {
		return Entry{}, false
	}
	var ent Entry
	if err := decodeGob(b, &ent); err != nil {
		return Entry{}, false
	}
	s.remember(string(k), ent, int64(len(b)))
	return ent, true
}

func (s *Store) remember(k string, ent Entry, size int64) {
	if n := s.ram.Put(k, ent, size); n > 0 {
		s.overflowLog.Log("RAM cache full, evicting", zap.Int("evicted", n))
	}
}

func (s *Store) put(name string, keys []string, ents []Entry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ok, err := s.db.Has(nameKey(name), nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrCacheDeleted, name)
	}

	batch := new(leveldb.Batch)
	sizes := make([]int64, len(ents))
	for i, ent := range ents {
		b, err := encodeGob(ent)
		if err != nil {
			return fmt.Errorf("encode %s: %w", keys[i], err)
		}
		sizes[i] = int64(len(b))
		batch.Put(entryKey(name, keys[i]), b)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return err
	}
	for i, ent := range ents {
		s.remember(string(entryKey(name, keys[i])), ent, sizes[i])
	}
	return nil
}

// Cache is a handle to one named cache.
type Cache struct {
	store *Store
	name  string
}

func (c *Cache) Name() string { return c.name }

func (c *Cache) Match(key string) (Entry, bool) {
	return c.store.get(c.name, key)
}

func (c *Cache) Put(key string, ent Entry) error {
	return c.store.put(c.name, []string{key}, []Entry{ent})
}

// PutAll stores every entry or none of them.
func (c *Cache) PutAll(ents map[string]Entry) error {
	keys := make([]string, 0, len(ents))
	for k := range ents {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := make([]Entry, len(keys))
	for i, k := range keys {
		vals[i] = ents[k]
	}
	return c.store.put(c.name, keys, vals)
}

func (c *Cache) Keys() ([]string, error) {
	prefix := cachePrefix(c.name)
	it := c.store.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	var out []string
	for it.Next() {
		out = append(out, string(bytes.TrimPrefix(it.Key(), prefix)))
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return out, nil
}
