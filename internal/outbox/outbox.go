package outbox

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"wellsite/internal/booking"
)

const prefix = "q:"

// Outbox is a durable queue of booking requests waiting for background sync.
type Outbox struct {
	db *leveldb.DB

	// guards read-modify-write of a single record
	mu sync.Mutex
}

func Open(path string) (*Outbox, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open outbox %s: %w", path, err)
	}
	return &Outbox{db: db}, nil
}

// OpenMem keeps the outbox in memory; used by tests.
func OpenMem() (*Outbox, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

func key(id string) []byte { return []byte(prefix + id) }

// Enqueue records a failed first attempt. Enqueueing an id twice keeps the
// original record.
func (o *Outbox) Enqueue(req booking.Request) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if ok, err := o.db.Has(key(req.ID), nil); err != nil {
		return err
	} else if ok {
		return nil
	}
	b, err := encodeGob(booking.QueuedRequest{Request: req, Attempts: 1, QueuedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return o.db.Put(key(req.ID), b, nil)
}

// Pending lists queued requests, oldest first.
func (o *Outbox) Pending() ([]booking.QueuedRequest, error) {
	it := o.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()

	var out []booking.QueuedRequest
	for it.Next() {
		var q booking.QueuedRequest
		if err := decodeGob(it.Value(), &q); err != nil {
			continue
		}
		out = append(out, q)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].QueuedAt.Before(out[j].QueuedAt)
	})
	return out, nil
}

func (o *Outbox) Attempted(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	b, err := o.db.Get(key(id), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil
		}
		return err
	}
	var q booking.QueuedRequest
	if err := decodeGob(b, &q); err != nil {
		return err
	}
	q.Attempts++
	nb, err := encodeGob(q)
	if err != nil {
		return err
	}
	return o.db.Put(key(id), nb, nil)
}

func (o *Outbox) Remove(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.db.Delete(key(id), nil)
}

func (o *Outbox) Len() int {
	it := o.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()
	n := 0
	for it.Next() {
		n++
	}
	return n
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
