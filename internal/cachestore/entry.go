package cachestore

import (
	"bytes"
	"encoding/gob"
	"hash/crc32"
	"net/http"
	"time"
)

// Entry is a stored response snapshot.
type Entry struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt int64 // unix seconds
	Hash32   uint32
}

func NewEntry(status int, header http.Header, body []byte) Entry {
	h := cloneHeader(header)
	h.Del("Content-Length")
	return Entry{
		Status:   status,
		Header:   h,
		Body:     body,
		StoredAt: time.Now().Unix(),
		Hash32:   crc32.ChecksumIEEE(body),
	}
}

// OK mirrors fetch's Response.ok.
func (e Entry) OK() bool { return e.Status >= 200 && e.Status < 300 }

// Clone returns a copy that shares no memory with e, so one copy can be
// stored while the other is written out.
func (e Entry) Clone() Entry {
	out := e
	out.Header = cloneHeader(e.Header)
	if e.Body != nil {
		out.Body = append([]byte(nil), e.Body...)
	}
	return out
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		vv := make([]string, len(vs))
		copy(vv, vs)
		out[k] = vv
	}
	return out
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	dec := gob.NewDecoder(bytes.NewReader(b))
	return dec.Decode(v)
}

func init() {
	gob.Register(http.Header{})
}
