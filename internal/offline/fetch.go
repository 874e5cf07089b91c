package offline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"wellsite/internal/cachestore"
)

// ErrTimeout is returned when a network operation loses the race against
// its deadline.
var ErrTimeout = errors.New("network timeout")

// withTimeout races op against d. The loser's context is cancelled, so a
// request that times out is aborted rather than left running.
func withTimeout[T any](parent context.Context, d time.Duration, op func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := op(ctx)
		ch <- result{v, err}
	}()

	select {
	case res := <-ch:
		return res.v, res.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", ErrTimeout, d)
		}
		return zero, ctx.Err()
	}
}

// skipHeaders are never forwarded to the origin. Stored entries must be full
// responses, not 304s or partial content.
var skipHeaders = map[string]bool{
	"Host":                true,
	"If-None-Match":       true,
	"If-Modified-Since":   true,
	"If-Match":            true,
	"If-Unmodified-Since": true,
	"If-Range":            true,
	"Range":               true,
}

// fetch issues a GET for uri against the origin and buffers the response.
// The incoming request's headers are forwarded, minus Host and the
// conditional ones.
func (r *Router) fetch(ctx context.Context, uri string, in http.Header) (cachestore.Entry, error) {
	target := *r.origin
	u, err := target.Parse(uri)
	if err != nil {
		return cachestore.Entry{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return cachestore.Entry{}, err
	}
	for k, vs := range in {
		if skipHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	// Bodies are stored as-is; keep them uncompressed.
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return cachestore.Entry{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cachestore.Entry{}, err
	}
	return cachestore.NewEntry(resp.StatusCode, resp.Header, body), nil
}

func (r *Router) fetchRequest(ctx context.Context, req *http.Request) (cachestore.Entry, error) {
	return r.fetch(ctx, cacheKey(req), req.Header)
}

// putRuntime stores ent in the runtime cache according to the write policy.
// Failures are logged and otherwise ignored.
func (r *Router) putRuntime(key string, ent cachestore.Entry) {
	if !r.opts.Writes.FireAndForget {
		r.writeRuntime(key, ent)
		return
	}
	select {
	case r.bgSem <- struct{}{}:
	default:
		r.stats.writeSkipped()
		r.writeLog.Log("too many pending cache writes, skipping", zap.String("key", key))
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() { <-r.bgSem }()
		r.writeRuntime(key, ent)
	}()
}

func (r *Router) writeRuntime(key string, ent cachestore.Entry) {
	c, err := r.runtimeCache()
	if err == nil {
		err = c.Put(key, ent)
	}
	if err != nil {
		r.stats.writeFailed()
		r.writeLog.Log("runtime cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	r.stats.writeStored()
}
