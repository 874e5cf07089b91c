package offline

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"wellsite/internal/cachestore"
)

// Source says where a routed response came from.
type Source string

const (
	SourceNetwork Source = "network"
	SourceCache   Source = "cache"
	SourceOffline Source = "offline"
	// SourceBypass means the request was not intercepted.
	SourceBypass Source = "bypass"
	// SourceNone means neither cache nor network could answer.
	SourceNone Source = "none"
)

type Result struct {
	Entry  cachestore.Entry
	Source Source
	Class  Class
}

// OnInstall precaches the application shell and any sitemap pages, then
// moves the router to Activating without waiting for older versions.
// A failed shell fetch never fails the install; only store errors do.
func (r *Router) OnInstall(ctx context.Context) error {
	shell, err := r.store.Open(r.ShellCacheName())
	if err != nil {
		return fmt.Errorf("open shell cache: %w", err)
	}
	if _, err := r.runtimeCache(); err != nil {
		return fmt.Errorf("open runtime cache: %w", err)
	}

	if err := r.addAll(ctx, shell, r.opts.Shell); err != nil {
		r.log.Warn("shell precache failed, caching offline page only", zap.Error(err))
		if err := r.addAll(ctx, shell, []string{r.opts.OfflineURL}); err != nil {
			r.log.Warn("offline page precache failed", zap.String("url", r.opts.OfflineURL), zap.Error(err))
		}
	} else {
		r.log.Info("shell precached", zap.String("cache", shell.Name()), zap.Int("assets", len(r.opts.Shell)))
	}

	if len(r.opts.Sitemaps) > 0 {
		r.precacheSitemaps(ctx)
	}

	r.advance(Activating)
	return nil
}

// addAll fetches every uri and stores them together. Any failed or non-OK
// fetch stores nothing.
func (r *Router) addAll(ctx context.Context, c *cachestore.Cache, uris []string) error {
	ents := make(map[string]cachestore.Entry, len(uris))
	hdr := http.Header{"Accept": []string{"*/*"}}
	for _, uri := range uris {
		ent, err := r.fetch(ctx, uri, hdr)
		if err != nil {
			return fmt.Errorf("%s: %w", uri, err)
		}
		if !ent.OK() {
			return fmt.Errorf("%s: status %d", uri, ent.Status)
		}
		ents[uri] = ent
	}
	if len(ents) == 0 {
		return nil
	}
	return c.PutAll(ents)
}

// OnActivate deletes every cache whose name does not carry the current
// version and takes control of fetches.
func (r *Router) OnActivate(ctx context.Context) error {
	names, err := r.store.Keys()
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.Contains(name, r.opts.Version) {
			continue
		}
		if _, err := r.store.Delete(name); err != nil {
			r.log.Warn("failed to delete stale cache", zap.String("cache", name), zap.Error(err))
			continue
		}
		r.log.Info("deleted stale cache", zap.String("cache", name))
	}
	r.advance(Active)
	return nil
}

// OnFetch routes one request. Requests seen before activation, non-GET and
// cross-origin requests come back as SourceBypass.
func (r *Router) OnFetch(ctx context.Context, req *http.Request) Result {
	if r.State() != Active {
		return Result{Source: SourceBypass, Class: ClassPassThrough}
	}
	class := r.Classify(req)

	var res Result
	switch class {
	case ClassAPI:
		res = r.networkWithTimeout(ctx, req)
	case ClassNavigation:
		res = r.networkFirst(ctx, req)
	case ClassStatic:
		res = r.cacheFirst(ctx, req)
	default:
		res = Result{Source: SourceBypass}
	}
	res.Class = class
	r.stats.observe(res)
	return res
}

// networkWithTimeout serves API calls. Responses are never cached here; a
// cached copy is only used if something else stored one.
func (r *Router) networkWithTimeout(ctx context.Context, req *http.Request) Result {
	ent, err := withTimeout(ctx, r.opts.APITimeout, func(ctx context.Context) (cachestore.Entry, error) {
		return r.fetchRequest(ctx, req)
	})
	if err == nil {
		return Result{Entry: ent, Source: SourceNetwork}
	}
	r.fallbackLog.Log("api request failed, falling back", zap.String("path", req.URL.Path), zap.Error(err))
	if ent, ok := r.store.Match(cacheKey(req)); ok {
		return Result{Entry: ent, Source: SourceCache}
	}
	return Result{Entry: OfflineResponse(), Source: SourceOffline}
}

// networkFirst serves page navigations and stores OK pages after serving.
func (r *Router) networkFirst(ctx context.Context, req *http.Request) Result {
	key := cacheKey(req)
	ent, err := r.fetchRequest(ctx, req)
	if err != nil {
		r.fallbackLog.Log("page request failed, falling back", zap.String("path", req.URL.Path), zap.Error(err))
		if cached, ok := r.store.Match(key); ok {
			return Result{Entry: cached, Source: SourceCache}
		}
		return Result{Entry: OfflineResponse(), Source: SourceOffline}
	}
	if !ent.OK() {
		return Result{Entry: OfflineResponse(), Source: SourceOffline}
	}
	r.putRuntime(key, ent.Clone())
	return Result{Entry: ent, Source: SourceNetwork}
}

// cacheFirst serves static assets. Only 200 responses are stored; other
// statuses pass through untouched.
func (r *Router) cacheFirst(ctx context.Context, req *http.Request) Result {
	key := cacheKey(req)
	if cached, ok := r.store.Match(key); ok {
		return Result{Entry: cached, Source: SourceCache}
	}
	ent, err := r.fetchRequest(ctx, req)
	if err != nil {
		r.fallbackLog.Log("asset request failed", zap.String("path", req.URL.Path), zap.Error(err))
		return Result{Source: SourceNone}
	}
	if ent.Status == http.StatusOK {
		r.putRuntime(key, ent.Clone())
	}
	return Result{Entry: ent, Source: SourceNetwork}
}
