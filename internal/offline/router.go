package offline

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"wellsite/internal/cachestore"
	"wellsite/internal/config"
	"wellsite/internal/logging"
)

// Lifecycle is the router's install state. It only moves forward.
type Lifecycle int32

const (
	Installing Lifecycle = iota
	Activating
	Active
)

func (l Lifecycle) String() string {
	switch l {
	case Installing:
		return "installing"
	case Activating:
		return "activating"
	case Active:
		return "active"
	}
	return fmt.Sprintf("lifecycle(%d)", int32(l))
}

// WritePolicy controls opportunistic runtime-cache writes.
type WritePolicy struct {
	// Level is used for write failures. They never reach the client.
	Level zapcore.Level
	// FireAndForget runs writes in the background. When false the write
	// finishes before the response is returned; only useful when debugging.
	FireAndForget bool
}

type Options struct {
	Origin      string
	Hosts       []string
	Version     string
	ShellName   string
	RuntimeName string
	Shell       []string
	OfflineURL  string
	APIPrefixes []string
	APIMarkers  []string
	APITimeout  time.Duration
	Sitemaps    []string
	Writes      WritePolicy
	StatsEvery  time.Duration

	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
	Log       *zap.Logger
}

func OptionsFromConfig(cfg config.Config) Options {
	c := cfg.Cache
	return Options{
		Origin:      cfg.Server.Origin,
		Hosts:       cfg.Server.Hosts,
		Version:     c.Version,
		ShellName:   c.ShellName,
		RuntimeName: c.RuntimeName,
		Shell:       c.Shell,
		OfflineURL:  c.OfflineURL,
		APIPrefixes: c.APIPrefixes,
		APIMarkers:  c.APIMarkers,
		APITimeout:  c.APITimeoutDuration(),
		Sitemaps:    c.Precache.Sitemaps,
		Writes: WritePolicy{
			Level:         c.WriteLevel(),
			FireAndForget: c.Writes.FireAndForget == nil || *c.Writes.FireAndForget,
		},
		StatsEvery: cfg.Logging.StatsEveryDuration(),
	}
}

// Router applies the per-request-class cache policy in front of the origin.
type Router struct {
	opts   Options
	origin *url.URL
	store  *cachestore.Store
	log    *zap.Logger

	httpClient *http.Client
	proxy      *httputil.ReverseProxy

	state atomic.Int32

	runtimeMu sync.Mutex
	runtime   *cachestore.Cache

	bgSem  chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
	loops  sync.WaitGroup
	once   sync.Once

	writeLog    *logging.RateLimited
	fallbackLog *logging.RateLimited

	stats *statsCollector
}

func New(store *cachestore.Store, opts Options) (*Router, error) {
	origin, err := url.Parse(opts.Origin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid origin %q", opts.Origin)
	}
	if opts.Version == "" {
		return nil, fmt.Errorf("cache version is required")
	}
	if opts.APITimeout <= 0 {
		opts.APITimeout = 10 * time.Second
	}
	if opts.OfflineURL == "" {
		opts.OfflineURL = "/"
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("cacheVersion", opts.Version))

	r := &Router{
		opts:        opts,
		origin:      origin,
		store:       store,
		log:         log,
		httpClient:  &http.Client{Transport: opts.Transport, Timeout: 30 * time.Second},
		bgSem:       make(chan struct{}, 32),
		stopCh:      make(chan struct{}),
		writeLog:    logging.NewRateLimited(log, opts.Writes.Level, time.Minute),
		fallbackLog: logging.NewRateLimited(log, zapcore.WarnLevel, 10*time.Second),
		stats:       newStatsCollector(),
	}
	r.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(origin)
			pr.SetXForwarded()
		},
		Transport: opts.Transport,
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			r.fallbackLog.Log("pass-through failed", zap.String("path", req.URL.Path), zap.Error(err))
			setCacheHeaders(w.Header(), "bad-gateway")
			http.Error(w, "bad gateway", http.StatusBadGateway)
		},
	}

	if opts.StatsEvery > 0 {
		r.loops.Add(1)
		go func() {
			defer r.loops.Done()
			r.statsLoop(opts.StatsEvery)
		}()
	}
	return r, nil
}

func (r *Router) ShellCacheName() string   { return r.opts.ShellName + "-" + r.opts.Version }
func (r *Router) RuntimeCacheName() string { return r.opts.RuntimeName + "-" + r.opts.Version }
func (r *Router) Version() string          { return r.opts.Version }

func (r *Router) State() Lifecycle { return Lifecycle(r.state.Load()) }

// advance never moves the lifecycle backwards.
func (r *Router) advance(to Lifecycle) {
	for {
		cur := r.state.Load()
		if cur >= int32(to) {
			return
		}
		if r.state.CompareAndSwap(cur, int32(to)) {
			r.log.Info("router lifecycle", zap.Stringer("state", to))
			return
		}
	}
}

// Flush waits for background cache writes started so far.
func (r *Router) Flush() {
	r.wg.Wait()
}

// Close stops the stats loop and waits for background writes. The store
// stays open; it may be shared with a newer router.
func (r *Router) Close() {
	r.once.Do(func() { close(r.stopCh) })
	r.loops.Wait()
	r.wg.Wait()
}

// Class is how a request is routed.
type Class int

const (
	ClassPassThrough Class = iota
	ClassAPI
	ClassNavigation
	ClassStatic
)

func (c Class) String() string {
	switch c {
	case ClassPassThrough:
		return "pass-through"
	case ClassAPI:
		return "api"
	case ClassNavigation:
		return "html-navigation"
	case ClassStatic:
		return "static-asset"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

func (r *Router) Classify(req *http.Request) Class {
	if req.Method != http.MethodGet || !r.sameOrigin(req) {
		return ClassPassThrough
	}
	return r.classifyPath(req.URL.Path, req.Header.Get("Accept"))
}

func (r *Router) classifyPath(path, accept string) Class {
	for _, p := range r.opts.APIPrefixes {
		if strings.HasPrefix(path, p) {
			return ClassAPI
		}
	}
	for _, m := range r.opts.APIMarkers {
		if m != "" && strings.Contains(path, m) {
			return ClassAPI
		}
	}
	if strings.Contains(accept, "text/html") {
		return ClassNavigation
	}
	return ClassStatic
}

func (r *Router) sameOrigin(req *http.Request) bool {
	if len(r.opts.Hosts) == 0 {
		return true
	}
	host := req.Host
	if req.URL.IsAbs() {
		host = req.URL.Host
	}
	return r.allowedHost(host)
}

func (r *Router) allowedHost(host string) bool {
	if len(r.opts.Hosts) == 0 {
		return true
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	for _, allowed := range r.opts.Hosts {
		if strings.EqualFold(host, allowed) {
			return true
		}
	}
	return false
}

// cacheKey identifies a same-origin request in the caches.
func cacheKey(req *http.Request) string {
	return req.URL.RequestURI()
}

func (r *Router) runtimeCache() (*cachestore.Cache, error) {
	r.runtimeMu.Lock()
	defer r.runtimeMu.Unlock()
	if r.runtime != nil {
		return r.runtime, nil
	}
	c, err := r.store.Open(r.RuntimeCacheName())
	if err != nil {
		return nil, err
	}
	r.runtime = c
	return c, nil
}
