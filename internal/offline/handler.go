package offline

import (
	"net/http"
	"strings"

	"wellsite/internal/cachestore"
)

// CacheHeader reports how a response was produced.
const CacheHeader = "X-Wellsite-Cache"

func (r *Router) Handler() http.Handler {
	return http.HandlerFunc(r.handle)
}

func (r *Router) handle(w http.ResponseWriter, req *http.Request) {
	res := r.OnFetch(req.Context(), req)
	switch res.Source {
	case SourceBypass:
		setCacheHeaders(w.Header(), string(SourceBypass))
		r.proxy.ServeHTTP(w, req)
	case SourceNone:
		setCacheHeaders(w.Header(), "bad-gateway")
		http.Error(w, "bad gateway", http.StatusBadGateway)
	default:
		writeEntry(w, res.Entry, string(res.Source))
	}
}

func writeEntry(w http.ResponseWriter, ent cachestore.Entry, source string) {
	for k, vs := range ent.Header {
		if strings.EqualFold(k, CacheHeader) {
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	setCacheHeaders(w.Header(), source)
	w.WriteHeader(ent.Status)
	_, _ = w.Write(ent.Body)
}

func setCacheHeaders(h http.Header, source string) {
	if source != "" {
		h.Set(CacheHeader, source)
	}
	// Custom headers are hidden from cross-origin scripts unless exposed.
	ensureExposedHeader(h, CacheHeader)
}

func ensureExposedHeader(h http.Header, name string) {
	const expose = "Access-Control-Expose-Headers"
	cur := h.Values(expose)
	if len(cur) == 0 {
		h.Set(expose, name)
		return
	}
	merged := strings.Join(cur, ",")
	for _, part := range strings.Split(merged, ",") {
		if strings.EqualFold(strings.TrimSpace(part), name) {
			return
		}
	}
	h.Set(expose, strings.TrimSpace(merged)+", "+name)
}
