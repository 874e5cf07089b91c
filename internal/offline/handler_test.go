package offline

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerWritesSourceHeader(t *testing.T) {
	mux := shellMux()
	mux.HandleFunc("/contact", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-Id")
		io.WriteString(w, "<html>contact</html>")
	})
	mux.HandleFunc("/api/bookings", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		b, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		w.Write(b)
	})
	f := newFixture(t, mux, nil)
	f.activate(t)
	h := f.router.Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, get("/contact", "text/html"))
	if w.Code != http.StatusOK || w.Body.String() != "<html>contact</html>" {
		t.Fatalf("navigation: %d %q", w.Code, w.Body.String())
	}
	if got := w.Header().Get(CacheHeader); got != "network" {
		t.Errorf("%s = %q", CacheHeader, got)
	}
	if got := w.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-Id, "+CacheHeader {
		t.Errorf("expose = %q", got)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader(`{"a":1}`)))
	if w.Code != http.StatusCreated || w.Body.String() != `{"a":1}` {
		t.Fatalf("pass-through: %d %q", w.Code, w.Body.String())
	}
	if got := w.Header().Get(CacheHeader); got != "bypass" {
		t.Errorf("pass-through %s = %q", CacheHeader, got)
	}

	f.router.Flush()
	f.transport.down.Store(true)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, get("/contact", "text/html"))
	if w.Code != http.StatusOK || w.Header().Get(CacheHeader) != "cache" {
		t.Errorf("offline navigation: %d %q", w.Code, w.Header().Get(CacheHeader))
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, get("/app.js", ""))
	if w.Code != http.StatusBadGateway || w.Header().Get(CacheHeader) != "bad-gateway" {
		t.Errorf("uncached asset offline: %d %q", w.Code, w.Header().Get(CacheHeader))
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, get("/pricing", "text/html"))
	if w.Code != http.StatusServiceUnavailable || w.Header().Get(CacheHeader) != "offline" {
		t.Errorf("uncached page offline: %d %q", w.Code, w.Header().Get(CacheHeader))
	}
}

func TestEnsureExposedHeader(t *testing.T) {
	tests := []struct {
		cur    []string
		expect string
	}{
		{nil, CacheHeader},
		{[]string{"X-A"}, "X-A, " + CacheHeader},
		{[]string{"X-A", "X-B"}, "X-A,X-B, " + CacheHeader},
		{[]string{"x-wellsite-cache"}, "x-wellsite-cache"},
		{[]string{"X-A, X-Wellsite-Cache"}, "X-A, X-Wellsite-Cache"},
	}
	for idx, test := range tests {
		h := http.Header{}
		for _, v := range test.cur {
			h.Add("Access-Control-Expose-Headers", v)
		}
		ensureExposedHeader(h, CacheHeader)
		if recv := strings.Join(h.Values("Access-Control-Expose-Headers"), ","); recv != test.expect {
			t.Errorf("#%d: recv=%q, expect=%q", idx, recv, test.expect)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input  uint64
		expect string
	}{
		{0, "0b"},
		{1023, "1023b"},
		{1024, "1kb"},
		{1536, "1.5kb"},
		{5 * 1024 * 1024, "5mb"},
		{3 * 1024 * 1024 * 1024, "3gb"},
	}
	for idx, test := range tests {
		if recv := formatBytes(test.input); recv != test.expect {
			t.Errorf("#%d: recv=%q, expect=%q", idx, recv, test.expect)
		}
	}
}
