package offline

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"testing"
)

func TestInstallPrecachesSitemapPages(t *testing.T) {
	mux := shellMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<?xml version="1.0"?>
<sitemapindex><sitemap><loc>/pages.xml.gz</loc></sitemap></sitemapindex>`)
	})
	mux.HandleFunc("/pages.xml.gz", func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		io.WriteString(gz, `<urlset>
  <url><loc> https://example.com/about </loc></url>
  <url><loc>https://example.com/services?tab=all</loc></url>
  <url><loc>https://example.com/about</loc></url>
  <url><loc>https://elsewhere.org/blog</loc></url>
  <url><loc>https://example.com/api/feed</loc></url>
  <url><loc>/gone</loc></url>
</urlset>`)
		gz.Close()
		w.Write(buf.Bytes())
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>about</html>")
	})
	mux.HandleFunc("/services", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>services "+r.URL.Query().Get("tab")+"</html>")
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	f := newFixture(t, mux, func(o *Options) {
		o.Hosts = []string{"example.com"}
		o.Sitemaps = []string{"/sitemap.xml"}
	})

	if err := f.router.OnInstall(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	rt, _ := f.store.Open("app-runtime-v1")
	keys, _ := rt.Keys()
	want := map[string]bool{"/about": true, "/services?tab=all": true}
	if len(keys) != len(want) {
		t.Fatalf("runtime keys = %v", keys)
	}
	for _, k := range keys {
		if !want[k] {
			t.Errorf("unexpected precached key %q", k)
		}
	}
	if ent, ok := rt.Match("/services?tab=all"); !ok || string(ent.Body) != "<html>services all</html>" {
		t.Errorf("services page = %q", ent.Body)
	}
}

func TestPagePath(t *testing.T) {
	f := newFixture(t, http.NewServeMux(), func(o *Options) { o.Hosts = []string{"example.com"} })

	tests := []struct {
		loc    string
		expect string
		ok     bool
	}{
		{"https://example.com/", "/", true},
		{"https://example.com", "/", true},
		{"relative/page", "/relative/page", true},
		{"https://example.com/api/x", "", false},
		{"https://foreign.net/page", "", false},
		{"   ", "", false},
	}
	for idx, test := range tests {
		recv, ok := f.router.pagePath(test.loc)
		if ok != test.ok || recv != test.expect {
			t.Errorf("#%d: recv=%q,%v expect=%q,%v", idx, recv, ok, test.expect, test.ok)
		}
	}
}
