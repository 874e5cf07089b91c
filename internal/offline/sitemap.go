package offline

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxPrecachePages = 200

type sitemapDoc struct {
	URLs     []string `xml:"url>loc"`
	Sitemaps []string `xml:"sitemap>loc"`
}

// precacheSitemaps walks the configured sitemaps (following nested indexes)
// and stores every OK page in the runtime cache so it can be served while
// offline. It is best-effort and bounded in time and pages.
func (r *Router) precacheSitemaps(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	paths, err := r.discoverPages(ctx)
	if err != nil {
		r.log.Warn("sitemap discovery failed", zap.Error(err))
	}
	c, err := r.runtimeCache()
	if err != nil {
		r.log.Warn("sitemap precache skipped", zap.Error(err))
		return
	}

	hdr := http.Header{"Accept": []string{"text/html"}}
	stored, failed := 0, 0
	for _, p := range paths {
		if ctx.Err() != nil {
			break
		}
		ent, err := r.fetch(ctx, p, hdr)
		if err != nil || !ent.OK() {
			failed++
			continue
		}
		if err := c.Put(p, ent); err != nil {
			failed++
			continue
		}
		stored++
	}
	r.log.Info("sitemap precache done", zap.Int("stored", stored), zap.Int("failed", failed))
}

// discoverPages returns same-origin page paths listed in the sitemaps. API
// paths are skipped. On error it returns what it found so far.
func (r *Router) discoverPages(ctx context.Context) ([]string, error) {
	seenSitemaps := map[string]struct{}{}
	seenPaths := map[string]struct{}{}
	var paths []string

	queue := make([]string, 0, len(r.opts.Sitemaps))
	for _, sm := range r.opts.Sitemaps {
		if sm = strings.TrimSpace(sm); sm != "" {
			queue = append(queue, r.absoluteURL(sm))
		}
	}

	for len(queue) > 0 && len(paths) < maxPrecachePages {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		smURL := queue[0]
		queue = queue[1:]
		if _, ok := seenSitemaps[smURL]; ok {
			continue
		}
		seenSitemaps[smURL] = struct{}{}

		doc, err := r.fetchSitemap(ctx, smURL)
		if err != nil {
			return paths, fmt.Errorf("fetch sitemap %q: %w", smURL, err)
		}
		for _, nested := range doc.Sitemaps {
			if nested != "" {
				queue = append(queue, r.absoluteURL(nested))
			}
		}

		ignored := 0
		for _, loc := range doc.URLs {
			p, ok := r.pagePath(loc)
			if !ok {
				ignored++
				continue
			}
			if _, dup := seenPaths[p]; dup {
				continue
			}
			seenPaths[p] = struct{}{}
			paths = append(paths, p)
			if len(paths) >= maxPrecachePages {
				break
			}
		}
		r.log.Debug("sitemap read", zap.String("sitemap", smURL), zap.Int("urls", len(doc.URLs)), zap.Int("ignored", ignored))
	}
	return paths, nil
}

func (r *Router) absoluteURL(u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return strings.TrimRight(r.opts.Origin, "/") + u
}

// pagePath turns a sitemap <loc> into a request URI, rejecting foreign hosts
// and API paths.
func (r *Router) pagePath(loc string) (string, bool) {
	loc = strings.TrimSpace(loc)
	if loc == "" {
		return "", false
	}
	u, err := url.Parse(loc)
	if err != nil {
		return "", false
	}
	if u.IsAbs() && !strings.EqualFold(u.Host, r.origin.Host) && (len(r.opts.Hosts) == 0 || !r.allowedHost(u.Host)) {
		return "", false
	}
	if u.Path == "" || !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	if r.classifyPath(u.Path, "text/html") != ClassNavigation {
		return "", false
	}
	return (&url.URL{Path: u.Path, RawQuery: u.RawQuery}).RequestURI(), true
}

func (r *Router) fetchSitemap(ctx context.Context, sitemapURL string) (sitemapDoc, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return sitemapDoc{}, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return sitemapDoc{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return sitemapDoc{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return sitemapDoc{}, err
	}

	// A .gz sitemap may already have been decoded by the transport.
	if strings.HasSuffix(strings.ToLower(sitemapURL), ".gz") || (len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b) {
		if gz, err := gzip.NewReader(bytes.NewReader(body)); err == nil {
			if unzipped, err := io.ReadAll(gz); err == nil {
				body = unzipped
			}
			gz.Close()
		}
	}

	var doc sitemapDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return sitemapDoc{}, err
	}
	for i := range doc.URLs {
		doc.URLs[i] = strings.TrimSpace(doc.URLs[i])
	}
	for i := range doc.Sitemaps {
		doc.Sitemaps[i] = strings.TrimSpace(doc.Sitemaps[i])
	}
	return doc, nil
}
