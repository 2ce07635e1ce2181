// Package securelink caches CDN-signed base URLs for the store and
// patch-store roots (spec.md §4.3, C5), with the double-checked refresh
// the concurrency model in spec.md §5 requires: a cache miss holds the
// lock only across key insertion, never across the HTTP call.
package securelink

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"galaxydl/internal/constants"
	"galaxydl/pkg/cdnclient"
)

// key identifies a cached entry: (product_id, root_path) where root_path
// is "/" for the store root or "/patches/store/{pid}" for the patch root.
type key struct {
	productID string
	rootPath  string
}

type entry struct {
	mu        sync.Mutex
	urls      []string // sorted ascending by priority, each containing {GALAXY_PATH}
	expiresAt time.Time
	ready     chan struct{} // closed once the first fetch completes
}

// Provider mints and caches secure-link URL vectors.
type Provider struct {
	client *cdnclient.Client

	mu      sync.Mutex
	entries map[key]*entry
}

func New(client *cdnclient.Client) *Provider {
	return &Provider{client: client, entries: make(map[key]*entry)}
}

// expiryMargin is how far before the declared expiry an entry is treated
// as stale (spec.md §4.3: "invalidated once the wall clock passes
// expires_at - 60s").
const expiryMargin = constants.SecureLinkExpiryMarginSec * time.Second

// StoreURLs returns the prioritised URL templates for pid's main store
// root at the given generation.
func (p *Provider) StoreURLs(ctx context.Context, pid string, generation int) ([]string, error) {
	return p.resolve(ctx, key{productID: pid, rootPath: "/"}, func() (cdnclient.SecureLinkResponse, error) {
		return p.client.SecureLink(ctx, pid, generation, "/")
	})
}

// PatchStoreURLs returns the prioritised URL templates for pid's
// patch-store root, signed with the per-patch client credentials.
func (p *Provider) PatchStoreURLs(ctx context.Context, pid, clientID, clientSecret string) ([]string, error) {
	root := "/patches/store/" + pid
	return p.resolve(ctx, key{productID: pid, rootPath: root}, func() (cdnclient.SecureLinkResponse, error) {
		return p.client.PatchSecureLink(ctx, pid, clientID, clientSecret)
	})
}

func (p *Provider) resolve(ctx context.Context, k key, fetch func() (cdnclient.SecureLinkResponse, error)) ([]string, error) {
	p.mu.Lock()
	e, ok := p.entries[k]
	if !ok {
		e = &entry{ready: make(chan struct{})}
		p.entries[k] = e
		p.mu.Unlock()

		urls, exp, err := fetchAndSort(fetch)
		e.mu.Lock()
		if err == nil {
			e.urls = urls
			e.expiresAt = exp
		}
		close(e.ready)
		e.mu.Unlock()
		if err != nil {
			p.mu.Lock()
			delete(p.entries, k)
			p.mu.Unlock()
			return nil, err
		}
		return urls, nil
	}
	p.mu.Unlock()

	<-e.ready // wait out any in-flight first fetch

	// The staleness check and the refresh run under the entry lock, so
	// concurrent callers past expiry trigger one refresh and the rest
	// read the refreshed entry.
	e.mu.Lock()
	defer e.mu.Unlock()
	stale := time.Now().After(e.expiresAt.Add(-expiryMargin))
	if !stale {
		return e.urls, nil
	}

	urls, exp, err := fetchAndSort(fetch)
	if err != nil {
		return nil, err
	}
	e.urls = urls
	e.expiresAt = exp
	return urls, nil
}

func fetchAndSort(fetch func() (cdnclient.SecureLinkResponse, error)) ([]string, time.Time, error) {
	resp, err := fetch()
	if err != nil {
		return nil, time.Time{}, err
	}

	entries := append([]cdnclient.SecureLinkEntry(nil), resp.URLs...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Priority < entries[j].Priority })

	urls := make([]string, 0, len(entries))
	var expiresAt time.Time
	for _, e := range entries {
		urls = append(urls, substituteParams(e.URLFormat, e.Parameters))
		if exp, ok := parseExpiry(e.Parameters); ok && (expiresAt.IsZero() || exp.Before(expiresAt)) {
			expiresAt = exp
		}
	}
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(time.Hour)
	}
	return urls, expiresAt, nil
}

// substituteParams replaces every "{name}" placeholder in format with
// parameters["name"], leaving "{GALAXY_PATH}" untouched for the
// downloader to fill in per chunk.
func substituteParams(format string, parameters map[string]any) string {
	out := format
	for k, v := range parameters {
		if k == "GALAXY_PATH" {
			continue
		}
		out = strings.ReplaceAll(out, "{"+k+"}", fmt.Sprint(v))
	}
	return out
}

func parseExpiry(parameters map[string]any) (time.Time, bool) {
	raw, ok := parameters["expires_at"]
	if !ok {
		return time.Time{}, false
	}
	switch v := raw.(type) {
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(n, 0), true
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
	case float64:
		return time.Unix(int64(v), 0), true
	}
	return time.Time{}, false
}

// FillChunkPath substitutes the literal {GALAXY_PATH} token in urlTemplate
// with the content-address path for hash.
func FillChunkPath(urlTemplate, galaxyPath string) string {
	return strings.ReplaceAll(urlTemplate, "{GALAXY_PATH}", galaxyPath)
}
