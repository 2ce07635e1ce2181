// Package cdnclient is the typed HTTP access layer over the six CDN/API
// endpoint families (spec.md §4.1). It owns the shared *http.Client, the
// retry/backoff policy, and the transparent-zlib-decode contract; the
// teacher's downloader pipeline used a bare *http.Client per worker
// pool — here that client and its tuning live in one place and are
// injected into every subsystem that needs the network (C4, C5, C6, C7).
package cdnclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"galaxydl/internal/auth"
	"galaxydl/internal/config"
	"galaxydl/internal/constants"
	"galaxydl/internal/galaxyerr"
	"galaxydl/internal/logging"
	"galaxydl/pkg/hashutil"
)

// Client is the shared network entry point. It holds no per-request
// state; all operations are safe for concurrent use.
type Client struct {
	HTTP   *http.Client
	Tokens auth.TokenProvider
	Cfg    config.ClientConfig
	Log    *logging.Logger
}

// New builds a Client tuned the way the teacher's downloader tuned its
// transport (connection reuse, bounded idle conns), generalised to the
// configured pool size.
func New(tokens auth.TokenProvider, cfg config.ClientConfig) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.DownloadPoolSize * 2,
		MaxConnsPerHost:     cfg.DownloadPoolSize * 2,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   false,
	}
	return &Client{
		HTTP: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		Tokens: tokens,
		Cfg:    cfg,
		Log:    logging.GlobalLogger,
	}
}

// RequestOpts tweaks a single Get call.
type RequestOpts struct {
	// Range, if non-empty, is sent as the Range header verbatim
	// (see hashutil.RangeHeader).
	Range string

	// Authorize adds an Authorization: Bearer header from the token
	// provider. V1/V2 manifest GETs on public CDN paths don't need it.
	Authorize bool

	// MaxRetries overrides Cfg.MaxAPIRetries for this call (0 = default).
	MaxRetries int
}

// isTransient reports whether status is one of the retryable codes from
// spec.md §4.1/§7.
func isTransient(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return status >= 500
}

func backoff(attempt int, base time.Duration) time.Duration {
	d := base * time.Duration(1<<uint(attempt))
	jitter := time.Duration(rand.Int63n(int64(base)))
	return d + jitter
}

// getRaw performs the retrying GET with 401-refresh-then-retry-once and
// transient backoff, returning the full response body undecoded.
func (c *Client) getRaw(ctx context.Context, url string, opts RequestOpts) ([]byte, error) {
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = c.Cfg.MaxAPIRetries
	}

	refreshed := false
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", constants.UserAgent)
		if opts.Range != "" {
			req.Header.Set("Range", opts.Range)
		}
		if opts.Authorize && c.Tokens != nil {
			req.Header.Set("Authorization", "Bearer "+c.Tokens.Token())
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			lastErr = err
			c.Log.Warn("cdn request failed", logging.Fields{"url": url, "attempt": attempt, "error": err.Error()})
			time.Sleep(backoff(attempt, c.Cfg.RetryBaseDelay))
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized && opts.Authorize && !refreshed && c.Tokens != nil {
			resp.Body.Close()
			refreshed = true
			if err := c.Tokens.Refresh(ctx); err != nil {
				return nil, fmt.Errorf("%w: %v", galaxyerr.ErrAuthExpired, err)
			}
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized && opts.Authorize && refreshed {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: status 401 from %s after token refresh", galaxyerr.ErrAuthExpired, url)
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %s", galaxyerr.ErrNotFound, url)
		}

		if isTransient(resp.StatusCode) {
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: status %d from %s", galaxyerr.ErrTransient, resp.StatusCode, url)
			time.Sleep(backoff(attempt, c.Cfg.RetryBaseDelay))
			continue
		}

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("%w: body read: %v", galaxyerr.ErrTransient, err)
			time.Sleep(backoff(attempt, c.Cfg.RetryBaseDelay))
			continue
		}
		return data, nil
	}

	if lastErr == nil {
		lastErr = galaxyerr.ErrNetworkFailed
	}
	return nil, fmt.Errorf("%w: %v", galaxyerr.ErrNetworkFailed, lastErr)
}

// GetJSON fetches url, transparently zlib-inflating the body if it looks
// compressed (spec.md §4.1), then unmarshals it into v.
func (c *Client) GetJSON(ctx context.Context, url string, authorize bool, v any) error {
	raw, err := c.getRaw(ctx, url, RequestOpts{Authorize: authorize})
	if err != nil {
		return err
	}
	body, err := hashutil.MaybeInflate(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// GetRawJSON is like GetJSON but also returns the decoded (but not
// re-marshalled) bytes, for archival store-through of the original body.
func (c *Client) GetRawJSON(ctx context.Context, url string, authorize bool) (decoded []byte, undecoded []byte, err error) {
	raw, err := c.getRaw(ctx, url, RequestOpts{Authorize: authorize})
	if err != nil {
		return nil, nil, err
	}
	decoded, err = hashutil.MaybeInflate(raw)
	if err != nil {
		return nil, nil, err
	}
	return decoded, raw, nil
}

// GetRange fetches an inclusive byte range [start, end] of url.
func (c *Client) GetRange(ctx context.Context, url string, start, end int64) ([]byte, error) {
	return c.getRaw(ctx, url, RequestOpts{Range: hashutil.RangeHeader(start, end), Authorize: true})
}

// GetChunk fetches a V2 chunk body at url and returns it undecoded
// (callers verify compressed MD5 before inflating, per spec.md §4.4).
func (c *Client) GetChunk(ctx context.Context, url string) ([]byte, error) {
	return c.getRaw(ctx, url, RequestOpts{Authorize: true})
}

// Builds fetches the builds list for a product/platform/generation
// (spec.md §4.1 `builds`). The raw per-item shape is decoded by
// pkg/manifest, which owns the typed BuildInfo mapping.
func (c *Client) Builds(ctx context.Context, pid, platform string, generation int) ([]byte, error) {
	url := fmt.Sprintf(constants.BuildsURLTemplate, pid, platform, generation)
	raw, err := c.getRaw(ctx, url, RequestOpts{Authorize: true})
	if err != nil {
		return nil, err
	}
	return hashutil.MaybeInflate(raw)
}

// V1Manifest fetches a plain-JSON v1 manifest or repository file.
func (c *Client) V1Manifest(ctx context.Context, pid, platform, repoID, name string) ([]byte, error) {
	url := fmt.Sprintf(constants.V1ManifestURLTemplate, pid, platform, repoID, name)
	return c.getRaw(ctx, url, RequestOpts{Authorize: false})
}

// V2Manifest fetches a zlib-compressed v2 manifest/meta blob addressed by
// its content hash, returning it inflated.
func (c *Client) V2Manifest(ctx context.Context, hash string) ([]byte, error) {
	a, b, h := hashutil.GalaxyPath(hash)
	url := fmt.Sprintf(constants.V2ManifestURLTemplate, a, b, h)
	raw, err := c.getRaw(ctx, url, RequestOpts{Authorize: false})
	if err != nil {
		return nil, err
	}
	return hashutil.MaybeInflate(raw)
}

// V2ManifestByURL is like V2Manifest but the caller already has the exact
// URL (e.g. a V2 build record's Link field, or a patch_info link).
func (c *Client) V2ManifestByURL(ctx context.Context, url string) ([]byte, error) {
	raw, err := c.getRaw(ctx, url, RequestOpts{Authorize: false})
	if err != nil {
		return nil, err
	}
	return hashutil.MaybeInflate(raw)
}

// SecureLinkResponse is the raw decoded secure_link body.
type SecureLinkResponse struct {
	URLs []SecureLinkEntry `json:"urls"`
}

type SecureLinkEntry struct {
	URLFormat  string         `json:"url_format"`
	Parameters map[string]any `json:"parameters"`
	Priority   int            `json:"priority"`
	CDN        string         `json:"cdn,omitempty"`
}

// SecureLink pairs a secure_link response's entries with an expiry time.
// pkg/securelink does not use this type; it parses the expiry from the
// entries' parameters itself.
type SecureLink struct {
	Entries   []SecureLinkEntry
	ExpiresAt time.Time
}

// SecureLink mints a signed URL set for pid's store root at the given
// generation (spec.md §4.1 `secure_link`).
func (c *Client) SecureLink(ctx context.Context, pid string, generation int, path string) (SecureLinkResponse, error) {
	url := fmt.Sprintf(constants.SecureLinkURLTemplate, pid, generation, path)
	var out SecureLinkResponse
	err := c.GetJSON(ctx, url, true, &out)
	return out, err
}

// PatchSecureLink mints a signed URL set for the patch store root,
// carrying the per-patch client credentials in the query string.
func (c *Client) PatchSecureLink(ctx context.Context, pid, clientID, clientSecret string) (SecureLinkResponse, error) {
	url := fmt.Sprintf(constants.PatchSecureLinkURLTemplate, pid, pid, clientID, clientSecret)
	var out SecureLinkResponse
	err := c.GetJSON(ctx, url, true, &out)
	return out, err
}

// PatchInfoRaw is the three-state patch_info response (spec.md §4.5):
// either {error: "..."}, {id, from, to, link}, or (at the link) {}.
type PatchInfoRaw struct {
	Error string `json:"error,omitempty"`
	ID    string `json:"id,omitempty"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Link  string `json:"link,omitempty"`
}

// PatchInfo queries the patches API for a from/to build pair.
func (c *Client) PatchInfo(ctx context.Context, pid, fromBuildID, toBuildID string) (PatchInfoRaw, error) {
	url := fmt.Sprintf(constants.PatchInfoURLTemplate, pid, fromBuildID, toBuildID)
	var out PatchInfoRaw
	raw, err := c.getRaw(ctx, url, RequestOpts{Authorize: true})
	if err != nil {
		return out, err
	}
	body, err := hashutil.MaybeInflate(raw)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, err
	}
	return out, nil
}

// rawUserGames is the {owned: [...]} shape returned by UserGamesURL.
type rawUserGames struct {
	Owned []int64 `json:"owned"`
}

// OwnedGames lists the authenticated user's owned product ids, backing
// the `library` CLI command (spec.md §6). Library browsing beyond this
// is out of the core's scope.
func (c *Client) OwnedGames(ctx context.Context) ([]int64, error) {
	var out rawUserGames
	if err := c.GetJSON(ctx, constants.UserGamesURL, true, &out); err != nil {
		return nil, err
	}
	return out.Owned, nil
}

// DecodeReader is a convenience for callers (e.g. RGOG pack) who already
// hold compressed bytes on disk and want the inflated form without
// issuing a request.
func DecodeReader(data []byte) (io.Reader, error) {
	out, err := hashutil.MaybeInflate(data)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(out), nil
}
