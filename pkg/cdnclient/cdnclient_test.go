package cdnclient

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"galaxydl/internal/config"
	"galaxydl/internal/galaxyerr"
	"galaxydl/internal/logging"
)

// fakeTransport serves canned responses regardless of the request URL,
// so these tests exercise the retry/refresh/decode logic without any
// real network access (spec.md §4.1/§7).
type fakeTransport struct {
	responses []*http.Response
	errs      []error
	calls     int
	onRequest func(*http.Request)
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if f.onRequest != nil {
		f.onRequest(req)
	}
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

func bodyResponse(status int, body []byte) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}

func zlibCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatal(err)
	}
	zw.Close()
	return buf.Bytes()
}

type staticTokens struct{ token string }

func (s staticTokens) Token() string          { return s.token }
func (s staticTokens) Refresh(context.Context) error { return nil }

func TestIsTransient(t *testing.T) {
	cases := map[int]bool{
		http.StatusRequestTimeout:     true,
		http.StatusTooManyRequests:    true,
		http.StatusInternalServerError: true,
		http.StatusBadGateway:         true,
		http.StatusOK:                 false,
		http.StatusNotFound:           false,
	}
	for status, want := range cases {
		if got := isTransient(status); got != want {
			t.Errorf("isTransient(%d) = %v, want %v", status, got, want)
		}
	}
}

func TestGetJSONTransparentZlibDecode(t *testing.T) {
	body := zlibCompress(t, []byte(`{"hello":"world"}`))
	ft := &fakeTransport{responses: []*http.Response{bodyResponse(200, body)}}
	c := &Client{
		HTTP: &http.Client{Transport: ft},
		Cfg:  config.Default,
		Log:  logging.GlobalLogger,
	}

	var out map[string]string
	if err := c.GetJSON(context.Background(), "https://example.invalid/x", false, &out); err != nil {
		t.Fatal(err)
	}
	if out["hello"] != "world" {
		t.Fatalf("decoded body = %+v", out)
	}
}

func TestGetRawJSON404IsNotFound(t *testing.T) {
	ft := &fakeTransport{responses: []*http.Response{bodyResponse(404, nil)}}
	c := &Client{HTTP: &http.Client{Transport: ft}, Cfg: config.Default, Log: logging.GlobalLogger}

	_, _, err := c.GetRawJSON(context.Background(), "https://example.invalid/missing", false)
	if !errors.Is(err, galaxyerr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetJSON401TriggersRefreshThenRetries(t *testing.T) {
	goodBody := zlibCompress(t, []byte(`{"ok":true}`))
	ft := &fakeTransport{
		responses: []*http.Response{
			bodyResponse(401, nil),
			bodyResponse(200, goodBody),
		},
	}
	refreshed := false
	tokens := refreshTracker{staticTokens{token: "tok"}, &refreshed}

	c := &Client{HTTP: &http.Client{Transport: ft}, Tokens: tokens, Cfg: config.Default, Log: logging.GlobalLogger}

	var out map[string]bool
	if err := c.GetJSON(context.Background(), "https://example.invalid/y", true, &out); err != nil {
		t.Fatal(err)
	}
	if !refreshed {
		t.Fatal("expected Refresh to be called after a 401")
	}
	if !out["ok"] {
		t.Fatalf("decoded body = %+v", out)
	}
}

type refreshTracker struct {
	staticTokens
	called *bool
}

func (r refreshTracker) Refresh(ctx context.Context) error {
	*r.called = true
	return nil
}

func TestOwnedGames(t *testing.T) {
	body := []byte(`{"owned":[1,2,3]}`)
	ft := &fakeTransport{responses: []*http.Response{bodyResponse(200, body)}}
	c := &Client{HTTP: &http.Client{Transport: ft}, Tokens: staticTokens{token: "t"}, Cfg: config.Default, Log: logging.GlobalLogger}

	ids, err := c.OwnedGames(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Fatalf("OwnedGames = %v", ids)
	}
}

func TestBackoffGrowsWithAttempt(t *testing.T) {
	base := 10 * time.Millisecond
	d0 := backoff(0, base)
	d3 := backoff(3, base)
	if d3 <= d0 {
		t.Fatalf("expected backoff to grow: attempt0=%v attempt3=%v", d0, d3)
	}
}
