package securelink

import (
	"bytes"
	"compress/zlib"
	"context"
	"io"
	"net/http"
	"testing"

	"galaxydl/internal/config"
	"galaxydl/pkg/cdnclient"
)

type fakeTransport struct {
	bodies [][]byte
	calls  int
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	i := f.calls
	f.calls++
	if i >= len(f.bodies) {
		i = len(f.bodies) - 1
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(f.bodies[i])
	zw.Close()
	return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(buf.Bytes())), Header: make(http.Header)}, nil
}

func newTestClient(bodies ...[]byte) *cdnclient.Client {
	return &cdnclient.Client{HTTP: &http.Client{Transport: &fakeTransport{bodies: bodies}}, Cfg: config.Default}
}

func TestStoreURLsSortsByPriorityAndFillsGalaxyPath(t *testing.T) {
	body := []byte(`{"urls":[
		{"url_format":"https://low.example/{GALAXY_PATH}","priority":2,"parameters":{"expires_at":"9999999999"}},
		{"url_format":"https://high.example/{GALAXY_PATH}","priority":1,"parameters":{"expires_at":"9999999999"}}
	]}`)
	p := New(newTestClient(body))

	urls, err := p.StoreURLs(context.Background(), "123", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(urls) != 2 || urls[0] != "https://high.example/{GALAXY_PATH}" {
		t.Fatalf("expected priority-1 url first, got %v", urls)
	}

	filled := FillChunkPath(urls[0], "ab/cd/abcdef")
	if filled != "https://high.example/ab/cd/abcdef" {
		t.Fatalf("FillChunkPath = %s", filled)
	}
}

func TestStoreURLsCachesWithinExpiry(t *testing.T) {
	body := []byte(`{"urls":[{"url_format":"https://a.example/{GALAXY_PATH}","priority":1,"parameters":{"expires_at":"9999999999"}}]}`)
	client := newTestClient(body, body)
	p := New(client)

	if _, err := p.StoreURLs(context.Background(), "123", 2); err != nil {
		t.Fatal(err)
	}
	if _, err := p.StoreURLs(context.Background(), "123", 2); err != nil {
		t.Fatal(err)
	}

	ft := client.HTTP.Transport.(*fakeTransport)
	if ft.calls != 1 {
		t.Fatalf("expected a single underlying fetch for two cache-hit calls, got %d", ft.calls)
	}
}

func TestStoreURLsRefetchesAfterExpiry(t *testing.T) {
	expired := []byte(`{"urls":[{"url_format":"https://old.example/{GALAXY_PATH}","priority":1,"parameters":{"expires_at":"1"}}]}`)
	fresh := []byte(`{"urls":[{"url_format":"https://new.example/{GALAXY_PATH}","priority":1,"parameters":{"expires_at":"9999999999"}}]}`)
	client := newTestClient(expired, fresh)
	p := New(client)

	first, err := p.StoreURLs(context.Background(), "123", 2)
	if err != nil {
		t.Fatal(err)
	}
	if first[0] != "https://old.example/{GALAXY_PATH}" {
		t.Fatalf("unexpected first fetch result: %v", first)
	}

	second, err := p.StoreURLs(context.Background(), "123", 2)
	if err != nil {
		t.Fatal(err)
	}
	if second[0] != "https://new.example/{GALAXY_PATH}" {
		t.Fatalf("expected a refreshed entry past expiry, got %v", second)
	}
}

func TestPatchStoreURLsUsesDistinctCacheKey(t *testing.T) {
	storeBody := []byte(`{"urls":[{"url_format":"https://store.example/{GALAXY_PATH}","priority":1,"parameters":{"expires_at":"9999999999"}}]}`)
	patchBody := []byte(`{"urls":[{"url_format":"https://patch.example/{GALAXY_PATH}","priority":1,"parameters":{"expires_at":"9999999999"}}]}`)
	client := newTestClient(storeBody, patchBody)
	p := New(client)

	storeURLs, err := p.StoreURLs(context.Background(), "123", 2)
	if err != nil {
		t.Fatal(err)
	}
	patchURLs, err := p.PatchStoreURLs(context.Background(), "123", "cid", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if storeURLs[0] == patchURLs[0] {
		t.Fatalf("expected store and patch roots to be cached separately, got %v and %v", storeURLs, patchURLs)
	}
}
