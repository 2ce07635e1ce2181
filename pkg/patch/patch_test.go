package patch

import (
	"bytes"
	"compress/zlib"
	"context"
	"io"
	"net/http"
	"testing"

	"galaxydl/internal/config"
	"galaxydl/pkg/cdnclient"
	"galaxydl/pkg/manifest"
)

type fakeTransport struct {
	responses []*http.Response
	calls     int
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

func zlibBody(t *testing.T, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatal(err)
	}
	zw.Close()
	return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(buf.Bytes())), Header: make(http.Header)}
}

func plainBody(status int, data []byte) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(data)), Header: make(http.Header)}
}

func v2Manifests(pid string) manifest.Manifest {
	return manifest.Manifest{BaseProductID: pid, BuildID: "1", Generation: manifest.GenerationV2}
}

func TestGetPatchReturnsNilWhenInfoHasError(t *testing.T) {
	ft := &fakeTransport{responses: []*http.Response{
		plainBody(200, []byte(`{"error":"not_found"}`)),
	}}
	client := &cdnclient.Client{HTTP: &http.Client{Transport: ft}, Cfg: config.Default}
	r := NewResolver(client)

	p, err := r.GetPatch(context.Background(), "1234567", v2Manifests("1234567"), v2Manifests("1234567"), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Fatalf("expected nil patch, got %+v", p)
	}
}

func TestGetPatchReturnsNilOnEmptyRootSentinel(t *testing.T) {
	ft := &fakeTransport{responses: []*http.Response{
		plainBody(200, []byte(`{"link":"https://example.invalid/root"}`)),
		zlibBody(t, []byte(`{}`)),
	}}
	client := &cdnclient.Client{HTTP: &http.Client{Transport: ft}, Cfg: config.Default}
	r := NewResolver(client)

	p, err := r.GetPatch(context.Background(), "1234567", v2Manifests("1234567"), v2Manifests("1234567"), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Fatalf("expected nil patch for an empty root sentinel, got %+v", p)
	}
}

func TestGetPatchResolvesMatchingDepotFiles(t *testing.T) {
	root := []byte(`{"algorithm":"xdelta3","clientId":"cid","clientSecret":"secret","depots":[
		{"productId":"1234567","manifest":"deadbeef","languages":["en-US"]},
		{"productId":"9999999","manifest":"other","languages":["en-US"]}
	]}`)
	depotPatch := []byte(`{"depot":{"items":[
		{"sourcePath":"a.old","path":"a.new","md5Source":"aaa","md5":"bbb","chunks":[
			{"md5Compressed":"c1","md5":"u1","compressedSize":10,"size":20}
		]}
	]}}`)

	ft := &fakeTransport{responses: []*http.Response{
		plainBody(200, []byte(`{"link":"https://example.invalid/root"}`)),
		zlibBody(t, root),
		zlibBody(t, depotPatch),
	}}
	client := &cdnclient.Client{HTTP: &http.Client{Transport: ft}, Cfg: config.Default}
	r := NewResolver(client)

	p, err := r.GetPatch(context.Background(), "1234567", v2Manifests("1234567"), v2Manifests("1234567"), "en-US", nil)
	if err != nil {
		t.Fatal(err)
	}
	if p == nil {
		t.Fatal("expected a non-nil patch")
	}
	if p.Algorithm != "xdelta3" || p.ClientID != "cid" {
		t.Fatalf("unexpected patch header: %+v", p)
	}
	if len(p.Files) != 1 || p.Files[0].TargetPath != "a.new" {
		t.Fatalf("expected one resolved file diff (non-matching depot skipped), got %+v", p.Files)
	}
	if len(p.Files[0].Chunks) != 1 || p.Files[0].Chunks[0].MD5Compressed != "c1" {
		t.Fatalf("unexpected chunks: %+v", p.Files[0].Chunks)
	}
}

func TestGetPatchSkipsV1Generation(t *testing.T) {
	client := &cdnclient.Client{HTTP: &http.Client{Transport: &fakeTransport{}}, Cfg: config.Default}
	r := NewResolver(client)

	oldM := manifest.Manifest{Generation: manifest.GenerationV1}
	newM := manifest.Manifest{Generation: manifest.GenerationV2}
	p, err := r.GetPatch(context.Background(), "1", newM, oldM, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Fatalf("expected nil patch for a V1 build pair, got %+v", p)
	}
}

func TestLanguageMatches(t *testing.T) {
	if !languageMatches(nil, "") {
		t.Fatal("empty wanted language should always match")
	}
	if !languageMatches([]string{"*"}, "en-US") {
		t.Fatal("wildcard should match any language")
	}
	if languageMatches([]string{"fr-FR"}, "en-US") {
		t.Fatal("mismatched language should not match")
	}
}
