package downloader

import (
	"bytes"
	"compress/zlib"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"galaxydl/internal/config"
	"galaxydl/internal/statedb"
	"galaxydl/pkg/cdnclient"
	"galaxydl/pkg/hashutil"
)

type fakeTransport struct {
	body  []byte
	calls int
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(f.body)), Header: make(http.Header)}, nil
}

func zlibBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatal(err)
	}
	zw.Close()
	return buf.Bytes()
}

func newTestPool(t *testing.T, body []byte) (*Pool, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{body: body}
	client := &cdnclient.Client{HTTP: &http.Client{Transport: ft}, Cfg: config.Default}
	p := NewPool(client, 1, 4, 3, 3)
	t.Cleanup(p.Stop)
	return p, ft
}

func TestWorkerExecuteFetchesVerifiesInflatesAndWrites(t *testing.T) {
	plain := []byte("chunk payload bytes")
	compressed := zlibBytes(t, plain)
	md5 := hashutil.MD5Hex(compressed)

	p, _ := newTestPool(t, compressed)
	destPath := filepath.Join(t.TempDir(), "out.bin")

	w := p.workers[0]
	result := w.execute(chunkTask{
		URLs:                   []string{"https://example.invalid/chunk"},
		CompressedMD5:          md5,
		ExpectedSizeCompressed: int64(len(compressed)),
		Inflate:                true,
		DestPath:               destPath,
		WriteOffset:            0,
	})
	if result.Err != nil {
		t.Fatal(result.Err)
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("written bytes = %q, want %q", got, plain)
	}
}

func TestWorkerExecuteHashMismatch(t *testing.T) {
	p, _ := newTestPool(t, []byte("not what you expect"))

	w := p.workers[0]
	result := w.execute(chunkTask{
		URLs:          []string{"https://example.invalid/chunk"},
		CompressedMD5: "0000000000000000000000000000000",
	})
	if result.Err == nil {
		t.Fatal("expected a hash mismatch error")
	}
}

func TestWorkerExecuteSkipsAlreadyVerifiedChunk(t *testing.T) {
	plain := []byte("chunk payload bytes")
	compressed := zlibBytes(t, plain)
	md5 := hashutil.MD5Hex(compressed)

	p, ft := newTestPool(t, compressed)

	dbPath := filepath.Join(t.TempDir(), "state.db")
	db, err := statedb.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	p.SetStateDB(db)

	if err := db.MarkVerified(statedb.ChunkRecord{CompressedMD5: md5, Size: int64(len(compressed))}); err != nil {
		t.Fatal(err)
	}

	w := p.workers[0]
	result := w.execute(chunkTask{
		URLs:                   []string{"https://example.invalid/chunk"},
		CompressedMD5:          md5,
		ExpectedSizeCompressed: int64(len(compressed)),
	})
	if result.Err != nil {
		t.Fatal(result.Err)
	}
	if ft.calls != 0 {
		t.Fatalf("expected no network fetch for an already-verified chunk, got %d calls", ft.calls)
	}
	if result.NBytes != int64(len(compressed)) {
		t.Fatalf("NBytes = %d, want %d", result.NBytes, len(compressed))
	}
}

func TestWorkerExecuteMarksVerifiedOnSuccess(t *testing.T) {
	plain := []byte("chunk payload bytes")
	compressed := zlibBytes(t, plain)
	md5 := hashutil.MD5Hex(compressed)

	p, _ := newTestPool(t, compressed)

	dbPath := filepath.Join(t.TempDir(), "state.db")
	db, err := statedb.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	p.SetStateDB(db)

	w := p.workers[0]
	if result := w.execute(chunkTask{URLs: []string{"https://example.invalid/chunk"}, CompressedMD5: md5}); result.Err != nil {
		t.Fatal(result.Err)
	}

	verified, err := db.IsVerified(md5)
	if err != nil {
		t.Fatal(err)
	}
	if !verified {
		t.Fatal("expected the chunk to be marked verified after a successful fetch")
	}
}
