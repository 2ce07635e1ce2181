package hashutil

import (
	"bytes"
	"compress/zlib"
	"io"
	"testing"
)

func TestMD5Hex(t *testing.T) {
	got := MD5Hex([]byte("hello world"))
	want := "5eb63bbbe01eeed093cb22bb8f5acdc3"
	if got != want {
		t.Fatalf("MD5Hex = %s, want %s", got, want)
	}
}

func TestMD5Reader(t *testing.T) {
	got, err := MD5Reader(bytes.NewReader([]byte("hello world")))
	if err != nil {
		t.Fatal(err)
	}
	want := "5eb63bbbe01eeed093cb22bb8f5acdc3"
	if got != want {
		t.Fatalf("MD5Reader = %s, want %s", got, want)
	}
}

func TestGalaxyPath(t *testing.T) {
	a, b, rest := GalaxyPath("aabbccdd1122")
	if a != "aa" || b != "bb" || rest != "aabbccdd1122" {
		t.Fatalf("GalaxyPath = (%s, %s, %s)", a, b, rest)
	}

	a, b, rest = GalaxyPath("ab")
	if a != "ab" || b != "ab" || rest != "ab" {
		t.Fatalf("GalaxyPath short hash = (%s, %s, %s)", a, b, rest)
	}
}

func TestJoinGalaxyPath(t *testing.T) {
	got := JoinGalaxyPath("aabbccddeeff")
	want := "aa/bb/aabbccddeeff"
	if got != want {
		t.Fatalf("JoinGalaxyPath = %s, want %s", got, want)
	}
}

func TestMaybeInflateRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write([]byte("payload bytes")); err != nil {
		t.Fatal(err)
	}
	zw.Close()

	out, err := MaybeInflate(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "payload bytes" {
		t.Fatalf("MaybeInflate = %q", out)
	}
}

func TestMaybeInflatePassthrough(t *testing.T) {
	raw := []byte(`{"not":"compressed"}`)
	out, err := MaybeInflate(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, raw) {
		t.Fatalf("MaybeInflate changed raw JSON bytes")
	}
}

func TestInflate(t *testing.T) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write([]byte("chunk body"))
	zw.Close()

	rc, err := Inflate(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	out, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "chunk body" {
		t.Fatalf("Inflate = %q", out)
	}
}

func TestRangeHeader(t *testing.T) {
	got := RangeHeader(0, 1023)
	want := "bytes=0-1023"
	if got != want {
		t.Fatalf("RangeHeader = %s, want %s", got, want)
	}
}
