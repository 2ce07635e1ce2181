package rgog

import (
	"bytes"
	"compress/zlib"
	"os"
	"path/filepath"
	"testing"

	"galaxydl/internal/config"
	"galaxydl/pkg/hashutil"
)

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

// buildFixtureTree writes a minimal v2/meta + v2/store CDN mirror under
// root: one repo file referencing one depot manifest with a single
// chunked item, plus the chunk bytes themselves under a numeric pid
// (ChunkMetadata.ProductID is parsed from the store-tree directory name).
// Files are split into the galaxy-path layout ({h[:2]}/{h[2:4]}/{h}) that
// a real CDN mirror uses, not flat.
func buildFixtureTree(t *testing.T, root string) (repoHash, manifestHash, chunkHash string, plain []byte) {
	t.Helper()

	repoHash = "11111111111111111111111111111111"[:32]
	manifestHash = "22222222222222222222222222222222"[:32]
	plain = []byte("hello rgog world")
	chunkCompressed := zlibBytes(t, plain)
	chunkHash = hashutil.MD5Hex(chunkCompressed)

	manifestJSON := []byte(`{"items":[{"path":"game/data.bin","md5":"u1","size":` +
		itoa(len(plain)) + `,"chunks":[{"md5Compressed":"` + chunkHash + `","md5":"u1","compressedSize":` +
		itoa(len(chunkCompressed)) + `,"size":` + itoa(len(plain)) + `}]}]}`)

	repoJSON := []byte(`{"baseProductId":"1234567","buildId":"987654321","platform":"windows","depots":[{"manifest":"` +
		manifestHash + `","languages":["en-US"]}]}`)

	metaDir := filepath.Join(root, "v2", "meta")
	writeSplit(t, metaDir, repoHash, repoJSON)
	writeSplit(t, metaDir, manifestHash, manifestJSON)

	storeDir := filepath.Join(root, "v2", "store", "1234567")
	writeSplit(t, storeDir, chunkHash, chunkCompressed)

	return repoHash, manifestHash, chunkHash, plain
}

// writeSplit writes data at dir/{hash[:2]}/{hash[2:4]}/{hash}, the
// galaxy-path layout a real CDN mirror uses.
func writeSplit(t *testing.T, dir, hash string, data []byte) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(hashutil.JoinGalaxyPath(hash)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestPackOpenInfoAndList(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	buildFixtureTree(t, src)

	err := Pack(src, out, "testgame", PackOptions{
		ProductID:   1234567,
		ProductName: "Test Game",
		Archive:     config.DefaultArchive,
	})
	if err != nil {
		t.Fatal(err)
	}

	a, err := Open(filepath.Join(out, "testgame.rgog"))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	info := a.Info()
	if info.ProductID != 1234567 || info.ProductName != "Test Game" {
		t.Fatalf("Info = %+v", info)
	}
	if info.TotalBuilds != 1 || info.TotalChunks != 1 {
		t.Fatalf("Info = %+v", info)
	}

	builds, err := a.List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(builds) != 1 || builds[0].BuildID != 987654321 {
		t.Fatalf("List = %+v", builds)
	}
	if len(builds[0].Depots) != 1 || len(builds[0].Depots[0].Languages) != 1 || builds[0].Depots[0].Languages[0] != "en-US" {
		t.Fatalf("unexpected depot summary: %+v", builds[0].Depots)
	}
}

func TestPackVerifyFull(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	buildFixtureTree(t, src)

	if err := Pack(src, out, "testgame", PackOptions{ProductID: 1, ProductName: "x", Archive: config.DefaultArchive}); err != nil {
		t.Fatal(err)
	}
	a, err := Open(filepath.Join(out, "testgame.rgog"))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	report, err := a.Verify(true)
	if err != nil {
		t.Fatal(err)
	}
	if report.ChunksChecked != 1 || len(report.Mismatches) != 0 {
		t.Fatalf("Verify = %+v", report)
	}
}

func TestPackExtractReassemble(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	extractDir := t.TempDir()
	_, _, _, plain := buildFixtureTree(t, src)

	if err := Pack(src, out, "testgame", PackOptions{ProductID: 1, ProductName: "x", Archive: config.DefaultArchive}); err != nil {
		t.Fatal(err)
	}
	a, err := Open(filepath.Join(out, "testgame.rgog"))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if err := a.Extract(ExtractOptions{OutDir: extractDir, Reassemble: true}); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(extractDir, "987654321", "game", "data.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("reassembled data = %q, want %q", got, plain)
	}
}

func TestPackUnpackRoundTripsCDNTree(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	unpackDir := t.TempDir()
	repoHash, manifestHash, chunkHash, _ := buildFixtureTree(t, src)

	if err := Pack(src, out, "testgame", PackOptions{ProductID: 1, ProductName: "x", Archive: config.DefaultArchive}); err != nil {
		t.Fatal(err)
	}
	a, err := Open(filepath.Join(out, "testgame.rgog"))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if err := a.Unpack(unpackDir, false); err != nil {
		t.Fatal(err)
	}

	metaDir := filepath.Join(unpackDir, "v2", "meta")
	if _, err := os.Stat(filepath.Join(metaDir, filepath.FromSlash(hashutil.JoinGalaxyPath(repoHash)))); err != nil {
		t.Fatalf("repo file missing after unpack: %v", err)
	}
	if _, err := os.Stat(filepath.Join(metaDir, filepath.FromSlash(hashutil.JoinGalaxyPath(manifestHash)))); err != nil {
		t.Fatalf("manifest file missing after unpack: %v", err)
	}
	storeDir := filepath.Join(unpackDir, "v2", "store", "1234567")
	if _, err := os.Stat(filepath.Join(storeDir, filepath.FromSlash(hashutil.JoinGalaxyPath(chunkHash)))); err != nil {
		t.Fatalf("chunk file missing after unpack: %v", err)
	}
}

func TestPackMultiPartSplitsOnMaxPartSize(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	buildFixtureTree(t, src)

	// A second chunk under a tiny max part size forces a second part.
	storeDir := filepath.Join(src, "v2", "store", "1234567")
	secondHash := "44444444444444444444444444444444"[:32]
	writeSplit(t, storeDir, secondHash, zlibBytes(t, bytes.Repeat([]byte{'z'}, 200)))

	archiveCfg := config.DefaultArchive
	archiveCfg.MaxPartSize = 32

	if err := Pack(src, out, "testgame", PackOptions{ProductID: 1, ProductName: "x", Archive: archiveCfg}); err != nil {
		t.Fatal(err)
	}

	a, err := Open(filepath.Join(out, "testgame.rgog"))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if a.Info().TotalParts < 2 {
		t.Fatalf("expected multiple parts with a tiny max_part_size, got %d", a.Info().TotalParts)
	}
	if a.Info().TotalChunks != 2 {
		t.Fatalf("TotalChunks = %d, want 2", a.Info().TotalChunks)
	}
}

func TestPackRedundancyWriteAndReconstruct(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	buildFixtureTree(t, src)

	archiveCfg := config.DefaultArchive
	archiveCfg.RedundancyShards = 2

	if err := Pack(src, out, "testgame", PackOptions{ProductID: 1, ProductName: "x", Archive: archiveCfg}); err != nil {
		t.Fatal(err)
	}

	partPath := filepath.Join(out, "testgame.rgog")
	original, err := os.ReadFile(partPath)
	if err != nil {
		t.Fatal(err)
	}

	parityPaths := []string{
		filepath.Join(out, "testgame.parity0.rgog"),
		filepath.Join(out, "testgame.parity1.rgog"),
	}
	for _, p := range parityPaths {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected parity shard %s: %v", p, err)
		}
	}
	sizesPath := filepath.Join(out, "testgame"+sizesSidecarSuffix)
	if _, err := os.Stat(sizesPath); err != nil {
		t.Fatalf("expected sizes sidecar: %v", err)
	}

	// Simulate losing the data part: reconstruct it from parity. The
	// original path is passed even though the file is gone, since
	// Reconstruct writes the recovered shard back to that location.
	if err := os.Remove(partPath); err != nil {
		t.Fatal(err)
	}
	if err := Reconstruct([]string{partPath}, parityPaths, sizesPath); err != nil {
		t.Fatal(err)
	}

	recovered, err := os.ReadFile(partPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(recovered, original) {
		t.Fatalf("reconstructed part does not match original (got %d bytes, want %d)", len(recovered), len(original))
	}
}
