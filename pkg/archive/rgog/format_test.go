package rgog

import "testing"

func TestAlignUp(t *testing.T) {
	cases := map[int64]int64{
		0:  0,
		1:  64,
		63: 64,
		64: 64,
		65: 128,
	}
	for in, want := range cases {
		if got := AlignUp(in); got != want {
			t.Errorf("AlignUp(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestPaddingFor(t *testing.T) {
	if got := len(PaddingFor(65)); got != 63 {
		t.Fatalf("PaddingFor(65) len = %d, want 63", got)
	}
	if got := len(PaddingFor(64)); got != 0 {
		t.Fatalf("PaddingFor(64) len = %d, want 0", got)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		ArchiveType:     ArchiveTypeBase,
		PartNumber:      1,
		TotalParts:      3,
		TotalBuildCount: 2,
		TotalChunkCount: 500,
		LocalChunkCount: 200,
		ProductMetadata: sectionPtr{Offset: 128, Size: 64},
		BuildMetadata:   sectionPtr{Offset: 192, Size: 96},
		BuildFiles:      sectionPtr{Offset: 320, Size: 1024},
		ChunkMetadata:   sectionPtr{Offset: 1344, Size: 2000},
		ChunkFiles:      sectionPtr{Offset: 4000, Size: 90000},
	}
	data, err := h.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != HeaderSize {
		t.Fatalf("marshaled header len = %d, want %d", len(data), HeaderSize)
	}

	var got Header
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatal(err)
	}
	if got.PartNumber != h.PartNumber || got.TotalParts != h.TotalParts ||
		got.TotalBuildCount != h.TotalBuildCount || got.TotalChunkCount != h.TotalChunkCount ||
		got.BuildFiles != h.BuildFiles || got.ChunkFiles != h.ChunkFiles {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestUnmarshalBinaryRejectsBadMagic(t *testing.T) {
	data := make([]byte, HeaderSize)
	copy(data, "NOPE")
	var h Header
	if err := h.UnmarshalBinary(data); err == nil {
		t.Fatal("expected an error for bad magic")
	}
}

func TestProductMetadataRoundTrip(t *testing.T) {
	p := ProductMetadata{ProductID: 12345, ProductName: "Test Game"}
	data := p.MarshalBinary()
	if len(data)%8 != 0 {
		t.Fatalf("product metadata not 8-byte aligned: %d bytes", len(data))
	}
	got, err := UnmarshalProductMetadata(data)
	if err != nil {
		t.Fatal(err)
	}
	if got != p {
		t.Fatalf("got %+v, want %+v", got, p)
	}
}

func TestManifestEntryRoundTrip(t *testing.T) {
	id, err := md5ToBytes16("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatal(err)
	}
	m := ManifestEntry{DepotID: id, Offset: 99, Size: 4096, Languages1: 0xFF, Languages2: 0x01}
	data := m.MarshalBinary()
	if len(data) != ManifestEntrySize {
		t.Fatalf("marshaled len = %d, want %d", len(data), ManifestEntrySize)
	}
	got, err := UnmarshalManifestEntry(data)
	if err != nil {
		t.Fatal(err)
	}
	if got != m {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestBuildMetadataRoundTripWithManifests(t *testing.T) {
	depotID, _ := md5ToBytes16("00112233445566778899aabbccddeeff"[:32])
	b := BuildMetadata{
		BuildID:          42,
		OS:               OSWindows,
		RepositoryOffset: 1000,
		RepositorySize:   2000,
		Manifests: []ManifestEntry{
			{DepotID: depotID, Offset: 1, Size: 2, Languages1: 3, Languages2: 4},
		},
	}
	data := b.MarshalBinary()
	if int64(len(data)) != b.Size() {
		t.Fatalf("marshaled len = %d, Size() = %d", len(data), b.Size())
	}

	got, consumed, err := UnmarshalBuildMetadata(data)
	if err != nil {
		t.Fatal(err)
	}
	if consumed != len(data) {
		t.Fatalf("consumed = %d, want %d", consumed, len(data))
	}
	if got.BuildID != b.BuildID || got.OS != b.OS || len(got.Manifests) != 1 {
		t.Fatalf("got %+v, want %+v", got, b)
	}
}

func TestChunkMetadataRoundTrip(t *testing.T) {
	md5, err := md5ToBytes16("ffeeddccbbaa99887766554433221100")
	if err != nil {
		t.Fatal(err)
	}
	c := ChunkMetadata{CompressedMD5: md5, Offset: 55, Size: 66, ProductID: 77}
	data := c.MarshalBinary()
	if len(data) != ChunkMetaEntrySize {
		t.Fatalf("marshaled len = %d, want %d", len(data), ChunkMetaEntrySize)
	}
	got, err := UnmarshalChunkMetadata(data)
	if err != nil {
		t.Fatal(err)
	}
	if got != c {
		t.Fatalf("got %+v, want %+v", got, c)
	}
}

func TestMD5Bytes16RoundTrip(t *testing.T) {
	hexStr := "aabbccddeeff00112233445566778899"
	b, err := md5ToBytes16(hexStr)
	if err != nil {
		t.Fatal(err)
	}
	if got := bytes16ToMD5(b); got != hexStr {
		t.Fatalf("bytes16ToMD5 = %s, want %s", got, hexStr)
	}
}

func TestMD5Bytes16RejectsWrongLength(t *testing.T) {
	if _, err := md5ToBytes16("too short"); err == nil {
		t.Fatal("expected an error for a non-32-char hex string")
	}
}
