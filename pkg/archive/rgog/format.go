// Package rgog implements the RGOG archive format (C9 writer / C10
// reader): a deterministic, seekable binary container for a v2 CDN tree,
// with a metadata-first layout supporting multi-part splitting and
// selective extraction (spec.md §4.7-4.8). Grounded on the Python
// reference implementation's struct layout (original_source/examples/
// rgog/common.py), with the ChunkMetadata entry widened from 32 to 40
// bytes to carry product_id, per spec.md §4.7's explicit redefinition.
package rgog

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"galaxydl/internal/galaxyerr"
)

const (
	Magic   = "RGOG"
	Version = 0x0002

	ArchiveTypeBase  = 0x01
	ArchiveTypePatch = 0x02 // reserved, unimplemented (spec.md §9 Open Questions)

	SectionAlignment = 64

	HeaderSize         = 128
	ChunkMetaEntrySize = 40 // compressed_md5(16) + offset(8) + size(8) + product_id(8)
	ManifestEntrySize  = 48 // depot_id(16) + offset(8) + size(8) + languages1(8) + languages2(8)
	BuildHeaderSize    = 48 // build_id(8) + os(1) + reserved(3) + repository_id(16) + repo_offset(8) + repo_size(8) + manifest_count(2) + reserved(2)

	OSNull    = 0
	OSWindows = 1
	OSMac     = 2
	OSLinux   = 3
)

// AlignUp rounds offset up to the next multiple of SectionAlignment.
func AlignUp(offset int64) int64 {
	rem := offset % SectionAlignment
	if rem == 0 {
		return offset
	}
	return offset + (SectionAlignment - rem)
}

// PaddingFor returns the NUL padding needed to bring offset to alignment.
func PaddingFor(offset int64) []byte {
	return make([]byte, AlignUp(offset)-offset)
}

// sectionPtr is one (offset, size) pair in the header.
type sectionPtr struct {
	Offset uint64
	Size   uint64
}

// Header is the 128-byte RGOG part header.
type Header struct {
	ArchiveType     uint8
	PartNumber      uint32
	TotalParts      uint32
	TotalBuildCount uint16
	TotalChunkCount uint32
	LocalChunkCount uint32

	ProductMetadata sectionPtr
	BuildMetadata   sectionPtr
	BuildFiles      sectionPtr
	ChunkMetadata   sectionPtr
	ChunkFiles      sectionPtr
}

// MarshalBinary serialises the header to its fixed 128-byte form.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.WriteString(Magic)
	binary.Write(buf, binary.LittleEndian, uint16(Version))
	buf.WriteByte(h.ArchiveType)
	buf.WriteByte(0) // reserved1
	binary.Write(buf, binary.LittleEndian, h.PartNumber)
	binary.Write(buf, binary.LittleEndian, h.TotalParts)
	binary.Write(buf, binary.LittleEndian, h.TotalBuildCount)
	binary.Write(buf, binary.LittleEndian, h.TotalChunkCount)
	binary.Write(buf, binary.LittleEndian, h.LocalChunkCount)

	for _, s := range []sectionPtr{h.ProductMetadata, h.BuildMetadata, h.BuildFiles, h.ChunkMetadata, h.ChunkFiles} {
		binary.Write(buf, binary.LittleEndian, s.Offset)
		binary.Write(buf, binary.LittleEndian, s.Size)
	}

	out := buf.Bytes()
	if len(out) > HeaderSize {
		return nil, fmt.Errorf("rgog: header overflowed %d bytes", HeaderSize)
	}
	padded := make([]byte, HeaderSize)
	copy(padded, out)
	return padded, nil
}

// UnmarshalBinary parses a 128-byte header.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: header too short (%d bytes)", galaxyerr.ErrInvalidArchive, len(data))
	}
	if string(data[0:4]) != Magic {
		return fmt.Errorf("%w: bad magic %q", galaxyerr.ErrInvalidArchive, data[0:4])
	}
	version := binary.LittleEndian.Uint16(data[4:6])
	if version != Version {
		return fmt.Errorf("%w: version 0x%04x", galaxyerr.ErrUnsupported, version)
	}
	h.ArchiveType = data[6]
	h.PartNumber = binary.LittleEndian.Uint32(data[8:12])
	h.TotalParts = binary.LittleEndian.Uint32(data[12:16])
	h.TotalBuildCount = binary.LittleEndian.Uint16(data[16:18])
	h.TotalChunkCount = binary.LittleEndian.Uint32(data[18:22])
	h.LocalChunkCount = binary.LittleEndian.Uint32(data[22:26])

	ptrs := make([]sectionPtr, 5)
	off := 26
	for i := range ptrs {
		ptrs[i].Offset = binary.LittleEndian.Uint64(data[off : off+8])
		ptrs[i].Size = binary.LittleEndian.Uint64(data[off+8 : off+16])
		off += 16
	}
	h.ProductMetadata = ptrs[0]
	h.BuildMetadata = ptrs[1]
	h.BuildFiles = ptrs[2]
	h.ChunkMetadata = ptrs[3]
	h.ChunkFiles = ptrs[4]
	return nil
}

// ProductMetadata is the Part-0-only product identity record.
type ProductMetadata struct {
	ProductID   uint64
	ProductName string
}

func (p ProductMetadata) MarshalBinary() []byte {
	nameBytes := []byte(p.ProductName)
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, p.ProductID)
	binary.Write(buf, binary.LittleEndian, uint32(len(nameBytes)))
	buf.Write(nameBytes)
	total := 8 + 4 + len(nameBytes)
	pad := (8 - (total % 8)) % 8
	buf.Write(make([]byte, pad))
	return buf.Bytes()
}

func UnmarshalProductMetadata(data []byte) (ProductMetadata, error) {
	if len(data) < 12 {
		return ProductMetadata{}, fmt.Errorf("%w: product metadata too short", galaxyerr.ErrInvalidArchive)
	}
	id := binary.LittleEndian.Uint64(data[0:8])
	nameSize := binary.LittleEndian.Uint32(data[8:12])
	if int(12+nameSize) > len(data) {
		return ProductMetadata{}, fmt.Errorf("%w: product name overruns section", galaxyerr.ErrInvalidArchive)
	}
	name := string(data[12 : 12+nameSize])
	return ProductMetadata{ProductID: id, ProductName: name}, nil
}

// ManifestEntry locates one depot manifest's compressed bytes within
// BuildFiles, plus its packed language bit-set.
type ManifestEntry struct {
	DepotID     [16]byte
	Offset      uint64
	Size        uint64
	Languages1  uint64
	Languages2  uint64
}

func (m ManifestEntry) MarshalBinary() []byte {
	buf := make([]byte, ManifestEntrySize)
	copy(buf[0:16], m.DepotID[:])
	binary.LittleEndian.PutUint64(buf[16:24], m.Offset)
	binary.LittleEndian.PutUint64(buf[24:32], m.Size)
	binary.LittleEndian.PutUint64(buf[32:40], m.Languages1)
	binary.LittleEndian.PutUint64(buf[40:48], m.Languages2)
	return buf
}

func UnmarshalManifestEntry(data []byte) (ManifestEntry, error) {
	if len(data) < ManifestEntrySize {
		return ManifestEntry{}, fmt.Errorf("%w: manifest entry too short", galaxyerr.ErrInvalidArchive)
	}
	var m ManifestEntry
	copy(m.DepotID[:], data[0:16])
	m.Offset = binary.LittleEndian.Uint64(data[16:24])
	m.Size = binary.LittleEndian.Uint64(data[24:32])
	m.Languages1 = binary.LittleEndian.Uint64(data[32:40])
	m.Languages2 = binary.LittleEndian.Uint64(data[40:48])
	return m, nil
}

// BuildMetadata describes one build: its repository file location plus
// the depot manifests that belong to it.
type BuildMetadata struct {
	BuildID          uint64
	OS               uint8
	RepositoryID     [16]byte
	RepositoryOffset uint64
	RepositorySize   uint64
	Manifests        []ManifestEntry
}

func (b BuildMetadata) Size() int64 {
	return BuildHeaderSize + int64(len(b.Manifests))*ManifestEntrySize
}

func (b BuildMetadata) MarshalBinary() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, b.BuildID)
	buf.WriteByte(b.OS)
	buf.Write(make([]byte, 3))
	buf.Write(b.RepositoryID[:])
	binary.Write(buf, binary.LittleEndian, b.RepositoryOffset)
	binary.Write(buf, binary.LittleEndian, b.RepositorySize)
	binary.Write(buf, binary.LittleEndian, uint16(len(b.Manifests)))
	buf.Write(make([]byte, 2))
	for _, m := range b.Manifests {
		buf.Write(m.MarshalBinary())
	}
	return buf.Bytes()
}

func UnmarshalBuildMetadata(data []byte) (BuildMetadata, int, error) {
	if len(data) < BuildHeaderSize {
		return BuildMetadata{}, 0, fmt.Errorf("%w: build metadata too short", galaxyerr.ErrInvalidArchive)
	}
	var b BuildMetadata
	b.BuildID = binary.LittleEndian.Uint64(data[0:8])
	b.OS = data[8]
	copy(b.RepositoryID[:], data[12:28])
	b.RepositoryOffset = binary.LittleEndian.Uint64(data[28:36])
	b.RepositorySize = binary.LittleEndian.Uint64(data[36:44])
	manifestCount := binary.LittleEndian.Uint16(data[44:46])

	off := BuildHeaderSize
	for i := 0; i < int(manifestCount); i++ {
		if off+ManifestEntrySize > len(data) {
			return BuildMetadata{}, 0, fmt.Errorf("%w: manifest entry overruns build metadata", galaxyerr.ErrInvalidArchive)
		}
		m, err := UnmarshalManifestEntry(data[off : off+ManifestEntrySize])
		if err != nil {
			return BuildMetadata{}, 0, err
		}
		b.Manifests = append(b.Manifests, m)
		off += ManifestEntrySize
	}
	return b, off, nil
}

// ChunkMetadata locates one compressed chunk within ChunkFiles, scoped
// to the product that owns it (spec.md §4.7's 40-byte redefinition).
type ChunkMetadata struct {
	CompressedMD5 [16]byte
	Offset        uint64
	Size          uint64
	ProductID     uint64
}

func (c ChunkMetadata) MarshalBinary() []byte {
	buf := make([]byte, ChunkMetaEntrySize)
	copy(buf[0:16], c.CompressedMD5[:])
	binary.LittleEndian.PutUint64(buf[16:24], c.Offset)
	binary.LittleEndian.PutUint64(buf[24:32], c.Size)
	binary.LittleEndian.PutUint64(buf[32:40], c.ProductID)
	return buf
}

func UnmarshalChunkMetadata(data []byte) (ChunkMetadata, error) {
	if len(data) < ChunkMetaEntrySize {
		return ChunkMetadata{}, fmt.Errorf("%w: chunk metadata too short", galaxyerr.ErrInvalidArchive)
	}
	var c ChunkMetadata
	copy(c.CompressedMD5[:], data[0:16])
	c.Offset = binary.LittleEndian.Uint64(data[16:24])
	c.Size = binary.LittleEndian.Uint64(data[24:32])
	c.ProductID = binary.LittleEndian.Uint64(data[32:40])
	return c, nil
}

func md5ToBytes16(hexStr string) ([16]byte, error) {
	var out [16]byte
	if len(hexStr) != 32 {
		return out, fmt.Errorf("%w: md5 hex %q is not 32 chars", galaxyerr.ErrInvalidArchive, hexStr)
	}
	decoded, err := hex.DecodeString(hexStr)
	if err != nil {
		return out, fmt.Errorf("%w: bad md5 hex %q: %v", galaxyerr.ErrInvalidArchive, hexStr, err)
	}
	copy(out[:], decoded)
	return out, nil
}

func bytes16ToMD5(b [16]byte) string {
	return fmt.Sprintf("%x", b[:])
}
