package rgog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"galaxydl/internal/galaxyerr"
	"galaxydl/pkg/hashutil"
)

// chunkLocation pins one chunk to the part file and byte range holding
// its compressed bytes.
type chunkLocation struct {
	PartNumber int
	Offset     uint64
	Size       uint64
}

// Archive is an opened, read-only view over a (possibly multi-part)
// .rgog container (spec.md §4.8 C10).
type Archive struct {
	dir      string
	baseName string

	parts   []*os.File
	headers []Header

	product    ProductMetadata
	builds     []BuildMetadata
	buildFiles []byte // part 0's BuildFiles section, held in memory

	chunkKeys []string // lowercase hex, globally sorted
	chunkLoc  map[string]chunkLocation
}

// Open reads part 0 at path, discovers and opens any sibling parts
// named {base}.partN.rgog, and builds the in-memory chunk index used
// for O(log n) lookups during extraction/verification.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	header, err := readHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if header.PartNumber != 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s is part %d, not part 0", galaxyerr.ErrInvalidArchive, path, header.PartNumber)
	}

	a := &Archive{
		dir:      filepath.Dir(path),
		baseName: strings.TrimSuffix(filepath.Base(path), ".rgog"),
		parts:    []*os.File{f},
		headers:  []Header{header},
		chunkLoc: make(map[string]chunkLocation),
	}

	productRaw, err := readSection(f, header.ProductMetadata)
	if err != nil {
		a.Close()
		return nil, err
	}
	if header.ProductMetadata.Size > 0 {
		a.product, err = UnmarshalProductMetadata(productRaw)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	buildRaw, err := readSection(f, header.BuildMetadata)
	if err != nil {
		a.Close()
		return nil, err
	}
	off := 0
	for i := 0; i < int(header.TotalBuildCount); i++ {
		if off >= len(buildRaw) {
			break
		}
		b, consumed, err := UnmarshalBuildMetadata(buildRaw[off:])
		if err != nil {
			a.Close()
			return nil, err
		}
		a.builds = append(a.builds, b)
		off += consumed
	}

	a.buildFiles, err = readSection(f, header.BuildFiles)
	if err != nil {
		a.Close()
		return nil, err
	}

	if err := a.indexPartChunks(0); err != nil {
		a.Close()
		return nil, err
	}

	for i := 1; i < int(header.TotalParts); i++ {
		partPath := filepath.Join(a.dir, a.baseName+".part"+strconv.Itoa(i)+".rgog")
		pf, err := os.Open(partPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("rgog: open %s: %w", partPath, err)
		}
		ph, err := readHeader(pf)
		if err != nil {
			a.Close()
			return nil, err
		}
		if int(ph.PartNumber) != i {
			a.Close()
			return nil, fmt.Errorf("%w: %s claims part number %d, expected %d", galaxyerr.ErrInvalidArchive, partPath, ph.PartNumber, i)
		}
		a.parts = append(a.parts, pf)
		a.headers = append(a.headers, ph)
		if err := a.indexPartChunks(i); err != nil {
			a.Close()
			return nil, err
		}
	}

	sort.Strings(a.chunkKeys)
	return a, nil
}

func (a *Archive) indexPartChunks(partNumber int) error {
	f := a.parts[partNumber]
	h := a.headers[partNumber]
	raw, err := readSection(f, h.ChunkMetadata)
	if err != nil {
		return err
	}
	for i := 0; i < int(h.LocalChunkCount); i++ {
		start := i * ChunkMetaEntrySize
		if start+ChunkMetaEntrySize > len(raw) {
			return fmt.Errorf("%w: chunk metadata entry %d overruns part %d", galaxyerr.ErrInvalidArchive, i, partNumber)
		}
		c, err := UnmarshalChunkMetadata(raw[start : start+ChunkMetaEntrySize])
		if err != nil {
			return err
		}
		key := bytes16ToMD5(c.CompressedMD5)
		a.chunkKeys = append(a.chunkKeys, key)
		a.chunkLoc[key] = chunkLocation{PartNumber: partNumber, Offset: c.Offset, Size: c.Size}
	}
	return nil
}

func readHeader(f *os.File) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return Header{}, fmt.Errorf("rgog: read header: %w", err)
	}
	var h Header
	if err := h.UnmarshalBinary(buf); err != nil {
		return Header{}, err
	}
	return h, nil
}

func readSection(f *os.File, ptr sectionPtr) ([]byte, error) {
	if ptr.Size == 0 {
		return nil, nil
	}
	buf := make([]byte, ptr.Size)
	if _, err := f.ReadAt(buf, int64(ptr.Offset)); err != nil {
		return nil, fmt.Errorf("rgog: read section at %d (%d bytes): %w", ptr.Offset, ptr.Size, err)
	}
	return buf, nil
}

func (a *Archive) readChunk(key string) ([]byte, error) {
	loc, ok := a.chunkLoc[key]
	if !ok {
		return nil, fmt.Errorf("%w: chunk %s not in archive", galaxyerr.ErrNotFound, key)
	}
	h := a.headers[loc.PartNumber]
	buf := make([]byte, loc.Size)
	if _, err := a.parts[loc.PartNumber].ReadAt(buf, int64(h.ChunkFiles.Offset+loc.Offset)); err != nil {
		return nil, fmt.Errorf("rgog: read chunk %s: %w", key, err)
	}
	return buf, nil
}

// Close releases all open part file handles.
func (a *Archive) Close() error {
	var firstErr error
	for _, f := range a.parts {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Info summarises an archive's top-level identity and extent.
type Info struct {
	ProductID   uint64
	ProductName string
	TotalParts  int
	TotalBuilds int
	TotalChunks int
}

func (a *Archive) Info() Info {
	return Info{
		ProductID:   a.product.ProductID,
		ProductName: a.product.ProductName,
		TotalParts:  len(a.parts),
		TotalBuilds: len(a.builds),
		TotalChunks: len(a.chunkKeys),
	}
}

// DepotSummary is one build's manifest entry, expanded for display.
type DepotSummary struct {
	DepotIDHex string
	Offset     uint64
	Size       uint64
	Languages  []string
}

// BuildSummary is one build's metadata, expanded for display.
type BuildSummary struct {
	BuildID      uint64
	OS           uint8
	RepositoryID string
	Depots       []DepotSummary
}

// List returns the archive's builds. buildID == 0 selects all builds.
func (a *Archive) List(buildID uint64) ([]BuildSummary, error) {
	var out []BuildSummary
	for _, b := range a.builds {
		if buildID != 0 && b.BuildID != buildID {
			continue
		}
		bs := BuildSummary{BuildID: b.BuildID, OS: b.OS, RepositoryID: bytes16ToMD5(b.RepositoryID)}
		for _, m := range b.Manifests {
			bs.Depots = append(bs.Depots, DepotSummary{
				DepotIDHex: bytes16ToMD5(m.DepotID),
				Offset:     m.Offset,
				Size:       m.Size,
				Languages:  BitflagsToLanguages(m.Languages1, m.Languages2),
			})
		}
		out = append(out, bs)
	}
	if buildID != 0 && len(out) == 0 {
		return nil, fmt.Errorf("%w: build %d not in archive", galaxyerr.ErrNotFound, buildID)
	}
	return out, nil
}

// VerifyReport is the outcome of a Verify pass.
type VerifyReport struct {
	ChunksChecked int
	Mismatches    []string
}

// Verify checks archive integrity. In quick mode it only checks that
// every section pointer in every part header stays within that part's
// file size. In full mode it additionally re-hashes every chunk's
// stored bytes against its declared compressed_md5 key (spec.md §4.8,
// "verify --quick vs full").
func (a *Archive) Verify(full bool) (VerifyReport, error) {
	var report VerifyReport

	for i, f := range a.parts {
		info, err := f.Stat()
		if err != nil {
			return report, err
		}
		h := a.headers[i]
		for _, ptr := range []sectionPtr{h.ProductMetadata, h.BuildMetadata, h.BuildFiles, h.ChunkMetadata, h.ChunkFiles} {
			if int64(ptr.Offset+ptr.Size) > info.Size() {
				return report, fmt.Errorf("%w: part %d section [%d,%d) exceeds file size %d", galaxyerr.ErrInvalidArchive, i, ptr.Offset, ptr.Offset+ptr.Size, info.Size())
			}
		}
	}

	if !full {
		return report, nil
	}

	for _, key := range a.chunkKeys {
		data, err := a.readChunk(key)
		if err != nil {
			return report, err
		}
		sum := hashutil.MD5Hex(data)
		report.ChunksChecked++
		if sum != key {
			report.Mismatches = append(report.Mismatches, key)
		}
	}
	return report, nil
}

// localDepotManifest mirrors the per-depot manifest JSON shape stored
// verbatim (no recompression) in BuildFiles, as produced by
// pkg/manifest's v2 parsing.
type localDepotManifest struct {
	Items               []localItem     `json:"items"`
	SmallFilesContainer *localSFC       `json:"smallFilesContainer"`
}

type localSFC struct {
	Chunks []localChunk `json:"chunks"`
}

type localItem struct {
	Path   string       `json:"path"`
	MD5    string       `json:"md5"`
	Size   int64        `json:"size"`
	Chunks []localChunk `json:"chunks"`
	SFCRef *localSFCRef `json:"sfcRef"`
}

type localSFCRef struct {
	Offset int64 `json:"offset"`
	Size   int64 `json:"size"`
}

type localChunk struct {
	MD5Compressed  string `json:"md5Compressed"`
	SizeCompressed int64  `json:"compressedSize"`
}

// ExtractOptions configures an Extract call.
type ExtractOptions struct {
	OutDir     string
	BuildID    uint64 // 0 selects all builds
	Reassemble bool
	ChunksOnly bool
}

// Extract writes archive contents to disk. With ChunksOnly it dumps
// every stored chunk's raw (still-compressed) bytes to a flat
// {OutDir}/chunks/{hash} directory; the galaxy-path store tree layout
// is not reproduced. With Reassemble
// it walks the selected build's depot manifests and rebuilds each
// item's logical file by decompressing its chunks in order, resolving
// small-files-container membership where needed (spec.md §4.8).
func (a *Archive) Extract(opts ExtractOptions) error {
	if opts.ChunksOnly {
		return a.extractChunks(opts.OutDir)
	}
	if opts.Reassemble {
		return a.reassemble(opts)
	}
	return fmt.Errorf("%w: extract requires --reassemble or --chunks-only", galaxyerr.ErrUnsupported)
}

func (a *Archive) extractChunks(outDir string) error {
	destRoot := filepath.Join(outDir, "chunks")
	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return err
	}
	for _, key := range a.chunkKeys {
		data, err := a.readChunk(key)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(destRoot, key), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archive) reassemble(opts ExtractOptions) error {
	builds, err := a.List(opts.BuildID)
	if err != nil {
		return err
	}

	for _, b := range builds {
		buildDir := filepath.Join(opts.OutDir, strconv.FormatUint(b.BuildID, 10))
		for _, depot := range b.Depots {
			manifestBytes, err := a.sliceBuildFiles(depot.Offset, depot.Size)
			if err != nil {
				return err
			}
			inflated, err := hashutil.MaybeInflate(manifestBytes)
			if err != nil {
				return fmt.Errorf("rgog: inflate manifest %s: %w", depot.DepotIDHex, err)
			}
			var dm localDepotManifest
			if err := json.Unmarshal(inflated, &dm); err != nil {
				return fmt.Errorf("rgog: decode manifest %s: %w", depot.DepotIDHex, err)
			}

			var sfcBuf []byte
			if dm.SmallFilesContainer != nil {
				sfcBuf, err = a.inflateChunksConcat(dm.SmallFilesContainer.Chunks)
				if err != nil {
					return err
				}
			}

			for _, item := range dm.Items {
				destPath := filepath.Join(buildDir, filepath.FromSlash(item.Path))
				if item.SFCRef != nil {
					if item.SFCRef.Offset+item.SFCRef.Size > int64(len(sfcBuf)) {
						return fmt.Errorf("%w: sfc member %s exceeds container", galaxyerr.ErrInvalidArchive, item.Path)
					}
					if err := writeWholeFile(destPath, sfcBuf[item.SFCRef.Offset:item.SFCRef.Offset+item.SFCRef.Size]); err != nil {
						return err
					}
					continue
				}
				data, err := a.inflateChunksConcat(item.Chunks)
				if err != nil {
					return err
				}
				if err := writeWholeFile(destPath, data); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (a *Archive) sliceBuildFiles(offset, size uint64) ([]byte, error) {
	if offset+size > uint64(len(a.buildFiles)) {
		return nil, fmt.Errorf("%w: BuildFiles slice [%d,%d) exceeds section", galaxyerr.ErrInvalidArchive, offset, offset+size)
	}
	return a.buildFiles[offset : offset+size], nil
}

func (a *Archive) inflateChunksConcat(chunks []localChunk) ([]byte, error) {
	var out []byte
	for _, c := range chunks {
		raw, err := a.readChunk(strings.ToLower(c.MD5Compressed))
		if err != nil {
			return nil, err
		}
		zr, err := hashutil.Inflate(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("rgog: inflate chunk %s: %w", c.MD5Compressed, err)
		}
		inflated, err := io.ReadAll(zr)
		zr.Close()
		if err != nil {
			return nil, fmt.Errorf("rgog: inflate chunk %s: %w", c.MD5Compressed, err)
		}
		out = append(out, inflated...)
	}
	return out, nil
}

func writeWholeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Unpack reverses Pack: it reconstructs the v2/meta and v2/store CDN
// tree shape under outDir. With debug it additionally dumps pretty-
// printed JSON of the product and build metadata for inspection.
func (a *Archive) Unpack(outDir string, debug bool) error {
	metaRoot := filepath.Join(outDir, "v2", "meta")
	storeRoot := filepath.Join(outDir, "v2", "store")
	if err := os.MkdirAll(metaRoot, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(storeRoot, 0o755); err != nil {
		return err
	}

	writtenManifests := make(map[string]bool)
	for _, b := range a.builds {
		repoHex := bytes16ToMD5(b.RepositoryID)
		repoBytes, err := a.sliceBuildFiles(b.RepositoryOffset, b.RepositorySize)
		if err != nil {
			return err
		}
		repoPath := filepath.Join(metaRoot, filepath.FromSlash(hashutil.JoinGalaxyPath(repoHex)))
		if err := writeWholeFile(repoPath, repoBytes); err != nil {
			return err
		}
		for _, m := range b.Manifests {
			hex := bytes16ToMD5(m.DepotID)
			if writtenManifests[hex] {
				continue
			}
			data, err := a.sliceBuildFiles(m.Offset, m.Size)
			if err != nil {
				return err
			}
			manifestPath := filepath.Join(metaRoot, filepath.FromSlash(hashutil.JoinGalaxyPath(hex)))
			if err := writeWholeFile(manifestPath, data); err != nil {
				return err
			}
			writtenManifests[hex] = true
		}
	}

	for i := range a.parts {
		h := a.headers[i]
		raw, err := readSection(a.parts[i], h.ChunkMetadata)
		if err != nil {
			return err
		}
		for j := 0; j < int(h.LocalChunkCount); j++ {
			start := j * ChunkMetaEntrySize
			c, err := UnmarshalChunkMetadata(raw[start : start+ChunkMetaEntrySize])
			if err != nil {
				return err
			}
			key := bytes16ToMD5(c.CompressedMD5)
			data, err := a.readChunk(key)
			if err != nil {
				return err
			}
			pidDir := filepath.Join(storeRoot, strconv.FormatUint(c.ProductID, 10))
			chunkPath := filepath.Join(pidDir, filepath.FromSlash(hashutil.JoinGalaxyPath(key)))
			if err := writeWholeFile(chunkPath, data); err != nil {
				return err
			}
		}
	}

	if debug {
		debugRoot := filepath.Join(outDir, "debug")
		if err := os.MkdirAll(debugRoot, 0o755); err != nil {
			return err
		}
		if err := writeDebugJSON(filepath.Join(debugRoot, "product.json"), a.product); err != nil {
			return err
		}
		if err := writeDebugJSON(filepath.Join(debugRoot, "builds.json"), a.builds); err != nil {
			return err
		}
	}
	return nil
}

func writeDebugJSON(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
