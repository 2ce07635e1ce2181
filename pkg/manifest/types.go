// Package manifest normalises the two incompatible CDN manifest
// generations (V1 blob-based, V2 chunk-based) into one typed model, per
// the tagged-variant re-architecture called for over the source's
// dynamic-typed JSON dictionaries.
package manifest

import "encoding/json"

// Generation identifies which manifest family a build belongs to.
type Generation int

const (
	GenerationV1 Generation = 1
	GenerationV2 Generation = 2
)

// BuildInfo is one row of list_all_builds / the builds endpoint.
type BuildInfo struct {
	BuildID       string
	LegacyBuildID string // numeric repository_id, V1 only
	Generation    Generation
	DatePublished string
	VersionName   string
	Link          string // V2 only: exact manifest URL, content-addressed
	Platform      string
}

// Manifest is the normalised view of a build (spec.md §3).
//
// Invariant: Generation==1 implies RepositoryID != "". Generation==2
// implies every Depot has a non-empty ManifestHash.
type Manifest struct {
	BaseProductID string
	BuildID       string
	RepositoryID  string // V1 only
	Generation    Generation
	InstallDir    string
	Depots        []Depot
	Dependencies  []string
	Platform      string

	// Raw holds the undecoded top-level JSON this Manifest was parsed
	// from, retained for archival fidelity (spec.md §9 store-through).
	Raw json.RawMessage

	// v1Files, v1BlobMD5 and v1TotalSize carry the synthetic V1-blob
	// depot's contents; populated only for Generation==1. GetDepotItems
	// reconstructs the V1Blob item plus one V1File item per v1Files entry.
	v1Files     []DepotItem
	v1BlobMD5   string
	v1TotalSize int64
}

// Depot is a shippable slice of a build.
type Depot struct {
	ProductID      string
	ManifestHash   string // V2 content hash, 32 hex chars
	Languages      []string
	Size           int64
	CompressedSize int64
	Bitness        []int // optional filter, e.g. [64] or [32, 64]

	// IsV1Blob marks the single synthetic depot synthesised for a V1
	// manifest's main.bin.
	IsV1Blob bool
}

// HasLanguage reports whether the depot applies to lang, honoring the
// "*" wildcard tag.
func (d Depot) HasLanguage(lang string) bool {
	for _, l := range d.Languages {
		if l == "*" || l == lang {
			return true
		}
	}
	return false
}

// ItemKind tags the DepotItem variant (spec.md §9: re-architected away
// from a God-object carrying both V1 and V2 fields).
type ItemKind int

const (
	KindV1Blob ItemKind = iota
	KindV1File
	KindV2File
	KindV2SFC
)

func (k ItemKind) String() string {
	switch k {
	case KindV1Blob:
		return "v1_blob"
	case KindV1File:
		return "v1_file"
	case KindV2File:
		return "v2_file"
	case KindV2SFC:
		return "v2_sfc"
	default:
		return "unknown"
	}
}

// Chunk is a ~10 MiB zlib-compressed fragment of a V2 file, content
// addressed by the MD5 of its compressed bytes.
//
// Invariant: for consecutive chunks of one file, CompressedOffset and
// UncompressedOffset are strictly increasing and contiguous.
type Chunk struct {
	MD5Compressed     string
	SizeCompressed    int64
	MD5Uncompressed   string
	SizeUncompressed  int64
	CompressedOffset  int64
	UncompressedOffset int64
}

// DepotItem is one file to materialise. Only the fields relevant to Kind
// are meaningful; see spec.md §3 for the per-variant field set.
type DepotItem struct {
	Kind ItemKind
	Path string

	// V1Blob
	V1BlobMD5  string
	TotalSize  int64 // uncompressed bytes on disk
	V1BlobPath string // "main.bin"

	// V1File
	V1Offset int64
	V1Size   int64
	MD5      string // extracted-file MD5 for V1File; assembled-plaintext MD5 for V2File/V2SFC

	// V2File / V2SFC
	Chunks                  []Chunk
	TotalSizeUncompressed   int64

	// V2File-in-SFC
	IsInSFC  bool
	SFCOffset int64
	SFCSize   int64

	// ProductID scopes the item to a depot's product (base product or a
	// DLC), needed for the v2/store/{pid}/... path and RGOG ChunkMetadata.
	ProductID string
}

// ChunkSizeSum returns Σ chunk.SizeUncompressed over Chunks, the sum that
// spec.md §8 property 1 equates with TotalSizeUncompressed.
// parseV2DepotItems uses it to fill TotalSizeUncompressed for chunked
// items.
func (d DepotItem) ChunkSizeSum() int64 {
	var sum int64
	for _, c := range d.Chunks {
		sum += c.SizeUncompressed
	}
	return sum
}
