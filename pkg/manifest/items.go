package manifest

import (
	"context"
	"encoding/json"
	"fmt"

	"galaxydl/pkg/cdnclient"
)

// GetDepotItems returns the materialisable DepotItems for depot. For a
// V1 depot (IsV1Blob) this is synthesised from the manifest's embedded
// file list with no further network access. For a V2 depot this issues a
// v2_manifest GET for depot.ManifestHash and parses its items[] (spec.md
// §4.2: "fetched lazily").
func (m Manifest) GetDepotItems(ctx context.Context, client *cdnclient.Client, depot Depot) ([]DepotItem, error) {
	if depot.IsV1Blob {
		blob := DepotItem{
			Kind:       KindV1Blob,
			Path:       "main.bin",
			V1BlobMD5:  m.v1BlobMD5,
			TotalSize:  m.v1TotalSize,
			V1BlobPath: "main.bin",
			ProductID:  m.BaseProductID,
		}
		items := make([]DepotItem, 0, len(m.v1Files)+1)
		items = append(items, blob)
		for _, f := range m.v1Files {
			f.ProductID = m.BaseProductID
			items = append(items, f)
		}
		return items, nil
	}

	raw, err := client.V2Manifest(ctx, depot.ManifestHash)
	if err != nil {
		return nil, fmt.Errorf("manifest: get_depot_items %s: %w", depot.ManifestHash, err)
	}
	return parseV2DepotItems(depot, raw)
}

// rawV2DepotManifest is the per-depot manifest JSON: {items:[...],
// smallFilesContainer:{chunks:[...]}}.
type rawV2DepotManifest struct {
	Items               []rawV2Item          `json:"items"`
	SmallFilesContainer *rawV2SFCDescriptor  `json:"smallFilesContainer"`
}

type rawV2SFCDescriptor struct {
	Chunks []rawV2Chunk `json:"chunks"`
}

type rawV2Item struct {
	Path   string       `json:"path"`
	MD5    string       `json:"md5"`
	Size   int64        `json:"size"`
	Chunks []rawV2Chunk `json:"chunks"`
	SFCRef *rawSFCRef   `json:"sfcRef"`
}

type rawSFCRef struct {
	Offset int64 `json:"offset"`
	Size   int64 `json:"size"`
}

type rawV2Chunk struct {
	MD5Compressed    string `json:"md5Compressed"`
	MD5Uncompressed  string `json:"md5"`
	SizeCompressed   int64  `json:"compressedSize"`
	SizeUncompressed int64  `json:"size"`
}

// parseV2DepotItems implements spec.md §4.2's per-depot-item parsing
// rules: prepend an SFC item if present, mark sfcRef items as is_in_sfc,
// compute cumulative offsets by prefix-sum over chunk sizes for everyone
// else.
func parseV2DepotItems(depot Depot, raw []byte) ([]DepotItem, error) {
	var parsed rawV2DepotManifest
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("manifest: decode depot items: %w", err)
	}

	var out []DepotItem

	if parsed.SmallFilesContainer != nil {
		out = append(out, DepotItem{
			Kind:      KindV2SFC,
			Path:      "__sfc__/" + depot.ManifestHash,
			Chunks:    toChunks(parsed.SmallFilesContainer.Chunks),
			ProductID: depot.ProductID,
		})
	}

	for _, item := range parsed.Items {
		di := DepotItem{
			Kind:      KindV2File,
			Path:      item.Path,
			MD5:       item.MD5,
			Chunks:    toChunks(item.Chunks),
			ProductID: depot.ProductID,
		}
		di.TotalSizeUncompressed = di.ChunkSizeSum()
		if di.TotalSizeUncompressed == 0 {
			di.TotalSizeUncompressed = item.Size
		}
		if item.SFCRef != nil {
			di.IsInSFC = true
			di.SFCOffset = item.SFCRef.Offset
			di.SFCSize = item.SFCRef.Size
		}
		out = append(out, di)
	}

	return out, nil
}

// toChunks computes the cumulative compressed/uncompressed offsets by
// prefix-sum over chunk sizes (spec.md §4.2/§3 Chunk invariant).
func toChunks(raw []rawV2Chunk) []Chunk {
	chunks := make([]Chunk, 0, len(raw))
	var cOff, uOff int64
	for _, c := range raw {
		chunks = append(chunks, Chunk{
			MD5Compressed:      c.MD5Compressed,
			SizeCompressed:     c.SizeCompressed,
			MD5Uncompressed:    c.MD5Uncompressed,
			SizeUncompressed:   c.SizeUncompressed,
			CompressedOffset:   cOff,
			UncompressedOffset: uOff,
		})
		cOff += c.SizeCompressed
		uOff += c.SizeUncompressed
	}
	return chunks
}
