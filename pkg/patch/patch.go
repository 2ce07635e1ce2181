// Package patch resolves differential (xdelta3) updates between two
// builds: the patches API lookup, the root/per-depot patch manifests, and
// the per-file delta chunk lists. Applying the resulting deltas is out of
// scope; this package only locates and describes them (C7).
package patch

import (
	"context"
	"encoding/json"
	"fmt"

	"galaxydl/internal/galaxyerr"
	"galaxydl/pkg/cdnclient"
	"galaxydl/pkg/manifest"
)

// FilePatchDiff describes one file's delta between an old and new build.
type FilePatchDiff struct {
	SourcePath string
	TargetPath string
	MD5Source  string
	MD5Target  string
	Chunks     []manifest.Chunk

	OldItem manifest.DepotItem
	NewItem manifest.DepotItem
}

// Patch is the container of FilePatchDiffs for one (from_build, to_build)
// pair (spec.md §3).
type Patch struct {
	Algorithm    string
	Files        []FilePatchDiff
	ClientID     string
	ClientSecret string
}

// Resolver implements get_patch (C7).
type Resolver struct {
	Client *cdnclient.Client
}

func NewResolver(client *cdnclient.Client) *Resolver {
	return &Resolver{Client: client}
}

// rawPatchRoot is the root patch manifest: {algorithm, clientId,
// clientSecret, depots:[...]}. An empty JSON object `{}` is the "no patch
// exists" sentinel (spec.md §4.5 step 2).
type rawPatchRoot struct {
	Algorithm    string            `json:"algorithm"`
	ClientID     string            `json:"clientId"`
	ClientSecret string            `json:"clientSecret"`
	Depots       []rawPatchDepotRef `json:"depots"`
}

type rawPatchDepotRef struct {
	ProductID string   `json:"productId"`
	Manifest  string   `json:"manifest"`
	Languages []string `json:"languages"`
}

// rawDepotPatch is a per-depot patch manifest: {depot:{items:[...]}}.
type rawDepotPatch struct {
	Depot struct {
		Items []rawDepotDiffItem `json:"items"`
	} `json:"depot"`
}

type rawDepotDiffItem struct {
	SourcePath string            `json:"sourcePath"`
	TargetPath string            `json:"path"`
	MD5Source  string            `json:"md5Source"`
	MD5Target  string            `json:"md5"`
	Chunks     []rawPatchChunk   `json:"chunks"`
}

type rawPatchChunk struct {
	MD5Compressed    string `json:"md5Compressed"`
	MD5Uncompressed  string `json:"md5"`
	SizeCompressed   int64  `json:"compressedSize"`
	SizeUncompressed int64  `json:"size"`
}

// GetPatch performs the three-state patch_info lookup and, if a patch
// exists, resolves every matching depot's per-file diffs (spec.md §4.5).
// A nil, nil result means "no patch exists between these builds" — not
// an error; callers fall back to full-download categorisation.
func (r *Resolver) GetPatch(ctx context.Context, pid string, newM, oldM manifest.Manifest, language string, dlcPIDs []string) (*Patch, error) {
	if oldM.Generation != manifest.GenerationV2 || newM.Generation != manifest.GenerationV2 {
		// V1 does not support patches.
		return nil, nil
	}

	info, err := r.Client.PatchInfo(ctx, pid, oldM.BuildID, newM.BuildID)
	if err != nil {
		return nil, err
	}
	if info.Error != "" {
		return nil, nil
	}
	if info.Link == "" {
		return nil, fmt.Errorf("%w: patch_info missing link", galaxyerr.ErrNotFound)
	}

	rootRaw, err := r.Client.V2ManifestByURL(ctx, info.Link)
	if err != nil {
		return nil, err
	}

	// "root == {}" empty-manifest sentinel: valid JSON, zero fields set.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(rootRaw, &probe); err == nil && len(probe) == 0 {
		return nil, nil
	}

	var root rawPatchRoot
	if err := json.Unmarshal(rootRaw, &root); err != nil {
		return nil, fmt.Errorf("patch: decode root: %w", err)
	}
	if root.Algorithm != "xdelta3" {
		return nil, fmt.Errorf("%w: patch algorithm %q", galaxyerr.ErrUnsupported, root.Algorithm)
	}

	allowedPIDs := map[string]bool{newM.BaseProductID: true}
	for _, d := range dlcPIDs {
		allowedPIDs[d] = true
	}

	out := &Patch{Algorithm: root.Algorithm, ClientID: root.ClientID, ClientSecret: root.ClientSecret}

	for _, depotRef := range root.Depots {
		if !allowedPIDs[depotRef.ProductID] {
			continue
		}
		if !languageMatches(depotRef.Languages, language) {
			continue
		}

		depotPatchRaw, err := r.Client.V2Manifest(ctx, depotRef.Manifest)
		if err != nil {
			return nil, fmt.Errorf("patch: fetch depot patch %s: %w", depotRef.Manifest, err)
		}
		var depotPatch rawDepotPatch
		if err := json.Unmarshal(depotPatchRaw, &depotPatch); err != nil {
			return nil, fmt.Errorf("patch: decode depot patch: %w", err)
		}

		for _, item := range depotPatch.Depot.Items {
			out.Files = append(out.Files, FilePatchDiff{
				SourcePath: item.SourcePath,
				TargetPath: item.TargetPath,
				MD5Source:  item.MD5Source,
				MD5Target:  item.MD5Target,
				Chunks:     toPatchChunks(item.Chunks),
			})
		}
	}

	return out, nil
}

func languageMatches(depotLangs []string, want string) bool {
	if want == "" {
		return true
	}
	for _, l := range depotLangs {
		if l == "*" || l == want {
			return true
		}
	}
	return false
}

func toPatchChunks(raw []rawPatchChunk) []manifest.Chunk {
	chunks := make([]manifest.Chunk, 0, len(raw))
	var cOff, uOff int64
	for _, c := range raw {
		chunks = append(chunks, manifest.Chunk{
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
