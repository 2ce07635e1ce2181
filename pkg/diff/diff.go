// Package diff compares two manifests (plus an optional patch) and
// partitions files into {new, changed, patched, deleted} (C8).
package diff

import (
	"galaxydl/pkg/manifest"
	"galaxydl/pkg/patch"
)

// ManifestDiff is the four disjoint sets from spec.md §3/§4.6.
type ManifestDiff struct {
	New     []manifest.DepotItem
	Changed []manifest.DepotItem
	Patched []patch.FilePatchDiff
	Deleted []string
}

// itemSize returns the comparable "total_size_uncompressed" for an item,
// regardless of which variant it is.
func itemSize(item manifest.DepotItem) int64 {
	if item.Kind == manifest.KindV2File || item.Kind == manifest.KindV2SFC {
		return item.TotalSizeUncompressed
	}
	if item.Kind == manifest.KindV1File {
		return item.V1Size
	}
	return item.TotalSize
}

func itemMD5(item manifest.DepotItem) string {
	if item.Kind == manifest.KindV1Blob {
		return item.V1BlobMD5
	}
	return item.MD5
}

// Compare implements spec.md §4.6's algorithm exactly, including its
// insertion-order tie-break: new items are walked in newItems order, and
// deleted paths are walked in the order they first appear in oldItems.
func Compare(newItems, oldItems []manifest.DepotItem, p *patch.Patch) ManifestDiff {
	var d ManifestDiff

	if oldItems == nil {
		d.New = append(d.New, newItems...)
		return d
	}

	byPathOld := make(map[string]manifest.DepotItem, len(oldItems))
	oldOrder := make([]string, 0, len(oldItems))
	for _, o := range oldItems {
		if _, exists := byPathOld[o.Path]; !exists {
			oldOrder = append(oldOrder, o.Path)
		}
		byPathOld[o.Path] = o
	}

	var patchByTarget map[string]patch.FilePatchDiff
	if p != nil {
		patchByTarget = make(map[string]patch.FilePatchDiff, len(p.Files))
		for _, fp := range p.Files {
			patchByTarget[fp.TargetPath] = fp
		}
	}

	seenNew := make(map[string]bool, len(newItems))

	for _, n := range newItems {
		seenNew[n.Path] = true

		o, existed := byPathOld[n.Path]
		if !existed {
			d.New = append(d.New, n)
			continue
		}

		if itemMD5(n) == itemMD5(o) && itemSize(n) == itemSize(o) {
			continue // unchanged
		}

		if fp, ok := patchByTarget[n.Path]; ok && fp.MD5Source == itemMD5(o) && fp.MD5Target == itemMD5(n) {
			d.Patched = append(d.Patched, fp)
			continue
		}

		d.Changed = append(d.Changed, n)
	}

	for _, path := range oldOrder {
		if !seenNew[path] {
			d.Deleted = append(d.Deleted, path)
		}
	}

	return d
}
