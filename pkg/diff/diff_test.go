package diff

import (
	"testing"

	"galaxydl/pkg/manifest"
	"galaxydl/pkg/patch"
)

func item(path, md5 string, size int64) manifest.DepotItem {
	return manifest.DepotItem{
		Kind:                  manifest.KindV2File,
		Path:                  path,
		MD5:                   md5,
		TotalSizeUncompressed: size,
	}
}

func TestCompareNewOnlyWhenNoOld(t *testing.T) {
	newItems := []manifest.DepotItem{item("a.txt", "aaa", 10), item("b.txt", "bbb", 20)}
	d := Compare(newItems, nil, nil)
	if len(d.New) != 2 {
		t.Fatalf("New = %d, want 2", len(d.New))
	}
	if len(d.Changed) != 0 || len(d.Patched) != 0 || len(d.Deleted) != 0 {
		t.Fatalf("unexpected non-New entries: %+v", d)
	}
}

func TestCompareUnchangedIsOmitted(t *testing.T) {
	oldItems := []manifest.DepotItem{item("a.txt", "aaa", 10)}
	newItems := []manifest.DepotItem{item("a.txt", "aaa", 10)}
	d := Compare(newItems, oldItems, nil)
	if len(d.New)+len(d.Changed)+len(d.Patched)+len(d.Deleted) != 0 {
		t.Fatalf("expected no diff entries for an identical item, got %+v", d)
	}
}

func TestCompareChangedWithoutPatch(t *testing.T) {
	oldItems := []manifest.DepotItem{item("a.txt", "aaa", 10)}
	newItems := []manifest.DepotItem{item("a.txt", "bbb", 12)}
	d := Compare(newItems, oldItems, nil)
	if len(d.Changed) != 1 || d.Changed[0].Path != "a.txt" {
		t.Fatalf("Changed = %+v", d.Changed)
	}
}

func TestComparePatchedWhenPatchMatches(t *testing.T) {
	oldItems := []manifest.DepotItem{item("a.txt", "aaa", 10)}
	newItems := []manifest.DepotItem{item("a.txt", "bbb", 12)}
	p := &patch.Patch{
		Files: []patch.FilePatchDiff{
			{TargetPath: "a.txt", MD5Source: "aaa", MD5Target: "bbb"},
		},
	}
	d := Compare(newItems, oldItems, p)
	if len(d.Patched) != 1 || len(d.Changed) != 0 {
		t.Fatalf("expected one Patched entry and zero Changed, got %+v", d)
	}
}

func TestCompareDeletedPreservesFirstOccurrenceOrder(t *testing.T) {
	oldItems := []manifest.DepotItem{
		item("z.txt", "zzz", 1),
		item("a.txt", "aaa", 1),
		item("z.txt", "zzz-dup", 1), // duplicate path, first occurrence wins order
	}
	newItems := []manifest.DepotItem{item("a.txt", "aaa", 1)}
	d := Compare(newItems, oldItems, nil)
	if len(d.Deleted) != 1 || d.Deleted[0] != "z.txt" {
		t.Fatalf("Deleted = %+v", d.Deleted)
	}
}

func TestCompareV1BlobUsesBlobMD5(t *testing.T) {
	oldItems := []manifest.DepotItem{{Kind: manifest.KindV1Blob, Path: "main.bin", V1BlobMD5: "aaa", TotalSize: 100}}
	newItems := []manifest.DepotItem{{Kind: manifest.KindV1Blob, Path: "main.bin", V1BlobMD5: "aaa", TotalSize: 100}}
	d := Compare(newItems, oldItems, nil)
	if len(d.New)+len(d.Changed)+len(d.Deleted) != 0 {
		t.Fatalf("expected unchanged V1Blob, got %+v", d)
	}
}
