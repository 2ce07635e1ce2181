package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"galaxydl/internal/galaxyerr"
	"galaxydl/pkg/cdnclient"
)

// Resolver implements C4: given (product, build-selector, platform),
// produce a normalised Manifest.
type Resolver struct {
	Client *cdnclient.Client
}

func NewResolver(client *cdnclient.Client) *Resolver {
	return &Resolver{Client: client}
}

// rawBuildsResponse mirrors the builds endpoint's item shape closely
// enough to recover BuildInfo; unknown fields are ignored.
type rawBuildsResponse struct {
	Items []rawBuildItem `json:"items"`
}

type rawBuildItem struct {
	BuildID       string `json:"build_id"`
	LegacyBuildID any    `json:"legacy_build_id"`
	Generation    int    `json:"generation"`
	DatePublished string `json:"date_published"`
	VersionName   string `json:"version_name"`
	Link          string `json:"link"`
	OS            string `json:"os"`
}

func (r rawBuildItem) toBuildInfo(platform string) BuildInfo {
	legacy := ""
	switch v := r.LegacyBuildID.(type) {
	case string:
		legacy = v
	case float64:
		legacy = strconv.FormatInt(int64(v), 10)
	}
	gen := Generation(r.Generation)
	if gen == 0 {
		gen = GenerationV1
	}
	return BuildInfo{
		BuildID:       r.BuildID,
		LegacyBuildID: legacy,
		Generation:    gen,
		DatePublished: r.DatePublished,
		VersionName:   r.VersionName,
		Link:          r.Link,
		Platform:      platform,
	}
}

// fetchBuilds fetches and decodes one generation's builds list. A 404 is
// treated as "this generation has no builds", not an error, since callers
// merge both generations.
func (r *Resolver) fetchBuilds(ctx context.Context, pid, platform string, generation Generation) ([]BuildInfo, error) {
	raw, err := r.Client.Builds(ctx, pid, platform, int(generation))
	if errors.Is(err, galaxyerr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var parsed rawBuildsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("manifest: decode builds: %w", err)
	}
	out := make([]BuildInfo, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		out = append(out, item.toBuildInfo(platform))
	}
	return out, nil
}

// ListAllBuilds is the union of the two generation endpoints, deduplicated
// by build_id, sorted by date_published descending (spec.md §4.2).
func (r *Resolver) ListAllBuilds(ctx context.Context, pid, platform string) ([]BuildInfo, error) {
	v1, err := r.fetchBuilds(ctx, pid, platform, GenerationV1)
	if err != nil {
		return nil, err
	}
	v2, err := r.fetchBuilds(ctx, pid, platform, GenerationV2)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(v1)+len(v2))
	all := make([]BuildInfo, 0, len(v1)+len(v2))
	for _, b := range append(v1, v2...) {
		if seen[b.BuildID] {
			continue
		}
		seen[b.BuildID] = true
		all = append(all, b)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].DatePublished > all[j].DatePublished })
	return all, nil
}

// ResolveLatest resolves the newest build (index 0 of ListAllBuilds).
func (r *Resolver) ResolveLatest(ctx context.Context, pid, platform string) (Manifest, error) {
	builds, err := r.ListAllBuilds(ctx, pid, platform)
	if err != nil {
		return Manifest{}, err
	}
	if len(builds) == 0 {
		return Manifest{}, fmt.Errorf("%w: no builds for %s/%s", galaxyerr.ErrNotFound, pid, platform)
	}
	return r.fetchManifestForBuild(ctx, pid, platform, builds[0])
}

// ResolveByIndex treats the numeric string as an index into
// ListAllBuilds (legacy behaviour, spec.md §4.2).
func (r *Resolver) ResolveByIndex(ctx context.Context, pid string, index int, platform string) (Manifest, error) {
	builds, err := r.ListAllBuilds(ctx, pid, platform)
	if err != nil {
		return Manifest{}, err
	}
	if index < 0 || index >= len(builds) {
		return Manifest{}, fmt.Errorf("%w: index %d out of range (%d builds)", galaxyerr.ErrNotFound, index, len(builds))
	}
	return r.fetchManifestForBuild(ctx, pid, platform, builds[index])
}

// ResolveByBuildID looks up a specific build_id across both generation
// endpoints. Ambiguous (absent from both) fails with NotFound — it does
// not guess (spec.md §4.2).
func (r *Resolver) ResolveByBuildID(ctx context.Context, pid, buildID, platform string) (Manifest, error) {
	builds, err := r.ListAllBuilds(ctx, pid, platform)
	if err != nil {
		return Manifest{}, err
	}
	for _, b := range builds {
		if b.BuildID == buildID {
			return r.fetchManifestForBuild(ctx, pid, platform, b)
		}
	}
	return Manifest{}, fmt.Errorf("%w: build_id %s not found for %s/%s", galaxyerr.ErrNotFound, buildID, pid, platform)
}

// ResolveDirect resolves without hitting the builds endpoint, for
// delisted/cached content (spec.md §4.2).
func (r *Resolver) ResolveDirect(ctx context.Context, pid string, generation Generation, repositoryIDOrLink, platform string) (Manifest, error) {
	switch generation {
	case GenerationV1:
		return r.fetchV1Manifest(ctx, pid, platform, repositoryIDOrLink)
	case GenerationV2:
		raw, err := r.Client.V2ManifestByURL(ctx, repositoryIDOrLink)
		if err != nil {
			return Manifest{}, err
		}
		return parseV2Manifest(pid, platform, raw)
	default:
		return Manifest{}, fmt.Errorf("%w: generation %d", galaxyerr.ErrUnsupported, generation)
	}
}

func (r *Resolver) fetchManifestForBuild(ctx context.Context, pid, platform string, b BuildInfo) (Manifest, error) {
	switch b.Generation {
	case GenerationV1:
		return r.fetchV1Manifest(ctx, pid, platform, b.LegacyBuildID)
	case GenerationV2:
		raw, err := r.Client.V2ManifestByURL(ctx, b.Link)
		if err != nil {
			return Manifest{}, err
		}
		m, err := parseV2Manifest(pid, platform, raw)
		if err != nil {
			return Manifest{}, err
		}
		m.BuildID = b.BuildID
		return m, nil
	default:
		return Manifest{}, fmt.Errorf("%w: generation %d", galaxyerr.ErrUnsupported, b.Generation)
	}
}

// rawV1Manifest mirrors the V1 top-level shape: {files:[...], depot:{...}}.
type rawV1Manifest struct {
	Files []rawV1FileEntry `json:"files"`
	Depot struct {
		Size int64  `json:"size"`
		MD5  string `json:"md5"`
	} `json:"depot"`
	InstallDirectory string `json:"install_directory"`
}

type rawV1FileEntry struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Offset int64  `json:"offset"`
	Hash   string `json:"hash"`
}

func (r *Resolver) fetchV1Manifest(ctx context.Context, pid, platform, repositoryID string) (Manifest, error) {
	raw, err := r.Client.V1Manifest(ctx, pid, platform, repositoryID, "repository")
	if err != nil {
		return Manifest{}, err
	}
	var parsed rawV1Manifest
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Manifest{}, fmt.Errorf("manifest: decode v1: %w", err)
	}

	items := make([]DepotItem, 0, len(parsed.Files))
	for _, f := range parsed.Files {
		items = append(items, DepotItem{
			Kind:     KindV1File,
			Path:     f.Path,
			V1Offset: f.Offset,
			V1Size:   f.Size,
			MD5:      f.Hash,
		})
	}

	depot := Depot{
		ProductID: pid,
		IsV1Blob:  true,
		Size:      parsed.Depot.Size,
	}

	return Manifest{
		BaseProductID: pid,
		RepositoryID:  repositoryID,
		Generation:    GenerationV1,
		InstallDir:    parsed.InstallDirectory,
		Platform:      platform,
		Depots:        []Depot{depot},
		Raw:           json.RawMessage(raw),
		// The V1 file list and blob fields are carried on the manifest
		// rather than the depot; GetDepotItems reconstructs the synthetic
		// blob item plus these.
		v1Files: items,
		v1BlobMD5: parsed.Depot.MD5,
		v1TotalSize: parsed.Depot.Size,
	}, nil
}

// rawV2Manifest mirrors {baseProductId, buildId, depots, installDirectory,
// dependencies} (spec.md §4.2).
type rawV2Manifest struct {
	BaseProductID    string          `json:"baseProductId"`
	BuildID          string          `json:"buildId"`
	InstallDirectory string          `json:"installDirectory"`
	Dependencies     []string        `json:"dependencies"`
	Depots           []rawV2Depot    `json:"depots"`
}

type rawV2Depot struct {
	ProductID      string   `json:"productId"`
	Manifest       string   `json:"manifest"`
	Languages      []string `json:"languages"`
	Size           int64    `json:"size"`
	CompressedSize int64    `json:"compressedSize"`
	Bitness        []int    `json:"bitness"`
}

func parseV2Manifest(pid, platform string, raw []byte) (Manifest, error) {
	var parsed rawV2Manifest
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Manifest{}, fmt.Errorf("manifest: decode v2: %w", err)
	}

	depots := make([]Depot, 0, len(parsed.Depots))
	for _, d := range parsed.Depots {
		depots = append(depots, Depot{
			ProductID:      d.ProductID,
			ManifestHash:   d.Manifest,
			Languages:      d.Languages,
			Size:           d.Size,
			CompressedSize: d.CompressedSize,
			Bitness:        d.Bitness,
		})
	}

	base := parsed.BaseProductID
	if base == "" {
		base = pid
	}

	return Manifest{
		BaseProductID: base,
		BuildID:       parsed.BuildID,
		Generation:    GenerationV2,
		InstallDir:    parsed.InstallDirectory,
		Dependencies:  parsed.Dependencies,
		Platform:      platform,
		Depots:        depots,
		Raw:           json.RawMessage(raw),
	}, nil
}

// ResolveDependency resolves a dependency product id's own latest
// manifest the same way a base product is resolved. galaxy_dl's "redist"
// dependency repository (original_source/galaxy_dl/dependencies.py)
// treats each dependency id as a first-class installable manifest;
// spec.md §9's Open Questions invite the same treatment here, so a
// Manifest.Dependencies entry is just another ResolveLatest call away.
func (r *Resolver) ResolveDependency(ctx context.Context, dependencyID, platform string) (Manifest, error) {
	return r.ResolveLatest(ctx, dependencyID, platform)
}
