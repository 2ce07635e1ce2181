package rgog

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"galaxydl/pkg/hashutil"
)

// sourceRepo is one discovered v2/meta repository file — a top-level
// build manifest carrying {buildId, depots, baseProductId, platform}
// (original_source's identify_and_parse_meta_file distinguishes this
// shape from a depot manifest file).
type sourceRepo struct {
	Hash       string // content-address hash = filename
	Compressed []byte // as stored on disk, no recompression
	BuildID    uint64
	OS         uint8
	BaseProductID string
	Depots     []repoDepotRef
}

type repoDepotRef struct {
	ManifestHash string
	Languages    []string
}

type rawRepoFile struct {
	BaseProductID string   `json:"baseProductId"`
	BuildID       string   `json:"buildId"`
	Platform      string   `json:"platform"`
	Depots        []rawRepoDepot `json:"depots"`
}

type rawRepoDepot struct {
	Manifest  string   `json:"manifest"`
	Languages []string `json:"languages"`
}

func osCodeForPlatform(platform string) uint8 {
	switch strings.ToLower(platform) {
	case "windows":
		return OSWindows
	case "osx", "mac":
		return OSMac
	case "linux":
		return OSLinux
	default:
		return OSNull
	}
}

// scanMetaTree walks {srcRoot}/v2/meta and classifies each leaf file as a
// repository (parses it) or a plain manifest (kept as a hash -> bytes map
// for later lookup, since depot manifests are referenced by hash from
// repos and never need their own JSON parsed for packing).
func scanMetaTree(srcRoot string) (repos []sourceRepo, manifestsByHash map[string][]byte, err error) {
	metaRoot := filepath.Join(srcRoot, "v2", "meta")
	manifestsByHash = make(map[string][]byte)

	err = filepath.WalkDir(metaRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		hash := d.Name()
		compressed, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}

		decoded, inflateErr := hashutil.MaybeInflate(compressed)
		if inflateErr == nil {
			var probe rawRepoFile
			if json.Unmarshal(decoded, &probe) == nil && probe.BuildID != "" && len(probe.Depots) > 0 {
				buildID := parseUintLenient(probe.BuildID)
				refs := make([]repoDepotRef, 0, len(probe.Depots))
				for _, dep := range probe.Depots {
					refs = append(refs, repoDepotRef{ManifestHash: dep.Manifest, Languages: dep.Languages})
				}
				repos = append(repos, sourceRepo{
					Hash:          hash,
					Compressed:    compressed,
					BuildID:       buildID,
					OS:            osCodeForPlatform(probe.Platform),
					BaseProductID: probe.BaseProductID,
					Depots:        refs,
				})
				return nil
			}
		}

		manifestsByHash[hash] = compressed
		return nil
	})
	return repos, manifestsByHash, err
}

// sourceChunk is one discovered v2/store/{pid}/.../{hash} chunk file.
type sourceChunk struct {
	Hash       string
	ProductID  string
	Compressed []byte
}

func scanStoreTree(srcRoot string) ([]sourceChunk, error) {
	storeRoot := filepath.Join(srcRoot, "v2", "store")
	var chunks []sourceChunk

	entries, err := os.ReadDir(storeRoot)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	for _, pidEntry := range entries {
		if !pidEntry.IsDir() {
			continue
		}
		pid := pidEntry.Name()
		pidRoot := filepath.Join(storeRoot, pid)
		err := filepath.WalkDir(pidRoot, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return nil
			}
			data, readErr := os.ReadFile(path)
			if readErr != nil {
				return readErr
			}
			chunks = append(chunks, sourceChunk{Hash: d.Name(), ProductID: pid, Compressed: data})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(chunks, func(i, j int) bool { return strings.ToLower(chunks[i].Hash) < strings.ToLower(chunks[j].Hash) })
	return chunks, nil
}

func parseUintLenient(s string) uint64 {
	var n uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + uint64(r-'0')
	}
	return n
}
