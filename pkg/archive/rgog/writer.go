package rgog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"galaxydl/internal/config"
	"galaxydl/internal/logging"
)

// PackOptions configures one Pack invocation.
type PackOptions struct {
	ProductID   uint64
	ProductName string
	Archive     config.ArchiveConfig
}

// Pack serialises the v2 CDN tree rooted at srcRoot into one or more
// .rgog part files under outDir named outBaseName(.partN).rgog (spec.md
// §4.7).
//
// This implementation takes the "pre-computed offset plan" branch the
// design notes (spec.md §9) explicitly allow as an alternative to a
// two-pass seek-back write: every section's bytes are already known
// (no recompression, so sizes never change once read off disk), so all
// offsets are computed once and the whole part is written in one
// sequential pass.
func Pack(srcRoot, outDir, outBaseName string, opts PackOptions) error {
	maxPartSize := opts.Archive.MaxPartSize
	if maxPartSize <= 0 {
		maxPartSize = config.DefaultArchive.MaxPartSize
	}

	repos, manifestsByHash, err := scanMetaTree(srcRoot)
	if err != nil {
		return fmt.Errorf("rgog: scan meta tree: %w", err)
	}
	chunks, err := scanStoreTree(srcRoot)
	if err != nil {
		return fmt.Errorf("rgog: scan store tree: %w", err)
	}

	buildFiles, buildMetas, err := planBuildFiles(repos, manifestsByHash)
	if err != nil {
		return err
	}

	productMeta := ProductMetadata{ProductID: opts.ProductID, ProductName: opts.ProductName}.MarshalBinary()
	buildMetaBytes := marshalBuildMetas(buildMetas)

	partPlans := planParts(chunks, int64(len(buildFiles)), maxPartSize)
	totalParts := len(partPlans)
	if totalParts == 0 {
		totalParts = 1
		partPlans = []partPlan{{}}
	}

	totalBuildCount := uint16(len(buildMetas))
	totalChunkCount := uint32(len(chunks))

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	partPaths := make([]string, 0, totalParts)
	for partNum, plan := range partPlans {
		name := outBaseName + ".rgog"
		if partNum > 0 {
			name = outBaseName + ".part" + strconv.Itoa(partNum) + ".rgog"
		}
		path := filepath.Join(outDir, name)
		if err := writePart(path, partNum, totalParts, totalBuildCount, totalChunkCount, productMeta, buildMetaBytes, buildFiles, plan); err != nil {
			return fmt.Errorf("rgog: write part %d: %w", partNum, err)
		}
		partPaths = append(partPaths, path)
	}

	if opts.Archive.RedundancyShards > 0 {
		if err := WriteRedundancy(outDir, outBaseName, partPaths, opts.Archive.RedundancyShards); err != nil {
			return err
		}
	}

	logging.GlobalLogger.Info("rgog pack complete", logging.Fields{"parts": totalParts, "chunks": len(chunks), "builds": len(buildMetas)})
	return nil
}

// planBuildFiles lays out BuildFiles: repositories grouped before
// manifests, each group ordered by lowercase-hex of its own hash
// (spec.md §4.7 determinism rules), and returns the finished BuildMetadata
// records (offsets/sizes already resolved, since bytes are held in
// memory for this pass).
func planBuildFiles(repos []sourceRepo, manifestsByHash map[string][]byte) ([]byte, []BuildMetadata, error) {
	sortedRepos := append([]sourceRepo(nil), repos...)
	sort.Slice(sortedRepos, func(i, j int) bool {
		return strings.ToLower(sortedRepos[i].Hash) < strings.ToLower(sortedRepos[j].Hash)
	})

	// Global, deduplicated manifest hash set referenced by any repo.
	uniqueManifests := make(map[string]bool)
	for _, r := range sortedRepos {
		for _, dep := range r.Depots {
			uniqueManifests[dep.ManifestHash] = true
		}
	}
	manifestHashes := make([]string, 0, len(uniqueManifests))
	for h := range uniqueManifests {
		manifestHashes = append(manifestHashes, h)
	}
	sort.Slice(manifestHashes, func(i, j int) bool { return strings.ToLower(manifestHashes[i]) < strings.ToLower(manifestHashes[j]) })

	var buildFiles []byte
	repoOffset := make(map[string]int64, len(sortedRepos))
	for _, r := range sortedRepos {
		repoOffset[r.Hash] = int64(len(buildFiles))
		buildFiles = append(buildFiles, r.Compressed...)
	}

	manifestOffset := make(map[string]int64, len(manifestHashes))
	manifestSize := make(map[string]int64, len(manifestHashes))
	for _, h := range manifestHashes {
		data, ok := manifestsByHash[h]
		if !ok {
			continue // referenced but not present on disk; skip silently, archival mirror may be partial
		}
		manifestOffset[h] = int64(len(buildFiles))
		manifestSize[h] = int64(len(data))
		buildFiles = append(buildFiles, data...)
	}

	builds := make([]BuildMetadata, 0, len(sortedRepos))
	for _, r := range sortedRepos {
		repoID, err := md5ToBytes16(r.Hash)
		if err != nil {
			return nil, nil, err
		}

		deps := append([]repoDepotRef(nil), r.Depots...)
		sort.Slice(deps, func(i, j int) bool { return strings.ToLower(deps[i].ManifestHash) < strings.ToLower(deps[j].ManifestHash) })

		entries := make([]ManifestEntry, 0, len(deps))
		for _, dep := range deps {
			off, ok := manifestOffset[dep.ManifestHash]
			if !ok {
				continue
			}
			depotID, err := md5ToBytes16(dep.ManifestHash)
			if err != nil {
				return nil, nil, err
			}
			lo, hi := LanguagesToBitflags(dep.Languages)
			entries = append(entries, ManifestEntry{
				DepotID:    depotID,
				Offset:     uint64(off),
				Size:       uint64(manifestSize[dep.ManifestHash]),
				Languages1: lo,
				Languages2: hi,
			})
		}

		builds = append(builds, BuildMetadata{
			BuildID:          r.BuildID,
			OS:               r.OS,
			RepositoryID:     repoID,
			RepositoryOffset: uint64(repoOffset[r.Hash]),
			RepositorySize:   uint64(len(r.Compressed)),
			Manifests:        entries,
		})
	}

	sort.Slice(builds, func(i, j int) bool { return builds[i].BuildID < builds[j].BuildID })
	return buildFiles, builds, nil
}

func marshalBuildMetas(builds []BuildMetadata) []byte {
	var out []byte
	for _, b := range builds {
		out = append(out, b.MarshalBinary()...)
	}
	return out
}

// partPlan is the set of chunks (in global sort order) assigned to one
// part. Their ChunkFiles-relative offsets are computed when the part is
// written.
type partPlan struct {
	chunks []sourceChunk
}

// planParts walks chunks in global sorted order (already sorted by
// scanStoreTree) and assigns them to parts bounded by maxPartSize,
// counting buildFilesSize toward part 0's budget as spec.md §4.7
// requires ("max_part_size... bounds the data bytes per part (BuildFiles
// + ChunkFiles)").
func planParts(chunks []sourceChunk, buildFilesSize, maxPartSize int64) []partPlan {
	var parts []partPlan
	var current partPlan
	dataBytes := buildFilesSize

	flush := func() {
		if len(current.chunks) > 0 || len(parts) == 0 {
			parts = append(parts, current)
		}
		current = partPlan{}
		dataBytes = 0
	}

	for _, c := range chunks {
		size := int64(len(c.Compressed))
		if len(current.chunks) > 0 && dataBytes+size > maxPartSize {
			flush()
		}
		current.chunks = append(current.chunks, c)
		dataBytes += size
	}
	flush()
	return parts
}

func writePart(path string, partNum, totalParts int, totalBuildCount uint16, totalChunkCount uint32, productMeta, buildMetaBytes, buildFiles []byte, plan partPlan) error {
	isPart0 := partNum == 0

	offset := int64(HeaderSize)

	var productPtr, buildMetaPtr, buildFilesPtr sectionPtr
	var productPad, buildMetaPad, buildFilesPad []byte

	if isPart0 {
		productPtr = sectionPtr{Offset: uint64(offset), Size: uint64(len(productMeta))}
		offset += int64(len(productMeta))
		productPad = PaddingFor(offset)
		offset += int64(len(productPad))

		buildMetaPtr = sectionPtr{Offset: uint64(offset), Size: uint64(len(buildMetaBytes))}
		offset += int64(len(buildMetaBytes))
		buildMetaPad = PaddingFor(offset)
		offset += int64(len(buildMetaPad))

		buildFilesPtr = sectionPtr{Offset: uint64(offset), Size: uint64(len(buildFiles))}
		offset += int64(len(buildFiles))
		buildFilesPad = PaddingFor(offset)
		offset += int64(len(buildFilesPad))
	}

	chunkMetaBytes := make([]byte, 0, len(plan.chunks)*ChunkMetaEntrySize)
	var chunkFilesOffset int64
	chunkEntryOffsets := make([]int64, len(plan.chunks))
	for i, c := range plan.chunks {
		chunkEntryOffsets[i] = chunkFilesOffset
		chunkFilesOffset += int64(len(c.Compressed))
	}

	chunkMetaPtr := sectionPtr{Offset: uint64(offset), Size: uint64(len(plan.chunks) * ChunkMetaEntrySize)}
	offset += int64(chunkMetaPtr.Size)
	chunkMetaPad := PaddingFor(offset)
	offset += int64(len(chunkMetaPad))

	chunkFilesPtr := sectionPtr{Offset: uint64(offset), Size: uint64(chunkFilesOffset)}

	for i, c := range plan.chunks {
		md5Bytes, err := md5ToBytes16(c.Hash)
		if err != nil {
			return err
		}
		productID := parseUintLenient(c.ProductID)
		entry := ChunkMetadata{CompressedMD5: md5Bytes, Offset: uint64(chunkEntryOffsets[i]), Size: uint64(len(c.Compressed)), ProductID: productID}
		chunkMetaBytes = append(chunkMetaBytes, entry.MarshalBinary()...)
	}

	header := Header{
		ArchiveType:     ArchiveTypeBase,
		PartNumber:      uint32(partNum),
		TotalParts:      uint32(totalParts),
		TotalBuildCount: totalBuildCount,
		TotalChunkCount: totalChunkCount,
		LocalChunkCount: uint32(len(plan.chunks)),
		ProductMetadata: productPtr,
		BuildMetadata:   buildMetaPtr,
		BuildFiles:      buildFilesPtr,
		ChunkMetadata:   chunkMetaPtr,
		ChunkFiles:      chunkFilesPtr,
	}
	headerBytes, err := header.MarshalBinary()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	write := func(chunks ...[]byte) error {
		for _, c := range chunks {
			if _, err := f.Write(c); err != nil {
				return err
			}
		}
		return nil
	}

	if err := write(headerBytes); err != nil {
		return err
	}
	if isPart0 {
		if err := write(productMeta, productPad, buildMetaBytes, buildMetaPad, buildFiles, buildFilesPad); err != nil {
			return err
		}
	}
	if err := write(chunkMetaBytes, chunkMetaPad); err != nil {
		return err
	}
	for _, c := range plan.chunks {
		if err := write(c.Compressed); err != nil {
			return err
		}
	}
	return nil
}
