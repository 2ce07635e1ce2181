package rgog

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/reedsolomon"

	"galaxydl/internal/logging"
)

// sizesSidecarSuffix names the file recording each data part's original,
// unpadded length, so a later Reconstruct can trim the padding Reed-Solomon
// requires (every shard must be the same length) back off.
const sizesSidecarSuffix = ".parity.sizes"

// WriteRedundancy computes parityShards Reed-Solomon parity shards over
// the archive parts at partPaths (spec.md Domain Stack: "pack --redundancy
// N computes N Reed-Solomon parity shards over an archive's parts... so a
// missing/corrupt part can be reconstructed"), writing
// {outBaseName}.parity{k}.rgog alongside the data parts plus one sizes
// sidecar recording each part's true length.
func WriteRedundancy(outDir, outBaseName string, partPaths []string, parityShards int) error {
	if parityShards <= 0 || len(partPaths) == 0 {
		return nil
	}

	dataShards := len(partPaths)
	sizes := make([]int64, dataShards)
	maxSize := int64(0)
	for i, p := range partPaths {
		fi, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("rgog: stat part %s: %w", p, err)
		}
		sizes[i] = fi.Size()
		if fi.Size() > maxSize {
			maxSize = fi.Size()
		}
	}

	shards := make([][]byte, dataShards+parityShards)
	for i, p := range partPaths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("rgog: read part %s: %w", p, err)
		}
		padded := make([]byte, maxSize)
		copy(padded, data)
		shards[i] = padded
	}
	for i := dataShards; i < len(shards); i++ {
		shards[i] = make([]byte, maxSize)
	}

	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return fmt.Errorf("rgog: new reedsolomon encoder: %w", err)
	}
	if err := enc.Encode(shards); err != nil {
		return fmt.Errorf("rgog: encode parity: %w", err)
	}

	for k := 0; k < parityShards; k++ {
		path := filepath.Join(outDir, fmt.Sprintf("%s.parity%d.rgog", outBaseName, k))
		if err := os.WriteFile(path, shards[dataShards+k], 0o644); err != nil {
			return fmt.Errorf("rgog: write parity shard %d: %w", k, err)
		}
	}

	if err := writeSizesSidecar(filepath.Join(outDir, outBaseName+sizesSidecarSuffix), sizes); err != nil {
		return err
	}

	logging.GlobalLogger.Info("rgog redundancy written", logging.Fields{"data_shards": dataShards, "parity_shards": parityShards})
	return nil
}

func writeSizesSidecar(path string, sizes []int64) error {
	buf := make([]byte, 4+8*len(sizes))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(sizes)))
	for i, s := range sizes {
		binary.LittleEndian.PutUint64(buf[4+8*i:12+8*i], uint64(s))
	}
	return os.WriteFile(path, buf, 0o644)
}

func readSizesSidecar(path string) ([]int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("rgog: truncated sizes sidecar %s", path)
	}
	n := binary.LittleEndian.Uint32(data[0:4])
	if len(data) < int(4+8*n) {
		return nil, fmt.Errorf("rgog: truncated sizes sidecar %s", path)
	}
	sizes := make([]int64, n)
	for i := range sizes {
		sizes[i] = int64(binary.LittleEndian.Uint64(data[4+8*i : 12+8*i]))
	}
	return sizes, nil
}

// Reconstruct rebuilds any missing/corrupt part files in partPaths (entries
// set to "" mark a part absent or not trusted) from the surviving parts
// and the parity shards at parityPaths, writing the recovered parts back
// to their original paths. sizesSidecarPath is the sidecar WriteRedundancy
// produced alongside the parity shards.
func Reconstruct(partPaths []string, parityPaths []string, sizesSidecarPath string) error {
	sizes, err := readSizesSidecar(sizesSidecarPath)
	if err != nil {
		return fmt.Errorf("rgog: read sizes sidecar: %w", err)
	}
	if len(sizes) != len(partPaths) {
		return fmt.Errorf("rgog: sizes sidecar has %d entries, expected %d", len(sizes), len(partPaths))
	}

	dataShards := len(partPaths)
	parityShards := len(parityPaths)

	var maxSize int64
	shards := make([][]byte, dataShards+parityShards)
	present := make([]bool, dataShards+parityShards)

	for i, p := range partPaths {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		shards[i] = data
		present[i] = true
		if int64(len(data)) > maxSize {
			maxSize = int64(len(data))
		}
	}
	for i, p := range parityPaths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		shards[dataShards+i] = data
		present[dataShards+i] = true
		if int64(len(data)) > maxSize {
			maxSize = int64(len(data))
		}
	}

	for i := range shards {
		if present[i] && int64(len(shards[i])) < maxSize {
			padded := make([]byte, maxSize)
			copy(padded, shards[i])
			shards[i] = padded
		}
	}

	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return fmt.Errorf("rgog: new reedsolomon encoder: %w", err)
	}
	if err := enc.Reconstruct(shards); err != nil {
		return fmt.Errorf("rgog: reconstruct: %w", err)
	}

	for i, p := range partPaths {
		if present[i] || p == "" {
			continue
		}
		trimmed := shards[i][:sizes[i]]
		if err := os.WriteFile(p, trimmed, 0o644); err != nil {
			return fmt.Errorf("rgog: write reconstructed part %s: %w", p, err)
		}
	}
	return nil
}
