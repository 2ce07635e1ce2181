package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"galaxydl/internal/config"
	"galaxydl/pkg/archive/rgog"
)

var (
	packOut          string
	packMaxPartSize  int64
	packProductID    uint64
	packProductName  string
	packRedundancy   int
)

var packCmd = &cobra.Command{
	Use:   "pack DIR",
	Short: "Pack a local v2 CDN tree into a deterministic .rgog archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		srcDir := args[0]
		if packOut == "" {
			return fmt.Errorf("pack: -o/--out is required")
		}

		outDir := filepath.Dir(packOut)
		base := strings.TrimSuffix(filepath.Base(packOut), ".rgog")

		archiveCfg := config.DefaultArchive
		if packMaxPartSize > 0 {
			archiveCfg.MaxPartSize = packMaxPartSize
		}
		if packRedundancy > 0 {
			archiveCfg.RedundancyShards = packRedundancy
		}

		err := rgog.Pack(srcDir, outDir, base, rgog.PackOptions{
			ProductID:   packProductID,
			ProductName: packProductName,
			Archive:     archiveCfg,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "packed", srcDir, "->", packOut)
		return nil
	},
}

func init() {
	packCmd.Flags().StringVarP(&packOut, "out", "o", "", "output archive path (base name, .rgog appended)")
	packCmd.Flags().Int64Var(&packMaxPartSize, "max-part-size", 0, "bound data bytes per part (default 2 GiB)")
	packCmd.Flags().Uint64Var(&packProductID, "product-id", 0, "product id recorded in the archive's product metadata")
	packCmd.Flags().StringVar(&packProductName, "product-name", "", "product name recorded in the archive's product metadata")
	packCmd.Flags().IntVar(&packRedundancy, "redundancy", 0, "number of Reed-Solomon parity shards to compute over the archive's parts")
	rootCmd.AddCommand(packCmd)
}
