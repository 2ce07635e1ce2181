package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"galaxydl/pkg/archive/rgog"
)

var (
	repairParts  []string
	repairParity []string
	repairSizes  string
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Reconstruct missing/corrupt archive parts from Reed-Solomon parity shards",
	RunE: func(cmd *cobra.Command, args []string) error {
		if repairSizes == "" {
			return fmt.Errorf("repair: --sizes is required")
		}
		if err := rgog.Reconstruct(repairParts, repairParity, repairSizes); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "repair complete")
		return nil
	},
}

func init() {
	repairCmd.Flags().StringSliceVar(&repairParts, "part", nil, "part file path in order (empty string for a missing/untrusted part)")
	repairCmd.Flags().StringSliceVar(&repairParity, "parity", nil, "parity shard file paths in order")
	repairCmd.Flags().StringVar(&repairSizes, "sizes", "", "path to the .parity.sizes sidecar written alongside the parity shards")
	rootCmd.AddCommand(repairCmd)
}
