package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"galaxydl/pkg/archive/rgog"
)

var (
	extractOut        string
	extractBuildID    uint64
	extractReassemble bool
	extractChunksOnly bool
)

var extractCmd = &cobra.Command{
	Use:   "extract ARCHIVE",
	Short: "Extract files from an archive, either raw chunks or reassembled",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := rgog.Open(args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		err = a.Extract(rgog.ExtractOptions{
			OutDir:     extractOut,
			BuildID:    extractBuildID,
			Reassemble: extractReassemble,
			ChunksOnly: extractChunksOnly,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "extracted", args[0], "->", extractOut)
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", "", "output directory")
	extractCmd.Flags().Uint64Var(&extractBuildID, "build", 0, "restrict to one build id (0 = all)")
	extractCmd.Flags().BoolVar(&extractReassemble, "reassemble", false, "reconstruct logical files from their chunks")
	extractCmd.Flags().BoolVar(&extractChunksOnly, "chunks-only", false, "dump raw chunk blobs instead of reassembling files")
	extractCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(extractCmd)
}
