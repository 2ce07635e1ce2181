package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"galaxydl/pkg/archive/rgog"
)

var (
	unpackOut        string
	unpackDebug      bool
	unpackChunksOnly bool
)

var unpackCmd = &cobra.Command{
	Use:   "unpack ARCHIVE",
	Short: "Reverse pack: rebuild the v2/meta and v2/store CDN tree from an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := rgog.Open(args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		if unpackChunksOnly {
			if err := a.Extract(rgog.ExtractOptions{OutDir: unpackOut, ChunksOnly: true}); err != nil {
				return err
			}
		} else if err := a.Unpack(unpackOut, unpackDebug); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "unpacked", args[0], "->", unpackOut)
		return nil
	},
}

func init() {
	unpackCmd.Flags().StringVarP(&unpackOut, "out", "o", "", "output directory")
	unpackCmd.Flags().BoolVar(&unpackDebug, "debug", false, "also dump pretty-printed JSON of product/build metadata")
	unpackCmd.Flags().BoolVar(&unpackChunksOnly, "chunks-only", false, "write only raw chunk blobs, skip rebuilding the meta tree")
	unpackCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(unpackCmd)
}
