package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"galaxydl/pkg/archive/rgog"
)

var (
	listDetailed bool
	listBuildID  uint64
)

var listCmd = &cobra.Command{
	Use:   "list ARCHIVE",
	Short: "List the builds (and optionally depots) stored in an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := rgog.Open(args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		builds, err := a.List(listBuildID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, b := range builds {
			fmt.Fprintf(out, "%d\tos=%d\trepo=%s\n", b.BuildID, b.OS, b.RepositoryID)
			if !listDetailed {
				continue
			}
			for _, d := range b.Depots {
				fmt.Fprintf(out, "  depot=%s offset=%d size=%d languages=%v\n", d.DepotIDHex, d.Offset, d.Size, d.Languages)
			}
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listDetailed, "detailed", false, "also list each build's depots")
	listCmd.Flags().Uint64Var(&listBuildID, "build", 0, "restrict to one build id (0 = all)")
	rootCmd.AddCommand(listCmd)
}
