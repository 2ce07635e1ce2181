package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"galaxydl/pkg/archive/rgog"
	"galaxydl/pkg/manifest"
)

var (
	infoPlatform string
	infoStats    bool
)

var infoCmd = &cobra.Command{
	Use:   "info TARGET",
	Short: "Print build info for a product id, or summary info for an .rgog archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := args[0]
		if st, err := os.Stat(target); err == nil && !st.IsDir() {
			return runArchiveInfo(cmd, target)
		}
		return runProductInfo(cmd, target)
	},
}

func runProductInfo(cmd *cobra.Command, pid string) error {
	ctx := context.Background()
	client, err := newClient(ctx)
	if err != nil {
		return err
	}
	resolver := manifest.NewResolver(client)
	builds, err := resolver.ListAllBuilds(ctx, pid, infoPlatform)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for i, b := range builds {
		fmt.Fprintf(out, "%d\t%s\t%d\t%s\t%s\n", i, b.BuildID, b.Generation, b.DatePublished, b.VersionName)
	}
	return nil
}

func runArchiveInfo(cmd *cobra.Command, path string) error {
	a, err := rgog.Open(path)
	if err != nil {
		return err
	}
	defer a.Close()

	info := a.Info()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "product_id\t%d\n", info.ProductID)
	fmt.Fprintf(out, "product_name\t%s\n", info.ProductName)
	fmt.Fprintf(out, "parts\t%d\n", info.TotalParts)
	fmt.Fprintf(out, "builds\t%d\n", info.TotalBuilds)
	fmt.Fprintf(out, "chunks\t%d\n", info.TotalChunks)

	if infoStats {
		report, err := a.Verify(false)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "sections_valid\t%t\n", len(report.Mismatches) == 0)
	}
	return nil
}

func init() {
	infoCmd.Flags().StringVar(&infoPlatform, "platform", "windows", "platform for product build listing")
	infoCmd.Flags().BoolVar(&infoStats, "stats", false, "print extra archive statistics")
	rootCmd.AddCommand(infoCmd)
}
