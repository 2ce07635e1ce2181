package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"galaxydl/pkg/diff"
	"galaxydl/pkg/manifest"
	"galaxydl/pkg/patch"
)

var (
	patchPlatform string
	patchLanguage string
	patchDLCs     []string
)

var patchCmd = &cobra.Command{
	Use:   "patch PRODUCT_ID FROM_BUILD TO_BUILD",
	Short: "Resolve and describe the xdelta3 patch (if any) between two builds",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, fromBuild, toBuild := args[0], args[1], args[2]
		ctx := context.Background()

		client, err := newClient(ctx)
		if err != nil {
			return err
		}

		resolver := manifest.NewResolver(client)
		oldM, err := resolver.ResolveByBuildID(ctx, pid, fromBuild, patchPlatform)
		if err != nil {
			return err
		}
		newM, err := resolver.ResolveByBuildID(ctx, pid, toBuild, patchPlatform)
		if err != nil {
			return err
		}

		patchResolver := patch.NewResolver(client)
		p, err := patchResolver.GetPatch(ctx, pid, newM, oldM, patchLanguage, patchDLCs)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if p == nil {
			fmt.Fprintln(out, "no patch available between these builds; fall back to a full download")
			return nil
		}
		fmt.Fprintf(out, "algorithm: %s\n", p.Algorithm)

		for _, depot := range newM.Depots {
			if patchLanguage != "" && !depot.HasLanguage(patchLanguage) {
				continue
			}
			newItems, err := newM.GetDepotItems(ctx, client, depot)
			if err != nil {
				return err
			}

			var oldItems []manifest.DepotItem
			for _, oldDepot := range oldM.Depots {
				if oldDepot.ProductID == depot.ProductID {
					oldItems, err = oldM.GetDepotItems(ctx, client, oldDepot)
					if err != nil {
						return err
					}
					break
				}
			}

			d := diff.Compare(newItems, oldItems, p)
			fmt.Fprintf(out, "depot %s: %d new, %d changed, %d patched, %d deleted\n",
				depot.ProductID, len(d.New), len(d.Changed), len(d.Patched), len(d.Deleted))
		}
		return nil
	},
}

func init() {
	patchCmd.Flags().StringVar(&patchPlatform, "platform", "windows", "target platform (windows, osx, linux)")
	patchCmd.Flags().StringVar(&patchLanguage, "language", "", "restrict to depots matching this language tag")
	patchCmd.Flags().StringSliceVar(&patchDLCs, "dlc", nil, "additional DLC product ids to include in the patch lookup")
	rootCmd.AddCommand(patchCmd)
}
