package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"galaxydl/internal/config"
	"galaxydl/internal/statedb"
	"galaxydl/pkg/downloader"
	"galaxydl/pkg/manifest"
	"galaxydl/pkg/securelink"
)

var (
	downloadOut      string
	downloadPlatform string
	downloadBuildID  string
	downloadLanguage string
	downloadPool     int
	downloadVerify   bool
	downloadResumeDB string
)

var downloadCmd = &cobra.Command{
	Use:   "download PRODUCT_ID",
	Short: "Download a build's depot items to a local directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid := args[0]
		ctx := context.Background()

		client, err := newClient(ctx)
		if err != nil {
			return err
		}

		resolver := manifest.NewResolver(client)
		var m manifest.Manifest
		if downloadBuildID != "" {
			m, err = resolver.ResolveByBuildID(ctx, pid, downloadBuildID, downloadPlatform)
		} else {
			m, err = resolver.ResolveLatest(ctx, pid, downloadPlatform)
		}
		if err != nil {
			return err
		}

		cfg := config.Default
		if downloadPool > 0 {
			cfg = cfg.WithPoolSize(downloadPool)
		}
		links := securelink.New(client)
		dl := downloader.New(client, links, cfg)
		defer dl.Stop()

		if downloadResumeDB != "" {
			db, err := statedb.Open(downloadResumeDB)
			if err != nil {
				return err
			}
			defer db.Close()
			dl.SetStateDB(db)
		}

		out := cmd.OutOrStdout()
		for _, depot := range m.Depots {
			if downloadLanguage != "" && !depot.HasLanguage(downloadLanguage) {
				continue
			}

			items, err := m.GetDepotItems(ctx, client, depot)
			if err != nil {
				return err
			}

			results, err := dl.DownloadItems(ctx, items, downloadOut, downloader.Options{
				Verify:   downloadVerify,
				FailFast: true,
			})
			if err != nil {
				return err
			}
			for path, res := range results {
				if res.Err != nil {
					return fmt.Errorf("download %s: %w", path, res.Err)
				}
			}
			fmt.Fprintf(out, "depot %s: %d item(s) -> %s\n", depot.ProductID, len(items), downloadOut)
		}
		return nil
	},
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadOut, "out", "o", "", "output directory")
	downloadCmd.Flags().StringVar(&downloadPlatform, "platform", "windows", "target platform (windows, osx, linux)")
	downloadCmd.Flags().StringVar(&downloadBuildID, "build", "", "specific build_id (defaults to the latest)")
	downloadCmd.Flags().StringVar(&downloadLanguage, "language", "", "restrict to depots matching this language tag")
	downloadCmd.Flags().IntVar(&downloadPool, "pool-size", 0, "override the worker pool size (default from config)")
	downloadCmd.Flags().BoolVar(&downloadVerify, "verify", true, "verify MD5 hashes after assembly")
	downloadCmd.Flags().StringVar(&downloadResumeDB, "resume-db", "", "path to a state database for skipping already-verified chunks across runs")
	downloadCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(downloadCmd)
}
