package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var libraryLimit int

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "List owned product ids, one per line",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		client, err := newClient(ctx)
		if err != nil {
			return err
		}

		ids, err := client.OwnedGames(ctx)
		if err != nil {
			return err
		}
		if libraryLimit > 0 && len(ids) > libraryLimit {
			ids = ids[:libraryLimit]
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

func init() {
	libraryCmd.Flags().IntVar(&libraryLimit, "limit", 0, "limit the number of ids printed (0 = no limit)")
	rootCmd.AddCommand(libraryCmd)
}
