package main

import (
	"github.com/spf13/cobra"

	"galaxydl/internal/progressserver"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the task/progress control plane (REST + WebSocket)",
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := progressserver.New()
		return srv.ListenAndServe(serveAddr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	rootCmd.AddCommand(serveCmd)
}
