// Package main is the galaxydl CLI, built on cobra the way the
// FraMan97-kairos pack member structures its cli/cmd: one command per
// file, each registering itself on a package-level rootCmd from its own
// init().
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"galaxydl/internal/auth"
	"galaxydl/internal/config"
	"galaxydl/internal/galaxyerr"
	"galaxydl/internal/logging"
	"galaxydl/pkg/cdnclient"
)

var rootCmd = &cobra.Command{
	Use:   "galaxydl",
	Short: "Content-acquisition and archival engine for the GOG Galaxy CDN",
}

var (
	flagAuthPath string
	flagToken    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAuthPath, "auth-file", "", "path to auth.json (defaults to the OS config dir)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "use this bearer token instead of the stored session")
}

// exitCode maps galaxydl's internal error kinds to the process exit
// codes spec.md §6 names: 0 success, 1 generic error, 2 auth error, 3
// CDN not-found, 4 hash mismatch/verification failure.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, galaxyerr.ErrAuthExpired):
		return 2
	case errors.Is(err, galaxyerr.ErrNotFound):
		return 3
	case errors.Is(err, galaxyerr.ErrHashMismatch):
		return 4
	default:
		return 1
	}
}

func newClient(ctx context.Context) (*cdnclient.Client, error) {
	var tokens auth.TokenProvider
	if flagToken != "" {
		tokens = auth.Static(flagToken)
	} else {
		store, err := auth.LoadFileStore(flagAuthPath, nil)
		if err != nil {
			return nil, fmt.Errorf("load auth store: %w", err)
		}
		tokens = store
	}
	return cdnclient.New(tokens, config.Default), nil
}

func fail(cmd *cobra.Command, err error) {
	logging.GlobalLogger.Error(err.Error(), nil)
	cmd.SilenceUsage = true
	code := exitCode(err)
	cmd.PrintErrln(err)
	os.Exit(code)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fail(rootCmd, err)
	}
}
