package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/quilt/internal/assets"
	"github.com/conneroisu/quilt/internal/build"
	"github.com/conneroisu/quilt/internal/errors"
)

// readSource reads the template at an address for error context.
func readSource(addr string) (string, bool) {
	b, err := os.ReadFile(filepath.FromSlash(addr))
	if err != nil {
		return "", false
	}
	return string(b), true
}

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Render every page into the destination directory",
	Long: `Render every page selected by the page patterns and write the results
under the destination directory, keeping their layout relative to the root.

Patterns match root-relative paths. "**" spans directories, {a,b} lists
alternatives and a leading "!" excludes. Layout, partial, helper, data and
shared directories are never treated as pages.

Examples:
  quilt build                                  # Build **/*.html into ./dist
  quilt build --pages 'blog/**' --pages '!blog/drafts/**'
  quilt build --manifest dist/manifest.db      # Also record resource manifests`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringP("dest", "o", "dist", "Output directory")
	buildCmd.Flags().StringSlice("pages", nil, "Page patterns (default **/*<template ext>)")
	buildCmd.Flags().IntP("concurrency", "j", 8, "Pages rendered in parallel")
	buildCmd.Flags().String("manifest", "", "SQLite file to record resource manifests in")
}

func runBuild(cmd *cobra.Command, _ []string) error {
	cfg, logger, eng, err := setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var store *assets.Store
	if cfg.Build.Manifest != "" {
		store, err = assets.OpenStore(cfg.Build.Manifest)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn(ctx, err, "Closing manifest store")
			}
		}()
	}

	report, err := build.NewBuilder(eng, cfg.Build, store, logger).Build(ctx)
	if report == nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Built %d of %d pages into %s in %s\n",
		report.Metrics.SuccessfulBuilds, len(report.Pages), cfg.Build.Dest, report.Duration.Round(time.Millisecond))
	for _, failed := range report.Failed() {
		for _, d := range errors.Diagnose(failed.Error, errors.SeverityError, readSource) {
			fmt.Fprint(cmd.ErrOrStderr(), d.Format())
		}
	}
	if err != nil {
		return fmt.Errorf("build failed: %d page(s) did not render", len(report.Failed()))
	}
	return nil
}
