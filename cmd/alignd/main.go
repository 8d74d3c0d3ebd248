// alignd is the automated alignment daemon: it drives a multi-axis
// positioner toward the signal peak with raster-scan or gradient
// strategies and manages named alignment snapshots.
//
// Usage:
//
//	alignd run  --config alignd.yaml        # daemon with HTTP control surface
//	alignd once --strategy raster           # one optimization, print the result
//	alignd export --db alignments.db        # dump snapshots as CSV to stdout
//	alignd import --db alignments.db f.csv  # load snapshots from a CSV file
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "alignd",
	Short: "Automated multi-axis alignment optimizer",
	Long: "alignd optimizes the position of a multi-axis instrument against a\n" +
		"scalar signal, using full raster scans with Gaussian peak fitting or\n" +
		"iterative gradient ascent, and keeps named alignment snapshots.",
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (YAML)")
}
