// The once subcommand: a single synchronous optimization against the
// simulated devices, useful for smoke tests and demos.
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"alignd/pkg/align"
	"alignd/pkg/config"
)

// onceMaxTicks bounds the synchronous tick loop; a raster scan over a
// large grid plus fit and commit fits comfortably under it.
const onceMaxTicks = 1_000_000

var onceStrategy string

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run one optimization and print the committed position",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce()
	},
}

func init() {
	onceCmd.Flags().StringVar(&onceStrategy, "strategy", "", "override the configured strategy (raster|gradient)")
	rootCmd.AddCommand(onceCmd)
}

func runOnce() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if onceStrategy != "" {
		cfg.Align.Strategy = onceStrategy
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	logger := newLogger(cfg)

	pos, sig := buildSimRig(cfg)
	ctrl, err := buildController(cfg, pos, sig, logger)
	if err != nil {
		return err
	}

	if err := ctrl.Start(); err != nil {
		return err
	}
	for i := 0; i < onceMaxTicks; i++ {
		if ctrl.Tick() == align.Idle {
			break
		}
	}

	st := ctrl.Status()
	if st.LastError != "" {
		return fmt.Errorf("optimization failed: %s", st.LastError)
	}

	positions := ctrl.Positions()
	ids := make([]string, 0, len(positions))
	for axis := range positions {
		ids = append(ids, axis)
	}
	sort.Strings(ids)
	for _, axis := range ids {
		fmt.Printf("%s = %.6g\n", axis, positions[axis])
	}
	return nil
}
