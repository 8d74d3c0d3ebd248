// The export and import subcommands: CSV interchange for the
// snapshot database.
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"alignd/pkg/align"
	"alignd/pkg/config"
	"alignd/pkg/log"
)

var storeDBPath string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all saved alignments as CSV to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, db, err := openSnapshotStore()
		if err != nil {
			return err
		}
		defer db.Close()
		return store.ExportCSV(os.Stdout)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Load alignments from a CSV file into the snapshot database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, db, err := openSnapshotStore()
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		// No axis space is attached offline, so every axis id loads.
		if err := store.ImportCSV(f, nil); err != nil {
			return err
		}
		return db.Flush(store)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{exportCmd, importCmd} {
		cmd.Flags().StringVar(&storeDBPath, "db", "", "snapshot database path (defaults to store.path from the config)")
		rootCmd.AddCommand(cmd)
	}
}

func openSnapshotStore() (*align.Store, *align.DB, error) {
	path := storeDBPath
	if path == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, nil, err
		}
		path = cfg.Store.Path
	}
	if path == "" {
		return nil, nil, fmt.Errorf("no snapshot database: pass --db or set store.path in the config")
	}

	logger := log.New("store")
	logger.SetWriter(os.Stderr)

	db, err := align.OpenDB(path, logger)
	if err != nil {
		return nil, nil, err
	}
	store := align.NewStore(logger)
	if err := db.LoadInto(store); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, db, nil
}
