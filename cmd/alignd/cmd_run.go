// The run subcommand: daemon mode.
//
// Copyright (C) 2026  Alignd Developers
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"alignd/pkg/align"
	"alignd/pkg/config"
	"alignd/pkg/log"
	"alignd/pkg/metrics"
	"alignd/pkg/sched"
	"alignd/pkg/server"
)

var runSim bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the alignment daemon",
	Long: "Starts the scheduler, the optimization controller, and the HTTP\n" +
		"control surface, and blocks until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func init() {
	runCmd.Flags().BoolVar(&runSim, "sim", true, "use simulated positioner and signal devices")
	rootCmd.AddCommand(runCmd)
}

func runDaemon() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if !runSim {
		return fmt.Errorf("no hardware positioner driver is built in; run with --sim")
	}
	pos, sig := buildSimRig(cfg)

	ctrl, err := buildController(cfg, pos, sig, logger)
	if err != nil {
		return err
	}

	var db *align.DB
	if cfg.Store.Path != "" {
		db, err = align.OpenDB(cfg.Store.Path, logger.WithPrefix("store"))
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.LoadInto(ctrl.Store()); err != nil {
			return err
		}
		ctrl.SetPersistence(db)
	}

	reg := metrics.NewRegistry()
	ctrl.SetMetrics(metrics.NewAlignMetrics(reg))

	scheduler := sched.New()
	ctrl.Drive(scheduler, cfg.Align.TickPeriod.Std())
	scheduler.Run()

	srv := server.New(server.Config{
		Addr:       cfg.Server.Addr,
		Controller: ctrl,
		Registry:   reg,
		Logger:     logger.WithPrefix("server"),
	})
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("control server exited")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
			logger.SetLevel(log.ParseLevel(next.Log.Level))
			settings, err := controllerSettings(next)
			if err != nil {
				logger.WithError(err).Warn("reloaded config rejected")
				return
			}
			if err := ctrl.Configure(settings); err != nil {
				logger.WithError(err).Warn("reloaded settings rejected")
			}
		}, logger.WithPrefix("config"))
		if err != nil {
			return err
		}
		go watcher.Run(ctx)
	}

	logger.Info("alignd ready (strategy=%s, axes=%d)", cfg.Align.Strategy, len(ctrl.Space().Axes()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	srv.Stop()
	scheduler.End()
	scheduler.Wait()
	if db != nil {
		if err := db.Flush(ctrl.Store()); err != nil {
			logger.WithError(err).Warn("final snapshot flush failed")
		}
	}
	return nil
}
