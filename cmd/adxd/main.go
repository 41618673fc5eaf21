// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/adxfed/pkg/config"
	"github.com/luxfi/adxfed/pkg/log"
	"github.com/luxfi/adxfed/pkg/settlement"
)

var (
	configPath = flag.String("config", "", "Path to YAML config")
	logLevel   = flag.String("log-level", "", "Log level (overrides config)")
	importOnce = flag.Bool("import-once", false, "Import every node once and exit")

	// On-demand settlement
	settleKind = flag.String("settle-kind", "unpaid", "Settlement window kind: unpaid, paid")
	settleFrom = flag.Int64("settle-from", 0, "First id of the settlement window")
	settleTo   = flag.Int64("settle-to", 0, "Last id of the settlement window; enables settlement mode")

	// Version info
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	flag.Parse()

	fmt.Printf("ADX federation daemon (adxd) %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := log.NewWithLevel(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	node, err := NewNode(cfg, logger)
	if err != nil {
		logger.Error("failed to create node", log.Error(err))
		os.Exit(1)
	}
	defer node.Close()

	switch {
	case *settleTo > 0:
		if err := node.Settle(ctx, settlement.Kind(*settleKind), *settleFrom, *settleTo); err != nil {
			logger.Error("settlement failed", log.Error(err))
			os.Exit(1)
		}
		return
	case *importOnce:
		node.ImportAll(ctx)
		return
	}

	if err := node.Start(ctx); err != nil {
		logger.Error("failed to start node", log.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := node.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", log.Error(err))
	}
	logger.Info("daemon stopped")
}
