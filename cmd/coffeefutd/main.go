// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btorressz/coffee-futures/config"
	"github.com/btorressz/coffee-futures/pkg/api"
	"github.com/btorressz/coffee-futures/pkg/crypto/hashing"
	"github.com/btorressz/coffee-futures/pkg/exchange"
	"github.com/btorressz/coffee-futures/pkg/ids"
	"github.com/btorressz/coffee-futures/pkg/log"
	"github.com/btorressz/coffee-futures/pkg/metric"
	"github.com/btorressz/coffee-futures/pkg/storage"
	"github.com/btorressz/coffee-futures/pkg/token"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file")
	listen     = flag.String("listen", "", "HTTP listen address (overrides config)")
	dataDir    = flag.String("data-dir", "", "Data directory (overrides config)")
	dbType     = flag.String("db-type", "", "Storage backend: memory or badger (overrides config)")
	logLevel   = flag.String("log-level", "", "Log level (overrides config)")

	// Version info
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *dbType != "" {
		cfg.DBType = *dbType
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := log.NewWithLevel(cfg.LogLevel)
	defer logger.Sync()
	logger.Info(fmt.Sprintf("coffeefutd %s (%s) starting", Version, GitCommit))

	store, err := storage.NewStorage(cfg.DBType, cfg.DataDir)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening storage: %v", err))
		os.Exit(1)
	}
	defer store.Close()

	metrics, err := metric.NewMetrics()
	if err != nil {
		logger.Fatal(fmt.Sprintf("creating metrics: %v", err))
		os.Exit(1)
	}

	programID := resolveProgramID(cfg.ProgramID)
	ledger := token.NewMemLedger()

	ex, err := exchange.New(programID, ledger, logger, exchange.Options{
		Store:   store,
		Metrics: metrics,
	})
	if err != nil {
		logger.Fatal(fmt.Sprintf("creating engine: %v", err))
		os.Exit(1)
	}
	logger.Info(fmt.Sprintf("engine ready: %d markets, %d deals", len(ex.ListMarkets()), len(ex.ListDeals())))

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewServer(ex, ledger, metrics, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("http api listening on %s", cfg.Listen))
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(fmt.Sprintf("received %s, shutting down", sig))
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error(fmt.Sprintf("http server: %v", err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error(fmt.Sprintf("shutdown: %v", err))
	}
	logger.Info("coffeefutd stopped")
}

// resolveProgramID parses the configured hex program id, or derives a stable
// default from the daemon namespace.
func resolveProgramID(raw string) ids.ID {
	if raw != "" {
		if id, err := ids.FromString(raw); err == nil {
			return id
		}
	}
	return ids.ID(hashing.SHA256([]byte("coffee-futures/program/v1")))
}
