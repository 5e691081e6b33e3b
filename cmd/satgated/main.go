// Copyright 2025 The go-satgate Authors
// This file is part of go-satgate.
//
// go-satgate is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-satgate is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-satgate. If not, see <http://www.gnu.org/licenses/>.

// satgated is the self-hosted Bitcoin payment gateway daemon. It serves the
// payment API, watches the chain for deposits and drives intent lifecycle
// events.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/satgate/go-satgate/gateway"
	"github.com/satgate/go-satgate/log"
	"github.com/satgate/go-satgate/storage/sqlstore"
)

const shutdownGrace = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "satgated",
		Usage: "self-hosted Bitcoin payment gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the TOML config file",
				Value:   "satgate.toml",
			},
			&cli.IntFlag{
				Name:  "verbosity",
				Usage: "log verbosity (0=crit, 3=info, 5=trace)",
				Value: 3,
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	handler := log.NewTerminalHandlerWithLevel(os.Stderr,
		log.FromVerbosity(c.Int("verbosity")), true)
	log.SetDefault(log.NewLogger(handler))
	logger := log.Root()

	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}

	store, err := sqlstore.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()
	logger.Info("Storage ready", "driver", cfg.Storage.Driver)

	gw, err := gateway.New(cfg.gatewayConfig(), store, logger)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := gw.StartWatcher(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer gw.StopWatcher()

	api := &http.Server{
		Addr:    cfg.Listen.Addr,
		Handler: apiMux(gw),
	}
	errCh := make(chan error, 2)
	go func() {
		logger.Info("API listening", "addr", cfg.Listen.Addr)
		if err := api.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var metricsSrv *http.Server
	if cfg.Listen.MetricsAddr != "" {
		mm := http.NewServeMux()
		mm.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Listen.MetricsAddr, Handler: mm}
		go func() {
			logger.Info("Metrics listening", "addr", cfg.Listen.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutting down on signal")
	case err := <-errCh:
		logger.Error("Server failed", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API shutdown incomplete", "err", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics shutdown incomplete", "err", err)
		}
	}
	return nil
}

// apiMux mounts the gateway surface next to the health probe.
func apiMux(gw *gateway.Gateway) http.Handler {
	m := http.NewServeMux()
	m.Handle("/", gw.Handler())
	m.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := gw.Healthy(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return m
}
