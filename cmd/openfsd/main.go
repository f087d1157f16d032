// cmd/openfsd/main.go
// Copyright(c) 2026 openfsd contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// openfsd is a standalone FSD server: it accepts legacy flight simulator
// and controller clients, relays traffic between them, and answers
// weather requests from live METAR data.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openfsd/openfsd/auth"
	"github.com/openfsd/openfsd/config"
	"github.com/openfsd/openfsd/log"
	"github.com/openfsd/openfsd/plugin"
	"github.com/openfsd/openfsd/server"
	"github.com/openfsd/openfsd/wx"
)

var (
	configPath = flag.String("config", "openfsd.json", "path to configuration file")
	logLevel   = flag.String("loglevel", "info", "logging level: debug, info, warn, error")
	logDir     = flag.String("logdir", "", "directory to log to; empty for the system default")
)

func main() {
	flag.Parse()

	lg := log.New(*logLevel, *logDir)

	if err := run(lg); err != nil {
		lg.Errorf("%v", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(lg *log.Logger) error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store auth.Store
	switch cfg.Database.Driver {
	case "postgres":
		store, err = auth.OpenPostgres(ctx, cfg.Database.URL)
	default:
		store, err = auth.OpenSQLite(ctx, cfg.Database.URL)
	}
	if err != nil {
		return err
	}
	defer store.Close()

	fetchers := []wx.Fetcher{wx.NewNOAAFetcher(lg)}
	wxm, err := wx.NewManager(wx.ManagerConfig{
		Mode:                wx.Mode(cfg.METAR.Mode),
		Fallback:            wx.Mode(cfg.METAR.Fallback),
		Fetchers:            cfg.METAR.Fetchers,
		CronInterval:        time.Duration(cfg.METAR.CronTime * float64(time.Second)),
		SkipPreviousFetcher: cfg.METAR.SkipPreviousFetcher,
		CacheFile:           cfg.METAR.CacheFile,
	}, fetchers, lg)
	if err != nil {
		return err
	}

	plugins := plugin.NewDispatcher(lg)
	for _, p := range registeredPlugins {
		if err := plugins.Register(p, cfg.Plugins[p.Name()]); err != nil {
			return err
		}
	}

	srv, err := server.New(cfg, store, wxm, plugins, lg)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// registeredPlugins lists the compiled-in extensions, dispatched in this
// order.
var registeredPlugins []plugin.Plugin
