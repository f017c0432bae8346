// Package app wires the collector together and manages its lifecycle.
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"marketshm/internal/api"
	"marketshm/internal/config"
	"marketshm/internal/feed"
	"marketshm/internal/journal"
	"marketshm/internal/logging"
	"marketshm/internal/market"
	"marketshm/internal/shm"
	"marketshm/internal/stats"
)

// App is the application lifecycle manager.
type App struct {
	cfg *config.Config
}

// New creates a new App instance.
func New(cfg *config.Config) *App {
	return &App{cfg: cfg}
}

// Run starts the full collector: journal, symbol table, shared memory
// publisher, stats reporter, API server and websocket feed, then blocks until
// a shutdown signal or a fatal component error.
func (a *App) Run() error {
	log, err := logging.Build(a.cfg.App.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("starting collector",
		zap.String("version", "0.1.0"),
		zap.String("log_level", a.cfg.App.LogLevel),
		zap.Strings("symbols", a.cfg.Symbols))

	// The journal opens first: a collector that cannot persist is not worth
	// starting.
	var sink market.Sink
	var jw *journal.Writer
	if a.cfg.Journal.Enabled {
		jw, err = journal.NewWriter(a.cfg.Journal.Dir, canonicalSymbols(a.cfg.Symbols), log)
		if err != nil {
			return err
		}
		defer jw.Close()
		sink = jw
	}

	table, err := market.NewTable(a.cfg.Symbols, a.cfg.Shm.RingCapacity, sink, log)
	if err != nil {
		return err
	}

	// Region creation failure is fatal: without the shared region the
	// collector has no consumers.
	publisher, err := shm.NewPublisher(table, shm.PublisherConfig{
		Dir:            a.cfg.Shm.Dir,
		Name:           a.cfg.Shm.Name,
		RegionSize:     a.cfg.Shm.RegionSize,
		SlotSize:       a.cfg.Shm.SlotSize,
		UpdateInterval: time.Duration(a.cfg.Shm.UpdateIntervalMs) * time.Millisecond,
		MinRewriteGap:  time.Duration(a.cfg.Shm.MinRewriteGapMs) * time.Millisecond,
	}, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 4)
	go func() {
		errCh <- publisher.Run(ctx)
	}()

	if a.cfg.Stats.Enabled {
		reporter := stats.New(table, time.Duration(a.cfg.Stats.IntervalMs)*time.Millisecond, log)
		go func() {
			errCh <- reporter.Run(ctx)
		}()
	}

	if a.cfg.API.Enabled {
		server := api.NewServer(a.cfg.API.ListenAddress, table, log)
		go func() {
			errCh <- server.Run(ctx)
		}()
	}

	f := feed.New(feed.Config{
		Symbols:              table.Names(),
		KlineInterval:        a.cfg.Feed.KlineInterval,
		UseTestnet:           a.cfg.Feed.UseTestnet,
		ReconnectDelay:       time.Duration(a.cfg.Feed.ReconnectDelayMs) * time.Millisecond,
		MaxReconnectAttempts: a.cfg.Feed.MaxReconnectAttempts,
	}, table, log)
	go func() {
		errCh <- f.Run(ctx)
	}()

	// Wait for shutdown signal or fatal error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown_signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("fatal_error", zap.Error(err))
		}
	}

	cancel()
	log.Info("collector stopped")
	return nil
}

// canonicalSymbols mirrors the table's normalization so the journal directory
// names match the tracked symbol names.
func canonicalSymbols(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, raw := range names {
		name := market.Canonical(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
