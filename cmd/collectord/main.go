// Package main is the entry point for the market data collector daemon.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"marketshm/internal/app"
	"marketshm/internal/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	symbols := flag.String("symbols", "", "comma-separated symbol override, e.g. BTCUSDT,ETHUSDT")
	journalDir := flag.String("output", "", "journal output directory override")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *symbols != "" {
		cfg.Symbols = strings.Split(*symbols, ",")
	}
	if *journalDir != "" {
		cfg.Journal.Dir = *journalDir
	}

	if err := app.New(cfg).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "collector failed: %v\n", err)
		os.Exit(1)
	}
}
