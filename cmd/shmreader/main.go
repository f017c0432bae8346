// Package main is a diagnostic reader for a collector's shared memory region.
// It maps the region read-only, validates it, and prints the buffered window
// for one symbol or for all of them, once or continuously.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"marketshm/internal/shm"
)

func main() {
	dir := flag.String("dir", "", "region directory (default: /dev/shm)")
	name := flag.String("name", "binance_market_data", "region file name")
	symbol := flag.String("s", "", "read a single symbol instead of all")
	maxRecords := flag.Int("n", 0, "max records per symbol (0 = all)")
	continuous := flag.Bool("c", false, "keep reading until interrupted")
	intervalMs := flag.Int("i", 1000, "poll interval in continuous mode (ms)")
	flag.Parse()

	reader, err := shm.OpenReader(*dir, *name, zap.NewNop())
	if err != nil {
		if errors.Is(err, shm.ErrRegionNotFound) {
			fmt.Fprintf(os.Stderr, "region %q not found: is the collector running?\n", *name)
		} else {
			fmt.Fprintf(os.Stderr, "failed to open region: %v\n", err)
		}
		os.Exit(1)
	}
	defer reader.Close()

	printStats(reader.Stats())

	for {
		if *symbol != "" {
			data, err := reader.ReadSymbol(*symbol, *maxRecords)
			if err != nil {
				fmt.Fprintf(os.Stderr, "read failed: %v\n", err)
				os.Exit(1)
			}
			printSlot(data)
		} else {
			for _, data := range reader.ReadAll(*maxRecords) {
				printSlot(data)
			}
		}

		if !*continuous {
			return
		}
		time.Sleep(time.Duration(*intervalMs) * time.Millisecond)
		fmt.Printf("\n--- %s (write counter %d) ---\n",
			time.Now().Format(time.RFC3339), reader.Stats().WriteCounter)
	}
}

func printStats(st shm.RegionStats) {
	fmt.Printf("region:        %s (%d bytes)\n", st.Path, st.RegionSize)
	fmt.Printf("layout:        header %d, data at %d, slot size %d\n",
		st.HeaderSize, st.DataOffset, st.SlotSize)
	fmt.Printf("symbols:       %d %v\n", st.SymbolCount, st.Symbols)
	fmt.Printf("write counter: %d\n", st.WriteCounter)
	fmt.Printf("last update:   %s (%s ago)\n\n",
		st.LastUpdate.Format(time.RFC3339), st.Age())
}

func printSlot(data shm.SlotData) {
	fmt.Printf("%s [%s] %d records\n", data.Symbol, data.Status, len(data.Entries))
	for _, w := range data.Warnings {
		fmt.Printf("  ! %s\n", w)
	}
	for _, e := range data.Entries {
		at := time.UnixMilli(e.Header.ReceivedAt).Format("15:04:05.000")
		switch {
		case e.Trade != nil:
			t := e.Trade
			side := "buy"
			if t.IsBuyerMaker {
				side = "sell"
			}
			fmt.Printf("  %s trade #%d price=%.8g qty=%.8g %s\n",
				at, t.TradeID, t.Price, t.Quantity, side)
		case e.Kline != nil:
			k := e.Kline
			final := " "
			if k.IsFinal {
				final = "F"
			}
			fmt.Printf("  %s kline %s o=%.8g h=%.8g l=%.8g c=%.8g vol=%.8g trades=%d\n",
				at, final, k.OpenPrice, k.HighPrice, k.LowPrice, k.ClosePrice, k.Volume, k.NumTrades)
		}
	}
}
