// Package main dumps a collector journal file (trades or klines) as text.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"marketshm/internal/journal"
)

func main() {
	kind := flag.String("kind", "trade", "record kind in the file: trade or kline")
	maxRecords := flag.Int("n", 0, "max records to print (0 = all)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: logreader [-kind trade|kline] [-n count] <file>\n")
		os.Exit(2)
	}
	path := flag.Arg(0)

	switch *kind {
	case "trade":
		recs, err := journal.ReadTrades(path, *maxRecords)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read failed: %v\n", err)
			os.Exit(1)
		}
		for _, t := range recs {
			side := "buy"
			if t.IsBuyerMaker {
				side = "sell"
			}
			fmt.Printf("%s trade #%d price=%.8g qty=%.8g %s\n",
				time.UnixMilli(t.TradeTime).Format(time.RFC3339Nano),
				t.TradeID, t.Price, t.Quantity, side)
		}
		fmt.Printf("%d trade records\n", len(recs))
	case "kline":
		recs, err := journal.ReadKlines(path, *maxRecords)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read failed: %v\n", err)
			os.Exit(1)
		}
		for _, k := range recs {
			final := " "
			if k.IsFinal {
				final = "F"
			}
			fmt.Printf("%s kline %s o=%.8g h=%.8g l=%.8g c=%.8g vol=%.8g trades=%d\n",
				time.UnixMilli(k.OpenTime).Format(time.RFC3339),
				final, k.OpenPrice, k.HighPrice, k.LowPrice, k.ClosePrice, k.Volume, k.NumTrades)
		}
		fmt.Printf("%d kline records\n", len(recs))
	default:
		fmt.Fprintf(os.Stderr, "unknown kind %q: want trade or kline\n", *kind)
		os.Exit(2)
	}
}
