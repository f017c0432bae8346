// Package stats logs periodic per-symbol throughput figures so a collector
// left running unattended still leaves a trail of what it ingested.
package stats

import (
	"context"
	"time"

	"go.uber.org/zap"

	"marketshm/internal/market"
	"marketshm/internal/model"
)

// Reporter samples the table's counters on a fixed interval and logs totals
// plus the rate over the last interval.
type Reporter struct {
	table    *market.Table
	interval time.Duration
	log      *zap.Logger

	prev map[string]snapshot
}

type snapshot struct {
	trades uint64
	klines uint64
	bytes  uint64
}

// New creates a reporter over the given table.
func New(table *market.Table, interval time.Duration, log *zap.Logger) *Reporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Reporter{
		table:    table,
		interval: interval,
		log:      log,
		prev:     make(map[string]snapshot, len(table.Names())),
	}
}

// Run reports until ctx is cancelled, emitting one final report on the way
// out so shutdown totals are never lost.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.report()
			return ctx.Err()
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *Reporter) report() {
	secs := r.interval.Seconds()
	for _, name := range r.table.Names() {
		sym, ok := r.table.Lookup(name)
		if !ok {
			continue
		}
		c := sym.Counters()
		cur := snapshot{
			trades: c.Trades.Load(),
			klines: c.Klines.Load(),
			bytes:  c.Bytes.Load(),
		}
		last := r.prev[name]
		r.prev[name] = cur

		var tradesBuf, klinesBuf int
		sym.Inspect(func(trades *market.Ring[model.TradeRecord], klines *market.Ring[model.KlineRecord]) {
			tradesBuf = trades.Len()
			klinesBuf = klines.Len()
		})

		r.log.Info("symbol_stats",
			zap.String("symbol", name),
			zap.Uint64("trades_total", cur.trades),
			zap.Uint64("klines_total", cur.klines),
			zap.Float64("trades_per_sec", float64(cur.trades-last.trades)/secs),
			zap.Float64("klines_per_sec", float64(cur.klines-last.klines)/secs),
			zap.Uint64("bytes_total", cur.bytes),
			zap.Int("trades_buffered", tradesBuf),
			zap.Int("klines_buffered", klinesBuf))
	}
}
