package shm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"marketshm/internal/market"
	"marketshm/internal/model"
	"marketshm/internal/wire"
)

// PublisherConfig controls the snapshot cadence and region shape.
type PublisherConfig struct {
	Dir            string // backing directory, DefaultDir() when empty
	Name           string // region file name
	RegionSize     int
	SlotSize       int // 0 = divide evenly across wire.MaxSymbols
	UpdateInterval time.Duration
	MinRewriteGap  time.Duration // floor between full-region rewrites
}

// Publisher periodically copies each symbol's ring buffer contents into its
// slot of the shared region. It owns the region: creation failure is fatal at
// startup and the region is unlinked on Close.
type Publisher struct {
	table  *market.Table
	region *Region
	hdr    headerView
	layout Layout
	cfg    PublisherConfig
	log    *zap.Logger

	lastRewrite time.Time
}

// NewPublisher creates and initializes the shared region for the table's
// symbols. The symbol directory order matches market.Table.Names.
func NewPublisher(table *market.Table, cfg PublisherConfig, log *zap.Logger) (*Publisher, error) {
	if cfg.Dir == "" {
		cfg.Dir = DefaultDir()
	}
	layout, err := ComputeLayout(cfg.RegionSize, cfg.SlotSize, table.Names())
	if err != nil {
		return nil, err
	}

	region, err := CreateRegion(cfg.Dir, cfg.Name, cfg.RegionSize)
	if err != nil {
		return nil, fmt.Errorf("shm: publisher startup: %w", err)
	}

	hdr := headerView{mem: region.Bytes()}
	hdr.init(layout, time.Now().UnixMilli())

	log.Info("shm_region_created",
		zap.String("path", region.Path()),
		zap.Int("region_size", layout.RegionSize),
		zap.Int("slot_size", layout.SlotSize),
		zap.Strings("symbols", layout.Symbols))

	return &Publisher{
		table:  table,
		region: region,
		hdr:    hdr,
		layout: layout,
		cfg:    cfg,
		log:    log,
	}, nil
}

// Run publishes on the configured interval until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.publish(time.Now())
		}
	}
}

// Close unlinks and unmaps the region.
func (p *Publisher) Close() error {
	return p.region.Close()
}

// publish refreshes the freshness stamp every wake, but rewrites slot data at
// most once per MinRewriteGap so a fast timer cannot inflate the copy cost.
func (p *Publisher) publish(now time.Time) {
	p.hdr.setLastUpdateMs(now.UnixMilli())

	if now.Sub(p.lastRewrite) < p.cfg.MinRewriteGap {
		return
	}
	p.lastRewrite = now

	for i, name := range p.layout.Symbols {
		sym, ok := p.table.Lookup(name)
		if !ok {
			continue
		}
		if err := p.publishSymbol(i, sym); err != nil {
			// Per-symbol isolation: log and keep going with the rest.
			p.log.Warn("shm_slot_publish_failed",
				zap.String("symbol", name),
				zap.Error(err))
		}
	}

	p.hdr.bumpWriteCounter()
}

// publishSymbol serializes one symbol's rings into its slot, trades before
// klines, whole frames only, oldest first. On overflow klines are dropped
// before trades; that precedence is policy, not accident.
func (p *Publisher) publishSymbol(i int, sym *market.Symbol) error {
	slot, err := p.hdr.slot(i)
	if err != nil {
		return err
	}

	var writeErr error
	sym.Inspect(func(trades *market.Ring[model.TradeRecord], klines *market.Ring[model.KlineRecord]) {
		capacity := slot.capacity()

		tradeCount := trades.Len()
		if limit := capacity / wire.TradeFrameSize; tradeCount > limit {
			tradeCount = limit
		}
		tradeBytes := tradeCount * wire.TradeFrameSize

		klineCount := klines.Len()
		if limit := (capacity - tradeBytes) / wire.KlineFrameSize; klineCount > limit {
			klineCount = limit
		}
		total := tradeBytes + klineCount*wire.KlineFrameSize

		if tradeCount < trades.Len() || klineCount < klines.Len() {
			p.log.Warn("shm_slot_truncated",
				zap.String("symbol", sym.Name()),
				zap.Int("trades_kept", tradeCount),
				zap.Int("trades_buffered", trades.Len()),
				zap.Int("klines_kept", klineCount),
				zap.Int("klines_buffered", klines.Len()))
		}

		slot.beginWrite()
		defer slot.endWrite()

		data := slot.data()
		off := 0

		// Truncation drops from the tail: the oldest complete frames are
		// kept, the newest fall off first.
		n := 0
		for hdr, rec := range trades.All() {
			if n == tradeCount {
				break
			}
			if writeErr = wire.EncodeFrameHeader(data[off:], hdr); writeErr != nil {
				return
			}
			off += wire.FrameHeaderSize
			if writeErr = wire.EncodeTrade(data[off:], rec); writeErr != nil {
				return
			}
			off += wire.TradeRecordSize
			n++
		}

		n = 0
		for hdr, rec := range klines.All() {
			if n == klineCount {
				break
			}
			if writeErr = wire.EncodeFrameHeader(data[off:], hdr); writeErr != nil {
				return
			}
			off += wire.FrameHeaderSize
			if writeErr = wire.EncodeKline(data[off:], rec); writeErr != nil {
				return
			}
			off += wire.KlineRecordSize
			n++
		}

		if off != total {
			// Defensive: the size math above should make this impossible.
			total = off
		}
		slot.setDataLen(total)
	})
	return writeErr
}
