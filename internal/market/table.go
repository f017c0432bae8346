// Package market owns the in-process state of the collector: the tracked
// symbols, their recent-data ring buffers, and the ingest counters.
package market

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"marketshm/internal/model"
	"marketshm/internal/wire"
)

// ErrUnknownSymbol reports ingestion for a symbol that is not tracked.
// It is recoverable: ingestion for other symbols continues.
var ErrUnknownSymbol = errors.New("market: unknown symbol")

// Canonical normalizes a raw symbol name to its tracked form.
func Canonical(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Sink receives every successfully ingested record for durable persistence.
// A sink failure must not block ring buffer insertion; the table logs it and
// carries on.
type Sink interface {
	AppendTrade(symbol string, rec model.TradeRecord) error
	AppendKline(symbol string, rec model.KlineRecord) error
}

// Counters are observational per-symbol totals. They are read by the stats
// reporter and the status API without taking any lock.
type Counters struct {
	Trades   atomic.Uint64
	Klines   atomic.Uint64
	Messages atomic.Uint64
	Bytes    atomic.Uint64
}

// Symbol holds the recent-data buffers for one tracked symbol. Created once
// at startup; lives for the process lifetime.
type Symbol struct {
	name string

	mu     sync.Mutex
	trades *Ring[model.TradeRecord]
	klines *Ring[model.KlineRecord]

	counters Counters
}

// Name returns the canonical (upper-case) symbol name.
func (s *Symbol) Name() string { return s.name }

// Counters returns the symbol's counter block.
func (s *Symbol) Counters() *Counters { return &s.counters }

// Inspect runs fn with the symbol's mutex held, giving it a mutually
// consistent view of both ring buffers. fn must not block.
func (s *Symbol) Inspect(fn func(trades *Ring[model.TradeRecord], klines *Ring[model.KlineRecord])) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.trades, s.klines)
}

// Table is the fixed set of tracked symbols, keyed by canonical name.
// The name list preserves configuration order; it is mirrored verbatim into
// the shared region's symbol directory.
type Table struct {
	symbols map[string]*Symbol
	names   []string
	sink    Sink
	log     *zap.Logger
	nowMs   func() int64
}

// NewTable builds the symbol set from the configured names. Names are
// upper-cased here, once; ingest lookups are exact-match. sink may be nil
// when persistence is disabled.
func NewTable(names []string, ringCapacity int, sink Sink, log *zap.Logger) (*Table, error) {
	if len(names) == 0 {
		return nil, errors.New("market: at least one symbol required")
	}
	if len(names) > wire.MaxSymbols {
		return nil, fmt.Errorf("market: %d symbols exceeds the maximum of %d", len(names), wire.MaxSymbols)
	}
	t := &Table{
		symbols: make(map[string]*Symbol, len(names)),
		names:   make([]string, 0, len(names)),
		sink:    sink,
		log:     log,
		nowMs:   func() int64 { return time.Now().UnixMilli() },
	}
	for _, raw := range names {
		name := Canonical(raw)
		if name == "" {
			continue
		}
		if _, dup := t.symbols[name]; dup {
			continue
		}
		t.symbols[name] = &Symbol{
			name:   name,
			trades: NewRing[model.TradeRecord](ringCapacity),
			klines: NewRing[model.KlineRecord](ringCapacity),
		}
		t.names = append(t.names, name)
	}
	if len(t.names) == 0 {
		return nil, errors.New("market: at least one symbol required")
	}
	return t, nil
}

// Names returns the tracked symbols in configuration order.
func (t *Table) Names() []string { return t.names }

// Lookup returns the Symbol for an exact canonical name.
func (t *Table) Lookup(name string) (*Symbol, bool) {
	s, ok := t.symbols[name]
	return s, ok
}

// IngestTrade persists and buffers one trade record. The symbol must already
// be canonical (upper-case); callers normalize at decode time, not here.
func (t *Table) IngestTrade(symbol string, rec model.TradeRecord) error {
	s, ok := t.symbols[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	// Durable journal first: its failure must not keep the record out of the
	// in-memory window.
	if t.sink != nil {
		if err := t.sink.AppendTrade(symbol, rec); err != nil {
			t.log.Warn("journal_append_failed",
				zap.String("symbol", symbol),
				zap.String("kind", "trade"),
				zap.Error(err))
		}
	}

	hdr := wire.NewFrameHeader(model.KindTrade, symbol, t.nowMs())
	s.mu.Lock()
	s.trades.Append(rec, hdr)
	s.mu.Unlock()

	s.counters.Trades.Add(1)
	s.counters.Messages.Add(1)
	s.counters.Bytes.Add(wire.TradeRecordSize)
	return nil
}

// IngestKline persists and buffers one kline record.
func (t *Table) IngestKline(symbol string, rec model.KlineRecord) error {
	s, ok := t.symbols[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	if t.sink != nil {
		if err := t.sink.AppendKline(symbol, rec); err != nil {
			t.log.Warn("journal_append_failed",
				zap.String("symbol", symbol),
				zap.String("kind", "kline"),
				zap.Error(err))
		}
	}

	hdr := wire.NewFrameHeader(model.KindKline, symbol, t.nowMs())
	s.mu.Lock()
	s.klines.Append(rec, hdr)
	s.mu.Unlock()

	s.counters.Klines.Add(1)
	s.counters.Messages.Add(1)
	s.counters.Bytes.Add(wire.KlineRecordSize)
	return nil
}
