// Package feed connects to the Binance futures websocket combined streams
// and hands decoded trade and kline events to the symbol table.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"go.uber.org/zap"

	"marketshm/internal/market"
	"marketshm/internal/model"
)

// Config controls the websocket subscriptions and reconnect behavior.
type Config struct {
	Symbols              []string // canonical upper-case names
	KlineInterval        string   // e.g. "1m"
	UseTestnet           bool
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// Feed subscribes to one aggTrade stream and one kline stream per symbol,
// multiplexed over two combined websocket connections.
type Feed struct {
	cfg   Config
	table *market.Table
	log   *zap.Logger
}

// New creates a feed for the given table.
func New(cfg Config, table *market.Table, log *zap.Logger) *Feed {
	if cfg.KlineInterval == "" {
		cfg.KlineInterval = "1m"
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 10
	}
	return &Feed{cfg: cfg, table: table, log: log}
}

// Run maintains both stream connections until ctx is cancelled or one of
// them exhausts its reconnect budget.
func (f *Feed) Run(ctx context.Context) error {
	futures.UseTestnet = f.cfg.UseTestnet

	errCh := make(chan error, 2)

	go func() {
		errCh <- f.superviseStream(ctx, "aggTrade", func() (chan struct{}, chan struct{}, error) {
			return futures.WsCombinedAggTradeServe(f.cfg.Symbols, f.handleAggTrade, f.streamErrHandler("aggTrade"))
		})
	}()
	go func() {
		pairs := make(map[string]string, len(f.cfg.Symbols))
		for _, s := range f.cfg.Symbols {
			pairs[s] = f.cfg.KlineInterval
		}
		errCh <- f.superviseStream(ctx, "kline", func() (chan struct{}, chan struct{}, error) {
			return futures.WsCombinedKlineServe(pairs, f.handleKline, f.streamErrHandler("kline"))
		})
	}()

	// First stream to fail permanently (or ctx cancellation) ends the feed.
	err := <-errCh
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// superviseStream keeps one combined stream alive, reconnecting with
// exponential backoff on drops and giving up after the configured number of
// consecutive failed connection attempts.
func (f *Feed) superviseStream(ctx context.Context, name string, connect func() (chan struct{}, chan struct{}, error)) error {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		doneC, stopC, err := connect()
		if err != nil {
			attempt++
			if attempt >= f.cfg.MaxReconnectAttempts {
				return fmt.Errorf("feed: %s stream: giving up after %d attempts: %w", name, attempt, err)
			}
			delay := f.cfg.ReconnectDelay * time.Duration(1<<uint(attempt-1))
			f.log.Warn("stream_connect_failed",
				zap.String("stream", name),
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", delay),
				zap.Error(err))
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		f.log.Info("stream_connected",
			zap.String("stream", name),
			zap.Strings("symbols", f.cfg.Symbols))
		attempt = 0

		select {
		case <-doneC:
			f.log.Warn("stream_disconnected", zap.String("stream", name))
		case <-ctx.Done():
			close(stopC)
			return ctx.Err()
		}
	}
}

func (f *Feed) streamErrHandler(name string) futures.ErrHandler {
	return func(err error) {
		f.log.Warn("stream_error", zap.String("stream", name), zap.Error(err))
	}
}

// handleAggTrade decodes one aggregated trade event and ingests it.
func (f *Feed) handleAggTrade(event *futures.WsAggTradeEvent) {
	price, err := strconv.ParseFloat(event.Price, 64)
	if err != nil {
		f.log.Warn("bad_trade_price", zap.String("value", event.Price), zap.Error(err))
		return
	}
	qty, err := strconv.ParseFloat(event.Quantity, 64)
	if err != nil {
		f.log.Warn("bad_trade_quantity", zap.String("value", event.Quantity), zap.Error(err))
		return
	}

	rec := model.TradeRecord{
		EventTime:    event.Time,
		TradeTime:    event.TradeTime,
		Price:        price,
		Quantity:     qty,
		TradeID:      event.AggregateTradeID,
		IsBuyerMaker: event.Maker,
	}
	if err := f.table.IngestTrade(strings.ToUpper(event.Symbol), rec); err != nil {
		f.log.Warn("trade_ingest_failed", zap.String("symbol", event.Symbol), zap.Error(err))
	}
}

// handleKline decodes one candlestick event and ingests it.
func (f *Feed) handleKline(event *futures.WsKlineEvent) {
	k := event.Kline
	open, err1 := strconv.ParseFloat(k.Open, 64)
	closeP, err2 := strconv.ParseFloat(k.Close, 64)
	high, err3 := strconv.ParseFloat(k.High, 64)
	low, err4 := strconv.ParseFloat(k.Low, 64)
	volume, err5 := strconv.ParseFloat(k.Volume, 64)
	if err := errors.Join(err1, err2, err3, err4, err5); err != nil {
		f.log.Warn("bad_kline_fields", zap.String("symbol", event.Symbol), zap.Error(err))
		return
	}

	rec := model.KlineRecord{
		OpenTime:   k.StartTime,
		CloseTime:  k.EndTime,
		OpenPrice:  open,
		ClosePrice: closeP,
		HighPrice:  high,
		LowPrice:   low,
		Volume:     volume,
		NumTrades:  k.TradeNum,
		IsFinal:    k.IsFinal,
	}
	if err := f.table.IngestKline(strings.ToUpper(event.Symbol), rec); err != nil {
		f.log.Warn("kline_ingest_failed", zap.String("symbol", event.Symbol), zap.Error(err))
	}
}
