package market

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketshm/internal/model"
	"marketshm/internal/wire"
)

type captureSink struct {
	trades map[string][]model.TradeRecord
	klines map[string][]model.KlineRecord
	err    error
}

func newCaptureSink() *captureSink {
	return &captureSink{
		trades: make(map[string][]model.TradeRecord),
		klines: make(map[string][]model.KlineRecord),
	}
}

func (s *captureSink) AppendTrade(symbol string, rec model.TradeRecord) error {
	if s.err != nil {
		return s.err
	}
	s.trades[symbol] = append(s.trades[symbol], rec)
	return nil
}

func (s *captureSink) AppendKline(symbol string, rec model.KlineRecord) error {
	if s.err != nil {
		return s.err
	}
	s.klines[symbol] = append(s.klines[symbol], rec)
	return nil
}

func TestNewTableNormalizesNames(t *testing.T) {
	table, err := NewTable([]string{" btcusdt ", "ETHUSDT", "BTCUSDT", ""}, 10, nil, zap.NewNop())
	require.NoError(t, err)

	// Upper-cased, trimmed, deduplicated, configuration order preserved.
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, table.Names())

	_, ok := table.Lookup("BTCUSDT")
	assert.True(t, ok)
	_, ok = table.Lookup("btcusdt")
	assert.False(t, ok, "lookup is exact-match on canonical names")
}

func TestNewTableRejectsEmptyAndOversized(t *testing.T) {
	_, err := NewTable(nil, 10, nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewTable([]string{"", "  "}, 10, nil, zap.NewNop())
	assert.Error(t, err)

	names := make([]string, wire.MaxSymbols+1)
	for i := range names {
		names[i] = "SYM" + string(rune('A'+i)) + "USDT"
	}
	_, err = NewTable(names, 10, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestIngestUnknownSymbol(t *testing.T) {
	table, err := NewTable([]string{"BTCUSDT"}, 10, nil, zap.NewNop())
	require.NoError(t, err)

	err = table.IngestTrade("DOGEUSDT", model.TradeRecord{TradeID: 1})
	assert.ErrorIs(t, err, ErrUnknownSymbol)

	err = table.IngestKline("DOGEUSDT", model.KlineRecord{})
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestIngestBuffersAndCounts(t *testing.T) {
	sink := newCaptureSink()
	table, err := NewTable([]string{"BTCUSDT"}, 10, sink, zap.NewNop())
	require.NoError(t, err)
	table.nowMs = func() int64 { return 1700000000000 }

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, table.IngestTrade("BTCUSDT", model.TradeRecord{TradeID: i, Price: 10000 + float64(i)}))
	}
	require.NoError(t, table.IngestKline("BTCUSDT", model.KlineRecord{OpenTime: 1, ClosePrice: 10002}))

	sym, ok := table.Lookup("BTCUSDT")
	require.True(t, ok)

	c := sym.Counters()
	assert.Equal(t, uint64(3), c.Trades.Load())
	assert.Equal(t, uint64(1), c.Klines.Load())
	assert.Equal(t, uint64(4), c.Messages.Load())
	assert.Equal(t, uint64(3*wire.TradeRecordSize+wire.KlineRecordSize), c.Bytes.Load())

	sym.Inspect(func(trades *Ring[model.TradeRecord], klines *Ring[model.KlineRecord]) {
		assert.Equal(t, 3, trades.Len())
		assert.Equal(t, 1, klines.Len())
		for hdr := range trades.All() {
			assert.Equal(t, model.KindTrade, hdr.Kind)
			assert.Equal(t, "BTCUSDT", hdr.SymbolName())
			assert.Equal(t, int64(1700000000000), hdr.ReceivedAt)
		}
	})

	// The durable sink saw every record.
	assert.Len(t, sink.trades["BTCUSDT"], 3)
	assert.Len(t, sink.klines["BTCUSDT"], 1)
}

func TestIngestSurvivesSinkFailure(t *testing.T) {
	sink := newCaptureSink()
	sink.err = errors.New("disk full")
	table, err := NewTable([]string{"BTCUSDT"}, 10, sink, zap.NewNop())
	require.NoError(t, err)

	// A failing journal must not keep records out of the in-memory window.
	require.NoError(t, table.IngestTrade("BTCUSDT", model.TradeRecord{TradeID: 1}))

	sym, _ := table.Lookup("BTCUSDT")
	sym.Inspect(func(trades *Ring[model.TradeRecord], _ *Ring[model.KlineRecord]) {
		assert.Equal(t, 1, trades.Len())
	})
}
