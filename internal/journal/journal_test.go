package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketshm/internal/model"
)

func journalFile(t *testing.T, dir, symbol, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, symbol, pattern))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	return matches[0]
}

func TestWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, []string{"BTCUSDT", "ETHUSDT"}, zap.NewNop())
	require.NoError(t, err)

	trades := []model.TradeRecord{
		{EventTime: 1700000000001, TradeTime: 1700000000000, Price: 10000.0, Quantity: 0.25, TradeID: 1},
		{EventTime: 1700000000002, TradeTime: 1700000000001, Price: 10001.5, Quantity: 0.5, TradeID: 2, IsBuyerMaker: true},
	}
	for _, rec := range trades {
		require.NoError(t, w.AppendTrade("BTCUSDT", rec))
	}
	kline := model.KlineRecord{
		OpenTime: 1700000000000, CloseTime: 1700000059999,
		OpenPrice: 10000.0, ClosePrice: 9999.25, HighPrice: 10001.5, LowPrice: 9999.0,
		Volume: 3.5, NumTrades: 2, IsFinal: true,
	}
	require.NoError(t, w.AppendKline("BTCUSDT", kline))
	require.NoError(t, w.Close())

	got, err := ReadTrades(journalFile(t, dir, "BTCUSDT", "trades_*.bin"), 0)
	require.NoError(t, err)
	assert.Equal(t, trades, got)

	klines, err := ReadKlines(journalFile(t, dir, "BTCUSDT", "klines_*.bin"), 0)
	require.NoError(t, err)
	require.Len(t, klines, 1)
	assert.Equal(t, kline, klines[0])

	// The untouched symbol still has (empty) files.
	empty, err := ReadTrades(journalFile(t, dir, "ETHUSDT", "trades_*.bin"), 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAppendUnknownSymbol(t *testing.T) {
	w, err := NewWriter(t.TempDir(), []string{"BTCUSDT"}, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	assert.Error(t, w.AppendTrade("DOGEUSDT", model.TradeRecord{}))
	assert.Error(t, w.AppendKline("DOGEUSDT", model.KlineRecord{}))
}

func TestReadTradesLimitAndPartialTail(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, []string{"BTCUSDT"}, zap.NewNop())
	require.NoError(t, err)
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, w.AppendTrade("BTCUSDT", model.TradeRecord{TradeID: i}))
	}
	require.NoError(t, w.Close())

	path := journalFile(t, dir, "BTCUSDT", "trades_*.bin")

	got, err := ReadTrades(path, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1), got[0].TradeID)
	assert.Equal(t, int64(3), got[2].TradeID)
}
