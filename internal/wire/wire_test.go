package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketshm/internal/model"
)

func TestTradeRoundTrip(t *testing.T) {
	in := model.TradeRecord{
		EventTime:    1700000000123,
		TradeTime:    1700000000120,
		Price:        10001.5,
		Quantity:     0.125,
		TradeID:      987654321,
		IsBuyerMaker: true,
	}

	var buf [TradeRecordSize]byte
	require.NoError(t, EncodeTrade(buf[:], in))

	out, err := DecodeTrade(buf[:])
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestKlineRoundTrip(t *testing.T) {
	in := model.KlineRecord{
		OpenTime:   1700000000000,
		CloseTime:  1700000059999,
		OpenPrice:  10000.0,
		ClosePrice: 9999.25,
		HighPrice:  10010.75,
		LowPrice:   9990.5,
		Volume:     1234.567,
		NumTrades:  4242,
		IsFinal:    true,
	}

	var buf [KlineRecordSize]byte
	require.NoError(t, EncodeKline(buf[:], in))

	out, err := DecodeKline(buf[:])
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFrameHeaderRoundTrip(t *testing.T) {
	in := NewFrameHeader(model.KindTrade, "BTCUSDT", 1700000000555)
	assert.Equal(t, uint32(TradeRecordSize), in.Length)
	assert.Equal(t, "BTCUSDT", in.SymbolName())

	var buf [FrameHeaderSize]byte
	require.NoError(t, EncodeFrameHeader(buf[:], in))

	out, err := DecodeFrameHeader(buf[:])
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestShortBuffers(t *testing.T) {
	small := make([]byte, 8)

	assert.ErrorIs(t, EncodeTrade(small, model.TradeRecord{}), ErrShortBuffer)
	assert.ErrorIs(t, EncodeKline(small, model.KlineRecord{}), ErrShortBuffer)
	assert.ErrorIs(t, EncodeFrameHeader(small, FrameHeader{}), ErrShortBuffer)

	_, err := DecodeTrade(small)
	assert.ErrorIs(t, err, ErrShortBuffer)
	_, err = DecodeKline(small)
	assert.ErrorIs(t, err, ErrShortBuffer)
	_, err = DecodeFrameHeader(small)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestPadSymbol(t *testing.T) {
	padded := PadSymbol("BTCUSDT")
	assert.Equal(t, "BTCUSDT", SymbolString(padded))
	for _, b := range padded[7:] {
		assert.Equal(t, byte(0), b)
	}

	// Overlong names lose their tail; the final byte stays NUL.
	long := PadSymbol("ABCDEFGHIJKLMNOPQRSTU")
	assert.Equal(t, byte(0), long[SymbolLen-1])
	assert.Equal(t, "ABCDEFGHIJKLMNO", SymbolString(long))
}

func TestPayloadSize(t *testing.T) {
	n, ok := PayloadSize(model.KindTrade)
	assert.True(t, ok)
	assert.Equal(t, TradeRecordSize, n)

	n, ok = PayloadSize(model.KindKline)
	assert.True(t, ok)
	assert.Equal(t, KlineRecordSize, n)

	_, ok = PayloadSize(model.Kind(99))
	assert.False(t, ok)
}
