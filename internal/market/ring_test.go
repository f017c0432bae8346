package market

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"marketshm/internal/model"
	"marketshm/internal/wire"
)

func tradeAt(id int64) (model.TradeRecord, wire.FrameHeader) {
	rec := model.TradeRecord{TradeID: id, Price: float64(id)}
	hdr := wire.NewFrameHeader(model.KindTrade, "BTCUSDT", id)
	return rec, hdr
}

func collectIDs(r *Ring[model.TradeRecord]) []int64 {
	var ids []int64
	for hdr, rec := range r.All() {
		ids = append(ids, rec.TradeID)
		if hdr.ReceivedAt != rec.TradeID {
			ids = append(ids, -1) // header/record pairing broken
		}
	}
	return ids
}

func TestRingPartiallyFilled(t *testing.T) {
	r := NewRing[model.TradeRecord](5)
	for id := int64(1); id <= 3; id++ {
		r.Append(tradeAt(id))
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 5, r.Cap())
	assert.Equal(t, []int64{1, 2, 3}, collectIDs(r))
}

func TestRingOverwritesOldest(t *testing.T) {
	r := NewRing[model.TradeRecord](5)
	for id := int64(1); id <= 12; id++ {
		r.Append(tradeAt(id))
	}

	// Exactly the last 5 appends survive, oldest first.
	assert.Equal(t, 5, r.Len())
	assert.Equal(t, []int64{8, 9, 10, 11, 12}, collectIDs(r))
}

func TestRingExactlyFull(t *testing.T) {
	r := NewRing[model.TradeRecord](4)
	for id := int64(1); id <= 4; id++ {
		r.Append(tradeAt(id))
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, collectIDs(r))
}

func TestRingIterationEarlyStop(t *testing.T) {
	r := NewRing[model.TradeRecord](5)
	for id := int64(1); id <= 5; id++ {
		r.Append(tradeAt(id))
	}

	var got []int64
	for _, rec := range r.All() {
		got = append(got, rec.TradeID)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []int64{1, 2}, got)
}
