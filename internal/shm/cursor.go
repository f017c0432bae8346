package shm

import (
	"marketshm/internal/model"
	"marketshm/internal/wire"
)

// cursor walks frames inside a slot's data bytes. Every read is bounds
// checked; the raw offset arithmetic lives here and nowhere else.
type cursor struct {
	buf []byte
	off int
}

func newCursor(buf []byte) *cursor {
	return &cursor{buf: buf}
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.off
}

// readHeader decodes the frame header at the cursor and advances past it.
func (c *cursor) readHeader() (wire.FrameHeader, bool) {
	if c.remaining() < wire.FrameHeaderSize {
		return wire.FrameHeader{}, false
	}
	hdr, err := wire.DecodeFrameHeader(c.buf[c.off:])
	if err != nil {
		return wire.FrameHeader{}, false
	}
	c.off += wire.FrameHeaderSize
	return hdr, true
}

// readTrade decodes a trade payload at the cursor and advances past it.
func (c *cursor) readTrade() (model.TradeRecord, bool) {
	if c.remaining() < wire.TradeRecordSize {
		return model.TradeRecord{}, false
	}
	rec, err := wire.DecodeTrade(c.buf[c.off:])
	if err != nil {
		return model.TradeRecord{}, false
	}
	c.off += wire.TradeRecordSize
	return rec, true
}

// readKline decodes a kline payload at the cursor and advances past it.
func (c *cursor) readKline() (model.KlineRecord, bool) {
	if c.remaining() < wire.KlineRecordSize {
		return model.KlineRecord{}, false
	}
	rec, err := wire.DecodeKline(c.buf[c.off:])
	if err != nil {
		return model.KlineRecord{}, false
	}
	c.off += wire.KlineRecordSize
	return rec, true
}

// resync advances to the next 8-byte-aligned offset, skipping at least one
// byte so repeated resyncs always make progress. Returns false once the
// buffer is exhausted.
func (c *cursor) resync() bool {
	next := (c.off + 8) &^ 7
	if next >= len(c.buf) {
		c.off = len(c.buf)
		return false
	}
	c.off = next
	return true
}
