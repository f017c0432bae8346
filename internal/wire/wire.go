// Package wire defines the binary layout shared between the collector, the
// shared memory region, the journal files, and any external reader process.
//
// Everything here is a cross-process contract: field order, field widths and
// the little-endian byte order must not change without bumping Version.
package wire

import (
	"encoding/binary"
	"errors"
	"math"

	"marketshm/internal/model"
)

// Region layout constants.
const (
	// Magic identifies a region created by this collector.
	Magic = "MKTSHM\x00\x00"

	// Version of the region layout. Bump on any layout change.
	Version = uint32(1)

	// HeaderSize is the fixed size of the region header.
	HeaderSize = 256

	// MaxSymbols is the capacity of the header's symbol directory.
	MaxSymbols = 10

	// SymbolLen is the fixed width of a symbol name (15 chars + NUL).
	SymbolLen = 16
)

// Region header field offsets.
const (
	OffMagic        = 0x00 // [8]byte
	OffVersion      = 0x08 // uint32
	OffMaxSymbols   = 0x0C // uint32
	OffWriteCounter = 0x10 // uint64, atomic
	OffLastUpdate   = 0x18 // int64 ms epoch, atomic
	OffDataOffset   = 0x20 // uint64
	OffSlotSize     = 0x28 // uint64
	OffSymbolCount  = 0x30 // uint64
	OffSymbols      = 0x38 // [MaxSymbols][SymbolLen]byte
)

// Per-slot layout: a sequence word, the valid data length, then frames.
// The sequence word is odd while the publisher is rewriting the slot.
const (
	SlotSeqOff   = 0
	SlotLenOff   = 8
	SlotOverhead = 16
)

// Serialized sizes. The record layouts are packed: no alignment padding.
const (
	FrameHeaderSize = 32
	TradeRecordSize = 41
	KlineRecordSize = 65

	TradeFrameSize = FrameHeaderSize + TradeRecordSize
	KlineFrameSize = FrameHeaderSize + KlineRecordSize
)

var (
	// ErrShortBuffer reports a destination or source slice smaller than the
	// fixed serialized size.
	ErrShortBuffer = errors.New("wire: short buffer")

	// ErrBadKind reports a frame header kind outside the known set.
	ErrBadKind = errors.New("wire: unknown record kind")
)

// FrameHeader precedes every record in the shared memory slot data.
type FrameHeader struct {
	Kind       model.Kind
	Length     uint32
	ReceivedAt int64 // ms epoch, set when the record was ingested
	Symbol     [SymbolLen]byte
}

// NewFrameHeader builds a header for one record of the given kind.
// The symbol is truncated and NUL-padded to the fixed width.
func NewFrameHeader(kind model.Kind, symbol string, receivedAt int64) FrameHeader {
	h := FrameHeader{
		Kind:       kind,
		ReceivedAt: receivedAt,
		Symbol:     PadSymbol(symbol),
	}
	switch kind {
	case model.KindTrade:
		h.Length = TradeRecordSize
	case model.KindKline:
		h.Length = KlineRecordSize
	}
	return h
}

// SymbolName returns the header's symbol with NUL padding stripped.
func (h FrameHeader) SymbolName() string {
	return SymbolString(h.Symbol)
}

// PayloadSize returns the exact serialized record size for a kind.
func PayloadSize(kind model.Kind) (int, bool) {
	switch kind {
	case model.KindTrade:
		return TradeRecordSize, true
	case model.KindKline:
		return KlineRecordSize, true
	default:
		return 0, false
	}
}

// PadSymbol truncates and NUL-pads a symbol name to the fixed width.
// Names longer than SymbolLen-1 lose their tail; the final byte is always NUL.
func PadSymbol(name string) [SymbolLen]byte {
	var out [SymbolLen]byte
	copy(out[:SymbolLen-1], name)
	return out
}

// SymbolString strips NUL padding from a fixed-width symbol field.
func SymbolString(b [SymbolLen]byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b[:])
}

// EncodeFrameHeader writes h into dst, which must hold FrameHeaderSize bytes.
func EncodeFrameHeader(dst []byte, h FrameHeader) error {
	if len(dst) < FrameHeaderSize {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(dst[0:4], uint32(h.Kind))
	binary.LittleEndian.PutUint32(dst[4:8], h.Length)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(h.ReceivedAt))
	copy(dst[16:32], h.Symbol[:])
	return nil
}

// DecodeFrameHeader parses a frame header from src. It validates only the
// buffer length; structural checks (kind, payload length) are the caller's.
func DecodeFrameHeader(src []byte) (FrameHeader, error) {
	var h FrameHeader
	if len(src) < FrameHeaderSize {
		return h, ErrShortBuffer
	}
	h.Kind = model.Kind(binary.LittleEndian.Uint32(src[0:4]))
	h.Length = binary.LittleEndian.Uint32(src[4:8])
	h.ReceivedAt = int64(binary.LittleEndian.Uint64(src[8:16]))
	copy(h.Symbol[:], src[16:32])
	return h, nil
}

// EncodeTrade writes r into dst, which must hold TradeRecordSize bytes.
func EncodeTrade(dst []byte, r model.TradeRecord) error {
	if len(dst) < TradeRecordSize {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint64(dst[0:8], uint64(r.EventTime))
	binary.LittleEndian.PutUint64(dst[8:16], uint64(r.TradeTime))
	binary.LittleEndian.PutUint64(dst[16:24], math.Float64bits(r.Price))
	binary.LittleEndian.PutUint64(dst[24:32], math.Float64bits(r.Quantity))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(r.TradeID))
	dst[40] = boolByte(r.IsBuyerMaker)
	return nil
}

// DecodeTrade parses a trade record from src.
func DecodeTrade(src []byte) (model.TradeRecord, error) {
	var r model.TradeRecord
	if len(src) < TradeRecordSize {
		return r, ErrShortBuffer
	}
	r.EventTime = int64(binary.LittleEndian.Uint64(src[0:8]))
	r.TradeTime = int64(binary.LittleEndian.Uint64(src[8:16]))
	r.Price = math.Float64frombits(binary.LittleEndian.Uint64(src[16:24]))
	r.Quantity = math.Float64frombits(binary.LittleEndian.Uint64(src[24:32]))
	r.TradeID = int64(binary.LittleEndian.Uint64(src[32:40]))
	r.IsBuyerMaker = src[40] != 0
	return r, nil
}

// EncodeKline writes r into dst, which must hold KlineRecordSize bytes.
func EncodeKline(dst []byte, r model.KlineRecord) error {
	if len(dst) < KlineRecordSize {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint64(dst[0:8], uint64(r.OpenTime))
	binary.LittleEndian.PutUint64(dst[8:16], uint64(r.CloseTime))
	binary.LittleEndian.PutUint64(dst[16:24], math.Float64bits(r.OpenPrice))
	binary.LittleEndian.PutUint64(dst[24:32], math.Float64bits(r.ClosePrice))
	binary.LittleEndian.PutUint64(dst[32:40], math.Float64bits(r.HighPrice))
	binary.LittleEndian.PutUint64(dst[40:48], math.Float64bits(r.LowPrice))
	binary.LittleEndian.PutUint64(dst[48:56], math.Float64bits(r.Volume))
	binary.LittleEndian.PutUint64(dst[56:64], uint64(r.NumTrades))
	dst[64] = boolByte(r.IsFinal)
	return nil
}

// DecodeKline parses a kline record from src.
func DecodeKline(src []byte) (model.KlineRecord, error) {
	var r model.KlineRecord
	if len(src) < KlineRecordSize {
		return r, ErrShortBuffer
	}
	r.OpenTime = int64(binary.LittleEndian.Uint64(src[0:8]))
	r.CloseTime = int64(binary.LittleEndian.Uint64(src[8:16]))
	r.OpenPrice = math.Float64frombits(binary.LittleEndian.Uint64(src[16:24]))
	r.ClosePrice = math.Float64frombits(binary.LittleEndian.Uint64(src[24:32]))
	r.HighPrice = math.Float64frombits(binary.LittleEndian.Uint64(src[32:40]))
	r.LowPrice = math.Float64frombits(binary.LittleEndian.Uint64(src[40:48]))
	r.Volume = math.Float64frombits(binary.LittleEndian.Uint64(src[48:56]))
	r.NumTrades = int64(binary.LittleEndian.Uint64(src[56:64]))
	r.IsFinal = src[64] != 0
	return r, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
