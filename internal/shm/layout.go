// Package shm implements the shared memory publish/consume subsystem: the
// region layout, the periodic snapshot publisher, and the defensive reader.
package shm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"marketshm/internal/wire"
)

var (
	// ErrBadHeader reports a region whose header fails validation.
	ErrBadHeader = errors.New("shm: invalid region header")

	// ErrOutOfBounds reports a slot offset outside the mapped region.
	ErrOutOfBounds = errors.New("shm: slot offset out of bounds")
)

// Layout describes where the symbol slots live inside a region.
type Layout struct {
	RegionSize int
	DataOffset int
	SlotSize   int
	Symbols    []string
}

// ComputeLayout derives a layout for the given symbols. slotSize of zero
// means "divide the space after the header evenly"; either way the slot size
// is rounded down to 8 bytes so the per-slot sequence word stays aligned.
func ComputeLayout(regionSize, slotSize int, symbols []string) (Layout, error) {
	if len(symbols) == 0 || len(symbols) > wire.MaxSymbols {
		return Layout{}, fmt.Errorf("shm: symbol count %d outside 1..%d", len(symbols), wire.MaxSymbols)
	}
	if slotSize == 0 {
		slotSize = (regionSize - wire.HeaderSize) / wire.MaxSymbols
	}
	slotSize &^= 7
	if slotSize < wire.SlotOverhead+wire.TradeFrameSize {
		return Layout{}, fmt.Errorf("shm: slot size %d cannot hold a single frame", slotSize)
	}
	need := wire.HeaderSize + len(symbols)*slotSize
	if need > regionSize {
		return Layout{}, fmt.Errorf("shm: region size %d too small for %d slots of %d bytes", regionSize, len(symbols), slotSize)
	}
	return Layout{
		RegionSize: regionSize,
		DataOffset: wire.HeaderSize,
		SlotSize:   slotSize,
		Symbols:    symbols,
	}, nil
}

// headerView gives typed access to the region header over the mapped bytes.
// Counter fields are accessed atomically; the static fields are written once
// by the owner before any reader can observe meaningful data.
type headerView struct {
	mem []byte
}

func (h headerView) u64ptr(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&h.mem[off]))
}

// init writes the full header for a freshly created region.
func (h headerView) init(l Layout, nowMs int64) {
	copy(h.mem[wire.OffMagic:wire.OffMagic+8], wire.Magic)
	binary.LittleEndian.PutUint32(h.mem[wire.OffVersion:], wire.Version)
	binary.LittleEndian.PutUint32(h.mem[wire.OffMaxSymbols:], wire.MaxSymbols)
	binary.LittleEndian.PutUint64(h.mem[wire.OffDataOffset:], uint64(l.DataOffset))
	binary.LittleEndian.PutUint64(h.mem[wire.OffSlotSize:], uint64(l.SlotSize))
	binary.LittleEndian.PutUint64(h.mem[wire.OffSymbolCount:], uint64(len(l.Symbols)))
	for i, name := range l.Symbols {
		padded := wire.PadSymbol(name)
		copy(h.mem[wire.OffSymbols+i*wire.SymbolLen:], padded[:])
	}
	atomic.StoreUint64(h.u64ptr(wire.OffWriteCounter), 0)
	atomic.StoreUint64(h.u64ptr(wire.OffLastUpdate), uint64(nowMs))
}

// validate checks magic, version and structural consistency. Reader-side
// defense: a header that fails here is untrustworthy and no slot is parsed.
func (h headerView) validate() error {
	if len(h.mem) < wire.HeaderSize {
		return fmt.Errorf("%w: region smaller than header (%d bytes)", ErrBadHeader, len(h.mem))
	}
	if string(h.mem[wire.OffMagic:wire.OffMagic+8]) != wire.Magic {
		return fmt.Errorf("%w: bad magic", ErrBadHeader)
	}
	if v := binary.LittleEndian.Uint32(h.mem[wire.OffVersion:]); v != wire.Version {
		return fmt.Errorf("%w: layout version %d, want %d", ErrBadHeader, v, wire.Version)
	}
	count := h.symbolCount()
	if count == 0 || count > wire.MaxSymbols {
		return fmt.Errorf("%w: symbol count %d", ErrBadHeader, count)
	}
	dataOff, slotSize := h.dataOffset(), h.slotSize()
	if dataOff < wire.HeaderSize || slotSize < wire.SlotOverhead {
		return fmt.Errorf("%w: data offset %d / slot size %d", ErrBadHeader, dataOff, slotSize)
	}
	if dataOff+count*slotSize > len(h.mem) {
		return fmt.Errorf("%w: %d slots of %d bytes exceed region size %d", ErrBadHeader, count, slotSize, len(h.mem))
	}
	return nil
}

func (h headerView) writeCounter() uint64 {
	return atomic.LoadUint64(h.u64ptr(wire.OffWriteCounter))
}

func (h headerView) bumpWriteCounter() {
	atomic.AddUint64(h.u64ptr(wire.OffWriteCounter), 1)
}

func (h headerView) lastUpdateMs() int64 {
	return int64(atomic.LoadUint64(h.u64ptr(wire.OffLastUpdate)))
}

func (h headerView) setLastUpdateMs(ms int64) {
	atomic.StoreUint64(h.u64ptr(wire.OffLastUpdate), uint64(ms))
}

func (h headerView) dataOffset() int {
	return int(binary.LittleEndian.Uint64(h.mem[wire.OffDataOffset:]))
}

func (h headerView) slotSize() int {
	return int(binary.LittleEndian.Uint64(h.mem[wire.OffSlotSize:]))
}

func (h headerView) symbolCount() int {
	return int(binary.LittleEndian.Uint64(h.mem[wire.OffSymbolCount:]))
}

func (h headerView) symbolAt(i int) string {
	var name [wire.SymbolLen]byte
	copy(name[:], h.mem[wire.OffSymbols+i*wire.SymbolLen:])
	return wire.SymbolString(name)
}

func (h headerView) symbols() []string {
	out := make([]string, h.symbolCount())
	for i := range out {
		out[i] = h.symbolAt(i)
	}
	return out
}

// slotView gives seqlock-guarded access to one symbol slot.
type slotView struct {
	mem []byte // the full slot: seq, length, frames
}

// slot bounds-checks and returns a view of slot i.
func (h headerView) slot(i int) (slotView, error) {
	off := h.dataOffset() + i*h.slotSize()
	end := off + h.slotSize()
	if off < 0 || end > len(h.mem) || off+wire.SlotOverhead > len(h.mem) {
		return slotView{}, fmt.Errorf("%w: slot %d at offset %d", ErrOutOfBounds, i, off)
	}
	return slotView{mem: h.mem[off:end]}, nil
}

func (s slotView) seqPtr() *uint64 {
	return (*uint64)(unsafe.Pointer(&s.mem[wire.SlotSeqOff]))
}

func (s slotView) seq() uint64 {
	return atomic.LoadUint64(s.seqPtr())
}

// beginWrite marks the slot as mid-rewrite (odd sequence).
func (s slotView) beginWrite() {
	atomic.AddUint64(s.seqPtr(), 1)
}

// endWrite publishes the rewrite (even sequence).
func (s slotView) endWrite() {
	atomic.AddUint64(s.seqPtr(), 1)
}

func (s slotView) dataLen() int {
	return int(binary.LittleEndian.Uint64(s.mem[wire.SlotLenOff:]))
}

func (s slotView) setDataLen(n int) {
	binary.LittleEndian.PutUint64(s.mem[wire.SlotLenOff:], uint64(n))
}

// data returns the frame bytes area (everything after the slot overhead).
func (s slotView) data() []byte {
	return s.mem[wire.SlotOverhead:]
}

// capacity returns the usable frame byte capacity of the slot.
func (s slotView) capacity() int {
	return len(s.mem) - wire.SlotOverhead
}
