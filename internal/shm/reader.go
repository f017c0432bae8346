package shm

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"marketshm/internal/market"
	"marketshm/internal/model"
	"marketshm/internal/wire"
)

// Retry bounds for the defensive read paths.
const (
	// seqRetries bounds how often a read races a concurrent slot rewrite
	// before the slot is reported unstable.
	seqRetries = 4

	// resyncRetries bounds realignment attempts inside one slot after a
	// frame header with a foreign symbol name.
	resyncRetries = 8
)

// SlotStatus classifies the outcome of reading one symbol slot.
type SlotStatus string

const (
	StatusOK      SlotStatus = "ok"
	StatusNoData  SlotStatus = "no_data"
	StatusPartial SlotStatus = "partial" // decoded some frames, then stopped
	StatusCorrupt SlotStatus = "corrupt" // nothing trustworthy decoded
)

// Entry is one decoded frame. Exactly one of Trade and Kline is set,
// matching Header.Kind.
type Entry struct {
	Header wire.FrameHeader
	Trade  *model.TradeRecord
	Kline  *model.KlineRecord
}

// SlotData is the result of one read pass over a symbol's slot. Each call
// re-reads from the slot start; there is no read position carried between
// calls.
type SlotData struct {
	Symbol   string
	Status   SlotStatus
	Entries  []Entry
	Warnings []string
}

// RegionStats summarizes the region header for display.
type RegionStats struct {
	Path         string
	RegionSize   int
	HeaderSize   int
	DataOffset   int
	SlotSize     int
	SymbolCount  int
	Symbols      []string
	WriteCounter uint64
	LastUpdate   time.Time
}

// Age returns how long ago the publisher last stamped the region.
func (s RegionStats) Age() time.Duration {
	return time.Since(s.LastUpdate).Truncate(time.Millisecond)
}

// Reader maps a collector's region read-only and decodes symbol slots with
// full structural validation. It tolerates a concurrently writing publisher:
// torn reads are detected via the per-slot sequence word and retried.
type Reader struct {
	region *Region
	hdr    headerView
	log    *zap.Logger
}

// OpenReader maps the named region. ErrRegionNotFound when no collector has
// created it; ErrBadHeader when the mapped bytes are not a compatible region.
func OpenReader(dir, name string, log *zap.Logger) (*Reader, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	region, err := OpenRegion(dir, name)
	if err != nil {
		return nil, err
	}
	hdr := headerView{mem: region.Bytes()}
	if err := hdr.validate(); err != nil {
		region.Close()
		return nil, err
	}
	return &Reader{region: region, hdr: hdr, log: log}, nil
}

// Close unmaps the region. A reader never unlinks the backing file.
func (r *Reader) Close() error {
	return r.region.Close()
}

// Stats returns the current header contents.
func (r *Reader) Stats() RegionStats {
	return RegionStats{
		Path:         r.region.Path(),
		RegionSize:   r.region.Size(),
		HeaderSize:   wire.HeaderSize,
		DataOffset:   r.hdr.dataOffset(),
		SlotSize:     r.hdr.slotSize(),
		SymbolCount:  r.hdr.symbolCount(),
		Symbols:      r.hdr.symbols(),
		WriteCounter: r.hdr.writeCounter(),
		LastUpdate:   time.UnixMilli(r.hdr.lastUpdateMs()),
	}
}

// Symbols returns the region's symbol directory.
func (r *Reader) Symbols() []string {
	return r.hdr.symbols()
}

// ReadSymbol decodes up to maxRecords records for one symbol (0 = no limit).
// The lookup is case-insensitive. Structural trouble inside the slot is
// reported through SlotData, not as an error; errors are reserved for "this
// symbol is not in the directory" and defensive bounds failures.
func (r *Reader) ReadSymbol(symbol string, maxRecords int) (SlotData, error) {
	idx := -1
	for i := 0; i < r.hdr.symbolCount(); i++ {
		if strings.EqualFold(r.hdr.symbolAt(i), symbol) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return SlotData{}, fmt.Errorf("%w: %s", market.ErrUnknownSymbol, symbol)
	}

	name := r.hdr.symbolAt(idx)
	slot, err := r.hdr.slot(idx)
	if err != nil {
		return SlotData{}, err
	}

	out := SlotData{Symbol: name, Status: StatusCorrupt}

	for attempt := 0; attempt < seqRetries; attempt++ {
		seq1 := slot.seq()
		if seq1&1 == 1 {
			// Rewrite in progress; the publisher holds the slot only
			// briefly, so yield and retry rather than sleeping.
			runtime.Gosched()
			continue
		}

		n := slot.dataLen()
		if n == 0 {
			if slot.seq() != seq1 {
				continue
			}
			out.Status = StatusNoData
			return out, nil
		}
		if n > slot.capacity() {
			if slot.seq() != seq1 {
				continue
			}
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("declared size %d exceeds slot capacity %d", n, slot.capacity()))
			return out, nil
		}

		// Copy out, then verify the sequence: a changed word means the
		// publisher rewrote the slot underneath us and the copy may be torn.
		buf := make([]byte, n)
		copy(buf, slot.data()[:n])
		if slot.seq() != seq1 {
			continue
		}

		r.decodeSlot(&out, buf, name, maxRecords)
		if out.Status != StatusOK {
			r.log.Debug("slot_read_degraded",
				zap.String("symbol", name),
				zap.String("status", string(out.Status)),
				zap.Strings("warnings", out.Warnings))
		}
		return out, nil
	}

	out.Warnings = append(out.Warnings,
		fmt.Sprintf("slot unstable after %d read attempts", seqRetries))
	return out, nil
}

// ReadAll decodes up to maxRecords records for every symbol in directory
// order. Per-slot corruption stays isolated to that slot's SlotData.
func (r *Reader) ReadAll(maxRecords int) []SlotData {
	count := r.hdr.symbolCount()
	out := make([]SlotData, 0, count)
	for i := 0; i < count; i++ {
		data, err := r.ReadSymbol(r.hdr.symbolAt(i), maxRecords)
		if err != nil {
			data = SlotData{
				Symbol:   r.hdr.symbolAt(i),
				Status:   StatusCorrupt,
				Warnings: []string{err.Error()},
			}
		}
		out = append(out, data)
	}
	return out
}

// decodeSlot walks the frames in buf, validating every structural field
// before trusting it. It fills out.Entries and downgrades out.Status to
// partial/corrupt as trouble appears.
func (r *Reader) decodeSlot(out *SlotData, buf []byte, symbol string, maxRecords int) {
	cur := newCursor(buf)
	resyncs := 0

	for cur.remaining() > 0 {
		if maxRecords > 0 && len(out.Entries) >= maxRecords {
			break
		}

		if cur.remaining() < wire.FrameHeaderSize {
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("incomplete frame header, %d trailing bytes", cur.remaining()))
			break
		}
		hdr, _ := cur.readHeader()

		expected, known := wire.PayloadSize(hdr.Kind)
		if !known {
			// Misaligned or foreign bytes: realign and retry a bounded
			// number of times before giving up on the slot.
			resyncs++
			if resyncs > resyncRetries || !cur.resync() {
				out.Warnings = append(out.Warnings,
					fmt.Sprintf("unknown frame kind %d, giving up", hdr.Kind))
				break
			}
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("unknown frame kind %d, resynchronized", hdr.Kind))
			continue
		}

		if !strings.EqualFold(hdr.SymbolName(), symbol) {
			resyncs++
			if resyncs > resyncRetries || !cur.resync() {
				out.Warnings = append(out.Warnings,
					fmt.Sprintf("frame symbol %q does not match %q, giving up", hdr.SymbolName(), symbol))
				break
			}
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("frame symbol %q does not match %q, resynchronized", hdr.SymbolName(), symbol))
			continue
		}

		if int(hdr.Length) != expected {
			// A well-formed header lying about its payload size means the
			// slot bytes cannot be trusted past this point.
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("%s frame declares %d payload bytes, want %d", hdr.Kind, hdr.Length, expected))
			break
		}
		if cur.remaining() < expected {
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("truncated %s payload, %d of %d bytes", hdr.Kind, cur.remaining(), expected))
			break
		}

		// The remaining-bytes check above guarantees these reads succeed.
		switch hdr.Kind {
		case model.KindTrade:
			if rec, ok := cur.readTrade(); ok {
				out.Entries = append(out.Entries, Entry{Header: hdr, Trade: &rec})
			}
		case model.KindKline:
			if rec, ok := cur.readKline(); ok {
				out.Entries = append(out.Entries, Entry{Header: hdr, Kline: &rec})
			}
		}
	}

	switch {
	case len(out.Entries) == 0 && len(out.Warnings) > 0:
		out.Status = StatusCorrupt
	case len(out.Warnings) > 0:
		out.Status = StatusPartial
	default:
		out.Status = StatusOK
	}
}
