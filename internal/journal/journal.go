// Package journal persists every ingested record to per-symbol-per-kind
// append-only binary files. Records are stored in the same packed layout the
// shared region uses for frame payloads, without frame headers, so a file is
// a plain dense array of fixed-size records.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"marketshm/internal/model"
	"marketshm/internal/wire"
)

// symbolFiles holds the open trade and kline files for one symbol.
type symbolFiles struct {
	mu     sync.Mutex
	trades *os.File
	klines *os.File
}

// Writer is the durable sink for all tracked symbols. Files are created at
// startup under <dir>/<SYMBOL>/trades_<unix>.bin and klines_<unix>.bin;
// failure to create any of them is a startup failure, not a runtime one.
type Writer struct {
	files map[string]*symbolFiles
	log   *zap.Logger
}

// NewWriter creates the output directory tree and opens one trade and one
// kline file per symbol.
func NewWriter(dir string, symbols []string, log *zap.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: creating output directory %s: %w", dir, err)
	}

	w := &Writer{
		files: make(map[string]*symbolFiles, len(symbols)),
		log:   log,
	}
	now := time.Now().Unix()
	for _, symbol := range symbols {
		symDir := filepath.Join(dir, symbol)
		if err := os.MkdirAll(symDir, 0o755); err != nil {
			w.Close()
			return nil, fmt.Errorf("journal: creating directory for %s: %w", symbol, err)
		}

		trades, err := os.OpenFile(
			filepath.Join(symDir, fmt.Sprintf("trades_%d.bin", now)),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("journal: opening trade file for %s: %w", symbol, err)
		}
		klines, err := os.OpenFile(
			filepath.Join(symDir, fmt.Sprintf("klines_%d.bin", now)),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			trades.Close()
			w.Close()
			return nil, fmt.Errorf("journal: opening kline file for %s: %w", symbol, err)
		}

		w.files[symbol] = &symbolFiles{trades: trades, klines: klines}
		log.Info("journal_opened",
			zap.String("symbol", symbol),
			zap.String("dir", symDir))
	}
	return w, nil
}

// AppendTrade writes one packed trade record to the symbol's trade file.
func (w *Writer) AppendTrade(symbol string, rec model.TradeRecord) error {
	sf, ok := w.files[symbol]
	if !ok {
		return fmt.Errorf("journal: no files for symbol %s", symbol)
	}
	var buf [wire.TradeRecordSize]byte
	if err := wire.EncodeTrade(buf[:], rec); err != nil {
		return err
	}
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if _, err := sf.trades.Write(buf[:]); err != nil {
		return fmt.Errorf("journal: appending trade for %s: %w", symbol, err)
	}
	return nil
}

// AppendKline writes one packed kline record to the symbol's kline file.
func (w *Writer) AppendKline(symbol string, rec model.KlineRecord) error {
	sf, ok := w.files[symbol]
	if !ok {
		return fmt.Errorf("journal: no files for symbol %s", symbol)
	}
	var buf [wire.KlineRecordSize]byte
	if err := wire.EncodeKline(buf[:], rec); err != nil {
		return err
	}
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if _, err := sf.klines.Write(buf[:]); err != nil {
		return fmt.Errorf("journal: appending kline for %s: %w", symbol, err)
	}
	return nil
}

// Close flushes and closes every open file.
func (w *Writer) Close() error {
	var firstErr error
	for _, sf := range w.files {
		sf.mu.Lock()
		if sf.trades != nil {
			if err := sf.trades.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			sf.trades = nil
		}
		if sf.klines != nil {
			if err := sf.klines.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			sf.klines = nil
		}
		sf.mu.Unlock()
	}
	return firstErr
}

// ReadTrades loads up to maxRecords trade records from a journal file
// (0 = all). A trailing partial record is ignored.
func ReadTrades(path string, maxRecords int) ([]model.TradeRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("journal: reading %s: %w", path, err)
	}
	count := len(data) / wire.TradeRecordSize
	if maxRecords > 0 && count > maxRecords {
		count = maxRecords
	}
	out := make([]model.TradeRecord, 0, count)
	for i := 0; i < count; i++ {
		rec, err := wire.DecodeTrade(data[i*wire.TradeRecordSize:])
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReadKlines loads up to maxRecords kline records from a journal file
// (0 = all). A trailing partial record is ignored.
func ReadKlines(path string, maxRecords int) ([]model.KlineRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("journal: reading %s: %w", path, err)
	}
	count := len(data) / wire.KlineRecordSize
	if maxRecords > 0 && count > maxRecords {
		count = maxRecords
	}
	out := make([]model.KlineRecord, 0, count)
	for i := 0; i < count; i++ {
		rec, err := wire.DecodeKline(data[i*wire.KlineRecordSize:])
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}
