// Package model defines the record types shared across all collector modules.
package model

// Kind identifies the type of a market data record.
type Kind uint32

const (
	KindTrade Kind = 1
	KindKline Kind = 2
)

// String returns the lower-case stream name for the kind.
func (k Kind) String() string {
	switch k {
	case KindTrade:
		return "trade"
	case KindKline:
		return "kline"
	default:
		return "unknown"
	}
}

// TradeRecord is a single aggregated trade execution. Immutable once built.
// Timestamps are milliseconds since the Unix epoch.
type TradeRecord struct {
	EventTime    int64   `json:"eventTime"`
	TradeTime    int64   `json:"tradeTime"`
	Price        float64 `json:"price"`
	Quantity     float64 `json:"quantity"`
	TradeID      int64   `json:"tradeId"`
	IsBuyerMaker bool    `json:"isBuyerMaker"`
}

// KlineRecord is one interval-aggregated candlestick. Immutable once built.
// IsFinal marks the closing update of the interval; non-final updates for the
// same interval arrive repeatedly while the candle is still open.
type KlineRecord struct {
	OpenTime   int64   `json:"openTime"`
	CloseTime  int64   `json:"closeTime"`
	OpenPrice  float64 `json:"open"`
	ClosePrice float64 `json:"close"`
	HighPrice  float64 `json:"high"`
	LowPrice   float64 `json:"low"`
	Volume     float64 `json:"volume"`
	NumTrades  int64   `json:"numTrades"`
	IsFinal    bool    `json:"isFinal"`
}
