package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketshm/internal/market"
	"marketshm/internal/model"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	table, err := market.NewTable([]string{"BTCUSDT", "ETHUSDT"}, 10, nil, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, table.IngestTrade("BTCUSDT", model.TradeRecord{TradeID: 1, Price: 10000.0, Quantity: 0.5}))
	require.NoError(t, table.IngestTrade("BTCUSDT", model.TradeRecord{TradeID: 2, Price: 10001.5, Quantity: 0.25}))
	require.NoError(t, table.IngestKline("BTCUSDT", model.KlineRecord{OpenTime: 1, ClosePrice: 10001.5}))

	return NewServer(":0", table, zap.NewNop())
}

func doGet(s *Server, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHealth(t *testing.T) {
	rr := doGet(newTestServer(t), "/api/health")
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Empty(t, resp.Error)
}

func TestSymbols(t *testing.T) {
	rr := doGet(newTestServer(t), "/api/symbols")
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, resp.Data)
}

func TestStatus(t *testing.T) {
	rr := doGet(newTestServer(t), "/api/status")
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data struct {
			Symbols []SymbolStatus `json:"symbols"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Symbols, 2)

	btc := resp.Data.Symbols[0]
	assert.Equal(t, "BTCUSDT", btc.Symbol)
	assert.Equal(t, uint64(2), btc.Trades)
	assert.Equal(t, uint64(1), btc.Klines)
	assert.Equal(t, 2, btc.TradesBuffered)

	eth := resp.Data.Symbols[1]
	assert.Equal(t, uint64(0), eth.Messages)
}

func TestRecords(t *testing.T) {
	s := newTestServer(t)

	rr := doGet(s, "/api/records?symbol=btcusdt")
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data struct {
			Symbol string              `json:"symbol"`
			Trades []model.TradeRecord `json:"trades"`
			Klines []model.KlineRecord `json:"klines"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "BTCUSDT", resp.Data.Symbol)
	require.Len(t, resp.Data.Trades, 2)
	assert.Equal(t, int64(1), resp.Data.Trades[0].TradeID)
	assert.Len(t, resp.Data.Klines, 1)

	// Limit caps both kinds independently.
	rr = doGet(s, "/api/records?symbol=BTCUSDT&limit=1")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Trades, 1)
}

func TestRecordsErrors(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, doGet(s, "/api/records").Code)
	assert.Equal(t, http.StatusNotFound, doGet(s, "/api/records?symbol=DOGEUSDT").Code)
	assert.Equal(t, http.StatusBadRequest, doGet(s, "/api/records?symbol=BTCUSDT&limit=abc").Code)
}
