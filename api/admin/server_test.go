package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap/zaptest"

	"tachyon/domain/exchange"
	"tachyon/domain/orderbook"
	"tachyon/infra/metrics"
	"tachyon/service"
)

type fakeDepth map[exchange.TickerID]*service.BookDepth

func (f fakeDepth) Load(t exchange.TickerID) (*service.BookDepth, bool) {
	d, ok := f[t]
	return d, ok
}

func (fakeDepth) Tickers() int { return 4 }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := metrics.NewRegistry()
	metrics.NewGateway(reg).Accepted.Inc()

	depth := fakeDepth{
		2: {
			Ticker: 2,
			Bids: []orderbook.LevelInfo{
				{Price: 10050, Qty: 30, Orders: 2},
				{Price: 10049, Qty: 5, Orders: 1},
			},
			Asks:      []orderbook.LevelInfo{{Price: 10051, Qty: 7, Orders: 1}},
			Orders:    4,
			Processed: 19,
		},
	}
	return New(Config{TickSize: decimal.RequireFromString("0.01")}, depth, reg, zaptest.NewLogger(t))
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(t), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, sonnet.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestMetrics(t *testing.T) {
	rec := get(t, newTestServer(t), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tachyon_gateway_submits_total{result="accepted"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestGetBook(t *testing.T) {
	rec := get(t, newTestServer(t), "/books/2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body bookView
	require.NoError(t, sonnet.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, uint32(2), body.Ticker)
	assert.Equal(t, 4, body.Orders)
	assert.Equal(t, uint64(19), body.Processed)
	require.Len(t, body.Bids, 2)
	require.Len(t, body.Asks, 1)
	assert.True(t, decimal.RequireFromString("100.50").Equal(body.Bids[0].Price), body.Bids[0].Price.String())
	assert.Equal(t, uint64(30), body.Bids[0].Qty)
	assert.Equal(t, 2, body.Bids[0].Orders)
	assert.True(t, decimal.RequireFromString("100.51").Equal(body.Asks[0].Price))
	assert.Contains(t, rec.Body.String(), `"price":"100.5"`)
}

func TestGetBook_Levels(t *testing.T) {
	rec := get(t, newTestServer(t), "/books/2?levels=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body bookView
	require.NoError(t, sonnet.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Bids, 1)
	assert.Len(t, body.Asks, 1)
}

func TestGetBook_Errors(t *testing.T) {
	s := newTestServer(t)
	cases := []struct {
		path string
		code int
	}{
		{"/books/1", http.StatusNotFound},
		{"/books/99", http.StatusNotFound},
		{"/books/99999999999", http.StatusBadRequest},
		{"/books/2?levels=0", http.StatusBadRequest},
		{"/books/2?levels=x", http.StatusBadRequest},
		{"/books/abc", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.code, get(t, s, tc.path).Code)
		})
	}
}

func TestListBooks(t *testing.T) {
	rec := get(t, newTestServer(t), "/books")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tickers []uint32 `json:"tickers"`
	}
	require.NoError(t, sonnet.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []uint32{2}, body.Tickers)
}

func TestMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(t).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
