package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/presets"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/signal"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/snapshot"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/storage"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/toplist"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/indicator"
)

const testSecret = "test-secret-key"

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type stubDatasets struct {
	ds      *models.Dataset
	err     error
	reloads int
}

func (s *stubDatasets) Get(ctx context.Context) (*models.Dataset, error) {
	return s.ds, s.err
}

func (s *stubDatasets) Reload(ctx context.Context) (*models.Dataset, error) {
	s.reloads++
	return s.ds, s.err
}

func bars(start time.Time, closes ...float64) []models.PriceBar {
	out := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		out[i] = models.PriceBar{Date: start.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1000}
	}
	return out
}

// testDataset: VNM is flat then jumps on the last bar, FPT drifts lower
func testDataset() *models.Dataset {
	vnm := make([]float64, 30)
	fpt := make([]float64, 30)
	for i := range vnm {
		vnm[i] = 70
		fpt[i] = 100 - float64(i)
	}
	vnm[29] = 80

	ds := models.NewDataset(map[string]*models.InstrumentSeries{
		"VNM": {Code: "VNM", Bars: bars(day0, vnm...)},
		"FPT": {Code: "FPT", Bars: bars(day0, fpt...)},
	}, map[string]models.Instrument{
		"VNM": {Code: "VNM", Name: "Vinamilk", Sector: "Food"},
		"FPT": {Code: "FPT", Name: "FPT Corp", Sector: "Technology"},
	})
	ds.MarketCaps = []models.MarketCapRow{
		{Code: "VNM", Sector: "Food", Date: day0, Cap: decimal.NewFromInt(150000)},
		{Code: "FPT", Sector: "Technology", Date: day0, Cap: decimal.NewFromInt(120000)},
	}
	ds.ForeignFlows = []models.ForeignFlowRow{
		{Code: "VNM", Date: day0, NetValue: 500, Close: 70},
		{Code: "VNM", Date: day0.AddDate(0, 0, 1), NetValue: -200, Close: 70},
	}
	return ds
}

type testServer struct {
	handler  http.Handler
	datasets *stubDatasets
	redis    *storage.MockRedisClient
}

func newTestServer(t *testing.T, cfg RouterConfig) *testServer {
	t.Helper()

	set, err := presets.Defaults()
	require.NoError(t, err)

	datasets := &stubDatasets{ds: testDataset()}
	engine := indicator.NewEngine(nil)
	detector := signal.NewDetector(nil)
	redis := storage.NewMockRedisClient()

	handlers := Handlers{
		Instruments: NewInstrumentHandler(datasets, engine, detector, set),
		Snapshots: NewSnapshotHandler(datasets, snapshot.NewAggregator(engine, detector), set, snapshot.DefaultOptions(),
			toplist.NewRedisSnapshotPublisher(redis, time.Hour), toplist.NewRankingService(redis)),
		Market:  NewMarketHandler(datasets),
		Catalog: NewCatalogHandler(engine, detector, set),
		Admin:   NewAdminHandler(datasets),
	}
	if cfg.Auth == nil {
		cfg.Auth = NewAuthManager(testSecret)
	}
	return &testServer{handler: NewRouter(handlers, cfg), datasets: datasets, redis: redis}
}

func (s *testServer) do(t *testing.T, method, target, token string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w.Code, body
}

func TestProbes(t *testing.T) {
	s := newTestServer(t, RouterConfig{})

	code, body := s.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	code, _ = s.do(t, "GET", "/live", "")
	assert.Equal(t, http.StatusOK, code)

	notReady := newTestServer(t, RouterConfig{Ready: func(context.Context) error { return errors.New("loading") }})
	code, body = notReady.do(t, "GET", "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "loading", body["error"])
}

func TestListInstruments(t *testing.T) {
	s := newTestServer(t, RouterConfig{})

	code, body := s.do(t, "GET", "/api/v1/instruments", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2.0, body["count"])

	_, body = s.do(t, "GET", "/api/v1/instruments?search=vina", "")
	require.Equal(t, 1.0, body["count"])
	first := body["instruments"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "VNM", first["code"])

	s.datasets.err = errors.New("not loaded")
	code, _ = s.do(t, "GET", "/api/v1/instruments", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestGetSeries(t *testing.T) {
	s := newTestServer(t, RouterConfig{})

	code, body := s.do(t, "GET", "/api/v1/instruments/vnm/series?from=2024-01-05&to=2024-01-09", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "VNM", body["code"])
	assert.Equal(t, 5.0, body["count"])

	code, body = s.do(t, "GET", "/api/v1/instruments/XXX/series", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, unknownInstrumentMessage, body["message"])
	assert.Empty(t, body["bars"])

	code, _ = s.do(t, "GET", "/api/v1/instruments/VNM/series?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, "GET", "/api/v1/instruments/VNM/series?from=2024-01-09&to=2024-01-05", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGetIndicators(t *testing.T) {
	s := newTestServer(t, RouterConfig{})

	code, body := s.do(t, "GET", "/api/v1/instruments/FPT/indicators?ind=sma:5&from=2024-01-02&to=2024-01-03", "")
	require.Equal(t, http.StatusOK, code)

	indicators := body["indicators"].(map[string]interface{})
	sma := indicators["sma_5"].([]interface{})
	require.Len(t, sma, 2)
	// fewer than five bars exist at the start of the range
	assert.Nil(t, sma[0])
	assert.Nil(t, sma[1])

	_, body = s.do(t, "GET", "/api/v1/instruments/FPT/indicators?ind=sma:5&from=2024-01-10&to=2024-01-10", "")
	sma = body["indicators"].(map[string]interface{})["sma_5"].([]interface{})
	require.Len(t, sma, 1)
	// closes 95..91 on Jan 6..10; four of them precede the range
	assert.InDelta(t, 93.0, sma[0], 1e-9)

	_, body = s.do(t, "GET", "/api/v1/instruments/FPT/indicators?preset=momentum", "")
	indicators = body["indicators"].(map[string]interface{})
	assert.Contains(t, indicators, "rsi_14")
	assert.Contains(t, indicators, "macd_hist")

	code, _ = s.do(t, "GET", "/api/v1/instruments/FPT/indicators?ind=vwap", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, "GET", "/api/v1/instruments/FPT/indicators?preset=nope", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGetSignals(t *testing.T) {
	s := newTestServer(t, RouterConfig{})

	code, body := s.do(t, "GET", "/api/v1/instruments/VNM/signals?rule=price_ma_cross:sma:5", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, body["count"])

	sig := body["signals"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "price_ma_cross:sma:5", sig["kind"])
	assert.Equal(t, "buy", sig["direction"])

	_, body = s.do(t, "GET", "/api/v1/instruments/VNM/signals?rule=price_ma_cross:sma:5&to=2024-01-20", "")
	assert.Equal(t, 0.0, body["count"])

	_, body = s.do(t, "GET", "/api/v1/instruments/VNM/signals", "")
	assert.Len(t, body["rules"], len(signal.DefaultRules()))

	code, _ = s.do(t, "GET", "/api/v1/instruments/VNM/signals?rule=moon_phase", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestGetSnapshot(t *testing.T) {
	s := newTestServer(t, RouterConfig{})

	code, body := s.do(t, "GET", "/api/v1/snapshot", "")
	require.Equal(t, http.StatusOK, code)
	rows := body["rows"].([]interface{})
	require.Len(t, rows, 2)
	assert.Equal(t, "VNM", rows[0].(map[string]interface{})["code"])

	_, body = s.do(t, "GET", "/api/v1/snapshot?order=asc&limit=1&rule=price_ma_cross:sma:5", "")
	rows = body["rows"].([]interface{})
	require.Len(t, rows, 1)
	assert.Equal(t, "FPT", rows[0].(map[string]interface{})["code"])

	// five prior bars only
	_, body = s.do(t, "GET", "/api/v1/snapshot?date=2024-01-06", "")
	assert.Empty(t, body["rows"])
	assert.Len(t, body["excluded"], 2)

	code, _ = s.do(t, "GET", "/api/v1/snapshot?sort=bogus", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPublishAndRankings(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	token, err := NewAuthManager(testSecret).IssueToken("ops", time.Hour)
	require.NoError(t, err)

	code, _ := s.do(t, "POST", "/api/v1/admin/snapshot/publish?metric=change_pct", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := s.do(t, "POST", "/api/v1/admin/snapshot/publish?metric=change_pct", token)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2.0, body["rows"])
	require.Len(t, s.redis.Published, 1)
	assert.Equal(t, toplist.SnapshotUpdateChannel, s.redis.Published[0].Channel)

	code, body = s.do(t, "GET", "/api/v1/snapshot/rankings?metric=change_pct", "")
	require.Equal(t, http.StatusOK, code)
	rankings := body["rankings"].([]interface{})
	require.Len(t, rankings, 2)
	top := rankings[0].(map[string]interface{})
	assert.Equal(t, "VNM", top["code"])
	assert.Equal(t, 1.0, top["rank"])

	code, _ = s.do(t, "GET", "/api/v1/snapshot/rankings?metric=code", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCatalog(t *testing.T) {
	s := newTestServer(t, RouterConfig{})

	code, body := s.do(t, "GET", "/api/v1/catalog", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body["indicators"], "sma")
	assert.Contains(t, body["rules"], "psar_ma_trend")
	assert.Contains(t, body["default_indicators"], "bollinger:20:2")
	assert.Len(t, body["presets"], 5)
}

func TestMarketEndpoints(t *testing.T) {
	s := newTestServer(t, RouterConfig{})

	code, body := s.do(t, "GET", "/api/v1/market/sectors?top=1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2024-01-01", body["date"])
	sectors := body["sectors"].([]interface{})
	require.Len(t, sectors, 2)
	assert.Equal(t, "Food", sectors[0].(map[string]interface{})["sector"])
	assert.Len(t, body["top"], 1)

	code, body = s.do(t, "GET", "/api/v1/market/breadth?ma=5&from=2024-01-10&to=2024-01-11", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2.0, body["count"])

	code, _ = s.do(t, "GET", "/api/v1/market/breadth?ma=0", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, "GET", "/api/v1/market/foreign/vnm", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, body["buy_days"])
	assert.Equal(t, 1.0, body["sell_days"])

	code, body = s.do(t, "GET", "/api/v1/market/foreign/FPT", "")
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body["message"])
}

func TestAdminReload(t *testing.T) {
	s := newTestServer(t, RouterConfig{})
	token, err := NewAuthManager(testSecret).IssueToken("ops", time.Hour)
	require.NoError(t, err)

	code, _ := s.do(t, "POST", "/api/v1/admin/reload", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, 0, s.datasets.reloads)

	code, body := s.do(t, "POST", "/api/v1/admin/reload", token)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2.0, body["instruments"])
	assert.NotEmpty(t, body["reload_id"])
	assert.Equal(t, 1, s.datasets.reloads)

	s.datasets.err = errors.New("disk full")
	code, _ = s.do(t, "POST", "/api/v1/admin/reload", token)
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestAdminRoutes_RejectWithoutSecret(t *testing.T) {
	s := newTestServer(t, RouterConfig{Auth: NewAuthManager("")})

	for _, token := range []string{"", "not-a-jwt"} {
		code, _ := s.do(t, "POST", "/api/v1/admin/reload", token)
		assert.Equal(t, http.StatusUnauthorized, code)
		code, _ = s.do(t, "POST", "/api/v1/admin/snapshot/publish", token)
		assert.Equal(t, http.StatusUnauthorized, code)
	}
	assert.Equal(t, 0, s.datasets.reloads)
	assert.Empty(t, s.redis.Published)

	// public routes stay open
	code, _ := s.do(t, "GET", "/api/v1/catalog", "not-a-jwt")
	assert.Equal(t, http.StatusOK, code)
}

func TestRouter_AuthRequiredAndRateLimit(t *testing.T) {
	s := newTestServer(t, RouterConfig{AuthRequired: true, RateLimitRPS: 1, RateLimitBurst: 1})

	code, _ := s.do(t, "GET", "/api/v1/catalog", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	token, err := NewAuthManager(testSecret).IssueToken("ops", time.Hour)
	require.NoError(t, err)

	code, _ = s.do(t, "GET", "/api/v1/catalog", token)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, "GET", "/api/v1/catalog", token)
	assert.Equal(t, http.StatusTooManyRequests, code)
}
