package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/indicator"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func seriesFrom(code string, offset int, closes ...float64) *models.InstrumentSeries {
	bars := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = models.PriceBar{
			Date:   day0.AddDate(0, 0, offset+i),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000 * float64(i+1),
		}
	}
	return &models.InstrumentSeries{Code: code, Bars: bars}
}

func ramp(from, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + step*float64(i)
	}
	return out
}

// testDataset: AAA rises, BBB falls, CCC has only 3 bars before the last
// date, DDD stops trading two days early
func testDataset() *models.Dataset {
	series := map[string]*models.InstrumentSeries{
		"AAA": seriesFrom("AAA", 0, ramp(10, 1, 30)...),
		"BBB": seriesFrom("BBB", 0, ramp(60, -1, 30)...),
		"CCC": seriesFrom("CCC", 26, 5, 6, 7, 8),
		"DDD": seriesFrom("DDD", 0, ramp(20, 0.5, 28)...),
	}
	instruments := map[string]models.Instrument{
		"AAA": {Code: "AAA", Name: "Alpha", Sector: "Banks"},
	}
	return models.NewDataset(series, instruments)
}

func lastDay() time.Time {
	return day0.AddDate(0, 0, 29)
}

func TestBuild_ExcludesShortHistory(t *testing.T) {
	agg := NewAggregator(nil, nil)

	table, err := agg.Build(context.Background(), testDataset(), lastDay(), Options{})
	require.NoError(t, err)

	codes := make([]string, 0, len(table.Rows))
	for _, r := range table.Rows {
		codes = append(codes, r.Code)
	}
	assert.Equal(t, []string{"AAA", "BBB"}, codes)

	require.Len(t, table.Excluded, 2)
	assert.Equal(t, models.ExcludedInstrument{Code: "CCC", Reason: "insufficient_history"}, table.Excluded[0])
	assert.Equal(t, models.ExcludedInstrument{Code: "DDD", Reason: "insufficient_history"}, table.Excluded[1])
}

func TestBuild_RowValues(t *testing.T) {
	agg := NewAggregator(nil, nil)

	table, err := agg.Build(context.Background(), testDataset(), lastDay(), Options{SortKey: models.SortByCode, Order: models.SortOrderAsc})
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)

	aaa := table.Rows[0]
	assert.Equal(t, "AAA", aaa.Code)
	assert.Equal(t, "Alpha", aaa.Name)
	assert.Equal(t, "Banks", aaa.Sector)
	assert.Equal(t, lastDay(), aaa.Date)
	assert.Equal(t, 39.0, aaa.Close)
	assert.Equal(t, 38.0, aaa.PrevClose)
	assert.InDelta(t, 100.0/38.0, aaa.ChangePct.V, 1e-9)

	// SMA(20) over closes 20..39
	sma20 := aaa.Indicators[models.Key(models.KindSMA, 20)]
	require.True(t, sma20.Defined)
	assert.InDelta(t, 29.5, sma20.V, 1e-9)

	// windows longer than the history stay undefined
	assert.False(t, aaa.Indicators[models.Key(models.KindSMA, 50)].Defined)

	rsi := aaa.Indicators[models.Key(models.KindRSI, 14)]
	require.True(t, rsi.Defined)
	assert.InDelta(t, 100, rsi.V, 1e-9)
}

func TestBuild_SortOrders(t *testing.T) {
	agg := NewAggregator(nil, nil)
	ds := testDataset()
	ctx := context.Background()

	desc, err := agg.Build(ctx, ds, lastDay(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "AAA", desc.Rows[0].Code)
	assert.Equal(t, models.SortByChangePct, desc.SortKey)
	assert.Equal(t, models.SortOrderDesc, desc.Order)

	asc, err := agg.Build(ctx, ds, lastDay(), Options{Order: models.SortOrderAsc})
	require.NoError(t, err)
	assert.Equal(t, "BBB", asc.Rows[0].Code)

	byRSI, err := agg.Build(ctx, ds, lastDay(), Options{SortKey: "rsi_14", Limit: 1})
	require.NoError(t, err)
	require.Len(t, byRSI.Rows, 1)
	assert.Equal(t, "AAA", byRSI.Rows[0].Code)
}

func TestBuild_EarlierTargetUsesNoLaterBars(t *testing.T) {
	agg := NewAggregator(nil, nil)
	target := day0.AddDate(0, 0, 10)

	table, err := agg.Build(context.Background(), testDataset(), target, Options{Codes: []string{"aaa"}})
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)

	row := table.Rows[0]
	assert.Equal(t, 20.0, row.Close)
	assert.Equal(t, target, row.Date)
	// 11 bars are available, so SMA(20) cannot be defined yet
	assert.False(t, row.Indicators[models.Key(models.KindSMA, 20)].Defined)
}

func TestBuild_ZeroTargetUsesLatestDate(t *testing.T) {
	table, err := NewAggregator(nil, nil).Build(context.Background(), testDataset(), time.Time{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, lastDay(), table.Date)
}

func TestBuild_SignalsOnTargetBar(t *testing.T) {
	// flat then a jump on the last bar: close crosses above SMA(5)
	closes := append(ramp(10, 0, 19), 20)
	ds := models.NewDataset(map[string]*models.InstrumentSeries{
		"JMP": seriesFrom("JMP", 0, closes...),
	}, nil)

	opts := Options{
		Indicators: []indicator.Request{{Kind: "sma", Params: []float64{5}}},
		Rules:      []string{"price_ma_cross:sma:5"},
	}
	table, err := NewAggregator(nil, nil).Build(context.Background(), ds, day0.AddDate(0, 0, 19), opts)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)

	row := table.Rows[0]
	require.Len(t, row.Signals, 1)
	assert.Equal(t, "price_ma_cross:sma:5", row.Signals[0].Kind)
	assert.Equal(t, models.DirectionBuy, row.Signals[0].Direction)
	assert.Equal(t, day0.AddDate(0, 0, 19), row.Signals[0].Date)
}

func TestBuild_Errors(t *testing.T) {
	agg := NewAggregator(nil, nil)
	ctx := context.Background()

	_, err := agg.Build(ctx, testDataset(), lastDay(), Options{SortKey: "foo_bar"})
	assert.True(t, errors.Is(err, models.ErrInvalidSortKey))

	_, err = agg.Build(ctx, testDataset(), lastDay(), Options{Order: "sideways"})
	assert.True(t, errors.Is(err, models.ErrInvalidSortKey))

	_, err = agg.Build(ctx, testDataset(), lastDay(), Options{Rules: []string{"nope"}})
	assert.True(t, errors.Is(err, models.ErrUnknownRule))

	_, err = agg.Build(ctx, nil, lastDay(), Options{})
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = agg.Build(cancelled, testDataset(), lastDay(), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuild_UnknownCodeExcluded(t *testing.T) {
	table, err := NewAggregator(nil, nil).Build(context.Background(), testDataset(), lastDay(), Options{Codes: []string{"AAA", "ZZZ"}})
	require.NoError(t, err)
	assert.Len(t, table.Rows, 1)
	assert.Equal(t, []models.ExcludedInstrument{{Code: "ZZZ", Reason: "unknown_instrument"}}, table.Excluded)
}

func TestBuild_Deterministic(t *testing.T) {
	agg := NewAggregator(nil, nil)
	ds := testDataset()

	first, err := agg.Build(context.Background(), ds, lastDay(), Options{Workers: 1})
	require.NoError(t, err)
	second, err := agg.Build(context.Background(), ds, lastDay(), Options{Workers: 4})
	require.NoError(t, err)

	a, err := first.ToJSON()
	require.NoError(t, err)
	b, err := second.ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestSortRows_UndefinedLastAndStable(t *testing.T) {
	rows := []models.SnapshotRow{
		{Code: "U1", ChangePct: models.Undefined},
		{Code: "A", ChangePct: models.NewValue(1)},
		{Code: "B", ChangePct: models.NewValue(3)},
		{Code: "U2", ChangePct: models.Undefined},
		{Code: "C", ChangePct: models.NewValue(1)},
	}

	SortRows(rows, models.SortByChangePct, models.SortOrderDesc)
	codes := make([]string, len(rows))
	for i, r := range rows {
		codes[i] = r.Code
	}
	assert.Equal(t, []string{"B", "A", "C", "U1", "U2"}, codes)

	SortRows(rows, models.SortByChangePct, models.SortOrderAsc)
	for i, r := range rows {
		codes[i] = r.Code
	}
	assert.Equal(t, []string{"A", "C", "B", "U1", "U2"}, codes)
}

func TestValidateSortKey(t *testing.T) {
	for _, key := range []string{"change_pct", "close", "volume", "code", "sma_20", "rsi_14", "macd_hist", "bb_upper_20", "obv"} {
		assert.NoError(t, ValidateSortKey(key), key)
	}
	for _, key := range []string{"", "foo", "rsi_0", "price"} {
		assert.Error(t, ValidateSortKey(key), key)
	}
}
