package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

var (
	d1 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	d2 = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	d3 = time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
)

func capRow(code, sector string, date time.Time, cap string) models.MarketCapRow {
	return models.MarketCapRow{Code: code, Sector: sector, Date: date, Cap: decimal.RequireFromString(cap)}
}

func testCaps() []models.MarketCapRow {
	return []models.MarketCapRow{
		capRow("VCB", "Banks", d1, "450000.10"),
		capRow("BID", "Banks", d1, "250000.20"),
		capRow("VNM", "Food", d1, "150000"),
		capRow("XYZ", "", d1, "10"),
		capRow("VCB", "Banks", d2, "460000"),
		capRow("VNM", "Food", d2, "900000"),
	}
}

func TestSectorTotals(t *testing.T) {
	totals := SectorTotals(testCaps(), d1.Add(15*time.Hour))
	require.Len(t, totals, 3)

	assert.Equal(t, "Banks", totals[0].Sector)
	assert.True(t, decimal.RequireFromString("700000.30").Equal(totals[0].Cap))
	assert.Equal(t, 2, totals[0].Instruments)
	assert.Equal(t, "Food", totals[1].Sector)
	assert.Equal(t, "Unknown Sector", totals[2].Sector)

	assert.Empty(t, SectorTotals(testCaps(), d3))
}

func TestTopSectors(t *testing.T) {
	top := TopSectors(testCaps(), 1)
	require.Len(t, top, 1)
	assert.Equal(t, "Banks", top[0].Sector)
	assert.True(t, decimal.RequireFromString("1160000.30").Equal(top[0].Cap))

	all := TopSectors(testCaps(), 0)
	assert.Len(t, all, 3)
	assert.Equal(t, "Food", all[1].Sector)
}

func TestCapDates(t *testing.T) {
	assert.Equal(t, []time.Time{d1, d2}, CapDates(testCaps()))
}

func series(code string, start time.Time, closes ...float64) *models.InstrumentSeries {
	bars := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = models.PriceBar{Date: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return &models.InstrumentSeries{Code: code, Bars: bars}
}

func TestExpandingMean(t *testing.T) {
	got := expandingMean([]float64{2, 4, 6, 8}, 2)
	assert.Equal(t, []float64{2, 3, 5, 7}, got)
}

func TestBreadth(t *testing.T) {
	ds := models.NewDataset(map[string]*models.InstrumentSeries{
		"UP":   series("UP", d1, 10, 11, 12),
		"DOWN": series("DOWN", d1, 10, 9, 8),
		"LATE": series("LATE", d2, 5, 6),
	}, nil)

	points, err := Breadth(context.Background(), ds, []int{2})
	require.NoError(t, err)
	require.Len(t, points, 3)

	first := points[0]
	assert.Equal(t, d1, first.Date)
	assert.Equal(t, 2, first.Total)
	assert.Equal(t, 0, first.Above[2])
	assert.Equal(t, 0, first.Rising[2])

	// day 2: UP 11 > 10.5 rising; DOWN 9 < 9.5 falling; LATE first bar
	second := points[1]
	assert.Equal(t, 3, second.Total)
	assert.Equal(t, 1, second.Above[2])
	assert.Equal(t, 1, second.Rising[2])

	// day 3: UP and LATE above and rising
	third := points[2]
	assert.Equal(t, 3, third.Total)
	assert.Equal(t, 2, third.Above[2])
	assert.Equal(t, 2, third.Rising[2])
}

func TestBreadth_Errors(t *testing.T) {
	ds := models.NewDataset(map[string]*models.InstrumentSeries{"A": series("A", d1, 1, 2)}, nil)

	_, err := Breadth(context.Background(), ds, []int{20, 0})
	assert.True(t, errors.Is(err, models.ErrInvalidWindow))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Breadth(ctx, ds, nil)
	assert.ErrorIs(t, err, context.Canceled)

	points, err := Breadth(context.Background(), ds, nil)
	require.NoError(t, err)
	assert.Len(t, points[0].Above, len(DefaultBreadthWindows))
}

func TestForeignFlow(t *testing.T) {
	rows := []models.ForeignFlowRow{
		{Code: "VNM", Date: d3, NetValue: -500, Close: 72},
		{Code: "VNM", Date: d1, NetValue: 1000.5, Close: 70},
		{Code: "FPT", Date: d1, NetValue: 99, Close: 95},
		{Code: "VNM", Date: d2, NetValue: 0, Close: 71},
	}

	summary := ForeignFlow(rows, "vnm", time.Time{}, time.Time{})
	assert.Equal(t, "VNM", summary.Code)
	require.Len(t, summary.Points, 3)
	assert.Equal(t, d1, summary.Points[0].Date)
	assert.Equal(t, models.DirectionBuy, summary.Points[1].Side)
	assert.Equal(t, models.DirectionSell, summary.Points[2].Side)
	assert.Equal(t, 2, summary.BuyDays)
	assert.Equal(t, 1, summary.SellDays)
	assert.Equal(t, "500.5", summary.Net.String())

	ranged := ForeignFlow(rows, "VNM", d2, d2)
	require.Len(t, ranged.Points, 1)
	assert.Equal(t, 71.0, ranged.Points[0].Close)

	empty := ForeignFlow(rows, "HPG", time.Time{}, time.Time{})
	assert.Empty(t, empty.Points)
	assert.True(t, empty.Net.IsZero())
}
