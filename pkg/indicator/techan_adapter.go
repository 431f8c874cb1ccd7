package indicator

import (
	"fmt"
	"time"

	"github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// TechanCalculator wraps a Techan indicator to implement Calculator interface
type TechanCalculator struct {
	name     string
	key      models.IndicatorKey
	lookback int
	build    func(series *techan.TimeSeries) techan.Indicator

	// skip reports positions where the Techan formula would divide by zero
	skip func(series *models.InstrumentSeries, index int) bool
}

// NewTechanCalculator creates a new Techan-based calculator.
// build receives the TimeSeries the indicator must be bound to.
func NewTechanCalculator(
	name string,
	key models.IndicatorKey,
	lookback int,
	build func(series *techan.TimeSeries) techan.Indicator,
) *TechanCalculator {
	return &TechanCalculator{
		name:     name,
		key:      key,
		lookback: lookback,
		build:    build,
	}
}

// NewATR creates an average true range calculator. The true range of the
// first bar has no previous close, so values start at index period.
func NewATR(period int) (*TechanCalculator, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w: ATR period must be at least 1, got %d", models.ErrInvalidWindow, period)
	}
	return NewTechanCalculator(
		fmt.Sprintf("atr:%d", period),
		models.Key(models.KindATR, period),
		period,
		func(series *techan.TimeSeries) techan.Indicator {
			return techan.NewAverageTrueRangeIndicator(series, period)
		},
	), nil
}

// NewStochastic creates a fast stochastic %K calculator.
// A window whose highest high equals its lowest low is undefined.
func NewStochastic(period int) (*TechanCalculator, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w: stochastic period must be at least 1, got %d", models.ErrInvalidWindow, period)
	}
	calc := NewTechanCalculator(
		fmt.Sprintf("stoch:%d", period),
		models.Key(models.KindStochK, period),
		period-1,
		func(series *techan.TimeSeries) techan.Indicator {
			return techan.NewFastStochasticIndicator(series, period)
		},
	)
	calc.skip = func(series *models.InstrumentSeries, index int) bool {
		w := series.Window(index, period)
		hi, lo := w.Bars[0].High, w.Bars[0].Low
		for _, b := range w.Bars {
			hi = max(hi, b.High)
			lo = min(lo, b.Low)
		}
		return hi == lo
	}
	return calc, nil
}

// Name returns the indicator name
func (t *TechanCalculator) Name() string {
	return t.name
}

// Keys returns the produced column
func (t *TechanCalculator) Keys() []models.IndicatorKey {
	return []models.IndicatorKey{t.key}
}

// Lookback returns the number of leading undefined positions
func (t *TechanCalculator) Lookback() int {
	return t.lookback
}

// Compute converts the series to candles and evaluates the wrapped indicator
func (t *TechanCalculator) Compute(series *models.InstrumentSeries) map[models.IndicatorKey]models.Column {
	out := models.NewColumn(series.Len())
	if series.Len() > t.lookback {
		ts := toTimeSeries(series)
		ind := t.build(ts)
		for i := t.lookback; i < series.Len(); i++ {
			if t.skip != nil && t.skip(series, i) {
				continue
			}
			out[i] = models.NewValue(ind.Calculate(i).Float())
		}
	}
	return map[models.IndicatorKey]models.Column{t.key: out}
}

// toTimeSeries converts daily bars to a Techan TimeSeries
func toTimeSeries(series *models.InstrumentSeries) *techan.TimeSeries {
	ts := techan.NewTimeSeries()
	for _, bar := range series.Bars {
		candle := techan.NewCandle(techan.NewTimePeriod(bar.Date, 24*time.Hour))
		candle.OpenPrice = big.NewDecimal(bar.Open)
		candle.MaxPrice = big.NewDecimal(bar.High)
		candle.MinPrice = big.NewDecimal(bar.Low)
		candle.ClosePrice = big.NewDecimal(bar.Close)
		candle.Volume = big.NewDecimal(bar.Volume)
		ts.AddCandle(candle)
	}
	return ts
}
