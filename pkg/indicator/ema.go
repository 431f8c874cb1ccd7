package indicator

import (
	"fmt"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// EMA calculates the Exponential Moving Average
// EMA[0] = close[0], EMA[i] = close[i]*k + EMA[i-1]*(1-k), k = 2/(period+1)
// Values before the period is filled are undefined.
type EMA struct {
	period int
}

// NewEMA creates a new EMA calculator with the specified period
func NewEMA(period int) (*EMA, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w: EMA period must be at least 1, got %d", models.ErrInvalidWindow, period)
	}
	return &EMA{period: period}, nil
}

// Name returns the indicator name
func (e *EMA) Name() string {
	return fmt.Sprintf("ema:%d", e.period)
}

// Keys returns the produced column
func (e *EMA) Keys() []models.IndicatorKey {
	return []models.IndicatorKey{models.Key(models.KindEMA, e.period)}
}

// Lookback returns the period minus one
func (e *EMA) Lookback() int {
	return e.period - 1
}

// Compute evaluates the EMA over the series
func (e *EMA) Compute(series *models.InstrumentSeries) map[models.IndicatorKey]models.Column {
	return map[models.IndicatorKey]models.Column{
		models.Key(models.KindEMA, e.period): emaColumn(fromFloats(series.Closes(), 0), e.period),
	}
}

// emaColumn smooths col with k = 2/(period+1), seeded at its first defined value
func emaColumn(col models.Column, period int) models.Column {
	return ewm(col, 2.0/float64(period+1), period)
}
