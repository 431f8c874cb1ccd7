package indicator

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// SMA calculates the Simple Moving Average
// SMA = Sum of closes over period / period
type SMA struct {
	period int
}

// NewSMA creates a new SMA calculator with the specified period
func NewSMA(period int) (*SMA, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w: SMA period must be at least 1, got %d", models.ErrInvalidWindow, period)
	}
	return &SMA{period: period}, nil
}

// Name returns the indicator name
func (s *SMA) Name() string {
	return fmt.Sprintf("sma:%d", s.period)
}

// Keys returns the produced column
func (s *SMA) Keys() []models.IndicatorKey {
	return []models.IndicatorKey{models.Key(models.KindSMA, s.period)}
}

// Lookback returns the period minus one
func (s *SMA) Lookback() int {
	return s.period - 1
}

// Compute evaluates the SMA over the series
func (s *SMA) Compute(series *models.InstrumentSeries) map[models.IndicatorKey]models.Column {
	return map[models.IndicatorKey]models.Column{
		models.Key(models.KindSMA, s.period): smaColumn(series.Closes(), s.period),
	}
}

// smaColumn runs talib's SMA; talib indexes past the input when it is
// shorter than the period, so that case is answered as all-undefined.
func smaColumn(closes []float64, period int) models.Column {
	n := len(closes)
	if n < period {
		return models.NewColumn(n)
	}
	if period == 1 {
		return fromFloats(closes, 0)
	}
	return fromFloats(talib.Sma(closes, period), period-1)
}
