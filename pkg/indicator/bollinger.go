package indicator

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// Default Bollinger Band parameters
const (
	BollingerPeriod = 20
	BollingerDev    = 2.0
)

// Bollinger calculates Bollinger Bands
// middle = SMA(n), upper/lower = middle +- dev * population stddev(n)
type Bollinger struct {
	period int
	dev    float64
}

// NewBollinger creates a Bollinger Band calculator
func NewBollinger(period int, dev float64) (*Bollinger, error) {
	if period < 2 {
		return nil, fmt.Errorf("%w: Bollinger period must be at least 2, got %d", models.ErrInvalidWindow, period)
	}
	if dev <= 0 {
		return nil, fmt.Errorf("%w: Bollinger deviation must be positive, got %g", models.ErrInvalidWindow, dev)
	}
	return &Bollinger{period: period, dev: dev}, nil
}

// Name returns the indicator name
func (b *Bollinger) Name() string {
	return fmt.Sprintf("bollinger:%d:%g", b.period, b.dev)
}

// Keys returns the upper, middle and lower band columns
func (b *Bollinger) Keys() []models.IndicatorKey {
	return []models.IndicatorKey{
		models.Key(models.KindBBUpper, b.period),
		models.Key(models.KindBBMiddle, b.period),
		models.Key(models.KindBBLower, b.period),
	}
}

// Lookback returns the period minus one
func (b *Bollinger) Lookback() int {
	return b.period - 1
}

// Compute evaluates the bands over the series
func (b *Bollinger) Compute(series *models.InstrumentSeries) map[models.IndicatorKey]models.Column {
	closes := series.Closes()
	n := len(closes)

	upper, middle, lower := models.NewColumn(n), models.NewColumn(n), models.NewColumn(n)
	if n >= b.period {
		u, m, l := talib.BBands(closes, b.period, b.dev, b.dev, talib.SMA)
		upper = fromFloats(u, b.period-1)
		middle = fromFloats(m, b.period-1)
		lower = fromFloats(l, b.period-1)
	}

	return map[models.IndicatorKey]models.Column{
		models.Key(models.KindBBUpper, b.period):  upper,
		models.Key(models.KindBBMiddle, b.period): middle,
		models.Key(models.KindBBLower, b.period):  lower,
	}
}
