package indicator

import (
	"fmt"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// cciConstant scales CCI so most readings fall within +-100
const cciConstant = 0.015

// CCI calculates the Commodity Channel Index on closes
// CCI = (close - SMA(close, n)) / (0.015 * stddev(close, n))
// The deviation is the sample standard deviation; a flat window is undefined.
type CCI struct {
	period int
}

// NewCCI creates a CCI calculator. The sample deviation needs two bars.
func NewCCI(period int) (*CCI, error) {
	if period < 2 {
		return nil, fmt.Errorf("%w: CCI period must be at least 2, got %d", models.ErrInvalidWindow, period)
	}
	return &CCI{period: period}, nil
}

// Name returns the indicator name
func (c *CCI) Name() string {
	return fmt.Sprintf("cci:%d", c.period)
}

// Keys returns the produced column
func (c *CCI) Keys() []models.IndicatorKey {
	return []models.IndicatorKey{models.Key(models.KindCCI, c.period)}
}

// Lookback returns the period minus one
func (c *CCI) Lookback() int {
	return c.period - 1
}

// Compute evaluates CCI over the series
func (c *CCI) Compute(series *models.InstrumentSeries) map[models.IndicatorKey]models.Column {
	closes := series.Closes()
	mean := rollingMean(closes, c.period)
	std := rollingStd(closes, c.period, 1)

	out := models.NewColumn(len(closes))
	for i := range closes {
		if !mean[i].Defined || !std[i].Defined || std[i].V == 0 {
			continue
		}
		out[i] = models.NewValue((closes[i] - mean[i].V) / (cciConstant * std[i].V))
	}

	return map[models.IndicatorKey]models.Column{
		models.Key(models.KindCCI, c.period): out,
	}
}
