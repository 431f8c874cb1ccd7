package indicator

import (
	"fmt"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// PriceChange calculates the percentage close change over a number of bars
// (rate of change). A zero base close is undefined.
type PriceChange struct {
	period int
}

// NewPriceChange creates a new price change calculator
func NewPriceChange(period int) (*PriceChange, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w: price change period must be at least 1, got %d", models.ErrInvalidWindow, period)
	}
	return &PriceChange{period: period}, nil
}

// Name returns the indicator name
func (p *PriceChange) Name() string {
	return fmt.Sprintf("roc:%d", p.period)
}

// Keys returns the produced column
func (p *PriceChange) Keys() []models.IndicatorKey {
	return []models.IndicatorKey{models.Key(models.KindROC, p.period)}
}

// Lookback returns the period
func (p *PriceChange) Lookback() int {
	return p.period
}

// Compute evaluates the percentage change over the series
func (p *PriceChange) Compute(series *models.InstrumentSeries) map[models.IndicatorKey]models.Column {
	closes := series.Closes()
	out := models.NewColumn(len(closes))
	for i := p.period; i < len(closes); i++ {
		out[i] = PercentChange(closes[i-p.period], closes[i])
	}
	return map[models.IndicatorKey]models.Column{
		models.Key(models.KindROC, p.period): out,
	}
}

// PercentChange returns (to - from) / from * 100, undefined when from is zero
func PercentChange(from, to float64) models.Value {
	if from == 0 {
		return models.Undefined
	}
	return models.NewValue((to - from) / from * 100.0)
}
