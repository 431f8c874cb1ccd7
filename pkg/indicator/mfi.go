package indicator

import (
	"fmt"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// MFI calculates the money-flow index in its ratio-of-sums form:
//
//	raw   = (high + low + close) / 3 * volume
//	S[i]  = sum of raw over the last n bars
//	ratio = S[i] / S[i-1]
//	MFI   = 100 - 100 / (1 + ratio)
//
// Positive and negative flow are not separated. A zero prior sum is undefined.
type MFI struct {
	period int
}

// NewMFI creates an MFI calculator
func NewMFI(period int) (*MFI, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w: MFI period must be at least 1, got %d", models.ErrInvalidWindow, period)
	}
	return &MFI{period: period}, nil
}

// Name returns the indicator name
func (m *MFI) Name() string {
	return fmt.Sprintf("mfi:%d", m.period)
}

// Keys returns the produced column
func (m *MFI) Keys() []models.IndicatorKey {
	return []models.IndicatorKey{models.Key(models.KindMFI, m.period)}
}

// Lookback returns the period; the ratio needs one extra bar
func (m *MFI) Lookback() int {
	return m.period
}

// Compute evaluates MFI over the series
func (m *MFI) Compute(series *models.InstrumentSeries) map[models.IndicatorKey]models.Column {
	n := series.Len()
	raw := make([]float64, n)
	for i, b := range series.Bars {
		typical := (b.High + b.Low + b.Close) / 3
		raw[i] = typical * b.Volume
	}

	sums := rollingSum(raw, m.period)
	prev := shift(sums, 1)

	out := models.NewColumn(n)
	for i := 0; i < n; i++ {
		if !sums[i].Defined || !prev[i].Defined || prev[i].V == 0 {
			continue
		}
		ratio := sums[i].V / prev[i].V
		out[i] = models.NewValue(100 - 100/(1+ratio))
	}

	return map[models.IndicatorKey]models.Column{
		models.Key(models.KindMFI, m.period): out,
	}
}
