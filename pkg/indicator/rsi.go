package indicator

import (
	"fmt"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// RSI calculates the Relative Strength Index using Wilder's smoothing
// RSI = 100 - (100 / (1 + RS)), RS = average gain / average loss
//
// Gains and losses are smoothed with alpha = 1/period starting at the first
// bar, whose change counts as zero. Output is defined once period bars are
// available. An all-gain window reads 100; a flat window (no gains and no
// losses) is undefined.
type RSI struct {
	period int
}

// NewRSI creates a new RSI calculator with the specified period
func NewRSI(period int) (*RSI, error) {
	if period < 1 {
		return nil, fmt.Errorf("%w: RSI period must be at least 1, got %d", models.ErrInvalidWindow, period)
	}
	return &RSI{period: period}, nil
}

// Name returns the indicator name
func (r *RSI) Name() string {
	return fmt.Sprintf("rsi:%d", r.period)
}

// Keys returns the produced column
func (r *RSI) Keys() []models.IndicatorKey {
	return []models.IndicatorKey{models.Key(models.KindRSI, r.period)}
}

// Lookback returns the period minus one
func (r *RSI) Lookback() int {
	return r.period - 1
}

// Compute evaluates RSI over the series
func (r *RSI) Compute(series *models.InstrumentSeries) map[models.IndicatorKey]models.Column {
	closes := series.Closes()
	n := len(closes)

	gains := models.NewColumn(n)
	losses := models.NewColumn(n)
	changes := diff(closes)
	for i := 0; i < n; i++ {
		d := 0.0
		if changes[i].Defined {
			d = changes[i].V
		}
		gains[i] = models.NewValue(max(d, 0))
		losses[i] = models.NewValue(max(-d, 0))
	}

	alpha := 1.0 / float64(r.period)
	avgGain := ewm(gains, alpha, r.period)
	avgLoss := ewm(losses, alpha, r.period)

	out := models.NewColumn(n)
	for i := 0; i < n; i++ {
		if !avgGain[i].Defined || !avgLoss[i].Defined {
			continue
		}
		out[i] = rsiValue(avgGain[i].V, avgLoss[i].V)
	}

	return map[models.IndicatorKey]models.Column{
		models.Key(models.KindRSI, r.period): out,
	}
}

func rsiValue(gain, loss float64) models.Value {
	if loss == 0 {
		if gain == 0 {
			return models.Undefined
		}
		return models.NewValue(100)
	}
	rs := gain / loss
	return models.NewValue(100 - 100/(1+rs))
}
