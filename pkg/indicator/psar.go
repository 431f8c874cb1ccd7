package indicator

import (
	"fmt"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// Default Parabolic SAR parameters
const (
	PSARStep    = 0.02
	PSARMaxStep = 0.2
)

// PSAR calculates the Parabolic Stop-And-Reverse.
// The first two values equal the close; the trend starts up.
type PSAR struct {
	step    float64
	maxStep float64
}

// NewPSAR creates a Parabolic SAR calculator
func NewPSAR(step, maxStep float64) (*PSAR, error) {
	if step <= 0 || maxStep < step {
		return nil, fmt.Errorf("%w: PSAR step %.4f / max %.4f", models.ErrInvalidWindow, step, maxStep)
	}
	return &PSAR{step: step, maxStep: maxStep}, nil
}

// Name returns the indicator name
func (p *PSAR) Name() string {
	if p.step == PSARStep && p.maxStep == PSARMaxStep {
		return "psar"
	}
	return fmt.Sprintf("psar:%g:%g", p.step, p.maxStep)
}

// Keys returns the produced column
func (p *PSAR) Keys() []models.IndicatorKey {
	return []models.IndicatorKey{models.Key(models.KindPSAR, 0)}
}

// Lookback is zero: PSAR is defined on every bar
func (p *PSAR) Lookback() int {
	return 0
}

// Compute evaluates PSAR over the series
func (p *PSAR) Compute(series *models.InstrumentSeries) map[models.IndicatorKey]models.Column {
	highs, lows, closes := series.Highs(), series.Lows(), series.Closes()
	n := len(closes)

	sar := make([]float64, n)
	copy(sar, closes)

	if n > 2 {
		upTrend := true
		af := p.step
		upHigh := highs[0]
		downLow := lows[0]

		for i := 2; i < n; i++ {
			reversal := false
			high, low := highs[i], lows[i]

			if upTrend {
				sar[i] = sar[i-1] + af*(upHigh-sar[i-1])
				if low < sar[i] {
					reversal = true
					sar[i] = upHigh
					downLow = low
					af = p.step
				} else {
					if high > upHigh {
						upHigh = high
						af = min(af+p.step, p.maxStep)
					}
					if lows[i-2] < sar[i] {
						sar[i] = lows[i-2]
					} else if lows[i-1] < sar[i] {
						sar[i] = lows[i-1]
					}
				}
			} else {
				sar[i] = sar[i-1] - af*(sar[i-1]-downLow)
				if high > sar[i] {
					reversal = true
					sar[i] = downLow
					upHigh = high
					af = p.step
				} else {
					if low < downLow {
						downLow = low
						af = min(af+p.step, p.maxStep)
					}
					if highs[i-2] > sar[i] {
						sar[i] = highs[i-2]
					} else if highs[i-1] > sar[i] {
						sar[i] = highs[i-1]
					}
				}
			}

			upTrend = upTrend != reversal
		}
	}

	return map[models.IndicatorKey]models.Column{
		models.Key(models.KindPSAR, 0): fromFloats(sar, 0),
	}
}
