package indicator

import (
	"fmt"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// Default MACD parameters
const (
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
)

// MACD computes the moving-average convergence/divergence triple:
// line = EMA(fast) - EMA(slow), signal = EMA(line, signal), hist = line - signal
type MACD struct {
	fast, slow, signal int
}

// NewMACD creates a MACD calculator
func NewMACD(fast, slow, signal int) (*MACD, error) {
	if fast < 1 || slow < 1 || signal < 1 {
		return nil, fmt.Errorf("%w: MACD periods must be positive", models.ErrInvalidWindow)
	}
	if fast >= slow {
		return nil, fmt.Errorf("%w: MACD fast period %d must be below slow period %d", models.ErrInvalidWindow, fast, slow)
	}
	return &MACD{fast: fast, slow: slow, signal: signal}, nil
}

// Name returns the indicator name
func (m *MACD) Name() string {
	if m.fast == MACDFast && m.slow == MACDSlow && m.signal == MACDSignal {
		return "macd"
	}
	return fmt.Sprintf("macd:%d:%d:%d", m.fast, m.slow, m.signal)
}

// Keys returns the line, signal and histogram columns
func (m *MACD) Keys() []models.IndicatorKey {
	return []models.IndicatorKey{
		models.Key(models.KindMACDLine, 0),
		models.Key(models.KindMACDSignal, 0),
		models.Key(models.KindMACDHist, 0),
	}
}

// Lookback returns the bars needed before the signal line is defined
func (m *MACD) Lookback() int {
	return m.slow - 1 + m.signal - 1
}

// Compute evaluates MACD over the series
func (m *MACD) Compute(series *models.InstrumentSeries) map[models.IndicatorKey]models.Column {
	closes := fromFloats(series.Closes(), 0)
	fast := emaColumn(closes, m.fast)
	slow := emaColumn(closes, m.slow)

	n := len(closes)
	line := models.NewColumn(n)
	for i := 0; i < n; i++ {
		if fast[i].Defined && slow[i].Defined {
			line[i] = models.NewValue(fast[i].V - slow[i].V)
		}
	}

	signal := emaColumn(line, m.signal)

	hist := models.NewColumn(n)
	for i := 0; i < n; i++ {
		if line[i].Defined && signal[i].Defined {
			hist[i] = models.NewValue(line[i].V - signal[i].V)
		}
	}

	return map[models.IndicatorKey]models.Column{
		models.Key(models.KindMACDLine, 0):   line,
		models.Key(models.KindMACDSignal, 0): signal,
		models.Key(models.KindMACDHist, 0):   hist,
	}
}
