package indicator

import (
	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// Calculator is the interface for computing technical indicators
// Each indicator type implements this interface over a whole series
type Calculator interface {
	// Name returns the request form of this indicator (e.g., "rsi:14", "bollinger:20:2")
	Name() string

	// Keys returns the frame columns this calculator produces
	Keys() []models.IndicatorKey

	// Lookback returns the number of bars needed before the first defined value
	Lookback() int

	// Compute evaluates the indicator over every bar of the series.
	// Positions with insufficient history are models.Undefined.
	Compute(series *models.InstrumentSeries) map[models.IndicatorKey]models.Column
}
