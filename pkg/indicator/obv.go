package indicator

import (
	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// OBV calculates On-Balance Volume: the running sum of
// sign(close[i] - close[i-1]) * volume[i], with the first bar at 0
type OBV struct{}

// NewOBV creates an OBV calculator
func NewOBV() *OBV {
	return &OBV{}
}

// Name returns the indicator name
func (o *OBV) Name() string {
	return "obv"
}

// Keys returns the produced column
func (o *OBV) Keys() []models.IndicatorKey {
	return []models.IndicatorKey{models.Key(models.KindOBV, 0)}
}

// Lookback is zero
func (o *OBV) Lookback() int {
	return 0
}

// Compute evaluates OBV over the series
func (o *OBV) Compute(series *models.InstrumentSeries) map[models.IndicatorKey]models.Column {
	volumes := series.Volumes()
	changes := diff(series.Closes())

	flow := models.NewColumn(len(volumes))
	for i := range volumes {
		if changes[i].Defined {
			flow[i] = models.NewValue(sign(changes[i].V) * volumes[i])
		}
	}

	return map[models.IndicatorKey]models.Column{
		models.Key(models.KindOBV, 0): cumSum(flow),
	}
}
