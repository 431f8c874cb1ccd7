package indicator

import (
	"time"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

var baseDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// seriesFromCloses builds a series whose high/low sit one unit around close
func seriesFromCloses(closes ...float64) *models.InstrumentSeries {
	s := &models.InstrumentSeries{Code: "TEST"}
	for i, c := range closes {
		s.Bars = append(s.Bars, models.PriceBar{
			Date:   baseDate.AddDate(0, 0, i),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		})
	}
	return s
}

func rangeCloses(from, to float64) []float64 {
	out := make([]float64, 0)
	for c := from; c <= to; c++ {
		out = append(out, c)
	}
	return out
}

func compute(calc Calculator, s *models.InstrumentSeries, key models.IndicatorKey) models.Column {
	return calc.Compute(s)[key]
}
