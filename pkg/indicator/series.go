package indicator

import (
	"math"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// Rolling-window helpers shared by the calculators. Every helper works on
// the trailing window ending at the current position and never looks ahead.

// rollingSum sums the last w inputs; positions before w-1 are undefined
func rollingSum(xs []float64, w int) models.Column {
	out := models.NewColumn(len(xs))
	if w < 1 {
		return out
	}
	for i := w - 1; i < len(xs); i++ {
		var sum float64
		for _, x := range xs[i-w+1 : i+1] {
			sum += x
		}
		out[i] = models.NewValue(sum)
	}
	return out
}

// rollingMean is the arithmetic mean of the last w inputs
func rollingMean(xs []float64, w int) models.Column {
	out := rollingSum(xs, w)
	for i, v := range out {
		if v.Defined {
			out[i] = models.NewValue(v.V / float64(w))
		}
	}
	return out
}

// rollingStd is the standard deviation of the last w inputs with the given
// delta degrees of freedom (0 = population, 1 = sample).
func rollingStd(xs []float64, w, ddof int) models.Column {
	out := models.NewColumn(len(xs))
	if w < 1 || w-ddof <= 0 {
		return out
	}
	for i := w - 1; i < len(xs); i++ {
		window := xs[i-w+1 : i+1]
		var mean float64
		for _, x := range window {
			mean += x
		}
		mean /= float64(w)
		var ss float64
		for _, x := range window {
			ss += (x - mean) * (x - mean)
		}
		out[i] = models.NewValue(math.Sqrt(ss / float64(w-ddof)))
	}
	return out
}

// ewm runs an exponentially weighted mean with smoothing factor alpha over
// col, seeded at the first defined input. Outputs before minPeriods defined
// observations have been seen are undefined. An undefined input after the
// seed carries the previous average forward without counting.
func ewm(col models.Column, alpha float64, minPeriods int) models.Column {
	out := models.NewColumn(len(col))
	var avg float64
	seen := 0
	for i, v := range col {
		if !v.Defined {
			continue
		}
		if seen == 0 {
			avg = v.V
		} else {
			avg = alpha*v.V + (1-alpha)*avg
		}
		seen++
		if seen >= minPeriods {
			out[i] = models.NewValue(avg)
		}
	}
	return out
}

// diff returns xs[i] - xs[i-1]; the first position is undefined
func diff(xs []float64) models.Column {
	out := models.NewColumn(len(xs))
	for i := 1; i < len(xs); i++ {
		out[i] = models.NewValue(xs[i] - xs[i-1])
	}
	return out
}

// shift lags a column by n rows
func shift(col models.Column, n int) models.Column {
	out := models.NewColumn(len(col))
	for i := n; i < len(col); i++ {
		out[i] = col[i-n]
	}
	return out
}

// cumSum accumulates defined values; undefined inputs contribute zero
func cumSum(col models.Column) models.Column {
	out := models.NewColumn(len(col))
	var acc float64
	for i, v := range col {
		if v.Defined {
			acc += v.V
		}
		out[i] = models.NewValue(acc)
	}
	return out
}

// fromFloats wraps raw floats, leaving the first `undefined` positions empty
func fromFloats(xs []float64, undefined int) models.Column {
	out := models.NewColumn(len(xs))
	for i := undefined; i < len(xs); i++ {
		out[i] = models.NewValue(xs[i])
	}
	return out
}

// sign returns -1, 0 or 1
func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
