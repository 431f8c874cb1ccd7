package signal

import (
	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// series reads one aligned value per bar; out-of-range reads are undefined
type series func(i int) models.Value

func column(f *models.IndicatorFrame, key models.IndicatorKey) series {
	return func(i int) models.Value { return f.At(key, i) }
}

func closes(f *models.IndicatorFrame) series {
	return barField(f, func(b models.PriceBar) float64 { return b.Close })
}

func highs(f *models.IndicatorFrame) series {
	return barField(f, func(b models.PriceBar) float64 { return b.High })
}

func lows(f *models.IndicatorFrame) series {
	return barField(f, func(b models.PriceBar) float64 { return b.Low })
}

func barField(f *models.IndicatorFrame, field func(models.PriceBar) float64) series {
	return func(i int) models.Value {
		if i < 0 || i >= f.Len() {
			return models.Undefined
		}
		return models.NewValue(field(f.Bar(i)))
	}
}

func level(x float64) series {
	v := models.NewValue(x)
	return func(int) models.Value { return v }
}

// pair returns a and b at i and i-1; ok is false unless all four are defined
func pair(a, b series, i int) (a0, a1, b0, b1 float64, ok bool) {
	if i < 1 {
		return 0, 0, 0, 0, false
	}
	av, ap, bv, bp := a(i), a(i-1), b(i), b(i-1)
	if !av.Defined || !ap.Defined || !bv.Defined || !bp.Defined {
		return 0, 0, 0, 0, false
	}
	return av.V, ap.V, bv.V, bp.V, true
}

func crossUp(a, b series, i int) bool {
	a0, a1, b0, b1, ok := pair(a, b, i)
	return ok && a0 > b0 && a1 <= b1
}

func crossDown(a, b series, i int) bool {
	a0, a1, b0, b1, ok := pair(a, b, i)
	return ok && a0 < b0 && a1 >= b1
}

// rising reports s[i] > s[i-1]; falling is the mirror
func rising(s series, i int) bool {
	cur, prev := s(i), s(i-1)
	return i >= 1 && cur.Defined && prev.Defined && cur.V > prev.V
}

func falling(s series, i int) bool {
	cur, prev := s(i), s(i-1)
	return i >= 1 && cur.Defined && prev.Defined && cur.V < prev.V
}

// below reports a[i] < b[i] with both defined
func below(a, b series, i int) bool {
	av, bv := a(i), b(i)
	return av.Defined && bv.Defined && av.V < bv.V
}

func above(a, b series, i int) bool {
	return below(b, a, i)
}

// atMost reports a[i] <= b[i] with both defined
func atMost(a, b series, i int) bool {
	av, bv := a(i), b(i)
	return av.Defined && bv.Defined && av.V <= bv.V
}

func atLeast(a, b series, i int) bool {
	return atMost(b, a, i)
}

// CrossUp reports a[i] > b[i] and a[i-1] <= b[i-1]. Both columns must be
// defined at i and i-1.
func CrossUp(a, b models.Column, i int) bool {
	return crossUp(a.At, b.At, i)
}

// CrossDown reports a[i] < b[i] and a[i-1] >= b[i-1]
func CrossDown(a, b models.Column, i int) bool {
	return crossDown(a.At, b.At, i)
}

// CrossAbove reports a crossing above a constant level at i
func CrossAbove(a models.Column, x float64, i int) bool {
	return crossUp(a.At, level(x), i)
}

// CrossBelow reports a crossing below a constant level at i
func CrossBelow(a models.Column, x float64, i int) bool {
	return crossDown(a.At, level(x), i)
}

// decide turns buy/sell conditions into a direction; both or neither is no signal
func decide(buy, sell bool) (models.Direction, bool) {
	switch {
	case buy && !sell:
		return models.DirectionBuy, true
	case sell && !buy:
		return models.DirectionSell, true
	}
	return "", false
}
