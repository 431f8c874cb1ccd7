package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

func TestRollingHelpers(t *testing.T) {
	xs := []float64{1, 2, 3, 4}

	sum := rollingSum(xs, 2)
	assert.Equal(t, models.Column{models.Undefined, models.NewValue(3), models.NewValue(5), models.NewValue(7)}, sum)

	mean := rollingMean(xs, 4)
	assert.Equal(t, 2.5, mean[3].V)
	assert.False(t, mean[2].Defined)

	pop := rollingStd([]float64{2, 4}, 2, 0)
	assert.InDelta(t, 1.0, pop[1].V, 1e-12)
	sample := rollingStd([]float64{2, 4}, 2, 1)
	assert.InDelta(t, 1.4142135623730951, sample[1].V, 1e-12)

	d := diff(xs)
	assert.False(t, d[0].Defined)
	assert.Equal(t, 1.0, d[3].V)

	lagged := shift(sum, 1)
	assert.False(t, lagged[1].Defined)
	assert.Equal(t, 3.0, lagged[2].V)

	acc := cumSum(d)
	assert.Equal(t, models.Column{models.NewValue(0), models.NewValue(1), models.NewValue(2), models.NewValue(3)}, acc)
}

func TestEWM_SkipsLeadingUndefined(t *testing.T) {
	col := models.Column{models.Undefined, models.NewValue(4), models.NewValue(8)}
	out := ewm(col, 0.5, 1)
	assert.False(t, out[0].Defined)
	assert.Equal(t, 4.0, out[1].V)
	assert.Equal(t, 6.0, out[2].V)
}
