package market

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// DefaultBreadthWindows are the moving averages used when none are requested
var DefaultBreadthWindows = []int{20, 50, 100, 200}

// BreadthPoint counts, for one date, how many instruments trade above each
// moving average and how many have a rising average.
type BreadthPoint struct {
	Date   time.Time   `json:"date"`
	Total  int         `json:"total"`
	Above  map[int]int `json:"above"`
	Rising map[int]int `json:"rising"`
}

// Breadth computes market breadth across every instrument of ds. Averages
// use whatever history exists while it is shorter than the window, so the
// first bars of a series are counted too.
func Breadth(ctx context.Context, ds *models.Dataset, windows []int) ([]BreadthPoint, error) {
	if len(windows) == 0 {
		windows = DefaultBreadthWindows
	}
	for _, w := range windows {
		if w <= 0 {
			return nil, fmt.Errorf("%w: breadth window %d", models.ErrInvalidWindow, w)
		}
	}

	points := make(map[time.Time]*BreadthPoint)
	point := func(d time.Time) *BreadthPoint {
		p, ok := points[d]
		if !ok {
			p = &BreadthPoint{Date: d, Above: make(map[int]int, len(windows)), Rising: make(map[int]int, len(windows))}
			for _, w := range windows {
				p.Above[w] = 0
				p.Rising[w] = 0
			}
			points[d] = p
		}
		return p
	}

	for _, code := range ds.Codes() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		series, err := ds.Series(code)
		if err != nil {
			return nil, err
		}
		closes := series.Closes()

		for _, bar := range series.Bars {
			point(bar.Date).Total++
		}
		for _, w := range windows {
			ma := expandingMean(closes, w)
			for i, bar := range series.Bars {
				p := point(bar.Date)
				if closes[i] > ma[i] {
					p.Above[w]++
				}
				if i > 0 && ma[i] > ma[i-1] {
					p.Rising[w]++
				}
			}
		}
	}

	out := make([]BreadthPoint, 0, len(points))
	for _, p := range points {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// expandingMean is a trailing mean over w values that averages the
// available prefix until w values exist
func expandingMean(values []float64, w int) []float64 {
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		n := i + 1
		if i >= w {
			sum -= values[i-w]
			n = w
		}
		out[i] = sum / float64(n)
	}
	return out
}
