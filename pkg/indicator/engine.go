package indicator

import (
	"fmt"
	"time"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/logger"
)

// Engine computes indicator frames from normalized series
type Engine struct {
	registry *Registry
}

// NewEngine creates an engine backed by registry.
// A nil registry means DefaultRegistry.
func NewEngine(registry *Registry) *Engine {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Engine{registry: registry}
}

// Registry returns the engine's indicator registry
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Calculators resolves requests to calculators, dropping duplicates.
// An empty request list resolves to DefaultCatalog. Two different
// parameter sets writing the same column (macd and macd:5:35:5 both
// write macd_line) are rejected with ErrInvalidWindow.
func (e *Engine) Calculators(requests []Request) ([]Calculator, error) {
	if len(requests) == 0 {
		requests = DefaultCatalog()
	}

	seen := make(map[string]struct{}, len(requests))
	owners := make(map[models.IndicatorKey]string)
	calcs := make([]Calculator, 0, len(requests))
	for _, req := range requests {
		calc, err := e.registry.Build(req)
		if err != nil {
			return nil, fmt.Errorf("indicator %q: %w", req.String(), err)
		}
		if _, dup := seen[calc.Name()]; dup {
			continue
		}
		for _, key := range calc.Keys() {
			if owner, taken := owners[key]; taken {
				return nil, fmt.Errorf("%w: %s and %s both produce column %s",
					models.ErrInvalidWindow, owner, calc.Name(), key)
			}
			owners[key] = calc.Name()
		}
		seen[calc.Name()] = struct{}{}
		calcs = append(calcs, calc)
	}
	return calcs, nil
}

// Compute builds an IndicatorFrame holding every requested indicator.
// Windows longer than the series produce all-undefined columns, not errors.
func (e *Engine) Compute(series *models.InstrumentSeries, requests []Request) (*models.IndicatorFrame, error) {
	if series == nil {
		return nil, models.ErrEmptySeries
	}

	calcs, err := e.Calculators(requests)
	if err != nil {
		return nil, err
	}

	return e.ComputeWith(series, calcs), nil
}

// ComputeWith evaluates already-built calculators over series
func (e *Engine) ComputeWith(series *models.InstrumentSeries, calcs []Calculator) *models.IndicatorFrame {
	start := time.Now()
	defer func() {
		logger.IndicatorComputeDuration.WithLabelValues("frame").Observe(time.Since(start).Seconds())
	}()

	frame := models.NewIndicatorFrame(series)
	for _, calc := range calcs {
		for key, col := range calc.Compute(series) {
			frame.Set(key, col)
		}
	}
	return frame
}

// MaxLookback returns the largest lookback among calcs
func MaxLookback(calcs []Calculator) int {
	lb := 0
	for _, c := range calcs {
		lb = max(lb, c.Lookback())
	}
	return lb
}
