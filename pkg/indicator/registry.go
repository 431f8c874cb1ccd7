package indicator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// Request names one indicator and its parameters, e.g. "sma:20" or
// "bollinger:20:2". Kind is lower-case; Params may be empty for defaults.
type Request struct {
	Kind   string
	Params []float64
}

// String renders the request in its parseable form
func (r Request) String() string {
	if len(r.Params) == 0 {
		return r.Kind
	}
	parts := make([]string, 0, len(r.Params)+1)
	parts = append(parts, r.Kind)
	for _, p := range r.Params {
		parts = append(parts, strconv.FormatFloat(p, 'g', -1, 64))
	}
	return strings.Join(parts, ":")
}

// ParseRequest parses "kind[:param[:param...]]"
func ParseRequest(s string) (Request, error) {
	fields := strings.Split(strings.ToLower(strings.TrimSpace(s)), ":")
	if fields[0] == "" {
		return Request{}, fmt.Errorf("%w: empty request", models.ErrUnknownIndicator)
	}
	req := Request{Kind: fields[0]}
	for _, f := range fields[1:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Request{}, fmt.Errorf("%w: bad parameter %q in %q", models.ErrInvalidWindow, f, s)
		}
		req.Params = append(req.Params, v)
	}
	return req, nil
}

// ParseRequests parses a list of request strings
func ParseRequests(specs []string) ([]Request, error) {
	out := make([]Request, 0, len(specs))
	for _, s := range specs {
		req, err := ParseRequest(s)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

// intParam returns Params[i] as a window, or def when absent
func (r Request) intParam(i, def int) (int, error) {
	if i >= len(r.Params) {
		return def, nil
	}
	v := r.Params[i]
	if v != float64(int(v)) {
		return 0, fmt.Errorf("%w: %s parameter %d must be an integer, got %g", models.ErrInvalidWindow, r.Kind, i+1, v)
	}
	return int(v), nil
}

// floatParam returns Params[i], or def when absent
func (r Request) floatParam(i int, def float64) float64 {
	if i >= len(r.Params) {
		return def
	}
	return r.Params[i]
}

// Factory builds a calculator from a request
type Factory func(req Request) (Calculator, error)

// Registry manages indicator factories keyed by kind
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new, empty indicator registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register registers a factory under kind
func (r *Registry) Register(kind string, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("factory cannot be nil")
	}
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		return fmt.Errorf("indicator kind cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("indicator %q already registered", kind)
	}

	r.factories[kind] = factory
	return nil
}

// Build creates the calculator for req
func (r *Registry) Build(req Request) (Calculator, error) {
	r.mu.RLock()
	factory, exists := r.factories[req.Kind]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownIndicator, req.Kind)
	}
	return factory(req)
}

// List returns the registered kinds in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Unregister removes a factory from the registry
func (r *Registry) Unregister(kind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[kind]; !exists {
		return fmt.Errorf("%w: %q", models.ErrUnknownIndicator, kind)
	}

	delete(r.factories, kind)
	return nil
}

// DefaultRegistry returns a registry holding every built-in indicator
func DefaultRegistry() *Registry {
	r := NewRegistry()

	window := func(build func(int) (Calculator, error), def int) Factory {
		return func(req Request) (Calculator, error) {
			w, err := req.intParam(0, def)
			if err != nil {
				return nil, err
			}
			return build(w)
		}
	}

	_ = r.Register("sma", window(func(w int) (Calculator, error) { return NewSMA(w) }, 20))
	_ = r.Register("ema", window(func(w int) (Calculator, error) { return NewEMA(w) }, 20))
	_ = r.Register("rsi", window(func(w int) (Calculator, error) { return NewRSI(w) }, 14))
	_ = r.Register("cci", window(func(w int) (Calculator, error) { return NewCCI(w) }, 20))
	_ = r.Register("mfi", window(func(w int) (Calculator, error) { return NewMFI(w) }, 14))
	_ = r.Register("atr", window(func(w int) (Calculator, error) { return NewATR(w) }, 14))
	_ = r.Register("stoch", window(func(w int) (Calculator, error) { return NewStochastic(w) }, 14))
	_ = r.Register("roc", window(func(w int) (Calculator, error) { return NewPriceChange(w) }, 1))

	_ = r.Register("macd", func(req Request) (Calculator, error) {
		fast, err := req.intParam(0, MACDFast)
		if err != nil {
			return nil, err
		}
		slow, err := req.intParam(1, MACDSlow)
		if err != nil {
			return nil, err
		}
		signal, err := req.intParam(2, MACDSignal)
		if err != nil {
			return nil, err
		}
		return NewMACD(fast, slow, signal)
	})

	_ = r.Register("psar", func(req Request) (Calculator, error) {
		return NewPSAR(req.floatParam(0, PSARStep), req.floatParam(1, PSARMaxStep))
	})

	bollinger := func(req Request) (Calculator, error) {
		period, err := req.intParam(0, BollingerPeriod)
		if err != nil {
			return nil, err
		}
		return NewBollinger(period, req.floatParam(1, BollingerDev))
	}
	_ = r.Register("bollinger", bollinger)
	_ = r.Register("bb", bollinger)

	_ = r.Register("obv", func(req Request) (Calculator, error) {
		return NewOBV(), nil
	})

	return r
}

// DefaultCatalog is the indicator set computed when a caller asks for none
func DefaultCatalog() []Request {
	specs := []string{
		"sma:20", "sma:50", "sma:100", "sma:200",
		"ema:20", "ema:50", "ema:100", "ema:200",
		"macd",
		"psar",
		"rsi:9", "rsi:14", "rsi:21",
		"cci:10", "cci:20", "cci:30",
		"bollinger:20:2",
		"obv",
		"mfi:14",
	}
	reqs, _ := ParseRequests(specs)
	return reqs
}
