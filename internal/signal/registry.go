package signal

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// Registry maps rule families to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new, empty rule registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register registers a factory under family
func (r *Registry) Register(family string, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("factory cannot be nil")
	}
	family = strings.ToLower(strings.TrimSpace(family))
	if family == "" || strings.Contains(family, ":") {
		return fmt.Errorf("invalid rule family %q", family)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[family]; exists {
		return fmt.Errorf("rule family %q already registered", family)
	}

	r.factories[family] = factory
	return nil
}

// Build compiles the rule named by id, e.g. "ma_cross:ema:12:sma:50".
// Missing trailing parameters take the family defaults.
func (r *Registry) Build(id string) (*Rule, error) {
	fields := strings.Split(strings.ToLower(strings.TrimSpace(id)), ":")
	family := fields[0]

	r.mu.RLock()
	factory, exists := r.factories[family]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownRule, id)
	}

	rule, err := factory(fields[1:])
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", id, err)
	}
	rule.Family = family
	return rule, nil
}

// List returns the registered families in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	families := make([]string, 0, len(r.factories))
	for family := range r.factories {
		families = append(families, family)
	}
	sort.Strings(families)
	return families
}

// DefaultRegistry returns a registry holding every built-in rule family
func DefaultRegistry() *Registry {
	r := NewRegistry()

	_ = r.Register("ma_cross", maCross)
	_ = r.Register("price_ma_cross", priceMACross)
	_ = r.Register("psar_ma_trend", psarMATrend)
	_ = r.Register("psar_flip", psarFlip)
	_ = r.Register("psar_rsi", psarRSI)
	_ = r.Register("psar_macd", psarMACD)

	_ = r.Register("rsi_threshold", threshold("rsi_threshold", models.KindRSI, DefaultRSI, RSIOversold, RSIOverbought))
	_ = r.Register("rsi_mid_cross", midCross("rsi_mid_cross", models.KindRSI, DefaultRSI, MidLine))
	_ = r.Register("cci_threshold", cciThreshold)
	_ = r.Register("cci_zero_cross", midCross("cci_zero_cross", models.KindCCI, DefaultCCI, 0))
	_ = r.Register("mfi_threshold", threshold("mfi_threshold", models.KindMFI, DefaultMFI, MFIOversold, MFIOverbought))
	_ = r.Register("mfi_mid_cross", midCross("mfi_mid_cross", models.KindMFI, DefaultMFI, MidLine))

	_ = r.Register("macd_cross", macdCross)
	_ = r.Register("macd_zero_cross", macdZeroCross)

	_ = r.Register("bb_touch", bbTouch)
	_ = r.Register("bb_band_breach", bbBandBreach)
	_ = r.Register("bb_rsi", bbRSI)
	_ = r.Register("bb_macd", bbMACD)
	_ = r.Register("rsi_macd", rsiMACD)

	_ = r.Register("obv_divergence", divergence("obv_divergence", obvKeyArgs))
	_ = r.Register("obv_breakout", obvBreakout)
	_ = r.Register("mfi_divergence", divergence("mfi_divergence", mfiKeyArgs))

	return r
}

// DefaultRules is the rule set evaluated when a caller asks for none
func DefaultRules() []string {
	return []string{
		"ma_cross",
		"psar_ma_trend",
		"psar_flip",
		"rsi_threshold",
		"macd_cross",
		"bb_touch",
		"obv_divergence",
	}
}
