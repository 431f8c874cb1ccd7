package signal

import (
	"sort"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/indicator"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/logger"
)

// Detector evaluates signal rules over indicator frames
type Detector struct {
	registry *Registry
}

// NewDetector creates a detector backed by registry.
// A nil registry means DefaultRegistry.
func NewDetector(registry *Registry) *Detector {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Detector{registry: registry}
}

// Registry returns the detector's rule registry
func (d *Detector) Registry() *Registry {
	return d.registry
}

// Rules compiles ids into rules ordered by canonical id, dropping
// duplicates. An empty id list compiles DefaultRules.
func (d *Detector) Rules(ids []string) ([]*Rule, error) {
	if len(ids) == 0 {
		ids = DefaultRules()
	}

	seen := make(map[string]struct{}, len(ids))
	rules := make([]*Rule, 0, len(ids))
	for _, id := range ids {
		rule, err := d.registry.Build(id)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[rule.ID]; dup {
			continue
		}
		seen[rule.ID] = struct{}{}
		rules = append(rules, rule)
	}

	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

// RequiredIndicators returns the indicator requests the rules need,
// deduplicated and in first-use order
func (d *Detector) RequiredIndicators(ids []string) ([]indicator.Request, error) {
	rules, err := d.Rules(ids)
	if err != nil {
		return nil, err
	}
	return Requirements(rules), nil
}

// Requirements collects the indicator requests of already compiled rules
func Requirements(rules []*Rule) []indicator.Request {
	seen := make(map[string]struct{})
	out := make([]indicator.Request, 0)
	for _, rule := range rules {
		for _, req := range rule.Requires {
			if _, dup := seen[req.String()]; dup {
				continue
			}
			seen[req.String()] = struct{}{}
			out = append(out, req)
		}
	}
	return out
}

// Detect evaluates the rules named by ids on every bar of frame
func (d *Detector) Detect(frame *models.IndicatorFrame, ids []string) ([]models.Signal, error) {
	rules, err := d.Rules(ids)
	if err != nil {
		return nil, err
	}
	return d.DetectWith(frame, rules, 0), nil
}

// DetectWith evaluates compiled rules on bars [from, frame.Len()). Signals
// are ordered by bar index, then by rule id.
func (d *Detector) DetectWith(frame *models.IndicatorFrame, rules []*Rule, from int) []models.Signal {
	if frame == nil {
		return nil
	}
	if from < 0 {
		from = 0
	}

	signals := make([]models.Signal, 0)
	for i := from; i < frame.Len(); i++ {
		signals = append(signals, evaluate(frame, rules, i)...)
	}

	sort.SliceStable(signals, func(a, b int) bool {
		if signals[a].Index != signals[b].Index {
			return signals[a].Index < signals[b].Index
		}
		return signals[a].Kind < signals[b].Kind
	})

	record(rules, signals)
	return signals
}

// DetectAt evaluates compiled rules on bar i only
func (d *Detector) DetectAt(frame *models.IndicatorFrame, rules []*Rule, i int) []models.Signal {
	if frame == nil || i < 0 || i >= frame.Len() {
		return nil
	}
	signals := evaluate(frame, rules, i)
	record(rules, signals)
	return signals
}

func evaluate(frame *models.IndicatorFrame, rules []*Rule, i int) []models.Signal {
	var out []models.Signal
	for _, rule := range rules {
		dir, ok := rule.Eval(frame, i)
		if !ok {
			continue
		}
		bar := frame.Bar(i)
		out = append(out, models.Signal{
			Index:     i,
			Date:      bar.Date,
			Kind:      rule.ID,
			Direction: dir,
			Price:     bar.Close,
		})
	}
	return out
}

func record(rules []*Rule, signals []models.Signal) {
	if len(signals) == 0 {
		return
	}
	family := make(map[string]string, len(rules))
	for _, rule := range rules {
		family[rule.ID] = rule.Family
	}
	for _, s := range signals {
		logger.SignalsDetected.WithLabelValues(family[s.Kind]).Inc()
	}
}
