package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/signal"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/indicator"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/logger"
)

// Options holds configuration for one snapshot build
type Options struct {
	MinPriorBars int                 // bars required before the target date (default: 7)
	Lookback     int                 // trailing bars fed to the indicator engine (default: 120)
	Indicators   []indicator.Request // empty means the default catalog
	Rules        []string            // signal rules evaluated on the target bar
	SortKey      string              // change_pct, close, volume, code or an indicator key
	Order        models.SortOrder    // default: desc
	Limit        int                 // 0 keeps every row
	Workers      int                 // concurrent instruments (default: 8)
	Codes        []string            // restrict to these instruments; empty means all
}

// DefaultOptions returns default configuration
func DefaultOptions() Options {
	return Options{
		MinPriorBars: 7,
		Lookback:     120,
		SortKey:      models.SortByChangePct,
		Order:        models.SortOrderDesc,
		Workers:      8,
	}
}

// withDefaults fills zero fields from DefaultOptions
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MinPriorBars <= 0 {
		o.MinPriorBars = def.MinPriorBars
	}
	if o.Lookback <= 0 {
		o.Lookback = def.Lookback
	}
	if o.Lookback <= o.MinPriorBars {
		o.Lookback = o.MinPriorBars + 1
	}
	if o.SortKey == "" {
		o.SortKey = def.SortKey
	}
	if o.Order == "" {
		o.Order = def.Order
	}
	if o.Workers <= 0 {
		o.Workers = def.Workers
	}
	return o
}

// sortableKinds are the indicator kinds a snapshot can be ranked by
var sortableKinds = map[models.IndicatorKind]bool{
	models.KindSMA: true, models.KindEMA: true, models.KindRSI: true, models.KindCCI: true,
	models.KindMFI: true, models.KindATR: true, models.KindStochK: true, models.KindROC: true,
	models.KindBBUpper: true, models.KindBBMiddle: true, models.KindBBLower: true,
	models.KindMACDLine: true, models.KindMACDSignal: true, models.KindMACDHist: true,
	models.KindPSAR: true, models.KindOBV: true,
}

// ValidateSortKey checks that key names a snapshot column
func ValidateSortKey(key string) error {
	switch key {
	case models.SortByChangePct, models.SortByClose, models.SortByVolume, models.SortByCode:
		return nil
	}
	ik, err := models.ParseIndicatorKey(key)
	if err != nil || !sortableKinds[ik.Kind] {
		return fmt.Errorf("%w: %q", models.ErrInvalidSortKey, key)
	}
	return nil
}

// Aggregator builds cross-sectional snapshot tables
type Aggregator struct {
	engine   *indicator.Engine
	detector *signal.Detector
}

// NewAggregator creates an aggregator. Nil arguments use the defaults.
func NewAggregator(engine *indicator.Engine, detector *signal.Detector) *Aggregator {
	if engine == nil {
		engine = indicator.NewEngine(nil)
	}
	if detector == nil {
		detector = signal.NewDetector(nil)
	}
	return &Aggregator{engine: engine, detector: detector}
}

// plan is the compiled work shared by every instrument of one build
type plan struct {
	opts  Options
	calcs []indicator.Calculator
	rules []*signal.Rule
}

type result struct {
	row models.SnapshotRow
	err error
}

// Build computes one row per instrument at target. A zero target means the
// latest date in the dataset. Instruments lacking history are listed in
// Excluded instead of failing the build.
func (a *Aggregator) Build(ctx context.Context, ds *models.Dataset, target time.Time, opts Options) (*models.SnapshotTable, error) {
	if ds == nil {
		return nil, models.ErrEmptySeries
	}
	opts = opts.withDefaults()
	if err := ValidateSortKey(opts.SortKey); err != nil {
		return nil, err
	}
	if opts.Order != models.SortOrderAsc && opts.Order != models.SortOrderDesc {
		return nil, fmt.Errorf("%w: order %q", models.ErrInvalidSortKey, opts.Order)
	}

	if target.IsZero() {
		latest, ok := ds.LatestDate()
		if !ok {
			return nil, models.ErrEmptySeries
		}
		target = latest
	}
	target = models.TruncateDay(target)

	p, err := a.compile(opts)
	if err != nil {
		return nil, err
	}

	codes := opts.Codes
	if len(codes) == 0 {
		codes = ds.Codes()
	}

	start := time.Now()
	results := a.run(ctx, ds, target, p, codes)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table := &models.SnapshotTable{
		Date:    target,
		SortKey: opts.SortKey,
		Order:   opts.Order,
		Rows:    make([]models.SnapshotRow, 0, len(results)),
	}
	for _, r := range results {
		if r.err != nil {
			reason := exclusionReason(r.err)
			table.Excluded = append(table.Excluded, models.ExcludedInstrument{Code: r.row.Code, Reason: reason})
			logger.SnapshotExcluded.WithLabelValues(reason).Inc()
			continue
		}
		table.Rows = append(table.Rows, r.row)
	}

	SortRows(table.Rows, opts.SortKey, opts.Order)
	if opts.Limit > 0 && len(table.Rows) > opts.Limit {
		table.Rows = table.Rows[:opts.Limit]
	}

	logger.Info("Built snapshot",
		logger.Date("date", target),
		logger.Int("rows", len(table.Rows)),
		logger.Int("excluded", len(table.Excluded)),
		logger.Duration("duration", time.Since(start)),
	)
	return table, nil
}

func (a *Aggregator) compile(opts Options) (*plan, error) {
	rules := []*signal.Rule{}
	if len(opts.Rules) > 0 {
		var err error
		rules, err = a.detector.Rules(opts.Rules)
		if err != nil {
			return nil, err
		}
	}

	reqs := opts.Indicators
	if len(reqs) == 0 {
		reqs = indicator.DefaultCatalog()
	}
	reqs = append(append([]indicator.Request{}, reqs...), signal.Requirements(rules)...)

	calcs, err := a.engine.Calculators(reqs)
	if err != nil {
		return nil, err
	}
	return &plan{opts: opts, calcs: calcs, rules: rules}, nil
}

// run fans codes out to a bounded worker pool. Results keep the input
// order so exclusions are reported deterministically.
func (a *Aggregator) run(ctx context.Context, ds *models.Dataset, target time.Time, p *plan, codes []string) []result {
	jobs := make(chan int)
	results := make([]result, len(codes))

	var wg sync.WaitGroup
	workers := min(p.opts.Workers, len(codes))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pos := range jobs {
				code := models.NormalizeCode(codes[pos])
				row, err := a.row(ds, code, target, p)
				row.Code = code
				results[pos] = result{row: row, err: err}
			}
		}()
	}

feed:
	for pos := range codes {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- pos:
		}
	}
	close(jobs)
	wg.Wait()

	return results
}

// row computes the snapshot row of one instrument
func (a *Aggregator) row(ds *models.Dataset, code string, target time.Time, p *plan) (models.SnapshotRow, error) {
	series, err := ds.Series(code)
	if err != nil {
		return models.SnapshotRow{}, err
	}
	inst, _ := ds.Instrument(code)
	return a.Row(series, inst, target, p.calcs, p.rules, p.opts)
}

// Row computes one instrument's snapshot row at target with prebuilt
// calculators and rules
func (a *Aggregator) Row(series *models.InstrumentSeries, inst models.Instrument, target time.Time, calcs []indicator.Calculator, rules []*signal.Rule, opts Options) (models.SnapshotRow, error) {
	opts = opts.withDefaults()

	idx := series.IndexOf(target)
	if idx < 0 {
		return models.SnapshotRow{}, fmt.Errorf("%w: %s has no bar on %s",
			models.ErrInsufficientHistory, series.Code, target.Format("2006-01-02"))
	}
	if idx < opts.MinPriorBars {
		return models.SnapshotRow{}, fmt.Errorf("%w: %s has %d bars before %s, need %d",
			models.ErrInsufficientHistory, series.Code, idx, target.Format("2006-01-02"), opts.MinPriorBars)
	}

	window := series.Window(idx, opts.Lookback)
	frame := a.engine.ComputeWith(window, calcs)
	last := frame.Len() - 1

	bar := window.Bars[last]
	prev := window.Bars[last-1]

	row := models.SnapshotRow{
		Code:       series.Code,
		Name:       inst.Name,
		Sector:     inst.Sector,
		Date:       bar.Date,
		Close:      bar.Close,
		PrevClose:  prev.Close,
		Volume:     bar.Volume,
		ChangePct:  indicator.PercentChange(prev.Close, bar.Close),
		Indicators: frame.Row(last),
	}
	if len(rules) > 0 {
		row.Signals = a.detector.DetectAt(frame, rules, last)
	}
	return row, nil
}

// SortRows orders rows by key, stable for equal values. Undefined values
// sort last in either order.
func SortRows(rows []models.SnapshotRow, key string, order models.SortOrder) {
	desc := order != models.SortOrderAsc

	if key == models.SortByCode {
		sort.SliceStable(rows, func(i, j int) bool {
			if desc {
				return rows[i].Code > rows[j].Code
			}
			return rows[i].Code < rows[j].Code
		})
		return
	}

	sort.SliceStable(rows, func(i, j int) bool {
		vi, vj := rows[i].Metric(key), rows[j].Metric(key)
		switch {
		case !vi.Defined:
			return false
		case !vj.Defined:
			return true
		case desc:
			return vi.V > vj.V
		default:
			return vi.V < vj.V
		}
	})
}

func exclusionReason(err error) string {
	switch {
	case errors.Is(err, models.ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, models.ErrUnknownInstrument):
		return "unknown_instrument"
	case errors.Is(err, models.ErrEmptySeries):
		return "empty_series"
	}
	return "error"
}
