package signal

import (
	"fmt"
	"strconv"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/indicator"
)

// EvalFunc decides whether a rule fires on bar i. It must only read rows
// i and i-1 and must not mutate the frame.
type EvalFunc func(f *models.IndicatorFrame, i int) (models.Direction, bool)

// Rule is a compiled signal rule
type Rule struct {
	ID       string // canonical id with every parameter spelled out
	Family   string
	Requires []indicator.Request
	Eval     EvalFunc
}

// Factory compiles a rule from the parameters following the family name
type Factory func(args []string) (*Rule, error)

// Oscillator defaults
const (
	RSIOversold    = 30
	RSIOverbought  = 70
	MidLine        = 50
	CCILevel       = 100
	MFIOversold    = 20
	MFIOverbought  = 80
	DefaultRSI     = 14
	DefaultCCI     = 20
	DefaultMFI     = 14
	DefaultBBands  = 20
	bollingerDevUp = 2
)

// args reads positional rule parameters with defaults
type args []string

func (a args) check(family string, limit int) error {
	if len(a) > limit {
		return fmt.Errorf("%w: %s takes at most %d parameters, got %d", models.ErrUnknownRule, family, limit, len(a))
	}
	return nil
}

func (a args) int(i, def int) (int, error) {
	if i >= len(a) || a[i] == "" {
		return def, nil
	}
	v, err := strconv.Atoi(a[i])
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%w: window %q", models.ErrInvalidWindow, a[i])
	}
	return v, nil
}

func (a args) float(i int, def float64) (float64, error) {
	if i >= len(a) || a[i] == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(a[i], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: threshold %q", models.ErrUnknownRule, a[i])
	}
	return v, nil
}

// maRef names one moving average column
type maRef struct {
	kind   models.IndicatorKind
	window int
}

func (m maRef) key() models.IndicatorKey {
	return models.Key(m.kind, m.window)
}

func (m maRef) request() indicator.Request {
	return windowRequest(string(m.kind), m.window)
}

func (m maRef) String() string {
	return fmt.Sprintf("%s:%d", m.kind, m.window)
}

// ma parses "kind:window" starting at position i
func (a args) ma(i int, def maRef) (maRef, error) {
	ref := def
	if i < len(a) && a[i] != "" {
		switch models.IndicatorKind(a[i]) {
		case models.KindSMA, models.KindEMA:
			ref.kind = models.IndicatorKind(a[i])
		default:
			return maRef{}, fmt.Errorf("%w: moving average kind %q", models.ErrUnknownRule, a[i])
		}
	}
	w, err := a.int(i+1, def.window)
	if err != nil {
		return maRef{}, err
	}
	ref.window = w
	return ref, nil
}

func windowRequest(kind string, w int) indicator.Request {
	return indicator.Request{Kind: kind, Params: []float64{float64(w)}}
}

func bollingerRequest(period int) indicator.Request {
	return indicator.Request{Kind: "bollinger", Params: []float64{float64(period), bollingerDevUp}}
}

var (
	psarRequest = indicator.Request{Kind: "psar"}
	macdRequest = indicator.Request{Kind: "macd"}
	obvRequest  = indicator.Request{Kind: "obv"}

	psarKey       = models.Key(models.KindPSAR, 0)
	macdLineKey   = models.Key(models.KindMACDLine, 0)
	macdSignalKey = models.Key(models.KindMACDSignal, 0)
	macdHistKey   = models.Key(models.KindMACDHist, 0)
	obvKey        = models.Key(models.KindOBV, 0)
)

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// maCross: short MA crossing the long MA
func maCross(p []string) (*Rule, error) {
	a := args(p)
	if err := a.check("ma_cross", 4); err != nil {
		return nil, err
	}
	short, err := a.ma(0, maRef{models.KindSMA, 20})
	if err != nil {
		return nil, err
	}
	long, err := a.ma(2, maRef{models.KindSMA, 50})
	if err != nil {
		return nil, err
	}
	s, l := short.key(), long.key()

	return &Rule{
		ID:       fmt.Sprintf("ma_cross:%s:%s", short, long),
		Requires: []indicator.Request{short.request(), long.request()},
		Eval: func(f *models.IndicatorFrame, i int) (models.Direction, bool) {
			return decide(
				crossUp(column(f, s), column(f, l), i),
				crossDown(column(f, s), column(f, l), i),
			)
		},
	}, nil
}

// priceMACross: close crossing a moving average
func priceMACross(p []string) (*Rule, error) {
	a := args(p)
	if err := a.check("price_ma_cross", 2); err != nil {
		return nil, err
	}
	ma, err := a.ma(0, maRef{models.KindSMA, 20})
	if err != nil {
		return nil, err
	}
	k := ma.key()

	return &Rule{
		ID:       "price_ma_cross:" + ma.String(),
		Requires: []indicator.Request{ma.request()},
		Eval: func(f *models.IndicatorFrame, i int) (models.Direction, bool) {
			return decide(
				crossUp(closes(f), column(f, k), i),
				crossDown(closes(f), column(f, k), i),
			)
		},
	}, nil
}

// psarMATrend: MA crossover confirmed by PSAR on the same side of price
func psarMATrend(p []string) (*Rule, error) {
	a := args(p)
	if err := a.check("psar_ma_trend", 4); err != nil {
		return nil, err
	}
	short, err := a.ma(0, maRef{models.KindSMA, 20})
	if err != nil {
		return nil, err
	}
	long, err := a.ma(2, maRef{models.KindSMA, 100})
	if err != nil {
		return nil, err
	}
	s, l := short.key(), long.key()

	return &Rule{
		ID:       fmt.Sprintf("psar_ma_trend:%s:%s", short, long),
		Requires: []indicator.Request{short.request(), long.request(), psarRequest},
		Eval: func(f *models.IndicatorFrame, i int) (models.Direction, bool) {
			psar := column(f, psarKey)
			return decide(
				crossUp(column(f, s), column(f, l), i) && below(psar, closes(f), i),
				crossDown(column(f, s), column(f, l), i) && above(psar, closes(f), i),
			)
		},
	}, nil
}

// psarFlip: PSAR switching from above the prior bar to below the current one
func psarFlip(p []string) (*Rule, error) {
	a := args(p)
	if err := a.check("psar_flip", 0); err != nil {
		return nil, err
	}
	return &Rule{
		ID:       "psar_flip",
		Requires: []indicator.Request{psarRequest},
		Eval: func(f *models.IndicatorFrame, i int) (models.Direction, bool) {
			psar := column(f, psarKey)
			cur, prev := psar(i), psar(i-1)
			if i < 1 || !cur.Defined || !prev.Defined {
				return "", false
			}
			bar, prior := f.Bar(i), f.Bar(i-1)
			return decide(
				cur.V < bar.Low && prev.V >= prior.High,
				cur.V > bar.High && prev.V <= prior.Low,
			)
		},
	}, nil
}

// psarRSI: PSAR below price while RSI is oversold and turning up
func psarRSI(p []string) (*Rule, error) {
	a := args(p)
	if err := a.check("psar_rsi", 1); err != nil {
		return nil, err
	}
	w, err := a.int(0, DefaultRSI)
	if err != nil {
		return nil, err
	}
	rk := models.Key(models.KindRSI, w)

	return &Rule{
		ID:       fmt.Sprintf("psar_rsi:%d", w),
		Requires: []indicator.Request{psarRequest, windowRequest("rsi", w)},
		Eval: func(f *models.IndicatorFrame, i int) (models.Direction, bool) {
			psar, rsi := column(f, psarKey), column(f, rk)
			cur, prev := rsi(i), rsi(i-1)
			if i < 1 || !cur.Defined || !prev.Defined {
				return "", false
			}
			return decide(
				below(psar, closes(f), i) && cur.V < RSIOversold && prev.V <= cur.V,
				above(psar, closes(f), i) && cur.V > RSIOverbought && prev.V >= cur.V,
			)
		},
	}, nil
}

// psarMACD: PSAR side agreeing with a MACD histogram sign flip
func psarMACD(p []string) (*Rule, error) {
	a := args(p)
	if err := a.check("psar_macd", 0); err != nil {
		return nil, err
	}
	return &Rule{
		ID:       "psar_macd",
		Requires: []indicator.Request{psarRequest, macdRequest},
		Eval: func(f *models.IndicatorFrame, i int) (models.Direction, bool) {
			psar := column(f, psarKey)
			line, sig := column(f, macdLineKey), column(f, macdSignalKey)
			hist := column(f, macdHistKey)
			return decide(
				below(psar, closes(f), i) && above(line, sig, i) && crossUp(hist, level(0), i),
				above(psar, closes(f), i) && below(line, sig, i) && crossDown(hist, level(0), i),
			)
		},
	}, nil
}

// threshold builds a rule firing when an oscillator enters its oversold
// (buy) or overbought (sell) zone
func threshold(family string, kind models.IndicatorKind, defWindow int, defLow, defHigh float64) Factory {
	return func(p []string) (*Rule, error) {
		a := args(p)
		if err := a.check(family, 3); err != nil {
			return nil, err
		}
		w, err := a.int(0, defWindow)
		if err != nil {
			return nil, err
		}
		low, err := a.float(1, defLow)
		if err != nil {
			return nil, err
		}
		high, err := a.float(2, defHigh)
		if err != nil {
			return nil, err
		}
		if low >= high {
			return nil, fmt.Errorf("%w: %s lower threshold %g must be below upper %g", models.ErrUnknownRule, family, low, high)
		}
		k := models.Key(kind, w)

		return &Rule{
			ID:       fmt.Sprintf("%s:%d:%s:%s", family, w, fmtFloat(low), fmtFloat(high)),
			Requires: []indicator.Request{windowRequest(string(kind), w)},
			Eval: func(f *models.IndicatorFrame, i int) (models.Direction, bool) {
				osc := column(f, k)
				return decide(
					crossDown(osc, level(low), i),
					crossUp(osc, level(high), i),
				)
			},
		}, nil
	}
}

// cciThreshold uses a symmetric ±level band
func cciThreshold(p []string) (*Rule, error) {
	a := args(p)
	if err := a.check("cci_threshold", 2); err != nil {
		return nil, err
	}
	w, err := a.int(0, DefaultCCI)
	if err != nil {
		return nil, err
	}
	lvl, err := a.float(1, CCILevel)
	if err != nil {
		return nil, err
	}
	if lvl <= 0 {
		return nil, fmt.Errorf("%w: cci_threshold level must be positive", models.ErrUnknownRule)
	}
	k := models.Key(models.KindCCI, w)

	return &Rule{
		ID:       fmt.Sprintf("cci_threshold:%d:%s", w, fmtFloat(lvl)),
		Requires: []indicator.Request{windowRequest("cci", w)},
		Eval: func(f *models.IndicatorFrame, i int) (models.Direction, bool) {
			cci := column(f, k)
			return decide(crossDown(cci, level(-lvl), i), crossUp(cci, level(lvl), i))
		},
	}, nil
}

// midCross builds a rule firing when an oscillator crosses a centre line
func midCross(family string, kind models.IndicatorKind, defWindow int, defMid float64) Factory {
	return func(p []string) (*Rule, error) {
		a := args(p)
		if err := a.check(family, 2); err != nil {
			return nil, err
		}
		w, err := a.int(0, defWindow)
		if err != nil {
			return nil, err
		}
		mid, err := a.float(1, defMid)
		if err != nil {
			return nil, err
		}
		k := models.Key(kind, w)

		return &Rule{
			ID:       fmt.Sprintf("%s:%d:%s", family, w, fmtFloat(mid)),
			Requires: []indicator.Request{windowRequest(string(kind), w)},
			Eval: func(f *models.IndicatorFrame, i int) (models.Direction, bool) {
				osc := column(f, k)
				return decide(crossUp(osc, level(mid), i), crossDown(osc, level(mid), i))
			},
		}, nil
	}
}

// macdCross: MACD line crossing its signal line. With "hist" the
// histogram must also flip sign on the same bar.
func macdCross(p []string) (*Rule, error) {
	a := args(p)
	if err := a.check("macd_cross", 1); err != nil {
		return nil, err
	}
	confirm := false
	if len(a) == 1 {
		if a[0] != "hist" {
			return nil, fmt.Errorf("%w: macd_cross option %q", models.ErrUnknownRule, a[0])
		}
		confirm = true
	}
	id := "macd_cross"
	if confirm {
		id += ":hist"
	}

	return &Rule{
		ID:       id,
		Requires: []indicator.Request{macdRequest},
		Eval: func(f *models.IndicatorFrame, i int) (models.Direction, bool) {
			line, sig := column(f, macdLineKey), column(f, macdSignalKey)
			buy, sell := crossUp(line, sig, i), crossDown(line, sig, i)
			if confirm {
				hist := column(f, macdHistKey)
				buy = buy && crossUp(hist, level(0), i)
				sell = sell && crossDown(hist, level(0), i)
			}
			return decide(buy, sell)
		},
	}, nil
}

// macdZeroCross: MACD line crossing zero
func macdZeroCross(p []string) (*Rule, error) {
	a := args(p)
	if err := a.check("macd_zero_cross", 0); err != nil {
		return nil, err
	}
	return &Rule{
		ID:       "macd_zero_cross",
		Requires: []indicator.Request{macdRequest},
		Eval: func(f *models.IndicatorFrame, i int) (models.Direction, bool) {
			line := column(f, macdLineKey)
			return decide(crossUp(line, level(0), i), crossDown(line, level(0), i))
		},
	}, nil
}

// bands reads the Bollinger period parameter shared by the bb_* rules
func bands(a args, family string, limit int) (int, error) {
	if err := a.check(family, limit); err != nil {
		return 0, err
	}
	period, err := a.int(0, DefaultBBands)
	if err != nil {
		return 0, err
	}
	if period < 2 {
		return 0, fmt.Errorf("%w: Bollinger period must be at least 2", models.ErrInvalidWindow)
	}
	return period, nil
}

// bbTouch: close at or beyond a band
func bbTouch(p []string) (*Rule, error) {
	a := args(p)
	period, err := bands(a, "bb_touch", 1)
	if err != nil {
		return nil, err
	}
	upper, lower := models.Key(models.KindBBUpper, period), models.Key(models.KindBBLower, period)

	return &Rule{
		ID:       fmt.Sprintf("bb_touch:%d", period),
		Requires: []indicator.Request{bollingerRequest(period)},
		Eval: func(f *models.IndicatorFrame, i int) (models.Direction, bool) {
			up, lo := f.At(upper, i), f.At(lower, i)
			if !up.Defined || !lo.Defined {
				return "", false
			}
			c := f.Bar(i).Close
			return decide(c <= lo.V, c >= up.V)
		},
	}, nil
}

// bbBandBreach: intraday high above the upper band (breakout) or low below
// the lower band (breakdown)
func bbBandBreach(p []string) (*Rule, error) {
	a := args(p)
	period, err := bands(a, "bb_band_breach", 1)
	if err != nil {
		return nil, err
	}
	upper, lower := models.Key(models.KindBBUpper, period), models.Key(models.KindBBLower, period)

	return &Rule{
		ID:       fmt.Sprintf("bb_band_breach:%d", period),
		Requires: []indicator.Request{bollingerRequest(period)},
		Eval: func(f *models.IndicatorFrame, i int) (models.Direction, bool) {
			return decide(
				above(highs(f), column(f, upper), i),
				below(lows(f), column(f, lower), i),
			)
		},
	}, nil
}

// bbRSI: band touch confirmed by RSI in the matching zone
func bbRSI(p []string) (*Rule, error) {
	a := args(p)
	period, err := bands(a, "bb_rsi", 2)
	if err != nil {
		return nil, err
	}
	w, err := a.int(1, DefaultRSI)
	if err != nil {
		return nil, err
	}
	upper, lower := models.Key(models.KindBBUpper, period), models.Key(models.KindBBLower, period)
	rk := models.Key(models.KindRSI, w)

	return &Rule{
		ID:       fmt.Sprintf("bb_rsi:%d:%d", period, w),
		Requires: []indicator.Request{bollingerRequest(period), windowRequest("rsi", w)},
		Eval: func(f *models.IndicatorFrame, i int) (models.Direction, bool) {
			up, lo, rsi := f.At(upper, i), f.At(lower, i), f.At(rk, i)
			if !up.Defined || !lo.Defined || !rsi.Defined {
				return "", false
			}
			c := f.Bar(i).Close
			return decide(
				c <= lo.V && rsi.V < RSIOversold,
				c >= up.V && rsi.V > RSIOverbought,
			)
		},
	}, nil
}

// bbMACD: MACD crossover while price sits beyond the matching band
func bbMACD(p []string) (*Rule, error) {
	a := args(p)
	period, err := bands(a, "bb_macd", 1)
	if err != nil {
		return nil, err
	}
	upper, lower := models.Key(models.KindBBUpper, period), models.Key(models.KindBBLower, period)

	return &Rule{
		ID:       fmt.Sprintf("bb_macd:%d", period),
		Requires: []indicator.Request{bollingerRequest(period), macdRequest},
		Eval: func(f *models.IndicatorFrame, i int) (models.Direction, bool) {
			line, sig := column(f, macdLineKey), column(f, macdSignalKey)
			c := closes(f)
			return decide(
				crossUp(line, sig, i) && atMost(c, column(f, lower), i),
				crossDown(line, sig, i) && atLeast(c, column(f, upper), i),
			)
		},
	}, nil
}

// rsiMACD: MACD crossover while RSI is oversold or overbought
func rsiMACD(p []string) (*Rule, error) {
	a := args(p)
	if err := a.check("rsi_macd", 1); err != nil {
		return nil, err
	}
	w, err := a.int(0, DefaultRSI)
	if err != nil {
		return nil, err
	}
	rk := models.Key(models.KindRSI, w)

	return &Rule{
		ID:       fmt.Sprintf("rsi_macd:%d", w),
		Requires: []indicator.Request{windowRequest("rsi", w), macdRequest},
		Eval: func(f *models.IndicatorFrame, i int) (models.Direction, bool) {
			line, sig := column(f, macdLineKey), column(f, macdSignalKey)
			rsi := column(f, rk)
			return decide(
				crossUp(line, sig, i) && below(rsi, level(RSIOversold), i),
				crossDown(line, sig, i) && above(rsi, level(RSIOverbought), i),
			)
		},
	}, nil
}

// divergence builds a rule firing when price and an indicator move in
// opposite directions between consecutive bars: price down with the
// indicator up is bullish, the mirror is bearish
func divergence(family string, key func(args) (models.IndicatorKey, indicator.Request, string, error)) Factory {
	return func(p []string) (*Rule, error) {
		a := args(p)
		k, req, suffix, err := key(a)
		if err != nil {
			return nil, err
		}
		return &Rule{
			ID:       family + suffix,
			Requires: []indicator.Request{req},
			Eval: func(f *models.IndicatorFrame, i int) (models.Direction, bool) {
				ind, c := column(f, k), closes(f)
				return decide(
					falling(c, i) && rising(ind, i),
					rising(c, i) && falling(ind, i),
				)
			},
		}, nil
	}
}

func obvKeyArgs(a args) (models.IndicatorKey, indicator.Request, string, error) {
	if err := a.check("obv_divergence", 0); err != nil {
		return models.IndicatorKey{}, indicator.Request{}, "", err
	}
	return obvKey, obvRequest, "", nil
}

func mfiKeyArgs(a args) (models.IndicatorKey, indicator.Request, string, error) {
	if err := a.check("mfi_divergence", 1); err != nil {
		return models.IndicatorKey{}, indicator.Request{}, "", err
	}
	w, err := a.int(0, DefaultMFI)
	if err != nil {
		return models.IndicatorKey{}, indicator.Request{}, "", err
	}
	return models.Key(models.KindMFI, w), windowRequest("mfi", w), fmt.Sprintf(":%d", w), nil
}

// obvBreakout: OBV and close rising together; buy only
func obvBreakout(p []string) (*Rule, error) {
	a := args(p)
	if err := a.check("obv_breakout", 0); err != nil {
		return nil, err
	}
	return &Rule{
		ID:       "obv_breakout",
		Requires: []indicator.Request{obvRequest},
		Eval: func(f *models.IndicatorFrame, i int) (models.Direction, bool) {
			return decide(rising(column(f, obvKey), i) && rising(closes(f), i), false)
		},
	}, nil
}
