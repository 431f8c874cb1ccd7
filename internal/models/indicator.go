package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// IndicatorKind identifies one output column family of the indicator engine
type IndicatorKind string

const (
	KindSMA        IndicatorKind = "sma"
	KindEMA        IndicatorKind = "ema"
	KindMACDLine   IndicatorKind = "macd_line"
	KindMACDSignal IndicatorKind = "macd_signal"
	KindMACDHist   IndicatorKind = "macd_hist"
	KindRSI        IndicatorKind = "rsi"
	KindPSAR       IndicatorKind = "psar"
	KindCCI        IndicatorKind = "cci"
	KindBBUpper    IndicatorKind = "bb_upper"
	KindBBMiddle   IndicatorKind = "bb_middle"
	KindBBLower    IndicatorKind = "bb_lower"
	KindOBV        IndicatorKind = "obv"
	KindMFI        IndicatorKind = "mfi"
	KindATR        IndicatorKind = "atr"
	KindStochK     IndicatorKind = "stoch_k"
	KindROC        IndicatorKind = "roc"
)

// IndicatorKey is the structured column key of an IndicatorFrame.
// Window is zero for parameterless outputs such as obv or macd_line.
type IndicatorKey struct {
	Kind   IndicatorKind
	Window int
}

// Key is shorthand for IndicatorKey{kind, window}
func Key(kind IndicatorKind, window int) IndicatorKey {
	return IndicatorKey{Kind: kind, Window: window}
}

// String renders the key as a column name, e.g. "sma_20" or "obv"
func (k IndicatorKey) String() string {
	if k.Window == 0 {
		return string(k.Kind)
	}
	return fmt.Sprintf("%s_%d", k.Kind, k.Window)
}

// MarshalText lets keys be used as JSON object keys
func (k IndicatorKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a column name
func (k *IndicatorKey) UnmarshalText(text []byte) error {
	parsed, err := ParseIndicatorKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseIndicatorKey parses "rsi_14", "bb_upper_20" or "macd_hist"
func ParseIndicatorKey(s string) (IndicatorKey, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return IndicatorKey{}, fmt.Errorf("%w: empty key", ErrUnknownIndicator)
	}
	if idx := strings.LastIndex(s, "_"); idx > 0 {
		if w, err := strconv.Atoi(s[idx+1:]); err == nil {
			if w <= 0 {
				return IndicatorKey{}, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
			}
			return IndicatorKey{Kind: IndicatorKind(s[:idx]), Window: w}, nil
		}
	}
	return IndicatorKey{Kind: IndicatorKind(s)}, nil
}

// IndicatorFrame is an InstrumentSeries augmented with indicator columns.
// Every column has exactly Series.Len() values.
type IndicatorFrame struct {
	Series  *InstrumentSeries
	columns map[IndicatorKey]Column
}

// NewIndicatorFrame creates an empty frame over series
func NewIndicatorFrame(series *InstrumentSeries) *IndicatorFrame {
	return &IndicatorFrame{
		Series:  series,
		columns: make(map[IndicatorKey]Column),
	}
}

// Len returns the number of rows
func (f *IndicatorFrame) Len() int {
	return f.Series.Len()
}

// Set stores a column. Columns of the wrong length are padded or cut.
func (f *IndicatorFrame) Set(key IndicatorKey, col Column) {
	n := f.Len()
	if len(col) != n {
		fixed := NewColumn(n)
		copy(fixed, col)
		col = fixed
	}
	f.columns[key] = col
}

// Get returns the column for key
func (f *IndicatorFrame) Get(key IndicatorKey) (Column, bool) {
	col, ok := f.columns[key]
	return col, ok
}

// At returns the value of key at row i; missing columns read as Undefined.
func (f *IndicatorFrame) At(key IndicatorKey, i int) Value {
	return f.columns[key].At(i)
}

// Has reports whether the frame holds a column for key
func (f *IndicatorFrame) Has(key IndicatorKey) bool {
	_, ok := f.columns[key]
	return ok
}

// Keys returns the column keys in name order
func (f *IndicatorFrame) Keys() []IndicatorKey {
	keys := make([]IndicatorKey, 0, len(f.columns))
	for k := range f.columns {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// Columns returns a copy of the column map
func (f *IndicatorFrame) Columns() map[IndicatorKey]Column {
	out := make(map[IndicatorKey]Column, len(f.columns))
	for k, v := range f.columns {
		out[k] = v
	}
	return out
}

// Row returns every indicator value at row i
func (f *IndicatorFrame) Row(i int) map[IndicatorKey]Value {
	row := make(map[IndicatorKey]Value, len(f.columns))
	for k, col := range f.columns {
		row[k] = col.At(i)
	}
	return row
}

// Bar returns the price bar at row i
func (f *IndicatorFrame) Bar(i int) PriceBar {
	return f.Series.Bars[i]
}

// Slice returns a frame restricted to rows [start, end).
func (f *IndicatorFrame) Slice(start, end int) *IndicatorFrame {
	if start < 0 {
		start = 0
	}
	if end > f.Len() {
		end = f.Len()
	}
	if start > end {
		start = end
	}
	out := NewIndicatorFrame(&InstrumentSeries{Code: f.Series.Code, Bars: f.Series.Bars[start:end]})
	for k, col := range f.columns {
		out.columns[k] = col[start:end]
	}
	return out
}
