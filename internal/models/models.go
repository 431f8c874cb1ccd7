package models

import (
	"sort"
	"strings"
	"time"
)

// PriceBar represents one instrument's daily OHLCV observation
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Validate validates a PriceBar
func (b *PriceBar) Validate() error {
	if b.Date.IsZero() {
		return ErrMalformedRow
	}
	if b.High < b.Low {
		return ErrInvalidBar
	}
	return nil
}

// InstrumentSeries is the ordered bar history of one instrument.
// Bars are strictly increasing by date.
type InstrumentSeries struct {
	Code string     `json:"code"`
	Bars []PriceBar `json:"bars"`
}

// Len returns the number of bars
func (s *InstrumentSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Validate checks chronological order and bar consistency
func (s *InstrumentSeries) Validate() error {
	if s.Len() == 0 {
		return ErrEmptySeries
	}
	for i := range s.Bars {
		if err := s.Bars[i].Validate(); err != nil {
			return err
		}
		if i > 0 && !s.Bars[i].Date.After(s.Bars[i-1].Date) {
			return ErrUnsortedSeries
		}
	}
	return nil
}

// Closes returns the close prices
func (s *InstrumentSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Highs returns the high prices
func (s *InstrumentSeries) Highs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.High
	}
	return out
}

// Lows returns the low prices
func (s *InstrumentSeries) Lows() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Low
	}
	return out
}

// Volumes returns the traded volumes
func (s *InstrumentSeries) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Volume
	}
	return out
}

// IndexOf returns the index of the bar on the given calendar day, or -1.
func (s *InstrumentSeries) IndexOf(date time.Time) int {
	day := TruncateDay(date)
	i := sort.Search(len(s.Bars), func(i int) bool {
		return !s.Bars[i].Date.Before(day)
	})
	if i < len(s.Bars) && s.Bars[i].Date.Equal(day) {
		return i
	}
	return -1
}

// Window returns the trailing n bars ending at index end (inclusive).
// The returned series shares the underlying bars.
func (s *InstrumentSeries) Window(end, n int) *InstrumentSeries {
	if end >= len(s.Bars) {
		end = len(s.Bars) - 1
	}
	start := end - n + 1
	if start < 0 {
		start = 0
	}
	return &InstrumentSeries{Code: s.Code, Bars: s.Bars[start : end+1]}
}

// Between returns bars whose date falls in [from, to]. Zero bounds are open.
func (s *InstrumentSeries) Between(from, to time.Time) *InstrumentSeries {
	start := 0
	if !from.IsZero() {
		start = sort.Search(len(s.Bars), func(i int) bool {
			return !s.Bars[i].Date.Before(TruncateDay(from))
		})
	}
	end := len(s.Bars)
	if !to.IsZero() {
		end = sort.Search(len(s.Bars), func(i int) bool {
			return s.Bars[i].Date.After(TruncateDay(to))
		})
	}
	if start > end {
		start = end
	}
	return &InstrumentSeries{Code: s.Code, Bars: s.Bars[start:end]}
}

// Instrument is the descriptive metadata attached to a ticker
type Instrument struct {
	Code     string `json:"code"`
	Name     string `json:"name,omitempty"`
	Sector   string `json:"sector,omitempty"`
	Exchange string `json:"exchange,omitempty"`
}

// Direction is the side of a signal
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Signal is one detector event on one bar
type Signal struct {
	Index     int       `json:"index"`
	Date      time.Time `json:"date"`
	Kind      string    `json:"kind"` // rule id, e.g. "ma_cross:sma:20:sma:50"
	Direction Direction `json:"direction"`
	Price     float64   `json:"price"`
}

// TruncateDay drops the clock part of t and normalizes to UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NormalizeCode upper-cases and trims a ticker
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
