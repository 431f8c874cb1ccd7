package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MarketCapRow is one instrument's market capitalization on one date
type MarketCapRow struct {
	Code   string          `json:"code"`
	Name   string          `json:"name,omitempty"`
	Sector string          `json:"sector"`
	Date   time.Time       `json:"date"`
	Cap    decimal.Decimal `json:"cap"`
}

// ForeignFlowRow is the net foreign trading value of one instrument on one date
type ForeignFlowRow struct {
	Code     string    `json:"code"`
	Date     time.Time `json:"date"`
	NetValue float64   `json:"net_value"`
	Close    float64   `json:"close"`
}

// Dataset is an immutable snapshot of everything loaded from the data sources.
// It is never mutated after construction; reloads build a new Dataset.
type Dataset struct {
	LoadedAt     time.Time
	DroppedRows  int
	MarketCaps   []MarketCapRow
	ForeignFlows []ForeignFlowRow

	series      map[string]*InstrumentSeries
	instruments map[string]Instrument
	codes       []string
	dates       []time.Time
}

// NewDataset builds a dataset. Instruments without metadata get a bare entry.
func NewDataset(series map[string]*InstrumentSeries, instruments map[string]Instrument) *Dataset {
	d := &Dataset{
		LoadedAt:    time.Now(),
		series:      make(map[string]*InstrumentSeries, len(series)),
		instruments: make(map[string]Instrument, len(series)),
	}

	seen := make(map[time.Time]struct{})
	for code, s := range series {
		code = NormalizeCode(code)
		d.series[code] = s
		d.codes = append(d.codes, code)

		inst, ok := instruments[code]
		if !ok {
			inst = Instrument{Code: code}
		}
		d.instruments[code] = inst

		for _, b := range s.Bars {
			seen[b.Date] = struct{}{}
		}
	}
	sort.Strings(d.codes)

	d.dates = make([]time.Time, 0, len(seen))
	for t := range seen {
		d.dates = append(d.dates, t)
	}
	sort.Slice(d.dates, func(i, j int) bool { return d.dates[i].Before(d.dates[j]) })

	return d
}

// Series returns the series of one instrument
func (d *Dataset) Series(code string) (*InstrumentSeries, error) {
	s, ok := d.series[NormalizeCode(code)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstrument, code)
	}
	return s, nil
}

// Instrument returns the metadata of one instrument
func (d *Dataset) Instrument(code string) (Instrument, bool) {
	inst, ok := d.instruments[NormalizeCode(code)]
	return inst, ok
}

// Codes returns all instrument codes in sorted order
func (d *Dataset) Codes() []string {
	out := make([]string, len(d.codes))
	copy(out, d.codes)
	return out
}

// Dates returns the union of all bar dates in ascending order
func (d *Dataset) Dates() []time.Time {
	out := make([]time.Time, len(d.dates))
	copy(out, d.dates)
	return out
}

// LatestDate returns the last date present in the dataset
func (d *Dataset) LatestDate() (time.Time, bool) {
	if len(d.dates) == 0 {
		return time.Time{}, false
	}
	return d.dates[len(d.dates)-1], true
}

// Search returns instruments whose code or name starts with query,
// case-insensitive. An empty query returns every instrument.
func (d *Dataset) Search(query string) []Instrument {
	q := strings.ToUpper(strings.TrimSpace(query))
	out := make([]Instrument, 0)
	for _, code := range d.codes {
		inst := d.instruments[code]
		if q == "" || strings.HasPrefix(code, q) || strings.HasPrefix(strings.ToUpper(inst.Name), q) {
			out = append(out, inst)
		}
	}
	return out
}

// Len returns the number of instruments
func (d *Dataset) Len() int {
	return len(d.codes)
}
