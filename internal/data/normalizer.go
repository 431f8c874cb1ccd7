package data

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/logger"
)

// dateLayouts are the date spellings found in exported price sheets
var dateLayouts = []string{
	"2006-01-02",
	"20060102",
	"02/01/2006",
	time.RFC3339,
}

// RawRow is one unparsed long-format observation. Empty cells mean absent.
type RawRow struct {
	Code   string
	Date   string
	Open   string
	High   string
	Low    string
	Close  string
	Volume string
	Line   int // source line, for diagnostics
}

// NormalizeReport counts what the normalizer kept and dropped
type NormalizeReport struct {
	Rows             int      `json:"rows"`
	Kept             int      `json:"kept"`
	Dropped          int      `json:"dropped"`
	Duplicates       int      `json:"duplicates"`
	EmptyInstruments []string `json:"empty_instruments,omitempty"`
}

// Merge adds other into r
func (r *NormalizeReport) Merge(other NormalizeReport) {
	r.Rows += other.Rows
	r.Kept += other.Kept
	r.Dropped += other.Dropped
	r.Duplicates += other.Duplicates
	r.EmptyInstruments = append(r.EmptyInstruments, other.EmptyInstruments...)
}

// Normalizer turns raw rows into validated InstrumentSeries
type Normalizer struct {
	sourceName string
}

// NewNormalizer creates a normalizer; sourceName only labels log lines
func NewNormalizer(sourceName string) *Normalizer {
	return &Normalizer{sourceName: sourceName}
}

// parsedRow is a RawRow after cell parsing; nil pointers are absent cells
type parsedRow struct {
	date            time.Time
	open, high, low *float64
	close           float64
	volume          float64
}

// Normalize builds the series of one instrument. Rows with a bad date or
// close are dropped and counted; ErrEmptySeries is returned when nothing
// survives.
func (n *Normalizer) Normalize(code string, rows []RawRow) (*models.InstrumentSeries, NormalizeReport, error) {
	code = models.NormalizeCode(code)
	report := NormalizeReport{Rows: len(rows)}

	parsed := make([]parsedRow, 0, len(rows))
	for _, raw := range rows {
		row, err := parseRow(raw)
		if err != nil {
			report.Dropped++
			logger.NormalizerRowsDropped.WithLabelValues("malformed").Inc()
			logger.Debug("Dropping malformed row",
				logger.String("source", n.sourceName),
				logger.Code(code),
				logger.Int("line", raw.Line),
				logger.ErrorField(err),
			)
			continue
		}
		parsed = append(parsed, row)
	}

	// stable, so equal dates keep input order
	sort.SliceStable(parsed, func(i, j int) bool {
		return parsed[i].date.Before(parsed[j].date)
	})

	// keep the last occurrence of each date
	deduped := parsed[:0]
	for i := 0; i < len(parsed); i++ {
		if i+1 < len(parsed) && parsed[i+1].date.Equal(parsed[i].date) {
			report.Duplicates++
			continue
		}
		deduped = append(deduped, parsed[i])
	}

	if report.Dropped > 0 {
		logger.Warn("Dropped malformed rows",
			logger.String("source", n.sourceName),
			logger.Code(code),
			logger.Int("dropped", report.Dropped),
			logger.Int("rows", report.Rows),
		)
	}

	if len(deduped) == 0 {
		report.EmptyInstruments = append(report.EmptyInstruments, code)
		return nil, report, fmt.Errorf("%w: %s", models.ErrEmptySeries, code)
	}

	series := &models.InstrumentSeries{Code: code, Bars: make([]models.PriceBar, len(deduped))}
	for i, row := range deduped {
		bar := models.PriceBar{Date: row.date, Close: row.close, Volume: row.volume}

		switch {
		case row.open != nil:
			bar.Open = *row.open
		case i > 0:
			bar.Open = deduped[i-1].close
		default:
			bar.Open = row.close
		}

		bodyHigh := math.Max(bar.Open, bar.Close)
		bodyLow := math.Min(bar.Open, bar.Close)
		bar.High = bodyHigh
		if row.high != nil {
			bar.High = math.Max(*row.high, bodyHigh)
		}
		bar.Low = bodyLow
		if row.low != nil {
			bar.Low = math.Min(*row.low, bodyLow)
		}

		series.Bars[i] = bar
	}
	report.Kept = len(series.Bars)

	return series, report, nil
}

// NormalizeLong groups long-format rows by code and normalizes each group.
// Instruments left empty after cleaning are listed in the report and omitted.
func (n *Normalizer) NormalizeLong(rows []RawRow) (map[string]*models.InstrumentSeries, NormalizeReport) {
	groups := make(map[string][]RawRow)
	order := make([]string, 0)
	var report NormalizeReport

	for _, row := range rows {
		code := models.NormalizeCode(row.Code)
		if code == "" {
			report.Rows++
			report.Dropped++
			logger.NormalizerRowsDropped.WithLabelValues("missing_code").Inc()
			continue
		}
		if _, ok := groups[code]; !ok {
			order = append(order, code)
		}
		groups[code] = append(groups[code], row)
	}

	out := make(map[string]*models.InstrumentSeries, len(groups))
	for _, code := range order {
		series, r, err := n.Normalize(code, groups[code])
		report.Merge(r)
		if err != nil {
			continue
		}
		out[code] = series
	}

	sort.Strings(report.EmptyInstruments)
	return out, report
}

// parseRow parses the cells of one raw row
func parseRow(raw RawRow) (parsedRow, error) {
	date, err := ParseDate(raw.Date)
	if err != nil {
		return parsedRow{}, err
	}

	closePrice, ok := parseNumber(raw.Close)
	if !ok {
		return parsedRow{}, fmt.Errorf("%w: close %q", models.ErrMalformedRow, raw.Close)
	}

	row := parsedRow{date: date, close: closePrice}
	if v, ok := parseNumber(raw.Open); ok {
		row.open = &v
	}
	if v, ok := parseNumber(raw.High); ok {
		row.high = &v
	}
	if v, ok := parseNumber(raw.Low); ok {
		row.low = &v
	}
	if v, ok := parseNumber(raw.Volume); ok {
		row.volume = v
	}
	return row, nil
}

// ParseDate parses the date spellings used by the exports, ignoring a
// trailing midnight clock ("2024-01-02 00:00:00").
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, " 00:00:00")
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", models.ErrMalformedRow)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.TruncateDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: date %q", models.ErrMalformedRow, s)
}

// parseNumber parses a numeric cell; thousands separators are accepted.
// Empty, non-numeric and non-finite cells report false.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || s == "-" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
