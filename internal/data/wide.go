package data

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/logger"
)

// Sector labels used when the sheet leaves the sector blank or dashed
const (
	UnknownSector       = "Unknown Sector"
	UncategorizedSector = "Uncategorized"
)

// metadataColumns are descriptive columns of wide sheets; they are never dates
var metadataColumns = map[string]bool{
	"ric":        true,
	"start date": true,
	"exchange":   true,
	"sector":     true,
	"activity":   true,
	"name":       true,
	"code":       true,
	"ticker":     true,
	"symbol":     true,
}

// WideTable is a sheet with one row per instrument and one column per date
type WideTable struct {
	Header []string
	Rows   [][]string
}

// wideLayout locates the interesting columns of a WideTable
type wideLayout struct {
	code, name, sector, exchange int
	dateCols                     []int
	dates                        []time.Time
}

func (t WideTable) layout() (wideLayout, error) {
	l := wideLayout{code: -1, name: -1, sector: -1, exchange: -1}
	for i, h := range t.Header {
		key := strings.ToLower(strings.TrimSpace(h))
		switch key {
		case "code", "ticker", "symbol":
			l.code = i
		case "name":
			l.name = i
		case "sector":
			l.sector = i
		case "exchange":
			l.exchange = i
		}
		if metadataColumns[key] {
			continue
		}
		if d, err := ParseDate(h); err == nil {
			l.dateCols = append(l.dateCols, i)
			l.dates = append(l.dates, d)
		}
	}

	if len(l.dateCols) == 0 {
		return l, models.ErrNoDateColumns
	}
	if l.code < 0 {
		return l, fmt.Errorf("wide table has no Code column")
	}
	return l, nil
}

// DateColumns returns the dates found in the header, in column order
func (t WideTable) DateColumns() ([]time.Time, error) {
	l, err := t.layout()
	if err != nil {
		return nil, err
	}
	return l.dates, nil
}

// cell returns row[i] or "" when the row is short or i < 0
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// ToLong converts the table into long-format rows. volumes, when given, is
// a wide table of the same shape whose cells fill RawRow.Volume.
func (t WideTable) ToLong(volumes *WideTable) ([]RawRow, error) {
	l, err := t.layout()
	if err != nil {
		return nil, err
	}

	volumeCells := make(map[string]map[time.Time]string)
	if volumes != nil {
		vl, err := volumes.layout()
		if err != nil {
			return nil, fmt.Errorf("volume table: %w", err)
		}
		for _, row := range volumes.Rows {
			code := models.NormalizeCode(cell(row, vl.code))
			byDate := make(map[time.Time]string, len(vl.dateCols))
			for j, col := range vl.dateCols {
				byDate[vl.dates[j]] = cell(row, col)
			}
			volumeCells[code] = byDate
		}
	}

	rows := make([]RawRow, 0, len(t.Rows)*len(l.dateCols))
	for r, row := range t.Rows {
		code := models.NormalizeCode(cell(row, l.code))
		for j, col := range l.dateCols {
			rows = append(rows, RawRow{
				Code:   code,
				Date:   l.dates[j].Format("2006-01-02"),
				Close:  cell(row, col),
				Volume: volumeCells[code][l.dates[j]],
				Line:   r + 2,
			})
		}
	}
	return rows, nil
}

// Instruments reads the descriptive columns of each row
func (t WideTable) Instruments() (map[string]models.Instrument, error) {
	l, err := t.layout()
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Instrument, len(t.Rows))
	for _, row := range t.Rows {
		code := models.NormalizeCode(cell(row, l.code))
		if code == "" {
			continue
		}
		out[code] = models.Instrument{
			Code:     code,
			Name:     cell(row, l.name),
			Sector:   normalizeSector(cell(row, l.sector)),
			Exchange: cell(row, l.exchange),
		}
	}
	return out, nil
}

// NormalizeWide normalizes a wide price table, with an optional matching
// volume table. A header without any date column is the one fatal case.
func (n *Normalizer) NormalizeWide(prices WideTable, volumes *WideTable) (map[string]*models.InstrumentSeries, map[string]models.Instrument, NormalizeReport, error) {
	rows, err := prices.ToLong(volumes)
	if err != nil {
		return nil, nil, NormalizeReport{}, err
	}
	instruments, err := prices.Instruments()
	if err != nil {
		return nil, nil, NormalizeReport{}, err
	}
	series, report := n.NormalizeLong(rows)
	return series, instruments, report, nil
}

// MarketCapsFromWide reads a wide market-capitalization sheet. Cells that
// are not decimal numbers are skipped and counted.
func MarketCapsFromWide(t WideTable) ([]models.MarketCapRow, int, error) {
	l, err := t.layout()
	if err != nil {
		return nil, 0, err
	}

	out := make([]models.MarketCapRow, 0, len(t.Rows)*len(l.dateCols))
	skipped := 0
	for _, row := range t.Rows {
		code := models.NormalizeCode(cell(row, l.code))
		name := cell(row, l.name)
		sector := normalizeSector(cell(row, l.sector))
		for j, col := range l.dateCols {
			raw := strings.ReplaceAll(cell(row, col), ",", "")
			if raw == "" {
				skipped++
				continue
			}
			value, err := decimal.NewFromString(raw)
			if err != nil {
				skipped++
				continue
			}
			out = append(out, models.MarketCapRow{
				Code:   code,
				Name:   name,
				Sector: sector,
				Date:   l.dates[j],
				Cap:    value,
			})
		}
	}

	if skipped > 0 {
		logger.Debug("Skipped market cap cells", logger.Int("skipped", skipped))
	}
	return out, skipped, nil
}

func normalizeSector(s string) string {
	switch strings.TrimSpace(s) {
	case "":
		return UnknownSector
	case "-":
		return UncategorizedSector
	}
	return strings.TrimSpace(s)
}
