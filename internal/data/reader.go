package data

import (
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// longAliases maps accepted long-format header spellings to RawRow fields
var longAliases = map[string]string{
	"date":        "date",
	"ngày":        "date",
	"code":        "code",
	"ticker":      "code",
	"symbol":      "code",
	"open":        "open",
	"high":        "high",
	"low":         "low",
	"close":       "close",
	"close_price": "close",
	"price":       "close",
	"volume":      "volume",
	"vol":         "volume",
	"net.f_val":   "net_foreign",
}

// OpenFile opens path for reading, gunzipping transparently when the name
// ends in .gz. The caller closes the returned reader.
func OpenFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open gzip %s: %w", path, err)
	}
	return &gzipFile{Reader: gz, file: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	return errors.Join(g.Reader.Close(), g.file.Close())
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true
	return cr
}

// headerIndex maps canonical long-format fields to column positions
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		key = strings.ReplaceAll(key, " ", "_")
		if field, ok := longAliases[key]; ok {
			if _, seen := idx[field]; !seen {
				idx[field] = i
			}
		}
	}
	return idx
}

// ReadLongCSV reads a long-format table (one row per instrument per date).
// Date and close columns are required; everything else is optional.
func ReadLongCSV(r io.Reader) ([]RawRow, error) {
	cr := newCSVReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := headerIndex(header)
	if _, ok := idx["date"]; !ok {
		return nil, fmt.Errorf("%w: long table has no date column", models.ErrNoDateColumns)
	}
	if _, ok := idx["close"]; !ok {
		return nil, fmt.Errorf("long table has no close column")
	}

	get := func(rec []string, field string) string {
		i, ok := idx[field]
		if !ok {
			return ""
		}
		return cell(rec, i)
	}

	rows := make([]RawRow, 0)
	line := 1
	for {
		rec, err := cr.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, RawRow{
			Code:   get(rec, "code"),
			Date:   get(rec, "date"),
			Open:   get(rec, "open"),
			High:   get(rec, "high"),
			Low:    get(rec, "low"),
			Close:  get(rec, "close"),
			Volume: get(rec, "volume"),
			Line:   line,
		})
	}
	return rows, nil
}

// ReadWideCSV reads a wide-format table (one column per date)
func ReadWideCSV(r io.Reader) (WideTable, error) {
	cr := newCSVReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return WideTable{}, err
	}
	if len(records) == 0 {
		return WideTable{}, fmt.Errorf("%w: empty table", models.ErrNoDateColumns)
	}
	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return WideTable{Header: header, Rows: records[1:]}, nil
}

// ReadForeignFlowCSV reads per-date net foreign trading values. Rows with a
// bad date, close or net value are skipped and counted.
func ReadForeignFlowCSV(r io.Reader, defaultCode string) ([]models.ForeignFlowRow, int, error) {
	cr := newCSVReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	idx := headerIndex(header)
	for _, field := range []string{"date", "close", "net_foreign"} {
		if _, ok := idx[field]; !ok {
			return nil, 0, fmt.Errorf("foreign flow table has no %s column", field)
		}
	}

	out := make([]models.ForeignFlowRow, 0)
	skipped := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, skipped, err
		}

		date, err := ParseDate(cell(rec, idx["date"]))
		if err != nil {
			skipped++
			continue
		}
		closePrice, ok := parseNumber(cell(rec, idx["close"]))
		if !ok {
			skipped++
			continue
		}
		net, ok := parseNumber(cell(rec, idx["net_foreign"]))
		if !ok {
			skipped++
			continue
		}

		code := defaultCode
		if i, ok := idx["code"]; ok && cell(rec, i) != "" {
			code = cell(rec, i)
		}
		out = append(out, models.ForeignFlowRow{
			Code:     models.NormalizeCode(code),
			Date:     date,
			NetValue: net,
			Close:    closePrice,
		})
	}
	return out, skipped, nil
}
