package data

import (
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

func TestReadLongCSV_HeaderAliases(t *testing.T) {
	input := "\ufeffTicker,Ngày,Close Price,Vol\nVNM,2024-01-02,70.5,\"1,200\"\nFPT,2024-01-02,95,800\n"

	rows, err := ReadLongCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, RawRow{Code: "VNM", Date: "2024-01-02", Close: "70.5", Volume: "1,200", Line: 2}, rows[0])
	assert.Equal(t, "FPT", rows[1].Code)
	assert.Equal(t, 3, rows[1].Line)
}

func TestReadLongCSV_MissingColumns(t *testing.T) {
	_, err := ReadLongCSV(strings.NewReader("code,close\nVNM,1\n"))
	assert.True(t, errors.Is(err, models.ErrNoDateColumns))

	_, err = ReadLongCSV(strings.NewReader("code,date\nVNM,2024-01-02\n"))
	assert.Error(t, err)

	_, err = ReadLongCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestReadWideCSV(t *testing.T) {
	input := "Code,Name,Sector,2024-01-02,2024-01-03\nVNM,Vinamilk,Food,70,71\n"

	table, err := ReadWideCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, table.Rows, 1)

	dates, err := table.DateColumns()
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-02", "2024-01-03"}, []string{
		dates[0].Format("2006-01-02"), dates[1].Format("2006-01-02"),
	})

	_, err = ReadWideCSV(strings.NewReader(""))
	assert.True(t, errors.Is(err, models.ErrNoDateColumns))
}

func TestReadForeignFlowCSV(t *testing.T) {
	input := "Date,Close,Net.F_Val\n2024-01-02,70,1500000\nbad,70,1\n2024-01-03,,5\n2024-01-04,71,-250000\n"

	flows, skipped, err := ReadForeignFlowCSV(strings.NewReader(input), "vnm")
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, flows, 2)

	assert.Equal(t, "VNM", flows[0].Code)
	assert.Equal(t, 1500000.0, flows[0].NetValue)
	assert.Equal(t, 70.0, flows[0].Close)
	assert.Equal(t, -250000.0, flows[1].NetValue)

	_, _, err = ReadForeignFlowCSV(strings.NewReader("Date,Close\n"), "")
	assert.Error(t, err)
}

func TestMarketCapsFromWide(t *testing.T) {
	table := WideTable{
		Header: []string{"Code", "Name", "Sector", "2024-01-02", "2024-01-03"},
		Rows: [][]string{
			{"VCB", "Vietcombank", "Banks", "450,000", "452000.5"},
			{"XYZ", "Unknown Co", "-", "n/a", ""},
		},
	}

	caps, skipped, err := MarketCapsFromWide(table)
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, caps, 2)
	assert.Equal(t, "450000", caps[0].Cap.String())
	assert.Equal(t, "452000.5", caps[1].Cap.String())
	assert.Equal(t, "Banks", caps[0].Sector)

	_, _, err = MarketCapsFromWide(WideTable{Header: []string{"Code"}})
	assert.True(t, errors.Is(err, models.ErrNoDateColumns))
}

func TestOpenFile_Gzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prices.csv.gz")

	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte("code,date,close\nVNM,2024-01-02,70\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	r, err := OpenFile(path)
	require.NoError(t, err)
	defer r.Close()

	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "code,date,close\nVNM,2024-01-02,70\n", string(body))

	_, err = OpenFile(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}
