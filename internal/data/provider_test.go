package data

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSourceFactory(t *testing.T) {
	factory := NewSourceFactory()
	assert.Equal(t, []string{"file", "postgres"}, factory.ListSources())

	_, err := factory.CreateSource("s3", SourceConfig{})
	assert.True(t, errors.Is(err, ErrUnknownSource))

	_, err = factory.CreateSource("file", SourceConfig{})
	assert.True(t, errors.Is(err, ErrMissingPath))

	_, err = factory.CreateSource("file", SourceConfig{PricePath: "x.csv", Format: "xlsx"})
	assert.Error(t, err)

	_, err = factory.CreateSource("postgres", SourceConfig{})
	assert.Error(t, err)

	assert.Error(t, factory.RegisterSource("file", nil))
}

func TestFileSource_LoadLong(t *testing.T) {
	dir := t.TempDir()
	prices := writeFile(t, dir, "prices.csv",
		"code,date,open,high,low,close,volume\n"+
			"VNM,2024-01-02,70,71,69,70.5,1000\n"+
			"VNM,2024-01-03,70.5,72,70,71.5,1200\n"+
			"VNM,oops,1,1,1,1,1\n"+
			"FPT,2024-01-03,95,96,94,95.5,800\n")
	caps := writeFile(t, dir, "caps.csv",
		"Code,Name,Sector,2024-01-02,2024-01-03\n"+
			"VNM,Vinamilk,Food,150000,151000\n")
	foreign := writeFile(t, dir, "foreign.csv",
		"Code,Date,Close,Net.F_Val\nVNM,2024-01-03,71.5,2000000\n")

	src, err := NewFileSource(SourceConfig{PricePath: prices, MarketCapPath: caps, ForeignPath: foreign})
	require.NoError(t, err)
	assert.Equal(t, "file", src.Name())

	ds, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"FPT", "VNM"}, ds.Codes())
	assert.Equal(t, 1, ds.DroppedRows)
	assert.Len(t, ds.MarketCaps, 2)
	assert.Len(t, ds.ForeignFlows, 1)

	inst, ok := ds.Instrument("vnm")
	require.True(t, ok)
	assert.Equal(t, "Vinamilk", inst.Name)
	assert.Equal(t, "Food", inst.Sector)

	latest, ok := ds.LatestDate()
	require.True(t, ok)
	assert.Equal(t, date("2024-01-03"), latest)
}

func TestFileSource_LoadWide(t *testing.T) {
	dir := t.TempDir()
	prices := writeFile(t, dir, "prices.csv",
		"Code,Name,Sector,2024-01-02,2024-01-03\nVNM,Vinamilk,Food,70,71\n")
	volumes := writeFile(t, dir, "volumes.csv",
		"Code,2024-01-02,2024-01-03\nVNM,1000,2000\n")

	src, err := NewFileSource(SourceConfig{Format: "wide", PricePath: prices, VolumePath: volumes})
	require.NoError(t, err)

	ds, err := src.Load(context.Background())
	require.NoError(t, err)

	series, err := ds.Series("VNM")
	require.NoError(t, err)
	require.Len(t, series.Bars, 2)
	assert.Equal(t, 2000.0, series.Bars[1].Volume)
	assert.Equal(t, 70.0, series.Bars[1].Open)
}

func TestFileSource_LoadErrors(t *testing.T) {
	dir := t.TempDir()

	src, err := NewFileSource(SourceConfig{PricePath: filepath.Join(dir, "missing.csv")})
	require.NoError(t, err)
	_, err = src.Load(context.Background())
	assert.Error(t, err)

	wide := writeFile(t, dir, "nodates.csv", "Code,Name\nVNM,Vinamilk\n")
	src, err = NewFileSource(SourceConfig{Format: "wide", PricePath: wide})
	require.NoError(t, err)
	_, err = src.Load(context.Background())
	assert.True(t, errors.Is(err, models.ErrNoDateColumns))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type stubStore struct {
	rows []RawRow
	err  error
}

func (s *stubStore) LoadRawBars(ctx context.Context) ([]RawRow, error) {
	return s.rows, s.err
}

func (s *stubStore) LoadInstruments(ctx context.Context) (map[string]models.Instrument, error) {
	return map[string]models.Instrument{"VNM": {Code: "VNM", Name: "Vinamilk"}}, nil
}

func TestStoreSource_Load(t *testing.T) {
	store := &stubStore{rows: []RawRow{
		{Code: "VNM", Date: "2024-01-02", Close: "70"},
		{Code: "VNM", Date: "2024-01-03", Close: "71"},
	}}
	src, err := NewStoreSource(SourceConfig{Store: store})
	require.NoError(t, err)

	ds, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())

	store.err = errors.New("connection refused")
	_, err = src.Load(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

// countingSource returns a new dataset per load, or err when set
type countingSource struct {
	mu    sync.Mutex
	loads int
	err   error
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) Load(ctx context.Context) (*models.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	series := map[string]*models.InstrumentSeries{}
	for i := 0; i < s.loads; i++ {
		code := fmt.Sprintf("C%02d", i)
		series[code] = &models.InstrumentSeries{Code: code, Bars: []models.PriceBar{
			{Date: date("2024-01-02"), Open: 1, High: 1, Low: 1, Close: 1},
		}}
	}
	return models.NewDataset(series, nil), nil
}

func TestDatasetCache_GetLoadsOnce(t *testing.T) {
	src := &countingSource{}
	cache := NewDatasetCache(src)
	assert.Nil(t, cache.Current())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Get(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, src.loads)
	assert.Equal(t, 1, cache.Current().Len())
}

func TestDatasetCache_ReloadKeepsPreviousOnFailure(t *testing.T) {
	src := &countingSource{}
	cache := NewDatasetCache(src)

	first, err := cache.Get(context.Background())
	require.NoError(t, err)

	second, err := cache.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, second.Len())
	assert.Same(t, second, cache.Current())

	src.err = errors.New("disk full")
	_, err = cache.Reload(context.Background())
	assert.ErrorContains(t, err, "disk full")
	assert.Same(t, second, cache.Current())
	assert.NotSame(t, first, cache.Current())
}

func TestDatasetCache_AutoReload(t *testing.T) {
	cache := NewDatasetCache(&countingSource{})

	assert.NoError(t, cache.StartAutoReload(""))
	cache.Stop()

	assert.Error(t, cache.StartAutoReload("not a cron spec"))

	require.NoError(t, cache.StartAutoReload("0 */5 * * * *"))
	cache.Stop()
}
