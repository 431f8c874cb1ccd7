package data

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/logger"
)

var (
	// ErrUnknownSource is returned when no factory is registered for a source kind
	ErrUnknownSource = errors.New("unknown data source")
	// ErrMissingPath is returned when a file source has no price path
	ErrMissingPath = errors.New("data source path not configured")
)

// Source loads a complete, immutable dataset
type Source interface {
	// Load reads and normalizes every instrument
	Load(ctx context.Context) (*models.Dataset, error)

	// Name returns the kind of the source (e.g., "file", "postgres")
	Name() string
}

// BarStore is a database holding raw daily bars and instrument metadata
type BarStore interface {
	LoadRawBars(ctx context.Context) ([]RawRow, error)
	LoadInstruments(ctx context.Context) (map[string]models.Instrument, error)
}

// SourceConfig holds configuration for a source
type SourceConfig struct {
	Format        string // "long" or "wide"
	PricePath     string
	VolumePath    string
	MarketCapPath string
	ForeignPath   string
	Store         BarStore
}

// SourceFactory creates sources by kind
type SourceFactory struct {
	mu        sync.RWMutex
	factories map[string]func(SourceConfig) (Source, error)
}

// NewSourceFactory creates a factory with the built-in sources registered
func NewSourceFactory() *SourceFactory {
	factory := &SourceFactory{
		factories: make(map[string]func(SourceConfig) (Source, error)),
	}

	factory.RegisterSource("file", func(cfg SourceConfig) (Source, error) {
		return NewFileSource(cfg)
	})
	factory.RegisterSource("postgres", func(cfg SourceConfig) (Source, error) {
		return NewStoreSource(cfg)
	})

	return factory
}

// CreateSource creates a new source of the given kind
func (f *SourceFactory) CreateSource(kind string, cfg SourceConfig) (Source, error) {
	f.mu.RLock()
	factoryFunc, exists := f.factories[kind]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, kind)
	}
	return factoryFunc(cfg)
}

// RegisterSource registers a source factory function
func (f *SourceFactory) RegisterSource(kind string, factoryFunc func(SourceConfig) (Source, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.factories[kind]; exists {
		return fmt.Errorf("source %q already registered", kind)
	}
	f.factories[kind] = factoryFunc
	return nil
}

// ListSources returns the registered source kinds
func (f *SourceFactory) ListSources() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	kinds := make([]string, 0, len(f.factories))
	for kind := range f.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// FileSource loads CSV (optionally gzipped) exports from disk
type FileSource struct {
	cfg        SourceConfig
	normalizer *Normalizer
}

// NewFileSource creates a file-backed source
func NewFileSource(cfg SourceConfig) (*FileSource, error) {
	if cfg.PricePath == "" {
		return nil, ErrMissingPath
	}
	if cfg.Format == "" {
		cfg.Format = "long"
	}
	if cfg.Format != "long" && cfg.Format != "wide" {
		return nil, fmt.Errorf("unsupported data format %q", cfg.Format)
	}
	return &FileSource{cfg: cfg, normalizer: NewNormalizer("file")}, nil
}

// Name returns the source kind
func (s *FileSource) Name() string {
	return "file"
}

// Load reads the configured files and builds a dataset
func (s *FileSource) Load(ctx context.Context) (*models.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		series      map[string]*models.InstrumentSeries
		instruments map[string]models.Instrument
		report      NormalizeReport
	)

	switch s.cfg.Format {
	case "wide":
		prices, err := readWideFile(s.cfg.PricePath)
		if err != nil {
			return nil, err
		}
		var volumes *WideTable
		if s.cfg.VolumePath != "" {
			v, err := readWideFile(s.cfg.VolumePath)
			if err != nil {
				return nil, err
			}
			volumes = &v
		}
		series, instruments, report, err = s.normalizer.NormalizeWide(prices, volumes)
		if err != nil {
			return nil, fmt.Errorf("normalize %s: %w", s.cfg.PricePath, err)
		}
	default:
		rows, err := readLongFile(s.cfg.PricePath)
		if err != nil {
			return nil, err
		}
		series, report = s.normalizer.NormalizeLong(rows)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var caps []models.MarketCapRow
	if s.cfg.MarketCapPath != "" {
		table, err := readWideFile(s.cfg.MarketCapPath)
		if err != nil {
			return nil, err
		}
		caps, _, err = MarketCapsFromWide(table)
		if err != nil {
			return nil, fmt.Errorf("market caps %s: %w", s.cfg.MarketCapPath, err)
		}
		instruments = mergeSectors(instruments, caps)
	}

	var flows []models.ForeignFlowRow
	if s.cfg.ForeignPath != "" {
		f, err := OpenFile(s.cfg.ForeignPath)
		if err != nil {
			return nil, err
		}
		flows, _, err = ReadForeignFlowCSV(f, "")
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("foreign flow %s: %w", s.cfg.ForeignPath, err)
		}
	}

	ds := models.NewDataset(series, instruments)
	ds.DroppedRows = report.Dropped
	ds.MarketCaps = caps
	ds.ForeignFlows = flows

	logger.Info("Loaded dataset",
		logger.String("source", s.Name()),
		logger.String("format", s.cfg.Format),
		logger.Int("instruments", ds.Len()),
		logger.Int("rows", report.Rows),
		logger.Int("dropped", report.Dropped),
		logger.Int("duplicates", report.Duplicates),
		logger.Int("empty_instruments", len(report.EmptyInstruments)),
	)
	return ds, nil
}

// StoreSource loads bars from a BarStore (Postgres/TimescaleDB)
type StoreSource struct {
	store      BarStore
	normalizer *Normalizer
}

// NewStoreSource creates a database-backed source
func NewStoreSource(cfg SourceConfig) (*StoreSource, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("postgres source requires a bar store")
	}
	return &StoreSource{store: cfg.Store, normalizer: NewNormalizer("postgres")}, nil
}

// Name returns the source kind
func (s *StoreSource) Name() string {
	return "postgres"
}

// Load queries the store and normalizes its rows
func (s *StoreSource) Load(ctx context.Context) (*models.Dataset, error) {
	rows, err := s.store.LoadRawBars(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	instruments, err := s.store.LoadInstruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("load instruments: %w", err)
	}

	series, report := s.normalizer.NormalizeLong(rows)
	ds := models.NewDataset(series, instruments)
	ds.DroppedRows = report.Dropped

	logger.Info("Loaded dataset",
		logger.String("source", s.Name()),
		logger.Int("instruments", ds.Len()),
		logger.Int("rows", report.Rows),
		logger.Int("dropped", report.Dropped),
	)
	return ds, nil
}

func readLongFile(path string) ([]RawRow, error) {
	f, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := ReadLongCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}

func readWideFile(path string) (WideTable, error) {
	f, err := OpenFile(path)
	if err != nil {
		return WideTable{}, err
	}
	defer f.Close()

	table, err := ReadWideCSV(f)
	if err != nil {
		return WideTable{}, fmt.Errorf("read %s: %w", path, err)
	}
	return table, nil
}

// mergeSectors fills missing instrument names and sectors from market caps
func mergeSectors(instruments map[string]models.Instrument, caps []models.MarketCapRow) map[string]models.Instrument {
	if instruments == nil {
		instruments = make(map[string]models.Instrument)
	}
	for _, c := range caps {
		inst, ok := instruments[c.Code]
		if !ok {
			inst = models.Instrument{Code: c.Code}
		}
		if inst.Name == "" {
			inst.Name = c.Name
		}
		if inst.Sector == "" || inst.Sector == UnknownSector {
			inst.Sector = c.Sector
		}
		instruments[c.Code] = inst
	}
	return instruments
}
