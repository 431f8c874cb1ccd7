package data

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/logger"
)

// DatasetCache is a read-through cache over a Source. The cached dataset
// is immutable; a reload builds a new one and swaps the pointer, so readers
// never see a partially loaded table.
type DatasetCache struct {
	source  Source
	current atomic.Pointer[models.Dataset]

	loadMu sync.Mutex // serializes loads; readers never take it once warm

	cron          *cron.Cron
	reloadTimeout time.Duration
}

// NewDatasetCache creates a cache that loads lazily from source
func NewDatasetCache(source Source) *DatasetCache {
	return &DatasetCache{
		source:        source,
		reloadTimeout: 5 * time.Minute,
	}
}

// Get returns the cached dataset, loading it on first use
func (c *DatasetCache) Get(ctx context.Context) (*models.Dataset, error) {
	if ds := c.current.Load(); ds != nil {
		return ds, nil
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if ds := c.current.Load(); ds != nil {
		return ds, nil
	}
	return c.loadLocked(ctx)
}

// Current returns the cached dataset without loading; nil before the first load
func (c *DatasetCache) Current() *models.Dataset {
	return c.current.Load()
}

// Reload loads a fresh dataset and swaps it in. On failure the previous
// dataset stays in place and the error is returned.
func (c *DatasetCache) Reload(ctx context.Context) (*models.Dataset, error) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	return c.loadLocked(ctx)
}

func (c *DatasetCache) loadLocked(ctx context.Context) (*models.Dataset, error) {
	start := time.Now()
	ds, err := c.source.Load(ctx)
	if err != nil {
		logger.DatasetReloads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load dataset from %s: %w", c.source.Name(), err)
	}

	c.current.Store(ds)
	logger.DatasetReloads.WithLabelValues("success").Inc()
	logger.DatasetInstruments.Set(float64(ds.Len()))
	logger.WithContext(ctx).Info("Dataset swapped in",
		logger.String("source", c.source.Name()),
		logger.Int("instruments", ds.Len()),
		logger.Duration("duration", time.Since(start)),
	)
	return ds, nil
}

// StartAutoReload reloads the dataset on a cron schedule (six fields,
// seconds first). An empty spec disables auto-reload.
func (c *DatasetCache) StartAutoReload(spec string) error {
	if spec == "" {
		return nil
	}

	c.cron = cron.New(cron.WithSeconds())
	if _, err := c.cron.AddFunc(spec, c.scheduledReload); err != nil {
		return fmt.Errorf("register reload task: %w", err)
	}
	c.cron.Start()

	logger.Info("Dataset auto-reload scheduled", logger.String("spec", spec))
	return nil
}

func (c *DatasetCache) scheduledReload() {
	ctx, cancel := context.WithTimeout(context.Background(), c.reloadTimeout)
	defer cancel()
	ctx = logger.WithTraceID(ctx, logger.NewTraceID())

	if _, err := c.Reload(ctx); err != nil {
		logger.WithContext(ctx).Error("Scheduled dataset reload failed", logger.ErrorField(err))
	}
}

// Stop halts the reload scheduler and waits for a running reload to finish
func (c *DatasetCache) Stop() {
	if c.cron == nil {
		return
	}
	<-c.cron.Stop().Done()
	logger.Info("Dataset auto-reload stopped")
}
