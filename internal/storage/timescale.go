package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/config"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/data"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/logger"
)

var (
	timescaleQueryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "timescale_query_latency_seconds",
			Help:    "Query latency against TimescaleDB in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	timescaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timescale_errors_total",
			Help: "Total number of TimescaleDB errors",
		},
		[]string{"operation"},
	)
)

const (
	selectBarsQuery = `
		SELECT code, trade_date, open, high, low, close, volume
		FROM daily_bars
		ORDER BY code, trade_date ASC
	`

	selectInstrumentsQuery = `
		SELECT code, name, sector, exchange
		FROM instruments
	`

	upsertBarQuery = `
		INSERT INTO daily_bars (code, trade_date, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code, trade_date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`

	upsertInstrumentQuery = `
		INSERT INTO instruments (code, name, sector, exchange)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			sector = EXCLUDED.sector,
			exchange = EXCLUDED.exchange
	`
)

// TimescaleDBClient implements BarStorage for TimescaleDB/Postgres. Prices
// are NUMERIC columns; they are read as text so the normalizer applies the
// same parsing rules as for CSV input.
type TimescaleDBClient struct {
	db       *sql.DB
	dbConfig config.DatabaseConfig
}

// ConnString builds a lib/pq connection string
func ConnString(dbConfig config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host,
		dbConfig.Port,
		dbConfig.User,
		dbConfig.Password,
		dbConfig.Database,
		dbConfig.SSLMode,
	)
}

// NewTimescaleDBClient creates a new TimescaleDB client
func NewTimescaleDBClient(dbConfig config.DatabaseConfig) (*TimescaleDBClient, error) {
	db, err := sql.Open("postgres", ConnString(dbConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(dbConfig.MaxConnections)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to TimescaleDB",
		logger.String("host", dbConfig.Host),
		logger.Int("port", dbConfig.Port),
		logger.String("database", dbConfig.Database),
	)

	return NewTimescaleDBClientFromDB(db, dbConfig), nil
}

// NewTimescaleDBClientFromDB wraps an already opened database
func NewTimescaleDBClientFromDB(db *sql.DB, dbConfig config.DatabaseConfig) *TimescaleDBClient {
	return &TimescaleDBClient{db: db, dbConfig: dbConfig}
}

// LoadRawBars reads every stored daily bar as raw rows
func (t *TimescaleDBClient) LoadRawBars(ctx context.Context) ([]data.RawRow, error) {
	start := time.Now()
	defer func() {
		timescaleQueryLatency.WithLabelValues("load_bars").Observe(time.Since(start).Seconds())
	}()

	rows, err := t.db.QueryContext(ctx, selectBarsQuery)
	if err != nil {
		timescaleErrors.WithLabelValues("load_bars").Inc()
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var out []data.RawRow
	line := 0
	for rows.Next() {
		var (
			code               string
			tradeDate          time.Time
			open, high, low    sql.NullString
			closePrice, volume sql.NullString
		)
		if err := rows.Scan(&code, &tradeDate, &open, &high, &low, &closePrice, &volume); err != nil {
			timescaleErrors.WithLabelValues("load_bars").Inc()
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		line++
		out = append(out, data.RawRow{
			Code:   code,
			Date:   tradeDate.Format("2006-01-02"),
			Open:   open.String,
			High:   high.String,
			Low:    low.String,
			Close:  closePrice.String,
			Volume: volume.String,
			Line:   line,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return out, nil
}

// LoadInstruments reads instrument metadata keyed by code
func (t *TimescaleDBClient) LoadInstruments(ctx context.Context) (map[string]models.Instrument, error) {
	rows, err := t.db.QueryContext(ctx, selectInstrumentsQuery)
	if err != nil {
		timescaleErrors.WithLabelValues("load_instruments").Inc()
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.Instrument)
	for rows.Next() {
		var (
			code                   string
			name, sector, exchange sql.NullString
		)
		if err := rows.Scan(&code, &name, &sector, &exchange); err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		code = models.NormalizeCode(code)
		out[code] = models.Instrument{
			Code:     code,
			Name:     name.String,
			Sector:   sector.String,
			Exchange: exchange.String,
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return out, nil
}

// WriteSeries upserts every bar of series in a single transaction
func (t *TimescaleDBClient) WriteSeries(ctx context.Context, series []*models.InstrumentSeries) error {
	start := time.Now()
	defer func() {
		timescaleQueryLatency.WithLabelValues("write_series").Observe(time.Since(start).Seconds())
	}()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertBarQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, s := range series {
		for _, bar := range s.Bars {
			if _, err := stmt.ExecContext(ctx,
				s.Code,
				bar.Date,
				numeric(bar.Open),
				numeric(bar.High),
				numeric(bar.Low),
				numeric(bar.Close),
				numeric(bar.Volume),
			); err != nil {
				timescaleErrors.WithLabelValues("write_series").Inc()
				return fmt.Errorf("failed to upsert %s %s: %w", s.Code, bar.Date.Format("2006-01-02"), describe(err))
			}
			written++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Info("Wrote daily bars",
		logger.Int("instruments", len(series)),
		logger.Int("bars", written),
	)
	return nil
}

// WriteInstruments upserts instrument metadata
func (t *TimescaleDBClient) WriteInstruments(ctx context.Context, instruments []models.Instrument) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, inst := range instruments {
		if _, err := tx.ExecContext(ctx, upsertInstrumentQuery, inst.Code, inst.Name, inst.Sector, inst.Exchange); err != nil {
			timescaleErrors.WithLabelValues("write_instruments").Inc()
			return fmt.Errorf("failed to upsert instrument %s: %w", inst.Code, describe(err))
		}
	}
	return tx.Commit()
}

// Close closes the database connection
func (t *TimescaleDBClient) Close() error {
	return t.db.Close()
}

// numeric renders a float for a NUMERIC column without binary rounding noise
func numeric(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// describe adds the Postgres error code to driver errors
func describe(err error) error {
	if pqErr, ok := err.(*pq.Error); ok {
		return fmt.Errorf("%s (%s): %w", pqErr.Code.Name(), pqErr.Code, err)
	}
	return err
}
