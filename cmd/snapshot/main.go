package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/api"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/config"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/data"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/presets"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/pubsub"
	sig "github.com/mohamedkhairy/vn-market-dashboard/internal/signal"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/snapshot"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/storage"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/toplist"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/indicator"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/logger"
)

// tableColumns are the indicator columns printed in table mode
var tableColumns = []string{"rsi_14", "macd_hist", "sma_20", "sma_50", "mfi_14"}

// cliFlags holds the parsed command line
type cliFlags struct {
	date       string
	sortKey    string
	order      string
	limit      int
	rules      string
	indicators string
	preset     string
	format     string
	publish    bool
	importData bool
	issueToken string
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.date, "date", "", "snapshot date (YYYY-MM-DD); default is the latest date")
	flag.StringVar(&f.sortKey, "sort", models.SortByChangePct, "sort key: change_pct, close, volume, code or an indicator key")
	flag.StringVar(&f.order, "order", string(models.SortOrderDesc), "sort order: asc or desc")
	flag.IntVar(&f.limit, "limit", 0, "maximum rows (0 = all)")
	flag.StringVar(&f.rules, "rules", "", "comma-separated signal rule ids")
	flag.StringVar(&f.indicators, "ind", "", "comma-separated indicator requests (default catalog when empty)")
	flag.StringVar(&f.preset, "preset", "", "preset name adding indicators and rules")
	flag.StringVar(&f.format, "format", "table", "output format: table or json")
	flag.BoolVar(&f.publish, "publish", false, "publish the snapshot to Redis")
	flag.BoolVar(&f.importData, "import", false, "write the loaded series to TimescaleDB instead of printing a snapshot")
	flag.StringVar(&f.issueToken, "issue-token", "", "print an API token for this user id and exit")
	flag.Parse()
	return f
}

func main() {
	if err := run(parseFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "snapshot: %v\n", err)
		os.Exit(1)
	}
}

func run(f cliFlags) error {
	if f.format != "table" && f.format != "json" {
		return fmt.Errorf("unknown format %q", f.format)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		return err
	}
	defer logger.Sync()

	if f.issueToken != "" {
		token, err := api.NewAuthManager(cfg.API.JWTSecret).IssueToken(f.issueToken, cfg.API.JWTExpiry)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Println(token)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// -import always reads files; it is how the bar store gets filled
	sourceKind := cfg.Data.Source
	if f.importData {
		sourceKind = "file"
	}
	sourceCfg := data.SourceConfig{
		Format:        cfg.Data.Format,
		PricePath:     cfg.Data.PricePath,
		VolumePath:    cfg.Data.VolumePath,
		MarketCapPath: cfg.Data.MarketCapPath,
		ForeignPath:   cfg.Data.ForeignPath,
	}
	if sourceKind == "postgres" {
		store, err := storage.NewTimescaleDBClient(cfg.Database)
		if err != nil {
			return fmt.Errorf("open bar store: %w", err)
		}
		defer store.Close()
		sourceCfg.Store = store
	}
	source, err := data.NewSourceFactory().CreateSource(sourceKind, sourceCfg)
	if err != nil {
		return err
	}
	ds, err := source.Load(ctx)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}

	if f.importData {
		return importDataset(ctx, cfg.Database, ds)
	}

	var set *presets.Set
	if f.preset != "" {
		if set, err = presets.Load(cfg.PresetsPath); err != nil {
			return fmt.Errorf("load presets: %w", err)
		}
	}
	opts, target, err := buildOptions(cfg.Snapshot, f, set)
	if err != nil {
		return err
	}

	aggregator := snapshot.NewAggregator(indicator.NewEngine(nil), sig.NewDetector(nil))
	table, err := aggregator.Build(ctx, ds, target, opts)
	if err != nil {
		return fmt.Errorf("build snapshot: %w", err)
	}

	if f.format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(table); err != nil {
			return err
		}
	} else {
		printTable(os.Stdout, table)
	}

	if f.publish || cfg.Snapshot.Publish {
		if err := publish(ctx, cfg, table); err != nil {
			return fmt.Errorf("publish snapshot: %w", err)
		}
	}
	return nil
}

// buildOptions layers the flags and the preset named by -preset over the
// configured snapshot defaults. A zero target means the latest date.
func buildOptions(cfg config.SnapshotConfig, f cliFlags, set *presets.Set) (snapshot.Options, time.Time, error) {
	opts := snapshot.DefaultOptions()
	opts.MinPriorBars = cfg.MinPriorBars
	opts.Lookback = cfg.Lookback
	opts.Workers = cfg.Workers
	opts.SortKey = strings.ToLower(f.sortKey)
	opts.Order = models.SortOrder(strings.ToLower(f.order))
	opts.Limit = f.limit
	opts.Rules = splitList(f.rules)
	if len(opts.Rules) == 0 {
		opts.Rules = append([]string(nil), cfg.Rules...)
	}

	inds := splitList(f.indicators)
	if len(inds) == 0 {
		inds = append([]string(nil), cfg.Indicators...)
	}
	if f.preset != "" {
		if set == nil {
			return opts, time.Time{}, fmt.Errorf("%w: %s", presets.ErrUnknownPreset, f.preset)
		}
		p, err := set.Get(f.preset)
		if err != nil {
			return opts, time.Time{}, err
		}
		inds = append(inds, p.Indicators...)
		opts.Rules = append(opts.Rules, p.Rules...)
	}

	var err error
	if opts.Indicators, err = indicator.ParseRequests(inds); err != nil {
		return opts, time.Time{}, err
	}

	var target time.Time
	if f.date != "" {
		if target, err = data.ParseDate(f.date); err != nil {
			return opts, time.Time{}, err
		}
	}
	return opts, target, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printTable(w io.Writer, table *models.SnapshotTable) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "Snapshot %s (sort %s %s)\n", table.Date.Format("2006-01-02"), table.SortKey, table.Order)

	fmt.Fprint(tw, "code\tclose\tchange_pct\tvolume")
	for _, col := range tableColumns {
		fmt.Fprintf(tw, "\t%s", col)
	}
	fmt.Fprint(tw, "\tsignals\t\n")

	for _, row := range table.Rows {
		fmt.Fprintf(tw, "%s\t%.2f\t%s\t%.0f", row.Code, row.Close, formatValue(row.ChangePct), row.Volume)
		for _, col := range tableColumns {
			fmt.Fprintf(tw, "\t%s", formatValue(row.Metric(col)))
		}
		kinds := make([]string, len(row.Signals))
		for i, s := range row.Signals {
			kinds[i] = fmt.Sprintf("%s(%s)", s.Kind, s.Direction)
		}
		fmt.Fprintf(tw, "\t%s\t\n", strings.Join(kinds, " "))
	}
	tw.Flush()

	for _, ex := range table.Excluded {
		fmt.Fprintf(w, "excluded %s: %s\n", ex.Code, ex.Reason)
	}
}

func formatValue(v models.Value) string {
	if !v.Defined {
		return "-"
	}
	return fmt.Sprintf("%.2f", v.V)
}

func publish(ctx context.Context, cfg *config.Config, table *models.SnapshotTable) error {
	redisClient, err := pubsub.NewRedisClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	publisher := toplist.NewRedisSnapshotPublisher(redisClient, cfg.Snapshot.PublishTTL)
	return publisher.Publish(ctx, table, nil)
}

// importDataset writes every series and instrument of ds to the bar store
func importDataset(ctx context.Context, dbConfig config.DatabaseConfig, ds *models.Dataset) error {
	store, err := storage.NewTimescaleDBClient(dbConfig)
	if err != nil {
		return err
	}
	defer store.Close()

	series := make([]*models.InstrumentSeries, 0, ds.Len())
	instruments := make([]models.Instrument, 0, ds.Len())
	for _, code := range ds.Codes() {
		s, err := ds.Series(code)
		if err != nil {
			return err
		}
		series = append(series, s)
		inst, _ := ds.Instrument(code)
		instruments = append(instruments, inst)
	}

	if err := store.WriteInstruments(ctx, instruments); err != nil {
		return fmt.Errorf("write instruments: %w", err)
	}
	if err := store.WriteSeries(ctx, series); err != nil {
		return fmt.Errorf("write series: %w", err)
	}

	logger.Info("Imported dataset",
		logger.Int("instruments", len(instruments)),
		logger.Int("dropped_rows", ds.DroppedRows),
	)
	return nil
}
