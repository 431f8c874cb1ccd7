package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/presets"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/snapshot"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/toplist"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/logger"
)

// SnapshotHandler handles cross-sectional snapshot endpoints
type SnapshotHandler struct {
	datasets   DatasetProvider
	aggregator *snapshot.Aggregator
	presets    *presets.Set
	defaults   snapshot.Options
	publisher  toplist.SnapshotPublisher
	rankings   *toplist.RankingService
	metrics    []string
}

// NewSnapshotHandler creates a new snapshot handler. publisher and rankings
// may be nil when Redis is not configured; the endpoints needing them then
// answer 503.
func NewSnapshotHandler(datasets DatasetProvider, aggregator *snapshot.Aggregator, presetSet *presets.Set, defaults snapshot.Options, publisher toplist.SnapshotPublisher, rankings *toplist.RankingService) *SnapshotHandler {
	return &SnapshotHandler{
		datasets:   datasets,
		aggregator: aggregator,
		presets:    presetSet,
		defaults:   defaults,
		publisher:  publisher,
		rankings:   rankings,
		metrics:    toplist.DefaultMetrics,
	}
}

// options builds snapshot options from the query, over the handler defaults
func (h *SnapshotHandler) options(r *http.Request) (snapshot.Options, time.Time, error) {
	opts := h.defaults

	target, err := parseDateQuery(r, "date")
	if err != nil {
		return opts, target, err
	}
	reqs, rules, err := selection(r, h.presets)
	if err != nil {
		return opts, target, err
	}
	if len(reqs) > 0 {
		opts.Indicators = reqs
	}
	if len(rules) > 0 {
		opts.Rules = rules
	}
	if key := r.URL.Query().Get("sort"); key != "" {
		opts.SortKey = strings.ToLower(key)
	}
	if order := r.URL.Query().Get("order"); order != "" {
		opts.Order = models.SortOrder(strings.ToLower(order))
	}
	opts.Limit = parseIntQuery(r, "limit", opts.Limit, 0, 5000)
	if codes := queryList(r, "code"); len(codes) > 0 {
		opts.Codes = codes
	}
	return opts, target, nil
}

func (h *SnapshotHandler) build(w http.ResponseWriter, r *http.Request) (*models.SnapshotTable, bool) {
	opts, target, err := h.options(r)
	if err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return nil, false
	}
	ds, ok := loadDataset(w, r, h.datasets)
	if !ok {
		return nil, false
	}

	table, err := h.aggregator.Build(r.Context(), ds, target, opts)
	if err != nil {
		logger.WithContext(r.Context()).Warn("Snapshot build failed", logger.ErrorField(err))
		respondWithError(w, statusFor(err), err.Error())
		return nil, false
	}
	return table, true
}

// GetSnapshot handles GET /api/v1/snapshot
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	table, ok := h.build(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, table)
}

// PublishSnapshot handles POST /api/v1/admin/snapshot/publish. It builds
// the snapshot exactly like GetSnapshot and writes it to Redis.
func (h *SnapshotHandler) PublishSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Snapshot publishing not configured")
		return
	}
	table, ok := h.build(w, r)
	if !ok {
		return
	}

	metrics := h.metrics
	if requested := queryList(r, "metric"); len(requested) > 0 {
		metrics = requested
	}
	if err := h.publisher.Publish(r.Context(), table, metrics); err != nil {
		logger.WithContext(r.Context()).Error("Snapshot publish failed", logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to publish snapshot")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"date":    table.Date.Format("2006-01-02"),
		"rows":    len(table.Rows),
		"metrics": metrics,
	})
}

// GetRankings handles GET /api/v1/snapshot/rankings, reading a previously
// published ranking from Redis
func (h *SnapshotHandler) GetRankings(w http.ResponseWriter, r *http.Request) {
	if h.rankings == nil {
		respondWithError(w, http.StatusServiceUnavailable, "Rankings not configured")
		return
	}

	date, err := parseDateQuery(r, "date")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if date.IsZero() {
		ds, ok := loadDataset(w, r, h.datasets)
		if !ok {
			return
		}
		latest, found := ds.LatestDate()
		if !found {
			respondWithError(w, http.StatusNotFound, "No dates in dataset")
			return
		}
		date = latest
	}

	metric := strings.ToLower(r.URL.Query().Get("metric"))
	if metric == "" {
		metric = models.SortByChangePct
	}
	if err := snapshot.ValidateSortKey(metric); err != nil || metric == models.SortByCode {
		respondWithError(w, http.StatusBadRequest, "Invalid metric")
		return
	}

	limit := parseIntQuery(r, "limit", 50, 1, 500)
	offset := parseIntQuery(r, "offset", 0, 0, 10000)

	rankings, err := h.rankings.GetRankings(r.Context(), date, metric, limit, offset)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve rankings")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"date":     date.Format("2006-01-02"),
		"metric":   metric,
		"rankings": rankings,
		"pagination": map[string]interface{}{
			"limit":  limit,
			"offset": offset,
		},
	})
}
