package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/presets"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/signal"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/indicator"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/logger"
)

// unknownInstrumentMessage accompanies the empty result for an unknown code
const unknownInstrumentMessage = "Unknown instrument"

// InstrumentHandler handles per-instrument endpoints
type InstrumentHandler struct {
	datasets DatasetProvider
	engine   *indicator.Engine
	detector *signal.Detector
	presets  *presets.Set
}

// NewInstrumentHandler creates a new instrument handler
func NewInstrumentHandler(datasets DatasetProvider, engine *indicator.Engine, detector *signal.Detector, presetSet *presets.Set) *InstrumentHandler {
	return &InstrumentHandler{
		datasets: datasets,
		engine:   engine,
		detector: detector,
		presets:  presetSet,
	}
}

// ListInstruments handles GET /api/v1/instruments
func (h *InstrumentHandler) ListInstruments(w http.ResponseWriter, r *http.Request) {
	ds, ok := loadDataset(w, r, h.datasets)
	if !ok {
		return
	}

	instruments := ds.Search(r.URL.Query().Get("search"))
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"instruments": instruments,
		"count":       len(instruments),
	})
}

// lookup resolves the {code} path variable. An unknown code is answered
// with an empty 200 result and ok=false.
func (h *InstrumentHandler) lookup(w http.ResponseWriter, r *http.Request, empty map[string]interface{}) (*models.Dataset, *models.InstrumentSeries, bool) {
	ds, ok := loadDataset(w, r, h.datasets)
	if !ok {
		return nil, nil, false
	}

	code := models.NormalizeCode(mux.Vars(r)["code"])
	series, err := ds.Series(code)
	if errors.Is(err, models.ErrUnknownInstrument) {
		empty["code"] = code
		empty["message"] = unknownInstrumentMessage
		respondWithJSON(w, http.StatusOK, empty)
		return nil, nil, false
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load instrument")
		return nil, nil, false
	}
	return ds, series, true
}

// GetSeries handles GET /api/v1/instruments/{code}/series
func (h *InstrumentHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	ds, series, ok := h.lookup(w, r, map[string]interface{}{"bars": []models.PriceBar{}})
	if !ok {
		return
	}
	inst, _ := ds.Instrument(series.Code)

	window := series.Between(from, to)
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"code":       series.Code,
		"instrument": inst,
		"bars":       window.Bars,
		"count":      len(window.Bars),
	})
}

// GetIndicators handles GET /api/v1/instruments/{code}/indicators.
// Indicators are computed over the full history and then cut to the
// requested range, so the first bars of the range are not warm-up bars.
func (h *InstrumentHandler) GetIndicators(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	reqs, _, err := selection(r, h.presets)
	if err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	calcs, err := h.engine.Calculators(reqs)
	if err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}

	_, series, ok := h.lookup(w, r, map[string]interface{}{
		"bars":       []models.PriceBar{},
		"indicators": map[string]models.Column{},
	})
	if !ok {
		return
	}

	frame := h.engine.ComputeWith(series, calcs)
	start, end := indexRange(series, from, to)
	frame = frame.Slice(start, end)

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"code":       series.Code,
		"bars":       frame.Series.Bars,
		"indicators": frame.Columns(),
	})
}

// GetSignals handles GET /api/v1/instruments/{code}/signals. Without rule
// or preset parameters the default rule set is evaluated.
func (h *InstrumentHandler) GetSignals(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	_, ids, err := selection(r, h.presets)
	if err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	rules, err := h.detector.Rules(ids)
	if err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}
	calcs, err := h.engine.Calculators(signal.Requirements(rules))
	if err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}

	ruleIDs := make([]string, len(rules))
	for i, rule := range rules {
		ruleIDs[i] = rule.ID
	}

	_, series, ok := h.lookup(w, r, map[string]interface{}{
		"rules":   ruleIDs,
		"signals": []models.Signal{},
	})
	if !ok {
		return
	}

	frame := h.engine.ComputeWith(series, calcs)
	start, end := indexRange(series, from, to)

	signals := make([]models.Signal, 0)
	for _, s := range h.detector.DetectWith(frame, rules, start) {
		if s.Index < end {
			signals = append(signals, s)
		}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"code":    series.Code,
		"rules":   ruleIDs,
		"signals": signals,
		"count":   len(signals),
	})
}

// CatalogHandler describes what the service can compute
type CatalogHandler struct {
	engine   *indicator.Engine
	detector *signal.Detector
	presets  *presets.Set
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(engine *indicator.Engine, detector *signal.Detector, presetSet *presets.Set) *CatalogHandler {
	return &CatalogHandler{engine: engine, detector: detector, presets: presetSet}
}

// GetCatalog handles GET /api/v1/catalog
func (h *CatalogHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	defaults := indicator.DefaultCatalog()
	catalog := make([]string, len(defaults))
	for i, req := range defaults {
		catalog[i] = req.String()
	}

	presetList := []presets.Preset{}
	if h.presets != nil {
		presetList = h.presets.List()
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"indicators":         h.engine.Registry().List(),
		"default_indicators": catalog,
		"rules":              h.detector.Registry().List(),
		"default_rules":      signal.DefaultRules(),
		"presets":            presetList,
		"sort_keys":          []string{models.SortByChangePct, models.SortByClose, models.SortByVolume, models.SortByCode},
	})
}

// AdminHandler handles operational endpoints
type AdminHandler struct {
	datasets DatasetProvider
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(datasets DatasetProvider) *AdminHandler {
	return &AdminHandler{datasets: datasets}
}

// Reload handles POST /api/v1/admin/reload
func (h *AdminHandler) Reload(w http.ResponseWriter, r *http.Request) {
	reloadID := uuid.NewString()
	ctx := logger.WithTraceID(r.Context(), reloadID)
	log := logger.WithContext(ctx)
	log.Info("Dataset reload requested", logger.String("user_id", UserID(ctx)))

	start := time.Now()
	ds, err := h.datasets.Reload(ctx)
	if err != nil {
		log.Error("Dataset reload failed", logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Reload failed: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"reload_id":    reloadID,
		"instruments":  ds.Len(),
		"dropped_rows": ds.DroppedRows,
		"loaded_at":    ds.LoadedAt,
		"duration_ms":  time.Since(start).Milliseconds(),
	})
}
