package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/market"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// MarketHandler handles market-wide overview endpoints
type MarketHandler struct {
	datasets DatasetProvider
}

// NewMarketHandler creates a new market handler
func NewMarketHandler(datasets DatasetProvider) *MarketHandler {
	return &MarketHandler{datasets: datasets}
}

// GetSectors handles GET /api/v1/market/sectors. Without a date the latest
// market-cap date is used; top > 0 adds the largest sectors over the whole
// period.
func (h *MarketHandler) GetSectors(w http.ResponseWriter, r *http.Request) {
	date, err := parseDateQuery(r, "date")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	ds, ok := loadDataset(w, r, h.datasets)
	if !ok {
		return
	}

	dates := market.CapDates(ds.MarketCaps)
	if len(dates) == 0 {
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"sectors": []market.SectorTotal{},
			"message": "No market capitalization data loaded",
		})
		return
	}
	if date.IsZero() {
		date = dates[len(dates)-1]
	}

	resp := map[string]interface{}{
		"date":    date.Format("2006-01-02"),
		"sectors": market.SectorTotals(ds.MarketCaps, date),
	}
	if top := parseIntQuery(r, "top", 0, 0, 100); top > 0 {
		resp["top"] = market.TopSectors(ds.MarketCaps, top)
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// GetBreadth handles GET /api/v1/market/breadth?ma=20&ma=50
func (h *MarketHandler) GetBreadth(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	var windows []int
	for _, raw := range queryList(r, "ma") {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid moving average window: "+raw)
			return
		}
		windows = append(windows, v)
	}

	ds, ok := loadDataset(w, r, h.datasets)
	if !ok {
		return
	}

	points, err := market.Breadth(r.Context(), ds, windows)
	if err != nil {
		respondWithError(w, statusFor(err), err.Error())
		return
	}

	filtered := make([]market.BreadthPoint, 0, len(points))
	for _, p := range points {
		if (!from.IsZero() && p.Date.Before(from)) || (!to.IsZero() && p.Date.After(to)) {
			continue
		}
		filtered = append(filtered, p)
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"points": filtered,
		"count":  len(filtered),
	})
}

// GetForeignFlow handles GET /api/v1/market/foreign/{code}
func (h *MarketHandler) GetForeignFlow(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	ds, ok := loadDataset(w, r, h.datasets)
	if !ok {
		return
	}

	code := models.NormalizeCode(mux.Vars(r)["code"])
	summary := market.ForeignFlow(ds.ForeignFlows, code, from, to)
	if len(summary.Points) == 0 {
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"code":    code,
			"points":  summary.Points,
			"message": "No foreign trading data for instrument",
		})
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}
