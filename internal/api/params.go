package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/data"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/presets"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/indicator"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/logger"
)

// DatasetProvider serves the current dataset; data.DatasetCache implements it
type DatasetProvider interface {
	Get(ctx context.Context) (*models.Dataset, error)
	Reload(ctx context.Context) (*models.Dataset, error)
}

// loadDataset fetches the dataset or answers 503
func loadDataset(w http.ResponseWriter, r *http.Request, datasets DatasetProvider) (*models.Dataset, bool) {
	ds, err := datasets.Get(r.Context())
	if err != nil {
		logger.WithContext(r.Context()).Error("Dataset unavailable", logger.ErrorField(err))
		respondWithError(w, http.StatusServiceUnavailable, "Dataset not available")
		return nil, false
	}
	return ds, true
}

// statusFor maps caller mistakes to 400 and everything else to 500
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrUnknownIndicator),
		errors.Is(err, models.ErrInvalidWindow),
		errors.Is(err, models.ErrUnknownRule),
		errors.Is(err, models.ErrInvalidSortKey),
		errors.Is(err, presets.ErrUnknownPreset),
		errors.Is(err, errBadParam):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

var errBadParam = errors.New("bad query parameter")

func parseIntQuery(r *http.Request, key string, defaultValue, min, max int) int {
	valueStr := r.URL.Query().Get(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil || value < min || value > max {
		return defaultValue
	}
	return value
}

// parseDateQuery reads an optional date parameter; absent is the zero time
func parseDateQuery(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := data.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s=%q", errBadParam, key, raw)
	}
	return t, nil
}

// parseRange reads the from/to parameters
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	from, err := parseDateQuery(r, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDateQuery(r, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to is before from", errBadParam)
	}
	return from, to, nil
}

// queryList returns every value of key, splitting comma-separated values
func queryList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// indexRange returns the half-open bar range [start, end) within [from, to]
func indexRange(series *models.InstrumentSeries, from, to time.Time) (int, int) {
	start := 0
	if !from.IsZero() {
		start = sort.Search(len(series.Bars), func(i int) bool {
			return !series.Bars[i].Date.Before(from)
		})
	}
	end := len(series.Bars)
	if !to.IsZero() {
		end = sort.Search(len(series.Bars), func(i int) bool {
			return series.Bars[i].Date.After(to)
		})
	}
	if start > end {
		start = end
	}
	return start, end
}

// selection resolves the ind, rule and preset parameters. A preset's
// indicators and rules are added to the explicit ones.
func selection(r *http.Request, set *presets.Set) ([]indicator.Request, []string, error) {
	inds := queryList(r, "ind")
	rules := queryList(r, "rule")

	if name := r.URL.Query().Get("preset"); name != "" {
		if set == nil {
			return nil, nil, fmt.Errorf("%w: %q", presets.ErrUnknownPreset, name)
		}
		p, err := set.Get(name)
		if err != nil {
			return nil, nil, err
		}
		inds = append(inds, p.Indicators...)
		rules = append(rules, p.Rules...)
	}

	reqs, err := indicator.ParseRequests(inds)
	if err != nil {
		return nil, nil, err
	}
	return reqs, rules, nil
}
