package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups the endpoint handlers mounted by NewRouter
type Handlers struct {
	Instruments *InstrumentHandler
	Snapshots   *SnapshotHandler
	Market      *MarketHandler
	Catalog     *CatalogHandler
	Admin       *AdminHandler
}

// RouterConfig holds the middleware settings of the HTTP API
type RouterConfig struct {
	Auth           *AuthManager
	AuthRequired   bool
	RateLimitRPS   int
	RateLimitBurst int
	// Ready reports whether the service can answer data requests
	Ready func(ctx context.Context) error
}

// NewRouter registers every route and wraps the router in the middleware chain
func NewRouter(h Handlers, cfg RouterConfig) http.Handler {
	if cfg.Auth == nil {
		cfg.Auth = NewAuthManager("")
	}

	router := mux.NewRouter()
	router.Use(mux.MiddlewareFunc(LoggingMiddleware()))

	v1 := router.PathPrefix("/api/v1").Subrouter()

	// Instrument endpoints
	v1.HandleFunc("/instruments", h.Instruments.ListInstruments).Methods("GET")
	v1.HandleFunc("/instruments/{code}/series", h.Instruments.GetSeries).Methods("GET")
	v1.HandleFunc("/instruments/{code}/indicators", h.Instruments.GetIndicators).Methods("GET")
	v1.HandleFunc("/instruments/{code}/signals", h.Instruments.GetSignals).Methods("GET")

	// Snapshot endpoints
	v1.HandleFunc("/snapshot", h.Snapshots.GetSnapshot).Methods("GET")
	v1.HandleFunc("/snapshot/rankings", h.Snapshots.GetRankings).Methods("GET")

	// Market overview endpoints
	v1.HandleFunc("/market/sectors", h.Market.GetSectors).Methods("GET")
	v1.HandleFunc("/market/breadth", h.Market.GetBreadth).Methods("GET")
	v1.HandleFunc("/market/foreign/{code}", h.Market.GetForeignFlow).Methods("GET")

	v1.HandleFunc("/catalog", h.Catalog.GetCatalog).Methods("GET")

	// Admin endpoints always need a valid token
	admin := v1.PathPrefix("/admin").Subrouter()
	admin.Use(mux.MiddlewareFunc(AuthMiddleware(cfg.Auth, true)))
	admin.HandleFunc("/reload", h.Admin.Reload).Methods("POST")
	admin.HandleFunc("/snapshot/publish", h.Snapshots.PublishSnapshot).Methods("POST")

	// Health check endpoints
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(r.Context()); err != nil {
				respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "not ready",
					"error":  err.Error(),
				})
				return
			}
		}
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	router.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	middlewares := ChainMiddleware(
		CORSMiddleware(),
		RequestIDMiddleware(),
		ErrorHandlingMiddleware(),
		AuthMiddleware(cfg.Auth, cfg.AuthRequired),
		RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)
	return middlewares(router)
}
