// Package api exposes the admin HTTP surface: health, Prometheus metrics
// and read-only views of positions, caches and the closure journal.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cryptoPositionWatch/internal/api/handlers"
	"cryptoPositionWatch/internal/api/middleware"
	"cryptoPositionWatch/internal/ports"
)

// Dependencies holds what the admin handlers read from. Journal may be nil.
type Dependencies struct {
	Logger    ports.Logger
	Positions handlers.PositionLoader
	Journal   handlers.ClosureHistory
	Passes    handlers.PassController
	Caches    []handlers.CacheStatter
}

// SetupRoutes builds the admin router.
//
//	GET  /healthz
//	GET  /metrics
//	GET  /api/v1/positions
//	GET  /api/v1/cache/stats
//	GET  /api/v1/closures?symbol=&limit=
//	POST /api/v1/reconcile
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.Logging(deps.Logger))

	reconcile := handlers.NewReconcileHandler(deps.Passes)
	router.HandleFunc("/healthz", reconcile.Health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/positions", handlers.NewPositionsHandler(deps.Positions).GetPositions).Methods(http.MethodGet)
	v1.HandleFunc("/cache/stats", handlers.NewCacheHandler(deps.Caches...).GetStats).Methods(http.MethodGet)
	v1.HandleFunc("/reconcile", reconcile.RunPass).Methods(http.MethodPost)
	if deps.Journal != nil {
		v1.HandleFunc("/closures", handlers.NewClosuresHandler(deps.Journal).GetClosures).Methods(http.MethodGet)
	}

	return router
}
