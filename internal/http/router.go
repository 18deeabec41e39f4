package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-history-dashboard/internal/observability"
)

// NewRouter wires the handler routes. limiter may be nil. requestTimeout applies
// to /history and /dashboards only; health and metrics are never limited.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.NewRoute().Subrouter()
	api.Use(RateLimitMiddleware(limiter))
	if requestTimeout > 0 {
		api.Use(TimeoutMiddleware(requestTimeout))
	}
	api.HandleFunc("/history", h.GetHistory).Methods(http.MethodGet)
	api.HandleFunc("/dashboards", h.CreateDashboard).Methods(http.MethodPost)
	api.HandleFunc("/dashboards/{id}", h.GetDashboard).Methods(http.MethodGet)
	api.HandleFunc("/dashboards/{id}", h.DeleteDashboard).Methods(http.MethodDelete)
	api.HandleFunc("/dashboards/{id}/query", h.SubmitQuery).Methods(http.MethodPost)
	api.HandleFunc("/dashboards/{id}/pagination", h.UpdatePagination).Methods(http.MethodPut)
	return router
}
