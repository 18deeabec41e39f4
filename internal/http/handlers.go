package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-history-dashboard/internal/controller"
	"github.com/kjstillabower/weather-history-dashboard/internal/dashboard"
	"github.com/kjstillabower/weather-history-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-history-dashboard/internal/observability"
	"github.com/kjstillabower/weather-history-dashboard/internal/paginate"
	"github.com/kjstillabower/weather-history-dashboard/internal/traffic"
	"github.com/kjstillabower/weather-history-dashboard/internal/validation"
	"github.com/kjstillabower/weather-history-dashboard/internal/views"
)

const (
	serviceName  = "weather-history-dashboard"
	maxBodyBytes = 1 << 16
)

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int // 0 when rate limiter disabled
	// CachePing, when set, is called to check cache reachability. Used for remote backends.
	CachePing func() error
	// BreakerState, when set, reports the archive circuit breaker state.
	BreakerState func() string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	history          controller.Fetcher
	dashboards       *dashboard.Registry
	healthConfig     *HealthConfig
	logger           *zap.Logger
	validate         *validator.Validate
	now              func() time.Time
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. history serves the stateless /history
// endpoint; dashboards holds the mounted dashboard sessions.
func NewHandler(
	history controller.Fetcher,
	dashboards *dashboard.Registry,
	healthConfig *HealthConfig,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		history:      history,
		dashboards:   dashboards,
		healthConfig: healthConfig,
		logger:       logger,
		validate:     newValidator(),
		now:          time.Now,
	}
}

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// historyParams are the query fields of GET /history.
type historyParams struct {
	Latitude  string `json:"latitude" validate:"required"`
	Longitude string `json:"longitude" validate:"required"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
}

// historyPagination are the optional table parameters of GET /history.
// The rules match paginationRequest.
type historyPagination struct {
	Page        *int `json:"page" validate:"omitempty,min=1"`
	RowsPerPage *int `json:"rows_per_page" validate:"omitempty,oneof=10 20 50"`
}

func (p historyParams) form() validation.QueryForm {
	return validation.QueryForm{
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		StartDate: p.StartDate,
		EndDate:   p.EndDate,
	}
}

// historyResponse is the body of a successful GET /history.
type historyResponse struct {
	Query views.QuerySummary `json:"query"`
	Range string             `json:"range"`
	Chart views.Chart        `json:"chart"`
	Table views.Table        `json:"table"`
}

// GetHistory handles GET /history. It validates the query, fetches through the
// cache and returns the chart and one table page.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	params, pagination, err := parseHistoryParams(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PAGINATION", err.Error())
		return
	}
	if err := h.validate.Struct(params); err != nil {
		writeValidationError(w, r, "INVALID_QUERY", err)
		return
	}
	q, err := validation.ParseQuery(params.form(), h.now())
	if err != nil {
		writeValidationError(w, r, "INVALID_QUERY", err)
		return
	}
	if err := h.validate.Struct(pagination); err != nil {
		writeValidationError(w, r, "INVALID_PAGINATION", err)
		return
	}

	resp, err := h.history.FetchWeather(r.Context(), q)
	if err != nil {
		if validation.IsValidationError(err) {
			writeValidationError(w, r, "INVALID_QUERY", err)
			return
		}
		writeServiceError(w, r, err)
		return
	}

	state := paginate.NewState()
	if pagination.RowsPerPage != nil {
		_ = state.SetRowsPerPage(*pagination.RowsPerPage)
	}
	if pagination.Page != nil {
		state.GoToPage(*pagination.Page, resp.Len())
	}
	summary := views.NewQuerySummary(q)
	writeJSON(w, http.StatusOK, historyResponse{
		Query: summary,
		Range: summary.Range,
		Chart: views.NewChart(resp),
		Table: views.NewTable(resp, state),
	})
}

// parseHistoryParams reads the query string. Only page and rows_per_page are
// converted here; the query fields stay raw for validation.ParseQuery.
func parseHistoryParams(r *http.Request) (historyParams, historyPagination, error) {
	values := r.URL.Query()
	p := historyParams{
		Latitude:  values.Get("latitude"),
		Longitude: values.Get("longitude"),
		StartDate: values.Get("start_date"),
		EndDate:   values.Get("end_date"),
	}
	var pg historyPagination
	if s := values.Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return p, pg, errors.New("page must be an integer")
		}
		pg.Page = &n
	}
	if s := values.Get("rows_per_page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return p, pg, errors.New("rows_per_page must be an integer")
		}
		pg.RowsPerPage = &n
	}
	return p, pg, nil
}

// CreateDashboard handles POST /dashboards.
func (h *Handler) CreateDashboard(w http.ResponseWriter, r *http.Request) {
	d := h.dashboards.Mount()
	observability.LoggerFromContext(r.Context(), h.logger).Info("dashboard mounted", zap.String("dashboard_id", d.ID()))
	w.Header().Set("Location", "/dashboards/"+d.ID())
	writeJSON(w, http.StatusCreated, map[string]string{"id": d.ID()})
}

// GetDashboard handles GET /dashboards/{id}.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	d, ok := h.lookupDashboard(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, d.View())
}

// SubmitQuery handles POST /dashboards/{id}/query. The fetch runs in the
// background; the response is the Loading view for the new generation.
func (h *Handler) SubmitQuery(w http.ResponseWriter, r *http.Request) {
	d, ok := h.lookupDashboard(w, r)
	if !ok {
		return
	}
	var form validation.QueryForm
	if !h.decodeBody(w, r, &form, "INVALID_QUERY") {
		return
	}
	q, err := validation.ParseQuery(form, h.now())
	if err != nil {
		writeValidationError(w, r, "INVALID_QUERY", err)
		return
	}
	if _, err := d.Submit(r.Context(), q); err != nil {
		switch {
		case errors.Is(err, controller.ErrClosed):
			writeError(w, r, http.StatusNotFound, "DASHBOARD_NOT_FOUND", dashboard.ErrNotFound.Error())
		case validation.IsValidationError(err):
			writeValidationError(w, r, "INVALID_QUERY", err)
		default:
			writeError(w, r, http.StatusInternalServerError, "INTERNAL", "Unable to submit query")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, d.View())
}

// paginationRequest is the body of PUT /dashboards/{id}/pagination.
type paginationRequest struct {
	Page        *int `json:"page" validate:"omitempty,min=1"`
	RowsPerPage *int `json:"rowsPerPage" validate:"omitempty,oneof=10 20 50"`
}

// UpdatePagination handles PUT /dashboards/{id}/pagination. A page size change
// returns to page 1 before page is applied.
func (h *Handler) UpdatePagination(w http.ResponseWriter, r *http.Request) {
	d, ok := h.lookupDashboard(w, r)
	if !ok {
		return
	}
	var body paginationRequest
	if !h.decodeBody(w, r, &body, "INVALID_PAGINATION") {
		return
	}
	if body.Page == nil && body.RowsPerPage == nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PAGINATION", "page or rowsPerPage is required")
		return
	}
	if body.RowsPerPage != nil {
		if err := d.SetRowsPerPage(*body.RowsPerPage); err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_PAGINATION", err.Error())
			return
		}
	}
	if body.Page != nil {
		d.GoToPage(*body.Page)
	}
	writeJSON(w, http.StatusOK, d.View())
}

// DeleteDashboard handles DELETE /dashboards/{id}. Any in-flight fetch keeps
// running but its result is discarded.
func (h *Handler) DeleteDashboard(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.dashboards.Unmount(id); err != nil {
		writeError(w, r, http.StatusNotFound, "DASHBOARD_NOT_FOUND", err.Error())
		return
	}
	observability.LoggerFromContext(r.Context(), h.logger).Info("dashboard unmounted", zap.String("dashboard_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lookupDashboard(w http.ResponseWriter, r *http.Request) (*dashboard.Dashboard, bool) {
	d, err := h.dashboards.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, http.StatusNotFound, "DASHBOARD_NOT_FOUND", err.Error())
		return nil, false
	}
	return d, true
}

// decodeBody decodes a JSON body into v and runs struct validation. Writes a
// 400 and returns false on failure; code labels validation failures.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, code string) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be a JSON object")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeValidationError(w, r, code, err)
		return false
	}
	return true
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"archiveApi": "healthy"}
	if result.status == "degraded" {
		checks["archiveApi"] = "unhealthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	if state := h.breakerState(); state != "" {
		checks["circuitBreaker"] = state
	}
	resp := map[string]interface{}{
		"status":     result.status,
		"service":    serviceName,
		"version":    "dev",
		"checks":     checks,
		"dashboards": h.dashboards.Len(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	cfg := h.healthConfig
	if cfg == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if cfg.RateLimitRPS > 0 && cfg.OverloadWindow > 0 && cfg.OverloadThresholdPct > 0 {
		threshold := float64(cfg.RateLimitRPS) * cfg.OverloadWindow.Seconds() * float64(cfg.OverloadThresholdPct) / 100
		if float64(traffic.DenialCount(cfg.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if h.breakerState() == "open" {
		return healthResult{"degraded", http.StatusServiceUnavailable, "circuit_open"}
	}
	if cfg.DegradedWindow > 0 && cfg.DegradedErrorPct > 0 {
		errs, total := traffic.ErrorRate(cfg.DegradedWindow)
		if total > 0 && float64(errs)*100/float64(total) >= float64(cfg.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

func (h *Handler) breakerState() string {
	if h.healthConfig == nil || h.healthConfig.BreakerState == nil {
		return ""
	}
	return h.healthConfig.BreakerState()
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope with the request correlation ID.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeValidationError writes a 400 with code for a *validation.ValidationError
// or validator.ValidationErrors.
func writeValidationError(w http.ResponseWriter, r *http.Request, code string, err error) {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		observability.ValidationFailuresTotal.WithLabelValues(fieldErrs[0].Field()).Inc()
		writeError(w, r, http.StatusBadRequest, code, fieldMessage(fieldErrs[0]))
		return
	}
	field := "unknown"
	var ve *validation.ValidationError
	if errors.As(err, &ve) {
		field = ve.Field
	}
	observability.ValidationFailuresTotal.WithLabelValues(field).Inc()
	writeError(w, r, http.StatusBadRequest, code, err.Error())
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fe.Field() + " must be one of " + fe.Param()
	case "min", "gte":
		return fe.Field() + " must be at least " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}

// writeServiceError writes a 502 for upstream failures. The underlying error is
// logged at DEBUG and never exposed to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", controller.FailureMessage)
	if logger := observability.LoggerFromContext(r.Context(), nil); logger != nil {
		logger.Debug("upstream error", zap.Error(err))
	}
}
