//go:build integration
// +build integration

package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-history-dashboard/internal/dashboard"
	"github.com/kjstillabower/weather-history-dashboard/internal/observability"
	testhelpers "github.com/kjstillabower/weather-history-dashboard/internal/testhelpers"
)

var testLogger *zap.Logger

func init() {
	var err error
	testLogger, err = observability.NewLogger()
	if err != nil {
		panic(err)
	}
}

// setupIntegrationRouter builds the full router against the live archive API.
func setupIntegrationRouter(t *testing.T, limiter *rate.Limiter) *mux.Router {
	cfg := testhelpers.GetIntegrationConfig(t)
	historyService, _, cleanup := testhelpers.SetupIntegrationService(t, cfg, testLogger)
	t.Cleanup(cleanup)

	registry := dashboard.NewRegistry(historyService, testLogger)
	t.Cleanup(registry.Close)
	handler := NewHandler(historyService, registry, nil, testLogger)
	return NewRouter(handler, testLogger, limiter, 30*time.Second)
}

const integrationQuery = "/history?latitude=47.3769&longitude=8.5417&start_date=2024-01-01&end_date=2024-01-10"

// TestIntegration_GetHistory_FullStack verifies a live fetch through middleware,
// service, cache and client, then a cache-served repeat.
func TestIntegration_GetHistory_FullStack(t *testing.T) {
	router := setupIntegrationRouter(t, nil)

	start := time.Now()
	w := do(router, http.MethodGet, integrationQuery, "")
	first := time.Since(start)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var resp struct {
		Table struct {
			TotalRows int `json:"totalRows"`
		} `json:"table"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Table.TotalRows != 10 {
		t.Errorf("table.totalRows = %d, want 10", resp.Table.TotalRows)
	}

	start = time.Now()
	if w := do(router, http.MethodGet, integrationQuery, ""); w.Code != http.StatusOK {
		t.Fatalf("second status = %d, want 200", w.Code)
	}
	t.Logf("first fetch %v, cached fetch %v", first, time.Since(start))
}

// TestIntegration_Dashboard_FullStack submits a query and waits for the live result.
func TestIntegration_Dashboard_FullStack(t *testing.T) {
	router := setupIntegrationRouter(t, nil)

	id := decode[map[string]string](t, do(router, http.MethodPost, "/dashboards", ""))["id"]
	w := do(router, http.MethodPost, "/dashboards/"+id+"/query",
		`{"latitude":"47.3769","longitude":"8.5417","startDate":"2024-01-01","endDate":"2024-01-31"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	v := waitForStatus(t, router, id, "success")
	if v.Table == nil || v.Table.TotalRows != 31 {
		t.Errorf("table = %+v, want 31 rows", v.Table)
	}
}

// TestIntegration_GetMetrics_Format verifies /metrics after live traffic.
func TestIntegration_GetMetrics_Format(t *testing.T) {
	router := setupIntegrationRouter(t, nil)
	do(router, http.MethodGet, integrationQuery, "")

	w := do(router, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"httpRequestsTotal", "archiveApiCallsTotal"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

// TestIntegration_RateLimiting_Enforcement verifies 429s once the burst is spent.
func TestIntegration_RateLimiting_Enforcement(t *testing.T) {
	burst := 5
	router := setupIntegrationRouter(t, rate.NewLimiter(1, burst))

	var ok, denied int
	for i := 0; i < burst+5; i++ {
		w := do(router, http.MethodGet, integrationQuery, "")
		switch w.Code {
		case http.StatusOK:
			ok++
		case http.StatusTooManyRequests:
			denied++
			if got := decode[errorBody](t, w).Error.Code; got != "RATE_LIMITED" {
				t.Errorf("error.code = %q, want RATE_LIMITED", got)
			}
		}
	}
	if denied == 0 {
		t.Error("no requests were rate limited")
	}
	if ok > burst+1 {
		t.Errorf("ok = %d, should not exceed burst %d", ok, burst)
	}
}
