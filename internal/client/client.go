package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/weather-history-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/weather-history-dashboard/internal/models"
	"github.com/kjstillabower/weather-history-dashboard/internal/observability"
)

// DefaultArchiveURL is the Open-Meteo historical archive endpoint.
const DefaultArchiveURL = "https://archive-api.open-meteo.com/v1/archive"

// maxBodyBytes caps the archive response read; 100 days of six series is a few KB.
const maxBodyBytes = 4 << 20

// ArchiveClient fetches daily history for a query from the remote archive.
// Errors are *RemoteAPIError, *NetworkError or *MalformedResponseError.
type ArchiveClient interface {
	FetchDaily(ctx context.Context, q models.Query) (models.WeatherResponse, error)
}

// OpenMeteoArchiveClient implements ArchiveClient against the Open-Meteo archive API.
// One attempt per call; there are no retries.
type OpenMeteoArchiveClient struct {
	apiURL  string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// Option configures an OpenMeteoArchiveClient.
type Option func(*OpenMeteoArchiveClient)

// WithCircuitBreaker guards calls with a breaker that opens after threshold
// consecutive failures (see IsBreakerFailure) and probes again after timeout.
// State changes are exported as metrics under component "archive_api".
func WithCircuitBreaker(threshold int, timeout time.Duration) Option {
	return func(c *OpenMeteoArchiveClient) {
		c.breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: threshold,
			Timeout:          timeout,
			Component:        "archive_api",
			IsFailure:        IsBreakerFailure,
			OnStateChange:    observability.RecordCircuitBreakerTransition,
		})
		observability.CircuitBreakerState.WithLabelValues("archive_api").Set(0)
	}
}

// WithHTTPClient replaces the default http.Client, for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *OpenMeteoArchiveClient) {
		c.client = hc
	}
}

// NewOpenMeteoArchiveClient returns a client for apiURL (DefaultArchiveURL if empty).
// timeout bounds each call end to end; zero means no client-side limit.
func NewOpenMeteoArchiveClient(apiURL string, timeout time.Duration, opts ...Option) *OpenMeteoArchiveClient {
	if apiURL == "" {
		apiURL = DefaultArchiveURL
	}
	c := &OpenMeteoArchiveClient{
		apiURL: apiURL,
		client: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BreakerState returns the breaker state name, or "" when no breaker is configured.
func (c *OpenMeteoArchiveClient) BreakerState() string {
	if c.breaker == nil {
		return ""
	}
	return c.breaker.State()
}

// FetchDaily requests the six daily temperature series for q and verifies the response shape.
func (c *OpenMeteoArchiveClient) FetchDaily(ctx context.Context, q models.Query) (models.WeatherResponse, error) {
	req, err := c.buildRequest(ctx, q)
	if err != nil {
		return models.WeatherResponse{}, fmt.Errorf("build request: %w", err)
	}

	var body []byte
	call := func() error {
		var callErr error
		body, callErr = c.do(req)
		return callErr
	}
	if c.breaker != nil {
		err = c.breaker.Execute(call)
		if errors.Is(err, circuitbreaker.ErrOpen) {
			observability.ArchiveAPICallsTotal.WithLabelValues("circuit_open").Inc()
			return models.WeatherResponse{}, &NetworkError{Err: err}
		}
	} else {
		err = call()
	}
	if err != nil {
		return models.WeatherResponse{}, err
	}
	return decodeResponse(body)
}

func (c *OpenMeteoArchiveClient) buildRequest(ctx context.Context, q models.Query) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid archive URL: %w", err)
	}

	daily := make([]string, len(models.DailyMetrics))
	for i, m := range models.DailyMetrics {
		daily[i] = string(m)
	}
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(q.Latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(q.Longitude, 'f', -1, 64))
	params.Set("start_date", q.Start())
	params.Set("end_date", q.End())
	params.Set("daily", strings.Join(daily, ","))
	params.Set("timezone", "auto")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

// do performs a single round trip and returns the body of a 2xx response.
func (c *OpenMeteoArchiveClient) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		observability.ArchiveAPICallsTotal.WithLabelValues("error").Inc()
		observability.ArchiveAPIDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	status := statusLabel(resp.StatusCode)
	observability.ArchiveAPICallsTotal.WithLabelValues(status).Inc()
	observability.ArchiveAPIDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, remoteError(resp, body)
	}
	return body, nil
}

// remoteError prefers the API's {"reason": "..."} field, then the status text.
func remoteError(resp *http.Response, body []byte) *RemoteAPIError {
	var failure struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(body, &failure); err == nil && failure.Reason != "" {
		return &RemoteAPIError{StatusCode: resp.StatusCode, Message: failure.Reason}
	}
	return &RemoteAPIError{StatusCode: resp.StatusCode, Message: statusText(resp)}
}

func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	if text == "" {
		text = "HTTP " + strconv.Itoa(resp.StatusCode)
	}
	return text
}

type archivePayload struct {
	Latitude  float64                    `json:"latitude"`
	Longitude float64                    `json:"longitude"`
	Timezone  string                     `json:"timezone"`
	Daily     map[string]json.RawMessage `json:"daily"`
}

// decodeResponse verifies that daily.time and all six metric arrays exist and
// share one length. Individual metric elements that are not numbers decode as nil.
func decodeResponse(body []byte) (models.WeatherResponse, error) {
	var payload archivePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.WeatherResponse{}, &MalformedResponseError{Reason: "response is not a JSON object"}
	}
	if payload.Daily == nil {
		return models.WeatherResponse{}, &MalformedResponseError{Reason: "missing daily block"}
	}

	times, err := rawArray(payload.Daily, "time")
	if err != nil {
		return models.WeatherResponse{}, err
	}
	out := models.WeatherResponse{
		Latitude:  payload.Latitude,
		Longitude: payload.Longitude,
		Timezone:  payload.Timezone,
	}
	out.Daily.Time = make([]string, len(times))
	for i, raw := range times {
		var day string
		if err := json.Unmarshal(raw, &day); err != nil {
			return models.WeatherResponse{}, &MalformedResponseError{Reason: fmt.Sprintf("time[%d] is not a string", i)}
		}
		if _, err := time.Parse(models.DateLayout, day); err != nil {
			return models.WeatherResponse{}, &MalformedResponseError{Reason: fmt.Sprintf("time[%d] %q is not a date", i, day)}
		}
		out.Daily.Time[i] = day
	}

	for _, m := range models.DailyMetrics {
		elems, err := rawArray(payload.Daily, string(m))
		if err != nil {
			return models.WeatherResponse{}, err
		}
		if len(elems) != len(times) {
			return models.WeatherResponse{}, &MalformedResponseError{
				Reason: fmt.Sprintf("%s has %d values, time has %d", m, len(elems), len(times)),
			}
		}
		values := make([]*float64, len(elems))
		for i, raw := range elems {
			values[i] = decodeValue(raw)
		}
		out.Daily.SetSeries(m, values)
	}
	return out, nil
}

func rawArray(daily map[string]json.RawMessage, name string) ([]json.RawMessage, error) {
	raw, ok := daily[name]
	if !ok || isNull(raw) {
		return nil, &MalformedResponseError{Reason: "missing " + name + " array"}
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, &MalformedResponseError{Reason: name + " is not an array"}
	}
	return elems, nil
}

// decodeValue returns nil for null, strings, or anything else that is not a JSON number.
func decodeValue(raw json.RawMessage) *float64 {
	if isNull(raw) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
