package client

import (
	"errors"
	"net/http"

	"github.com/kjstillabower/weather-history-dashboard/internal/circuitbreaker"
)

// ErrCircuitOpen is wrapped by the NetworkError returned while the archive
// circuit breaker rejects calls.
var ErrCircuitOpen = circuitbreaker.ErrOpen

// RemoteAPIError means the archive API answered with a non-success status.
// Message is the API's "reason" field when present, else the status text.
type RemoteAPIError struct {
	StatusCode int
	Message    string
}

func (e *RemoteAPIError) Error() string {
	return "API Error: " + e.Message
}

// NetworkError means the request was sent but no usable response arrived.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "no response from the weather service: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// MalformedResponseError means the response parsed but lacked the expected
// daily arrays or their lengths disagreed.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return "incomplete weather data received: " + e.Reason
}

// IsBreakerFailure reports whether err should count against the circuit
// breaker: network failures, 429 and 5xx. Other remote errors are the
// caller's fault and pass through.
func IsBreakerFailure(err error) bool {
	if err == nil {
		return false
	}
	var remote *RemoteAPIError
	if errors.As(err, &remote) {
		return remote.StatusCode == http.StatusTooManyRequests || remote.StatusCode >= 500
	}
	return true
}
