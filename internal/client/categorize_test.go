package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kjstillabower/weather-history-dashboard/internal/validation"
)

// TestCategorizeError verifies that CategorizeError maps fetch-path errors to
// the correct ErrorCategory, including wrapped errors.
func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"validation", &validation.ValidationError{Field: "latitude", Err: validation.ErrLatitudeOutOfRange}, ErrorCategoryValidation},
		{"remote", &RemoteAPIError{StatusCode: 400, Message: "bad"}, ErrorCategoryRemoteAPI},
		{"wrapped remote", fmt.Errorf("fetch: %w", &RemoteAPIError{StatusCode: 500, Message: "x"}), ErrorCategoryRemoteAPI},
		{"network", &NetworkError{Err: context.DeadlineExceeded}, ErrorCategoryNetwork},
		{"circuit open", &NetworkError{Err: ErrCircuitOpen}, ErrorCategoryNetwork},
		{"malformed", &MalformedResponseError{Reason: "missing daily block"}, ErrorCategoryMalformed},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsBreakerFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", &NetworkError{Err: errors.New("dial tcp: refused")}, true},
		{"400", &RemoteAPIError{StatusCode: 400, Message: "bad"}, false},
		{"429", &RemoteAPIError{StatusCode: 429, Message: "slow down"}, true},
		{"503", &RemoteAPIError{StatusCode: 503, Message: "unavailable"}, true},
	}
	for _, tt := range tests {
		if got := IsBreakerFailure(tt.err); got != tt.want {
			t.Errorf("%s: IsBreakerFailure() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
