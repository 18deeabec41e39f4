package client

import (
	"errors"

	"github.com/kjstillabower/weather-history-dashboard/internal/validation"
)

// ErrorCategory is a stable label for error classification in metrics and logs.
type ErrorCategory string

const (
	ErrorCategoryValidation ErrorCategory = "validation"
	ErrorCategoryRemoteAPI  ErrorCategory = "remote_api"
	ErrorCategoryNetwork    ErrorCategory = "network"
	ErrorCategoryMalformed  ErrorCategory = "malformed"
	ErrorCategoryUnknown    ErrorCategory = "unknown"
)

// CategorizeError maps a fetch-path error to its ErrorCategory.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	if validation.IsValidationError(err) {
		return ErrorCategoryValidation
	}
	var remote *RemoteAPIError
	if errors.As(err, &remote) {
		return ErrorCategoryRemoteAPI
	}
	var network *NetworkError
	if errors.As(err, &network) {
		return ErrorCategoryNetwork
	}
	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return ErrorCategoryMalformed
	}
	return ErrorCategoryUnknown
}
