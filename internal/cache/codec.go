package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kjstillabower/weather-history-dashboard/internal/models"
)

// keyPrefix namespaces remote entries by payload version. Bump it when
// storedResponse changes so old entries read as misses instead of corrupt.
const keyPrefix = "history:v1:"

// ErrCorruptEntry means a remote entry could not be decoded into a complete
// response. Backends delete such entries.
var ErrCorruptEntry = errors.New("corrupt cache entry")

// storedResponse is the wire form shared by the remote backends.
type storedResponse struct {
	StoredAt time.Time              `json:"storedAt"`
	Response models.WeatherResponse `json:"response"`
}

func remoteKey(key string) string {
	return keyPrefix + key
}

func encodeEntry(value models.WeatherResponse, now time.Time) ([]byte, error) {
	return json.Marshal(storedResponse{StoredAt: now.UTC(), Response: value})
}

// decodeEntry returns the stored response after checking that every daily
// series still lines up with the time axis.
func decodeEntry(raw []byte) (models.WeatherResponse, time.Time, error) {
	var e storedResponse
	if err := json.Unmarshal(raw, &e); err != nil {
		return models.WeatherResponse{}, time.Time{}, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	n := e.Response.Len()
	if n == 0 {
		return models.WeatherResponse{}, time.Time{}, fmt.Errorf("%w: no days", ErrCorruptEntry)
	}
	for _, m := range models.DailyMetrics {
		if got := len(e.Response.Daily.Series(m)); got != n {
			return models.WeatherResponse{}, time.Time{}, fmt.Errorf("%w: %s has %d values, time has %d", ErrCorruptEntry, m, got, n)
		}
	}
	return e.Response, e.StoredAt, nil
}
