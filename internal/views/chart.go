package views

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/kjstillabower/weather-history-dashboard/internal/models"
)

// NotAvailable is displayed for a missing value or an empty statistic.
const NotAvailable = "N/A"

// Stat is a reduced value; Valid is false when no numeric input remained.
type Stat struct {
	Value float64
	Valid bool
}

// String formats the value with one decimal, or NotAvailable.
func (s Stat) String() string {
	if !s.Valid {
		return NotAvailable
	}
	return strconv.FormatFloat(s.Value, 'f', 1, 64)
}

// MarshalJSON renders {"value": <number|null>, "display": "<string>"}.
func (s Stat) MarshalJSON() ([]byte, error) {
	out := struct {
		Value   *float64 `json:"value"`
		Display string   `json:"display"`
	}{Display: s.String()}
	if s.Valid {
		v := s.Value
		out.Value = &v
	}
	return json.Marshal(out)
}

// Summary holds the chart's headline statistics.
type Summary struct {
	Max  Stat `json:"max"`  // max of daily maxima
	Min  Stat `json:"min"`  // min of daily minima
	Mean Stat `json:"mean"` // mean of daily means
}

// Chart is the line chart payload: labels plus the max, min and mean series.
type Chart struct {
	Dates   []string   `json:"dates"`
	Labels  []string   `json:"labels"`
	Max     []*float64 `json:"max"`
	Min     []*float64 `json:"min"`
	Mean    []*float64 `json:"mean"`
	Summary Summary    `json:"summary"`
}

// NewChart builds the chart from resp. Series are shared with resp, not copied.
func NewChart(resp models.WeatherResponse) Chart {
	labels := make([]string, len(resp.Daily.Time))
	for i, d := range resp.Daily.Time {
		labels[i] = FormatDate(d)
	}
	return Chart{
		Dates:  resp.Daily.Time,
		Labels: labels,
		Max:    resp.Daily.TemperatureMax,
		Min:    resp.Daily.TemperatureMin,
		Mean:   resp.Daily.TemperatureMean,
		Summary: Summary{
			Max:  MaxOf(resp.Daily.TemperatureMax),
			Min:  MinOf(resp.Daily.TemperatureMin),
			Mean: MeanOf(resp.Daily.TemperatureMean),
		},
	}
}

// MinOf returns the smallest numeric value, ignoring nil and NaN.
func MinOf(values []*float64) Stat {
	return reduce(values, func(acc, v float64) float64 { return math.Min(acc, v) })
}

// MaxOf returns the largest numeric value, ignoring nil and NaN.
func MaxOf(values []*float64) Stat {
	return reduce(values, func(acc, v float64) float64 { return math.Max(acc, v) })
}

// MeanOf returns the arithmetic mean of numeric values, ignoring nil and NaN.
func MeanOf(values []*float64) Stat {
	var sum float64
	n := 0
	for _, v := range values {
		if numeric(v) {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return Stat{}
	}
	return Stat{Value: sum / float64(n), Valid: true}
}

func reduce(values []*float64, fn func(acc, v float64) float64) Stat {
	var out Stat
	for _, v := range values {
		if !numeric(v) {
			continue
		}
		if !out.Valid {
			out = Stat{Value: *v, Valid: true}
			continue
		}
		out.Value = fn(out.Value, *v)
	}
	return out
}

func numeric(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}
