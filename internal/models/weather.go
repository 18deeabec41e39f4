package models

import (
	"fmt"
	"time"
)

// DateLayout is the ISO calendar date format used by the archive API and query inputs.
const DateLayout = "2006-01-02"

// Metric names a daily aggregate series requested from the archive API.
type Metric string

const (
	TemperatureMax          Metric = "temperature_2m_max"
	TemperatureMin          Metric = "temperature_2m_min"
	TemperatureMean         Metric = "temperature_2m_mean"
	ApparentTemperatureMax  Metric = "apparent_temperature_max"
	ApparentTemperatureMin  Metric = "apparent_temperature_min"
	ApparentTemperatureMean Metric = "apparent_temperature_mean"
)

// DailyMetrics lists the six aggregates in table column order.
var DailyMetrics = []Metric{
	TemperatureMax,
	TemperatureMin,
	TemperatureMean,
	ApparentTemperatureMax,
	ApparentTemperatureMin,
	ApparentTemperatureMean,
}

// Query is a validated coordinate and date range driving one fetch.
// Dates are calendar dates held at UTC midnight.
type Query struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	StartDate time.Time `json:"-"`
	EndDate   time.Time `json:"-"`
}

// Start returns StartDate in DateLayout.
func (q Query) Start() string {
	return q.StartDate.Format(DateLayout)
}

// End returns EndDate in DateLayout.
func (q Query) End() string {
	return q.EndDate.Format(DateLayout)
}

// Days returns the number of calendar days covered, both ends inclusive.
func (q Query) Days() int {
	return int(q.EndDate.Sub(q.StartDate).Hours()/24) + 1
}

func (q Query) String() string {
	return fmt.Sprintf("(%g,%g) %s..%s", q.Latitude, q.Longitude, q.Start(), q.End())
}

// DailySeries is the columnar daily block of an archive response. Index i in
// every series describes Time[i]. A nil element is a missing value.
type DailySeries struct {
	Time                    []string   `json:"time"`
	TemperatureMax          []*float64 `json:"temperature_2m_max"`
	TemperatureMin          []*float64 `json:"temperature_2m_min"`
	TemperatureMean         []*float64 `json:"temperature_2m_mean"`
	ApparentTemperatureMax  []*float64 `json:"apparent_temperature_max"`
	ApparentTemperatureMin  []*float64 `json:"apparent_temperature_min"`
	ApparentTemperatureMean []*float64 `json:"apparent_temperature_mean"`
}

// Series returns the values for metric m, or nil for an unknown metric.
func (d DailySeries) Series(m Metric) []*float64 {
	switch m {
	case TemperatureMax:
		return d.TemperatureMax
	case TemperatureMin:
		return d.TemperatureMin
	case TemperatureMean:
		return d.TemperatureMean
	case ApparentTemperatureMax:
		return d.ApparentTemperatureMax
	case ApparentTemperatureMin:
		return d.ApparentTemperatureMin
	case ApparentTemperatureMean:
		return d.ApparentTemperatureMean
	}
	return nil
}

// SetSeries assigns values to metric m. Unknown metrics are ignored.
func (d *DailySeries) SetSeries(m Metric, values []*float64) {
	switch m {
	case TemperatureMax:
		d.TemperatureMax = values
	case TemperatureMin:
		d.TemperatureMin = values
	case TemperatureMean:
		d.TemperatureMean = values
	case ApparentTemperatureMax:
		d.ApparentTemperatureMax = values
	case ApparentTemperatureMin:
		d.ApparentTemperatureMin = values
	case ApparentTemperatureMean:
		d.ApparentTemperatureMean = values
	}
}

// WeatherResponse is the parsed archive payload for a query. Shared read-only
// once delivered.
type WeatherResponse struct {
	Latitude  float64     `json:"latitude"`
	Longitude float64     `json:"longitude"`
	Timezone  string      `json:"timezone,omitempty"`
	Daily     DailySeries `json:"daily"`
}

// Len returns the number of days in the response.
func (r WeatherResponse) Len() int {
	return len(r.Daily.Time)
}
