// Package views turns a committed response and pagination state into the
// chart and table payloads served to the dashboard front end.
package views

import (
	"time"

	"github.com/kjstillabower/weather-history-dashboard/internal/models"
)

// DisplayDateLayout renders calendar dates as "Jan 2, 2006".
const DisplayDateLayout = "Jan 2, 2006"

// FormatDate renders an ISO date for display. Unparseable input is returned unchanged.
func FormatDate(iso string) string {
	t, err := time.Parse(models.DateLayout, iso)
	if err != nil {
		return iso
	}
	return t.Format(DisplayDateLayout)
}

// DateRangeDescription renders "Jan 1, 2024 - Jan 10, 2024".
func DateRangeDescription(start, end string) string {
	return FormatDate(start) + " - " + FormatDate(end)
}

// QuerySummary echoes a query with display-ready dates.
type QuerySummary struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	StartDate string  `json:"startDate"`
	EndDate   string  `json:"endDate"`
	Days      int     `json:"days"`
	Range     string  `json:"range"`
}

// NewQuerySummary describes q.
func NewQuerySummary(q models.Query) QuerySummary {
	return QuerySummary{
		Latitude:  q.Latitude,
		Longitude: q.Longitude,
		StartDate: q.Start(),
		EndDate:   q.End(),
		Days:      q.Days(),
		Range:     DateRangeDescription(q.Start(), q.End()),
	}
}
