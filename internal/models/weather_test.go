package models

import (
	"testing"
	"time"
)

func date(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestQuery_Days(t *testing.T) {
	tests := []struct {
		start, end string
		want       int
	}{
		{"2024-01-01", "2024-01-01", 1},
		{"2024-01-01", "2024-01-10", 10},
		{"2024-02-28", "2024-03-01", 3},
		{"2023-12-01", "2023-12-25", 25},
	}
	for _, tt := range tests {
		q := Query{StartDate: date(tt.start), EndDate: date(tt.end)}
		if got := q.Days(); got != tt.want {
			t.Errorf("Query{%s..%s}.Days() = %d, want %d", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestQuery_StartEnd(t *testing.T) {
	q := Query{Latitude: 40.7, Longitude: -74, StartDate: date("2024-03-05"), EndDate: date("2024-03-09")}
	if got := q.Start(); got != "2024-03-05" {
		t.Errorf("Start() = %q, want 2024-03-05", got)
	}
	if got := q.End(); got != "2024-03-09" {
		t.Errorf("End() = %q, want 2024-03-09", got)
	}
	if got := q.String(); got != "(40.7,-74) 2024-03-05..2024-03-09" {
		t.Errorf("String() = %q", got)
	}
}

func TestDailySeries_SetSeriesRoundTrip(t *testing.T) {
	v := 1.5
	var d DailySeries
	for _, m := range DailyMetrics {
		d.SetSeries(m, []*float64{&v})
	}
	for _, m := range DailyMetrics {
		got := d.Series(m)
		if len(got) != 1 || got[0] == nil || *got[0] != v {
			t.Errorf("Series(%s) = %v, want [1.5]", m, got)
		}
	}
	if got := d.Series(Metric("precipitation_sum")); got != nil {
		t.Errorf("Series(unknown) = %v, want nil", got)
	}
}

func TestWeatherResponse_Len(t *testing.T) {
	r := WeatherResponse{Daily: DailySeries{Time: []string{"2024-01-01", "2024-01-02"}}}
	if got := r.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
	if got := (WeatherResponse{}).Len(); got != 0 {
		t.Errorf("empty Len() = %d, want 0", got)
	}
}
