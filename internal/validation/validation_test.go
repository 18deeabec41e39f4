package validation

import (
	"errors"
	"math"
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q) error = %v", s, err)
	}
	return d
}

func TestValidateCoordinates_OutOfRange(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lon     float64
		wantErr error
	}{
		{"lat below", -90.0001, 0, ErrLatitudeOutOfRange},
		{"lat above", 91, 0, ErrLatitudeOutOfRange},
		{"lat NaN", math.NaN(), 0, ErrLatitudeOutOfRange},
		{"lat +Inf", math.Inf(1), 0, ErrLatitudeOutOfRange},
		{"lon below", 0, -180.5, ErrLongitudeOutOfRange},
		{"lon above", 0, 181, ErrLongitudeOutOfRange},
		{"lon -Inf", 0, math.Inf(-1), ErrLongitudeOutOfRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCoordinates(tc.lat, tc.lon)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("error = %v, want %v", err, tc.wantErr)
			}
			if !IsValidationError(err) {
				t.Errorf("IsValidationError(%v) = false, want true", err)
			}
		})
	}
}

func TestValidateCoordinates_Bounds(t *testing.T) {
	tests := []struct {
		lat, lon float64
	}{
		{-90, -180},
		{90, 180},
		{0, 0},
		{47.3769, 8.5417},
	}
	for _, tc := range tests {
		if err := ValidateCoordinates(tc.lat, tc.lon); err != nil {
			t.Errorf("ValidateCoordinates(%v, %v) error = %v, want nil", tc.lat, tc.lon, err)
		}
	}
}

func TestValidateDateRange(t *testing.T) {
	tests := []struct {
		name    string
		start   string
		end     string
		wantErr error
	}{
		{"valid", "2024-01-01", "2024-01-10", nil},
		{"same day", "2024-01-01", "2024-01-01", nil},
		{"ends today", "2024-03-01", "2024-03-15", nil},
		{"exactly 100 days", "2023-12-06", "2024-03-15", nil},
		{"101 days", "2023-12-05", "2024-03-15", ErrRangeTooLong},
		{"start after end", "2024-01-10", "2024-01-01", ErrStartAfterEnd},
		{"end tomorrow", "2024-03-10", "2024-03-16", ErrEndInFuture},
		{"bad start", "2024-13-01", "2024-01-10", ErrInvalidDate},
		{"bad end", "2024-01-01", "yesterday", ErrInvalidDate},
		{"empty", "", "", ErrInvalidDate},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDateRange(tc.start, tc.end, fixedNow)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("ValidateDateRange() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ValidateDateRange() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateDates_ZeroDates(t *testing.T) {
	err := ValidateDates(time.Time{}, mustDate(t, "2024-01-01"), fixedNow)
	if !errors.Is(err, ErrInvalidDate) {
		t.Errorf("error = %v, want ErrInvalidDate", err)
	}
}

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"47.3769", 47.3769, false},
		{"-8.5", -8.5, false},
		{" 12 ", 12, false},
		{".5", 0.5, false},
		{"", 0, true},
		{"1e3", 0, true},
		{"+5", 0, true},
		{"12.", 0, true},
		{"abc", 0, true},
		{"NaN", 0, true},
		{"--1", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseCoordinate(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidCoordinate) {
				t.Errorf("ParseCoordinate(%q) error = %v, want ErrInvalidCoordinate", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCoordinate(%q) error = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseCoordinate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseQuery(t *testing.T) {
	q, err := ParseQuery(QueryForm{
		Latitude:  "47.3769",
		Longitude: "8.5417",
		StartDate: "2024-01-01",
		EndDate:   "2024-01-10",
	}, fixedNow)
	if err != nil {
		t.Fatalf("ParseQuery() error = %v", err)
	}
	if q.Latitude != 47.3769 || q.Longitude != 8.5417 {
		t.Errorf("coordinates = (%v, %v), want (47.3769, 8.5417)", q.Latitude, q.Longitude)
	}
	if q.Start() != "2024-01-01" || q.End() != "2024-01-10" {
		t.Errorf("dates = %s..%s, want 2024-01-01..2024-01-10", q.Start(), q.End())
	}
	if q.Days() != 10 {
		t.Errorf("Days() = %d, want 10", q.Days())
	}
}

func TestParseQuery_ReportsField(t *testing.T) {
	tests := []struct {
		name      string
		form      QueryForm
		wantField string
	}{
		{"latitude text", QueryForm{"north", "8", "2024-01-01", "2024-01-02"}, "latitude"},
		{"longitude range", QueryForm{"10", "200", "2024-01-01", "2024-01-02"}, "longitude"},
		{"start date", QueryForm{"10", "20", "01/01/2024", "2024-01-02"}, "startDate"},
		{"future end", QueryForm{"10", "20", "2024-01-01", "2025-01-02"}, "endDate"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseQuery(tc.form, fixedNow)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("ParseQuery() error = %v, want *ValidationError", err)
			}
			if ve.Field != tc.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tc.wantField)
			}
		})
	}
}

func TestToday(t *testing.T) {
	now := time.Date(2024, 3, 15, 23, 59, 0, 0, time.FixedZone("X", -5*3600))
	got := Today(now)
	want := time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Today() = %v, want %v", got, want)
	}
}
