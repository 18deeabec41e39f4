package validation

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/weather-history-dashboard/internal/models"
)

// MaxRangeDays is the longest allowed distance between start and end date, in whole days.
const MaxRangeDays = 100

var (
	// ErrInvalidCoordinate is returned when a coordinate is not a finite signed decimal.
	ErrInvalidCoordinate = errors.New("coordinate must be a decimal number")

	// ErrLatitudeOutOfRange is returned when latitude is outside [-90, 90].
	ErrLatitudeOutOfRange = errors.New("invalid latitude, must be between -90 and 90")

	// ErrLongitudeOutOfRange is returned when longitude is outside [-180, 180].
	ErrLongitudeOutOfRange = errors.New("invalid longitude, must be between -180 and 180")

	// ErrInvalidDate is returned when a date cannot be parsed as YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date format")

	// ErrStartAfterEnd is returned when the start date is after the end date.
	ErrStartAfterEnd = errors.New("start date must be before end date")

	// ErrEndInFuture is returned when the end date is after today.
	ErrEndInFuture = errors.New("end date cannot be in the future")

	// ErrRangeTooLong is returned when the range exceeds MaxRangeDays.
	ErrRangeTooLong = errors.New("date range cannot exceed 100 days")
)

// ValidationError reports which input field failed and why. Err is one of the
// sentinel errors above.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// coordinatePattern mirrors the form's signed-decimal constraint.
var coordinatePattern = regexp.MustCompile(`^-?[0-9]*\.?[0-9]+$`)

// QueryForm is the raw form input: free-text coordinates and ISO dates.
type QueryForm struct {
	Latitude  string `json:"latitude" validate:"required"`
	Longitude string `json:"longitude" validate:"required"`
	StartDate string `json:"startDate" validate:"required"`
	EndDate   string `json:"endDate" validate:"required"`
}

// ParseQuery validates form input and returns the Query it describes.
// now determines "today" for the end date check.
func ParseQuery(form QueryForm, now time.Time) (models.Query, error) {
	lat, err := ParseCoordinate(form.Latitude)
	if err != nil {
		return models.Query{}, &ValidationError{Field: "latitude", Err: err}
	}
	lon, err := ParseCoordinate(form.Longitude)
	if err != nil {
		return models.Query{}, &ValidationError{Field: "longitude", Err: err}
	}
	if err := ValidateCoordinates(lat, lon); err != nil {
		return models.Query{}, err
	}
	start, end, err := parseDates(form.StartDate, form.EndDate)
	if err != nil {
		return models.Query{}, err
	}
	if err := ValidateDates(start, end, now); err != nil {
		return models.Query{}, err
	}
	return models.Query{Latitude: lat, Longitude: lon, StartDate: start, EndDate: end}, nil
}

// ValidateQuery checks an already-typed query.
func ValidateQuery(q models.Query, now time.Time) error {
	if err := ValidateCoordinates(q.Latitude, q.Longitude); err != nil {
		return err
	}
	return ValidateDates(q.StartDate, q.EndDate, now)
}

// ParseCoordinate parses a trimmed signed decimal such as "-12.5" or ".5".
// Exponents, signs other than a leading minus, and empty input are rejected.
func ParseCoordinate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !coordinatePattern.MatchString(s) {
		return 0, ErrInvalidCoordinate
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrInvalidCoordinate
	}
	return v, nil
}

// ValidateCoordinates fails when either value is not finite or out of bounds.
func ValidateCoordinates(lat, lon float64) error {
	if !isFinite(lat) || lat < -90 || lat > 90 {
		return &ValidationError{Field: "latitude", Err: ErrLatitudeOutOfRange}
	}
	if !isFinite(lon) || lon < -180 || lon > 180 {
		return &ValidationError{Field: "longitude", Err: ErrLongitudeOutOfRange}
	}
	return nil
}

// ValidateDateRange parses both dates (YYYY-MM-DD) and applies ValidateDates.
func ValidateDateRange(start, end string, now time.Time) error {
	s, e, err := parseDates(start, end)
	if err != nil {
		return err
	}
	return ValidateDates(s, e, now)
}

// ValidateDates requires start <= end <= today and a span of at most
// MaxRangeDays whole days. Today is the UTC calendar date of now.
func ValidateDates(start, end, now time.Time) error {
	if start.IsZero() {
		return &ValidationError{Field: "startDate", Err: ErrInvalidDate}
	}
	if end.IsZero() {
		return &ValidationError{Field: "endDate", Err: ErrInvalidDate}
	}
	if start.After(end) {
		return &ValidationError{Field: "startDate", Err: ErrStartAfterEnd}
	}
	if end.After(Today(now)) {
		return &ValidationError{Field: "endDate", Err: ErrEndInFuture}
	}
	days := int(math.Floor(end.Sub(start).Hours() / 24))
	if days > MaxRangeDays {
		return &ValidationError{Field: "endDate", Err: ErrRangeTooLong}
	}
	return nil
}

// ParseDate parses an ISO calendar date into UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(models.DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// Today returns the UTC calendar date of now at midnight.
func Today(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseDates(start, end string) (time.Time, time.Time, error) {
	s, err := ParseDate(start)
	if err != nil {
		return time.Time{}, time.Time{}, &ValidationError{Field: "startDate", Err: err}
	}
	e, err := ParseDate(end)
	if err != nil {
		return time.Time{}, time.Time{}, &ValidationError{Field: "endDate", Err: err}
	}
	return s, e, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
