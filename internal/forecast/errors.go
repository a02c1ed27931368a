package forecast

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPeriodFormat matches every InvalidPeriodFormatError.
	ErrInvalidPeriodFormat = errors.New("invalid period format")

	// ErrNoProcessableData matches every NoProcessableDataError.
	ErrNoProcessableData = errors.New("no processable forecast data")
)

// InvalidPeriodFormatError reports a period code that is neither an hour
// count nor an HHMM code.
type InvalidPeriodFormatError struct {
	Period string
	Err    error
}

func (e *InvalidPeriodFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid period format %q: %v", e.Period, e.Err)
	}
	return fmt.Sprintf("invalid period format %q", e.Period)
}

func (e *InvalidPeriodFormatError) Is(target error) bool {
	return target == ErrInvalidPeriodFormat
}

func (e *InvalidPeriodFormatError) Unwrap() error {
	return e.Err
}

// IsTransient returns false: a bad period means the upstream schema changed.
func (e *InvalidPeriodFormatError) IsTransient() bool {
	return false
}

// MeasurementError reports a measurement list that could not be turned into
// a table. Sibling measurements of the same day are unaffected.
type MeasurementError struct {
	Date        string
	Measurement string
	Err         error
}

func (e *MeasurementError) Error() string {
	return fmt.Sprintf("measurement %s on %s: %v", e.Measurement, e.Date, e.Err)
}

func (e *MeasurementError) Unwrap() error {
	return e.Err
}

// DayError reports a day block whose base date could not be read.
type DayError struct {
	Date string
	Err  error
}

func (e *DayError) Error() string {
	return fmt.Sprintf("day block %q: %v", e.Date, e.Err)
}

func (e *DayError) Unwrap() error {
	return e.Err
}

// NoProcessableDataError reports a payload that produced no table at all.
// Source identifies the request the payload came from.
type NoProcessableDataError struct {
	Source string
	Cause  error
}

func (e *NoProcessableDataError) Error() string {
	msg := "no processable forecast data"
	if e.Source != "" {
		msg += " for " + e.Source
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *NoProcessableDataError) Is(target error) bool {
	return target == ErrNoProcessableData
}

func (e *NoProcessableDataError) Unwrap() error {
	return e.Cause
}

// IsTransient returns true: the upstream may publish data on a later cycle.
func (e *NoProcessableDataError) IsTransient() bool {
	return true
}
