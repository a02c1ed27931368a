package forecast

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// ParsePeriod converts an upstream period code into an offset from midnight.
//
// Codes of one or two characters are an hour count ("6", "06"). Codes of four
// characters are HHMM ("1800", "0612"). Anything else, and any offset outside
// a single day, is an InvalidPeriodFormatError.
func ParsePeriod(period string) (time.Duration, error) {
	switch len(period) {
	case 1, 2:
		if strings.ContainsAny(period, "+-") {
			return 0, &InvalidPeriodFormatError{Period: period, Err: errors.New("signed hour count")}
		}
		hours, err := strconv.ParseFloat(period, 64)
		if err != nil {
			return 0, &InvalidPeriodFormatError{Period: period, Err: err}
		}
		return withinDay(period, time.Duration(hours*float64(time.Hour)))

	case 4:
		if !allDigits(period) {
			return 0, &InvalidPeriodFormatError{Period: period, Err: errors.New("HHMM must be four digits")}
		}
		hours, err := strconv.Atoi(period[:2])
		if err != nil {
			return 0, &InvalidPeriodFormatError{Period: period, Err: err}
		}
		minutes, err := strconv.Atoi(period[2:])
		if err != nil {
			return 0, &InvalidPeriodFormatError{Period: period, Err: err}
		}
		if minutes < 0 || minutes >= 60 {
			return 0, &InvalidPeriodFormatError{Period: period, Err: errors.New("minutes out of range")}
		}
		return withinDay(period, time.Duration(hours)*time.Hour+time.Duration(minutes)*time.Minute)

	default:
		return 0, &InvalidPeriodFormatError{Period: period, Err: errors.New("expected 1, 2 or 4 characters")}
	}
}

func withinDay(period string, d time.Duration) (time.Duration, error) {
	if d < 0 || d >= day {
		return 0, &InvalidPeriodFormatError{Period: period, Err: errors.New("offset outside a single day")}
	}
	return d, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
