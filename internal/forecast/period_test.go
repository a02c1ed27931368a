package forecast

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		name    string
		period  string
		want    time.Duration
		wantErr bool
	}{
		{name: "single digit hour", period: "6", want: 6 * time.Hour},
		{name: "two digit hour", period: "06", want: 6 * time.Hour},
		{name: "midnight", period: "00", want: 0},
		{name: "last hour", period: "23", want: 23 * time.Hour},
		{name: "HHMM on the hour", period: "1800", want: 18 * time.Hour},
		{name: "HHMM with minutes", period: "0612", want: 6*time.Hour + 12*time.Minute},
		{name: "HHMM last minute", period: "2359", want: 23*time.Hour + 59*time.Minute},
		{name: "three characters", period: "123", wantErr: true},
		{name: "empty", period: "", wantErr: true},
		{name: "five characters", period: "12345", wantErr: true},
		{name: "letters", period: "ab", wantErr: true},
		{name: "letters in HHMM", period: "12ab", wantErr: true},
		{name: "hour out of range", period: "24", wantErr: true},
		{name: "HHMM hour out of range", period: "2400", wantErr: true},
		{name: "minutes out of range", period: "1260", wantErr: true},
		{name: "negative hour", period: "-1", wantErr: true},
		{name: "signed hour", period: "+1", wantErr: true},
		{name: "signed HHMM parts", period: "+1+2", wantErr: true},
		{name: "signed HHMM minutes", period: "10-5", wantErr: true},
		{name: "leading plus in HHMM", period: "+100", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeriod(tt.period)

			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePeriod(%q) error = %v, wantErr %v", tt.period, err, tt.wantErr)
			}

			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPeriodFormat) {
					t.Errorf("error %v does not match ErrInvalidPeriodFormat", err)
				}
				var perr *InvalidPeriodFormatError
				if !errors.As(err, &perr) {
					t.Fatalf("error %T is not *InvalidPeriodFormatError", err)
				}
				if perr.Period != tt.period {
					t.Errorf("Period = %q, want %q", perr.Period, tt.period)
				}
				return
			}

			if got != tt.want {
				t.Errorf("ParsePeriod(%q) = %v, want %v", tt.period, got, tt.want)
			}
		})
	}
}

// TestParsePeriod_WithinOneDay walks every hour and HHMM code.
func TestParsePeriod_WithinOneDay(t *testing.T) {
	var periods []string
	for h := 0; h < 24; h++ {
		periods = append(periods, fmt.Sprint(h), fmt.Sprintf("%02d", h))
		for m := 0; m < 60; m++ {
			periods = append(periods, fmt.Sprintf("%02d%02d", h, m))
		}
	}

	for _, p := range periods {
		d, err := ParsePeriod(p)
		if err != nil {
			t.Fatalf("ParsePeriod(%q) unexpected error: %v", p, err)
		}
		if d < 0 || d >= 24*time.Hour {
			t.Errorf("ParsePeriod(%q) = %v, outside [0, 24h)", p, d)
		}
	}
}

func TestInvalidPeriodFormatError(t *testing.T) {
	err := &InvalidPeriodFormatError{Period: "abc"}

	if err.Error() != `invalid period format "abc"` {
		t.Errorf("Error() = %v", err.Error())
	}

	if err.IsTransient() {
		t.Error("InvalidPeriodFormatError should not be transient")
	}
}
