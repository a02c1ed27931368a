package forecast

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

const (
	// DefaultWindKey is the measurement key of the paired wind/gust list.
	DefaultWindKey = "windAndGust"

	// PeriodField is the reading field holding the period code.
	PeriodField = "period"

	// DateLayout is the layout of the base date keys in a Forecast.
	DateLayout = "2006-01-02"
)

var dateLayouts = []string{
	DateLayout,
	"2006-01-02T15:04:05",
	time.RFC3339,
}

var errMissingPeriod = errors.New("reading has no period field")

// DayBlock is one calendar day of a forecast payload: the base date and the
// raw decoded value of every measurement key.
type DayBlock struct {
	Date    string
	Entries map[string]any
}

// Skipped records a measurement key that carried nothing to tabulate.
type Skipped struct {
	Date        string
	Measurement string
	Reason      string
}

// Forecast holds the normalized tables of one payload, keyed by base date and
// then by measurement key.
type Forecast struct {
	Days    map[string]map[string]*Table
	Skipped []Skipped
}

// Table returns the table for a base date and measurement key.
func (f *Forecast) Table(date, measurement string) (*Table, bool) {
	t, ok := f.Days[date][measurement]
	return t, ok
}

// Tables returns every table ordered by date and then measurement key.
func (f *Forecast) Tables() []*Table {
	dates := make([]string, 0, len(f.Days))
	for date := range f.Days {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	var out []*Table
	for _, date := range dates {
		keys := make([]string, 0, len(f.Days[date]))
		for key := range f.Days[date] {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			out = append(out, f.Days[date][key])
		}
	}
	return out
}

// Len returns the number of tables.
func (f *Forecast) Len() int {
	n := 0
	for _, tables := range f.Days {
		n += len(tables)
	}
	return n
}

// Builder turns day blocks into timestamped tables.
type Builder struct {
	// Source identifies the request the payload came from and is carried by
	// NoProcessableDataError.
	Source string

	// Location is the zone of the base dates. Nil means UTC.
	Location *time.Location

	// WindKey selects the measurement reshaped with ReshapeWind.
	WindKey string
}

// NewBuilder returns a Builder with UTC dates and the default wind key.
func NewBuilder(source string) *Builder {
	return &Builder{
		Source:   source,
		Location: time.UTC,
		WindKey:  DefaultWindKey,
	}
}

// Build tabulates every measurement list of every day block.
//
// A measurement whose readings cannot be tabulated (for example a bad period
// code) fails on its own: the other measurements of the same day are still
// built and the failure is part of the returned error. The Forecast is
// returned together with that error. When nothing at all could be tabulated
// the error is a NoProcessableDataError.
func (b *Builder) Build(blocks []DayBlock) (*Forecast, error) {
	out := &Forecast{Days: make(map[string]map[string]*Table)}
	var errs []error

	for _, block := range blocks {
		base, err := b.parseDate(block.Date)
		if err != nil {
			errs = append(errs, &DayError{Date: block.Date, Err: err})
			continue
		}
		date := base.Format(DateLayout)

		keys := make([]string, 0, len(block.Entries))
		for key := range block.Entries {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		tables := make(map[string]*Table)
		for _, key := range keys {
			readings, ok := block.Entries[key].([]any)
			if !ok {
				out.Skipped = append(out.Skipped, Skipped{Date: date, Measurement: key, Reason: fmt.Sprintf("value is %T, not a list", block.Entries[key])})
				continue
			}
			if len(readings) == 0 {
				out.Skipped = append(out.Skipped, Skipped{Date: date, Measurement: key, Reason: "empty list"})
				continue
			}

			table, err := b.buildTable(date, base, key, readings)
			if err != nil {
				errs = append(errs, &MeasurementError{Date: date, Measurement: key, Err: err})
				continue
			}
			tables[key] = table
		}

		if len(tables) == 0 {
			continue
		}
		if existing, ok := out.Days[date]; ok {
			for key, table := range tables {
				existing[key] = table
			}
			continue
		}
		out.Days[date] = tables
	}

	if out.Len() == 0 {
		return out, &NoProcessableDataError{Source: b.Source, Cause: errors.Join(errs...)}
	}
	return out, errors.Join(errs...)
}

func (b *Builder) buildTable(date string, base time.Time, key string, readings []any) (*Table, error) {
	rows := make([]Row, 0, len(readings))

	for i, item := range readings {
		record, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("reading %d is %T, not an object", i, item)
		}

		offset, err := recordPeriod(record)
		if err != nil {
			return nil, fmt.Errorf("reading %d: %w", i, err)
		}

		fields := make(map[string]Field, len(record))
		for name, value := range record {
			if name == PeriodField {
				continue
			}
			fields[name] = FieldFromJSON(value)
		}
		rows = append(rows, Row{Timestamp: wallClock(base, offset), Fields: fields})
	}

	table := &Table{Date: date, Measurement: key, Rows: rows}
	if key == b.windKey() {
		return ReshapeWind(table), nil
	}
	table.Rows = collapse(table.Rows)
	return table, nil
}

func recordPeriod(record map[string]any) (time.Duration, error) {
	raw, ok := record[PeriodField]
	if !ok {
		return 0, &InvalidPeriodFormatError{Err: errMissingPeriod}
	}
	period, ok := raw.(string)
	if !ok {
		return 0, &InvalidPeriodFormatError{Period: fmt.Sprint(raw), Err: fmt.Errorf("period is %T, not a string", raw)}
	}
	return ParsePeriod(period)
}

// wallClock places offset on the local clock of base's day, so period "07"
// is 07:00 local even on days with a daylight saving transition.
func wallClock(base time.Time, offset time.Duration) time.Time {
	h := offset / time.Hour
	m := (offset % time.Hour) / time.Minute
	ns := offset % time.Minute
	return time.Date(base.Year(), base.Month(), base.Day(), int(h), int(m), 0, int(ns), base.Location())
}

func (b *Builder) parseDate(value string) (time.Time, error) {
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

func (b *Builder) windKey() string {
	if b.WindKey == "" {
		return DefaultWindKey
	}
	return b.WindKey
}
