package models

import (
	"math"
	"time"
)

// SeriesPoint is one timestamped set of fields in a named series. Database
// groups series by origin: one database per municipality for forecasts,
// "aemet_conventional_observations" and "grafcan" for observations.
type SeriesPoint struct {
	Database string            `json:"database"`
	Series   string            `json:"series"`
	Time     time.Time         `json:"time"`
	Fields   map[string]any    `json:"fields"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// Validate rejects points the store cannot key or that carry nothing.
func (p *SeriesPoint) Validate() error {
	switch {
	case p.Database == "":
		return &ValidationError{Field: "database", Message: "series point has no database"}
	case p.Series == "":
		return &ValidationError{Field: "series", Value: p.Database, Message: "series point has no series name"}
	case p.Time.IsZero():
		return &ValidationError{Field: "time", Value: p.Series, Message: "series point has no timestamp"}
	case len(p.Fields) == 0:
		return &ValidationError{Field: "fields", Value: p.Series, Message: "series point has no fields"}
	}
	for k, v := range p.Fields {
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			return &ValidationError{Field: k, Value: p.Series, Message: "field value is not a finite number"}
		}
	}
	return nil
}

// DropNullFields removes nil-valued fields and reports whether any remain.
func (p *SeriesPoint) DropNullFields() bool {
	for k, v := range p.Fields {
		if v == nil {
			delete(p.Fields, k)
		}
	}
	return len(p.Fields) > 0
}

// SeriesInfo describes one stored series.
type SeriesInfo struct {
	Database   string    `json:"database" db:"database"`
	Series     string    `json:"series" db:"series"`
	PointCount int       `json:"point_count" db:"point_count"`
	FirstTime  time.Time `json:"first_time" db:"first_time"`
	LastTime   time.Time `json:"last_time" db:"last_time"`
}

// FieldSummary aggregates the numeric values of one field.
type FieldSummary struct {
	Field string   `json:"field" db:"field"`
	Count int      `json:"count" db:"count"`
	Min   *float64 `json:"min,omitempty" db:"min"`
	Max   *float64 `json:"max,omitempty" db:"max"`
	Avg   *float64 `json:"avg,omitempty" db:"avg"`
}

// SeriesSummary is the per-field aggregate of a series over a time window.
type SeriesSummary struct {
	Database   string         `json:"database"`
	Series     string         `json:"series"`
	From       *time.Time     `json:"from,omitempty"`
	To         *time.Time     `json:"to,omitempty"`
	PointCount int            `json:"point_count"`
	Fields     []FieldSummary `json:"fields"`
}
