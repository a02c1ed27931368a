package aemet

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"climacan/internal/models"
)

// Canary Islands bounding box used for stations whose identifier does not
// start with the Canary "C" prefix.
const (
	canaryMinLat = 27.0
	canaryMaxLat = 29.0
	canaryMinLon = -19.0
	canaryMaxLon = -13.0
)

var observationTimeLayouts = []string{
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
}

// StationRecord is one raw record of the conventional observation endpoint.
type StationRecord map[string]any

// DecodeObservations decodes a conventional observation data document.
func DecodeObservations(raw []byte) ([]StationRecord, error) {
	var records []StationRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("invalid observation document: %w", err)
	}
	if len(records) == 0 || (len(records) == 1 && len(records[0]) == 0) {
		return nil, ErrEmptyPayload
	}
	return records, nil
}

// Idema returns the station identifier.
func (r StationRecord) Idema() string {
	s, _ := r["idema"].(string)
	return s
}

func (r StationRecord) number(key string) (float64, bool) {
	f, ok := r[key].(float64)
	return f, ok
}

// IsCanary reports whether the station belongs to the Canary Islands: its
// identifier starts with "C" or it lies inside the archipelago bounding box.
func (r StationRecord) IsCanary() bool {
	if strings.HasPrefix(r.Idema(), "C") {
		return true
	}
	lat, okLat := r.number("lat")
	lon, okLon := r.number("lon")
	return okLat && okLon &&
		lat >= canaryMinLat && lat <= canaryMaxLat &&
		lon >= canaryMinLon && lon <= canaryMaxLon
}

// ToObservation renames the record fields through the observation field
// catalog (long names with units) and normalizes the location.
func (r StationRecord) ToObservation() (*models.StationObservation, error) {
	idema := r.Idema()
	if idema == "" {
		return nil, &models.ValidationError{Field: "idema", Message: "observation has no station identifier"}
	}

	fint, _ := r["fint"].(string)
	ts, err := parseObservationTime(fint)
	if err != nil {
		return nil, &models.ValidationError{Field: "fint", Value: idema, Message: err.Error()}
	}

	ubi, _ := r["ubi"].(string)
	obs := &models.StationObservation{
		Idema:    idema,
		Location: models.NormalizeLocation(ubi),
		Time:     ts,
		Fields:   make(map[string]any, len(r)),
	}
	if obs.Location == "" {
		obs.Location = strings.ToLower(idema)
	}
	obs.Latitude, _ = r.number("lat")
	obs.Longitude, _ = r.number("lon")

	for key, value := range r {
		switch key {
		case "idema", "ubi", "fint":
			continue
		}
		if value == nil {
			continue
		}
		obs.Fields[models.RenameObservationField(key, true)] = value
	}
	return obs, nil
}

func parseObservationTime(s string) (time.Time, error) {
	for _, layout := range observationTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized observation time %q", s)
}
