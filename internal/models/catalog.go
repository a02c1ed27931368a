package models

import (
	"time"
)

// Municipality is a Canary Islands municipality from the AEMET master list.
// ID is the five digit INE code (province + municipality) used by the
// forecast endpoint.
type Municipality struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Capital    string    `json:"capital" db:"capital"`
	Population *int      `json:"population,omitempty" db:"population"`
	Altitude   *float64  `json:"altitude,omitempty" db:"altitude"`
	Latitude   *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude  *float64  `json:"longitude,omitempty" db:"longitude"`
	Region     string    `json:"region,omitempty" db:"region"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Province returns the two digit province code: 35 Las Palmas, 38 Santa Cruz de Tenerife.
func (m *Municipality) Province() string {
	if len(m.ID) < 2 {
		return ""
	}
	return m.ID[:2]
}

// Validate checks the municipality can be stored and queried.
func (m *Municipality) Validate() error {
	if len(m.ID) != 5 {
		return &ValidationError{Field: "id", Value: m.ID, Message: "municipality id must have 5 digits"}
	}
	for _, r := range m.ID {
		if r < '0' || r > '9' {
			return &ValidationError{Field: "id", Value: m.ID, Message: "municipality id must be numeric"}
		}
	}
	if m.Name == "" {
		return &ValidationError{Field: "name", Value: m.ID, Message: "municipality name is empty"}
	}
	return nil
}

// Station is a Grafcan sensor station (a "thing") with its current location.
type Station struct {
	ThingID             int64     `json:"thing_id" db:"thing_id"`
	Name                string    `json:"name" db:"name"`
	Description         string    `json:"description" db:"description"`
	MainPurpose         string    `json:"main_purpose,omitempty" db:"main_purpose"`
	SerialNumber        string    `json:"serial_number,omitempty" db:"serial_number"`
	AnemometerHeight    *float64  `json:"anemometer_height,omitempty" db:"anemometer_height"`
	LocationID          int64     `json:"location_id" db:"location_id"`
	LocationName        string    `json:"location_name" db:"location_name"`
	LocationDescription string    `json:"location_description" db:"location_description"`
	Longitude           float64   `json:"longitude" db:"longitude"`
	Latitude            float64   `json:"latitude" db:"latitude"`
	StartUp             time.Time `json:"start_up" db:"start_up"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// Tags returns the station metadata attached to every observation point.
func (s *Station) Tags() map[string]string {
	return map[string]string{
		"thing_id":      formatInt(s.ThingID),
		"thing_name":    s.Name,
		"location_id":   formatInt(s.LocationID),
		"location_name": s.LocationName,
	}
}

// StationObservation is one AEMET conventional observation record with its
// fields already renamed through the field catalog.
type StationObservation struct {
	Idema     string
	Location  string
	Latitude  float64
	Longitude float64
	Time      time.Time
	Fields    map[string]any
}
