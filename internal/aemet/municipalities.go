package aemet

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"climacan/internal/models"
)

// canaryProvinces are the INE province codes of Las Palmas and Santa Cruz de
// Tenerife.
var canaryProvinces = []string{"35", "38"}

// MunicipalityRecord is one entry of the municipality master list. AEMET
// serves every value as a string.
type MunicipalityRecord struct {
	ID          string `json:"id"`
	Name        string `json:"nombre"`
	Capital     string `json:"capital"`
	Population  string `json:"num_hab"`
	Altitude    string `json:"altitud"`
	LatitudeDec string `json:"latitud_dec"`
	LongDec     string `json:"longitud_dec"`
	Region      string `json:"zona_comarcal"`
}

// DecodeMunicipalities decodes the master list data document.
func DecodeMunicipalities(raw []byte) ([]MunicipalityRecord, error) {
	var records []MunicipalityRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("invalid municipality document: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrEmptyPayload
	}
	return records, nil
}

// Code returns the INE code without the "id" prefix AEMET adds.
func (r MunicipalityRecord) Code() string {
	return strings.TrimPrefix(r.ID, "id")
}

// IsCanary reports whether the municipality belongs to a Canary province.
func (r MunicipalityRecord) IsCanary() bool {
	code := r.Code()
	for _, p := range canaryProvinces {
		if strings.HasPrefix(code, p) && code != r.ID {
			return true
		}
	}
	return false
}

// ToMunicipality converts the record, normalizing names for use as database
// names. Numeric fields that do not parse are left empty.
func (r MunicipalityRecord) ToMunicipality(now time.Time) (*models.Municipality, error) {
	m := &models.Municipality{
		ID:        r.Code(),
		Name:      models.NormalizeMunicipalityName(r.Name),
		Capital:   models.NormalizeMunicipalityName(r.Capital),
		Region:    strings.TrimSpace(r.Region),
		UpdatedAt: now,
	}
	if n, err := strconv.Atoi(strings.TrimSpace(r.Population)); err == nil {
		m.Population = &n
	}
	m.Altitude = parseOptionalFloat(r.Altitude)
	m.Latitude = parseOptionalFloat(r.LatitudeDec)
	m.Longitude = parseOptionalFloat(r.LongDec)

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func parseOptionalFloat(s string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}
