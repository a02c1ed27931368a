package aemet

import (
	"encoding/json"
	"fmt"
	"sort"

	"climacan/internal/forecast"
)

// Prediction is a decoded hourly municipality forecast.
type Prediction struct {
	URL          string
	Municipality string
	Name         string
	Province     string
	Elaborated   string
	Days         []forecast.DayBlock
}

// measurementAliases translates AEMET day-block keys into the measurement
// keys used by the builder and the store. Keys not listed pass through.
var measurementAliases = map[string]string{
	"estadoCielo":       "skyState",
	"precipitacion":     "precipitation",
	"probPrecipitacion": "precipitationProbability",
	"probTormenta":      "stormProbability",
	"nieve":             "snow",
	"probNieve":         "snowProbability",
	"temperatura":       "temperature",
	"sensTermica":       "feelsLike",
	"humedadRelativa":   "relativeHumidity",
	"vientoAndRachaMax": forecast.DefaultWindKey,
	"orto":              "sunrise",
	"ocaso":             "sunset",
}

// readingAliases translates the fields of a reading record.
var readingAliases = map[string]string{
	"periodo":     forecast.PeriodField,
	"direccion":   forecast.FieldDirection,
	"velocidad":   forecast.FieldSpeed,
	"descripcion": "description",
}

// compassAliases maps the Spanish compass codes that differ from the English
// ones. Codes not listed (N, NE, E, SE, S) are shared.
var compassAliases = map[string]string{
	"SO": "SW",
	"O":  "W",
	"NO": "NW",
	"C":  "calma",
}

const dateKey = "fecha"

// ValidateCatalog checks the alias tables against the builder vocabulary:
// aliases must be unique, the wind and period keys must match what the
// builder expects, and every translated compass code must resolve to a
// bearing.
func ValidateCatalog() error {
	if err := checkUnique("measurement", measurementAliases); err != nil {
		return err
	}
	if err := checkUnique("reading", readingAliases); err != nil {
		return err
	}
	if measurementAliases["vientoAndRachaMax"] != forecast.DefaultWindKey {
		return fmt.Errorf("wind alias %q does not match builder key %q", measurementAliases["vientoAndRachaMax"], forecast.DefaultWindKey)
	}
	if readingAliases["periodo"] != forecast.PeriodField {
		return fmt.Errorf("period alias %q does not match builder field %q", readingAliases["periodo"], forecast.PeriodField)
	}
	for _, code := range []string{"N", "NE", "E", "SE", "S", "SO", "O", "NO", "C"} {
		if forecast.DirectionDegrees(forecast.Scalar(translateCompass(code))).Missing() {
			return fmt.Errorf("compass code %q has no bearing", code)
		}
	}
	return nil
}

func checkUnique(kind string, aliases map[string]string) error {
	seen := make(map[string]string, len(aliases))
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := aliases[k]
		if v == "" {
			return fmt.Errorf("%s alias for %q is empty", kind, k)
		}
		if prev, ok := seen[v]; ok {
			return fmt.Errorf("%s aliases %q and %q both map to %q", kind, prev, k, v)
		}
		seen[v] = k
	}
	return nil
}

type predictionDocument struct {
	Elaborado  string `json:"elaborado"`
	Nombre     string `json:"nombre"`
	Provincia  string `json:"provincia"`
	ID         any    `json:"id"`
	Prediccion struct {
		Dia []map[string]any `json:"dia"`
	} `json:"prediccion"`
}

// DecodePrediction decodes an hourly forecast data document into day blocks
// with translated keys.
func DecodePrediction(raw []byte) (*Prediction, error) {
	var docs []predictionDocument
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("invalid prediction document: %w", err)
	}
	if len(docs) == 0 || len(docs[0].Prediccion.Dia) == 0 {
		return nil, ErrEmptyPayload
	}

	doc := docs[0]
	p := &Prediction{
		Name:       doc.Nombre,
		Province:   doc.Provincia,
		Elaborated: doc.Elaborado,
	}
	if doc.ID != nil {
		p.Municipality = fmt.Sprint(doc.ID)
	}

	for i, day := range doc.Prediccion.Dia {
		date, ok := day[dateKey].(string)
		if !ok {
			return nil, fmt.Errorf("day %d has no %s", i, dateKey)
		}
		block := forecast.DayBlock{Date: date, Entries: make(map[string]any, len(day))}
		for key, value := range day {
			if key == dateKey {
				continue
			}
			block.Entries[translate(measurementAliases, key)] = translateReadings(value)
		}
		p.Days = append(p.Days, block)
	}
	return p, nil
}

func translate(aliases map[string]string, key string) string {
	if alias, ok := aliases[key]; ok {
		return alias
	}
	return key
}

func translateReadings(value any) any {
	list, ok := value.([]any)
	if !ok {
		return value
	}
	out := make([]any, len(list))
	for i, item := range list {
		record, ok := item.(map[string]any)
		if !ok {
			out[i] = item
			continue
		}
		translated := make(map[string]any, len(record))
		for k, v := range record {
			name := translate(readingAliases, k)
			if name == forecast.FieldDirection {
				v = translateDirection(v)
			}
			translated[name] = v
		}
		out[i] = translated
	}
	return out
}

func translateDirection(v any) any {
	switch d := v.(type) {
	case string:
		return translateCompass(d)
	case []any:
		out := make([]any, len(d))
		for i, item := range d {
			if s, ok := item.(string); ok {
				out[i] = translateCompass(s)
				continue
			}
			out[i] = item
		}
		return out
	default:
		return v
	}
}

func translateCompass(code string) string {
	if alias, ok := compassAliases[code]; ok {
		return alias
	}
	return code
}
