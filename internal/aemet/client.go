// Package aemet talks to the AEMET OpenData API and decodes its payloads into
// forecast day blocks, station observations and the municipality catalog.
package aemet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"climacan/internal/fetch"
)

// DefaultBaseURL is the public AEMET OpenData root.
const DefaultBaseURL = "https://opendata.aemet.es/opendata"

const (
	hourlyPredictionPath       = "/api/prediccion/especifica/municipio/horaria/%s"
	conventionalObservationAll = "/api/observacion/convencional/todas"
	conventionalObservationOne = "/api/observacion/convencional/datos/estacion/%s"
	municipalityMasterPath     = "/api/maestro/municipios"
)

// ErrEmptyPayload is returned when a data document holds no records.
var ErrEmptyPayload = errors.New("aemet returned an empty payload")

// APIStatusError reports an envelope whose estado is not 200.
type APIStatusError struct {
	URL         string
	Estado      int
	Descripcion string
}

func (e *APIStatusError) Error() string {
	return fmt.Sprintf("aemet request %s failed with estado %d: %s", e.URL, e.Estado, e.Descripcion)
}

// IsTransient reports whether the request may succeed later. AEMET answers
// 429 when the per-key quota is exhausted.
func (e *APIStatusError) IsTransient() bool {
	return e.Estado == http.StatusTooManyRequests || e.Estado >= 500
}

// envelope is the first-step response: a status plus links to the actual
// data and metadata documents.
type envelope struct {
	Descripcion string `json:"descripcion"`
	Estado      int    `json:"estado"`
	Datos       string `json:"datos"`
	Metadatos   string `json:"metadatos"`
}

// Response holds the raw data and metadata documents of one request.
type Response struct {
	URL      string
	Data     json.RawMessage
	Metadata json.RawMessage
}

// Client performs the two-step AEMET requests.
type Client struct {
	http    *fetch.Client
	baseURL string
	apiKey  string
}

// NewClient creates a client. An empty baseURL selects DefaultBaseURL.
func NewClient(httpClient *fetch.Client, baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// HourlyPredictionURL returns the hourly forecast endpoint for a municipality
// code (province + municipality, e.g. "35006").
func (c *Client) HourlyPredictionURL(municipality string) string {
	return c.baseURL + fmt.Sprintf(hourlyPredictionPath, municipality)
}

// ConventionalObservationsURL returns the endpoint with the last observations
// of every station.
func (c *Client) ConventionalObservationsURL() string {
	return c.baseURL + conventionalObservationAll
}

// StationObservationsURL returns the endpoint for a single station.
func (c *Client) StationObservationsURL(idema string) string {
	return c.baseURL + fmt.Sprintf(conventionalObservationOne, idema)
}

// MunicipalitiesURL returns the municipality master list endpoint.
func (c *Client) MunicipalitiesURL() string {
	return c.baseURL + municipalityMasterPath
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("Authorization", "Bearer "+c.apiKey)
	return h
}

// Fetch requests url, checks the envelope status and downloads the data and
// metadata documents it links to.
func (c *Client) Fetch(ctx context.Context, url string) (*Response, error) {
	var env envelope
	if err := c.http.GetJSON(ctx, url, c.header(), &env); err != nil {
		return nil, fmt.Errorf("aemet request %s: %w", url, err)
	}
	if env.Estado != http.StatusOK {
		return nil, &APIStatusError{URL: url, Estado: env.Estado, Descripcion: env.Descripcion}
	}
	if env.Datos == "" {
		return nil, fmt.Errorf("aemet request %s: envelope has no datos link", url)
	}

	data, err := c.http.Get(ctx, env.Datos, c.header())
	if err != nil {
		return nil, fmt.Errorf("aemet data document for %s: %w", url, err)
	}

	resp := &Response{URL: url, Data: data}
	if env.Metadatos != "" {
		meta, err := c.http.Get(ctx, env.Metadatos, c.header())
		if err != nil {
			return nil, fmt.Errorf("aemet metadata document for %s: %w", url, err)
		}
		resp.Metadata = meta
	}
	return resp, nil
}

// HourlyPrediction fetches and decodes the hourly forecast of a municipality.
func (c *Client) HourlyPrediction(ctx context.Context, municipality string) (*Prediction, error) {
	resp, err := c.Fetch(ctx, c.HourlyPredictionURL(municipality))
	if err != nil {
		return nil, err
	}
	p, err := DecodePrediction(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("decode prediction for %s: %w", municipality, err)
	}
	p.URL = resp.URL
	return p, nil
}

// ConventionalObservations fetches the last observations of every station.
func (c *Client) ConventionalObservations(ctx context.Context) ([]StationRecord, error) {
	resp, err := c.Fetch(ctx, c.ConventionalObservationsURL())
	if err != nil {
		return nil, err
	}
	return DecodeObservations(resp.Data)
}

// Municipalities fetches the municipality master list.
func (c *Client) Municipalities(ctx context.Context) ([]MunicipalityRecord, error) {
	resp, err := c.Fetch(ctx, c.MunicipalitiesURL())
	if err != nil {
		return nil, err
	}
	return DecodeMunicipalities(resp.Data)
}
