// Package grafcan reads station metadata and the latest observations from
// the Grafcan sensor network API.
package grafcan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"climacan/internal/fetch"
	"climacan/internal/models"
)

// DefaultBaseURL is the public Grafcan sensor API root.
const DefaultBaseURL = "https://sensores.grafcan.es/api/v1.0"

// ErrNoData is returned when a station reports no observations.
var ErrNoData = errors.New("grafcan station returned no observations")

// maxPages bounds the historical locations walk.
const maxPages = 100

// Client is a Grafcan API client.
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

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("Authorization", "Api-Key "+c.apiKey)
	return h
}

type observation struct {
	Name              string `json:"name"`
	Value             any    `json:"value"`
	UnitOfMeasurement string `json:"unitOfMeasurement"`
	ResultTime        string `json:"resultTime"`
}

type observationsResponse struct {
	Observations []observation `json:"observations"`
}

// LastObservations returns the latest observation of every property of a
// station, one point per result time. Field names are the cleaned
// "name_unit" of each property. Points carry no database or series; the
// caller assigns them.
func (c *Client) LastObservations(ctx context.Context, thingID int64) ([]models.SeriesPoint, error) {
	u := c.baseURL + "/observations_last/?thing=" + url.QueryEscape(strconv.FormatInt(thingID, 10))

	var resp observationsResponse
	if err := c.http.GetJSON(ctx, u, c.header(), &resp); err != nil {
		return nil, fmt.Errorf("grafcan last observations for thing %d: %w", thingID, err)
	}
	if len(resp.Observations) == 0 {
		return nil, fmt.Errorf("thing %d: %w", thingID, ErrNoData)
	}

	byTime := make(map[time.Time]*models.SeriesPoint)
	var order []time.Time
	for _, o := range resp.Observations {
		ts, err := time.Parse(time.RFC3339, o.ResultTime)
		if err != nil {
			return nil, fmt.Errorf("thing %d: invalid resultTime %q: %w", thingID, o.ResultTime, err)
		}
		ts = ts.UTC()
		p, ok := byTime[ts]
		if !ok {
			p = &models.SeriesPoint{Time: ts, Fields: make(map[string]any)}
			byTime[ts] = p
			order = append(order, ts)
		}
		p.Fields[models.CleanFieldName(o.Name, o.UnitOfMeasurement)] = o.Value
	}

	points := make([]models.SeriesPoint, 0, len(order))
	for _, ts := range order {
		points = append(points, *byTime[ts])
	}
	return points, nil
}

type historicalLocation struct {
	Thing    string   `json:"thing"`
	Location []string `json:"location"`
	Time     string   `json:"time"`
}

type historicalLocationsPage struct {
	Next    *string              `json:"next"`
	Results []historicalLocation `json:"results"`
}

type thingDocument struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Properties  struct {
		MainPurpose      string `json:"main_purpose"`
		SerialNumber     any    `json:"serial_number"`
		AnemometerHeight any    `json:"anemometer_height"`
	} `json:"properties"`
}

type locationDocument struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"location"`
}

// HistoricalStations walks the historical locations and resolves the thing
// and location documents of each entry into a Station.
func (c *Client) HistoricalStations(ctx context.Context) ([]models.Station, error) {
	var entries []historicalLocation
	next := c.baseURL + "/historicallocations/"
	for page := 0; next != "" && page < maxPages; page++ {
		var resp historicalLocationsPage
		if err := c.http.GetJSON(ctx, next, c.header(), &resp); err != nil {
			return nil, fmt.Errorf("grafcan historical locations: %w", err)
		}
		entries = append(entries, resp.Results...)
		next = ""
		if resp.Next != nil {
			next = *resp.Next
		}
	}

	now := time.Now().UTC()
	stations := make([]models.Station, 0, len(entries))
	for _, e := range entries {
		if len(e.Location) != 1 {
			return nil, &models.ValidationError{
				Field:   "location",
				Value:   e.Thing,
				Message: fmt.Sprintf("historical location must reference exactly one location, got %d", len(e.Location)),
			}
		}
		s, err := c.resolveStation(ctx, e)
		if err != nil {
			return nil, err
		}
		s.UpdatedAt = now
		stations = append(stations, *s)
	}
	return stations, nil
}

func (c *Client) resolveStation(ctx context.Context, e historicalLocation) (*models.Station, error) {
	var thing thingDocument
	if err := c.http.GetJSON(ctx, e.Thing, c.header(), &thing); err != nil {
		return nil, fmt.Errorf("grafcan thing %s: %w", e.Thing, err)
	}
	var loc locationDocument
	if err := c.http.GetJSON(ctx, e.Location[0], c.header(), &loc); err != nil {
		return nil, fmt.Errorf("grafcan location %s: %w", e.Location[0], err)
	}
	if len(loc.Location.Coordinates) < 2 {
		return nil, &models.ValidationError{Field: "coordinates", Value: e.Location[0], Message: "location has no coordinates"}
	}

	s := &models.Station{
		ThingID:             thing.ID,
		Name:                thing.Name,
		Description:         thing.Description,
		MainPurpose:         thing.Properties.MainPurpose,
		SerialNumber:        stringify(thing.Properties.SerialNumber),
		AnemometerHeight:    optionalFloat(thing.Properties.AnemometerHeight),
		LocationID:          loc.ID,
		LocationName:        loc.Name,
		LocationDescription: loc.Description,
		Longitude:           loc.Location.Coordinates[0],
		Latitude:            loc.Location.Coordinates[1],
	}
	if e.Time != "" {
		if ts, err := time.Parse(time.RFC3339, e.Time); err == nil {
			s.StartUp = ts.UTC()
		}
	}
	return s, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func optionalFloat(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}
