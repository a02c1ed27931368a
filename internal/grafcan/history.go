package grafcan

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultPageSize is the observation page size of a backfill request.
const DefaultPageSize = 1000

// queryTimeLayout is the result_time filter format the API accepts.
const queryTimeLayout = "2006-01-02T15:04:05Z"

// Datastream is one variable measured by a station.
type Datastream struct {
	ID          int64
	Name        string
	Description string
	Unit        string
}

// Observation is one historical reading of a datastream.
type Observation struct {
	Time  time.Time
	Value any
}

// Window is an inclusive observation query range.
type Window struct {
	From time.Time
	To   time.Time
}

// Month labels the window as YYYY-MM.
func (w Window) Month() string {
	return w.From.Format("2006-01")
}

type datastreamDocument struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	UnitOfMeasurement any    `json:"unitOfMeasurement"`
}

type datastreamsPage struct {
	Next    *string              `json:"next"`
	Results []datastreamDocument `json:"results"`
}

type historicalObservation struct {
	ResultTime string `json:"resultTime"`
	Result     any    `json:"result"`
}

type observationsPage struct {
	Next    *string                 `json:"next"`
	Results []historicalObservation `json:"results"`
}

// Datastreams lists every variable of a station.
func (c *Client) Datastreams(ctx context.Context, thingID int64) ([]Datastream, error) {
	q := url.Values{}
	q.Set("thing", strconv.FormatInt(thingID, 10))
	q.Set("page_size", "100")
	next := c.baseURL + "/datastreams/?" + q.Encode()

	var out []Datastream
	for page := 0; next != "" && page < maxPages; page++ {
		var resp datastreamsPage
		if err := c.http.GetJSON(ctx, next, c.header(), &resp); err != nil {
			return nil, fmt.Errorf("grafcan datastreams for thing %d: %w", thingID, err)
		}
		for _, d := range resp.Results {
			out = append(out, Datastream{
				ID:          d.ID,
				Name:        d.Name,
				Description: d.Description,
				Unit:        unitSymbol(d.UnitOfMeasurement),
			})
		}
		next = ""
		if resp.Next != nil {
			next = *resp.Next
		}
	}
	return out, nil
}

// Observations returns the readings of a datastream inside w, oldest first,
// following every result page.
func (c *Client) Observations(ctx context.Context, datastreamID int64, w Window, pageSize int) ([]Observation, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	q := url.Values{}
	q.Set("datastream", strconv.FormatInt(datastreamID, 10))
	q.Set("result_time_after", w.From.UTC().Format(queryTimeLayout))
	q.Set("result_time_before", w.To.UTC().Format(queryTimeLayout))
	q.Set("ordering", "result_time")
	q.Set("page_size", strconv.Itoa(pageSize))
	next := c.baseURL + "/observations/?" + q.Encode()

	var out []Observation
	for next != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var resp observationsPage
		if err := c.http.GetJSON(ctx, next, c.header(), &resp); err != nil {
			return nil, fmt.Errorf("grafcan observations for datastream %d in %s: %w", datastreamID, w.Month(), err)
		}
		for _, o := range resp.Results {
			ts, err := time.Parse(time.RFC3339, o.ResultTime)
			if err != nil {
				return nil, fmt.Errorf("datastream %d: invalid resultTime %q: %w", datastreamID, o.ResultTime, err)
			}
			out = append(out, Observation{Time: ts.UTC(), Value: o.Result})
		}
		next = ""
		if resp.Next != nil {
			next = *resp.Next
		}
	}
	return out, nil
}

// MonthWindows splits the days from..to, both inclusive, into calendar month
// windows. The first and last windows are clipped to from and to.
func MonthWindows(from, to time.Time) []Window {
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, time.UTC)
	if end.Before(start) {
		return nil
	}

	var out []Window
	for month := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC); !month.After(end); month = month.AddDate(0, 1, 0) {
		w := Window{From: month, To: month.AddDate(0, 1, 0).Add(-time.Second)}
		if w.From.Before(start) {
			w.From = start
		}
		if w.To.After(end) {
			w.To = end
		}
		out = append(out, w)
	}
	return out
}

// FindDatastream picks a datastream by numeric id or case-insensitive name.
func FindDatastream(streams []Datastream, variable string) (Datastream, bool) {
	if id, err := strconv.ParseInt(variable, 10, 64); err == nil {
		for _, d := range streams {
			if d.ID == id {
				return d, true
			}
		}
		return Datastream{}, false
	}
	for _, d := range streams {
		if strings.EqualFold(d.Name, variable) {
			return d, true
		}
	}
	return Datastream{}, false
}

func unitSymbol(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		for _, key := range []string{"symbol", "name"} {
			if s, ok := t[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
