// Package fetch implements the rate-limited, retrying HTTP client shared by
// the AEMET and Grafcan integrations.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"

	"climacan/pkg/logging"
	"climacan/pkg/metrics"
)

const maxBodyBytes = 64 << 20

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = errors.New("circuit breaker open")

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// IsTransient reports whether retrying the request may succeed.
func (e *StatusError) IsTransient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config holds resilience settings for one upstream provider.
type Config struct {
	Name             string
	Timeout          time.Duration
	MaxRetries       int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	RequestsPerSec   float64
	Burst            int
	BreakerFailures  int
	BreakerOpenDelay time.Duration
}

// Client performs GET requests with rate limiting, a circuit breaker and
// exponential backoff on transient failures.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	cfg     Config
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewClient creates a client for the provider named in cfg.
func NewClient(cfg Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Client {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	failures := uint32(cfg.BreakerFailures)
	if failures == 0 {
		failures = 5
	}

	c := &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, cfg.Burst),
		cfg:     cfg,
		logger:  logger,
		metrics: metricsCollector,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.BreakerOpenDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "[FETCH_BREAKER] Circuit breaker state changed", logging.Fields{
				"provider": name,
				"from":     from.String(),
				"to":       to.String(),
			})
		},
	})
	return c
}

// Name returns the provider name used in logs and metrics.
func (c *Client) Name() string {
	return c.cfg.Name
}

type response struct {
	status int
	body   []byte
}

// Get fetches url and returns the body transcoded to UTF-8.
func (c *Client) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	var attempt int

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait canceled: %w", err)
		}

		start := time.Now()
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.do(ctx, url, header)
		})

		if err == nil {
			resp := result.(*response)
			if resp.status < 200 || resp.status >= 300 {
				c.metrics.RecordFetch(c.cfg.Name, "status_error", time.Since(start))
				return nil, &StatusError{URL: url, StatusCode: resp.status, Body: truncate(resp.body, 512)}
			}
			c.metrics.RecordFetch(c.cfg.Name, "success", time.Since(start))
			return resp.body, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.metrics.RecordFetch(c.cfg.Name, "circuit_open", time.Since(start))
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		c.metrics.RecordFetch(c.cfg.Name, "error", time.Since(start))

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt >= c.cfg.MaxRetries {
			return nil, err
		}

		delay := c.backoff(attempt)
		c.metrics.FetchRetriesTotal.WithLabelValues(c.cfg.Name).Inc()
		c.logger.Warn(ctx, "[FETCH_RETRY] Transient upstream failure, retrying", logging.Fields{
			"provider": c.cfg.Name,
			"url":      url,
			"attempt":  attempt + 1,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		attempt++
	}
}

// GetJSON fetches url and decodes the body into dst.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, dst interface{}) error {
	body, err := c.Get(ctx, url, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", c.cfg.Name, err)
	}
	return nil
}

// do runs a single request. Only transient outcomes are reported as errors so
// that client errors such as 404 do not trip the breaker.
func (c *Client) do(ctx context.Context, url string, header http.Header) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Body: truncate(raw, 512)}
	}

	body, err := toUTF8(resp.Header.Get("Content-Type"), raw)
	if err != nil {
		return nil, err
	}
	return &response{status: resp.StatusCode, body: body}, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := c.cfg.InitialBackoff * time.Duration(math.Pow(2, float64(attempt)))
	if c.cfg.MaxBackoff > 0 && delay > c.cfg.MaxBackoff {
		delay = c.cfg.MaxBackoff
	}
	return delay
}

// toUTF8 transcodes body according to the charset parameter of contentType.
// AEMET serves its data documents as ISO-8859-15.
func toUTF8(contentType string, body []byte) ([]byte, error) {
	if contentType == "" {
		return body, nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body, nil
	}
	label := params["charset"]
	if label == "" {
		return body, nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return body, nil
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return body, nil
	}

	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return nil, fmt.Errorf("failed to transcode %s body: %w", label, err)
	}
	return out, nil
}

func truncate(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
