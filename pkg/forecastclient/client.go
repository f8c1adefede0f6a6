// Package forecastclient is the Forecast Client (C3): a stateless HTTP
// client that fetches an hourly Kelvin temperature timeseries for a
// (latitude, longitude, start_utc, hours) window, with bounded retry and
// a per-call timeout, per spec.md §4.3/§6.
package forecastclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/wxdesk/zeus-dynamic/internal/domain"
	"github.com/wxdesk/zeus-dynamic/internal/httpx"
)

// ErrInvalidResponse is returned when the response body cannot be parsed
// into either tolerated shape (§6, §7 INVALID_RESPONSE).
var ErrInvalidResponse = errors.New("forecastclient: invalid response shape")

// ErrEmptyForecast is returned when the parsed response has no points
// (§7 EMPTY_FORECAST).
var ErrEmptyForecast = errors.New("forecastclient: empty forecast")

const (
	// DefaultBaseURL is the live forecast source's base URL.
	DefaultBaseURL  = "https://api.zeus-weather.example/v1/forecast"
	defaultVariable = "2m_temperature"
)

// Client fetches hourly forecasts with retry/backoff and jitter on
// transient failures, and no retry on 4xx, matching the common client
// contract in §4.3.
type Client struct {
	baseURL     string
	bearerToken string
	retrier     *httpx.Retrier
	now         func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the default forecast source URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client (e.g. for timeouts in tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.retrier.HTTPClient = hc }
}

// WithRateLimiter overrides the default outbound request rate limit.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.retrier.Limiter = l }
}

// WithMaxRetries overrides the default retry budget (max_retries, §7).
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.retrier.MaxRetries = n }
}

// New creates a Client authorized with the given bearer token.
func New(bearerToken string, opts ...Option) *Client {
	retrier := httpx.NewRetrier(
		&http.Client{Timeout: 10 * time.Second},
		rate.NewLimiter(rate.Limit(5), 10),
		4,
	)
	c := &Client{
		baseURL:     DefaultBaseURL,
		bearerToken: bearerToken,
		retrier:     retrier,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// pointShape is the tolerant wire representation of one hourly reading.
// §6 requires tolerance for either [{time, temp_K}, ...] or
// {times: [...], values: [...]} shapes.
type pointShape struct {
	Time  string  `json:"time"`
	TempK float64 `json:"temp_K"`
}

type columnarShape struct {
	Times  []string  `json:"times"`
	Values []float64 `json:"values"`
}

// Fetch retrieves the hourly forecast for a station-local event-day
// window. start must equal local midnight of the event day, converted to
// UTC (§3); hours is normally 24.
func (c *Client) Fetch(ctx context.Context, stationCode string, lat, lon float64, start time.Time, hours int) (domain.Forecast, error) {
	url := fmt.Sprintf("%s?latitude=%s&longitude=%s&variable=%s&start_time=%s&predict_hours=%d",
		c.baseURL,
		strconv.FormatFloat(lat, 'f', 6, 64),
		strconv.FormatFloat(lon, 'f', 6, 64),
		defaultVariable,
		start.UTC().Format(time.RFC3339),
		hours,
	)

	body, err := c.retrier.Get(ctx, url, map[string]string{
		"Authorization": "Bearer " + c.bearerToken,
	})
	if err != nil {
		return domain.Forecast{}, err
	}

	points, err := parsePoints(body)
	if err != nil {
		return domain.Forecast{}, err
	}
	if len(points) == 0 {
		return domain.Forecast{}, ErrEmptyForecast
	}

	return domain.Forecast{
		StationCode:  stationCode,
		StartUTC:     start.UTC(),
		Hours:        hours,
		FetchedAtUTC: c.now().UTC(),
		Points:       points,
	}, nil
}

func parsePoints(body []byte) ([]domain.TemperaturePoint, error) {
	var arr []pointShape
	if err := json.Unmarshal(body, &arr); err == nil {
		out := make([]domain.TemperaturePoint, 0, len(arr))
		for _, p := range arr {
			t, err := time.Parse(time.RFC3339, p.Time)
			if err != nil {
				return nil, fmt.Errorf("%w: bad time %q: %v", ErrInvalidResponse, p.Time, err)
			}
			out = append(out, domain.TemperaturePoint{TimeUTC: t.UTC(), TempKelvin: p.TempK})
		}
		return out, nil
	}

	var col columnarShape
	if err := json.Unmarshal(body, &col); err == nil && len(col.Times) > 0 {
		if len(col.Times) != len(col.Values) {
			return nil, fmt.Errorf("%w: times/values length mismatch", ErrInvalidResponse)
		}
		out := make([]domain.TemperaturePoint, 0, len(col.Times))
		for i, ts := range col.Times {
			t, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				return nil, fmt.Errorf("%w: bad time %q: %v", ErrInvalidResponse, ts, err)
			}
			out = append(out, domain.TemperaturePoint{TimeUTC: t.UTC(), TempKelvin: col.Values[i]})
		}
		return out, nil
	}

	return nil, ErrInvalidResponse
}
