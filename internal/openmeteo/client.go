// Package openmeteo fetches hourly historical weather forecasts from the Open-Meteo API
// and writes them in the raw weather_forecast layout.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"epf-data/internal/model"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://historical-forecast-api.open-meteo.com"
	DefaultModel   = "icon_seamless"
	DefaultTZ      = "GMT"

	forecastPath = "/v1/forecast"
	dateLayout   = "2006-01-02"
)

// Client queries the historical forecast endpoint. Safe for concurrent use.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	logger          *zap.Logger
	cache           *ResponseCache
	maxRetries      uint64
	initialInterval time.Duration
}

type Option func(*Client)

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCache keeps responses for ttl; ttl <= 0 disables caching.
func WithCache(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl <= 0 {
			c.cache = nil
			return
		}
		c.cache = NewResponseCache(ttl)
	}
}

// WithRetry sets the retry count and the first backoff interval.
func WithRetry(maxRetries uint64, initial time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.initialInterval = initial
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.HTTP = h }
}

// NewClient creates a client with a one hour cache and five retries starting at 200ms.
// If baseURL is empty, DefaultBaseURL is used.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		BaseURL:         strings.TrimRight(baseURL, "/"),
		HTTP:            &http.Client{Timeout: 60 * time.Second},
		logger:          zap.NewNop(),
		cache:           NewResponseCache(time.Hour),
		maxRetries:      5,
		initialInterval: 200 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// QueryParams selects one city and a date range (both dates inclusive).
type QueryParams struct {
	City      City
	Start     time.Time
	End       time.Time
	Variables []string
	Model     string
	Timezone  string
}

// Response is the decoded hourly block of one city.
type Response struct {
	Latitude  float64
	Longitude float64
	Times     []time.Time
	// Values holds one slice per requested variable, parallel to Times; nulls are NaN.
	Values map[string][]float64
}

// APIError is a non-success answer from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter string
}

func (e *APIError) Error() string {
	return e.Message
}

func (p *QueryParams) normalize() error {
	if p.City.Name == "" {
		return fmt.Errorf("city name is required")
	}
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("start and end dates are required")
	}
	if p.Start.After(p.End) {
		return fmt.Errorf("start must not be after end")
	}
	if len(p.Variables) == 0 {
		p.Variables = model.WeatherVariables
	}
	if p.Model == "" {
		p.Model = DefaultModel
	}
	if p.Timezone == "" {
		p.Timezone = DefaultTZ
	}
	return nil
}

func (c *Client) requestURL(p QueryParams) (string, error) {
	u, err := url.Parse(c.BaseURL + forecastPath)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	q.Set("latitude", strconv.FormatFloat(p.City.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(p.City.Longitude, 'f', -1, 64))
	q.Set("start_date", p.Start.Format(dateLayout))
	q.Set("end_date", p.End.Format(dateLayout))
	q.Set("hourly", strings.Join(p.Variables, ","))
	q.Set("models", p.Model)
	q.Set("timezone", p.Timezone)
	q.Set("timeformat", "unixtime")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Query fetches one city, retrying transport errors, 429 and 5xx answers with exponential backoff.
func (c *Client) Query(ctx context.Context, p QueryParams) (*Response, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}
	key := GenerateCacheKey(p)
	if cached, ok := c.cache.Get(key); ok {
		c.logger.Debug("open-meteo cache hit", zap.String("city", p.City.Name))
		return cached, nil
	}
	u, err := c.requestURL(p)
	if err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)

	var result *Response
	attempt := 0
	op := func() error {
		attempt++
		r, err := c.do(ctx, u, p)
		if err != nil {
			c.logger.Warn("open-meteo request failed",
				zap.String("city", p.City.Name), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		result = r
		return nil
	}
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	c.logger.Info("open-meteo response",
		zap.String("city", p.City.Name),
		zap.Int("hours", len(result.Times)),
		zap.Int("attempts", attempt),
	)
	c.cache.Set(key, result)
	return result, nil
}

func (c *Client) do(ctx context.Context, u string, p QueryParams) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	c.logger.Debug("open-meteo request",
		zap.String("city", p.City.Name), zap.Int("status", resp.StatusCode), zap.Duration("duration", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := resp.Header.Get("Retry-After")
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Code:       "RATE_LIMIT_EXCEEDED",
			Message:    fmt.Sprintf("rate limit exceeded, retry after: %s", retryAfter),
			RetryAfter: retryAfter,
		}
	case resp.StatusCode >= 500:
		return nil, &APIError{StatusCode: resp.StatusCode, Code: "SERVER_ERROR",
			Message: fmt.Sprintf("API returned status %d", resp.StatusCode)}
	default:
		// Open-Meteo explains bad requests as {"error": true, "reason": "..."}
		var body struct {
			Reason string `json:"reason"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body)
		msg := fmt.Sprintf("API returned status %d", resp.StatusCode)
		if body.Reason != "" {
			msg += ": " + body.Reason
		}
		return nil, backoff.Permanent(&APIError{StatusCode: resp.StatusCode, Code: "BAD_REQUEST", Message: msg})
	}

	r, err := decode(resp.Body, p.Variables)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return r, nil
}

type wireResponse struct {
	Latitude  float64                    `json:"latitude"`
	Longitude float64                    `json:"longitude"`
	Hourly    map[string]json.RawMessage `json:"hourly"`
}

func decode(r io.Reader, variables []string) (*Response, error) {
	var w wireResponse
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return nil, err
	}
	rawTimes, ok := w.Hourly["time"]
	if !ok {
		return nil, fmt.Errorf("response has no hourly time axis")
	}
	var secs []int64
	if err := json.Unmarshal(rawTimes, &secs); err != nil {
		return nil, fmt.Errorf("hourly.time: %w", err)
	}
	out := &Response{
		Latitude:  w.Latitude,
		Longitude: w.Longitude,
		Times:     make([]time.Time, len(secs)),
		Values:    make(map[string][]float64, len(variables)),
	}
	for i, s := range secs {
		out.Times[i] = time.Unix(s, 0).UTC()
	}
	for _, v := range variables {
		raw, ok := w.Hourly[v]
		if !ok {
			return nil, fmt.Errorf("response lacks variable %q", v)
		}
		var vals []*float64
		if err := json.Unmarshal(raw, &vals); err != nil {
			return nil, fmt.Errorf("hourly.%s: %w", v, err)
		}
		if len(vals) != len(secs) {
			return nil, fmt.Errorf("hourly.%s has %d values for %d hours", v, len(vals), len(secs))
		}
		col := make([]float64, len(vals))
		for i, x := range vals {
			if x == nil {
				col[i] = nan
			} else {
				col[i] = *x
			}
		}
		out.Values[v] = col
	}
	return out, nil
}
