package openmeteo

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"epf-data/internal/loader"
	"epf-data/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	day    = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	berlin = City{Name: "Berlin", Latitude: 52.52, Longitude: 13.405}
	vars   = []string{"temperature_2m", "wind_speed_10m"}
)

func forecastBody(lat float64) string {
	t := day.Unix()
	return fmt.Sprintf(`{"latitude":%v,"longitude":13.419998,"hourly":{"time":[%d,%d],`+
		`"temperature_2m":[1.5,null],"wind_speed_10m":[10.2,11]}}`, lat, t+3600, t)
}

func newTestClient(srv *httptest.Server, opts ...Option) *Client {
	opts = append([]Option{WithHTTPClient(srv.Client()), WithRetry(3, time.Millisecond)}, opts...)
	return NewClient(srv.URL, opts...)
}

func TestQueryBuildsRequestAndDecodes(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = w.Write([]byte(forecastBody(52.52)))
	}))
	defer srv.Close()

	r, err := newTestClient(srv).Query(context.Background(), QueryParams{City: berlin, Start: day, End: day, Variables: vars})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "/v1/forecast", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "52.52", q.Get("latitude"))
	assert.Equal(t, "2023-01-01", q.Get("start_date"))
	assert.Equal(t, "temperature_2m,wind_speed_10m", q.Get("hourly"))
	assert.Equal(t, "icon_seamless", q.Get("models"))
	assert.Equal(t, "GMT", q.Get("timezone"))

	require.Len(t, r.Times, 2)
	assert.Equal(t, day.Add(time.Hour), r.Times[0])
	assert.Equal(t, 1.5, r.Values["temperature_2m"][0])
	assert.True(t, math.IsNaN(r.Values["temperature_2m"][1]))
}

func TestQueryRetriesServerErrorsThenCaches(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(forecastBody(52.52)))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	p := QueryParams{City: berlin, Start: day, End: day, Variables: vars}
	_, err := c.Query(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	_, err = c.Query(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "second query should be served from cache")
	assert.Equal(t, 1, c.cache.Len())
}

func TestQueryDoesNotRetryBadRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":true,"reason":"Cannot initialize WeatherVariable from invalid String value foo"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Query(context.Background(), QueryParams{City: berlin, Start: day, End: day, Variables: []string{"foo"}})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "invalid String value")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestQueryGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, WithCache(0)).Query(context.Background(), QueryParams{City: berlin, Start: day, End: day})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", apiErr.Code)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestQueryValidatesParams(t *testing.T) {
	c := NewClient("")
	_, err := c.Query(context.Background(), QueryParams{Start: day, End: day})
	assert.Error(t, err)
	_, err = c.Query(context.Background(), QueryParams{City: berlin, Start: day.Add(24 * time.Hour), End: day})
	assert.Error(t, err)
}

func TestWriteCSVIsReadableByLoader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lat := 52.52
		if r.URL.Query().Get("latitude") != "52.52" {
			lat = 53.55
		}
		_, _ = w.Write([]byte(forecastBody(lat)))
	}))
	defer srv.Close()

	hamburg := City{Name: "Hamburg", Latitude: 53.5511, Longitude: 9.9937}
	forecasts, err := newTestClient(srv).FetchAll(context.Background(), []City{hamburg, berlin}, day, day, vars)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, forecasts, vars))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "datetime_utc,latitude,longitude,temperature_2m,wind_speed_10m,city", lines[0])
	assert.Equal(t, "2023-01-01 00:00:00+00:00,52.52,13.42,,11,Berlin", lines[1])
	assert.True(t, strings.HasSuffix(lines[4], ",Hamburg"))

	path, err := WriteRawFile(t.TempDir(), forecasts, vars)
	require.NoError(t, err)
	schema, err := model.DefaultSchema(model.CategoryWeatherForecast)
	require.NoError(t, err)
	schema.Values = schema.Values[:0]
	for _, v := range vars {
		schema.Values = append(schema.Values, model.ValueColumn{Source: v, Name: v})
	}
	s, err := loader.New().LoadFile(context.Background(), model.CategoryWeatherForecast, path, schema)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"temperature_2m_berlin", "wind_speed_10m_berlin", "temperature_2m_hamburg", "wind_speed_10m_hamburg"}, s.Columns)
}

func TestCacheExpires(t *testing.T) {
	c := NewResponseCache(time.Minute)
	now := day
	c.now = func() time.Time { return now }
	c.Set("k", &Response{})
	_, ok := c.Get("k")
	assert.True(t, ok)
	now = now.Add(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestGenerateCacheKeyDependsOnParams(t *testing.T) {
	a := QueryParams{City: berlin, Start: day, End: day, Variables: vars}
	b := a
	b.End = day.Add(24 * time.Hour)
	assert.Equal(t, GenerateCacheKey(a), GenerateCacheKey(a))
	assert.NotEqual(t, GenerateCacheKey(a), GenerateCacheKey(b))
	assert.Len(t, GenerateCacheKey(a), 64)
}
