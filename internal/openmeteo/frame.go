package openmeteo

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"epf-data/internal/model"
)

var nan = math.NaN()

// RawFileName is the weather_forecast file the loader reads.
const RawFileName = "weather_forecast_10p_germany.csv"

// CityForecast is one city's hourly forecast.
type CityForecast struct {
	City     City
	Response *Response
}

// FetchAll queries every city in turn and stops at the first error.
func (c *Client) FetchAll(ctx context.Context, cities []City, start, end time.Time, variables []string) ([]CityForecast, error) {
	out := make([]CityForecast, 0, len(cities))
	for _, city := range cities {
		r, err := c.Query(ctx, QueryParams{City: city, Start: start, End: end, Variables: variables})
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", city.Name, err)
		}
		out = append(out, CityForecast{City: city, Response: r})
	}
	return out, nil
}

// WriteCSV writes datetime_utc, latitude, longitude, the variables and city,
// sorted by city and then time. Coordinates are the API's grid point rounded to two decimals.
func WriteCSV(w io.Writer, forecasts []CityForecast, variables []string) error {
	if len(variables) == 0 {
		variables = model.WeatherVariables
	}
	sorted := append([]CityForecast(nil), forecasts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].City.Name < sorted[j].City.Name })

	cw := csv.NewWriter(w)
	header := append([]string{"datetime_utc", "latitude", "longitude"}, variables...)
	header = append(header, "city")
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for _, f := range sorted {
		r := f.Response
		order := make([]int, len(r.Times))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return r.Times[order[a]].Before(r.Times[order[b]]) })

		lat := strconv.FormatFloat(round2(r.Latitude), 'f', -1, 64)
		lon := strconv.FormatFloat(round2(r.Longitude), 'f', -1, 64)
		for _, i := range order {
			row[0] = r.Times[i].UTC().Format("2006-01-02 15:04:05-07:00")
			row[1], row[2] = lat, lon
			for j, v := range variables {
				col, ok := r.Values[v]
				if !ok || math.IsNaN(col[i]) {
					row[3+j] = ""
					continue
				}
				row[3+j] = strconv.FormatFloat(col[i], 'g', -1, 64)
			}
			row[len(row)-1] = f.City.Name
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRawFile writes the forecasts to <rawRoot>/weather_forecast/RawFileName and returns the path.
func WriteRawFile(rawRoot string, forecasts []CityForecast, variables []string) (string, error) {
	dir := filepath.Join(rawRoot, "weather_forecast")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	path := filepath.Join(dir, RawFileName)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteCSV(f, forecasts, variables); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
