// Package sample writes deterministic synthetic raw files in the layouts the loader reads.
package sample

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"epf-data/internal/model"
	"epf-data/internal/openmeteo"
)

type Options struct {
	Start time.Time
	Days  int
	Seed  int64
	// Cities and Variables default to the full Open-Meteo set.
	Cities    []openmeteo.City
	Variables []string
}

func (o *Options) applyDefaults() {
	if o.Start.IsZero() {
		o.Start = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	o.Start = o.Start.UTC().Truncate(time.Hour)
	if o.Days <= 0 {
		o.Days = 7
	}
	if len(o.Cities) == 0 {
		o.Cities = openmeteo.DefaultCities()
	}
	if len(o.Variables) == 0 {
		o.Variables = model.WeatherVariables
	}
}

// Files lists what Generate wrote, by category.
type Files map[model.Category][]string

// Generate writes one file per category under root/<category>/. Equal options give equal bytes.
func Generate(root string, opts Options) (Files, error) {
	opts.applyDefaults()
	rng := rand.New(rand.NewSource(opts.Seed))
	files := Files{}

	writers := []struct {
		cat  model.Category
		name string
		fn   func(path string) error
	}{
		{model.CategoryPrices, "GUI_ENERGY_PRICES.csv", func(p string) error { return writePrices(p, opts, rng) }},
		{model.CategoryConsumption, "GUI_TOTAL_LOAD_DAYAHEAD.csv", func(p string) error { return writeConsumption(p, opts, rng) }},
		{model.CategoryProduction, "AGGREGATED_GENERATION_PER_TYPE.csv", func(p string) error { return writeProduction(p, opts, rng) }},
		{model.CategoryCapacities, "INSTALLED_CAPACITY_PER_TYPE.csv", func(p string) error { return writeCapacities(p, opts) }},
	}
	for _, w := range writers {
		dir := filepath.Join(root, string(w.cat))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, w.name)
		if err := w.fn(path); err != nil {
			return nil, fmt.Errorf("write %s sample: %w", w.cat, err)
		}
		files[w.cat] = append(files[w.cat], path)
	}

	path, err := openmeteo.WriteRawFile(root, weather(opts, rng), opts.Variables)
	if err != nil {
		return nil, fmt.Errorf("write weather_forecast sample: %w", err)
	}
	files[model.CategoryWeatherForecast] = []string{path}
	return files, nil
}

func (o Options) hours() int { return o.Days * 24 }

const entsoeLayout = "02/01/2006 15:04:05"

func mtu(start, end time.Time, layout string) string {
	return start.Format(layout) + " - " + end.Format(layout)
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// solarShape is 0 at night and peaks at 1 around 12:00 UTC.
func solarShape(t time.Time) float64 {
	h := float64(t.Hour()) + float64(t.Minute())/60
	return math.Max(0, math.Sin((h-5)/14*math.Pi))
}

func writePrices(path string, o Options, rng *rand.Rand) error {
	var rows [][]string
	for i := 0; i < o.hours(); i++ {
		t := o.Start.Add(time.Duration(i) * time.Hour)
		daily := 25 * math.Sin(float64(t.Hour()-6)/24*2*math.Pi)
		price := 90 + daily - 40*solarShape(t) + rng.NormFloat64()*8
		interval := mtu(t, t.Add(time.Hour), entsoeLayout)
		rows = append(rows,
			[]string{interval, "BZN|DE-LU", "Sequence Sequence 1", num(price)},
			// intraday auction rows share the file and are filtered out on load
			[]string{interval, "BZN|DE-LU", "Sequence Sequence 2", num(price + rng.NormFloat64()*5)},
		)
	}
	return writeCSV(path, []string{"MTU (UTC)", "Area", "Sequence", "Day-ahead Price (EUR/MWh)"}, rows)
}

func writeConsumption(path string, o Options, rng *rand.Rand) error {
	const q = 15 * time.Minute
	var rows [][]string
	for i := 0; i < o.hours()*4; i++ {
		t := o.Start.Add(time.Duration(i) * q)
		load := 55000 + 12000*math.Sin(float64(t.Hour()-4)/24*2*math.Pi) + rng.NormFloat64()*800
		forecast := load + rng.NormFloat64()*600
		actual := num(load)
		if i%97 == 50 {
			actual = "n/e"
		}
		rows = append(rows, []string{mtu(t, t.Add(q), "02/01/2006 15:04"), "BZN|DE-LU", num(forecast), actual})
	}
	return writeCSV(path, []string{"MTU (UTC)", "Area", "Day-ahead Total Load Forecast (MW)", "Actual Total Load (MW)"}, rows)
}

func writeProduction(path string, o Options, rng *rand.Rand) error {
	var rows [][]string
	wind := 20000.0
	for i := 0; i < o.hours(); i++ {
		t := o.Start.Add(time.Duration(i) * time.Hour)
		wind = math.Max(500, wind+rng.NormFloat64()*1500)
		interval := mtu(t, t.Add(time.Hour), entsoeLayout)
		rows = append(rows,
			[]string{interval, "BZN|DE-LU", "Fossil Gas", num(8000 + rng.Float64()*4000)},
			[]string{interval, "BZN|DE-LU", "Solar", num(45000 * solarShape(t))},
			[]string{interval, "BZN|DE-LU", "Wind Offshore", num(wind * 0.2)},
			[]string{interval, "BZN|DE-LU", "Wind Onshore", num(wind * 0.8)},
		)
	}
	return writeCSV(path, []string{"MTU (UTC)", "Area", "Production Type", "Generation (MW)"}, rows)
}

func writeCapacities(path string, o Options) error {
	capacities := map[string]float64{"Solar": 67000, "Wind Offshore": 8100, "Wind Onshore": 58000}
	end := o.Start.Add(time.Duration(o.hours()) * time.Hour)
	var rows [][]string
	for y := o.Start.Year(); y <= end.Add(-time.Nanosecond).Year(); y++ {
		growth := 1 + 0.1*float64(y-2023)
		for _, pt := range model.RenewableProductionTypes {
			rows = append(rows, []string{strconv.Itoa(y), "DE", pt, num(capacities[pt] * growth)})
		}
	}
	return writeCSV(path, []string{"Year", "Area", "Production Type", "Installed Capacity (MW)"}, rows)
}

func weather(o Options, rng *rand.Rand) []openmeteo.CityForecast {
	out := make([]openmeteo.CityForecast, 0, len(o.Cities))
	for ci, city := range o.Cities {
		r := &openmeteo.Response{
			Latitude:  city.Latitude,
			Longitude: city.Longitude,
			Times:     make([]time.Time, o.hours()),
			Values:    map[string][]float64{},
		}
		for i := range r.Times {
			r.Times[i] = o.Start.Add(time.Duration(i) * time.Hour)
		}
		for vi, v := range o.Variables {
			col := make([]float64, o.hours())
			base := 5 + float64(ci) + float64(vi)
			for i, t := range r.Times {
				col[i] = math.Round((base+4*solarShape(t)+rng.NormFloat64())*10) / 10
			}
			r.Values[v] = col
		}
		out = append(out, openmeteo.CityForecast{City: city, Response: r})
	}
	return out
}
