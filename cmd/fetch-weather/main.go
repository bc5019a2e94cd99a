package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"epf-data/internal/config"
	"epf-data/internal/logging"
	"epf-data/internal/openmeteo"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	var (
		rawRoot    = flag.String("raw-root", config.DefaultRawDataRoot, "Raw data root; the file goes to <raw-root>/weather_forecast/")
		citiesFile = flag.String("cities", "", "JSON city list (default: the built-in ten German cities)")
		saveCities = flag.String("save-cities", "", "Also write the city list used to this path")
		start      = flag.String("start", "", "First day, YYYY-MM-DD (default: -days before end)")
		end        = flag.String("end", "", "Last day, YYYY-MM-DD (default: today)")
		days       = flag.Int("days", 7, "Number of days when --start is not given")
		variables  = flag.String("variables", "", "Comma-separated hourly variables (default: all)")
		baseURL    = flag.String("base-url", os.Getenv("OPEN_METEO_BASE_URL"), "Open-Meteo base URL")
		verbose    = flag.Bool("v", false, "Debug logging")
	)
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	logger, err := logging.New(level, true)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	cities := openmeteo.DefaultCities()
	if *citiesFile != "" {
		list, err := openmeteo.LoadCities(*citiesFile)
		if err != nil {
			log.Fatalf("Failed to load cities: %v", err)
		}
		cities = list.Cities
		fmt.Printf("Loaded %d cities from %s\n", len(cities), *citiesFile)
	}

	endDay := time.Now().UTC().Truncate(24 * time.Hour)
	if *end != "" {
		if endDay, err = time.Parse(time.DateOnly, *end); err != nil {
			log.Fatalf("--end: %v", err)
		}
	}
	startDay := endDay.AddDate(0, 0, -*days)
	if *start != "" {
		if startDay, err = time.Parse(time.DateOnly, *start); err != nil {
			log.Fatalf("--start: %v", err)
		}
	}

	var vars []string
	if *variables != "" {
		for _, v := range strings.Split(*variables, ",") {
			vars = append(vars, strings.TrimSpace(v))
		}
	}

	client := openmeteo.NewClient(*baseURL, openmeteo.WithLogger(logger), openmeteo.WithCache(time.Hour))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("Fetching forecasts for %d cities from %s to %s...\n",
		len(cities), startDay.Format(time.DateOnly), endDay.Format(time.DateOnly))
	forecasts, err := client.FetchAll(ctx, cities, startDay, endDay, vars)
	if err != nil {
		log.Fatalf("Failed to fetch forecasts: %v", err)
	}

	path, err := openmeteo.WriteRawFile(*rawRoot, forecasts, vars)
	if err != nil {
		log.Fatalf("Failed to write forecasts: %v", err)
	}
	rows := 0
	for _, f := range forecasts {
		rows += len(f.Response.Times)
	}
	fmt.Printf("Saved %d rows for %d cities to %s\n", rows, len(forecasts), path)

	if *saveCities != "" {
		list := &openmeteo.CityList{UpdatedAt: time.Now().UTC().Format(time.RFC3339), Cities: cities}
		if err := openmeteo.SaveCities(list, *saveCities); err != nil {
			log.Fatalf("Failed to save cities: %v", err)
		}
		fmt.Printf("Saved city list to %s\n", *saveCities)
	}
}
