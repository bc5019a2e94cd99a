package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"epf-data/internal/analysis"
	"epf-data/internal/config"
	"epf-data/internal/logging"
	"epf-data/internal/model"
	"epf-data/internal/openmeteo"
	"epf-data/internal/pipeline"
	"epf-data/internal/sample"
)

// Demo:
// - Write a few days of synthetic raw files for every category
// - Run the pipeline once with prices as the anchor of a left join
// - Print the dataset shape and the days with the widest price spread
func main() {
	dir := flag.String("dir", "demo_data", "Directory for raw/ and preprocessed/")
	days := flag.Int("days", 7, "Days of sample data")
	seed := flag.Int64("seed", 1, "Random seed")
	cities := flag.Int("cities", 3, "Number of weather cities")
	fill := flag.String("fill", "ffill", "Fill policy: nan, ffill or interpolate")
	format := flag.String("format", "csv", "Output format: csv, parquet or sql")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	logger, err := logging.New(level, true)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	all := openmeteo.DefaultCities()
	if *cities < 1 || *cities > len(all) {
		fmt.Fprintf(os.Stderr, "--cities must be between 1 and %d\n", len(all))
		os.Exit(2)
	}

	raw := filepath.Join(*dir, "raw")
	files, err := sample.Generate(raw, sample.Options{Days: *days, Seed: *seed, Cities: all[:*cities]})
	if err != nil {
		panic(err)
	}
	for _, cat := range model.AllCategories() {
		fmt.Printf("wrote %s: %v\n", cat, files[cat])
	}

	cfg := config.Default()
	cfg.RawDataRoot = raw
	cfg.PreprocessedDataRoot = filepath.Join(*dir, "preprocessed")
	// Capacities are yearly records; anchoring on prices keeps the grid to the sample window.
	cfg.Join, cfg.Anchor = "left", "prices"
	cfg.Fill.Policy = *fill
	cfg.Output.Format = *format
	cfg.Output.Name = "demo"
	if *format == "sql" {
		cfg.Output.SQLDSN = filepath.Join(*dir, "epf.db")
	}
	cfg.Workers = 4

	r, err := pipeline.New(cfg, pipeline.WithLogger(logger))
	if err != nil {
		panic(err)
	}
	res, err := r.Preprocess(context.Background())
	if err != nil {
		panic(err)
	}
	ds := res.Dataset
	fmt.Printf("\ndataset %s: %d rows x %d columns, step %s, run %s\n", ds.Name, ds.Rows(), len(ds.Columns), ds.Step, res.Manifest.RunID)
	filled, missing := 0, 0
	for _, c := range res.Report.Columns {
		filled += c.Filled
		missing += c.Missing
	}
	fmt.Printf("filled %d cells, %d still missing\n", filled, missing)

	spreads, err := analysis.DailySpread(ds, "da_price_eur_mwh")
	if err != nil {
		panic(err)
	}
	fmt.Println("\nday         spread    storage value")
	for i, d := range analysis.RankBySpread(spreads) {
		if i == 3 {
			break
		}
		fmt.Printf("%s  %8.2f  %8.2f\n", d.Day.Format("2006-01-02"), d.Spread, d.StorageValue)
	}
}
