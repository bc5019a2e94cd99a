package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"epf-data/internal/model"

	"gopkg.in/yaml.v3"
)

// Defaults mirror the README's directory layout.
const (
	DefaultRawDataRoot          = "data/raw"
	DefaultPreprocessedDataRoot = "data/preprocessed"
	DefaultStep                 = time.Hour
	DefaultOutputName           = "dataset"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	RawDataRoot          string   `yaml:"raw_data_root"`
	PreprocessedDataRoot string   `yaml:"preprocessed_data_root"`
	Categories           []string `yaml:"categories"`
	// FileFormat restricts raw files to ".csv", ".xlsx" or "any".
	FileFormat string `yaml:"file_format"`

	Step           Duration     `yaml:"step"`
	Join           string       `yaml:"join"`
	Anchor         string       `yaml:"anchor"`
	Start          *time.Time   `yaml:"start"`
	End            *time.Time   `yaml:"end"`
	Fill           FillConfig   `yaml:"fill"`
	DropIncomplete bool         `yaml:"drop_incomplete"`
	Output         OutputConfig `yaml:"output"`

	Workers  int    `yaml:"workers"`
	LogLevel string `yaml:"log_level"`
}

type FillConfig struct {
	Policy      string            `yaml:"policy"`
	Limit       int               `yaml:"limit"`
	PerCategory map[string]string `yaml:"per_category"`
}

type OutputConfig struct {
	Name       string `yaml:"name"`
	Format     string `yaml:"format"`
	SQLBackend string `yaml:"sql_backend"`
	SQLDSN     string `yaml:"sql_dsn"`
}

// Duration accepts Go duration strings ("1h", "15m") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns a config that processes every category with NaN retention on an hourly grid.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads the file and resolves relative roots, but does not default or validate.
// Useful for debugging/printing partial configs.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	// Relative roots are interpreted relative to the config file directory.
	dir := filepath.Dir(path)
	c.RawDataRoot = resolve(dir, c.RawDataRoot)
	c.PreprocessedDataRoot = resolve(dir, c.PreprocessedDataRoot)
	if c.Output.SQLBackend == "sqlite" {
		c.Output.SQLDSN = resolve(dir, c.Output.SQLDSN)
	}
	return &c, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) || p == ":memory:" {
		return p
	}
	return filepath.Join(base, p)
}

func (c *Config) applyDefaults() {
	if c.RawDataRoot == "" {
		c.RawDataRoot = DefaultRawDataRoot
	}
	if c.PreprocessedDataRoot == "" {
		c.PreprocessedDataRoot = DefaultPreprocessedDataRoot
	}
	if len(c.Categories) == 0 {
		for _, k := range model.AllCategories() {
			c.Categories = append(c.Categories, string(k))
		}
	}
	if c.FileFormat == "" {
		c.FileFormat = "any"
	}
	if c.Step == 0 {
		c.Step = Duration(DefaultStep)
	}
	if c.Join == "" {
		c.Join = "outer"
	}
	if c.Fill.Policy == "" {
		c.Fill.Policy = "nan"
	}
	if c.Output.Name == "" {
		c.Output.Name = DefaultOutputName
	}
	if c.Output.Format == "" {
		c.Output.Format = "csv"
	}
	if c.Output.SQLBackend == "" {
		c.Output.SQLBackend = "sqlite"
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

var (
	validJoins    = []string{"outer", "inner", "left"}
	validFills    = []string{"nan", "ffill", "interpolate"}
	validFormats  = []string{"csv", "parquet", "sql"}
	validBackends = []string{"sqlite", "postgresql", "mysql"}
	validFiles    = []string{"any", ".csv", ".xlsx"}
)

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	cats, err := model.ParseCategories(c.Categories)
	if err != nil {
		return fmt.Errorf("categories: %w", err)
	}
	if time.Duration(c.Step) <= 0 {
		return errors.New("step must be > 0")
	}
	if !oneOf(c.Join, validJoins) {
		return fmt.Errorf("join must be one of %v", validJoins)
	}
	if c.Join == "left" {
		anchor, err := model.ParseCategory(c.Anchor)
		if err != nil {
			return fmt.Errorf("anchor: %w", err)
		}
		if !containsCategory(cats, anchor) {
			return fmt.Errorf("anchor %q is not among the selected categories", c.Anchor)
		}
	}
	if c.Start != nil && c.End != nil && !c.Start.Before(*c.End) {
		return errors.New("start must be before end")
	}
	if !oneOf(c.Fill.Policy, validFills) {
		return fmt.Errorf("fill.policy must be one of %v", validFills)
	}
	if c.Fill.Limit < 0 {
		return errors.New("fill.limit must be >= 0")
	}
	for cat, p := range c.Fill.PerCategory {
		if _, err := model.ParseCategory(cat); err != nil {
			return fmt.Errorf("fill.per_category: %w", err)
		}
		if !oneOf(p, validFills) {
			return fmt.Errorf("fill.per_category.%s must be one of %v", cat, validFills)
		}
	}
	if !ValidName(c.Output.Name) {
		return fmt.Errorf("output.name %q must be a plain file name", c.Output.Name)
	}
	if !oneOf(c.Output.Format, validFormats) {
		return fmt.Errorf("output.format must be one of %v", validFormats)
	}
	if c.Output.Format == "sql" && !oneOf(c.Output.SQLBackend, validBackends) {
		return fmt.Errorf("output.sql_backend must be one of %v", validBackends)
	}
	if !oneOf(c.FileFormat, validFiles) {
		return fmt.Errorf("file_format must be one of %v", validFiles)
	}
	return nil
}

// ValidName reports whether name can be used as a dataset file name inside the
// preprocessed data root.
func ValidName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// SelectedCategories returns the parsed category list. Call after Validate.
func (c *Config) SelectedCategories() []model.Category {
	cats, _ := model.ParseCategories(c.Categories)
	return cats
}

// Overrides carries values set on the command line or in the environment.
// Zero values mean "not set".
type Overrides struct {
	RawDataRoot          string
	PreprocessedDataRoot string
	Categories           []string
	Step                 time.Duration
	Join                 string
	Anchor               string
	Fill                 string
	FillLimit            int
	Format               string
	Name                 string
	Workers              int
	DropIncomplete       bool
	Start                *time.Time
	End                  *time.Time
}

// Merge overlays non-zero fields from o onto c.
func (c *Config) Merge(o Overrides) {
	if o.RawDataRoot != "" {
		c.RawDataRoot = o.RawDataRoot
	}
	if o.PreprocessedDataRoot != "" {
		c.PreprocessedDataRoot = o.PreprocessedDataRoot
	}
	if len(o.Categories) > 0 {
		c.Categories = o.Categories
	}
	if o.Step > 0 {
		c.Step = Duration(o.Step)
	}
	if o.Join != "" {
		c.Join = o.Join
	}
	if o.Anchor != "" {
		c.Anchor = o.Anchor
	}
	if o.Fill != "" {
		c.Fill.Policy = o.Fill
	}
	if o.FillLimit > 0 {
		c.Fill.Limit = o.FillLimit
	}
	if o.Format != "" {
		c.Output.Format = o.Format
	}
	if o.Name != "" {
		c.Output.Name = o.Name
	}
	if o.Workers > 0 {
		c.Workers = o.Workers
	}
	if o.DropIncomplete {
		c.DropIncomplete = true
	}
	if o.Start != nil {
		c.Start = o.Start
	}
	if o.End != nil {
		c.End = o.End
	}
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func containsCategory(list []model.Category, c model.Category) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}
