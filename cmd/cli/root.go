package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"epf-data/internal/config"
	"epf-data/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app carries what every subcommand needs. It is filled in by the root's PersistentPreRunE.
type app struct {
	v      *viper.Viper
	out    io.Writer
	errOut io.Writer
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: stdout, errOut: stderr}

	root := &cobra.Command{
		Use:           "epf",
		Short:         "Load, align and export German day-ahead price data.",
		Long:          "epf reads the raw ENTSO-E and weather files under data/raw, checks them against their schemas and writes one time-aligned dataset.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := root.PersistentFlags()
	pf.String("config", "", "path to a YAML config file")
	pf.String("raw-root", "", "raw data root (default data/raw)")
	pf.String("out-root", "", "preprocessed data root (default data/preprocessed)")
	pf.StringSlice("categories", nil, "categories to process (default all)")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.BoolP("verbose", "v", false, "debug logging to stderr")

	root.AddCommand(
		a.categoriesCmd(),
		a.loadCmd(),
		a.gapsCmd(),
		a.preprocessCmd(),
		a.describeCmd(),
	)
	return root
}

// setup merges defaults, the config file, EPF_* environment variables and flags, in that order.
func (a *app) setup(cmd *cobra.Command) error {
	v := a.v
	v.SetEnvPrefix("EPF")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	cfg := config.Default()
	if path := v.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return usageError{fmt.Errorf("config: %w", err)}
		}
		cfg = loaded
	}

	o, err := a.overrides()
	if err != nil {
		return usageError{err}
	}
	cfg.Merge(o)
	if v.IsSet("sql-backend") {
		cfg.Output.SQLBackend = v.GetString("sql-backend")
	}
	if v.IsSet("sql-dsn") {
		cfg.Output.SQLDSN = v.GetString("sql-dsn")
	}
	if v.IsSet("log-level") {
		cfg.LogLevel = v.GetString("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return usageError{fmt.Errorf("config: %w", err)}
	}
	a.cfg = cfg

	level, dev := cfg.LogLevel, false
	if v.GetBool("verbose") {
		level, dev = "debug", true
	}
	logger, err := logging.New(level, dev)
	if err != nil {
		return usageError{err}
	}
	a.logger = logger
	return nil
}

func (a *app) overrides() (config.Overrides, error) {
	v := a.v
	o := config.Overrides{
		RawDataRoot:          v.GetString("raw-root"),
		PreprocessedDataRoot: v.GetString("out-root"),
		Categories:           splitList(v.GetStringSlice("categories")),
		Join:                 v.GetString("join"),
		Anchor:               v.GetString("anchor"),
		Fill:                 v.GetString("fill"),
		FillLimit:            v.GetInt("fill-limit"),
		Format:               v.GetString("format"),
		Name:                 v.GetString("name"),
		Workers:              v.GetInt("workers"),
		DropIncomplete:       v.GetBool("drop-incomplete"),
	}
	if v.IsSet("step") {
		d, err := time.ParseDuration(v.GetString("step"))
		if err != nil || d <= 0 {
			return o, fmt.Errorf("--step must be a positive duration, got %q", v.GetString("step"))
		}
		o.Step = d
	}
	for _, p := range []struct {
		key string
		dst **time.Time
	}{{"start", &o.Start}, {"end", &o.End}} {
		s := v.GetString(p.key)
		if s == "" {
			continue
		}
		t, err := parseBound(s)
		if err != nil {
			return o, fmt.Errorf("--%s: %w", p.key, err)
		}
		*p.dst = &t
	}
	return o, nil
}

// parseBound accepts RFC 3339 or a bare UTC date.
func parseBound(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("want RFC 3339 or YYYY-MM-DD, got %q", s)
	}
	return t, nil
}

// exactArgs and minArgs report argument count problems as usage errors.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func minArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// splitList flattens comma separated entries, which is how EPF_CATEGORIES arrives.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
