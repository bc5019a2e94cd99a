// Package pipeline wires registry, loader, preprocessor and store into one run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"epf-data/internal/config"
	"epf-data/internal/loader"
	"epf-data/internal/metrics"
	"epf-data/internal/model"
	"epf-data/internal/preprocess"
	"epf-data/internal/registry"
	"epf-data/internal/store"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Runner struct {
	cfg     *config.Config
	reg     *registry.Registry
	loader  *loader.Loader
	logger  *zap.Logger
	metrics *metrics.Metrics
	db      *store.SQLStore
}

type Option func(*Runner)

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithSQLStore supplies an open database for the sql output format.
func WithSQLStore(s *store.SQLStore) Option {
	return func(r *Runner) { r.db = s }
}

// Result is what one preprocessing run produced.
type Result struct {
	Dataset  *model.Dataset
	Report   *preprocess.Report
	Manifest *store.Manifest
}

func New(cfg *config.Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	r := &Runner{cfg: cfg, logger: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	r.reg = registry.New(cfg.RawDataRoot, registry.WithFileFormat(cfg.FileFormat))
	r.loader = loader.New(loader.WithLogger(r.logger))
	return r, nil
}

func (r *Runner) Config() *config.Config       { return r.cfg }
func (r *Runner) Registry() *registry.Registry { return r.reg }

// Load reads one category.
func (r *Runner) Load(ctx context.Context, c model.Category) (*model.RawSeries, error) {
	start := time.Now()
	e, err := r.reg.Lookup(c)
	if err == nil {
		var s *model.RawSeries
		if s, err = r.loader.Load(ctx, e); err == nil {
			if r.metrics != nil {
				r.metrics.RecordsLoaded.WithLabelValues(string(c)).Add(float64(s.Len()))
				r.metrics.LoadDuration.WithLabelValues(string(c)).Observe(time.Since(start).Seconds())
			}
			return s, nil
		}
	}
	if r.metrics != nil {
		kind := string(model.KindOf(err))
		if kind == "" {
			kind = "OTHER"
		}
		r.metrics.LoadErrors.WithLabelValues(string(c), kind).Inc()
	}
	return nil, fmt.Errorf("load %s: %w", c, err)
}

// LoadAll loads the categories with at most cfg.Workers in flight.
// Results keep the order of cats; the first error cancels the rest.
func (r *Runner) LoadAll(ctx context.Context, cats []model.Category) ([]*model.RawSeries, error) {
	out := make([]*model.RawSeries, len(cats))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, c := range cats {
		g.Go(func() error {
			s, err := r.Load(gctx, c)
			if err != nil {
				return err
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Gaps lists the missing grid starts of one category on step.
func (r *Runner) Gaps(ctx context.Context, c model.Category, step time.Duration) ([]time.Time, error) {
	s, err := r.Load(ctx, c)
	if err != nil {
		return nil, err
	}
	return preprocess.FindGaps(s, step), nil
}

// PreprocessOptions translates the config into preprocessor options.
func (r *Runner) PreprocessOptions() (preprocess.Options, error) {
	c := r.cfg
	fill, err := preprocess.ParseFill(c.Fill.Policy)
	if err != nil {
		return preprocess.Options{}, err
	}
	per := map[model.Category]preprocess.FillPolicy{}
	for cat, p := range c.Fill.PerCategory {
		k, err := model.ParseCategory(cat)
		if err != nil {
			return preprocess.Options{}, err
		}
		if per[k], err = preprocess.ParseFill(p); err != nil {
			return preprocess.Options{}, err
		}
	}
	return preprocess.Options{
		Name:            c.Output.Name,
		Step:            time.Duration(c.Step),
		Join:            preprocess.JoinMode(c.Join),
		Anchor:          model.Category(c.Anchor),
		Start:           c.Start,
		End:             c.End,
		Fill:            fill,
		FillLimit:       c.Fill.Limit,
		PerCategoryFill: per,
		DropIncomplete:  c.DropIncomplete,
	}, nil
}

// Preprocess loads the configured categories, aligns them and writes the dataset.
func (r *Runner) Preprocess(ctx context.Context) (res *Result, err error) {
	defer func() {
		if r.metrics == nil {
			return
		}
		status := "ok"
		if err != nil {
			status = "error"
		}
		r.metrics.Runs.WithLabelValues(status).Inc()
	}()

	cats := r.cfg.SelectedCategories()
	r.logger.Info("preprocess started",
		zap.Strings("categories", categoryNames(cats)),
		zap.Duration("step", time.Duration(r.cfg.Step)),
		zap.String("join", r.cfg.Join),
		zap.String("fill", r.cfg.Fill.Policy),
		zap.Int("workers", r.cfg.Workers),
	)
	series, err := r.LoadAll(ctx, cats)
	if err != nil {
		return nil, err
	}
	opts, err := r.PreprocessOptions()
	if err != nil {
		return nil, err
	}
	ds, rep, err := preprocess.New(opts).Run(series...)
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}

	format, err := store.ParseFormat(r.cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	save := store.SaveOptions{Dir: r.cfg.PreprocessedDataRoot, Format: format, SQL: r.db}
	if format == store.FormatSQL && r.db == nil {
		db, err := store.OpenSQL(ctx, store.Backend(r.cfg.Output.SQLBackend), r.cfg.Output.SQLDSN)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		save.SQL = db
	}
	m, err := store.Save(ctx, ds, rep, save)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", ds.Name, err)
	}

	if r.metrics != nil {
		r.metrics.RowsWritten.Add(float64(ds.Rows()))
		for _, c := range rep.Columns {
			r.metrics.CellsFilled.WithLabelValues(string(c.Category)).Add(float64(c.Filled))
		}
	}
	r.logger.Info("preprocess finished",
		zap.String("name", ds.Name),
		zap.String("run_id", m.RunID),
		zap.Int("rows", ds.Rows()),
		zap.Int("columns", len(ds.Columns)),
		zap.Int("dropped_rows", rep.DroppedRows),
		zap.String("format", string(m.Format)),
	)
	return &Result{Dataset: ds, Report: rep, Manifest: m}, nil
}

func categoryNames(cats []model.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}
