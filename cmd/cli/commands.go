package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"epf-data/internal/analysis"
	"epf-data/internal/model"
	"epf-data/internal/pipeline"
	"epf-data/internal/preprocess"
	"epf-data/internal/registry"
	"epf-data/internal/store"

	"github.com/spf13/cobra"
)

func (a *app) runner() (*pipeline.Runner, error) {
	return pipeline.New(a.cfg, pipeline.WithLogger(a.logger))
}

// signalContext cancels on Ctrl-C so long loads stop between files.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt)
}

func (a *app) categoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the raw data categories and the files found for each.",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := registry.New(a.cfg.RawDataRoot, registry.WithFileFormat(a.cfg.FileFormat))
			var rows [][]string
			for _, c := range reg.Categories() {
				status, files := okLabel("ok"), "0"
				if e, err := reg.Lookup(c); err != nil {
					status = errLabel(err.Error())
				} else {
					files = strconv.Itoa(len(e.Files))
				}
				rows = append(rows, []string{string(c), reg.Dir(c), files, status})
			}
			return renderTable(a.out, []string{"Category", "Directory", "Files", "Status"}, rows)
		},
	}
}

func (a *app) loadCmd() *cobra.Command {
	var stats bool
	cmd := &cobra.Command{
		Use:   "load <category>...",
		Short: "Load categories and print what was read.",
		Args:  minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, err := model.ParseCategories(args)
			if err != nil {
				return err
			}
			r, err := a.runner()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()
			series, err := r.LoadAll(ctx, cats)
			if err != nil {
				return err
			}

			var rows [][]string
			for _, s := range series {
				sum := analysis.SummarizeSeries(s)
				rows = append(rows, []string{
					string(sum.Category),
					strconv.Itoa(sum.Records),
					fmtTime(sum.Start),
					fmtTime(sum.End),
					sum.Resolution,
					strconv.Itoa(len(sum.Columns)),
				})
			}
			if err := renderTable(a.out, []string{"Category", "Records", "Start", "End", "Resolution", "Columns"}, rows); err != nil {
				return err
			}
			if !stats {
				return nil
			}
			for _, s := range series {
				fmt.Fprintf(a.out, "\n%s\n", s.Category)
				if err := renderStats(a.out, analysis.SummarizeSeries(s).Columns); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&stats, "stats", false, "print per-column statistics")
	return cmd
}

func (a *app) gapsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gaps <category>",
		Short: "List grid timestamps a category has no record for.",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := model.ParseCategory(args[0])
			if err != nil {
				return err
			}
			r, err := a.runner()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()
			step := time.Duration(a.cfg.Step)
			missing, err := r.Gaps(ctx, c, step)
			if err != nil {
				return err
			}
			if len(missing) == 0 {
				fmt.Fprintf(a.out, "%s: %s no gaps at %s\n", c, okLabel("ok"), step)
				return nil
			}
			fmt.Fprintf(a.out, "%s: %s at %s\n", c, warnLabel(fmt.Sprintf("%d missing", len(missing))), step)
			for _, t := range missing {
				fmt.Fprintln(a.out, fmtTime(t))
			}
			return nil
		},
	}
	cmd.Flags().String("step", "", "grid step, e.g. 1h or 15m (default from config)")
	return cmd
}

func (a *app) preprocessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preprocess [category...]",
		Short: "Align the selected categories on one grid and write the dataset.",
		PreRunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				return nil
			}
			if _, err := model.ParseCategories(args); err != nil {
				return err
			}
			a.cfg.Categories = args
			if err := a.cfg.Validate(); err != nil {
				return usageError{err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := a.runner()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()
			res, err := r.Preprocess(ctx)
			if err != nil {
				return err
			}
			m := res.Manifest
			where := filepath.Join(a.cfg.PreprocessedDataRoot, m.File)
			if m.Format == store.FormatSQL {
				where = fmt.Sprintf("%s database", a.cfg.Output.SQLBackend)
			}
			fmt.Fprintf(a.out, "%s wrote %s: %d rows x %d columns (%s, step %s) to %s\n",
				okLabel("ok"), m.Name, m.Rows, len(m.Columns), m.Format, m.Step, where)
			if res.Report.DroppedRows > 0 {
				fmt.Fprintf(a.out, "dropped %d incomplete rows\n", res.Report.DroppedRows)
			}
			return renderReport(a.out, res.Report)
		},
	}
	f := cmd.Flags()
	f.String("step", "", "grid step (default 1h)")
	f.String("join", "", "outer, inner or left")
	f.String("anchor", "", "category whose span a left join keeps")
	f.String("fill", "", "nan, ffill or interpolate")
	f.Int("fill-limit", 0, "longest run of missing cells to fill (0 = unlimited)")
	f.String("format", "", "csv, parquet or sql")
	f.String("name", "", "dataset name (default dataset)")
	f.String("start", "", "first grid timestamp, RFC 3339 or YYYY-MM-DD")
	f.String("end", "", "grid end (exclusive), RFC 3339 or YYYY-MM-DD")
	f.Bool("drop-incomplete", false, "drop rows that still have missing cells")
	f.Int("workers", 0, "categories loaded in parallel")
	f.String("sql-backend", "", "sqlite, postgresql or mysql")
	f.String("sql-dsn", "", "database DSN for --format sql")
	return cmd
}

func (a *app) describeCmd() *cobra.Command {
	var (
		spread string
		top    int
	)
	cmd := &cobra.Command{
		Use:   "describe <file>",
		Short: "Summarize a preprocessed CSV or Parquet dataset.",
		Args:  exactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ds, err := store.ReadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s: %d rows x %d columns, step %s\n", ds.Name, ds.Rows(), len(ds.Columns), ds.Step)
			if ds.Rows() > 0 {
				fmt.Fprintf(a.out, "from %s to %s\n", fmtTime(ds.Index[0]), fmtTime(ds.Index[ds.Rows()-1]))
			}
			if err := renderStats(a.out, analysis.Summarize(ds)); err != nil {
				return err
			}
			if spread == "" {
				return nil
			}
			days, err := analysis.DailySpread(ds, spread)
			if err != nil {
				return err
			}
			days = analysis.RankBySpread(days)
			if top > 0 && top < len(days) {
				days = days[:top]
			}
			fmt.Fprintf(a.out, "\nwidest daily spreads of %s\n", spread)
			return renderSpreads(a.out, days)
		},
	}
	cmd.Flags().StringVar(&spread, "spread", "", "rank days by the intraday spread of this column")
	cmd.Flags().IntVar(&top, "top", 10, "days to show with --spread")
	return cmd
}

func reportRows(rep *preprocess.Report) [][]string {
	rows := make([][]string, 0, len(rep.Columns))
	for _, c := range rep.Columns {
		rows = append(rows, []string{
			c.Column, string(c.Category), string(c.Fill),
			strconv.Itoa(c.Observed), strconv.Itoa(c.Clipped), strconv.Itoa(c.Filled), strconv.Itoa(c.Missing),
		})
	}
	return rows
}
