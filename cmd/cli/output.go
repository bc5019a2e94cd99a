package main

import (
	"io"
	"math"
	"strconv"
	"time"

	"epf-data/internal/analysis"
	"epf-data/internal/preprocess"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

var (
	okLabel   = color.New(color.FgGreen).SprintFunc()
	warnLabel = color.New(color.FgYellow).SprintFunc()
	errLabel  = color.New(color.FgRed).SprintFunc()
)

func renderTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Header(headers)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func renderStats(w io.Writer, cols []analysis.ColumnSummary) error {
	rows := make([][]string, 0, len(cols))
	for _, c := range cols {
		rows = append(rows, []string{
			c.Column, strconv.Itoa(c.Count), strconv.Itoa(c.Missing),
			fmtFloat(c.Min), fmtFloat(c.Mean), fmtFloat(c.Max), fmtFloat(c.P05), fmtFloat(c.P95),
		})
	}
	return renderTable(w, []string{"Column", "Count", "Missing", "Min", "Mean", "Max", "P05", "P95"}, rows)
}

func renderReport(w io.Writer, rep *preprocess.Report) error {
	return renderTable(w, []string{"Column", "Category", "Fill", "Observed", "Clipped", "Filled", "Missing"}, reportRows(rep))
}

func renderSpreads(w io.Writer, days []analysis.DaySpread) error {
	rows := make([][]string, 0, len(days))
	for _, d := range days {
		rows = append(rows, []string{
			d.Day.Format(time.DateOnly), strconv.Itoa(d.Count),
			fmtFloat(d.Min), fmtFloat(d.Max), fmtFloat(d.Spread), fmtFloat(d.StorageValue),
		})
	}
	return renderTable(w, []string{"Day", "Count", "Min", "Max", "Spread", "Storage value"}, rows)
}

func fmtFloat(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
