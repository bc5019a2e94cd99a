package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"epf-data/internal/model"
)

// TimeColumn heads the index column of every written dataset.
const TimeColumn = "start_ts_utc"

// WriteCSV writes the wide table. Floats use the shortest exact form and NaN is an empty cell.
func WriteCSV(w io.Writer, ds *model.Dataset) error {
	cw := csv.NewWriter(w)

	header := append([]string{TimeColumn}, ds.Columns...)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for r, ts := range ds.Index {
		row[0] = fmtTime(ts)
		for c, v := range ds.Values[r] {
			row[c+1] = fmtFloat(v)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteCSVFile(path string, ds *model.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, ds); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadCSV reads a table written by WriteCSV. The step is the smallest index distance
// (0 for a single row); callers that know the step from a manifest should set it.
func ReadCSV(r io.Reader, name string) (*model.Dataset, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &model.Error{Kind: model.KindParse, Msg: "empty dataset file"}
		}
		return nil, err
	}
	if len(header) == 0 || header[0] != TimeColumn {
		return nil, &model.Error{Kind: model.KindSchemaMismatch, Column: TimeColumn, Msg: "first column must be the time index"}
	}

	ds := &model.Dataset{Name: name, Columns: append([]string(nil), header[1:]...)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		ts, err := time.Parse(time.RFC3339Nano, rec[0])
		if err != nil {
			return nil, &model.Error{Kind: model.KindParse, Line: line, Column: TimeColumn, Value: rec[0], Err: err}
		}
		vals := make([]float64, len(rec)-1)
		for i, cell := range rec[1:] {
			if vals[i], err = parseFloat(cell); err != nil {
				return nil, &model.Error{Kind: model.KindParse, Line: line, Column: header[i+1], Value: cell, Err: err}
			}
		}
		ds.Index = append(ds.Index, ts.UTC())
		ds.Values = append(ds.Values, vals)
	}
	ds.Step = inferStep(ds.Index)
	return ds, nil
}

// ReadCSVFile reads path and takes the dataset name from the file name.
func ReadCSVFile(path string) (*model.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ds, err := ReadCSV(f, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	if err != nil {
		var me *model.Error
		if errors.As(err, &me) {
			me.Path = path
		}
		return nil, err
	}
	return ds, nil
}

func inferStep(index []time.Time) time.Duration {
	var step time.Duration
	for i := 1; i < len(index); i++ {
		if d := index[i].Sub(index[i-1]); step == 0 || d < step {
			step = d
		}
	}
	return step
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func fmtFloat(x float64) string {
	if math.IsNaN(x) {
		return ""
	}
	return strconv.FormatFloat(x, 'g', -1, 64)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	return v, nil
}
