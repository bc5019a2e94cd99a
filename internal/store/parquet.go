package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"epf-data/internal/model"

	"github.com/parquet-go/parquet-go"
)

// Cell is one non-index cell of a dataset in long layout.
// Value is nil where the wide table holds NaN.
type Cell struct {
	// StartTS is the bucket start in Unix nanoseconds (UTC).
	StartTS     int64    `parquet:"start_ts_utc,snappy"`
	ColumnIndex int32    `parquet:"column_index,snappy"`
	Column      string   `parquet:"column,snappy,dict"`
	Value       *float64 `parquet:"value,optional,snappy"`
}

const (
	metaName    = "epf.name"
	metaStep    = "epf.step_ns"
	metaColumns = "epf.columns"
)

// WriteParquet writes ds in long layout with its name, step and column list as file metadata.
func WriteParquet(path string, ds *model.Dataset) error {
	if len(ds.Columns) == 0 {
		return fmt.Errorf("dataset %q has no columns", ds.Name)
	}
	cols, err := json.Marshal(ds.Columns)
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[Cell](file,
		parquet.KeyValueMetadata(metaName, ds.Name),
		parquet.KeyValueMetadata(metaStep, strconv.FormatInt(int64(ds.Step), 10)),
		parquet.KeyValueMetadata(metaColumns, string(cols)),
	)

	cells := make([]Cell, 0, len(ds.Index)*len(ds.Columns))
	for r, ts := range ds.Index {
		for c, name := range ds.Columns {
			cell := Cell{StartTS: ts.UnixNano(), ColumnIndex: int32(c), Column: name}
			if v := ds.Values[r][c]; !math.IsNaN(v) {
				cell.Value = &v
			}
			cells = append(cells, cell)
		}
	}
	if _, err := writer.Write(cells); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return file.Close()
}

// ReadParquet rebuilds the wide table from a file written by WriteParquet.
func ReadParquet(path string) (*model.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, &model.Error{Kind: model.KindParse, Path: path, Msg: "not a parquet file", Err: err}
	}

	reader := parquet.NewGenericReader[Cell](f)
	defer reader.Close()
	cells := make([]Cell, reader.NumRows())
	if len(cells) > 0 {
		n, err := reader.Read(cells)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, &model.Error{Kind: model.KindParse, Path: path, Err: err}
		}
		cells = cells[:n]
	}

	ds := &model.Dataset{}
	ds.Name, _ = pf.Lookup(metaName)
	if s, ok := pf.Lookup(metaStep); ok {
		ns, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, &model.Error{Kind: model.KindParse, Path: path, Column: metaStep, Value: s, Err: err}
		}
		ds.Step = time.Duration(ns)
	}
	if s, ok := pf.Lookup(metaColumns); ok {
		if err := json.Unmarshal([]byte(s), &ds.Columns); err != nil {
			return nil, &model.Error{Kind: model.KindParse, Path: path, Column: metaColumns, Value: s, Err: err}
		}
	}
	if err := fromCells(ds, cells); err != nil {
		var me *model.Error
		if errors.As(err, &me) {
			me.Path = path
		}
		return nil, err
	}
	return ds, nil
}

// fromCells fills Index and Values of ds from long-layout cells in any order.
// Columns come from the file metadata when present, otherwise from the cells.
func fromCells(ds *model.Dataset, cells []Cell) error {
	columns := map[int32]string{}
	starts := map[int64]bool{}
	for _, c := range cells {
		if prev, ok := columns[c.ColumnIndex]; ok && prev != c.Column {
			return &model.Error{Kind: model.KindSchemaMismatch, Column: c.Column,
				Msg: fmt.Sprintf("column index %d names both %q and %q", c.ColumnIndex, prev, c.Column)}
		}
		columns[c.ColumnIndex] = c.Column
		starts[c.StartTS] = true
	}
	if ds.Columns == nil {
		ds.Columns = make([]string, len(columns))
		for i, name := range columns {
			if int(i) < 0 || int(i) >= len(columns) {
				return &model.Error{Kind: model.KindSchemaMismatch, Msg: fmt.Sprintf("column indexes are not dense (%d)", i)}
			}
			ds.Columns[i] = name
		}
	}
	for i, name := range columns {
		if int(i) < 0 || int(i) >= len(ds.Columns) || ds.Columns[i] != name {
			return &model.Error{Kind: model.KindSchemaMismatch, Column: name,
				Msg: fmt.Sprintf("column index %d does not match the file's column list", i)}
		}
	}

	keys := make([]int64, 0, len(starts))
	for k := range starts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	row := make(map[int64]int, len(keys))
	ds.Index = make([]time.Time, len(keys))
	ds.Values = make([][]float64, len(keys))
	for i, k := range keys {
		row[k] = i
		ds.Index[i] = time.Unix(0, k).UTC()
		ds.Values[i] = make([]float64, len(ds.Columns))
		for j := range ds.Values[i] {
			ds.Values[i][j] = math.NaN()
		}
	}
	for _, c := range cells {
		if c.Value != nil {
			ds.Values[row[c.StartTS]][c.ColumnIndex] = *c.Value
		}
	}
	if ds.Step == 0 {
		ds.Step = inferStep(ds.Index)
	}
	return nil
}
