// Package store persists preprocessed datasets as CSV, Parquet or SQL tables.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"epf-data/internal/model"
	"epf-data/internal/preprocess"

	"github.com/google/uuid"
)

type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatSQL     Format = "sql"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatCSV, FormatParquet, FormatSQL:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

// SaveOptions says where Save writes. SQL is required for FormatSQL.
type SaveOptions struct {
	Dir    string
	Format Format
	SQL    *SQLStore
}

// Save writes ds in the requested format, then its manifest into opts.Dir.
// A missing run id and creation time are filled in on ds.Meta.
func Save(ctx context.Context, ds *model.Dataset, rep *preprocess.Report, opts SaveOptions) (*Manifest, error) {
	if ds.Name == "" {
		return nil, errors.New("dataset has no name")
	}
	if ds.Meta.RunID == "" {
		ds.Meta.RunID = uuid.NewString()
	}
	if ds.Meta.CreatedAt.IsZero() {
		ds.Meta.CreatedAt = time.Now().UTC()
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, err
	}

	m := &Manifest{
		Name:          ds.Name,
		RunID:         ds.Meta.RunID,
		CreatedAt:     ds.Meta.CreatedAt,
		Format:        opts.Format,
		Step:          ds.Step.String(),
		Rows:          ds.Rows(),
		Columns:       ds.Columns,
		Categories:    ds.Meta.Categories,
		Join:          ds.Meta.Join,
		Fill:          ds.Meta.Fill,
		FillOverrides: ds.Meta.FillOverrides,
		Report:        rep,
	}
	switch opts.Format {
	case FormatCSV, "":
		m.Format = FormatCSV
		m.File = ds.Name + ".csv"
		if err := WriteCSVFile(filepath.Join(opts.Dir, m.File), ds); err != nil {
			return nil, fmt.Errorf("write csv: %w", err)
		}
	case FormatParquet:
		m.File = ds.Name + ".parquet"
		if err := WriteParquet(filepath.Join(opts.Dir, m.File), ds); err != nil {
			return nil, fmt.Errorf("write parquet: %w", err)
		}
	case FormatSQL:
		if opts.SQL == nil {
			return nil, errors.New("sql format needs a database")
		}
		if err := opts.SQL.Save(ctx, ds); err != nil {
			return nil, fmt.Errorf("write sql: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown output format %q", opts.Format)
	}
	if err := WriteManifest(opts.Dir, m); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	return m, nil
}

// ReadFile reads a CSV or Parquet dataset, taking the step from a sibling manifest when present.
func ReadFile(path string) (*model.Dataset, error) {
	var (
		ds  *model.Dataset
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		ds, err = ReadCSVFile(path)
	case ".parquet":
		ds, err = ReadParquet(path)
	default:
		return nil, fmt.Errorf("unsupported dataset file %q", path)
	}
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &model.Error{Kind: model.KindNotFound, Path: path, Msg: "no such dataset file"}
		}
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if m, err := ReadManifest(ManifestPath(filepath.Dir(path), name)); err == nil {
		if step, err := time.ParseDuration(m.Step); err == nil {
			ds.Step = step
		}
		ds.Name = m.Name
		ds.Meta = model.DatasetMeta{RunID: m.RunID, CreatedAt: m.CreatedAt, Categories: m.Categories, Join: m.Join, Fill: m.Fill, FillOverrides: m.FillOverrides}
	}
	if ds.Name == "" {
		ds.Name = name
	}
	return ds, nil
}

// Open loads a dataset by name from dir using its manifest, or from the SQL store for sql manifests.
func Open(ctx context.Context, dir, name string, db *SQLStore) (*model.Dataset, error) {
	m, err := ReadManifest(ManifestPath(dir, name))
	if err != nil {
		return nil, err
	}
	if m.Format == FormatSQL {
		if db == nil {
			return nil, fmt.Errorf("dataset %q is stored in a database", name)
		}
		return db.Load(ctx, name)
	}
	return ReadFile(filepath.Join(dir, m.File))
}
