package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"epf-data/internal/model"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver
)

type Backend string

const (
	SQLite     Backend = "sqlite"
	PostgreSQL Backend = "postgresql"
	MySQL      Backend = "mysql"
)

const (
	datasetsTable = "epf_datasets"
	valuesTable   = "epf_dataset_values"
)

// SQLStore keeps datasets in two tables: one row per dataset and one row per cell.
type SQLStore struct {
	db      *sql.DB
	backend Backend
}

// DatasetInfo is a dataset listing entry.
type DatasetInfo struct {
	Name      string        `json:"name"`
	RunID     string        `json:"run_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	Step      time.Duration `json:"step"`
	Rows      int           `json:"rows"`
	Columns   []string      `json:"columns"`
}

// OpenSQL connects to the backend and creates the tables if needed.
func OpenSQL(ctx context.Context, backend Backend, dsn string) (*SQLStore, error) {
	var driver string
	switch backend {
	case SQLite:
		driver = "sqlite"
	case PostgreSQL:
		driver = "pgx"
	case MySQL:
		driver = "mysql"
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", backend, err)
	}
	if backend == SQLite {
		// a single connection keeps ":memory:" databases shared and avoids "database is locked"
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", backend, err)
	}
	s := &SQLStore{db: db, backend: backend}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create dataset tables: %w", err)
	}
	return s, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) createTables(ctx context.Context) error {
	text, double, bigint := "TEXT", "REAL", "INTEGER"
	switch s.backend {
	case PostgreSQL:
		double, bigint = "DOUBLE PRECISION", "BIGINT"
	case MySQL:
		text, double, bigint = "VARCHAR(255)", "DOUBLE", "BIGINT"
	}
	queries := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name %s NOT NULL PRIMARY KEY,
			run_id %s,
			created_at %s NOT NULL,
			step_ns %s NOT NULL,
			columns_json TEXT NOT NULL
		)`, datasetsTable, text, text, bigint, bigint),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name %s NOT NULL,
			row_idx %s NOT NULL,
			start_ns %s NOT NULL,
			column_idx %s NOT NULL,
			value %s,
			PRIMARY KEY (name, row_idx, column_idx)
		)`, valuesTable, text, bigint, bigint, bigint, double),
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// ph returns the n-th (1-based) placeholder for the backend.
func (s *SQLStore) ph(n int) string {
	if s.backend == PostgreSQL {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = s.ph(i + 1)
	}
	return strings.Join(parts, ", ")
}

// Save replaces any stored dataset with the same name.
func (s *SQLStore) Save(ctx context.Context, ds *model.Dataset) error {
	if ds.Name == "" {
		return errors.New("dataset has no name")
	}
	cols, err := json.Marshal(ds.Columns)
	if err != nil {
		return err
	}
	created := ds.Meta.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{valuesTable, datasetsTable} {
		q := fmt.Sprintf(`DELETE FROM %s WHERE name = %s`, table, s.ph(1))
		if _, err := tx.ExecContext(ctx, q, ds.Name); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	q := fmt.Sprintf(`INSERT INTO %s (name, run_id, created_at, step_ns, columns_json) VALUES (%s)`,
		datasetsTable, s.placeholders(5))
	if _, err := tx.ExecContext(ctx, q, ds.Name, ds.Meta.RunID, created.UnixNano(), int64(ds.Step), string(cols)); err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (name, row_idx, start_ns, column_idx, value) VALUES (%s)`, valuesTable, s.placeholders(5)))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for r, ts := range ds.Index {
		for c, v := range ds.Values[r] {
			var val sql.NullFloat64
			if !math.IsNaN(v) {
				val = sql.NullFloat64{Float64: v, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, ds.Name, r, ts.UnixNano(), c, val); err != nil {
				return fmt.Errorf("insert row %d: %w", r, err)
			}
		}
	}
	return tx.Commit()
}

// Load reads a dataset back; an unknown name is a NotFound error.
func (s *SQLStore) Load(ctx context.Context, name string) (*model.Dataset, error) {
	info, err := s.info(ctx, name)
	if err != nil {
		return nil, err
	}
	ds := &model.Dataset{
		Name:    name,
		Step:    info.Step,
		Columns: info.Columns,
		Meta:    model.DatasetMeta{RunID: info.RunID, CreatedAt: info.CreatedAt},
	}
	q := fmt.Sprintf(`SELECT row_idx, start_ns, column_idx, value FROM %s WHERE name = %s ORDER BY row_idx, column_idx`,
		valuesTable, s.ph(1))
	rows, err := s.db.QueryContext(ctx, q, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			rowIdx, colIdx int
			start          int64
			val            sql.NullFloat64
		)
		if err := rows.Scan(&rowIdx, &start, &colIdx, &val); err != nil {
			return nil, err
		}
		for len(ds.Index) <= rowIdx {
			row := make([]float64, len(ds.Columns))
			for i := range row {
				row[i] = math.NaN()
			}
			ds.Index = append(ds.Index, time.Unix(0, start).UTC())
			ds.Values = append(ds.Values, row)
		}
		if colIdx >= len(ds.Columns) {
			return nil, &model.Error{Kind: model.KindSchemaMismatch, Msg: fmt.Sprintf("column index %d out of range", colIdx)}
		}
		if val.Valid {
			ds.Values[rowIdx][colIdx] = val.Float64
		}
	}
	return ds, rows.Err()
}

func (s *SQLStore) info(ctx context.Context, name string) (DatasetInfo, error) {
	q := fmt.Sprintf(`SELECT name, run_id, created_at, step_ns, columns_json FROM %s WHERE name = %s`, datasetsTable, s.ph(1))
	info, err := scanInfo(s.db.QueryRowContext(ctx, q, name))
	if errors.Is(err, sql.ErrNoRows) {
		return info, &model.Error{Kind: model.KindNotFound, Msg: fmt.Sprintf("dataset %q not found", name)}
	}
	return info, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInfo(row scanner) (DatasetInfo, error) {
	var (
		info    DatasetInfo
		runID   sql.NullString
		created int64
		step    int64
		cols    string
	)
	if err := row.Scan(&info.Name, &runID, &created, &step, &cols); err != nil {
		return info, err
	}
	info.RunID = runID.String
	info.CreatedAt = time.Unix(0, created).UTC()
	info.Step = time.Duration(step)
	if err := json.Unmarshal([]byte(cols), &info.Columns); err != nil {
		return info, fmt.Errorf("decode columns of %q: %w", info.Name, err)
	}
	return info, nil
}

// List returns every stored dataset sorted by name, with row counts.
func (s *SQLStore) List(ctx context.Context) ([]DatasetInfo, error) {
	q := fmt.Sprintf(`SELECT name, run_id, created_at, step_ns, columns_json FROM %s ORDER BY name`, datasetsTable)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	var out []DatasetInfo
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, info)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	count := fmt.Sprintf(`SELECT COUNT(DISTINCT row_idx) FROM %s WHERE name = %s`, valuesTable, s.ph(1))
	for i := range out {
		if err := s.db.QueryRowContext(ctx, count, out[i].Name).Scan(&out[i].Rows); err != nil {
			return nil, err
		}
	}
	return out, nil
}
