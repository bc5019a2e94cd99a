package loader

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// row is one data line of a raw file; line is the 1-based line (CSV) or row number (XLSX).
type row struct {
	line  int
	cells []string
}

// table is a raw file split into its header and data rows.
type table struct {
	header []string
	rows   []row
	// strict rejects rows whose field count differs from the header.
	strict bool
}

func readTable(path, timeColumn string) (*table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return readXLSX(path, timeColumn)
	default:
		return readCSV(path)
	}
}

func readCSV(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if bom, err := br.Peek(3); err == nil && string(bom) == "\ufeff" {
		_, _ = br.Discard(3)
	}
	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file")
		}
		return nil, err
	}
	t := &table{header: trimAll(header), strict: true}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := r.FieldPos(0)
		if isBlank(rec) {
			continue
		}
		t.rows = append(t.rows, row{line: line, cells: rec})
	}
	return t, nil
}

// readXLSX uses the first sheet whose first non-empty row names the time column.
// Without one it returns the first non-empty sheet so the header check reports the missing columns.
func readXLSX(path, timeColumn string) (*table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var first *table
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		headerIdx := -1
		for i, r := range rows {
			if !isBlank(r) {
				headerIdx = i
				break
			}
		}
		if headerIdx < 0 {
			continue
		}
		t := &table{header: trimAll(rows[headerIdx])}
		for i := headerIdx + 1; i < len(rows); i++ {
			if isBlank(rows[i]) {
				continue
			}
			t.rows = append(t.rows, row{line: i + 1, cells: rows[i]})
		}
		if indexOf(t.header, timeColumn) >= 0 {
			return t, nil
		}
		if first == nil {
			first = t
		}
	}
	if first == nil {
		return nil, fmt.Errorf("workbook has no rows")
	}
	return first, nil
}

func trimAll(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func indexOf(list []string, v string) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return -1
}
