// Package ingest reads RFQ attribute records from CSV and XLSX exports.
package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/rfq-cli/internal/model"
)

// Columns are the header names recognised in an import file. Matching is
// case-insensitive; unknown columns are ignored.
var Columns = []string{
	"id",
	"customer",
	"estimated_value",
	"competition_level",
	"tech_vertical",
	"oem",
	"has_previous_contract",
	"deadline",
	"rfq_type",
	"quantity",
	"complexity_flags",
}

// Row is one parsed data line. Line is 1-based and counts the header.
type Row struct {
	Line int
	RFQ  *model.RFQ
	Err  error
}

// ReadFile parses path as CSV or XLSX based on its extension.
func ReadFile(ctx context.Context, path string) ([]Row, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		records, err := readXLSX(path)
		if err != nil {
			return nil, err
		}
		return parseRecords(records, nil)
	case ".csv", "":
		f, err := os.Open(path) //nolint:gosec
		if err != nil {
			return nil, eris.Wrap(err, "ingest: open file")
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(ctx, f)
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}
}

// ReadCSV parses a CSV stream whose first line is the header.
func ReadCSV(ctx context.Context, r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // allow variable fields
	reader.TrimLeadingSpace = true

	var records [][]string
	var lines []int
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "ingest: context cancelled")
		}
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read csv row")
		}
		line, _ := reader.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	return parseRecords(records, lines)
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("ingest: xlsx has no sheets")
	}

	var records [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}
	return records, nil
}

// parseRecords maps data records through the header. lines holds the source
// line of each record; when nil the record index is used.
func parseRecords(records [][]string, lines []int) ([]Row, error) {
	if len(records) == 0 {
		return nil, eris.New("ingest: missing header row")
	}

	index := make(map[string]int)
	for i, h := range records[0] {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	known := 0
	for _, c := range Columns {
		if _, ok := index[c]; ok {
			known++
		}
	}
	if known == 0 {
		return nil, eris.Errorf("ingest: header has none of the known columns %v", Columns)
	}

	rows := make([]Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		line := i + 2
		if lines != nil {
			line = lines[i+1]
		}
		r, err := parseRecord(index, rec)
		rows = append(rows, Row{Line: line, RFQ: r, Err: err})
	}
	return rows, nil
}

func parseRecord(index map[string]int, rec []string) (*model.RFQ, error) {
	get := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	r := &model.RFQ{
		ID:           get("id"),
		Customer:     get("customer"),
		TechVertical: get("tech_vertical"),
		OEM:          get("oem"),
		RFQType:      get("rfq_type"),
	}

	if v := get("estimated_value"); v != "" {
		d, err := decimal.NewFromString(strings.NewReplacer("$", "", ",", "").Replace(v))
		if err != nil {
			return nil, model.NewAttributeError("estimated_value", "not a number: "+v)
		}
		r.EstimatedValue = &d
	}
	if v := get("competition_level"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, model.NewAttributeError("competition_level", "not an integer: "+v)
		}
		r.CompetitionLevel = &n
	}
	if v := get("has_previous_contract"); v != "" {
		b, err := parseBool(v)
		if err != nil {
			return nil, model.NewAttributeError("has_previous_contract", "not a boolean: "+v)
		}
		r.HasPreviousContract = b
	}
	if v := get("deadline"); v != "" {
		ts, err := ParseTime(v)
		if err != nil {
			return nil, model.NewAttributeError("deadline", "not a date: "+v)
		}
		r.Deadline = &ts
	}
	if v := get("quantity"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, model.NewAttributeError("quantity", "not an integer: "+v)
		}
		r.Quantity = n
	}
	if v := get("complexity_flags"); v != "" {
		for _, f := range strings.Split(v, ";") {
			if f = strings.TrimSpace(f); f != "" {
				r.ComplexityFlags = append(r.ComplexityFlags, f)
			}
		}
	}

	r.Normalize()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// ParseTime accepts RFC 3339 timestamps or bare dates, read as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04", time.DateOnly, "01/02/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("ingest: unrecognised time %q", s)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
