// Package report renders analytics rollups as an aligned table, CSV or XLSX.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/rfq-cli/internal/analytics"
	"github.com/sells-group/rfq-cli/internal/model"
)

// Format selects the output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
	FormatXLSX  Format = "xlsx"
)

// ParseFormat maps a flag value to a Format. Empty means table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", eris.Errorf("report: unknown format %q (want table, csv or xlsx)", s)
	}
}

// sheet is a header plus rows of already formatted cells.
type sheet struct {
	name   string
	header []string
	rows   [][]string
}

// WriteBusinessCase writes the vendors of bc in rank order.
func WriteBusinessCase(w io.Writer, bc analytics.BusinessCase, f Format) error {
	return write(w, f, businessCaseSheet(bc))
}

// WriteRuleSummary writes one row per rule with its action counts.
func WriteRuleSummary(w io.Writer, s analytics.RuleTriggerSummary, f Format) error {
	return write(w, f, ruleSummarySheet(s))
}

func businessCaseSheet(bc analytics.BusinessCase) sheet {
	sh := sheet{
		name:   "Business Case",
		header: []string{"OEM", "OCCURRENCES", "TOTAL VALUE", "FIRST SEEN", "LAST SEEN"},
	}
	for _, v := range bc.Vendors {
		sh.rows = append(sh.rows, []string{
			v.OEM,
			strconv.Itoa(v.OccurrenceCount),
			v.TotalValue.StringFixed(2),
			formatDate(v.FirstSeen),
			formatDate(v.LastSeen),
		})
	}
	return sh
}

func ruleSummarySheet(s analytics.RuleTriggerSummary) sheet {
	sh := sheet{
		name:   "Rule Triggers",
		header: []string{"RULE", "PASS", "FLAG", "AUTO_DECLINE"},
	}
	ids := make([]string, 0, len(s.ByRule))
	for id := range s.ByRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		counts := s.ByRule[id]
		sh.rows = append(sh.rows, []string{
			id,
			strconv.Itoa(counts[model.ActionPass]),
			strconv.Itoa(counts[model.ActionFlag]),
			strconv.Itoa(counts[model.ActionAutoDecline]),
		})
	}
	return sh
}

func write(w io.Writer, f Format, sh sheet) error {
	switch f {
	case FormatTable, "":
		return writeTable(w, sh)
	case FormatCSV:
		return writeCSV(w, sh)
	case FormatXLSX:
		return writeXLSX(w, sh)
	default:
		return eris.Errorf("report: unknown format %q", f)
	}
}

func writeTable(w io.Writer, sh sheet) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(sh.header, "\t")) //nolint:errcheck
	for _, row := range sh.rows {
		fmt.Fprintln(tw, strings.Join(row, "\t")) //nolint:errcheck
	}
	if err := tw.Flush(); err != nil {
		return eris.Wrap(err, "report: flush table")
	}
	return nil
}

func writeCSV(w io.Writer, sh sheet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(sh.header); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}
	if err := cw.WriteAll(sh.rows); err != nil {
		return eris.Wrap(err, "report: write csv rows")
	}
	return nil
}

func writeXLSX(w io.Writer, sh sheet) error {
	f := xlsx.NewFile()
	s, err := f.AddSheet(sh.name)
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}
	addRow(s, sh.header)
	for _, row := range sh.rows {
		addRow(s, row)
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write xlsx")
	}
	return nil
}

func addRow(s *xlsx.Sheet, cells []string) {
	row := s.AddRow()
	for _, v := range cells {
		cell := row.AddCell()
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			cell.SetFloat(n)
			continue
		}
		cell.SetString(v)
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}
