// Package render prints report tables as aligned markdown-style text.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"adreport/internal/model"
)

// Table renders a header and rows. Column widths use display width so that
// symbols like € and ¥ line up.
func Table(w io.Writer, columns []string, rows [][]string) error {
	colCount := len(columns)
	for _, row := range rows {
		if len(row) > colCount {
			colCount = len(row)
		}
	}
	if colCount == 0 {
		return nil
	}

	colWidths := make([]int, colCount)
	measure := func(row []string) {
		for i := 0; i < len(row) && i < colCount; i++ {
			if width := runewidth.StringWidth(row[i]); width > colWidths[i] {
				colWidths[i] = width
			}
		}
	}
	measure(columns)
	for _, row := range rows {
		measure(row)
	}
	for i := range colWidths {
		if colWidths[i] < 3 {
			colWidths[i] = 3
		}
	}

	separator := make([]string, colCount)
	for i := range separator {
		separator[i] = strings.Repeat("-", colWidths[i])
	}

	lines := make([]string, 0, len(rows)+2)
	lines = append(lines, formatRow(columns, colWidths), formatRow(separator, colWidths))
	for _, row := range rows {
		lines = append(lines, formatRow(row, colWidths))
	}

	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

func formatRow(row []string, colWidths []int) string {
	var sb strings.Builder
	sb.WriteString("|")
	for j := range colWidths {
		content := ""
		if j < len(row) {
			content = row[j]
		}
		sb.WriteString(" ")
		sb.WriteString(content)
		if padding := colWidths[j] - runewidth.StringWidth(content); padding > 0 {
			sb.WriteString(strings.Repeat(" ", padding))
		}
		sb.WriteString(" |")
	}
	return sb.String()
}

// RawTable renders a table as fetched.
func RawTable(w io.Writer, table model.RawTable) error {
	return Table(w, table.Columns, table.Rows)
}

// ReportRows renders aggregated rows in the canonical column order.
func ReportRows(w io.Writer, rows []model.ReportRow) error {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = []string{
			row.Date.Format(model.StorageDateLayout),
			row.App,
			row.Platform,
			strconv.FormatInt(row.Requests, 10),
			strconv.FormatInt(row.Impressions, 10),
			row.Revenue.StringFixed(2),
		}
	}
	return Table(w, model.CanonicalColumns, out)
}
