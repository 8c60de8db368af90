package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	apperrors "adreport/internal/errors"
	"adreport/internal/model"
)

// SchemaOptions tunes NormalizeSchema.
type SchemaOptions struct {
	// KeepTotals disables the trailing totals-row heuristic.
	KeepTotals bool
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseCSV turns a fetched report into a table. The first record is the
// header; blank lines are skipped.
func ParseCSV(raw []byte) (model.RawTable, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, utf8BOM)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var table model.RawTable
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return model.RawTable{}, apperrors.Wrap(apperrors.CategorySchema, apperrors.CodeMalformedTable, "unreadable report", err).
				WithStage(apperrors.StageSchemaNormalize)
		}
		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		if table.Columns == nil {
			table.Columns = record
			continue
		}
		if len(record) != len(table.Columns) {
			return model.RawTable{}, apperrors.NewSchemaError(apperrors.CodeRaggedRow,
				fmt.Sprintf("row %d has %d fields, header has %d", line, len(record), len(table.Columns)))
		}
		table.Rows = append(table.Rows, record)
	}

	if table.Columns == nil {
		return model.RawTable{}, apperrors.NewSchemaError(apperrors.CodeEmptyReport, "report has no header")
	}
	return table, nil
}

// NormalizeSchema aligns the first five column labels with the canonical
// schema and drops a trailing totals row. The revenue label is kept as is
// because it may carry a currency suffix.
func NormalizeSchema(table model.RawTable, opts SchemaOptions) (model.RawTable, error) {
	if len(table.Columns) != len(model.CanonicalColumns) {
		return model.RawTable{}, apperrors.NewSchemaError(apperrors.CodeColumnMismatch,
			fmt.Sprintf("expected %d columns, got %d", len(model.CanonicalColumns), len(table.Columns)))
	}
	if table.Len() == 0 {
		return model.RawTable{}, apperrors.NewSchemaError(apperrors.CodeEmptyReport, "report has no rows")
	}
	for i, row := range table.Rows {
		if len(row) != len(table.Columns) {
			return model.RawTable{}, apperrors.NewSchemaError(apperrors.CodeRaggedRow,
				fmt.Sprintf("row %d has %d fields, header has %d", i+1, len(row), len(table.Columns)))
		}
	}

	out := table.Clone()
	revenue := len(model.CanonicalColumns) - 1
	copy(out.Columns[:revenue], model.CanonicalColumns[:revenue])

	if !opts.KeepTotals && IsTotalsRow(out) {
		out.Rows = out.Rows[:len(out.Rows)-1]
	}
	return out, nil
}

// HasCanonicalLabels reports whether the first five labels already match.
func HasCanonicalLabels(columns []string) bool {
	revenue := len(model.CanonicalColumns) - 1
	if len(columns) < revenue {
		return false
	}
	for i := 0; i < revenue; i++ {
		if columns[i] != model.CanonicalColumns[i] {
			return false
		}
	}
	return true
}

// IsTotalsRow reports whether the last row looks like a totals row: it must
// be the only row whose Date differs from the first row's Date.
func IsTotalsRow(table model.RawTable) bool {
	if table.Len() < 2 || len(table.Rows[0]) == 0 {
		return false
	}
	first := table.Rows[0][0]
	match := -1
	for i := 1; i < table.Len(); i++ {
		if len(table.Rows[i]) == 0 || table.Rows[i][0] == first {
			continue
		}
		if match != -1 {
			return false
		}
		match = i
	}
	return match == table.Len()-1
}
