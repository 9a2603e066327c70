// Package export renders mapped records as an XLSX workbook: one sheet per
// target table plus a review sheet when a review is available.
package export

import (
	"fmt"
	"slices"
	"sort"

	"github.com/xuri/excelize/v2"

	"docpipe/internal/fileutil"
	"docpipe/internal/records"
)

const reviewSheet = "review"

var baseHeaders = []string{"id", "page", "snippet", "confidence"}

// Workbook returns the XLSX bytes for mapping (and review, if non-nil).
func Workbook(mapping *records.SchemaMapping, review *records.Review, domain records.Domain) ([]byte, error) {
	if mapping == nil {
		return nil, fmt.Errorf("export: no mapped records")
	}
	f := excelize.NewFile()
	defer f.Close()

	for i, recordType := range records.RecordTypes {
		sheet := sheetName(recordType)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return nil, fmt.Errorf("export: rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("export: new sheet %s: %w", sheet, err)
		}
		rows := mapping.Table(recordType)
		columns := fieldColumns(domain.Tables[recordType].Fields, rows)
		headers := append(slices.Clone(baseHeaders), columns...)
		if err := writeRow(f, sheet, 1, headers); err != nil {
			return nil, err
		}
		for r, record := range rows {
			values := []any{record.ID, record.SourceReference.Page, record.SourceReference.Snippet, record.Confidence}
			for _, column := range columns {
				values = append(values, cellValue(record.Fields[column]))
			}
			if err := writeRow(f, sheet, r+2, values); err != nil {
				return nil, err
			}
		}
		_ = f.SetColWidth(sheet, "A", "A", 20)
		_ = f.SetColWidth(sheet, "C", "C", 48)
	}

	if review != nil {
		if _, err := f.NewSheet(reviewSheet); err != nil {
			return nil, fmt.Errorf("export: new sheet %s: %w", reviewSheet, err)
		}
		headers := []any{"issue", "type", "severity", "record_type", "record_id", "field", "reason", "suggestion", "decision_required"}
		if err := writeRow(f, reviewSheet, 1, headers); err != nil {
			return nil, err
		}
		for r, issue := range review.Issues {
			values := []any{issue.ID, issue.Type, issue.Severity, issue.RecordType, issue.RecordID, issue.Field, issue.Reason, issue.Suggestion, issue.DecisionRequired}
			if err := writeRow(f, reviewSheet, r+2, values); err != nil {
				return nil, err
			}
		}
		_ = f.SetColWidth(reviewSheet, "G", "H", 48)
	}

	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("export: xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteWorkbook renders the workbook and writes it atomically to path.
func WriteWorkbook(path string, mapping *records.SchemaMapping, review *records.Review, domain records.Domain) error {
	data, err := Workbook(mapping, review, domain)
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, data, 0o644)
}

func sheetName(recordType records.RecordType) string {
	switch recordType {
	case records.Customer:
		return "customers"
	case records.Policy:
		return "policies"
	case records.Transaction:
		return "transactions"
	case records.Ticket:
		return "tickets"
	default:
		return string(recordType)
	}
}

// fieldColumns lists the schema columns first, then any extra keys the
// records carry, sorted.
func fieldColumns(schema []string, rows []records.MappedRecord) []string {
	columns := slices.Clone(schema)
	seen := make(map[string]struct{}, len(columns))
	for _, column := range columns {
		seen[column] = struct{}{}
	}
	var extra []string
	for _, row := range rows {
		for key := range row.Fields {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	return append(columns, extra...)
}

func cellValue(v any) any {
	switch value := v.(type) {
	case nil:
		return ""
	case string, bool, float64, int, int64:
		return value
	default:
		return fmt.Sprint(value)
	}
}

func writeRow[T any](f *excelize.File, sheet string, row int, values []T) error {
	for i, value := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return fmt.Errorf("export: cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("export: set %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}
