package export_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"docpipe/internal/export"
	"docpipe/internal/records"
)

func sampleMapping() *records.SchemaMapping {
	return &records.SchemaMapping{
		Customers: []records.MappedRecord{{
			ID:              "c1",
			SourceReference: records.SourceRef(1, "Mario Rossi"),
			Confidence:      0.9,
			Fields:          map[string]any{"nome": "Mario", "cognome": "Rossi", "note_extra": "vip"},
		}},
		Transactions: []records.MappedRecord{{
			ID:              "t1",
			SourceReference: records.SourceRef(2, "bonifico"),
			Confidence:      0.7,
			Fields:          map[string]any{"importo": 120.5, "valuta": "EUR"},
		}},
		Success: true,
	}
}

func TestWorkbookSheetsAndRows(t *testing.T) {
	review := &records.Review{
		Issues: []records.Issue{{ID: "i1", Type: "missing_required", Severity: "high", RecordType: "customer", RecordID: "c1", Field: "codice_fiscale", Reason: "missing", DecisionRequired: true}},
	}
	data, err := export.Workbook(sampleMapping(), review, records.DefaultDomain())
	if err != nil {
		t.Fatalf("Workbook: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	want := []string{"customers", "policies", "transactions", "tickets", "review"}
	got := f.GetSheetList()
	if len(got) != len(want) {
		t.Fatalf("sheets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sheet %d = %q, want %q", i, got[i], want[i])
		}
	}

	rows, err := f.GetRows("customers")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("customer rows = %d, want 2", len(rows))
	}
	header := rows[0]
	if header[0] != "id" || header[4] != "nome" {
		t.Fatalf("unexpected header %v", header)
	}
	if header[len(header)-1] != "note_extra" {
		t.Fatalf("extra field column missing, header %v", header)
	}
	if rows[1][0] != "c1" || rows[1][4] != "Mario" {
		t.Fatalf("unexpected row %v", rows[1])
	}

	issues, err := f.GetRows("review")
	if err != nil {
		t.Fatalf("GetRows review: %v", err)
	}
	if len(issues) != 2 || issues[1][0] != "i1" {
		t.Fatalf("unexpected review rows %v", issues)
	}
}

func TestWorkbookOmitsReviewSheetWithoutReview(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db_ready.xlsx")
	if err := export.WriteWorkbook(path, sampleMapping(), nil, records.DefaultDomain()); err != nil {
		t.Fatalf("WriteWorkbook: %v", err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if idx, _ := f.GetSheetIndex("review"); idx != -1 {
		t.Fatalf("review sheet present without review")
	}
}

func TestWorkbookRequiresMapping(t *testing.T) {
	if _, err := export.Workbook(nil, nil, records.DefaultDomain()); err == nil {
		t.Fatal("expected error for nil mapping")
	}
}
