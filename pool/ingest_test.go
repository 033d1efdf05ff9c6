package pool

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]any) *bytes.Reader {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cellRef, &row); err != nil {
			t.Fatalf("set row %d: %v", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestParseWorkbook(t *testing.T) {
	r := buildWorkbook(t, [][]any{
		{"Name", "Phone", "Email", "Social", "Licensed"},
		{"Jamie Ortega", "555-0100", "jamie@example.com", "@jamie", "yes"},
		{"Riley Chen", "555-0101", "", "", "no"},
		{"", "555-0102", "", "", ""}, // no name, skipped
		{"Sam Patel", "", "", "", ""}, // no phone, skipped
	})

	leads, err := ParseWorkbook(r)
	if err != nil {
		t.Fatalf("parse workbook: %v", err)
	}

	if len(leads) != 2 {
		t.Fatalf("expected 2 leads, got %d", len(leads))
	}
	if leads[0].FullName != "Jamie Ortega" || !leads[0].Licensed {
		t.Fatalf("unexpected first lead: %+v", leads[0])
	}
	if leads[0].SourceRow != 2 {
		t.Fatalf("expected provenance row 2, got %d", leads[0].SourceRow)
	}
	if leads[1].FullName != "Riley Chen" || leads[1].Licensed {
		t.Fatalf("unexpected second lead: %+v", leads[1])
	}
}

func TestParseWorkbook_MissingColumns(t *testing.T) {
	r := buildWorkbook(t, [][]any{
		{"Name", "Email"},
		{"Jamie Ortega", "jamie@example.com"},
	})

	if _, err := ParseWorkbook(r); err == nil {
		t.Fatal("expected error for workbook without phone column")
	}
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"true", "Yes", "y", "1", "LICENSED"} {
		if !parseBool(s) {
			t.Errorf("expected %q to parse as true", s)
		}
	}
	for _, s := range []string{"", "no", "0", "unlicensed"} {
		if parseBool(s) {
			t.Errorf("expected %q to parse as false", s)
		}
	}
}
