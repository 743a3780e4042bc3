package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadReader(t *testing.T) {
	csvData := `step,type,amount,nameOrig,nameDest,isFraud
1,PAYMENT,9839.64,C1231006815,M1979787155,0
1,TRANSFER, 181.0 ,C1305486145,C553264065,1
2,CASH_OUT,229133.94,C905080434
`
	records, err := NewLoader().LoadReader(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	first := records[0]
	if first.Step != "1" || first.Type != "PAYMENT" || first.Amount != "9839.64" ||
		first.NameOrig != "C1231006815" || first.NameDest != "M1979787155" {
		t.Errorf("first record = %+v", first)
	}
	if records[1].Amount != "181.0" {
		t.Errorf("amount not trimmed: %q", records[1].Amount)
	}
	// The short row has no nameDest column; it comes back empty.
	if records[2].NameDest != "" {
		t.Errorf("short row nameDest = %q, want empty", records[2].NameDest)
	}
}

func TestLoadReaderMissingColumns(t *testing.T) {
	csvData := "step,type,nameOrig\n1,PAYMENT,C1\n"

	_, err := NewLoader().LoadReader(strings.NewReader(csvData))
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if len(schemaErr.Missing) != 2 || schemaErr.Missing[0] != "amount" || schemaErr.Missing[1] != "nameDest" {
		t.Errorf("missing = %v, want [amount nameDest]", schemaErr.Missing)
	}
}

func TestLoadReaderEmptyInput(t *testing.T) {
	_, err := NewLoader().LoadReader(strings.NewReader(""))
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError for empty input, got %v", err)
	}
	if len(schemaErr.Missing) != 5 {
		t.Errorf("missing = %v, want all five columns", schemaErr.Missing)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	csvData := "step,type,amount,nameOrig,nameDest\n5,DEBIT,42.50,C1,M1\n"
	if err := os.WriteFile(path, []byte(csvData), 0o644); err != nil {
		t.Fatal(err)
	}

	records, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(records) != 1 || records[0].Amount != "42.50" {
		t.Errorf("records = %+v", records)
	}

	if _, err := NewLoader().Load(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	records := []RawRecord{
		{Step: "1", Type: "PAYMENT", Amount: "100", NameOrig: "C1", NameDest: "M1"},
		{Step: "1", Type: "PAYMENT", Amount: "100", NameOrig: "C1", NameDest: "M1"},
		{Step: "2", Type: "", Amount: "-5", NameOrig: "C2", NameDest: "M2"},
		{Step: "3", Type: "transfer", Amount: "0", NameOrig: "C3", NameDest: ""},
		{Step: "x", Type: "DEBIT", Amount: "abc", NameOrig: "C4", NameDest: "M4"},
	}

	report := Validate(records)
	if report.TotalRows != 5 {
		t.Errorf("total rows = %d", report.TotalRows)
	}
	if report.DuplicateRows != 1 {
		t.Errorf("duplicates = %d, want 1", report.DuplicateRows)
	}
	if report.NegativeAmounts != 1 || report.ZeroAmounts != 1 {
		t.Errorf("negative/zero = %d/%d, want 1/1", report.NegativeAmounts, report.ZeroAmounts)
	}
	if report.MissingValues["type"] != 1 || report.MissingValues["nameDest"] != 1 {
		t.Errorf("missing values = %v", report.MissingValues)
	}
	if report.TypeDistribution["PAYMENT"] != 2 || report.TypeDistribution["TRANSFER"] != 1 {
		t.Errorf("type distribution = %v", report.TypeDistribution)
	}
	if !report.Valid {
		t.Error("batch with usable rows reported invalid")
	}
	if len(report.Issues) == 0 {
		t.Error("expected issues to be reported")
	}
}

func TestValidateNothingUsable(t *testing.T) {
	report := Validate([]RawRecord{
		{Step: "1", Type: "PAYMENT", Amount: "oops", NameOrig: "C1", NameDest: "M1"},
		{Step: "1", Type: "PAYMENT", Amount: "-10", NameOrig: "C1", NameDest: "M1"},
	})
	if report.Valid {
		t.Error("batch with no usable rows reported valid")
	}

	if empty := Validate(nil); empty.Valid {
		t.Error("empty batch reported valid")
	}
}
