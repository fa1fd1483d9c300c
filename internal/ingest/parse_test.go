package ingest

import (
	"strings"
	"testing"
)

func TestParseCSV(t *testing.T) {
	input := strings.Join([]string{
		"Company Name,Year,Metric,Value,Currency",
		"Acme Corp,2023,Revenue,1250000.50,USD",
		"Acme Corp,2023,Total Assets,\"3,400,000\",USD",
		"Rival Inc,2022,Net Income,88000,EUR",
	}, "\n")

	rows, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	first := rows[0]
	if first.CompanyName != "Acme Corp" || first.Year != 2023 || first.Metric != "revenue" {
		t.Errorf("unexpected first row: %+v", first)
	}
	if first.Value != 1250000.50 {
		t.Errorf("first row value = %v, want 1250000.50", first.Value)
	}
	if rows[1].Value != 3400000 {
		t.Errorf("thousands separators not stripped: %v", rows[1].Value)
	}
	if rows[2].Currency != "EUR" {
		t.Errorf("currency = %q, want EUR", rows[2].Currency)
	}
}

func TestParseCSVMissingColumns(t *testing.T) {
	input := "Company Name,Year,Value\nAcme,2023,100\n"
	_, err := ParseCSV(strings.NewReader(input))
	if err == nil {
		t.Fatal("expected error for missing columns")
	}
	if !strings.Contains(err.Error(), "Metric") {
		t.Errorf("error should name the missing column, got %v", err)
	}
}

func TestParseCSVSkipsBlankRows(t *testing.T) {
	input := strings.Join([]string{
		"Company Name,Year,Metric,Value,Currency",
		"Acme Corp,2023,Revenue,100,USD",
		",,,,",
		"Acme Corp,2023,,50,USD",
	}, "\n")

	rows, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected blank and partial rows skipped, got %d rows", len(rows))
	}
}

func TestParseCSVDefaultCurrency(t *testing.T) {
	input := "Company Name,Year,Metric,Value,Currency\nAcme,2023,Revenue,100,\n"
	rows, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if rows[0].Currency != "USD" {
		t.Errorf("empty currency should default to USD, got %q", rows[0].Currency)
	}
}

func TestParseCSVInvalidYear(t *testing.T) {
	input := "Company Name,Year,Metric,Value,Currency\nAcme,23x,Revenue,100,USD\n"
	if _, err := ParseCSV(strings.NewReader(input)); err == nil {
		t.Fatal("expected error for unparseable year")
	}
}
