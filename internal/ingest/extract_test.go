package ingest

import "testing"

func TestExtractFromText(t *testing.T) {
	text := `Annual Report 2023
Total Revenue for the period was 4,500,000 compared to prior year.
The company recorded a Net Income of 320,000.
Total Assets stood at 9,100,000 while Total Liabilities were 2,750,000.`

	data := ExtractFromText(text)

	if data.Revenue == nil || *data.Revenue != 4500000 {
		t.Errorf("revenue = %v, want 4500000", data.Revenue)
	}
	if data.NetIncome == nil || *data.NetIncome != 320000 {
		t.Errorf("net income = %v, want 320000", data.NetIncome)
	}
	if data.Assets == nil || *data.Assets != 9100000 {
		t.Errorf("assets = %v, want 9100000", data.Assets)
	}
	if data.Liabilities == nil || *data.Liabilities != 2750000 {
		t.Errorf("liabilities = %v, want 2750000", data.Liabilities)
	}
}

func TestExtractFromTextMissingMetrics(t *testing.T) {
	data := ExtractFromText("This report mentions revenue growth but lists no figures for it anywhere near.")
	// "growth" and the rest of the sentence contain no digits within range.
	if data.Revenue != nil {
		t.Errorf("revenue = %v, want nil when no number is nearby", *data.Revenue)
	}
	if data.NetIncome != nil || data.Assets != nil || data.Liabilities != nil {
		t.Error("metrics absent from the text should stay nil")
	}
}

func TestExtractFromTextEmpty(t *testing.T) {
	data := ExtractFromText("   \n  ")
	if data.Revenue != nil || data.NetIncome != nil || data.Assets != nil || data.Liabilities != nil {
		t.Error("blank text should yield no metrics")
	}
}

func TestFinancialDataRows(t *testing.T) {
	revenue := 100.0
	assets := 500.0
	data := &FinancialData{Revenue: &revenue, Assets: &assets}

	rows := data.Rows("Acme Corp", 2023, "USD")
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Metric != "revenue" || rows[0].Value != 100 {
		t.Errorf("unexpected first row: %+v", rows[0])
	}
	if rows[1].Metric != "total assets" || rows[1].Year != 2023 {
		t.Errorf("unexpected second row: %+v", rows[1])
	}
}

func TestChunkText(t *testing.T) {
	got := ChunkText("Acme Corp", 2023, "revenue", 1250000.5, "USD")
	want := "Acme Corp, 2023, revenue: 1250000.5 USD"
	if got != want {
		t.Errorf("ChunkText = %q, want %q", got, want)
	}
}

func TestChunkID(t *testing.T) {
	got := ChunkID(7, 2023, "Total Assets")
	want := "company_7_year_2023_metric_total_assets"
	if got != want {
		t.Errorf("ChunkID = %q, want %q", got, want)
	}
}
