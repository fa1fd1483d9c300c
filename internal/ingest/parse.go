package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Row is one parsed balance-sheet line from an uploaded file.
type Row struct {
	CompanyName string
	Year        int
	Metric      string
	Value       float64
	Currency    string
}

var requiredColumns = []string{"Company Name", "Year", "Metric", "Value", "Currency"}

// ParseCSV reads balance-sheet rows from CSV data. The header must
// carry the required columns; extra columns are ignored.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}
		row, ok, err := buildRow(record, index)
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// ParseXLSX reads balance-sheet rows from the first sheet of an Excel
// workbook.
func ParseXLSX(data []byte) ([]Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheets[0])
	}

	index, err := columnIndex(records[0])
	if err != nil {
		return nil, err
	}

	var rows []Row
	for _, record := range records[1:] {
		row, ok, err := buildRow(record, index)
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// columnIndex maps required column names to their positions.
func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return index, nil
}

// buildRow converts one record. Rows with empty key fields are skipped
// rather than rejected, matching how partially filled sheets arrive.
func buildRow(record []string, index map[string]int) (Row, bool, error) {
	field := func(name string) string {
		i := index[name]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	name := field("Company Name")
	yearStr := field("Year")
	metric := field("Metric")
	valueStr := field("Value")
	if name == "" || yearStr == "" || metric == "" || valueStr == "" {
		return Row{}, false, nil
	}

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return Row{}, false, fmt.Errorf("invalid year %q: %w", yearStr, err)
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(valueStr, ",", ""), 64)
	if err != nil {
		return Row{}, false, fmt.Errorf("invalid value %q: %w", valueStr, err)
	}

	currency := field("Currency")
	if currency == "" {
		currency = "USD"
	}

	return Row{
		CompanyName: name,
		Year:        year,
		Metric:      strings.ToLower(metric),
		Value:       value,
		Currency:    currency,
	}, true, nil
}
