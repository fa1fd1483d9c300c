package ingest

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// FinancialData holds what could be recognized in an unstructured
// balance-sheet PDF. Metrics that were not found stay nil.
type FinancialData struct {
	FullText    string
	Revenue     *float64
	NetIncome   *float64
	Assets      *float64
	Liabilities *float64
}

var numberPattern = regexp.MustCompile(`\d[\d,\.]*\d|\d+`)

// metricKeywords maps a stored metric name to the phrases that signal
// it in report text, in priority order.
var metricKeywords = map[string][]string{
	"revenue":           {"total revenue", "revenue", "sales"},
	"net income":        {"net income", "profit after tax", "net profit"},
	"total assets":      {"total assets", "assets, total"},
	"total liabilities": {"total liabilities", "liabilities, total"},
}

// ExtractPDF pulls the plain text out of a PDF and scans it for the
// headline metrics.
func ExtractPDF(data []byte) (*FinancialData, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extracting PDF text: %w", err)
	}
	raw, err := io.ReadAll(textReader)
	if err != nil {
		return nil, fmt.Errorf("reading PDF text: %w", err)
	}

	return ExtractFromText(string(raw)), nil
}

// ExtractFromText scans report text for each headline metric.
func ExtractFromText(text string) *FinancialData {
	data := &FinancialData{FullText: text}
	if strings.TrimSpace(text) == "" {
		return data
	}

	data.Revenue = findValueNearKeyword(text, metricKeywords["revenue"])
	data.NetIncome = findValueNearKeyword(text, metricKeywords["net income"])
	data.Assets = findValueNearKeyword(text, metricKeywords["total assets"])
	data.Liabilities = findValueNearKeyword(text, metricKeywords["total liabilities"])
	return data
}

// findValueNearKeyword returns the first parseable number within 100
// characters of any of the keywords.
func findValueNearKeyword(text string, keywords []string) *float64 {
	const lookAround = 100
	lower := strings.ToLower(text)

	for _, keyword := range keywords {
		offset := 0
		for {
			i := strings.Index(lower[offset:], keyword)
			if i < 0 {
				break
			}
			at := offset + i
			start := at - lookAround
			if start < 0 {
				start = 0
			}
			end := at + len(keyword) + lookAround
			if end > len(text) {
				end = len(text)
			}

			for _, numStr := range numberPattern.FindAllString(text[start:end], -1) {
				cleaned := strings.ReplaceAll(numStr, ",", "")
				if value, err := strconv.ParseFloat(cleaned, 64); err == nil {
					return &value
				}
			}

			offset = at + len(keyword)
		}
	}
	return nil
}

// Rows converts the extracted metrics into balance-sheet rows for one
// company and year.
func (d *FinancialData) Rows(companyName string, year int, currency string) []Row {
	var rows []Row
	add := func(metric string, value *float64) {
		if value == nil {
			return
		}
		rows = append(rows, Row{
			CompanyName: companyName,
			Year:        year,
			Metric:      metric,
			Value:       *value,
			Currency:    currency,
		})
	}
	add("revenue", d.Revenue)
	add("net income", d.NetIncome)
	add("total assets", d.Assets)
	add("total liabilities", d.Liabilities)
	return rows
}
