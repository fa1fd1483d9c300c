package ingest

import (
	"fmt"
	"strconv"
	"strings"
)

// ChunkText renders one balance-sheet row as the retrieval chunk the
// vector index stores. The retrieval prompt quotes these lines back to
// the model verbatim.
func ChunkText(companyName string, year int, metric string, value float64, currency string) string {
	rendered := strconv.FormatFloat(value, 'f', -1, 64)
	if currency != "" {
		rendered += " " + currency
	}
	return fmt.Sprintf("%s, %d, %s: %s", companyName, year, metric, rendered)
}

// ChunkID derives a stable document ID so re-uploading the same file
// overwrites instead of duplicating.
func ChunkID(companyID uint, year int, metric string) string {
	slug := strings.ReplaceAll(strings.ToLower(metric), " ", "_")
	return fmt.Sprintf("company_%d_year_%d_metric_%s", companyID, year, slug)
}
