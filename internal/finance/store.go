package finance

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"finsight/internal/models"
)

// MetricPoint is one year of a company's headline figures.
type MetricPoint struct {
	Year        int      `json:"year"`
	Revenue     *float64 `json:"revenue"`
	Assets      *float64 `json:"assets"`
	Liabilities *float64 `json:"liabilities"`
}

// Store reads and writes balance-sheet entries in MySQL.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Upsert writes entries, replacing value and currency when a row for
// the same (company, year, metric) already exists.
func (s *Store) Upsert(ctx context.Context, entries []models.BalanceSheetEntry) error {
	if len(entries) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "company_id"}, {Name: "year"}, {Name: "metric"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "currency", "updated_at"}),
	}).Create(&entries).Error
	if err != nil {
		return fmt.Errorf("upserting balance sheet entries: %w", err)
	}
	return nil
}

// MetricsSeries returns the per-year headline figures for one company,
// oldest year first. Metrics the company never reported stay nil.
func (s *Store) MetricsSeries(ctx context.Context, companyID uint) ([]MetricPoint, error) {
	var entries []models.BalanceSheetEntry
	err := s.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Where("metric IN ?", []string{"revenue", "total assets", "total liabilities"}).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("loading metrics for company %d: %w", companyID, err)
	}

	byYear := make(map[int]*MetricPoint)
	for _, e := range entries {
		point, ok := byYear[e.Year]
		if !ok {
			point = &MetricPoint{Year: e.Year}
			byYear[e.Year] = point
		}
		value := e.Value
		switch e.Metric {
		case "revenue":
			point.Revenue = &value
		case "total assets":
			point.Assets = &value
		case "total liabilities":
			point.Liabilities = &value
		}
	}

	series := make([]MetricPoint, 0, len(byYear))
	for _, point := range byYear {
		series = append(series, *point)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Year < series[j].Year })
	return series, nil
}
