// Package artifact defines the three derived tables the batch aggregator
// produces and the interactive query layer consumes. A Set is created in full
// by one aggregation run and is immutable until the next run replaces it
// wholesale — no partial updates, no streaming.
package artifact

import (
	"fmt"
	"sort"
	"time"
)

// MonthlyTotalRow is one month's incident count across all categories.
// Month is always a first-of-month UTC timestamp.
type MonthlyTotalRow struct {
	Month time.Time `json:"month"`
	Count int64     `json:"count"`
}

// MonthlyTypeRow is one month's incident count for one category.
// Unique on (Month, PrimaryType).
type MonthlyTypeRow struct {
	Month       time.Time `json:"month"`
	PrimaryType string    `json:"primary_type"`
	Count       int64     `json:"count"`
}

// SamplePoint is one retained raw point for spatial rendering. The sample is
// bounded per year, so this table is representative, not exhaustive.
type SamplePoint struct {
	Date        time.Time `json:"date"`
	PrimaryType string    `json:"primary_type"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Year        int       `json:"year"`
}

// Set is one complete, mutually consistent artifact generation.
type Set struct {
	MonthlyTotal []MonthlyTotalRow
	MonthlyType  []MonthlyTypeRow
	SamplePoints []SamplePoint
}

// Sort orders the monthly tables into their canonical order: MonthlyTotal by
// month, MonthlyType by (month, primary_type). SamplePoints keep the order
// the aggregator produced (ascending year, stable within a year).
func (s *Set) Sort() {
	sort.Slice(s.MonthlyTotal, func(i, j int) bool {
		return s.MonthlyTotal[i].Month.Before(s.MonthlyTotal[j].Month)
	})
	sort.Slice(s.MonthlyType, func(i, j int) bool {
		a, b := s.MonthlyType[i], s.MonthlyType[j]
		if !a.Month.Equal(b.Month) {
			return a.Month.Before(b.Month)
		}
		return a.PrimaryType < b.PrimaryType
	})
}

// Validate checks internal consistency: unique keys, non-negative counts, and
// the cross-table invariant that for every month the per-category counts sum
// to the monthly total. A violation means the aggregator has a bug.
func (s *Set) Validate() error {
	totals := make(map[time.Time]int64, len(s.MonthlyTotal))
	for _, row := range s.MonthlyTotal {
		if row.Count < 0 {
			return fmt.Errorf("monthly_total: negative count for %s", row.Month.Format("2006-01"))
		}
		if _, exists := totals[row.Month]; exists {
			return fmt.Errorf("monthly_total: duplicate month %s", row.Month.Format("2006-01"))
		}
		totals[row.Month] = row.Count
	}

	type typeKey struct {
		month       time.Time
		primaryType string
	}
	seen := make(map[typeKey]struct{}, len(s.MonthlyType))
	typeSums := make(map[time.Time]int64, len(totals))
	for _, row := range s.MonthlyType {
		if row.Count < 0 {
			return fmt.Errorf("monthly_type: negative count for (%s, %s)", row.Month.Format("2006-01"), row.PrimaryType)
		}
		key := typeKey{month: row.Month, primaryType: row.PrimaryType}
		if _, exists := seen[key]; exists {
			return fmt.Errorf("monthly_type: duplicate key (%s, %s)", row.Month.Format("2006-01"), row.PrimaryType)
		}
		seen[key] = struct{}{}
		typeSums[row.Month] += row.Count
	}

	if len(typeSums) != len(totals) {
		return fmt.Errorf("month mismatch: monthly_total has %d months, monthly_type has %d", len(totals), len(typeSums))
	}
	for month, sum := range typeSums {
		total, ok := totals[month]
		if !ok {
			return fmt.Errorf("monthly_type month %s missing from monthly_total", month.Format("2006-01"))
		}
		if sum != total {
			return fmt.Errorf("month %s: per-category sum %d != total %d", month.Format("2006-01"), sum, total)
		}
	}

	return nil
}

// Counts returns the table sizes, used for run bookkeeping and logs.
func (s *Set) Counts() (months, typeRows, samples int) {
	return len(s.MonthlyTotal), len(s.MonthlyType), len(s.SamplePoints)
}
