package query

import (
	"sort"
	"time"

	"github.com/crimelens-lab/crimelens/internal/core/artifact"
)

// TypeFilter is the category restriction of a query. The zero value (and
// AllTypes) means "no restriction" — this is an explicit variant rather than
// an overloaded empty set, so "user cleared the filter" cannot be confused
// with "match nothing".
type TypeFilter struct {
	subset map[string]struct{}
	names  []string
}

// AllTypes returns the unrestricted filter.
func AllTypes() TypeFilter {
	return TypeFilter{}
}

// TypesOf returns a filter restricted to the given categories. Blank entries
// are ignored; passing none yields the unrestricted filter.
func TypesOf(types ...string) TypeFilter {
	subset := make(map[string]struct{}, len(types))
	for _, t := range types {
		if t == "" {
			continue
		}
		subset[t] = struct{}{}
	}
	if len(subset) == 0 {
		return TypeFilter{}
	}

	names := make([]string, 0, len(subset))
	for t := range subset {
		names = append(names, t)
	}
	sort.Strings(names)
	return TypeFilter{subset: subset, names: names}
}

// All reports whether the filter places no restriction.
func (f TypeFilter) All() bool { return f.subset == nil }

// Contains reports whether a category passes the filter.
func (f TypeFilter) Contains(primaryType string) bool {
	if f.subset == nil {
		return true
	}
	_, ok := f.subset[primaryType]
	return ok
}

// Names returns the selected categories sorted ascending, or nil for the
// unrestricted filter.
func (f TypeFilter) Names() []string { return f.names }

// Request is one view derivation: an inclusive day-granularity date range
// plus a category filter.
type Request struct {
	Start time.Time
	End   time.Time
	Types TypeFilter
}

// TrendPoint is one month of the trend series.
type TrendPoint struct {
	Month time.Time `json:"month"`
	Count int64     `json:"count"`
}

// TypeCount is one row of the top-category ranking.
type TypeCount struct {
	PrimaryType string `json:"primary_type"`
	Count       int64  `json:"count"`
}

// Totals are the summary counters for the selected range.
type Totals struct {
	InRange       int64 `json:"total_in_range"`
	SelectedTypes int64 `json:"total_selected_types"`
}

// Result carries the four view-ready tables for one request, echoing the
// effective filter. RunID identifies the artifact generation that answered
// the query.
type Result struct {
	Start     time.Time              `json:"start"`
	End       time.Time              `json:"end"`
	Types     []string               `json:"types,omitempty"`
	RunID     string                 `json:"run_id,omitempty"`
	MapPoints []artifact.SamplePoint `json:"map_points"`
	Trend     []TrendPoint           `json:"trend"`
	TopTypes  []TypeCount            `json:"top_types"`
	Totals    Totals                 `json:"totals"`
}
