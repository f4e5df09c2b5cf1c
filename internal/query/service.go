package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/crimelens-lab/crimelens/internal/core/artifact"
	"github.com/crimelens-lab/crimelens/internal/core/incident"
	"github.com/crimelens-lab/crimelens/internal/core/sample"
)

const (
	defaultRenderCap     = 200000
	defaultRenderSeed    = 42
	defaultTopTypesLimit = 10
)

// ErrInvalidQuery marks request validation errors that should return HTTP 400.
var ErrInvalidQuery = errors.New("invalid view query")

// ServiceOptions controls the render cap and ranking size. A zero field
// selects its default; a RenderSeed of 0 means "use the default seed", not a
// literal zero seed.
type ServiceOptions struct {
	RenderCap     int
	RenderSeed    int64
	TopTypesLimit int
}

// DefaultServiceOptions returns the standard query parameters.
func DefaultServiceOptions() ServiceOptions {
	return ServiceOptions{
		RenderCap:     defaultRenderCap,
		RenderSeed:    defaultRenderSeed,
		TopTypesLimit: defaultTopTypesLimit,
	}
}

func (o ServiceOptions) normalized() ServiceOptions {
	n := o
	if n.RenderCap <= 0 {
		n.RenderCap = defaultRenderCap
	}
	if n.RenderSeed == 0 {
		n.RenderSeed = defaultRenderSeed
	}
	if n.TopTypesLimit <= 0 {
		n.TopTypesLimit = defaultTopTypesLimit
	}
	return n
}

// Service implements the interactive query layer. Every query is a pure
// function of (snapshot, request): it filters and re-aggregates the derived
// artifacts and never touches raw data.
type Service struct {
	handle  *Handle
	opts    ServiceOptions
	refresh func(ctx context.Context) error
}

// NewService creates a query service over the given artifact handle.
// refresh, if non-nil, is invoked by the refresh endpoint to run a new batch
// aggregation and reload the snapshot.
func NewService(handle *Handle, opts ServiceOptions, refresh func(ctx context.Context) error) *Service {
	if handle == nil {
		panic("query: handle must not be nil")
	}
	return &Service{
		handle:  handle,
		opts:    opts.normalized(),
		refresh: refresh,
	}
}

// Query derives the four view tables for one request against the current
// snapshot. Empty results are normal data, not errors.
func (s *Service) Query(_ context.Context, req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	snap := s.handle.Current()

	// Month-keyed artifacts cannot be split below month granularity, so the
	// day range widens to whole months: a partial final month contributes its
	// entire month's aggregate.
	monthStart := incident.MonthStart(req.Start)
	monthEnd := incident.MonthStart(req.End)

	res := &Result{
		Start: incident.DayStart(req.Start),
		End:   incident.DayStart(req.End),
		Types: req.Types.Names(),
		RunID: snap.RunID,
	}
	res.MapPoints = s.mapPoints(snap.Set, req)
	res.Trend = trendSeries(snap.Set, req.Types, monthStart, monthEnd)
	res.TopTypes = topTypes(snap.Set, monthStart, monthEnd, s.opts.TopTypesLimit)
	res.Totals = totals(snap.Set, req.Types, monthStart, monthEnd)

	return res, nil
}

func validateRequest(req Request) error {
	if req.Start.IsZero() || req.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidQuery)
	}
	if req.End.Before(req.Start) {
		return fmt.Errorf("%w: end %s is before start %s",
			ErrInvalidQuery,
			req.End.Format("2006-01-02"),
			req.Start.Format("2006-01-02"),
		)
	}
	return nil
}

// mapPoints filters the spatial sample at exact day granularity — sample
// points retain full dates, so no month widening applies. Matches beyond the
// render cap are reduced to a seeded uniform sub-sample of exactly the cap.
func (s *Service) mapPoints(set *artifact.Set, req Request) []artifact.SamplePoint {
	dayStart := incident.DayStart(req.Start)
	dayEnd := incident.DayStart(req.End).Add(24 * time.Hour)

	matches := make([]artifact.SamplePoint, 0, len(set.SamplePoints))
	for _, p := range set.SamplePoints {
		if p.Date.Before(dayStart) || !p.Date.Before(dayEnd) {
			continue
		}
		if !req.Types.Contains(p.PrimaryType) {
			continue
		}
		matches = append(matches, p)
	}

	return sample.Subset(matches, s.opts.RenderCap, s.opts.RenderSeed)
}

// trendSeries builds the monthly series over the widened month range. With a
// restricted filter it re-aggregates the by-category table; unrestricted it
// uses the totals table directly. Months absent from the artifacts stay
// absent — no zero-filling.
func trendSeries(set *artifact.Set, filter TypeFilter, monthStart, monthEnd time.Time) []TrendPoint {
	if filter.All() {
		out := make([]TrendPoint, 0)
		for _, row := range set.MonthlyTotal {
			if monthInRange(row.Month, monthStart, monthEnd) {
				out = append(out, TrendPoint{Month: row.Month, Count: row.Count})
			}
		}
		return out
	}

	sums := make(map[time.Time]int64)
	for _, row := range set.MonthlyType {
		if !monthInRange(row.Month, monthStart, monthEnd) || !filter.Contains(row.PrimaryType) {
			continue
		}
		sums[row.Month] += row.Count
	}

	out := make([]TrendPoint, 0, len(sums))
	for month, count := range sums {
		out = append(out, TrendPoint{Month: month, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

// topTypes ranks categories over the widened month range across ALL
// categories — the ranking deliberately ignores the type filter so it always
// shows the full date-filtered picture. Ties break ascending by category
// name so the ranking is deterministic.
func topTypes(set *artifact.Set, monthStart, monthEnd time.Time, limit int) []TypeCount {
	sums := make(map[string]int64)
	for _, row := range set.MonthlyType {
		if monthInRange(row.Month, monthStart, monthEnd) {
			sums[row.PrimaryType] += row.Count
		}
	}

	out := make([]TypeCount, 0, len(sums))
	for primaryType, count := range sums {
		out = append(out, TypeCount{PrimaryType: primaryType, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].PrimaryType < out[j].PrimaryType
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func totals(set *artifact.Set, filter TypeFilter, monthStart, monthEnd time.Time) Totals {
	var t Totals
	for _, row := range set.MonthlyTotal {
		if monthInRange(row.Month, monthStart, monthEnd) {
			t.InRange += row.Count
		}
	}

	if filter.All() {
		t.SelectedTypes = t.InRange
		return t
	}

	for _, row := range set.MonthlyType {
		if monthInRange(row.Month, monthStart, monthEnd) && filter.Contains(row.PrimaryType) {
			t.SelectedTypes += row.Count
		}
	}
	return t
}

func monthInRange(month, start, end time.Time) bool {
	return !month.Before(start) && !month.After(end)
}
