package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crimelens-lab/crimelens/internal/core/artifact"
	"github.com/crimelens-lab/crimelens/internal/core/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeArtifactStore struct {
	set   *artifact.Set
	runID string
	err   error
}

func (f *fakeArtifactStore) Replace(_ context.Context, _ uuid.UUID, _ *artifact.Set) error {
	return errors.New("not implemented")
}

func (f *fakeArtifactStore) Load(_ context.Context) (*artifact.Set, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.set, f.runID, nil
}

func month(year int, m time.Month) time.Time {
	return time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
}

func day(year int, m time.Month, d int) time.Time {
	return time.Date(year, m, d, 0, 0, 0, 0, time.UTC)
}

func serviceWith(t *testing.T, set *artifact.Set) *Service {
	t.Helper()
	h := NewHandle(&fakeArtifactStore{set: set, runID: "run-1"})
	_, err := h.Reload(context.Background())
	require.NoError(t, err)
	return NewService(h, DefaultServiceOptions(), nil)
}

func TestQuery_WidensPartialMonthsToWholeMonths(t *testing.T) {
	set := &artifact.Set{
		MonthlyTotal: []artifact.MonthlyTotalRow{
			{Month: month(2019, time.December), Count: 999},
			{Month: month(2020, time.January), Count: 100},
			{Month: month(2020, time.February), Count: 150},
			{Month: month(2020, time.March), Count: 999},
		},
	}
	s := serviceWith(t, set)

	res, err := s.Query(context.Background(), Request{
		Start: day(2020, time.January, 15),
		End:   day(2020, time.February, 10),
		Types: AllTypes(),
	})
	require.NoError(t, err)

	require.Equal(t, []TrendPoint{
		{Month: month(2020, time.January), Count: 100},
		{Month: month(2020, time.February), Count: 150},
	}, res.Trend)
	require.Equal(t, int64(250), res.Totals.InRange)
	require.Equal(t, int64(250), res.Totals.SelectedTypes)
	require.Equal(t, "run-1", res.RunID)
}

func TestQuery_TypeFilterRestrictsTrendAndTotalsButNotRanking(t *testing.T) {
	set := &artifact.Set{
		MonthlyTotal: []artifact.MonthlyTotalRow{
			{Month: month(2020, time.January), Count: 100},
		},
		MonthlyType: []artifact.MonthlyTypeRow{
			{Month: month(2020, time.January), PrimaryType: "BATTERY", Count: 60},
			{Month: month(2020, time.January), PrimaryType: "THEFT", Count: 40},
		},
	}
	s := serviceWith(t, set)

	res, err := s.Query(context.Background(), Request{
		Start: day(2020, time.January, 1),
		End:   day(2020, time.January, 31),
		Types: TypesOf("THEFT"),
	})
	require.NoError(t, err)

	require.Equal(t, []TrendPoint{
		{Month: month(2020, time.January), Count: 40},
	}, res.Trend)
	require.Equal(t, int64(100), res.Totals.InRange)
	require.Equal(t, int64(40), res.Totals.SelectedTypes)

	// The ranking ignores the category selection.
	require.Equal(t, []TypeCount{
		{PrimaryType: "BATTERY", Count: 60},
		{PrimaryType: "THEFT", Count: 40},
	}, res.TopTypes)
}

func TestQuery_EmptyTypeListEqualsUnrestricted(t *testing.T) {
	set := &artifact.Set{
		MonthlyTotal: []artifact.MonthlyTotalRow{
			{Month: month(2021, time.June), Count: 12},
		},
		MonthlyType: []artifact.MonthlyTypeRow{
			{Month: month(2021, time.June), PrimaryType: "ASSAULT", Count: 12},
		},
		SamplePoints: []artifact.SamplePoint{
			{Date: day(2021, time.June, 3), PrimaryType: "ASSAULT", Latitude: 41.8, Longitude: -87.6, Year: 2021},
		},
	}
	s := serviceWith(t, set)

	req := Request{Start: day(2021, time.June, 1), End: day(2021, time.June, 30)}

	req.Types = AllTypes()
	all, err := s.Query(context.Background(), req)
	require.NoError(t, err)

	req.Types = TypesOf()
	empty, err := s.Query(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, all, empty)
	require.Empty(t, empty.Types)
}

func TestQuery_MapPointsFilterAtDayGranularity(t *testing.T) {
	set := &artifact.Set{
		SamplePoints: []artifact.SamplePoint{
			{Date: day(2020, time.January, 14), PrimaryType: "THEFT", Latitude: 41.1, Longitude: -87.1, Year: 2020},
			{Date: day(2020, time.January, 15), PrimaryType: "THEFT", Latitude: 41.2, Longitude: -87.2, Year: 2020},
			{Date: time.Date(2020, time.January, 20, 23, 30, 0, 0, time.UTC), PrimaryType: "BATTERY", Latitude: 41.3, Longitude: -87.3, Year: 2020},
			{Date: day(2020, time.February, 10), PrimaryType: "THEFT", Latitude: 41.4, Longitude: -87.4, Year: 2020},
			{Date: day(2020, time.February, 11), PrimaryType: "THEFT", Latitude: 41.5, Longitude: -87.5, Year: 2020},
		},
	}
	s := serviceWith(t, set)

	res, err := s.Query(context.Background(), Request{
		Start: day(2020, time.January, 15),
		End:   day(2020, time.February, 10),
		Types: TypesOf("THEFT"),
	})
	require.NoError(t, err)

	// Day 14 is before the range, day 11 of February is after it, and the
	// BATTERY point fails the category filter. The in-range point with a
	// time-of-day component still matches its day.
	require.Len(t, res.MapPoints, 2)
	require.Equal(t, 41.2, res.MapPoints[0].Latitude)
	require.Equal(t, 41.4, res.MapPoints[1].Latitude)
}

func TestQuery_RenderCapIsDeterministic(t *testing.T) {
	set := &artifact.Set{SamplePoints: make([]artifact.SamplePoint, 0, 500)}
	for i := 0; i < 500; i++ {
		set.SamplePoints = append(set.SamplePoints, artifact.SamplePoint{
			Date:        day(2020, time.March, 1+i%28),
			PrimaryType: "THEFT",
			Latitude:    41.0 + float64(i)/1000,
			Longitude:   -87.0 - float64(i)/1000,
			Year:        2020,
		})
	}

	h := NewHandle(&fakeArtifactStore{set: set, runID: "run-1"})
	_, err := h.Reload(context.Background())
	require.NoError(t, err)
	s := NewService(h, ServiceOptions{RenderCap: 50, RenderSeed: 42}, nil)

	req := Request{Start: day(2020, time.March, 1), End: day(2020, time.March, 31), Types: AllTypes()}

	first, err := s.Query(context.Background(), req)
	require.NoError(t, err)
	second, err := s.Query(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, first.MapPoints, 50)
	require.Equal(t, first.MapPoints, second.MapPoints)
}

func TestQuery_TopTypesLimitAndTieBreak(t *testing.T) {
	set := &artifact.Set{
		MonthlyType: []artifact.MonthlyTypeRow{
			{Month: month(2020, time.May), PrimaryType: "ROBBERY", Count: 7},
			{Month: month(2020, time.May), PrimaryType: "ARSON", Count: 7},
			{Month: month(2020, time.May), PrimaryType: "THEFT", Count: 9},
		},
	}
	h := NewHandle(&fakeArtifactStore{set: set, runID: "run-1"})
	_, err := h.Reload(context.Background())
	require.NoError(t, err)
	s := NewService(h, ServiceOptions{TopTypesLimit: 2}, nil)

	res, err := s.Query(context.Background(), Request{
		Start: day(2020, time.May, 1),
		End:   day(2020, time.May, 31),
		Types: AllTypes(),
	})
	require.NoError(t, err)

	// ARSON wins the tie with ROBBERY alphabetically; the limit then drops
	// ROBBERY entirely.
	require.Equal(t, []TypeCount{
		{PrimaryType: "THEFT", Count: 9},
		{PrimaryType: "ARSON", Count: 7},
	}, res.TopTypes)
}

func TestQuery_AbsentCategoryYieldsEmptyNotError(t *testing.T) {
	set := &artifact.Set{
		MonthlyTotal: []artifact.MonthlyTotalRow{
			{Month: month(2020, time.January), Count: 10},
		},
		MonthlyType: []artifact.MonthlyTypeRow{
			{Month: month(2020, time.January), PrimaryType: "THEFT", Count: 10},
		},
	}
	s := serviceWith(t, set)

	res, err := s.Query(context.Background(), Request{
		Start: day(2020, time.January, 1),
		End:   day(2020, time.January, 31),
		Types: TypesOf("KIDNAPPING"),
	})
	require.NoError(t, err)

	require.Empty(t, res.Trend)
	require.Empty(t, res.MapPoints)
	require.Equal(t, int64(10), res.Totals.InRange)
	require.Equal(t, int64(0), res.Totals.SelectedTypes)
}

func TestServiceOptions_ZeroFieldsSelectDefaults(t *testing.T) {
	got := ServiceOptions{}.normalized()
	require.Equal(t, DefaultServiceOptions(), got)

	// A seed of 0 means "default", by contract on ServiceOptions.
	got = ServiceOptions{RenderCap: 50, RenderSeed: 0, TopTypesLimit: 3}.normalized()
	require.Equal(t, int64(defaultRenderSeed), got.RenderSeed)
	require.Equal(t, 50, got.RenderCap)
	require.Equal(t, 3, got.TopTypesLimit)
}

func TestQuery_RejectsInvalidRanges(t *testing.T) {
	s := serviceWith(t, &artifact.Set{})

	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "inverted range",
			req:  Request{Start: day(2020, time.March, 10), End: day(2020, time.March, 1)},
		},
		{
			name: "zero start",
			req:  Request{End: day(2020, time.March, 1)},
		},
		{
			name: "zero end",
			req:  Request{Start: day(2020, time.March, 1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Query(context.Background(), tt.req)
			require.ErrorIs(t, err, ErrInvalidQuery)
		})
	}
}

func TestQuery_NoZeroFillForAbsentMonths(t *testing.T) {
	set := &artifact.Set{
		MonthlyTotal: []artifact.MonthlyTotalRow{
			{Month: month(2020, time.January), Count: 5},
			{Month: month(2020, time.March), Count: 8},
		},
	}
	s := serviceWith(t, set)

	res, err := s.Query(context.Background(), Request{
		Start: day(2020, time.January, 1),
		End:   day(2020, time.March, 31),
		Types: AllTypes(),
	})
	require.NoError(t, err)

	// February had no data: it is absent, not zero.
	require.Equal(t, []TrendPoint{
		{Month: month(2020, time.January), Count: 5},
		{Month: month(2020, time.March), Count: 8},
	}, res.Trend)
}

func TestQuery_BeforeFirstReloadServesEmptySnapshot(t *testing.T) {
	h := NewHandle(&fakeArtifactStore{err: storage.ErrNoArtifacts})
	s := NewService(h, DefaultServiceOptions(), nil)

	res, err := s.Query(context.Background(), Request{
		Start: day(2020, time.January, 1),
		End:   day(2020, time.January, 31),
		Types: AllTypes(),
	})
	require.NoError(t, err)
	require.Empty(t, res.MapPoints)
	require.Empty(t, res.Trend)
	require.Empty(t, res.TopTypes)
	require.Zero(t, res.Totals.InRange)
	require.Empty(t, res.RunID)
}
