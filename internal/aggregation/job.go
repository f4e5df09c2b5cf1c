// Package aggregation implements the batch job that compresses raw per-year
// incident partitions into the three derived artifacts. It runs offline, once
// per data refresh; the interactive query layer never touches raw data.
package aggregation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crimelens-lab/crimelens/internal/core/artifact"
	"github.com/crimelens-lab/crimelens/internal/core/incident"
	"github.com/crimelens-lab/crimelens/internal/core/sample"
	"github.com/crimelens-lab/crimelens/internal/core/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSamplePerYear = 30000
	defaultSampleSeed    = 42
	defaultWorkerCount   = 4
)

// Options controls sampling and throughput behavior of a batch run. A zero
// field selects its default; in particular a seed of 0 means "use the default
// seed", not a literal zero seed.
type Options struct {
	SamplePerYear int
	SampleSeed    int64
	WorkerCount   int
}

// DefaultOptions returns the standard run parameters.
func DefaultOptions() Options {
	return Options{
		SamplePerYear: defaultSamplePerYear,
		SampleSeed:    defaultSampleSeed,
		WorkerCount:   defaultWorkerCount,
	}
}

func (o Options) normalized() Options {
	n := o
	if n.SamplePerYear <= 0 {
		n.SamplePerYear = defaultSamplePerYear
	}
	if n.SampleSeed == 0 {
		n.SampleSeed = defaultSampleSeed
	}
	if n.WorkerCount <= 0 {
		n.WorkerCount = defaultWorkerCount
	}
	return n
}

// Summary is the bookkeeping result of one completed run.
type Summary struct {
	RunID       uuid.UUID
	Years       []int
	RowsRead    int64
	RowsSkipped int64
	MonthRows   int
	TypeRows    int
	SampleRows  int
	Elapsed     time.Duration
}

type typeKey struct {
	month       time.Time
	primaryType string
}

// partitionCounts is the per-year reduction: partial monthly counts plus the
// bounded sample. Partials merge by plain summation, so partition processing
// order never affects the final counts.
type partitionCounts struct {
	year        int
	rowsRead    int64
	rowsSkipped int64
	monthTotals map[time.Time]int64
	typeTotals  map[typeKey]int64
	samplePts   []artifact.SamplePoint
}

// Run executes one full aggregation: enumerate partitions, clean and reduce
// each, merge, verify consistency, and replace the persisted artifact set.
//
// Zero discoverable partitions is fatal (storage.ErrNoPartitions) and nothing
// is written. Individual unusable rows are dropped silently and only counted.
func Run(
	ctx context.Context,
	rawStore storage.RawIncidentStore,
	artifactStore storage.ArtifactStore,
	norm *incident.Normalizer,
	opts Options,
) (*Summary, error) {
	opts = opts.normalized()
	started := time.Now()

	years, err := rawStore.ListYears(ctx)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	if len(years) == 0 {
		return nil, storage.ErrNoPartitions
	}

	slog.Info("[Aggregator] Starting run",
		"years", years,
		"sample_per_year", opts.SamplePerYear,
		"workers", opts.WorkerCount,
	)

	// Partitions reduce independently; results land in year order regardless
	// of which worker finishes first.
	results := make([]*partitionCounts, len(years))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.WorkerCount)
	for i, year := range years {
		i, year := i, year
		g.Go(func() error {
			rows, err := rawStore.ReadPartition(gctx, year)
			if err != nil {
				return fmt.Errorf("partition %d: %w", year, err)
			}
			results[i] = reducePartition(year, rows, norm, opts)
			slog.Info("[Aggregator] Partition reduced",
				"year", year,
				"rows_read", results[i].rowsRead,
				"rows_skipped", results[i].rowsSkipped,
				"sample_rows", len(results[i].samplePts),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set, summary := mergePartitions(years, results)
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("artifact consistency check failed: %w", err)
	}

	runID := uuid.New()
	if err := artifactStore.Replace(ctx, runID, set); err != nil {
		return nil, fmt.Errorf("persist artifacts: %w", err)
	}

	summary.RunID = runID
	summary.Elapsed = time.Since(started)

	slog.Info("[Aggregator] Run complete",
		"run_id", runID,
		"rows_read", summary.RowsRead,
		"rows_skipped", summary.RowsSkipped,
		"month_rows", summary.MonthRows,
		"type_rows", summary.TypeRows,
		"sample_rows", summary.SampleRows,
		"elapsed", summary.Elapsed,
	)
	return summary, nil
}

// reducePartition cleans one year's rows and produces its partial counts and
// bounded sample. The sampling generator is local to this call and seeded
// identically every run, so identical input yields an identical sample.
func reducePartition(year int, rows []incident.RawIncident, norm *incident.Normalizer, opts Options) *partitionCounts {
	pc := &partitionCounts{
		year:        year,
		monthTotals: make(map[time.Time]int64),
		typeTotals:  make(map[typeKey]int64),
	}

	cleaned := make([]incident.Incident, 0, len(rows))
	for _, raw := range rows {
		pc.rowsRead++
		inc, ok := incident.Clean(raw, norm)
		if !ok {
			pc.rowsSkipped++
			continue
		}
		cleaned = append(cleaned, inc)

		month := incident.MonthStart(inc.Date)
		pc.monthTotals[month]++
		pc.typeTotals[typeKey{month: month, primaryType: inc.PrimaryType}]++
	}

	for _, inc := range sample.Subset(cleaned, opts.SamplePerYear, opts.SampleSeed) {
		pc.samplePts = append(pc.samplePts, artifact.SamplePoint{
			Date:        inc.Date,
			PrimaryType: inc.PrimaryType,
			Latitude:    inc.Latitude,
			Longitude:   inc.Longitude,
			Year:        year,
		})
	}

	return pc
}

// mergePartitions sums the per-year partials into the final artifact set.
// Summation is associative and commutative, so the merge is independent of
// partition processing order; samples concatenate in ascending year order.
func mergePartitions(years []int, results []*partitionCounts) (*artifact.Set, *Summary) {
	monthTotals := make(map[time.Time]int64)
	typeTotals := make(map[typeKey]int64)

	summary := &Summary{Years: years}
	set := &artifact.Set{}

	for _, pc := range results {
		summary.RowsRead += pc.rowsRead
		summary.RowsSkipped += pc.rowsSkipped
		for month, count := range pc.monthTotals {
			monthTotals[month] += count
		}
		for key, count := range pc.typeTotals {
			typeTotals[key] += count
		}
		set.SamplePoints = append(set.SamplePoints, pc.samplePts...)
	}

	for month, count := range monthTotals {
		set.MonthlyTotal = append(set.MonthlyTotal, artifact.MonthlyTotalRow{Month: month, Count: count})
	}
	for key, count := range typeTotals {
		set.MonthlyType = append(set.MonthlyType, artifact.MonthlyTypeRow{
			Month:       key.month,
			PrimaryType: key.primaryType,
			Count:       count,
		})
	}
	set.Sort()

	summary.MonthRows, summary.TypeRows, summary.SampleRows = set.Counts()
	return set, summary
}
