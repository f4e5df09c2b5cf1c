package storage

import (
	"context"
	"errors"

	"github.com/crimelens-lab/crimelens/internal/core/artifact"
	"github.com/crimelens-lab/crimelens/internal/core/incident"
	"github.com/google/uuid"
)

// ErrNoPartitions is returned when no raw incident partition can be
// discovered at all. This aborts an aggregation run — there is no
// partial-aggregate fallback.
var ErrNoPartitions = errors.New("no raw incident partitions found")

// ErrNoArtifacts is returned by Load before the first completed aggregation
// run.
var ErrNoArtifacts = errors.New("no completed aggregation run found")

// RawIncidentStore enumerates and reads the per-year raw partitions.
// Partitions are external input: written by the upstream export job, read-only
// here.
type RawIncidentStore interface {
	// ListYears returns the years for which a partition exists, ascending.
	ListYears(ctx context.Context) ([]int, error)

	// ReadPartition returns every raw row of one year's partition in a stable
	// order. Stable ordering is what makes seeded sampling reproducible
	// across runs on identical input.
	ReadPartition(ctx context.Context, year int) ([]incident.RawIncident, error)
}

// ArtifactStore persists and loads complete artifact generations.
//
// Contract: Replace is atomic from any reader's perspective — a concurrent
// Load observes either the previous complete set or the new complete set,
// never a mix. Load reads all three tables from one consistent snapshot.
type ArtifactStore interface {
	// Replace overwrites the current artifact set wholesale and records the
	// run that produced it.
	Replace(ctx context.Context, runID uuid.UUID, set *artifact.Set) error

	// Load returns the current artifact set and the id of the run that
	// produced it. Returns ErrNoArtifacts when no run has completed yet.
	Load(ctx context.Context) (*artifact.Set, string, error)
}
