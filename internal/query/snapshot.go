package query

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/crimelens-lab/crimelens/internal/core/artifact"
	"github.com/crimelens-lab/crimelens/internal/core/storage"
	"golang.org/x/sync/singleflight"
)

// Snapshot is one immutable, fully loaded artifact generation. Queries only
// ever read it; a refresh builds a new Snapshot and swaps the handle pointer,
// so queries in flight keep whichever generation they started with.
type Snapshot struct {
	RunID    string
	LoadedAt time.Time
	Set      *artifact.Set
}

// emptySnapshot serves requests before the first aggregation run has
// completed: every query legitimately answers "no data".
func emptySnapshot() *Snapshot {
	return &Snapshot{Set: &artifact.Set{}, LoadedAt: time.Now().UTC()}
}

// Handle is the process-wide artifact reference: constructed once at startup
// and passed into the query service, replacing any notion of hidden global
// cached state. Current is lock-free; Reload is collapsed so concurrent
// refresh triggers produce a single load.
type Handle struct {
	store   storage.ArtifactStore
	current atomic.Pointer[Snapshot]
	group   singleflight.Group
}

// NewHandle creates a handle serving the empty snapshot until the first
// Reload succeeds.
func NewHandle(store storage.ArtifactStore) *Handle {
	h := &Handle{store: store}
	h.current.Store(emptySnapshot())
	return h
}

// Current returns the active snapshot. Never nil.
func (h *Handle) Current() *Snapshot {
	return h.current.Load()
}

// Reload loads the persisted artifact set and atomically swaps it in.
// Concurrent callers share one load. Returns storage.ErrNoArtifacts when no
// aggregation run has completed yet; the previous snapshot stays active on
// any failure.
func (h *Handle) Reload(ctx context.Context) (*Snapshot, error) {
	v, err, shared := h.group.Do("reload", func() (interface{}, error) {
		set, runID, err := h.store.Load(ctx)
		if err != nil {
			return nil, err
		}

		snap := &Snapshot{
			RunID:    runID,
			LoadedAt: time.Now().UTC(),
			Set:      set,
		}
		h.current.Store(snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}

	snap := v.(*Snapshot)
	if !shared {
		slog.Info("[Snapshot] Swapped artifact snapshot",
			"run_id", snap.RunID,
			"month_rows", len(snap.Set.MonthlyTotal),
			"type_rows", len(snap.Set.MonthlyType),
			"sample_rows", len(snap.Set.SamplePoints),
		)
	}
	return snap, nil
}
