package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/housing-service/internal/domain"
	"github.com/spec-kit/housing-service/internal/observability"
	"github.com/spec-kit/housing-service/internal/repository"
)

type fixedTolerance int

func (f fixedTolerance) AgeGapTolerance(context.Context) (int, error) { return int(f), nil }

type recordingReporter struct {
	mu      sync.Mutex
	reports []Report
}

func (r *recordingReporter) Report(_ context.Context, report Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

func seedStore(t *testing.T) *repository.MemoryStore {
	t.Helper()
	store := repository.NewMemoryStore()
	store.SeedRegistrant(domain.Registrant{ID: "r1", FullName: "Ada", Gender: domain.GenderFemale, DateOfBirth: born(2004)})
	store.SeedRegistrant(domain.Registrant{ID: "r2", FullName: "Bisi", Gender: domain.GenderFemale, DateOfBirth: born(2005)})
	require.NoError(t, store.Rooms().Create(context.Background(), &domain.Room{ID: "room-1", Name: "F1", Gender: domain.GenderFemale, Capacity: 2, Active: true}))
	store.ForceAllocation(domain.Allocation{ID: "a1", RegistrantID: "r1", RoomID: "room-1", AgeGapTolerance: 3, Active: true})
	store.ForceAllocation(domain.Allocation{ID: "a2", RegistrantID: "r2", RoomID: "room-1", AgeGapTolerance: 3, Active: true})
	return store
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func orphanOnly() Config {
	return Config{Interval: time.Minute, AutoResolve: []ConflictType{OrphanedReference}}
}

func TestRun_ResolvesOrphanedAllocation(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	store.RemoveRegistrant("r2")
	reporter := &recordingReporter{}
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	engine := New(Dependencies{Ledger: store.Allocations(), Tolerance: fixedTolerance(3), Reporter: reporter, Metrics: metrics})

	var phases []Phase
	report, err := engine.Run(ctx, orphanOnly(), func(p Phase) { phases = append(phases, p) })
	require.NoError(t, err)
	require.Len(t, report.Conflicts, 1)
	require.Len(t, report.Resolved, 1)
	assert.Empty(t, report.Failed)
	assert.Equal(t, OrphanedReference, report.Resolved[0].Type)
	assert.Equal(t, []Phase{PhaseScanning, PhaseResolving, PhaseReporting}, phases)
	assert.Equal(t, 1, reporter.count())
	assert.Equal(t, float64(1), counterValue(t, reg, "housing_reconciler_resolved_total", string(OrphanedReference)))

	history, err := store.Allocations().History(ctx, "r2")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Active)
	require.NotNil(t, history[0].DeallocatedBy)
	assert.Equal(t, domain.SystemReconcilerActor, *history[0].DeallocatedBy)
	require.NotNil(t, history[0].DeallocationReason)
	assert.Equal(t, string(OrphanedReference), *history[0].DeallocationReason)

	again, err := engine.Run(ctx, orphanOnly(), nil)
	require.NoError(t, err)
	assert.Empty(t, again.Conflicts)
}

func TestRun_OrphanOnlyReportedWhenNotConfigured(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	require.NoError(t, store.Rooms().Delete(ctx, "room-1"))
	engine := New(Dependencies{Ledger: store.Allocations(), Tolerance: fixedTolerance(3)})

	report, err := engine.Run(ctx, Config{Interval: time.Minute}, nil)
	require.NoError(t, err)
	assert.Len(t, report.Conflicts, 2)
	assert.Empty(t, report.Resolved)

	counts, err := store.Allocations().OccupancyCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["room-1"])
}

func TestRun_ConflictsWithoutResolverAreOnlyReported(t *testing.T) {
	ctx := context.Background()
	store := seedStore(t)
	require.NoError(t, store.Rooms().Create(ctx, &domain.Room{ID: "room-2", Name: "F2", Gender: domain.GenderFemale, Capacity: 2, Active: true}))
	store.ForceAllocation(domain.Allocation{ID: "a3", RegistrantID: "r1", RoomID: "room-2", AgeGapTolerance: 3, Active: true})
	room, err := store.Rooms().GetByID(ctx, "room-1")
	require.NoError(t, err)
	room.Capacity = 1
	require.NoError(t, store.Rooms().Update(ctx, room))

	engine := New(Dependencies{Ledger: store.Allocations(), Tolerance: fixedTolerance(3)})
	cfg := Config{Interval: time.Minute, AutoResolve: []ConflictType{OrphanedReference, DuplicateAllocation, CapacityExceeded}}
	var phases []Phase
	report, err := engine.Run(ctx, cfg, func(p Phase) { phases = append(phases, p) })
	require.NoError(t, err)

	require.Len(t, report.Conflicts, 2)
	assert.Equal(t, CapacityExceeded, report.Conflicts[0].Type)
	assert.Equal(t, "room-1", report.Conflicts[0].RoomID)
	assert.Equal(t, DuplicateAllocation, report.Conflicts[1].Type)
	assert.Empty(t, report.Resolved)
	assert.NotContains(t, phases, PhaseResolving)

	active, err := store.Allocations().OccupancyCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, active["room-1"])
	assert.Equal(t, 1, active["room-2"])
}

type failingLedger struct {
	Ledger
	snapshotErr   error
	deactivateErr error
}

func (f failingLedger) Snapshot(ctx context.Context) (*domain.LedgerSnapshot, error) {
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	return f.Ledger.Snapshot(ctx)
}

func (f failingLedger) DeactivateIfActive(ctx context.Context, id string, d domain.Deallocation) (bool, error) {
	if f.deactivateErr != nil {
		return false, f.deactivateErr
	}
	return f.Ledger.DeactivateIfActive(ctx, id, d)
}

func TestRun_ResolverFailureIsReported(t *testing.T) {
	store := seedStore(t)
	store.RemoveRegistrant("r1")
	ledger := failingLedger{Ledger: store.Allocations(), deactivateErr: errors.New("db down")}
	engine := New(Dependencies{Ledger: ledger, Tolerance: fixedTolerance(3)})

	report, err := engine.Run(context.Background(), orphanOnly(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Resolved)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "db down", report.Failed[0].Error)
}

func TestRun_SnapshotFailureAbortsRun(t *testing.T) {
	store := seedStore(t)
	reporter := &recordingReporter{}
	ledger := failingLedger{Ledger: store.Allocations(), snapshotErr: errors.New("db down")}
	engine := New(Dependencies{Ledger: ledger, Reporter: reporter})

	_, err := engine.Run(context.Background(), orphanOnly(), nil)
	assert.ErrorContains(t, err, "db down")
	assert.Zero(t, reporter.count())
}
