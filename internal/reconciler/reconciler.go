package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/housing-service/internal/domain"
	"github.com/spec-kit/housing-service/internal/observability"
)

// Ledger is the slice of the allocation ledger the reconciler needs.
type Ledger interface {
	Snapshot(ctx context.Context) (*domain.LedgerSnapshot, error)
	DeactivateIfActive(ctx context.Context, allocationID string, d domain.Deallocation) (bool, error)
}

// ToleranceSource yields the age-gap tolerance currently in force.
type ToleranceSource interface {
	AgeGapTolerance(ctx context.Context) (int, error)
}

// Reporter receives every finished report.
type Reporter interface {
	Report(ctx context.Context, report Report)
}

// Phase is where the reconciler is within a run.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseScanning  Phase = "scanning"
	PhaseResolving Phase = "resolving"
	PhaseReporting Phase = "reporting"
)

// Reconciler performs single runs: snapshot, scan, resolve, report.
type Reconciler struct {
	ledger    Ledger
	tolerance ToleranceSource
	reporter  Reporter
	resolvers map[ConflictType]resolveFunc
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// Dependencies bundles collaborators for the reconciler.
type Dependencies struct {
	Ledger    Ledger
	Tolerance ToleranceSource
	Reporter  Reporter
	Metrics   *observability.Metrics
	Logger    *zap.Logger
	Now       func() time.Time
}

// New creates a reconciler.
func New(deps Dependencies) *Reconciler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	r := &Reconciler{
		ledger:    deps.Ledger,
		tolerance: deps.Tolerance,
		reporter:  deps.Reporter,
		metrics:   deps.Metrics,
		logger:    logger,
		now:       now,
	}
	r.resolvers = map[ConflictType]resolveFunc{
		OrphanedReference: deactivateOrphan(deps.Ledger, now),
	}
	return r
}

// Run executes one reconciliation pass. phase, when non-nil, is told about
// each phase transition.
func (r *Reconciler) Run(ctx context.Context, cfg Config, phase func(Phase)) (*Report, error) {
	if phase == nil {
		phase = func(Phase) {}
	}
	report := &Report{RunID: uuid.NewString(), StartedAt: r.now()}

	phase(PhaseScanning)
	snap, err := r.ledger.Snapshot(ctx)
	if err != nil {
		r.metrics.RecordReconcilerRun("error")
		return nil, fmt.Errorf("snapshot ledger: %w", err)
	}

	opts := ScanOptions{FlagPolicyDrift: cfg.FlagPolicyDrift}
	if r.tolerance != nil {
		current, err := r.tolerance.AgeGapTolerance(ctx)
		if err != nil {
			r.logger.Warn("reading current tolerance failed; policy drift not evaluated", zap.Error(err))
			opts.FlagPolicyDrift = false
		} else {
			opts.CurrentTolerance = current
		}
	}
	report.Conflicts = Scan(snap, opts)

	var pending []Conflict
	for _, c := range report.Conflicts {
		r.metrics.RecordConflict(string(c.Type))
		if c.AutoResolvable && cfg.autoResolves(c.Type) {
			pending = append(pending, c)
		}
	}

	if len(pending) > 0 {
		phase(PhaseResolving)
		for _, c := range pending {
			resolve, ok := r.resolvers[c.Type]
			if !ok {
				continue
			}
			if err := resolve(ctx, c); err != nil {
				r.logger.Warn("conflict resolution failed",
					zap.String("run_id", report.RunID),
					zap.String("type", string(c.Type)),
					zap.Strings("allocation_ids", c.AllocationIDs),
					zap.Error(err))
				report.Failed = append(report.Failed, FailedResolution{Conflict: c, Error: err.Error()})
				continue
			}
			r.metrics.RecordResolved(string(c.Type))
			report.Resolved = append(report.Resolved, c)
		}
	}

	phase(PhaseReporting)
	report.FinishedAt = r.now()
	r.metrics.RecordReconcilerRun("ok")
	r.logger.Info("reconciliation finished",
		zap.String("run_id", report.RunID),
		zap.Int("conflicts", len(report.Conflicts)),
		zap.Int("resolved", len(report.Resolved)),
		zap.Int("failed", len(report.Failed)),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
	if r.reporter != nil {
		r.reporter.Report(ctx, *report)
	}
	return report, nil
}
