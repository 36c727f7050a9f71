package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/housing-service/internal/domain"
	"github.com/spec-kit/housing-service/internal/events"
	"github.com/spec-kit/housing-service/internal/reconciler"
)

// ReportService is the reporting layer: it keeps the latest reconciler report
// and writes an audit log line for every domain event.
type ReportService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger

	mu     sync.RWMutex
	latest *reconciler.Report
}

// NewReportService creates the service.
func NewReportService(dispatcher events.Dispatcher, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (r *ReportService) RegisterHandlers() {
	if r.dispatcher == nil {
		return
	}
	r.dispatcher.Subscribe(events.EventAllocationCreated, r.handleAllocationCreated)
	r.dispatcher.Subscribe(events.EventAllocationEnded, r.handleAllocationEnded)
	r.dispatcher.Subscribe(events.EventPolicyChanged, r.handlePolicyChanged)
	r.dispatcher.Subscribe(events.EventRoomChanged, r.handleRoomChanged)
	r.dispatcher.Subscribe(events.EventConflictResolved, r.handleConflictResolved)
}

// Report stores report as the latest and announces it.
func (r *ReportService) Report(ctx context.Context, report reconciler.Report) {
	r.mu.Lock()
	r.latest = &report
	r.mu.Unlock()

	if r.dispatcher == nil {
		return
	}
	for _, c := range report.Resolved {
		allocationID := ""
		if len(c.AllocationIDs) > 0 {
			allocationID = c.AllocationIDs[0]
		}
		r.publish(ctx, events.Event{
			Type:      events.EventConflictResolved,
			SubjectID: report.RunID,
			Actor:     domain.SystemReconcilerActor,
			Payload: events.ConflictResolvedPayload{
				RunID:        report.RunID,
				ConflictType: string(c.Type),
				AllocationID: allocationID,
			},
		})
	}
	r.publish(ctx, events.Event{
		Type:      events.EventReconciliationCompleted,
		SubjectID: report.RunID,
		Actor:     domain.SystemReconcilerActor,
		Timestamp: report.FinishedAt,
		Payload: events.ReconciliationCompletedPayload{
			RunID:     report.RunID,
			Conflicts: len(report.Conflicts),
			Resolved:  len(report.Resolved),
			Failed:    len(report.Failed),
			ByType:    report.CountByType(),
			Duration:  report.FinishedAt.Sub(report.StartedAt),
		},
	})
}

// Latest returns the most recent report, or nil before the first run.
func (r *ReportService) Latest() *reconciler.Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.latest == nil {
		return nil
	}
	cp := *r.latest
	return &cp
}

func (r *ReportService) handleAllocationCreated(_ context.Context, event events.Event) error {
	r.logger.Info("AllocationCreated", zap.String("registrant_id", event.SubjectID), zap.String("actor", event.Actor), zap.Any("payload", event.Payload))
	return nil
}

func (r *ReportService) handleAllocationEnded(_ context.Context, event events.Event) error {
	r.logger.Info("AllocationEnded", zap.String("registrant_id", event.SubjectID), zap.String("actor", event.Actor), zap.Any("payload", event.Payload))
	return nil
}

func (r *ReportService) handlePolicyChanged(_ context.Context, event events.Event) error {
	r.logger.Info("PolicyChanged", zap.String("setting", event.SubjectID), zap.String("actor", event.Actor), zap.Any("payload", event.Payload))
	return nil
}

func (r *ReportService) handleRoomChanged(_ context.Context, event events.Event) error {
	r.logger.Info("RoomChanged", zap.String("room_id", event.SubjectID), zap.String("actor", event.Actor), zap.Any("payload", event.Payload))
	return nil
}

func (r *ReportService) handleConflictResolved(_ context.Context, event events.Event) error {
	r.logger.Info("ConflictResolved", zap.String("run_id", event.SubjectID), zap.Any("payload", event.Payload))
	return nil
}

func (r *ReportService) publish(ctx context.Context, event events.Event) {
	if err := r.dispatcher.Publish(ctx, event); err != nil {
		r.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}
