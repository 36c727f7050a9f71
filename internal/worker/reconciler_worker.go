package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/housing-service/internal/reconciler"
	"github.com/spec-kit/housing-service/internal/service"
)

// StartReportWorker registers the reporting handlers.
func StartReportWorker(reportService *service.ReportService) {
	if reportService == nil {
		return
	}
	reportService.RegisterHandlers()
}

// StartReconciler runs the supervisor loop in the background and, when
// enabled, turns on periodic scans. The returned wait func blocks until the
// loop has exited after ctx is cancelled.
func StartReconciler(ctx context.Context, sup *reconciler.Supervisor, enabled bool, logger *zap.Logger) (wait func()) {
	if sup == nil {
		return func() {}
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sup.Run(ctx)
	}()

	if enabled {
		if err := sup.Start(ctx); err != nil {
			logger.Error("failed to start reconciler", zap.Error(err))
		}
	} else {
		logger.Info("reconciler schedule disabled; scans run on demand only")
	}
	return wg.Wait
}
