package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/housing-service/internal/api/dto"
	"github.com/spec-kit/housing-service/internal/reconciler"
	"github.com/spec-kit/housing-service/internal/service"
	apperrors "github.com/spec-kit/housing-service/pkg/util/errorutil"
)

// ReconcilerHandler controls the integrity reconciler at runtime.
type ReconcilerHandler struct {
	supervisor *reconciler.Supervisor
	reports    *service.ReportService
}

// NewReconcilerHandler constructs handler.
func NewReconcilerHandler(supervisor *reconciler.Supervisor, reports *service.ReportService) *ReconcilerHandler {
	return &ReconcilerHandler{supervisor: supervisor, reports: reports}
}

// Status GET /api/v1/reconciler/status.
func (h *ReconcilerHandler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": statusResponse(h.supervisor.Status())})
}

// Report GET /api/v1/reconciler/report.
func (h *ReconcilerHandler) Report(c *fiber.Ctx) error {
	latest := h.reports.Latest()
	if latest == nil {
		return apperrors.NewNotFound("reconciliation report", nil)
	}
	return c.JSON(fiber.Map{"data": latest})
}

// Start POST /api/v1/reconciler/start.
func (h *ReconcilerHandler) Start(c *fiber.Ctx) error {
	if err := h.supervisor.Start(c.UserContext()); err != nil {
		return supervisorError(err)
	}
	return c.JSON(fiber.Map{"data": statusResponse(h.supervisor.Status())})
}

// Stop POST /api/v1/reconciler/stop. It returns once any in-flight scan has finished.
func (h *ReconcilerHandler) Stop(c *fiber.Ctx) error {
	if err := h.supervisor.Stop(c.UserContext()); err != nil {
		return supervisorError(err)
	}
	return c.JSON(fiber.Map{"data": statusResponse(h.supervisor.Status())})
}

// Scan POST /api/v1/reconciler/scan.
func (h *ReconcilerHandler) Scan(c *fiber.Ctx) error {
	report, err := h.supervisor.ScanNow(c.UserContext())
	if err != nil {
		return supervisorError(err)
	}
	return c.JSON(fiber.Map{"data": report})
}

// Configure PUT /api/v1/reconciler/config.
func (h *ReconcilerHandler) Configure(c *fiber.Ctx) error {
	var req dto.ReconcilerConfigRequest
	if err := parseBody(c, &req, false); err != nil {
		return err
	}
	cfg, err := reconciler.ConfigFromNames(time.Duration(req.IntervalSeconds)*time.Second, req.AutoResolve, req.FlagPolicyDrift)
	if err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	if err := h.supervisor.Reconfigure(c.UserContext(), cfg); err != nil {
		return supervisorError(err)
	}
	return c.JSON(fiber.Map{"data": statusResponse(h.supervisor.Status())})
}

func supervisorError(err error) error {
	if errors.Is(err, reconciler.ErrSupervisorStopped) {
		return apperrors.NewDomainError(apperrors.CodeDependencyFailure, err.Error(), fiber.StatusServiceUnavailable, nil)
	}
	return err
}

func statusResponse(st reconciler.Status) dto.ReconcilerStatusResponse {
	resp := dto.ReconcilerStatusResponse{
		Running:         st.Running,
		Phase:           string(st.Phase),
		IntervalSeconds: int(st.Config.Interval / time.Second),
		AutoResolve:     make([]string, 0, len(st.Config.AutoResolve)),
		FlagPolicyDrift: st.Config.FlagPolicyDrift,
		Runs:            st.Runs,
		LastRunID:       st.LastRunID,
		LastError:       st.LastError,
	}
	for _, t := range st.Config.AutoResolve {
		resp.AutoResolve = append(resp.AutoResolve, string(t))
	}
	if !st.LastRunAt.IsZero() {
		at := st.LastRunAt
		resp.LastRunAt = &at
	}
	if !st.NextScanAt.IsZero() {
		at := st.NextScanAt
		resp.NextScanAt = &at
	}
	return resp
}
