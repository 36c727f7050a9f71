package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/housing-service/internal/api/dto"
	"github.com/spec-kit/housing-service/internal/service"
)

// SettingsHandler reads and updates allocation policy.
type SettingsHandler struct {
	settings *service.SettingsService
}

// NewSettingsHandler constructs handler.
func NewSettingsHandler(settings *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// GetTolerance GET /api/v1/settings/age-gap-tolerance.
func (h *SettingsHandler) GetTolerance(c *fiber.Ctx) error {
	value, err := h.settings.AgeGapTolerance(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToleranceResponse{Value: value}})
}

// PutTolerance PUT /api/v1/settings/age-gap-tolerance.
func (h *SettingsHandler) PutTolerance(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.ToleranceRequest
	if err := parseBody(c, &req, false); err != nil {
		return err
	}
	value, err := h.settings.SetAgeGapTolerance(c.UserContext(), *req.Value, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToleranceResponse{Value: value}})
}
