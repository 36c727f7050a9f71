package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/housing-service/internal/api/dto"
	"github.com/spec-kit/housing-service/internal/domain"
	"github.com/spec-kit/housing-service/internal/service"
)

// AllocationsHandler exposes allocate/deallocate and occupancy statistics.
type AllocationsHandler struct {
	service *service.AllocationService
}

// NewAllocationsHandler constructs handler.
func NewAllocationsHandler(allocations *service.AllocationService) *AllocationsHandler {
	return &AllocationsHandler{service: allocations}
}

// Allocate POST /api/v1/allocations.
func (h *AllocationsHandler) Allocate(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.AllocateRequest
	if err := parseBody(c, &req, false); err != nil {
		return err
	}
	alloc, err := h.service.Allocate(c.UserContext(), req.RegistrantID, req.RoomID, actor)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": alloc})
}

// Deallocate DELETE /api/v1/allocations/registrants/:registrantId.
func (h *AllocationsHandler) Deallocate(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.DeallocateRequest
	if err := parseBody(c, &req, true); err != nil {
		return err
	}
	alloc, err := h.service.Deallocate(c.UserContext(), c.Params("registrantId"), actor, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": alloc})
}

// ForRegistrant GET /api/v1/allocations/registrants/:registrantId.
func (h *AllocationsHandler) ForRegistrant(c *fiber.Ctx) error {
	registrantID := c.Params("registrantId")
	history, err := h.service.History(c.UserContext(), registrantID)
	if err != nil {
		return err
	}
	resp := dto.RegistrantAllocationsResponse{RegistrantID: registrantID, History: history}
	for i := range history {
		if history[i].Active {
			resp.Active = &history[i]
			break
		}
	}
	if resp.History == nil {
		resp.History = []domain.Allocation{}
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Statistics GET /api/v1/allocations/statistics.
func (h *AllocationsHandler) Statistics(c *fiber.Ctx) error {
	gender, err := optionalGender(c.Query("gender"))
	if err != nil {
		return err
	}
	stats, err := h.service.Statistics(c.UserContext(), gender)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}
