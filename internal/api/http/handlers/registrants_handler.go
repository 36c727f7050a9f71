package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/housing-service/internal/api/dto"
	"github.com/spec-kit/housing-service/internal/domain"
	"github.com/spec-kit/housing-service/internal/repository"
	"github.com/spec-kit/housing-service/internal/service"
	apperrors "github.com/spec-kit/housing-service/pkg/util/errorutil"
)

// RegistrantsHandler serves the read-only registrant views.
type RegistrantsHandler struct {
	service *service.AllocationService
}

// NewRegistrantsHandler constructs handler.
func NewRegistrantsHandler(allocations *service.AllocationService) *RegistrantsHandler {
	return &RegistrantsHandler{service: allocations}
}

// Unallocated GET /api/v1/registrants/unallocated.
func (h *RegistrantsHandler) Unallocated(c *fiber.Ctx) error {
	var q dto.RegistrantQuery
	if err := c.QueryParser(&q); err != nil {
		return apperrors.NewValidationError("invalid query", nil)
	}
	if err := dto.Validate(&q); err != nil {
		return err
	}
	gender, err := optionalGender(q.Gender)
	if err != nil {
		return err
	}

	registrants, err := h.service.SearchUnallocated(c.UserContext(), service.RegistrantSearch{
		Query:  q.Query,
		Gender: gender,
		Limit:  q.Limit,
		Offset: q.Offset,
	})
	if err != nil {
		return err
	}
	if registrants == nil {
		registrants = []domain.Registrant{}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = repository.DefaultPageSize
	}
	return c.JSON(fiber.Map{"data": dto.Page{Items: registrants, Limit: limit, Offset: q.Offset}})
}
