package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/housing-service/internal/api/dto"
	"github.com/spec-kit/housing-service/internal/domain"
	"github.com/spec-kit/housing-service/internal/repository"
	"github.com/spec-kit/housing-service/internal/service"
)

// RoomsHandler serves the room catalog and its occupancy views.
type RoomsHandler struct {
	rooms       *service.RoomService
	allocations *service.AllocationService
}

// NewRoomsHandler constructs handler.
func NewRoomsHandler(rooms *service.RoomService, allocations *service.AllocationService) *RoomsHandler {
	return &RoomsHandler{rooms: rooms, allocations: allocations}
}

// List GET /api/v1/rooms.
func (h *RoomsHandler) List(c *fiber.Ctx) error {
	gender, err := optionalGender(c.Query("gender"))
	if err != nil {
		return err
	}
	active, err := optionalBool(c.Query("active"), "active")
	if err != nil {
		return err
	}
	rooms, err := h.allocations.ListRoomOccupancy(c.UserContext(), repository.RoomFilter{Gender: gender, Active: active})
	if err != nil {
		return err
	}
	if rooms == nil {
		rooms = []domain.RoomOccupancy{}
	}
	return c.JSON(fiber.Map{"data": rooms})
}

// Get GET /api/v1/rooms/:id.
func (h *RoomsHandler) Get(c *fiber.Ctx) error {
	detail, err := h.allocations.RoomDetail(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": detail})
}

// Create POST /api/v1/rooms.
func (h *RoomsHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateRoomRequest
	if err := parseBody(c, &req, false); err != nil {
		return err
	}
	room, err := h.rooms.Create(c.UserContext(), service.RoomInput{
		Name:     req.Name,
		Gender:   domain.Gender(req.Gender),
		Capacity: req.Capacity,
		Active:   req.Active,
	}, actor)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": room})
}

// Update PATCH /api/v1/rooms/:id.
func (h *RoomsHandler) Update(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.UpdateRoomRequest
	if err := parseBody(c, &req, false); err != nil {
		return err
	}
	upd := service.RoomUpdate{Name: req.Name, Capacity: req.Capacity, Active: req.Active}
	if req.Gender != nil {
		g := domain.Gender(*req.Gender)
		upd.Gender = &g
	}
	room, err := h.rooms.Update(c.UserContext(), c.Params("id"), upd, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": room})
}

// Delete DELETE /api/v1/rooms/:id.
func (h *RoomsHandler) Delete(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if err := h.rooms.Delete(c.UserContext(), c.Params("id"), actor); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
