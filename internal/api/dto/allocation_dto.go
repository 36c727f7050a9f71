package dto

import (
	"github.com/spec-kit/housing-service/internal/domain"
)

// AllocateRequest payload.
type AllocateRequest struct {
	RegistrantID string `json:"registrant_id" validate:"required"`
	RoomID       string `json:"room_id" validate:"required"`
}

// DeallocateRequest payload. The body is optional.
type DeallocateRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// RegistrantAllocationsResponse shows the active allocation and the full history.
type RegistrantAllocationsResponse struct {
	RegistrantID string              `json:"registrant_id"`
	Active       *domain.Allocation  `json:"active"`
	History      []domain.Allocation `json:"history"`
}

// RegistrantQuery captures filters for the unallocated listing.
type RegistrantQuery struct {
	Query  string `query:"q"`
	Gender string `query:"gender" json:"gender"`
	Limit  int    `query:"limit" json:"limit" validate:"gte=0,lte=100"`
	Offset int    `query:"offset" json:"offset" validate:"gte=0"`
}

// Page wraps a listing with its paging window.
type Page struct {
	Items  any `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
