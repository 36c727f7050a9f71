package dto

// CreateRoomRequest payload.
type CreateRoomRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Gender   string `json:"gender" validate:"required,oneof=MALE FEMALE"`
	Capacity int    `json:"capacity" validate:"required,min=1"`
	Active   *bool  `json:"active"`
}

// UpdateRoomRequest payload. Absent fields are left unchanged.
type UpdateRoomRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=100"`
	Gender   *string `json:"gender" validate:"omitempty,oneof=MALE FEMALE"`
	Capacity *int    `json:"capacity" validate:"omitempty,min=1"`
	Active   *bool   `json:"active"`
}
