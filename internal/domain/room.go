package domain

import "time"

// Room is a capacity-bounded, gender-designated housing resource.
type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Gender    Gender    `json:"gender"`
	Capacity  int       `json:"capacity"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Occupant pairs an active allocation with the registrant holding it.
type Occupant struct {
	Allocation Allocation
	Registrant Registrant
}

// RoomOccupancy is the read model handed to the reporting layer.
type RoomOccupancy struct {
	Room      Room           `json:"room"`
	Occupied  int            `json:"occupied"`
	Available int            `json:"available"`
	Occupants []OccupantView `json:"occupants,omitempty"`
}

// OccupantView is the presentation-free summary of one occupant.
type OccupantView struct {
	AllocationID string    `json:"allocation_id"`
	RegistrantID string    `json:"registrant_id"`
	FullName     string    `json:"full_name"`
	Age          int       `json:"age"`
	AllocatedAt  time.Time `json:"allocated_at"`
	AllocatedBy  string    `json:"allocated_by"`
}

// OccupancyStats aggregates capacity figures across rooms.
type OccupancyStats struct {
	TotalRooms     int                      `json:"total_rooms"`
	ActiveRooms    int                      `json:"active_rooms"`
	TotalCapacity  int                      `json:"total_capacity"`
	Occupied       int                      `json:"occupied"`
	Available      int                      `json:"available"`
	AllocationRate float64                  `json:"allocation_rate"`
	ByGender       map[Gender]GenderSummary `json:"by_gender"`
}

// GenderSummary is the per-gender slice of OccupancyStats.
type GenderSummary struct {
	Rooms     int `json:"rooms"`
	Capacity  int `json:"capacity"`
	Occupied  int `json:"occupied"`
	Available int `json:"available"`
}
