package domain

import "time"

// Allocation binds one registrant to one room. Ended allocations stay on
// record with Active=false for audit.
type Allocation struct {
	ID                 string     `json:"id"`
	RegistrantID       string     `json:"registrant_id"`
	RoomID             string     `json:"room_id"`
	AllocatedBy        string     `json:"allocated_by"`
	AllocatedAt        time.Time  `json:"allocated_at"`
	AgeGapTolerance    int        `json:"age_gap_tolerance"`
	Active             bool       `json:"active"`
	DeallocatedBy      *string    `json:"deallocated_by,omitempty"`
	DeallocatedAt      *time.Time `json:"deallocated_at,omitempty"`
	DeallocationReason *string    `json:"deallocation_reason,omitempty"`
}

// Deallocation describes how an allocation was ended.
type Deallocation struct {
	Actor  string
	Reason string
	At     time.Time
}

// LedgerSnapshot is a single consistent read of the ledger and both catalogs.
// Registrants holds only the registrants referenced by active allocations.
type LedgerSnapshot struct {
	Rooms       map[string]Room
	Registrants map[string]Registrant
	Allocations []Allocation
	TakenAt     time.Time
}
