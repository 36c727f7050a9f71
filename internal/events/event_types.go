package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAllocationCreated       EventType = "allocation_created"
	EventAllocationEnded         EventType = "allocation_ended"
	EventPolicyChanged           EventType = "policy_changed"
	EventRoomChanged             EventType = "room_changed"
	EventReconciliationCompleted EventType = "reconciliation_completed"
	EventConflictResolved        EventType = "conflict_resolved"
)

// Event represents a domain event emitted by services. SubjectID is the
// registrant, room, setting key or reconciler run the event is about.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	SubjectID string      `json:"subject_id"`
	Actor     string      `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// AllocationCreatedPayload payload.
type AllocationCreatedPayload struct {
	AllocationID    string `json:"allocation_id"`
	RegistrantID    string `json:"registrant_id"`
	RoomID          string `json:"room_id"`
	AgeGapTolerance int    `json:"age_gap_tolerance"`
}

// AllocationEndedPayload payload.
type AllocationEndedPayload struct {
	AllocationID string `json:"allocation_id"`
	RegistrantID string `json:"registrant_id"`
	RoomID       string `json:"room_id"`
	Reason       string `json:"reason,omitempty"`
}

// PolicyChangedPayload payload.
type PolicyChangedPayload struct {
	Category string `json:"category"`
	Key      string `json:"key"`
	OldValue int    `json:"old_value"`
	NewValue int    `json:"new_value"`
}

// RoomChange names what happened to a room.
type RoomChange string

const (
	RoomCreated RoomChange = "created"
	RoomUpdated RoomChange = "updated"
	RoomDeleted RoomChange = "deleted"
)

// RoomChangedPayload payload.
type RoomChangedPayload struct {
	RoomID   string     `json:"room_id"`
	Change   RoomChange `json:"change"`
	Capacity int        `json:"capacity,omitempty"`
	Active   bool       `json:"active"`
}

// ReconciliationCompletedPayload summarizes one reconciler run.
type ReconciliationCompletedPayload struct {
	RunID     string         `json:"run_id"`
	Conflicts int            `json:"conflicts"`
	Resolved  int            `json:"resolved"`
	Failed    int            `json:"failed"`
	ByType    map[string]int `json:"by_type"`
	Duration  time.Duration  `json:"duration"`
}

// ConflictResolvedPayload payload.
type ConflictResolvedPayload struct {
	RunID        string `json:"run_id"`
	ConflictType string `json:"conflict_type"`
	AllocationID string `json:"allocation_id"`
}
