package reconciler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spec-kit/housing-service/internal/domain"
)

// ScanOptions tunes a scan.
type ScanOptions struct {
	// CurrentTolerance is the policy value in force now. It is used for
	// allocations written without a recorded tolerance and for policy-drift.
	CurrentTolerance int
	FlagPolicyDrift  bool
}

// Scan derives every conflict visible in snap. It does not touch storage.
func Scan(snap *domain.LedgerSnapshot, opts ScanOptions) []Conflict {
	if snap == nil {
		return nil
	}
	var conflicts []Conflict
	add := func(c Conflict) {
		c.DetectedAt = snap.TakenAt
		c.AutoResolvable = resolvable(c.Type)
		conflicts = append(conflicts, c)
	}

	allocs := append([]domain.Allocation(nil), snap.Allocations...)
	sort.SliceStable(allocs, func(i, j int) bool { return allocatedBefore(allocs[i], allocs[j]) })

	var live []domain.Allocation
	for _, a := range allocs {
		_, roomOK := snap.Rooms[a.RoomID]
		_, regOK := snap.Registrants[a.RegistrantID]
		if roomOK && regOK {
			live = append(live, a)
			continue
		}
		var missing []string
		if !roomOK {
			missing = append(missing, "room "+a.RoomID)
		}
		if !regOK {
			missing = append(missing, "registrant "+a.RegistrantID)
		}
		add(Conflict{
			Type:          OrphanedReference,
			RoomID:        a.RoomID,
			RegistrantIDs: []string{a.RegistrantID},
			AllocationIDs: []string{a.ID},
			Detail:        fmt.Sprintf("active allocation references missing %s", strings.Join(missing, " and ")),
		})
	}

	byRegistrant := map[string][]domain.Allocation{}
	byRoom := map[string][]domain.Allocation{}
	for _, a := range live {
		byRegistrant[a.RegistrantID] = append(byRegistrant[a.RegistrantID], a)
		byRoom[a.RoomID] = append(byRoom[a.RoomID], a)

		room, reg := snap.Rooms[a.RoomID], snap.Registrants[a.RegistrantID]
		if room.Gender != reg.Gender {
			add(Conflict{
				Type:          GenderMismatch,
				RoomID:        a.RoomID,
				RegistrantIDs: []string{a.RegistrantID},
				AllocationIDs: []string{a.ID},
				Detail:        fmt.Sprintf("%s registrant in %s room", reg.Gender, room.Gender),
			})
		}
	}

	for registrantID, held := range byRegistrant {
		if len(held) < 2 {
			continue
		}
		add(Conflict{
			Type:          DuplicateAllocation,
			RegistrantIDs: []string{registrantID},
			AllocationIDs: allocationIDs(held),
			Detail:        fmt.Sprintf("registrant holds %d active allocations", len(held)),
		})
	}

	for roomID, occupants := range byRoom {
		room := snap.Rooms[roomID]
		if len(occupants) > room.Capacity {
			add(Conflict{
				Type:          CapacityExceeded,
				RoomID:        roomID,
				RegistrantIDs: registrantIDs(occupants),
				AllocationIDs: allocationIDs(occupants),
				Detail:        fmt.Sprintf("%d active allocations for capacity %d", len(occupants), room.Capacity),
			})
		}
		for _, c := range agePairs(snap, roomID, occupants, opts) {
			add(c)
		}
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		if conflicts[i].Type != conflicts[j].Type {
			return conflicts[i].Type < conflicts[j].Type
		}
		return subject(conflicts[i]) < subject(conflicts[j])
	})
	return conflicts
}

// agePairs checks every pair in a room against the tolerance recorded on the
// later of the two allocations, with ages taken at that allocation's time.
func agePairs(snap *domain.LedgerSnapshot, roomID string, occupants []domain.Allocation, opts ScanOptions) []Conflict {
	var out []Conflict
	for i := 0; i < len(occupants); i++ {
		for j := i + 1; j < len(occupants); j++ {
			earlier, later := occupants[i], occupants[j]
			if allocatedBefore(later, earlier) {
				earlier, later = later, earlier
			}
			if earlier.RegistrantID == later.RegistrantID {
				continue
			}
			at := later.AllocatedAt
			a := snap.Registrants[earlier.RegistrantID].AgeAt(at)
			b := snap.Registrants[later.RegistrantID].AgeAt(at)
			gap := domain.AgeGap(a, b)

			recorded := later.AgeGapTolerance
			if recorded <= 0 {
				recorded = opts.CurrentTolerance
			}
			pair := Conflict{
				RoomID:        roomID,
				RegistrantIDs: []string{earlier.RegistrantID, later.RegistrantID},
				AllocationIDs: []string{earlier.ID, later.ID},
			}
			switch {
			case recorded > 0 && gap > recorded:
				pair.Type = AgeGapViolation
				pair.Detail = fmt.Sprintf("age gap %d exceeds tolerance %d recorded at allocation", gap, recorded)
				out = append(out, pair)
			case opts.FlagPolicyDrift && opts.CurrentTolerance > 0 && gap > opts.CurrentTolerance:
				pair.Type = PolicyDrift
				pair.Detail = fmt.Sprintf("age gap %d is within recorded tolerance %d but exceeds current tolerance %d",
					gap, recorded, opts.CurrentTolerance)
				out = append(out, pair)
			}
		}
	}
	return out
}

func allocatedBefore(a, b domain.Allocation) bool {
	if !a.AllocatedAt.Equal(b.AllocatedAt) {
		return a.AllocatedAt.Before(b.AllocatedAt)
	}
	return a.ID < b.ID
}

func allocationIDs(allocs []domain.Allocation) []string {
	ids := make([]string, len(allocs))
	for i, a := range allocs {
		ids[i] = a.ID
	}
	return ids
}

func registrantIDs(allocs []domain.Allocation) []string {
	ids := make([]string, len(allocs))
	for i, a := range allocs {
		ids[i] = a.RegistrantID
	}
	return ids
}

func subject(c Conflict) string {
	switch c.Type {
	case CapacityExceeded:
		return c.RoomID
	case DuplicateAllocation:
		return strings.Join(c.RegistrantIDs, ",")
	default:
		return c.RoomID + "/" + strings.Join(c.AllocationIDs, ",")
	}
}
