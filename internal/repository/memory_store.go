package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/housing-service/internal/domain"
)

// MemoryStore keeps registrants, rooms, allocations and settings in process.
// It backs tests and single-node runs without Postgres. One mutex guards all
// state, so every InTx callback and every Snapshot is serialized.
type MemoryStore struct {
	mu          sync.Mutex
	registrants map[string]domain.Registrant
	rooms       map[string]domain.Room
	allocations []domain.Allocation
	byID        map[string]int
	settings    map[string]domain.SettingRecord
	now         func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		registrants: make(map[string]domain.Registrant),
		rooms:       make(map[string]domain.Room),
		byID:        make(map[string]int),
		settings:    make(map[string]domain.SettingRecord),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for store-assigned timestamps.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

func (s *MemoryStore) Registrants() RegistrantRepository { return memoryRegistrants{s} }
func (s *MemoryStore) Rooms() RoomRepository             { return memoryRooms{s} }
func (s *MemoryStore) Allocations() AllocationRepository { return memoryAllocations{s} }
func (s *MemoryStore) Settings() SettingsRepository      { return memorySettings{s} }

// SeedRegistrant inserts or replaces a registrant record, standing in for the
// intake process that owns them.
func (s *MemoryStore) SeedRegistrant(reg domain.Registrant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = s.now()
	}
	s.registrants[reg.ID] = reg
}

// RemoveRegistrant deletes a registrant without touching its allocations.
func (s *MemoryStore) RemoveRegistrant(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.registrants, id)
}

// ForceAllocation writes an allocation as-is, skipping every rule the
// allocator enforces. It models manual edits to the underlying store.
func (s *MemoryStore) ForceAllocation(alloc domain.Allocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if alloc.AllocatedAt.IsZero() {
		alloc.AllocatedAt = s.now()
	}
	if idx, ok := s.byID[alloc.ID]; ok {
		s.allocations[idx] = alloc
		return
	}
	s.byID[alloc.ID] = len(s.allocations)
	s.allocations = append(s.allocations, alloc)
}

type memoryFixture struct {
	Registrants []domain.Registrant `json:"registrants"`
	Rooms       []domain.Room       `json:"rooms"`
	Allocations []domain.Allocation `json:"allocations"`
}

// LoadFixture seeds the store from a JSON file with registrants, rooms and
// allocations arrays.
func (s *MemoryStore) LoadFixture(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}
	var fx memoryFixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		return fmt.Errorf("decode fixture %s: %w", path, err)
	}
	for _, reg := range fx.Registrants {
		s.SeedRegistrant(reg)
	}
	for _, room := range fx.Rooms {
		room := room
		if err := s.Rooms().Create(context.Background(), &room); err != nil {
			return fmt.Errorf("fixture room %s: %w", room.ID, err)
		}
	}
	for _, alloc := range fx.Allocations {
		s.ForceAllocation(alloc)
	}
	return nil
}

func (s *MemoryStore) activeFor(registrantID string) (int, bool) {
	for i := range s.allocations {
		if s.allocations[i].Active && s.allocations[i].RegistrantID == registrantID {
			return i, true
		}
	}
	return 0, false
}

func (s *MemoryStore) occupants(roomID string) []domain.Occupant {
	var out []domain.Occupant
	for _, a := range s.allocations {
		if !a.Active || a.RoomID != roomID {
			continue
		}
		reg, ok := s.registrants[a.RegistrantID]
		if !ok {
			continue
		}
		out = append(out, domain.Occupant{Allocation: a, Registrant: reg})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Allocation.AllocatedAt.Before(out[j].Allocation.AllocatedAt)
	})
	return out
}

func (s *MemoryStore) deactivate(allocationID string, d domain.Deallocation) (func(), error) {
	idx, ok := s.byID[allocationID]
	if !ok || !s.allocations[idx].Active {
		return nil, ErrNotFound
	}
	prev := s.allocations[idx]
	at := d.At
	if at.IsZero() {
		at = s.now()
	}
	next := prev
	next.Active = false
	next.DeallocatedBy = &d.Actor
	next.DeallocatedAt = &at
	if d.Reason != "" {
		reason := d.Reason
		next.DeallocationReason = &reason
	}
	s.allocations[idx] = next
	return func() { s.allocations[idx] = prev }, nil
}

type memoryRegistrants struct{ s *MemoryStore }

func (r memoryRegistrants) GetByID(_ context.Context, id string) (*domain.Registrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	reg, ok := r.s.registrants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &reg, nil
}

func (r memoryRegistrants) Search(_ context.Context, filter RegistrantFilter) ([]domain.Registrant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	term := strings.ToLower(strings.TrimSpace(filter.Query))
	var matches []domain.Registrant
	for _, reg := range r.s.registrants {
		if filter.Gender != nil && reg.Gender != *filter.Gender {
			continue
		}
		if filter.UnallocatedOnly {
			if _, ok := r.s.activeFor(reg.ID); ok {
				continue
			}
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(reg.FullName), term) &&
			!strings.Contains(strings.ToLower(reg.Email), term) &&
			!strings.Contains(strings.ToLower(reg.Phone), term) {
			continue
		}
		matches = append(matches, reg)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].FullName != matches[j].FullName {
			return matches[i].FullName < matches[j].FullName
		}
		return matches[i].ID < matches[j].ID
	})

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	if offset >= len(matches) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matches) {
		end = len(matches)
	}
	return matches[offset:end], nil
}

type memoryRooms struct{ s *MemoryStore }

func (r memoryRooms) nameTaken(name, exceptID string) bool {
	for id, room := range r.s.rooms {
		if id != exceptID && room.Name == name {
			return true
		}
	}
	return false
}

func (r memoryRooms) Create(_ context.Context, room *domain.Room) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rooms[room.ID]; ok || r.nameTaken(room.Name, "") {
		return ErrDuplicate
	}
	now := r.s.now()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now
	r.s.rooms[room.ID] = *room
	return nil
}

func (r memoryRooms) Update(_ context.Context, room *domain.Room) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.rooms[room.ID]
	if !ok {
		return ErrNotFound
	}
	if r.nameTaken(room.Name, room.ID) {
		return ErrDuplicate
	}
	room.CreatedAt = existing.CreatedAt
	room.UpdatedAt = r.s.now()
	r.s.rooms[room.ID] = *room
	return nil
}

func (r memoryRooms) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rooms[id]; !ok {
		return ErrNotFound
	}
	delete(r.s.rooms, id)
	return nil
}

func (r memoryRooms) GetByID(_ context.Context, id string) (*domain.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	room, ok := r.s.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &room, nil
}

func (r memoryRooms) List(_ context.Context, filter RoomFilter) ([]domain.Room, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Room
	for _, room := range r.s.rooms {
		if filter.Gender != nil && room.Gender != *filter.Gender {
			continue
		}
		if filter.Active != nil && room.Active != *filter.Active {
			continue
		}
		out = append(out, room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type memorySettings struct{ s *MemoryStore }

func (r memorySettings) GetInt(_ context.Context, category, key string) (*domain.SettingRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.settings[category+"/"+key]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (r memorySettings) UpsertInt(_ context.Context, record *domain.SettingRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	record.UpdatedAt = r.s.now()
	r.s.settings[record.Category+"/"+record.Key] = *record
	return nil
}

type memoryAllocations struct{ s *MemoryStore }

func (r memoryAllocations) InTx(ctx context.Context, _ string, fn func(tx LedgerTx) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryLedgerTx{s: r.s}
	if err := fn(tx); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

func (r memoryAllocations) ActiveByRegistrant(_ context.Context, registrantID string) (*domain.Allocation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	idx, ok := r.s.activeFor(registrantID)
	if !ok {
		return nil, ErrNotFound
	}
	alloc := r.s.allocations[idx]
	return &alloc, nil
}

func (r memoryAllocations) History(_ context.Context, registrantID string) ([]domain.Allocation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Allocation
	for i := len(r.s.allocations) - 1; i >= 0; i-- {
		if r.s.allocations[i].RegistrantID == registrantID {
			out = append(out, r.s.allocations[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AllocatedAt.After(out[j].AllocatedAt) })
	return out, nil
}

func (r memoryAllocations) ActiveOccupants(_ context.Context, roomID string) ([]domain.Occupant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.occupants(roomID), nil
}

func (r memoryAllocations) OccupancyCounts(_ context.Context) (map[string]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := make(map[string]int)
	for _, a := range r.s.allocations {
		if a.Active {
			counts[a.RoomID]++
		}
	}
	return counts, nil
}

func (r memoryAllocations) DeactivateIfActive(_ context.Context, allocationID string, d domain.Deallocation) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, err := r.s.deactivate(allocationID, d); err != nil {
		return false, nil
	}
	return true, nil
}

func (r memoryAllocations) Snapshot(_ context.Context) (*domain.LedgerSnapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	snap := &domain.LedgerSnapshot{
		Rooms:       make(map[string]domain.Room, len(r.s.rooms)),
		Registrants: make(map[string]domain.Registrant),
		TakenAt:     r.s.now(),
	}
	for id, room := range r.s.rooms {
		snap.Rooms[id] = room
	}
	for _, a := range r.s.allocations {
		if !a.Active {
			continue
		}
		snap.Allocations = append(snap.Allocations, a)
		if reg, ok := r.s.registrants[a.RegistrantID]; ok {
			snap.Registrants[reg.ID] = reg
		}
	}
	sort.SliceStable(snap.Allocations, func(i, j int) bool {
		ai, aj := snap.Allocations[i], snap.Allocations[j]
		if !ai.AllocatedAt.Equal(aj.AllocatedAt) {
			return ai.AllocatedAt.Before(aj.AllocatedAt)
		}
		return ai.ID < aj.ID
	})
	return snap, nil
}

// memoryLedgerTx runs with the store mutex already held.
type memoryLedgerTx struct {
	s    *MemoryStore
	undo []func()
}

func (t *memoryLedgerTx) LockRoom(_ context.Context, roomID string) (*domain.Room, error) {
	room, ok := t.s.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	return &room, nil
}

func (t *memoryLedgerTx) ActiveByRegistrant(_ context.Context, registrantID string) (*domain.Allocation, error) {
	idx, ok := t.s.activeFor(registrantID)
	if !ok {
		return nil, ErrNotFound
	}
	alloc := t.s.allocations[idx]
	return &alloc, nil
}

func (t *memoryLedgerTx) ActiveOccupants(_ context.Context, roomID string) ([]domain.Occupant, error) {
	return t.s.occupants(roomID), nil
}

func (t *memoryLedgerTx) CountActive(_ context.Context, roomID string) (int, error) {
	count := 0
	for _, a := range t.s.allocations {
		if a.Active && a.RoomID == roomID {
			count++
		}
	}
	return count, nil
}

func (t *memoryLedgerTx) Insert(_ context.Context, alloc *domain.Allocation) error {
	if _, ok := t.s.activeFor(alloc.RegistrantID); ok {
		return ErrDuplicate
	}
	if _, ok := t.s.byID[alloc.ID]; ok {
		return ErrDuplicate
	}
	alloc.Active = true
	idx := len(t.s.allocations)
	t.s.byID[alloc.ID] = idx
	t.s.allocations = append(t.s.allocations, *alloc)
	t.undo = append(t.undo, func() {
		delete(t.s.byID, alloc.ID)
		t.s.allocations = t.s.allocations[:idx]
	})
	return nil
}

func (t *memoryLedgerTx) Deactivate(_ context.Context, allocationID string, d domain.Deallocation) error {
	undo, err := t.s.deactivate(allocationID, d)
	if err != nil {
		return err
	}
	t.undo = append(t.undo, undo)
	return nil
}
