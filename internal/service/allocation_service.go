package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/housing-service/internal/cache"
	"github.com/spec-kit/housing-service/internal/domain"
	"github.com/spec-kit/housing-service/internal/events"
	"github.com/spec-kit/housing-service/internal/lock"
	"github.com/spec-kit/housing-service/internal/observability"
	"github.com/spec-kit/housing-service/internal/repository"
	apperrors "github.com/spec-kit/housing-service/pkg/util/errorutil"
)

// AllocationService assigns registrants to rooms and answers occupancy queries.
type AllocationService struct {
	registrants   repository.RegistrantRepository
	rooms         repository.RoomRepository
	ledger        repository.AllocationRepository
	settings      *SettingsService
	cache         cache.Cache
	registrantTTL time.Duration
	locks         *lock.Keyed
	dispatcher    events.Dispatcher
	metrics       *observability.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

// AllocationDependencies bundles collaborators for the allocation service.
type AllocationDependencies struct {
	RegistrantRepo repository.RegistrantRepository
	RoomRepo       repository.RoomRepository
	Ledger         repository.AllocationRepository
	Settings       *SettingsService
	Cache          cache.Cache
	RegistrantTTL  time.Duration
	Locks          *lock.Keyed
	Dispatcher     events.Dispatcher
	Metrics        *observability.Metrics
	Logger         *zap.Logger
	Now            func() time.Time
}

// RegistrantSearch filters the unallocated registrant listing.
type RegistrantSearch struct {
	Query  string
	Gender *domain.Gender
	Limit  int
	Offset int
}

// NewAllocationService creates the service.
func NewAllocationService(deps AllocationDependencies) *AllocationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := deps.Cache
	if c == nil {
		c = cache.NewMemory()
	}
	locks := deps.Locks
	if locks == nil {
		locks = lock.NewKeyed()
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &AllocationService{
		registrants:   deps.RegistrantRepo,
		rooms:         deps.RoomRepo,
		ledger:        deps.Ledger,
		settings:      deps.Settings,
		cache:         c,
		registrantTTL: deps.RegistrantTTL,
		locks:         locks,
		dispatcher:    deps.Dispatcher,
		metrics:       deps.Metrics,
		logger:        logger,
		now:           now,
	}
}

// Allocate places the registrant in the room when every eligibility rule holds.
// Rules are checked in a fixed order so the reported error kind is stable:
// room exists, room active, registrant unallocated, gender, capacity, age gap.
func (s *AllocationService) Allocate(ctx context.Context, registrantID, roomID, actor string) (*domain.Allocation, error) {
	alloc, err := s.allocate(ctx, registrantID, roomID, actor)
	s.metrics.RecordAllocation(outcome(err))
	if err != nil {
		s.logger.Info("allocation rejected",
			zap.String("registrant_id", registrantID),
			zap.String("room_id", roomID),
			zap.String("actor", actor),
			zap.String("code", outcome(err)))
		return nil, err
	}

	s.logger.Info("allocation created",
		zap.String("allocation_id", alloc.ID),
		zap.String("registrant_id", registrantID),
		zap.String("room_id", roomID),
		zap.String("actor", actor))
	s.publish(ctx, events.Event{
		Type:      events.EventAllocationCreated,
		SubjectID: registrantID,
		Actor:     actor,
		Payload: events.AllocationCreatedPayload{
			AllocationID:    alloc.ID,
			RegistrantID:    alloc.RegistrantID,
			RoomID:          alloc.RoomID,
			AgeGapTolerance: alloc.AgeGapTolerance,
		},
	})
	return alloc, nil
}

func (s *AllocationService) allocate(ctx context.Context, registrantID, roomID, actor string) (*domain.Allocation, error) {
	unlock, err := s.locks.LockAll(ctx, lock.RegistrantKey(registrantID), lock.RoomKey(roomID))
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	defer unlock()

	// Read through to the catalog: a cached entry may outlive a removed registrant.
	registrant, err := s.registrants.GetByID(ctx, registrantID)
	if err != nil {
		return nil, s.registrantNotFound(registrantID, err)
	}
	tolerance, err := s.settings.AgeGapTolerance(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	alloc := &domain.Allocation{
		ID:              uuid.NewString(),
		RegistrantID:    registrantID,
		RoomID:          roomID,
		AllocatedBy:     actor,
		AllocatedAt:     now,
		AgeGapTolerance: tolerance,
	}

	err = s.ledger.InTx(ctx, registrantID, func(tx repository.LedgerTx) error {
		room, err := tx.LockRoom(ctx, roomID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("room", map[string]any{"room_id": roomID})
		}
		if err != nil {
			return err
		}
		if !room.Active {
			return apperrors.NewRoomInactive(map[string]any{"room_id": roomID})
		}

		existing, err := tx.ActiveByRegistrant(ctx, registrantID)
		if err == nil {
			return apperrors.NewAlreadyAllocated(map[string]any{
				"registrant_id": registrantID,
				"allocation_id": existing.ID,
				"room_id":       existing.RoomID,
			})
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		if room.Gender != registrant.Gender {
			return apperrors.NewGenderMismatch(map[string]any{
				"room_gender":       room.Gender,
				"registrant_gender": registrant.Gender,
			})
		}

		occupied, err := tx.CountActive(ctx, roomID)
		if err != nil {
			return err
		}
		if occupied >= room.Capacity {
			return apperrors.NewCapacityExceeded(map[string]any{
				"room_id":  roomID,
				"capacity": room.Capacity,
				"occupied": occupied,
			})
		}

		occupants, err := tx.ActiveOccupants(ctx, roomID)
		if err != nil {
			return err
		}
		age := registrant.AgeAt(now)
		for _, occ := range occupants {
			gap := domain.AgeGap(age, occ.Registrant.AgeAt(now))
			if gap > tolerance {
				return apperrors.NewAgeGapViolation(map[string]any{
					"occupant_registrant_id": occ.Registrant.ID,
					"age_gap":                gap,
					"tolerance":              tolerance,
				})
			}
		}

		err = tx.Insert(ctx, alloc)
		if errors.Is(err, repository.ErrDuplicate) {
			return apperrors.NewAlreadyAllocated(map[string]any{"registrant_id": registrantID})
		}
		return err
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return alloc, nil
}

// Deallocate ends the registrant's active allocation.
func (s *AllocationService) Deallocate(ctx context.Context, registrantID, actor, reason string) (*domain.Allocation, error) {
	unlock, err := s.locks.Lock(ctx, lock.RegistrantKey(registrantID))
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	defer unlock()

	var ended *domain.Allocation
	err = s.ledger.InTx(ctx, registrantID, func(tx repository.LedgerTx) error {
		active, err := tx.ActiveByRegistrant(ctx, registrantID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotAllocated(map[string]any{"registrant_id": registrantID})
		}
		if err != nil {
			return err
		}

		d := domain.Deallocation{Actor: actor, Reason: reason, At: s.now()}
		if err := tx.Deactivate(ctx, active.ID, d); err != nil {
			return err
		}
		active.Active = false
		active.DeallocatedBy = &d.Actor
		active.DeallocatedAt = &d.At
		if reason != "" {
			active.DeallocationReason = &d.Reason
		}
		ended = active
		return nil
	})
	s.metrics.RecordDeallocation(outcome(err))
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	s.logger.Info("allocation ended",
		zap.String("allocation_id", ended.ID),
		zap.String("registrant_id", registrantID),
		zap.String("room_id", ended.RoomID),
		zap.String("actor", actor))
	s.publish(ctx, events.Event{
		Type:      events.EventAllocationEnded,
		SubjectID: registrantID,
		Actor:     actor,
		Payload: events.AllocationEndedPayload{
			AllocationID: ended.ID,
			RegistrantID: registrantID,
			RoomID:       ended.RoomID,
			Reason:       reason,
		},
	})
	return ended, nil
}

// Statistics aggregates capacity and occupancy over active rooms, optionally
// restricted to one gender.
func (s *AllocationService) Statistics(ctx context.Context, gender *domain.Gender) (*domain.OccupancyStats, error) {
	rooms, err := s.rooms.List(ctx, repository.RoomFilter{Gender: gender})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	counts, err := s.ledger.OccupancyCounts(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	stats := &domain.OccupancyStats{
		TotalRooms: len(rooms),
		ByGender:   map[domain.Gender]domain.GenderSummary{},
	}
	for _, room := range rooms {
		if !room.Active {
			continue
		}
		occupied := counts[room.ID]
		available := room.Capacity - occupied
		if available < 0 {
			available = 0
		}
		stats.ActiveRooms++
		stats.TotalCapacity += room.Capacity
		stats.Occupied += occupied
		stats.Available += available

		summary := stats.ByGender[room.Gender]
		summary.Rooms++
		summary.Capacity += room.Capacity
		summary.Occupied += occupied
		summary.Available += available
		stats.ByGender[room.Gender] = summary
	}
	if stats.TotalCapacity > 0 {
		rate := float64(stats.Occupied) / float64(stats.TotalCapacity) * 100
		stats.AllocationRate = math.Round(rate*100) / 100
	}
	return stats, nil
}

// ListRoomOccupancy returns occupancy figures for every room matching filter.
func (s *AllocationService) ListRoomOccupancy(ctx context.Context, filter repository.RoomFilter) ([]domain.RoomOccupancy, error) {
	rooms, err := s.rooms.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	counts, err := s.ledger.OccupancyCounts(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	result := make([]domain.RoomOccupancy, 0, len(rooms))
	for _, room := range rooms {
		result = append(result, occupancyOf(room, counts[room.ID]))
	}
	return result, nil
}

// RoomDetail returns one room with its current occupants and their ages.
func (s *AllocationService) RoomDetail(ctx context.Context, roomID string) (*domain.RoomOccupancy, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("room", map[string]any{"room_id": roomID})
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	counts, err := s.ledger.OccupancyCounts(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	occupants, err := s.ledger.ActiveOccupants(ctx, roomID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	detail := occupancyOf(*room, counts[room.ID])
	now := s.now()
	for _, occ := range occupants {
		detail.Occupants = append(detail.Occupants, domain.OccupantView{
			AllocationID: occ.Allocation.ID,
			RegistrantID: occ.Registrant.ID,
			FullName:     occ.Registrant.FullName,
			Age:          occ.Registrant.AgeAt(now),
			AllocatedAt:  occ.Allocation.AllocatedAt,
			AllocatedBy:  occ.Allocation.AllocatedBy,
		})
	}
	return &detail, nil
}

// SearchUnallocated lists registrants without an active allocation.
func (s *AllocationService) SearchUnallocated(ctx context.Context, search RegistrantSearch) ([]domain.Registrant, error) {
	result, err := s.registrants.Search(ctx, repository.RegistrantFilter{
		Query:           search.Query,
		Gender:          search.Gender,
		UnallocatedOnly: true,
		Limit:           search.Limit,
		Offset:          search.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return result, nil
}

// AllocationForRegistrant returns the registrant's active allocation.
func (s *AllocationService) AllocationForRegistrant(ctx context.Context, registrantID string) (*domain.Allocation, error) {
	alloc, err := s.ledger.ActiveByRegistrant(ctx, registrantID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotAllocated(map[string]any{"registrant_id": registrantID})
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return alloc, nil
}

// History lists every allocation the registrant ever held, newest first.
func (s *AllocationService) History(ctx context.Context, registrantID string) ([]domain.Allocation, error) {
	if _, err := s.lookupRegistrant(ctx, registrantID); err != nil {
		return nil, err
	}
	history, err := s.ledger.History(ctx, registrantID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return history, nil
}

// lookupRegistrant resolves a registrant through the cache. Every failure is
// reported as NotFound; the cause is logged.
func (s *AllocationService) lookupRegistrant(ctx context.Context, registrantID string) (*domain.Registrant, error) {
	reg, err := cache.WithCache(ctx, s.cache, "registrant:"+registrantID, s.registrantTTL,
		func(ctx context.Context) (*domain.Registrant, error) {
			return s.registrants.GetByID(ctx, registrantID)
		})
	if err == nil && reg != nil {
		return reg, nil
	}
	return nil, s.registrantNotFound(registrantID, err)
}

func (s *AllocationService) registrantNotFound(registrantID string, cause error) error {
	if cause != nil && !errors.Is(cause, repository.ErrNotFound) {
		s.logger.Warn("registrant lookup failed", zap.String("registrant_id", registrantID), zap.Error(cause))
	}
	return apperrors.NewNotFound("registrant", map[string]any{"registrant_id": registrantID})
}

func (s *AllocationService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func occupancyOf(room domain.Room, occupied int) domain.RoomOccupancy {
	available := room.Capacity - occupied
	if available < 0 {
		available = 0
	}
	return domain.RoomOccupancy{Room: room, Occupied: occupied, Available: available}
}

// outcome labels a result for metrics and logs.
func outcome(err error) string {
	if err == nil {
		return "OK"
	}
	if de := apperrors.ToDomainError(err); de != nil {
		return de.Code
	}
	return apperrors.CodeInternal
}
