package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/housing-service/internal/domain"
	"github.com/spec-kit/housing-service/internal/events"
	"github.com/spec-kit/housing-service/internal/lock"
	"github.com/spec-kit/housing-service/internal/repository"
	apperrors "github.com/spec-kit/housing-service/pkg/util/errorutil"
)

// RoomService administers the room catalog.
type RoomService struct {
	rooms      repository.RoomRepository
	locks      *lock.Keyed
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// RoomDependencies bundles collaborators for the room service.
type RoomDependencies struct {
	RoomRepo   repository.RoomRepository
	Locks      *lock.Keyed
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// RoomInput describes a new room.
type RoomInput struct {
	Name     string
	Gender   domain.Gender
	Capacity int
	Active   *bool
}

// RoomUpdate carries the fields to change; nil leaves a field untouched.
type RoomUpdate struct {
	Name     *string
	Gender   *domain.Gender
	Capacity *int
	Active   *bool
}

// NewRoomService creates the service.
func NewRoomService(deps RoomDependencies) *RoomService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locks := deps.Locks
	if locks == nil {
		locks = lock.NewKeyed()
	}
	return &RoomService{
		rooms:      deps.RoomRepo,
		locks:      locks,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// Create adds a room. Rooms are active unless input says otherwise.
func (s *RoomService) Create(ctx context.Context, input RoomInput, actor string) (*domain.Room, error) {
	room := &domain.Room{
		ID:       uuid.NewString(),
		Name:     strings.TrimSpace(input.Name),
		Gender:   input.Gender,
		Capacity: input.Capacity,
		Active:   true,
	}
	if input.Active != nil {
		room.Active = *input.Active
	}
	if err := validateRoom(room); err != nil {
		return nil, err
	}

	if err := s.rooms.Create(ctx, room); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("room name already in use", map[string]any{"name": room.Name})
		}
		return nil, apperrors.MapError(err)
	}
	s.changed(ctx, room, events.RoomCreated, actor)
	return room, nil
}

// Update applies the changes in upd. Capacity may drop below current
// occupancy; existing allocations are left in place.
func (s *RoomService) Update(ctx context.Context, id string, upd RoomUpdate, actor string) (*domain.Room, error) {
	unlock, err := s.locks.Lock(ctx, lock.RoomKey(id))
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	defer unlock()

	room, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		room.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Gender != nil {
		room.Gender = *upd.Gender
	}
	if upd.Capacity != nil {
		room.Capacity = *upd.Capacity
	}
	if upd.Active != nil {
		room.Active = *upd.Active
	}
	if err := validateRoom(room); err != nil {
		return nil, err
	}

	if err := s.rooms.Update(ctx, room); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, apperrors.NewConflict("room name already in use", map[string]any{"name": room.Name})
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NewNotFound("room", map[string]any{"room_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	s.changed(ctx, room, events.RoomUpdated, actor)
	return room, nil
}

// Delete removes the room row. Allocations that referenced it stay in the
// ledger until the reconciler deals with them.
func (s *RoomService) Delete(ctx context.Context, id, actor string) error {
	unlock, err := s.locks.Lock(ctx, lock.RoomKey(id))
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	defer unlock()

	room, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.rooms.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("room", map[string]any{"room_id": id})
		}
		return apperrors.MapError(err)
	}
	s.changed(ctx, room, events.RoomDeleted, actor)
	return nil
}

// Get returns a single room.
func (s *RoomService) Get(ctx context.Context, id string) (*domain.Room, error) {
	return s.get(ctx, id)
}

// List returns rooms matching filter, ordered by name.
func (s *RoomService) List(ctx context.Context, filter repository.RoomFilter) ([]domain.Room, error) {
	rooms, err := s.rooms.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return rooms, nil
}

func (s *RoomService) get(ctx context.Context, id string) (*domain.Room, error) {
	room, err := s.rooms.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("room", map[string]any{"room_id": id})
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return room, nil
}

func validateRoom(room *domain.Room) error {
	details := map[string]any{}
	if room.Name == "" {
		details["name"] = "required"
	}
	if !room.Gender.Valid() {
		details["gender"] = "must be MALE or FEMALE"
	}
	if room.Capacity < 1 {
		details["capacity"] = "must be at least 1"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid room", details)
	}
	return nil
}

func (s *RoomService) changed(ctx context.Context, room *domain.Room, change events.RoomChange, actor string) {
	s.logger.Info("room changed",
		zap.String("room_id", room.ID),
		zap.String("change", string(change)),
		zap.Int("capacity", room.Capacity),
		zap.Bool("active", room.Active),
		zap.String("actor", actor))
	if s.dispatcher == nil {
		return
	}
	err := s.dispatcher.Publish(ctx, events.Event{
		Type:      events.EventRoomChanged,
		SubjectID: room.ID,
		Actor:     actor,
		Payload: events.RoomChangedPayload{
			RoomID:   room.ID,
			Change:   change,
			Capacity: room.Capacity,
			Active:   room.Active,
		},
	})
	if err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(events.EventRoomChanged)), zap.Error(err))
	}
}
