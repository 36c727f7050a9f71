package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/spec-kit/housing-service/internal/cache"
	"github.com/spec-kit/housing-service/internal/domain"
	"github.com/spec-kit/housing-service/internal/events"
	"github.com/spec-kit/housing-service/internal/repository"
	apperrors "github.com/spec-kit/housing-service/pkg/util/errorutil"
)

var testNow = time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)

func dobForAge(age int) time.Time {
	return time.Date(testNow.Year()-age, time.January, 1, 0, 0, 0, 0, time.UTC)
}

type AllocationServiceSuite struct {
	suite.Suite
	ctx        context.Context
	store      *repository.MemoryStore
	settings   *SettingsService
	rooms      *RoomService
	svc        *AllocationService
	dispatcher events.Dispatcher

	mu     sync.Mutex
	events []events.Event
}

func TestAllocationServiceSuite(t *testing.T) {
	suite.Run(t, new(AllocationServiceSuite))
}

func (s *AllocationServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = repository.NewMemoryStore().WithClock(func() time.Time { return testNow })
	s.dispatcher = events.NewInMemoryDispatcher()
	s.events = nil
	for _, et := range []events.EventType{events.EventAllocationCreated, events.EventAllocationEnded, events.EventPolicyChanged} {
		s.dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			s.mu.Lock()
			s.events = append(s.events, e)
			s.mu.Unlock()
			return nil
		})
	}

	s.settings = NewSettingsService(SettingsDependencies{
		Repo:       s.store.Settings(),
		Cache:      cache.NewMemory(),
		TTL:        time.Minute,
		Dispatcher: s.dispatcher,
	})
	s.rooms = NewRoomService(RoomDependencies{RoomRepo: s.store.Rooms(), Dispatcher: s.dispatcher})
	s.svc = NewAllocationService(AllocationDependencies{
		RegistrantRepo: s.store.Registrants(),
		RoomRepo:       s.store.Rooms(),
		Ledger:         s.store.Allocations(),
		Settings:       s.settings,
		Cache:          cache.NewMemory(),
		RegistrantTTL:  time.Minute,
		Dispatcher:     s.dispatcher,
		Now:            func() time.Time { return testNow },
	})
}

func (s *AllocationServiceSuite) registrant(id string, g domain.Gender, age int) {
	s.store.SeedRegistrant(domain.Registrant{
		ID:          id,
		FullName:    "Registrant " + id,
		Email:       id + "@example.com",
		Gender:      g,
		DateOfBirth: dobForAge(age),
	})
}

func (s *AllocationServiceSuite) room(name string, g domain.Gender, capacity int) string {
	room, err := s.rooms.Create(s.ctx, RoomInput{Name: name, Gender: g, Capacity: capacity}, "admin")
	s.Require().NoError(err)
	return room.ID
}

func (s *AllocationServiceSuite) requireCode(err error, code string) {
	s.Require().Error(err)
	s.Require().Truef(apperrors.HasCode(err, code), "expected %s, got %v", code, err)
}

func (s *AllocationServiceSuite) eventTypes() []events.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

func (s *AllocationServiceSuite) TestScenarioAlpha() {
	alpha := s.room("Alpha", domain.GenderMale, 2)
	s.registrant("A", domain.GenderMale, 20)
	s.registrant("B", domain.GenderMale, 22)
	s.registrant("C", domain.GenderMale, 25)
	s.registrant("D", domain.GenderFemale, 21)

	_, err := s.svc.Allocate(s.ctx, "A", alpha, "staff-1")
	s.Require().NoError(err)

	alloc, err := s.svc.Allocate(s.ctx, "B", alpha, "staff-1")
	s.Require().NoError(err)
	s.Equal(3, alloc.AgeGapTolerance)
	s.Equal("staff-1", alloc.AllocatedBy)
	s.True(alloc.Active)

	_, err = s.svc.Allocate(s.ctx, "C", alpha, "staff-1")
	s.requireCode(err, apperrors.CodeCapacityExceeded)

	_, err = s.svc.Allocate(s.ctx, "D", alpha, "staff-1")
	s.requireCode(err, apperrors.CodeGenderMismatch)

	detail, err := s.svc.RoomDetail(s.ctx, alpha)
	s.Require().NoError(err)
	s.Equal(2, detail.Occupied)
	s.Equal(0, detail.Available)
	s.Require().Len(detail.Occupants, 2)
	s.Equal(20, detail.Occupants[0].Age)
	s.Equal(22, detail.Occupants[1].Age)

	s.Equal([]events.EventType{events.EventAllocationCreated, events.EventAllocationCreated}, s.eventTypes())
}

func (s *AllocationServiceSuite) TestGenderMatrix() {
	cases := []struct {
		room, registrant domain.Gender
		ok               bool
	}{
		{domain.GenderMale, domain.GenderMale, true},
		{domain.GenderMale, domain.GenderFemale, false},
		{domain.GenderFemale, domain.GenderMale, false},
		{domain.GenderFemale, domain.GenderFemale, true},
	}
	for i, tc := range cases {
		roomID := s.room(fmt.Sprintf("G%d", i), tc.room, 4)
		regID := fmt.Sprintf("g%d", i)
		s.registrant(regID, tc.registrant, 20)

		_, err := s.svc.Allocate(s.ctx, regID, roomID, "staff")
		if tc.ok {
			s.NoError(err)
		} else {
			s.requireCode(err, apperrors.CodeGenderMismatch)
		}
	}
}

func (s *AllocationServiceSuite) TestAgeGapBoundary() {
	above := s.room("Ages", domain.GenderFemale, 4)
	below := s.room("AgesLow", domain.GenderFemale, 4)
	s.registrant("base", domain.GenderFemale, 20)
	s.registrant("baseLow", domain.GenderFemale, 20)
	s.registrant("plusT", domain.GenderFemale, 23)
	s.registrant("plusT1", domain.GenderFemale, 24)
	s.registrant("minusT", domain.GenderFemale, 17)
	s.registrant("minusT1", domain.GenderFemale, 16)

	_, err := s.svc.Allocate(s.ctx, "base", above, "staff")
	s.Require().NoError(err)
	_, err = s.svc.Allocate(s.ctx, "baseLow", below, "staff")
	s.Require().NoError(err)

	_, err = s.svc.Allocate(s.ctx, "plusT1", above, "staff")
	s.requireCode(err, apperrors.CodeAgeGapViolation)
	_, err = s.svc.Allocate(s.ctx, "plusT", above, "staff")
	s.Require().NoError(err)

	_, err = s.svc.Allocate(s.ctx, "minusT1", below, "staff")
	s.requireCode(err, apperrors.CodeAgeGapViolation)
	_, err = s.svc.Allocate(s.ctx, "minusT", below, "staff")
	s.Require().NoError(err)
}

func (s *AllocationServiceSuite) TestToleranceChangeAppliesToNewAllocations() {
	roomID := s.room("Wide", domain.GenderMale, 3)
	s.registrant("young", domain.GenderMale, 18)
	s.registrant("older", domain.GenderMale, 24)

	_, err := s.svc.Allocate(s.ctx, "young", roomID, "staff")
	s.Require().NoError(err)
	_, err = s.svc.Allocate(s.ctx, "older", roomID, "staff")
	s.requireCode(err, apperrors.CodeAgeGapViolation)

	_, err = s.settings.SetAgeGapTolerance(s.ctx, 6, "admin")
	s.Require().NoError(err)

	alloc, err := s.svc.Allocate(s.ctx, "older", roomID, "staff")
	s.Require().NoError(err)
	s.Equal(6, alloc.AgeGapTolerance)
}

func (s *AllocationServiceSuite) TestAlreadyAllocatedAndInactiveRoom() {
	first := s.room("First", domain.GenderMale, 2)
	second := s.room("Second", domain.GenderMale, 2)
	s.registrant("r1", domain.GenderMale, 20)

	_, err := s.svc.Allocate(s.ctx, "r1", first, "staff")
	s.Require().NoError(err)
	_, err = s.svc.Allocate(s.ctx, "r1", second, "staff")
	s.requireCode(err, apperrors.CodeAlreadyAllocated)

	inactive := false
	_, err = s.rooms.Update(s.ctx, second, RoomUpdate{Active: &inactive}, "admin")
	s.Require().NoError(err)
	s.registrant("r2", domain.GenderMale, 20)
	_, err = s.svc.Allocate(s.ctx, "r2", second, "staff")
	s.requireCode(err, apperrors.CodeRoomInactive)
}

func (s *AllocationServiceSuite) TestUnknownIdentifiers() {
	roomID := s.room("Known", domain.GenderMale, 2)
	s.registrant("r1", domain.GenderMale, 20)

	_, err := s.svc.Allocate(s.ctx, "nobody", roomID, "staff")
	s.requireCode(err, apperrors.CodeNotFound)

	_, err = s.svc.Allocate(s.ctx, "r1", "no-room", "staff")
	s.requireCode(err, apperrors.CodeNotFound)

	_, err = s.svc.RoomDetail(s.ctx, "no-room")
	s.requireCode(err, apperrors.CodeNotFound)

	_, err = s.svc.History(s.ctx, "nobody")
	s.requireCode(err, apperrors.CodeNotFound)
}

func (s *AllocationServiceSuite) TestRemovedRegistrantCannotBeAllocated() {
	first := s.room("Before", domain.GenderMale, 2)
	second := s.room("After", domain.GenderMale, 2)
	s.registrant("r1", domain.GenderMale, 20)

	_, err := s.svc.Allocate(s.ctx, "r1", first, "staff")
	s.Require().NoError(err)
	_, err = s.svc.Deallocate(s.ctx, "r1", "staff", "moved")
	s.Require().NoError(err)
	// History caches the registrant.
	_, err = s.svc.History(s.ctx, "r1")
	s.Require().NoError(err)

	s.store.RemoveRegistrant("r1")
	_, err = s.svc.Allocate(s.ctx, "r1", second, "staff")
	s.requireCode(err, apperrors.CodeNotFound)

	counts, err := s.store.Allocations().OccupancyCounts(s.ctx)
	s.Require().NoError(err)
	s.Zero(counts[second])
}

func (s *AllocationServiceSuite) TestDeallocateTwice() {
	roomID := s.room("Once", domain.GenderMale, 1)
	s.registrant("r1", domain.GenderMale, 20)
	_, err := s.svc.Allocate(s.ctx, "r1", roomID, "staff")
	s.Require().NoError(err)

	ended, err := s.svc.Deallocate(s.ctx, "r1", "admin", "moved out")
	s.Require().NoError(err)
	s.False(ended.Active)
	s.Require().NotNil(ended.DeallocatedBy)
	s.Equal("admin", *ended.DeallocatedBy)

	_, err = s.svc.Deallocate(s.ctx, "r1", "admin", "")
	s.requireCode(err, apperrors.CodeNotAllocated)

	_, err = s.svc.AllocationForRegistrant(s.ctx, "r1")
	s.requireCode(err, apperrors.CodeNotAllocated)

	history, err := s.svc.History(s.ctx, "r1")
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.False(history[0].Active)

	s.registrant("r2", domain.GenderMale, 20)
	_, err = s.svc.Allocate(s.ctx, "r2", roomID, "staff")
	s.NoError(err, "freed slot is reusable")
}

func (s *AllocationServiceSuite) TestConcurrentLastSlot() {
	roomID := s.room("Last", domain.GenderMale, 1)
	const contenders = 20
	for i := 0; i < contenders; i++ {
		s.registrant(fmt.Sprintf("c%d", i), domain.GenderMale, 20)
	}

	var wins, full atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := s.svc.Allocate(s.ctx, id, roomID, "staff")
			switch {
			case err == nil:
				wins.Add(1)
			case apperrors.HasCode(err, apperrors.CodeCapacityExceeded):
				full.Add(1)
			}
		}(fmt.Sprintf("c%d", i))
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(contenders-1), full.Load())
}

func (s *AllocationServiceSuite) TestConcurrentSameRegistrant() {
	s.registrant("r1", domain.GenderFemale, 20)
	rooms := make([]string, 6)
	for i := range rooms {
		rooms[i] = s.room(fmt.Sprintf("Race%d", i), domain.GenderFemale, 2)
	}

	var wins, dup atomic.Int32
	var wg sync.WaitGroup
	for _, roomID := range rooms {
		wg.Add(1)
		go func(roomID string) {
			defer wg.Done()
			_, err := s.svc.Allocate(s.ctx, "r1", roomID, "staff")
			switch {
			case err == nil:
				wins.Add(1)
			case apperrors.HasCode(err, apperrors.CodeAlreadyAllocated):
				dup.Add(1)
			}
		}(roomID)
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(len(rooms)-1), dup.Load())
}

func (s *AllocationServiceSuite) TestStatisticsAndListing() {
	male := s.room("M1", domain.GenderMale, 2)
	female := s.room("F1", domain.GenderFemale, 2)
	closed := s.room("F2", domain.GenderFemale, 5)
	inactive := false
	_, err := s.rooms.Update(s.ctx, closed, RoomUpdate{Active: &inactive}, "admin")
	s.Require().NoError(err)

	s.registrant("m1", domain.GenderMale, 20)
	s.registrant("f1", domain.GenderFemale, 20)
	s.registrant("f2", domain.GenderFemale, 21)
	s.registrant("f3", domain.GenderFemale, 22)
	for _, pair := range [][2]string{{"m1", male}, {"f1", female}, {"f2", female}} {
		_, err := s.svc.Allocate(s.ctx, pair[0], pair[1], "staff")
		s.Require().NoError(err)
	}

	stats, err := s.svc.Statistics(s.ctx, nil)
	s.Require().NoError(err)
	s.Equal(3, stats.TotalRooms)
	s.Equal(2, stats.ActiveRooms)
	s.Equal(4, stats.TotalCapacity)
	s.Equal(3, stats.Occupied)
	s.Equal(1, stats.Available)
	s.InDelta(75.0, stats.AllocationRate, 0.001)
	s.Equal(domain.GenderSummary{Rooms: 1, Capacity: 2, Occupied: 2, Available: 0}, stats.ByGender[domain.GenderFemale])

	g := domain.GenderMale
	maleStats, err := s.svc.Statistics(s.ctx, &g)
	s.Require().NoError(err)
	s.Equal(1, maleStats.TotalRooms)
	s.InDelta(50.0, maleStats.AllocationRate, 0.001)

	listing, err := s.svc.ListRoomOccupancy(s.ctx, repository.RoomFilter{})
	s.Require().NoError(err)
	s.Require().Len(listing, 3)
	s.Equal("F1", listing[0].Room.Name)
	s.Equal(2, listing[0].Occupied)

	unallocated, err := s.svc.SearchUnallocated(s.ctx, RegistrantSearch{Query: "f"})
	s.Require().NoError(err)
	s.Require().Len(unallocated, 1)
	s.Equal("f3", unallocated[0].ID)
}

func (s *AllocationServiceSuite) TestPolicyOutOfRange() {
	for _, v := range []int{0, 21, -3} {
		_, err := s.settings.SetAgeGapTolerance(s.ctx, v, "admin")
		s.requireCode(err, apperrors.CodePolicyOutOfRange)
	}
	tol, err := s.settings.AgeGapTolerance(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, tol)

	_, err = s.settings.SetAgeGapTolerance(s.ctx, 20, "admin")
	s.Require().NoError(err)
	tol, err = s.settings.AgeGapTolerance(s.ctx)
	s.Require().NoError(err)
	s.Equal(20, tol)
	s.Contains(s.eventTypes(), events.EventPolicyChanged)
}
