package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/spec-kit/housing-service/internal/api/http/handlers"
	"github.com/spec-kit/housing-service/internal/auth"
	"github.com/spec-kit/housing-service/internal/domain"
	"github.com/spec-kit/housing-service/internal/events"
	"github.com/spec-kit/housing-service/internal/observability"
	"github.com/spec-kit/housing-service/internal/persistence"
	"github.com/spec-kit/housing-service/internal/reconciler"
	"github.com/spec-kit/housing-service/internal/repository"
	"github.com/spec-kit/housing-service/internal/service"
)

type RouterSuite struct {
	suite.Suite
	app        *fiber.App
	store      *repository.MemoryStore
	adminToken string
	staffToken string
	cancel     context.CancelFunc
	stopped    chan struct{}
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := zap.NewNop()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	dispatcher := events.NewInMemoryDispatcher()

	s.store = repository.NewMemoryStore()
	now := time.Now()
	s.store.SeedRegistrant(domain.Registrant{ID: "r1", FullName: "Ada Obi", Gender: domain.GenderMale, DateOfBirth: now.AddDate(-20, 0, -1)})
	s.store.SeedRegistrant(domain.Registrant{ID: "r2", FullName: "Ben Ude", Gender: domain.GenderMale, DateOfBirth: now.AddDate(-30, 0, -1)})

	settings := service.NewSettingsService(service.SettingsDependencies{
		Repo:          s.store.Settings(),
		TTL:           time.Minute,
		Dispatcher:    dispatcher,
		AgeGapDefault: 3,
	})
	rooms := service.NewRoomService(service.RoomDependencies{RoomRepo: s.store.Rooms(), Dispatcher: dispatcher})
	allocations := service.NewAllocationService(service.AllocationDependencies{
		RegistrantRepo: s.store.Registrants(),
		RoomRepo:       s.store.Rooms(),
		Ledger:         s.store.Allocations(),
		Settings:       settings,
		RegistrantTTL:  time.Minute,
		Dispatcher:     dispatcher,
		Metrics:        metrics,
	})
	reports := service.NewReportService(dispatcher, logger)
	engine := reconciler.New(reconciler.Dependencies{
		Ledger:    s.store.Allocations(),
		Tolerance: settings,
		Reporter:  reports,
		Metrics:   metrics,
	})
	sup, err := reconciler.NewSupervisor(engine, reconciler.Config{Interval: time.Hour}, logger)
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stopped = make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(s.stopped)
	}()

	tokens := auth.NewTokenManager("test-secret", 5)
	s.adminToken, _, err = tokens.GenerateToken("warden", domain.ActorRoleAdmin)
	s.Require().NoError(err)
	s.staffToken, _, err = tokens.GenerateToken("clerk", domain.ActorRoleStaff)
	s.Require().NoError(err)

	s.app = fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger, metrics)})
	RegisterMiddlewares(s.app, logger, metrics, time.Second)
	RegisterRoutes(s.app, RouteConfig{
		Health:         handlers.NewHealthHandler("housing", "test", &persistence.Postgres{}, &persistence.Redis{}),
		Allocations:    handlers.NewAllocationsHandler(allocations),
		Registrants:    handlers.NewRegistrantsHandler(allocations),
		Rooms:          handlers.NewRoomsHandler(rooms, allocations),
		Settings:       handlers.NewSettingsHandler(settings),
		Reconciler:     handlers.NewReconcilerHandler(sup, reports),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Gatherer:       reg,
	})
}

func (s *RouterSuite) TearDownTest() {
	s.cancel()
	<-s.stopped
}

func (s *RouterSuite) do(method, path, token string, body any) (int, map[string]any) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	defer resp.Body.Close()

	payload := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	if len(raw) > 0 && raw[0] == '{' {
		s.Require().NoError(json.Unmarshal(raw, &payload))
	}
	return resp.StatusCode, payload
}

func errorCode(payload map[string]any) string {
	envelope, _ := payload["error"].(map[string]any)
	code, _ := envelope["code"].(string)
	return code
}

func data(payload map[string]any) map[string]any {
	d, _ := payload["data"].(map[string]any)
	return d
}

func (s *RouterSuite) createRoom(capacity int) string {
	status, body := s.do(nethttp.MethodPost, "/api/v1/rooms", s.adminToken, map[string]any{
		"name": "Block A", "gender": "MALE", "capacity": capacity,
	})
	s.Require().Equal(nethttp.StatusCreated, status)
	return data(body)["id"].(string)
}

func (s *RouterSuite) TestAuthentication() {
	status, body := s.do(nethttp.MethodGet, "/api/v1/rooms", "", nil)
	s.Equal(nethttp.StatusUnauthorized, status)
	s.Equal("UNAUTHORIZED", errorCode(body))

	status, body = s.do(nethttp.MethodGet, "/api/v1/rooms", "not-a-jwt", nil)
	s.Equal(nethttp.StatusUnauthorized, status)
	s.Equal("UNAUTHORIZED", errorCode(body))

	status, body = s.do(nethttp.MethodPost, "/api/v1/rooms", s.staffToken, map[string]any{"name": "X", "gender": "MALE", "capacity": 1})
	s.Equal(nethttp.StatusForbidden, status)
	s.Equal("FORBIDDEN", errorCode(body))

	status, _ = s.do(nethttp.MethodGet, "/api/v1/rooms", s.staffToken, nil)
	s.Equal(nethttp.StatusOK, status)
}

func (s *RouterSuite) TestRoomValidation() {
	status, body := s.do(nethttp.MethodPost, "/api/v1/rooms", s.adminToken, map[string]any{"gender": "OTHER"})
	s.Equal(nethttp.StatusBadRequest, status)
	s.Equal("VALIDATION_FAILED", errorCode(body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	s.Contains(details, "name")
	s.Contains(details, "gender")
	s.Contains(details, "capacity")

	status, body = s.do(nethttp.MethodGet, "/api/v1/rooms/missing", s.staffToken, nil)
	s.Equal(nethttp.StatusNotFound, status)
	s.Equal("NOT_FOUND", errorCode(body))
}

func (s *RouterSuite) TestAllocationLifecycle() {
	roomID := s.createRoom(2)

	status, body := s.do(nethttp.MethodPost, "/api/v1/allocations", s.staffToken, map[string]any{"registrant_id": "r1", "room_id": roomID})
	s.Require().Equal(nethttp.StatusCreated, status)
	s.Equal("clerk", data(body)["allocated_by"])

	status, body = s.do(nethttp.MethodPost, "/api/v1/allocations", s.staffToken, map[string]any{"registrant_id": "r1", "room_id": roomID})
	s.Equal(nethttp.StatusConflict, status)
	s.Equal("ALREADY_ALLOCATED", errorCode(body))

	status, body = s.do(nethttp.MethodPost, "/api/v1/allocations", s.staffToken, map[string]any{"registrant_id": "r2", "room_id": roomID})
	s.Equal(nethttp.StatusUnprocessableEntity, status)
	s.Equal("AGE_GAP_VIOLATION", errorCode(body))

	status, body = s.do(nethttp.MethodGet, "/api/v1/allocations/registrants/r1", s.staffToken, nil)
	s.Require().Equal(nethttp.StatusOK, status)
	s.NotNil(data(body)["active"])

	status, body = s.do(nethttp.MethodGet, "/api/v1/rooms/"+roomID, s.staffToken, nil)
	s.Require().Equal(nethttp.StatusOK, status)
	s.EqualValues(1, data(body)["occupied"])

	status, body = s.do(nethttp.MethodGet, "/api/v1/allocations/statistics", s.staffToken, nil)
	s.Require().Equal(nethttp.StatusOK, status)
	s.EqualValues(50, data(body)["allocation_rate"])

	status, body = s.do(nethttp.MethodGet, "/api/v1/registrants/unallocated?gender=male", s.staffToken, nil)
	s.Require().Equal(nethttp.StatusOK, status)
	items := data(body)["items"].([]any)
	s.Len(items, 1)

	status, _ = s.do(nethttp.MethodDelete, "/api/v1/allocations/registrants/r1", s.staffToken, nil)
	s.Equal(nethttp.StatusOK, status)

	status, body = s.do(nethttp.MethodDelete, "/api/v1/allocations/registrants/r1", s.staffToken, map[string]any{"reason": "moved out"})
	s.Equal(nethttp.StatusConflict, status)
	s.Equal("NOT_ALLOCATED", errorCode(body))

	status, body = s.do(nethttp.MethodGet, "/api/v1/allocations/registrants/r1", s.staffToken, nil)
	s.Require().Equal(nethttp.StatusOK, status)
	s.Nil(data(body)["active"])
	s.Len(data(body)["history"], 1)
}

func (s *RouterSuite) TestTolerancePolicy() {
	status, body := s.do(nethttp.MethodGet, "/api/v1/settings/age-gap-tolerance", s.staffToken, nil)
	s.Require().Equal(nethttp.StatusOK, status)
	s.EqualValues(3, data(body)["value"])

	status, _ = s.do(nethttp.MethodPut, "/api/v1/settings/age-gap-tolerance", s.staffToken, map[string]any{"value": 5})
	s.Equal(nethttp.StatusForbidden, status)

	status, body = s.do(nethttp.MethodPut, "/api/v1/settings/age-gap-tolerance", s.adminToken, map[string]any{"value": 99})
	s.Equal(nethttp.StatusBadRequest, status)
	s.Equal("POLICY_OUT_OF_RANGE", errorCode(body))

	status, body = s.do(nethttp.MethodPut, "/api/v1/settings/age-gap-tolerance", s.adminToken, map[string]any{"value": 10})
	s.Require().Equal(nethttp.StatusOK, status)
	s.EqualValues(10, data(body)["value"])

	roomID := s.createRoom(2)
	for _, id := range []string{"r1", "r2"} {
		status, _ = s.do(nethttp.MethodPost, "/api/v1/allocations", s.staffToken, map[string]any{"registrant_id": id, "room_id": roomID})
		s.Equal(nethttp.StatusCreated, status)
	}
}

func (s *RouterSuite) TestReconcilerControl() {
	status, body := s.do(nethttp.MethodGet, "/api/v1/reconciler/report", s.staffToken, nil)
	s.Equal(nethttp.StatusNotFound, status)
	s.Equal("NOT_FOUND", errorCode(body))

	status, _ = s.do(nethttp.MethodPost, "/api/v1/reconciler/scan", s.staffToken, nil)
	s.Equal(nethttp.StatusForbidden, status)

	s.store.ForceAllocation(domain.Allocation{ID: "ghost-alloc", RegistrantID: "ghost", RoomID: "nowhere", Active: true})

	status, body = s.do(nethttp.MethodPut, "/api/v1/reconciler/config", s.adminToken, map[string]any{
		"interval_seconds": 60, "auto_resolve": []string{"bogus"},
	})
	s.Equal(nethttp.StatusBadRequest, status)
	s.Equal("VALIDATION_FAILED", errorCode(body))

	status, body = s.do(nethttp.MethodPut, "/api/v1/reconciler/config", s.adminToken, map[string]any{
		"interval_seconds": 60, "auto_resolve": []string{"orphaned-reference"},
	})
	s.Require().Equal(nethttp.StatusOK, status)
	s.EqualValues(60, data(body)["interval_seconds"])

	status, body = s.do(nethttp.MethodPost, "/api/v1/reconciler/scan", s.adminToken, nil)
	s.Require().Equal(nethttp.StatusOK, status)
	s.Len(data(body)["resolved"], 1)

	status, body = s.do(nethttp.MethodGet, "/api/v1/reconciler/report", s.staffToken, nil)
	s.Require().Equal(nethttp.StatusOK, status)
	s.NotEmpty(data(body)["run_id"])

	status, body = s.do(nethttp.MethodPost, "/api/v1/reconciler/start", s.adminToken, nil)
	s.Require().Equal(nethttp.StatusOK, status)
	s.Equal(true, data(body)["running"])

	status, body = s.do(nethttp.MethodPost, "/api/v1/reconciler/stop", s.adminToken, nil)
	s.Require().Equal(nethttp.StatusOK, status)
	s.Equal(false, data(body)["running"])
	s.EqualValues(1, data(body)["runs"])
}

func (s *RouterSuite) TestHealthAndMetrics() {
	status, body := s.do(nethttp.MethodGet, "/health/ready", "", nil)
	s.Equal(nethttp.StatusOK, status)
	s.Equal("ready", body["status"])

	status, _ = s.do(nethttp.MethodGet, "/health/live", "", nil)
	s.Equal(nethttp.StatusOK, status)

	s.do(nethttp.MethodGet, "/api/v1/rooms", s.staffToken, nil)
	req := httptest.NewRequest(nethttp.MethodGet, "/metrics", nil)
	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Contains(string(raw), "housing_http_requests_total")

	status, body = s.do(nethttp.MethodGet, "/no/such/route", "", nil)
	s.Equal(nethttp.StatusNotFound, status)
	s.Equal("NOT_FOUND", errorCode(body))
}
