package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/housing-service/internal/cache"
	"github.com/spec-kit/housing-service/internal/domain"
	"github.com/spec-kit/housing-service/internal/events"
	"github.com/spec-kit/housing-service/internal/repository"
	apperrors "github.com/spec-kit/housing-service/pkg/util/errorutil"
)

// SettingsService reads and writes typed policy values through the cache.
type SettingsService struct {
	repo       repository.SettingsRepository
	cache      cache.Cache
	ttl        time.Duration
	defaults   map[string]int
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// SettingsDependencies bundles collaborators for the settings service.
type SettingsDependencies struct {
	Repo       repository.SettingsRepository
	Cache      cache.Cache
	TTL        time.Duration
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	// AgeGapDefault overrides the built-in default tolerance when non-zero.
	AgeGapDefault int
}

// NewSettingsService creates the service.
func NewSettingsService(deps SettingsDependencies) *SettingsService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := deps.Cache
	if c == nil {
		c = cache.NewMemory()
	}
	defaults := map[string]int{}
	if deps.AgeGapDefault != 0 {
		defaults[domain.AgeGapToleranceSetting.CacheKey()] = deps.AgeGapDefault
	}
	return &SettingsService{
		repo:       deps.Repo,
		cache:      c,
		ttl:        deps.TTL,
		defaults:   defaults,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// GetInt returns the stored value of def, or its default when none was saved.
func (s *SettingsService) GetInt(ctx context.Context, def domain.IntSetting) (int, error) {
	value, err := cache.WithCache(ctx, s.cache, def.CacheKey(), s.ttl, func(ctx context.Context) (int, error) {
		rec, err := s.repo.GetInt(ctx, def.Category, def.Key)
		if errors.Is(err, repository.ErrNotFound) {
			return s.defaultFor(def), nil
		}
		if err != nil {
			return 0, err
		}
		return rec.Value, nil
	})
	if err != nil {
		return 0, apperrors.NewInternalError(err)
	}
	return value, nil
}

// SetInt validates and persists a new value for def, then writes it through to the cache.
func (s *SettingsService) SetInt(ctx context.Context, def domain.IntSetting, value int, actor string) (int, error) {
	if !def.InRange(value) {
		return 0, apperrors.NewPolicyOutOfRange(map[string]any{
			"category": def.Category,
			"key":      def.Key,
			"value":    value,
			"min":      def.Min,
			"max":      def.Max,
		})
	}
	old, err := s.GetInt(ctx, def)
	if err != nil {
		return 0, err
	}

	rec := &domain.SettingRecord{Category: def.Category, Key: def.Key, Value: value, UpdatedBy: actor}
	if err := s.repo.UpsertInt(ctx, rec); err != nil {
		return 0, apperrors.NewInternalError(err)
	}
	if raw, err := json.Marshal(value); err == nil {
		s.cache.Set(ctx, def.CacheKey(), raw, s.ttl)
	} else {
		s.cache.Invalidate(ctx, def.CacheKey())
	}

	s.logger.Info("policy updated",
		zap.String("category", def.Category),
		zap.String("key", def.Key),
		zap.Int("old_value", old),
		zap.Int("new_value", value),
		zap.String("actor", actor))
	s.publish(ctx, events.Event{
		Type:      events.EventPolicyChanged,
		SubjectID: def.CacheKey(),
		Actor:     actor,
		Payload: events.PolicyChangedPayload{
			Category: def.Category,
			Key:      def.Key,
			OldValue: old,
			NewValue: value,
		},
	})
	return value, nil
}

// AgeGapTolerance is the maximum age difference allowed between roommates.
func (s *SettingsService) AgeGapTolerance(ctx context.Context) (int, error) {
	return s.GetInt(ctx, domain.AgeGapToleranceSetting)
}

// SetAgeGapTolerance updates the tolerance. Existing allocations are unaffected.
func (s *SettingsService) SetAgeGapTolerance(ctx context.Context, value int, actor string) (int, error) {
	return s.SetInt(ctx, domain.AgeGapToleranceSetting, value, actor)
}

func (s *SettingsService) defaultFor(def domain.IntSetting) int {
	if v, ok := s.defaults[def.CacheKey()]; ok {
		return v
	}
	return def.Default
}

func (s *SettingsService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}
