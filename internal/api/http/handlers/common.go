package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/housing-service/internal/api/dto"
	"github.com/spec-kit/housing-service/internal/auth"
	"github.com/spec-kit/housing-service/internal/domain"
	apperrors "github.com/spec-kit/housing-service/pkg/util/errorutil"
)

// actorFrom returns the authenticated actor string used in the audit trail.
func actorFrom(c *fiber.Ctx) (string, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Actor == "" {
		return "", apperrors.NewUnauthorized("authentication required")
	}
	return principal.Actor, nil
}

// parseBody decodes and validates a JSON payload. An empty body is accepted
// when optional is set, leaving dst at its zero value.
func parseBody(c *fiber.Ctx, dst any, optional bool) error {
	if len(c.Body()) == 0 {
		if optional {
			return nil
		}
		return apperrors.NewValidationError("request body required", nil)
	}
	if err := c.BodyParser(dst); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return dto.Validate(dst)
}

func optionalGender(raw string) (*domain.Gender, error) {
	if raw == "" {
		return nil, nil
	}
	g, ok := domain.ParseGender(raw)
	if !ok {
		return nil, apperrors.NewValidationError("invalid gender", map[string]any{"gender": raw})
	}
	return &g, nil
}

func optionalBool(raw, field string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid boolean", map[string]any{field: raw})
	}
	return &v, nil
}
