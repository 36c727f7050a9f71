package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestToDomainError(t *testing.T) {
	wrapped := fmt.Errorf("allocate: %w", NewCapacityExceeded(map[string]any{"room_id": "r"}))
	de := ToDomainError(wrapped)
	assert.Equal(t, CodeCapacityExceeded, de.Code)
	assert.Equal(t, http.StatusConflict, de.HTTPStatus)
	assert.True(t, HasCode(wrapped, CodeCapacityExceeded))

	assert.Equal(t, CodeNotFound, ToDomainError(pgx.ErrNoRows).Code)
	assert.Equal(t, CodeNotFound, ToDomainError(fiber.ErrNotFound).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, ToDomainError(fiber.ErrMethodNotAllowed).HTTPStatus)

	internal := ToDomainError(errors.New("boom"))
	assert.Equal(t, CodeInternal, internal.Code)
	assert.Equal(t, http.StatusInternalServerError, internal.HTTPStatus)
	assert.Nil(t, ToDomainError(nil))
	assert.False(t, HasCode(errors.New("plain"), CodeInternal))
}

func TestDomainErrorStatuses(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
	}{
		CodeAlreadyAllocated: {NewAlreadyAllocated(nil), http.StatusConflict},
		CodeGenderMismatch:   {NewGenderMismatch(nil), http.StatusUnprocessableEntity},
		CodeAgeGapViolation:  {NewAgeGapViolation(nil), http.StatusUnprocessableEntity},
		CodeRoomInactive:     {NewRoomInactive(nil), http.StatusConflict},
		CodePolicyOutOfRange: {NewPolicyOutOfRange(nil), http.StatusBadRequest},
		CodeNotAllocated:     {NewNotAllocated(nil), http.StatusConflict},
		CodeValidation:       {NewValidationError("bad", nil), http.StatusBadRequest},
		CodeForbidden:        {NewForbidden("no"), http.StatusForbidden},
	}
	for code, tc := range cases {
		de := ToDomainError(tc.err)
		assert.Equal(t, code, de.Code)
		assert.Equal(t, tc.status, de.HTTPStatus, code)
	}
}
