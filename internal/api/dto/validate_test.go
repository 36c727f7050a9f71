package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/housing-service/pkg/util/errorutil"
)

func TestValidate_ReportsJSONFieldNames(t *testing.T) {
	err := Validate(CreateRoomRequest{Gender: "OTHER"})
	require.Error(t, err)
	de := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeValidation, de.Code)
	assert.Equal(t, "this field is required", de.Details["name"])
	assert.Equal(t, "must be one of: MALE FEMALE", de.Details["gender"])
	assert.Contains(t, de.Details, "capacity")
}

func TestValidate_AcceptsValidPayloads(t *testing.T) {
	assert.NoError(t, Validate(AllocateRequest{RegistrantID: "r", RoomID: "m"}))
	assert.NoError(t, Validate(UpdateRoomRequest{}))
	assert.NoError(t, Validate(RegistrantQuery{Gender: "FEMALE", Limit: 10}))

	zero := 0
	assert.NoError(t, Validate(ToleranceRequest{Value: &zero}))
	assert.Error(t, Validate(ToleranceRequest{}))
	assert.Error(t, Validate(RegistrantQuery{Limit: 101}))
}
