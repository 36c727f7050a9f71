package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

// Error codes returned to callers of the allocation subsystem.
const (
	CodeValidation        = "VALIDATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeConflict          = "CONFLICT"
	CodeInternal          = "INTERNAL_ERROR"
	CodeAlreadyAllocated  = "ALREADY_ALLOCATED"
	CodeGenderMismatch    = "GENDER_MISMATCH"
	CodeCapacityExceeded  = "CAPACITY_EXCEEDED"
	CodeAgeGapViolation   = "AGE_GAP_VIOLATION"
	CodeRoomInactive      = "ROOM_INACTIVE"
	CodePolicyOutOfRange  = "POLICY_OUT_OF_RANGE"
	CodeNotAllocated      = "NOT_ALLOCATED"
	CodeDependencyFailure = "DEPENDENCY_UNAVAILABLE"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewAlreadyAllocated(details map[string]any) error {
	return NewDomainError(CodeAlreadyAllocated, "registrant already has an active allocation", http.StatusConflict, details)
}

func NewGenderMismatch(details map[string]any) error {
	return NewDomainError(CodeGenderMismatch, "room gender does not match registrant gender", http.StatusUnprocessableEntity, details)
}

func NewCapacityExceeded(details map[string]any) error {
	return NewDomainError(CodeCapacityExceeded, "room is at capacity", http.StatusConflict, details)
}

func NewAgeGapViolation(details map[string]any) error {
	return NewDomainError(CodeAgeGapViolation, "age gap with an existing occupant exceeds tolerance", http.StatusUnprocessableEntity, details)
}

func NewRoomInactive(details map[string]any) error {
	return NewDomainError(CodeRoomInactive, "room is inactive", http.StatusConflict, details)
}

func NewPolicyOutOfRange(details map[string]any) error {
	return NewDomainError(CodePolicyOutOfRange, "policy value out of range", http.StatusBadRequest, details)
}

func NewNotAllocated(details map[string]any) error {
	return NewDomainError(CodeNotAllocated, "registrant has no active allocation", http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return &DomainError{
			Code:       codeForStatus(fiberErr.Code),
			Message:    fiberErr.Message,
			HTTPStatus: fiberErr.Code,
			Details:    map[string]any{},
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &DomainError{
			Code:       CodeNotFound,
			Message:    "resource not found",
			HTTPStatus: http.StatusNotFound,
			Details:    map[string]any{},
		}
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusConflict:
		return CodeConflict
	}
	if status >= 500 {
		return CodeInternal
	}
	return CodeValidation
}

// MapError converts err into a DomainError, keeping typed errors intact.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

// HasCode reports whether err carries the given domain error code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
