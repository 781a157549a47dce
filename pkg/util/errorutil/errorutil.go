package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes shared by the pipeline, the services and the HTTP layer.
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeConflict           = "CONFLICT"
	CodeInternal           = "INTERNAL_ERROR"
	CodeFetchFailed        = "FETCH_FAILED"
	CodeEnrichmentTimeout  = "ENRICHMENT_TIMEOUT"
	CodeEnrichmentFailed   = "ENRICHMENT_FAILED"
	CodeAssignmentFailed   = "ASSIGNMENT_FAILED"
	CodeStatusUpdateFailed = "STATUS_UPDATE_FAILED"
)

// Sentinels for errors.Is checks; matching is by code.
var (
	ErrValidation         = &DomainError{Code: CodeValidation}
	ErrNotFound           = &DomainError{Code: CodeNotFound}
	ErrConflict           = &DomainError{Code: CodeConflict}
	ErrFetchFailed        = &DomainError{Code: CodeFetchFailed}
	ErrEnrichmentTimeout  = &DomainError{Code: CodeEnrichmentTimeout}
	ErrEnrichmentFailed   = &DomainError{Code: CodeEnrichmentFailed}
	ErrAssignmentFailed   = &DomainError{Code: CodeAssignmentFailed}
	ErrStatusUpdateFailed = &DomainError{Code: CodeStatusUpdateFailed}
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
	if e.Message == "" {
		return e.Code
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok || t == nil {
		return false
	}
	return e.Code == t.Code
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

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewFetchError wraps a failed issue or department list fetch.
func NewFetchError(source string, err error) error {
	return &DomainError{
		Code:       CodeFetchFailed,
		Message:    fmt.Sprintf("fetch %s failed", source),
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"source": source},
		Err:        err,
	}
}

// NewEnrichmentTimeout marks a lookup that exceeded its per-call budget.
func NewEnrichmentTimeout(field string, err error) error {
	return &DomainError{
		Code:       CodeEnrichmentTimeout,
		Message:    fmt.Sprintf("%s lookup timed out", field),
		HTTPStatus: http.StatusGatewayTimeout,
		Details:    map[string]any{"field": field},
		Err:        err,
	}
}

// NewEnrichmentFailure marks a lookup that failed for any other reason.
func NewEnrichmentFailure(field string, err error) error {
	return &DomainError{
		Code:       CodeEnrichmentFailed,
		Message:    fmt.Sprintf("%s lookup failed", field),
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"field": field},
		Err:        err,
	}
}

// NewAssignmentFailed reports a backend rejection after the optimistic write was rolled back.
func NewAssignmentFailed(issueID string, err error) error {
	return &DomainError{
		Code:       CodeAssignmentFailed,
		Message:    "department assignment failed",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"issue_id": issueID},
		Err:        err,
	}
}

// NewStatusUpdateFailed reports a backend rejection after the optimistic write was rolled back.
func NewStatusUpdateFailed(issueID string, err error) error {
	return &DomainError{
		Code:       CodeStatusUpdateFailed,
		Message:    "status update failed",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"issue_id": issueID},
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
		if domainErr.HTTPStatus == 0 {
			copied := *domainErr
			copied.HTTPStatus = http.StatusInternalServerError
			return &copied
		}
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
