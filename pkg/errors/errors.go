package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// Access and infrastructure errors shared across the application.
var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidInput = &AppError{
		Code:       "INVALID_INPUT",
		Message:    "Request payload failed validation",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrRateLimit = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many requests, please slow down",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrCSRFInvalid = &AppError{
		Code:       "CSRF_TOKEN_INVALID",
		Message:    "Invalid CSRF token",
		StatusCode: http.StatusForbidden,
	}
)

// Authentication errors.
var (
	ErrInvalidCredentials = &AppError{
		Code:       "INVALID_CREDENTIALS",
		Message:    "Invalid email or password",
		StatusCode: http.StatusUnauthorized,
	}

	ErrAccountDisabled = &AppError{
		Code:       "ACCOUNT_DISABLED",
		Message:    "This account has been deactivated",
		StatusCode: http.StatusForbidden,
	}

	ErrAccountLocked = &AppError{
		Code:       "ACCOUNT_LOCKED",
		Message:    "Too many failed logins, account temporarily locked",
		StatusCode: http.StatusLocked,
	}
)

// Invitation lifecycle errors.
var (
	ErrInvalidToken = &AppError{
		Code:       "INVALID_TOKEN",
		Message:    "Invitation token is invalid or expired",
		StatusCode: http.StatusBadRequest,
	}

	ErrMissingMember = &AppError{
		Code:       "MISSING_MEMBER",
		Message:    "Invitation is not linked to a directory member",
		StatusCode: http.StatusConflict,
	}

	ErrAccountExists = &AppError{
		Code:       "ACCOUNT_EXISTS",
		Message:    "An account already exists for this member",
		StatusCode: http.StatusConflict,
	}

	ErrAlreadyAccepted = &AppError{
		Code:       "ALREADY_ACCEPTED",
		Message:    "Invitation has already been accepted",
		StatusCode: http.StatusConflict,
	}

	ErrEmailInUse = &AppError{
		Code:       "EMAIL_IN_USE",
		Message:    "This email address is already in use",
		StatusCode: http.StatusConflict,
	}
)

// Event errors.
var (
	ErrEventCanceled = &AppError{
		Code:       "EVENT_CANCELED",
		Message:    "Event has been canceled",
		StatusCode: http.StatusConflict,
	}

	ErrAlreadyCanceled = &AppError{
		Code:       "ALREADY_CANCELED",
		Message:    "Event is already canceled",
		StatusCode: http.StatusConflict,
	}

	ErrEventFull = &AppError{
		Code:       "EVENT_FULL",
		Message:    "Event has reached its capacity",
		StatusCode: http.StatusConflict,
	}

	ErrNotInvited = &AppError{
		Code:       "NOT_INVITED",
		Message:    "You are not invited to this event",
		StatusCode: http.StatusForbidden,
	}

	ErrInvitesRequired = &AppError{
		Code:       "INVITES_REQUIRED",
		Message:    "A restricted event requires at least one invitee",
		StatusCode: http.StatusUnprocessableEntity,
	}
)

// Administrative errors.
var (
	ErrSelfActionForbidden = &AppError{
		Code:       "SELF_ACTION_FORBIDDEN",
		Message:    "You cannot perform this action on your own account",
		StatusCode: http.StatusConflict,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest.Code,
		Message:    message,
		StatusCode: ErrBadRequest.StatusCode,
	}
}

// NewValidation surfaces a structured validation failure with a 422 status.
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       ErrInvalidInput.Code,
		Message:    message,
		StatusCode: ErrInvalidInput.StatusCode,
	}
}
