package models

import (
	"fmt"
	"net/http"
)

// OAuth2 error codes as defined in RFC 6749, RFC 6750 and RFC 7009.
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeInvalidScope            = "invalid_scope"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeInsufficientScope       = "insufficient_scope"
	ErrorCodeInvalidToken            = "invalid_token"
	ErrorCodeServerError             = "server_error"
)

// OAuth2Error represents a standard OAuth2 error response as defined in RFC 6749.
// It implements the error interface and provides methods for building error responses
// with state and description information.
type OAuth2Error struct {
	// Code is the OAuth2 error code (e.g., "invalid_request", "invalid_client").
	Code string `json:"error"`
	// Description provides additional human-readable error information.
	Description string `json:"error_description,omitempty"`
	// URI is a reference to a web page with error information.
	URI string `json:"error_uri,omitempty"`
	// State is the client-provided state parameter for CSRF protection.
	State string `json:"state,omitempty"`
	// RequiredScopes lists the scopes a protected resource demanded (insufficient_scope only).
	RequiredScopes []string `json:"required_scopes,omitempty"`
	// CurrentScopes lists the scopes the presented token carried (insufficient_scope only).
	CurrentScopes []string `json:"current_scopes,omitempty"`
	// StatusCode is the HTTP status code to return (excluded from JSON).
	StatusCode int `json:"-"`
}

func newOAuth2Error(code string, status int, description string) *OAuth2Error {
	return &OAuth2Error{Code: code, Description: description, StatusCode: status}
}

// NewInvalidRequest creates an "invalid_request" error: a required parameter is
// missing, a value is invalid or the request is otherwise malformed. HTTP 400.
func NewInvalidRequest(description string) *OAuth2Error {
	return newOAuth2Error(ErrorCodeInvalidRequest, http.StatusBadRequest, description)
}

// NewInvalidClient creates an "invalid_client" error. Client authentication
// failures are undifferentiated: an unknown client and a wrong secret produce
// the same error. HTTP 401.
func NewInvalidClient(description string) *OAuth2Error {
	return newOAuth2Error(ErrorCodeInvalidClient, http.StatusUnauthorized, description)
}

// NewInvalidGrant creates an "invalid_grant" error: the authorization code or
// refresh token is invalid, expired, already used, bound to another redirect
// URI or issued to another client. HTTP 400.
func NewInvalidGrant(description string) *OAuth2Error {
	return newOAuth2Error(ErrorCodeInvalidGrant, http.StatusBadRequest, description)
}

// NewUnauthorizedClient creates an "unauthorized_client" error: the client may
// not use the requested grant or response type. HTTP 400.
func NewUnauthorizedClient(description string) *OAuth2Error {
	return newOAuth2Error(ErrorCodeUnauthorizedClient, http.StatusBadRequest, description)
}

// NewUnsupportedGrantType creates an "unsupported_grant_type" error. HTTP 400.
func NewUnsupportedGrantType(description string) *OAuth2Error {
	return newOAuth2Error(ErrorCodeUnsupportedGrantType, http.StatusBadRequest, description)
}

// NewUnsupportedResponseType creates an "unsupported_response_type" error. HTTP 400.
func NewUnsupportedResponseType(description string) *OAuth2Error {
	return newOAuth2Error(ErrorCodeUnsupportedResponseType, http.StatusBadRequest, description)
}

// NewInvalidScope creates an "invalid_scope" error: the requested scope is
// unknown, malformed or exceeds what the client may be granted. HTTP 400.
func NewInvalidScope(description string) *OAuth2Error {
	return newOAuth2Error(ErrorCodeInvalidScope, http.StatusBadRequest, description)
}

// NewAccessDenied creates an "access_denied" error. HTTP 403.
func NewAccessDenied(description string) *OAuth2Error {
	return newOAuth2Error(ErrorCodeAccessDenied, http.StatusForbidden, description)
}

// NewInsufficientScope creates an "insufficient_scope" error (RFC 6750) that
// reports both the required and the presented scopes. HTTP 403.
func NewInsufficientScope(required, current []string) *OAuth2Error {
	e := newOAuth2Error(ErrorCodeInsufficientScope, http.StatusForbidden,
		"the access token does not carry the required scopes")
	e.RequiredScopes = required
	e.CurrentScopes = current
	return e
}

// NewInvalidToken creates an "invalid_token" error (RFC 6750) for expired,
// malformed, revoked or badly signed tokens. HTTP 401.
func NewInvalidToken(description string) *OAuth2Error {
	return newOAuth2Error(ErrorCodeInvalidToken, http.StatusUnauthorized, description)
}

// NewServerError creates a "server_error" error. The description must never
// carry internal error text. HTTP 500.
func NewServerError(description string) *OAuth2Error {
	return newOAuth2Error(ErrorCodeServerError, http.StatusInternalServerError, description)
}

// Error returns a string representation of the OAuth2 error.
// It implements the error interface.
func (e *OAuth2Error) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

// Is reports whether target is an OAuth2Error with the same code, so callers
// can match with errors.Is(err, models.ErrInvalidGrant).
func (e *OAuth2Error) Is(target error) bool {
	t, ok := target.(*OAuth2Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithState returns a copy of the error carrying the client state parameter.
func (e *OAuth2Error) WithState(state string) *OAuth2Error {
	c := *e
	c.State = state
	return &c
}

// WithDescription returns a copy of the error with the given description.
func (e *OAuth2Error) WithDescription(description string) *OAuth2Error {
	c := *e
	c.Description = description
	return &c
}

// Sentinels for errors.Is comparisons. Never mutate them; use the
// constructors or WithDescription to build responses.
var (
	ErrInvalidRequest          = NewInvalidRequest("")
	ErrInvalidClient           = NewInvalidClient("")
	ErrInvalidGrant            = NewInvalidGrant("")
	ErrUnauthorizedClient      = NewUnauthorizedClient("")
	ErrUnsupportedGrantType    = NewUnsupportedGrantType("")
	ErrUnsupportedResponseType = NewUnsupportedResponseType("")
	ErrInvalidScope            = NewInvalidScope("")
	ErrAccessDenied            = NewAccessDenied("")
	ErrInsufficientScope       = NewInsufficientScope(nil, nil)
	ErrInvalidToken            = NewInvalidToken("")
	ErrServerError             = NewServerError("")
)

// ValidationError represents a single field validation error.
// It contains the field name that failed validation and a human-readable
// message describing the validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error returns a string representation of the validation error in the format
// "field: message". It implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a slice of ValidationError that represents multiple
// field validation errors.
type ValidationErrors []ValidationError

// Error returns a string representation of the validation errors.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("validation failed with %d errors", len(e))
}

// HasErrors returns true if there are one or more validation errors in the collection.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Add appends a field error.
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// First returns the first error as an invalid_request OAuth2 error, or nil.
func (e ValidationErrors) First() *OAuth2Error {
	if len(e) == 0 {
		return nil
	}
	return NewInvalidRequest(e[0].Error())
}
