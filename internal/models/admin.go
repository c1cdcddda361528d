package models

import "time"

// RateLimitStatus reports one client's records across all presets.
type RateLimitStatus struct {
	Key     string             `json:"key"`
	Records []*RateLimitRecord `json:"records"`
}

// RateLimitRecordsResponse lists all live limiter records.
type RateLimitRecordsResponse struct {
	Total   int                `json:"total"`
	Records []*RateLimitRecord `json:"records"`
}

// RateLimitClearResponse reports how many records were removed for a key.
type RateLimitClearResponse struct {
	Key     string `json:"key"`
	Cleared int    `json:"cleared"`
}

// ConfirmationCode is a short-lived one-time code guarding a sensitive
// operation. It is bound to the subject that requested it.
type ConfirmationCode struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	UserID    string    `json:"user_id"`
	AppID     string    `json:"app_id"`
	Operation string    `json:"operation"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GenerateConfirmationCodeRequest asks for a confirmation code.
type GenerateConfirmationCodeRequest struct {
	Operation string `json:"operation"`
	AppID     string `json:"app_id"`
}

// GenerateConfirmationCodeResponse identifies the generated code. The code
// itself is only returned in development.
type GenerateConfirmationCodeResponse struct {
	CodeID           string `json:"code_id"`
	ExpiresIn        int    `json:"expires_in"`
	ConfirmationCode string `json:"confirmation_code,omitempty"`
}

// VerifyConfirmationCodeRequest submits a code for verification.
type VerifyConfirmationCodeRequest struct {
	CodeID           string `json:"code_id"`
	ConfirmationCode string `json:"confirmation_code"`
}

// VerifyConfirmationCodeResponse reports what a verified code authorized.
type VerifyConfirmationCodeResponse struct {
	AppID      string    `json:"app_id"`
	Operation  string    `json:"operation"`
	VerifiedAt time.Time `json:"verified_at"`
}

// MessageResponse is a generic JSON error or status body for non-OAuth2 endpoints.
type MessageResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
}
