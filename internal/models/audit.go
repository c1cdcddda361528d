package models

import "time"

// AuditEventType names an auditable event.
type AuditEventType string

const (
	AuditRateLimitExceeded   AuditEventType = "rate_limit:exceeded"
	AuditRateLimitBlocked    AuditEventType = "rate_limit:blocked"
	AuditCodeIssued          AuditEventType = "oauth2:code_issued"
	AuditCodeRedeemFailed    AuditEventType = "oauth2:code_redeem_failed"
	AuditTokenIssued         AuditEventType = "oauth2:token_issued"
	AuditTokenRefreshed      AuditEventType = "oauth2:token_refreshed"
	AuditTokenRevoked        AuditEventType = "oauth2:token_revoked"
	AuditClientAuthFailed    AuditEventType = "oauth2:client_auth_failed"
	AuditLoginSucceeded      AuditEventType = "auth:login"
	AuditLoginFailed         AuditEventType = "auth:login_failed"
	AuditLogout              AuditEventType = "auth:logout"
	AuditConfirmationIssued  AuditEventType = "credentials:confirmation_code_generated"
	AuditConfirmationChecked AuditEventType = "credentials:confirmation_code_verified"
)

// AuditEvent is a single record handed to the audit sink.
type AuditEvent struct {
	ID        string                 `json:"id"`
	Type      AuditEventType         `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor,omitempty"`
	ClientID  string                 `json:"client_id,omitempty"`
	IPAddress string                 `json:"ip_address,omitempty"`
	Method    string                 `json:"method,omitempty"`
	Path      string                 `json:"path,omitempty"`
	Success   bool                   `json:"success"`
	Details   map[string]interface{} `json:"details,omitempty"`
}
