// Package constants contains shared HTTP header names, content types and
// storage key prefixes used across the service.
package constants

// Header names commonly used across the application.
const (
	// HeaderAccept is the HTTP "Accept" header name.
	HeaderAccept = "Accept"

	// HeaderAuthorization is the HTTP "Authorization" header name.
	HeaderAuthorization = "Authorization"

	// HeaderContentType is the HTTP "Content-Type" header name.
	HeaderContentType = "Content-Type"

	// HeaderCacheControl is the HTTP "Cache-Control" header name.
	HeaderCacheControl = "Cache-Control"

	// HeaderPragma is the HTTP "Pragma" header name.
	HeaderPragma = "Pragma"

	// HeaderReferer is the HTTP "Referer" header name.
	HeaderReferer = "Referer"

	// HeaderUserAgent is the HTTP "User-Agent" header name.
	HeaderUserAgent = "User-Agent"

	// HeaderWWWAuthenticate is the HTTP "WWW-Authenticate" header name.
	HeaderWWWAuthenticate = "WWW-Authenticate"

	// HeaderRetryAfter is the HTTP "Retry-After" header name.
	HeaderRetryAfter = "Retry-After"

	// HeaderXRequestID is the custom request ID header name.
	HeaderXRequestID = "X-Request-ID"

	// HeaderRateLimitLimit advertises the request budget of the current window.
	HeaderRateLimitLimit = "X-RateLimit-Limit"

	// HeaderRateLimitRemaining advertises the requests left in the current window.
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"

	// HeaderRateLimitReset advertises when the current window resets (unix seconds).
	HeaderRateLimitReset = "X-RateLimit-Reset"
)

// Common media / content types used in requests and responses.
const (
	// ContentTypeJSON represents "application/json".
	ContentTypeJSON = "application/json"

	// ContentTypeFormURLEncoded represents
	// "application/x-www-form-urlencoded".
	ContentTypeFormURLEncoded = "application/x-www-form-urlencoded"

	// ContentTypePlainUTF8 represents "text/plain; charset=utf-8".
	ContentTypePlainUTF8 = "text/plain; charset=utf-8"
)

// Storage key prefixes. Every component owns exactly one prefix.
const (
	KeyPrefixAuthCode         = "auth:code:"
	KeyPrefixRefreshGrant     = "auth:refresh:"
	KeyPrefixRevokedToken     = "auth:revoked:"
	KeyPrefixSession          = "auth:session:"
	KeyPrefixConfirmationCode = "auth:confirmation:"
	KeyPrefixRateLimit        = "auth:rate_limit:"
	KeyPrefixClientCache      = "auth:client:"
)

// SessionCookieName is the cookie carrying the resource-owner session ID.
const SessionCookieName = "sso_session"

// APIBasePath prefixes every versioned route of the service.
const APIBasePath = "/api/v1/auth"
