package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/constants"
	"github.com/skingford/sso-web/internal/models"
	"github.com/skingford/sso-web/internal/ratelimit"
)

// RateLimit applies the named limiter preset. Requests are keyed by the
// verified token subject or login session when present, otherwise by client
// IP. Presets marked KeyByIP always use the IP.
func (m *Stack) RateLimit(preset string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := m.clientIP(r)
			if m.limiter == nil || m.isTrustedProxy(clientIP) {
				next.ServeHTTP(w, r)
				return
			}

			key := m.rateLimitKey(r, preset, clientIP)
			ctx := ratelimit.WithRequestMeta(r.Context(), ratelimit.RequestMeta{
				Method:    r.Method,
				Path:      r.URL.Path,
				IPAddress: clientIP,
			})

			decision, err := m.limiter.Check(ctx, key, preset)
			if errors.Is(err, ratelimit.ErrContention) {
				m.logger.WithFields(logrus.Fields{
					"key":    key,
					"preset": preset,
				}).Warn("Rate limit record contended, rejecting request")
				writeRateLimited(w, m.logger, "Too many concurrent requests, please try again later", 1)
				return
			}
			if err != nil {
				// Fail open: a store outage must not lock every user out.
				m.logger.WithError(err).WithFields(logrus.Fields{
					"key":    key,
					"preset": preset,
				}).Error("Failed to check rate limit")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set(constants.HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
			w.Header().Set(constants.HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
			w.Header().Set(constants.HeaderRateLimitReset, strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				message := "Too many requests, please try again later"
				if decision.Event == models.AuditRateLimitBlocked {
					message = "Client is temporarily blocked due to too many requests"
				}
				writeRateLimited(w, m.logger, message, decision.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *Stack) rateLimitKey(r *http.Request, preset, clientIP string) string {
	if p, ok := m.limiter.Preset(preset); ok && p.KeyByIP {
		return "ip:" + clientIP
	}
	if claims, ok := ClaimsFromContext(r.Context()); ok {
		return "user:" + claims.Subject
	}
	if m.sessions != nil {
		if cookie, err := r.Cookie(constants.SessionCookieName); err == nil {
			if session, lookupErr := m.sessions.Lookup(r.Context(), cookie.Value); lookupErr == nil {
				return "user:" + session.UserID
			}
		}
	}
	return "ip:" + clientIP
}

func writeRateLimited(w http.ResponseWriter, logger *logrus.Logger, message string, retryAfter int64) {
	w.Header().Set(constants.HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(http.StatusTooManyRequests)

	body := models.RateLimitExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    message,
		RetryAfter: retryAfter,
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("Failed to encode rate limit response")
	}
}
