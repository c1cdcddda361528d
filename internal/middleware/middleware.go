// Package middleware provides HTTP middleware components for the SSO service
// including request logging, flood protection, CORS, security headers, bearer
// token verification, scope enforcement and the per-endpoint rate limiter.
package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/auth"
	"github.com/skingford/sso-web/internal/config"
	"github.com/skingford/sso-web/internal/constants"
	"github.com/skingford/sso-web/internal/metrics"
	"github.com/skingford/sso-web/internal/ratelimit"
	"github.com/skingford/sso-web/pkg/logger"
)

const (
	// HTTPClientError minimum status code (4xx).
	HTTPClientError = 400
	// HTTPServerError minimum status code (5xx).
	HTTPServerError = 500

	floodGuardKeyPrefix = "auth:flood:"
)

// Stack holds all middleware dependencies and provides
// methods to create HTTP middleware handlers.
type Stack struct {
	config   *config.Config
	oauth    auth.Service
	sessions *auth.SessionManager
	limiter  *ratelimit.Limiter
	flood    *redis_rate.Limiter
	metrics  *metrics.Metrics
	logger   *logrus.Logger
}

// NewStack creates a new middleware stack with the provided dependencies.
// The redisClient parameter is optional and only used for the flood guard.
// If nil, the flood guard is disabled (the MemoryStore fallback).
func NewStack(
	cfg *config.Config,
	oauth auth.Service,
	sessions *auth.SessionManager,
	limiter *ratelimit.Limiter,
	redisClient *redis.Client,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *Stack {
	var flood *redis_rate.Limiter
	if redisClient != nil {
		flood = redis_rate.NewLimiter(redisClient)
	}

	return &Stack{
		config:   cfg,
		oauth:    oauth,
		sessions: sessions,
		limiter:  limiter,
		flood:    flood,
		metrics:  m,
		logger:   logger,
	}
}

// Chain applies multiple middleware functions to an HTTP handler.
func (m *Stack) Chain(h http.Handler, middleware ...func(http.Handler) http.Handler) http.Handler {
	for i := range middleware {
		h = middleware[len(middleware)-1-i](h)
	}
	return h
}

// RequestLogger assigns a correlation ID, logs the request with its outcome
// and records the HTTP metrics.
func (m *Stack) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(constants.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		r = r.WithContext(logger.SetCorrelationID(r.Context(), requestID))

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		wrapped.Header().Set(constants.HeaderXRequestID, requestID)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		path := routeTemplate(r)
		if m.metrics != nil {
			m.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
			m.metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration.Seconds())
			m.metrics.HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(wrapped.size))
		}

		if strings.HasPrefix(r.URL.Path, constants.APIBasePath+"/health") || r.URL.Path == constants.APIBasePath+"/metrics" {
			return
		}

		fields := logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"duration":    duration.String(),
			"duration_ms": duration.Milliseconds(),
			"remote_addr": m.clientIP(r),
			"user_agent":  r.UserAgent(),
		}
		if referer := r.Header.Get(constants.HeaderReferer); referer != "" {
			fields["referer"] = referer
		}

		level := logrus.InfoLevel
		if wrapped.statusCode >= HTTPClientError {
			level = logrus.WarnLevel
		}
		if wrapped.statusCode >= HTTPServerError {
			level = logrus.ErrorLevel
		}

		logger.WithCorrelationID(r.Context(), m.logger).WithFields(fields).Log(level, "HTTP request processed")
	})
}

// routeTemplate returns the matched mux route template so metric labels stay
// bounded.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// FloodGuard is a coarse per-IP GCRA limit shared across replicas through
// Redis. It runs in front of every route and is skipped without Redis.
func (m *Stack) FloodGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := m.clientIP(r)
		if m.flood == nil || m.isTrustedProxy(clientIP) {
			next.ServeHTTP(w, r)
			return
		}

		limit := redis_rate.Limit{
			Rate:   m.config.Security.FloodGuardRPS,
			Burst:  m.config.Security.FloodGuardBurst,
			Period: time.Second,
		}
		result, err := m.flood.Allow(r.Context(), floodGuardKeyPrefix+clientIP, limit)
		if err != nil {
			m.logger.WithError(err).Error("Failed to check flood guard")
			next.ServeHTTP(w, r)
			return
		}

		if result.Allowed == 0 {
			retryAfter := int64(result.RetryAfter / time.Second)
			if retryAfter < 1 {
				retryAfter = 1
			}
			if m.metrics != nil {
				m.metrics.RateLimitDecisions.WithLabelValues("flood_guard", "exceeded").Inc()
			}
			m.logger.WithFields(logrus.Fields{
				"client_ip": clientIP,
				"path":      r.URL.Path,
				"method":    r.Method,
			}).Warn("Flood guard tripped")
			writeRateLimited(w, m.logger, "Too many requests", retryAfter)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CORS handles Cross-Origin Resource Sharing headers based on configuration.
func (m *Stack) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.setCORSHeaders(w, r)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Stack) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	sec := m.config.Security
	origin := r.Header.Get("Origin")

	switch {
	case origin != "" && m.isOriginAllowed(origin):
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	case len(sec.AllowedOrigins) == 1 && sec.AllowedOrigins[0] == "*":
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}

	if len(sec.AllowedMethods) > 0 {
		w.Header().Set("Access-Control-Allow-Methods", strings.Join(sec.AllowedMethods, ", "))
	}
	if len(sec.AllowedHeaders) > 0 {
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(sec.AllowedHeaders, ", "))
	}
	if len(sec.ExposedHeaders) > 0 {
		w.Header().Set("Access-Control-Expose-Headers", strings.Join(sec.ExposedHeaders, ", "))
	}
	if sec.AllowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	if sec.MaxAge > 0 {
		w.Header().Set("Access-Control-Max-Age", strconv.Itoa(sec.MaxAge))
	}
}

// SecurityHeaders adds security-related HTTP headers to responses.
func (m *Stack) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy",
			"default-src 'self'; object-src 'none'; frame-ancestors 'none'; base-uri 'self';")

		// Token responses must never be cached.
		if strings.HasPrefix(r.URL.Path, constants.APIBasePath+"/oauth2/") {
			w.Header().Set(constants.HeaderCacheControl, "no-store")
			w.Header().Set(constants.HeaderPragma, "no-cache")
		}

		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// Recovery recovers from panics and logs them while returning a proper error response.
func (m *Stack) Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.WithCorrelationID(r.Context(), m.logger).WithFields(logrus.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
					"panic":  err,
				}).Error("Panic recovered")

				w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"server_error","error_description":"An unexpected error occurred"}`))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// ContentType validates Content-Type headers for POST requests.
func (m *Stack) ContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.ContentLength > 0 {
			contentType := r.Header.Get(constants.HeaderContentType)
			isForm := strings.Contains(contentType, constants.ContentTypeFormURLEncoded)
			isJSON := strings.Contains(contentType, constants.ContentTypeJSON)
			if !isForm && !isJSON {
				w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
				w.WriteHeader(http.StatusUnsupportedMediaType)
				_, _ = w.Write([]byte(`{"error":"invalid_request",` +
					`"error_description":"Content-Type must be application/x-www-form-urlencoded or application/json"}`))
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code and size.
type responseWriter struct {
	http.ResponseWriter

	statusCode  int
	size        int
	wroteHeader bool
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Write counts the bytes written.
func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// ClientIP returns the address a request is attributed to. Forwarding
// headers are honoured only when the connecting peer is one of
// trustedProxies; X-Forwarded-For is then walked from the right and the
// first hop that is not itself a trusted proxy wins.
func ClientIP(r *http.Request, trustedProxies []string) string {
	peer := PeerIP(r)
	if !isTrusted(peer, trustedProxies) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !isTrusted(hop, trustedProxies) {
				return hop
			}
		}
		return peer
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

// PeerIP is the host part of the connection's remote address.
func PeerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (m *Stack) clientIP(r *http.Request) string {
	return ClientIP(r, m.config.Security.TrustedProxies)
}

// isTrustedProxy reports whether ip, as resolved by clientIP, is a proxy.
// That only holds when the peer is trusted and every forwarded hop is too.
func (m *Stack) isTrustedProxy(ip string) bool {
	return isTrusted(ip, m.config.Security.TrustedProxies)
}

func isTrusted(ip string, trustedProxies []string) bool {
	parsed := net.ParseIP(ip)
	for _, trusted := range trustedProxies {
		if ip == trusted {
			return true
		}
		if _, network, err := net.ParseCIDR(trusted); err == nil && parsed != nil && network.Contains(parsed) {
			return true
		}
	}
	return false
}

func (m *Stack) isOriginAllowed(origin string) bool {
	for _, allowed := range m.config.Security.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
