package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/auth"
	"github.com/skingford/sso-web/internal/config"
	"github.com/skingford/sso-web/internal/middleware"
	"github.com/skingford/sso-web/internal/models"
	"github.com/skingford/sso-web/internal/ratelimit"
	"github.com/skingford/sso-web/pkg/logger"
)

// AdminHandler serves confirmation codes for sensitive operations and the
// rate limiter administration endpoints. Routes are mounted behind
// VerifyToken and RequireScopes("admin").
type AdminHandler struct {
	codes   *auth.ConfirmationCodes
	limiter *ratelimit.Limiter
	config  *config.Config
	logger  *logrus.Logger
}

// NewAdminHandler creates a new admin handler instance with the provided dependencies.
func NewAdminHandler(
	codes *auth.ConfirmationCodes,
	limiter *ratelimit.Limiter,
	cfg *config.Config,
	logger *logrus.Logger,
) *AdminHandler {
	return &AdminHandler{
		codes:   codes,
		limiter: limiter,
		config:  cfg,
		logger:  logger,
	}
}

// GenerateConfirmationCode handles POST /credentials/confirmation-codes.
//
// Responses:
//   - 201: code issued; the digits are only echoed in development
//   - 400: invalid body or missing fields
func (h *AdminHandler) GenerateConfirmationCode(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}

	var req models.GenerateConfirmationCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, h.logger, http.StatusBadRequest, models.ErrorCodeInvalidRequest, invalidJSONError)
		return
	}

	code, err := h.codes.Generate(r.Context(), subject, &req)
	if err != nil {
		h.writeConfirmationError(w, r, err)
		return
	}

	resp := models.GenerateConfirmationCodeResponse{
		CodeID:    code.ID,
		ExpiresIn: int(h.codes.TTL().Seconds()),
	}
	if h.config.IsDevelopment() {
		resp.ConfirmationCode = code.Code
	}

	h.logger.WithFields(logrus.Fields{
		"user_id":   subject,
		"app_id":    code.AppID,
		"operation": code.Operation,
	}).Info("Confirmation code issued")

	writeJSON(w, h.logger, http.StatusCreated, resp)
}

// VerifyConfirmationCode handles POST /credentials/confirmation-codes/verify.
//
// Responses:
//   - 200: code verified and consumed
//   - 400: invalid body, wrong or expired code
//   - 403: code was issued to another user
//   - 404: unknown code
func (h *AdminHandler) VerifyConfirmationCode(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}

	var req models.VerifyConfirmationCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, h.logger, http.StatusBadRequest, models.ErrorCodeInvalidRequest, invalidJSONError)
		return
	}

	code, err := h.codes.Verify(r.Context(), subject, &req)
	if err != nil {
		h.writeConfirmationError(w, r, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, models.VerifyConfirmationCodeResponse{
		AppID:      code.AppID,
		Operation:  code.Operation,
		VerifiedAt: time.Now().UTC(),
	})
}

func (h *AdminHandler) subject(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || claims.Subject == "" {
		writeMessage(w, h.logger, http.StatusUnauthorized, models.ErrorCodeInvalidToken, "missing token subject")
		return "", false
	}
	return claims.Subject, true
}

func (h *AdminHandler) writeConfirmationError(w http.ResponseWriter, r *http.Request, err error) {
	var validation models.ValidationErrors
	switch {
	case errors.As(err, &validation):
		writeMessage(w, h.logger, http.StatusBadRequest, models.ErrorCodeInvalidRequest, validation.Error())
	case errors.Is(err, auth.ErrConfirmationNotFound):
		writeMessage(w, h.logger, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, auth.ErrConfirmationForbidden):
		writeMessage(w, h.logger, http.StatusForbidden, models.ErrorCodeAccessDenied, err.Error())
	case errors.Is(err, auth.ErrConfirmationExpired), errors.Is(err, auth.ErrConfirmationMismatch):
		writeMessage(w, h.logger, http.StatusBadRequest, "invalid_confirmation_code", err.Error())
	default:
		logger.WithCorrelationID(r.Context(), h.logger).WithError(err).Error("Confirmation code operation failed")
		writeMessage(w, h.logger, http.StatusInternalServerError, models.ErrorCodeServerError, internalServerError)
	}
}

// ListRateLimits handles GET /admin/rate-limits.
func (h *AdminHandler) ListRateLimits(w http.ResponseWriter, r *http.Request) {
	records, err := h.limiter.Records(r.Context())
	if err != nil {
		h.internalError(w, r, err, "Failed to list rate limit records")
		return
	}
	if records == nil {
		records = []*models.RateLimitRecord{}
	}

	writeJSON(w, h.logger, http.StatusOK, models.RateLimitRecordsResponse{Total: len(records), Records: records})
}

// GetRateLimitStatus handles GET /admin/rate-limits/{key}.
func (h *AdminHandler) GetRateLimitStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.limiter.Status(r.Context(), mux.Vars(r)["key"])
	if err != nil {
		h.internalError(w, r, err, "Failed to read rate limit status")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, status)
}

// ClearRateLimit handles DELETE /admin/rate-limits/{key}. It lifts any block
// on the key across all presets.
func (h *AdminHandler) ClearRateLimit(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	cleared, err := h.limiter.Clear(r.Context(), key)
	if err != nil {
		h.internalError(w, r, err, "Failed to clear rate limit records")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, models.RateLimitClearResponse{Key: key, Cleared: cleared})
}

func (h *AdminHandler) internalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	logger.WithCorrelationID(r.Context(), h.logger).WithError(err).Error(msg)
	writeMessage(w, h.logger, http.StatusInternalServerError, models.ErrorCodeServerError, internalServerError)
}
