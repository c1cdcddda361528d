package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/constants"
	"github.com/skingford/sso-web/internal/metrics"
	"github.com/skingford/sso-web/internal/models"
	"github.com/skingford/sso-web/pkg/logger"
)

// writeJSON writes data as JSON with the given status code.
func writeJSON(w http.ResponseWriter, log *logrus.Logger, statusCode int, data interface{}) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeMessage writes a non-OAuth2 error body.
func writeMessage(w http.ResponseWriter, log *logrus.Logger, statusCode int, code, message string) {
	writeJSON(w, log, statusCode, models.MessageResponse{Error: code, Message: message})
}

// writeOAuth2Error converts err to an OAuth2 error response. Errors that are
// not *models.OAuth2Error become a generic server_error so internal messages
// never reach the client.
func writeOAuth2Error(
	w http.ResponseWriter,
	r *http.Request,
	log *logrus.Logger,
	m *metrics.Metrics,
	endpoint string,
	err error,
) {
	var oauthErr *models.OAuth2Error
	if !errors.As(err, &oauthErr) {
		logger.WithCorrelationID(r.Context(), log).WithError(err).Error("Unexpected error in OAuth2 endpoint")
		oauthErr = models.NewServerError("an internal error occurred")
	}

	if m != nil {
		m.OAuth2Errors.WithLabelValues(oauthErr.Code, endpoint).Inc()
	}

	if oauthErr.Code == models.ErrorCodeInvalidClient {
		w.Header().Set(constants.HeaderWWWAuthenticate, `Basic realm="sso"`)
	}
	w.Header().Set(constants.HeaderCacheControl, "no-store")
	writeJSON(w, log, oauthErr.StatusCode, oauthErr)

	logger.WithCorrelationID(r.Context(), log).WithFields(logrus.Fields{
		"endpoint":    endpoint,
		"error":       oauthErr.Code,
		"description": oauthErr.Description,
		"status_code": oauthErr.StatusCode,
	}).Warn("OAuth2 error response")
}
