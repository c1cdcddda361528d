// Package auditlog provides a client for the external audit-log service API.
package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/client"
	"github.com/skingford/sso-web/internal/models"
)

// BatchRequest is the body of POST /events.
type BatchRequest struct {
	Source string              `json:"source"`
	Events []models.AuditEvent `json:"events"`
}

// BatchResponse reports how many events the audit-log service accepted.
type BatchResponse struct {
	Accepted int    `json:"accepted"`
	Message  string `json:"message"`
}

// Client provides methods for interacting with the audit-log service.
type Client struct {
	*client.OAuth2Client

	source string
	logger *logrus.Logger
}

// NewClient creates a new audit-log service client. source identifies this
// service in every batch.
func NewClient(oauth2Client *client.OAuth2Client, source string, logger *logrus.Logger) *Client {
	return &Client{
		OAuth2Client: oauth2Client,
		source:       source,
		logger:       logger,
	}
}

// SendEvents delivers a batch of audit events.
func (c *Client) SendEvents(ctx context.Context, events []models.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	resp, err := c.DoWithAuth(ctx, http.MethodPost, "/events", &BatchRequest{Source: c.source, Events: events})
	if err != nil {
		return fmt.Errorf("failed to send audit events: %w", err)
	}

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("audit events rejected: %w", c.ParseErrorResponse(resp))
	}
	defer resp.Body.Close()

	var batch BatchResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&batch); decodeErr != nil {
		return fmt.Errorf("failed to decode audit response: %w", decodeErr)
	}

	c.logger.WithFields(logrus.Fields{
		"sent":     len(events),
		"accepted": batch.Accepted,
	}).Debug("Audit events delivered")

	return nil
}
