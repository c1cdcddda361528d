// Package audit records security-relevant events. Events always go to the
// structured log and can additionally be forwarded to the external audit-log
// service.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/models"
	"github.com/skingford/sso-web/pkg/logger"
)

// Sink receives audit events. Record must not block the request path.
type Sink interface {
	Record(ctx context.Context, event models.AuditEvent)
}

// NewEvent returns an event of the given type with ID and timestamp set.
func NewEvent(eventType models.AuditEventType, success bool) models.AuditEvent {
	return models.AuditEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Success:   success,
	}
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record logs the event at info level, or warn for failures.
func (s *LogSink) Record(ctx context.Context, event models.AuditEvent) {
	fields := logrus.Fields{
		"audit_id":   event.ID,
		"audit_type": event.Type,
		"success":    event.Success,
	}
	if event.Actor != "" {
		fields["actor"] = event.Actor
	}
	if event.ClientID != "" {
		fields["client_id"] = event.ClientID
	}
	if event.IPAddress != "" {
		fields["ip"] = event.IPAddress
	}
	if event.Path != "" {
		fields["method"] = event.Method
		fields["path"] = event.Path
	}
	for k, v := range event.Details {
		fields["detail_"+k] = v
	}

	entry := logger.WithCorrelationID(ctx, s.logger).WithFields(fields)
	if event.Success {
		entry.Info("Audit event")
		return
	}
	entry.Warn("Audit event")
}

// Multi fans an event out to several sinks.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(ctx context.Context, event models.AuditEvent) {
	for _, sink := range m {
		sink.Record(ctx, event)
	}
}

// Discard drops every event.
type Discard struct{}

// Record implements Sink.
func (Discard) Record(context.Context, models.AuditEvent) {}
