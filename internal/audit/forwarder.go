package audit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/metrics"
	"github.com/skingford/sso-web/internal/models"
)

const (
	// DefaultBatchSize is the most events sent in one request.
	DefaultBatchSize = 50
	// DefaultFlushInterval bounds how long a partial batch waits.
	DefaultFlushInterval = 2 * time.Second
	// drainTimeout bounds the final flush at shutdown.
	drainTimeout = 5 * time.Second
)

// EventSender delivers batches to the audit-log service.
type EventSender interface {
	SendEvents(ctx context.Context, events []models.AuditEvent) error
}

// Forwarder queues events and ships them in batches from Run. Record never
// blocks: when the queue is full the event is dropped and counted.
type Forwarder struct {
	sender        EventSender
	queue         chan models.AuditEvent
	batchSize     int
	flushInterval time.Duration
	logger        *logrus.Logger
	metrics       *metrics.Metrics
}

// NewForwarder creates a Forwarder with a queue of queueSize events. m may be nil.
func NewForwarder(sender EventSender, queueSize int, logger *logrus.Logger, m *metrics.Metrics) *Forwarder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Forwarder{
		sender:        sender,
		queue:         make(chan models.AuditEvent, queueSize),
		batchSize:     DefaultBatchSize,
		flushInterval: DefaultFlushInterval,
		logger:        logger,
		metrics:       m,
	}
}

// WithFlushInterval overrides the partial batch flush interval.
func (f *Forwarder) WithFlushInterval(d time.Duration) *Forwarder {
	f.flushInterval = d
	return f
}

// Record implements Sink.
func (f *Forwarder) Record(_ context.Context, event models.AuditEvent) {
	select {
	case f.queue <- event:
	default:
		f.count(event.Type, "dropped")
		f.logger.WithField("audit_type", event.Type).Warn("Audit forward queue full, dropping event")
	}
}

// Run delivers queued events until ctx is cancelled, then drains what is left.
func (f *Forwarder) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.flushInterval)
	defer ticker.Stop()

	batch := make([]models.AuditEvent, 0, f.batchSize)
	for {
		select {
		case <-ctx.Done():
			f.drain(batch)
			return nil
		case event := <-f.queue:
			batch = append(batch, event)
			if len(batch) >= f.batchSize {
				f.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				f.flush(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

func (f *Forwarder) drain(batch []models.AuditEvent) {
loop:
	for {
		select {
		case event := <-f.queue:
			batch = append(batch, event)
		default:
			break loop
		}
	}
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	f.flush(ctx, batch)
}

func (f *Forwarder) flush(ctx context.Context, batch []models.AuditEvent) {
	outcome := "forwarded"
	if err := f.sender.SendEvents(ctx, batch); err != nil {
		outcome = "failed"
		f.logger.WithError(err).WithField("count", len(batch)).Warn("Failed to forward audit events")
	}
	for _, event := range batch {
		f.count(event.Type, outcome)
	}
}

func (f *Forwarder) count(eventType models.AuditEventType, outcome string) {
	if f.metrics != nil {
		f.metrics.AuditEvents.WithLabelValues(string(eventType), outcome).Inc()
	}
}
