// Package ratelimit implements the fixed-window request limiter with block
// escalation that guards login, token and admin endpoints. Records live in
// the shared Store so replicas agree on counts.
package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skingford/sso-web/internal/audit"
	"github.com/skingford/sso-web/internal/config"
	"github.com/skingford/sso-web/internal/constants"
	"github.com/skingford/sso-web/internal/metrics"
	"github.com/skingford/sso-web/internal/models"
	"github.com/skingford/sso-web/internal/redis"
)

// Preset names.
const (
	PresetLogin         = "login"
	PresetAPI           = "api"
	PresetSensitive     = "sensitive"
	PresetPasswordReset = "password_reset"
	PresetRegistration  = "registration"
)

const (
	maxCASAttempts = 8
	recordGrace    = time.Minute
)

var (
	// ErrUnknownPreset is returned for a preset name that is not configured.
	ErrUnknownPreset = errors.New("unknown rate limit preset")
	// ErrContention means the record kept changing underneath every attempt.
	ErrContention = errors.New("rate limit record contention")
)

// Decision is the outcome of one Check.
type Decision struct {
	Allowed bool
	// Limit is the preset's MaxRequests.
	Limit int
	// Remaining is the number of requests left in the window.
	Remaining int
	// ResetAt is when the current window ends.
	ResetAt time.Time
	// RetryAfter is the number of seconds to wait before retrying; zero when allowed.
	RetryAfter int64
	// Event is the audit event type for a rejection; empty when allowed.
	Event models.AuditEventType
}

// RequestMeta describes the request being limited, for audit events.
type RequestMeta struct {
	Method    string
	Path      string
	IPAddress string
}

type requestMetaKey struct{}

// WithRequestMeta attaches request details to ctx.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

func requestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithMetrics records decisions in Prometheus.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// Limiter applies the configured presets.
type Limiter struct {
	store   redis.Store
	presets map[string]config.RateLimitPreset
	sink    audit.Sink
	logger  *logrus.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewLimiter creates a Limiter over store with the given presets.
func NewLimiter(
	store redis.Store,
	presets config.RateLimitsConfig,
	sink audit.Sink,
	logger *logrus.Logger,
	opts ...Option,
) *Limiter {
	l := &Limiter{
		store:   store,
		presets: presets.Presets(),
		sink:    sink,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Preset returns the named preset.
func (l *Limiter) Preset(name string) (config.RateLimitPreset, bool) {
	p, ok := l.presets[name]
	return p, ok
}

func recordKey(preset, key string) string {
	return constants.KeyPrefixRateLimit + preset + ":" + key
}

// Check counts one request by key against preset.
func (l *Limiter) Check(ctx context.Context, key, preset string) (*Decision, error) {
	p, ok := l.presets[preset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPreset, preset)
	}
	storeKey := recordKey(preset, key)

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		now := l.now()

		raw, err := l.store.Get(ctx, storeKey)
		if err != nil && !errors.Is(err, redis.ErrCacheMiss) {
			return nil, fmt.Errorf("failed to load rate limit record: %w", err)
		}

		record := &models.RateLimitRecord{Key: key, Preset: preset, WindowResetAt: now.Add(p.Window)}
		if raw != nil {
			if err = json.Unmarshal(raw, record); err != nil {
				return nil, fmt.Errorf("failed to decode rate limit record: %w", err)
			}
		}

		decision, changed := evaluate(record, p, now)
		if !changed {
			l.observe(ctx, preset, record, decision)
			return decision, nil
		}

		data, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("failed to encode rate limit record: %w", err)
		}

		ttl := recordTTL(record, now)
		var stored bool
		if raw == nil {
			stored, err = l.store.PutIfAbsent(ctx, storeKey, data, ttl)
		} else {
			stored, err = l.store.CompareAndSwap(ctx, storeKey, raw, data, ttl)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to store rate limit record: %w", err)
		}
		if stored {
			l.observe(ctx, preset, record, decision)
			return decision, nil
		}
	}

	return nil, ErrContention
}

// evaluate applies one request to record and reports whether the record
// changed and must be written back.
func evaluate(record *models.RateLimitRecord, p config.RateLimitPreset, now time.Time) (*Decision, bool) {
	if record.IsBlockedAt(now) {
		return &Decision{
			Limit:      p.MaxRequests,
			ResetAt:    record.WindowResetAt,
			RetryAfter: ceilSeconds(record.BlockUntil.Sub(now)),
			Event:      models.AuditRateLimitBlocked,
		}, false
	}

	if record.Blocked {
		record.Blocked = false
		record.BlockUntil = nil
	}

	if now.After(record.WindowResetAt) {
		record.Count = 0
		record.WindowResetAt = now.Add(p.Window)
	}

	record.Count++
	if record.Count > p.MaxRequests {
		blockUntil := now.Add(p.BlockDuration)
		record.Blocked = true
		record.BlockUntil = &blockUntil
		return &Decision{
			Limit:      p.MaxRequests,
			ResetAt:    record.WindowResetAt,
			RetryAfter: ceilSeconds(p.BlockDuration),
			Event:      models.AuditRateLimitExceeded,
		}, true
	}

	return &Decision{
		Allowed:   true,
		Limit:     p.MaxRequests,
		Remaining: p.MaxRequests - record.Count,
		ResetAt:   record.WindowResetAt,
	}, true
}

// ceilSeconds rounds d up to whole seconds, never below one.
func ceilSeconds(d time.Duration) int64 {
	s := int64(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// recordTTL keeps a record in the store until both its window and any block
// are over, plus a grace period for the sweeper.
func recordTTL(record *models.RateLimitRecord, now time.Time) time.Duration {
	end := record.WindowResetAt
	if record.BlockUntil != nil && record.BlockUntil.After(end) {
		end = *record.BlockUntil
	}
	return end.Sub(now) + recordGrace
}

func (l *Limiter) observe(ctx context.Context, preset string, record *models.RateLimitRecord, d *Decision) {
	outcome := "allowed"
	if !d.Allowed {
		outcome = strings.TrimPrefix(string(d.Event), "rate_limit:")
	}
	if l.metrics != nil {
		l.metrics.RateLimitDecisions.WithLabelValues(preset, outcome).Inc()
	}
	if d.Allowed {
		return
	}

	meta := requestMetaFrom(ctx)
	event := audit.NewEvent(d.Event, false)
	event.Actor = record.Key
	event.IPAddress = meta.IPAddress
	event.Method = meta.Method
	event.Path = meta.Path
	event.Details = map[string]interface{}{
		"preset":          preset,
		"count":           record.Count,
		"limit":           d.Limit,
		"retry_after":     d.RetryAfter,
		"window_reset_at": record.WindowResetAt,
	}
	if record.BlockUntil != nil {
		event.Details["block_until"] = *record.BlockUntil
	}
	l.sink.Record(ctx, event)

	l.logger.WithFields(logrus.Fields{
		"key":         record.Key,
		"preset":      preset,
		"count":       record.Count,
		"retry_after": d.RetryAfter,
		"path":        meta.Path,
	}).Warn("Rate limit rejected request")
}

// Status returns key's records across every preset.
func (l *Limiter) Status(ctx context.Context, key string) (*models.RateLimitStatus, error) {
	status := &models.RateLimitStatus{Key: key, Records: []*models.RateLimitRecord{}}
	for _, preset := range l.presetNames() {
		var record models.RateLimitRecord
		if _, err := redis.GetJSON(ctx, l.store, recordKey(preset, key), &record); err != nil {
			if errors.Is(err, redis.ErrCacheMiss) {
				continue
			}
			return nil, err
		}
		status.Records = append(status.Records, &record)
	}
	return status, nil
}

// Clear removes key's records across every preset and returns how many existed.
func (l *Limiter) Clear(ctx context.Context, key string) (int, error) {
	cleared := 0
	for _, preset := range l.presetNames() {
		storeKey := recordKey(preset, key)
		if _, err := l.store.Get(ctx, storeKey); err != nil {
			if errors.Is(err, redis.ErrCacheMiss) {
				continue
			}
			return cleared, err
		}
		if err := l.store.Delete(ctx, storeKey); err != nil {
			return cleared, fmt.Errorf("failed to clear rate limit record: %w", err)
		}
		cleared++
	}

	l.logger.WithFields(logrus.Fields{"key": key, "cleared": cleared}).Info("Rate limit records cleared")
	return cleared, nil
}

// Records lists every stored record ordered by preset and key.
func (l *Limiter) Records(ctx context.Context) ([]*models.RateLimitRecord, error) {
	keys, err := l.store.Scan(ctx, constants.KeyPrefixRateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rate limit records: %w", err)
	}

	records := make([]*models.RateLimitRecord, 0, len(keys))
	for _, key := range keys {
		var record models.RateLimitRecord
		if _, getErr := redis.GetJSON(ctx, l.store, key, &record); getErr != nil {
			if errors.Is(getErr, redis.ErrCacheMiss) {
				continue
			}
			return nil, getErr
		}
		records = append(records, &record)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Preset != records[j].Preset {
			return records[i].Preset < records[j].Preset
		}
		return records[i].Key < records[j].Key
	})
	return records, nil
}

// Sweep deletes records whose window and block have both elapsed.
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	keys, err := l.store.Scan(ctx, constants.KeyPrefixRateLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to scan rate limit records: %w", err)
	}

	now := l.now()
	removed := 0
	for _, key := range keys {
		var record models.RateLimitRecord
		raw, getErr := redis.GetJSON(ctx, l.store, key, &record)
		if getErr != nil || !record.IsStaleAt(now) {
			continue
		}
		if ok, delErr := l.store.CompareAndDelete(ctx, key, raw); delErr == nil && ok {
			removed++
		}
	}
	return removed, nil
}

func (l *Limiter) presetNames() []string {
	names := make([]string, 0, len(l.presets))
	for name := range l.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
