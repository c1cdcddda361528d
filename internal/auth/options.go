package auth

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/skingford/sso-web/internal/metrics"
)

// Option configures the services in this package.
type Option func(*options)

type options struct {
	now     func() time.Time
	random  io.Reader
	metrics *metrics.Metrics
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRandom replaces the random-bytes source.
func WithRandom(r io.Reader) Option {
	return func(o *options) { o.random = r }
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func newOptions(opts []Option) options {
	o := options{now: time.Now, random: rand.Reader}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
