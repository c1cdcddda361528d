// Package sweeper periodically purges expired authorization codes,
// confirmation codes and rate-limit records. Expiry is always enforced at
// read time; sweeping only reclaims storage.
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/skingford/sso-web/internal/metrics"
)

// DefaultInterval is used when the configured interval is not positive.
const DefaultInterval = time.Minute

// SweepFunc removes expired records and returns how many it deleted.
type SweepFunc func(ctx context.Context) (int, error)

// Task is one kind of record to purge.
type Task struct {
	Kind  string
	Sweep SweepFunc
}

// Sweeper runs its tasks on a fixed interval.
type Sweeper struct {
	interval time.Duration
	tasks    []Task
	metrics  *metrics.Metrics
	logger   *logrus.Logger
}

// New creates a sweeper. m may be nil.
func New(interval time.Duration, m *metrics.Metrics, logger *logrus.Logger, tasks ...Task) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		interval: interval,
		tasks:    tasks,
		metrics:  m,
		logger:   logger,
	}
}

// Run sweeps until ctx is cancelled. It always returns nil so it can run
// under an errgroup next to the server.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.WithField("interval", s.interval.String()).Info("Expired record sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Expired record sweeper stopped")
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs every task concurrently and returns the removed count per
// kind. A failing task is logged and does not stop the others.
func (s *Sweeper) RunOnce(ctx context.Context) map[string]int {
	var (
		mu      sync.Mutex
		removed = make(map[string]int, len(s.tasks))
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range s.tasks {
		g.Go(func() error {
			n, err := task.Sweep(gctx)
			if err != nil {
				s.logger.WithError(err).WithField("kind", task.Kind).Warn("Sweep failed")
				return nil
			}

			mu.Lock()
			removed[task.Kind] = n
			mu.Unlock()

			if n > 0 {
				if s.metrics != nil {
					s.metrics.SweptRecords.WithLabelValues(task.Kind).Add(float64(n))
				}
				s.logger.WithFields(logrus.Fields{"kind": task.Kind, "removed": n}).Debug("Swept expired records")
			}
			return nil
		})
	}
	_ = g.Wait()

	return removed
}
