package sweeper_test

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skingford/sso-web/internal/auth"
	"github.com/skingford/sso-web/internal/metrics"
	"github.com/skingford/sso-web/internal/redis"
	"github.com/skingford/sso-web/internal/sweeper"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestRunOnce(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	s := sweeper.New(time.Minute, m, quietLogger(),
		sweeper.Task{Kind: "auth_code", Sweep: func(context.Context) (int, error) { return 3, nil }},
		sweeper.Task{Kind: "confirmation_code", Sweep: func(context.Context) (int, error) { return 0, nil }},
		sweeper.Task{Kind: "rate_limit", Sweep: func(context.Context) (int, error) {
			return 0, errors.New("scan failed")
		}},
	)

	removed := s.RunOnce(context.Background())
	assert.Equal(t, map[string]int{"auth_code": 3, "confirmation_code": 0}, removed)
	assert.InDelta(t, 3, testutil.ToFloat64(m.SweptRecords.WithLabelValues("auth_code")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.SweptRecords.WithLabelValues("rate_limit")), 0)
}

func TestRunOnce_ExpiredAuthorizationCodes(t *testing.T) {
	ctx := context.Background()
	store := redis.NewMemoryStore(quietLogger())
	t.Cleanup(func() { _ = store.Close() })

	now := time.Now()
	clock := func() time.Time { return now }
	codes := auth.NewCodeStore(store, time.Minute, quietLogger(), auth.WithClock(clock))

	_, err := codes.Issue(ctx, auth.IssueInput{
		ClientID:        "demo-app-1",
		RedirectURI:     "http://localhost:3001/callback",
		ResourceOwnerID: "2",
		Scopes:          []string{"openid"},
	})
	require.NoError(t, err)

	s := sweeper.New(time.Minute, nil, quietLogger(), sweeper.Task{Kind: "auth_code", Sweep: codes.Sweep})
	assert.Equal(t, 0, s.RunOnce(ctx)["auth_code"], "live codes are kept")

	now = now.Add(time.Minute + time.Second)
	assert.Equal(t, 1, s.RunOnce(ctx)["auth_code"])
}

func TestRun_StopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	s := sweeper.New(10*time.Millisecond, nil, quietLogger(), sweeper.Task{
		Kind: "auth_code",
		Sweep: func(context.Context) (int, error) {
			calls.Add(1)
			return 0, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
