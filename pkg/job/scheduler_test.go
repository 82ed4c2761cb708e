package job

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tokmz/marquee/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAddValidation(t *testing.T) {
	s := NewScheduler()
	defer func() { _ = s.Stop(context.Background()) }()

	noop := HandlerFunc(func(context.Context) error { return nil })
	tests := []struct {
		name    string
		job     Job
		wantErr error
	}{
		{name: "valid", job: Job{Name: "room-sweep", Spec: "@every 1m", Handler: noop}},
		{name: "six fields", job: Job{Name: "seconds", Spec: "*/5 * * * * *", Handler: noop}},
		{name: "duplicate", job: Job{Name: "room-sweep", Spec: "@every 1m", Handler: noop}, wantErr: ErrJobAlreadyExists},
		{name: "empty name", job: Job{Spec: "@every 1m", Handler: noop}, wantErr: ErrInvalidJobName},
		{name: "bad spec", job: Job{Name: "bad", Spec: "every minute", Handler: noop}, wantErr: ErrInvalidCronExpression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Add(tt.job)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Error(t, s.Add(Job{Name: "nil-handler", Spec: "@every 1m"}))
	assert.ErrorIs(t, s.Remove("missing"), ErrJobNotFound)
	require.NoError(t, s.Remove("seconds"))
	assert.Len(t, s.Stats(), 1)
}

func TestTriggerRecordsStats(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	var observed []string
	s := NewScheduler(
		WithLogger(logger.FromZap(zap.New(core))),
		WithObserver(func(name string, _ time.Duration, err error) {
			if err != nil {
				name += ":err"
			}
			observed = append(observed, name)
		}),
	)
	defer func() { _ = s.Stop(context.Background()) }()

	fail := true
	require.NoError(t, s.AddFunc("party-expiry", "@hourly", func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		if fail {
			return errors.New("db unavailable")
		}
		return nil
	}))

	ctx := context.Background()
	assert.EqualError(t, s.Trigger(ctx, "party-expiry"), "db unavailable")
	fail = false
	require.NoError(t, s.Trigger(ctx, "party-expiry"))
	assert.ErrorIs(t, s.Trigger(ctx, "missing"), ErrJobNotFound)

	stats := s.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, int64(2), stats[0].Runs)
	assert.Equal(t, int64(1), stats[0].Failures)
	assert.Empty(t, stats[0].LastError)
	assert.Equal(t, []string{"party-expiry:err", "party-expiry"}, observed)
	assert.Equal(t, 1, logs.FilterMessage("job failed").Len())
}

func TestPanicBecomesError(t *testing.T) {
	s := NewScheduler()
	defer func() { _ = s.Stop(context.Background()) }()

	require.NoError(t, s.AddFunc("boom", "@hourly", func(context.Context) error { panic("nil room") }))
	err := s.Trigger(context.Background(), "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil room")
}

func TestNoOverlappingRuns(t *testing.T) {
	s := NewScheduler()
	defer func() { _ = s.Stop(context.Background()) }()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.AddFunc("slow", "@hourly", func(context.Context) error {
		close(started)
		<-release
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- s.Trigger(context.Background(), "slow") }()
	<-started

	assert.ErrorIs(t, s.Trigger(context.Background(), "slow"), ErrJobRunning)
	close(release)
	assert.NoError(t, <-done)
}

func TestScheduledRunsAndStop(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(WithJobTimeout(time.Second))
	require.NoError(t, s.AddFunc("tick", "@every 1s", func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	s.Start()
	s.Start()
	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
	assert.ErrorIs(t, s.Trigger(ctx, "tick"), ErrSchedulerStopped)
}

func TestStopTimesOutOnStuckJob(t *testing.T) {
	s := NewScheduler(WithJobTimeout(time.Minute))
	entered := make(chan struct{})
	require.NoError(t, s.AddFunc("stuck", "@every 1s", func(ctx context.Context) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	}))
	s.Start()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)

	// 取消后任务退出，cron 等待协程随之结束
	assert.Eventually(t, func() bool { return len(s.Stats()) == 1 && s.Stats()[0].Runs == 1 }, time.Second, 10*time.Millisecond)
}
