package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findStatus(t *testing.T, s *Scheduler, name string) TaskStatus {
	t.Helper()
	for _, status := range s.Status() {
		if status.Name == name {
			return status
		}
	}
	t.Fatalf("task %s not found in status", name)
	return TaskStatus{}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	s := New(nil, nil)
	noop := func(ctx context.Context) error { return nil }

	require.NoError(t, s.Register("collect", "@every 1m", noop))
	assert.Error(t, s.Register("collect", "@every 5m", noop))
}

func TestRegisterRejectsInvalidSchedule(t *testing.T) {
	s := New(nil, nil)
	err := s.Register("broken", "not a schedule", func(ctx context.Context) error { return nil })
	require.Error(t, err)

	// A failed registration must not leave a phantom task behind.
	assert.Error(t, s.RunNow("broken"))
}

func TestRunNowExecutesTask(t *testing.T) {
	s := New(nil, nil)

	var runs atomic.Int64
	require.NoError(t, s.Register("collect", "@every 1h", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	require.NoError(t, s.RunNow("collect"))
	assert.Equal(t, int64(1), runs.Load())

	status := findStatus(t, s, "collect")
	assert.Equal(t, int64(1), status.RunCount)
	assert.Equal(t, int64(0), status.FailCount)
	assert.Empty(t, status.LastError)
	assert.NotNil(t, status.LastRunAt)
}

func TestRunNowUnknownTask(t *testing.T) {
	s := New(nil, nil)
	assert.Error(t, s.RunNow("ghost"))
}

func TestOverlappingRunsAreSkipped(t *testing.T) {
	s := New(nil, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Register("slow", "@every 1h", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.RunNow("slow")
	}()

	<-started
	// Second trigger while the first is in flight is skipped, not queued.
	require.NoError(t, s.RunNow("slow"))

	status := findStatus(t, s, "slow")
	assert.True(t, status.Running)
	assert.Equal(t, int64(1), status.SkipCount)

	close(release)
	wg.Wait()

	status = findStatus(t, s, "slow")
	assert.False(t, status.Running)
	assert.Equal(t, int64(1), status.RunCount)
}

func TestFailedRunIsAccounted(t *testing.T) {
	s := New(nil, nil)
	require.NoError(t, s.Register("failing", "@every 1h", func(ctx context.Context) error {
		return fmt.Errorf("database unavailable")
	}))

	require.NoError(t, s.RunNow("failing"))

	status := findStatus(t, s, "failing")
	assert.Equal(t, int64(1), status.RunCount)
	assert.Equal(t, int64(1), status.FailCount)
	assert.Contains(t, status.LastError, "database unavailable")
}

func TestPanickingTaskIsContained(t *testing.T) {
	s := New(nil, nil)
	require.NoError(t, s.Register("panicky", "@every 1h", func(ctx context.Context) error {
		panic("nil map write")
	}))

	require.NoError(t, s.RunNow("panicky"))

	status := findStatus(t, s, "panicky")
	assert.Equal(t, int64(1), status.FailCount)
	assert.Contains(t, status.LastError, "panicked")
	assert.Contains(t, status.LastError, "nil map write")
}

func TestLastErrorClearsAfterRecovery(t *testing.T) {
	s := New(nil, nil)

	var fail atomic.Bool
	fail.Store(true)
	require.NoError(t, s.Register("flaky", "@every 1h", func(ctx context.Context) error {
		if fail.Load() {
			return fmt.Errorf("transient")
		}
		return nil
	}))

	require.NoError(t, s.RunNow("flaky"))
	assert.NotEmpty(t, findStatus(t, s, "flaky").LastError)

	fail.Store(false)
	require.NoError(t, s.RunNow("flaky"))

	status := findStatus(t, s, "flaky")
	assert.Empty(t, status.LastError)
	assert.Equal(t, int64(2), status.RunCount)
	assert.Equal(t, int64(1), status.FailCount)
}

func TestTaskReceivesTimeoutContext(t *testing.T) {
	s := New(&Config{TaskTimeout: 50 * time.Millisecond}, nil)

	var deadlineSet atomic.Bool
	require.NoError(t, s.Register("bounded", "@every 1h", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		deadlineSet.Store(ok)
		return nil
	}))

	require.NoError(t, s.RunNow("bounded"))
	assert.True(t, deadlineSet.Load())
}

func TestRegisterIntervalSchedulesTicks(t *testing.T) {
	s := New(nil, nil)

	var runs atomic.Int64
	require.NoError(t, s.RegisterInterval("ticker", 100*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))

	s.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, s.Stop(ctx))
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	s := New(nil, nil)
	assert.NoError(t, s.Stop(context.Background()))
}
