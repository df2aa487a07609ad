package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupulse/attendance-insight/internal/domain/shared"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 1.0,
	}
}

func testDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	return NewDispatcher(DispatcherConfig{
		WorkerPoolSize:        4,
		RetryConfig:           fastRetryConfig(),
		EnableDeadLetterQueue: true,
		DeadLetterQueueSize:   10,
		Logger:                testLogger(),
	})
}

func TestDispatcher_RetriesUntilSuccess(t *testing.T) {
	d := testDispatcher(t)
	defer d.Stop()

	calls := 0
	err := d.RegisterSync(shared.EventRiskLevelCritical, "flaky", func(shared.Event) error {
		calls++
		if calls < 3 {
			return assert.AnError
		}
		return nil
	})
	require.NoError(t, err)

	err = d.Dispatch(shared.NewRiskLevelCriticalEvent("stu-1", 40, 12, 2))
	require.NoError(t, err)

	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, d.DeadLetterQueue().Size())

	snap := d.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalRetries)
	assert.Equal(t, int64(0), snap.TotalFailures)
}

func TestDispatcher_ExhaustedRetriesGoToDeadLetter(t *testing.T) {
	d := testDispatcher(t)
	defer d.Stop()

	calls := 0
	require.NoError(t, d.RegisterHandler(shared.EventScanCompleted, HandlerRegistration{
		Name:       "always-fails",
		MaxRetries: 1,
		Handler: func(shared.Event) error {
			calls++
			return assert.AnError
		},
	}))

	err := d.Dispatch(shared.NewScanCompletedEvent("run-1", 10, 1, 2, 3, 4, time.Second))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "always-fails")

	assert.Equal(t, 2, calls, "one attempt plus one retry")

	require.Equal(t, 1, d.DeadLetterQueue().Size())
	entry := d.DeadLetterQueue().Entries()[0]
	assert.Equal(t, "always-fails", entry.HandlerName)
	assert.Equal(t, 2, entry.Attempts)
	assert.Equal(t, shared.EventScanCompleted, entry.Event.EventType())
}

func TestDispatcher_AsyncFailuresStillReachDeadLetter(t *testing.T) {
	d := testDispatcher(t)
	defer d.Stop()

	require.NoError(t, d.RegisterHandler(shared.EventAnalysisCompleted, HandlerRegistration{
		Name:       "async-fails",
		Async:      true,
		MaxRetries: 1,
		Handler: func(shared.Event) error {
			return assert.AnError
		},
	}))

	// Async handler errors do not propagate, but dispatch joins them,
	// so the DLQ entry is visible as soon as Dispatch returns.
	err := d.Dispatch(shared.NewAnalysisCompletedEvent("stu-1", 70, "high", "declining", 30, 2))
	assert.NoError(t, err)
	assert.Equal(t, 1, d.DeadLetterQueue().Size())
}

func TestDispatcher_RecoveryMiddlewareConvertsPanics(t *testing.T) {
	d := testDispatcher(t)
	defer d.Stop()
	d.Use(RecoveryMiddleware(testLogger()))

	require.NoError(t, d.RegisterHandler(shared.EventRiskLevelCritical, HandlerRegistration{
		Name:       "panics",
		MaxRetries: 1,
		Handler: func(shared.Event) error {
			panic("boom")
		},
	}))

	err := d.Dispatch(shared.NewRiskLevelCriticalEvent("stu-1", 20, 25, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

func TestDispatcher_HandlerTimeout(t *testing.T) {
	d := testDispatcher(t)
	defer d.Stop()

	require.NoError(t, d.RegisterHandler(shared.EventScanCompleted, HandlerRegistration{
		Name:       "too-slow",
		MaxRetries: 1,
		Timeout:    5 * time.Millisecond,
		Handler: func(shared.Event) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}))

	err := d.Dispatch(shared.NewScanCompletedEvent("run-1", 1, 0, 0, 0, 1, time.Second))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestDispatcher_StartRoutesBusEvents(t *testing.T) {
	bus := syncBus(t)
	defer bus.Close()

	d := NewDispatcherBuilder(bus).
		WithWorkerPoolSize(2).
		WithRetryConfig(fastRetryConfig()).
		WithDeadLetterQueue(10).
		WithLogger(testLogger()).
		Build()
	defer d.Stop()

	var got shared.Event
	require.NoError(t, d.Register(shared.EventActionsGenerated, "capture", func(event shared.Event) error {
		got = event
		return nil
	}))

	require.NoError(t, d.Start())
	require.NoError(t, bus.Publish(shared.NewActionsGeneratedEvent("stu-1", "sess-1", []string{"meeting", "notify_parent"})))

	require.NotNil(t, got)
	assert.Equal(t, "stu-1", got.Payload()["student_id"])
	assert.Equal(t, "sess-1", got.Payload()["session_id"])
}

func TestDeadLetterQueue_FIFOAndCapacity(t *testing.T) {
	q := NewDeadLetterQueue(2)

	q.Add(DeadLetterEntry{HandlerName: "a"})
	q.Add(DeadLetterEntry{HandlerName: "b"})
	q.Add(DeadLetterEntry{HandlerName: "c"})

	// Capacity 2: oldest entry dropped.
	assert.Equal(t, 2, q.Size())

	first, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", first.HandlerName)

	second, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "c", second.HandlerName)

	_, ok = q.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Size())
}
