package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompositeHealthChecker_NoChecks(t *testing.T) {
	checker := NewCompositeHealthChecker("v1")

	status := checker.Check(context.Background())

	assert.True(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Equal(t, "No health checks registered", status.Message)
	assert.Equal(t, "v1", status.Version)
}

func TestCompositeHealthChecker_AllPassing(t *testing.T) {
	checker := NewCompositeHealthChecker("v1")
	checker.AddCheck("database", func(ctx context.Context) error { return nil })
	checker.AddCheck("cache", func(ctx context.Context) error { return nil })

	status := checker.Check(context.Background())

	assert.True(t, status.Healthy)
	assert.Equal(t, "All checks passed", status.Message)
	require.Len(t, status.Checks, 2)
	assert.True(t, status.Checks["database"].Healthy)
	assert.Equal(t, "OK", status.Checks["cache"].Message)
}

func TestCompositeHealthChecker_FailingCheck(t *testing.T) {
	checker := NewCompositeHealthChecker("v1")
	checker.AddCheck("database", func(ctx context.Context) error { return nil })
	checker.AddCheck("cache", func(ctx context.Context) error {
		return errors.New("dial tcp: connection refused")
	})

	status := checker.Check(context.Background())

	assert.False(t, status.Healthy)
	assert.False(t, status.Ready)
	assert.Contains(t, status.Message, "cache")
	assert.True(t, status.Checks["database"].Healthy)
	assert.False(t, status.Checks["cache"].Healthy)
	assert.Equal(t, "dial tcp: connection refused", status.Checks["cache"].Message)
}

func TestCompositeHealthChecker_SlowCheckTimesOut(t *testing.T) {
	checker := NewCompositeHealthChecker("v1")
	checker.SetTimeout(20 * time.Millisecond)
	checker.AddCheck("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	status := checker.Check(context.Background())

	assert.False(t, status.Healthy)
	assert.False(t, status.Checks["slow"].Healthy)
}

func TestCompositeHealthChecker_RemoveCheck(t *testing.T) {
	checker := NewCompositeHealthChecker("v1")
	checker.AddCheck("flaky", func(ctx context.Context) error { return errors.New("down") })

	assert.False(t, checker.Check(context.Background()).Healthy)

	checker.RemoveCheck("flaky")
	status := checker.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Empty(t, status.Checks)
}

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func TestPredefinedChecks(t *testing.T) {
	healthy := NewDatabaseCheck(&fakePinger{})
	assert.NoError(t, healthy(context.Background()))

	broken := NewCacheCheck(&fakePinger{err: errors.New("NOAUTH")})
	assert.Error(t, broken(context.Background()))
}

func TestNoopHealthChecker(t *testing.T) {
	checker := NewNoopHealthChecker()
	checker.AddCheck("ignored", func(ctx context.Context) error { return errors.New("never runs") })

	status := checker.Check(context.Background())

	assert.True(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Equal(t, "OK", status.Message)
}
