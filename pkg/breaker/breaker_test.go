package breaker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(name string) Config {
	return Config{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      100 * time.Millisecond,
		FailureRatio: 0.5,
		MinRequests:  3,
	}
}

func TestBreaker_ClosedPassesThrough(t *testing.T) {
	b := New(testConfig("test-closed"), testLogger())

	calls := 0
	err := b.Execute(context.Background(), func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_ReturnsCallError(t *testing.T) {
	b := New(testConfig("test-error"), testLogger())
	want := errors.New("broker down")

	err := b.Execute(context.Background(), func(context.Context) error { return want })
	assert.ErrorIs(t, err, want)
}

func TestBreaker_OpensAfterFailureRatio(t *testing.T) {
	b := New(testConfig("test-open"), testLogger())
	fail := func(context.Context) error { return errors.New("boom") }

	for range 3 {
		_ = b.Execute(context.Background(), fail)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	called := false
	err := b.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	b := New(testConfig("test-recover"), testLogger())
	for range 3 {
		_ = b.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	time.Sleep(150 * time.Millisecond)

	require.NoError(t, b.Execute(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_BelowMinRequestsStaysClosed(t *testing.T) {
	b := New(testConfig("test-min"), testLogger())
	for range 2 {
		_ = b.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("kafka")
	assert.Equal(t, "kafka", cfg.Name)
	assert.Equal(t, uint32(5), cfg.MinRequests)
	assert.InDelta(t, 0.5, cfg.FailureRatio, 0.0001)
}
