package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func newTestBreaker(cfg Config) (*CircuitBreaker, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := New(cfg)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	var transitions []string
	cb, _ := newTestBreaker(Config{
		FailureThreshold: 2,
		Timeout:          time.Minute,
		OnStateChange:    func(from, to State) { transitions = append(transitions, from.String()+"->"+to.String()) },
	})
	ctx := context.Background()

	assert.ErrorIs(t, cb.Call(ctx, fail), errBoom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Call(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called, "fn must not run while open")
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb, now := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Minute})
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())

	*now = now.Add(time.Minute)
	assert.NoError(t, cb.Call(ctx, succeed))
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.NoError(t, cb.Call(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(Config{FailureThreshold: 3, Timeout: time.Second})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = cb.Call(ctx, fail)
	}
	*now = now.Add(2 * time.Second)

	assert.ErrorIs(t, cb.Call(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	notFound := errors.New("not found")
	cb, _ := newTestBreaker(Config{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, notFound) },
	})

	assert.ErrorIs(t, cb.Call(context.Background(), func() error { return notFound }), notFound)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CanceledContext(t *testing.T) {
	cb := New(Config{Component: "user_directory"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, cb.Call(ctx, succeed), context.Canceled)
	assert.Equal(t, "user_directory", cb.Component())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
