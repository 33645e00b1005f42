package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAwait_immediate(t *testing.T) {
	calls := 0
	err := Await(context.Background(), Bounded(3, time.Hour), func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestAwait_bounded_exhausted(t *testing.T) {
	var waits []int
	p := Bounded(3, time.Millisecond)
	p.OnWait = func(attempt int) { waits = append(waits, attempt) }

	calls := 0
	err := Await(context.Background(), p, func(context.Context) (bool, error) {
		calls++
		return false, nil
	})
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, waits)
}

func TestAwait_unbounded_eventually(t *testing.T) {
	var n atomic.Int32
	err := Await(context.Background(), Unbounded(time.Millisecond), func(context.Context) (bool, error) {
		return n.Add(1) >= 10, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(10), n.Load())
}

func TestAwait_condition_error(t *testing.T) {
	boom := errors.New("boom")
	err := Await(context.Background(), Unbounded(time.Millisecond), func(context.Context) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestAwait_context_cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := Await(ctx, Unbounded(5*time.Millisecond), func(context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBounded_minimumOneAttempt(t *testing.T) {
	assert.Equal(t, 1, Bounded(0, time.Second).MaxAttempts)
	assert.Equal(t, 0, Unbounded(time.Second).MaxAttempts)
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), 0))
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
