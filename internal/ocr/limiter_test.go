package ocr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallLimiterReturnsResult(t *testing.T) {
	l := newCallLimiter(1)
	text, err := l.do(context.Background(), func() (string, error) { return "RIDER", nil })
	require.NoError(t, err)
	assert.Equal(t, "RIDER", text)

	boom := errors.New("boom")
	_, err = l.do(context.Background(), func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
}

func TestCallLimiterHoldsSlotAfterTimeout(t *testing.T) {
	l := newCallLimiter(1)
	started := make(chan struct{})
	release := make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.do(ctx, func() (string, error) {
		close(started)
		<-release
		return "late", nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	<-started

	// the abandoned call still owns the only slot
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	called := false
	_, err = l.do(ctx2, func() (string, error) {
		called = true
		return "", nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)

	close(release)
	require.Eventually(t, func() bool { return len(l.slots) == 0 }, time.Second, 5*time.Millisecond)

	text, err := l.do(context.Background(), func() (string, error) { return "ALLONGE", nil })
	require.NoError(t, err)
	assert.Equal(t, "ALLONGE", text)
}

func TestMaxInFlightDefault(t *testing.T) {
	assert.Positive(t, Config{}.withDefaults().MaxInFlight)
	assert.Equal(t, 3, Config{MaxInFlight: 3}.withDefaults().MaxInFlight)
}
